package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/theory-cloud/todostack"
	"github.com/theory-cloud/todostack/cdk/todocdk"
	"github.com/theory-cloud/todostack/pkg/frontdoor"
	"github.com/theory-cloud/todostack/pkg/localddb"
	"github.com/theory-cloud/todostack/pkg/observability"
	obszap "github.com/theory-cloud/todostack/pkg/observability/zap"
	"github.com/theory-cloud/todostack/pkg/todo"
)

const defaultStackName = "todo-api"

type CLI struct {
	LogLevel string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)"`

	Plan  PlanCmd  `cmd:"" help:"Print the assembled resource graph as YAML"`
	Synth SynthCmd `cmd:"" help:"Synthesize the CDK cloud assembly"`
	Local LocalCmd `cmd:"" help:"Run the stack locally against DynamoDB Local"`
}

type DeclarationFlags struct {
	Config string `name:"config" short:"c" help:"Path to a YAML stack declaration"`
	Name   string `name:"name" help:"Stack name (overrides the declaration)"`
}

type PlanCmd struct {
	DeclarationFlags `embed:""`
}

type SynthCmd struct {
	DeclarationFlags `embed:""`
	Out              string `name:"out" default:"cdk.out" help:"Cloud assembly output directory"`
	SkipBundling     bool   `name:"skip-bundling" help:"Do not build bundled entries (no Docker required)"`
}

type LocalCmd struct {
	Up    LocalUpCmd    `cmd:"" help:"Create the table on DynamoDB Local and seed sample todos"`
	Serve LocalServeCmd `cmd:"" help:"Serve the API through the local front door"`
}

type LocalFlags struct {
	Endpoint string `name:"ddb-endpoint" env:"DDB_ENDPOINT" default:"http://localhost:8000" help:"DynamoDB Local endpoint"`
	Addr     string `name:"addr" default:"127.0.0.1:3000" help:"Front door listen address"`
}

type LocalUpCmd struct {
	DeclarationFlags `embed:""`
	LocalFlags       `embed:""`
	Seed             int `name:"seed" default:"3" help:"Number of sample todos to write"`
}

type LocalServeCmd struct {
	DeclarationFlags `embed:""`
	LocalFlags       `embed:""`
	Memory           bool `name:"memory" help:"Keep todos in memory instead of DynamoDB Local"`
}

type kongExitCode int

type commandDeps struct {
	getenv          func(string) string
	out             io.Writer
	errOut          io.Writer
	logger          observability.StructuredLogger
	newDynamoClient func(ctx context.Context, cfg localddb.Config) (localddb.DynamoDBClient, error)
	newSynthesizer  func(opts ...todocdk.SynthOption) todostack.Backend
	openStore       func(cfg todo.StoreConfig, table string) (todo.Store, error)
	serve           func(ctx context.Context, gw *frontdoor.Gateway, addr string, ready func(net.Addr)) error
	signalContext   func() (context.Context, context.CancelFunc)
}

func main() {
	os.Exit(run(os.Args[1:], defaultDeps()))
}

func defaultDeps() commandDeps {
	return commandDeps{
		getenv: os.Getenv,
		out:    os.Stdout,
		errOut: os.Stderr,
		newDynamoClient: func(ctx context.Context, cfg localddb.Config) (localddb.DynamoDBClient, error) {
			return localddb.NewClient(ctx, cfg)
		},
		newSynthesizer: func(opts ...todocdk.SynthOption) todostack.Backend {
			return todocdk.NewSynthesizer(opts...)
		},
		openStore: openTableTheoryStore,
		serve: func(ctx context.Context, gw *frontdoor.Gateway, addr string, ready func(net.Addr)) error {
			return gw.Serve(ctx, addr, ready)
		},
		signalContext: func() (context.Context, context.CancelFunc) {
			return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		},
	}
}

func run(args []string, deps commandDeps) (exitCode int) {
	deps = withDefaults(deps)
	out, errOut := deps.out, deps.errOut

	cli := CLI{}
	parser, err := kong.New(
		&cli,
		kong.Name("todostack"),
		kong.Description("Assemble, synthesize and run the serverless todo API stack."),
		kong.Writers(out, errOut),
		kong.Exit(func(code int) {
			panic(kongExitCode(code))
		}),
	)
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "Error: initialize command parser: %v\n", err)
		return 1
	}
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		code, ok := recovered.(kongExitCode)
		if !ok {
			panic(recovered)
		}
		exitCode = int(code)
	}()

	kctx, err := parser.Parse(args)
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		_, _ = fmt.Fprintln(errOut, "Hint: run `todostack --help`.")
		return 1
	}

	if deps.logger == nil {
		deps.logger, err = obszap.NewZapLogger(observability.LoggerConfig{Level: cli.LogLevel}, obszap.WithOutput(errOut))
		if err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: init logger: %v\n", err)
			return 1
		}
	}
	defer func() { _ = deps.logger.Flush(context.Background()) }()

	ctx, cancel := deps.signalContext()
	defer cancel()

	switch kctx.Command() {
	case "plan":
		err = runPlan(cli.Plan, deps)
	case "synth":
		err = runSynth(ctx, cli.Synth, deps)
	case "local up":
		err = runLocalUp(ctx, cli.Local.Up, deps)
	case "local serve":
		err = runLocalServe(ctx, cli.Local.Serve, deps)
	default:
		err = fmt.Errorf("unsupported command: %s", kctx.Command())
	}
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		if hint := hintFor(err); hint != "" {
			_, _ = fmt.Fprintf(errOut, "Hint: %s\n", hint)
		}
		return 1
	}
	return 0
}

func withDefaults(deps commandDeps) commandDeps {
	def := defaultDeps()
	if deps.getenv == nil {
		deps.getenv = def.getenv
	}
	if deps.out == nil {
		deps.out = def.out
	}
	if deps.errOut == nil {
		deps.errOut = def.errOut
	}
	if deps.newDynamoClient == nil {
		deps.newDynamoClient = def.newDynamoClient
	}
	if deps.newSynthesizer == nil {
		deps.newSynthesizer = def.newSynthesizer
	}
	if deps.openStore == nil {
		deps.openStore = def.openStore
	}
	if deps.serve == nil {
		deps.serve = def.serve
	}
	if deps.signalContext == nil {
		deps.signalContext = def.signalContext
	}
	return deps
}

func hintFor(err error) string {
	var declErr *todostack.DeclarationError
	var backendErr *todostack.BackendError
	switch {
	case errors.As(err, &declErr):
		return "check the stack declaration passed with --config and the TODOSTACK_* environment."
	case errors.As(err, &backendErr) && backendErr.Backend == localddb.BackendName:
		return "is DynamoDB Local running? Start it with `docker run -p 8000:8000 amazon/dynamodb-local -jar DynamoDBLocal.jar -sharedDb`."
	default:
		return ""
	}
}

func (f DeclarationFlags) assemble(deps commandDeps) (*todostack.Graph, error) {
	decl := todostack.DefaultDeclaration(defaultStackName)
	if f.Config != "" {
		loaded, err := todostack.LoadDeclaration(f.Config)
		if err != nil {
			return nil, err
		}
		decl = loaded
		if decl.Name == "" {
			decl.Name = defaultStackName
		}
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		decl.Name = name
	}
	decl, err := todostack.ApplyEnv(decl, deps.getenv)
	if err != nil {
		return nil, err
	}
	return todostack.Assemble(decl, todostack.WithLogger(deps.logger))
}

type plan struct {
	Graph  *todostack.Graph `yaml:"graph"`
	Edges  []todostack.Edge `yaml:"edges"`
	Routes []string         `yaml:"routes"`
}

func runPlan(cmd PlanCmd, deps commandDeps) error {
	graph, err := cmd.assemble(deps)
	if err != nil {
		return err
	}
	return writeYAML(deps.out, plan{Graph: graph, Edges: graph.Edges(), Routes: graph.Routing.RouteKeys()})
}

func runSynth(ctx context.Context, cmd SynthCmd, deps commandDeps) error {
	graph, err := cmd.assemble(deps)
	if err != nil {
		return err
	}
	opts := []todocdk.SynthOption{todocdk.WithOutdir(cmd.Out), todocdk.WithLogger(deps.logger)}
	if cmd.SkipBundling {
		opts = append(opts, todocdk.WithoutBundling())
	}
	outputs, err := todostack.Provision(ctx, deps.newSynthesizer(opts...), graph, todostack.WithLogger(deps.logger))
	if err != nil {
		return err
	}
	return writeYAML(deps.out, outputs)
}

func runLocalUp(ctx context.Context, cmd LocalUpCmd, deps commandDeps) error {
	graph, err := cmd.assemble(deps)
	if err != nil {
		return err
	}
	cfg := cmd.ddbConfig(graph, deps)
	client, err := deps.newDynamoClient(ctx, cfg)
	if err != nil {
		return err
	}
	backend, err := localddb.NewBackend(client, frontdoor.URL(graph.Routing, cmd.Addr),
		localddb.WithLogger(deps.logger),
		localddb.WithDatabaseEndpoint(cfg.Endpoint),
	)
	if err != nil {
		return err
	}

	outputs, err := todostack.Provision(ctx, backend, graph, todostack.WithLogger(deps.logger))
	if err != nil {
		return err
	}
	if cmd.Seed > 0 {
		ids, err := localddb.Seed(ctx, client, outputs.TableName, cmd.Seed, localddb.SeedOptions{})
		if err != nil {
			return err
		}
		deps.logger.Info("seeded sample todos", map[string]any{"table": outputs.TableName, "count": len(ids)})
	}
	if graph.Table.Index != nil {
		pending, err := localddb.CountByStatus(ctx, client, outputs.TableName, todo.StatusPending)
		if err != nil {
			return err
		}
		deps.logger.Info("pending todos", map[string]any{"table": outputs.TableName, "index": graph.Table.Index.Name, "count": pending})
	}
	return writeYAML(deps.out, outputs)
}

func runLocalServe(ctx context.Context, cmd LocalServeCmd, deps commandDeps) error {
	graph, err := cmd.assemble(deps)
	if err != nil {
		return err
	}

	var store todo.Store
	if cmd.Memory {
		store = todo.NewMemoryStore()
	} else {
		cfg := cmd.ddbConfig(graph, deps)
		store, err = deps.openStore(cfg.StoreConfig(), graph.Table.Identifier)
		if err != nil {
			return err
		}
	}

	handler := todo.NewHandler(store,
		todo.WithCORS(graph.Routing.CORS),
		todo.WithLogger(deps.logger.WithField("component", "handler")),
	)
	gw, err := frontdoor.New(graph.Routing, handler, frontdoor.WithLogger(deps.logger.WithField("component", "frontdoor")))
	if err != nil {
		return err
	}

	return deps.serve(ctx, gw, cmd.Addr, func(addr net.Addr) {
		_, _ = fmt.Fprintf(deps.out, "%s: %s\n", todostack.OutputAPIURL, gw.BaseURL(addr))
	})
}

func (f LocalFlags) ddbConfig(graph *todostack.Graph, deps commandDeps) localddb.Config {
	cfg := localddb.ConfigFromEnv(deps.getenv)
	if f.Endpoint != "" {
		cfg.Endpoint = f.Endpoint
	}
	if graph.Region != "" {
		cfg.Region = graph.Region
	}
	return cfg
}

func openTableTheoryStore(cfg todo.StoreConfig, table string) (todo.Store, error) {
	if err := os.Setenv(todo.EnvTableName, table); err != nil {
		return nil, err
	}
	db, err := todo.OpenTableTheory(cfg)
	if err != nil {
		return nil, err
	}
	return todo.NewTableTheoryStore(db), nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
