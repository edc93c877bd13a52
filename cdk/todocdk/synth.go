package todocdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
	"github.com/oklog/ulid/v2"

	"github.com/theory-cloud/todostack"
	"github.com/theory-cloud/todostack/pkg/observability"
)

// BackendName identifies deployments made by Synthesizer.
const BackendName = "cdk"

// Context key that limits asset bundling to the listed stacks.
const bundlingStacksContext = "aws:cdk:bundling-stacks"

// Synthesizer renders a graph to a CloudFormation cloud assembly. It does not deploy:
// the reported endpoint is a deferred reference to the stack's ApiUrl output.
type Synthesizer struct {
	outdir       string
	skipBundling bool
	logger       observability.StructuredLogger
	newID        func() string
}

var _ todostack.Backend = (*Synthesizer)(nil)

type SynthOption func(*Synthesizer)

// WithOutdir writes the cloud assembly to dir instead of cdk.out.
func WithOutdir(dir string) SynthOption {
	return func(s *Synthesizer) {
		s.outdir = dir
	}
}

// WithoutBundling skips asset bundling, so bundled entries synthesize without Docker.
func WithoutBundling() SynthOption {
	return func(s *Synthesizer) {
		s.skipBundling = true
	}
}

// WithLogger routes synthesis logs to logger.
func WithLogger(logger observability.StructuredLogger) SynthOption {
	return func(s *Synthesizer) {
		s.logger = logger
	}
}

func NewSynthesizer(opts ...SynthOption) *Synthesizer {
	s := &Synthesizer{
		outdir: "cdk.out",
		logger: observability.NewNoOpLogger(),
		newID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = observability.NewNoOpLogger()
	}
	return s
}

func (s *Synthesizer) Name() string {
	return BackendName
}

// NewApp returns a CDK app configured the way Provision synthesizes.
func (s *Synthesizer) NewApp() awscdk.App {
	ctx := map[string]any{}
	if s.skipBundling {
		ctx[bundlingStacksContext] = []string{}
	}
	return awscdk.NewApp(&awscdk.AppProps{
		Outdir:  jsii.String(s.outdir),
		Context: &ctx,
	})
}

// Provision synthesizes graph and reports the assembly location.
func (s *Synthesizer) Provision(ctx context.Context, graph *todostack.Graph) (dep todostack.Deployment, err error) {
	if err := ctx.Err(); err != nil {
		return todostack.Deployment{}, err
	}
	if graph == nil {
		return todostack.Deployment{}, errors.New("todocdk: graph is required")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("todocdk: synth %s: %v", graph.StackName, r)
		}
	}()

	app := s.NewApp()
	if _, err := NewTodoStack(app, graph); err != nil {
		return todostack.Deployment{}, err
	}
	assembly := app.Synth(nil)
	template := assembly.GetStackByName(jsii.String(graph.StackName)).TemplateFullPath()

	s.logger.Info("cloud assembly synthesized", map[string]any{
		"stack":    graph.StackName,
		"outdir":   *assembly.Directory(),
		"template": *template,
	})

	return todostack.Deployment{
		Backend:         BackendName,
		ID:              s.newID(),
		TableIdentifier: graph.Table.Identifier,
		Endpoint:        DeferredOutput(graph.StackName, todostack.OutputAPIURL),
		Resources: map[string]string{
			"CloudAssembly": *assembly.Directory(),
			"Template":      *template,
		},
	}, nil
}

// DeferredOutput names a stack output the way `cdk deploy --outputs-file` keys it.
func DeferredOutput(stackName, output string) string {
	return stackName + "." + output
}
