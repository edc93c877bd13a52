package todostack

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/theory-cloud/todostack/pkg/naming"
	"github.com/theory-cloud/todostack/pkg/observability"
)

// EdgeKind classifies a dependency between two graph nodes.
type EdgeKind string

const (
	EdgeConfigures EdgeKind = "configures"
	EdgeGrants     EdgeKind = "grants"
	EdgeInvokes    EdgeKind = "invokes"
	EdgePublishes  EdgeKind = "publishes"
)

// OutputsNode is the node name of the output surface in Edges.
const OutputsNode = "Outputs"

// Edge is a directed dependency: To cannot be provisioned before From.
type Edge struct {
	From   string   `yaml:"from" json:"from"`
	To     string   `yaml:"to" json:"to"`
	Kind   EdgeKind `yaml:"kind" json:"kind"`
	Detail string   `yaml:"detail,omitempty" json:"detail,omitempty"`
}

// Graph is the fully assembled resource topology.
type Graph struct {
	Name      string       `yaml:"name" json:"name"`
	StackID   string       `yaml:"stackId" json:"stackId"`
	StackName string       `yaml:"stackName" json:"stackName"`
	Region    string       `yaml:"region,omitempty" json:"region,omitempty"`
	Table     Table        `yaml:"table" json:"table"`
	Compute   ComputeUnit  `yaml:"compute" json:"compute"`
	Grant     AccessGrant  `yaml:"grant" json:"grant"`
	Routing   RoutingLayer `yaml:"routing" json:"routing"`
}

// Complete reports whether every stage of the graph was assembled.
func (g *Graph) Complete() bool {
	return g != nil && g.Table.Defined() && g.Compute.Defined() && g.Routing.Defined() && g.Grant.Grantee != ""
}

// Edges lists the graph's dependencies in provisioning order.
func (g *Graph) Edges() []Edge {
	if g == nil {
		return nil
	}
	edges := []Edge{
		{From: g.Table.LogicalName, To: g.Compute.LogicalName, Kind: EdgeConfigures, Detail: EnvTableName},
		{From: g.Compute.LogicalName, To: g.Table.LogicalName, Kind: EdgeGrants, Detail: joinOps(g.Grant.Operations)},
	}
	for _, r := range g.Routing.Routes {
		edges = append(edges, Edge{From: g.Routing.LogicalName, To: r.Target, Kind: EdgeInvokes, Detail: r.Key()})
	}
	edges = append(edges,
		Edge{From: g.Table.LogicalName, To: OutputsNode, Kind: EdgePublishes, Detail: OutputTableName},
		Edge{From: g.Routing.LogicalName, To: OutputsNode, Kind: EdgePublishes, Detail: OutputAPIURL},
	)
	return edges
}

type assembleOptions struct {
	logger observability.StructuredLogger
}

// AssembleOption configures Assemble and Provision.
type AssembleOption func(*assembleOptions)

// WithLogger routes stage logs to logger.
func WithLogger(logger observability.StructuredLogger) AssembleOption {
	return func(opts *assembleOptions) {
		opts.logger = logger
	}
}

func collectOptions(opts []AssembleOption) assembleOptions {
	out := assembleOptions{logger: observability.NewNoOpLogger()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&out)
	}
	if out.logger == nil {
		out.logger = observability.NewNoOpLogger()
	}
	return out
}

// Assemble builds the graph: table, compute unit, grant, routing layer, in that order.
// Any failure aborts the whole assembly.
func Assemble(decl Declaration, opts ...AssembleOption) (*Graph, error) {
	o := collectOptions(opts)
	log := o.logger.WithFields(map[string]any{"stack": decl.Name, "stage": decl.Stage})

	table, err := DefineTable(decl.Name, decl.Stage, decl.Tenant)
	if err != nil {
		return nil, err
	}
	log.Debug("table defined", map[string]any{"identifier": table.Identifier})

	unit, err := DefineComputeUnit(table, ComputeSpec{
		Name:    decl.Name,
		Runtime: decl.Compute.Runtime,
		Entry:   decl.Compute.Entry,
		Timeout: time.Duration(decl.Compute.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("compute unit defined", map[string]any{"runtime": unit.Runtime, "packaging": string(unit.Entry.Packaging)})

	grant, err := GrantReadWrite(unit, table)
	if err != nil {
		return nil, err
	}
	log.Debug("access granted", map[string]any{"grantee": grant.Grantee, "resource": grant.Resource})

	cors, err := decl.Routing.ResolveCORS()
	if err != nil {
		return nil, err
	}
	layer, err := BuildRoutingLayer(unit, grant, RoutingOptions{
		Name:      decl.Name,
		Kind:      decl.Routing.Kind,
		StageName: decl.Routing.StageName,
		CORS:      cors,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("routing layer built", map[string]any{"kind": string(layer.Kind), "routes": len(layer.Routes)})
	if layer.CORS.AllowsAll() {
		log.Warn("CORS policy allows any origin", map[string]any{"routing": layer.LogicalName})
	}

	return &Graph{
		Name:      decl.Name,
		StackID:   naming.LogicalID(decl.Name, "Stack"),
		StackName: naming.StackName(decl.Name, decl.Stage, decl.Tenant),
		Region:    strings.TrimSpace(decl.Region),
		Table:     table,
		Compute:   unit,
		Grant:     grant,
		Routing:   layer,
	}, nil
}

// Backend turns a graph into live resources, or fails without leaving a partial topology
// as the caller's responsibility.
type Backend interface {
	Name() string
	Provision(ctx context.Context, graph *Graph) (Deployment, error)
}

// Provision hands a complete graph to backend and publishes the resulting outputs.
// Backend failures are returned as *BackendError and never retried.
func Provision(ctx context.Context, backend Backend, graph *Graph, opts ...AssembleOption) (Outputs, error) {
	if backend == nil {
		return Outputs{}, ErrNilBackend
	}
	if !graph.Complete() {
		return Outputs{}, errors.Join(ErrInvalidDeclaration, errors.New("todostack: graph is not fully assembled"))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log := collectOptions(opts).logger.WithFields(map[string]any{"stack": graph.StackName, "backend": backend.Name()})
	log.Info("provisioning stack")

	dep, err := backend.Provision(ctx, graph)
	if err != nil {
		log.Error("provisioning failed", map[string]any{"error": err.Error()})
		return Outputs{}, &BackendError{Backend: backend.Name(), Err: err}
	}

	out, err := PublishOutputs(graph.Table, graph.Routing, dep)
	if err != nil {
		return Outputs{}, err
	}
	fields := map[string]any{}
	for k, v := range out.Map() {
		fields[k] = v
	}
	log.Info("stack provisioned", fields)
	return out, nil
}

func joinOps(ops []Operation) string {
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		parts = append(parts, string(op))
	}
	return strings.Join(parts, ",")
}
