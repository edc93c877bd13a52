package testkit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/theory-cloud/todostack"
)

// EchoBackend provisions nothing. It reports the declared table identifier and an
// endpoint derived deterministically from the graph.
type EchoBackend struct {
	mu     sync.Mutex
	graphs []*todostack.Graph
}

var _ todostack.Backend = (*EchoBackend)(nil)

func NewEchoBackend() *EchoBackend {
	return &EchoBackend{}
}

func (b *EchoBackend) Name() string { return "echo" }

func (b *EchoBackend) Provision(ctx context.Context, graph *todostack.Graph) (todostack.Deployment, error) {
	if err := ctx.Err(); err != nil {
		return todostack.Deployment{}, err
	}
	b.mu.Lock()
	b.graphs = append(b.graphs, graph)
	b.mu.Unlock()

	region := graph.Region
	if region == "" {
		region = "us-east-1"
	}
	return todostack.Deployment{
		Backend:         b.Name(),
		ID:              EndpointID(graph),
		TableIdentifier: graph.Table.Identifier,
		Endpoint:        fmt.Sprintf("https://%s.execute-api.%s.amazonaws.com/%s/", EndpointID(graph), region, graph.Routing.StageName),
		Resources: map[string]string{
			graph.Table.LogicalName:   graph.Table.Identifier,
			graph.Compute.LogicalName: graph.Compute.Runtime,
			graph.Routing.LogicalName: string(graph.Routing.Kind),
		},
	}, nil
}

// Graphs returns every graph handed to Provision, in call order.
func (b *EchoBackend) Graphs() []*todostack.Graph {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*todostack.Graph(nil), b.graphs...)
}

// EndpointID is a stable ten-character id derived from the stack name.
func EndpointID(graph *todostack.Graph) string {
	sum := sha256.Sum256([]byte(graph.StackName))
	return hex.EncodeToString(sum[:])[:10]
}

// FailingBackend always fails with Err.
type FailingBackend struct {
	Err   error
	Calls int
}

var _ todostack.Backend = (*FailingBackend)(nil)

func (b *FailingBackend) Name() string { return "failing" }

func (b *FailingBackend) Provision(context.Context, *todostack.Graph) (todostack.Deployment, error) {
	b.Calls++
	return todostack.Deployment{}, b.Err
}
