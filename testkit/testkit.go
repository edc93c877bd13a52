// Package testkit provides deterministic fakes for exercising stacks and the todo handler
// without a cloud account.
package testkit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/theory-cloud/todostack/pkg/todo"
)

// Env is a deterministic local test environment for the todo handler.
type Env struct {
	Clock *ManualClock
	IDs   *ManualIDGenerator
	Store *todo.MemoryStore
}

func New() *Env {
	return NewWithTime(time.Unix(0, 0).UTC())
}

func NewWithTime(now time.Time) *Env {
	return &Env{
		Clock: NewManualClock(now),
		IDs:   NewManualIDGenerator(),
		Store: todo.NewMemoryStore(),
	}
}

// Handler returns a handler over the env's store, clock and id generator.
func (e *Env) Handler(opts ...todo.Option) *todo.Handler {
	combined := make([]todo.Option, 0, len(opts)+2)
	combined = append(combined, todo.WithClock(e.Clock))
	combined = append(combined, todo.WithIDGenerator(e.IDs))
	combined = append(combined, opts...)
	return todo.NewHandler(e.Store, combined...)
}

func (e *Env) Invoke(ctx context.Context, h *todo.Handler, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := h.Handle(ctx, event)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: 500, Body: err.Error()}
	}
	return resp
}

// ManualClock is a deterministic, mutable clock for tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ todo.Clock = (*ManualClock)(nil)

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	out := c.now
	c.mu.Unlock()
	return out
}

// ManualIDGenerator is a deterministic, predictable ID generator for tests.
type ManualIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int64
	queue  []string
}

var _ todo.IDGenerator = (*ManualIDGenerator)(nil)

func NewManualIDGenerator() *ManualIDGenerator {
	return &ManualIDGenerator{prefix: "test-id", next: 1}
}

func (g *ManualIDGenerator) Queue(ids ...string) {
	g.mu.Lock()
	g.queue = append(g.queue, ids...)
	g.mu.Unlock()
}

func (g *ManualIDGenerator) Reset() {
	g.mu.Lock()
	g.queue = nil
	g.next = 1
	g.mu.Unlock()
}

func (g *ManualIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.queue) > 0 {
		out := g.queue[0]
		g.queue = g.queue[1:]
		return out
	}

	out := fmt.Sprintf("%s-%s", g.prefix, strconv.FormatInt(g.next, 10))
	g.next++
	return out
}
