package testkit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/todostack"
	"github.com/theory-cloud/todostack/testkit"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := testkit.NewManualClock(start)
	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start.Add(time.Minute), clock.Advance(time.Minute))

	later := start.Add(time.Hour)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestManualIDGenerator(t *testing.T) {
	ids := testkit.NewManualIDGenerator()
	ids.Queue("a")
	assert.Equal(t, "a", ids.NewID())
	assert.Equal(t, "test-id-1", ids.NewID())
	assert.Equal(t, "test-id-2", ids.NewID())
	ids.Reset()
	assert.Equal(t, "test-id-1", ids.NewID())
}

func TestProxyRequest_FillsResourceAndParams(t *testing.T) {
	event := testkit.ProxyRequest("get", "/todos/42?x=1", testkit.HTTPEventOptions{})
	assert.Equal(t, "GET", event.HTTPMethod)
	assert.Equal(t, "/todos/42", event.Path)
	assert.Equal(t, todostack.ItemPath, event.Resource)
	assert.Equal(t, map[string]string{"id": "42"}, event.PathParameters)
	assert.Equal(t, "1", event.QueryStringParameters["x"])

	raw := testkit.ProxyRequest("GET", "/todos/42", testkit.HTTPEventOptions{RawPath: true})
	assert.Empty(t, raw.Resource)
	assert.Nil(t, raw.PathParameters)

	unknown := testkit.ProxyRequest("GET", "/unknown", testkit.HTTPEventOptions{})
	assert.Empty(t, unknown.Resource)
}

func TestEnv_InvokeCreate(t *testing.T) {
	env := testkit.New()
	h := env.Handler()

	resp := env.Invoke(context.Background(), h, testkit.ProxyRequest("POST", "/todos", testkit.HTTPEventOptions{
		Body: []byte(`{"title":"write tests"}`),
	}))
	require.Equal(t, 201, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "test-id-1", body["id"])
	assert.Equal(t, "1970-01-01T00:00:00Z", body["created_at"])
}

func TestEchoBackend(t *testing.T) {
	graph, err := todostack.Assemble(todostack.DefaultDeclaration("Todo"))
	require.NoError(t, err)

	backend := testkit.NewEchoBackend()
	dep, err := backend.Provision(context.Background(), graph)
	require.NoError(t, err)
	assert.Equal(t, graph.Table.Identifier, dep.TableIdentifier)
	assert.Equal(t, "https://"+testkit.EndpointID(graph)+".execute-api.us-east-1.amazonaws.com/v1/", dep.Endpoint)
	assert.Len(t, backend.Graphs(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = backend.Provision(ctx, graph)
	assert.ErrorIs(t, err, context.Canceled)
}
