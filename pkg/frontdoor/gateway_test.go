package frontdoor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/todostack"
	"github.com/theory-cloud/todostack/pkg/frontdoor"
	"github.com/theory-cloud/todostack/testkit"
)

func layerFor(t *testing.T, kind todostack.RoutingKind, preset string) todostack.RoutingLayer {
	t.Helper()
	decl := todostack.DefaultDeclaration("Todo")
	decl.Routing.Kind = kind
	decl.Routing.CORSPreset = preset
	graph, err := todostack.Assemble(decl)
	require.NoError(t, err)
	return graph.Routing
}

func newServer(t *testing.T, kind todostack.RoutingKind, preset string) (*httptest.Server, *testkit.Env) {
	t.Helper()
	env := testkit.New()
	gw, err := frontdoor.New(layerFor(t, kind, preset), env.Handler(), frontdoor.WithRequestIDs(func() string { return "req-fixed" }))
	require.NoError(t, err)
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return srv, env
}

func do(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

func TestGateway_RestStageCRUD(t *testing.T) {
	srv, env := newServer(t, todostack.RoutingRest, todostack.CORSPresetAllowAll)
	env.IDs.Queue("42")

	resp, body := do(t, "POST", srv.URL+"/v1/todos", `{"title":"from http"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "req-fixed", resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var created map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	assert.Equal(t, "42", created["id"])

	resp, body = do(t, "GET", srv.URL+"/v1/todos/42", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"from http"`)

	resp, _ = do(t, "DELETE", srv.URL+"/v1/todos/42", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, "GET", srv.URL+"/todos", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateway_HTTPDefaultStageHasNoPrefix(t *testing.T) {
	srv, _ := newServer(t, todostack.RoutingHTTP, todostack.CORSPresetAllowAll)

	resp, body := do(t, "GET", srv.URL+"/todos", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"items":[]}`, body)
}

func TestGateway_UnknownAndMethodNotAllowed(t *testing.T) {
	srv, _ := newServer(t, todostack.RoutingRest, todostack.CORSPresetAllowAll)

	resp, body := do(t, "GET", srv.URL+"/v1/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Not Found"}`, body)

	resp, _ = do(t, "PATCH", srv.URL+"/v1/todos/1", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "DELETE, GET, PUT", resp.Header.Get("Allow"))
}

func TestGateway_Preflight(t *testing.T) {
	srv, _ := newServer(t, todostack.RoutingRest, todostack.CORSPresetAllowAll)

	for _, path := range []string{"/v1/todos", "/v1/todos/42"} {
		resp, _ := do(t, "OPTIONS", srv.URL+path, "", map[string]string{
			"Origin":                        "https://app.example",
			"Access-Control-Request-Method": "PUT",
		})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode, path)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Headers"))
	}

	resp, _ := do(t, "OPTIONS", srv.URL+"/v1/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateway_PreflightWithoutCORS(t *testing.T) {
	srv, _ := newServer(t, todostack.RoutingRest, todostack.CORSPresetNone)

	resp, _ := do(t, "OPTIONS", srv.URL+"/v1/todos", "", map[string]string{"Origin": "https://app.example"})
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestGateway_BuildsProxyEvent(t *testing.T) {
	var got events.APIGatewayProxyRequest
	invoker := frontdoor.InvokerFunc(func(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		got = req
		return events.APIGatewayProxyResponse{StatusCode: 200, Body: "ok"}, nil
	})
	gw, err := frontdoor.New(layerFor(t, todostack.RoutingRest, todostack.CORSPresetAllowAll), invoker, frontdoor.WithRequestIDs(func() string { return "r-1" }))
	require.NoError(t, err)

	req := httptest.NewRequest("PUT", "/v1/todos/abc?x=1&x=2", strings.NewReader(`{"status":"done"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, todostack.ItemPath, got.Resource)
	assert.Equal(t, "/todos/abc", got.Path)
	assert.Equal(t, "PUT", got.HTTPMethod)
	assert.Equal(t, map[string]string{"id": "abc"}, got.PathParameters)
	assert.Equal(t, "2", got.QueryStringParameters["x"])
	assert.Equal(t, []string{"1", "2"}, got.MultiValueQueryStringParameters["x"])
	assert.Equal(t, `{"status":"done"}`, got.Body)
	assert.Equal(t, "application/json", got.Headers["Content-Type"])
	assert.Equal(t, "r-1", got.RequestContext.RequestID)
	assert.Equal(t, "v1", got.RequestContext.Stage)
}

func TestGateway_InvokerErrorIsBadGateway(t *testing.T) {
	invoker := frontdoor.InvokerFunc(func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return events.APIGatewayProxyResponse{}, errors.New("function crashed")
	})
	gw, err := frontdoor.New(layerFor(t, todostack.RoutingHTTP, todostack.CORSPresetAllowAll), invoker)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest("GET", "/todos", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestGateway_BodyLimit(t *testing.T) {
	gw, err := frontdoor.New(layerFor(t, todostack.RoutingHTTP, todostack.CORSPresetAllowAll), testkit.New().Handler(), frontdoor.WithMaxBodyBytes(4))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest("POST", "/todos", strings.NewReader(`{"title":"long"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestNew_Rejects(t *testing.T) {
	_, err := frontdoor.New(todostack.RoutingLayer{}, testkit.New().Handler())
	assert.Error(t, err)
	_, err = frontdoor.New(layerFor(t, todostack.RoutingRest, ""), nil)
	assert.Error(t, err)
}

func TestGateway_ServeShutsDownOnCancel(t *testing.T) {
	gw, err := frontdoor.New(layerFor(t, todostack.RoutingRest, todostack.CORSPresetAllowAll), testkit.New().Handler())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- gw.Serve(ctx, "127.0.0.1:0", func(a net.Addr) { addrCh <- a })
	}()

	addr := <-addrCh
	assert.True(t, strings.HasSuffix(gw.BaseURL(addr), "/v1/"))
	resp, _ := do(t, "GET", gw.BaseURL(addr)+"todos", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:3000/v1/", frontdoor.URL(layerFor(t, todostack.RoutingRest, ""), "127.0.0.1:3000"))
	assert.Equal(t, "http://127.0.0.1:3000/", frontdoor.URL(layerFor(t, todostack.RoutingHTTP, ""), "127.0.0.1:3000"))
}
