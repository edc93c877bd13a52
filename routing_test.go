package todostack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLayer(t *testing.T, cors CORSPolicy) RoutingLayer {
	t.Helper()
	table := mustTable(t)
	unit := mustUnit(t, table)
	grant, err := GrantReadWrite(unit, table)
	require.NoError(t, err)
	layer, err := BuildRoutingLayer(unit, grant, RoutingOptions{Name: "Todo", Kind: RoutingRest, CORS: cors})
	require.NoError(t, err)
	return layer
}

func TestRoutingLayer_RouteTable(t *testing.T) {
	layer := mustLayer(t, AllowAllCORS())

	assert.Equal(t, []string{
		"GET /todos",
		"POST /todos",
		"GET /todos/{id}",
		"PUT /todos/{id}",
		"DELETE /todos/{id}",
	}, layer.RouteKeys())
	for _, r := range layer.Routes {
		assert.Equal(t, "TodoFunction", r.Target, r.Key())
		assert.Equal(t, layer.Target, r.Target)
	}
}

func TestRoutingLayer_Match(t *testing.T) {
	layer := mustLayer(t, AllowAllCORS())

	tests := []struct {
		method, path string
		op           RouteOperation
		id           string
	}{
		{"GET", "/todos", OpList, ""},
		{"post", "/todos", OpCreate, ""},
		{"GET", "/todos/42", OpRead, "42"},
		{"PUT", "todos/abc", OpUpdate, "abc"},
		{"DELETE", "/todos/x?y=1", OpDelete, "x"},
	}
	for _, tt := range tests {
		match, ok := layer.Match(tt.method, tt.path)
		require.True(t, ok, "%s %s", tt.method, tt.path)
		assert.Equal(t, tt.op, match.Route.Operation)
		assert.Equal(t, tt.id, match.Params[ItemParam])
	}

	for _, miss := range []struct{ method, path string }{
		{"GET", "/unknown"},
		{"GET", "/"},
		{"GET", "/todos/1/extra"},
		{"GET", "/todos//"},
		{"PATCH", "/todos/1"},
		{"DELETE", "/todos"},
	} {
		_, ok := layer.Match(miss.method, miss.path)
		assert.False(t, ok, "%s %s", miss.method, miss.path)
	}
}

func TestRoutingLayer_SameTargetForItemAndCollection(t *testing.T) {
	layer := mustLayer(t, AllowAllCORS())

	read, ok := layer.Match("GET", "/todos/42")
	require.True(t, ok)
	create, ok := layer.Match("POST", "/todos")
	require.True(t, ok)
	assert.Equal(t, create.Route.Target, read.Route.Target)
}

func TestRoutingLayer_AllowedMethodsAndLookup(t *testing.T) {
	layer := mustLayer(t, AllowAllCORS())

	assert.Equal(t, []string{"GET", "POST"}, layer.AllowedMethods("/todos"))
	assert.Equal(t, []string{"DELETE", "GET", "PUT"}, layer.AllowedMethods("/todos/9"))
	assert.Empty(t, layer.AllowedMethods("/nope"))

	r, ok := layer.routeFor("put", ItemPath)
	require.True(t, ok)
	assert.Equal(t, OpUpdate, r.Operation)
	_, ok = layer.routeFor("PUT", CollectionPath)
	assert.False(t, ok)
}

func TestRoutingLayer_PreflightAllowAll(t *testing.T) {
	layer := mustLayer(t, AllowAllCORS())

	for _, path := range []string{"/todos", "/todos/42"} {
		headers, ok := layer.Preflight(path, "https://example.com")
		require.True(t, ok, path)
		assert.Equal(t, "*", headers["Access-Control-Allow-Origin"])
		assert.Equal(t, "*", headers["Access-Control-Allow-Methods"])
		assert.Equal(t, "*", headers["Access-Control-Allow-Headers"])
	}

	_, ok := layer.Preflight("/unknown", "https://example.com")
	assert.False(t, ok)
}

func TestRoutingLayer_PreflightDisabledByDefault(t *testing.T) {
	layer := mustLayer(t, CORSPolicy{})
	_, ok := layer.Preflight("/todos", "https://example.com")
	assert.False(t, ok)
}

func TestRoutingLayer_Resources(t *testing.T) {
	layer := mustLayer(t, AllowAllCORS())

	assert.Equal(t, []Resource{
		{Path: "/todos", Part: "todos", Parent: "/", Methods: []string{"GET", "POST"}},
		{Path: "/todos/{id}", Part: "{id}", Parent: "/todos", Methods: []string{"GET", "PUT", "DELETE"}},
	}, layer.Resources())
}

func TestMatchRoute_Unbound(t *testing.T) {
	match, ok := MatchRoute("GET", "/todos/1")
	require.True(t, ok)
	assert.Empty(t, match.Route.Target)
	assert.Len(t, Routes(), 5)
}

func TestCORSPolicy_Headers(t *testing.T) {
	assert.Nil(t, CORSPolicy{}.Headers("https://a.example"))

	policy, err := normalizeCORS(CORSPolicy{
		AllowOrigins:     []string{" https://a.example "},
		AllowMethods:     []string{"get", "post"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, policy.Enabled())
	assert.False(t, policy.AllowsAll())

	headers := policy.Headers("https://a.example")
	assert.Equal(t, map[string]string{
		"Access-Control-Allow-Origin":      "https://a.example",
		"Access-Control-Allow-Methods":     "GET, POST",
		"Access-Control-Allow-Headers":     "Content-Type",
		"Access-Control-Allow-Credentials": "true",
		"Access-Control-Max-Age":           "600",
		"Vary":                             "Origin",
	}, headers)
	assert.Nil(t, policy.Headers("https://evil.example"))
}

func TestNormalizeCORS_Rejects(t *testing.T) {
	_, err := normalizeCORS(CORSPolicy{AllowOrigins: []string{"*"}, AllowCredentials: true})
	assert.ErrorIs(t, err, ErrInvalidDeclaration)

	_, err = normalizeCORS(CORSPolicy{AllowOrigins: []string{"https://a"}, MaxAge: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidDeclaration)
}

func TestAllowAllCORS(t *testing.T) {
	p := AllowAllCORS()
	assert.True(t, p.AllowsAll())
	assert.True(t, p.OriginAllowed("https://anything"))
	assert.Equal(t, "*", p.Headers("")["Access-Control-Allow-Origin"])
}
