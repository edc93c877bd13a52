package todostack

import (
	"fmt"
	"sort"
	"strings"

	"github.com/theory-cloud/todostack/pkg/naming"
)

// RoutingKind selects the HTTP front-door technology.
type RoutingKind string

const (
	// RoutingRest is a resource-tree REST API with one method per resource.
	RoutingRest RoutingKind = "rest"
	// RoutingHTTP is an HTTP API with proxy integrations keyed by "METHOD /path".
	RoutingHTTP RoutingKind = "http"
)

// RouteOperation names the data operation a route performs.
type RouteOperation string

const (
	OpList   RouteOperation = "list"
	OpCreate RouteOperation = "create"
	OpRead   RouteOperation = "read"
	OpUpdate RouteOperation = "update"
	OpDelete RouteOperation = "delete"
)

const (
	CollectionPath = "/todos"
	ItemPath       = "/todos/{id}"
	ItemParam      = "id"

	DefaultRestStage = "v1"
	DefaultHTTPStage = "$default"
)

// The fixed route table: collection methods on /todos, item methods on /todos/{id}.
var routeTable = []struct {
	path   string
	method string
	op     RouteOperation
}{
	{CollectionPath, "GET", OpList},
	{CollectionPath, "POST", OpCreate},
	{ItemPath, "GET", OpRead},
	{ItemPath, "PUT", OpUpdate},
	{ItemPath, "DELETE", OpDelete},
}

// Route binds a (path, method) pair to a compute unit.
type Route struct {
	Path      string         `yaml:"path" json:"path"`
	Method    string         `yaml:"method" json:"method"`
	Operation RouteOperation `yaml:"operation" json:"operation"`
	Target    string         `yaml:"target" json:"target"`

	segments []routeSegment
}

// Key returns the proxy-integration route key, e.g. "GET /todos/{id}".
func (r Route) Key() string {
	return r.Method + " " + r.Path
}

// RoutingOptions configures the front door.
type RoutingOptions struct {
	Name      string
	Kind      RoutingKind
	StageName string
	CORS      CORSPolicy
}

// RoutingLayer is the HTTP front door aggregating the routes.
type RoutingLayer struct {
	LogicalName string      `yaml:"logicalName" json:"logicalName"`
	Kind        RoutingKind `yaml:"kind" json:"kind"`
	StageName   string      `yaml:"stageName" json:"stageName"`
	CORS        CORSPolicy  `yaml:"cors" json:"cors"`
	Target      string      `yaml:"target" json:"target"`
	Routes      []Route     `yaml:"routes" json:"routes"`

	defined bool
}

// Defined reports whether l was produced by BuildRoutingLayer.
func (l RoutingLayer) Defined() bool {
	return l.defined
}

// RouteMatch is a matched route and the path parameters it captured.
type RouteMatch struct {
	Route  Route
	Params map[string]string
}

// BuildRoutingLayer declares the front door dispatching every route to unit.
//
// The grant is required so routing can only be declared once the unit may reach its table.
func BuildRoutingLayer(unit ComputeUnit, grant AccessGrant, opts RoutingOptions) (RoutingLayer, error) {
	if !unit.Defined() {
		return RoutingLayer{}, ErrUndefinedComputeUnit
	}
	if grant.Grantee != unit.LogicalName || grant.Resource != unit.table {
		return RoutingLayer{}, ErrGrantMismatch
	}
	if !grant.Allows(OperationRead) || !grant.Allows(OperationWrite) {
		return RoutingLayer{}, invalid("grant.operations", "routing requires read and write access")
	}
	if strings.TrimSpace(opts.Name) == "" {
		return RoutingLayer{}, invalid("routing.name", "logical name is required")
	}

	kind := RoutingKind(strings.ToLower(strings.TrimSpace(string(opts.Kind))))
	stage := strings.TrimSpace(opts.StageName)
	switch kind {
	case RoutingRest:
		if stage == "" {
			stage = DefaultRestStage
		}
	case RoutingHTTP:
		if stage == "" {
			stage = DefaultHTTPStage
		}
	default:
		return RoutingLayer{}, invalid("routing.kind", "unknown routing kind %q", opts.Kind)
	}

	cors, err := normalizeCORS(opts.CORS)
	if err != nil {
		return RoutingLayer{}, err
	}

	routes, err := newRoutes(unit.LogicalName)
	if err != nil {
		return RoutingLayer{}, err
	}

	return RoutingLayer{
		LogicalName: naming.LogicalID(opts.Name, "Api"),
		Kind:        kind,
		StageName:   stage,
		CORS:        cors,
		Target:      unit.LogicalName,
		Routes:      routes,
		defined:     true,
	}, nil
}

// Match resolves method and path to a route. Paths that fit no pattern, or a pattern
// without that method, do not match.
func (l RoutingLayer) Match(method, path string) (RouteMatch, bool) {
	return matchRoutes(l.Routes, method, path)
}

// routeFor returns the route declared for an exact path pattern and method.
func (l RoutingLayer) routeFor(method, pattern string) (Route, bool) {
	method = strings.ToUpper(strings.TrimSpace(method))
	for _, r := range l.Routes {
		if r.Method == method && r.Path == pattern {
			return r, true
		}
	}
	return Route{}, false
}

// AllowedMethods returns the sorted methods declared for whichever patterns match path.
func (l RoutingLayer) AllowedMethods(path string) []string {
	pathSegments := splitPath(normalizePath(path))
	set := map[string]struct{}{}
	for _, candidate := range l.Routes {
		if _, ok := matchRoute(candidate.segmentsOrParse(), pathSegments); ok {
			set[candidate.Method] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Preflight answers an OPTIONS request for path from origin. It reports false when
// CORS is disabled, the origin is not allowed, or no route pattern matches path.
func (l RoutingLayer) Preflight(path, origin string) (map[string]string, bool) {
	if len(l.AllowedMethods(path)) == 0 {
		return nil, false
	}
	headers := l.CORS.Headers(origin)
	if headers == nil {
		return nil, false
	}
	return headers, true
}

// RouteKeys returns the proxy-integration keys in declaration order.
func (l RoutingLayer) RouteKeys() []string {
	out := make([]string, 0, len(l.Routes))
	for _, r := range l.Routes {
		out = append(out, r.Key())
	}
	return out
}

// Resource is one node of a resource-tree API.
type Resource struct {
	Path    string   `yaml:"path" json:"path"`
	Part    string   `yaml:"part" json:"part"`
	Parent  string   `yaml:"parent" json:"parent"`
	Methods []string `yaml:"methods" json:"methods"`
}

// Resources returns the resource tree implied by the routes, parents before children.
func (l RoutingLayer) Resources() []Resource {
	byPath := map[string]*Resource{}
	var order []string

	for _, r := range l.Routes {
		parts := splitPath(r.Path)
		parent := "/"
		for i, part := range parts {
			path := "/" + strings.Join(parts[:i+1], "/")
			if _, ok := byPath[path]; !ok {
				byPath[path] = &Resource{Path: path, Part: part, Parent: parent}
				order = append(order, path)
			}
			parent = path
		}
		node := byPath[r.Path]
		node.Methods = append(node.Methods, r.Method)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return strings.Count(order[i], "/") < strings.Count(order[j], "/")
	})
	out := make([]Resource, 0, len(order))
	for _, path := range order {
		out = append(out, *byPath[path])
	}
	return out
}

// Routes returns the fixed route table with no target bound.
func Routes() []Route {
	routes, err := newRoutes("")
	if err != nil {
		panic(err)
	}
	return routes
}

// MatchRoute resolves method and path against the fixed route table.
func MatchRoute(method, path string) (RouteMatch, bool) {
	return matchRoutes(Routes(), method, path)
}

func newRoutes(target string) ([]Route, error) {
	routes := make([]Route, 0, len(routeTable))
	for _, entry := range routeTable {
		segments, err := parseRouteSegments(splitPath(entry.path))
		if err != nil {
			return nil, err
		}
		routes = append(routes, Route{
			Path:      entry.path,
			Method:    entry.method,
			Operation: entry.op,
			Target:    target,
			segments:  segments,
		})
	}
	return routes, nil
}

func matchRoutes(routes []Route, method, path string) (RouteMatch, bool) {
	method = strings.ToUpper(strings.TrimSpace(method))
	pathSegments := splitPath(normalizePath(path))

	var best *RouteMatch
	for _, candidate := range routes {
		if candidate.Method != method {
			continue
		}
		params, ok := matchRoute(candidate.segmentsOrParse(), pathSegments)
		if !ok {
			continue
		}
		if best == nil || moreSpecific(candidate, best.Route) {
			best = &RouteMatch{Route: candidate, Params: params}
		}
	}
	if best == nil {
		return RouteMatch{}, false
	}
	return *best, true
}

type routeSegmentKind int

const (
	routeSegmentStatic routeSegmentKind = iota
	routeSegmentParam
)

type routeSegment struct {
	Kind  routeSegmentKind
	Value string
}

// segmentsOrParse tolerates routes decoded from YAML, which carry no parsed segments.
func (r Route) segmentsOrParse() []routeSegment {
	if r.segments != nil {
		return r.segments
	}
	segments, err := parseRouteSegments(splitPath(r.Path))
	if err != nil {
		return nil
	}
	return segments
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func parseRouteSegments(raw []string) ([]routeSegment, error) {
	segments := make([]routeSegment, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
			return nil, fmt.Errorf("todostack: invalid route segment %q", part)
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := strings.TrimSpace(part[1 : len(part)-1])
			if name == "" || strings.HasSuffix(name, "+") {
				return nil, fmt.Errorf("todostack: invalid route parameter %q", part)
			}
			segments = append(segments, routeSegment{Kind: routeSegmentParam, Value: name})
		default:
			segments = append(segments, routeSegment{Kind: routeSegmentStatic, Value: part})
		}
	}
	return segments, nil
}

func matchRoute(pattern []routeSegment, path []string) (map[string]string, bool) {
	if len(pattern) == 0 || len(pattern) != len(path) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range pattern {
		value := path[i]
		if value == "" {
			return nil, false
		}
		switch seg.Kind {
		case routeSegmentStatic:
			if seg.Value != value {
				return nil, false
			}
		case routeSegmentParam:
			params[seg.Value] = value
		}
	}
	return params, true
}

func moreSpecific(a, b Route) bool {
	as, bs := staticCount(a.segmentsOrParse()), staticCount(b.segmentsOrParse())
	return as > bs
}

func staticCount(segments []routeSegment) int {
	n := 0
	for _, seg := range segments {
		if seg.Kind == routeSegmentStatic {
			n++
		}
	}
	return n
}
