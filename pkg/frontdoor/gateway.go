// Package frontdoor serves a routing layer over net/http, proxying every matched request
// to a compute unit as an API Gateway proxy event.
package frontdoor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/oklog/ulid/v2"

	"github.com/theory-cloud/todostack"
	"github.com/theory-cloud/todostack/pkg/observability"
)

// DefaultMaxBodyBytes bounds request bodies, matching the API Gateway payload limit.
const DefaultMaxBodyBytes = 10 << 20

// Invoker is the compute unit behind the gateway.
type Invoker interface {
	Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

func (f InvokerFunc) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return f(ctx, req)
}

// Gateway is an http.Handler implementing a RoutingLayer locally.
type Gateway struct {
	layer   todostack.RoutingLayer
	invoker Invoker
	logger  observability.StructuredLogger
	newID   func() string
	maxBody int64
}

type Option func(*Gateway)

func WithLogger(logger observability.StructuredLogger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithRequestIDs replaces the ULID request id source.
func WithRequestIDs(fn func() string) Option {
	return func(g *Gateway) {
		g.newID = fn
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(g *Gateway) {
		g.maxBody = n
	}
}

var errNilInvoker = errors.New("frontdoor: invoker is nil")

// New returns a gateway for layer. The layer must come from BuildRoutingLayer.
func New(layer todostack.RoutingLayer, invoker Invoker, opts ...Option) (*Gateway, error) {
	if !layer.Defined() {
		return nil, errors.New("frontdoor: routing layer is not defined")
	}
	if invoker == nil {
		return nil, errNilInvoker
	}
	g := &Gateway{
		layer:   layer,
		invoker: invoker,
		logger:  observability.NewNoOpLogger(),
		newID:   func() string { return ulid.Make().String() },
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.logger == nil {
		g.logger = observability.NewNoOpLogger()
	}
	return g, nil
}

// BasePath is the path prefix routes are served under.
func (g *Gateway) BasePath() string {
	return BasePath(g.layer)
}

// BasePath is "/<stage>" for resource-tree routing and empty for the default HTTP stage.
func BasePath(layer todostack.RoutingLayer) string {
	stage := strings.TrimSpace(layer.StageName)
	if stage == "" || stage == todostack.DefaultHTTPStage {
		return ""
	}
	return "/" + stage
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := g.newID()
	log := g.logger.WithRequestID(requestID)
	w.Header().Set("X-Request-Id", requestID)

	path, ok := g.stripBase(r.URL.Path)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	if r.Method == http.MethodOptions {
		g.preflight(w, r, path)
		return
	}

	match, ok := g.layer.Match(r.Method, path)
	if !ok {
		if allowed := g.layer.AllowedMethods(path); len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method Not Allowed"})
			return
		}
		log.Info("no route", map[string]any{"method": r.Method, "path": path})
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	event, err := g.event(r, path, match, requestID)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"message": err.Error()})
		return
	}

	resp, err := g.invoker.Handle(r.Context(), event)
	if err != nil {
		log.Error("invocation failed", map[string]any{"route": match.Route.Key(), "error": err.Error()})
		writeJSON(w, http.StatusBadGateway, map[string]string{"message": "Internal server error"})
		return
	}
	log.Debug("proxied", map[string]any{"route": match.Route.Key(), "status": resp.StatusCode})
	writeProxyResponse(w, resp)
}

func (g *Gateway) stripBase(path string) (string, bool) {
	base := g.BasePath()
	if base == "" {
		return path, true
	}
	if path == base {
		return "/", true
	}
	rest, ok := strings.CutPrefix(path, base+"/")
	if !ok {
		return "", false
	}
	return "/" + rest, true
}

func (g *Gateway) preflight(w http.ResponseWriter, r *http.Request, path string) {
	headers, ok := g.layer.Preflight(path, r.Header.Get("Origin"))
	if !ok {
		if allowed := g.layer.AllowedMethods(path); len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method Not Allowed"})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) event(r *http.Request, path string, match todostack.RouteMatch, requestID string) (events.APIGatewayProxyRequest, error) {
	var body []byte
	if r.Body != nil {
		limited := io.LimitReader(r.Body, g.maxBody+1)
		raw, err := io.ReadAll(limited)
		if err != nil {
			return events.APIGatewayProxyRequest{}, errors.New("unreadable request body")
		}
		if int64(len(raw)) > g.maxBody {
			return events.APIGatewayProxyRequest{}, errors.New("request body too large")
		}
		body = raw
	}

	headers := map[string]string{}
	multiHeaders := map[string][]string{}
	for k, vs := range r.Header {
		if len(vs) == 0 {
			continue
		}
		headers[k] = vs[len(vs)-1]
		multiHeaders[k] = append([]string(nil), vs...)
	}

	query := map[string]string{}
	multiQuery := map[string][]string{}
	for k, vs := range r.URL.Query() {
		if len(vs) == 0 {
			continue
		}
		query[k] = vs[len(vs)-1]
		multiQuery[k] = append([]string(nil), vs...)
	}

	event := events.APIGatewayProxyRequest{
		Resource:                        match.Route.Path,
		Path:                            path,
		HTTPMethod:                      match.Route.Method,
		Headers:                         headers,
		MultiValueHeaders:               multiHeaders,
		QueryStringParameters:           nilIfEmpty(query),
		MultiValueQueryStringParameters: nilIfEmptyMulti(multiQuery),
		PathParameters:                  nilIfEmpty(match.Params),
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:    requestID,
			Stage:        g.layer.StageName,
			ResourcePath: match.Route.Path,
			HTTPMethod:   match.Route.Method,
			Path:         r.URL.Path,
			Identity:     events.APIGatewayRequestIdentity{SourceIP: r.RemoteAddr, UserAgent: r.UserAgent()},
		},
	}
	if len(body) > 0 {
		if utf8.Valid(body) {
			event.Body = string(body)
		} else {
			event.Body = base64.StdEncoding.EncodeToString(body)
			event.IsBase64Encoded = true
		}
	}
	return event, nil
}

func nilIfEmpty(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	return in
}

func nilIfEmptyMulti(in map[string][]string) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	return in
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		w.Header().Del(k)
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "Internal server error"})
			return
		}
		body = decoded
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusNoContent || status == http.StatusNotModified {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
