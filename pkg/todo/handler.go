package todo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/theory-cloud/todostack"
	"github.com/theory-cloud/todostack/pkg/logger"
	"github.com/theory-cloud/todostack/pkg/observability"
	"github.com/theory-cloud/todostack/pkg/sanitization"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies new todo ids.
type IDGenerator interface {
	NewID() string
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// UUIDGenerator issues random UUIDv4 ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// Handler serves the five todo routes from a single proxy entry point.
type Handler struct {
	store  Store
	clock  Clock
	ids    IDGenerator
	cors   todostack.CORSPolicy
	logger observability.StructuredLogger
}

type Option func(*Handler)

func WithClock(clock Clock) Option {
	return func(h *Handler) {
		h.clock = clock
	}
}

func WithIDGenerator(ids IDGenerator) Option {
	return func(h *Handler) {
		h.ids = ids
	}
}

// WithCORS replaces the allow-all policy attached to every response.
func WithCORS(policy todostack.CORSPolicy) Option {
	return func(h *Handler) {
		h.cors = policy
	}
}

// WithLogger replaces the process-wide logger the handler otherwise logs through.
func WithLogger(log observability.StructuredLogger) Option {
	return func(h *Handler) {
		h.logger = log
	}
}

func NewHandler(store Store, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		clock:  RealClock{},
		ids:    UUIDGenerator{},
		cors:   todostack.AllowAllCORS(),
		logger: logger.Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.clock == nil {
		h.clock = RealClock{}
	}
	if h.ids == nil {
		h.ids = UUIDGenerator{}
	}
	if h.logger == nil {
		h.logger = logger.Logger()
	}
	return h
}

// Handle is the Lambda entry point. Failures are reported in the response; the returned
// error is always nil.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	route, params, ok := resolveRoute(req)
	log := h.logger.WithRequestID(req.RequestContext.RequestID)
	if !ok {
		log.Info("no route", map[string]any{"method": req.HTTPMethod, "path": req.Path})
		return h.respond(req, 404, map[string]any{"message": "Not Found"}), nil
	}
	log = log.WithRouteKey(route.Key())

	status, body := h.dispatch(ctx, route.Operation, params, req)
	switch {
	case status >= 500:
		log.Error("request failed", map[string]any{
			"status":  status,
			"error":   body["error"],
			"headers": sanitization.SanitizeHeaders(req.Headers),
		})
	case status == 400:
		raw, _ := requestBody(req)
		log.Warn("request rejected", map[string]any{
			"status":  status,
			"message": body["message"],
			"body":    sanitization.SanitizeJSON(raw),
		})
	default:
		log.Info("request served", map[string]any{"status": status})
	}
	return h.respond(req, status, body), nil
}

// resolveRoute prefers the matched resource pattern and falls back to the raw path.
func resolveRoute(req events.APIGatewayProxyRequest) (todostack.Route, map[string]string, bool) {
	method := strings.ToUpper(strings.TrimSpace(req.HTTPMethod))
	if method == "" {
		method = "GET"
	}

	if resource := strings.TrimSpace(req.Resource); resource != "" && strings.Contains(resource, "/") {
		for _, r := range todostack.Routes() {
			if r.Path == resource && r.Method == method {
				return r, copyParams(req.PathParameters), true
			}
		}
		return todostack.Route{}, nil, false
	}

	match, ok := todostack.MatchRoute(method, req.Path)
	if !ok {
		return todostack.Route{}, nil, false
	}
	params := match.Params
	for k, v := range req.PathParameters {
		params[k] = v
	}
	return match.Route, params, true
}

func copyParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (h *Handler) dispatch(ctx context.Context, op todostack.RouteOperation, params map[string]string, req events.APIGatewayProxyRequest) (int, map[string]any) {
	var (
		status int
		body   any
		err    error
	)
	id := strings.TrimSpace(params[todostack.ItemParam])

	switch op {
	case todostack.OpCreate:
		status, body, err = h.create(ctx, req)
	case todostack.OpList:
		status, body, err = h.list(ctx, req)
	case todostack.OpRead:
		status, body, err = h.read(ctx, id)
	case todostack.OpUpdate:
		status, body, err = h.update(ctx, id, req)
	case todostack.OpDelete:
		status, body, err = h.remove(ctx, id)
	default:
		return 404, map[string]any{"message": "Not Found"}
	}
	if err != nil {
		return errorBody(err)
	}
	return status, toMap(body)
}

func (h *Handler) create(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	var in CreateInput
	if err := decodeBody(req, &in); err != nil {
		return 0, nil, err
	}
	if err := in.Validate(); err != nil {
		return 0, nil, err
	}

	t := NewTodo(h.ids.NewID(), in, h.clock.Now())
	if err := h.store.Put(ctx, t); err != nil {
		return 0, nil, err
	}
	return 201, t, nil
}

func (h *Handler) list(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	q := ListQuery{
		Status: strings.TrimSpace(req.QueryStringParameters["status"]),
		Cursor: strings.TrimSpace(req.QueryStringParameters["cursor"]),
		Limit:  DefaultListLimit,
	}
	if raw := strings.TrimSpace(req.QueryStringParameters["limit"]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return 0, nil, &AppError{Code: ErrorCodeBadRequest, Message: "limit must be a positive integer"}
		}
		q.Limit = n
	}

	page, err := h.store.List(ctx, q)
	if err != nil {
		return 0, nil, err
	}
	items := page.Items
	if items == nil {
		items = []Todo{}
	}
	out := map[string]any{"items": items}
	if page.NextCursor != "" {
		out["next_cursor"] = page.NextCursor
	}
	return 200, out, nil
}

func (h *Handler) read(ctx context.Context, id string) (int, any, error) {
	if id == "" {
		return 0, nil, &AppError{Code: ErrorCodeBadRequest, Message: "Missing id"}
	}
	t, err := h.store.Get(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return 200, t, nil
}

func (h *Handler) update(ctx context.Context, id string, req events.APIGatewayProxyRequest) (int, any, error) {
	if id == "" {
		return 0, nil, &AppError{Code: ErrorCodeBadRequest, Message: "Missing id"}
	}
	var p Patch
	if err := decodeBody(req, &p); err != nil {
		return 0, nil, err
	}
	t, err := h.store.Update(ctx, id, p, Timestamp(h.clock.Now()))
	if err != nil {
		return 0, nil, err
	}
	return 200, t, nil
}

func (h *Handler) remove(ctx context.Context, id string) (int, any, error) {
	if id == "" {
		return 0, nil, &AppError{Code: ErrorCodeBadRequest, Message: "Missing id"}
	}
	if err := h.store.Delete(ctx, id); err != nil {
		return 0, nil, err
	}
	return 204, map[string]any{}, nil
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

func decodeBody(req events.APIGatewayProxyRequest, out any) error {
	raw, err := requestBody(req)
	if err != nil {
		return &AppError{Code: ErrorCodeBadRequest, Message: "invalid base64 body"}
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &AppError{Code: ErrorCodeBadRequest, Message: "invalid JSON body"}
	}
	return nil
}

func errorBody(err error) (int, map[string]any) {
	if errors.Is(err, ErrNotFound) {
		return 404, map[string]any{"message": "Not found"}
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return statusForErrorCode(appErr.Code), map[string]any{"message": appErr.Message}
	}
	return 500, map[string]any{"message": "Internal error", "error": err.Error()}
}

func toMap(body any) map[string]any {
	switch v := body.(type) {
	case map[string]any:
		return v
	case Todo:
		return map[string]any{
			"id":          v.ID,
			"title":       v.Title,
			"description": v.Description,
			"status":      v.Status,
			"created_at":  v.CreatedAt,
			"updated_at":  v.UpdatedAt,
		}
	default:
		return map[string]any{}
	}
}

func (h *Handler) respond(req events.APIGatewayProxyRequest, status int, body map[string]any) events.APIGatewayProxyResponse {
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range h.cors.Headers(requestOrigin(req.Headers)) {
		headers[k] = v
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		status = 500
		encoded = []byte(`{"message":"Internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(encoded),
	}
}

func requestOrigin(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "origin") {
			return v
		}
	}
	return ""
}
