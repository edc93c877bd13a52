package testkit

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/theory-cloud/todostack"
)

// HTTPEventOptions configures synthetic proxy events.
type HTTPEventOptions struct {
	Query    map[string][]string
	Headers  map[string]string
	Body     []byte
	IsBase64 bool
	// RequestID defaults to "test-request".
	RequestID string
	// RawPath leaves Resource and PathParameters empty so the handler matches on Path.
	RawPath bool
}

// ProxyRequest builds the event a resource-tree front door delivers for method and path.
// Resource and PathParameters are filled from the fixed route table when a route matches.
func ProxyRequest(method, path string, opts HTTPEventOptions) events.APIGatewayProxyRequest {
	rawPath, rawQuery := splitPathAndQuery(path, opts.Query)
	method = strings.ToUpper(strings.TrimSpace(method))

	requestID := opts.RequestID
	if requestID == "" {
		requestID = "test-request"
	}

	event := events.APIGatewayProxyRequest{
		Path:       rawPath,
		HTTPMethod: method,
		Headers:    cloneHeaderMap(opts.Headers),
		Body:       encodeBody(opts.Body, opts.IsBase64),
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:  requestID,
			Stage:      todostack.DefaultRestStage,
			HTTPMethod: method,
			Path:       rawPath,
		},
		IsBase64Encoded: opts.IsBase64,
	}

	if values, err := url.ParseQuery(rawQuery); err == nil && len(values) > 0 {
		event.QueryStringParameters = map[string]string{}
		event.MultiValueQueryStringParameters = map[string][]string{}
		for key, vs := range values {
			if len(vs) == 0 {
				continue
			}
			event.QueryStringParameters[key] = vs[0]
			event.MultiValueQueryStringParameters[key] = append([]string(nil), vs...)
		}
	}

	if opts.RawPath {
		return event
	}
	if match, ok := todostack.MatchRoute(method, rawPath); ok {
		event.Resource = match.Route.Path
		event.RequestContext.ResourcePath = match.Route.Path
		if len(match.Params) > 0 {
			event.PathParameters = match.Params
		}
	}
	return event
}

func encodeBody(body []byte, isBase64 bool) string {
	if len(body) == 0 {
		return ""
	}
	if isBase64 {
		return base64.StdEncoding.EncodeToString(body)
	}
	return string(body)
}

func splitPathAndQuery(path string, query map[string][]string) (string, string) {
	parsed := strings.TrimSpace(path)
	rawPath, rawQuery, ok := strings.Cut(parsed, "?")
	if !ok {
		rawPath = parsed
		rawQuery = ""
	}

	rawPath = strings.TrimSpace(rawPath)
	if rawPath == "" {
		rawPath = "/"
	}
	if !strings.HasPrefix(rawPath, "/") {
		rawPath = "/" + rawPath
	}

	if len(query) == 0 {
		return rawPath, rawQuery
	}

	values := url.Values{}
	for key, vs := range query {
		values[key] = append([]string(nil), vs...)
	}
	return rawPath, values.Encode()
}

func cloneHeaderMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := map[string]string{}
	for k, v := range in {
		out[k] = v
	}
	return out
}
