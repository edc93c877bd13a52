package todostack

import (
	"strconv"
	"strings"
	"time"
)

// CORSPolicy is the cross-origin policy answered on preflight.
//
// The zero value disables CORS; AllowAllCORS is an explicit opt-in.
type CORSPolicy struct {
	AllowOrigins     []string      `yaml:"allowOrigins,omitempty" json:"allowOrigins,omitempty"`
	AllowMethods     []string      `yaml:"allowMethods,omitempty" json:"allowMethods,omitempty"`
	AllowHeaders     []string      `yaml:"allowHeaders,omitempty" json:"allowHeaders,omitempty"`
	AllowCredentials bool          `yaml:"allowCredentials,omitempty" json:"allowCredentials,omitempty"`
	MaxAge           time.Duration `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`
}

// Wildcard matches every origin, method or header.
const Wildcard = "*"

// AllowAllCORS allows every origin, method and header. Suitable for public demo APIs only.
func AllowAllCORS() CORSPolicy {
	return CORSPolicy{
		AllowOrigins: []string{Wildcard},
		AllowMethods: []string{Wildcard},
		AllowHeaders: []string{Wildcard},
	}
}

// Enabled reports whether any origin is allowed.
func (p CORSPolicy) Enabled() bool {
	return len(p.AllowOrigins) > 0
}

// AllowsAll reports whether origins, methods and headers are all wildcards.
func (p CORSPolicy) AllowsAll() bool {
	return isWildcard(p.AllowOrigins) && isWildcard(p.AllowMethods) && isWildcard(p.AllowHeaders)
}

// OriginAllowed reports whether origin may call the API.
func (p CORSPolicy) OriginAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	for _, allowed := range p.AllowOrigins {
		if allowed == Wildcard || allowed == origin {
			return true
		}
	}
	return false
}

// Headers returns the preflight response headers for a request from origin.
// An empty origin is answered as if it were allowed, matching a wildcard policy.
func (p CORSPolicy) Headers(origin string) map[string]string {
	if !p.Enabled() {
		return nil
	}
	if origin != "" && !p.OriginAllowed(origin) {
		return nil
	}

	allowOrigin := Wildcard
	if !isWildcard(p.AllowOrigins) {
		allowOrigin = strings.TrimSpace(origin)
	}

	out := map[string]string{
		"Access-Control-Allow-Origin":  allowOrigin,
		"Access-Control-Allow-Methods": joinOr(p.AllowMethods, Wildcard),
		"Access-Control-Allow-Headers": joinOr(p.AllowHeaders, Wildcard),
	}
	if allowOrigin != Wildcard {
		out["Vary"] = "Origin"
	}
	if p.AllowCredentials {
		out["Access-Control-Allow-Credentials"] = "true"
	}
	if p.MaxAge > 0 {
		out["Access-Control-Max-Age"] = strconv.Itoa(int(p.MaxAge / time.Second))
	}
	return out
}

func normalizeCORS(in CORSPolicy) (CORSPolicy, error) {
	out := CORSPolicy{
		AllowOrigins:     trimAll(in.AllowOrigins, false),
		AllowMethods:     trimAll(in.AllowMethods, true),
		AllowHeaders:     trimAll(in.AllowHeaders, false),
		AllowCredentials: in.AllowCredentials,
		MaxAge:           in.MaxAge,
	}
	if isWildcard(out.AllowOrigins) {
		out.AllowOrigins = []string{Wildcard}
	}
	if out.AllowCredentials && isWildcard(out.AllowOrigins) {
		return CORSPolicy{}, invalid("cors.allowCredentials", "credentials cannot be allowed for wildcard origins")
	}
	if out.MaxAge < 0 {
		return CORSPolicy{}, invalid("cors.maxAge", "max age must not be negative")
	}
	return out, nil
}

func trimAll(in []string, upper bool) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if upper {
			v = strings.ToUpper(v)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isWildcard(values []string) bool {
	for _, v := range values {
		if v == Wildcard {
			return true
		}
	}
	return false
}

func joinOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	if isWildcard(values) {
		return Wildcard
	}
	return strings.Join(values, ", ")
}
