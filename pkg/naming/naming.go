// Package naming derives deterministic physical and logical resource names for a stack.
package naming

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9-]+`)
	multiDash = regexp.MustCompile(`-+`)
)

func sanitizePart(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	value = strings.NewReplacer("_", "-", " ", "-").Replace(value)
	value = nonAlnum.ReplaceAllString(value, "-")
	value = multiDash.ReplaceAllString(value, "-")
	return strings.Trim(value, "-")
}

// NormalizeStage maps stage aliases to canonical values.
func NormalizeStage(stage string) string {
	stage = strings.ToLower(strings.TrimSpace(stage))
	switch stage {
	case "prod", "production", "live":
		return "live"
	case "dev", "development":
		return "dev"
	case "stg", "stage", "staging":
		return "stage"
	case "test", "testing":
		return "test"
	case "local":
		return "local"
	default:
		return sanitizePart(stage)
	}
}

// StackName returns <app>[-<tenant>][-<stage>].
func StackName(appName, stage, tenant string) string {
	return join(sanitizePart(appName), sanitizePart(tenant), NormalizeStage(stage))
}

// ResourceName returns <app>[-<tenant>]-<resource>[-<stage>].
func ResourceName(appName, resource, stage, tenant string) string {
	return join(sanitizePart(appName), sanitizePart(tenant), sanitizePart(resource), NormalizeStage(stage))
}

// LogicalID returns a PascalCase construct id, e.g. ("todo-app", "Table") -> "TodoAppTable".
func LogicalID(appName, suffix string) string {
	var b strings.Builder
	for _, part := range strings.Split(sanitizePart(appName), "-") {
		if part == "" {
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	b.WriteString(suffix)
	return b.String()
}

func join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "-")
}
