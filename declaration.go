package todostack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CORS presets accepted by RoutingDeclaration.CORSPreset.
const (
	CORSPresetNone     = "none"
	CORSPresetAllowAll = "allow-all"
	CORSPresetCustom   = "custom"
)

// Environment overrides applied by ApplyEnv.
const (
	EnvStage     = "TODOSTACK_STAGE"
	EnvRouting   = "TODOSTACK_ROUTING"
	EnvPackaging = "TODOSTACK_PACKAGING"
	EnvArtifact  = "TODOSTACK_ARTIFACT"
	EnvTimeout   = "TODOSTACK_TIMEOUT_SECONDS"
)

// Declaration is the operator-facing description of one stack.
type Declaration struct {
	Name    string             `yaml:"name"`
	Stage   string             `yaml:"stage,omitempty"`
	Tenant  string             `yaml:"tenant,omitempty"`
	Region  string             `yaml:"region,omitempty"`
	Compute ComputeDeclaration `yaml:"compute"`
	Routing RoutingDeclaration `yaml:"routing"`
}

type ComputeDeclaration struct {
	Runtime        string `yaml:"runtime"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	Entry          Entry  `yaml:"entry"`
}

type RoutingDeclaration struct {
	Kind       RoutingKind `yaml:"kind"`
	StageName  string      `yaml:"stageName,omitempty"`
	CORSPreset string      `yaml:"corsPreset,omitempty"`
	CORS       CORSPolicy  `yaml:"cors,omitempty"`
}

// DefaultDeclaration is the public demo stack: a Go handler on provided.al2023 bundled
// from source, a REST API on stage v1, and permissive CORS.
func DefaultDeclaration(name string) Declaration {
	return Declaration{
		Name:  name,
		Stage: "dev",
		Compute: ComputeDeclaration{
			Runtime:        "provided.al2023",
			TimeoutSeconds: 20,
			Entry: Entry{
				Packaging: PackagingBundled,
				Path:      ".",
				Handler:   "bootstrap",
			},
		},
		Routing: RoutingDeclaration{
			Kind:       RoutingRest,
			CORSPreset: CORSPresetAllowAll,
		},
	}
}

// LoadDeclaration reads a YAML declaration. Omitted fields keep DefaultDeclaration values.
func LoadDeclaration(path string) (Declaration, error) {
	//nolint:gosec // Path is supplied by the operator.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Declaration{}, fmt.Errorf("todostack: read declaration: %w", err)
	}
	return ParseDeclaration(raw)
}

// ParseDeclaration decodes YAML over DefaultDeclaration. Unknown keys are rejected.
func ParseDeclaration(raw []byte) (Declaration, error) {
	decl := DefaultDeclaration("")
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&decl); err != nil && !errors.Is(err, io.EOF) {
		return Declaration{}, fmt.Errorf("todostack: parse declaration: %w", err)
	}
	return decl, nil
}

// ApplyEnv overrides declaration fields from TODOSTACK_* variables.
func ApplyEnv(decl Declaration, getenv func(string) string) (Declaration, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvStage)); v != "" {
		decl.Stage = v
	}
	if v := strings.TrimSpace(getenv(EnvRouting)); v != "" {
		decl.Routing.Kind = RoutingKind(v)
		decl.Routing.StageName = ""
	}
	if v := strings.TrimSpace(getenv(EnvPackaging)); v != "" {
		decl.Compute.Entry.Packaging = Packaging(v)
		if Packaging(v) == PackagingPrebuilt {
			decl.Compute.Entry.BuildCommand = ""
			decl.Compute.Entry.BuildImage = ""
		}
	}
	if v := strings.TrimSpace(getenv(EnvArtifact)); v != "" {
		decl.Compute.Entry.Path = v
	}
	if v := strings.TrimSpace(getenv(EnvTimeout)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Declaration{}, invalid("compute.timeoutSeconds", "%s is not an integer: %q", EnvTimeout, v)
		}
		decl.Compute.TimeoutSeconds = n
	}
	return decl, nil
}

// ResolveCORS returns the policy selected by the preset.
func (r RoutingDeclaration) ResolveCORS() (CORSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(r.CORSPreset)) {
	case CORSPresetAllowAll:
		return AllowAllCORS(), nil
	case CORSPresetNone:
		return CORSPolicy{}, nil
	case CORSPresetCustom, "":
		return r.CORS, nil
	default:
		return CORSPolicy{}, invalid("routing.corsPreset", "unknown preset %q", r.CORSPreset)
	}
}

// Marshal renders the declaration as YAML.
func (d Declaration) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}
