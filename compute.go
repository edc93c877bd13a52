package todostack

import (
	"encoding/json"
	"maps"
	"strings"
	"time"

	"github.com/theory-cloud/todostack/pkg/naming"
)

// EnvTableName is the single configuration key injected into the compute unit.
const EnvTableName = "TABLE_NAME"

// MaxTimeout is the longest invocation timeout a compute unit may declare.
const MaxTimeout = 900 * time.Second

// Packaging selects how the entry point becomes a deployable artifact.
type Packaging string

const (
	// PackagingBundled builds a source directory with a declared build command.
	PackagingBundled Packaging = "bundled"
	// PackagingPrebuilt points at an artifact that already exists.
	PackagingPrebuilt Packaging = "prebuilt"
)

// DefaultBuildCommand builds the Go handler into a provided-runtime bootstrap binary.
const DefaultBuildCommand = "GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o /asset-output/bootstrap ./cmd/todo-handler"

// Entry records which entry point to package; building it is left to the backend.
type Entry struct {
	Packaging    Packaging `yaml:"packaging" json:"packaging"`
	Path         string    `yaml:"path" json:"path"`
	Handler      string    `yaml:"handler" json:"handler"`
	BuildCommand string    `yaml:"buildCommand,omitempty" json:"buildCommand,omitempty"`
	BuildImage   string    `yaml:"buildImage,omitempty" json:"buildImage,omitempty"`
}

// ComputeSpec is the caller-supplied part of a compute unit.
type ComputeSpec struct {
	Name    string
	Runtime string
	Entry   Entry
	Timeout time.Duration
}

// ComputeUnit describes the single stateless request handler.
type ComputeUnit struct {
	LogicalName string            `yaml:"logicalName" json:"logicalName"`
	Runtime     string            `yaml:"runtime" json:"runtime"`
	Entry       Entry             `yaml:"entry" json:"entry"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`

	env     map[string]string
	table   string
	defined bool
}

// Environment returns a copy of the configuration injected into the unit.
func (u ComputeUnit) Environment() map[string]string {
	return maps.Clone(u.env)
}

type computeUnitView struct {
	LogicalName string            `yaml:"logicalName" json:"logicalName"`
	Runtime     string            `yaml:"runtime" json:"runtime"`
	Entry       Entry             `yaml:"entry" json:"entry"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
	Environment map[string]string `yaml:"environment" json:"environment"`
}

func (u ComputeUnit) view() computeUnitView {
	return computeUnitView{
		LogicalName: u.LogicalName,
		Runtime:     u.Runtime,
		Entry:       u.Entry,
		Timeout:     u.Timeout,
		Environment: u.Environment(),
	}
}

func (u ComputeUnit) MarshalYAML() (any, error) {
	return u.view(), nil
}

func (u ComputeUnit) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.view())
}

// Defined reports whether u was produced by DefineComputeUnit.
func (u ComputeUnit) Defined() bool {
	return u.defined
}

// TimeoutSeconds returns the invocation timeout in whole seconds.
func (u ComputeUnit) TimeoutSeconds() int {
	return int(u.Timeout / time.Second)
}

// DefineComputeUnit declares the compute unit serving table.
//
// The table is a required argument so a compute unit can never be declared before the
// table whose identifier it is configured with.
func DefineComputeUnit(table Table, spec ComputeSpec) (ComputeUnit, error) {
	if !table.Defined() {
		return ComputeUnit{}, ErrUndefinedTable
	}
	if strings.TrimSpace(spec.Name) == "" {
		return ComputeUnit{}, invalid("compute.name", "logical name is required")
	}
	if strings.TrimSpace(spec.Runtime) == "" {
		return ComputeUnit{}, invalid("compute.runtime", "runtime identifier is required")
	}
	if spec.Timeout <= 0 {
		return ComputeUnit{}, invalid("compute.timeout", "timeout must be positive, got %s", spec.Timeout)
	}
	if spec.Timeout > MaxTimeout {
		return ComputeUnit{}, invalid("compute.timeout", "timeout must not exceed %s, got %s", MaxTimeout, spec.Timeout)
	}
	if spec.Timeout%time.Second != 0 {
		return ComputeUnit{}, invalid("compute.timeout", "timeout must be whole seconds, got %s", spec.Timeout)
	}

	entry, err := normalizeEntry(spec.Entry)
	if err != nil {
		return ComputeUnit{}, err
	}

	return ComputeUnit{
		LogicalName: naming.LogicalID(spec.Name, "Function"),
		Runtime:     strings.TrimSpace(spec.Runtime),
		Entry:       entry,
		Timeout:     spec.Timeout,
		env:         map[string]string{EnvTableName: table.Identifier},
		table:       table.Identifier,
		defined:     true,
	}, nil
}

func normalizeEntry(in Entry) (Entry, error) {
	out := Entry{
		Packaging:    Packaging(strings.ToLower(strings.TrimSpace(string(in.Packaging)))),
		Path:         strings.TrimSpace(in.Path),
		Handler:      strings.TrimSpace(in.Handler),
		BuildCommand: strings.TrimSpace(in.BuildCommand),
		BuildImage:   strings.TrimSpace(in.BuildImage),
	}
	if out.Path == "" {
		return Entry{}, invalid("compute.entry.path", "entry path is required")
	}
	if out.Handler == "" {
		return Entry{}, invalid("compute.entry.handler", "handler reference is required")
	}

	switch out.Packaging {
	case PackagingBundled:
		if out.BuildCommand == "" {
			out.BuildCommand = DefaultBuildCommand
		}
	case PackagingPrebuilt:
		if out.BuildCommand != "" {
			return Entry{}, invalid("compute.entry.buildCommand", "prebuilt artifacts take no build command")
		}
	default:
		return Entry{}, invalid("compute.entry.packaging", "unknown packaging %q", in.Packaging)
	}
	return out, nil
}
