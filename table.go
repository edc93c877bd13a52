package todostack

import (
	"strings"

	"github.com/theory-cloud/todostack/pkg/naming"
)

// KeyType is a DynamoDB scalar attribute type.
type KeyType string

const (
	KeyTypeString KeyType = "S"
	KeyTypeNumber KeyType = "N"
	KeyTypeBinary KeyType = "B"
)

// BillingMode is the capacity mode of a table.
type BillingMode string

const (
	BillingPayPerRequest BillingMode = "PAY_PER_REQUEST"
	BillingProvisioned   BillingMode = "PROVISIONED"
)

const (
	PrimaryKeyName  = "id"
	StatusIndexName = "status-index"
	StatusKeyName   = "status"
	TableResource   = "todos"
)

// KeyDef describes a key attribute.
type KeyDef struct {
	Name string  `yaml:"name" json:"name"`
	Type KeyType `yaml:"type" json:"type"`
}

// SecondaryIndex is a global secondary index projecting all attributes.
type SecondaryIndex struct {
	Name         string `yaml:"name" json:"name"`
	PartitionKey KeyDef `yaml:"partitionKey" json:"partitionKey"`
	Projection   string `yaml:"projection" json:"projection"`
}

// Table describes the persistent record store.
//
// Only DefineTable produces a usable Table; the zero value is rejected by every later stage.
type Table struct {
	LogicalName  string          `yaml:"logicalName" json:"logicalName"`
	Identifier   string          `yaml:"identifier" json:"identifier"`
	PartitionKey KeyDef          `yaml:"partitionKey" json:"partitionKey"`
	Index        *SecondaryIndex `yaml:"index,omitempty" json:"index,omitempty"`
	Billing      BillingMode     `yaml:"billing" json:"billing"`

	defined bool
}

// Defined reports whether t was produced by DefineTable.
func (t Table) Defined() bool {
	return t.defined
}

// AttributeDefinitions returns every key attribute the table and its index declare, primary key first.
func (t Table) AttributeDefinitions() []KeyDef {
	out := []KeyDef{t.PartitionKey}
	if t.Index != nil && t.Index.PartitionKey.Name != t.PartitionKey.Name {
		out = append(out, t.Index.PartitionKey)
	}
	return out
}

// DefineTable declares the todo table for the named app.
//
// The identifier is the deterministic physical name <app>[-<tenant>]-todos[-<stage>].
func DefineTable(name, stage, tenant string) (Table, error) {
	if strings.TrimSpace(name) == "" {
		return Table{}, invalid("name", "logical name is required")
	}

	identifier := naming.ResourceName(name, TableResource, stage, tenant)
	if len(identifier) < 3 || len(identifier) > 255 {
		return Table{}, invalid("name", "table identifier %q must be 3-255 characters", identifier)
	}

	return Table{
		LogicalName:  naming.LogicalID(name, "Table"),
		Identifier:   identifier,
		PartitionKey: KeyDef{Name: PrimaryKeyName, Type: KeyTypeString},
		Index: &SecondaryIndex{
			Name:         StatusIndexName,
			PartitionKey: KeyDef{Name: StatusKeyName, Type: KeyTypeString},
			Projection:   "ALL",
		},
		Billing: BillingPayPerRequest,
		defined: true,
	}, nil
}
