package todostack

import "sort"

// Operation is a coarse data-access capability.
type Operation string

const (
	OperationRead  Operation = "read"
	OperationWrite Operation = "write"
)

// Data-plane actions per operation, matching what a read/write data grant allows.
var grantActions = map[Operation][]string{
	OperationRead: {
		"dynamodb:BatchGetItem",
		"dynamodb:ConditionCheckItem",
		"dynamodb:DescribeTable",
		"dynamodb:GetItem",
		"dynamodb:GetRecords",
		"dynamodb:GetShardIterator",
		"dynamodb:Query",
		"dynamodb:Scan",
	},
	OperationWrite: {
		"dynamodb:BatchWriteItem",
		"dynamodb:DeleteItem",
		"dynamodb:DescribeTable",
		"dynamodb:PutItem",
		"dynamodb:UpdateItem",
	},
}

// AccessGrant is a permission edge from a compute unit to a table.
type AccessGrant struct {
	Grantee    string      `yaml:"grantee" json:"grantee"`
	Resource   string      `yaml:"resource" json:"resource"`
	Operations []Operation `yaml:"operations" json:"operations"`
}

// Actions returns the sorted, de-duplicated data-plane actions the grant allows.
func (g AccessGrant) Actions() []string {
	set := map[string]struct{}{}
	for _, op := range g.Operations {
		for _, action := range grantActions[op] {
			set[action] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for action := range set {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}

// ResourcePatterns returns the table and index resource names the grant covers.
func (g AccessGrant) ResourcePatterns() []string {
	return []string{
		"table/" + g.Resource,
		"table/" + g.Resource + "/index/*",
	}
}

// Allows reports whether the grant includes op.
func (g AccessGrant) Allows(op Operation) bool {
	for _, have := range g.Operations {
		if have == op {
			return true
		}
	}
	return false
}

// GrantReadWrite lets unit read and write table data.
func GrantReadWrite(unit ComputeUnit, table Table) (AccessGrant, error) {
	if !table.Defined() {
		return AccessGrant{}, ErrUndefinedTable
	}
	if !unit.Defined() {
		return AccessGrant{}, ErrUndefinedComputeUnit
	}
	if unit.table != table.Identifier {
		return AccessGrant{}, ErrGrantMismatch
	}
	return AccessGrant{
		Grantee:    unit.LogicalName,
		Resource:   table.Identifier,
		Operations: []Operation{OperationRead, OperationWrite},
	}, nil
}
