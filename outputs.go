package todostack

// Published output names.
const (
	OutputAPIURL    = "ApiUrl"
	OutputTableName = "TableName"
)

// Deployment is what a provisioning backend reports back for a graph.
type Deployment struct {
	Backend         string            `yaml:"backend" json:"backend"`
	ID              string            `yaml:"id,omitempty" json:"id,omitempty"`
	TableIdentifier string            `yaml:"tableIdentifier" json:"tableIdentifier"`
	Endpoint        string            `yaml:"endpoint" json:"endpoint"`
	Resources       map[string]string `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// Outputs is the published surface of an assembly.
type Outputs struct {
	APIURL    string `yaml:"ApiUrl" json:"ApiUrl"`
	TableName string `yaml:"TableName" json:"TableName"`
}

// Map returns the outputs keyed by their published names.
func (o Outputs) Map() map[string]string {
	return map[string]string{
		OutputAPIURL:    o.APIURL,
		OutputTableName: o.TableName,
	}
}

// PublishOutputs passes the backend's endpoint and table identifier through unchanged.
//
// Table and layer are required so outputs cannot be published before both are assembled.
func PublishOutputs(table Table, layer RoutingLayer, dep Deployment) (Outputs, error) {
	if !table.Defined() {
		return Outputs{}, ErrUndefinedTable
	}
	if !layer.Defined() {
		return Outputs{}, invalid("routing", "routing layer is not defined")
	}
	return Outputs{
		APIURL:    dep.Endpoint,
		TableName: dep.TableIdentifier,
	}, nil
}
