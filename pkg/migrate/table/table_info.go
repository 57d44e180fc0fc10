package table

// Column : a column name and the type string the engine reports for it
type Column struct {
	Name string `db:"col_name"`
	Type string `db:"col_type"`
}

// Schema : columns of a table in the order the engine reports them.
// An empty schema means the table was not found.
type Schema []Column

// Map : column name -> native type
func (s Schema) Map() map[string]string {
	res := make(map[string]string, len(s))
	for _, c := range s {
		res[c.Name] = c.Type
	}
	return res
}

// Names : column names in schema order
func (s Schema) Names() []string {
	res := make([]string, len(s))
	for i, c := range s {
		res[i] = c.Name
	}
	return res
}

// Lookup : finds a column by name
func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Equal : same column names with identical native type strings, order ignored
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	om := other.Map()
	if len(om) != len(s) {
		return false
	}
	for _, c := range s {
		t, ok := om[c.Name]
		if !ok || t != c.Type {
			return false
		}
	}
	return true
}

// Info : everything fetched about a single table
type Info struct {
	TableName  string
	Schema     Schema
	PrimaryKey []string
}

// RowBatch : rows read from a table, each row aligned with Columns
type RowBatch struct {
	Columns []string
	Rows    [][]any
}

// Len : number of rows in the batch, nil safe
func (b *RowBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}
