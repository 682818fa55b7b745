package models

import (
	"fmt"
	"strings"
)

// Schema is the discovered structural description of a backend: entities
// (tables or measure-bearing tables), their attributes, and the
// relationships between them. A Schema is immutable once captured; the
// schema cache replaces it wholesale on refresh, never patches it.
type Schema struct {
	Language  QueryLanguage    `json:"language"`
	Entities  []SchemaEntity   `json:"entities"`
	Relations []SchemaRelation `json:"relations,omitempty"`
}

// SchemaEntity is a table (SQL) or a table with measures (semantic model).
type SchemaEntity struct {
	Schema     string            `json:"schema,omitempty"` // e.g. "dbo"; empty for semantic models
	Name       string            `json:"name"`
	RowCount   int64             `json:"row_count,omitempty"`
	Attributes []SchemaAttribute `json:"attributes"`
}

// QualifiedName returns schema.name for SQL entities, or the bare name.
func (e SchemaEntity) QualifiedName() string {
	if e.Schema == "" {
		return e.Name
	}
	return e.Schema + "." + e.Name
}

// SchemaAttribute is a column or a measure.
type SchemaAttribute struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
	IsPrimary  bool   `json:"is_primary"`
	IsMeasure  bool   `json:"is_measure,omitempty"`
	Expression string `json:"expression,omitempty"` // DAX measure definition, if any
}

// SchemaRelation is a foreign key (SQL) or model relationship (DAX).
type SchemaRelation struct {
	FromEntity  string `json:"from_entity"`
	FromColumn  string `json:"from_column"`
	ToEntity    string `json:"to_entity"`
	ToColumn    string `json:"to_column"`
	Cardinality string `json:"cardinality,omitempty"` // e.g. "many-to-one"
}

// Describe renders the schema as a compact text block suitable for
// embedding in a generation prompt. Measures are listed separately from
// columns so the model can tell aggregations from raw attributes.
func (s *Schema) Describe() string {
	var b strings.Builder
	for _, e := range s.Entities {
		fmt.Fprintf(&b, "Table: %s", e.QualifiedName())
		if e.RowCount > 0 {
			fmt.Fprintf(&b, " (~%d rows)", e.RowCount)
		}
		b.WriteString("\n")
		for _, a := range e.Attributes {
			if a.IsMeasure {
				fmt.Fprintf(&b, "  Measure: %s", a.Name)
				if a.Expression != "" {
					fmt.Fprintf(&b, " = %s", a.Expression)
				}
				b.WriteString("\n")
				continue
			}
			fmt.Fprintf(&b, "  - %s %s", a.Name, a.DataType)
			if a.IsPrimary {
				b.WriteString(" [PK]")
			}
			if !a.IsNullable {
				b.WriteString(" NOT NULL")
			}
			b.WriteString("\n")
		}
	}
	if len(s.Relations) > 0 {
		b.WriteString("Relationships:\n")
		for _, r := range s.Relations {
			fmt.Fprintf(&b, "  %s.%s -> %s.%s", r.FromEntity, r.FromColumn, r.ToEntity, r.ToColumn)
			if r.Cardinality != "" {
				fmt.Fprintf(&b, " (%s)", r.Cardinality)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
