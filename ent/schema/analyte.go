package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// Analyte holds the schema definition for the Analyte entity: a canonical,
// de-duplicated lab measurement type.
type Analyte struct {
	ent.Schema
}

// Fields of the Analyte.
func (Analyte) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("name").
			Unique(),
		field.String("category").
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Analyte.
func (Analyte) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("aliases", AnalyteAlias.Type),
		edge.To("lab_results", LabResult.Type),
	}
}
