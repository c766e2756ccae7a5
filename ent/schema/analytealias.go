package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AnalyteAlias holds the schema definition for the AnalyteAlias entity: a
// known spelling or synonym for an Analyte, used by the exact and fuzzy
// mapping tiers.
type AnalyteAlias struct {
	ent.Schema
}

// Fields of the AnalyteAlias.
func (AnalyteAlias) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("analyte_id"),
		field.String("alias"),
		field.String("normalized").
			Unique().
			Comment("Lower-cased, whitespace-collapsed form used for exact and trigram matching"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the AnalyteAlias.
func (AnalyteAlias) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("analyte", Analyte.Type).
			Ref("aliases").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the AnalyteAlias.
//
// The GIN trigram index used by the fuzzy mapping tier's similarity()
// queries requires the pg_trgm extension, created by the boot migration
// rather than by an ent annotation.
func (AnalyteAlias) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("normalized"),
	}
}
