package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PendingAnalyte holds the schema definition for a raw analyte name the
// mapper could not confidently resolve, queued for admin review.
type PendingAnalyte struct {
	ent.Schema
}

// Fields of the PendingAnalyte.
func (PendingAnalyte) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("raw_name"),
		field.String("normalized").
			Unique(),
		field.Int("occurrence_n").
			Default(1).
			Comment("Incremented every time the same normalized name is seen again before review"),
		field.Enum("status").
			Values("open", "accepted", "rejected").
			Default("open"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the PendingAnalyte.
func (PendingAnalyte) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("reviews", MatchReview.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the PendingAnalyte.
func (PendingAnalyte) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status").
			Annotations(entsql.IndexWhere("status = 'open'")),
	}
}
