package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// MatchReview holds the schema definition for an admin decision on a
// PendingAnalyte.
type MatchReview struct {
	ent.Schema
}

// Fields of the MatchReview.
func (MatchReview) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("pending_analyte_id"),
		field.String("reviewer_id"),
		field.Enum("decision").
			Values("accepted", "rejected"),
		field.String("target_analyte_id").
			Optional().
			Nillable().
			Comment("Set when decision is 'accepted': the analyte the new alias was attached to"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the MatchReview.
func (MatchReview) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("pending_analyte", PendingAnalyte.Type).
			Ref("reviews").
			Unique().
			Required(),
	}
}

// Indexes of the MatchReview.
func (MatchReview) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("pending_analyte_id"),
	}
}
