package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AdminAction holds the schema definition for an append-only record of a
// privileged admin mutation. Always written in the same transaction as the
// mutation it describes.
type AdminAction struct {
	ent.Schema
}

// Fields of the AdminAction.
func (AdminAction) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("admin_id").
			Immutable(),
		field.String("action").
			Immutable(),
		field.String("target_id").
			Optional().
			Immutable(),
		field.String("detail").
			Optional().
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the AdminAction.
func (AdminAction) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("admin_id", "created_at"),
	}
}
