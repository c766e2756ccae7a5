package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Patient holds the schema definition for the Patient entity.
//
// This file and the rest of ent/schema describe the tables the boot-time
// migrations create; no ent codegen runs against this package. Runtime
// access goes through pkg/store's hand-written pgx queries. Kept as the
// single readable source of truth for column names and constraints.
type Patient struct {
	ent.Schema
}

// Fields of the Patient.
func (Patient) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("owner_user_id").
			Comment("Owning user; row-level security filters on it"),
		field.String("external_id").
			Unique().
			Comment("Identifier as printed on source documents"),
		field.String("name"),
		field.Time("dob").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Patient.
func (Patient) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("reports", Report.Type),
		edge.To("lab_results", LabResult.Type),
	}
}

// Indexes of the Patient.
func (Patient) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("name"),
	}
}
