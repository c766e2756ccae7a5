package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// LabResult holds the schema definition for the LabResult entity.
type LabResult struct {
	ent.Schema
}

// Fields of the LabResult.
func (LabResult) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("report_id"),
		field.String("patient_id"),
		field.String("analyte_id").
			Optional().
			Nillable().
			Comment("Nil until resolved by a mapping tier"),
		field.String("raw_name").
			Comment("Analyte name as printed on the source document"),
		field.Float("value"),
		field.String("unit").
			Optional(),
		field.Float("ref_low").
			Optional().
			Nillable(),
		field.Float("ref_high").
			Optional().
			Nillable(),
		field.String("flag").
			Optional().
			Comment("As printed on the source document, e.g. 'H', 'L'"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the LabResult.
func (LabResult) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("report", Report.Type).
			Ref("lab_results").
			Unique().
			Required(),
		edge.From("patient", Patient.Type).
			Ref("lab_results").
			Unique().
			Required(),
		edge.To("analyte", Analyte.Type).
			Unique().
			Annotations(entsql.OnDelete(entsql.SetNull)),
	}
}

// Indexes of the LabResult.
func (LabResult) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("patient_id"),
		index.Fields("analyte_id").
			Annotations(entsql.IndexWhere("analyte_id IS NOT NULL")),
		index.Fields("raw_name").
			Annotations(entsql.IndexWhere("analyte_id IS NULL")),
	}
}
