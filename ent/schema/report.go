package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Report holds the schema definition for the Report entity.
type Report struct {
	ent.Schema
}

// Fields of the Report.
func (Report) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("patient_id"),
		field.Enum("status").
			Values("pending", "processing", "mapped", "review", "failed").
			Default("pending"),
		field.String("checksum").
			Unique().
			Comment("sha256 of the raw uploaded bytes, used for upload dedup"),
		field.String("storage_path").
			Optional(),
		field.String("source_name").
			Optional(),
		field.Time("collected_at").
			Optional().
			Nillable(),
		field.Text("raw_output").
			Optional().
			Comment("Raw OCR/extraction output, kept for audit and Reprocess"),
		field.String("fail_reason").
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Report.
func (Report) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("patient", Patient.Type).
			Ref("reports").
			Unique().
			Required(),
		edge.To("lab_results", LabResult.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Report.
func (Report) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("patient_id"),
		index.Fields("status").
			Annotations(entsql.IndexWhere("status IN ('pending', 'processing')")),
	}
}
