package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
)

// User holds the schema definition for an authenticated operator. Identity
// itself is established by an external OAuth collaborator; this table only
// records the resulting principal.
type User struct {
	ent.Schema
}

// Fields of the User.
func (User) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("email").
			Unique(),
		field.Bool("is_admin").
			Default(false),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}
