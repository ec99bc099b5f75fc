/*
Package schema defines declarative attribute schemas for models.

A schema maps each attribute (field) of a model to the rules that apply to
it. Rules are either validation rules consumed by the validator compiler or
storage-only metadata consumed by resources.

# Schema Documents

A schema document in YAML maps model names to their schema:

	user:
	  attributes:
	    email:   { type: email, required: true, unique: true }
	    name:    string
	    role:    { type: string, enum: [admin, member], defaultsTo: member }
	    kind:    { type: string, in: [person, business] }
	    company:
	      type: string
	      required: { expr: "model.kind == 'business'" }
	  types:
	    slug: { regex: "^[a-z0-9-]+$" }

A bare string declares only the type: name: string is {type: string}.

# Dynamic Rules

A rule written as {expr: "..."} is compiled into a dynamic rule. Dynamic rules
are resolved against the current model every time a value is validated, so
rules such as "required when kind is business" follow the model as it changes.
The expression sees the current model values as model.

# Storage Metadata

The keys defaultsTo, primaryKey, autoIncrement, unique, index and columnName
describe storage, not validation. Normalize strips them before compilation and
renames enum to in.

# Parsing

	doc, err := schema.ParseFile("schemas/user.yaml")
	doc, err := schema.ParseDir("schemas/")

Documents are validated on parse. Unknown rules and types return an error.
*/
package schema
