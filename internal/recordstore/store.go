// Package recordstore abstracts the external document database the bot uses
// as its system of record. Records are loosely typed bags of name-keyed
// fields; the store is not required to enforce a schema, but it must support
// creating a field on demand (EnsureFields) so denormalized fast fields can
// be written even against an older schema.
package recordstore

import "context"

// Store is the operation surface the core consumes. Implementations:
// HTTPStore (the real REST-backed store) and Memory (tests).
type Store interface {
	// Create inserts a record into collection and returns its opaque ref.
	Create(ctx context.Context, collection string, fields Fields) (string, error)

	// Update patches the named fields of an existing record.
	Update(ctx context.Context, ref string, fields Fields) error

	// Retrieve returns all fields of a record. Returns common.ErrorNotFound
	// when ref does not resolve.
	Retrieve(ctx context.Context, ref string) (Fields, error)

	// Query returns the records of collection matching filter (all records
	// when filter is nil).
	Query(ctx context.Context, collection string, filter *Filter) ([]Page, error)

	// EnsureFields creates any of the given field definitions missing from
	// the collection's schema. Existing fields are left untouched.
	EnsureFields(ctx context.Context, collection string, defs []FieldDef) error
}

// Page is one record returned by Query.
type Page struct {
	Ref    string
	Fields Fields
}
