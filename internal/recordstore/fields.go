package recordstore

import "time"

// Kind enumerates the loosely-typed field kinds the store understands.
type Kind int

const (
	KindTitle Kind = iota
	KindText
	KindNumber
	KindDate
	KindSelect
	KindRelation
	KindCheckbox
)

// Value is one field value. Only the member matching Kind is meaningful;
// accessors below handle absent/mismatched fields.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Time time.Time
	Refs []string
	Bool bool
}

// Fields is a name-keyed record body.
type Fields map[string]Value

// FieldDef describes a field for EnsureFields.
type FieldDef struct {
	Name string
	Kind Kind
}

// Filter is a single-field equality filter for Query.
type Filter struct {
	Field  string
	Equals Value
}

func Title(s string) Value    { return Value{Kind: KindTitle, Str: s} }
func Text(s string) Value     { return Value{Kind: KindText, Str: s} }
func Number(n float64) Value  { return Value{Kind: KindNumber, Num: n} }
func Date(t time.Time) Value  { return Value{Kind: KindDate, Time: t} }
func Select(s string) Value   { return Value{Kind: KindSelect, Str: s} }
func Relation(refs ...string) Value {
	return Value{Kind: KindRelation, Refs: refs}
}
func Checkbox(b bool) Value { return Value{Kind: KindCheckbox, Bool: b} }

// Text returns the textual content of a title/text/select value, or "".
func (f Fields) Text(name string) string {
	v, ok := f[name]
	if !ok {
		return ""
	}
	switch v.Kind {
	case KindTitle, KindText, KindSelect:
		return v.Str
	}
	return ""
}

// Number returns the numeric value and whether it was present.
func (f Fields) Number(name string) (float64, bool) {
	v, ok := f[name]
	if !ok || v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// Date returns the date value and whether it was present.
func (f Fields) Date(name string) (time.Time, bool) {
	v, ok := f[name]
	if !ok || v.Kind != KindDate || v.Time.IsZero() {
		return time.Time{}, false
	}
	return v.Time, true
}

// FirstRef returns the first related ref of a relation field, or "".
func (f Fields) FirstRef(name string) string {
	v, ok := f[name]
	if !ok || v.Kind != KindRelation || len(v.Refs) == 0 {
		return ""
	}
	return v.Refs[0]
}

// Checkbox reports a checkbox value, false when absent.
func (f Fields) Checkbox(name string) bool {
	v, ok := f[name]
	return ok && v.Kind == KindCheckbox && v.Bool
}
