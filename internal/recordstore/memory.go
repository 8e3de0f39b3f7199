package recordstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/nsafonov/proofdesk/internal/common"
)

// Memory is an in-process Store used by tests and local development.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*memRecord          // ref -> record
	byColl  map[string][]string            // collection -> refs in insert order
	schema  map[string]map[string]FieldDef // collection -> field name -> def
}

type memRecord struct {
	collection string
	fields     Fields
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*memRecord),
		byColl:  make(map[string][]string),
		schema:  make(map[string]map[string]FieldDef),
	}
}

func (m *Memory) Create(_ context.Context, collection string, fields Fields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := uuid.NewString()
	copied := make(Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	m.records[ref] = &memRecord{collection: collection, fields: copied}
	m.byColl[collection] = append(m.byColl[collection], ref)
	return ref, nil
}

func (m *Memory) Update(_ context.Context, ref string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[ref]
	if !ok {
		return common.ErrorNotFound
	}
	for k, v := range fields {
		rec.fields[k] = v
	}
	return nil
}

func (m *Memory) Retrieve(_ context.Context, ref string) (Fields, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[ref]
	if !ok {
		return nil, common.ErrorNotFound
	}
	copied := make(Fields, len(rec.fields))
	for k, v := range rec.fields {
		copied[k] = v
	}
	return copied, nil
}

func (m *Memory) Query(_ context.Context, collection string, filter *Filter) ([]Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pages []Page
	for _, ref := range m.byColl[collection] {
		rec := m.records[ref]
		if filter != nil && !matches(rec.fields, filter) {
			continue
		}
		copied := make(Fields, len(rec.fields))
		for k, v := range rec.fields {
			copied[k] = v
		}
		pages = append(pages, Page{Ref: ref, Fields: copied})
	}
	return pages, nil
}

func (m *Memory) EnsureFields(_ context.Context, collection string, defs []FieldDef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schema[collection]
	if !ok {
		s = make(map[string]FieldDef)
		m.schema[collection] = s
	}
	for _, d := range defs {
		if _, exists := s[d.Name]; !exists {
			s[d.Name] = d
		}
	}
	return nil
}

// SchemaFields lists the field names EnsureFields has registered for a
// collection. Test helper.
func (m *Memory) SchemaFields(collection string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.schema[collection] {
		names = append(names, name)
	}
	return names
}

func matches(fields Fields, filter *Filter) bool {
	v, ok := fields[filter.Field]
	if !ok {
		return false
	}
	want := filter.Equals
	switch want.Kind {
	case KindNumber:
		return v.Kind == KindNumber && v.Num == want.Num
	case KindCheckbox:
		return v.Kind == KindCheckbox && v.Bool == want.Bool
	default:
		// textual kinds compare by content regardless of title/text/select
		return fields.Text(filter.Field) == want.Str
	}
}
