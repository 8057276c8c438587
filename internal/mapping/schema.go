package mapping

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/adotools/witcopy/internal/ado"
)

// TargetSchema is the target project's field and type surface: which
// reference names exist, which are writable, and which fields each work
// item type requires. The field list is captured once; type definitions
// can be added as a run encounters them. Safe for concurrent use.
type TargetSchema struct {
	mu      sync.RWMutex
	fields  map[string]ado.Field
	types   map[string]typeInfo
	missing map[string]bool
}

type typeInfo struct {
	name     string
	required []string
}

func newTypeInfo(t ado.WorkItemType) typeInfo {
	info := typeInfo{name: t.Name}
	for _, f := range t.Fields {
		if f.AlwaysRequired && !strings.HasPrefix(f.ReferenceName, "System.") {
			info.required = append(info.required, f.ReferenceName)
		}
	}
	return info
}

// NewTargetSchema builds a schema from already-fetched definitions.
// Required fields are the type's alwaysRequired ones outside the System
// namespace; System fields are either always copied or server-defaulted.
func NewTargetSchema(fields []ado.Field, types []ado.WorkItemType) *TargetSchema {
	s := &TargetSchema{
		fields: make(map[string]ado.Field, len(fields)),
		types:  make(map[string]typeInfo, len(types)),
	}
	for _, f := range fields {
		s.fields[strings.ToLower(f.ReferenceName)] = f
	}
	for _, t := range types {
		s.types[strings.ToLower(t.Name)] = newTypeInfo(t)
	}
	return s
}

// BuildTargetSchema fetches the organization field list and the named
// work item types from the target. Types the target does not define are
// left out; the mapper flags items needing them instead of failing here.
func BuildTargetSchema(ctx context.Context, store ado.Store, typeNames []string) (*TargetSchema, error) {
	fields, err := store.GetFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch target fields: %w", err)
	}

	s := NewTargetSchema(fields, nil)
	if err := s.EnsureTypes(ctx, store, typeNames); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureTypes fetches definitions for any of the named types the schema
// has not seen yet. Types the target does not define are remembered, so
// the service is asked about each name once per run rather than once per
// item.
func (s *TargetSchema) EnsureTypes(ctx context.Context, store ado.Store, names []string) error {
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		s.mu.RLock()
		_, have := s.types[key]
		miss := s.missing[key]
		s.mu.RUnlock()
		if have || miss {
			continue
		}

		wt, err := store.GetWorkItemType(ctx, name)
		if err != nil {
			if ado.IsNotFound(err) {
				s.mu.Lock()
				if s.missing == nil {
					s.missing = make(map[string]bool)
				}
				s.missing[key] = true
				s.mu.Unlock()
				continue
			}
			return fmt.Errorf("fetch target type %q: %w", name, err)
		}
		s.mu.Lock()
		s.types[key] = newTypeInfo(*wt)
		s.mu.Unlock()
	}
	return nil
}

// HasField reports whether the target defines a reference name.
func (s *TargetSchema) HasField(ref string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.fields[strings.ToLower(ref)]
	return ok
}

// IsReadOnly reports whether a target field rejects writes.
func (s *TargetSchema) IsReadOnly(ref string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fields[strings.ToLower(ref)]
	return ok && f.ReadOnly
}

// HasType reports whether the target defines a work item type.
func (s *TargetSchema) HasType(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.types[strings.ToLower(name)]
	return ok
}

// RequiredFields returns the reference names a type demands a value for.
func (s *TargetSchema) RequiredFields(typeName string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.types[strings.ToLower(typeName)].required
}
