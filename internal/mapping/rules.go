// Package mapping translates source work items into target-process field
// payloads: configurable rules, the target schema, the pure mapper, and
// the canonical field hash idempotent re-runs compare against.
package mapping

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed rules.cue
var rulesSchema string

// Rules is a parsed mapping rules file. The zero value is not usable;
// construct through DefaultRules, ParseRules or LoadRules.
type Rules struct {
	Types       map[string]string `yaml:"types"`
	Aliases     map[string]string `yaml:"aliases"`
	Defaults    map[string]any    `yaml:"defaults"`
	Users       map[string]string `yaml:"users"`
	Skip        []string          `yaml:"skip"`
	ParentTypes []string          `yaml:"parent_types"`
	LastTypes   []string          `yaml:"last_types"`

	typesLower map[string]string
	usersLower map[string]string
	skipSet    map[string]bool
}

// DefaultRules returns the rules used when no rules file is given: no
// renames, no user mapping, hierarchy seeds are Epics and Features.
func DefaultRules() *Rules {
	r := &Rules{
		ParentTypes: []string{"Epic", "Feature"},
		LastTypes:   []string{"Epic"},
	}
	r.index()
	return r
}

// LoadRules reads and validates a YAML rules file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data, path)
}

// ParseRules parses YAML rules and validates them against the embedded
// CUE schema. filename is used in error positions only.
func ParseRules(data []byte, filename string) (*Rules, error) {
	// Validate the raw document first so unknown fields and malformed
	// reference names are reported with positions, then decode into the
	// typed struct.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", filename, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(rulesSchema, cue.Filename("rules.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Rules"))
	unified := def.Unify(ctx.Encode(raw))
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return nil, formatCUEError(err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", filename, err)
	}
	if len(rules.ParentTypes) == 0 {
		rules.ParentTypes = DefaultRules().ParentTypes
	}
	if len(rules.LastTypes) == 0 {
		rules.LastTypes = DefaultRules().LastTypes
	}
	rules.index()
	return &rules, nil
}

// index builds the case-folded lookup maps.
func (r *Rules) index() {
	r.typesLower = make(map[string]string, len(r.Types))
	for k, v := range r.Types {
		r.typesLower[strings.ToLower(strings.TrimSpace(k))] = v
	}
	r.usersLower = make(map[string]string, len(r.Users))
	for k, v := range r.Users {
		r.usersLower[strings.ToLower(strings.TrimSpace(k))] = v
	}
	r.skipSet = make(map[string]bool, len(r.Skip))
	for _, ref := range r.Skip {
		r.skipSet[ref] = true
	}
}

// TargetType returns the target work item type for a source type. Types
// without an explicit mapping keep their name.
func (r *Rules) TargetType(sourceType string) string {
	if t, ok := r.typesLower[strings.ToLower(strings.TrimSpace(sourceType))]; ok {
		return t
	}
	return strings.TrimSpace(sourceType)
}

// TargetTypeNames lists every target type these rules can name up front:
// explicit type mappings plus the hierarchy and last-N seed types. Callers
// preload the target schema with them to surface missing types before a
// run; types outside the list are resolved as items are encountered.
func (r *Rules) TargetTypeNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			return
		}
		seen[strings.ToLower(name)] = true
		names = append(names, name)
	}
	for _, t := range r.Types {
		add(t)
	}
	for _, t := range r.ParentTypes {
		add(r.TargetType(t))
	}
	for _, t := range r.LastTypes {
		add(r.TargetType(t))
	}
	sort.Strings(names)
	return names
}

// Alias returns the target reference name for a source reference name.
func (r *Rules) Alias(ref string) string {
	if a, ok := r.Aliases[ref]; ok {
		return a
	}
	return ref
}

// MapUser translates a normalized source identity through the user map.
// Unmapped identities pass through unchanged.
func (r *Rules) MapUser(identity string) string {
	if t, ok := r.usersLower[strings.ToLower(identity)]; ok {
		return t
	}
	return identity
}

// Skipped reports whether the rules file excludes a reference name.
func (r *Rules) Skipped(ref string) bool {
	return r.skipSet[ref]
}
