package mapping

import (
	"sort"
	"strings"

	"github.com/adotools/witcopy/internal/ado"
)

// Diff describes how two field inventories disagree. Reference names are
// compared case-insensitively; the reported names come from the collection
// that has them.
type Diff struct {
	// MissingInTarget holds fields the source defines but the target does not.
	// Values copied into these are dropped during migration.
	MissingInTarget []ado.Field

	// MissingInSource holds fields only the target defines. Harmless for
	// migration, listed so a reviewer can spot renamed fields.
	MissingInSource []ado.Field
}

// SchemaDiff compares the field inventories of two projects.
func SchemaDiff(source, target []ado.Field) Diff {
	srcByRef := indexFields(source)
	tgtByRef := indexFields(target)

	var d Diff
	for ref, f := range srcByRef {
		if _, ok := tgtByRef[ref]; !ok {
			d.MissingInTarget = append(d.MissingInTarget, f)
		}
	}
	for ref, f := range tgtByRef {
		if _, ok := srcByRef[ref]; !ok {
			d.MissingInSource = append(d.MissingInSource, f)
		}
	}
	sortFields(d.MissingInTarget)
	sortFields(d.MissingInSource)
	return d
}

func indexFields(fields []ado.Field) map[string]ado.Field {
	byRef := make(map[string]ado.Field, len(fields))
	for _, f := range fields {
		byRef[strings.ToLower(f.ReferenceName)] = f
	}
	return byRef
}

func sortFields(fields []ado.Field) {
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].ReferenceName < fields[j].ReferenceName
	})
}
