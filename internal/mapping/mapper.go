package mapping

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/adotools/witcopy/internal/ado"
)

// Options carries the per-run path remapping policy.
type Options struct {
	// SourceProject is the first segment source classification paths
	// carry, swapped for the target roots below.
	SourceProject string
	// AreaRoot and IterationRoot are the target-side roots. Empty means
	// drop the path and let the server default it.
	AreaRoot      string
	IterationRoot string
	// ForceRoot collapses every path to the root instead of remapping
	// the tree underneath it.
	ForceRoot bool
}

// Mapped is the target-ready translation of one source work item.
type Mapped struct {
	SourceID   int
	TargetType string
	// Fields is the payload for create or update, keyed by target
	// reference name. Never nil.
	Fields map[string]any
	// Dropped lists source reference names that had no writable home on
	// the target, sorted. Reported, not fatal.
	Dropped []string
}

// systemManaged lists reference names the service owns or witcopy handles
// through dedicated channels (links, comments, provenance). Never copied.
var systemManaged = refSet(
	ado.FieldID,
	ado.FieldWorkItemType,
	ado.FieldTeamProject,
	ado.FieldHistory,
	ado.FieldCreatedDate,
	ado.ReflectedField,
	"System.Rev",
	"System.CreatedBy",
	"System.ChangedDate",
	"System.ChangedBy",
	"System.AuthorizedAs",
	"System.AuthorizedDate",
	"System.RevisedDate",
	"System.Watermark",
	"System.AreaId",
	"System.IterationId",
	"System.NodeName",
	"System.PersonId",
	"System.Parent",
	"System.CommentCount",
	"System.BoardColumn",
	"System.BoardColumnDone",
	"System.BoardLane",
	"System.AttachedFileCount",
	"System.ExternalLinkCount",
	"System.HyperLinkCount",
	"System.RelatedLinkCount",
	"System.RemoteLinkCount",
)

func refSet(refs ...string) map[string]bool {
	set := make(map[string]bool, len(refs))
	for _, r := range refs {
		set[r] = true
	}
	return set
}

// Map translates one source work item into a target field payload. Pure:
// no I/O, deterministic for a given item, schema, rules and options.
//
// Policy, in order:
//   - the target type comes from the rules' type table (same name when
//     unmapped); a type the target lacks is a SchemaError
//   - fields present on both sides under the same (or aliased) reference
//     name are copied verbatim; unknown and read-only targets are dropped
//     and recorded
//   - AssignedTo is normalized to a unique name and passed through the
//     user map; area and iteration paths are remapped per Options
//   - required target fields with no value are filled from the rules'
//     defaults, else the whole item is a SchemaError for manual review
//   - the source id is stamped into the provenance field when the target
//     schema defines it
func Map(item *ado.WorkItem, schema *TargetSchema, rules *Rules, opts Options) (*Mapped, error) {
	targetType := rules.TargetType(item.Type())
	if !schema.HasType(targetType) {
		return nil, &SchemaError{
			SourceID:   item.ID,
			TargetType: targetType,
			Reason:     fmt.Sprintf("target has no work item type %q", targetType),
		}
	}

	out := &Mapped{
		SourceID:   item.ID,
		TargetType: targetType,
		Fields:     make(map[string]any, len(item.Fields)),
	}

	for ref, val := range item.Fields {
		if val == nil {
			continue
		}
		if systemManaged[ref] || rules.Skipped(ref) || strings.HasPrefix(ref, "WEF_") {
			continue
		}
		target := rules.Alias(ref)
		if !schema.HasField(target) || schema.IsReadOnly(target) {
			out.Dropped = append(out.Dropped, ref)
			continue
		}

		switch target {
		case ado.FieldAssignedTo:
			name := NormalizeIdentity(val)
			if name == "" {
				continue
			}
			out.Fields[target] = rules.MapUser(name)
		case ado.FieldAreaPath:
			if v := remapPath(val, opts.SourceProject, opts.AreaRoot, opts.ForceRoot); v != "" {
				out.Fields[target] = v
			}
		case ado.FieldIteration:
			if v := remapPath(val, opts.SourceProject, opts.IterationRoot, opts.ForceRoot); v != "" {
				out.Fields[target] = v
			}
		default:
			out.Fields[target] = val
		}
	}

	// A title is the one field every type insists on; an untitled source
	// item still has to land somewhere findable.
	if _, ok := out.Fields[ado.FieldTitle]; !ok && schema.HasField(ado.FieldTitle) {
		out.Fields[ado.FieldTitle] = fmt.Sprintf("Migrated %d", item.ID)
	}

	var missing []string
	for _, ref := range schema.RequiredFields(targetType) {
		if _, ok := out.Fields[ref]; ok {
			continue
		}
		if def, ok := rules.Defaults[ref]; ok {
			out.Fields[ref] = def
			continue
		}
		missing = append(missing, ref)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &SchemaError{
			SourceID:   item.ID,
			TargetType: targetType,
			Missing:    missing,
		}
	}

	if schema.HasField(ado.ReflectedField) {
		out.Fields[ado.ReflectedField] = strconv.Itoa(item.ID)
	}

	sort.Strings(out.Dropped)
	return out, nil
}

func remapPath(val any, srcRoot, tgtRoot string, force bool) string {
	if tgtRoot == "" {
		return ""
	}
	if force {
		return tgtRoot
	}
	s, _ := val.(string)
	return RemapRoot(s, srcRoot, tgtRoot)
}

// Hash computes the field hash of this payload.
func (m *Mapped) Hash() (string, error) {
	return FieldHash(m.TargetType, m.Fields)
}

// PatchOps renders the payload as the JSON-Patch document a create or
// update call takes, field order fixed for reproducible requests.
func (m *Mapped) PatchOps() []ado.PatchOp {
	refs := make([]string, 0, len(m.Fields))
	for ref := range m.Fields {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	ops := make([]ado.PatchOp, 0, len(refs))
	for _, ref := range refs {
		ops = append(ops, ado.AddField(ref, m.Fields[ref]))
	}
	return ops
}
