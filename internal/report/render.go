package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/adotools/witcopy/internal/ado"
)

// RenderText writes the human-readable summary: counters first, then the
// sections a user has to act on (dropped fields, review queue, failures,
// unresolved links). Empty sections are omitted.
func (r *Run) RenderText(w io.Writer) {
	c := r.Counters()

	fmt.Fprintf(w, "run %s (%s)\n", r.ID, r.Mode)
	if r.DryRun {
		fmt.Fprintln(w, "dry run: nothing was written")
	}
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "completed in %s\n", r.FinishedAt.Sub(r.StartedAt))
	}
	fmt.Fprintf(w, "items: %d created, %d updated, %d unchanged, %d failed, %d needs review\n",
		c.Created, c.Updated, c.Unchanged, c.Failed, c.NeedsReview)
	fmt.Fprintf(w, "links: %d created, %d existing, %d unresolved\n",
		c.LinksCreated, c.LinksExisting, c.LinksUnresolved)
	if r.Attachments > 0 || r.Comments > 0 {
		fmt.Fprintf(w, "transferred: %d attachments, %d comments\n", r.Attachments, r.Comments)
	}

	if len(r.DroppedFields) > 0 {
		refs := make([]string, 0, len(r.DroppedFields))
		for ref := range r.DroppedFields {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		fmt.Fprintf(w, "\ndropped fields (no writable target):\n")
		for _, ref := range refs {
			fmt.Fprintf(w, "  %s (%d)\n", ref, r.DroppedFields[ref])
		}
	}

	writeItemSection(w, "needs review", r.Items, OutcomeNeedsReview)
	writeItemSection(w, "failed", r.Items, OutcomeFailed)

	var unresolved []LinkResult
	for _, l := range r.Links {
		if l.Outcome == LinkUnresolved {
			unresolved = append(unresolved, l)
		}
	}
	if len(unresolved) > 0 {
		fmt.Fprintf(w, "\nunresolved links:\n")
		for _, l := range unresolved {
			fmt.Fprintf(w, "  #%d -> #%d (%s)\n", l.FromSource, l.ToSource, kindName(l.Kind))
		}
	}
}

func writeItemSection(w io.Writer, title string, items []ItemResult, outcome Outcome) {
	var hits []ItemResult
	for _, it := range items {
		if it.Outcome == outcome {
			hits = append(hits, it)
		}
	}
	if len(hits) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, it := range hits {
		fmt.Fprintf(w, "  #%d %s\n", it.SourceID, it.Err)
	}
}

// RenderJSON writes the full run record plus the counter summary.
func (r *Run) RenderJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*Run
		Summary Counters `json:"summary"`
	}{r, r.Counters()})
}

// kindName shortens a link relation reference name for display.
func kindName(kind string) string {
	switch kind {
	case ado.RelChild:
		return "child"
	case ado.RelParent:
		return "parent"
	case ado.RelRelated:
		return "related"
	}
	if i := strings.LastIndexByte(kind, '.'); i >= 0 {
		return strings.ToLower(kind[i+1:])
	}
	return kind
}
