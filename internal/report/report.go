// Package report accumulates what a migration run did to every item and
// link it touched, and renders the summary users act on.
package report

import (
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
)

// Outcome classifies what happened to one source item.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeUpdated     Outcome = "updated"
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeFailed      Outcome = "failed"
	OutcomeNeedsReview Outcome = "needs-review"
)

// LinkOutcome classifies what happened to one link.
type LinkOutcome string

const (
	LinkCreated    LinkOutcome = "created"
	LinkExists     LinkOutcome = "exists"
	LinkUnresolved LinkOutcome = "unresolved"
)

// ItemResult is the outcome for one source work item.
type ItemResult struct {
	SourceID int     `json:"source_id"`
	TargetID int     `json:"target_id,omitempty"`
	Type     string  `json:"type,omitempty"`
	Title    string  `json:"title,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Err      string  `json:"error,omitempty"`
}

// LinkResult is the outcome for one link between two source items, named by
// their source ids; targets are resolved through the identity map.
type LinkResult struct {
	FromSource int         `json:"from_source"`
	ToSource   int         `json:"to_source"`
	Kind       string      `json:"kind"`
	Outcome    LinkOutcome `json:"outcome"`
}

// Counters aggregates a run's outcomes.
type Counters struct {
	Created         int `json:"created"`
	Updated         int `json:"updated"`
	Unchanged       int `json:"unchanged"`
	Failed          int `json:"failed"`
	NeedsReview     int `json:"needs_review"`
	LinksCreated    int `json:"links_created"`
	LinksExisting   int `json:"links_existing"`
	LinksUnresolved int `json:"links_unresolved"`
}

// Run is the full record of one migration invocation.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Mode       string    `json:"mode"`
	DryRun     bool      `json:"dry_run,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Items []ItemResult `json:"items"`
	Links []LinkResult `json:"links,omitempty"`

	// DroppedFields counts, per source reference name, how many items had a
	// value there that found no writable home on the target.
	DroppedFields map[string]int `json:"dropped_fields,omitempty"`

	Attachments int `json:"attachments_transferred,omitempty"`
	Comments    int `json:"comments_transferred,omitempty"`
}

// NewRun starts a run record for the named mode.
func NewRun(mode string, clk clock.Clock) *Run {
	return &Run{
		ID:            uuid.New(),
		Mode:          mode,
		StartedAt:     clk.Now().UTC(),
		DroppedFields: map[string]int{},
	}
}

// Finish stamps the end time.
func (r *Run) Finish(clk clock.Clock) {
	r.FinishedAt = clk.Now().UTC()
}

// AddItem appends one item outcome.
func (r *Run) AddItem(res ItemResult) {
	r.Items = append(r.Items, res)
}

// AddLink appends one link outcome.
func (r *Run) AddLink(res LinkResult) {
	r.Links = append(r.Links, res)
}

// AddDropped bumps the per-field dropped counters.
func (r *Run) AddDropped(refs []string) {
	if len(refs) == 0 {
		return
	}
	if r.DroppedFields == nil {
		r.DroppedFields = map[string]int{}
	}
	for _, ref := range refs {
		r.DroppedFields[ref]++
	}
}

// Merge folds another run's results into this one. Identity, mode and
// timestamps stay this run's own.
func (r *Run) Merge(other *Run) {
	r.Items = append(r.Items, other.Items...)
	r.Links = append(r.Links, other.Links...)
	for ref, n := range other.DroppedFields {
		if r.DroppedFields == nil {
			r.DroppedFields = map[string]int{}
		}
		r.DroppedFields[ref] += n
	}
	r.Attachments += other.Attachments
	r.Comments += other.Comments
}

// Counters tallies the run.
func (r *Run) Counters() Counters {
	var c Counters
	for _, it := range r.Items {
		switch it.Outcome {
		case OutcomeCreated:
			c.Created++
		case OutcomeUpdated:
			c.Updated++
		case OutcomeUnchanged:
			c.Unchanged++
		case OutcomeFailed:
			c.Failed++
		case OutcomeNeedsReview:
			c.NeedsReview++
		}
	}
	for _, l := range r.Links {
		switch l.Outcome {
		case LinkCreated:
			c.LinksCreated++
		case LinkExists:
			c.LinksExisting++
		case LinkUnresolved:
			c.LinksUnresolved++
		}
	}
	return c
}

// Partial reports whether anything needs human follow-up: failed items,
// items flagged for review, or links that never resolved.
func (r *Run) Partial() bool {
	c := r.Counters()
	return c.Failed > 0 || c.NeedsReview > 0 || c.LinksUnresolved > 0
}
