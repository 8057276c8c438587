// Package engine orchestrates a migration run: walk the source closure,
// map and materialize every item against the target, re-wire links once
// both endpoints exist, then move attachments and comments. Item work is
// sequential inside a closure because links need earlier target ids;
// independent closures fan out across a bounded worker pool.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/juju/clock"

	"github.com/adotools/witcopy/internal/ado"
	"github.com/adotools/witcopy/internal/identity"
	"github.com/adotools/witcopy/internal/mapping"
	"github.com/adotools/witcopy/internal/report"
	"github.com/adotools/witcopy/internal/transfer"
	"github.com/adotools/witcopy/internal/walker"
)

// Engine wires the walker, mapper, identity map and stores into one
// migration run. All fields except Clock and Log are required.
type Engine struct {
	Source ado.Store
	Target ado.Store
	IDs    *identity.Store
	Rules  *mapping.Rules
	Schema *mapping.TargetSchema

	// Opts is the path remapping policy handed to the mapper.
	Opts mapping.Options

	// Mode labels the run in the report, e.g. "copy-hierarchy".
	Mode string

	// DryRun walks, maps and decides but performs no mutation anywhere:
	// no target writes and no identity map records.
	DryRun          bool
	WithComments    bool
	WithAttachments bool

	// Workers bounds how many closures run at once. Zero means one.
	Workers int

	// Clock and Log default to the wall clock and slog.Default.
	Clock clock.Clock
	Log   *slog.Logger
}

func (e *Engine) clk() clock.Clock {
	if e.Clock != nil {
		return e.Clock
	}
	return clock.WallClock
}

func (e *Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// edge is one link between two source items, named by source ids until
// the link pass resolves them.
type edge struct {
	from, to int
	kind     string
}

// Migrate runs one closure from the given roots.
func (e *Engine) Migrate(ctx context.Context, roots []int) (*report.Run, error) {
	return e.MigrateAll(ctx, [][]int{roots})
}

// MigrateAll runs one closure per root set. Sets sharing a root are merged
// first; the rest are independent and run on the worker pool. Results
// merge into a single run in root-set order, so output is stable no matter
// how workers interleave.
//
// A closure that fails outright (walk error, cancellation) is reported in
// the returned error; the other closures still complete. Per-item failures
// never surface here, they land in the run report.
func (e *Engine) MigrateAll(ctx context.Context, rootSets [][]int) (*report.Run, error) {
	run := report.NewRun(e.mode(), e.clk())
	run.DryRun = e.DryRun
	defer run.Finish(e.clk())

	sets := mergeRootSets(rootSets)
	if len(sets) == 0 {
		return run, nil
	}

	workers := e.Workers
	if workers < 1 {
		workers = 1
	}

	type closureResult struct {
		run     *report.Run
		pending []edge
		targets map[int]int
		err     error
	}
	results := make([]closureResult, len(sets))

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, roots := range sets {
		wg.Add(1)
		go func(i int, roots []int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			child := report.NewRun(e.mode(), e.clk())
			pending, targets, err := e.migrateClosure(ctx, child, roots)
			results[i] = closureResult{run: child, pending: pending, targets: targets, err: err}
		}(i, roots)
	}
	wg.Wait()

	allTargets := make(map[int]int)
	var pending []edge
	var errs []error
	for i := range results {
		res := &results[i]
		run.Merge(res.run)
		for src, tgt := range res.targets {
			allTargets[src] = tgt
		}
		pending = append(pending, res.pending...)
		if res.err != nil {
			errs = append(errs, res.err)
		}
	}

	// Final link pass. Edges deferred by a closure may resolve now that
	// every closure has recorded its mappings.
	e.createLinks(ctx, run, pending, allTargets, false)

	return run, errors.Join(errs...)
}

func (e *Engine) mode() string {
	if e.Mode != "" {
		return e.Mode
	}
	return "migrate"
}

// migrateClosure materializes one closure: every node, then its link pass,
// then transfers. Unresolvable edges come back for the caller's final
// pass; targets maps source ids to the target ids this closure settled on.
func (e *Engine) migrateClosure(ctx context.Context, run *report.Run, roots []int) ([]edge, map[int]int, error) {
	nodes, err := walker.Collect(ctx, e.Source, roots)
	if err != nil {
		return nil, nil, err
	}
	if err := e.Schema.EnsureTypes(ctx, e.Target, e.mappedTypes(nodes)); err != nil {
		return nil, nil, err
	}

	targets := make(map[int]int)
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, targets, err
		}
		res, dropped := e.migrateItem(ctx, n.Item)
		run.AddItem(res)
		run.AddDropped(dropped)
		switch res.Outcome {
		case report.OutcomeCreated, report.OutcomeUpdated, report.OutcomeUnchanged:
			targets[n.Item.ID] = res.TargetID
		}
	}

	pending := e.createLinks(ctx, run, closureEdges(nodes), targets, true)

	if !e.DryRun && (e.WithAttachments || e.WithComments) {
		e.transferPass(ctx, run, nodes, targets)
	}
	return pending, targets, nil
}

// migrateItem decides and applies create / update / skip for one source
// item. Failures are folded into the result, never returned; a broken
// item must not stop its closure.
func (e *Engine) migrateItem(ctx context.Context, item *ado.WorkItem) (report.ItemResult, []string) {
	res := report.ItemResult{SourceID: item.ID, Type: item.Type(), Title: item.Title()}

	mapped, err := mapping.Map(item, e.Schema, e.Rules, e.Opts)
	if err != nil {
		if mapping.IsSchemaError(err) {
			res.Outcome = report.OutcomeNeedsReview
			e.log().Warn("item needs manual review", "source", item.ID, "reason", err)
		} else {
			res.Outcome = report.OutcomeFailed
			e.log().Error("mapping failed", "source", item.ID, "err", err)
		}
		res.Err = err.Error()
		return res, nil
	}

	hash, err := mapped.Hash()
	if err != nil {
		res.Outcome = report.OutcomeFailed
		res.Err = fmt.Sprintf("field hash: %v", err)
		return res, mapped.Dropped
	}

	m, known, err := e.IDs.Lookup(ctx, item.ID)
	if err != nil {
		res.Outcome = report.OutcomeFailed
		res.Err = fmt.Sprintf("identity map: %v", err)
		return res, mapped.Dropped
	}

	switch {
	case !known:
		if e.DryRun {
			res.Outcome = report.OutcomeCreated
			break
		}
		created, err := e.Target.CreateWorkItem(ctx, mapped.TargetType, mapped.PatchOps())
		if err != nil {
			res.Outcome = report.OutcomeFailed
			res.Err = fmt.Sprintf("create failed: %v", err)
			e.log().Error("create failed", "source", item.ID, "type", mapped.TargetType, "err", err)
			break
		}
		rec, inserted, err := e.IDs.Record(ctx, item.ID, created.ID, hash)
		if err != nil {
			res.Outcome = report.OutcomeFailed
			res.Err = fmt.Sprintf("identity map: %v", err)
			// The target item exists but the map does not know it.
			// link-existing recovers the mapping from its provenance field.
			e.log().Error("created target but recording the mapping failed",
				"source", item.ID, "target", created.ID, "err", err)
			break
		}
		if !inserted && rec.TargetID != created.ID {
			// Lost a race with another writer; their mapping stands and
			// our fresh target item is an orphan.
			e.log().Warn("concurrent create for the same source item",
				"source", item.ID, "kept", rec.TargetID, "orphan", created.ID)
		}
		res.TargetID = rec.TargetID
		res.Outcome = report.OutcomeCreated
		e.log().Info("created", "source", item.ID, "target", rec.TargetID, "type", mapped.TargetType)

	case m.FieldHash == hash:
		res.TargetID = m.TargetID
		res.Outcome = report.OutcomeUnchanged
		e.log().Debug("unchanged", "source", item.ID, "target", m.TargetID)

	default:
		res.TargetID = m.TargetID
		if e.DryRun {
			res.Outcome = report.OutcomeUpdated
			break
		}
		if _, err := e.Target.UpdateWorkItem(ctx, m.TargetID, mapped.PatchOps()); err != nil {
			res.Outcome = report.OutcomeFailed
			res.Err = fmt.Sprintf("update failed: %v", err)
			e.log().Error("update failed", "source", item.ID, "target", m.TargetID, "err", err)
			break
		}
		if err := e.IDs.UpdateHash(ctx, item.ID, hash); err != nil {
			res.Outcome = report.OutcomeFailed
			res.Err = fmt.Sprintf("identity map: %v", err)
			break
		}
		res.Outcome = report.OutcomeUpdated
		e.log().Info("updated", "source", item.ID, "target", m.TargetID)
	}
	return res, mapped.Dropped
}

// mappedTypes lists the distinct target types this closure's items map
// to, so the schema can resolve them against the target before the node
// pass starts.
func (e *Engine) mappedTypes(nodes []*walker.Node) []string {
	seen := make(map[string]bool, len(nodes))
	var names []string
	for _, n := range nodes {
		t := e.Rules.TargetType(n.Item.Type())
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		names = append(names, t)
	}
	return names
}

// closureEdges lists the links a closure wants on the target: every
// parent-child edge first, then related edges deduplicated as unordered
// pairs (the service stores one symmetric link).
func closureEdges(nodes []*walker.Node) []edge {
	var edges []edge
	for _, n := range nodes {
		for _, cid := range n.ChildIDs {
			edges = append(edges, edge{from: n.Item.ID, to: cid, kind: ado.RelChild})
		}
	}
	seen := make(map[[2]int]bool)
	for _, n := range nodes {
		for _, rid := range n.RelatedIDs {
			key := [2]int{min(n.Item.ID, rid), max(n.Item.ID, rid)}
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, edge{from: n.Item.ID, to: rid, kind: ado.RelRelated})
		}
	}
	return edges
}

// createLinks attempts each edge whose endpoints both resolve to target
// ids. With deferUnresolved, edges that do not resolve yet are returned
// for a later pass instead of being reported; without it they are
// recorded as unresolved diagnostics.
func (e *Engine) createLinks(ctx context.Context, run *report.Run, edges []edge, targets map[int]int, deferUnresolved bool) []edge {
	var pending []edge
	for _, ed := range edges {
		fromTarget, okFrom := e.resolveTarget(ctx, targets, ed.from)
		toTarget, okTo := e.resolveTarget(ctx, targets, ed.to)
		if !okFrom || !okTo {
			if deferUnresolved {
				pending = append(pending, ed)
				continue
			}
			run.AddLink(report.LinkResult{
				FromSource: ed.from, ToSource: ed.to, Kind: ed.kind,
				Outcome: report.LinkUnresolved,
			})
			e.log().Warn("link endpoint has no target mapping",
				"from", ed.from, "to", ed.to, "kind", ed.kind)
			continue
		}

		res := report.LinkResult{FromSource: ed.from, ToSource: ed.to, Kind: ed.kind}
		if e.DryRun {
			res.Outcome = report.LinkCreated
			run.AddLink(res)
			continue
		}
		switch err := e.Target.CreateLink(ctx, fromTarget, toTarget, ed.kind); {
		case err == nil:
			res.Outcome = report.LinkCreated
			e.log().Debug("linked", "from", fromTarget, "to", toTarget, "kind", ed.kind)
		case ado.IsDuplicateLink(err):
			res.Outcome = report.LinkExists
		default:
			res.Outcome = report.LinkUnresolved
			e.log().Warn("link creation failed",
				"from", ed.from, "to", ed.to, "kind", ed.kind, "err", err)
		}
		run.AddLink(res)
	}
	return pending
}

// resolveTarget finds the target id for a source id: this run's decisions
// first, then the identity map for items migrated earlier or elsewhere.
func (e *Engine) resolveTarget(ctx context.Context, targets map[int]int, sourceID int) (int, bool) {
	if tid, ok := targets[sourceID]; ok {
		return tid, true
	}
	m, ok, err := e.IDs.Lookup(ctx, sourceID)
	if err != nil {
		e.log().Error("identity lookup failed", "source", sourceID, "err", err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	return m.TargetID, true
}

// transferPass moves attachments and comments for every item the node
// pass left with a target. Transfer problems are logged and counted but
// never fail the item; the work item itself already migrated.
func (e *Engine) transferPass(ctx context.Context, run *report.Run, nodes []*walker.Node, targets map[int]int) {
	cp := &transfer.Copier{Source: e.Source, Target: e.Target, IDs: e.IDs, Log: e.Log}
	for _, n := range nodes {
		targetID, ok := targets[n.Item.ID]
		if !ok {
			continue
		}
		if e.WithAttachments {
			moved, err := cp.CopyAttachments(ctx, n.Item.ID, targetID)
			run.Attachments += moved
			if err != nil {
				e.log().Warn("attachment transfer incomplete",
					"source", n.Item.ID, "target", targetID, "err", err)
			}
		}
		if e.WithComments {
			copied, err := cp.CopyComments(ctx, n.Item.ID, targetID)
			run.Comments += copied
			if err != nil {
				e.log().Warn("comment transfer incomplete",
					"source", n.Item.ID, "target", targetID, "err", err)
			}
		}
	}
}

// mergeRootSets folds root sets that share a root id into one closure, so
// overlapping requests cannot race each other onto the worker pool. Root
// order inside each set is preserved; duplicate ids are kept once.
func mergeRootSets(sets [][]int) [][]int {
	owner := make(map[int]int)
	var merged [][]int
	for _, set := range sets {
		if len(set) == 0 {
			continue
		}
		target := -1
		for _, id := range set {
			if idx, ok := owner[id]; ok {
				target = idx
				break
			}
		}
		if target == -1 {
			merged = append(merged, nil)
			target = len(merged) - 1
		}
		for _, id := range set {
			if _, ok := owner[id]; ok {
				continue
			}
			owner[id] = target
			merged[target] = append(merged[target], id)
		}
	}
	return merged
}
