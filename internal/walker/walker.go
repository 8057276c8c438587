// Package walker computes the closure of a set of root work items over
// hierarchy links and yields every item in it, parents before children.
package walker

import (
	"context"
	"fmt"

	"github.com/adotools/witcopy/internal/ado"
)

// Node is one work item inside a walked closure: the fetched item plus the
// link structure the engine needs, resolved to source ids.
type Node struct {
	Item *ado.WorkItem

	// ParentID is the id of the closure node this one was discovered
	// through, 0 for roots. When two parents share a child, the first one
	// reached owns it.
	ParentID int

	// ChildIDs holds every Hierarchy-Forward target, including ones
	// outside the closure (deleted or inaccessible items).
	ChildIDs []int

	// RelatedIDs holds Related link targets. Related links are collected,
	// never traversed; they widen a closure only through hierarchy.
	RelatedIDs []int
}

// Walk fetches the roots and their descendants breadth-first over
// Hierarchy-Forward relations, calling visit once per item. Breadth-first
// order means a parent is always visited before any of its children, which
// is what lets the engine create targets in one pass. Cycles and shared
// children are visited once. Ids the service does not return (deleted
// items, permission holes) are skipped.
func Walk(ctx context.Context, store ado.Store, roots []int, visit func(*Node) error) error {
	visited := make(map[int]bool)
	parent := make(map[int]int)

	frontier := make([]int, 0, len(roots))
	for _, id := range roots {
		if id <= 0 || visited[id] {
			continue
		}
		visited[id] = true
		frontier = append(frontier, id)
	}

	for len(frontier) > 0 {
		items, err := store.GetWorkItemsBatch(ctx, frontier, nil, true)
		if err != nil {
			return fmt.Errorf("fetch closure level: %w", err)
		}
		byID := make(map[int]*ado.WorkItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		var next []int
		for _, id := range frontier {
			item, ok := byID[id]
			if !ok {
				continue
			}

			node := &Node{Item: item, ParentID: parent[id]}
			for _, rel := range item.Relations {
				switch rel.Rel {
				case ado.RelChild:
					cid, ok := rel.TargetID()
					if !ok {
						continue
					}
					node.ChildIDs = append(node.ChildIDs, cid)
					if !visited[cid] {
						visited[cid] = true
						parent[cid] = id
						next = append(next, cid)
					}
				case ado.RelRelated:
					if rid, ok := rel.TargetID(); ok {
						node.RelatedIDs = append(node.RelatedIDs, rid)
					}
				}
			}

			if err := visit(node); err != nil {
				return err
			}
		}
		frontier = next
	}
	return nil
}

// Collect runs Walk and returns the nodes in visit order.
func Collect(ctx context.Context, store ado.Store, roots []int) ([]*Node, error) {
	var nodes []*Node
	err := Walk(ctx, store, roots, func(n *Node) error {
		nodes = append(nodes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}
