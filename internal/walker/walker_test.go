package walker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adotools/witcopy/internal/testutil"
)

func visitedIDs(nodes []*Node) []int {
	ids := make([]int, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.Item.ID)
	}
	return ids
}

func TestWalkYieldsParentsBeforeChildren(t *testing.T) {
	src := testutil.NewFakeStore("Source")
	src.Seed(
		testutil.WorkItem(1, "Epic", "P1", testutil.ChildRel(2), testutil.ChildRel(3)),
		testutil.WorkItem(2, "Feature", "C1", testutil.ParentRel(1), testutil.ChildRel(4)),
		testutil.WorkItem(3, "Feature", "C2", testutil.ParentRel(1)),
		testutil.WorkItem(4, "User Story", "X1", testutil.ParentRel(2)),
	)

	nodes, err := Collect(context.Background(), src, []int{1})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4}, visitedIDs(nodes))
	assert.Equal(t, 0, nodes[0].ParentID)
	assert.Equal(t, 1, nodes[1].ParentID)
	assert.Equal(t, 1, nodes[2].ParentID)
	assert.Equal(t, 2, nodes[3].ParentID)
	assert.Equal(t, []int{2, 3}, nodes[0].ChildIDs)
}

func TestWalkCollectsRelatedWithoutTraversing(t *testing.T) {
	src := testutil.NewFakeStore("Source")
	src.Seed(
		testutil.WorkItem(1, "Epic", "A", testutil.RelatedRel(2)),
		testutil.WorkItem(2, "Bug", "B"),
	)

	nodes, err := Collect(context.Background(), src, []int{1})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, visitedIDs(nodes), "related links widen nothing")
	assert.Equal(t, []int{2}, nodes[0].RelatedIDs)
}

func TestWalkCycleVisitsOnce(t *testing.T) {
	src := testutil.NewFakeStore("Source")
	src.Seed(
		testutil.WorkItem(1, "Epic", "A", testutil.ChildRel(2)),
		testutil.WorkItem(2, "Feature", "B", testutil.ChildRel(1)),
	)

	nodes, err := Collect(context.Background(), src, []int{1})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, visitedIDs(nodes))
	assert.Equal(t, []int{1}, nodes[1].ChildIDs, "back edge stays on the node")
}

func TestWalkSharedChildOwnedByFirstParent(t *testing.T) {
	src := testutil.NewFakeStore("Source")
	src.Seed(
		testutil.WorkItem(1, "Epic", "P1", testutil.ChildRel(3)),
		testutil.WorkItem(2, "Epic", "P2", testutil.ChildRel(3)),
		testutil.WorkItem(3, "Feature", "C"),
	)

	nodes, err := Collect(context.Background(), src, []int{1, 2})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, visitedIDs(nodes))
	assert.Equal(t, 1, nodes[2].ParentID)
}

func TestWalkSkipsMissingItems(t *testing.T) {
	src := testutil.NewFakeStore("Source")
	src.Seed(testutil.WorkItem(1, "Epic", "P1", testutil.ChildRel(99)))

	nodes, err := Collect(context.Background(), src, []int{1, 55})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, visitedIDs(nodes))
	assert.Equal(t, []int{99}, nodes[0].ChildIDs, "the dangling id is still reported on the node")
}

func TestWalkDeduplicatesRoots(t *testing.T) {
	src := testutil.NewFakeStore("Source")
	src.Seed(testutil.WorkItem(1, "Epic", "P1"))

	nodes, err := Collect(context.Background(), src, []int{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, visitedIDs(nodes))
}

func TestWalkStopsOnVisitError(t *testing.T) {
	src := testutil.NewFakeStore("Source")
	src.Seed(
		testutil.WorkItem(1, "Epic", "P1", testutil.ChildRel(2)),
		testutil.WorkItem(2, "Feature", "C1"),
	)

	boom := errors.New("boom")
	var seen []int
	err := Walk(context.Background(), src, []int{1}, func(n *Node) error {
		seen = append(seen, n.Item.ID)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1}, seen)
}
