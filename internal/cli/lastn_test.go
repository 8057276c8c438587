package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adotools/witcopy/internal/ado"
	"github.com/adotools/witcopy/internal/testutil"
)

func TestCopyLastNTopTruncates(t *testing.T) {
	setConnEnv(t)
	src, tgt := newFakes()
	src.Seed(
		testutil.WorkItem(3, "Epic", "Oldest"),
		testutil.WorkItem(4, "Epic", "Middle"),
		testutil.WorkItem(5, "Epic", "Newest"),
	)
	// Newest first, the way the created-date query orders them.
	src.QueryHook = func(wiql string) ([]int, error) {
		return []int{5, 4, 3}, nil
	}

	buf := &bytes.Buffer{}
	cmd := NewCopyLastNCommand(fakeOpts(src, tgt))
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--state", statePath(t), "--top", "2"})
	require.NoError(t, cmd.Execute())

	require.Len(t, tgt.Created, 2)
	newest := tgt.Item(9000)
	require.NotNil(t, newest)
	assert.Equal(t, "5", newest.Fields[ado.ReflectedField])
	second := tgt.Item(9001)
	require.NotNil(t, second)
	assert.Equal(t, "4", second.Fields[ado.ReflectedField])
	assert.Contains(t, buf.String(), "items: 2 created")
}

func TestCopyLastNQueriesByCreatedDate(t *testing.T) {
	setConnEnv(t)
	src, tgt := newFakes()

	var queries []string
	src.QueryHook = func(wiql string) ([]int, error) {
		queries = append(queries, wiql)
		return nil, nil
	}

	cmd := NewCopyLastNCommand(fakeOpts(src, tgt))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--state", statePath(t)})
	require.NoError(t, cmd.Execute())

	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "ORDER BY [System.CreatedDate] DESC")
	assert.Contains(t, queries[0], "'Epic'")
}

func TestCopyLastNSecondRunUnchanged(t *testing.T) {
	setConnEnv(t)
	src, tgt := newFakes()
	src.Seed(testutil.WorkItem(5, "Epic", "Newest"))
	src.QueryHook = func(wiql string) ([]int, error) {
		return []int{5}, nil
	}

	opts := fakeOpts(src, tgt)
	state := statePath(t)

	for i, want := range []string{"items: 1 created", "items: 0 created, 0 updated, 1 unchanged"} {
		buf := &bytes.Buffer{}
		cmd := NewCopyLastNCommand(opts)
		cmd.SetOut(buf)
		cmd.SetErr(buf)
		cmd.SetArgs([]string{"--state", state})
		require.NoError(t, cmd.Execute(), "run %d", i)
		assert.Contains(t, buf.String(), want)
	}
	assert.Len(t, tgt.Created, 1)
}
