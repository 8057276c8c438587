package transfer

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adotools/witcopy/internal/ado"
	"github.com/adotools/witcopy/internal/testutil"
)

func TestDownloadAllWritesPairLayout(t *testing.T) {
	c, src, tgt := newCopier(t)
	ctx := context.Background()

	srcURL := "https://dev.azure.com/fake/_apis/wit/attachments/aaa?fileName=a.txt"
	src.Seed(testutil.WorkItem(1, "Bug", "T", testutil.AttachedRel(srcURL, "a.txt")))
	src.Seed(testutil.WorkItem(2, "Bug", "U"))
	src.SeedAttachment(srcURL, []byte("alpha"))

	withRef := func(id int, sourceID string) *ado.WorkItem {
		item := testutil.WorkItem(id, "Bug", "T")
		item.Fields[ado.ReflectedField] = sourceID
		return item
	}
	tgt.Seed(withRef(9000, "1"), withRef(9001, "2"), testutil.WorkItem(9002, "Bug", "unstamped"))

	dir := t.TempDir()
	n, err := c.DownloadAll(ctx, dir, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(filepath.Join(dir, "9000_from_1", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	_, err = os.Stat(filepath.Join(dir, "9001_from_2"))
	assert.True(t, os.IsNotExist(err), "pairs without attachments get no directory")

	// Files already on disk are not fetched again.
	n, err = c.DownloadAll(ctx, dir, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDownloadAllSkipsGoneSourceItems(t *testing.T) {
	c, _, tgt := newCopier(t)
	ctx := context.Background()

	item := testutil.WorkItem(9000, "Bug", "T")
	item.Fields[ado.ReflectedField] = "77"
	tgt.Seed(item)

	n, err := c.DownloadAll(ctx, t.TempDir(), 0)
	require.NoError(t, err, "a deleted source item is logged, not fatal")
	assert.Zero(t, n)
}

func TestUploadAllAttachesAndLogs(t *testing.T) {
	c, _, tgt := newCopier(t)
	ctx := context.Background()

	tgt.Seed(testutil.WorkItem(9000, "Bug", "T"))

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "9000_from_1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "9000_from_1", "b.bin"), []byte("beta!"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "junk"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("n"), 0o644))

	n, err := c.UploadAll(ctx, dir, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, tgt.Attached, 1)
	assert.Equal(t, 9000, tgt.Attached[0].ID)
	assert.Equal(t, "b.bin", tgt.Attached[0].Name)
	assert.Equal(t, "Migrated attachment from source #1", tgt.Attached[0].Comment)

	logged, err := c.IDs.HasAttachment(ctx, 1, "b.bin", int64(len("beta!")))
	require.NoError(t, err)
	assert.True(t, logged, "directory uploads land in the transfer log")

	// The relation now carries the name, so a re-run uploads nothing.
	n, err = c.UploadAll(ctx, dir, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, tgt.Uploaded, 1)
}

func TestDownloadAllHonorsMax(t *testing.T) {
	c, src, tgt := newCopier(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		url := "https://dev.azure.com/fake/_apis/wit/attachments/a?fileName=f" + string(rune('0'+i)) + ".txt"
		src.Seed(testutil.WorkItem(i, "Bug", "T", testutil.AttachedRel(url, "f.txt")))
		src.SeedAttachment(url, []byte("x"))

		item := testutil.WorkItem(9000+i, "Bug", "T")
		item.Fields[ado.ReflectedField] = strconv.Itoa(i)
		tgt.Seed(item)
	}

	n, err := c.DownloadAll(ctx, t.TempDir(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "max caps the pairs examined")
}

func TestParsePairDir(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantTarget int
		wantSource int
		wantOK     bool
	}{
		{"well formed", "9000_from_1", 9000, 1, true},
		{"no separator", "9000", 0, 0, false},
		{"missing source", "9000_from_", 0, 0, false},
		{"non-numeric target", "x_from_1", 0, 0, false},
		{"negative id", "-1_from_2", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotTarget, gotSource, ok := parsePairDir(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTarget, gotTarget)
			assert.Equal(t, tt.wantSource, gotSource)
		})
	}
}
