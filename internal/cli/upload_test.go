package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adotools/witcopy/internal/identity"
	"github.com/adotools/witcopy/internal/testutil"
)

// writePairFile lays out dir/<targetID>_from_<sourceID>/<name> the way a
// download run would.
func writePairFile(t *testing.T, dir, pairDir, name string, content []byte) {
	t.Helper()
	full := filepath.Join(dir, pairDir)
	require.NoError(t, os.MkdirAll(full, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(full, name), content, 0o644))
}

func TestUploadAttachmentsAttachesFiles(t *testing.T) {
	setConnEnv(t)
	src, tgt := newFakes()
	tgt.Seed(testutil.WorkItem(9000, "Epic", "Roadmap"))

	dir := t.TempDir()
	content := []byte("meeting notes")
	writePairFile(t, dir, "9000_from_1", "notes.txt", content)
	state := statePath(t)

	buf := &bytes.Buffer{}
	cmd := NewUploadAttachmentsCommand(fakeOpts(src, tgt))
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--dir", dir, "--state", state})
	require.NoError(t, cmd.Execute())

	require.Equal(t, []string{"notes.txt"}, tgt.Uploaded)
	require.Len(t, tgt.Attached, 1)
	assert.Equal(t, 9000, tgt.Attached[0].ID)
	assert.Equal(t, "notes.txt", tgt.Attached[0].Name)
	assert.Contains(t, tgt.Attached[0].Comment, "source #1")
	assert.Equal(t, content, tgt.AttachmentContent(tgt.Attached[0].URL))
	assert.Contains(t, buf.String(), "uploaded 1 attachments from "+dir)

	// The transfer is logged so a later copy run skips this file.
	ids, err := identity.Open(state)
	require.NoError(t, err)
	defer ids.Close()
	inserted, err := ids.MarkAttachment(context.Background(), 1, "notes.txt", int64(len(content)))
	require.NoError(t, err)
	assert.False(t, inserted, "upload should already be on record")
}

func TestUploadAttachmentsSkipsExisting(t *testing.T) {
	setConnEnv(t)
	src, tgt := newFakes()
	tgt.Seed(testutil.WorkItem(9000, "Epic", "Roadmap"))

	dir := t.TempDir()
	writePairFile(t, dir, "9000_from_1", "notes.txt", []byte("x"))
	state := statePath(t)

	for i := 0; i < 2; i++ {
		cmd := NewUploadAttachmentsCommand(fakeOpts(src, tgt))
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--dir", dir, "--state", state})
		require.NoError(t, cmd.Execute())
	}

	assert.Len(t, tgt.Uploaded, 1, "second run must not attach the file again")
}

func TestUploadAttachmentsIgnoresStrayDirs(t *testing.T) {
	setConnEnv(t)
	src, tgt := newFakes()
	tgt.Seed(testutil.WorkItem(9000, "Epic", "Roadmap"))

	dir := t.TempDir()
	writePairFile(t, dir, "9000_from_1", "ok.txt", []byte("x"))
	writePairFile(t, dir, "scratch", "ignored.txt", []byte("y"))

	cmd := NewUploadAttachmentsCommand(fakeOpts(src, tgt))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dir", dir, "--state", statePath(t)})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, []string{"ok.txt"}, tgt.Uploaded)
}

func TestUploadAttachmentsNeedsOnlyTargetConfig(t *testing.T) {
	setConnEnv(t)
	t.Setenv("ADO_SOURCE_ORG_URL", "")
	t.Setenv("ADO_SOURCE_PROJECT", "")
	t.Setenv("ADO_SOURCE_PAT", "")
	src, tgt := newFakes()
	tgt.Seed(testutil.WorkItem(9000, "Epic", "Roadmap"))

	dir := t.TempDir()
	writePairFile(t, dir, "9000_from_1", "notes.txt", []byte("x"))

	cmd := NewUploadAttachmentsCommand(fakeOpts(src, tgt))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dir", dir, "--state", statePath(t)})
	require.NoError(t, cmd.Execute())

	assert.Len(t, tgt.Uploaded, 1)
}

func TestUploadAttachmentsRequiresDir(t *testing.T) {
	setConnEnv(t)
	src, tgt := newFakes()

	cmd := NewUploadAttachmentsCommand(fakeOpts(src, tgt))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--state", statePath(t)})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
	assert.Contains(t, err.Error(), "attachments directory required")
}
