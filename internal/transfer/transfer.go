// Package transfer moves the payload that rides along a work item: file
// attachments and discussion comments. Both flows are incremental; the
// identity store remembers what already crossed so re-runs only move what
// is new.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/adotools/witcopy/internal/ado"
	"github.com/adotools/witcopy/internal/identity"
)

// Copier transfers attachments and comments between one source/target
// item pair whose mapping is already established.
type Copier struct {
	Source ado.Store
	Target ado.Store
	IDs    *identity.Store

	// Log defaults to slog.Default.
	Log *slog.Logger
}

func (c *Copier) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

// CopyAttachments transfers every attachment of the source item onto the
// target item. Skipped: attachments already in the transfer log, and names
// already present on the target's relations (covers items adopted from an
// earlier migration the log never saw). Individual failures are logged and
// do not stop the remaining files; the joined error reports them all.
//
// Returns the number of attachments actually transferred.
func (c *Copier) CopyAttachments(ctx context.Context, sourceID, targetID int) (int, error) {
	item, err := c.Source.GetWorkItem(ctx, sourceID, true)
	if err != nil {
		return 0, fmt.Errorf("load source #%d: %w", sourceID, err)
	}
	atts := DiscoverAttachments(item)
	if len(atts) == 0 {
		return 0, nil
	}

	existing, err := c.targetAttachmentNames(ctx, targetID)
	if err != nil {
		return 0, err
	}

	transferred := 0
	var errs []error
	for _, a := range atts {
		if existing[strings.ToLower(a.Name)] {
			c.log().Debug("attachment already on target",
				"source", sourceID, "target", targetID, "name", a.Name)
			continue
		}
		done, err := c.copyAttachment(ctx, sourceID, targetID, a)
		if err != nil {
			c.log().Error("attachment transfer failed",
				"source", sourceID, "target", targetID, "name", a.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", a.Name, err))
			continue
		}
		if done {
			transferred++
		}
	}
	return transferred, errors.Join(errs...)
}

// copyAttachment moves one file. The download is streamed through a temp
// file so the body is never held in memory and its size is known before
// the transfer-log check, whose key includes it.
func (c *Copier) copyAttachment(ctx context.Context, sourceID, targetID int, a Attachment) (bool, error) {
	body, err := c.Source.DownloadAttachment(ctx, a.URL)
	if err != nil {
		return false, fmt.Errorf("download: %w", err)
	}
	tmp, size, cleanup, err := spool(body)
	body.Close()
	if err != nil {
		return false, fmt.Errorf("spool: %w", err)
	}
	defer cleanup()

	done, err := c.IDs.HasAttachment(ctx, sourceID, a.Name, size)
	if err != nil {
		return false, err
	}
	if done {
		c.log().Debug("attachment already transferred", "source", sourceID, "name", a.Name)
		return false, nil
	}

	ref, err := c.Target.UploadAttachment(ctx, a.Name, tmp)
	if err != nil {
		return false, fmt.Errorf("upload: %w", err)
	}
	comment := fmt.Sprintf("Migrated attachment from source #%d", sourceID)
	if err := c.Target.AttachFile(ctx, targetID, ref.URL, a.Name, comment); err != nil {
		return false, fmt.Errorf("attach: %w", err)
	}
	if _, err := c.IDs.MarkAttachment(ctx, sourceID, a.Name, size); err != nil {
		return false, err
	}
	c.log().Info("attachment transferred",
		"source", sourceID, "target", targetID, "name", a.Name, "bytes", size)
	return true, nil
}

// targetAttachmentNames lists the lowercased attachment names already on
// the target item.
func (c *Copier) targetAttachmentNames(ctx context.Context, targetID int) (map[string]bool, error) {
	item, err := c.Target.GetWorkItem(ctx, targetID, true)
	if err != nil {
		return nil, fmt.Errorf("load target #%d: %w", targetID, err)
	}
	names := make(map[string]bool)
	for _, r := range item.Relations {
		if !isAttachmentRel(r.Rel) {
			continue
		}
		if n := r.Name(); n != "" {
			names[strings.ToLower(n)] = true
		}
	}
	return names, nil
}

// CopyComments appends the source item's comments to the target item in
// chronological order, verbatim. Only entries newer than the stored cursor
// are sent, and the cursor advances after each append, so an interrupted
// run resumes where it stopped instead of duplicating the discussion.
//
// Comment authorship cannot be impersonated over the REST API; appended
// comments are authored by the PAT identity.
//
// Returns the number of comments appended.
func (c *Copier) CopyComments(ctx context.Context, sourceID, targetID int) (int, error) {
	comments, err := c.Source.GetComments(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("load comments of #%d: %w", sourceID, err)
	}
	if len(comments) == 0 {
		return 0, nil
	}

	cursor, haveCursor, err := c.IDs.CommentCursor(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, cm := range comments {
		if haveCursor && !cm.CreatedDate.After(cursor) {
			continue
		}
		if strings.TrimSpace(cm.Text) == "" {
			continue
		}
		if err := c.Target.AddComment(ctx, targetID, cm.Text); err != nil {
			return copied, fmt.Errorf("append comment to #%d: %w", targetID, err)
		}
		if err := c.IDs.AdvanceCommentCursor(ctx, sourceID, cm.CreatedDate); err != nil {
			return copied, err
		}
		copied++
	}
	if copied > 0 {
		c.log().Info("comments transferred",
			"source", sourceID, "target", targetID, "count", copied)
	}
	return copied, nil
}

// spool copies r into an unnamed temp file and returns it positioned at
// the start, with its size and a cleanup that removes it.
func spool(r io.Reader) (*os.File, int64, func(), error) {
	f, err := os.CreateTemp("", "witcopy-att-")
	if err != nil {
		return nil, 0, nil, err
	}
	cleanup := func() {
		f.Close()
		os.Remove(f.Name())
	}
	size, err := io.Copy(f, r)
	if err != nil {
		cleanup()
		return nil, 0, nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, 0, nil, err
	}
	return f, size, cleanup, nil
}
