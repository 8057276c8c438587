package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adotools/witcopy/internal/ado"
)

// Directory transfer modes. Attachments land under one directory per
// migrated pair, named <targetID>_from_<sourceID>, so a download can be
// inspected or hand-edited before being uploaded in a second step.

// DownloadAll saves the attachments of every migrated pair under dir. The
// set of pairs comes from the target project: every item carrying a
// provenance stamp. Files already on disk are left alone, so an
// interrupted download resumes instead of starting over. max caps how
// many pairs are examined; zero or negative means all.
//
// Returns the number of files written.
func (c *Copier) DownloadAll(ctx context.Context, dir string, max int) (int, error) {
	pairs, err := c.migratedPairs(ctx)
	if err != nil {
		return 0, err
	}
	if max > 0 && len(pairs) > max {
		pairs = pairs[:max]
	}

	saved := 0
	var errs []error
	for _, p := range pairs {
		n, err := c.downloadPair(ctx, dir, p)
		saved += n
		if err != nil {
			c.log().Error("download failed",
				"source", p.sourceID, "target", p.targetID, "err", err)
			errs = append(errs, fmt.Errorf("#%d: %w", p.sourceID, err))
		}
	}
	return saved, errors.Join(errs...)
}

func (c *Copier) downloadPair(ctx context.Context, dir string, p pair) (int, error) {
	item, err := c.Source.GetWorkItem(ctx, p.sourceID, true)
	if ado.IsNotFound(err) {
		c.log().Warn("source item gone", "source", p.sourceID)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load source: %w", err)
	}
	atts := DiscoverAttachments(item)
	if len(atts) == 0 {
		return 0, nil
	}

	pairDir := filepath.Join(dir, fmt.Sprintf("%d_from_%d", p.targetID, p.sourceID))
	if err := os.MkdirAll(pairDir, 0o755); err != nil {
		return 0, err
	}

	saved := 0
	for _, a := range atts {
		path := filepath.Join(pairDir, a.Name)
		if _, err := os.Stat(path); err == nil {
			c.log().Debug("already on disk", "path", path)
			continue
		}
		if err := c.downloadToFile(ctx, a.URL, path); err != nil {
			return saved, fmt.Errorf("download %s: %w", a.Name, err)
		}
		c.log().Info("attachment saved", "path", path)
		saved++
	}
	return saved, nil
}

// downloadToFile streams one attachment to path, removing the partial
// file on failure.
func (c *Copier) downloadToFile(ctx context.Context, url, path string) error {
	body, err := c.Source.DownloadAttachment(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// UploadAll walks the layout DownloadAll produces and attaches every file
// to its target item, skipping names the target already carries. max caps
// how many pair directories are processed; zero or negative means all.
//
// Returns the number of files attached.
func (c *Copier) UploadAll(ctx context.Context, dir string, max int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	uploaded := 0
	pairsDone := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		targetID, sourceID, ok := parsePairDir(e.Name())
		if !ok {
			c.log().Warn("skipping unrecognized directory", "name", e.Name())
			continue
		}
		if max > 0 && pairsDone >= max {
			break
		}
		pairsDone++
		n, err := c.uploadPair(ctx, filepath.Join(dir, e.Name()), targetID, sourceID)
		uploaded += n
		if err != nil {
			c.log().Error("upload failed",
				"source", sourceID, "target", targetID, "err", err)
			errs = append(errs, fmt.Errorf("#%d: %w", targetID, err))
		}
	}
	return uploaded, errors.Join(errs...)
}

func (c *Copier) uploadPair(ctx context.Context, pairDir string, targetID, sourceID int) (int, error) {
	existing, err := c.targetAttachmentNames(ctx, targetID)
	if err != nil {
		return 0, err
	}

	files, err := os.ReadDir(pairDir)
	if err != nil {
		return 0, err
	}

	uploaded := 0
	for _, fe := range files {
		if fe.IsDir() {
			continue
		}
		name := fe.Name()
		if existing[strings.ToLower(name)] {
			c.log().Debug("already attached", "target", targetID, "name", name)
			continue
		}
		if err := c.uploadFile(ctx, filepath.Join(pairDir, name), name, targetID, sourceID); err != nil {
			return uploaded, fmt.Errorf("upload %s: %w", name, err)
		}
		c.log().Info("attachment uploaded", "target", targetID, "name", name)
		uploaded++
	}
	return uploaded, nil
}

func (c *Copier) uploadFile(ctx context.Context, path, name string, targetID, sourceID int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ref, err := c.Target.UploadAttachment(ctx, name, f)
	if err != nil {
		return err
	}
	comment := fmt.Sprintf("Migrated attachment from source #%d", sourceID)
	if err := c.Target.AttachFile(ctx, targetID, ref.URL, name, comment); err != nil {
		return err
	}

	// Keep the transfer log in step so a later engine run does not move
	// the same file again.
	if c.IDs != nil {
		info, err := f.Stat()
		if err != nil {
			return err
		}
		if _, err := c.IDs.MarkAttachment(ctx, sourceID, name, info.Size()); err != nil {
			return err
		}
	}
	return nil
}

// pair is one migrated source/target item pair.
type pair struct {
	sourceID int
	targetID int
}

// migratedPairs lists every pair the target project knows about, read
// from the provenance field rather than the identity map so downloads
// also cover items migrated by other tooling.
func (c *Copier) migratedPairs(ctx context.Context) ([]pair, error) {
	ids, err := c.Target.QueryIDs(ctx, ado.AllReflectedQuery(c.Target.Project()))
	if err != nil {
		return nil, fmt.Errorf("query migrated items: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	items, err := c.Target.GetWorkItemsBatch(ctx, ids, []string{ado.ReflectedField}, false)
	if err != nil {
		return nil, fmt.Errorf("load migrated items: %w", err)
	}

	pairs := make([]pair, 0, len(items))
	for _, it := range items {
		sourceID, ok := ado.ParseReflectedID(it.Fields[ado.ReflectedField])
		if !ok {
			continue
		}
		pairs = append(pairs, pair{sourceID: sourceID, targetID: it.ID})
	}
	return pairs, nil
}

// parsePairDir parses a <targetID>_from_<sourceID> directory name.
func parsePairDir(name string) (targetID, sourceID int, ok bool) {
	t, s, found := strings.Cut(name, "_from_")
	if !found {
		return 0, 0, false
	}
	tid, err := strconv.Atoi(t)
	if err != nil || tid <= 0 {
		return 0, 0, false
	}
	sid, err := strconv.Atoi(s)
	if err != nil || sid <= 0 {
		return 0, 0, false
	}
	return tid, sid, true
}
