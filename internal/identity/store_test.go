package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"identity_map", "attachment_log", "comment_cursor"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := openTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

func TestRecord_InsertsNewMapping(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m, inserted, err := s.Record(ctx, 101, 9001, "hash-a")
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if !inserted {
		t.Error("expected inserted=true for new mapping")
	}
	if m.TargetID != 9001 || m.FieldHash != "hash-a" {
		t.Errorf("unexpected mapping: %+v", m)
	}
}

func TestRecord_ConflictReturnsEstablishedMapping(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Record(ctx, 101, 9001, "hash-a"); err != nil {
		t.Fatalf("first Record() failed: %v", err)
	}

	// A second claim for the same source must yield the first target,
	// not create a duplicate.
	m, inserted, err := s.Record(ctx, 101, 9999, "hash-b")
	if err != nil {
		t.Fatalf("second Record() failed: %v", err)
	}
	if inserted {
		t.Error("expected inserted=false on conflict")
	}
	if m.TargetID != 9001 {
		t.Errorf("TargetID = %d, want established 9001", m.TargetID)
	}
	if m.FieldHash != "hash-a" {
		t.Errorf("FieldHash = %q, want established %q", m.FieldHash, "hash-a")
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestLookup_Miss(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Lookup(context.Background(), 404)
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if ok {
		t.Error("expected ok=false for unmapped source id")
	}
}

func TestUpdateHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Record(ctx, 101, 9001, "hash-a"); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := s.UpdateHash(ctx, 101, "hash-b"); err != nil {
		t.Fatalf("UpdateHash() failed: %v", err)
	}

	m, ok, err := s.Lookup(ctx, 101)
	if err != nil || !ok {
		t.Fatalf("Lookup() failed: ok=%v err=%v", ok, err)
	}
	if m.FieldHash != "hash-b" {
		t.Errorf("FieldHash = %q, want %q", m.FieldHash, "hash-b")
	}
}

func TestAll_OrdersBySourceID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, pair := range [][2]int{{300, 3}, {100, 1}, {200, 2}} {
		if _, _, err := s.Record(ctx, pair[0], pair[1], "h"); err != nil {
			t.Fatalf("Record(%d) failed: %v", pair[0], err)
		}
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(All()) = %d, want 3", len(all))
	}
	for i, want := range []int{100, 200, 300} {
		if all[i].SourceID != want {
			t.Errorf("All()[%d].SourceID = %d, want %d", i, all[i].SourceID, want)
		}
	}
}

func TestMarkAttachment_SecondCallSkips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inserted, err := s.MarkAttachment(ctx, 101, "design.pdf", 2048)
	if err != nil {
		t.Fatalf("MarkAttachment() failed: %v", err)
	}
	if !inserted {
		t.Error("expected first mark to insert")
	}

	inserted, err = s.MarkAttachment(ctx, 101, "design.pdf", 2048)
	if err != nil {
		t.Fatalf("second MarkAttachment() failed: %v", err)
	}
	if inserted {
		t.Error("expected second identical mark to be skipped")
	}

	// Same name, different size is a different attachment.
	inserted, err = s.MarkAttachment(ctx, 101, "design.pdf", 4096)
	if err != nil {
		t.Fatalf("third MarkAttachment() failed: %v", err)
	}
	if !inserted {
		t.Error("expected different size to insert")
	}
}

func TestHasAttachment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.MarkAttachment(ctx, 101, "log.txt", 10); err != nil {
		t.Fatalf("MarkAttachment() failed: %v", err)
	}

	ok, err := s.HasAttachment(ctx, 101, "log.txt", 10)
	if err != nil {
		t.Fatalf("HasAttachment() failed: %v", err)
	}
	if !ok {
		t.Error("expected logged attachment to be found")
	}

	ok, err = s.HasAttachment(ctx, 101, "log.txt", 11)
	if err != nil {
		t.Fatalf("HasAttachment() failed: %v", err)
	}
	if ok {
		t.Error("expected different size to miss")
	}
}

func TestCommentCursor_AdvancesForwardOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.CommentCursor(ctx, 101)
	if err != nil {
		t.Fatalf("CommentCursor() failed: %v", err)
	}
	if ok {
		t.Error("expected no cursor for fresh item")
	}

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	if err := s.AdvanceCommentCursor(ctx, 101, t2); err != nil {
		t.Fatalf("AdvanceCommentCursor() failed: %v", err)
	}

	// Replaying an older comment must not rewind the cursor.
	if err := s.AdvanceCommentCursor(ctx, 101, t1); err != nil {
		t.Fatalf("AdvanceCommentCursor(older) failed: %v", err)
	}

	got, ok, err := s.CommentCursor(ctx, 101)
	if err != nil || !ok {
		t.Fatalf("CommentCursor() failed: ok=%v err=%v", ok, err)
	}
	if !got.Equal(t2) {
		t.Errorf("cursor = %v, want %v", got, t2)
	}
}
