package identity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timeFormat keeps nanoseconds fixed-width so stored timestamps compare
// correctly as strings.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Mapping is one identity-map row: the target item a source item became.
type Mapping struct {
	SourceID  int
	TargetID  int
	FieldHash string
}

// Record claims the mapping source→target with the given field hash.
// Uses INSERT ON CONFLICT DO NOTHING plus re-select inside one transaction,
// so two concurrent workers racing on the same source id both come back
// with the single established mapping, never a duplicate target.
//
// Returns the established mapping and whether this call inserted it.
func (s *Store) Record(ctx context.Context, sourceID, targetID int, fieldHash string) (Mapping, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Mapping{}, false, fmt.Errorf("record mapping: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO identity_map (source_id, target_id, field_hash)
		VALUES (?, ?, ?)
		ON CONFLICT(source_id) DO NOTHING
	`, sourceID, targetID, fieldHash)
	if err != nil {
		return Mapping{}, false, fmt.Errorf("record mapping: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return Mapping{}, false, fmt.Errorf("record mapping: rows affected: %w", err)
	}

	m := Mapping{SourceID: sourceID, TargetID: targetID, FieldHash: fieldHash}
	inserted := rowsAffected > 0
	if !inserted {
		// Conflict - another writer got here first, return what it wrote.
		err = tx.QueryRowContext(ctx, `
			SELECT target_id, field_hash FROM identity_map WHERE source_id = ?
		`, sourceID).Scan(&m.TargetID, &m.FieldHash)
		if err != nil {
			return Mapping{}, false, fmt.Errorf("record mapping: select existing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Mapping{}, false, fmt.Errorf("record mapping: commit: %w", err)
	}
	return m, inserted, nil
}

// Lookup returns the mapping for a source id, if one exists.
func (s *Store) Lookup(ctx context.Context, sourceID int) (Mapping, bool, error) {
	m := Mapping{SourceID: sourceID}
	err := s.db.QueryRowContext(ctx, `
		SELECT target_id, field_hash FROM identity_map WHERE source_id = ?
	`, sourceID).Scan(&m.TargetID, &m.FieldHash)
	if err == sql.ErrNoRows {
		return Mapping{}, false, nil
	}
	if err != nil {
		return Mapping{}, false, fmt.Errorf("lookup mapping: %w", err)
	}
	return m, true, nil
}

// UpdateHash replaces the stored field hash after a successful update of
// the target item.
func (s *Store) UpdateHash(ctx context.Context, sourceID int, fieldHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE identity_map
		SET field_hash = ?, updated_at = ?
		WHERE source_id = ?
	`, fieldHash, time.Now().UTC().Format(timeFormat), sourceID)
	if err != nil {
		return fmt.Errorf("update hash: %w", err)
	}
	return nil
}

// All returns every mapping ordered by source id.
func (s *Store) All(ctx context.Context) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, field_hash FROM identity_map ORDER BY source_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.SourceID, &m.TargetID, &m.FieldHash); err != nil {
			return nil, fmt.Errorf("list mappings: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return out, nil
}

// Count returns the number of recorded mappings.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identity_map`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mappings: %w", err)
	}
	return n, nil
}

// MarkAttachment records that the named attachment of a source item has
// been transferred. Returns false when an identical transfer was already
// logged, which is how re-runs skip completed attachments.
func (s *Store) MarkAttachment(ctx context.Context, sourceID int, name string, size int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO attachment_log (source_id, name, size)
		VALUES (?, ?, ?)
		ON CONFLICT(source_id, name, size) DO NOTHING
	`, sourceID, name, size)
	if err != nil {
		return false, fmt.Errorf("mark attachment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark attachment: rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// HasAttachment reports whether the named attachment was already logged.
func (s *Store) HasAttachment(ctx context.Context, sourceID int, name string, size int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attachment_log
		WHERE source_id = ? AND name = ? AND size = ?
	`, sourceID, name, size).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check attachment: %w", err)
	}
	return count > 0, nil
}

// CommentCursor returns the newest source comment timestamp already
// copied for the given source item.
func (s *Store) CommentCursor(ctx context.Context, sourceID int) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT last_timestamp FROM comment_cursor WHERE source_id = ?
	`, sourceID).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("comment cursor: %w", err)
	}
	t, err := time.Parse(timeFormat, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("comment cursor: parse %q: %w", raw, err)
	}
	return t, true, nil
}

// AdvanceCommentCursor moves the cursor forward to ts. A cursor never
// moves backward, so replaying an older comment cannot rewind it.
func (s *Store) AdvanceCommentCursor(ctx context.Context, sourceID int, ts time.Time) error {
	raw := ts.UTC().Format(timeFormat)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comment_cursor (source_id, last_timestamp)
		VALUES (?, ?)
		ON CONFLICT(source_id) DO UPDATE SET last_timestamp = excluded.last_timestamp
		WHERE excluded.last_timestamp > comment_cursor.last_timestamp
	`, sourceID, raw)
	if err != nil {
		return fmt.Errorf("advance comment cursor: %w", err)
	}
	return nil
}
