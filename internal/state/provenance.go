package state

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-provenance
// LogProvenance writes an entry to the provenance_log table.
func (s *Store) LogProvenance(entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO provenance_log (version_id, trigger_type, context_digest, xi, glyph_id, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.VersionID,
		entry.Trigger,
		nullIfEmpty(entry.ContextDigest),
		entry.Xi,
		nullIfEmpty(entry.GlyphID),
		nullIfEmpty(entry.Note),
		entry.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log provenance: %w", err)
	}
	return nil
}
// #endregion log-provenance

// #region list-provenance
// ListProvenance returns the entries for versionID in insertion order.
func (s *Store) ListProvenance(versionID string) ([]ProvenanceEntry, error) {
	rows, err := s.db.Query(
		`SELECT version_id, trigger_type, context_digest, xi, glyph_id, note, created_at
		 FROM provenance_log WHERE version_id = ? ORDER BY id ASC`, versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list provenance: %w", err)
	}
	defer rows.Close()

	var out []ProvenanceEntry
	for rows.Next() {
		var e ProvenanceEntry
		var digest, glyph, note sql.NullString
		var xi sql.NullFloat64
		var created string
		if err := rows.Scan(&e.VersionID, &e.Trigger, &digest, &xi, &glyph, &note, &created); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		e.ContextDigest, e.GlyphID, e.Note = digest.String, glyph.String, note.String
		e.Xi = xi.Float64
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion list-provenance

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
