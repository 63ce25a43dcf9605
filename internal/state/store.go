package state

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Raiff1982/TheAi-sub000/internal/tension"
)

// ErrNoActiveVersion is returned by GetCurrent before the first commit.
var ErrNoActiveVersion = errors.New("no active identity version")

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS identity_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	dimension     INTEGER NOT NULL,
	identity      BLOB NOT NULL,
	tension_json  TEXT NOT NULL,
	recent_json   TEXT NOT NULL,
	step          INTEGER NOT NULL,
	converging    INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES identity_versions(version_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id     TEXT NOT NULL,
	trigger_type   TEXT NOT NULL,
	context_digest TEXT,
	xi             REAL,
	glyph_id       TEXT,
	note           TEXT,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES identity_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_identity (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES identity_versions(version_id)
);
`
// #endregion schema

// #region store-struct
// Store keeps versioned engine snapshots in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion constructor

// #region commit
// Commit stores snap as a new version whose parent is parentID (empty for a
// root) and makes it active.
func (s *Store) Commit(snap tension.Snapshot, parentID string) (Version, error) {
	v := Version{
		ID:        uuid.New().String(),
		ParentID:  parentID,
		Snapshot:  snap,
		CreatedAt: time.Now().UTC(),
	}

	tensionJSON, err := json.Marshal(nonNil(snap.Tension))
	if err != nil {
		return Version{}, fmt.Errorf("marshal tension: %w", err)
	}
	recentJSON, err := json.Marshal(snap.Recent)
	if err != nil {
		return Version{}, fmt.Errorf("marshal recent: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Version{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parentPtr any
	if parentID != "" {
		parentPtr = parentID
	}

	_, err = tx.Exec(
		`INSERT INTO identity_versions
		   (version_id, parent_id, dimension, identity, tension_json, recent_json, step, converging, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, parentPtr, snap.Dimension, encodeVector(snap.Identity), string(tensionJSON), string(recentJSON),
		snap.Step, boolToInt(snap.Converging), v.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Version{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_identity (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		v.ID,
	)
	if err != nil {
		return Version{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Version{}, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}
// #endregion commit

// #region reads
// GetCurrent reads the active version.
func (s *Store) GetCurrent() (Version, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_identity WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, ErrNoActiveVersion
	}
	if err != nil {
		return Version{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

const versionColumns = `version_id, parent_id, dimension, identity, tension_json, recent_json, step, converging, created_at`

// GetVersion retrieves a version by id.
func (s *Store) GetVersion(id string) (Version, error) {
	row := s.db.QueryRow(`SELECT `+versionColumns+` FROM identity_versions WHERE version_id = ?`, id)
	v, err := scanVersion(row)
	if err != nil {
		return Version{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return v, nil
}

// ListVersions returns up to limit versions, newest first.
func (s *Store) ListVersions(limit int) ([]Version, error) {
	rows, err := s.db.Query(
		`SELECT `+versionColumns+` FROM identity_versions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(sc scanner) (Version, error) {
	var (
		v           Version
		parentID    sql.NullString
		identity    []byte
		tensionJSON string
		recentJSON  string
		converging  int
		createdStr  string
	)
	err := sc.Scan(&v.ID, &parentID, &v.Snapshot.Dimension, &identity, &tensionJSON, &recentJSON,
		&v.Snapshot.Step, &converging, &createdStr)
	if err != nil {
		return Version{}, err
	}
	if parentID.Valid {
		v.ParentID = parentID.String
	}
	v.Snapshot.Identity = decodeVector(identity)
	v.Snapshot.Converging = converging != 0
	if err := json.Unmarshal([]byte(tensionJSON), &v.Snapshot.Tension); err != nil {
		return Version{}, fmt.Errorf("unmarshal tension: %w", err)
	}
	if err := json.Unmarshal([]byte(recentJSON), &v.Snapshot.Recent); err != nil {
		return Version{}, fmt.Errorf("unmarshal recent: %w", err)
	}
	v.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return v, nil
}
// #endregion reads

// #region rollback
// Rollback makes an earlier version active again.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM identity_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_identity (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		targetVersionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
// #endregion rollback

// #region vector-encoding
func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
// #endregion vector-encoding
