package journal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Raiff1982/TheAi-sub000/internal/telemetry"
)

// #region errors
var (
	// ErrJournalBusy is returned when the cross-process journal lock could not
	// be acquired within Config.LockTimeout.
	ErrJournalBusy = errors.New("journal busy")

	// ErrIntegrity marks a record whose payload does not match its digest.
	ErrIntegrity = errors.New("cocoon integrity check failed")

	// ErrNotFound is returned by lookups for ids absent from the index.
	ErrNotFound = errors.New("cocoon not found")
)

// ValidationError reports a caller-supplied value the journal refuses.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("journal: invalid %s: %s", e.Field, e.Reason)
}

// #endregion errors

// #region records
// Payload is the JSON object stored in a cocoon. Numbers decode as float64.
type Payload = map[string]any

// StateKey is the payload key carrying an embedded current-state snapshot.
const StateKey = "quantum_state"

// Record is one cocoon as loaded from disk.
type Record struct {
	ID        string
	Timestamp time.Time
	Type      string
	Data      Payload
	Digest    string
}

// Entry is the metadata kept in the index for each cocoon, hot or cold.
type Entry struct {
	ID        string
	Timestamp time.Time
	Type      string
	Location  string
	Size      int64
	Archived  bool
	HasState  bool
}

// Stats summarises the journal from the index and the filesystem.
type Stats struct {
	Hot          int
	Cold         int
	Total        int
	HotBytes     int64
	ArchiveBytes int64
	HasState     bool
}

// RotateResult counts what one rotation pass did.
type RotateResult struct {
	Archived int
	Failed   int
}

// #endregion records

// #region config
// Config controls where and how the journal stores cocoons.
type Config struct {
	Dir              string
	HotRetention     int
	CompressionLevel int
	LockTimeout      time.Duration

	Logger     *slog.Logger
	Registerer prometheus.Registerer
	Hub        *telemetry.Hub
	Now        func() time.Time
}

// DefaultConfig returns the standard tiering parameters rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		HotRetention:     20,
		CompressionLevel: 6,
		LockTimeout:      10 * time.Second,
	}
}

func (c Config) validate() error {
	switch {
	case c.Dir == "":
		return &ValidationError{Field: "dir", Reason: "must not be empty"}
	case c.HotRetention < 1:
		return &ValidationError{Field: "hot_retention", Reason: "must be >= 1"}
	case c.CompressionLevel < 1 || c.CompressionLevel > 9:
		return &ValidationError{Field: "compression_level", Reason: "must be in 1..9"}
	case c.LockTimeout <= 0:
		return &ValidationError{Field: "lock_timeout", Reason: "must be positive"}
	}
	return nil
}

// #endregion config
