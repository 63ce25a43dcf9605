package state

import (
	"time"

	"github.com/Raiff1982/TheAi-sub000/internal/tension"
)

// #region version
// Version is one committed snapshot of an engine's identity state.
type Version struct {
	ID        string
	ParentID  string
	Snapshot  tension.Snapshot
	CreatedAt time.Time
}
// #endregion version

// #region provenance-entry
// ProvenanceEntry explains why a version was committed or made active.
type ProvenanceEntry struct {
	VersionID     string
	Trigger       string // "checkpoint" | "rollback" | "restore"
	ContextDigest string
	Xi            float64
	GlyphID       string
	Note          string
	CreatedAt     time.Time
}
// #endregion provenance-entry
