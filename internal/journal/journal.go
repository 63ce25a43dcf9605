package journal

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Raiff1982/TheAi-sub000/internal/telemetry"
)

var tracer = otel.Tracer("github.com/Raiff1982/TheAi-sub000/internal/journal")

// #region journal-struct
// Journal is an append-only store of cocoon records with a bounded hot tier of
// plain JSON files and a gzip cold tier under archive/.
type Journal struct {
	cfg        Config
	hotDir     string
	archiveDir string
	lockPath   string
	logger     *slog.Logger
	hub        *telemetry.Hub
	metrics    *metrics
	now        func() time.Time

	mu      sync.Mutex
	index   []Entry // newest first
	skipped map[string]struct{}
	lastTS  time.Time
	state   Payload
	stateAt time.Time
}

// #endregion journal-struct

// #region constructor
// Open prepares the directories under cfg.Dir and builds the index from disk.
func Open(cfg Config) (*Journal, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	j := &Journal{
		cfg:        cfg,
		hotDir:     cfg.Dir,
		archiveDir: filepath.Join(cfg.Dir, archiveDir),
		lockPath:   filepath.Join(cfg.Dir, lockName),
		logger:     logger.With(slog.String("component", "journal")),
		hub:        cfg.Hub,
		metrics:    newMetrics(cfg.Registerer),
		now:        now,
	}
	if err := os.MkdirAll(j.archiveDir, 0o750); err != nil {
		return nil, fmt.Errorf("create journal dirs: %w", err)
	}
	if err := j.LoadIndex(); err != nil {
		return nil, err
	}
	return j, nil
}

// Dir returns the hot-tier directory.
func (j *Journal) Dir() string { return j.hotDir }

// #endregion constructor

// #region save
// Save writes payload as a new hot cocoon tagged typeTag, inserts it at the
// front of the index and then runs a rotation check. The returned id is the
// cocoon's timestamp.
func (j *Journal) Save(ctx context.Context, payload any, typeTag string) (string, error) {
	ctx, span := tracer.Start(ctx, "journal.Save", trace.WithAttributes(attribute.String("cocoon.type", typeTag)))
	defer span.End()

	id, err := j.save(ctx, payload, typeTag)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("cocoon.id", id))
	return id, nil
}

func (j *Journal) save(ctx context.Context, payload any, typeTag string) (string, error) {
	if !typeTagRe.MatchString(typeTag) {
		return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("%q must match %s", typeTag, typeTagRe)}
	}
	data, err := canonicalize(payload)
	if err != nil {
		return "", err
	}

	unlock, err := j.lock(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	// Another process may have saved or rotated since our last look.
	j.refreshLocked()

	ts := j.nextTimestamp()
	id := ts.Format(tsLayout)
	doc := document{ID: id, Timestamp: id, Type: typeTag, Data: data, Digest: digestOf(data)}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode cocoon: %w", err)
	}

	// 1. Write the file
	path := filepath.Join(j.hotDir, fileName(typeTag, id))
	if err := writeFileAtomic(path, raw); err != nil {
		j.metrics.failures.WithLabelValues("write").Inc()
		return "", fmt.Errorf("write cocoon %s: %w", id, err)
	}

	// 2. Insert into the index
	entry := Entry{ID: id, Timestamp: ts, Type: typeTag, Location: path, Size: int64(len(raw))}
	if st, ok := embeddedState(data); ok {
		entry.HasState = true
		j.state, j.stateAt = st, ts
	}
	j.index = append([]Entry{entry}, j.index...)
	j.metrics.saves.Inc()
	j.hub.Emit("journal", "save", id, map[string]float64{"bytes": float64(len(raw))})

	// 3. Rotation check
	if res := j.rotateLocked(); res.Failed > 0 {
		j.logger.Warn("rotation left records hot", slog.Int("failed", res.Failed))
	}
	j.metrics.hotEntries.Set(float64(j.hotCountLocked()))
	return id, nil
}

// nextTimestamp returns a UTC timestamp strictly after every id this journal
// has issued or loaded.
func (j *Journal) nextTimestamp() time.Time {
	ts := j.now().UTC().Truncate(time.Nanosecond)
	if !ts.After(j.lastTS) {
		ts = j.lastTS.Add(time.Nanosecond)
	}
	j.lastTS = ts
	return ts
}

// #endregion save

// #region load-index
// LoadIndex rebuilds the index from the hot directory and the archive names.
// Hot files that fail to parse or fail their digest are skipped with a warning.
// A hot file whose archived copy already exists with the same digest is the
// leftover of an interrupted rotation; the hot copy is removed and the record
// is indexed once, as archived.
func (j *Journal) LoadIndex() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	hot, cold, err := j.scanTiers()
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(hot)+len(cold))
	skipped := make(map[string]struct{})
	var state Payload
	var stateAt time.Time

	for _, path := range hot {
		raw, err := os.ReadFile(path)
		if err != nil {
			j.logger.Warn("skip unreadable cocoon", slog.String("path", path), slog.Any("error", err))
			skipped[path] = struct{}{}
			continue
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			j.skip(path, err)
			skipped[path] = struct{}{}
			continue
		}
		ts, err := time.Parse(tsLayout, doc.Timestamp)
		if err != nil {
			j.skip(path, err)
			skipped[path] = struct{}{}
			continue
		}
		if coldPath := coldPathFor(j.archiveDir, path); cold[coldPath] {
			if j.finishRelocation(path, coldPath) {
				continue
			}
			delete(cold, coldPath)
		}
		e := Entry{ID: doc.ID, Timestamp: ts, Type: doc.Type, Location: path, Size: int64(len(raw))}
		if st, ok := embeddedState(doc.Data); ok {
			e.HasState = true
			if ts.After(stateAt) {
				state, stateAt = st, ts
			}
		}
		entries = append(entries, e)
	}

	for path := range cold {
		e, ok := entryFromName(path, true)
		if !ok {
			j.logger.Warn("skip unrecognised archive file", slog.String("path", path))
			continue
		}
		entries = append(entries, e)
	}

	sortNewestFirst(entries)

	j.index = entries
	j.skipped = skipped
	j.state, j.stateAt = state, stateAt
	j.bumpLastTS()
	j.metrics.hotEntries.Set(float64(j.hotCountLocked()))
	return nil
}

// refreshLocked requires both journal locks. It rebuilds the index from the
// file names in both tiers so rotation and id assignment account for cocoons
// written or archived by other processes sharing the directory. Entries
// already known keep their metadata; files new to this journal are indexed
// from their names without loading payloads, so HasState and CurrentState
// only reflect them after the next LoadIndex.
func (j *Journal) refreshLocked() {
	hot, cold, err := j.scanTiers()
	if err != nil {
		j.logger.Warn("refresh index", slog.Any("error", err))
		return
	}
	known := make(map[string]Entry, len(j.index))
	for _, e := range j.index {
		known[e.Location] = e
	}

	entries := make([]Entry, 0, len(hot)+len(cold))
	for _, path := range hot {
		if _, bad := j.skipped[path]; bad {
			continue
		}
		if coldPath := coldPathFor(j.archiveDir, path); cold[coldPath] {
			if j.finishRelocation(path, coldPath) {
				continue
			}
			delete(cold, coldPath)
		}
		if e, ok := known[path]; ok {
			entries = append(entries, e)
		} else if e, ok := entryFromName(path, false); ok {
			entries = append(entries, e)
		}
	}
	for path := range cold {
		if e, ok := known[path]; ok && e.Archived {
			entries = append(entries, e)
		} else if e, ok := entryFromName(path, true); ok {
			entries = append(entries, e)
		}
	}

	sortNewestFirst(entries)
	j.index = entries
	j.bumpLastTS()
}

// scanTiers lists hot cocoon paths and the set of archive paths.
func (j *Journal) scanTiers() ([]string, map[string]bool, error) {
	hot, err := filepath.Glob(filepath.Join(j.hotDir, "*"+hotExt))
	if err != nil {
		return nil, nil, fmt.Errorf("scan hot tier: %w", err)
	}
	coldList, err := filepath.Glob(filepath.Join(j.archiveDir, "*"+hotExt+coldExt))
	if err != nil {
		return nil, nil, fmt.Errorf("scan cold tier: %w", err)
	}
	cold := make(map[string]bool, len(coldList))
	for _, p := range coldList {
		cold[p] = true
	}
	return hot, cold, nil
}

// entryFromName builds index metadata from a cocoon file name and its size.
// Directories and names that do not parse are rejected.
func entryFromName(path string, archived bool) (Entry, bool) {
	typeTag, ts, ok := parseFileName(path)
	if !ok {
		return Entry{}, false
	}
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return Entry{}, false
	}
	return Entry{
		ID: ts.Format(tsLayout), Timestamp: ts, Type: typeTag,
		Location: path, Size: fi.Size(), Archived: archived,
	}, true
}

func coldPathFor(archiveDir, hotPath string) string {
	return filepath.Join(archiveDir, filepath.Base(hotPath)+coldExt)
}

func (j *Journal) bumpLastTS() {
	if len(j.index) > 0 && j.index[0].Timestamp.After(j.lastTS) {
		j.lastTS = j.index[0].Timestamp
	}
}

func (j *Journal) skip(path string, err error) {
	kind := "parse"
	if errors.Is(err, ErrIntegrity) {
		kind = "integrity"
	}
	j.metrics.failures.WithLabelValues(kind).Inc()
	j.hub.Emit("journal", "skip", filepath.Base(path), nil)
	j.logger.Warn("skip cocoon", slog.String("path", path), slog.String("kind", kind), slog.Any("error", err))
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(a, b int) bool {
		if !entries[a].Timestamp.Equal(entries[b].Timestamp) {
			return entries[a].Timestamp.After(entries[b].Timestamp)
		}
		return entries[a].ID > entries[b].ID
	})
}

// #endregion load-index

// #region reads
// GetLatest returns up to n of the newest hot records, optionally restricted
// to typeFilter. Payloads are read from disk only for the records returned;
// unreadable or corrupted records are skipped.
func (j *Journal) GetLatest(n int, typeFilter string) []Record {
	if n <= 0 {
		return nil
	}
	out := make([]Record, 0, n)
	for _, e := range j.Index() {
		if len(out) == n {
			break
		}
		if e.Archived || (typeFilter != "" && e.Type != typeFilter) {
			continue
		}
		raw, err := os.ReadFile(e.Location)
		if err != nil {
			j.logger.Warn("skip missing cocoon", slog.String("id", e.ID), slog.Any("error", err))
			continue
		}
		rec, err := parseRecord(raw)
		if err != nil {
			j.skip(e.Location, err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// LoadArchived reads a cold-tier record without moving it back to the hot tier.
// It takes no lock; archive files are only ever created by rename.
func (j *Journal) LoadArchived(id string) (Record, error) {
	var loc string
	for _, e := range j.Index() {
		if e.ID == id && e.Archived {
			loc = e.Location
			break
		}
	}
	if loc == "" {
		return Record{}, fmt.Errorf("%w: archived id %s", ErrNotFound, id)
	}
	raw, err := readArchive(loc)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", id, err)
	}
	return parseRecord(raw)
}

// readArchive returns the decompressed bytes of one cold-tier file.
func readArchive(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return raw, nil
}

func parseRecord(raw []byte) (Record, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return Record{}, err
	}
	return doc.record()
}

// Index returns a copy of the metadata index, newest first.
func (j *Journal) Index() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.index))
	copy(out, j.index)
	return out
}

// CurrentState returns the newest embedded quantum_state snapshot seen in the
// hot tier.
func (j *Journal) CurrentState() (Payload, time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == nil {
		return nil, time.Time{}, false
	}
	return j.state, j.stateAt, true
}

// Stats counts tiers from the index and measures the archive on disk.
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	var s Stats
	for _, e := range j.index {
		if e.Archived {
			s.Cold++
		} else {
			s.Hot++
			s.HotBytes += e.Size
		}
	}
	s.Total = len(j.index)
	s.HasState = j.state != nil
	j.mu.Unlock()

	_ = filepath.WalkDir(j.archiveDir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			s.ArchiveBytes += fi.Size()
		}
		return nil
	})
	return s
}

func (j *Journal) hotCountLocked() int {
	n := 0
	for _, e := range j.index {
		if !e.Archived {
			n++
		}
	}
	return n
}

// #endregion reads

// #region locking
// lock takes the in-process mutex and then the cross-process flock.
func (j *Journal) lock(ctx context.Context) (func(), error) {
	start := time.Now()
	j.mu.Lock()
	f, err := lockFile(ctx, j.lockPath, j.cfg.LockTimeout)
	j.metrics.lockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		j.mu.Unlock()
		if errors.Is(err, ErrJournalBusy) {
			j.metrics.failures.WithLabelValues("busy").Inc()
		}
		return nil, err
	}
	return func() {
		if err := unlockFile(f); err != nil {
			j.logger.Warn("release journal lock", slog.Any("error", err))
		}
		j.mu.Unlock()
	}, nil
}

// #endregion locking

// #region atomic-write
// writeFileAtomic writes data to a sibling temp file, fsyncs it and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return syncDir(filepath.Dir(path))
}

// #endregion atomic-write
