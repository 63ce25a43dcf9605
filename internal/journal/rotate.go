package journal

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
)

// #region rotate
// Rotate moves every hot cocoon beyond the newest HotRetention into the cold
// tier. It is a no-op when nothing is eligible.
func (j *Journal) Rotate(ctx context.Context) (RotateResult, error) {
	ctx, span := tracer.Start(ctx, "journal.Rotate")
	defer span.End()

	unlock, err := j.lock(ctx)
	if err != nil {
		span.RecordError(err)
		return RotateResult{}, err
	}
	defer unlock()

	j.refreshLocked()
	res := j.rotateLocked()
	span.SetAttributes(attribute.Int("cocoon.archived", res.Archived), attribute.Int("cocoon.failed", res.Failed))
	j.metrics.hotEntries.Set(float64(j.hotCountLocked()))
	return res, nil
}

// rotateLocked requires both journal locks. Each eligible record is compressed,
// confirmed on disk, and only then removed from the hot tier. A record that
// fails twice stays hot and does not stop the pass.
func (j *Journal) rotateLocked() RotateResult {
	var res RotateResult
	hot := 0
	for i := range j.index {
		e := &j.index[i]
		if e.Archived {
			continue
		}
		hot++
		if hot <= j.cfg.HotRetention {
			continue
		}

		dst, size, err := j.archive(*e)
		if err != nil {
			j.logger.Warn("archive cocoon failed, retrying", slog.String("id", e.ID), slog.Any("error", err))
			dst, size, err = j.archive(*e)
		}
		if err != nil {
			res.Failed++
			j.metrics.failures.WithLabelValues("archive").Inc()
			j.logger.Error("archive cocoon failed", slog.String("id", e.ID), slog.Any("error", err))
			continue
		}
		e.Archived, e.Location, e.Size = true, dst, size
		res.Archived++
	}
	if res.Archived > 0 {
		j.metrics.rotations.Inc()
		j.metrics.archived.Add(float64(res.Archived))
		j.hub.Emit("journal", "rotate", "", map[string]float64{
			"archived": float64(res.Archived),
			"failed":   float64(res.Failed),
		})
		j.logger.Info("rotated cocoons", slog.Int("archived", res.Archived), slog.Int("failed", res.Failed))
	}
	return res
}

// archive compresses one hot record into the archive directory and removes
// the hot copy once the compressed file is durable.
func (j *Journal) archive(e Entry) (string, int64, error) {
	raw, err := os.ReadFile(e.Location)
	if err != nil {
		return "", 0, fmt.Errorf("read hot copy: %w", err)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, j.cfg.CompressionLevel)
	if err != nil {
		return "", 0, fmt.Errorf("gzip writer: %w", err)
	}
	zw.Name = filepath.Base(e.Location)
	if _, err := zw.Write(raw); err != nil {
		return "", 0, fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", 0, fmt.Errorf("finish gzip: %w", err)
	}

	dst := filepath.Join(j.archiveDir, filepath.Base(e.Location)+coldExt)
	if err := writeFileAtomic(dst, buf.Bytes()); err != nil {
		return "", 0, fmt.Errorf("write archive: %w", err)
	}
	fi, err := os.Stat(dst)
	if err != nil || fi.Size() != int64(buf.Len()) {
		return "", 0, fmt.Errorf("confirm archive %s: size mismatch or %v", dst, err)
	}
	if err := os.Remove(e.Location); err != nil && !os.IsNotExist(err) {
		return "", 0, fmt.Errorf("remove hot copy: %w", err)
	}
	return dst, fi.Size(), nil
}

// finishRelocation completes a rotation that stopped between writing the
// archive and removing the hot copy. It reports true when the archive holds
// the same record and the hot copy is gone; otherwise the hot copy stays
// authoritative and the archive is rewritten by the next rotation.
func (j *Journal) finishRelocation(hotPath, coldPath string) bool {
	raw, err := os.ReadFile(hotPath)
	if err != nil {
		return os.IsNotExist(err)
	}
	hotDoc, err := decodeDocument(raw)
	if err != nil {
		return false
	}
	packed, err := readArchive(coldPath)
	if err != nil {
		j.logger.Warn("archive copy unreadable, keeping hot copy", slog.String("path", coldPath), slog.Any("error", err))
		return false
	}
	coldDoc, err := decodeDocument(packed)
	if err != nil || coldDoc.Digest != hotDoc.Digest {
		j.logger.Warn("archive copy differs, keeping hot copy", slog.String("path", coldPath), slog.Any("error", err))
		return false
	}
	if err := os.Remove(hotPath); err != nil && !os.IsNotExist(err) {
		j.logger.Warn("remove relocated hot copy", slog.String("path", hotPath), slog.Any("error", err))
		return false
	}
	j.hub.Emit("journal", "recover", hotDoc.ID, nil)
	j.logger.Info("finished interrupted archive", slog.String("id", hotDoc.ID))
	return true
}

// #endregion rotate
