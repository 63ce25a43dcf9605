package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	hotExt      = ".cocoon"
	coldExt     = ".gz"
	archiveDir  = "archive"
	lockName    = ".journal.lock"
	nameSep     = "_cocoon_"
	tsLayout    = "20060102T150405.000000000Z"
	digestLabel = "cocoon/v1"
)

var typeTagRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// document is the on-disk shape of one cocoon file.
type document struct {
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Digest    string          `json:"digest"`
}

// canonicalize re-encodes payload through a generic JSON value so the stored
// bytes do not depend on struct field order in the caller's types.
func canonicalize(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{Field: "payload", Reason: err.Error()}
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, &ValidationError{Field: "payload", Reason: err.Error()}
	}
	if _, ok := generic.(map[string]any); !ok {
		return nil, &ValidationError{Field: "payload", Reason: "must encode to a JSON object"}
	}
	return json.Marshal(generic)
}

func digestOf(data []byte) string {
	h := sha256.New()
	h.Write([]byte(digestLabel))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// decodeDocument parses raw file bytes and verifies the payload digest.
func decodeDocument(raw []byte) (document, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}, fmt.Errorf("parse cocoon: %w", err)
	}
	if doc.ID == "" || doc.Timestamp == "" || len(doc.Data) == 0 {
		return document{}, fmt.Errorf("parse cocoon: missing id, timestamp or data")
	}
	if got := digestOf(doc.Data); got != doc.Digest {
		return document{}, fmt.Errorf("%w: id %s", ErrIntegrity, doc.ID)
	}
	return doc, nil
}

func (d document) record() (Record, error) {
	ts, err := time.Parse(tsLayout, d.Timestamp)
	if err != nil {
		return Record{}, fmt.Errorf("parse timestamp %q: %w", d.Timestamp, err)
	}
	var data Payload
	if err := json.Unmarshal(d.Data, &data); err != nil {
		return Record{}, fmt.Errorf("decode payload %s: %w", d.ID, err)
	}
	return Record{ID: d.ID, Timestamp: ts, Type: d.Type, Data: data, Digest: d.Digest}, nil
}

// embeddedState returns the quantum_state object in data, if present.
func embeddedState(data json.RawMessage) (Payload, bool) {
	var probe struct {
		State Payload `json:"quantum_state"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.State == nil {
		return nil, false
	}
	return probe.State, true
}

func fileName(typeTag, ts string) string {
	return typeTag + nameSep + ts + hotExt
}

// parseFileName splits a hot or cold file name into its type tag and timestamp.
func parseFileName(name string) (typeTag string, ts time.Time, ok bool) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, coldExt)
	if !strings.HasSuffix(base, hotExt) {
		return "", time.Time{}, false
	}
	base = strings.TrimSuffix(base, hotExt)
	i := strings.LastIndex(base, nameSep)
	if i <= 0 {
		return "", time.Time{}, false
	}
	typeTag = base[:i]
	ts, err := time.Parse(tsLayout, base[i+len(nameSep):])
	if err != nil {
		return "", time.Time{}, false
	}
	return typeTag, ts, true
}
