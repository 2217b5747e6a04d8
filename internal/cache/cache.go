// Package cache memoizes validated extraction payloads by content fingerprint.
//
// Entries are immutable: a second Put for the same key with the same payload is a
// no-op, and a Put with a different payload keeps the stored entry and logs a
// consistency warning, since two payloads for one fingerprint can only come from
// a fingerprinting bug.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/geodata-extractor/constants"
)

// Key is the hex SHA-256 fingerprint of (task, template identifier, input text).
type Key string

func (k Key) String() string { return string(k) }

// Short is the 10-char prefix used in log lines.
func (k Key) Short() string {
	if len(k) <= 10 {
		return string(k)
	}
	return string(k[:10])
}

// Fingerprint derives the cache key. Each component is length-prefixed so that
// no two distinct triples can encode to the same byte stream.
func Fingerprint(task constants.Task, templateID, input string) Key {
	h := sha256.New()
	for _, part := range []string{string(task), templateID, input} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write([]byte(part))
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Entry is one memoized result.
type Entry struct {
	Key       Key             `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is the result memoizer injected into the router and the extractor.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, bool, error)
	Put(ctx context.Context, key Key, payload []byte) error
	Close() error
}

// ErrInvalidPayload is returned by Put when the payload is not JSON.
var ErrInvalidPayload = errors.New("cache: payload is not valid JSON")

// compact normalizes insignificant whitespace so equality is about content, not formatting.
func compact(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return buf.Bytes(), nil
}

func warnConflict(logger *slog.Logger, key Key, stored, incoming []byte) {
	logger.Warn("cache.consistency_warning",
		"key", key.Short(),
		"stored_bytes", len(stored),
		"incoming_bytes", len(incoming),
		"action", "kept stored entry",
	)
}
