// Package audit is the append-only, redaction-aware record of every
// patient-data access and crisis action. Entries are hash-chained so
// tampering with any historical record breaks verification of everything
// after it. Entries never contain raw identifying data; callers pass
// identifiers through Mask first (the recorder re-masks defensively).
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is a single immutable audit record.
type Entry struct {
	EntryID      string            `json:"entry_id"`
	Sequence     uint64            `json:"sequence"`
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Subject      string            `json:"subject"` // always a masked identifier
	Metadata     map[string]string `json:"metadata,omitempty"`
	PreviousHash string            `json:"previous_hash"`
	EntryHash    string            `json:"entry_hash"`
}

// Clock provides the recorder's time source; injectable for tests.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Recorder is an append-only hash-chained audit log. Record never returns
// data, only persists it; reads are limited to chain verification and
// counting.
type Recorder struct {
	mu       sync.Mutex
	entries  []Entry
	sequence uint64
	head     string
	sink     io.Writer
	clock    Clock
}

// NewRecorder creates a Recorder. sink receives one JSON line per entry and
// may be nil; clock nil means wall clock.
func NewRecorder(sink io.Writer, clock Clock) *Recorder {
	if clock == nil {
		clock = wallClock{}
	}
	return &Recorder{
		entries: make([]Entry, 0),
		head:    "genesis",
		sink:    sink,
		clock:   clock,
	}
}

// Record appends one audit entry. subject must already be masked; Record
// masks it again if it slipped through raw (a full UUID or bare number is
// never persisted verbatim).
func (r *Recorder) Record(action, subject string, metadata map[string]string) error {
	if looksLikeUUID(subject) || allDigits(subject) {
		subject = Mask(subject)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	entry := Entry{
		EntryID:      uuid.New().String(),
		Sequence:     r.sequence,
		Timestamp:    r.clock.Now().UTC(),
		Action:       action,
		Subject:      subject,
		Metadata:     metadata,
		PreviousHash: r.head,
	}

	hash, err := computeEntryHash(&entry)
	if err != nil {
		return fmt.Errorf("failed to hash audit entry: %w", err)
	}
	entry.EntryHash = hash

	r.entries = append(r.entries, entry)
	r.head = hash

	if r.sink != nil {
		line, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if _, err := r.sink.Write(append(append([]byte("AUDIT: "), line...), '\n')); err != nil {
			return fmt.Errorf("failed to write audit entry: %w", err)
		}
	}
	return nil
}

// Len returns the number of recorded entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// VerifyChain checks that every entry's hash matches its content and links
// to its predecessor.
func (r *Recorder) VerifyChain() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := "genesis"
	for i := range r.entries {
		e := r.entries[i]
		if e.PreviousHash != prev {
			return false, fmt.Errorf("chain broken at sequence %d: previous hash mismatch", e.Sequence)
		}
		computed, err := computeEntryHash(&e)
		if err != nil {
			return false, fmt.Errorf("failed to recompute hash at sequence %d: %w", e.Sequence, err)
		}
		if computed != e.EntryHash {
			return false, fmt.Errorf("integrity failure at sequence %d", e.Sequence)
		}
		prev = e.EntryHash
	}
	return true, nil
}

// computeEntryHash hashes the entry fields, excluding EntryHash itself.
// json.Marshal of a map sorts keys, which keeps the digest stable.
func computeEntryHash(e *Entry) (string, error) {
	data := map[string]interface{}{
		"entry_id":      e.EntryID,
		"sequence":      e.Sequence,
		"timestamp":     e.Timestamp.Format(time.RFC3339Nano),
		"action":        e.Action,
		"subject":       e.Subject,
		"metadata":      e.Metadata,
		"previous_hash": e.PreviousHash,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(bytes)
	return hex.EncodeToString(sum[:]), nil
}
