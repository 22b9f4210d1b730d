// Package storage provides the on-disk generation store and the manifest
// commit protocol behind the persisted cluster state.
//
// Every metadata blob is written as a new, immutable, generation-numbered
// record; nothing is ever mutated in place. A commit writes the manifest as
// its own generation-numbered record and then swaps a single atomic pointer
// to it, so a crash at any point leaves either the previous manifest or the
// new one fully valid — never a manifest referencing a missing generation.
//
// Two backends implement the same contract: FileStore (one checksum-framed
// file per generation plus a CURRENT pointer file) and BoltStore (the same
// records inside a BoltDB database, where the write transaction itself is
// the atomic commit point).
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/salahayoub/ballast/pkg/manifest"
	"github.com/salahayoub/ballast/pkg/metadata"
)

// Sentinel errors. Using sentinel errors enables callers to use errors.Is()
// for reliable error handling even when errors are wrapped.
var (
	// ErrNotFound is returned when a referenced generation does not exist.
	// A manifest is only advanced after its generations are durable, so
	// hitting this during normal operation indicates a bug or corruption.
	ErrNotFound = errors.New("generation not found")
	// ErrCorrupted is returned when stored bytes fail integrity
	// verification. It is always surfaced, never repaired silently.
	ErrCorrupted = errors.New("stored data corrupted")
)

// Store is the durable generation store plus manifest commit protocol.
//
// Writes are fully durable before returning: a reader either sees a
// complete, verifiable blob or ErrNotFound, never a truncated one.
// Generations increase monotonically per entity and are never reused.
//
// Prune methods are best-effort: they delete generations strictly older
// than keep, never keep itself, and swallow (log) failures since pruning
// does not affect correctness.
type Store interface {
	// WriteGlobalMetadata durably stores the global portion of the
	// metadata (settings + coordination; indices are excluded) and
	// returns its new generation.
	WriteGlobalMetadata(meta metadata.Metadata) (uint64, error)

	// ReadGlobalMetadata loads a previously written global generation.
	ReadGlobalMetadata(generation uint64) (metadata.Metadata, error)

	// WriteIndexMetadata durably stores one index's metadata and returns
	// its new generation, scoped to the index UUID.
	WriteIndexMetadata(im metadata.IndexMetadata) (uint64, error)

	// ReadIndexMetadata loads a previously written index generation.
	ReadIndexMetadata(uuid string, generation uint64) (metadata.IndexMetadata, error)

	// LoadManifest returns the currently committed manifest. The second
	// return value is false if nothing has ever been committed, in which
	// case the empty manifest is returned.
	LoadManifest() (manifest.Manifest, bool, error)

	// CommitManifest durably writes the candidate manifest and atomically
	// makes it current. The caller must have durably written every
	// generation the candidate references. On error the previously
	// committed manifest remains current.
	CommitManifest(m manifest.Manifest) error

	// PruneGlobalGenerations deletes global generations older than keep.
	PruneGlobalGenerations(keep uint64)

	// PruneIndexGenerations deletes generations of one index older than
	// keep.
	PruneIndexGenerations(uuid string, keep uint64)

	// Close releases the store's resources.
	Close() error
}

// envelope frames every stored record with an integrity checksum over the
// raw payload bytes. The payload is base64-encoded by encoding/json, which
// keeps the checksummed bytes byte-identical across a round trip.
type envelope struct {
	Checksum string `json:"checksum"`
	Payload  []byte `json:"payload"`
}

// checksumOf returns the sha256 checksum of b in the textual form stored on
// disk.
func checksumOf(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// seal serializes v and wraps it in a checksum envelope.
func seal(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}
	return json.Marshal(envelope{
		Checksum: checksumOf(payload),
		Payload:  payload,
	})
}

// unseal verifies the envelope checksum and deserializes the payload into v.
// Any framing or verification failure is reported as ErrCorrupted.
func unseal(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty record", ErrCorrupted)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: unreadable envelope: %v", ErrCorrupted, err)
	}
	if env.Checksum != checksumOf(env.Payload) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupted)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: unreadable payload: %v", ErrCorrupted, err)
	}
	return nil
}
