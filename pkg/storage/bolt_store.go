package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/salahayoub/ballast/pkg/manifest"
	"github.com/salahayoub/ballast/pkg/metadata"
)

// Bucket names for BoltDB storage.
var (
	globalBucket    = []byte("global")
	indicesBucket   = []byte("indices") // holds one nested bucket per index UUID
	manifestsBucket = []byte("manifests")
	pointerBucket   = []byte("pointer")
)

// Key for the current-manifest pointer in the pointer bucket.
var keyCurrentManifest = []byte("current")

// BoltStore implements Store on a BoltDB database. Records keep the same
// checksum envelope as FileStore; generations are big-endian uint64 keys
// allocated with each bucket's sequence counter, so they are monotonic per
// entity. BoltDB fsyncs every write transaction before it returns, and the
// manifest record plus the current pointer are written in one transaction,
// which makes the transaction commit the atomic pointer swap.
//
// BoltStore is safe for concurrent use; BoltDB serializes write
// transactions and gives readers a consistent snapshot.
type BoltStore struct {
	db  *bbolt.DB
	log zerolog.Logger
}

// NewBoltStore opens (creating if needed) a BoltDB-backed store at path.
func NewBoltStore(path string, log zerolog.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{globalBucket, indicesBucket, manifestsBucket, pointerBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db, log: log}, nil
}

// uint64ToBytes encodes a uint64 value to big-endian bytes. Big-endian
// encoding ensures proper lexicographic ordering of keys.
func uint64ToBytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// bytesToUint64 decodes big-endian bytes to a uint64 value.
func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// writeRecord seals v and stores it under a fresh generation in bucket.
func writeRecord(bucket *bbolt.Bucket, v any) (uint64, error) {
	data, err := seal(v)
	if err != nil {
		return 0, err
	}
	gen, err := bucket.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate generation: %w", err)
	}
	if err := bucket.Put(uint64ToBytes(gen), data); err != nil {
		return 0, fmt.Errorf("failed to store record: %w", err)
	}
	return gen, nil
}

// WriteGlobalMetadata durably stores the global metadata as a new
// generation.
func (b *BoltStore) WriteGlobalMetadata(meta metadata.Metadata) (uint64, error) {
	var gen uint64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		var err error
		gen, err = writeRecord(tx.Bucket(globalBucket), meta)
		return err
	})
	if err != nil {
		return 0, err
	}
	return gen, nil
}

// ReadGlobalMetadata loads a global metadata generation.
func (b *BoltStore) ReadGlobalMetadata(generation uint64) (metadata.Metadata, error) {
	var meta metadata.Metadata
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(globalBucket).Get(uint64ToBytes(generation))
		if data == nil {
			return fmt.Errorf("%w: global generation %d", ErrNotFound, generation)
		}
		if err := unseal(data, &meta); err != nil {
			return fmt.Errorf("global generation %d: %w", generation, err)
		}
		return nil
	})
	if err != nil {
		return metadata.Metadata{}, err
	}
	if meta.Indices == nil {
		meta.Indices = map[string]metadata.IndexMetadata{}
	}
	return meta, nil
}

// WriteIndexMetadata durably stores one index's metadata as a new
// generation in that index's nested bucket.
func (b *BoltStore) WriteIndexMetadata(im metadata.IndexMetadata) (uint64, error) {
	var gen uint64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(indicesBucket).CreateBucketIfNotExists([]byte(im.UUID))
		if err != nil {
			return fmt.Errorf("failed to create index bucket %s: %w", im.UUID, err)
		}
		gen, err = writeRecord(bucket, im)
		return err
	})
	if err != nil {
		return 0, err
	}
	return gen, nil
}

// ReadIndexMetadata loads an index metadata generation.
func (b *BoltStore) ReadIndexMetadata(uuid string, generation uint64) (metadata.IndexMetadata, error) {
	var im metadata.IndexMetadata
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(indicesBucket).Bucket([]byte(uuid))
		if bucket == nil {
			return fmt.Errorf("%w: index %s generation %d", ErrNotFound, uuid, generation)
		}
		data := bucket.Get(uint64ToBytes(generation))
		if data == nil {
			return fmt.Errorf("%w: index %s generation %d", ErrNotFound, uuid, generation)
		}
		if err := unseal(data, &im); err != nil {
			return fmt.Errorf("index %s generation %d: %w", uuid, generation, err)
		}
		return nil
	})
	if err != nil {
		return metadata.IndexMetadata{}, err
	}
	return im, nil
}

// LoadManifest returns the manifest named by the current pointer, or the
// empty manifest if nothing has ever been committed.
func (b *BoltStore) LoadManifest() (manifest.Manifest, bool, error) {
	var (
		m     manifest.Manifest
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		ptr := tx.Bucket(pointerBucket).Get(keyCurrentManifest)
		if ptr == nil {
			m = manifest.Empty()
			return nil
		}
		gen := bytesToUint64(ptr)
		data := tx.Bucket(manifestsBucket).Get(uint64ToBytes(gen))
		if data == nil {
			return fmt.Errorf("%w: manifest generation %d named by current pointer", ErrNotFound, gen)
		}
		if err := unseal(data, &m); err != nil {
			return fmt.Errorf("manifest generation %d: %w", gen, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return manifest.Manifest{}, false, err
	}
	if m.IndexGenerations == nil {
		m.IndexGenerations = map[string]uint64{}
	}
	return m, found, nil
}

// CommitManifest writes the candidate manifest and swaps the current
// pointer to it within a single write transaction; the transaction commit
// is the atomic durability point. Superseded manifest generations are
// pruned opportunistically afterwards.
func (b *BoltStore) CommitManifest(m manifest.Manifest) error {
	var gen uint64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		var err error
		gen, err = writeRecord(tx.Bucket(manifestsBucket), m)
		if err != nil {
			return err
		}
		if err := tx.Bucket(pointerBucket).Put(keyCurrentManifest, uint64ToBytes(gen)); err != nil {
			return fmt.Errorf("failed to swap current pointer: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit manifest: %w", err)
	}
	b.pruneBucketRecords(manifestsBucket, nil, gen)
	return nil
}

// PruneGlobalGenerations deletes global generations older than keep.
func (b *BoltStore) PruneGlobalGenerations(keep uint64) {
	b.pruneBucketRecords(globalBucket, nil, keep)
}

// PruneIndexGenerations deletes generations of one index older than keep.
func (b *BoltStore) PruneIndexGenerations(uuid string, keep uint64) {
	b.pruneBucketRecords(indicesBucket, []byte(uuid), keep)
}

// pruneBucketRecords removes records with a generation strictly below keep
// from the named bucket (optionally a nested bucket). Failures are logged
// and ignored.
func (b *BoltStore) pruneBucketRecords(name, nested []byte, keep uint64) {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(name)
		if nested != nil {
			bucket = bucket.Bucket(nested)
		}
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		for key, _ := cursor.First(); key != nil && bytesToUint64(key) < keep; key, _ = cursor.Next() {
			if err := cursor.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.log.Warn().Str("bucket", string(name)).Err(err).Msg("prune: failed to remove superseded generations")
	}
}

// Path returns the database file path.
func (b *BoltStore) Path() string {
	return b.db.Path()
}

// Close releases all database resources.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
