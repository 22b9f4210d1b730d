package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/salahayoub/ballast/pkg/manifest"
	"github.com/salahayoub/ballast/pkg/metadata"
)

// File naming inside the store directory. Generations are zero-padded
// decimals so lexicographic order matches numeric order.
const (
	globalPrefix   = "global-"
	indexPrefix    = "index-"
	manifestPrefix = "manifest-"
	recordSuffix   = ".st"
	tempSuffix     = ".tmp"
	currentFile    = "CURRENT"
)

// FileStore implements Store with one file per generation.
//
// Write discipline: every record is written to a temp file, fsynced, closed,
// atomically renamed into place, and the parent directory is fsynced so the
// rename itself is durable. The commit point for the whole store is the
// rename of the CURRENT pointer file, which names the manifest generation in
// effect.
//
// FileStore is safe for concurrent use; record writes land under unique
// temp names, and a mutex serializes generation allocation and manifest
// commits so the CURRENT pointer is only ever rewritten by one committer.
// Reads go straight to immutable files.
type FileStore struct {
	dir string
	log zerolog.Logger

	mu      sync.Mutex
	nextGen uint64 // next generation number to hand out
}

// NewFileStore opens (creating if needed) a file-backed store rooted at dir.
// Leftover temp files from a previous crash are removed; they were never
// visible as valid generations.
func NewFileStore(dir string, log zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	s := &FileStore{dir: dir, log: log, nextGen: 1}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan store directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, tempSuffix) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				s.log.Warn().Str("file", name).Err(err).Msg("failed to remove stale temp file")
			} else {
				s.log.Debug().Str("file", name).Msg("removed stale temp file")
			}
			continue
		}
		if gen, ok := parseGeneration(name); ok && gen >= s.nextGen {
			s.nextGen = gen + 1
		}
	}

	return s, nil
}

// parseGeneration extracts the generation number from a record file name.
func parseGeneration(name string) (uint64, bool) {
	if !strings.HasSuffix(name, recordSuffix) {
		return 0, false
	}
	trimmed := strings.TrimSuffix(name, recordSuffix)
	i := strings.LastIndexByte(trimmed, '-')
	if i < 0 {
		return 0, false
	}
	gen, err := strconv.ParseUint(trimmed[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

// recordGeneration extracts the generation from a record name that is
// exactly prefix followed by the zero-padded generation and the record
// suffix. Index UUIDs may themselves contain dashes, so a bare prefix match
// would let one index's prune reach into another's records.
func recordGeneration(name, prefix string) (uint64, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	rest := strings.TrimPrefix(name, prefix)
	if !strings.HasSuffix(rest, recordSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(rest, recordSuffix)
	if len(digits) != 20 {
		return 0, false
	}
	gen, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

func globalFileName(gen uint64) string {
	return fmt.Sprintf("%s%020d%s", globalPrefix, gen, recordSuffix)
}

func indexFileName(uuid string, gen uint64) string {
	return fmt.Sprintf("%s%s-%020d%s", indexPrefix, uuid, gen, recordSuffix)
}

func manifestFileName(gen uint64) string {
	return fmt.Sprintf("%s%020d%s", manifestPrefix, gen, recordSuffix)
}

// writeFileSync writes data to name under the store directory using the
// temp-write, fsync, rename, dir-fsync sequence. The record is either fully
// present under its final name or not present at all.
func (s *FileStore) writeFileSync(name string, data []byte) error {
	final := filepath.Join(s.dir, name)
	temp := final + tempSuffix

	f, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(temp)
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(temp)
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(temp)
		return fmt.Errorf("failed to close record: %w", err)
	}
	if err := os.Rename(temp, final); err != nil {
		os.Remove(temp)
		return fmt.Errorf("failed to rename record into place: %w", err)
	}
	return s.syncDir()
}

// syncDir fsyncs the store directory so completed renames survive a crash.
func (s *FileStore) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return fmt.Errorf("failed to open store directory for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync store directory: %w", err)
	}
	return nil
}

// takeGeneration hands out the next generation number.
func (s *FileStore) takeGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.nextGen
	s.nextGen++
	return gen
}

// WriteGlobalMetadata durably stores the global metadata as a new
// generation.
func (s *FileStore) WriteGlobalMetadata(meta metadata.Metadata) (uint64, error) {
	data, err := seal(meta)
	if err != nil {
		return 0, err
	}
	gen := s.takeGeneration()
	if err := s.writeFileSync(globalFileName(gen), data); err != nil {
		return 0, err
	}
	return gen, nil
}

// ReadGlobalMetadata loads a global metadata generation.
func (s *FileStore) ReadGlobalMetadata(generation uint64) (metadata.Metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, globalFileName(generation)))
	if err != nil {
		if os.IsNotExist(err) {
			return metadata.Metadata{}, fmt.Errorf("%w: global generation %d", ErrNotFound, generation)
		}
		return metadata.Metadata{}, fmt.Errorf("failed to read global generation %d: %w", generation, err)
	}
	var meta metadata.Metadata
	if err := unseal(data, &meta); err != nil {
		return metadata.Metadata{}, fmt.Errorf("global generation %d: %w", generation, err)
	}
	if meta.Indices == nil {
		meta.Indices = map[string]metadata.IndexMetadata{}
	}
	return meta, nil
}

// WriteIndexMetadata durably stores one index's metadata as a new
// generation.
func (s *FileStore) WriteIndexMetadata(im metadata.IndexMetadata) (uint64, error) {
	data, err := seal(im)
	if err != nil {
		return 0, err
	}
	gen := s.takeGeneration()
	if err := s.writeFileSync(indexFileName(im.UUID, gen), data); err != nil {
		return 0, err
	}
	return gen, nil
}

// ReadIndexMetadata loads an index metadata generation.
func (s *FileStore) ReadIndexMetadata(uuid string, generation uint64) (metadata.IndexMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFileName(uuid, generation)))
	if err != nil {
		if os.IsNotExist(err) {
			return metadata.IndexMetadata{}, fmt.Errorf("%w: index %s generation %d", ErrNotFound, uuid, generation)
		}
		return metadata.IndexMetadata{}, fmt.Errorf("failed to read index %s generation %d: %w", uuid, generation, err)
	}
	var im metadata.IndexMetadata
	if err := unseal(data, &im); err != nil {
		return metadata.IndexMetadata{}, fmt.Errorf("index %s generation %d: %w", uuid, generation, err)
	}
	return im, nil
}

// LoadManifest returns the manifest named by the CURRENT pointer, or the
// empty manifest if nothing has ever been committed.
func (s *FileStore) LoadManifest() (manifest.Manifest, bool, error) {
	cur, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return manifest.Empty(), false, nil
		}
		return manifest.Manifest{}, false, fmt.Errorf("failed to read current pointer: %w", err)
	}
	name := strings.TrimSpace(string(cur))
	gen, ok := parseGeneration(name)
	if !ok {
		return manifest.Manifest{}, false, fmt.Errorf("%w: current pointer names %q", ErrCorrupted, name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return manifest.Manifest{}, false, fmt.Errorf("%w: manifest generation %d named by current pointer", ErrNotFound, gen)
		}
		return manifest.Manifest{}, false, fmt.Errorf("failed to read manifest generation %d: %w", gen, err)
	}
	var m manifest.Manifest
	if err := unseal(data, &m); err != nil {
		return manifest.Manifest{}, false, fmt.Errorf("manifest generation %d: %w", gen, err)
	}
	if m.IndexGenerations == nil {
		m.IndexGenerations = map[string]uint64{}
	}
	return m, true, nil
}

// CommitManifest writes the candidate manifest as a new generation and then
// atomically swaps the CURRENT pointer to it. Superseded manifest
// generations are pruned opportunistically afterwards.
func (s *FileStore) CommitManifest(m manifest.Manifest) error {
	data, err := seal(m)
	if err != nil {
		return err
	}

	s.mu.Lock()
	gen := s.nextGen
	s.nextGen++
	name := manifestFileName(gen)
	if err := s.writeFileSync(name, data); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to write manifest generation %d: %w", gen, err)
	}
	if err := s.writeFileSync(currentFile, []byte(name+"\n")); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to swap current pointer: %w", err)
	}
	s.mu.Unlock()

	s.pruneRecords(manifestPrefix, gen)
	return nil
}

// PruneGlobalGenerations deletes global generations older than keep.
func (s *FileStore) PruneGlobalGenerations(keep uint64) {
	s.pruneRecords(globalPrefix, keep)
}

// PruneIndexGenerations deletes generations of one index older than keep.
func (s *FileStore) PruneIndexGenerations(uuid string, keep uint64) {
	s.pruneRecords(indexPrefix+uuid+"-", keep)
}

// pruneRecords removes record files named exactly prefix plus a zero-padded
// generation strictly below keep. Failures are logged and ignored.
func (s *FileStore) pruneRecords(prefix string, keep uint64) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn().Err(err).Msg("prune: failed to scan store directory")
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		gen, ok := recordGeneration(name, prefix)
		if !ok || gen >= keep {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.log.Warn().Str("file", name).Err(err).Msg("prune: failed to remove superseded generation")
		}
	}
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Close releases the store. File handles are not held open between
// operations, so this is a no-op kept for Store symmetry with BoltStore.
func (s *FileStore) Close() error {
	return nil
}
