package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/salahayoub/ballast/pkg/manifest"
)

func newFileStore(t *testing.T, dir string) *FileStore {
	t.Helper()
	s, err := NewFileStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}
	return s
}

// TestCorruptedRecordReturnsErrCorrupted verifies that flipped bytes in a
// stored generation surface as ErrCorrupted, never as silently bad data.
func TestCorruptedRecordReturnsErrCorrupted(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(t, dir)

	gen, err := store.WriteGlobalMetadata(testGlobalMetadata(t, 3))
	if err != nil {
		t.Fatalf("WriteGlobalMetadata returned error: %v", err)
	}

	path := filepath.Join(dir, globalFileName(gen))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read record file: %v", err)
	}
	data[len(data)/2] ^= 0xFF
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("Failed to corrupt record file: %v", err)
	}

	if _, err := store.ReadGlobalMetadata(gen); !errors.Is(err, ErrCorrupted) {
		t.Errorf("Expected ErrCorrupted for a flipped byte, got %v", err)
	}
}

// TestTruncatedRecordReturnsErrCorrupted verifies that a torn write is never
// visible as a valid generation.
func TestTruncatedRecordReturnsErrCorrupted(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(t, dir)

	gen, err := store.WriteGlobalMetadata(testGlobalMetadata(t, 3))
	if err != nil {
		t.Fatalf("WriteGlobalMetadata returned error: %v", err)
	}

	path := filepath.Join(dir, globalFileName(gen))
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat record file: %v", err)
	}
	if err := os.Truncate(path, info.Size()/2); err != nil {
		t.Fatalf("Failed to truncate record file: %v", err)
	}

	if _, err := store.ReadGlobalMetadata(gen); !errors.Is(err, ErrCorrupted) {
		t.Errorf("Expected ErrCorrupted for a truncated record, got %v", err)
	}
}

// TestStaleTempFilesRemovedOnOpen verifies that temp files left by a crash
// mid-write are cleaned up and never treated as generations.
func TestStaleTempFilesRemovedOnOpen(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, globalFileName(9)+tempSuffix)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(stale, []byte("partial"), 0600); err != nil {
		t.Fatalf("Failed to plant stale temp file: %v", err)
	}

	store := newFileStore(t, dir)
	defer store.Close()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("Expected stale temp file to be removed at open")
	}
	if _, err := store.ReadGlobalMetadata(9); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected the interrupted write to be invisible, got %v", err)
	}
}

// TestCrashBeforePointerSwapKeepsPreviousManifest simulates a crash between
// writing a new manifest generation and swapping CURRENT: the previous
// manifest must stay authoritative.
func TestCrashBeforePointerSwapKeepsPreviousManifest(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(t, dir)

	committed := manifest.Manifest{CurrentTerm: 5, IndexGenerations: map[string]uint64{}}
	if err := store.CommitManifest(committed); err != nil {
		t.Fatalf("CommitManifest returned error: %v", err)
	}

	// Plant an orphan manifest generation that CURRENT does not name,
	// as a crash between the manifest write and the pointer swap would.
	orphan, err := seal(manifest.Manifest{CurrentTerm: 99, IndexGenerations: map[string]uint64{}})
	if err != nil {
		t.Fatalf("Failed to seal orphan manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFileName(999)), orphan, 0600); err != nil {
		t.Fatalf("Failed to plant orphan manifest: %v", err)
	}

	reopened := newFileStore(t, dir)
	got, found, err := reopened.LoadManifest()
	if err != nil {
		t.Fatalf("LoadManifest returned error: %v", err)
	}
	if !found {
		t.Fatalf("Expected a committed manifest to be found")
	}
	if got.CurrentTerm != 5 {
		t.Errorf("Expected the previously committed manifest (term 5), got term %d", got.CurrentTerm)
	}
}

// TestCurrentPointerToMissingManifestFailsLoudly verifies that a CURRENT
// pointer naming a missing manifest is surfaced as ErrNotFound rather than
// silently reset.
func TestCurrentPointerToMissingManifestFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(t, dir)

	if err := store.CommitManifest(manifest.Manifest{CurrentTerm: 1, IndexGenerations: map[string]uint64{}}); err != nil {
		t.Fatalf("CommitManifest returned error: %v", err)
	}
	cur, err := os.ReadFile(filepath.Join(dir, currentFile))
	if err != nil {
		t.Fatalf("Failed to read CURRENT: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, string(cur[:len(cur)-1]))); err != nil {
		t.Fatalf("Failed to remove manifest file: %v", err)
	}

	if _, _, err := store.LoadManifest(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a dangling CURRENT pointer, got %v", err)
	}
}

// TestReopenContinuesGenerationNumbering verifies that generation numbers
// never regress across restarts.
func TestReopenContinuesGenerationNumbering(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(t, dir)

	first, err := store.WriteGlobalMetadata(testGlobalMetadata(t, 1))
	if err != nil {
		t.Fatalf("WriteGlobalMetadata returned error: %v", err)
	}

	reopened := newFileStore(t, dir)
	second, err := reopened.WriteGlobalMetadata(testGlobalMetadata(t, 2))
	if err != nil {
		t.Fatalf("WriteGlobalMetadata returned error: %v", err)
	}
	if second <= first {
		t.Errorf("Expected generation numbering to continue (%d <= %d)", second, first)
	}
}

// TestPruneIndexUnaffectedByDashedUUIDPrefix verifies that pruning one index
// never removes records of another index whose UUID merely extends the first
// with a dash-separated suffix. File names embed the UUID, so matching must
// be exact, not a prefix check.
func TestPruneIndexUnaffectedByDashedUUIDPrefix(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(t, dir)

	long := testIndexMetadata(t, "long", "a-1", 1, 1)
	short := testIndexMetadata(t, "short", "a", 1, 1)

	genLong, err := store.WriteIndexMetadata(long)
	if err != nil {
		t.Fatalf("WriteIndexMetadata returned error: %v", err)
	}
	genShort, err := store.WriteIndexMetadata(short)
	if err != nil {
		t.Fatalf("WriteIndexMetadata returned error: %v", err)
	}

	store.PruneIndexGenerations("a", genShort)

	got, err := store.ReadIndexMetadata("a-1", genLong)
	if err != nil {
		t.Fatalf("Expected index a-1 to survive pruning index a, got %v", err)
	}
	if !got.Equal(long) {
		t.Errorf("Expected index a-1 to round-trip after pruning index a")
	}
	if _, err := store.ReadIndexMetadata("a", genShort); err != nil {
		t.Errorf("Expected the kept generation of index a to remain, got %v", err)
	}
}

// TestConcurrentManifestCommits verifies that direct concurrent commits do
// not collide on the CURRENT temp file and leave a loadable manifest behind.
func TestConcurrentManifestCommits(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(t, dir)

	const committers = 8
	errs := make([]error, committers)
	var wg sync.WaitGroup
	for i := 0; i < committers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := manifest.Manifest{CurrentTerm: uint64(i + 1), IndexGenerations: map[string]uint64{}}
			errs[i] = store.CommitManifest(m)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("CommitManifest %d returned error: %v", i+1, err)
		}
	}
	got, found, err := store.LoadManifest()
	if err != nil {
		t.Fatalf("LoadManifest returned error: %v", err)
	}
	if !found {
		t.Fatalf("Expected a committed manifest to be found")
	}
	if got.CurrentTerm < 1 || got.CurrentTerm > committers {
		t.Errorf("Expected the current manifest to be one of the committed ones, got term %d", got.CurrentTerm)
	}
}

// TestCommitPrunesSupersededManifests verifies that only the current
// manifest generation survives repeated commits.
func TestCommitPrunesSupersededManifests(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(t, dir)

	for term := uint64(1); term <= 3; term++ {
		if err := store.CommitManifest(manifest.Manifest{CurrentTerm: term, IndexGenerations: map[string]uint64{}}); err != nil {
			t.Fatalf("CommitManifest returned error: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to scan directory: %v", err)
	}
	manifests := 0
	for _, entry := range entries {
		if len(entry.Name()) > len(manifestPrefix) && entry.Name()[:len(manifestPrefix)] == manifestPrefix {
			manifests++
		}
	}
	if manifests != 1 {
		t.Errorf("Expected exactly one manifest file after pruning, got %d", manifests)
	}
}
