// Package state exposes the persisted cluster state to the consensus layer.
//
// PersistedState is the single owner of a node's durable term and last
// accepted cluster state. Every value it returns reflects a successfully
// committed manifest: setters write changed metadata blobs through the
// generation store, commit a new manifest, and only then swap the in-memory
// cache. A failed commit leaves both disk and cache exactly as they were.
//
// # Thread Safety Guarantees
//
// The consensus layer is expected to serialize mutating calls; PersistedState
// nevertheless guards the cache with a RWMutex so concurrent readers never
// observe a half-updated state. The cached ClusterState is an immutable
// value replaced wholesale on commit, never mutated field by field.
package state

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/salahayoub/ballast/pkg/manifest"
	"github.com/salahayoub/ballast/pkg/metadata"
	"github.com/salahayoub/ballast/pkg/storage"
)

// Updater adjusts a freshly loaded cluster state before it is first exposed,
// typically to attach runtime-only fields such as the local node identity.
// It must be pure; its output is never persisted.
type Updater func(metadata.ClusterState) metadata.ClusterState

type options struct {
	log         zerolog.Logger
	clusterName string
	updater     Updater
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClusterName sets the cluster name applied to reconstructed states.
// The name is runtime configuration, not persisted state.
func WithClusterName(name string) Option {
	return func(o *options) { o.clusterName = name }
}

// WithStateUpdater sets the hook applied to the loaded state before it is
// exposed via LastAcceptedState.
func WithStateUpdater(u Updater) Option {
	return func(o *options) { o.updater = u }
}

// PersistedState is the durable state store façade handed to the consensus
// layer.
type PersistedState struct {
	store storage.Store
	log   zerolog.Logger

	mu           sync.RWMutex
	man          manifest.Manifest
	currentTerm  uint64
	lastAccepted metadata.ClusterState
}

// Open loads the latest committed manifest from the store, reconstructs the
// last accepted cluster state from the generations it references, applies
// the state updater, and returns a ready façade. A store that has never
// been written yields term 0, state version 0, and empty metadata.
func Open(store storage.Store, opts ...Option) (*PersistedState, error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	man, found, err := store.LoadManifest()
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	meta := metadata.EmptyMetadata()
	if man.GlobalGeneration > 0 {
		meta, err = store.ReadGlobalMetadata(man.GlobalGeneration)
		if err != nil {
			return nil, fmt.Errorf("failed to load global metadata: %w", err)
		}
	}
	builder := metadata.MetadataBuilderFrom(meta)
	for uuid, gen := range man.IndexGenerations {
		im, err := store.ReadIndexMetadata(uuid, gen)
		if err != nil {
			return nil, fmt.Errorf("failed to load index %s: %w", uuid, err)
		}
		builder.Put(im)
	}
	meta, err = builder.Build()
	if err != nil {
		return nil, fmt.Errorf("loaded metadata is inconsistent: %w", err)
	}

	loaded := metadata.NewClusterStateBuilder(o.clusterName).
		Version(man.ClusterStateVersion).
		Metadata(meta).
		Build()
	if o.updater != nil {
		loaded = o.updater(loaded)
	}

	o.log.Info().
		Bool("recovered", found).
		Uint64("term", man.CurrentTerm).
		Uint64("version", man.ClusterStateVersion).
		Int("indices", len(man.IndexGenerations)).
		Msg("loaded persisted state")

	return &PersistedState{
		store:        store,
		log:          o.log,
		man:          man,
		currentTerm:  man.CurrentTerm,
		lastAccepted: loaded,
	}, nil
}

// CurrentTerm returns the last successfully committed term.
func (p *PersistedState) CurrentTerm() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentTerm
}

// LastAcceptedState returns the last successfully committed accepted state.
func (p *PersistedState) LastAcceptedState() metadata.ClusterState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastAccepted
}

// SetCurrentTerm persists term as the node's current term without touching
// the last accepted state. Monotonicity is deliberately not enforced here;
// that policy belongs to the consensus layer, and the store faithfully
// persists whatever it is given. Only the manifest changes, so no metadata
// blobs are rewritten.
func (p *PersistedState) SetCurrentTerm(term uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidate := p.man.WithCurrentTerm(term)
	if err := p.store.CommitManifest(candidate); err != nil {
		return fmt.Errorf("failed to persist term %d: %w", term, err)
	}
	p.man = candidate
	p.currentTerm = term
	return nil
}

// SetLastAcceptedState persists s as the last accepted cluster state.
// Indices are diffed against the cached state by UUID and version, and only
// new or changed ones are rewritten; the global metadata blob is always
// rewritten since coordination metadata changes on essentially every
// accepted state. The current term is never altered by this call.
func (p *PersistedState) SetLastAcceptedState(s metadata.ClusterState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.persistState(s)
}

// MarkLastAcceptedConfigAsCommitted records that the last accepted voting
// configuration has achieved quorum commitment. It is idempotent: when the
// committed configuration already equals the accepted one, no write is
// performed.
func (p *PersistedState) MarkLastAcceptedConfigAsCommitted() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	coord := p.lastAccepted.Metadata.Coordination
	if coord.LastCommittedConfiguration.Equal(coord.LastAcceptedConfiguration) {
		return nil
	}

	newCoord, err := metadata.CoordinationMetadataBuilderFrom(coord).
		LastCommittedConfiguration(coord.LastAcceptedConfiguration).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build committed coordination metadata: %w", err)
	}
	newMeta, err := metadata.MetadataBuilderFrom(p.lastAccepted.Metadata).
		Coordination(newCoord).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build committed metadata: %w", err)
	}
	committed := metadata.ClusterStateBuilderFrom(p.lastAccepted).
		Metadata(newMeta).
		Build()

	// Indices are untouched, so persistState reuses their generations and
	// only the global blob and manifest are written.
	return p.persistState(committed)
}

// persistState implements the commit path shared by SetLastAcceptedState and
// MarkLastAcceptedConfigAsCommitted. Caller holds the write lock.
func (p *PersistedState) persistState(s metadata.ClusterState) error {
	candidate := manifest.Manifest{
		CurrentTerm:         p.man.CurrentTerm,
		ClusterStateVersion: s.Version,
		IndexGenerations:    make(map[string]uint64, len(s.Metadata.Indices)),
	}

	for _, im := range s.Metadata.Indices {
		prev, havePrev := p.lastAccepted.Metadata.IndexByUUID(im.UUID)
		prevGen, haveGen := p.man.IndexGeneration(im.UUID)
		if havePrev && haveGen && prev.Version == im.Version {
			candidate.IndexGenerations[im.UUID] = prevGen
			continue
		}
		gen, err := p.store.WriteIndexMetadata(im)
		if err != nil {
			return fmt.Errorf("failed to persist index %q: %w", im.Index, err)
		}
		candidate.IndexGenerations[im.UUID] = gen
	}

	globalGen, err := p.store.WriteGlobalMetadata(s.Metadata)
	if err != nil {
		return fmt.Errorf("failed to persist global metadata: %w", err)
	}
	candidate.GlobalGeneration = globalGen

	if err := p.store.CommitManifest(candidate); err != nil {
		return fmt.Errorf("failed to commit manifest: %w", err)
	}

	p.man = candidate
	p.lastAccepted = s

	// Superseded generations are no longer referenced; pruning is
	// best-effort and does not affect correctness.
	p.store.PruneGlobalGenerations(candidate.GlobalGeneration)
	for uuid, gen := range candidate.IndexGenerations {
		p.store.PruneIndexGenerations(uuid, gen)
	}
	return nil
}

// Manifest returns the currently committed manifest.
func (p *PersistedState) Manifest() manifest.Manifest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.man.Clone()
}
