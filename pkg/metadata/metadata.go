package metadata

import "fmt"

// Metadata is the global cluster metadata: persistent settings, coordination
// metadata, and the per-index metadata mapped by index name. The global
// portion (settings + coordination) is persisted as one blob; each index is
// persisted independently so unchanged indices are never rewritten.
type Metadata struct {
	PersistentSettings Settings                 `json:"persistentSettings,omitempty"`
	Coordination       CoordinationMetadata     `json:"coordination"`
	Indices            map[string]IndexMetadata `json:"-"`
}

// EmptyMetadata is the metadata of a node that has never accepted a state.
func EmptyMetadata() Metadata {
	return Metadata{Indices: map[string]IndexMetadata{}}
}

// Index returns the metadata for the named index.
func (m Metadata) Index(name string) (IndexMetadata, bool) {
	im, ok := m.Indices[name]
	return im, ok
}

// IndexByUUID returns the metadata for the index with the given UUID.
func (m Metadata) IndexByUUID(uuid string) (IndexMetadata, bool) {
	for _, im := range m.Indices {
		if im.UUID == uuid {
			return im, true
		}
	}
	return IndexMetadata{}, false
}

// GlobalStateEquals reports whether the global portions of two metadata
// values (settings and coordination metadata, not indices) are equal.
func GlobalStateEquals(a, b Metadata) bool {
	return a.PersistentSettings.Equal(b.PersistentSettings) && a.Coordination.Equal(b.Coordination)
}

// Equal compares the global portion and every index entry.
func (m Metadata) Equal(other Metadata) bool {
	if !GlobalStateEquals(m, other) {
		return false
	}
	if len(m.Indices) != len(other.Indices) {
		return false
	}
	for name, im := range m.Indices {
		oim, ok := other.Indices[name]
		if !ok || !im.Equal(oim) {
			return false
		}
	}
	return true
}

// MetadataBuilder assembles a Metadata value.
type MetadataBuilder struct {
	settings     Settings
	coordination CoordinationMetadata
	indices      map[string]IndexMetadata
}

// NewMetadataBuilder returns an empty builder.
func NewMetadataBuilder() *MetadataBuilder {
	return &MetadataBuilder{indices: map[string]IndexMetadata{}}
}

// MetadataBuilderFrom returns a builder pre-populated from an existing
// instance.
func MetadataBuilderFrom(existing Metadata) *MetadataBuilder {
	indices := make(map[string]IndexMetadata, len(existing.Indices))
	for name, im := range existing.Indices {
		indices[name] = im
	}
	return &MetadataBuilder{
		settings:     existing.PersistentSettings.Clone(),
		coordination: existing.Coordination,
		indices:      indices,
	}
}

// PersistentSettings replaces the persistent settings.
func (b *MetadataBuilder) PersistentSettings(s Settings) *MetadataBuilder {
	b.settings = s.Clone()
	return b
}

// Coordination replaces the coordination metadata.
func (b *MetadataBuilder) Coordination(c CoordinationMetadata) *MetadataBuilder {
	b.coordination = c
	return b
}

// Put adds or replaces an index entry, keyed by index name.
func (b *MetadataBuilder) Put(im IndexMetadata) *MetadataBuilder {
	b.indices[im.Index] = im
	return b
}

// Remove drops an index entry by name. Removing an absent index is a no-op.
func (b *MetadataBuilder) Remove(name string) *MetadataBuilder {
	delete(b.indices, name)
	return b
}

// Build validates and returns the metadata. Two indices sharing a UUID is
// builder misuse: the manifest keys index generations by UUID, so a
// collision would silently merge their histories.
func (b *MetadataBuilder) Build() (Metadata, error) {
	byUUID := make(map[string]string, len(b.indices))
	for name, im := range b.indices {
		if prev, ok := byUUID[im.UUID]; ok {
			return Metadata{}, fmt.Errorf("indices %q and %q share UUID %q", prev, name, im.UUID)
		}
		byUUID[im.UUID] = name
	}
	indices := make(map[string]IndexMetadata, len(b.indices))
	for name, im := range b.indices {
		indices[name] = im
	}
	return Metadata{
		PersistentSettings: b.settings.Clone(),
		Coordination:       b.coordination,
		Indices:            indices,
	}, nil
}
