package metadata

import (
	"errors"
	"fmt"
)

// Settings is a flat map of persistent setting keys to values.
type Settings map[string]string

// Equal compares two settings maps key by key.
func (s Settings) Equal(other Settings) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns a copy that can be mutated without affecting the original.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	c := make(Settings, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// IndexMetadata describes one indexed resource. It is immutable per
// (UUID, Version); any change produces a new version that replaces the
// mapping entry wholesale.
type IndexMetadata struct {
	Index            string   `json:"index"`
	UUID             string   `json:"uuid"`
	Version          uint64   `json:"version"`
	NumberOfShards   int      `json:"numberOfShards"`
	NumberOfReplicas int      `json:"numberOfReplicas"`
	Settings         Settings `json:"settings,omitempty"`
}

// Equal compares all fields.
func (im IndexMetadata) Equal(other IndexMetadata) bool {
	return im.Index == other.Index &&
		im.UUID == other.UUID &&
		im.Version == other.Version &&
		im.NumberOfShards == other.NumberOfShards &&
		im.NumberOfReplicas == other.NumberOfReplicas &&
		im.Settings.Equal(other.Settings)
}

// IndexMetadataBuilder assembles an IndexMetadata value.
type IndexMetadataBuilder struct {
	index            string
	uuid             string
	version          uint64
	numberOfShards   int
	numberOfReplicas int
	settings         Settings
}

// NewIndexMetadataBuilder returns a builder for an index with the given name.
func NewIndexMetadataBuilder(index string) *IndexMetadataBuilder {
	return &IndexMetadataBuilder{index: index, numberOfShards: 1}
}

// IndexMetadataBuilderFrom returns a builder pre-populated from an existing
// instance.
func IndexMetadataBuilderFrom(existing IndexMetadata) *IndexMetadataBuilder {
	return &IndexMetadataBuilder{
		index:            existing.Index,
		uuid:             existing.UUID,
		version:          existing.Version,
		numberOfShards:   existing.NumberOfShards,
		numberOfReplicas: existing.NumberOfReplicas,
		settings:         existing.Settings.Clone(),
	}
}

// UUID sets the index UUID.
func (b *IndexMetadataBuilder) UUID(uuid string) *IndexMetadataBuilder {
	b.uuid = uuid
	return b
}

// Version sets the metadata version.
func (b *IndexMetadataBuilder) Version(version uint64) *IndexMetadataBuilder {
	b.version = version
	return b
}

// NumberOfShards sets the shard count.
func (b *IndexMetadataBuilder) NumberOfShards(n int) *IndexMetadataBuilder {
	b.numberOfShards = n
	return b
}

// NumberOfReplicas sets the replica count.
func (b *IndexMetadataBuilder) NumberOfReplicas(n int) *IndexMetadataBuilder {
	b.numberOfReplicas = n
	return b
}

// Settings replaces the settings map.
func (b *IndexMetadataBuilder) Settings(s Settings) *IndexMetadataBuilder {
	b.settings = s.Clone()
	return b
}

// Build validates required fields and returns the index metadata.
func (b *IndexMetadataBuilder) Build() (IndexMetadata, error) {
	if b.index == "" {
		return IndexMetadata{}, errors.New("index name is required")
	}
	if b.uuid == "" {
		return IndexMetadata{}, fmt.Errorf("index %q: UUID is required", b.index)
	}
	if b.numberOfShards < 1 {
		return IndexMetadata{}, fmt.Errorf("index %q: number of shards must be at least 1, got %d", b.index, b.numberOfShards)
	}
	if b.numberOfReplicas < 0 {
		return IndexMetadata{}, fmt.Errorf("index %q: number of replicas must be non-negative, got %d", b.index, b.numberOfReplicas)
	}
	return IndexMetadata{
		Index:            b.index,
		UUID:             b.uuid,
		Version:          b.version,
		NumberOfShards:   b.numberOfShards,
		NumberOfReplicas: b.numberOfReplicas,
		Settings:         b.settings.Clone(),
	}, nil
}
