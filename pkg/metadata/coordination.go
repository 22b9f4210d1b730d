// Package metadata defines the cluster-state data model persisted by the
// state store: coordination metadata (terms, voting configurations, voting
// tombstones), per-index metadata, global metadata, and the cluster state
// wrapper handed to the consensus layer.
//
// All types in this package are immutable value types built through
// builders. None of them perform I/O; serialization lives in pkg/storage.
package metadata

import (
	"encoding/json"
	"errors"
	"sort"
)

// VotingConfiguration is the set of node IDs that must be consulted to form
// a quorum. Equality is set equality; order is irrelevant.
type VotingConfiguration struct {
	nodeIDs map[string]struct{}
}

// NewVotingConfiguration builds a VotingConfiguration from the given node IDs.
// Duplicate IDs collapse into a single member.
func NewVotingConfiguration(nodeIDs ...string) VotingConfiguration {
	ids := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		ids[id] = struct{}{}
	}
	return VotingConfiguration{nodeIDs: ids}
}

// NodeIDs returns the member node IDs in sorted order.
func (c VotingConfiguration) NodeIDs() []string {
	ids := make([]string, 0, len(c.nodeIDs))
	for id := range c.nodeIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Contains reports whether nodeID is a member of the configuration.
func (c VotingConfiguration) Contains(nodeID string) bool {
	_, ok := c.nodeIDs[nodeID]
	return ok
}

// IsEmpty reports whether the configuration has no members.
func (c VotingConfiguration) IsEmpty() bool {
	return len(c.nodeIDs) == 0
}

// Size returns the number of members.
func (c VotingConfiguration) Size() int {
	return len(c.nodeIDs)
}

// Equal returns true if both configurations contain exactly the same node IDs.
func (c VotingConfiguration) Equal(other VotingConfiguration) bool {
	if len(c.nodeIDs) != len(other.nodeIDs) {
		return false
	}
	for id := range c.nodeIDs {
		if _, ok := other.nodeIDs[id]; !ok {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the configuration as a sorted array of node IDs so the
// serialized form is deterministic.
func (c VotingConfiguration) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.NodeIDs())
}

// UnmarshalJSON decodes an array of node IDs.
func (c *VotingConfiguration) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*c = NewVotingConfiguration(ids...)
	return nil
}

// VotingTombstone marks a node as excluded from quorum counting while it is
// being removed from the cluster.
type VotingTombstone struct {
	NodeID   string `json:"nodeId"`
	NodeName string `json:"nodeName"`
}

// CoordinationMetadata is the consensus-relevant slice of the global cluster
// metadata: the term at which the enclosing state was produced, the last
// accepted and last committed voting configurations, and the current voting
// tombstones.
//
// The committed configuration only ever advances to match the accepted one,
// never regresses; that invariant is maintained by the persisted-state
// façade, not enforced here.
type CoordinationMetadata struct {
	Term                       uint64              `json:"term"`
	LastAcceptedConfiguration  VotingConfiguration `json:"lastAcceptedConfiguration"`
	LastCommittedConfiguration VotingConfiguration `json:"lastCommittedConfiguration"`
	VotingTombstones           []VotingTombstone   `json:"votingTombstones,omitempty"`
}

// Equal compares all fields. Tombstones are compared as sets.
func (c CoordinationMetadata) Equal(other CoordinationMetadata) bool {
	if c.Term != other.Term {
		return false
	}
	if !c.LastAcceptedConfiguration.Equal(other.LastAcceptedConfiguration) {
		return false
	}
	if !c.LastCommittedConfiguration.Equal(other.LastCommittedConfiguration) {
		return false
	}
	if len(c.VotingTombstones) != len(other.VotingTombstones) {
		return false
	}
	seen := make(map[VotingTombstone]struct{}, len(c.VotingTombstones))
	for _, t := range c.VotingTombstones {
		seen[t] = struct{}{}
	}
	for _, t := range other.VotingTombstones {
		if _, ok := seen[t]; !ok {
			return false
		}
	}
	return true
}

// CoordinationMetadataBuilder assembles a CoordinationMetadata value.
// The zero builder produces empty coordination metadata (term 0, empty
// configurations, no tombstones).
type CoordinationMetadataBuilder struct {
	term       uint64
	accepted   VotingConfiguration
	committed  VotingConfiguration
	tombstones []VotingTombstone
}

// NewCoordinationMetadataBuilder returns an empty builder.
func NewCoordinationMetadataBuilder() *CoordinationMetadataBuilder {
	return &CoordinationMetadataBuilder{}
}

// CoordinationMetadataBuilderFrom returns a builder pre-populated with every
// field of an existing instance, for derive-and-modify updates.
func CoordinationMetadataBuilderFrom(existing CoordinationMetadata) *CoordinationMetadataBuilder {
	tombstones := make([]VotingTombstone, len(existing.VotingTombstones))
	copy(tombstones, existing.VotingTombstones)
	return &CoordinationMetadataBuilder{
		term:       existing.Term,
		accepted:   existing.LastAcceptedConfiguration,
		committed:  existing.LastCommittedConfiguration,
		tombstones: tombstones,
	}
}

// Term sets the term.
func (b *CoordinationMetadataBuilder) Term(term uint64) *CoordinationMetadataBuilder {
	b.term = term
	return b
}

// LastAcceptedConfiguration sets the last accepted voting configuration.
func (b *CoordinationMetadataBuilder) LastAcceptedConfiguration(c VotingConfiguration) *CoordinationMetadataBuilder {
	b.accepted = c
	return b
}

// LastCommittedConfiguration sets the last committed voting configuration.
func (b *CoordinationMetadataBuilder) LastCommittedConfiguration(c VotingConfiguration) *CoordinationMetadataBuilder {
	b.committed = c
	return b
}

// AddVotingTombstone appends a tombstone. Duplicates are not rejected at
// this layer; calling code ensures uniqueness as needed.
func (b *CoordinationMetadataBuilder) AddVotingTombstone(t VotingTombstone) *CoordinationMetadataBuilder {
	b.tombstones = append(b.tombstones, t)
	return b
}

// Build validates and returns the coordination metadata. A tombstone with an
// empty node ID is builder misuse and fails here rather than surfacing later
// as an unidentifiable exclusion.
func (b *CoordinationMetadataBuilder) Build() (CoordinationMetadata, error) {
	for _, t := range b.tombstones {
		if t.NodeID == "" {
			return CoordinationMetadata{}, errors.New("voting tombstone with empty node ID")
		}
	}
	tombstones := make([]VotingTombstone, len(b.tombstones))
	copy(tombstones, b.tombstones)
	return CoordinationMetadata{
		Term:                       b.term,
		LastAcceptedConfiguration:  b.accepted,
		LastCommittedConfiguration: b.committed,
		VotingTombstones:           tombstones,
	}, nil
}
