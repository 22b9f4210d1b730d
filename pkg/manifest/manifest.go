// Package manifest defines the small record that is the single source of
// truth for what the state store currently holds: the node's current term,
// the version of the last accepted cluster state, and the generation of
// every metadata blob that state is made of. A manifest is only ever
// committed after all generations it references are durable, so a loaded
// manifest is always safe to trust.
package manifest

// Manifest maps logical entities to their current generation numbers.
//
// CurrentTerm is the node's own highest recorded term and is independent of
// the term inside the accepted state's coordination metadata; the two
// commonly diverge and both are preserved exactly.
//
// A GlobalGeneration of zero means no global metadata has ever been written.
type Manifest struct {
	CurrentTerm         uint64            `json:"currentTerm"`
	ClusterStateVersion uint64            `json:"clusterStateVersion"`
	GlobalGeneration    uint64            `json:"globalGeneration"`
	IndexGenerations    map[string]uint64 `json:"indexGenerations,omitempty"`
}

// Empty is the manifest of a node that has never persisted anything:
// term 0, state version 0, no generations.
func Empty() Manifest {
	return Manifest{IndexGenerations: map[string]uint64{}}
}

// Clone returns a deep copy.
func (m Manifest) Clone() Manifest {
	c := m
	c.IndexGenerations = make(map[string]uint64, len(m.IndexGenerations))
	for uuid, gen := range m.IndexGenerations {
		c.IndexGenerations[uuid] = gen
	}
	return c
}

// WithCurrentTerm derives a manifest equal to m except for the current term.
func (m Manifest) WithCurrentTerm(term uint64) Manifest {
	c := m.Clone()
	c.CurrentTerm = term
	return c
}

// IndexGeneration returns the generation recorded for the given index UUID.
func (m Manifest) IndexGeneration(uuid string) (uint64, bool) {
	gen, ok := m.IndexGenerations[uuid]
	return gen, ok
}

// Equal compares all fields, including every index generation entry.
func (m Manifest) Equal(other Manifest) bool {
	if m.CurrentTerm != other.CurrentTerm ||
		m.ClusterStateVersion != other.ClusterStateVersion ||
		m.GlobalGeneration != other.GlobalGeneration ||
		len(m.IndexGenerations) != len(other.IndexGenerations) {
		return false
	}
	for uuid, gen := range m.IndexGenerations {
		if ogen, ok := other.IndexGenerations[uuid]; !ok || ogen != gen {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the manifest equals Empty().
func (m Manifest) IsEmpty() bool {
	return m.Equal(Empty())
}
