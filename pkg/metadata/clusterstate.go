package metadata

// ClusterState is the last cluster configuration this node has durably
// accepted, not necessarily one the cluster has committed. The node
// directory is runtime-only; everything else round-trips through the store.
type ClusterState struct {
	ClusterName string
	Version     uint64
	Nodes       DiscoveryNodes
	Metadata    Metadata
}

// ClusterStateBuilder assembles a ClusterState value.
type ClusterStateBuilder struct {
	clusterName string
	version     uint64
	nodes       DiscoveryNodes
	metadata    Metadata
}

// NewClusterStateBuilder returns a builder for a cluster with the given name.
func NewClusterStateBuilder(clusterName string) *ClusterStateBuilder {
	return &ClusterStateBuilder{clusterName: clusterName, metadata: EmptyMetadata()}
}

// ClusterStateBuilderFrom returns a builder pre-populated from an existing
// state.
func ClusterStateBuilderFrom(existing ClusterState) *ClusterStateBuilder {
	return &ClusterStateBuilder{
		clusterName: existing.ClusterName,
		version:     existing.Version,
		nodes:       existing.Nodes,
		metadata:    existing.Metadata,
	}
}

// Version sets the monotonic state version.
func (b *ClusterStateBuilder) Version(v uint64) *ClusterStateBuilder {
	b.version = v
	return b
}

// Nodes sets the node directory.
func (b *ClusterStateBuilder) Nodes(n DiscoveryNodes) *ClusterStateBuilder {
	b.nodes = n
	return b
}

// Metadata sets the global metadata.
func (b *ClusterStateBuilder) Metadata(m Metadata) *ClusterStateBuilder {
	b.metadata = m
	return b
}

// Build returns the cluster state.
func (b *ClusterStateBuilder) Build() ClusterState {
	return ClusterState{
		ClusterName: b.clusterName,
		Version:     b.version,
		Nodes:       b.nodes,
		Metadata:    b.metadata,
	}
}
