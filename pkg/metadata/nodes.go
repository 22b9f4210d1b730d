package metadata

// DiscoveryNode identifies one node in the cluster's node directory.
type DiscoveryNode struct {
	ID      string
	Name    string
	Address string
}

// DiscoveryNodes is the cluster node directory, including which entry is the
// local node. It is runtime-only state: it is assigned when a persisted
// state is loaded (via the state-updater hook) and is never written to disk.
type DiscoveryNodes struct {
	localNodeID string
	nodes       map[string]DiscoveryNode
}

// LocalNode returns the local node entry, if one has been assigned.
func (n DiscoveryNodes) LocalNode() (DiscoveryNode, bool) {
	node, ok := n.nodes[n.localNodeID]
	return node, ok
}

// Get returns the node with the given ID.
func (n DiscoveryNodes) Get(id string) (DiscoveryNode, bool) {
	node, ok := n.nodes[id]
	return node, ok
}

// Size returns the number of nodes in the directory.
func (n DiscoveryNodes) Size() int {
	return len(n.nodes)
}

// DiscoveryNodesBuilder assembles a DiscoveryNodes value.
type DiscoveryNodesBuilder struct {
	localNodeID string
	nodes       map[string]DiscoveryNode
}

// NewDiscoveryNodesBuilder returns an empty builder.
func NewDiscoveryNodesBuilder() *DiscoveryNodesBuilder {
	return &DiscoveryNodesBuilder{nodes: map[string]DiscoveryNode{}}
}

// Add adds or replaces a node entry.
func (b *DiscoveryNodesBuilder) Add(node DiscoveryNode) *DiscoveryNodesBuilder {
	b.nodes[node.ID] = node
	return b
}

// LocalNodeID records which entry is the local node.
func (b *DiscoveryNodesBuilder) LocalNodeID(id string) *DiscoveryNodesBuilder {
	b.localNodeID = id
	return b
}

// Build returns the node directory.
func (b *DiscoveryNodesBuilder) Build() DiscoveryNodes {
	nodes := make(map[string]DiscoveryNode, len(b.nodes))
	for id, node := range b.nodes {
		nodes[id] = node
	}
	return DiscoveryNodes{localNodeID: b.localNodeID, nodes: nodes}
}
