package metadata

import "testing"

func testIndex(t *testing.T, name, uuid string, shards int, version uint64) IndexMetadata {
	t.Helper()
	im, err := NewIndexMetadataBuilder(name).
		UUID(uuid).
		Version(version).
		NumberOfShards(shards).
		Settings(Settings{"index.codec": "default"}).
		Build()
	if err != nil {
		t.Fatalf("Failed to build index metadata: %v", err)
	}
	return im
}

// TestIndexMetadataBuilderValidation verifies required-field checks fail at
// build time.
func TestIndexMetadataBuilderValidation(t *testing.T) {
	if _, err := NewIndexMetadataBuilder("").UUID("u1").Build(); err == nil {
		t.Errorf("Expected Build to reject an empty index name")
	}
	if _, err := NewIndexMetadataBuilder("idx").Build(); err == nil {
		t.Errorf("Expected Build to reject a missing UUID")
	}
	if _, err := NewIndexMetadataBuilder("idx").UUID("u1").NumberOfShards(0).Build(); err == nil {
		t.Errorf("Expected Build to reject zero shards")
	}
	if _, err := NewIndexMetadataBuilder("idx").UUID("u1").NumberOfReplicas(-1).Build(); err == nil {
		t.Errorf("Expected Build to reject negative replicas")
	}
}

// TestIndexMetadataImmutablePerVersion verifies that a builder derived from
// an existing instance does not share its settings map.
func TestIndexMetadataImmutablePerVersion(t *testing.T) {
	v1 := testIndex(t, "idx", "u1", 3, 1)

	v2, err := IndexMetadataBuilderFrom(v1).
		Version(2).
		NumberOfShards(5).
		Build()
	if err != nil {
		t.Fatalf("Failed to build derived index metadata: %v", err)
	}
	v2.Settings["index.codec"] = "best_compression"

	if v1.Settings["index.codec"] != "default" {
		t.Errorf("Expected original settings to be unaffected by the derived copy")
	}
	if v1.NumberOfShards != 3 || v2.NumberOfShards != 5 {
		t.Errorf("Expected shard counts 3 and 5, got %d and %d", v1.NumberOfShards, v2.NumberOfShards)
	}
}

// TestMetadataBuilderRejectsDuplicateUUID verifies that two indices sharing
// a UUID fail fast at build time.
func TestMetadataBuilderRejectsDuplicateUUID(t *testing.T) {
	a := testIndex(t, "a", "shared", 1, 1)
	b := testIndex(t, "b", "shared", 1, 1)

	_, err := NewMetadataBuilder().Put(a).Put(b).Build()
	if err == nil {
		t.Fatalf("Expected Build to reject indices sharing a UUID")
	}
}

// TestMetadataPutReplacesByName verifies that Put replaces the mapping entry
// wholesale.
func TestMetadataPutReplacesByName(t *testing.T) {
	v1 := testIndex(t, "idx", "u1", 3, 1)
	v2 := testIndex(t, "idx", "u1", 5, 2)

	meta, err := NewMetadataBuilder().Put(v1).Put(v2).Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	got, ok := meta.Index("idx")
	if !ok {
		t.Fatalf("Expected index idx to be present")
	}
	if got.NumberOfShards != 5 || got.Version != 2 {
		t.Errorf("Expected replacement entry (5 shards, v2), got %d shards, v%d", got.NumberOfShards, got.Version)
	}
}

// TestGlobalStateEqualsIgnoresIndices verifies that global-state equality
// covers settings and coordination metadata but not indices.
func TestGlobalStateEqualsIgnoresIndices(t *testing.T) {
	coord, err := NewCoordinationMetadataBuilder().Term(2).Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	a, err := NewMetadataBuilder().
		PersistentSettings(Settings{"cluster.routing": "all"}).
		Coordination(coord).
		Put(testIndex(t, "idx", "u1", 1, 1)).
		Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	b, err := NewMetadataBuilder().
		PersistentSettings(Settings{"cluster.routing": "all"}).
		Coordination(coord).
		Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if !GlobalStateEquals(a, b) {
		t.Errorf("Expected global state equality to ignore index entries")
	}
	if a.Equal(b) {
		t.Errorf("Expected full equality to include index entries")
	}
}

// TestIndexByUUID verifies UUID lookups across the index mapping.
func TestIndexByUUID(t *testing.T) {
	meta, err := NewMetadataBuilder().
		Put(testIndex(t, "a", "uuid-a", 1, 1)).
		Put(testIndex(t, "b", "uuid-b", 2, 1)).
		Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	im, ok := meta.IndexByUUID("uuid-b")
	if !ok || im.Index != "b" {
		t.Errorf("Expected to find index b by UUID, got %+v (found=%v)", im, ok)
	}
	if _, ok := meta.IndexByUUID("uuid-c"); ok {
		t.Errorf("Expected lookup of unknown UUID to fail")
	}
}

// TestClusterStateBuilderFrom verifies derive-and-modify on cluster states.
func TestClusterStateBuilderFrom(t *testing.T) {
	nodes := NewDiscoveryNodesBuilder().
		Add(DiscoveryNode{ID: "n1", Name: "node-1", Address: "127.0.0.1:9300"}).
		LocalNodeID("n1").
		Build()
	original := NewClusterStateBuilder("test-cluster").
		Version(4).
		Nodes(nodes).
		Build()

	derived := ClusterStateBuilderFrom(original).Version(5).Build()

	if derived.ClusterName != "test-cluster" {
		t.Errorf("Expected cluster name to carry over, got %q", derived.ClusterName)
	}
	if derived.Version != 5 || original.Version != 4 {
		t.Errorf("Expected versions 5 and 4, got %d and %d", derived.Version, original.Version)
	}
	local, ok := derived.Nodes.LocalNode()
	if !ok || local.ID != "n1" {
		t.Errorf("Expected local node n1 to carry over, got %+v (found=%v)", local, ok)
	}
}
