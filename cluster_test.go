package openregulations

import (
	"math/rand/v2"
	"testing"
)

func clusterRecords() []VectorRecord {
	// Two duplicate groups on orthogonal axes plus one straggler. Identical
	// in-group vectors keep each group on one centroid for any random draw.
	return []VectorRecord{
		{ID: "x1", Vector: []float32{1, 0}},
		{ID: "x2", Vector: []float32{1, 0}},
		{ID: "y1", Vector: []float32{0, 1}},
		{ID: "y2", Vector: []float32{0, 1}},
		{ID: "z1", Vector: []float32{0.7, 0.7}},
	}
}

func fixedRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 0))
}

func TestCluster_KExceedsSize(t *testing.T) {
	idx := mustIndex(t, clusterRecords())
	got := idx.Cluster(10, fixedRand())
	if len(got) != 0 {
		t.Fatalf("expected empty assignment list, got %d", len(got))
	}
}

func TestCluster_NonPositiveK(t *testing.T) {
	idx := mustIndex(t, clusterRecords())
	if got := idx.Cluster(0, fixedRand()); len(got) != 0 {
		t.Fatalf("k=0: expected empty, got %d", len(got))
	}
	if got := idx.Cluster(-1, fixedRand()); len(got) != 0 {
		t.Fatalf("k=-1: expected empty, got %d", len(got))
	}
}

func TestCluster_AssignsEveryRecord(t *testing.T) {
	idx := mustIndex(t, clusterRecords())
	got := idx.Cluster(2, fixedRand())
	if len(got) != idx.Len() {
		t.Fatalf("expected %d assignments, got %d", idx.Len(), len(got))
	}
	for _, a := range got {
		if a.ClusterIndex < 0 || a.ClusterIndex >= 2 {
			t.Errorf("record %s assigned to cluster %d, want [0,2)", a.ID, a.ClusterIndex)
		}
		if a.Score < 0 || a.Score > 1 {
			t.Errorf("record %s score %f out of [0,1]", a.ID, a.Score)
		}
	}
}

func TestCluster_DeterministicWithFixedSeed(t *testing.T) {
	idx := mustIndex(t, clusterRecords())
	first := idx.Cluster(2, fixedRand())
	second := idx.Cluster(2, fixedRand())
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("assignment %d differs under identical seed: %+v vs %+v",
				i, first[i], second[i])
		}
	}
}

func TestCluster_GroupsStayTogether(t *testing.T) {
	idx := mustIndex(t, clusterRecords())
	got := idx.Cluster(2, fixedRand())

	byID := make(map[string]Assignment, len(got))
	for _, a := range got {
		byID[a.ID] = a
	}
	if byID["x1"].ClusterIndex != byID["x2"].ClusterIndex {
		t.Error("x1 and x2 split across clusters")
	}
	if byID["y1"].ClusterIndex != byID["y2"].ClusterIndex {
		t.Error("y1 and y2 split across clusters")
	}
}

func TestCluster_KEqualsSize(t *testing.T) {
	idx := mustIndex(t, clusterRecords())
	got := idx.Cluster(idx.Len(), fixedRand())
	if len(got) != idx.Len() {
		t.Fatalf("expected %d assignments, got %d", idx.Len(), len(got))
	}
}
