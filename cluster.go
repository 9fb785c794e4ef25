package openregulations

import "math/rand/v2"

// Assignment maps one record to its nearest centroid. Score is the cosine
// similarity to the winning centroid, useful for confidence display.
type Assignment struct {
	ID           string
	ClusterIndex int
	Score        float64
}

// Cluster partitions the index into k groups for visualization: k distinct
// record vectors are picked uniformly at random as centroids (without
// replacement), then every record joins the centroid of maximum cosine
// similarity. This is a single-pass nearest-centroid partition, not
// converged k-means — assignments are cheap and approximate, and repeated
// calls on the same data may differ because the centroid draw is random.
//
// Returns an empty slice when k <= 0 or k exceeds the index size.
func (idx *Index) Cluster(k int, rng *rand.Rand) []Assignment {
	n := len(idx.records)
	if k <= 0 || k > n {
		return []Assignment{}
	}

	centroids := rng.Perm(n)[:k]

	assignments := make([]Assignment, n)
	for i := range idx.records {
		r := &idx.records[i]
		best, bestScore := 0, -1.0
		for c, ci := range centroids {
			// Dimensions are uniform within one index; the error path is unreachable.
			score, _ := CosineSimilarity(r.Vector, idx.records[ci].Vector)
			if score > bestScore {
				best, bestScore = c, score
			}
		}
		assignments[i] = Assignment{
			ID:           r.ID,
			ClusterIndex: best,
			Score:        clip01(bestScore),
		}
	}
	return assignments
}
