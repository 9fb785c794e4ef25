// Package openregulations provides the client-resident similarity search
// engine for regulatory-comment embeddings: an immutable in-memory vector
// index per docket with brute-force cosine ranking, a lexical fallback for
// dockets without embeddings, and a cheap approximate clusterer.
//
// The engine holds no persistent state and builds no ANN structures; an
// Index is loaded once from pre-computed embeddings and scanned linearly.
package openregulations

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors returned by the search engine.
var (
	// ErrDimensionMismatch signals disagreeing vector dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyIndex signals an index built from zero records.
	ErrEmptyIndex = errors.New("index has no records")
	// ErrDuplicateID signals a repeated record id within one docket.
	ErrDuplicateID = errors.New("duplicate record id")
)

// Sentiment classifies a comment's stance toward the proposed rule.
type Sentiment string

// Sentiment values assigned by the upstream analysis pipeline.
const (
	SentimentSupport Sentiment = "support"
	SentimentOppose  Sentiment = "oppose"
	SentimentNeutral Sentiment = "neutral"
)

// ParseSentiment validates a sentiment string. Empty input is allowed and
// means "unclassified".
func ParseSentiment(s string) (Sentiment, error) {
	switch Sentiment(s) {
	case SentimentSupport, SentimentOppose, SentimentNeutral, "":
		return Sentiment(s), nil
	}
	return "", fmt.Errorf("unknown sentiment %q", s)
}

// VectorRecord is one comment's pre-computed embedding plus the metadata
// needed for filtering and display.
type VectorRecord struct {
	ID          string
	DocketID    string
	Vector      []float32
	Sentiment   Sentiment
	ThemeIDs    []string
	TextPreview string
}

// Index is an immutable in-memory collection of vector records for exactly
// one docket. Construct with NewIndex; concurrent readers are safe because
// nothing mutates an Index after construction.
type Index struct {
	docketID string
	dim      int
	records  []VectorRecord
}

// NewIndex builds an index over the given records. All vectors must share
// one dimensionality and record ids must be unique within the docket.
func NewIndex(docketID string, records []VectorRecord) (*Index, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("index %s: %w", docketID, ErrEmptyIndex)
	}

	dim := len(records[0].Vector)
	seen := make(map[string]struct{}, len(records))
	for i := range records {
		r := &records[i]
		if len(r.Vector) != dim {
			return nil, fmt.Errorf("index %s: record %s has dim %d, want %d: %w",
				docketID, r.ID, len(r.Vector), dim, ErrDimensionMismatch)
		}
		if _, ok := seen[r.ID]; ok {
			return nil, fmt.Errorf("index %s: %w: %s", docketID, ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	idx := &Index{
		docketID: docketID,
		dim:      dim,
		records:  make([]VectorRecord, len(records)),
	}
	copy(idx.records, records)
	return idx, nil
}

// DocketID returns the docket this index was built for.
func (idx *Index) DocketID() string { return idx.docketID }

// Len returns the number of records in the index.
func (idx *Index) Len() int { return len(idx.records) }

// Dim returns the embedding dimensionality shared by all records.
func (idx *Index) Dim() int { return idx.dim }

// CosineSimilarity computes the cosine similarity of two vectors.
// Returns ErrDimensionMismatch when lengths disagree. A zero-magnitude
// input yields 0 rather than an error: the similarity is undefined there,
// and callers treat "no signal" and "no match" the same way.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// clip01 clamps a similarity into [0, 1] for display. Embeddings from the
// upstream models rarely produce negative cosine; when they do, it carries
// no ranking information worth surfacing.
func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
