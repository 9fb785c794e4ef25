package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jxucoder/openregulations.ai/internal/db"
	"github.com/jxucoder/openregulations.ai/internal/domain"
)

// store is the consumer interface for analysis reads (ISP).
type store interface {
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
}

// The composition root passes the db facade.
var _ store = db.Store(nil)

// Repo reads precomputed per-docket analysis summaries written by the
// external analysis job.
type Repo struct {
	store  store
	prefix string
}

// New creates an analysis repository.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

// summaryDTO mirrors the JSON written by the analysis job.
type summaryDTO struct {
	DocketID         string `json:"docket_id"`
	ExecutiveSummary string `json:"executive_summary"`
	TotalComments    int    `json:"total_comments"`
	Sentiment        struct {
		Support int `json:"support"`
		Oppose  int `json:"oppose"`
		Neutral int `json:"neutral"`
	} `json:"sentiment"`
	Themes []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Count       int    `json:"count"`
	} `json:"themes"`
	NotableComments []struct {
		ID     string `json:"id"`
		Author string `json:"author"`
		Text   string `json:"text"`
		Reason string `json:"reason"`
	} `json:"notable_comments"`
}

// Get returns the analysis summary for a docket, or domain.ErrNotFound
// when the docket has not been analyzed yet.
func (r *Repo) Get(ctx context.Context, docketID string) (*domain.AnalysisSummary, error) {
	key := r.prefix + "docket:" + docketID + ":analysis"

	raw, err := r.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("analysis %s: %w", docketID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("json.get %s: %w", key, err)
	}

	var wrapped []summaryDTO
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unmarshal analysis %s: %w", docketID, err)
	}
	if len(wrapped) == 0 {
		return nil, fmt.Errorf("analysis %s: %w", docketID, domain.ErrNotFound)
	}

	return toDomain(docketID, &wrapped[0]), nil
}

func toDomain(docketID string, dto *summaryDTO) *domain.AnalysisSummary {
	s := &domain.AnalysisSummary{
		DocketID:         docketID,
		ExecutiveSummary: dto.ExecutiveSummary,
		TotalComments:    dto.TotalComments,
		Sentiment: domain.SentimentSplit{
			Support: dto.Sentiment.Support,
			Oppose:  dto.Sentiment.Oppose,
			Neutral: dto.Sentiment.Neutral,
		},
	}
	for _, t := range dto.Themes {
		s.Themes = append(s.Themes, domain.Theme{
			ID: t.ID, Name: t.Name, Description: t.Description, Count: t.Count,
		})
	}
	for _, n := range dto.NotableComments {
		s.NotableComments = append(s.NotableComments, domain.NotableComment{
			ID: n.ID, Author: n.Author, Text: n.Text, Reason: n.Reason,
		})
	}
	return s
}
