package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jxucoder/openregulations.ai/internal/domain"
)

const (
	retrievalTopK   = 5
	maxHistoryTurns = 6
	maxSources      = 3
	sourceTextLimit = 200
)

// Request is one chat turn from a caller.
type Request struct {
	Identity string
	Message  string
	DocketID string
	History  []domain.ChatTurn
}

// Service is the retrieval-augmented chat orchestrator. Each turn runs
// quota check, query embedding, similarity retrieval, analysis lookup,
// context assembly and the completion call, in that order. Embedding and
// analysis failures degrade the grounding; quota denial and completion
// failure abort the turn. Nothing is written until the answer succeeds.
type Service struct {
	quota     QuotaGate
	embedder  Embedder
	retriever Retriever
	analysis  AnalysisReader
	completer Completer
	logger    *zap.Logger
}

// New creates the chat Service.
func New(
	quota QuotaGate, embedder Embedder, retriever Retriever,
	analysis AnalysisReader, completer Completer, logger *zap.Logger,
) *Service {
	return &Service{
		quota:     quota,
		embedder:  embedder,
		retriever: retriever,
		analysis:  analysis,
		completer: completer,
		logger:    logger,
	}
}

// Answer runs one non-streamed chat turn.
func (s *Service) Answer(ctx context.Context, req Request) (domain.Answer, error) {
	return s.answer(ctx, req, nil)
}

// AnswerStream runs one chat turn relaying completion deltas through
// onDelta as they arrive. The returned Answer carries the accumulated
// full text. A stream that fails before the first delivered delta is
// retried once non-streamed with identical inputs; a failure after
// delivery has begun is terminal, so the caller never sees duplicated
// output.
func (s *Service) AnswerStream(ctx context.Context, req Request, onDelta func(string) error) (domain.Answer, error) {
	return s.answer(ctx, req, onDelta)
}

func (s *Service) answer(ctx context.Context, req Request, onDelta func(string) error) (domain.Answer, error) {
	if req.Message == "" {
		return domain.Answer{}, fmt.Errorf("empty message: %w", domain.ErrInvalidRequest)
	}

	if _, err := s.quota.Check(ctx, req.Identity); err != nil {
		return domain.Answer{}, err
	}

	retrieved := s.retrieve(ctx, req)
	summary := s.summary(ctx, req.DocketID)

	system := systemPrompt(AssembleContext(summary, retrieved))
	turns := buildTurns(req.History, req.Message)

	text, err := s.complete(ctx, system, turns, onDelta)
	if err != nil {
		return domain.Answer{}, err
	}

	if err := s.quota.Record(ctx, req.Identity); err != nil {
		s.logger.Warn("quota record failed",
			zap.String("identity", req.Identity),
			zap.Error(err),
		)
	}

	return domain.Answer{Text: text, Sources: sources(retrieved)}, nil
}

// retrieve embeds the question and fetches the top similar comments.
// Any failure degrades to an empty result set: an analysis-only answer
// beats no answer.
func (s *Service) retrieve(ctx context.Context, req Request) []domain.RetrievedComment {
	if req.DocketID == "" {
		return nil
	}

	emb, err := s.embedder.Embed(ctx, req.Message)
	if err != nil {
		s.logger.Warn("query embedding failed, answering without retrieval",
			zap.String("docket_id", req.DocketID),
			zap.Error(err),
		)
		return nil
	}

	retrieved, err := s.retriever.Retrieve(ctx, req.DocketID, emb.Embedding, retrievalTopK)
	if err != nil {
		s.logger.Warn("retrieval failed, answering without comments",
			zap.String("docket_id", req.DocketID),
			zap.Error(err),
		)
		return nil
	}
	return retrieved
}

func (s *Service) summary(ctx context.Context, docketID string) *domain.AnalysisSummary {
	if docketID == "" {
		return nil
	}

	summary, err := s.analysis.Get(ctx, docketID)
	if err != nil {
		s.logger.Debug("analysis summary unavailable",
			zap.String("docket_id", docketID),
			zap.Error(err),
		)
		return nil
	}
	return summary
}

func (s *Service) complete(ctx context.Context, system string, turns []domain.ChatTurn, onDelta func(string) error) (string, error) {
	if onDelta == nil {
		return s.completer.Complete(ctx, system, turns)
	}

	delivered := false
	text, err := s.completer.CompleteStream(ctx, system, turns, func(delta string) error {
		if err := onDelta(delta); err != nil {
			return err
		}
		delivered = true
		return nil
	})
	if err == nil {
		return text, nil
	}
	if delivered {
		// Part of the answer already reached the caller; a retry would
		// duplicate output.
		return "", err
	}

	s.logger.Warn("stream failed before first byte, retrying non-streamed", zap.Error(err))
	text, err = s.completer.Complete(ctx, system, turns)
	if err != nil {
		return "", err
	}
	if err := onDelta(text); err != nil {
		return "", err
	}
	return text, nil
}

// buildTurns keeps the last turns of history and appends the current
// user message.
func buildTurns(history []domain.ChatTurn, message string) []domain.ChatTurn {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	turns := make([]domain.ChatTurn, 0, len(history)+1)
	turns = append(turns, history...)
	return append(turns, domain.ChatTurn{Role: domain.RoleUser, Content: message})
}

// sources cites the top retrieved comments in rank order.
func sources(retrieved []domain.RetrievedComment) []domain.Source {
	if len(retrieved) == 0 {
		return nil
	}
	if len(retrieved) > maxSources {
		retrieved = retrieved[:maxSources]
	}

	out := make([]domain.Source, len(retrieved))
	for i, r := range retrieved {
		out[i] = domain.Source{
			ID:         r.ID,
			Text:       truncate(r.Text, sourceTextLimit),
			Author:     r.Author,
			Similarity: r.Similarity,
		}
	}
	return out
}
