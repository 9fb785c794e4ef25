package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	openreg "github.com/jxucoder/openregulations.ai"
	"github.com/jxucoder/openregulations.ai/internal/domain"
	chatuc "github.com/jxucoder/openregulations.ai/internal/usecase/chat"
	healthuc "github.com/jxucoder/openregulations.ai/internal/usecase/health"
	searchuc "github.com/jxucoder/openregulations.ai/internal/usecase/search"
)

// errorCode identifies an error class in JSON error responses.
type errorCode string

const (
	codeBadRequest              errorCode = "bad_request"
	codeValidationFailed        errorCode = "validation_failed"
	codeNotFound                errorCode = "not_found"
	codeRateLimited             errorCode = "rate_limited"
	codeEmbeddingProviderError  errorCode = "embedding_provider_error"
	codeCompletionProviderError errorCode = "completion_provider_error"
	codeInternalError           errorCode = "internal_error"
)

// ChatService runs retrieval-augmented chat turns.
type ChatService interface {
	Answer(ctx context.Context, req chatuc.Request) (domain.Answer, error)
	AnswerStream(ctx context.Context, req chatuc.Request, onDelta func(string) error) (domain.Answer, error)
}

// SearchService runs similarity and lexical searches.
type SearchService interface {
	Search(ctx context.Context, req searchuc.Request) ([]domain.RetrievedComment, error)
	SearchAcross(ctx context.Context, req searchuc.Request, docketIDs []string) (map[string][]domain.RetrievedComment, error)
	TextSearch(ctx context.Context, docketID, query string, topK int) ([]openreg.TextResult, error)
	Cluster(ctx context.Context, docketID string, k int) ([]openreg.Assignment, error)
}

// QuotaService reports per-identity quota state.
type QuotaService interface {
	Status(ctx context.Context, identity string) (domain.QuotaStatus, error)
}

// HealthService aggregates component health checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API surface.
type Server struct {
	chat          ChatService
	search        SearchService
	quota         QuotaService
	health        HealthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	chat ChatService,
	search SearchService,
	quota QuotaService,
	health HealthService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		chat:   chat,
		search: search,
		quota:  quota,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		rateLimitHandler,
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(openreg.ErrDimensionMismatch, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrCompletionProviderError, http.StatusBadGateway, codeCompletionProviderError),
	}
	return s
}

// RegisterRoutes mounts all API routes on the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.Chat)
		r.Post("/chat/stream", s.ChatStream)
		r.Get("/chat/status", s.ChatStatus)
		r.Post("/search", s.Search)
		r.Post("/dockets/{docketID}/clusters", s.Clusters)
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type chatTurnDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message             string        `json:"message"`
	DocketID            string        `json:"docket_id,omitempty"`
	ConversationHistory []chatTurnDTO `json:"conversation_history,omitempty"`
}

type sourceDTO struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Author     string  `json:"author,omitempty"`
	Similarity float64 `json:"similarity"`
}

type chatResponse struct {
	Response string      `json:"response"`
	Sources  []sourceDTO `json:"sources"`
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (chatuc.Request, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return chatuc.Request{}, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "message is required")
		return chatuc.Request{}, false
	}

	history := make([]domain.ChatTurn, 0, len(req.ConversationHistory))
	for _, t := range req.ConversationHistory {
		role, err := domain.ParseRole(t.Role)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
			return chatuc.Request{}, false
		}
		history = append(history, domain.ChatTurn{Role: role, Content: t.Content})
	}

	return chatuc.Request{
		Identity: callerIdentity(r),
		Message:  req.Message,
		DocketID: req.DocketID,
		History:  history,
	}, true
}

// Chat handles POST /api/v1/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	answer, err := s.chat.Answer(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answerToResponse(answer))
}

// ChatStream handles POST /api/v1/chat/stream. The body is raw text
// deltas with no framing; each delta is flushed as it arrives. Once the
// first byte is written the status is committed, so a mid-stream failure
// can only terminate the body early.
func (s *Server) ChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)

	started := false
	_, err := s.chat.AnswerStream(r.Context(), req, func(delta string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, werr := w.Write([]byte(delta)); werr != nil {
			return werr
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if started {
			s.logger.Warn("stream aborted mid-response", zap.Error(err))
			return
		}
		s.handleDomainError(w, err)
	}
}

// ChatStatus handles GET /api/v1/chat/status.
func (s *Server) ChatStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.quota.Status(r.Context(), callerIdentity(r))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"remaining": st.Remaining,
		"limit":     st.Limit,
	})
}

type searchRequest struct {
	QueryText   string    `json:"query_text,omitempty"`
	QueryVector []float32 `json:"query_vector,omitempty"`
	DocketID    string    `json:"docket_id,omitempty"`
	DocketIDs   []string  `json:"docket_ids,omitempty"`
	TopK        int       `json:"top_k,omitempty"`
	Sentiment   string    `json:"sentiment,omitempty"`
	ThemeID     string    `json:"theme_id,omitempty"`
}

type searchResultDTO struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Author     string  `json:"author,omitempty"`
	Sentiment  string  `json:"sentiment,omitempty"`
	Similarity float64 `json:"similarity"`
}

// Search handles POST /api/v1/search. A single docket returns a ranked
// list; multiple dockets return a per-docket map with partial results.
// A docket without embeddings falls back to lexical matching when the
// query arrived as text.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.DocketID == "" && len(req.DocketIDs) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "docket_id or docket_ids is required")
		return
	}

	ucReq := searchuc.Request{
		DocketID:    req.DocketID,
		QueryText:   req.QueryText,
		QueryVector: req.QueryVector,
		TopK:        req.TopK,
		Sentiment:   req.Sentiment,
		ThemeID:     req.ThemeID,
	}

	if len(req.DocketIDs) > 0 {
		perDocket, err := s.search.SearchAcross(r.Context(), ucReq, req.DocketIDs)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}

		out := make(map[string][]searchResultDTO, len(perDocket))
		for id, results := range perDocket {
			out[id] = resultsToDTO(results)
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": out})
		return
	}

	results, err := s.search.Search(r.Context(), ucReq)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) && req.QueryText != "" {
			s.lexicalFallback(w, r, req)
			return
		}
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": resultsToDTO(results)})
}

func (s *Server) lexicalFallback(w http.ResponseWriter, r *http.Request, req searchRequest) {
	results, err := s.search.TextSearch(r.Context(), req.DocketID, req.QueryText, req.TopK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	out := make([]searchResultDTO, len(results))
	for i, res := range results {
		out[i] = searchResultDTO{
			ID:         res.ID,
			Text:       res.Text,
			Author:     res.Author,
			Sentiment:  string(res.Sentiment),
			Similarity: res.Score,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out, "match": "lexical"})
}

type clusterRequest struct {
	K int `json:"k"`
}

type assignmentDTO struct {
	ID      string  `json:"id"`
	Cluster int     `json:"cluster"`
	Score   float64 `json:"score"`
}

// Clusters handles POST /api/v1/dockets/{docketID}/clusters.
func (s *Server) Clusters(w http.ResponseWriter, r *http.Request) {
	docketID := chi.URLParam(r, "docketID")

	var req clusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.K <= 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "k must be positive")
		return
	}

	assignments, err := s.search.Cluster(r.Context(), docketID, req.K)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	out := make([]assignmentDTO, len(assignments))
	for i, a := range assignments {
		out[i] = assignmentDTO{ID: a.ID, Cluster: a.ClusterIndex, Score: a.Score}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": out})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// callerIdentity is the quota key: the first X-Forwarded-For hop when
// present, else the remote address host.
func callerIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func answerToResponse(a domain.Answer) chatResponse {
	sources := make([]sourceDTO, len(a.Sources))
	for i, src := range a.Sources {
		sources[i] = sourceDTO{
			ID:         src.ID,
			Text:       src.Text,
			Author:     src.Author,
			Similarity: src.Similarity,
		}
	}
	return chatResponse{Response: a.Text, Sources: sources}
}

func resultsToDTO(results []domain.RetrievedComment) []searchResultDTO {
	out := make([]searchResultDTO, len(results))
	for i, res := range results {
		out[i] = searchResultDTO{
			ID:         res.ID,
			Text:       res.Text,
			Author:     res.Author,
			Sentiment:  res.Sentiment,
			Similarity: res.Similarity,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrInvalidRequest,
		domain.ErrVectorDimMismatch,
		openreg.ErrDimensionMismatch,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrCompletionProviderError,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// rateLimitHandler maps quota denials to 429 with a retry_after hint.
func rateLimitHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrRateLimited) {
		return false
	}

	retryAfter := 1
	var rle *domain.RateLimitError
	if errors.As(err, &rle) {
		retryAfter = rle.RetryAfterSeconds
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       msg,
		"retry_after": retryAfter,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
