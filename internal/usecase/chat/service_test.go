package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/jxucoder/openregulations.ai/internal/domain"
)

type mockQuota struct {
	checkErr error
	checks   int
	records  int
}

func (m *mockQuota) Check(_ context.Context, _ string) (domain.QuotaStatus, error) {
	m.checks++
	if m.checkErr != nil {
		return domain.QuotaStatus{}, m.checkErr
	}
	return domain.QuotaStatus{Limit: 50, Remaining: 49}, nil
}

func (m *mockQuota) Record(_ context.Context, _ string) error {
	m.records++
	return nil
}

type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type mockRetriever struct {
	results []domain.RetrievedComment
	err     error
	calls   int
	topK    int
}

func (m *mockRetriever) Retrieve(_ context.Context, _ string, _ []float32, topK int) ([]domain.RetrievedComment, error) {
	m.calls++
	m.topK = topK
	return m.results, m.err
}

type mockAnalysis struct {
	summary *domain.AnalysisSummary
	err     error
	calls   int
}

func (m *mockAnalysis) Get(_ context.Context, _ string) (*domain.AnalysisSummary, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

type mockCompleter struct {
	text      string
	err       error
	deltas    []string
	streamErr error
	// errAfter is how many deltas are emitted before streamErr fires;
	// zero fails before any byte is delivered.
	errAfter int

	completeCalls int
	streamCalls   int
	lastSystem    string
	lastTurns     []domain.ChatTurn
}

func (m *mockCompleter) Complete(_ context.Context, system string, turns []domain.ChatTurn) (string, error) {
	m.completeCalls++
	m.lastSystem = system
	m.lastTurns = turns
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *mockCompleter) CompleteStream(_ context.Context, system string, turns []domain.ChatTurn, onDelta func(string) error) (string, error) {
	m.streamCalls++
	m.lastSystem = system
	m.lastTurns = turns
	deltas := m.deltas
	if m.streamErr != nil {
		if m.errAfter <= 0 {
			return "", m.streamErr
		}
		deltas = deltas[:m.errAfter]
	}

	var b strings.Builder
	for _, d := range deltas {
		if err := onDelta(d); err != nil {
			return "", err
		}
		b.WriteString(d)
	}
	if m.streamErr != nil {
		return "", m.streamErr
	}
	return b.String(), nil
}

type fixture struct {
	quota     *mockQuota
	embedder  *mockEmbedder
	retriever *mockRetriever
	analysis  *mockAnalysis
	completer *mockCompleter
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		quota:    &mockQuota{},
		embedder: &mockEmbedder{},
		retriever: &mockRetriever{results: []domain.RetrievedComment{
			{ID: "c1", Text: "We support the rule.", Author: "Jane Doe", Similarity: 0.91},
			{ID: "c2", Text: "Costs are prohibitive.", Similarity: 0.85},
			{ID: "c3", Text: "Neutral observation.", Author: "Bob", Similarity: 0.7},
			{ID: "c4", Text: "Another comment.", Author: "Ann", Similarity: 0.6},
		}},
		analysis:  &mockAnalysis{summary: &domain.AnalysisSummary{ExecutiveSummary: "Broad support."}},
		completer: &mockCompleter{text: "Commenters largely support the rule."},
	}
	f.svc = New(f.quota, f.embedder, f.retriever, f.analysis, f.completer, zap.NewNop())
	return f
}

func request() Request {
	return Request{
		Identity: "10.0.0.1",
		Message:  "What do commenters think?",
		DocketID: "EPA-2024-0001",
	}
}

func TestAnswer(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.Answer(context.Background(), request())
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	if got.Text != "Commenters largely support the rule." {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Sources) != 3 {
		t.Fatalf("sources = %d, want 3", len(got.Sources))
	}
	if got.Sources[0].ID != "c1" || got.Sources[1].ID != "c2" || got.Sources[2].ID != "c3" {
		t.Errorf("source order = %s, %s, %s", got.Sources[0].ID, got.Sources[1].ID, got.Sources[2].ID)
	}
	if f.retriever.topK != retrievalTopK {
		t.Errorf("retrieval topK = %d, want %d", f.retriever.topK, retrievalTopK)
	}
	if f.quota.records != 1 {
		t.Errorf("quota records = %d, want 1", f.quota.records)
	}
	if !strings.Contains(f.completer.lastSystem, "Broad support.") {
		t.Error("system prompt missing analysis grounding")
	}
	if !strings.Contains(f.completer.lastSystem, "Jane Doe") {
		t.Error("system prompt missing retrieved comment")
	}
}

func TestAnswer_RateLimitedFailsFast(t *testing.T) {
	f := newFixture(t)
	f.quota.checkErr = domain.NewRateLimit(120)

	_, err := f.svc.Answer(context.Background(), request())

	var rle *domain.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("error = %v, want *RateLimitError", err)
	}
	if rle.RetryAfterSeconds != 120 {
		t.Errorf("RetryAfterSeconds = %d", rle.RetryAfterSeconds)
	}
	if f.embedder.calls+f.retriever.calls+f.analysis.calls+f.completer.completeCalls != 0 {
		t.Error("downstream collaborators called after quota denial")
	}
	if f.quota.records != 0 {
		t.Error("quota recorded on denied request")
	}
}

func TestAnswer_EmbeddingFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.embedder.err = domain.ErrEmbeddingProviderError

	got, err := f.svc.Answer(context.Background(), request())
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if f.retriever.calls != 0 {
		t.Error("retriever called without an embedding")
	}
	if len(got.Sources) != 0 {
		t.Errorf("sources = %d, want 0", len(got.Sources))
	}
	if got.Text == "" {
		t.Error("degraded turn must still answer")
	}
	if f.quota.records != 1 {
		t.Error("successful degraded turn must record quota")
	}
}

func TestAnswer_AnalysisAbsenceTolerated(t *testing.T) {
	f := newFixture(t)
	f.analysis.err = domain.ErrNotFound

	got, err := f.svc.Answer(context.Background(), request())
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got.Text == "" {
		t.Error("turn failed on missing analysis")
	}
}

func TestAnswer_CompletionFailureFatal(t *testing.T) {
	f := newFixture(t)
	f.completer.err = domain.ErrCompletionProviderError

	_, err := f.svc.Answer(context.Background(), request())
	if !errors.Is(err, domain.ErrCompletionProviderError) {
		t.Fatalf("error = %v, want ErrCompletionProviderError", err)
	}
	if f.quota.records != 0 {
		t.Error("quota recorded for failed completion")
	}
}

func TestAnswer_EmptyMessage(t *testing.T) {
	f := newFixture(t)

	req := request()
	req.Message = ""
	_, err := f.svc.Answer(context.Background(), req)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
	if f.quota.checks != 0 {
		t.Error("quota checked for invalid request")
	}
}

func TestAnswer_NoDocketSkipsRetrieval(t *testing.T) {
	f := newFixture(t)

	req := request()
	req.DocketID = ""
	got, err := f.svc.Answer(context.Background(), req)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if f.embedder.calls != 0 || f.retriever.calls != 0 || f.analysis.calls != 0 {
		t.Error("docket collaborators called without a docket")
	}
	if len(got.Sources) != 0 {
		t.Error("sources present without retrieval")
	}
}

func TestAnswer_HistoryTruncatedToLastSix(t *testing.T) {
	f := newFixture(t)

	req := request()
	for i := 0; i < 10; i++ {
		req.History = append(req.History,
			domain.ChatTurn{Role: domain.RoleUser, Content: "old"},
		)
	}
	req.History[4].Content = "first kept"

	if _, err := f.svc.Answer(context.Background(), req); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	turns := f.completer.lastTurns
	if len(turns) != maxHistoryTurns+1 {
		t.Fatalf("turns = %d, want %d", len(turns), maxHistoryTurns+1)
	}
	if turns[0].Content != "first kept" {
		t.Errorf("first turn = %q, want oldest kept history turn", turns[0].Content)
	}
	last := turns[len(turns)-1]
	if last.Role != domain.RoleUser || last.Content != req.Message {
		t.Errorf("last turn = %+v, want current message", last)
	}
}

func TestAnswer_SourceTextTruncated(t *testing.T) {
	f := newFixture(t)
	f.retriever.results = []domain.RetrievedComment{
		{ID: "c1", Text: strings.Repeat("x", 500), Author: "a", Similarity: 0.9},
	}

	got, err := f.svc.Answer(context.Background(), request())
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if n := len([]rune(got.Sources[0].Text)); n > sourceTextLimit+3 {
		t.Errorf("source text runes = %d, want <= %d", n, sourceTextLimit+3)
	}
}

func TestAnswerStream_RelaysDeltas(t *testing.T) {
	f := newFixture(t)
	f.completer.deltas = []string{"Commenters ", "largely ", "support."}

	var streamed strings.Builder
	got, err := f.svc.AnswerStream(context.Background(), request(), func(d string) error {
		streamed.WriteString(d)
		return nil
	})
	if err != nil {
		t.Fatalf("AnswerStream() error = %v", err)
	}

	want := "Commenters largely support."
	if streamed.String() != want {
		t.Errorf("streamed = %q", streamed.String())
	}
	if got.Text != want {
		t.Errorf("Text = %q", got.Text)
	}
	if f.completer.completeCalls != 0 {
		t.Error("non-streamed path used on healthy stream")
	}
	if f.quota.records != 1 {
		t.Error("quota not recorded")
	}
}

func TestAnswerStream_FallsBackBeforeFirstByte(t *testing.T) {
	f := newFixture(t)
	f.completer.streamErr = domain.ErrCompletionProviderError
	f.completer.text = "fallback answer"

	var streamed strings.Builder
	got, err := f.svc.AnswerStream(context.Background(), request(), func(d string) error {
		streamed.WriteString(d)
		return nil
	})
	if err != nil {
		t.Fatalf("AnswerStream() error = %v", err)
	}
	if got.Text != "fallback answer" {
		t.Errorf("Text = %q", got.Text)
	}
	if streamed.String() != "fallback answer" {
		t.Errorf("streamed = %q, fallback must flow through onDelta", streamed.String())
	}
	if f.completer.completeCalls != 1 {
		t.Errorf("complete calls = %d, want 1", f.completer.completeCalls)
	}
	if f.quota.records != 1 {
		t.Error("quota not recorded after successful fallback")
	}
}

func TestAnswerStream_NoFallbackAfterFirstByte(t *testing.T) {
	f := newFixture(t)
	f.completer.deltas = []string{"partial "}
	f.completer.streamErr = domain.ErrCompletionProviderError
	f.completer.errAfter = 1

	_, err := f.svc.AnswerStream(context.Background(), request(), func(string) error { return nil })
	if !errors.Is(err, domain.ErrCompletionProviderError) {
		t.Fatalf("error = %v, want ErrCompletionProviderError", err)
	}
	if f.completer.completeCalls != 0 {
		t.Error("fallback attempted after delivered output")
	}
	if f.quota.records != 0 {
		t.Error("quota recorded for failed stream")
	}
}
