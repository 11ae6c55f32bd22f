package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/llm"
	"github.com/construdocs/construdocs/pkg/errors"
	"github.com/construdocs/construdocs/search"
)

type stubRetriever struct {
	resp *search.Response
	got  search.Query
}

func (s *stubRetriever) Retrieve(_ context.Context, q search.Query) (*search.Response, error) {
	s.got = q
	return s.resp, nil
}

type stubLLM struct {
	reply string
	err   error
	calls int
	last  []*llm.Message
	opts  llm.Options
}

func (s *stubLLM) Generate(_ context.Context, msgs []*llm.Message, opts llm.Options) (*llm.Message, error) {
	s.calls++
	s.last = msgs
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return llm.NewMessage(llm.RoleAssistant, s.reply), nil
}

type memHistory struct {
	msgs map[string][]*llm.Message
}

func (h *memHistory) Append(_ context.Context, sessionID string, msgs ...*llm.Message) error {
	if h.msgs == nil {
		h.msgs = map[string][]*llm.Message{}
	}
	h.msgs[sessionID] = append(h.msgs[sessionID], msgs...)
	return nil
}

func (h *memHistory) Recent(_ context.Context, sessionID string, n int) ([]*llm.Message, error) {
	msgs := h.msgs[sessionID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func resultsWithScores(scores ...float64) []document.SearchResult {
	out := make([]document.SearchResult, len(scores))
	for i, s := range scores {
		out[i] = document.SearchResult{
			DocumentID: "doc",
			Title:      "Plano estructural",
			Snippet:    "Detalle de armaduras y anclajes.",
			Score:      s,
		}
	}
	return out
}

func TestChatShortCircuitsWithoutRelevantDocs(t *testing.T) {
	r := &stubRetriever{resp: &search.Response{Results: resultsWithScores(0.18, 0.1)}}
	model := &stubLLM{reply: "no debería llamarse"}
	o := New(r, model)

	ans, err := o.Chat(context.Background(), Request{Question: "¿quién ganó el mundial?"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if ans.Text != NoRelevantInfoAnswer {
		t.Errorf("answer = %q", ans.Text)
	}
	if model.calls != 0 {
		t.Error("model must not be called on short circuit")
	}
	if ans.SessionID == "" {
		t.Error("missing session id")
	}
}

func TestChatShortCircuitsOnWeakBestScore(t *testing.T) {
	// one doc passes the relevance gate but the best score is under the
	// trap-question threshold
	r := &stubRetriever{resp: &search.Response{Results: resultsWithScores(0.22)}}
	model := &stubLLM{reply: "x"}
	ans, err := New(r, model).Chat(context.Background(), Request{Question: "pregunta trampa"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if ans.Text != NoRelevantInfoAnswer || model.calls != 0 {
		t.Errorf("answer = %q calls = %d", ans.Text, model.calls)
	}
}

func TestChatCallsModelWithContext(t *testing.T) {
	r := &stubRetriever{resp: &search.Response{Results: resultsWithScores(0.8, 0.5, 0.15)}}
	model := &stubLLM{reply: "El plano incluye detalles de armaduras."}
	o := New(r, model)

	ans, err := o.Chat(context.Background(), Request{Question: "¿qué incluye el plano?"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if ans.Text != model.reply || ans.Fallback {
		t.Errorf("answer = %+v", ans)
	}
	// only docs above the relevance gate reach the context
	if len(ans.Sources) != 2 {
		t.Errorf("sources = %d, want 2", len(ans.Sources))
	}
	if !strings.Contains(ans.ContextUsed, "📄 Documento 1 (Relevancia: 80.0%)") {
		t.Errorf("context header wrong:\n%s", ans.ContextUsed)
	}
	if model.opts.Temperature != 0.3 || model.opts.MaxTokens != 2500 || model.opts.TopP != 0.95 {
		t.Errorf("sampling options = %+v", model.opts)
	}
	if model.last[0].Role != llm.RoleSystem {
		t.Error("system prompt missing")
	}
}

func TestChatExtractiveFallbackOnModelFailure(t *testing.T) {
	r := &stubRetriever{resp: &search.Response{Results: resultsWithScores(0.8, 0.7, 0.6, 0.5)}}
	model := &stubLLM{err: errors.ErrLLMUnavailable}
	ans, err := New(r, model).Chat(context.Background(), Request{Question: "planos"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !ans.Fallback {
		t.Fatal("expected fallback answer")
	}
	if !strings.Contains(ans.Text, "Encontré 4 documentos relevantes") {
		t.Errorf("fallback text = %q", ans.Text)
	}
	// fallback lists at most three sources
	if strings.Contains(ans.Text, "**4.") {
		t.Errorf("fallback should cap at 3 entries:\n%s", ans.Text)
	}
}

func TestChatReplaysHistory(t *testing.T) {
	r := &stubRetriever{resp: &search.Response{Results: resultsWithScores(0.8, 0.7, 0.6)}}
	model := &stubLLM{reply: "respuesta"}
	h := &memHistory{}
	o := New(r, model, WithHistory(h))

	if _, err := o.Chat(context.Background(), Request{Question: "primera", SessionID: "s1"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, err := o.Chat(context.Background(), Request{Question: "segunda", SessionID: "s1"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	// second call: system + 2 history turns + current question
	if len(model.last) != 4 {
		t.Fatalf("messages = %d, want 4", len(model.last))
	}
	if model.last[1].Content != "primera" || model.last[2].Content != "respuesta" {
		t.Errorf("history not replayed: %q / %q", model.last[1].Content, model.last[2].Content)
	}
}

func TestChatUsesRequestHistoryOverSessionRecall(t *testing.T) {
	r := &stubRetriever{resp: &search.Response{Results: resultsWithScores(0.8, 0.7, 0.6)}}
	model := &stubLLM{reply: "respuesta"}
	h := &memHistory{}
	o := New(r, model, WithHistory(h))

	// seed the session with turns that must NOT be replayed
	if _, err := o.Chat(context.Background(), Request{Question: "antigua", SessionID: "s1"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	req := Request{
		Question:  "actual",
		SessionID: "s1",
		History: []*llm.Message{
			llm.NewMessage(llm.RoleUser, "pregunta previa"),
			llm.NewMessage(llm.RoleAssistant, "respuesta previa"),
		},
	}
	if _, err := o.Chat(context.Background(), req); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(model.last) != 4 {
		t.Fatalf("messages = %d, want 4", len(model.last))
	}
	if model.last[1].Content != "pregunta previa" || model.last[2].Content != "respuesta previa" {
		t.Errorf("request history not used: %q / %q", model.last[1].Content, model.last[2].Content)
	}
}

func TestChatWindowsRequestHistory(t *testing.T) {
	r := &stubRetriever{resp: &search.Response{Results: resultsWithScores(0.8, 0.7, 0.6)}}
	model := &stubLLM{reply: "ok"}
	o := New(r, model)

	var turns []*llm.Message
	for i := 0; i < 20; i++ {
		turns = append(turns, llm.NewMessage(llm.RoleUser, "turno"))
	}
	if _, err := o.Chat(context.Background(), Request{Question: "q", History: turns}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	// system + windowed history + current question
	if len(model.last) != historyWindow+2 {
		t.Errorf("messages = %d, want %d", len(model.last), historyWindow+2)
	}
}

func TestChatHonorsMaxContextDocs(t *testing.T) {
	r := &stubRetriever{resp: &search.Response{Results: resultsWithScores(0.8)}}
	model := &stubLLM{reply: "ok"}
	o := New(r, model)

	if _, err := o.Chat(context.Background(), Request{Question: "q", MaxContextDocs: 3}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if r.got.Limit != 3 {
		t.Errorf("retrieval limit = %d, want 3", r.got.Limit)
	}
	if _, err := o.Chat(context.Background(), Request{Question: "q"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if r.got.Limit != defaultContextDocs {
		t.Errorf("retrieval limit = %d, want default %d", r.got.Limit, defaultContextDocs)
	}
}

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func TestChatTrimsContextToBudget(t *testing.T) {
	results := resultsWithScores(0.9, 0.8, 0.7, 0.6, 0.5)
	r := &stubRetriever{resp: &search.Response{Results: results}}
	model := &stubLLM{reply: "ok"}
	o := New(r, model, WithTokenCounter(wordCounter{}), WithTokenBudget(120))

	ans, err := o.Chat(context.Background(), Request{Question: "pregunta"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(ans.Sources) >= 5 {
		t.Errorf("sources = %d, want trimmed", len(ans.Sources))
	}
	if len(ans.Sources) == 0 {
		t.Error("budget trim must keep at least one document")
	}
}

func TestChatAboutResultsUsesStrictPrompt(t *testing.T) {
	model := &stubLLM{reply: "según el documento, sí"}
	o := New(&stubRetriever{}, model)
	ans, err := o.ChatAboutResults(context.Background(), "¿dice algo de anclajes?", resultsWithScores(0.9))
	if err != nil {
		t.Fatalf("ChatAboutResults: %v", err)
	}
	if ans.Text != model.reply {
		t.Errorf("answer = %q", ans.Text)
	}
	if model.last[0].Content != strictSystemPrompt {
		t.Error("strict system prompt not used")
	}
	if model.opts.Temperature != 0.1 || model.opts.MaxTokens != 800 {
		t.Errorf("sampling options = %+v", model.opts)
	}
}

func TestChatAboutResultsEmptyScope(t *testing.T) {
	model := &stubLLM{reply: "x"}
	o := New(&stubRetriever{}, model)
	ans, err := o.ChatAboutResults(context.Background(), "pregunta", nil)
	if err != nil {
		t.Fatalf("ChatAboutResults: %v", err)
	}
	if ans.Text != NoRelevantInfoAnswer || model.calls != 0 {
		t.Errorf("answer = %q calls = %d", ans.Text, model.calls)
	}
}

func TestBuildContextDelimiter(t *testing.T) {
	got := buildContext(resultsWithScores(0.9, 0.8))
	if strings.Count(got, contextDelimiter) != 2 {
		t.Errorf("delimiters = %d, want 2:\n%s", strings.Count(got, contextDelimiter), got)
	}
}
