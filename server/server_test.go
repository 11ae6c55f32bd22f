package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/construdocs/construdocs/analytics"
	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/pkg/errors"
	"github.com/construdocs/construdocs/rag"
	"github.com/construdocs/construdocs/search"
	"github.com/construdocs/construdocs/upload"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDocs struct {
	doc     document.Document
	file    []byte
	name    string
	count   int64
	missing bool
}

func (s *stubDocs) GetDocument(_ context.Context, id string) (document.Document, error) {
	if s.missing {
		return document.Document{}, fmt.Errorf("document %s: %w", id, errors.ErrNotFound)
	}
	return s.doc, nil
}

func (s *stubDocs) GetDocumentFile(_ context.Context, id string) ([]byte, string, error) {
	if s.missing {
		return nil, "", fmt.Errorf("document %s: %w", id, errors.ErrNotFound)
	}
	return s.file, s.name, nil
}

func (s *stubDocs) CountDocuments(context.Context) (int64, error) { return s.count, nil }

type stubRetriever struct {
	resp *search.Response
	got  search.Query
}

func (s *stubRetriever) Retrieve(_ context.Context, q search.Query) (*search.Response, error) {
	s.got = q
	return s.resp, nil
}

type stubChatter struct {
	answer     *rag.Answer
	gotReq     rag.Request
	gotResults []document.SearchResult
}

func (s *stubChatter) Chat(_ context.Context, req rag.Request) (*rag.Answer, error) {
	s.gotReq = req
	return s.answer, nil
}

func (s *stubChatter) ChatAboutResults(_ context.Context, question string, results []document.SearchResult) (*rag.Answer, error) {
	s.gotResults = results
	return s.answer, nil
}

type stubUploader struct {
	res     *upload.Result
	err     error
	gotMeta upload.Metadata
}

func (s *stubUploader) Index(_ context.Context, filename string, _ []byte, meta upload.Metadata) (*upload.Result, error) {
	s.gotMeta = meta
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

type memSink struct {
	feedback []analytics.Feedback
	searches []analytics.SearchEvent
}

func (m *memSink) RecordFeedback(_ context.Context, fb analytics.Feedback) error {
	m.feedback = append(m.feedback, fb)
	return nil
}

func (m *memSink) RecordSearch(_ context.Context, ev analytics.SearchEvent) error {
	m.searches = append(m.searches, ev)
	return nil
}

func results(scores ...float64) []document.SearchResult {
	out := make([]document.SearchResult, len(scores))
	for i, s := range scores {
		out[i] = document.SearchResult{DocumentID: fmt.Sprintf("d%d", i), Title: "Doc", Score: s}
	}
	return out
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := New(&stubDocs{count: 42}, &stubRetriever{}, &stubChatter{}, &stubUploader{})
	w := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"documents":42`) {
		t.Errorf("body = %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestSearchAppliesSecondaryCutoff(t *testing.T) {
	r := &stubRetriever{resp: &search.Response{Results: results(0.8, 0.5, 0.44), Tier: "strict"}}
	sink := &memSink{}
	s := New(&stubDocs{}, r, &stubChatter{}, &stubUploader{}, WithAnalytics(sink))

	w := doJSON(t, s.Handler(), http.MethodPost, "/search", map[string]any{"query": "acero"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var rows []document.SearchResult
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// 0.44 falls below the 0.45 cutoff for a strong best score
	if len(rows) != 2 {
		t.Errorf("results = %d, want 2", len(rows))
	}
	if len(sink.searches) != 1 || sink.searches[0].Query != "acero" {
		t.Errorf("search event = %+v", sink.searches)
	}
}

func TestSearchForwardsTopKAndProbes(t *testing.T) {
	r := &stubRetriever{resp: &search.Response{Results: results(0.8)}}
	s := New(&stubDocs{}, r, &stubChatter{}, &stubUploader{})

	w := doJSON(t, s.Handler(), http.MethodPost, "/search",
		map[string]any{"query": "acero", "top_k": 3, "probes": 50})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if r.got.Limit != 3 || r.got.Probes != 50 {
		t.Errorf("query = limit %d probes %d, want 3/50", r.got.Limit, r.got.Probes)
	}
}

func TestSearchValidatesRanges(t *testing.T) {
	s := New(&stubDocs{}, &stubRetriever{}, &stubChatter{}, &stubUploader{})
	for name, body := range map[string]map[string]any{
		"top_k too large":  {"query": "q", "top_k": 51},
		"top_k negative":   {"query": "q", "top_k": -1},
		"probes too large": {"query": "q", "probes": 101},
	} {
		w := doJSON(t, s.Handler(), http.MethodPost, "/search", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestSearchWeakResultsEmptyArray(t *testing.T) {
	r := &stubRetriever{resp: &search.Response{Results: results(0.3, 0.2)}}
	s := New(&stubDocs{}, r, &stubChatter{}, &stubUploader{})
	w := doJSON(t, s.Handler(), http.MethodPost, "/search", map[string]any{"query": "nada"})
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %s, want empty array", got)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	s := New(&stubDocs{}, &stubRetriever{}, &stubChatter{}, &stubUploader{})
	w := doJSON(t, s.Handler(), http.MethodPost, "/search", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestChat(t *testing.T) {
	ch := &stubChatter{answer: &rag.Answer{
		Question:  "¿qué hay?",
		Text:      "respuesta",
		SessionID: "s1",
		Sources:   results(0.8),
	}}
	s := New(&stubDocs{}, &stubRetriever{}, ch, &stubUploader{})
	w := doJSON(t, s.Handler(), http.MethodPost, "/chat",
		map[string]any{"question": "¿qué hay?", "session_id": "s1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if ch.gotReq.SessionID != "s1" {
		t.Errorf("request = %+v", ch.gotReq)
	}
	if !strings.Contains(w.Body.String(), `"answer":"respuesta"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestChatForwardsHistoryAndContextCap(t *testing.T) {
	ch := &stubChatter{answer: &rag.Answer{Text: "ok", SessionID: "s1"}}
	s := New(&stubDocs{}, &stubRetriever{}, ch, &stubUploader{})

	w := doJSON(t, s.Handler(), http.MethodPost, "/chat", map[string]any{
		"question":         "¿y la fase dos?",
		"max_context_docs": 7,
		"history": []map[string]string{
			{"role": "user", "content": "¿qué cubre el contrato?"},
			{"role": "assistant", "content": "Cubre la obra gruesa."},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if ch.gotReq.MaxContextDocs != 7 {
		t.Errorf("max context docs = %d, want 7", ch.gotReq.MaxContextDocs)
	}
	if len(ch.gotReq.History) != 2 || ch.gotReq.History[1].Content != "Cubre la obra gruesa." {
		t.Errorf("history = %+v", ch.gotReq.History)
	}
}

func TestChatValidation(t *testing.T) {
	s := New(&stubDocs{}, &stubRetriever{}, &stubChatter{answer: &rag.Answer{}}, &stubUploader{})

	w := doJSON(t, s.Handler(), http.MethodPost, "/chat",
		map[string]any{"question": "q", "max_context_docs": 51})
	if w.Code != http.StatusBadRequest {
		t.Errorf("oversized max_context_docs: status = %d, want 400", w.Code)
	}
	w = doJSON(t, s.Handler(), http.MethodPost, "/chat", map[string]any{
		"question": "q",
		"history":  []map[string]string{{"role": "system", "content": "x"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad history role: status = %d, want 400", w.Code)
	}
}

func TestFeedbackValidation(t *testing.T) {
	sink := &memSink{}
	s := New(&stubDocs{}, &stubRetriever{}, &stubChatter{}, &stubUploader{}, WithAnalytics(sink))

	w := doJSON(t, s.Handler(), http.MethodPost, "/feedback",
		map[string]any{"session_id": "s1", "rating": 9})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for out-of-range rating", w.Code)
	}

	w = doJSON(t, s.Handler(), http.MethodPost, "/feedback",
		map[string]any{"session_id": "s1", "rating": 4, "comment": "útil"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if len(sink.feedback) != 1 || sink.feedback[0].Rating != 4 {
		t.Errorf("feedback = %+v", sink.feedback)
	}
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write(content)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	up := &stubUploader{res: &upload.Result{
		DocumentID: "upload-1", ProjectID: "UPLOADED", Title: "doc", Chunks: 2, TextLength: 33,
	}}
	s := New(&stubDocs{}, &stubRetriever{}, &stubChatter{}, up)

	body, contentType := multipartBody(t, "doc.txt", []byte("contenido suficiente para indexar"), nil)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	for _, want := range []string{
		`"status":"success"`,
		`"document_id":"upload-1"`,
		`"project_id":"UPLOADED"`,
		`"chunks_created":2`,
		`"text_length":33`,
	} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("body missing %s: %s", want, w.Body.String())
		}
	}
}

func TestUploadForwardsMetadata(t *testing.T) {
	up := &stubUploader{res: &upload.Result{DocumentID: "upload-1"}}
	s := New(&stubDocs{}, &stubRetriever{}, &stubChatter{}, up)

	body, contentType := multipartBody(t, "doc.txt", []byte("contenido suficiente"),
		map[string]string{"metadata": `{"project_id": "OBRA-7", "title": "Acta"}`})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if up.gotMeta.ProjectID != "OBRA-7" || up.gotMeta.Title != "Acta" {
		t.Errorf("metadata = %+v", up.gotMeta)
	}
}

func TestUploadRejectsMalformedMetadata(t *testing.T) {
	s := New(&stubDocs{}, &stubRetriever{}, &stubChatter{}, &stubUploader{})

	body, contentType := multipartBody(t, "doc.txt", []byte("contenido suficiente"),
		map[string]string{"metadata": "{rotolleno"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUploadUnsupportedType(t *testing.T) {
	up := &stubUploader{err: fmt.Errorf("tipo: %w", errors.ErrUnsupportedFormat)}
	s := New(&stubDocs{}, &stubRetriever{}, &stubChatter{}, up)

	body, contentType := multipartBody(t, "x.exe", []byte("mz"), nil)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUploadAndQueryScopesToNewDocument(t *testing.T) {
	up := &stubUploader{res: &upload.Result{DocumentID: "d1"}}
	r := &stubRetriever{resp: &search.Response{Results: results(0.9, 0.8, 0.7)}}
	ch := &stubChatter{answer: &rag.Answer{Text: "según el documento"}}
	s := New(&stubDocs{}, r, ch, up)

	body, contentType := multipartBody(t, "nuevo.txt",
		[]byte("texto del documento subido"), map[string]string{"question": "¿qué dice?"})
	req := httptest.NewRequest(http.MethodPost, "/upload-and-query", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	// results carry ids d0,d1,d2; only d1 matches the uploaded document
	if len(ch.gotResults) != 1 || ch.gotResults[0].DocumentID != "d1" {
		t.Errorf("scoped results = %+v", ch.gotResults)
	}
	for _, want := range []string{`"upload_result":`, `"query_result":`, `"status":"success"`} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("body missing %s: %s", want, w.Body.String())
		}
	}
}

func TestUploadAndQueryFallsBackToTopMatches(t *testing.T) {
	up := &stubUploader{res: &upload.Result{DocumentID: "missing"}}
	r := &stubRetriever{resp: &search.Response{Results: results(0.9, 0.8, 0.7, 0.6)}}
	ch := &stubChatter{answer: &rag.Answer{Text: "x"}}
	s := New(&stubDocs{}, r, ch, up)

	body, contentType := multipartBody(t, "nuevo.txt",
		[]byte("texto"), map[string]string{"question": "¿qué dice?"})
	req := httptest.NewRequest(http.MethodPost, "/upload-and-query", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if len(ch.gotResults) != 3 {
		t.Errorf("fallback scope = %d, want top 3", len(ch.gotResults))
	}
}

func TestDocumentFile(t *testing.T) {
	docs := &stubDocs{file: []byte("%PDF-1.4"), name: "plano.pdf"}
	s := New(docs, &stubRetriever{}, &stubChatter{}, &stubUploader{})
	w := doJSON(t, s.Handler(), http.MethodGet, "/document/d1/file", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
}

func TestDocumentFileNotFound(t *testing.T) {
	s := New(&stubDocs{missing: true}, &stubRetriever{}, &stubChatter{}, &stubUploader{})
	w := doJSON(t, s.Handler(), http.MethodGet, "/document/nope/file", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "detail") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestDocumentPreview(t *testing.T) {
	docs := &stubDocs{doc: document.Document{DocumentID: "d1", Title: "Plano"}}
	s := New(docs, &stubRetriever{}, &stubChatter{}, &stubUploader{})
	w := doJSON(t, s.Handler(), http.MethodGet, "/document/d1/preview", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"title":"Plano"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
