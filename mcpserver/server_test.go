package mcpserver

import (
	"context"
	"testing"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/rag"
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

type stubChatter struct {
	answer *rag.Answer
}

func (s *stubChatter) Chat(context.Context, rag.Request) (*rag.Answer, error) {
	return s.answer, nil
}

func TestSearchHandler(t *testing.T) {
	r := &stubRetriever{resp: &search.Response{
		Results: []document.SearchResult{
			{DocumentID: "d1", Title: "Plano", Snippet: "detalle", Score: 0.8},
		},
		Tier: "strict",
	}}
	s := NewServer(r, &stubChatter{}, "test")

	_, out, err := s.searchHandler(context.Background(), nil, SearchInput{Query: "plano", Limit: 5})
	if err != nil {
		t.Fatalf("searchHandler: %v", err)
	}
	if r.got.Limit != 5 || r.got.Text != "plano" {
		t.Errorf("query = %+v", r.got)
	}
	if len(out.Results) != 1 || out.Results[0].DocumentID != "d1" || out.Tier != "strict" {
		t.Errorf("output = %+v", out)
	}
}

func TestAskHandler(t *testing.T) {
	ch := &stubChatter{answer: &rag.Answer{
		Text:      "respuesta",
		SessionID: "s1",
		Sources: []document.SearchResult{
			{DocumentID: "d1", Title: "Plano", Score: 0.7},
		},
	}}
	s := NewServer(&stubRetriever{}, ch, "test")

	_, out, err := s.askHandler(context.Background(), nil, AskInput{Question: "¿qué incluye?"})
	if err != nil {
		t.Fatalf("askHandler: %v", err)
	}
	if out.Answer != "respuesta" || out.SessionID != "s1" || len(out.Sources) != 1 {
		t.Errorf("output = %+v", out)
	}
}
