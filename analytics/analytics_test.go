package analytics

import (
	"context"
	"errors"
	"testing"
)

type countingSink struct {
	feedback int
	searches int
	err      error
}

func (s *countingSink) RecordFeedback(context.Context, Feedback) error {
	s.feedback++
	return s.err
}

func (s *countingSink) RecordSearch(context.Context, SearchEvent) error {
	s.searches++
	return s.err
}

func TestMultiFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := Multi{a, b}
	ctx := context.Background()

	if err := m.RecordFeedback(ctx, Feedback{SessionID: "s", Rating: 5}); err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}
	if err := m.RecordSearch(ctx, SearchEvent{Query: "q"}); err != nil {
		t.Fatalf("RecordSearch: %v", err)
	}
	if a.feedback != 1 || b.feedback != 1 || a.searches != 1 || b.searches != 1 {
		t.Errorf("sinks = %+v %+v", a, b)
	}
}

func TestMultiStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	a := &countingSink{err: boom}
	b := &countingSink{}
	m := Multi{a, b}

	if err := m.RecordFeedback(context.Background(), Feedback{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if b.feedback != 0 {
		t.Error("second sink should not run after failure")
	}
}

func TestNoop(t *testing.T) {
	var n Noop
	if err := n.RecordFeedback(context.Background(), Feedback{}); err != nil {
		t.Errorf("noop feedback: %v", err)
	}
	if err := n.RecordSearch(context.Background(), SearchEvent{}); err != nil {
		t.Errorf("noop search: %v", err)
	}
}
