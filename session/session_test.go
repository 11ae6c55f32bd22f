package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/construdocs/construdocs/llm"
)

func TestMemoryStoreAppendAndRecent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Append(ctx, "s1",
		llm.NewMessage(llm.RoleUser, "hola"),
		llm.NewMessage(llm.RoleAssistant, "buenas"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	msgs, err := s.Recent(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "hola" || msgs[1].Content != "buenas" {
		t.Errorf("msgs = %+v", msgs)
	}
}

func TestMemoryStoreRecentWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, "s1", llm.NewMessage(llm.RoleUser, fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	msgs, _ := s.Recent(ctx, "s1", 2)
	if len(msgs) != 2 || msgs[0].Content != "m3" || msgs[1].Content != "m4" {
		t.Errorf("window = %+v", msgs)
	}
}

func TestMemoryStoreCapsRetention(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < maxMessages+20; i++ {
		if err := s.Append(ctx, "s1", llm.NewMessage(llm.RoleUser, fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	msgs, _ := s.Recent(ctx, "s1", maxMessages*2)
	if len(msgs) != maxMessages {
		t.Errorf("retained = %d, want %d", len(msgs), maxMessages)
	}
	if msgs[0].Content != "m20" {
		t.Errorf("oldest retained = %q", msgs[0].Content)
	}
}

func TestMemoryStoreSessionsIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Append(ctx, "a", llm.NewMessage(llm.RoleUser, "de a"))
	s.Append(ctx, "b", llm.NewMessage(llm.RoleUser, "de b"))

	msgs, _ := s.Recent(ctx, "a", 10)
	if len(msgs) != 1 || msgs[0].Content != "de a" {
		t.Errorf("session a = %+v", msgs)
	}
}
