package synth

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/llm"
	"github.com/construdocs/construdocs/pkg/errors"
)

type scriptedLLM struct {
	// errs are returned in order; once exhausted, reply succeeds
	errs  []error
	reply string
	calls int
}

func (s *scriptedLLM) Generate(context.Context, []*llm.Message, llm.Options) (*llm.Message, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return llm.NewMessage(llm.RoleAssistant, s.reply), nil
}

func rawRecord(t *testing.T, id string) *document.RawRecord {
	t.Helper()
	var rec document.RawRecord
	payload := `{"DocumentId": "` + id + `", "metadata": {"DocumentType": "Informe", "Title": "Avance de obra"}}`
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		t.Fatalf("build record: %v", err)
	}
	return &rec
}

func noSleep() (Option, *[]time.Duration) {
	var waits []time.Duration
	opt := withSleep(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	})
	return opt, &waits
}

func TestEnrichAttachesFullText(t *testing.T) {
	model := &scriptedLLM{reply: "Contenido sintético del informe de avance."}
	sleep, _ := noSleep()
	g := New(model, sleep)

	out, err := g.Enrich(context.Background(), rawRecord(t, "d1"))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if out.Kind() != document.KindSynthetic {
		t.Errorf("kind = %s, want synthetic", out.Kind())
	}
	if !strings.Contains(out.FullText, model.reply) {
		t.Errorf("full text = %q", out.FullText)
	}
	if !strings.Contains(out.FullText, "===== CONTENIDO DEL DOCUMENTO =====") {
		t.Errorf("full text missing section header: %q", out.FullText)
	}
	if out.DocumentID != "d1" {
		t.Errorf("document id = %q", out.DocumentID)
	}
}

func TestEnrichRetriesRateLimits(t *testing.T) {
	model := &scriptedLLM{
		errs: []error{
			&errors.RateLimitError{Err: errors.ErrLLMUnavailable},
			&errors.RateLimitError{RetryAfter: 30 * time.Second, Err: errors.ErrLLMUnavailable},
		},
		reply: "contenido",
	}
	sleep, waits := noSleep()
	g := New(model, sleep, WithBackoff(5*time.Second, time.Minute))

	out, err := g.Enrich(context.Background(), rawRecord(t, "d1"))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if model.calls != 3 {
		t.Errorf("calls = %d, want 3", model.calls)
	}
	if len(*waits) != 2 {
		t.Fatalf("waits = %v", *waits)
	}
	if (*waits)[0] != 5*time.Second {
		t.Errorf("first wait = %v, want base delay", (*waits)[0])
	}
	// second wait honors the larger retry-after hint over the doubled delay
	if (*waits)[1] != 30*time.Second {
		t.Errorf("second wait = %v, want retry-after hint", (*waits)[1])
	}
	if out.SyntheticContent != "contenido" {
		t.Errorf("content = %q", out.SyntheticContent)
	}
}

func TestEnrichExhaustedRetriesKeepsRecord(t *testing.T) {
	rl := &errors.RateLimitError{Err: errors.ErrLLMUnavailable}
	model := &scriptedLLM{errs: []error{rl, rl, rl, rl}}
	sleep, _ := noSleep()
	g := New(model, sleep, WithMaxRetries(2))

	out, err := g.Enrich(context.Background(), rawRecord(t, "d1"))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if out.FullText != "" || out.SyntheticContent != "" {
		t.Errorf("expected metadata-only record, got %q", out.FullText)
	}
	if model.calls != 3 {
		t.Errorf("calls = %d, want initial + 2 retries", model.calls)
	}
}

func TestEnrichNonRateLimitErrorNoRetry(t *testing.T) {
	model := &scriptedLLM{errs: []error{errors.ErrLLMUnavailable}, reply: "x"}
	sleep, waits := noSleep()
	g := New(model, sleep)

	out, err := g.Enrich(context.Background(), rawRecord(t, "d1"))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if model.calls != 1 || len(*waits) != 0 {
		t.Errorf("calls = %d waits = %v, want no retry", model.calls, *waits)
	}
	if out.SyntheticContent != "" {
		t.Errorf("content = %q, want empty after hard failure", out.SyntheticContent)
	}
}

func TestEnrichRejectsEmptyRecord(t *testing.T) {
	g := New(&scriptedLLM{reply: "x"})
	if _, err := g.Enrich(context.Background(), &document.RawRecord{}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestBuildPromptIncludesMetadata(t *testing.T) {
	prompt := buildPrompt(map[string]any{
		"DocumentType":   "Plano",
		"Title":          "Planta baja",
		"DocumentNumber": "AR-100",
	})
	for _, want := range []string{"Tipo: Plano", "Título: Planta baja", "Número: AR-100"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
