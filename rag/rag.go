// Package rag orchestrates question answering over the indexed corpus:
// retrieve, gate on relevance, build a token-budgeted context, call the model,
// and fall back to extractive summaries when the model is unreachable.
package rag

import (
	"context"

	"github.com/google/uuid"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/llm"
	"github.com/construdocs/construdocs/pkg/logging"
	"github.com/construdocs/construdocs/pkg/telemetry"
	"github.com/construdocs/construdocs/search"
)

// Relevance gates for the chat path. Documents below relevantScore never reach
// the model; a batch whose best score is below shortCircuitScore skips the
// model entirely.
const (
	relevantScore      = 0.20
	shortCircuitScore  = 0.25
	defaultContextDocs = 10
	defaultTokenBudget = 6000
	historyWindow      = 10
)

// chatOptions are the sampling parameters for corpus-wide answers.
var chatOptions = llm.Options{Temperature: 0.3, MaxTokens: 2500, TopP: 0.95}

// documentOptions keep single-document answers terse and literal.
var documentOptions = llm.Options{Temperature: 0.1, MaxTokens: 800}

// Retriever is the search surface the orchestrator drives.
type Retriever interface {
	Retrieve(ctx context.Context, q search.Query) (*search.Response, error)
}

// History stores per-session conversation turns.
type History interface {
	Append(ctx context.Context, sessionID string, msgs ...*llm.Message) error
	Recent(ctx context.Context, sessionID string, n int) ([]*llm.Message, error)
}

// TokenCounter measures text against the context budget.
type TokenCounter interface {
	Count(text string) int
}

// Orchestrator answers questions over the corpus.
type Orchestrator struct {
	retriever   Retriever
	client      llm.Client
	history     History
	counter     TokenCounter
	contextDocs int
	tokenBudget int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHistory installs a session history store.
func WithHistory(h History) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithTokenCounter installs the tokenizer used for context budgeting.
func WithTokenCounter(c TokenCounter) Option {
	return func(o *Orchestrator) { o.counter = c }
}

// WithContextDocs caps how many documents are retrieved for context.
func WithContextDocs(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.contextDocs = n
		}
	}
}

// WithTokenBudget caps the context block size in tokens.
func WithTokenBudget(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.tokenBudget = n
		}
	}
}

// New creates an Orchestrator.
func New(retriever Retriever, client llm.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		retriever:   retriever,
		client:      client,
		contextDocs: defaultContextDocs,
		tokenBudget: defaultTokenBudget,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Request is one chat question. MaxContextDocs overrides the orchestrator's
// retrieval cap when positive. History carries conversation turns supplied by
// the caller; when present it replaces session recall, windowed to the same
// recent-turn limit.
type Request struct {
	Question       string
	SessionID      string
	ProjectID      string
	MaxContextDocs int
	History        []*llm.Message
}

// Answer is the chat response payload.
type Answer struct {
	Question    string
	Text        string
	Sources     []document.SearchResult
	ContextUsed string
	SessionID   string
	// Fallback is set when the extractive path served the answer.
	Fallback bool
}

var log = logging.WithComponent("rag")

// Chat answers one question. Retrieval failures propagate; model failures
// degrade to the extractive fallback so the endpoint never depends on the
// model being up.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (*Answer, error) {
	ctx, span := telemetry.Tracer("rag").Start(ctx, "orchestrator.Chat")
	var err error
	defer func() { telemetry.End(span, err) }()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	contextDocs := o.contextDocs
	if req.MaxContextDocs > 0 {
		contextDocs = req.MaxContextDocs
	}
	resp, err := o.retriever.Retrieve(ctx, search.Query{
		Text:      req.Question,
		ProjectID: req.ProjectID,
		Limit:     contextDocs,
	})
	if err != nil {
		return nil, err
	}

	relevant := make([]document.SearchResult, 0, len(resp.Results))
	var best float64
	for _, r := range resp.Results {
		if r.Score > best {
			best = r.Score
		}
		if r.Score > relevantScore {
			relevant = append(relevant, r)
		}
	}
	if len(relevant) == 0 || best < shortCircuitScore {
		log.Info("short-circuit answer", "best_score", best, "session_id", sessionID)
		return &Answer{
			Question:  req.Question,
			Text:      NoRelevantInfoAnswer,
			SessionID: sessionID,
		}, nil
	}

	relevant = o.fitBudget(req.Question, relevant)
	contextBlock := buildContext(relevant)

	history := req.History
	if len(history) == 0 {
		history = o.recentHistory(ctx, sessionID)
	} else if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	messages := []*llm.Message{llm.NewMessage(llm.RoleSystem, systemPrompt)}
	messages = append(messages, history...)
	messages = append(messages, llm.NewMessage(llm.RoleUser, buildUserPrompt(req.Question, contextBlock)))

	answer := &Answer{
		Question:    req.Question,
		Sources:     relevant,
		ContextUsed: contextBlock,
		SessionID:   sessionID,
	}
	reply, llmErr := o.client.Generate(ctx, messages, chatOptions)
	if llmErr != nil {
		log.Warn("model unavailable, extractive fallback", "error", llmErr)
		answer.Text = extractiveAnswer(req.Question, resp.Results)
		answer.Fallback = true
	} else {
		answer.Text = reply.Content
	}

	o.record(ctx, sessionID, req.Question, answer.Text)
	return answer, nil
}

// ChatAboutResults answers strictly from an explicit result set, used by the
// upload-and-query path where the scope is one freshly indexed document.
func (o *Orchestrator) ChatAboutResults(ctx context.Context, question string, results []document.SearchResult) (*Answer, error) {
	ctx, span := telemetry.Tracer("rag").Start(ctx, "orchestrator.ChatAboutResults")
	var err error
	defer func() { telemetry.End(span, err) }()

	if len(results) == 0 {
		return &Answer{Question: question, Text: NoRelevantInfoAnswer}, nil
	}
	contextBlock := buildContext(results)
	messages := []*llm.Message{
		llm.NewMessage(llm.RoleSystem, strictSystemPrompt),
		llm.NewMessage(llm.RoleUser, buildUserPrompt(question, contextBlock)),
	}
	answer := &Answer{Question: question, Sources: results, ContextUsed: contextBlock}
	reply, llmErr := o.client.Generate(ctx, messages, documentOptions)
	if llmErr != nil {
		log.Warn("model unavailable, extractive fallback", "error", llmErr)
		answer.Text = extractiveAnswer(question, results)
		answer.Fallback = true
		return answer, nil
	}
	answer.Text = reply.Content
	return answer, nil
}

// fitBudget drops the lowest-ranked documents until the assembled prompt fits
// the token budget. At least one document always survives.
func (o *Orchestrator) fitBudget(question string, results []document.SearchResult) []document.SearchResult {
	if o.counter == nil {
		return results
	}
	for len(results) > 1 {
		prompt := buildUserPrompt(question, buildContext(results))
		if o.counter.Count(prompt) <= o.tokenBudget {
			break
		}
		results = results[:len(results)-1]
	}
	return results
}

func (o *Orchestrator) recentHistory(ctx context.Context, sessionID string) []*llm.Message {
	if o.history == nil {
		return nil
	}
	msgs, err := o.history.Recent(ctx, sessionID, historyWindow)
	if err != nil {
		log.Warn("history unavailable", "error", err, "session_id", sessionID)
		return nil
	}
	return msgs
}

func (o *Orchestrator) record(ctx context.Context, sessionID, question, answer string) {
	if o.history == nil {
		return
	}
	err := o.history.Append(ctx, sessionID,
		llm.NewMessage(llm.RoleUser, question),
		llm.NewMessage(llm.RoleAssistant, answer))
	if err != nil {
		log.Warn("history write failed", "error", err, "session_id", sessionID)
	}
}
