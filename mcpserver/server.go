// Package mcpserver exposes the document corpus to MCP clients (Claude Code,
// Cursor) as search and chat tools over stdio.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/pkg/logging"
	"github.com/construdocs/construdocs/rag"
	"github.com/construdocs/construdocs/search"
)

// Retriever runs search passes.
type Retriever interface {
	Retrieve(ctx context.Context, q search.Query) (*search.Response, error)
}

// Chatter answers questions over the corpus.
type Chatter interface {
	Chat(ctx context.Context, req rag.Request) (*rag.Answer, error)
}

// Server bridges MCP clients with the retrieval pipeline.
type Server struct {
	mcp       *mcp.Server
	retriever Retriever
	chatter   Chatter
}

var log = logging.WithComponent("mcp")

// NewServer creates the MCP server and registers its tools.
func NewServer(retriever Retriever, chatter Chatter, version string) *Server {
	s := &Server{retriever: retriever, chatter: chatter}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "construdocs",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	log.Info("mcp server listening on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_documents",
		Description: "Hybrid semantic and keyword search over the construction project document corpus. Returns the best-matching documents with titles, numbers, categories and relevance scores.",
	}, s.searchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask_documents",
		Description: "Ask a question in natural language and get an answer grounded in the construction document corpus, with the source documents used.",
	}, s.askHandler)
}

// SearchInput defines the input schema for the search_documents tool.
type SearchInput struct {
	Query     string `json:"query" jsonschema:"the search query to execute"`
	ProjectID string `json:"project_id,omitempty" jsonschema:"restrict results to one project"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchOutput defines the output schema for the search_documents tool.
type SearchOutput struct {
	Results []ResultOutput `json:"results"`
	Tier    string         `json:"tier"`
}

// ResultOutput is one document match.
type ResultOutput struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Number     string  `json:"number,omitempty"`
	Category   string  `json:"category,omitempty"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	resp, err := s.retriever.Retrieve(ctx, search.Query{
		Text:      input.Query,
		ProjectID: input.ProjectID,
		Limit:     input.Limit,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}
	out := SearchOutput{
		Results: make([]ResultOutput, 0, len(resp.Results)),
		Tier:    resp.Tier,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, toResultOutput(r))
	}
	return nil, out, nil
}

// AskInput defines the input schema for the ask_documents tool.
type AskInput struct {
	Question  string `json:"question" jsonschema:"the question to answer from the corpus"`
	SessionID string `json:"session_id,omitempty" jsonschema:"conversation id for follow-up questions"`
}

// AskOutput defines the output schema for the ask_documents tool.
type AskOutput struct {
	Answer    string         `json:"answer"`
	Sources   []ResultOutput `json:"sources"`
	SessionID string         `json:"session_id"`
}

func (s *Server) askHandler(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	ans, err := s.chatter.Chat(ctx, rag.Request{
		Question:  input.Question,
		SessionID: input.SessionID,
	})
	if err != nil {
		return nil, AskOutput{}, err
	}
	out := AskOutput{
		Answer:    ans.Text,
		Sources:   make([]ResultOutput, 0, len(ans.Sources)),
		SessionID: ans.SessionID,
	}
	for _, r := range ans.Sources {
		out.Sources = append(out.Sources, toResultOutput(r))
	}
	return nil, out, nil
}

func toResultOutput(r document.SearchResult) ResultOutput {
	return ResultOutput{
		DocumentID: r.DocumentID,
		Title:      r.Title,
		Number:     r.Number,
		Category:   r.Category,
		Snippet:    r.Snippet,
		Score:      r.Score,
	}
}
