package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/construdocs/construdocs/analytics"
	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/llm"
	"github.com/construdocs/construdocs/pkg/errors"
	"github.com/construdocs/construdocs/rag"
	"github.com/construdocs/construdocs/search"
	"github.com/construdocs/construdocs/upload"
)

// maxUploadBytes caps upload size at 25 MiB.
const maxUploadBytes = 25 << 20

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.docs.CountDocuments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "documents": count})
}

type searchRequest struct {
	Query     string `json:"query" binding:"required"`
	ProjectID string `json:"project_id"`
	TopK      int    `json:"top_k"`
	Probes    int    `json:"probes"`
}

// handleSearch responds with the ordered result rows as a bare JSON array.
func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err))
		return
	}
	if req.TopK < 0 || req.TopK > 50 {
		fail(c, fmt.Errorf("top_k must be between 1 and 50: %w", errors.ErrInvalidInput))
		return
	}
	if req.Probes < 0 || req.Probes > 100 {
		fail(c, fmt.Errorf("probes must be between 1 and 100: %w", errors.ErrInvalidInput))
		return
	}
	resp, err := s.retriever.Retrieve(c.Request.Context(), search.Query{
		Text:      req.Query,
		ProjectID: req.ProjectID,
		Limit:     req.TopK,
		Probes:    req.Probes,
	})
	if err != nil {
		fail(c, err)
		return
	}
	results := search.SecondaryCutoff(resp.Results)
	if results == nil {
		results = []document.SearchResult{}
	}
	s.recordSearch(c, req, results, resp.Tier)
	c.JSON(http.StatusOK, results)
}

func (s *Server) recordSearch(c *gin.Context, req searchRequest, results []document.SearchResult, tier string) {
	err := s.sink.RecordSearch(c.Request.Context(), analytics.SearchEvent{
		Query:       req.Query,
		ProjectID:   req.ProjectID,
		ResultCount: len(results),
		Tier:        tier,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		log.Warn("search analytics write failed", "error", err)
	}
}

type chatRequest struct {
	Question       string     `json:"question" binding:"required"`
	SessionID      string     `json:"session_id"`
	ProjectID      string     `json:"project_id"`
	MaxContextDocs int        `json:"max_context_docs"`
	History        []chatTurn `json:"history"`
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// historyMessages converts request turns to model messages. Only user and
// assistant roles are accepted.
func historyMessages(turns []chatTurn) ([]*llm.Message, error) {
	msgs := make([]*llm.Message, 0, len(turns))
	for i, turn := range turns {
		var role llm.Role
		switch turn.Role {
		case "user":
			role = llm.RoleUser
		case "assistant":
			role = llm.RoleAssistant
		default:
			return nil, fmt.Errorf("history[%d] role %q: %w", i, turn.Role, errors.ErrInvalidInput)
		}
		msgs = append(msgs, llm.NewMessage(role, turn.Content))
	}
	return msgs, nil
}

type chatResponse struct {
	Question    string                  `json:"question"`
	Answer      string                  `json:"answer"`
	Sources     []document.SearchResult `json:"sources"`
	ContextUsed string                  `json:"context_used"`
	SessionID   string                  `json:"session_id"`
	Fallback    bool                    `json:"fallback,omitempty"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err))
		return
	}
	if req.MaxContextDocs < 0 || req.MaxContextDocs > 50 {
		fail(c, fmt.Errorf("max_context_docs must be between 1 and 50: %w", errors.ErrInvalidInput))
		return
	}
	history, err := historyMessages(req.History)
	if err != nil {
		fail(c, err)
		return
	}
	ans, err := s.chatter.Chat(c.Request.Context(), rag.Request{
		Question:       req.Question,
		SessionID:      req.SessionID,
		ProjectID:      req.ProjectID,
		MaxContextDocs: req.MaxContextDocs,
		History:        history,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toChatResponse(ans))
}

func toChatResponse(ans *rag.Answer) chatResponse {
	sources := ans.Sources
	if sources == nil {
		sources = []document.SearchResult{}
	}
	return chatResponse{
		Question:    ans.Question,
		Answer:      ans.Text,
		Sources:     sources,
		ContextUsed: ans.ContextUsed,
		SessionID:   ans.SessionID,
		Fallback:    ans.Fallback,
	}
}

type feedbackRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Rating    int    `json:"rating" binding:"required"`
	Comment   string `json:"comment"`
}

func (s *Server) handleFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err))
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		fail(c, fmt.Errorf("rating must be between 1 and 5: %w", errors.ErrInvalidInput))
		return
	}
	err := s.sink.RecordFeedback(c.Request.Context(), analytics.Feedback{
		SessionID: req.SessionID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		CreatedAt: time.Now(),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// uploadResponse wraps the indexing result with the status marker clients
// key on.
type uploadResponse struct {
	Status string `json:"status"`
	*upload.Result
}

func (s *Server) handleUpload(c *gin.Context) {
	filename, content, meta, err := readUpload(c)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.uploader.Index(c.Request.Context(), filename, content, meta)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, uploadResponse{Status: "success", Result: res})
}

func (s *Server) handleUploadAndQuery(c *gin.Context) {
	question := strings.TrimSpace(c.PostForm("question"))
	if question == "" {
		fail(c, fmt.Errorf("question is required: %w", errors.ErrInvalidInput))
		return
	}
	filename, content, meta, err := readUpload(c)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.uploader.Index(c.Request.Context(), filename, content, meta)
	if err != nil {
		fail(c, err)
		return
	}

	resp, err := s.retriever.Retrieve(c.Request.Context(), search.Query{Text: question})
	if err != nil {
		fail(c, err)
		return
	}
	// scope to the document just indexed; if retrieval missed it entirely,
	// answer from the overall top matches instead
	scoped := make([]document.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.DocumentID == res.DocumentID {
			scoped = append(scoped, r)
		}
	}
	if len(scoped) == 0 {
		if len(resp.Results) > 3 {
			scoped = resp.Results[:3]
		} else {
			scoped = resp.Results
		}
	}
	ans, err := s.chatter.ChatAboutResults(c.Request.Context(), question, scoped)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"upload_result": uploadResponse{Status: "success", Result: res},
		"query_result":  toChatResponse(ans),
	})
}

func readUpload(c *gin.Context) (string, []byte, upload.Metadata, error) {
	meta, err := upload.ParseMetadata(c.PostForm("metadata"))
	if err != nil {
		return "", nil, upload.Metadata{}, err
	}
	header, err := c.FormFile("file")
	if err != nil {
		return "", nil, meta, fmt.Errorf("file is required: %w", errors.ErrInvalidInput)
	}
	if header.Size > maxUploadBytes {
		return "", nil, meta, fmt.Errorf("file exceeds %d bytes: %w", maxUploadBytes, errors.ErrInvalidInput)
	}
	f, err := header.Open()
	if err != nil {
		return "", nil, meta, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return "", nil, meta, fmt.Errorf("read upload: %w", err)
	}
	if len(content) > maxUploadBytes {
		return "", nil, meta, fmt.Errorf("file exceeds %d bytes: %w", maxUploadBytes, errors.ErrInvalidInput)
	}
	return header.Filename, content, meta, nil
}

// mediaTypes maps stored file extensions to response content types.
var mediaTypes = map[string]string{
	"pdf":  "application/pdf",
	"txt":  "text/plain; charset=utf-8",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"json": "application/json",
}

func (s *Server) handleDocumentFile(c *gin.Context) {
	id := c.Param("id")
	content, filename, err := s.docs.GetDocumentFile(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ext := strings.ToLower(strings.TrimPrefix(fileExt(filename), "."))
	contentType, ok := mediaTypes[ext]
	if !ok {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Data(http.StatusOK, contentType, content)
}

func (s *Server) handleDocumentPreview(c *gin.Context) {
	id := c.Param("id")
	doc, err := s.docs.GetDocument(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func fileExt(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		return filename[i:]
	}
	return ""
}
