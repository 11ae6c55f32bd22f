// Package server exposes the HTTP API: search, chat, feedback, uploads and
// document retrieval.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/construdocs/construdocs/analytics"
	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/pkg/errors"
	"github.com/construdocs/construdocs/pkg/logging"
	"github.com/construdocs/construdocs/rag"
	"github.com/construdocs/construdocs/search"
	"github.com/construdocs/construdocs/upload"
)

// Documents is the store surface the document endpoints use.
type Documents interface {
	GetDocument(ctx context.Context, documentID string) (document.Document, error)
	GetDocumentFile(ctx context.Context, documentID string) ([]byte, string, error)
	CountDocuments(ctx context.Context) (int64, error)
}

// Retriever runs search passes.
type Retriever interface {
	Retrieve(ctx context.Context, q search.Query) (*search.Response, error)
}

// Chatter answers questions.
type Chatter interface {
	Chat(ctx context.Context, req rag.Request) (*rag.Answer, error)
	ChatAboutResults(ctx context.Context, question string, results []document.SearchResult) (*rag.Answer, error)
}

// Uploader indexes uploaded files.
type Uploader interface {
	Index(ctx context.Context, filename string, content []byte, meta upload.Metadata) (*upload.Result, error)
}

// Server wires the HTTP handlers to the service components.
type Server struct {
	docs      Documents
	retriever Retriever
	chatter   Chatter
	uploader  Uploader
	sink      analytics.Sink
	engine    *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithAnalytics installs the analytics sink.
func WithAnalytics(sink analytics.Sink) Option {
	return func(s *Server) {
		if sink != nil {
			s.sink = sink
		}
	}
}

var log = logging.WithComponent("server")

// New builds the router.
func New(docs Documents, retriever Retriever, chatter Chatter, uploader Uploader, opts ...Option) *Server {
	s := &Server{
		docs:      docs,
		retriever: retriever,
		chatter:   chatter,
		uploader:  uploader,
		sink:      analytics.Noop{},
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), accessLog())

	engine.GET("/health", s.handleHealth)
	engine.POST("/search", s.handleSearch)
	engine.POST("/chat", s.handleChat)
	engine.POST("/feedback", s.handleFeedback)
	engine.POST("/upload", s.handleUpload)
	engine.POST("/upload-and-query", s.handleUploadAndQuery)
	engine.GET("/document/:id/file", s.handleDocumentFile)
	engine.GET("/document/:id/preview", s.handleDocumentPreview)

	s.engine = engine
	return s
}

// Handler returns the http.Handler for the API.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves the API on addr until the listener fails.
func (s *Server) Run(addr string) error { return s.engine.Run(addr) }

// requestID tags every request with a correlation id, echoed in the response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// accessLog writes one structured line per request, correlated by request id.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString("request_id"))
	}
}

// fail maps service errors onto HTTP status codes with a detail body.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrInvalidInput),
		errors.Is(err, errors.ErrUnsupportedFormat),
		errors.Is(err, errors.ErrEmptyDocument):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			"error", err, "path", c.FullPath(), "request_id", c.GetString("request_id"))
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}
