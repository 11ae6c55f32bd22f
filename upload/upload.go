// Package upload indexes user-provided files on the fly so they become
// immediately searchable alongside the ingested corpus.
package upload

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/construdocs/construdocs/chunking"
	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/embedder"
	"github.com/construdocs/construdocs/pkg/errors"
	"github.com/construdocs/construdocs/pkg/logging"
)

// ProjectID marks uploaded documents, keeping them distinguishable from the
// managed corpus.
const ProjectID = "UPLOADED"

// minTextLength is the smallest extracted text worth indexing.
const minTextLength = 10

// Writer is the store surface the indexer writes through.
type Writer interface {
	UpsertDocuments(ctx context.Context, docs []document.Document) error
	InsertChunks(ctx context.Context, chunks []document.Chunk) error
	DeleteDocumentChunks(ctx context.Context, documentID string) error
}

// documentLookup is the optional read capability conflict policies need.
type documentLookup interface {
	GetDocument(ctx context.Context, documentID string) (document.Document, error)
}

// ConflictPolicy decides what happens when the derived document id already
// exists in the store.
type ConflictPolicy int

const (
	// Replace re-indexes over the existing document.
	Replace ConflictPolicy = iota
	// Skip keeps the existing document and reports zero new chunks.
	Skip
	// Fail rejects the upload with ErrAlreadyExists.
	Fail
)

// Indexer extracts, chunks, embeds and persists uploaded files.
type Indexer struct {
	writer   Writer
	chunker  *chunking.Chunker
	embedder embedder.Embedder
	policy   ConflictPolicy
	now      func() time.Time
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithConflictPolicy sets the behaviour on duplicate document ids. Default is
// Replace. Skip and Fail take effect only when the writer can look documents
// up.
func WithConflictPolicy(p ConflictPolicy) Option {
	return func(ix *Indexer) { ix.policy = p }
}

// WithChunker overrides the default chunker.
func WithChunker(c *chunking.Chunker) Option {
	return func(ix *Indexer) {
		if c != nil {
			ix.chunker = c
		}
	}
}

// WithClock overrides the timestamp source; tests pin it.
func WithClock(now func() time.Time) Option {
	return func(ix *Indexer) {
		if now != nil {
			ix.now = now
		}
	}
}

// New creates an Indexer.
func New(writer Writer, emb embedder.Embedder, opts ...Option) *Indexer {
	ix := &Indexer{
		writer:   writer,
		chunker:  chunking.New(),
		embedder: emb,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Metadata carries optional caller-supplied overrides for an upload.
type Metadata struct {
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
}

// ParseMetadata decodes the metadata form field. An empty string is valid and
// yields zero overrides; malformed JSON is an input error.
func ParseMetadata(raw string) (Metadata, error) {
	var m Metadata
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Metadata{}, fmt.Errorf("metadata: %w: %v", errors.ErrInvalidInput, err)
	}
	return m, nil
}

// Result reports what an upload produced.
type Result struct {
	DocumentID string `json:"document_id"`
	ProjectID  string `json:"project_id"`
	Title      string `json:"title"`
	FileType   string `json:"file_type"`
	Chunks     int    `json:"chunks_created"`
	TextLength int    `json:"text_length"`
}

var log = logging.WithComponent("upload")

// Index extracts text from the file, derives a content-addressed document id
// and persists document, file bytes and embedded chunks. Metadata overrides
// the derived project and title when set. Unsupported extensions fail with
// ErrUnsupportedFormat; files whose text is shorter than the indexable minimum
// fail with ErrEmptyDocument.
func (ix *Indexer) Index(ctx context.Context, filename string, content []byte, meta Metadata) (*Result, error) {
	ext := strings.ToLower(strings.TrimPrefix(fileExt(filename), "."))
	if !Supported(ext) {
		return nil, fmt.Errorf("file type %q: %w", ext, errors.ErrUnsupportedFormat)
	}

	text, err := ExtractText(filename, content)
	if err != nil {
		return nil, err
	}
	if len([]rune(strings.TrimSpace(text))) < minTextLength {
		return nil, fmt.Errorf("%q: %w", filename, errors.ErrEmptyDocument)
	}

	projectID := ProjectID
	if meta.ProjectID != "" {
		projectID = meta.ProjectID
	}
	title := titleFromFilename(filename)
	if meta.Title != "" {
		title = meta.Title
	}

	now := ix.now()
	docID := deriveDocumentID(filename, text, now)
	if ix.policy != Replace {
		if lookup, ok := ix.writer.(documentLookup); ok {
			if _, err := lookup.GetDocument(ctx, docID); err == nil {
				if ix.policy == Fail {
					return nil, fmt.Errorf("document %s: %w", docID, errors.ErrAlreadyExists)
				}
				log.Info("upload already indexed, skipping", "document_id", docID)
				return &Result{
					DocumentID: docID,
					ProjectID:  projectID,
					Title:      title,
					FileType:   ext,
					TextLength: len([]rune(text)),
				}, nil
			} else if !errors.Is(err, errors.ErrNotFound) {
				return nil, err
			}
		}
	}
	size := int64(len(content))
	doc := document.Document{
		DocumentID:   docID,
		ProjectID:    projectID,
		Title:        title,
		Filename:     filename,
		FileType:     ext,
		FileSize:     &size,
		DateModified: &now,
		FileContent:  content,
		BodyText:     text,
	}

	if err := ix.writer.UpsertDocuments(ctx, []document.Document{doc}); err != nil {
		return nil, fmt.Errorf("persist upload: %w", err)
	}
	// the id is content-addressed but time-salted: clear any chunks from a
	// previous identical id before re-indexing
	if err := ix.writer.DeleteDocumentChunks(ctx, docID); err != nil {
		return nil, err
	}

	chunks := ix.chunker.Chunks(doc)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed upload: %w", err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}
	if err := ix.writer.InsertChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("persist upload chunks: %w", err)
	}

	log.Info("upload indexed",
		"document_id", docID, "filename", filename, "chunks", len(chunks))
	return &Result{
		DocumentID: docID,
		ProjectID:  doc.ProjectID,
		Title:      doc.Title,
		FileType:   ext,
		Chunks:     len(chunks),
		TextLength: len([]rune(text)),
	}, nil
}

// deriveDocumentID hashes filename, a text prefix and the upload timestamp.
// Re-uploading the same file yields a fresh id, never a silent overwrite.
func deriveDocumentID(filename, text string, now time.Time) string {
	prefix := text
	if runes := []rune(text); len(runes) > 100 {
		prefix = string(runes[:100])
	}
	sum := md5.Sum([]byte(filename + prefix + strconv.FormatInt(now.UnixNano(), 10)))
	return "upload-" + hex.EncodeToString(sum[:])
}

func titleFromFilename(filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
