// Package store persists documents and their chunk embeddings in PostgreSQL
// with the pgvector extension, and runs the hybrid retrieval query.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/pkg/errors"
	"github.com/construdocs/construdocs/pkg/logging"
)

// Config holds store configuration.
type Config struct {
	// URL is a libpq DSN or postgres:// URL.
	URL string
	// Dimension is the embedding width of the document_chunks table.
	Dimension int
	// Probes is the ivfflat probe count applied per search transaction.
	Probes int
	// VectorWeight and TextWeight blend the two retrieval signals. They must
	// sum to one.
	VectorWeight float64
	TextWeight   float64
}

// Store is a PostgreSQL-backed document and chunk store.
type Store struct {
	db  *sql.DB
	cfg Config
}

// Open connects and pings the database. It does not create the schema; call
// EnsureSchema before first use.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db, cfg: cfg}, nil
}

// DB exposes the underlying handle for sibling stores sharing the connection.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the extension, tables and indexes if missing. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			document_id   TEXT PRIMARY KEY,
			project_id    TEXT,
			title         TEXT,
			number        TEXT,
			category      TEXT,
			doc_type      TEXT,
			status        TEXT,
			review_status TEXT,
			revision      TEXT,
			filename      TEXT,
			file_type     TEXT,
			file_size     BIGINT,
			date_modified TIMESTAMPTZ,
			raw           JSONB,
			file_content  BYTEA,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			chunk_id      TEXT PRIMARY KEY,
			document_id   TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
			project_id    TEXT,
			title         TEXT,
			date_modified TIMESTAMPTZ,
			content       TEXT NOT NULL,
			embedding     VECTOR(%d)
		)`, s.cfg.Dimension),
		`CREATE INDEX IF NOT EXISTS document_chunks_document_id_idx
			ON document_chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS document_chunks_embedding_idx
			ON document_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE INDEX IF NOT EXISTS document_chunks_content_fts_idx
			ON document_chunks USING GIN (to_tsvector('spanish', content))`,
		`CREATE INDEX IF NOT EXISTS documents_project_id_idx ON documents (project_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w: %v", errors.ErrStoreWrite, err)
		}
	}
	return nil
}

// UpsertDocuments writes document metadata, last write wins per document_id.
func (s *Store) UpsertDocuments(ctx context.Context, docs []document.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w: %v", errors.ErrStoreWrite, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (
			document_id, project_id, title, number, category, doc_type, status,
			review_status, revision, filename, file_type, file_size,
			date_modified, raw, file_content
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (document_id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			title = EXCLUDED.title,
			number = EXCLUDED.number,
			category = EXCLUDED.category,
			doc_type = EXCLUDED.doc_type,
			status = EXCLUDED.status,
			review_status = EXCLUDED.review_status,
			revision = EXCLUDED.revision,
			filename = EXCLUDED.filename,
			file_type = EXCLUDED.file_type,
			file_size = EXCLUDED.file_size,
			date_modified = EXCLUDED.date_modified,
			raw = EXCLUDED.raw,
			file_content = COALESCE(EXCLUDED.file_content, documents.file_content),
			updated_at = now()`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w: %v", errors.ErrStoreWrite, err)
	}
	defer stmt.Close()

	for _, d := range docs {
		var raw any
		if len(d.Raw) > 0 {
			raw = []byte(d.Raw)
		}
		var fileContent any
		if len(d.FileContent) > 0 {
			fileContent = d.FileContent
		}
		_, err := stmt.ExecContext(ctx,
			d.DocumentID, d.ProjectID, d.Title, d.Number, d.Category, d.DocType,
			d.Status, d.ReviewStatus, d.Revision, d.Filename, d.FileType,
			d.FileSize, d.DateModified, raw, fileContent)
		if err != nil {
			return fmt.Errorf("upsert document %s: %w: %v", d.DocumentID, errors.ErrStoreWrite, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w: %v", errors.ErrStoreWrite, err)
	}
	return nil
}

// InsertChunks writes chunk rows. Chunk ids are deterministic in content, so
// conflicts mean the identical chunk already exists and are skipped. Chunks
// without an embedding are stored with a NULL vector; they stay reachable
// through lexical search until a re-ingest fills the embedding in.
func (s *Store) InsertChunks(ctx context.Context, chunks []document.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk insert: %w: %v", errors.ErrStoreWrite, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (
			chunk_id, document_id, project_id, title, date_modified, content, embedding
		) VALUES ($1,$2,$3,$4,$5,$6,$7::vector)
		ON CONFLICT (chunk_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w: %v", errors.ErrStoreWrite, err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		var embedding any
		if len(c.Embedding) > 0 {
			if len(c.Embedding) != s.cfg.Dimension {
				return fmt.Errorf("chunk %s embedding dimension %d, want %d: %w",
					c.ChunkID, len(c.Embedding), s.cfg.Dimension, errors.ErrInvalidInput)
			}
			embedding = VectorLiteral(c.Embedding)
		}
		_, err := stmt.ExecContext(ctx,
			c.ChunkID, c.DocumentID, c.ProjectID, c.Title, c.DateModified,
			c.Content, embedding)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w: %v", c.ChunkID, errors.ErrStoreWrite, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk insert: %w: %v", errors.ErrStoreWrite, err)
	}
	return nil
}

// DeleteDocumentChunks removes a document's chunk rows, used before re-indexing
// a replaced upload.
func (s *Store) DeleteDocumentChunks(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks for %s: %w: %v", documentID, errors.ErrStoreWrite, err)
	}
	return nil
}

// DeleteDocument removes a document and, via cascade, its chunks.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document %s: %w: %v", documentID, errors.ErrStoreWrite, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", documentID, errors.ErrNotFound)
	}
	return nil
}

// GetDocument loads one document's metadata, without file content.
func (s *Store) GetDocument(ctx context.Context, documentID string) (document.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, project_id, title, number, category, doc_type, status,
			review_status, revision, filename, file_type, file_size, date_modified
		FROM documents WHERE document_id = $1`, documentID)

	var d document.Document
	var projectID, title, number, category, docType, status, reviewStatus,
		revision, filename, fileType sql.NullString
	var fileSize sql.NullInt64
	var dateModified sql.NullTime
	err := row.Scan(&d.DocumentID, &projectID, &title, &number, &category,
		&docType, &status, &reviewStatus, &revision, &filename, &fileType,
		&fileSize, &dateModified)
	if err == sql.ErrNoRows {
		return document.Document{}, fmt.Errorf("document %s: %w", documentID, errors.ErrNotFound)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("get document %s: %w: %v", documentID, errors.ErrStoreRead, err)
	}
	d.ProjectID = projectID.String
	d.Title = title.String
	d.Number = number.String
	d.Category = category.String
	d.DocType = docType.String
	d.Status = status.String
	d.ReviewStatus = reviewStatus.String
	d.Revision = revision.String
	d.Filename = filename.String
	d.FileType = fileType.String
	if fileSize.Valid {
		d.FileSize = &fileSize.Int64
	}
	if dateModified.Valid {
		ts := dateModified.Time
		d.DateModified = &ts
	}
	return d, nil
}

// GetDocumentFile loads a document's stored file bytes.
func (s *Store) GetDocumentFile(ctx context.Context, documentID string) ([]byte, string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file_content, filename FROM documents WHERE document_id = $1`, documentID)
	var content []byte
	var filename sql.NullString
	err := row.Scan(&content, &filename)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("document %s: %w", documentID, errors.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("get file %s: %w: %v", documentID, errors.ErrStoreRead, err)
	}
	if len(content) == 0 {
		return nil, "", fmt.Errorf("document %s has no stored file: %w", documentID, errors.ErrNotFound)
	}
	return content, filename.String, nil
}

// CountDocuments returns the corpus size, used by the health endpoint.
func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w: %v", errors.ErrStoreRead, err)
	}
	return n, nil
}

// VectorLiteral renders a float32 slice as a pgvector input literal.
func VectorLiteral(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec) * 10)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

var log = logging.WithComponent("store")
