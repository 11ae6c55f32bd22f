package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/pkg/errors"
)

// SearchParams select and filter one hybrid retrieval pass.
type SearchParams struct {
	// Query is the cleaned lexical query text.
	Query string
	// Embedding is the unit-norm query vector.
	Embedding []float32
	// ProjectID restricts results to one project when non-empty.
	ProjectID string
	// Limit caps the number of documents returned.
	Limit int
	// Probes overrides the configured ivfflat probe count for this search
	// when positive.
	Probes int
	// Threshold drops documents whose combined score falls below it.
	Threshold float64
}

// candidatePoolFactor sizes the ANN window the lexical score is normalized
// over. Text scores are relative to the best candidate in this pool.
const candidatePoolFactor = 10

// hybridSQL scores an ANN candidate pool with both signals and keeps the best
// chunk per document. Text rank is normalized against the pool maximum so the
// lexical signal lands in [0,1] like the vector signal. Field text is run
// through translate so dotted drawing numbers like "EST-01.02" tokenize into
// searchable words. Ties break on vector score, then recency, then document id
// for a stable ordering.
const hybridSQL = `
WITH candidates AS (
	SELECT c.chunk_id, c.document_id, c.content,
		1 - (c.embedding <=> $1::vector) AS vector_score,
		ts_rank(
			to_tsvector('spanish',
				translate(coalesce(d.title,''), '._-', '   ') || ' ' ||
				translate(coalesce(d.title,''), '._-', '   ') || ' ' ||
				translate(coalesce(d.number,''), '._-', '   ') || ' ' ||
				translate(coalesce(c.content,''), '._-', '   ')),
			plainto_tsquery('spanish', $2)
		) AS text_score_raw
	FROM document_chunks c
	JOIN documents d ON d.document_id = c.document_id
	WHERE c.embedding IS NOT NULL
		AND ($3 = '' OR c.project_id = $3)
	ORDER BY c.embedding <=> $1::vector
	LIMIT $4
),
normalized AS (
	SELECT *,
		text_score_raw / NULLIF(MAX(text_score_raw) OVER (), 0) AS text_score
	FROM candidates
),
combined AS (
	SELECT *,
		$5 * vector_score + $6 * coalesce(text_score, 0) AS score,
		ROW_NUMBER() OVER (
			PARTITION BY document_id
			ORDER BY $5 * vector_score + $6 * coalesce(text_score, 0) DESC,
				vector_score DESC, chunk_id ASC
		) AS rn
	FROM normalized
)
SELECT c.document_id, d.project_id, d.title, d.number, d.category, d.doc_type,
	d.revision, d.filename, d.file_type, d.date_modified,
	c.content, c.vector_score, coalesce(c.text_score, 0), c.score
FROM combined c
JOIN documents d ON d.document_id = c.document_id
WHERE c.rn = 1 AND c.score >= $7
ORDER BY c.score DESC, c.vector_score DESC,
	d.date_modified DESC NULLS LAST, c.document_id ASC
LIMIT $8`

// HybridSearch runs one retrieval pass at the given threshold. The ivfflat
// probe count is set per transaction so concurrent searches with different
// settings never interfere.
func (s *Store) HybridSearch(ctx context.Context, p SearchParams) ([]document.SearchResult, error) {
	if len(p.Embedding) != s.cfg.Dimension {
		return nil, fmt.Errorf("query embedding dimension %d, want %d: %w",
			len(p.Embedding), s.cfg.Dimension, errors.ErrInvalidInput)
	}
	if p.Limit <= 0 {
		p.Limit = 5
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin search: %w: %v", errors.ErrStoreRead, err)
	}
	defer tx.Rollback()

	probes := p.Probes
	if probes <= 0 {
		probes = s.cfg.Probes
	}
	if probes > 0 {
		// SET LOCAL scopes the setting to this transaction.
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("SET LOCAL ivfflat.probes = %d", probes)); err != nil {
			return nil, fmt.Errorf("set probes: %w: %v", errors.ErrStoreRead, err)
		}
	}

	pool := p.Limit * candidatePoolFactor
	rows, err := tx.QueryContext(ctx, hybridSQL,
		VectorLiteral(p.Embedding), p.Query, p.ProjectID, pool,
		s.cfg.VectorWeight, s.cfg.TextWeight, p.Threshold, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w: %v", errors.ErrStoreRead, err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit search: %w: %v", errors.ErrStoreRead, err)
	}
	log.Debug("hybrid search",
		"query", p.Query, "threshold", p.Threshold, "results", len(results))
	return results, nil
}

// lexicalSQL ranks documents on text match alone. Used when no embedding is
// available, typically because the embedding backend is down.
const lexicalSQL = `
WITH scored AS (
	SELECT c.chunk_id, c.document_id, c.content,
		ts_rank(
			to_tsvector('spanish',
				translate(coalesce(d.title,''), '._-', '   ') || ' ' ||
				translate(coalesce(d.title,''), '._-', '   ') || ' ' ||
				translate(coalesce(d.number,''), '._-', '   ') || ' ' ||
				translate(coalesce(c.content,''), '._-', '   ')),
			plainto_tsquery('spanish', $1)
		) AS text_score_raw
	FROM document_chunks c
	JOIN documents d ON d.document_id = c.document_id
	WHERE ($2 = '' OR c.project_id = $2)
		AND plainto_tsquery('spanish', $1) @@ to_tsvector('spanish',
			translate(coalesce(d.title,''), '._-', '   ') || ' ' ||
			translate(coalesce(d.number,''), '._-', '   ') || ' ' ||
			translate(coalesce(c.content,''), '._-', '   '))
),
normalized AS (
	SELECT *,
		text_score_raw / NULLIF(MAX(text_score_raw) OVER (), 0) AS text_score,
		ROW_NUMBER() OVER (
			PARTITION BY document_id ORDER BY text_score_raw DESC, chunk_id ASC
		) AS rn
	FROM scored
)
SELECT n.document_id, d.project_id, d.title, d.number, d.category, d.doc_type,
	d.revision, d.filename, d.file_type, d.date_modified,
	n.content, 0::float8, coalesce(n.text_score, 0), coalesce(n.text_score, 0)
FROM normalized n
JOIN documents d ON d.document_id = n.document_id
WHERE n.rn = 1
ORDER BY n.text_score DESC, d.date_modified DESC NULLS LAST, n.document_id ASC
LIMIT $3`

// LexicalSearch is the text-only fallback path. Chunks without an embedding
// are still visible here.
func (s *Store) LexicalSearch(ctx context.Context, query, projectID string, limit int) ([]document.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, lexicalSQL, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w: %v", errors.ErrStoreRead, err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]document.SearchResult, error) {
	var out []document.SearchResult
	for rows.Next() {
		var r document.SearchResult
		var projectID, title, number, category, docType, revision,
			filename, fileType sql.NullString
		var dateModified sql.NullTime
		err := rows.Scan(&r.DocumentID, &projectID, &title, &number, &category,
			&docType, &revision, &filename, &fileType, &dateModified,
			&r.Snippet, &r.VectorScore, &r.TextScore, &r.Score)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w: %v", errors.ErrStoreRead, err)
		}
		r.ProjectID = projectID.String
		r.Title = title.String
		r.Number = number.String
		r.Category = category.String
		r.DocType = docType.String
		r.Revision = revision.String
		r.Filename = filename.String
		r.FileType = fileType.String
		if dateModified.Valid {
			ts := dateModified.Time
			r.DateModified = &ts
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w: %v", errors.ErrStoreRead, err)
	}
	return out, nil
}
