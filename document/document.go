package document

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document is a uniquely identified artifact in the corpus. String fields may
// be empty; Raw keeps the original record for later enrichment.
type Document struct {
	DocumentID   string          `json:"document_id"`
	ProjectID    string          `json:"project_id"`
	Title        string          `json:"title"`
	Number       string          `json:"number"`
	Category     string          `json:"category"`
	DocType      string          `json:"doc_type"`
	Status       string          `json:"status"`
	ReviewStatus string          `json:"review_status"`
	Revision     string          `json:"revision"`
	Filename     string          `json:"filename"`
	FileType     string          `json:"file_type"`
	FileSize     *int64          `json:"file_size,omitempty"`
	DateModified *time.Time      `json:"date_modified,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	FileContent  []byte          `json:"-"`

	// BodyText is the chunkable text assembled by the normalizer. It is not
	// persisted on the documents table; chunks carry the indexed text.
	BodyText string `json:"-"`
}

// Chunk is a contiguous slice of a document's text plus its embedding.
// ChunkID is deterministic in (DocumentID, Content), so re-ingesting the same
// content never duplicates rows.
type Chunk struct {
	ChunkID      string     `json:"chunk_id"`
	DocumentID   string     `json:"document_id"`
	ProjectID    string     `json:"project_id"`
	Title        string     `json:"title"`
	DateModified *time.Time `json:"date_modified,omitempty"`
	Content      string     `json:"content"`
	Embedding    []float32  `json:"-"`
}

// StableChunkID derives the deterministic chunk identifier: a v5 UUID over the
// SHA-1 of "document_id:content". Stable across processes and runs, which makes
// concurrent ingest of disjoint partitions safe without coordination.
func StableChunkID(documentID, content string) string {
	sum := sha1.Sum([]byte(documentID + ":" + content))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(hex.EncodeToString(sum[:]))).String()
}

// SearchResult is one retrieval row: the best chunk of one document together
// with its score decomposition. All score fields live in [0, 1].
type SearchResult struct {
	DocumentID   string     `json:"document_id"`
	ProjectID    string     `json:"project_id"`
	Title        string     `json:"title"`
	Number       string     `json:"number"`
	Category     string     `json:"category"`
	DocType      string     `json:"doc_type"`
	Revision     string     `json:"revision"`
	Filename     string     `json:"filename"`
	FileType     string     `json:"file_type"`
	DateModified *time.Time `json:"date_modified,omitempty"`
	Snippet      string     `json:"snippet"`
	VectorScore  float64    `json:"vector_score"`
	TextScore    float64    `json:"text_score"`
	Score        float64    `json:"score"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	if d.Raw != nil {
		out.Raw = append(json.RawMessage(nil), d.Raw...)
	}
	if d.FileContent != nil {
		out.FileContent = append([]byte(nil), d.FileContent...)
	}
	if d.FileSize != nil {
		size := *d.FileSize
		out.FileSize = &size
	}
	if d.DateModified != nil {
		ts := *d.DateModified
		out.DateModified = &ts
	}
	return out
}

// Clone returns a deep copy of the chunk.
func (c Chunk) Clone() Chunk {
	out := c
	if c.Embedding != nil {
		out.Embedding = append([]float32(nil), c.Embedding...)
	}
	if c.DateModified != nil {
		ts := *c.DateModified
		out.DateModified = &ts
	}
	return out
}
