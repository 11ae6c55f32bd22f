// Package chunking splits normalized document text into overlapping
// fixed-size windows suitable for embedding.
package chunking

import (
	"strings"
	"unicode"

	"github.com/construdocs/construdocs/document"
)

const (
	defaultChunkSize = 500
	defaultOverlap   = 50
	// boundaryScan is how far back from the window end we look for whitespace
	// before giving up and cutting mid-word.
	boundaryScan = 50
)

// Chunker splits text into overlapping character windows. Windows prefer to
// end on whitespace; a short trailing window is merged into its predecessor.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the window size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets how many characters consecutive windows share.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker with the default 500/50 window.
func New(opts ...Option) *Chunker {
	c := &Chunker{size: defaultChunkSize, overlap: defaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 10
	}
	return c
}

// Split cuts text into windows of up to the configured size. Each window after
// the first starts overlap characters before the previous cut. A window tries
// to end on the last whitespace within boundaryScan characters of its limit,
// as long as that keeps it above half the window size. A final fragment
// shorter than half the window size is folded into the previous window when
// the text past that window's end fits the boundary slack; otherwise it is
// emitted on its own. No emitted chunk exceeds size+boundaryScan characters.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var chunks []string
	start, prevEnd := 0, 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.boundary(runes, start, end)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			if len(chunks) > 0 && len([]rune(piece)) < c.size/2 && end == len(runes) {
				chunks = c.mergeTail(chunks, piece, runes, prevEnd)
			} else {
				chunks = append(chunks, piece)
			}
		}
		if end == len(runes) {
			break
		}
		prevEnd = end
		start = end - c.overlap
	}
	return chunks
}

// mergeTail folds a short final fragment into the last chunk. Only the text
// past the previous window's end is appended, so the shared overlap is never
// duplicated, and the merge is skipped when it would push the chunk past the
// boundary slack.
func (c *Chunker) mergeTail(chunks []string, piece string, runes []rune, prevEnd int) []string {
	tail := strings.TrimSpace(string(runes[prevEnd:]))
	if tail == "" {
		return chunks
	}
	prev := chunks[len(chunks)-1]
	if len([]rune(prev))+1+len([]rune(tail)) <= c.size+boundaryScan {
		chunks[len(chunks)-1] = prev + " " + tail
		return chunks
	}
	return append(chunks, piece)
}

// boundary scans backwards from end for whitespace, accepting a cut only when
// it keeps the window above half size.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	low := end - boundaryScan
	if low < start {
		low = start
	}
	for i := end - 1; i >= low; i-- {
		if unicode.IsSpace(runes[i]) {
			if i-start > c.size/2 {
				return i
			}
			break
		}
	}
	return end
}

// Chunks splits a document's body text and wraps each window in a Chunk that
// inherits the document's identity fields. Chunk ids are deterministic in
// (document id, content).
func (c *Chunker) Chunks(doc document.Document) []document.Chunk {
	pieces := c.Split(doc.BodyText)
	out := make([]document.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		out = append(out, document.Chunk{
			ChunkID:      document.StableChunkID(doc.DocumentID, piece),
			DocumentID:   doc.DocumentID,
			ProjectID:    doc.ProjectID,
			Title:        doc.Title,
			DateModified: doc.DateModified,
			Content:      piece,
		})
	}
	return out
}
