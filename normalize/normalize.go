// Package normalize maps heterogeneous raw ingest records onto the canonical
// document shape plus the text block the chunker consumes.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/pkg/errors"
	"github.com/construdocs/construdocs/preprocess"
)

// Schema-defined maxima for string columns.
const (
	maxTitle    = 500
	maxNumber   = 200
	maxShort    = 200
	maxBodyText = 200_000
)

// metaFieldsOrder is the fixed preferred order of metadata fields in body_text.
var metaFieldsOrder = []string{
	"Category",
	"DocumentType",
	"DocumentStatus",
	"ReviewStatus",
	"DocumentNumber",
	"Revision",
	"Filename",
	"FileType",
	"FileSize",
	"SelectList1",
	"SelectList2",
	"SelectList3",
	"SelectList7",
	"SelectList10",
	"Confidential",
	"ConfidentialUserAccessList",
	"PlannedSubmissionDate",
	"MilestoneDate",
	"Date1",
}

// Normalizer converts raw records into canonical documents.
type Normalizer struct {
	defaultProjectID string
}

// New creates a normalizer with the fallback project id used when a record
// carries no project of its own.
func New(defaultProjectID string) *Normalizer {
	return &Normalizer{defaultProjectID: defaultProjectID}
}

// Normalize builds the canonical document for a raw record. The returned
// document's BodyText is ready for chunking. A record without a DocumentId
// fails with ErrNormalization.
func (n *Normalizer) Normalize(rec *document.RawRecord) (document.Document, error) {
	if rec == nil || strings.TrimSpace(rec.DocumentID) == "" {
		return document.Document{}, fmt.Errorf("record has no DocumentId: %w", errors.ErrNormalization)
	}

	m := rec.Metadata
	if m == nil {
		m = map[string]any{}
	}

	doc := document.Document{
		DocumentID:   rec.DocumentID,
		Title:        truncate(firstNonEmpty(metaString(m, "Title"), metaString(m, "DocumentNumber"), "Documento Aconex"), maxTitle),
		Number:       truncate(metaString(m, "DocumentNumber"), maxNumber),
		Category:     truncate(metaString(m, "Category"), maxShort),
		DocType:      truncate(metaString(m, "DocumentType"), maxShort),
		Status:       truncate(metaString(m, "DocumentStatus"), maxShort),
		ReviewStatus: truncate(metaString(m, "ReviewStatus"), maxShort),
		Revision:     truncate(metaString(m, "Revision"), maxShort),
		Filename:     truncate(metaString(m, "Filename"), maxShort),
		FileType:     truncate(strings.ToLower(metaString(m, "FileType")), maxShort),
		Raw:          rec.Raw(),
	}

	if v := metaString(m, "FileSize"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			doc.FileSize = &size
		}
	}
	doc.DateModified = parseDate(firstNonEmpty(
		metaString(m, "DateModified"), metaString(m, "MilestoneDate"), metaString(m, "Date1")))

	// project_id resolution: record field, then the designated metadata slot,
	// then the caller-supplied default.
	doc.ProjectID = firstNonEmpty(rec.ProjectID, metaString(m, "SelectList2"), n.defaultProjectID)

	body, err := n.bodyText(rec, &doc, m)
	if err != nil {
		return document.Document{}, err
	}
	doc.BodyText = truncate(body, maxBodyText)
	return doc, nil
}

// bodyText assembles the chunkable text for the record's shape. Aconex records
// get the consolidated metadata block; synthetic full text supersedes it;
// email bodies are extracted from HTML when needed.
func (n *Normalizer) bodyText(rec *document.RawRecord, doc *document.Document, m map[string]any) (string, error) {
	lines := []string{
		"Título: " + doc.Title,
		"DocumentId: " + doc.DocumentID,
	}
	for _, k := range metaFieldsOrder {
		if v := metaString(m, k); v != "" {
			lines = append(lines, k+": "+v)
		}
	}
	base := strings.Join(lines, "\n")

	switch rec.Kind() {
	case document.KindSynthetic:
		full := firstNonEmpty(rec.FullText, rec.SyntheticContent)
		return base + "\n\n" + preprocess.CleanBasic(full), nil
	case document.KindEmail:
		if doc.Title == "Documento Aconex" && rec.Subject != "" {
			doc.Title = truncate(rec.Subject, maxTitle)
		}
		body := rec.BodyText
		if body == "" && rec.BodyHTML != "" {
			text, err := preprocess.HTMLToText(rec.BodyHTML)
			if err != nil {
				return "", fmt.Errorf("extract email body: %w", errors.ErrNormalization)
			}
			body = text
		}
		header := strings.Join([]string{
			"Asunto: " + rec.Subject,
			"De: " + rec.From,
			"Para: " + rec.To,
		}, "\n")
		return base + "\n" + header + "\n\n" + preprocess.CleanBasic(body), nil
	default:
		return base, nil
	}
}

// parseDate accepts ISO-8601 with a trailing Z mapped to UTC. Unparseable
// dates yield nil, never an error.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts
		}
	}
	return nil
}

func metaString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// cut on a rune boundary
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
