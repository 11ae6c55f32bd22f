package normalize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/pkg/errors"
)

func decodeRecord(t *testing.T, raw string) *document.RawRecord {
	t.Helper()
	var rec document.RawRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	return &rec
}

func TestNormalizeAconexRecord(t *testing.T) {
	rec := decodeRecord(t, `{
		"DocumentId": "doc-1",
		"metadata": {
			"Title": "Plano estructural",
			"DocumentNumber": "EST-001",
			"Category": "Estructuras",
			"DocumentType": "Plano",
			"FileSize": "2048",
			"DateModified": "2024-03-05T10:00:00Z",
			"SelectList2": "PROJ-9"
		}
	}`)

	doc, err := New("DEFAULT").Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if doc.Title != "Plano estructural" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.Number != "EST-001" {
		t.Errorf("number = %q", doc.Number)
	}
	if doc.ProjectID != "PROJ-9" {
		t.Errorf("project = %q, want SelectList2 fallback", doc.ProjectID)
	}
	if doc.FileSize == nil || *doc.FileSize != 2048 {
		t.Errorf("file size = %v", doc.FileSize)
	}
	if doc.DateModified == nil || doc.DateModified.UTC().Format("2006-01-02") != "2024-03-05" {
		t.Errorf("date = %v", doc.DateModified)
	}

	wantLines := []string{
		"Título: Plano estructural",
		"DocumentId: doc-1",
		"Category: Estructuras",
		"DocumentType: Plano",
		"DocumentNumber: EST-001",
	}
	for _, line := range wantLines {
		if !strings.Contains(doc.BodyText, line) {
			t.Errorf("body text missing %q:\n%s", line, doc.BodyText)
		}
	}
	// Category precedes DocumentNumber in the fixed field order.
	if strings.Index(doc.BodyText, "Category:") > strings.Index(doc.BodyText, "DocumentNumber:") {
		t.Error("metadata fields out of order")
	}
}

func TestNormalizeTitleFallbacks(t *testing.T) {
	rec := decodeRecord(t, `{"DocumentId": "d", "metadata": {"DocumentNumber": "N-1"}}`)
	doc, err := New("P").Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if doc.Title != "N-1" {
		t.Errorf("title = %q, want document number fallback", doc.Title)
	}

	rec = decodeRecord(t, `{"DocumentId": "d", "metadata": {}}`)
	doc, _ = New("P").Normalize(rec)
	if doc.Title != "Documento Aconex" {
		t.Errorf("title = %q, want default", doc.Title)
	}
	if doc.ProjectID != "P" {
		t.Errorf("project = %q, want default", doc.ProjectID)
	}
}

func TestNormalizeMissingDocumentID(t *testing.T) {
	rec := decodeRecord(t, `{"metadata": {"Title": "x"}}`)
	if _, err := New("P").Normalize(rec); !errors.Is(err, errors.ErrNormalization) {
		t.Fatalf("err = %v, want ErrNormalization", err)
	}
}

func TestNormalizeSyntheticFullText(t *testing.T) {
	rec := decodeRecord(t, `{
		"DocumentId": "d",
		"metadata": {"Title": "Informe"},
		"full_text": "Contenido   generado\u0000 del informe."
	}`)
	doc, err := New("P").Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !strings.Contains(doc.BodyText, "Contenido generado del informe.") {
		t.Errorf("body text missing cleaned full text:\n%s", doc.BodyText)
	}
	if !strings.HasPrefix(doc.BodyText, "Título: Informe") {
		t.Errorf("metadata header dropped:\n%s", doc.BodyText)
	}
}

func TestNormalizeEmailRecord(t *testing.T) {
	rec := decodeRecord(t, `{
		"DocumentId": "mail-1",
		"subject": "RFI 42: detalle de anclaje",
		"from": "a@obra.example",
		"to": "b@obra.example",
		"body_html": "<p>Se solicita el detalle.</p><ul><li>Plano A</li></ul>"
	}`)
	doc, err := New("P").Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if doc.Title != "RFI 42: detalle de anclaje" {
		t.Errorf("title = %q, want subject", doc.Title)
	}
	if !strings.Contains(doc.BodyText, "Se solicita el detalle.") {
		t.Errorf("html body not extracted:\n%s", doc.BodyText)
	}
	if !strings.Contains(doc.BodyText, "- Plano A") {
		t.Errorf("list item missing:\n%s", doc.BodyText)
	}
	if !strings.Contains(doc.BodyText, "De: a@obra.example") {
		t.Errorf("email header missing:\n%s", doc.BodyText)
	}
}

func TestNormalizeTruncation(t *testing.T) {
	long := strings.Repeat("á", 600)
	rec := decodeRecord(t, `{"DocumentId": "d", "metadata": {"Title": "`+long+`"}}`)
	doc, err := New("P").Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got := len([]rune(doc.Title)); got != 500 {
		t.Errorf("title length = %d runes, want 500", got)
	}
}

func TestNormalizeUnparseableDate(t *testing.T) {
	rec := decodeRecord(t, `{"DocumentId": "d", "metadata": {"DateModified": "next tuesday"}}`)
	doc, err := New("P").Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if doc.DateModified != nil {
		t.Errorf("date = %v, want nil", doc.DateModified)
	}
}
