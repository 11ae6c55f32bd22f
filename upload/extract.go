package upload

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/construdocs/construdocs/pkg/errors"
	"github.com/construdocs/construdocs/preprocess"
)

// SupportedTypes lists the accepted upload extensions.
var SupportedTypes = []string{"pdf", "txt", "docx", "json"}

// Supported reports whether ext (without dot, any case) is accepted.
func Supported(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, s := range SupportedTypes {
		if ext == s {
			return true
		}
	}
	return false
}

// ExtractText pulls plain text from an uploaded file. The returned text is
// cleaned but not chunked.
func ExtractText(filename string, content []byte) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(fileExt(filename), "."))
	switch ext {
	case "pdf":
		return extractPDF(content)
	case "txt":
		return extractTXT(content), nil
	case "docx":
		return extractDOCX(content)
	case "json":
		return extractJSON(content)
	default:
		return "", fmt.Errorf("file type %q: %w", ext, errors.ErrUnsupportedFormat)
	}
}

func extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w: %v", errors.ErrInvalidInput, err)
	}
	var out strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// keep going: a single damaged page should not sink the upload
			continue
		}
		out.WriteString(text)
		out.WriteString("\n")
	}
	return preprocess.CleanBasic(out.String()), nil
}

// extractTXT decodes UTF-8 directly and falls back to Latin-1 for legacy
// exports.
func extractTXT(content []byte) string {
	if utf8.Valid(content) {
		return preprocess.CleanBasic(string(content))
	}
	runes := make([]rune, len(content))
	for i, b := range content {
		runes[i] = rune(b)
	}
	return preprocess.CleanBasic(string(runes))
}

// docx body XML: paragraphs hold runs, runs hold text nodes.
type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
		Tables     []docxTable     `xml:"tbl"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text string `xml:"t"`
	} `xml:"r"`
}

type docxTable struct {
	Rows []struct {
		Cells []struct {
			Paragraphs []docxParagraph `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}

// extractDOCX reads word/document.xml out of the OOXML container.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w: %v", errors.ErrInvalidInput, err)
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return "", fmt.Errorf("open document.xml: %w: %v", errors.ErrInvalidInput, err)
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return "", fmt.Errorf("read document.xml: %w: %v", errors.ErrInvalidInput, err)
			}
			break
		}
	}
	if docXML == nil {
		return "", fmt.Errorf("docx has no document.xml: %w", errors.ErrInvalidInput)
	}

	var doc docxDocument
	if err := xml.Unmarshal(docXML, &doc); err != nil {
		return "", fmt.Errorf("parse document.xml: %w: %v", errors.ErrInvalidInput, err)
	}

	var out []string
	for _, p := range doc.Body.Paragraphs {
		if text := paragraphText(p); text != "" {
			out = append(out, text)
		}
	}
	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			var cells []string
			for _, cell := range row.Cells {
				var parts []string
				for _, p := range cell.Paragraphs {
					if text := paragraphText(p); text != "" {
						parts = append(parts, text)
					}
				}
				cells = append(cells, strings.Join(parts, " "))
			}
			out = append(out, strings.Join(cells, " | "))
		}
	}
	return preprocess.CleanBasic(strings.Join(out, "\n")), nil
}

func paragraphText(p docxParagraph) string {
	var b strings.Builder
	for _, r := range p.Runs {
		b.WriteString(r.Text)
	}
	return strings.TrimSpace(b.String())
}

// extractJSON flattens a JSON document into "path: value" lines so field
// names stay searchable.
func extractJSON(content []byte) (string, error) {
	var data any
	if err := json.Unmarshal(content, &data); err != nil {
		return "", fmt.Errorf("parse json: %w: %v", errors.ErrInvalidInput, err)
	}
	var lines []string
	flattenJSON("", data, &lines)
	return strings.Join(lines, "\n"), nil
}

func flattenJSON(prefix string, v any, lines *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenJSON(joinPath(prefix, k), t[k], lines)
		}
	case []any:
		for i, item := range t {
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), item, lines)
		}
	case nil:
	default:
		*lines = append(*lines, fmt.Sprintf("%s: %v", prefix, t))
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func fileExt(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		return filename[i:]
	}
	return ""
}
