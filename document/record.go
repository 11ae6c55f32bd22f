package document

import "encoding/json"

// RecordKind tags the known raw-record shapes the ingestion pipeline accepts.
type RecordKind string

const (
	// KindAconex is a document export record: DocumentId plus a metadata map.
	KindAconex RecordKind = "aconex"
	// KindSynthetic is an Aconex record enriched with generated full text.
	KindSynthetic RecordKind = "synthetic"
	// KindEmail is a correspondence record whose body may be HTML.
	KindEmail RecordKind = "email"
	// KindGeneric is the fallback for any other key/value object.
	KindGeneric RecordKind = "generic"
)

// RawRecord is one heterogeneous ingest record before normalization.
type RawRecord struct {
	DocumentID string         `json:"DocumentId"`
	ProjectID  string         `json:"project_id,omitempty"`
	Metadata   map[string]any `json:"metadata"`

	// Set on synthetic-content records; supersedes the metadata body text.
	FullText string `json:"full_text,omitempty"`
	// Alternate field name used by older synthetic exports.
	SyntheticContent string `json:"synthetic_content,omitempty"`

	// Email-as-document fields.
	Subject  string `json:"subject,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	BodyHTML string `json:"body_html,omitempty"`
	BodyText string `json:"body_text,omitempty"`

	raw json.RawMessage
}

// Kind classifies the record by the fields actually present.
func (r *RawRecord) Kind() RecordKind {
	switch {
	case r.FullText != "" || r.SyntheticContent != "":
		return KindSynthetic
	case r.Subject != "" || r.BodyHTML != "" || r.From != "":
		return KindEmail
	case r.Metadata != nil:
		return KindAconex
	default:
		return KindGeneric
	}
}

// Raw returns the original JSON bytes of the record, kept for the documents
// table's raw column.
func (r *RawRecord) Raw() json.RawMessage { return r.raw }

// UnmarshalJSON keeps a verbatim copy of the payload alongside the decoded view.
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	type plain RawRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RawRecord(p)
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}
