package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/pkg/errors"
)

// ReadRecords decodes an export file into raw records. All three shapes
// exporters produce are accepted: a JSON array, a single JSON object
// (pretty-printed or not), or newline-delimited JSON objects. The whole input
// is tried as one document first; only when that fails is it read line by
// line.
func ReadRecords(r io.Reader) ([]*document.RawRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input: %w", errors.ErrInvalidInput)
	}

	if data[0] == '[' {
		var records []*document.RawRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode record array: %w: %v", errors.ErrInvalidInput, err)
		}
		return records, nil
	}

	var rec document.RawRecord
	if err := json.Unmarshal(data, &rec); err == nil {
		return []*document.RawRecord{&rec}, nil
	}
	return readNDJSON(data)
}

func readNDJSON(data []byte) ([]*document.RawRecord, error) {
	var records []*document.RawRecord
	for i, raw := range bytes.Split(data, []byte("\n")) {
		text := bytes.TrimSpace(raw)
		if len(text) == 0 {
			continue
		}
		var rec document.RawRecord
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("decode line %d: %w: %v", i+1, errors.ErrInvalidInput, err)
		}
		records = append(records, &rec)
	}
	return records, nil
}
