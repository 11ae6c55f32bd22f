// Package tiktoken counts and trims tokens for context budgeting.
package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer wraps a tiktoken encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New resolves the encoding by model name first, then by encoding name.
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate cuts text to at most maxTokens tokens.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return t.enc.Decode(ids[:maxTokens])
}
