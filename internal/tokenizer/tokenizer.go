package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Codec abstracts token encoding/decoding so callers stay testable offline.
type Codec interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Tiktoken wraps a tiktoken BPE encoding as a Codec.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding (cl100k_base when empty).
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Encode converts text into BPE token ids.
func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode converts token ids back into text.
func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
