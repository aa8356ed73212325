package chunk

import (
	"strings"

	"github.com/tensor-ninja/agent-fix/internal/tokenizer"
)

// endOfTextSentinel is reserved by the tokenizer; leaving it in the input
// would corrupt encoding, so it is stripped before splitting.
const endOfTextSentinel = "<|endoftext|>"

// Splitter partitions text into token-bounded segments.
type Splitter struct {
	codec     tokenizer.Codec
	maxTokens int
}

// NewSplitter builds a splitter with a per-segment token budget.
func NewSplitter(codec tokenizer.Codec, maxTokens int) *Splitter {
	if maxTokens <= 0 {
		maxTokens = 8191
	}
	return &Splitter{codec: codec, maxTokens: maxTokens}
}

// Split returns the input as contiguous segments of at most maxTokens tokens.
// Inputs within budget come back as a single segment, verbatim. Decoding the
// segments and re-encoding them reproduces the original token sequence.
func (s *Splitter) Split(text string) []string {
	text = strings.ReplaceAll(text, endOfTextSentinel, "")

	tokens := s.codec.Encode(text)
	if len(tokens) <= s.maxTokens {
		return []string{text}
	}

	segments := make([]string, 0, (len(tokens)+s.maxTokens-1)/s.maxTokens)
	for start := 0; start < len(tokens); start += s.maxTokens {
		end := start + s.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		segments = append(segments, s.codec.Decode(tokens[start:end]))
	}
	return segments
}

// MaxTokens returns the configured per-segment budget.
func (s *Splitter) MaxTokens() int {
	return s.maxTokens
}
