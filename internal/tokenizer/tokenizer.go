package tokenizer

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer provides token counting for grounded answers using tiktoken
// encodings. Encodings are cached via sync.Once to avoid repeated
// initialization.
type Tokenizer struct {
	cl100kOnce sync.Once
	cl100kEnc  *tiktoken.Tiktoken
	cl100kErr  error

	o200kOnce sync.Once
	o200kEnc  *tiktoken.Tiktoken
	o200kErr  error
}

// modelEncodings maps model names to their tiktoken encoding.
var modelEncodings = map[string]string{
	// o200k_base family
	"gpt-4o":       "o200k_base",
	"gpt-4o-mini":  "o200k_base",
	"gpt-4.1":      "o200k_base",
	"gpt-4.1-mini": "o200k_base",
	"o3":           "o200k_base",
	"o4-mini":      "o200k_base",

	// cl100k_base family
	"gpt-4":         "cl100k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-35-turbo":  "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// New creates a new Tokenizer instance.
func New() *Tokenizer {
	return &Tokenizer{}
}

// GetEncoding returns the encoding name for the given model.
// Unknown models default to o200k_base.
func (t *Tokenizer) GetEncoding(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}

	// Try prefix matching for versioned model names like "gpt-4o-2024-11-20".
	// The longest prefix wins so "gpt-4o-..." resolves to gpt-4o, not gpt-4.
	lower := strings.ToLower(model)
	best := ""
	for m := range modelEncodings {
		if strings.HasPrefix(lower, m) && len(m) > len(best) {
			best = m
		}
	}
	if best != "" {
		return modelEncodings[best]
	}

	return "o200k_base"
}

// getEncoder returns the cached tiktoken encoder for the given model.
func (t *Tokenizer) getEncoder(model string) (*tiktoken.Tiktoken, error) {
	switch t.GetEncoding(model) {
	case "cl100k_base":
		t.cl100kOnce.Do(func() {
			t.cl100kEnc, t.cl100kErr = tiktoken.GetEncoding("cl100k_base")
		})
		return t.cl100kEnc, t.cl100kErr
	default:
		t.o200kOnce.Do(func() {
			t.o200kEnc, t.o200kErr = tiktoken.GetEncoding("o200k_base")
		})
		return t.o200kEnc, t.o200kErr
	}
}

// CountTokens counts the number of tokens in the given text for the
// specified model. It returns 0 when the encoding cannot be loaded; a
// missing count must never fail a request.
func (t *Tokenizer) CountTokens(model, text string) int {
	enc, err := t.getEncoder(model)
	if err != nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}
