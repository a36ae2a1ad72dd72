package tokenizer

import (
	"testing"
)

func TestCountTokens_NonZeroForKnownText(t *testing.T) {
	tok := New()
	text := "Hello, world! This is a grounded answer with citations."
	count := tok.CountTokens("gpt-4o", text)
	if count == 0 {
		t.Errorf("CountTokens returned 0 for known text %q; want non-zero", text)
	}
}

func TestCountTokens_ZeroForEmptyText(t *testing.T) {
	tok := New()
	count := tok.CountTokens("gpt-4o", "")
	if count != 0 {
		t.Errorf("CountTokens returned %d for empty text; want 0", count)
	}
}

func TestGetEncoding_O200kForGPT4oFamily(t *testing.T) {
	tok := New()

	models := []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini", "o3", "o4-mini"}
	for _, model := range models {
		enc := tok.GetEncoding(model)
		if enc != "o200k_base" {
			t.Errorf("GetEncoding(%q) = %q; want %q", model, enc, "o200k_base")
		}
	}
}

func TestGetEncoding_Cl100kForLegacyModels(t *testing.T) {
	tok := New()

	models := []string{"gpt-4", "gpt-4-turbo", "gpt-35-turbo", "gpt-3.5-turbo"}
	for _, model := range models {
		enc := tok.GetEncoding(model)
		if enc != "cl100k_base" {
			t.Errorf("GetEncoding(%q) = %q; want %q", model, enc, "cl100k_base")
		}
	}
}

func TestGetEncoding_O200kForUnknownModels(t *testing.T) {
	tok := New()
	unknowns := []string{
		"some-random-model",
		"llama-3-70b",
		"mistral-7b",
	}
	for _, model := range unknowns {
		enc := tok.GetEncoding(model)
		if enc != "o200k_base" {
			t.Errorf("GetEncoding(%q) = %q; want %q", model, enc, "o200k_base")
		}
	}
}

func TestGetEncoding_PrefixMatchForVersionedModelNames(t *testing.T) {
	tok := New()

	tests := []struct {
		model    string
		expected string
	}{
		{"gpt-4o-2024-11-20", "o200k_base"},
		{"gpt-4.1-2025-04-14", "o200k_base"},
		{"gpt-4-turbo-2024-04-09", "cl100k_base"},
	}

	for _, tt := range tests {
		enc := tok.GetEncoding(tt.model)
		if enc != tt.expected {
			t.Errorf("GetEncoding(%q) = %q; want %q (prefix match)", tt.model, enc, tt.expected)
		}
	}
}
