package huggingface

import (
	"fmt"
	"log/slog"
	"review-prep/internal/core/tokenizer"

	"github.com/daulet/tokenizers"
)

// Tokenizer wraps a HuggingFace tokenizer.json so that it satisfies the
// padded-encoding contract used by the encoder.
type Tokenizer struct {
	tk    *tokenizers.Tokenizer
	padID int64
}

var _ tokenizer.Tokenizer = (*Tokenizer)(nil)

func FromFile(path string, padID int64) (*Tokenizer, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer load from %s: %w", path, err)
	}
	return &Tokenizer{tk: tk, padID: padID}, nil
}

func FromPretrained(name string, padID int64) (*Tokenizer, error) {
	tk, err := tokenizers.FromPretrained(name)
	if err != nil {
		return nil, fmt.Errorf("tokenizer load %s: %w", name, err)
	}
	return &Tokenizer{tk: tk, padID: padID}, nil
}

func (t *Tokenizer) Tokenize(text string) []string {
	_, tokens := t.tk.Encode(text, false)
	return tokens
}

func (t *Tokenizer) EncodeWithPadding(text string, maxLength int) (tokenizer.Encoding, error) {
	enc := t.tk.EncodeWithOptions(text, true, tokenizers.WithReturnSpecialTokensMask())
	if len(enc.IDs) == 0 {
		return tokenizer.Encoding{}, fmt.Errorf("tokenizer returned no ids")
	}

	ids := make([]int64, len(enc.IDs))
	for i, id := range enc.IDs {
		ids[i] = int64(id)
	}

	trailing := 0
	for i := len(enc.SpecialTokensMask) - 1; i >= 0 && enc.SpecialTokensMask[i] == 1; i-- {
		trailing++
	}

	return tokenizer.TruncateAndPad(ids, trailing, maxLength, t.padID), nil
}

func (t *Tokenizer) Close() {
	if err := t.tk.Close(); err != nil {
		slog.Error("error closing tokenizer", "error", err)
	}
}
