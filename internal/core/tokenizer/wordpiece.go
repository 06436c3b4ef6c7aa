package tokenizer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	PadToken = "[PAD]"
	UnkToken = "[UNK]"
	ClsToken = "[CLS]"
	SepToken = "[SEP]"

	maxCharsPerWord = 100
)

// WordPiece is a BERT style uncased/cased WordPiece tokenizer backed by a
// vocab.txt file with one token per line.
type WordPiece struct {
	vocab     map[string]int64
	lowercase bool

	padID int64
	unkID int64
	clsID int64
	sepID int64
}

func LoadWordPiece(path string, lowercase bool) (*WordPiece, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening vocab file: %w", err)
	}
	defer file.Close()

	return NewWordPiece(file, lowercase)
}

func NewWordPiece(vocabFile io.Reader, lowercase bool) (*WordPiece, error) {
	vocab := make(map[string]int64)

	scanner := bufio.NewScanner(vocabFile)
	var idx int64
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r\n")
		if token == "" {
			idx++
			continue
		}
		if _, exists := vocab[token]; !exists {
			vocab[token] = idx
		}
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading vocab: %w", err)
	}

	wp := &WordPiece{vocab: vocab, lowercase: lowercase}

	for _, special := range []struct {
		token string
		dest  *int64
	}{
		{PadToken, &wp.padID}, {UnkToken, &wp.unkID}, {ClsToken, &wp.clsID}, {SepToken, &wp.sepID},
	} {
		id, ok := vocab[special.token]
		if !ok {
			return nil, fmt.Errorf("vocab is missing special token %s", special.token)
		}
		*special.dest = id
	}

	return wp, nil
}

func (w *WordPiece) Tokenize(text string) []string {
	var tokens []string
	for _, word := range w.basicTokenize(text) {
		tokens = append(tokens, w.wordPieces(word)...)
	}
	return tokens
}

func (w *WordPiece) EncodeWithPadding(text string, maxLength int) (Encoding, error) {
	if maxLength < 2 {
		return Encoding{}, fmt.Errorf("max length %d cannot fit [CLS] and [SEP]", maxLength)
	}

	tokens := w.Tokenize(text)
	ids := make([]int64, 0, len(tokens)+2)
	ids = append(ids, w.clsID)
	for _, token := range tokens {
		ids = append(ids, w.vocab[token])
	}
	ids = append(ids, w.sepID)

	return TruncateAndPad(ids, 1, maxLength, w.padID), nil
}

func (w *WordPiece) Close() {}

func (w *WordPiece) basicTokenize(text string) []string {
	if w.lowercase {
		text = stripAccents(strings.ToLower(text))
	}

	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case r == 0 || r == unicode.ReplacementChar || (unicode.IsControl(r) && !unicode.IsSpace(r)):
			continue
		case unicode.IsSpace(r):
			flush()
		case isPunctuation(r):
			flush()
			words = append(words, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return words
}

// wordPieces splits a word greedily into the longest vocab prefixes, using the
// ## continuation marker for non-initial pieces.
func (w *WordPiece) wordPieces(word string) []string {
	runes := []rune(word)
	if len(runes) > maxCharsPerWord {
		return []string{UnkToken}
	}

	var pieces []string
	for start := 0; start < len(runes); {
		end := len(runes)
		found := ""
		for end > start {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = "##" + candidate
			}
			if _, ok := w.vocab[candidate]; ok {
				found = candidate
				break
			}
			end--
		}
		if found == "" {
			return []string{UnkToken}
		}
		pieces = append(pieces, found)
		start = end
	}
	return pieces
}

func stripAccents(text string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(text) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
