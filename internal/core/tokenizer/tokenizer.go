package tokenizer

// Encoding is the padded output of a tokenizer. IDs and AttentionMask always
// have the requested max length.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
}

type Tokenizer interface {
	Tokenize(text string) []string

	EncodeWithPadding(text string, maxLength int) (Encoding, error)

	Close()
}

// TruncateAndPad keeps the leading tokens of ids and the trailing special
// tokens, so that [CLS] a b c [SEP] truncated to 4 becomes [CLS] a b [SEP],
// then right pads with padID. The mask marks the kept tokens.
func TruncateAndPad(ids []int64, trailingSpecial int, maxLength int, padID int64) Encoding {
	if len(ids) > maxLength {
		trailingSpecial = min(trailingSpecial, maxLength)
		head := ids[:maxLength-trailingSpecial]
		tail := ids[len(ids)-trailingSpecial:]
		ids = append(append(make([]int64, 0, maxLength), head...), tail...)
	}

	enc := Encoding{
		IDs:           make([]int64, maxLength),
		AttentionMask: make([]int64, maxLength),
	}
	for i := range enc.IDs {
		if i < len(ids) {
			enc.IDs[i] = ids[i]
			enc.AttentionMask[i] = 1
		} else {
			enc.IDs[i] = padID
		}
	}
	return enc
}
