package core

import (
	"fmt"
	"review-prep/internal/core/tokenizer"
	"review-prep/internal/core/types"
)

const DefaultMaxSeqLength = 128

// Encoder turns a review into the fixed-length BERT style feature vector. It
// holds no mutable state and is safe for concurrent use as long as the
// tokenizer is.
type Encoder struct {
	tokenizer    tokenizer.Tokenizer
	labels       types.LabelIndex
	maxSeqLength int
}

func NewEncoder(tk tokenizer.Tokenizer, labels types.LabelIndex, maxSeqLength int) (*Encoder, error) {
	if tk == nil {
		return nil, fmt.Errorf("encoder requires a tokenizer")
	}
	if maxSeqLength <= 0 {
		return nil, fmt.Errorf("max sequence length must be positive, got %d", maxSeqLength)
	}
	if labels.Len() == 0 {
		return nil, fmt.Errorf("encoder requires a non-empty label index")
	}
	return &Encoder{tokenizer: tk, labels: labels, maxSeqLength: maxSeqLength}, nil
}

func (e *Encoder) MaxSeqLength() int {
	return e.maxSeqLength
}

func (e *Encoder) Encode(row types.Row) (types.EncodedFeature, error) {
	if !row.HasLabel {
		return types.EncodedFeature{}, &types.UnknownLabelError{Missing: true, RowID: row.ID}
	}
	labelId, err := e.labels.Lookup(row.Label)
	if err != nil {
		return types.EncodedFeature{}, &types.UnknownLabelError{Label: row.Label, RowID: row.ID}
	}

	enc, err := e.tokenizer.EncodeWithPadding(row.Text, e.maxSeqLength)
	if err != nil {
		return types.EncodedFeature{}, fmt.Errorf("error tokenizing row '%s': %w", row.ID, err)
	}
	if len(enc.IDs) != e.maxSeqLength || len(enc.AttentionMask) != e.maxSeqLength {
		return types.EncodedFeature{}, fmt.Errorf("tokenizer returned %d ids and %d mask values for row '%s', expected %d", len(enc.IDs), len(enc.AttentionMask), row.ID, e.maxSeqLength)
	}

	return types.EncodedFeature{
		InputIDs:   enc.IDs,
		InputMask:  enc.AttentionMask,
		SegmentIDs: make([]int64, e.maxSeqLength),
		LabelID:    int64(labelId),
	}, nil
}
