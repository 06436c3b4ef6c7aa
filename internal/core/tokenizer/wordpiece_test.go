package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVocab = `[PAD]
[UNK]
[CLS]
[SEP]
sally
says
hi
call
##ing
cafe
!
`

func newTestWordPiece(t *testing.T) *WordPiece {
	wp, err := NewWordPiece(strings.NewReader(testVocab), true)
	require.NoError(t, err)
	return wp
}

func TestWordPieceEncode(t *testing.T) {
	wp := newTestWordPiece(t)

	enc, err := wp.EncodeWithPadding("sally says hi", 10)
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 4, 5, 6, 3, 0, 0, 0, 0, 0}, enc.IDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 0, 0, 0, 0, 0}, enc.AttentionMask)
}

func TestWordPieceTokenize(t *testing.T) {
	wp := newTestWordPiece(t)

	assert.Equal(t, []string{"sally", "says", "hi"}, wp.Tokenize("Sally SAYS hi"))
	assert.Equal(t, []string{"call", "##ing", "!"}, wp.Tokenize("calling!"))
	assert.Equal(t, []string{"cafe"}, wp.Tokenize("Café"))
	assert.Equal(t, []string{"[UNK]", "hi"}, wp.Tokenize("xyz hi"))
	assert.Empty(t, wp.Tokenize("   \t\n"))
}

func TestWordPieceTruncation(t *testing.T) {
	wp := newTestWordPiece(t)

	enc, err := wp.EncodeWithPadding("sally says hi sally says hi", 5)
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 4, 5, 6, 3}, enc.IDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 1}, enc.AttentionMask)

	_, err = wp.EncodeWithPadding("hi", 1)
	assert.Error(t, err)
}

func TestWordPieceMissingSpecialTokens(t *testing.T) {
	_, err := NewWordPiece(strings.NewReader("[PAD]\nhello\n"), true)
	assert.Error(t, err)
}

func TestTruncateAndPad(t *testing.T) {
	enc := TruncateAndPad([]int64{101, 7, 8, 9, 102}, 1, 4, 0)
	assert.Equal(t, []int64{101, 7, 8, 102}, enc.IDs)
	assert.Equal(t, []int64{1, 1, 1, 1}, enc.AttentionMask)

	enc = TruncateAndPad([]int64{101, 7, 102}, 1, 6, 99)
	assert.Equal(t, []int64{101, 7, 102, 99, 99, 99}, enc.IDs)
	assert.Equal(t, []int64{1, 1, 1, 0, 0, 0}, enc.AttentionMask)
}
