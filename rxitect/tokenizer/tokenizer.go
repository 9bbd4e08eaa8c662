package tokenizer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Tokenizer converts raw text to model-ready token IDs and attention masks
type Tokenizer interface {
	Tokenize(texts []string) (inputIDs [][]int64, attentionMasks [][]int64, err error)
}

var (
	// ErrEmptyCorpus is returned when fitting on a corpus without tokens.
	ErrEmptyCorpus = errors.New("cannot fit tokenizer on an empty corpus")
	// ErrAlreadyFitted is returned when fitting a tokenizer twice.
	ErrAlreadyFitted = errors.New("tokenizer vocabulary is already fitted")
	// ErrNotFitted is returned when encoding with an unfitted tokenizer.
	ErrNotFitted = errors.New("tokenizer is not fitted")
	// ErrUnknownIndex is returned when decoding an id outside the vocabulary.
	ErrUnknownIndex = errors.New("token index outside vocabulary")
	// ErrInvalidVocab is returned for a vocabulary without the reserved
	// tokens in their fixed positions.
	ErrInvalidVocab = errors.New("invalid vocabulary")
)

// Reserved tokens occupy the first indices of every vocabulary.
const (
	PadToken     = "<pad>"
	StartToken   = "<start>"
	EndToken     = "<end>"
	UnknownToken = "<unk>"
)

const (
	padIndex = iota
	startIndex
	endIndex
	unknownIndex
	numReserved
)

var reservedTokens = []string{PadToken, StartToken, EndToken, UnknownToken}

// SmilesTokenizer maps SMILES strings to integer sequences over a vocabulary
// fitted on a corpus. The vocabulary never changes after Fit.
type SmilesTokenizer struct {
	seg       *segmenter
	tokens    []string
	index     map[string]int
	fitted    bool
	maxSeqLen int
}

// Option configures a SmilesTokenizer.
type Option func(*SmilesTokenizer)

// WithMultiCharTokens replaces the default multi-character tokens.
func WithMultiCharTokens(tokens ...string) Option {
	return func(t *SmilesTokenizer) {
		t.seg = newSegmenter(tokens)
	}
}

// WithMaxSeqLen sets the fixed row length produced by Tokenize.
func WithMaxSeqLen(n int) Option {
	return func(t *SmilesTokenizer) {
		t.maxSeqLen = n
	}
}

// New returns an unfitted tokenizer.
func New(opts ...Option) *SmilesTokenizer {
	t := &SmilesTokenizer{
		seg:    newSegmenter(DefaultMultiCharTokens),
		tokens: slices.Clone(reservedTokens),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.reindex()
	return t
}

func (t *SmilesTokenizer) reindex() {
	t.index = make(map[string]int, len(t.tokens))
	for i, tok := range t.tokens {
		t.index[tok] = i
	}
}

// Segment splits s into tokens without mapping them to ids.
func (t *SmilesTokenizer) Segment(s string) []string {
	return t.seg.segment(s)
}

// Fit builds the vocabulary from every token appearing in corpus. Tokens
// are numbered in lexicographic order after the reserved ones.
func (t *SmilesTokenizer) Fit(corpus []string) error {
	if t.fitted {
		return ErrAlreadyFitted
	}
	seen := make(map[string]struct{})
	for _, s := range corpus {
		for _, tok := range t.seg.segment(s) {
			seen[tok] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return ErrEmptyCorpus
	}
	fitted := make([]string, 0, len(seen))
	for tok := range seen {
		if slices.Contains(reservedTokens, tok) {
			continue
		}
		fitted = append(fitted, tok)
	}
	slices.Sort(fitted)
	t.tokens = append(t.tokens[:numReserved], fitted...)
	t.reindex()
	t.fitted = true
	return nil
}

// Fitted reports whether the vocabulary has been built.
func (t *SmilesTokenizer) Fitted() bool { return t.fitted }

// Encode maps s to token ids. Tokens outside the vocabulary map to the
// unknown index.
func (t *SmilesTokenizer) Encode(s string) []int {
	toks := t.seg.segment(s)
	ids := make([]int, len(toks))
	for i, tok := range toks {
		id, ok := t.index[tok]
		if !ok || id < numReserved {
			id = unknownIndex
		}
		ids[i] = id
	}
	return ids
}

// EncodeWithBoundaries wraps Encode in the start and end indices.
func (t *SmilesTokenizer) EncodeWithBoundaries(s string) []int {
	body := t.Encode(s)
	ids := make([]int, 0, len(body)+2)
	ids = append(ids, startIndex)
	ids = append(ids, body...)
	return append(ids, endIndex)
}

// Decode maps ids back to a string. Reserved indices decode to nothing.
func (t *SmilesTokenizer) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.tokens) {
			return "", fmt.Errorf("%w: %d (vocabulary size %d)", ErrUnknownIndex, id, len(t.tokens))
		}
		if id < numReserved {
			continue
		}
		sb.WriteString(t.tokens[id])
	}
	return sb.String(), nil
}

// VocabSize counts reserved and fitted tokens.
func (t *SmilesTokenizer) VocabSize() int { return len(t.tokens) }

func (t *SmilesTokenizer) PadIndex() int     { return padIndex }
func (t *SmilesTokenizer) StartIndex() int   { return startIndex }
func (t *SmilesTokenizer) EndIndex() int     { return endIndex }
func (t *SmilesTokenizer) UnknownIndex() int { return unknownIndex }

// Tokens returns the vocabulary in index order.
func (t *SmilesTokenizer) Tokens() []string { return slices.Clone(t.tokens) }

// MaxSeqLen returns the configured fixed row length, 0 when unset.
func (t *SmilesTokenizer) MaxSeqLen() int { return t.maxSeqLen }

// Tokenize implements Tokenizer. Rows carry boundary tokens and are padded
// or truncated to MaxSeqLen, or to the longest row when MaxSeqLen is 0.
func (t *SmilesTokenizer) Tokenize(texts []string) ([][]int64, [][]int64, error) {
	if !t.fitted {
		return nil, nil, ErrNotFitted
	}
	encoded := make([][]int, len(texts))
	width := t.maxSeqLen
	for i, txt := range texts {
		encoded[i] = t.EncodeWithBoundaries(txt)
		if t.maxSeqLen == 0 {
			width = max(width, len(encoded[i]))
		}
	}

	ids := make([][]int64, len(texts))
	masks := make([][]int64, len(texts))
	for i, row := range encoded {
		rowIDs := make([]int64, width)
		rowMask := make([]int64, width)
		n := min(len(row), width)
		for j := 0; j < n; j++ {
			rowIDs[j] = int64(row[j])
			rowMask[j] = 1
		}
		ids[i] = rowIDs
		masks[i] = rowMask
	}
	return ids, masks, nil
}
