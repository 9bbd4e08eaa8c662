package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
)

// SugarWordLevel serves an exported SMILES vocabulary through
// sugarme/tokenizer. SMILES are segmented first and handed over as
// whitespace-separated words, each a whole entry of the WordPiece vocab.
type SugarWordLevel struct {
	t         *tk.Tokenizer
	seg       *segmenter
	maxSeqLen int
}

// NewSugarWordLevel loads vocab.txt (or a directory holding it).
func NewSugarWordLevel(vocabPath string, maxSeq int) (*SugarWordLevel, error) {
	if fi, err := os.Stat(vocabPath); err == nil && fi.IsDir() {
		vocabPath = filepath.Join(vocabPath, VocabFileName)
	}
	local, err := LoadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	wp, err := wordpiece.NewWordPieceFromFile(vocabPath, UnknownToken)
	if err != nil {
		return nil, fmt.Errorf("load wordpiece vocabulary: %w", err)
	}

	t := tk.NewTokenizer(wp)
	// no lowercasing: aromatic atoms are lowercase
	t.WithNormalizer(normalizer.NewBertNormalizer(true, false, false, false))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())
	return &SugarWordLevel{t: t, seg: local.seg, maxSeqLen: maxSeq}, nil
}

// Encode returns the ids of smiles without boundary tokens.
func (s *SugarWordLevel) Encode(smiles string) ([]int, error) {
	words := strings.Join(s.seg.segment(smiles), " ")
	enc, err := s.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(words)), false)
	if err != nil {
		return nil, err
	}
	return enc.GetIds(), nil
}

// Tokenize implements Tokenizer with boundary tokens and fixed-length rows.
func (s *SugarWordLevel) Tokenize(texts []string) ([][]int64, [][]int64, error) {
	ids := make([][]int64, len(texts))
	masks := make([][]int64, len(texts))
	for i, txt := range texts {
		body, err := s.Encode(txt)
		if err != nil {
			return nil, nil, err
		}
		uids := append(append([]int{startIndex}, body...), endIndex)

		// enforce fixed-length output (pad/truncate to maxSeqLen)
		rowIDs := make([]int64, s.maxSeqLen)
		rowMask := make([]int64, s.maxSeqLen)
		n := min(len(uids), s.maxSeqLen)
		for j := 0; j < n; j++ {
			rowIDs[j] = int64(uids[j])
			rowMask[j] = 1
		}
		ids[i] = rowIDs
		masks[i] = rowMask
	}
	return ids, masks, nil
}
