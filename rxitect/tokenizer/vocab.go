package tokenizer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// VocabFileName is the conventional name of an exported vocabulary.
const VocabFileName = "vocab.txt"

// WriteVocab writes one token per line; the line number is the token index.
func (t *SmilesTokenizer) WriteVocab(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, tok := range t.tokens {
		if _, err := bw.WriteString(tok + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveVocab writes the vocabulary to path. A directory path receives
// vocab.txt.
func (t *SmilesTokenizer) SaveVocab(path string) error {
	if !t.fitted {
		return ErrNotFitted
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, VocabFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vocabulary directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vocabulary file: %w", err)
	}
	if err := t.WriteVocab(f); err != nil {
		f.Close()
		return fmt.Errorf("write vocabulary: %w", err)
	}
	return f.Close()
}

// ReadVocab rebuilds a fitted tokenizer from the WriteVocab format.
func ReadVocab(r io.Reader, opts ...Option) (*SmilesTokenizer, error) {
	var tokens []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return FromVocabulary(tokens, opts...)
}

// LoadVocab reads a vocabulary file written by SaveVocab.
func LoadVocab(path string, opts ...Option) (*SmilesTokenizer, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, VocabFileName)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()
	return ReadVocab(f, opts...)
}

// FromVocabulary builds a fitted tokenizer whose index i is tokens[i]. The
// reserved tokens must come first. Multi-character tokens are registered
// with the segmenter so text re-segments into the same tokens.
func FromVocabulary(tokens []string, opts ...Option) (*SmilesTokenizer, error) {
	if len(tokens) <= numReserved {
		return nil, fmt.Errorf("%w: %d tokens, want more than %d", ErrInvalidVocab, len(tokens), numReserved)
	}
	for i, want := range reservedTokens {
		if tokens[i] != want {
			return nil, fmt.Errorf("%w: index %d is %q, want %q", ErrInvalidVocab, i, tokens[i], want)
		}
	}
	t := New(opts...)
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok]; dup {
			return nil, fmt.Errorf("%w: duplicate token %q", ErrInvalidVocab, tok)
		}
		seen[tok] = struct{}{}
	}
	for _, tok := range tokens[numReserved:] {
		if !isStructural(tok) {
			t.seg.add(tok)
		}
	}
	t.tokens = append([]string(nil), tokens...)
	t.reindex()
	t.fitted = true
	return t, nil
}
