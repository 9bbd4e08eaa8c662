package tokenizer

import (
	"strings"
	"unicode/utf8"

	"github.com/armon/go-radix"
)

// DefaultMultiCharTokens are matched as single tokens outside brackets.
var DefaultMultiCharTokens = []string{"Cl", "Br"}

// segmenter splits SMILES into tokens. Bracket atoms and %nn ring labels
// are single tokens; registered multi-character tokens are matched
// longest-first; anything else is one rune.
type segmenter struct {
	tree *radix.Tree
}

func newSegmenter(multi []string) *segmenter {
	s := &segmenter{tree: radix.New()}
	for _, tok := range multi {
		s.add(tok)
	}
	return s
}

func (s *segmenter) add(tok string) {
	if utf8.RuneCountInString(tok) > 1 {
		s.tree.Insert(tok, struct{}{})
	}
}

func (s *segmenter) multiCharTokens() []string {
	out := make([]string, 0, s.tree.Len())
	s.tree.Walk(func(k string, _ interface{}) bool {
		out = append(out, k)
		return false
	})
	return out
}

func (s *segmenter) segment(text string) []string {
	var out []string
	for i := 0; i < len(text); {
		rest := text[i:]
		var tok string
		switch {
		case rest[0] == '[':
			if end := strings.IndexByte(rest, ']'); end > 0 {
				tok = rest[:end+1]
			}
		case rest[0] == '%':
			if len(rest) >= 3 && isDigit(rest[1]) && isDigit(rest[2]) {
				tok = rest[:3]
			}
		}
		if tok == "" {
			if prefix, _, ok := s.tree.LongestPrefix(rest); ok {
				tok = prefix
			}
		}
		if tok == "" {
			_, size := utf8.DecodeRuneInString(rest)
			tok = rest[:size]
		}
		out = append(out, tok)
		i += len(tok)
	}
	return out
}

// isStructural reports whether tok is produced whole by the bracket or
// ring-label rules.
func isStructural(tok string) bool {
	if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
		return true
	}
	return len(tok) == 3 && tok[0] == '%' && isDigit(tok[1]) && isDigit(tok[2])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
