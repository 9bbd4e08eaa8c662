package chem

import (
	"errors"
	"fmt"
)

// ErrUnparseable is matched by every error returned for input that cannot be
// read as a valid molecule.
var ErrUnparseable = errors.New("unparseable molecule")

// ParseError carries the input and the byte offset at which parsing failed.
type ParseError struct {
	SMILES string
	Pos    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable molecule %q at position %d: %s", e.SMILES, e.Pos, e.Reason)
}

// Is makes errors.Is(err, ErrUnparseable) hold for every ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrUnparseable
}

func newParseError(smiles string, pos int, format string, args ...any) *ParseError {
	return &ParseError{SMILES: smiles, Pos: pos, Reason: fmt.Sprintf(format, args...)}
}
