package lang

import (
	"fmt"
	"strings"
)

// SyntaxError is the single error kind surfaced by the lexer and parser.
// It carries enough position information for an editor front end to place
// a marker: a human-readable message, the 1-based line, and the rune
// offset into the source.
type SyntaxError struct {
	Msg     string
	Line    int
	Offset  int
	Snippet string // trimmed source line where the error occurred
}

func (e *SyntaxError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s\n  |> %s", e.Line, e.Msg, e.Snippet)
}

// syntaxErrorAt builds a SyntaxError for the given token, attaching the
// source line snippet when the source is available.
func syntaxErrorAt(sourceLines []string, tok Token, format string, args ...any) *SyntaxError {
	err := &SyntaxError{
		Msg:    fmt.Sprintf(format, args...),
		Line:   tok.Line,
		Offset: tok.Offset,
	}
	lineIdx := tok.Line - 1
	if lineIdx >= 0 && lineIdx < len(sourceLines) {
		err.Snippet = strings.TrimSpace(sourceLines[lineIdx])
	}
	return err
}
