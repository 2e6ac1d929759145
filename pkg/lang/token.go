package lang

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENT  // instance / spindle / builtin name
	NUMBER // numeric literal, always parsed as float64
	STRING // string literal "..."
	PRAGMA // #type rest-of-line source annotation

	// Keywords
	SPINDLE // "spindle"
	IF      // "if"
	THEN    // "then"
	ELSE    // "else"
	AND     // "and"
	OR      // "or"
	NOT     // "not"
	ME      // "me"
	MOUSE   // "mouse"

	// Paired delimiters
	LBRACE   // {
	RBRACE   // }
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Punctuation
	COMMA  // ,
	COLON  // : (named statement argument)
	DCOLON // :: (instance binding)
	AT     // @ (strand access)
	TILDE  // ~ (axis remap)

	// Arithmetic operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %
	CARET   // ^ (power, right-associative)

	// Comparison  (LANGLE/RANGLE double as output-spec and bundle brackets)
	LANGLE     // <
	RANGLE     // >
	LESS_EQ    // <=
	GREATER_EQ // >=
	EQUALS     // ==
	NOT_EQ     // !=

	// Assignment (order matters: ASSIGN before EQUALS when scanning)
	ASSIGN       // =
	PLUS_ASSIGN  // +=
	MINUS_ASSIGN // -=
	STAR_ASSIGN  // *=
	SLASH_ASSIGN // /=
)

var tokenNames = map[TokenType]string{
	EOF:          "EOF",
	IDENT:        "IDENT",
	NUMBER:       "NUMBER",
	STRING:       "STRING",
	PRAGMA:       "PRAGMA",
	SPINDLE:      "spindle",
	IF:           "if",
	THEN:         "then",
	ELSE:         "else",
	AND:          "and",
	OR:           "or",
	NOT:          "not",
	ME:           "me",
	MOUSE:        "mouse",
	LBRACE:       "{",
	RBRACE:       "}",
	LPAREN:       "(",
	RPAREN:       ")",
	LBRACKET:     "[",
	RBRACKET:     "]",
	COMMA:        ",",
	COLON:        ":",
	DCOLON:       "::",
	AT:           "@",
	TILDE:        "~",
	PLUS:         "+",
	MINUS:        "-",
	STAR:         "*",
	SLASH:        "/",
	PERCENT:      "%",
	CARET:        "^",
	LANGLE:       "<",
	RANGLE:       ">",
	LESS_EQ:      "<=",
	GREATER_EQ:   ">=",
	EQUALS:       "==",
	NOT_EQ:       "!=",
	ASSIGN:       "=",
	PLUS_ASSIGN:  "+=",
	MINUS_ASSIGN: "-=",
	STAR_ASSIGN:  "*=",
	SLASH_ASSIGN: "/=",
}

func (tt TokenType) String() string {
	if name, ok := tokenNames[tt]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is one lexical unit of WEFT source.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int // 1-based source line
	Offset int // rune offset of the first rune of the token
}
