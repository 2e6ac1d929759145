package lang

import "unicode"

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"spindle": SPINDLE,
	"if":      IF,
	"then":    THEN,
	"else":    ELSE,
	"and":     AND,
	"or":      OR,
	"not":     NOT,
	"me":      ME,
	"mouse":   MOUSE,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src   []rune
	pos   int // index of the next rune to consume
	line  int // current 1-based source line
	lines []string
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1, lines: splitLines(src)}
}

func splitLines(src string) []string {
	var lines []string
	start := 0
	for i, r := range src {
		if r == '\n' {
			lines = append(lines, src[start:i])
			start = i + 1
		}
	}
	return append(lines, src[start:])
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment() error {
	startLine := l.line
	startPos := l.pos
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance() // *
			l.advance() // /
			return nil
		}
		l.advance()
	}
	return syntaxErrorAt(l.lines, Token{Line: startLine, Offset: startPos},
		"unterminated block comment (opened on line %d)", startLine)
}

// scanIdent collects a full identifier or keyword token.
// The first character (letter or '_') must still be at l.peek().
func (l *Lexer) scanIdent() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENT
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Line: line, Offset: start}
}

// scanNumber collects a decimal literal with an optional fractional part,
// e.g. 42, 0.5, 3.1415. Leading dots are not numbers.
func (l *Lexer) scanNumber() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && unicode.IsDigit(l.peek2()) {
		l.advance() // consume '.'
		for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	return Token{Type: NUMBER, Lexeme: string(l.src[start:l.pos]), Line: line, Offset: start}
}

// scanString collects a string literal "..."
func (l *Lexer) scanString() (Token, error) {
	line := l.line
	start := l.pos
	l.advance() // consume opening "
	var val []rune

	for l.pos < len(l.src) {
		r := l.peek()
		if r == '"' {
			break
		}
		if r == '\n' {
			return Token{}, syntaxErrorAt(l.lines, Token{Line: line, Offset: start},
				"unterminated string literal")
		}
		if r == '\\' {
			l.advance() // consume backslash
			switch next := l.peek(); next {
			case 'n':
				val = append(val, '\n')
			case 't':
				val = append(val, '\t')
			case '"':
				val = append(val, '"')
			case '\\':
				val = append(val, '\\')
			default:
				return Token{}, syntaxErrorAt(l.lines, Token{Line: line, Offset: l.pos},
					"unknown escape sequence \\%c", next)
			}
			l.advance()
			continue
		}
		val = append(val, r)
		l.advance()
	}

	if l.pos >= len(l.src) {
		return Token{}, syntaxErrorAt(l.lines, Token{Line: line, Offset: start},
			"unterminated string literal")
	}
	l.advance() // consume closing "

	return Token{Type: STRING, Lexeme: string(val), Line: line, Offset: start}, nil
}

// scanPragma collects a "#type ..." annotation as a single token whose
// lexeme is everything after '#' up to end-of-line. Validation of the
// pragma body happens later, never in the lexer.
func (l *Lexer) scanPragma() Token {
	line := l.line
	start := l.pos
	l.advance() // consume '#'
	bodyStart := l.pos
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
	return Token{Type: PRAGMA, Lexeme: string(l.src[bodyStart:l.pos]), Line: line, Offset: start}
}

// nextToken skips whitespace/comments and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Lexeme: "", Line: l.line, Offset: l.pos}, nil
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			l.advance()
			l.advance()
			if err := l.skipBlockComment(); err != nil {
				return Token{}, err
			}
			continue
		}
		break
	}

	ch := l.peek()
	line := l.line
	offset := l.pos

	if unicode.IsLetter(ch) || ch == '_' {
		return l.scanIdent(), nil
	}
	if unicode.IsDigit(ch) {
		return l.scanNumber(), nil
	}
	if ch == '"' {
		return l.scanString()
	}
	if ch == '#' {
		return l.scanPragma(), nil
	}

	l.advance() // consume the character before the switch
	tok := func(tt TokenType, lexeme string) Token {
		return Token{Type: tt, Lexeme: lexeme, Line: line, Offset: offset}
	}
	switch ch {
	case '{':
		return tok(LBRACE, "{"), nil
	case '}':
		return tok(RBRACE, "}"), nil
	case '(':
		return tok(LPAREN, "("), nil
	case ')':
		return tok(RPAREN, ")"), nil
	case '[':
		return tok(LBRACKET, "["), nil
	case ']':
		return tok(RBRACKET, "]"), nil
	case ',':
		return tok(COMMA, ","), nil
	case '@':
		return tok(AT, "@"), nil
	case '~':
		return tok(TILDE, "~"), nil
	case '^':
		return tok(CARET, "^"), nil
	case '%':
		return tok(PERCENT, "%"), nil
	case ':':
		if l.peek() == ':' {
			l.advance()
			return tok(DCOLON, "::"), nil
		}
		return tok(COLON, ":"), nil
	case '+':
		if l.peek() == '=' {
			l.advance()
			return tok(PLUS_ASSIGN, "+="), nil
		}
		return tok(PLUS, "+"), nil
	case '-':
		if l.peek() == '=' {
			l.advance()
			return tok(MINUS_ASSIGN, "-="), nil
		}
		return tok(MINUS, "-"), nil
	case '*':
		if l.peek() == '=' {
			l.advance()
			return tok(STAR_ASSIGN, "*="), nil
		}
		return tok(STAR, "*"), nil
	case '/':
		if l.peek() == '=' {
			l.advance()
			return tok(SLASH_ASSIGN, "/="), nil
		}
		return tok(SLASH, "/"), nil
	case '<':
		if l.peek() == '=' {
			l.advance()
			return tok(LESS_EQ, "<="), nil
		}
		return tok(LANGLE, "<"), nil
	case '>':
		if l.peek() == '=' {
			l.advance()
			return tok(GREATER_EQ, ">="), nil
		}
		return tok(RANGLE, ">"), nil
	case '=':
		if l.peek() == '=' { // lookahead: distinguish = vs ==
			l.advance()
			return tok(EQUALS, "=="), nil
		}
		return tok(ASSIGN, "="), nil
	case '!':
		if l.peek() == '=' {
			l.advance()
			return tok(NOT_EQ, "!="), nil
		}
		return Token{}, syntaxErrorAt(l.lines, Token{Line: line, Offset: offset},
			"unexpected character %q (did you mean !=?)", ch)
	default:
		return Token{}, syntaxErrorAt(l.lines, Token{Line: line, Offset: offset},
			"unexpected character %q", ch)
	}
}

// Lex tokenises src and returns all tokens including the final EOF token.
// It returns a non-nil error on the first illegal character or unterminated
// comment/string; the error is always a *SyntaxError.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
