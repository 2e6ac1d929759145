package lang

import (
	"strings"
	"testing"
)

func tokenTypes(t *testing.T, src string) []TokenType {
	t.Helper()
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex(%q) failed: %v", src, err)
	}
	types := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	return types
}

func expectTypes(t *testing.T, src string, want ...TokenType) {
	t.Helper()
	got := tokenTypes(t, src)
	if len(got) != len(want) {
		t.Fatalf("Lex(%q): got %d tokens, want %d (%v)", src, len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Lex(%q): token %d is %s, want %s", src, i, got[i], want[i])
		}
	}
}

func TestLexOperators(t *testing.T) {
	expectTypes(t, ":: : @ ~ ^ %",
		DCOLON, COLON, AT, TILDE, CARET, PERCENT, EOF)
	expectTypes(t, "= == != < <= > >=",
		ASSIGN, EQUALS, NOT_EQ, LANGLE, LESS_EQ, RANGLE, GREATER_EQ, EOF)
	expectTypes(t, "+= -= *= /=",
		PLUS_ASSIGN, MINUS_ASSIGN, STAR_ASSIGN, SLASH_ASSIGN, EOF)
}

func TestLexKeywords(t *testing.T) {
	expectTypes(t, "spindle if then else and or not me mouse",
		SPINDLE, IF, THEN, ELSE, AND, OR, NOT, ME, MOUSE, EOF)

	// Keywords are exact: a longer identifier is just an identifier.
	expectTypes(t, "spindles iffy mean", IDENT, IDENT, IDENT, EOF)
}

func TestLexNumbers(t *testing.T) {
	tokens, err := Lex("3 0.5 440.0")
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	want := []string{"3", "0.5", "440.0"}
	for i, lex := range want {
		if tokens[i].Type != NUMBER {
			t.Fatalf("token %d: got %s, want NUMBER", i, tokens[i].Type)
		}
		if tokens[i].Lexeme != lex {
			t.Errorf("token %d: lexeme %q, want %q", i, tokens[i].Lexeme, lex)
		}
	}
}

func TestLexString(t *testing.T) {
	tokens, err := Lex(`load("drums.wav")`)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	if tokens[2].Type != STRING || tokens[2].Lexeme != "drums.wav" {
		t.Errorf("got %s %q, want STRING \"drums.wav\"", tokens[2].Type, tokens[2].Lexeme)
	}
}

func TestLexStringEscapes(t *testing.T) {
	tokens, err := Lex(`"a\nb\"c"`)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	if tokens[0].Lexeme != "a\nb\"c" {
		t.Errorf("got %q, want %q", tokens[0].Lexeme, "a\nb\"c")
	}
}

func TestLexComments(t *testing.T) {
	expectTypes(t, "a // trailing comment\nb", IDENT, IDENT, EOF)
	expectTypes(t, "a /* block\ncomment */ b", IDENT, IDENT, EOF)
}

func TestLexPragma(t *testing.T) {
	tokens, err := Lex("#type slider min=0 max=1\nx = 1")
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	if tokens[0].Type != PRAGMA {
		t.Fatalf("got %s, want PRAGMA", tokens[0].Type)
	}
	if !strings.HasPrefix(tokens[0].Lexeme, "type slider") {
		t.Errorf("pragma lexeme %q should start with the annotation body", tokens[0].Lexeme)
	}
}

func TestLexLineNumbers(t *testing.T) {
	tokens, err := Lex("a\nb\n\nc")
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	wantLines := []int{1, 2, 4}
	for i, want := range wantLines {
		if tokens[i].Line != want {
			t.Errorf("token %d on line %d, want %d", i, tokens[i].Line, want)
		}
	}
}

func TestLexInvalidCharacter(t *testing.T) {
	if _, err := Lex("x = 1 ! 2"); err == nil {
		t.Fatal("expected an error for a bare '!'")
	}
	if _, err := Lex("x = $"); err == nil {
		t.Fatal("expected an error for '$'")
	}
}
