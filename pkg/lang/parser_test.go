package lang

import (
	"strings"
	"testing"
)

func parseOne(t *testing.T, src string) Stmt {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	if len(prog.Statements) != 1 {
		t.Fatalf("Parse(%q): got %d statements, want 1", src, len(prog.Statements))
	}
	return prog.Statements[0]
}

func parseExprString(t *testing.T, src string) string {
	t.Helper()
	stmt := parseOne(t, "x = "+src)
	let, ok := stmt.(*LetBinding)
	if !ok {
		t.Fatalf("got %T, want *LetBinding", stmt)
	}
	return let.Expr.String()
}

func TestParseSpindleDef(t *testing.T) {
	src := `spindle osc(freq, phase) :: <sine, square> {
		v = sin(freq * 6.28318 + phase)
		sine = v
		square = if v > 0 then 1 else -1
	}`
	stmt := parseOne(t, src)
	def, ok := stmt.(*SpindleDef)
	if !ok {
		t.Fatalf("got %T, want *SpindleDef", stmt)
	}
	if def.Name != "osc" {
		t.Errorf("name = %q, want osc", def.Name)
	}
	if len(def.Params) != 2 || def.Params[0] != "freq" || def.Params[1] != "phase" {
		t.Errorf("params = %v, want [freq phase]", def.Params)
	}
	if len(def.Outputs) != 2 || def.Outputs[0] != "sine" || def.Outputs[1] != "square" {
		t.Errorf("outputs = %v, want [sine square]", def.Outputs)
	}
	if len(def.Body) != 3 {
		t.Errorf("body has %d statements, want 3", len(def.Body))
	}
}

func TestParseDirectBind(t *testing.T) {
	stmt := parseOne(t, "p<x, y> = (mouse@x, mouse@y)")
	bind, ok := stmt.(*InstanceBinding)
	if !ok {
		t.Fatalf("got %T, want *InstanceBinding", stmt)
	}
	if bind.Name != "p" {
		t.Errorf("name = %q, want p", bind.Name)
	}
	if len(bind.Outputs) != 2 {
		t.Fatalf("outputs = %v, want 2 strands", bind.Outputs)
	}
	if _, ok := bind.Expr.(*TupleExpr); !ok {
		t.Errorf("expr is %T, want *TupleExpr", bind.Expr)
	}
}

func TestParseCallBind(t *testing.T) {
	stmt := parseOne(t, "osc(440) :: tone<sine>")
	bind, ok := stmt.(*InstanceBinding)
	if !ok {
		t.Fatalf("got %T, want *InstanceBinding", stmt)
	}
	if bind.Name != "tone" {
		t.Errorf("name = %q, want tone", bind.Name)
	}
	call, ok := bind.Expr.(*CallExpr)
	if !ok {
		t.Fatalf("expr is %T, want *CallExpr", bind.Expr)
	}
	if call.Name != "osc" || len(call.Args) != 1 {
		t.Errorf("call = %s, want osc with one argument", call)
	}
}

func TestParseRemapBind(t *testing.T) {
	stmt := parseOne(t, "field@v(x~me@t, y~0.5) :: warped<v>")
	bind, ok := stmt.(*InstanceBinding)
	if !ok {
		t.Fatalf("got %T, want *InstanceBinding", stmt)
	}
	remap, ok := bind.Expr.(*StrandRemap)
	if !ok {
		t.Fatalf("expr is %T, want *StrandRemap", bind.Expr)
	}
	if remap.Strand != "v" {
		t.Errorf("strand = %q, want v", remap.Strand)
	}
	if len(remap.Mappings) != 2 || remap.Mappings[0].Axis != "x" || remap.Mappings[1].Axis != "y" {
		t.Errorf("mappings = %v, want axes x and y", remap.Mappings)
	}
}

func TestParseMultiCall(t *testing.T) {
	stmt := parseOne(t, "osc<3>(<220, 330, 440>, 0) :: chord<a, b, c>")
	bind, ok := stmt.(*InstanceBinding)
	if !ok {
		t.Fatalf("got %T, want *InstanceBinding", stmt)
	}
	tuple, ok := bind.Expr.(*TupleExpr)
	if !ok {
		t.Fatalf("expr is %T, want a lowered *TupleExpr", bind.Expr)
	}
	if len(tuple.Items) != 3 {
		t.Fatalf("lowered to %d calls, want 3", len(tuple.Items))
	}
	wantFreqs := []string{"220", "330", "440"}
	for i, item := range tuple.Items {
		call, ok := item.(*CallExpr)
		if !ok {
			t.Fatalf("item %d is %T, want *CallExpr", i, item)
		}
		if call.Name != "osc" || len(call.Args) != 2 {
			t.Fatalf("item %d = %s, want osc with two arguments", i, call)
		}
		if got := call.Args[0].String(); got != wantFreqs[i] {
			t.Errorf("copy %d frequency = %s, want %s", i, got, wantFreqs[i])
		}
		// The scalar second argument is replicated to every copy.
		if got := call.Args[1].String(); got != "0" {
			t.Errorf("copy %d phase = %s, want 0", i, got)
		}
	}
}

func TestParseMultiCallBundleMismatch(t *testing.T) {
	_, err := Parse("osc<3>(<220, 330>) :: chord<a, b, c>")
	if err == nil {
		t.Fatal("expected an error for a 2-element bundle in a 3-way multi-call")
	}
	if !strings.Contains(err.Error(), "multi-call count") {
		t.Errorf("error %q should mention the multi-call count", err)
	}
}

func TestParseEnvAssign(t *testing.T) {
	stmt := parseOne(t, "me<fps> = 30")
	assign, ok := stmt.(*EnvAssign)
	if !ok {
		t.Fatalf("got %T, want *EnvAssign", stmt)
	}
	if assign.Field != "fps" {
		t.Errorf("field = %q, want fps", assign.Field)
	}
}

func TestParseOutputStmtMixedArgs(t *testing.T) {
	stmt := parseOne(t, "render(wave@v, g: 0.5, b: glow@v)")
	out, ok := stmt.(*OutputStmt)
	if !ok {
		t.Fatalf("got %T, want *OutputStmt", stmt)
	}
	if out.Kind != OutRender {
		t.Errorf("kind = %s, want render", out.Kind)
	}
	if len(out.Positional) != 1 || len(out.Named) != 2 {
		t.Fatalf("got %d positional and %d named args, want 1 and 2",
			len(out.Positional), len(out.Named))
	}
	if _, ok := out.Arg("g"); !ok {
		t.Error("named argument g not found")
	}
	if _, ok := out.Arg("r"); ok {
		t.Error("Arg(\"r\") should not resolve")
	}
}

func TestParseOutputAsCallIsNotSpecial(t *testing.T) {
	// render in expression position is a plain identifier.
	stmt := parseOne(t, "x = render + 1")
	if _, ok := stmt.(*LetBinding); !ok {
		t.Fatalf("got %T, want *LetBinding", stmt)
	}
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"1 * 2 + 3", "((1 * 2) + 3)"},
		{"2 ^ 3 ^ 2", "(2 ^ (3 ^ 2))"},
		{"-2 ^ 2", "((- 2) ^ 2)"},
		{"1 + 2 < 3 * 4", "((1 + 2) < (3 * 4))"},
		{"a < 1 and b > 2", "((a < 1) and (b > 2))"},
		{"not a and b", "((not a) and b)"},
		{"if a > 0 then 1 else 2 + 3", "(if (a > 0) then 1 else (2 + 3))"},
		{"2 * (1 + 3)", "(2 * (1 + 3))"},
	}
	for _, tt := range tests {
		if got := parseExprString(t, tt.src); got != tt.want {
			t.Errorf("%q parsed as %s, want %s", tt.src, got, tt.want)
		}
	}
}

func TestParseBundleVsComparison(t *testing.T) {
	// Operand position: '<' opens a bundle literal.
	got := parseExprString(t, "<1, 2, 3>")
	if got != "(1, 2, 3)" {
		t.Errorf("bundle parsed as %s, want (1, 2, 3)", got)
	}
	// Operator position: '<' is a comparison.
	got = parseExprString(t, "a < b")
	if got != "(a < b)" {
		t.Errorf("comparison parsed as %s, want (a < b)", got)
	}
}

func TestParsePostfix(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"v[0]", "v[0]"},
		{"wave@sine", "wave@sine"},
		{"wave@sine[1]", "wave@sine[1]"},
		{"field@v(x~me@t)", "field@v(x~me@t)"},
	}
	for _, tt := range tests {
		if got := parseExprString(t, tt.src); got != tt.want {
			t.Errorf("%q parsed as %s, want %s", tt.src, got, tt.want)
		}
	}
}

func TestParsePragmas(t *testing.T) {
	prog, err := Parse("#type slider min=0 max=1\ngain = 0.5\n#type color\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(prog.Pragmas) != 2 {
		t.Fatalf("got %d pragmas, want 2", len(prog.Pragmas))
	}
	if prog.Pragmas[0].Type != "type" || prog.Pragmas[0].Config != "slider min=0 max=1" {
		t.Errorf("pragma 0 = %q %q", prog.Pragmas[0].Type, prog.Pragmas[0].Config)
	}
	if prog.Pragmas[0].Line != 1 {
		t.Errorf("pragma 0 on line %d, want 1", prog.Pragmas[0].Line)
	}
}

func TestParseSyntaxErrorHasLocation(t *testing.T) {
	_, err := Parse("x = 1\ny = *")
	if err == nil {
		t.Fatal("expected a syntax error")
	}
	serr, ok := err.(*SyntaxError)
	if !ok {
		t.Fatalf("got %T, want *SyntaxError", err)
	}
	if serr.Line != 2 {
		t.Errorf("error on line %d, want 2", serr.Line)
	}
	if !strings.Contains(err.Error(), "y = *") {
		t.Errorf("error %q should include the offending source line", err)
	}
}

func TestParseCompoundAssignment(t *testing.T) {
	stmt := parseOne(t, "phase += 0.01")
	assign, ok := stmt.(*Assignment)
	if !ok {
		t.Fatalf("got %T, want *Assignment", stmt)
	}
	if assign.Op != PLUS_ASSIGN {
		t.Errorf("op = %s, want +=", assign.Op)
	}
}

func TestParseSpindlesIndex(t *testing.T) {
	prog, err := Parse(`spindle a() :: <v> { v = 1 }
spindle b() :: <v> { v = 2 }`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	spindles := prog.Spindles()
	if len(spindles) != 2 {
		t.Fatalf("got %d spindles, want 2", len(spindles))
	}
	if _, ok := spindles["a"]; !ok {
		t.Error("spindle a not indexed")
	}
}
