package backend

import (
	"math"
	"strings"
	"testing"

	"goweft/pkg/graph"
	"goweft/pkg/lang"
	"goweft/pkg/runtime"
)

func compileEval(t *testing.T, src string) (*Evaluator, *runtime.Env) {
	t.Helper()
	prog, err := lang.Parse(src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	g, err := graph.Build(prog)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	env := runtime.NewEnv(8, 8)
	return NewEvaluator(prog, g, env), env
}

// computeOne evaluates "compute(expr)" and returns out0.
func computeOne(t *testing.T, src string) float64 {
	t.Helper()
	ev, _ := compileEval(t, src)
	results, err := ev.EvalCompute()
	if err != nil {
		t.Fatalf("EvalCompute(%q) failed: %v", src, err)
	}
	v, ok := results["out0"]
	if !ok {
		t.Fatalf("EvalCompute(%q): no out0 in %v", src, results)
	}
	return v
}

func TestEvalArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"2 ^ 3 ^ 2", 512},
		{"10 % 3", 1},
		{"7 / 2", 3.5},
		{"1 / 0", 0}, // division by zero reads as zero
		{"-(2 + 3)", -5},
		{"if 1 > 0 then 5 else 6", 5},
		{"if 0 then 5 else 6", 6},
		{"not 0", 1},
		{"not 3", 0},
		{"1 and 2", 1},
		{"1 and 0", 0},
		{"0 or 3", 1},
		{"2 <= 2", 1},
		{"2 != 2", 0},
		{"min(3, 1, 2)", 1},
		{"max(3, 1, 2)", 3},
		{"clamp(5, 0, 1)", 1},
		{"mix(0, 10, 0.25)", 2.5},
		{"floor(2.9)", 2},
		{"round(2.5)", 3},
		{"abs(-4)", 4},
		{"pow(2, 10)", 1024},
		{"(1, 2, 3)[1]", 2},
	}
	for _, tt := range tests {
		if got := computeOne(t, "compute("+tt.expr+")"); got != tt.want {
			t.Errorf("%s = %g, want %g", tt.expr, got, tt.want)
		}
	}
}

func TestEvalBuiltinMath(t *testing.T) {
	got := computeOne(t, "compute(sin(0) + cos(0))")
	if got != 1 {
		t.Errorf("sin(0) + cos(0) = %g, want 1", got)
	}
	got = computeOne(t, "compute(sqrt(2) * sqrt(2))")
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("sqrt(2)^2 = %g, want 2", got)
	}
}

func TestEvalNoiseDeterministic(t *testing.T) {
	a := computeOne(t, "compute(noise(1.5, 2.5))")
	b := computeOne(t, "compute(noise(1.5, 2.5))")
	if a != b {
		t.Errorf("noise is not deterministic: %g vs %g", a, b)
	}
	if a < 0 || a >= 1 {
		t.Errorf("noise out of range: %g", a)
	}
}

func TestEvalTupleBroadcast(t *testing.T) {
	ev, _ := compileEval(t, "compute(r: ((1, 2, 3) * 2)[2])")
	results, err := ev.EvalCompute()
	if err != nil {
		t.Fatalf("EvalCompute failed: %v", err)
	}
	if results["r"] != 6 {
		t.Errorf("((1,2,3)*2)[2] = %g, want 6", results["r"])
	}
}

func TestEvalLetChain(t *testing.T) {
	got := computeOne(t, "x = 2\ny = x * x\ncompute(y + x)")
	if got != 6 {
		t.Errorf("got %g, want 6", got)
	}
}

func TestEvalCompoundAssign(t *testing.T) {
	got := computeOne(t, "x = 1\nx += 2\nx *= 3\ncompute(x)")
	if got != 9 {
		t.Errorf("got %g, want 9", got)
	}
}

func TestEvalStrandAccess(t *testing.T) {
	got := computeOne(t, `
a<v> = 3
b<v> = a@v * 2
compute(b@v)
`)
	if got != 6 {
		t.Errorf("b@v = %g, want 6", got)
	}
}

func TestEvalTupleStrandSplit(t *testing.T) {
	got := computeOne(t, `
p<x, y> = (1, 2)
compute(p@y)
`)
	if got != 2 {
		t.Errorf("p@y = %g, want 2", got)
	}
}

func TestEvalSpindleCall(t *testing.T) {
	got := computeOne(t, `
spindle add(a, b) :: <sum> {
	sum = a + b
}
add(2, 3) :: s<sum>
compute(s@sum)
`)
	if got != 5 {
		t.Errorf("s@sum = %g, want 5", got)
	}
}

func TestEvalSpindleMultiOutput(t *testing.T) {
	ev, _ := compileEval(t, `
spindle order(a, b) :: <lo, hi> {
	lo = min(a, b)
	hi = max(a, b)
}
order(4, 2) :: m<small, big>
compute(big: m@big, small: m@small)
`)
	results, err := ev.EvalCompute()
	if err != nil {
		t.Fatalf("EvalCompute failed: %v", err)
	}
	if results["big"] != 4 || results["small"] != 2 {
		t.Errorf("results = %v, want big=4 small=2", results)
	}
}

func TestEvalSpindleLocalState(t *testing.T) {
	got := computeOne(t, `
spindle acc(x) :: <total> {
	total = 0
	total += x
	total += x
}
acc(5) :: a<total>
compute(a@total)
`)
	if got != 10 {
		t.Errorf("a@total = %g, want 10", got)
	}
}

func TestEvalSpindleArityMismatch(t *testing.T) {
	ev, _ := compileEval(t, `
spindle add(a, b) :: <sum> {
	sum = a + b
}
add(1) :: s<sum>
compute(s@sum)
`)
	_, err := ev.EvalCompute()
	if err == nil || !strings.Contains(err.Error(), "expects 2 arguments") {
		t.Fatalf("got %v, want an arity error", err)
	}
}

func TestEvalStrandRemap(t *testing.T) {
	got := computeOne(t, `
f<v> = x * 10
compute(f@v(x~0.5))
`)
	if got != 5 {
		t.Errorf("f@v(x~0.5) = %g, want 5", got)
	}
}

func TestEvalMissingAxisFails(t *testing.T) {
	ev, _ := compileEval(t, `
f<v> = x * 10
compute(f@v)
`)
	if _, err := ev.EvalCompute(); err == nil {
		t.Fatal("reading an x-dependent strand without an x axis should fail")
	}
}

func TestEvalMultiCallBank(t *testing.T) {
	got := computeOne(t, `
spindle osc(f) :: <v> {
	v = f * 2
}
osc<3>(<1, 2, 3>) :: bank<a, b, c>
compute(bank@b)
`)
	if got != 4 {
		t.Errorf("bank@b = %g, want 4", got)
	}
}

func TestEvalMeFields(t *testing.T) {
	ev, env := compileEval(t, "compute(me@frame, me@fps, me@w)")
	env.Frame = 7
	results, err := ev.EvalCompute()
	if err != nil {
		t.Fatalf("EvalCompute failed: %v", err)
	}
	if results["out0"] != 7 {
		t.Errorf("me@frame = %g, want 7", results["out0"])
	}
	if results["out1"] != 60 {
		t.Errorf("me@fps = %g, want 60", results["out1"])
	}
	if results["out2"] != 8 {
		t.Errorf("me@w = %g, want 8", results["out2"])
	}
}

func TestEvalParameters(t *testing.T) {
	ev, env := compileEval(t, "compute(me@gain)")
	env.Parameters["gain"] = 0.5
	got, err := ev.EvalCompute()
	if err != nil {
		t.Fatalf("EvalCompute failed: %v", err)
	}
	if got["out0"] != 0.5 {
		t.Errorf("me@gain = %g, want 0.5", got["out0"])
	}
}

func TestEvalMousePointer(t *testing.T) {
	ev, env := compileEval(t, "compute(mouse@x, mouse@y)")
	env.Pointer = runtime.Pointer{X: 0.25, Y: 0.75}
	results, err := ev.EvalCompute()
	if err != nil {
		t.Fatalf("EvalCompute failed: %v", err)
	}
	if results["out0"] != 0.25 || results["out1"] != 0.75 {
		t.Errorf("pointer = (%g, %g), want (0.25, 0.75)", results["out0"], results["out1"])
	}
}

func TestEvalSourceStubs(t *testing.T) {
	got := computeOne(t, `compute(load("loop.wav"))`)
	if got != 0 {
		t.Errorf("load stub = %g, want 0", got)
	}
}

func TestRenderVisualChannels(t *testing.T) {
	ev, _ := compileEval(t, "render(r: x, g: y, b: 0)")
	pix := make([]byte, 2*2*4)
	if err := ev.RenderVisual(pix, 2, 2); err != nil {
		t.Fatalf("RenderVisual failed: %v", err)
	}
	// Pixel (0,0) samples at x=y=0.25.
	if pix[0] != 63 || pix[1] != 63 || pix[2] != 0 || pix[3] != 0xff {
		t.Errorf("pixel (0,0) = %v, want [63 63 0 255]", pix[:4])
	}
	// Pixel (1,1) samples at x=y=0.75.
	last := pix[12:16]
	if last[0] != 191 || last[1] != 191 {
		t.Errorf("pixel (1,1) = %v, want r=g=191", last)
	}
}

func TestRenderVisualGrayscaleAndTuple(t *testing.T) {
	ev, _ := compileEval(t, "render(1)")
	pix := make([]byte, 4)
	if err := ev.RenderVisual(pix, 1, 1); err != nil {
		t.Fatalf("RenderVisual failed: %v", err)
	}
	if pix[0] != 0xff || pix[1] != 0xff || pix[2] != 0xff {
		t.Errorf("grayscale 1 = %v, want white", pix)
	}

	ev, _ = compileEval(t, "render(rgb: (1, 0, 0.5))")
	if err := ev.RenderVisual(pix, 1, 1); err != nil {
		t.Fatalf("RenderVisual failed: %v", err)
	}
	if pix[0] != 0xff || pix[1] != 0 || pix[2] != 127 {
		t.Errorf("rgb tuple = %v, want [255 0 127]", pix[:3])
	}
}

func TestRenderVisualFirstStatementWins(t *testing.T) {
	ev, _ := compileEval(t, "render(1)\nrender(0)")
	pix := make([]byte, 4)
	if err := ev.RenderVisual(pix, 1, 1); err != nil {
		t.Fatalf("RenderVisual failed: %v", err)
	}
	if pix[0] != 0xff {
		t.Errorf("pixel = %v, want the first render statement's white", pix[:3])
	}
}

func TestRenderVisualClampsOutOfRange(t *testing.T) {
	ev, _ := compileEval(t, "render(r: 2, g: -1, b: 0.999)")
	pix := make([]byte, 4)
	if err := ev.RenderVisual(pix, 1, 1); err != nil {
		t.Fatalf("RenderVisual failed: %v", err)
	}
	if pix[0] != 0xff || pix[1] != 0 {
		t.Errorf("clamped channels = %v, want [255 0 ...]", pix[:2])
	}
}

func TestSampleAtMono(t *testing.T) {
	ev, _ := compileEval(t, "play(0.5)")
	left, right, err := ev.SampleAt(0)
	if err != nil {
		t.Fatalf("SampleAt failed: %v", err)
	}
	if left != 0.5 || right != 0.5 {
		t.Errorf("mono sample = (%g, %g), want (0.5, 0.5)", left, right)
	}
}

func TestSampleAtStereo(t *testing.T) {
	ev, _ := compileEval(t, "play(left: 0.25, right: -0.25)")
	left, right, err := ev.SampleAt(0)
	if err != nil {
		t.Fatalf("SampleAt failed: %v", err)
	}
	if left != 0.25 || right != -0.25 {
		t.Errorf("stereo sample = (%g, %g), want (0.25, -0.25)", left, right)
	}
}

func TestSampleAtFirstStatementWins(t *testing.T) {
	ev, _ := compileEval(t, "play(0.25)\nplay(0.75)")
	left, _, err := ev.SampleAt(0)
	if err != nil {
		t.Fatalf("SampleAt failed: %v", err)
	}
	if left != 0.25 {
		t.Errorf("sample = %g, want the first play statement's 0.25", left)
	}
}

func TestSampleAtClamps(t *testing.T) {
	ev, _ := compileEval(t, "play(2)")
	left, _, err := ev.SampleAt(0)
	if err != nil {
		t.Fatalf("SampleAt failed: %v", err)
	}
	if left != 1 {
		t.Errorf("sample = %g, want clamped to 1", left)
	}
}

func TestSampleAtLoopTime(t *testing.T) {
	ev, env := compileEval(t, "play(t)")
	env.Loop = 1
	// 1.5 loops in: loop-relative time is 0.5.
	n := uint64(env.SampleRate * 1.5)
	left, _, err := ev.SampleAt(n)
	if err != nil {
		t.Fatalf("SampleAt failed: %v", err)
	}
	if math.Abs(left-0.5) > 1e-6 {
		t.Errorf("t at 1.5 loops = %g, want 0.5", left)
	}
}
