package backend

import (
	"fmt"
	"math"

	"goweft/pkg/graph"
	"goweft/pkg/lang"
)

// outputsFor returns the program's output statements routed to the
// given context, in source order.
func (ev *Evaluator) outputsFor(ctx graph.Context) []*lang.OutputStmt {
	var out []*lang.OutputStmt
	for _, stmt := range ev.prog.Statements {
		if o, ok := stmt.(*lang.OutputStmt); ok && graph.RouteFor(o) == ctx {
			out = append(out, o)
		}
	}
	return out
}

// RenderVisual rasterizes the program's visual output into an RGBA
// buffer of w by h pixels. Axes x and y run over [0, 1] with y down.
// The first visual-routed statement in source order drives the pixels;
// later render statements compile but do not draw.
func (ev *Evaluator) RenderVisual(pix []byte, w, h int) error {
	stmts := ev.outputsFor(graph.Visual)
	if len(stmts) == 0 {
		return fmt.Errorf("program has no visual output")
	}
	stmt := stmts[0]
	if len(pix) < w*h*4 {
		return fmt.Errorf("pixel buffer too small: %d for %dx%d", len(pix), w, h)
	}

	axes := ev.baseAxes()
	for py := 0; py < h; py++ {
		axes["y"] = (float64(py) + 0.5) / float64(h)
		for px := 0; px < w; px++ {
			axes["x"] = (float64(px) + 0.5) / float64(w)
			r, g, b, err := ev.colorAt(stmt, axes)
			if err != nil {
				return err
			}
			i := (py*w + px) * 4
			pix[i] = clampByte(r)
			pix[i+1] = clampByte(g)
			pix[i+2] = clampByte(b)
			pix[i+3] = 0xff
		}
	}
	return nil
}

// colorAt resolves one pixel's color from an output statement: named
// r/g/b channels, a named rgb tuple, a single tuple or grayscale
// argument, or the first three positional arguments.
func (ev *Evaluator) colorAt(stmt *lang.OutputStmt, axes map[string]float64) (r, g, b float64, err error) {
	sc, err := ev.rootScope(axes)
	if err != nil {
		return 0, 0, 0, err
	}

	if rgbExpr, ok := stmt.Arg("rgb"); ok {
		v, err := ev.evalExpr(rgbExpr, sc)
		if err != nil {
			return 0, 0, 0, err
		}
		return splitColor(v)
	}

	if rExpr, ok := stmt.Arg("r"); ok {
		r, err = ev.evalChannel(rExpr, sc)
		if err != nil {
			return 0, 0, 0, err
		}
		if gExpr, ok := stmt.Arg("g"); ok {
			if g, err = ev.evalChannel(gExpr, sc); err != nil {
				return 0, 0, 0, err
			}
		}
		if bExpr, ok := stmt.Arg("b"); ok {
			if b, err = ev.evalChannel(bExpr, sc); err != nil {
				return 0, 0, 0, err
			}
		}
		return r, g, b, nil
	}

	if len(stmt.Positional) == 0 {
		return 0, 0, 0, fmt.Errorf("visual output has no color arguments")
	}
	if len(stmt.Positional) == 1 {
		v, err := ev.evalExpr(stmt.Positional[0], sc)
		if err != nil {
			return 0, 0, 0, err
		}
		return splitColor(v)
	}
	channels := [3]float64{}
	for i := 0; i < 3 && i < len(stmt.Positional); i++ {
		if channels[i], err = ev.evalChannel(stmt.Positional[i], sc); err != nil {
			return 0, 0, 0, err
		}
	}
	return channels[0], channels[1], channels[2], nil
}

func (ev *Evaluator) evalChannel(expr lang.Expr, sc *Scope) (float64, error) {
	v, err := ev.evalExpr(expr, sc)
	if err != nil {
		return 0, err
	}
	return asNum(v)
}

// splitColor turns a value into rgb: a 3-tuple maps per channel, a
// scalar is grayscale.
func splitColor(v Value) (r, g, b float64, err error) {
	switch val := v.(type) {
	case Num:
		n := float64(val)
		return n, n, n, nil
	case Tuple:
		if len(val) < 3 {
			return 0, 0, 0, fmt.Errorf("color tuple needs 3 channels, got %d", len(val))
		}
		if r, err = asNum(val[0]); err != nil {
			return 0, 0, 0, err
		}
		if g, err = asNum(val[1]); err != nil {
			return 0, 0, 0, err
		}
		if b, err = asNum(val[2]); err != nil {
			return 0, 0, 0, err
		}
		return r, g, b, nil
	}
	return 0, 0, 0, fmt.Errorf("cannot use a %s as a color", typeName(v))
}

func clampByte(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return byte(v * 255.0)
}

// SampleAt synthesizes one stereo audio frame for the given absolute
// sample index. Axis t is the loop-relative time of that sample. The
// first audio-routed statement in source order drives the signal, the
// same first-wins rule RenderVisual applies.
func (ev *Evaluator) SampleAt(n uint64) (left, right float64, err error) {
	stmts := ev.outputsFor(graph.Audio)
	if len(stmts) == 0 {
		return 0, 0, fmt.Errorf("program has no audio output")
	}
	stmt := stmts[0]

	rate := ev.env.SampleRate
	if rate <= 0 {
		rate = 48000
	}
	t := float64(n) / rate
	if ev.env.Loop > 0 {
		t = math.Mod(t, ev.env.Loop)
	}
	axes := map[string]float64{"t": t, "sample": float64(n)}
	sc, err := ev.rootScope(axes)
	if err != nil {
		return 0, 0, err
	}

	if lExpr, ok := stmt.Arg("left"); ok {
		if left, err = ev.evalChannel(lExpr, sc); err != nil {
			return 0, 0, err
		}
		right = left
		if rExpr, ok := stmt.Arg("right"); ok {
			if right, err = ev.evalChannel(rExpr, sc); err != nil {
				return 0, 0, err
			}
		}
		return clampSample(left), clampSample(right), nil
	}

	switch len(stmt.Positional) {
	case 0:
		return 0, 0, fmt.Errorf("audio output has no signal arguments")
	case 1:
		v, err := ev.evalExpr(stmt.Positional[0], sc)
		if err != nil {
			return 0, 0, err
		}
		if tuple, ok := v.(Tuple); ok && len(tuple) >= 2 {
			if left, err = asNum(tuple[0]); err != nil {
				return 0, 0, err
			}
			if right, err = asNum(tuple[1]); err != nil {
				return 0, 0, err
			}
		} else {
			if left, err = asNum(v); err != nil {
				return 0, 0, err
			}
			right = left
		}
	default:
		if left, err = ev.evalChannel(stmt.Positional[0], sc); err != nil {
			return 0, 0, err
		}
		if right, err = ev.evalChannel(stmt.Positional[1], sc); err != nil {
			return 0, 0, err
		}
	}
	return clampSample(left), clampSample(right), nil
}

func clampSample(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// EvalCompute evaluates every compute-routed output statement once and
// returns the results keyed by argument name, or out0, out1, ... for
// positional arguments.
func (ev *Evaluator) EvalCompute() (map[string]float64, error) {
	sc, err := ev.rootScope(ev.baseAxes())
	if err != nil {
		return nil, err
	}
	results := make(map[string]float64)
	for _, stmt := range ev.outputsFor(graph.Compute) {
		for i, arg := range stmt.Positional {
			v, err := ev.evalChannel(arg, sc)
			if err != nil {
				return nil, err
			}
			results[fmt.Sprintf("out%d", i)] = v
		}
		for _, named := range stmt.Named {
			v, err := ev.evalChannel(named.Expr, sc)
			if err != nil {
				return nil, err
			}
			results[named.Name] = v
		}
	}
	return results, nil
}
