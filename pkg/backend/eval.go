package backend

import (
	"fmt"
	"math"

	"goweft/pkg/graph"
	"goweft/pkg/lang"
	"goweft/pkg/runtime"
)

// Value is a runtime value: a number, a string, or a tuple of values.
type Value interface{ isValue() }

// Num is a scalar. Booleans are numbers: zero is false, anything else true.
type Num float64

// Str is a string value. Strings only flow into output statement
// arguments (file names, labels); arithmetic on them is an error.
type Str string

// Tuple is an ordered group of values.
type Tuple []Value

func (Num) isValue()   {}
func (Str) isValue()   {}
func (Tuple) isValue() {}

func truthy(v Value) bool {
	n, ok := v.(Num)
	return ok && n != 0
}

func asNum(v Value) (float64, error) {
	n, ok := v.(Num)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %s", typeName(v))
	}
	return float64(n), nil
}

func typeName(v Value) string {
	switch v.(type) {
	case Num:
		return "number"
	case Str:
		return "string"
	case Tuple:
		return "tuple"
	}
	return "nothing"
}

// Scope is a chain of name bindings plus the axis coordinates (x, y,
// t, ...) active for the current evaluation. Axes are shared down the
// chain; a strand remap swaps in an overridden copy.
type Scope struct {
	parent *Scope
	vars   map[string]Value
	axes   map[string]float64
}

func newScope(axes map[string]float64) *Scope {
	return &Scope{vars: make(map[string]Value), axes: axes}
}

func (s *Scope) child() *Scope {
	return &Scope{parent: s, vars: make(map[string]Value), axes: s.axes}
}

func (s *Scope) lookup(name string) (Value, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	if v, ok := s.axes[name]; ok {
		return Num(v), true
	}
	return nil, false
}

func (s *Scope) set(name string, v Value) { s.vars[name] = v }

// Evaluator interprets a compiled program directly from its AST and
// dependency graph. One evaluator serves one compile; a recompile
// builds a fresh one.
type Evaluator struct {
	prog     *lang.Program
	graph    *graph.Graph
	env      *runtime.Env
	spindles map[string]*lang.SpindleDef
}

func NewEvaluator(prog *lang.Program, g *graph.Graph, env *runtime.Env) *Evaluator {
	return &Evaluator{
		prog:     prog,
		graph:    g,
		env:      env,
		spindles: prog.Spindles(),
	}
}

// baseAxes returns the ambient coordinates every evaluation starts
// from. Per-pixel and per-sample callers override x, y, or t on top.
func (ev *Evaluator) baseAxes() map[string]float64 {
	return map[string]float64{
		"t":     ev.env.Time(),
		"frame": float64(ev.env.Frame),
	}
}

// rootScope builds the top-level scope for the given axes: global let
// bindings evaluated in statement order on top of the axis coordinates.
func (ev *Evaluator) rootScope(axes map[string]float64) (*Scope, error) {
	sc := newScope(axes)
	for _, stmt := range ev.prog.Statements {
		switch s := stmt.(type) {
		case *lang.LetBinding:
			v, err := ev.evalExpr(s.Expr, sc)
			if err != nil {
				return nil, err
			}
			sc.set(s.Name, v)
		case *lang.Assignment:
			if err := ev.applyAssignment(s, sc); err != nil {
				return nil, err
			}
		}
	}
	return sc, nil
}

func (ev *Evaluator) applyAssignment(a *lang.Assignment, sc *Scope) error {
	cur, ok := sc.lookup(a.Name)
	if !ok {
		return fmt.Errorf("assignment to unknown variable %q", a.Name)
	}
	left, err := asNum(cur)
	if err != nil {
		return err
	}
	v, err := ev.evalExpr(a.Expr, sc)
	if err != nil {
		return err
	}
	right, err := asNum(v)
	if err != nil {
		return err
	}
	switch a.Op {
	case lang.PLUS_ASSIGN:
		left += right
	case lang.MINUS_ASSIGN:
		left -= right
	case lang.STAR_ASSIGN:
		left *= right
	case lang.SLASH_ASSIGN:
		if right == 0 {
			return fmt.Errorf("division by zero in assignment to %q", a.Name)
		}
		left /= right
	default:
		return fmt.Errorf("unsupported assignment operator %s", a.Op)
	}
	sc.set(a.Name, Num(left))
	return nil
}

func (ev *Evaluator) evalExpr(expr lang.Expr, sc *Scope) (Value, error) {
	switch e := expr.(type) {
	case *lang.NumberLit:
		return Num(e.Value), nil

	case *lang.StringLit:
		return Str(e.Value), nil

	case *lang.VarRef:
		if v, ok := sc.lookup(e.Name); ok {
			return v, nil
		}
		if node, ok := ev.graph.Node(e.Name); ok {
			// A bare instance reference reads its first strand.
			if len(node.Outputs) == 0 {
				return nil, fmt.Errorf("instance %q has no outputs", e.Name)
			}
			return ev.strandValue(e.Name, node.Outputs[0], sc.axes)
		}
		return nil, fmt.Errorf("unknown variable %q", e.Name)

	case *lang.MeField:
		return ev.meField(e.Field)

	case *lang.MouseField:
		switch e.Field {
		case "x":
			return Num(ev.env.Pointer.X), nil
		case "y":
			return Num(ev.env.Pointer.Y), nil
		}
		return nil, fmt.Errorf("unknown mouse field %q", e.Field)

	case *lang.UnaryExpr:
		v, err := ev.evalExpr(e.Expr, sc)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case lang.MINUS:
			return mapNum(v, func(n float64) float64 { return -n })
		case lang.NOT:
			if truthy(v) {
				return Num(0), nil
			}
			return Num(1), nil
		}
		return nil, fmt.Errorf("unsupported unary operator %s", e.Op)

	case *lang.BinaryExpr:
		return ev.evalBinary(e, sc)

	case *lang.CondExpr:
		cond, err := ev.evalExpr(e.Cond, sc)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return ev.evalExpr(e.Then, sc)
		}
		return ev.evalExpr(e.Else, sc)

	case *lang.TupleExpr:
		items := make(Tuple, len(e.Items))
		for i, item := range e.Items {
			v, err := ev.evalExpr(item, sc)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil

	case *lang.IndexExpr:
		base, err := ev.evalExpr(e.Base, sc)
		if err != nil {
			return nil, err
		}
		tuple, ok := base.(Tuple)
		if !ok {
			return nil, fmt.Errorf("cannot index a %s", typeName(base))
		}
		idxVal, err := ev.evalExpr(e.Index, sc)
		if err != nil {
			return nil, err
		}
		idx, err := asNum(idxVal)
		if err != nil {
			return nil, err
		}
		i := int(idx)
		if i < 0 || i >= len(tuple) {
			return nil, fmt.Errorf("tuple index %d out of range [0, %d)", i, len(tuple))
		}
		return tuple[i], nil

	case *lang.CallExpr:
		return ev.call(e, sc)

	case *lang.StrandAccess:
		base, ok := e.Base.(*lang.VarRef)
		if !ok {
			return nil, fmt.Errorf("strand access on a non-instance expression")
		}
		return ev.strandValue(base.Name, e.Strand, sc.axes)

	case *lang.StrandRemap:
		base, ok := e.Base.(*lang.VarRef)
		if !ok {
			return nil, fmt.Errorf("strand remap on a non-instance expression")
		}
		axes := make(map[string]float64, len(sc.axes)+len(e.Mappings))
		for k, v := range sc.axes {
			axes[k] = v
		}
		for _, m := range e.Mappings {
			v, err := ev.evalExpr(m.Expr, sc)
			if err != nil {
				return nil, err
			}
			n, err := asNum(v)
			if err != nil {
				return nil, fmt.Errorf("axis %s: %w", m.Axis, err)
			}
			axes[m.Axis] = n
		}
		return ev.strandValue(base.Name, e.Strand, axes)
	}
	return nil, fmt.Errorf("cannot evaluate %T", expr)
}

// strandValue evaluates one strand of one graph node under the given
// axis coordinates. Cycles were rejected at graph build, so the
// recursion terminates.
func (ev *Evaluator) strandValue(name, strand string, axes map[string]float64) (Value, error) {
	node, ok := ev.graph.Node(name)
	if !ok {
		return nil, fmt.Errorf("unknown instance %q", name)
	}
	sc, err := ev.rootScope(axes)
	if err != nil {
		return nil, err
	}

	switch node.Kind {
	case graph.KindSpindleCall:
		call, ok := node.Exprs[strand].(*lang.CallExpr)
		if !ok {
			return nil, fmt.Errorf("instance %q has no value for strand %q", name, strand)
		}
		def := ev.spindles[call.Name]
		outputs, err := ev.callSpindle(def, call.Args, sc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		// The instance's strand names alias the spindle's outputs
		// positionally.
		for i, out := range node.Outputs {
			if out == strand && i < len(def.Outputs) {
				return outputs[def.Outputs[i]], nil
			}
		}
		return nil, fmt.Errorf("instance %q has no strand %q", name, strand)

	case graph.KindBuiltinCall:
		expr, ok := node.Exprs[strand]
		if !ok {
			return nil, fmt.Errorf("instance %q has no value for strand %q", name, strand)
		}
		v, err := ev.evalExpr(expr, sc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		// A tuple result spreads across the declared strands.
		if tuple, isTuple := v.(Tuple); isTuple && len(node.Outputs) > 1 {
			for i, out := range node.Outputs {
				if out == strand && i < len(tuple) {
					return tuple[i], nil
				}
			}
		}
		return v, nil

	default:
		expr, ok := node.Exprs[strand]
		if !ok {
			return nil, fmt.Errorf("instance %q has no value for strand %q", name, strand)
		}
		v, err := ev.evalExpr(expr, sc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}
}

// call dispatches a call expression to a spindle or a builtin.
func (ev *Evaluator) call(e *lang.CallExpr, sc *Scope) (Value, error) {
	if def, ok := ev.spindles[e.Name]; ok {
		outputs, err := ev.callSpindle(def, e.Args, sc)
		if err != nil {
			return nil, err
		}
		if len(def.Outputs) == 1 {
			return outputs[def.Outputs[0]], nil
		}
		tuple := make(Tuple, len(def.Outputs))
		for i, out := range def.Outputs {
			tuple[i] = outputs[out]
		}
		return tuple, nil
	}

	args := make([]Value, len(e.Args))
	for i, arg := range e.Args {
		v, err := ev.evalExpr(arg, sc)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return callBuiltin(e.Name, args)
}

// callSpindle inlines a spindle body: bind the arguments to the
// parameters, run the body statements, and read the declared outputs.
func (ev *Evaluator) callSpindle(def *lang.SpindleDef, args []lang.Expr, sc *Scope) (map[string]Value, error) {
	if len(args) != len(def.Params) {
		return nil, fmt.Errorf("spindle %q expects %d arguments, got %d", def.Name, len(def.Params), len(args))
	}
	body := newScope(sc.axes)
	for i, param := range def.Params {
		v, err := ev.evalExpr(args[i], sc)
		if err != nil {
			return nil, err
		}
		body.set(param, v)
	}
	for _, stmt := range def.Body {
		switch s := stmt.(type) {
		case *lang.LetBinding:
			v, err := ev.evalExpr(s.Expr, body)
			if err != nil {
				return nil, fmt.Errorf("spindle %q: %w", def.Name, err)
			}
			body.set(s.Name, v)
		case *lang.Assignment:
			if err := ev.applyAssignment(s, body); err != nil {
				return nil, fmt.Errorf("spindle %q: %w", def.Name, err)
			}
		}
	}
	outputs := make(map[string]Value, len(def.Outputs))
	for _, out := range def.Outputs {
		v, ok := body.lookup(out)
		if !ok {
			return nil, fmt.Errorf("spindle %q does not set output %q", def.Name, out)
		}
		outputs[out] = v
	}
	return outputs, nil
}

func (ev *Evaluator) meField(field string) (Value, error) {
	e := ev.env
	switch field {
	case "frame":
		return Num(e.Frame), nil
	case "absframe":
		return Num(e.AbsFrame), nil
	case "t", "time":
		return Num(e.Time()), nil
	case "abstime":
		return Num(e.AbsTime()), nil
	case "loop":
		return Num(e.Loop), nil
	case "fps":
		return Num(e.TargetFPS), nil
	case "w", "width":
		return Num(e.ResW), nil
	case "h", "height":
		return Num(e.ResH), nil
	case "rate":
		return Num(e.SampleRate), nil
	case "sample":
		return Num(e.Sample), nil
	}
	if v, ok := ev.env.Parameters[field]; ok {
		return Num(v), nil
	}
	return nil, fmt.Errorf("unknown me field %q", field)
}

// evalBinary applies a binary operator with scalar broadcast: two
// tuples combine elementwise, a scalar spreads across a tuple.
func (ev *Evaluator) evalBinary(e *lang.BinaryExpr, sc *Scope) (Value, error) {
	// and/or short-circuit.
	switch e.Op {
	case lang.AND:
		left, err := ev.evalExpr(e.Left, sc)
		if err != nil {
			return nil, err
		}
		if !truthy(left) {
			return Num(0), nil
		}
		right, err := ev.evalExpr(e.Right, sc)
		if err != nil {
			return nil, err
		}
		return boolNum(truthy(right)), nil
	case lang.OR:
		left, err := ev.evalExpr(e.Left, sc)
		if err != nil {
			return nil, err
		}
		if truthy(left) {
			return Num(1), nil
		}
		right, err := ev.evalExpr(e.Right, sc)
		if err != nil {
			return nil, err
		}
		return boolNum(truthy(right)), nil
	}

	left, err := ev.evalExpr(e.Left, sc)
	if err != nil {
		return nil, err
	}
	right, err := ev.evalExpr(e.Right, sc)
	if err != nil {
		return nil, err
	}
	return combine(e.Op, left, right)
}

func combine(op lang.TokenType, left, right Value) (Value, error) {
	lt, lTuple := left.(Tuple)
	rt, rTuple := right.(Tuple)
	switch {
	case lTuple && rTuple:
		if len(lt) != len(rt) {
			return nil, fmt.Errorf("tuple length mismatch: %d vs %d", len(lt), len(rt))
		}
		out := make(Tuple, len(lt))
		for i := range lt {
			v, err := combine(op, lt[i], rt[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case lTuple:
		out := make(Tuple, len(lt))
		for i := range lt {
			v, err := combine(op, lt[i], right)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case rTuple:
		out := make(Tuple, len(rt))
		for i := range rt {
			v, err := combine(op, left, rt[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	l, err := asNum(left)
	if err != nil {
		return nil, err
	}
	r, err := asNum(right)
	if err != nil {
		return nil, err
	}
	switch op {
	case lang.PLUS:
		return Num(l + r), nil
	case lang.MINUS:
		return Num(l - r), nil
	case lang.STAR:
		return Num(l * r), nil
	case lang.SLASH:
		if r == 0 {
			return Num(0), nil
		}
		return Num(l / r), nil
	case lang.PERCENT:
		if r == 0 {
			return Num(0), nil
		}
		return Num(math.Mod(l, r)), nil
	case lang.CARET:
		return Num(math.Pow(l, r)), nil
	case lang.EQUALS:
		return boolNum(l == r), nil
	case lang.NOT_EQ:
		return boolNum(l != r), nil
	case lang.LANGLE:
		return boolNum(l < r), nil
	case lang.RANGLE:
		return boolNum(l > r), nil
	case lang.LESS_EQ:
		return boolNum(l <= r), nil
	case lang.GREATER_EQ:
		return boolNum(l >= r), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}

func boolNum(b bool) Num {
	if b {
		return 1
	}
	return 0
}

func mapNum(v Value, f func(float64) float64) (Value, error) {
	switch val := v.(type) {
	case Num:
		return Num(f(float64(val))), nil
	case Tuple:
		out := make(Tuple, len(val))
		for i, item := range val {
			m, err := mapNum(item, f)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a number, got %s", typeName(v))
}
