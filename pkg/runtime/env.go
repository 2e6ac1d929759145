package runtime

import (
	"time"

	"goweft/pkg/lang"
)

// Pointer is the normalized pointer position, both axes in [0, 1].
type Pointer struct {
	X float64
	Y float64
}

// Env is the shared execution context. It is long-lived: the Coordinator
// and host glue write it between compiles and per tick, backends only
// read it. There is deliberately no lock — the frame counter and timing
// fields are single-writer (the designated scheduler), and everything
// else changes only while no render loop is running.
type Env struct {
	// display
	ResW int
	ResH int

	// program timing
	Frame     uint64  // loop-relative frame counter
	AbsFrame  uint64  // frames since Start, never wraps
	Loop      float64 // loop length in seconds
	TargetFPS float64
	StartTime float64 // epoch seconds, 0 until Start

	// audio timing
	SampleRate float64
	Sample     uint64
	AbsSample  uint64

	// host input
	Pointer    Pointer
	Parameters map[string]float64 // UI-pragma parameter bindings
	Pragmas    []lang.Pragma

	// behavior flags
	Interpolate bool
	Autorun     bool
}

// NewEnv returns an Env with the standard defaults: 60 fps, a 10 second
// loop, 48 kHz audio.
func NewEnv(width, height int) *Env {
	return &Env{
		ResW:       width,
		ResH:       height,
		Loop:       10.0,
		TargetFPS:  60.0,
		SampleRate: 48000.0,
		Parameters: make(map[string]float64),
	}
}

// Start records the wall-clock origin and resets every counter. Called on
// every scheduler start so a stop/start cycle begins from frame zero.
func (e *Env) Start() {
	e.StartTime = float64(time.Now().UnixNano()) / float64(time.Second)
	e.Frame = 0
	e.AbsFrame = 0
	e.Sample = 0
	e.AbsSample = 0
}

// AbsTime returns seconds elapsed since Start.
func (e *Env) AbsTime() float64 {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	return now - e.StartTime
}

// Time returns the loop-relative time in [0, Loop).
func (e *Env) Time() float64 {
	if e.Loop <= 0 {
		return e.AbsTime()
	}
	t := e.AbsTime()
	return t - float64(uint64(t/e.Loop))*e.Loop
}

// AdvanceFrame increments the frame counters by one executed render step.
// Exactly one scheduler per coordinator calls this.
func (e *Env) AdvanceFrame() {
	e.AbsFrame++
	e.Frame++
	if e.Loop > 0 && e.TargetFPS > 0 {
		framesPerLoop := uint64(e.Loop * e.TargetFPS)
		if framesPerLoop > 0 && e.Frame >= framesPerLoop {
			e.Frame = 0
		}
	}
}

// SyncCounters realigns the sample counters with wall time. The frame
// counters are owned by the render loop and are not touched here; this
// runs from the low-frequency timing refresh.
func (e *Env) SyncCounters() {
	abs := e.AbsTime()
	if abs < 0 {
		abs = 0
	}
	e.AbsSample = uint64(abs * e.SampleRate)
	if e.Loop > 0 {
		loopTime := abs - float64(uint64(abs/e.Loop))*e.Loop
		e.Sample = uint64(loopTime * e.SampleRate)
	} else {
		e.Sample = e.AbsSample
	}
}

// Apply folds a program's environment assignments and pragma annotations
// into the Env. Only constant-valued assignments are honored; an
// expression that depends on runtime state cannot configure the runtime
// that evaluates it.
func (e *Env) Apply(prog *lang.Program) {
	e.Pragmas = prog.Pragmas
	for _, stmt := range prog.Statements {
		assign, ok := stmt.(*lang.EnvAssign)
		if !ok {
			continue
		}
		value, ok := constEval(assign.Expr)
		if !ok {
			continue
		}
		switch assign.Field {
		case "fps":
			if value > 0 {
				e.TargetFPS = value
			}
		case "loop":
			if value > 0 {
				e.Loop = value
			}
		case "w", "width":
			if value > 0 {
				e.ResW = int(value)
			}
		case "h", "height":
			if value > 0 {
				e.ResH = int(value)
			}
		case "interpolate":
			e.Interpolate = value != 0
		case "autorun":
			e.Autorun = value != 0
		}
	}
}

// constEval evaluates the constant expression subset: literals, unary
// minus, and arithmetic over constants.
func constEval(expr lang.Expr) (float64, bool) {
	switch e := expr.(type) {
	case *lang.NumberLit:
		return e.Value, true
	case *lang.UnaryExpr:
		if e.Op != lang.MINUS {
			return 0, false
		}
		v, ok := constEval(e.Expr)
		return -v, ok
	case *lang.BinaryExpr:
		left, okL := constEval(e.Left)
		right, okR := constEval(e.Right)
		if !okL || !okR {
			return 0, false
		}
		switch e.Op {
		case lang.PLUS:
			return left + right, true
		case lang.MINUS:
			return left - right, true
		case lang.STAR:
			return left * right, true
		case lang.SLASH:
			if right == 0 {
				return 0, false
			}
			return left / right, true
		}
	}
	return 0, false
}
