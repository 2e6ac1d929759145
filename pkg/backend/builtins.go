package backend

import (
	"fmt"
	"math"
)

type builtinFn struct {
	arity int // -1: variadic, at least one; -2: any count
	fn    func(args []float64) float64
}

var builtins = map[string]builtinFn{
	"sin":   {1, func(a []float64) float64 { return math.Sin(a[0]) }},
	"cos":   {1, func(a []float64) float64 { return math.Cos(a[0]) }},
	"tan":   {1, func(a []float64) float64 { return math.Tan(a[0]) }},
	"abs":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"floor": {1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {1, func(a []float64) float64 { return math.Ceil(a[0]) }},
	"round": {1, func(a []float64) float64 { return math.Round(a[0]) }},
	"sqrt":  {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"pow":   {2, func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"atan2": {2, func(a []float64) float64 { return math.Atan2(a[0], a[1]) }},
	"mod": {2, func(a []float64) float64 {
		if a[1] == 0 {
			return 0
		}
		return math.Mod(a[0], a[1])
	}},
	"min": {-1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"max": {-1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
	"clamp": {3, func(a []float64) float64 {
		return math.Min(math.Max(a[0], a[1]), a[2])
	}},
	"mix": {3, func(a []float64) float64 {
		return a[0] + (a[1]-a[0])*a[2]
	}},
	"noise": {-1, func(a []float64) float64 {
		x := a[0]
		y := 0.0
		if len(a) > 1 {
			y = a[1]
		}
		return hashNoise(x, y)
	}},
	// Asset and device sources are produced by the backends that own
	// them; evaluated standalone they read as silence/black.
	"load":   {-2, func(a []float64) float64 { return 0 }},
	"camera": {-2, func(a []float64) float64 { return 0 }},
	"micin":  {-2, func(a []float64) float64 { return 0 }},
}

// hashNoise is a deterministic pseudo-random field in [0, 1), the
// classic sine-hash. Good enough for procedural texture, stable across
// runs.
func hashNoise(x, y float64) float64 {
	v := math.Sin(x*12.9898+y*78.233) * 43758.5453
	return v - math.Floor(v)
}

func callBuiltin(name string, args []Value) (Value, error) {
	b, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	nums := make([]float64, 0, len(args))
	for i, v := range args {
		// String arguments are resource names; the arithmetic builtins
		// and the source stubs both ignore them.
		if _, isStr := v.(Str); isStr {
			continue
		}
		// A tuple argument spreads into scalars: min((a, b, c)) works.
		if tuple, isTuple := v.(Tuple); isTuple {
			for _, item := range tuple {
				n, err := asNum(item)
				if err != nil {
					return nil, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
				}
				nums = append(nums, n)
			}
			continue
		}
		n, err := asNum(v)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
		}
		nums = append(nums, n)
	}
	switch {
	case b.arity == -2:
		// any count, including none
	case b.arity == -1:
		if len(nums) == 0 {
			return nil, fmt.Errorf("%s: expects at least one argument", name)
		}
	case len(nums) != b.arity:
		return nil, fmt.Errorf("%s: expects %d arguments, got %d", name, b.arity, len(nums))
	}
	return Num(b.fn(nums)), nil
}
