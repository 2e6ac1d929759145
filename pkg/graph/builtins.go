package graph

// builtinContexts lists every builtin callable by WEFT source, with the
// context the builtin prefers to execute in. Plain math builtins carry no
// preference and run wherever their consumers run.
var builtinContexts = map[string]*Context{
	// math, context-free
	"sin": nil, "cos": nil, "tan": nil, "abs": nil,
	"floor": nil, "ceil": nil, "round": nil, "sqrt": nil,
	"min": nil, "max": nil, "clamp": nil, "mix": nil,
	"pow": nil, "mod": nil, "atan2": nil, "noise": nil,

	// media sources, context-bound
	"load":   ctxPtr(Visual),
	"camera": ctxPtr(Visual),
	"micin":  ctxPtr(Audio),
}

func ctxPtr(c Context) *Context { return &c }

// IsBuiltin reports whether name is a known builtin callable.
func IsBuiltin(name string) bool {
	_, ok := builtinContexts[name]
	return ok
}

// BuiltinContext returns the preferred execution context of a builtin,
// when it has one.
func BuiltinContext(name string) (Context, bool) {
	c, ok := builtinContexts[name]
	if !ok || c == nil {
		return 0, false
	}
	return *c, true
}
