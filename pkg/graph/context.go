package graph

import (
	"fmt"
	"sort"

	"goweft/pkg/lang"
)

// Context is an execution domain a computation must be able to serve.
type Context int

const (
	Visual Context = iota
	Audio
	Compute
)

func (c Context) String() string {
	switch c {
	case Visual:
		return "visual"
	case Audio:
		return "audio"
	case Compute:
		return "compute"
	}
	return fmt.Sprintf("Context(%d)", int(c))
}

// ContextSet is a small set of execution contexts.
type ContextSet map[Context]struct{}

func (s ContextSet) Add(c Context) {
	s[c] = struct{}{}
}

func (s ContextSet) Has(c Context) bool {
	_, ok := s[c]
	return ok
}

// Union adds every context of other into s and reports whether s grew.
func (s ContextSet) Union(other ContextSet) bool {
	grew := false
	for c := range other {
		if !s.Has(c) {
			s.Add(c)
			grew = true
		}
	}
	return grew
}

// Sorted returns the contexts as sorted strings, for stable display and
// serialization.
func (s ContextSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for c := range s {
		names = append(names, c.String())
	}
	sort.Strings(names)
	return names
}

// RouteFor resolves the execution context of an output statement. The
// render/play/compute kinds route unconditionally; only the legacy
// display form consults the argument-shape heuristic.
func RouteFor(stmt *lang.OutputStmt) Context {
	switch stmt.Kind {
	case lang.OutRender:
		return Visual
	case lang.OutPlay:
		return Audio
	case lang.OutCompute:
		return Compute
	}
	return LegacyDisplayRoute(stmt)
}

// visualKeys and audioKeys are the named-argument names the legacy
// display heuristic recognizes.
var (
	visualKeys = map[string]bool{
		"r": true, "g": true, "b": true, "rgb": true,
		"width": true, "height": true, "fps": true,
	}
	audioKeys = map[string]bool{
		"audio": true, "left": true, "right": true,
		"rate": true, "channels": true,
	}
)

// LegacyDisplayRoute decides the context of a bare display(...) statement.
// It exists only for backward compatibility with sources that predate the
// explicit render/play/compute forms and must never become the routing
// path for those kinds.
//
// Named keys win over positional arity. Two positional arguments with no
// recognized named key route to compute; that is historical behavior and
// is preserved as-is even though two-channel audio would also be a
// plausible reading.
func LegacyDisplayRoute(stmt *lang.OutputStmt) Context {
	for _, arg := range stmt.Named {
		if visualKeys[arg.Name] {
			return Visual
		}
	}
	for _, arg := range stmt.Named {
		if audioKeys[arg.Name] {
			return Audio
		}
	}
	switch n := len(stmt.Positional); {
	case n >= 3:
		return Visual
	case n == 1:
		return Audio
	default:
		return Compute
	}
}
