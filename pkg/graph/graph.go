package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"goweft/pkg/lang"
)

// ErrCycle indicates the instance dependency graph contains a cycle.
var ErrCycle = errors.New("graph: dependency cycle detected")

// ReferenceError reports an instance, spindle, or strand name that does
// not resolve to anything known.
type ReferenceError struct {
	Name   string
	Strand string // set when the instance exists but the strand does not
}

func (e *ReferenceError) Error() string {
	if e.Strand != "" {
		return fmt.Sprintf("graph: instance %q has no strand %q", e.Name, e.Strand)
	}
	return fmt.Sprintf("graph: unresolved reference %q", e.Name)
}

// NodeKind classifies how a graph node produces its strands.
type NodeKind int

const (
	KindExpression  NodeKind = iota // direct expression bind
	KindSpindleCall                 // instance created by calling a spindle
	KindBuiltinCall                 // instance created by calling a builtin
	KindSpindleDef                  // the spindle definition itself
)

func (k NodeKind) String() string {
	switch k {
	case KindExpression:
		return "expr"
	case KindSpindleCall:
		return "spindle"
	case KindBuiltinCall:
		return "builtin"
	case KindSpindleDef:
		return "def"
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// StrandRef identifies one output channel of one instance.
type StrandRef struct {
	Instance string
	Strand   string
}

// Node is the analysis record for one named instance or spindle
// definition. The AST stays immutable; everything here is a side table
// computed by Build.
type Node struct {
	Name         string
	Kind         NodeKind
	Outputs      []string                 // declared strands, source order
	Exprs        map[string]lang.Expr     // strand -> defining expression
	Deps         []string                 // sorted names of nodes this one reads
	OutputDeps   map[string][]StrandRef   // strand -> upstream strands it reads
	Required     map[string]struct{}      // strands consumed by some output route
	Contexts     ContextSet               // execution domains that need this node
	CrossContext bool                     // more than one context requires it
}

// RequiredSorted returns the required strand names in sorted order.
func (n *Node) RequiredSorted() []string {
	names := make([]string, 0, len(n.Required))
	for s := range n.Required {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// Graph is the fully analyzed dependency graph of one program. A Graph is
// immutable once built; recompiling produces a complete replacement.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// Node returns the analysis record for the named instance.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Len returns the number of graph nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// ExecOrder returns the topological execution order. No node appears
// before any of its dependencies.
func (g *Graph) ExecOrder() []string {
	order := make([]string, len(g.order))
	copy(order, g.order)
	return order
}

// ActiveContexts returns the union of every output statement's resolved
// route. This is what decides which backends a program needs, even when
// an output statement references no instance at all.
func ActiveContexts(prog *lang.Program) ContextSet {
	active := make(ContextSet)
	for _, stmt := range prog.Statements {
		if out, ok := stmt.(*lang.OutputStmt); ok {
			active.Add(RouteFor(out))
		}
	}
	return active
}

// Build analyzes a parsed program into a Graph:
//
//  1. index every instance binding and spindle definition into a node
//  2. extract dependency edges from each node's defining expressions
//  3. mark strands consumed by output statements and propagate the
//     requirement upstream to a fixed point
//  4. tag each node with the contexts of the output routes that reach it
//     and any builtin context preference, propagated transitively along
//     dependency edges
//  5. compute a deterministic topological execution order
//
// Nodes unreachable from any output statement stay in the graph: source
// is live-edited, and an instance may be referenced by a statement added
// moments later. A cycle or unresolved reference aborts the build with no
// graph returned.
func Build(prog *lang.Program) (*Graph, error) {
	b := &builder{
		prog:     prog,
		spindles: prog.Spindles(),
		nodes:    make(map[string]*Node),
	}
	if err := b.collect(); err != nil {
		return nil, err
	}
	if err := b.resolve(); err != nil {
		return nil, err
	}
	b.markRequired()
	b.propagateRequired()
	b.tagContexts()
	order, err := b.topoSort()
	if err != nil {
		return nil, err
	}
	for _, n := range b.nodes {
		n.CrossContext = len(n.Contexts) > 1
	}
	return &Graph{nodes: b.nodes, order: order}, nil
}

type builder struct {
	prog     *lang.Program
	spindles map[string]*lang.SpindleDef
	nodes    map[string]*Node
}

// collect indexes every instance binding and spindle definition.
func (b *builder) collect() error {
	for _, stmt := range b.prog.Statements {
		switch s := stmt.(type) {
		case *lang.InstanceBinding:
			if _, dup := b.nodes[s.Name]; dup {
				return fmt.Errorf("graph: duplicate instance name %q", s.Name)
			}
			node := &Node{
				Name:       s.Name,
				Kind:       classify(s.Expr, b.spindles),
				Outputs:    s.Outputs,
				Exprs:      make(map[string]lang.Expr),
				OutputDeps: make(map[string][]StrandRef),
				Required:   make(map[string]struct{}),
				Contexts:   make(ContextSet),
			}
			// A tuple expression feeds its elements to the declared
			// strands positionally; anything else feeds every strand.
			if tuple, ok := s.Expr.(*lang.TupleExpr); ok && len(tuple.Items) >= len(s.Outputs) {
				for i, out := range s.Outputs {
					node.Exprs[out] = tuple.Items[i]
				}
			} else {
				for _, out := range s.Outputs {
					node.Exprs[out] = s.Expr
				}
			}
			b.nodes[s.Name] = node

		case *lang.SpindleDef:
			if _, dup := b.nodes[s.Name]; dup {
				return fmt.Errorf("graph: duplicate instance name %q", s.Name)
			}
			node := &Node{
				Name:       s.Name,
				Kind:       KindSpindleDef,
				Outputs:    s.Outputs,
				Exprs:      make(map[string]lang.Expr),
				OutputDeps: make(map[string][]StrandRef),
				Required:   make(map[string]struct{}),
				Contexts:   make(ContextSet),
			}
			for _, bodyStmt := range s.Body {
				if let, ok := bodyStmt.(*lang.LetBinding); ok {
					for _, out := range s.Outputs {
						if let.Name == out {
							node.Exprs[out] = let.Expr
						}
					}
				}
			}
			b.nodes[s.Name] = node
		}
	}
	return nil
}

// classify decides how an instance produces its strands from the shape of
// its defining expression.
func classify(expr lang.Expr, spindles map[string]*lang.SpindleDef) NodeKind {
	call, ok := expr.(*lang.CallExpr)
	if !ok {
		return KindExpression
	}
	if _, isSpindle := spindles[call.Name]; isSpindle {
		return KindSpindleCall
	}
	return KindBuiltinCall
}

// resolve extracts dependency edges and per-strand upstream references
// from every node, validating that each reference resolves.
func (b *builder) resolve() error {
	for _, stmt := range b.prog.Statements {
		switch s := stmt.(type) {
		case *lang.InstanceBinding:
			node := b.nodes[s.Name]
			deps := make(map[string]struct{})
			for _, out := range node.Outputs {
				expr, ok := node.Exprs[out]
				if !ok {
					continue
				}
				var refs []StrandRef
				if err := b.scan(expr, nil, deps, &refs); err != nil {
					return err
				}
				node.OutputDeps[out] = refs
			}
			node.Deps = sortedKeys(deps)

		case *lang.SpindleDef:
			node := b.nodes[s.Name]
			locals := make(map[string]bool)
			for _, p := range s.Params {
				locals[p] = true
			}
			for _, bodyStmt := range s.Body {
				if let, ok := bodyStmt.(*lang.LetBinding); ok {
					locals[let.Name] = true
				}
			}
			deps := make(map[string]struct{})
			for _, bodyStmt := range s.Body {
				for _, child := range bodyStmt.Children() {
					var refs []StrandRef
					if err := b.scan(child, locals, deps, &refs); err != nil {
						return err
					}
				}
			}
			for _, out := range s.Outputs {
				expr, ok := node.Exprs[out]
				if !ok {
					continue
				}
				var refs []StrandRef
				if err := b.scan(expr, locals, deps, &refs); err != nil {
					return err
				}
				node.OutputDeps[out] = refs
			}
			node.Deps = sortedKeys(deps)
		}
	}
	return nil
}

// scan walks an expression tree, collecting instance dependencies and
// per-strand upstream references, and validating every strand access.
// locals holds names that are in scope inside a spindle body and are
// therefore neither dependencies nor errors.
func (b *builder) scan(n lang.Node, locals map[string]bool, deps map[string]struct{}, refs *[]StrandRef) error {
	switch e := n.(type) {
	case *lang.StrandAccess:
		if base, ok := e.Base.(*lang.VarRef); ok {
			return b.resolveStrand(base.Name, e.Strand, locals, deps, refs)
		}
		return b.scanChildren(e, locals, deps, refs)

	case *lang.StrandRemap:
		if base, ok := e.Base.(*lang.VarRef); ok {
			if err := b.resolveStrand(base.Name, e.Strand, locals, deps, refs); err != nil {
				return err
			}
		} else if err := b.scan(e.Base, locals, deps, refs); err != nil {
			return err
		}
		for _, m := range e.Mappings {
			if err := b.scan(m.Expr, locals, deps, refs); err != nil {
				return err
			}
		}
		return nil

	case *lang.CallExpr:
		if _, isSpindle := b.spindles[e.Name]; isSpindle {
			deps[e.Name] = struct{}{}
		} else if !IsBuiltin(e.Name) {
			return &ReferenceError{Name: e.Name}
		}
		return b.scanChildren(e, locals, deps, refs)

	case *lang.VarRef:
		// A bare reference to another instance name is a dependency edge;
		// anything else (globals, spindle params) resolves at eval time.
		if _, isNode := b.nodes[e.Name]; isNode {
			deps[e.Name] = struct{}{}
		}
		return nil
	}
	return b.scanChildren(n, locals, deps, refs)
}

func (b *builder) scanChildren(n lang.Node, locals map[string]bool, deps map[string]struct{}, refs *[]StrandRef) error {
	for _, child := range n.Children() {
		if err := b.scan(child, locals, deps, refs); err != nil {
			return err
		}
	}
	return nil
}

// resolveStrand validates base@strand and records the dependency.
func (b *builder) resolveStrand(base, strand string, locals map[string]bool, deps map[string]struct{}, refs *[]StrandRef) error {
	if locals != nil && locals[base] {
		return nil
	}
	if node, ok := b.nodes[base]; ok {
		found := false
		for _, out := range node.Outputs {
			if out == strand {
				found = true
				break
			}
		}
		if !found {
			return &ReferenceError{Name: base, Strand: strand}
		}
		deps[base] = struct{}{}
		*refs = append(*refs, StrandRef{Instance: base, Strand: strand})
		return nil
	}
	if IsBuiltin(base) {
		return nil
	}
	return &ReferenceError{Name: base}
}

// markRequired records, for every output statement, which strands it
// consumes directly.
func (b *builder) markRequired() {
	for _, stmt := range b.prog.Statements {
		out, ok := stmt.(*lang.OutputStmt)
		if !ok {
			continue
		}
		for _, child := range out.Children() {
			b.markRequiredIn(child)
		}
	}
}

func (b *builder) markRequiredIn(n lang.Node) {
	switch e := n.(type) {
	case *lang.StrandAccess:
		if base, ok := e.Base.(*lang.VarRef); ok {
			if node, exists := b.nodes[base.Name]; exists {
				node.Required[e.Strand] = struct{}{}
			}
			return
		}
	case *lang.StrandRemap:
		if base, ok := e.Base.(*lang.VarRef); ok {
			if node, exists := b.nodes[base.Name]; exists {
				node.Required[e.Strand] = struct{}{}
			}
		}
	}
	for _, child := range n.Children() {
		b.markRequiredIn(child)
	}
}

// propagateRequired pushes requirement upstream: if a node's required
// strand reads other strands, those become required too. Runs to a fixed
// point.
func (b *builder) propagateRequired() {
	names := sortedNodeNames(b.nodes)
	for changed := true; changed; {
		changed = false
		for _, name := range names {
			node := b.nodes[name]
			for strand := range node.Required {
				for _, ref := range node.OutputDeps[strand] {
					dep, ok := b.nodes[ref.Instance]
					if !ok {
						continue
					}
					if _, have := dep.Required[ref.Strand]; !have {
						dep.Required[ref.Strand] = struct{}{}
						changed = true
					}
				}
			}
		}
	}
}

// tagContexts seeds each node referenced by an output statement with that
// statement's route, then propagates context sets backward along
// dependency edges to a fixed point: a dependency inherits every context
// of every node that needs it.
func (b *builder) tagContexts() {
	for _, stmt := range b.prog.Statements {
		out, ok := stmt.(*lang.OutputStmt)
		if !ok {
			continue
		}
		route := RouteFor(out)
		for _, child := range out.Children() {
			b.seedContext(child, route)
		}
	}

	// Media-source builtins prefer a home context: a micin instance
	// belongs to the audio path no matter where its value is consumed.
	// Seeded before the fixed point so the preference reaches its
	// dependencies too.
	for _, node := range b.nodes {
		if node.Kind != KindBuiltinCall {
			continue
		}
		for _, expr := range node.Exprs {
			call, ok := expr.(*lang.CallExpr)
			if !ok {
				continue
			}
			if ctx, ok := BuiltinContext(call.Name); ok {
				node.Contexts.Add(ctx)
			}
		}
	}

	names := sortedNodeNames(b.nodes)
	for changed := true; changed; {
		changed = false
		for _, name := range names {
			node := b.nodes[name]
			if len(node.Contexts) == 0 {
				continue
			}
			for _, depName := range node.Deps {
				if dep, ok := b.nodes[depName]; ok {
					if dep.Contexts.Union(node.Contexts) {
						changed = true
					}
				}
			}
		}
	}
}

func (b *builder) seedContext(n lang.Node, route Context) {
	switch e := n.(type) {
	case *lang.StrandAccess:
		if base, ok := e.Base.(*lang.VarRef); ok {
			if node, exists := b.nodes[base.Name]; exists {
				node.Contexts.Add(route)
			}
			return
		}
	case *lang.StrandRemap:
		if base, ok := e.Base.(*lang.VarRef); ok {
			if node, exists := b.nodes[base.Name]; exists {
				node.Contexts.Add(route)
			}
		}
	case *lang.VarRef:
		if node, exists := b.nodes[e.Name]; exists {
			node.Contexts.Add(route)
		}
		return
	}
	for _, child := range n.Children() {
		b.seedContext(child, route)
	}
}

// topoSort runs Kahn's algorithm over dependency edges with a
// lexicographic tie-break, so identical programs always produce identical
// execution orders.
func (b *builder) topoSort() ([]string, error) {
	indegree := make(map[string]int, len(b.nodes))
	dependents := make(map[string][]string, len(b.nodes))

	for name := range b.nodes {
		indegree[name] = 0
	}
	for name, node := range b.nodes {
		for _, dep := range node.Deps {
			if _, ok := b.nodes[dep]; !ok {
				continue
			}
			dependents[dep] = append(dependents[dep], name)
			indegree[name]++
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(b.nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		grew := false
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
				grew = true
			}
		}
		if grew {
			sort.Strings(ready)
		}
	}

	if len(order) != len(b.nodes) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: involving %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return order, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedNodeNames(nodes map[string]*Node) []string {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
