package lang

import (
	"fmt"
	"strings"
)

// Node is implemented by every AST node. Children returns the direct
// expression/statement children in source order, so generic passes
// (dependency collection, context tagging) can walk the tree without a
// per-type switch beyond variant identification.
type Node interface {
	Children() []Node
	String() string
}

// Expr is implemented by every node that produces a value.
type Expr interface {
	Node
	exprNode()
}

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	Node
	stmtNode()
}

//  Expression nodes

// NumberLit is a numeric constant. All WEFT numbers are float64.
type NumberLit struct {
	Value float64
}

func (*NumberLit) exprNode()        {}
func (*NumberLit) Children() []Node { return nil }
func (n *NumberLit) String() string { return fmt.Sprintf("%g", n.Value) }

// StringLit is a string constant "..."
type StringLit struct {
	Value string
}

func (*StringLit) exprNode()        {}
func (*StringLit) Children() []Node { return nil }
func (s *StringLit) String() string { return fmt.Sprintf("%q", s.Value) }

// VarRef is a read of a named instance, parameter, or local binding.
type VarRef struct {
	Name string
}

func (*VarRef) exprNode()        {}
func (*VarRef) Children() []Node { return nil }
func (v *VarRef) String() string { return v.Name }

// MeField reads a field of the execution environment, e.g. me@x, me@t.
type MeField struct {
	Field string
}

func (*MeField) exprNode()        {}
func (*MeField) Children() []Node { return nil }
func (m *MeField) String() string { return "me@" + m.Field }

// MouseField reads a normalized pointer field, e.g. mouse@x.
type MouseField struct {
	Field string
}

func (*MouseField) exprNode()        {}
func (*MouseField) Children() []Node { return nil }
func (m *MouseField) String() string { return "mouse@" + m.Field }

// BinaryExpr represents Left Op Right, covering arithmetic, comparison,
// and the logical and/or operators.
type BinaryExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode()          {}
func (b *BinaryExpr) Children() []Node { return []Node{b.Left, b.Right} }
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// UnaryExpr represents Op Expr (unary minus or "not").
type UnaryExpr struct {
	Op   TokenType
	Expr Expr
}

func (*UnaryExpr) exprNode()          {}
func (u *UnaryExpr) Children() []Node { return []Node{u.Expr} }
func (u *UnaryExpr) String() string   { return fmt.Sprintf("(%s %s)", u.Op, u.Expr) }

// CallExpr represents name(args), a builtin or spindle invocation.
type CallExpr struct {
	Name string
	Args []Expr
}

func (*CallExpr) exprNode() {}
func (c *CallExpr) Children() []Node {
	nodes := make([]Node, len(c.Args))
	for i, a := range c.Args {
		nodes[i] = a
	}
	return nodes
}
func (c *CallExpr) String() string {
	return fmt.Sprintf("%s(%s)", c.Name, joinExprs(c.Args))
}

// TupleExpr represents (e1, e2, ...) or a bundle literal <e1, e2, ...>.
type TupleExpr struct {
	Items []Expr
}

func (*TupleExpr) exprNode() {}
func (t *TupleExpr) Children() []Node {
	nodes := make([]Node, len(t.Items))
	for i, it := range t.Items {
		nodes[i] = it
	}
	return nodes
}
func (t *TupleExpr) String() string { return "(" + joinExprs(t.Items) + ")" }

// IndexExpr represents Base[Index].
type IndexExpr struct {
	Base  Expr
	Index Expr
}

func (*IndexExpr) exprNode()          {}
func (e *IndexExpr) Children() []Node { return []Node{e.Base, e.Index} }
func (e *IndexExpr) String() string   { return fmt.Sprintf("%s[%s]", e.Base, e.Index) }

// StrandAccess represents base@strand: reading one named output channel
// of another instance.
type StrandAccess struct {
	Base   Expr // almost always a VarRef
	Strand string
}

func (*StrandAccess) exprNode()          {}
func (a *StrandAccess) Children() []Node { return []Node{a.Base} }
func (a *StrandAccess) String() string   { return fmt.Sprintf("%s@%s", a.Base, a.Strand) }

// AxisMapping is one axis~expr pair inside a strand remap.
type AxisMapping struct {
	Axis string
	Expr Expr
}

// StrandRemap represents base@strand(axis~expr, ...): sampling a strand
// with one or more axes rebound to new coordinate expressions.
type StrandRemap struct {
	Base     Expr
	Strand   string
	Mappings []AxisMapping
}

func (*StrandRemap) exprNode() {}
func (r *StrandRemap) Children() []Node {
	nodes := []Node{r.Base}
	for _, m := range r.Mappings {
		nodes = append(nodes, m.Expr)
	}
	return nodes
}
func (r *StrandRemap) String() string {
	parts := make([]string, len(r.Mappings))
	for i, m := range r.Mappings {
		parts[i] = fmt.Sprintf("%s~%s", m.Axis, m.Expr)
	}
	return fmt.Sprintf("%s@%s(%s)", r.Base, r.Strand, strings.Join(parts, ", "))
}

// CondExpr represents if cond then a else b.
type CondExpr struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (*CondExpr) exprNode()          {}
func (c *CondExpr) Children() []Node { return []Node{c.Cond, c.Then, c.Else} }
func (c *CondExpr) String() string {
	return fmt.Sprintf("(if %s then %s else %s)", c.Cond, c.Then, c.Else)
}

//  Statement nodes

// LetBinding represents a plain binding: name = expr.
type LetBinding struct {
	Name string
	Expr Expr
}

func (*LetBinding) stmtNode()          {}
func (b *LetBinding) Children() []Node { return []Node{b.Expr} }
func (b *LetBinding) String() string   { return fmt.Sprintf("%s = %s", b.Name, b.Expr) }

// Assignment represents a compound assignment: name op= expr.
type Assignment struct {
	Name string
	Op   TokenType // PLUS_ASSIGN etc.
	Expr Expr
}

func (*Assignment) stmtNode()          {}
func (a *Assignment) Children() []Node { return []Node{a.Expr} }
func (a *Assignment) String() string   { return fmt.Sprintf("%s %s %s", a.Name, a.Op, a.Expr) }

// EnvAssign represents me<field> = expr, writing an environment field.
type EnvAssign struct {
	Field string
	Expr  Expr
}

func (*EnvAssign) stmtNode()          {}
func (a *EnvAssign) Children() []Node { return []Node{a.Expr} }
func (a *EnvAssign) String() string   { return fmt.Sprintf("me<%s> = %s", a.Field, a.Expr) }

// InstanceBinding names an instance and declares its output strands.
// All three surface forms lower to this node:
//
//	wave<v> = sin(me@t)             // direct bind
//	osc(440) :: tone<l, r>          // call bind
//	osc<3>(f, <1,2,3>) :: tri<v>    // multi-call bind (expr is a Tuple)
type InstanceBinding struct {
	Name    string
	Outputs []string
	Expr    Expr
}

func (*InstanceBinding) stmtNode()          {}
func (b *InstanceBinding) Children() []Node { return []Node{b.Expr} }
func (b *InstanceBinding) String() string {
	return fmt.Sprintf("%s<%s> = %s", b.Name, strings.Join(b.Outputs, ", "), b.Expr)
}

// OutputKind distinguishes the four output statement forms.
type OutputKind int

const (
	OutDisplay OutputKind = iota // legacy: route decided by heuristic
	OutRender                    // always visual
	OutPlay                      // always audio
	OutCompute                   // always compute
)

func (k OutputKind) String() string {
	switch k {
	case OutDisplay:
		return "display"
	case OutRender:
		return "render"
	case OutPlay:
		return "play"
	case OutCompute:
		return "compute"
	}
	return fmt.Sprintf("OutputKind(%d)", int(k))
}

// NamedArg is one name: expr pair in an output statement.
type NamedArg struct {
	Name string
	Expr Expr
}

// OutputStmt represents display(...), render(...), play(...), compute(...).
// Arguments are split into an ordered positional list and an ordered list
// of named pairs.
type OutputStmt struct {
	Kind       OutputKind
	Positional []Expr
	Named      []NamedArg
}

func (*OutputStmt) stmtNode() {}
func (o *OutputStmt) Children() []Node {
	var nodes []Node
	for _, a := range o.Positional {
		nodes = append(nodes, a)
	}
	for _, n := range o.Named {
		nodes = append(nodes, n.Expr)
	}
	return nodes
}
func (o *OutputStmt) String() string {
	parts := make([]string, 0, len(o.Positional)+len(o.Named))
	for _, a := range o.Positional {
		parts = append(parts, a.String())
	}
	for _, n := range o.Named {
		parts = append(parts, fmt.Sprintf("%s: %s", n.Name, n.Expr))
	}
	return fmt.Sprintf("%s(%s)", o.Kind, strings.Join(parts, ", "))
}

// Arg returns the named argument with the given name, if present.
func (o *OutputStmt) Arg(name string) (Expr, bool) {
	for _, n := range o.Named {
		if n.Name == name {
			return n.Expr, true
		}
	}
	return nil, false
}

// SpindleDef is a reusable parameterized block: named inputs, declared
// output strands, and a body of local bindings that must define every
// declared output.
type SpindleDef struct {
	Name    string
	Params  []string
	Outputs []string
	Body    []Stmt
}

func (*SpindleDef) stmtNode() {}
func (s *SpindleDef) Children() []Node {
	nodes := make([]Node, len(s.Body))
	for i, st := range s.Body {
		nodes[i] = st
	}
	return nodes
}
func (s *SpindleDef) String() string {
	return fmt.Sprintf("spindle %s(%s) :: <%s>", s.Name,
		strings.Join(s.Params, ", "), strings.Join(s.Outputs, ", "))
}

// Pragma is a UI-parameter annotation: #type config. The parser records
// it verbatim; interpretation belongs to the host environment.
type Pragma struct {
	Type   string
	Config string
	Line   int
}

// Program is the root of a parse: an ordered statement list plus any
// pragma annotations found in the source.
type Program struct {
	Statements []Stmt
	Pragmas    []Pragma
}

// Spindles indexes the program's spindle definitions by name.
func (p *Program) Spindles() map[string]*SpindleDef {
	defs := make(map[string]*SpindleDef)
	for _, stmt := range p.Statements {
		if def, ok := stmt.(*SpindleDef); ok {
			defs[def.Name] = def
		}
	}
	return defs
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
