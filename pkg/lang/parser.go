package lang

import (
	"strconv"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds a
// Program. It never error-recovers: the first failure aborts the parse and
// callers get exactly one SyntaxError to report.
//
// Grammar (precedence low → high):
//
//	program     = statement* EOF
//	statement   = spindleDef | envAssign | outputStmt | instanceBind
//	            | letBinding | assignment | pragma
//	spindleDef  = "spindle" IDENT "(" identList ")" "::" outputSpec "{" body "}"
//	envAssign   = "me" "<" IDENT ">" "=" expr
//	outputStmt  = ("display"|"render"|"play"|"compute") "(" stmtArgs ")"
//	instanceBind = IDENT outputSpec "=" expr
//	            | callOrRemap "::" IDENT outputSpec
//	            | IDENT "<" NUMBER ">" "(" multiArgs ")" "::" IDENT outputSpec
//	expr        = "if" expr "then" expr "else" expr | logical
//	logical     = comparison (("and"|"or") comparison)*
//	comparison  = additive (("<"|">"|"<="|">="|"=="|"!=") additive)?
//	additive    = multiplicative (("+"|"-") multiplicative)*
//	multiplicative = power (("*"|"/"|"%") power)*
//	power       = unary ("^" power)?            right-associative
//	unary       = ("-"|"not") unary | postfix
//	postfix     = primary ("[" expr "]" | "@" IDENT remapArgs?)*
//	primary     = NUMBER | STRING | tuple | bundle | "me" "@" IDENT
//	            | "mouse" "@" IDENT | IDENT "(" exprList ")" | IDENT
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
}

// outputKinds maps the statement-position identifiers that open an output
// statement to their kind.
var outputKinds = map[string]OutputKind{
	"display": OutDisplay,
	"render":  OutRender,
	"play":    OutPlay,
	"compute": OutCompute,
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// Parse tokenises and parses src in one step.
func Parse(src string) (*Program, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens, src).ParseProgram()
}

// fmtError wraps an error message with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	return syntaxErrorAt(p.sourceLines, tok, format, args...)
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	return p.peekAt(0)
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

// ParseProgram parses the whole token stream into a Program.
func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	for p.peek().Type != EOF {
		if p.peek().Type == PRAGMA {
			tok := p.advance()
			prog.Pragmas = append(prog.Pragmas, parsePragmaBody(tok))
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}
	return prog, nil
}

// parsePragmaBody splits "#type config" into its type word and the raw
// remainder. The config is recorded verbatim; it is host metadata, not code.
func parsePragmaBody(tok Token) Pragma {
	body := strings.TrimSpace(tok.Lexeme)
	typ, config := body, ""
	if idx := strings.IndexAny(body, " \t"); idx >= 0 {
		typ = body[:idx]
		config = strings.TrimSpace(body[idx+1:])
	}
	return Pragma{Type: typ, Config: config, Line: tok.Line}
}

func (p *Parser) parseStatement() (Stmt, error) {
	tok := p.peek()

	switch tok.Type {
	case SPINDLE:
		return p.parseSpindleDef()
	case ME:
		return p.parseEnvAssign()
	case IDENT:
		if kind, ok := outputKinds[tok.Lexeme]; ok && p.peekAt(1).Type == LPAREN {
			return p.parseOutputStmt(kind)
		}
		return p.parseBindingOrAssignment()
	}
	return nil, p.fmtError(tok, "unexpected %s (%q) at statement start", tok.Type, tok.Lexeme)
}

// parseSpindleDef handles
//
//	spindle name(params) :: <outputs> { body }
//
// The body is a sequence of local bindings; the declared outputs must be
// bound there, but that check belongs to the evaluator, not the parser.
func (p *Parser) parseSpindleDef() (Stmt, error) {
	p.advance() // consume "spindle"
	nameTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	params, err := p.parseIdentList(RPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	if _, err := p.expect(DCOLON); err != nil {
		return nil, err
	}
	outputs, err := p.parseOutputSpec()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	var body []Stmt
	for p.peek().Type != RBRACE && p.peek().Type != EOF {
		nameTok, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		opTok := p.advance()
		switch opTok.Type {
		case ASSIGN:
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			body = append(body, &LetBinding{Name: nameTok.Lexeme, Expr: expr})
		case PLUS_ASSIGN, MINUS_ASSIGN, STAR_ASSIGN, SLASH_ASSIGN:
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			body = append(body, &Assignment{Name: nameTok.Lexeme, Op: opTok.Type, Expr: expr})
		default:
			return nil, p.fmtError(opTok, "expected binding in spindle body, got %s", opTok.Type)
		}
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}

	return &SpindleDef{
		Name:    nameTok.Lexeme,
		Params:  params,
		Outputs: outputs,
		Body:    body,
	}, nil
}

// parseEnvAssign handles me<field> = expr.
func (p *Parser) parseEnvAssign() (Stmt, error) {
	p.advance() // consume "me"
	if _, err := p.expect(LANGLE); err != nil {
		return nil, err
	}
	fieldTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RANGLE); err != nil {
		return nil, err
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &EnvAssign{Field: fieldTok.Lexeme, Expr: expr}, nil
}

// parseOutputStmt handles display/render/play/compute statements whose
// arguments may be positional or name: expr pairs, freely mixed.
func (p *Parser) parseOutputStmt(kind OutputKind) (Stmt, error) {
	p.advance() // consume the statement keyword
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	stmt := &OutputStmt{Kind: kind}
	for p.peek().Type != RPAREN {
		if p.peek().Type == IDENT && p.peekAt(1).Type == COLON {
			nameTok := p.advance()
			p.advance() // consume ':'
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.Named = append(stmt.Named, NamedArg{Name: nameTok.Lexeme, Expr: expr})
		} else {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.Positional = append(stmt.Positional, expr)
		}
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseBindingOrAssignment dispatches the statement forms that start with
// a bare identifier:
//
//	inst<x, y> = expr          direct instance bind
//	name<3>(args) :: i<outs>   multi-call instantiation
//	name = expr                plain binding
//	name += expr               compound assignment
//	name(args) :: i<outs>      call bind
//	base@strand(...) :: i<outs> remap bind
func (p *Parser) parseBindingOrAssignment() (Stmt, error) {
	nameTok := p.peek()

	switch p.peekAt(1).Type {
	case LANGLE:
		if p.peekAt(2).Type == NUMBER && p.peekAt(3).Type == RANGLE && p.peekAt(4).Type == LPAREN {
			return p.parseMultiCall()
		}
		return p.parseDirectBind()
	case ASSIGN:
		p.advance()
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &LetBinding{Name: nameTok.Lexeme, Expr: expr}, nil
	case PLUS_ASSIGN, MINUS_ASSIGN, STAR_ASSIGN, SLASH_ASSIGN:
		p.advance()
		opTok := p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Assignment{Name: nameTok.Lexeme, Op: opTok.Type, Expr: expr}, nil
	case LPAREN, AT:
		return p.parseCallBind()
	}
	return nil, p.fmtError(p.peekAt(1), "expected binding or assignment after %q", nameTok.Lexeme)
}

// parseDirectBind handles inst<outputs> = expr.
func (p *Parser) parseDirectBind() (Stmt, error) {
	nameTok := p.advance()
	outputs, err := p.parseOutputSpec()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &InstanceBinding{Name: nameTok.Lexeme, Outputs: outputs, Expr: expr}, nil
}

// parseCallBind handles name(args) :: inst<outputs> and
// base@strand(axis~expr, ...) :: inst<outputs>. The left side is an
// ordinary expression; the :: suffix turns it into a named instance.
func (p *Parser) parseCallBind() (Stmt, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(DCOLON); err != nil {
		return nil, err
	}
	instTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	outputs, err := p.parseOutputSpec()
	if err != nil {
		return nil, err
	}
	return &InstanceBinding{Name: instTok.Lexeme, Outputs: outputs, Expr: expr}, nil
}

// parseMultiCall handles name<N>(args) :: inst<outputs>, which instantiates
// N parallel copies of the call. A bundle argument <a, b, c> distributes
// one element to each copy and must have exactly N elements; any other
// argument is replicated to every copy. The result lowers to a tuple of N
// calls so no later pass needs to know about multi-call syntax.
func (p *Parser) parseMultiCall() (Stmt, error) {
	nameTok := p.advance() // function name
	p.advance()            // '<'
	countTok := p.advance()
	count, err := strconv.Atoi(countTok.Lexeme)
	if err != nil || count < 1 {
		return nil, p.fmtError(countTok, "invalid multi-call count %q", countTok.Lexeme)
	}
	p.advance() // '>'
	p.advance() // '('

	// Each slot holds the per-copy argument values.
	var slots [][]Expr
	for p.peek().Type != RPAREN {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if bundle, ok := arg.(*TupleExpr); ok {
			if len(bundle.Items) != count {
				return nil, p.fmtError(p.peek(), "bundle has %d items, but multi-call count is %d",
					len(bundle.Items), count)
			}
			slots = append(slots, bundle.Items)
		} else {
			copies := make([]Expr, count)
			for i := range copies {
				copies[i] = arg
			}
			slots = append(slots, copies)
		}
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	if _, err := p.expect(DCOLON); err != nil {
		return nil, err
	}
	instTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	outputs, err := p.parseOutputSpec()
	if err != nil {
		return nil, err
	}

	calls := make([]Expr, count)
	for i := 0; i < count; i++ {
		args := make([]Expr, len(slots))
		for j, slot := range slots {
			args[j] = slot[i]
		}
		calls[i] = &CallExpr{Name: nameTok.Lexeme, Args: args}
	}

	return &InstanceBinding{
		Name:    instTok.Lexeme,
		Outputs: outputs,
		Expr:    &TupleExpr{Items: calls},
	}, nil
}

// parseOutputSpec parses <a, b, c> into a strand name list.
func (p *Parser) parseOutputSpec() ([]string, error) {
	if _, err := p.expect(LANGLE); err != nil {
		return nil, err
	}
	names, err := p.parseIdentList(RANGLE)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, p.fmtError(p.peek(), "output spec must declare at least one strand")
	}
	if _, err := p.expect(RANGLE); err != nil {
		return nil, err
	}
	return names, nil
}

// parseIdentList parses a possibly empty comma-separated identifier list,
// stopping before the given terminator.
func (p *Parser) parseIdentList(terminator TokenType) ([]string, error) {
	var names []string
	for p.peek().Type != terminator {
		tok, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		names = append(names, tok.Lexeme)
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	return names, nil
}

//  Expressions

// parseExpr is the entry point for expression parsing. The conditional
// form binds loosest.
func (p *Parser) parseExpr() (Expr, error) {
	if p.peek().Type == IF {
		p.advance()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(THEN); err != nil {
			return nil, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(ELSE); err != nil {
			return nil, err
		}
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &CondExpr{Cond: cond, Then: then, Else: els}, nil
	}
	return p.parseLogical()
}

// parseLogical handles "and" and "or".
func (p *Parser) parseLogical() (Expr, error) {
	expr, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AND || p.peek().Type == OR {
		op := p.advance().Type
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseComparison handles a single, non-associative comparison.
func (p *Parser) parseComparison() (Expr, error) {
	expr, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch p.peek().Type {
	case LANGLE, RANGLE, LESS_EQ, GREATER_EQ, EQUALS, NOT_EQ:
		op := p.advance().Type
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: op, Left: expr, Right: right}, nil
	}
	return expr, nil
}

// parseAdditive handles + and -.
func (p *Parser) parseAdditive() (Expr, error) {
	expr, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == PLUS || p.peek().Type == MINUS {
		op := p.advance().Type
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseMultiplicative handles *, / and %.
func (p *Parser) parseMultiplicative() (Expr, error) {
	expr, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == STAR || p.peek().Type == SLASH || p.peek().Type == PERCENT {
		op := p.advance().Type
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parsePower handles ^, right-associative: 2^3^2 is 2^(3^2).
func (p *Parser) parsePower() (Expr, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.peek().Type == CARET {
		p.advance()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: CARET, Left: expr, Right: right}, nil
	}
	return expr, nil
}

// parseUnary handles unary minus and "not".
func (p *Parser) parseUnary() (Expr, error) {
	if p.peek().Type == MINUS || p.peek().Type == NOT {
		op := p.advance().Type
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: op, Expr: expr}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles indexing e[i], strand access base@strand, and
// strand remap base@strand(axis~expr, ...).
func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case LBRACKET:
			p.advance()
			index, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			expr = &IndexExpr{Base: expr, Index: index}
		case AT:
			p.advance()
			strandTok, err := p.expect(IDENT)
			if err != nil {
				return nil, err
			}
			if p.peek().Type == LPAREN {
				mappings, err := p.parseAxisMappings()
				if err != nil {
					return nil, err
				}
				expr = &StrandRemap{Base: expr, Strand: strandTok.Lexeme, Mappings: mappings}
			} else {
				expr = &StrandAccess{Base: expr, Strand: strandTok.Lexeme}
			}
		default:
			return expr, nil
		}
	}
}

// parseAxisMappings parses (axis~expr, axis~expr, ...).
func (p *Parser) parseAxisMappings() ([]AxisMapping, error) {
	p.advance() // consume '('
	var mappings []AxisMapping
	for p.peek().Type != RPAREN {
		axisTok, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TILDE); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, AxisMapping{Axis: axisTok.Lexeme, Expr: expr})
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return mappings, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()

	switch tok.Type {
	case NUMBER:
		p.advance()
		value, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, p.fmtError(tok, "invalid number literal %q", tok.Lexeme)
		}
		return &NumberLit{Value: value}, nil

	case STRING:
		p.advance()
		return &StringLit{Value: tok.Lexeme}, nil

	case ME:
		p.advance()
		if _, err := p.expect(AT); err != nil {
			return nil, err
		}
		fieldTok, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		return &MeField{Field: fieldTok.Lexeme}, nil

	case MOUSE:
		p.advance()
		if _, err := p.expect(AT); err != nil {
			return nil, err
		}
		fieldTok, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		return &MouseField{Field: fieldTok.Lexeme}, nil

	case LPAREN:
		p.advance()
		items, err := p.parseExprList(RPAREN)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, p.fmtError(tok, "empty parentheses are not an expression")
		}
		if len(items) == 1 {
			return items[0], nil
		}
		return &TupleExpr{Items: items}, nil

	case LANGLE:
		// Bundle literal <e1, e2, ...>; at expression-operand position a
		// '<' can only open a bundle, never a comparison.
		p.advance()
		items, err := p.parseExprList(RANGLE)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RANGLE); err != nil {
			return nil, err
		}
		return &TupleExpr{Items: items}, nil

	case IDENT:
		p.advance()
		if p.peek().Type == LPAREN {
			p.advance()
			args, err := p.parseExprList(RPAREN)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RPAREN); err != nil {
				return nil, err
			}
			return &CallExpr{Name: tok.Lexeme, Args: args}, nil
		}
		return &VarRef{Name: tok.Lexeme}, nil
	}
	return nil, p.fmtError(tok, "unexpected %s (%q) in expression", tok.Type, tok.Lexeme)
}

// parseExprList parses a possibly empty comma-separated expression list,
// stopping before the given terminator.
func (p *Parser) parseExprList(terminator TokenType) ([]Expr, error) {
	var items []Expr
	for p.peek().Type != terminator {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, expr)
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	return items, nil
}
