package lineage

import (
	"fmt"
	"strings"
)

// Binding powers, lowest first.
const (
	precLowest = iota
	precOr
	precAnd
	precNot
	precComparison // = <> < > <= >= IS IN BETWEEN LIKE
	precConcat     // ||
	precAdditive   // + -
	precMultiply   // * / %
	precUnary      // -x
	precPostfix    // x::type x[i]
)

var binaryPrec = map[TokenType]int{
	TOKEN_OR:      precOr,
	TOKEN_AND:     precAnd,
	TOKEN_EQ:      precComparison,
	TOKEN_NE:      precComparison,
	TOKEN_LT:      precComparison,
	TOKEN_GT:      precComparison,
	TOKEN_LE:      precComparison,
	TOKEN_GE:      precComparison,
	TOKEN_DPIPE:   precConcat,
	TOKEN_PLUS:    precAdditive,
	TOKEN_MINUS:   precAdditive,
	TOKEN_STAR:    precMultiply,
	TOKEN_SLASH:   precMultiply,
	TOKEN_PERCENT: precMultiply,
}

func (p *Parser) parseExpression() Expr {
	return p.parseExpr(precLowest)
}

func (p *Parser) parseExprList() []Expr {
	var exprs []Expr
	for {
		exprs = append(exprs, p.parseExpression())
		if !p.match(TOKEN_COMMA) {
			return exprs
		}
	}
}

// parseExpr parses operators binding tighter than prec.
func (p *Parser) parseExpr(prec int) Expr {
	left := p.parsePrefix()
	for {
		next := p.infixPrec()
		if next <= prec {
			return left
		}
		left = p.parseInfix(left, next)
	}
}

// infixPrec returns the binding power of the current token as an infix
// operator, or precLowest when it is not one.
func (p *Parser) infixPrec() int {
	if prec, ok := binaryPrec[p.token.Type]; ok {
		return prec
	}
	switch p.token.Type {
	case TOKEN_IS, TOKEN_IN, TOKEN_BETWEEN, TOKEN_LIKE, TOKEN_ILIKE:
		return precComparison
	case TOKEN_NOT:
		switch p.peek.Type {
		case TOKEN_IN, TOKEN_BETWEEN, TOKEN_LIKE, TOKEN_ILIKE:
			return precComparison
		}
	case TOKEN_DCOLON, TOKEN_LBRACKET:
		return precPostfix
	}
	return precLowest
}

func (p *Parser) parsePrefix() Expr {
	switch p.token.Type {
	case TOKEN_NOT:
		p.nextToken()
		return &UnaryExpr{Op: "NOT", Expr: p.parseExpr(precNot)}
	case TOKEN_MINUS, TOKEN_PLUS:
		op := p.token.Literal
		p.nextToken()
		return &UnaryExpr{Op: op, Expr: p.parseExpr(precUnary)}
	case TOKEN_EXISTS:
		p.nextToken()
		return &ExistsExpr{Select: p.parseParenSelect()}
	}
	return p.parsePrimary()
}

func (p *Parser) parseInfix(left Expr, prec int) Expr {
	tok := p.token
	switch tok.Type {
	case TOKEN_IS:
		p.nextToken()
		e := &IsExpr{Expr: left, Not: p.match(TOKEN_NOT)}
		switch {
		case p.match(TOKEN_NULL):
			e.Value = &Literal{Type: LiteralNull, Value: "NULL"}
		case p.match(TOKEN_TRUE):
			e.Value = &Literal{Type: LiteralBool, Value: "TRUE"}
		case p.match(TOKEN_FALSE):
			e.Value = &Literal{Type: LiteralBool, Value: "FALSE"}
		case p.match(TOKEN_DISTINCT):
			p.expect(TOKEN_FROM)
			e.Value = p.parseExpr(precComparison)
		default:
			p.addError(fmt.Sprintf(errUnexpectedToken, p.describe(p.token), "NULL, TRUE, FALSE or DISTINCT FROM"))
		}
		return e

	case TOKEN_NOT:
		p.nextToken()
		return p.parseNegatable(left, true)

	case TOKEN_IN, TOKEN_BETWEEN, TOKEN_LIKE, TOKEN_ILIKE:
		return p.parseNegatable(left, false)

	case TOKEN_DCOLON:
		p.nextToken()
		return &CastExpr{Expr: left, Type: p.parseTypeName()}

	case TOKEN_LBRACKET:
		p.nextToken()
		idx := p.parseExpression()
		p.expect(TOKEN_RBRACKET)
		return &IndexExpr{Expr: left, Index: idx}
	}

	p.nextToken()
	op := strings.ToUpper(tok.Literal)
	if tok.Type == TOKEN_NE {
		op = "<>"
	}
	return &BinaryExpr{Left: left, Op: op, Right: p.parseExpr(prec)}
}

// parseNegatable parses the IN, BETWEEN and LIKE forms after an optional NOT.
func (p *Parser) parseNegatable(left Expr, not bool) Expr {
	switch {
	case p.match(TOKEN_IN):
		e := &InExpr{Expr: left, Not: not}
		p.expect(TOKEN_LPAREN)
		if p.check(TOKEN_SELECT) || p.check(TOKEN_WITH) {
			e.Query = p.parseSelectStmt()
		} else {
			e.Values = p.parseExprList()
		}
		p.expect(TOKEN_RPAREN)
		return e

	case p.match(TOKEN_BETWEEN):
		e := &BetweenExpr{Expr: left, Not: not}
		e.Low = p.parseExpr(precComparison)
		p.expect(TOKEN_AND)
		e.High = p.parseExpr(precComparison)
		return e

	case p.check(TOKEN_LIKE), p.check(TOKEN_ILIKE):
		e := &LikeExpr{Expr: left, Not: not, ILike: p.check(TOKEN_ILIKE)}
		p.nextToken()
		e.Pattern = p.parseExpr(precComparison)
		if identIs(p.token, "escape") {
			p.nextToken()
			p.parseExpr(precComparison)
		}
		return e
	}
	p.addError(fmt.Sprintf(errUnexpectedToken, p.describe(p.token), "IN, BETWEEN or LIKE"))
	return left
}

// ---------- Primary ----------

func (p *Parser) parsePrimary() Expr {
	tok := p.token
	switch tok.Type {
	case TOKEN_NUMBER:
		p.nextToken()
		return &Literal{Type: LiteralNumber, Value: tok.Literal}
	case TOKEN_STRING:
		p.nextToken()
		return &Literal{Type: LiteralString, Value: tok.Literal}
	case TOKEN_TRUE, TOKEN_FALSE:
		p.nextToken()
		return &Literal{Type: LiteralBool, Value: strings.ToUpper(tok.Literal)}
	case TOKEN_NULL:
		p.nextToken()
		return &Literal{Type: LiteralNull, Value: "NULL"}
	case TOKEN_LPAREN:
		return p.parseParen()
	case TOKEN_LBRACKET:
		p.nextToken()
		list := &ListExpr{}
		if !p.check(TOKEN_RBRACKET) {
			list.Elements = p.parseExprList()
		}
		p.expect(TOKEN_RBRACKET)
		return list
	case TOKEN_CASE:
		return p.parseCase()
	case TOKEN_CAST:
		return p.parseCast()
	case TOKEN_LEFT, TOKEN_RIGHT:
		if p.checkPeek(TOKEN_LPAREN) {
			p.nextToken()
			return p.parseFuncCall(strings.ToLower(tok.Literal))
		}
	}

	if isIdentLike(tok) {
		return p.parseIdentExpr()
	}
	p.addError("unexpected " + p.describe(tok) + " in expression")
	return &Literal{Type: LiteralNull}
}

// parseIdentExpr parses what may follow an identifier: a function call, a
// qualified column, a typed literal or INTERVAL.
func (p *Parser) parseIdentExpr() Expr {
	name := p.token.Literal
	lower := strings.ToLower(name)

	if p.token.Type == TOKEN_IDENT {
		switch {
		case lower == "try_cast" && p.checkPeek(TOKEN_LPAREN):
			return p.parseCast()
		case lower == "interval" && (p.checkPeek(TOKEN_STRING) || p.checkPeek(TOKEN_NUMBER)):
			p.nextToken()
			value := p.token.Literal
			p.nextToken()
			if p.check(TOKEN_IDENT) {
				value += " " + p.token.Literal
				p.nextToken()
			}
			return &Literal{Type: LiteralInterval, Value: value}
		case p.checkPeek(TOKEN_STRING):
			// DATE '2024-01-01', TIMESTAMP '...'
			p.nextToken()
			value := p.token.Literal
			p.nextToken()
			return &CastExpr{Expr: &Literal{Type: LiteralString, Value: value}, Type: strings.ToUpper(name)}
		}
	}

	p.nextToken()
	if p.check(TOKEN_LPAREN) {
		return p.parseFuncCall(lower)
	}
	if !p.match(TOKEN_DOT) {
		return &ColumnRef{Column: name}
	}
	if p.match(TOKEN_STAR) {
		return &ColumnRef{Table: name, Column: "*"}
	}
	second := p.expectIdent()
	if p.check(TOKEN_LPAREN) {
		return p.parseFuncCall(strings.ToLower(second))
	}
	if !p.match(TOKEN_DOT) {
		return &ColumnRef{Table: name, Column: second}
	}
	// schema.table.column
	return &ColumnRef{Table: second, Column: p.expectIdent()}
}

// parseParen parses a parenthesized expression, row or scalar subquery.
func (p *Parser) parseParen() Expr {
	p.expect(TOKEN_LPAREN)
	if p.check(TOKEN_SELECT) || p.check(TOKEN_WITH) {
		sel := p.parseSelectStmt()
		p.expect(TOKEN_RPAREN)
		return &SubqueryExpr{Select: sel}
	}
	e := p.parseExpression()
	if p.match(TOKEN_COMMA) {
		row := &ListExpr{Elements: append([]Expr{e}, p.parseExprList()...)}
		p.expect(TOKEN_RPAREN)
		return row
	}
	p.expect(TOKEN_RPAREN)
	return &ParenExpr{Expr: e}
}

func (p *Parser) parseParenSelect() *SelectStmt {
	p.expect(TOKEN_LPAREN)
	sel := p.parseSelectStmt()
	p.expect(TOKEN_RPAREN)
	return sel
}

// ---------- Special forms ----------

func (p *Parser) parseCase() Expr {
	p.expect(TOKEN_CASE)
	e := &CaseExpr{}
	if !p.check(TOKEN_WHEN) {
		e.Operand = p.parseExpression()
	}
	for p.match(TOKEN_WHEN) {
		w := WhenClause{Condition: p.parseExpression()}
		p.expect(TOKEN_THEN)
		w.Result = p.parseExpression()
		e.Whens = append(e.Whens, w)
	}
	if len(e.Whens) == 0 {
		p.addError(fmt.Sprintf(errUnexpectedToken, p.describe(p.token), "WHEN"))
	}
	if p.match(TOKEN_ELSE) {
		e.Else = p.parseExpression()
	}
	p.expect(TOKEN_END)
	return e
}

// parseCast parses CAST(x AS type) and TRY_CAST(x AS type).
func (p *Parser) parseCast() Expr {
	p.nextToken()
	p.expect(TOKEN_LPAREN)
	e := &CastExpr{Expr: p.parseExpression()}
	p.expect(TOKEN_AS)
	e.Type = p.parseTypeName()
	p.expect(TOKEN_RPAREN)
	return e
}

// parseTypeName parses a type such as INTEGER, DECIMAL(18, 3), VARCHAR[],
// DOUBLE PRECISION or TIMESTAMP WITH TIME ZONE.
func (p *Parser) parseTypeName() string {
	name := strings.ToUpper(p.expectIdent())
	switch {
	case name == "DOUBLE" && identIs(p.token, "precision"):
		p.nextToken()
		name += " PRECISION"
	case p.check(TOKEN_WITH) && identIs(p.peek, "time"):
		p.nextToken()
		p.nextToken()
		if identIs(p.token, "zone") {
			p.nextToken()
		}
		name += " WITH TIME ZONE"
	}
	if p.match(TOKEN_LPAREN) {
		var args []string
		for {
			args = append(args, p.token.Literal)
			p.nextToken()
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		p.expect(TOKEN_RPAREN)
		name += "(" + strings.Join(args, ", ") + ")"
	}
	for p.check(TOKEN_LBRACKET) && p.checkPeek(TOKEN_RBRACKET) {
		p.nextToken()
		p.nextToken()
		name += "[]"
	}
	return name
}

// ---------- Functions and windows ----------

// parseFuncCall parses (args) [WITHIN GROUP (ORDER BY ...)]
// [FILTER (WHERE ...)] [OVER window] after the function name.
func (p *Parser) parseFuncCall(name string) Expr {
	fn := &FuncCall{Name: name}
	p.expect(TOKEN_LPAREN)
	switch {
	case p.match(TOKEN_STAR):
		fn.Star = true
	case p.check(TOKEN_RPAREN):
	default:
		fn.Distinct = p.match(TOKEN_DISTINCT)
		fn.Args = p.parseExprList()
		if p.check(TOKEN_ORDER) {
			fn.WithinGroup = p.parseOrderBy()
		}
	}
	p.expect(TOKEN_RPAREN)

	if p.check(TOKEN_WITHIN) && p.checkPeek(TOKEN_GROUP) {
		p.nextToken()
		p.nextToken()
		p.expect(TOKEN_LPAREN)
		fn.WithinGroup = p.parseOrderBy()
		p.expect(TOKEN_RPAREN)
	}
	if p.check(TOKEN_FILTER) && p.checkPeek(TOKEN_LPAREN) {
		p.nextToken()
		p.nextToken()
		p.match(TOKEN_WHERE)
		fn.Filter = p.parseExpression()
		p.expect(TOKEN_RPAREN)
	}
	if (identIs(p.token, "ignore") || identIs(p.token, "respect")) && p.checkPeek(TOKEN_NULLS) {
		p.nextToken()
		p.nextToken()
	}
	if p.match(TOKEN_OVER) {
		fn.Window = p.parseWindowRef()
	}
	return fn
}

// parseWindowRef parses the target of OVER: a window name or (spec).
func (p *Parser) parseWindowRef() *WindowSpec {
	if isIdentLike(p.token) {
		return &WindowSpec{Name: p.expectIdent()}
	}
	p.expect(TOKEN_LPAREN)
	spec := p.parseWindowSpec()
	p.expect(TOKEN_RPAREN)
	return spec
}

// parseWindowSpec parses [base] [PARTITION BY ...] [ORDER BY ...] [frame].
func (p *Parser) parseWindowSpec() *WindowSpec {
	spec := &WindowSpec{}
	if p.check(TOKEN_IDENT) {
		spec.Name = p.expectIdent()
	}
	if p.match(TOKEN_PARTITION) {
		p.expect(TOKEN_BY)
		spec.PartitionBy = p.parseExprList()
	}
	if p.check(TOKEN_ORDER) {
		spec.OrderBy = p.parseOrderBy()
	}
	switch p.token.Type {
	case TOKEN_ROWS, TOKEN_RANGE, TOKEN_GROUPS:
		spec.Frame = p.parseFrame()
	}
	return spec
}

func (p *Parser) parseFrame() *FrameSpec {
	frame := &FrameSpec{Type: strings.ToUpper(p.token.Literal)}
	p.nextToken()
	if !p.match(TOKEN_BETWEEN) {
		frame.Start = p.parseFrameBound()
		return frame
	}
	frame.Start = p.parseFrameBound()
	p.expect(TOKEN_AND)
	end := p.parseFrameBound()
	frame.End = &end
	return frame
}

func (p *Parser) parseFrameBound() FrameBound {
	switch {
	case p.match(TOKEN_UNBOUNDED):
		if p.match(TOKEN_PRECEDING) {
			return FrameBound{Type: "UNBOUNDED PRECEDING"}
		}
		p.expect(TOKEN_FOLLOWING)
		return FrameBound{Type: "UNBOUNDED FOLLOWING"}
	case p.match(TOKEN_CURRENT):
		p.expect(TOKEN_ROW)
		return FrameBound{Type: "CURRENT ROW"}
	}
	offset := p.parseExpr(precComparison)
	if p.match(TOKEN_PRECEDING) {
		return FrameBound{Type: "PRECEDING", Offset: offset}
	}
	p.expect(TOKEN_FOLLOWING)
	return FrameBound{Type: "FOLLOWING", Offset: offset}
}
