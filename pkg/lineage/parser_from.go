package lineage

import "strings"

// from_clause → table_ref { (, | [NATURAL] join_type JOIN) table_ref [ON expr | USING (cols)] }
// table_ref   → name [[AS] alias] | 'file.csv' [[AS] alias] | func(args) [[AS] alias]
//             | (select) [AS] alias [(cols)] | LATERAL (select) [AS] alias

// joinWords are DuckDB join flavors spelled as plain identifiers; they must
// not be taken for a table alias.
var joinWords = map[string]JoinType{
	"asof":       JoinInner,
	"positional": JoinCross,
	"semi":       JoinInner,
	"anti":       JoinInner,
}

func (p *Parser) parseFrom() *FromClause {
	from := &FromClause{Source: p.parseTableRef()}
	for {
		join, ok := p.parseJoinType()
		if !ok {
			return from
		}
		join.Right = p.parseTableRef()
		switch {
		case p.match(TOKEN_ON):
			join.Condition = p.parseExpression()
		case p.check(TOKEN_USING):
			p.nextToken()
			join.Using = p.parseIdentList()
		}
		from.Joins = append(from.Joins, join)
	}
}

// parseJoinType consumes the tokens introducing a join, if any.
func (p *Parser) parseJoinType() (*Join, bool) {
	if p.match(TOKEN_COMMA) {
		return &Join{Type: JoinComma}, true
	}
	join := &Join{Type: JoinInner, Natural: p.match(TOKEN_NATURAL)}
	started := join.Natural
	if p.check(TOKEN_IDENT) {
		if t, ok := joinWords[strings.ToLower(p.token.Literal)]; ok {
			join.Type = t
			started = true
			p.nextToken()
		}
	}
	switch p.token.Type {
	case TOKEN_LEFT:
		join.Type = JoinLeft
	case TOKEN_RIGHT:
		join.Type = JoinRight
	case TOKEN_FULL:
		join.Type = JoinFull
	case TOKEN_CROSS:
		join.Type = JoinCross
	case TOKEN_INNER:
	default:
		if !started && !p.check(TOKEN_JOIN) {
			return nil, false
		}
		p.expect(TOKEN_JOIN)
		return join, true
	}
	p.nextToken()
	if p.check(TOKEN_IDENT) {
		if _, ok := joinWords[strings.ToLower(p.token.Literal)]; ok {
			p.nextToken()
		}
	}
	p.match(TOKEN_OUTER)
	p.expect(TOKEN_JOIN)
	return join, true
}

func (p *Parser) parseTableRef() TableRef {
	switch {
	case p.match(TOKEN_LATERAL):
		p.expect(TOKEN_LPAREN)
		sel := p.parseSelectStmt()
		p.expect(TOKEN_RPAREN)
		alias, _ := p.parseTableAlias()
		return &LateralTable{Select: sel, Alias: alias}

	case p.check(TOKEN_LPAREN):
		p.nextToken()
		if !p.check(TOKEN_SELECT) && !p.check(TOKEN_WITH) {
			p.addError("parenthesized joins are not supported")
			return &TableName{}
		}
		sel := p.parseSelectStmt()
		p.expect(TOKEN_RPAREN)
		alias, cols := p.parseTableAlias()
		return &DerivedTable{Select: sel, Alias: alias, Columns: cols}

	case p.check(TOKEN_STRING):
		t := &TableName{Name: p.token.Literal}
		p.nextToken()
		t.Alias, _ = p.parseTableAlias()
		return t
	}

	parts := []string{p.expectIdent()}
	for p.match(TOKEN_DOT) {
		parts = append(parts, p.expectIdent())
	}
	if p.check(TOKEN_LPAREN) {
		p.nextToken()
		fn := &TableFunction{Name: strings.Join(parts, ".")}
		if !p.check(TOKEN_RPAREN) {
			fn.Args = p.parseExprList()
		}
		p.expect(TOKEN_RPAREN)
		fn.Alias, _ = p.parseTableAlias()
		return fn
	}

	t := &TableName{Name: parts[len(parts)-1]}
	if len(parts) > 1 {
		t.Schema = parts[len(parts)-2]
	}
	if len(parts) > 2 {
		t.Catalog = parts[len(parts)-3]
	}
	t.Alias, _ = p.parseTableAlias()
	return t
}

// parseTableAlias parses [AS] alias [(col, ...)].
func (p *Parser) parseTableAlias() (string, []string) {
	var alias string
	switch {
	case p.match(TOKEN_AS):
		alias = p.expectIdent()
	case p.check(TOKEN_IDENT):
		if _, ok := joinWords[strings.ToLower(p.token.Literal)]; ok {
			return "", nil
		}
		alias = p.token.Literal
		p.nextToken()
	default:
		return "", nil
	}
	var cols []string
	if p.check(TOKEN_LPAREN) {
		cols = p.parseIdentList()
	}
	return alias, cols
}
