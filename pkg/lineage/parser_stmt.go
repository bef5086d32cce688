package lineage

import "strings"

func (p *Parser) parseStatement() *SelectStmt {
	stmt := p.parseSelectStmt()
	for p.match(TOKEN_SEMICOLON) {
	}
	if !p.check(TOKEN_EOF) {
		p.addError("unexpected " + p.describe(p.token) + " after statement")
	}
	return stmt
}

func (p *Parser) parseSelectStmt() *SelectStmt {
	stmt := &SelectStmt{}
	if p.check(TOKEN_WITH) {
		stmt.With = p.parseWith()
	}
	stmt.Body = p.parseSelectBody()
	return stmt
}

// parseWith parses WITH [RECURSIVE] name [(cols)] AS [[NOT] MATERIALIZED] (query), ...
func (p *Parser) parseWith() *WithClause {
	p.expect(TOKEN_WITH)
	w := &WithClause{Recursive: p.match(TOKEN_RECURSIVE)}
	for {
		cte := &CTE{Name: p.expectIdent()}
		if p.check(TOKEN_LPAREN) {
			cte.Columns = p.parseIdentList()
		}
		p.expect(TOKEN_AS)
		if p.check(TOKEN_NOT) && identIs(p.peek, "materialized") {
			p.nextToken()
		}
		if identIs(p.token, "materialized") {
			p.nextToken()
		}
		p.expect(TOKEN_LPAREN)
		cte.Select = p.parseSelectStmt()
		p.expect(TOKEN_RPAREN)
		w.CTEs = append(w.CTEs, cte)
		if !p.match(TOKEN_COMMA) {
			return w
		}
	}
}

func (p *Parser) parseSelectBody() *SelectBody {
	body := &SelectBody{Left: p.parseSelectCore()}

	switch p.token.Type {
	case TOKEN_UNION:
		body.Op = SetOpUnion
	case TOKEN_INTERSECT:
		body.Op = SetOpIntersect
	case TOKEN_EXCEPT:
		body.Op = SetOpExcept
	default:
		return body
	}
	p.nextToken()
	if !p.match(TOKEN_ALL) {
		p.match(TOKEN_DISTINCT)
	}
	if p.check(TOKEN_BY) && identIs(p.peek, "name") {
		p.nextToken()
		p.nextToken()
		body.ByName = true
	}
	body.Right = p.parseSelectBody()
	return body
}

func (p *Parser) parseSelectCore() *SelectCore {
	if !p.expect(TOKEN_SELECT) {
		return &SelectCore{}
	}
	core := &SelectCore{}
	if p.match(TOKEN_DISTINCT) {
		core.Distinct = true
		if p.match(TOKEN_ON) {
			p.expect(TOKEN_LPAREN)
			p.parseExprList()
			p.expect(TOKEN_RPAREN)
		}
	} else {
		p.match(TOKEN_ALL)
	}

	core.Columns = p.parseSelectList()

	if p.match(TOKEN_FROM) {
		core.From = p.parseFrom()
	}
	if p.match(TOKEN_WHERE) {
		core.Where = p.parseExpression()
	}
	if p.match(TOKEN_GROUP) {
		p.expect(TOKEN_BY)
		if !p.match(TOKEN_ALL) {
			core.GroupBy = p.parseExprList()
		}
	}
	if p.match(TOKEN_HAVING) {
		core.Having = p.parseExpression()
	}
	if p.match(TOKEN_WINDOW) {
		core.Windows = p.parseWindowDefs()
	}
	if p.match(TOKEN_QUALIFY) {
		core.Qualify = p.parseExpression()
	}
	if p.check(TOKEN_ORDER) {
		core.OrderBy = p.parseOrderBy()
	}
	if p.match(TOKEN_LIMIT) {
		core.Limit = p.parseExpression()
	}
	if p.match(TOKEN_OFFSET) {
		core.Offset = p.parseExpression()
	}
	return core
}

func (p *Parser) parseSelectList() []SelectItem {
	var items []SelectItem
	for {
		items = append(items, p.parseSelectItem())
		if !p.match(TOKEN_COMMA) {
			return items
		}
	}
}

func (p *Parser) parseSelectItem() SelectItem {
	if p.match(TOKEN_STAR) {
		return SelectItem{Star: true, Modifiers: p.parseStarModifiers()}
	}
	if isIdentLike(p.token) && p.checkPeek(TOKEN_DOT) && p.peek2.Type == TOKEN_STAR {
		table := p.token.Literal
		p.nextToken()
		p.nextToken()
		p.nextToken()
		return SelectItem{TableStar: table, Modifiers: p.parseStarModifiers()}
	}

	item := SelectItem{Expr: p.parseExpression()}
	switch {
	case p.match(TOKEN_AS):
		item.Alias = p.expectAlias()
	case p.check(TOKEN_IDENT), p.check(TOKEN_STRING):
		item.Alias = p.token.Literal
		p.nextToken()
	}
	return item
}

// parseStarModifiers parses any EXCLUDE, REPLACE and RENAME trailing a star.
func (p *Parser) parseStarModifiers() []StarModifier {
	var mods []StarModifier
	for p.check(TOKEN_IDENT) {
		switch strings.ToLower(p.token.Literal) {
		case "exclude":
			p.nextToken()
			if p.check(TOKEN_LPAREN) {
				mods = append(mods, &ExcludeModifier{Columns: p.parseIdentList()})
			} else {
				mods = append(mods, &ExcludeModifier{Columns: []string{p.expectIdent()}})
			}
		case "replace":
			p.nextToken()
			p.expect(TOKEN_LPAREN)
			m := &ReplaceModifier{}
			for {
				e := p.parseExpression()
				p.expect(TOKEN_AS)
				m.Items = append(m.Items, ReplaceItem{Expr: e, Alias: p.expectAlias()})
				if !p.match(TOKEN_COMMA) {
					break
				}
			}
			p.expect(TOKEN_RPAREN)
			mods = append(mods, m)
		case "rename":
			p.nextToken()
			p.expect(TOKEN_LPAREN)
			m := &RenameModifier{}
			for {
				old := p.expectIdent()
				p.expect(TOKEN_AS)
				m.Items = append(m.Items, RenameItem{Old: old, New: p.expectAlias()})
				if !p.match(TOKEN_COMMA) {
					break
				}
			}
			p.expect(TOKEN_RPAREN)
			mods = append(mods, m)
		default:
			return mods
		}
	}
	return mods
}

// parseOrderBy parses ORDER BY (ALL | expr [ASC|DESC] [NULLS FIRST|LAST], ...).
func (p *Parser) parseOrderBy() []OrderByItem {
	p.expect(TOKEN_ORDER)
	p.expect(TOKEN_BY)
	if p.match(TOKEN_ALL) {
		p.parseOrderSuffix(&OrderByItem{})
		return nil
	}
	var items []OrderByItem
	for {
		item := OrderByItem{Expr: p.parseExpression()}
		p.parseOrderSuffix(&item)
		items = append(items, item)
		if !p.match(TOKEN_COMMA) {
			return items
		}
	}
}

func (p *Parser) parseOrderSuffix(item *OrderByItem) {
	if p.match(TOKEN_DESC) {
		item.Desc = true
	} else {
		p.match(TOKEN_ASC)
	}
	if p.match(TOKEN_NULLS) {
		first := p.match(TOKEN_FIRST)
		if !first {
			p.expect(TOKEN_LAST)
		}
		item.NullsFirst = &first
	}
}

// parseWindowDefs parses name AS (spec), ... after WINDOW.
func (p *Parser) parseWindowDefs() []WindowDef {
	var defs []WindowDef
	for {
		name := p.expectIdent()
		p.expect(TOKEN_AS)
		p.expect(TOKEN_LPAREN)
		spec := p.parseWindowSpec()
		p.expect(TOKEN_RPAREN)
		defs = append(defs, WindowDef{Name: name, Spec: spec})
		if !p.match(TOKEN_COMMA) {
			return defs
		}
	}
}
