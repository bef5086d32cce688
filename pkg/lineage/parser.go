package lineage

import (
	"fmt"
	"strings"
)

// Grammar, a DuckDB flavored SELECT subset:
//
//	statement     → [WITH [RECURSIVE] cte_list] select_body [;]
//	select_body   → select_core [(UNION|INTERSECT|EXCEPT) [ALL|DISTINCT] [BY NAME] select_body]
//	select_core   → SELECT [DISTINCT [ON (expr_list)]] select_list [FROM from_clause]
//	                [WHERE expr] [GROUP BY (ALL|expr_list)] [HAVING expr]
//	                [WINDOW window_defs] [QUALIFY expr] [ORDER BY order_list]
//	                [LIMIT expr] [OFFSET expr]

// ParseError is a syntax error with its position.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

const errUnexpectedToken = "unexpected token %s, expected %s"

// Parser parses SQL into an AST.
type Parser struct {
	lexer  *Lexer
	token  Token // current token
	peek   Token // lookahead token
	peek2  Token // second lookahead token
	err    *ParseError
	halted bool
}

// NewParser creates a parser for sql.
func NewParser(sql string) *Parser {
	p := &Parser{lexer: NewLexer(sql)}
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a single SELECT statement.
func Parse(sql string) (*SelectStmt, error) {
	p := NewParser(sql)
	stmt := p.parseStatement()
	if p.err != nil {
		return nil, p.err
	}
	return stmt, nil
}

// ---------- Token Helpers ----------

func (p *Parser) nextToken() {
	if p.halted {
		return
	}
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.NextToken()
}

func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

func (p *Parser) checkPeek(t TokenType) bool {
	return p.peek.Type == t
}

func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

func (p *Parser) expect(t TokenType) bool {
	if p.match(t) {
		return true
	}
	p.addError(fmt.Sprintf(errUnexpectedToken, p.describe(p.token), t))
	return false
}

// addError records the first error and halts the token stream at EOF so
// every parse loop unwinds.
func (p *Parser) addError(msg string) {
	if p.err == nil {
		p.err = &ParseError{Pos: p.token.Pos, Message: msg}
	}
	eof := Token{Type: TOKEN_EOF, Pos: p.token.Pos}
	p.token, p.peek, p.peek2 = eof, eof, eof
	p.halted = true
}

func (p *Parser) describe(tok Token) string {
	switch tok.Type {
	case TOKEN_IDENT, TOKEN_NUMBER, TOKEN_STRING, TOKEN_ILLEGAL:
		return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
	}
	return tok.Type.String()
}

// ---------- Identifier Helpers ----------

// isIdentLike reports whether tok can name a column, table or function.
func isIdentLike(tok Token) bool {
	return tok.Type == TOKEN_IDENT || softKeywords[tok.Type]
}

// identIs reports whether tok is the unreserved word w.
func identIs(tok Token, w string) bool {
	return tok.Type == TOKEN_IDENT && strings.EqualFold(tok.Literal, w)
}

// expectIdent consumes an identifier and returns its text.
func (p *Parser) expectIdent() string {
	if isIdentLike(p.token) {
		lit := p.token.Literal
		p.nextToken()
		return lit
	}
	p.addError(fmt.Sprintf(errUnexpectedToken, p.describe(p.token), "identifier"))
	return ""
}

// expectAlias consumes a name after AS, where keywords and strings are
// allowed: SELECT x AS "order", y AS 'first'.
func (p *Parser) expectAlias() string {
	if isIdentLike(p.token) || p.token.Type == TOKEN_STRING || p.token.Type >= TOKEN_ALL {
		lit := p.token.Literal
		p.nextToken()
		return lit
	}
	p.addError(fmt.Sprintf(errUnexpectedToken, p.describe(p.token), "alias"))
	return ""
}

// parseIdentList parses ( a, b, c ).
func (p *Parser) parseIdentList() []string {
	p.expect(TOKEN_LPAREN)
	var names []string
	for {
		names = append(names, p.expectIdent())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	p.expect(TOKEN_RPAREN)
	return names
}
