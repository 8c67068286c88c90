package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/malbeclabs/nlquery/pkg/dataset"
)

// Parser builds a Query from tokens with one token of lookahead.
type Parser struct {
	tokens []Token
	pos    int
	token  Token
	peek   Token
}

// Parse checks the text for disallowed keywords and parses it. It is the only
// way a Query is constructed from text.
func Parse(text string) (*Query, error) {
	if err := CheckSafety(text); err != nil {
		return nil, err
	}
	p := NewParser(text)
	return p.ParseQuery()
}

func NewParser(text string) *Parser {
	p := &Parser{tokens: NewLexer(text).Tokens()}
	p.token = p.at(0)
	p.peek = p.at(1)
	return p
}

func (p *Parser) at(i int) Token {
	if i < len(p.tokens) {
		return p.tokens[i]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) nextToken() {
	p.pos++
	p.token = p.at(p.pos)
	p.peek = p.at(p.pos + 1)
}

func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

func (p *Parser) expect(t TokenType) (Token, error) {
	tok := p.token
	if tok.Type != t {
		return tok, p.unexpected(t.String())
	}
	p.nextToken()
	return tok, nil
}

func (p *Parser) unexpected(expected string) error {
	if p.token.Type == TokenIllegal {
		msg := p.token.Literal
		if len(msg) == 1 {
			msg = fmt.Sprintf("illegal character %q", msg)
		}
		return &SyntaxError{Pos: p.token.Pos, Message: msg}
	}
	lit := p.token.Literal
	if p.token.Type == TokenEOF {
		lit = ""
	}
	return &SyntaxError{Pos: p.token.Pos, Message: fmt.Sprintf(errUnexpectedToken, p.token.Type, lit, expected)}
}

// ParseQuery parses:
//
//	SELECT items FROM name [WHERE pred] [GROUP BY cols] [ORDER BY keys] [LIMIT n] [;]
func (p *Parser) ParseQuery() (*Query, error) {
	if _, err := p.expect(TokenSelect); err != nil {
		return nil, err
	}
	q := &Query{}

	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	q.Select = items

	if _, err := p.expect(TokenFrom); err != nil {
		return nil, err
	}
	from, err := p.parseColumnRef()
	if err != nil {
		return nil, err
	}
	q.From = from
	if p.match(TokenAs) || p.check(TokenIdent) {
		if _, err := p.parseColumnRef(); err != nil {
			return nil, err
		}
	}

	if p.match(TokenWhere) {
		if q.Where, err = p.parseOr(); err != nil {
			return nil, err
		}
	}
	if p.match(TokenGroup) {
		if _, err := p.expect(TokenBy); err != nil {
			return nil, err
		}
		for {
			col, err := p.parseColumnRef()
			if err != nil {
				return nil, err
			}
			q.GroupBy = append(q.GroupBy, col)
			if !p.match(TokenComma) {
				break
			}
		}
	}
	if p.match(TokenOrder) {
		if _, err := p.expect(TokenBy); err != nil {
			return nil, err
		}
		for {
			item, err := p.parseOrderItem()
			if err != nil {
				return nil, err
			}
			q.OrderBy = append(q.OrderBy, item)
			if !p.match(TokenComma) {
				break
			}
		}
	}
	if p.match(TokenLimit) {
		tok, err := p.expect(TokenNumber)
		if err != nil {
			return nil, err
		}
		n, convErr := strconv.Atoi(tok.Literal)
		if convErr != nil || n < 0 {
			return nil, &SyntaxError{Pos: tok.Pos, Message: errInvalidLimit}
		}
		q.Limit = &n
	}

	for p.match(TokenSemicolon) {
	}
	if !p.check(TokenEOF) {
		return nil, p.unexpected("end of query")
	}
	return q, nil
}

func (p *Parser) parseSelectList() ([]SelectItem, error) {
	var items []SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.match(TokenComma) {
			return items, nil
		}
	}
}

func (p *Parser) parseSelectItem() (SelectItem, error) {
	if p.match(TokenStar) {
		return SelectItem{Star: true}, nil
	}

	var item SelectItem
	if p.check(TokenIdent) && p.peek.Type == TokenLParen {
		fn, star, distinct, col, err := p.parseCall()
		if err != nil {
			return item, err
		}
		item = SelectItem{Func: fn, Star: star, Distinct: distinct, Column: col}
	} else {
		col, err := p.parseColumnRef()
		if err != nil {
			return item, err
		}
		item.Column = col
	}

	switch {
	case p.match(TokenAs):
		alias, err := p.parseAlias()
		if err != nil {
			return item, err
		}
		item.Alias = alias
	case p.check(TokenIdent) || p.check(TokenQuotedIdent):
		item.Alias = p.token.Literal
		p.nextToken()
	}
	return item, nil
}

func (p *Parser) parseAlias() (string, error) {
	switch p.token.Type {
	case TokenIdent, TokenQuotedIdent, TokenString:
		alias := p.token.Literal
		p.nextToken()
		return alias, nil
	}
	return "", p.unexpected("alias")
}

// parseCall parses FUNC(*), FUNC(col) or COUNT(DISTINCT col).
func (p *Parser) parseCall() (AggFunc, bool, bool, string, error) {
	nameTok := p.token
	fn, ok := parseAggFunc(nameTok.Literal)
	if !ok {
		return AggNone, false, false, "", &SyntaxError{Pos: nameTok.Pos, Message: fmt.Sprintf(errUnsupportedFunc, strings.ToUpper(nameTok.Literal))}
	}
	p.nextToken()
	if _, err := p.expect(TokenLParen); err != nil {
		return AggNone, false, false, "", err
	}

	var star, distinct bool
	var col string
	switch {
	case p.check(TokenStar):
		if fn != AggCount {
			return AggNone, false, false, "", &SyntaxError{Pos: p.token.Pos, Message: fmt.Sprintf("%s(*) is not supported", fn)}
		}
		star = true
		p.nextToken()
	default:
		if p.check(TokenDistinct) {
			if fn != AggCount {
				return AggNone, false, false, "", &SyntaxError{Pos: p.token.Pos, Message: fmt.Sprintf("DISTINCT is only supported in COUNT, not %s", fn)}
			}
			distinct = true
			p.nextToken()
		}
		c, err := p.parseColumnRef()
		if err != nil {
			return AggNone, false, false, "", err
		}
		col = c
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return AggNone, false, false, "", err
	}
	return fn, star, distinct, col, nil
}

// parseColumnRef accepts bare or quoted identifiers and keeps the last part of
// a qualified name.
func (p *Parser) parseColumnRef() (string, error) {
	var name string
	switch p.token.Type {
	case TokenIdent, TokenQuotedIdent:
		name = p.token.Literal
		p.nextToken()
	default:
		return "", p.unexpected("column name")
	}
	for p.check(TokenDot) {
		p.nextToken()
		switch p.token.Type {
		case TokenIdent, TokenQuotedIdent:
			name = p.token.Literal
			p.nextToken()
		default:
			return "", p.unexpected("column name")
		}
	}
	return name, nil
}

func (p *Parser) parseOrderItem() (OrderItem, error) {
	var item OrderItem
	if p.check(TokenIdent) && p.peek.Type == TokenLParen {
		fn, star, distinct, col, err := p.parseCall()
		if err != nil {
			return item, err
		}
		if distinct {
			return item, &SyntaxError{Pos: p.token.Pos, Message: "COUNT(DISTINCT ...) in ORDER BY must be referenced by alias"}
		}
		item = OrderItem{Func: fn, Star: star, Column: col}
	} else {
		col, err := p.parseColumnRef()
		if err != nil {
			return item, err
		}
		item.Column = col
	}
	if p.match(TokenDesc) {
		item.Desc = true
	} else {
		p.match(TokenAsc)
	}
	return item, nil
}

// Predicate precedence, lowest first: OR, AND, NOT, comparison.

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(TokenOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.match(TokenAnd) {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.match(TokenNot) {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Expr: inner}, nil
	}
	return p.parsePredicate()
}

func (p *Parser) parsePredicate() (Expr, error) {
	if p.match(TokenLParen) {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return inner, nil
	}

	col, err := p.parseColumnRef()
	if err != nil {
		return nil, err
	}

	if p.match(TokenIs) {
		negated := p.match(TokenNot)
		if _, err := p.expect(TokenNull); err != nil {
			return nil, err
		}
		return &IsNull{Column: col, Negated: negated}, nil
	}

	var op dataset.Operator
	switch p.token.Type {
	case TokenEq:
		op = dataset.OpEq
	case TokenNe:
		op = dataset.OpNe
	case TokenLt:
		op = dataset.OpLt
	case TokenGt:
		op = dataset.OpGt
	case TokenLe:
		op = dataset.OpLe
	case TokenGe:
		op = dataset.OpGe
	case TokenLike:
		op = dataset.OpLike
	case TokenNot:
		if p.peek.Type != TokenLike {
			return nil, &SyntaxError{Pos: p.peek.Pos, Message: "expected LIKE after NOT"}
		}
		p.nextToken()
		op = dataset.OpNotLike
	default:
		return nil, p.unexpected("comparison operator")
	}
	p.nextToken()

	value, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &Compare{Column: col, Op: op, Value: value}, nil
}

// parseLiteral returns float64 for numbers, string, bool, or nil for NULL.
func (p *Parser) parseLiteral() (any, error) {
	negative := p.match(TokenMinus)
	tok := p.token
	switch tok.Type {
	case TokenNumber:
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf("invalid number %q", tok.Literal)}
		}
		p.nextToken()
		if negative {
			f = -f
		}
		return f, nil
	case TokenString:
		if !negative {
			p.nextToken()
			return tok.Literal, nil
		}
	case TokenTrue, TokenFalse, TokenNull:
		if !negative {
			p.nextToken()
			switch tok.Type {
			case TokenTrue:
				return true, nil
			case TokenFalse:
				return false, nil
			}
			return nil, nil
		}
	}
	return nil, p.unexpected("literal value")
}
