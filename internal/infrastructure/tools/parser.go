package tools

import (
	"math/big"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOperator
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(expr string) ([]token, error) {
	var out []token
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == ' ':
			i++
		case c >= '0' && c <= '9' || c == '.':
			start := i
			for i < len(expr) && (expr[i] >= '0' && expr[i] <= '9' || expr[i] == '.') {
				i++
			}
			out = append(out, token{kind: tokNumber, text: expr[start:i], pos: start})
		case c == '*' || c == '/':
			if i+1 < len(expr) && expr[i+1] == c {
				out = append(out, token{kind: tokOperator, text: expr[i : i+2], pos: i})
				i += 2
				continue
			}
			out = append(out, token{kind: tokOperator, text: string(c), pos: i})
			i++
		case c == '+' || c == '-' || c == '%':
			out = append(out, token{kind: tokOperator, text: string(c), pos: i})
			i++
		case c == '(':
			out = append(out, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			out = append(out, token{kind: tokRParen, text: ")", pos: i})
			i++
		default:
			return nil, evalErrorf("unexpected character %q at %d", c, i)
		}
	}
	out = append(out, token{kind: tokEOF, pos: len(expr)})
	return out, nil
}

type parser struct {
	tokens []token
	pos    int
}

// parse builds the syntax tree of an arithmetic expression.
//
//	expr   := term (('+' | '-') term)*
//	term   := unary (('*' | '/' | '%') unary)*
//	unary  := ('+' | '-') unary | power
//	power  := atom ['**' unary]
//	atom   := NUMBER | '(' expr ')'
func parse(expression string) (node, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, evalErrorf("empty expression")
	}
	tokens, err := tokenize(expression)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	tree, err := p.expr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, evalErrorf("unexpected %q at %d", tok.text, tok.pos)
	}
	return tree, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) acceptOperator(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOperator {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOperator("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		if tok := p.peek(); tok.kind == tokOperator && tok.text == "//" {
			return nil, evalErrorf("unsupported operator \"//\"")
		}
		op, ok := p.acceptOperator("*", "/", "%")
		if !ok {
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	if op, ok := p.acceptOperator("+", "-"); ok {
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op[0], operand: operand}, nil
	}
	return p.power()
}

func (p *parser) power() (node, error) {
	base, err := p.atom()
	if err != nil {
		return nil, err
	}
	if _, ok := p.acceptOperator("**"); ok {
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: "**", left: base, right: exp}, nil
	}
	return base, nil
}

func (p *parser) atom() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		value, err := parseNumber(tok.text)
		if err != nil {
			return nil, err
		}
		return literalNode{value: value}, nil
	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, evalErrorf("expected ')' at %d", closing.pos)
		}
		return inner, nil
	case tokEOF:
		return nil, evalErrorf("unexpected end of expression")
	default:
		return nil, evalErrorf("unexpected %q at %d", tok.text, tok.pos)
	}
}

func parseNumber(text string) (number, error) {
	if strings.Count(text, ".") > 1 || text == "." {
		return number{}, evalErrorf("malformed number %q", text)
	}
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return number{}, evalErrorf("malformed number %q", text)
		}
		return floatNumber(f), nil
	}
	if len(text) > 1 && text[0] == '0' && strings.Trim(text, "0") != "" {
		return number{}, evalErrorf("leading zeros in integer literal %q", text)
	}
	v, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return number{}, evalErrorf("malformed number %q", text)
	}
	return intNumber(v), nil
}
