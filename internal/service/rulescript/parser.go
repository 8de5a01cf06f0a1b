package rulescript

import (
	"fmt"
	"strconv"
)

type node interface{}

type (
	assignStmt struct {
		name string
		expr node
		line int
	}
	ifStmt struct {
		cond node
		then []node
		alt  []node
		line int
	}
	callStmt struct {
		call *callExpr
	}

	numberLit struct{ val float64 }
	stringLit struct{ val string }
	boolLit   struct{ val bool }
	varRef    struct {
		path []string
		line int
	}
	unaryExpr struct {
		op string
		x  node
	}
	binaryExpr struct {
		op   string
		l, r node
		line int
	}
	callExpr struct {
		name string
		args []node
		line int
	}
)

type parser struct {
	toks []token
	pos  int
}

// parse compiles a script into a statement list. Scripts are a flat
// sequence of assignments, if/else blocks, and capability calls.
func parse(src string) ([]node, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var stmts []node
	for p.peek().kind != tokEOF {
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func (p *parser) peek() token  { return p.toks[p.pos] }
func (p *parser) take() token  { t := p.toks[p.pos]; p.pos++; return t }
func (p *parser) at(k tokenKind) bool { return p.peek().kind == k }

func (p *parser) expect(k tokenKind, what string) (token, error) {
	if !p.at(k) {
		t := p.peek()
		return token{}, fmt.Errorf("line %d: expected %s, got %q", t.line, what, t.text)
	}
	return p.take(), nil
}

func (p *parser) statement() (node, error) {
	switch p.peek().kind {
	case tokIf:
		return p.ifStatement()
	case tokIdent:
		// lookahead distinguishes "x = ..." from "log(...)"
		if p.pos+1 < len(p.toks) && p.toks[p.pos+1].kind == tokLParen {
			expr, err := p.primary()
			if err != nil {
				return nil, err
			}
			call, ok := expr.(*callExpr)
			if !ok {
				return nil, fmt.Errorf("line %d: expected call statement", p.peek().line)
			}
			return &callStmt{call: call}, nil
		}
		name := p.take()
		if _, err := p.expect(tokAssign, "= after identifier"); err != nil {
			return nil, err
		}
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		return &assignStmt{name: name.text, expr: expr, line: name.line}, nil
	}
	t := p.peek()
	return nil, fmt.Errorf("line %d: unexpected %q", t.line, t.text)
}

func (p *parser) ifStatement() (node, error) {
	kw := p.take() // "if"
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	then, err := p.block()
	if err != nil {
		return nil, err
	}
	var alt []node
	if p.at(tokElse) {
		p.take()
		if p.at(tokIf) {
			nested, err := p.ifStatement()
			if err != nil {
				return nil, err
			}
			alt = []node{nested}
		} else {
			alt, err = p.block()
			if err != nil {
				return nil, err
			}
		}
	}
	return &ifStmt{cond: cond, then: then, alt: alt, line: kw.line}, nil
}

func (p *parser) block() ([]node, error) {
	if _, err := p.expect(tokLBrace, "{"); err != nil {
		return nil, err
	}
	var stmts []node
	for !p.at(tokRBrace) {
		if p.at(tokEOF) {
			return nil, fmt.Errorf("unexpected end of script, missing }")
		}
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	p.take() // }
	return stmts, nil
}

// expression parses with precedence climbing: || < && < comparison < additive < multiplicative < unary.
func (p *parser) expression() (node, error) {
	return p.orExpr()
}

func (p *parser) orExpr() (node, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.at(tokOp) && p.peek().text == "||" {
		op := p.take()
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: op.text, l: left, r: right, line: op.line}
	}
	return left, nil
}

func (p *parser) andExpr() (node, error) {
	left, err := p.cmpExpr()
	if err != nil {
		return nil, err
	}
	for p.at(tokOp) && p.peek().text == "&&" {
		op := p.take()
		right, err := p.cmpExpr()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: op.text, l: left, r: right, line: op.line}
	}
	return left, nil
}

func (p *parser) cmpExpr() (node, error) {
	left, err := p.addExpr()
	if err != nil {
		return nil, err
	}
	for p.at(tokOp) {
		switch p.peek().text {
		case "==", "!=", "<", "<=", ">", ">=":
			op := p.take()
			right, err := p.addExpr()
			if err != nil {
				return nil, err
			}
			left = &binaryExpr{op: op.text, l: left, r: right, line: op.line}
			continue
		}
		break
	}
	return left, nil
}

func (p *parser) addExpr() (node, error) {
	left, err := p.mulExpr()
	if err != nil {
		return nil, err
	}
	for p.at(tokOp) {
		switch p.peek().text {
		case "+", "-":
			op := p.take()
			right, err := p.mulExpr()
			if err != nil {
				return nil, err
			}
			left = &binaryExpr{op: op.text, l: left, r: right, line: op.line}
			continue
		}
		break
	}
	return left, nil
}

func (p *parser) mulExpr() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.at(tokOp) {
		switch p.peek().text {
		case "*", "/", "%":
			op := p.take()
			right, err := p.unary()
			if err != nil {
				return nil, err
			}
			left = &binaryExpr{op: op.text, l: left, r: right, line: op.line}
			continue
		}
		break
	}
	return left, nil
}

func (p *parser) unary() (node, error) {
	if p.at(tokOp) && (p.peek().text == "!" || p.peek().text == "-") {
		op := p.take()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{op: op.text, x: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.take()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad number %q", t.line, t.text)
		}
		return &numberLit{val: v}, nil
	case tokString:
		p.take()
		return &stringLit{val: t.text}, nil
	case tokTrue:
		p.take()
		return &boolLit{val: true}, nil
	case tokFalse:
		p.take()
		return &boolLit{val: false}, nil
	case tokLParen:
		p.take()
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return e, nil
	case tokIdent:
		p.take()
		if p.at(tokLParen) {
			p.take()
			var args []node
			for !p.at(tokRParen) {
				if len(args) > 0 {
					if _, err := p.expect(tokComma, ","); err != nil {
						return nil, err
					}
				}
				a, err := p.expression()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
			}
			p.take() // )
			return &callExpr{name: t.text, args: args, line: t.line}, nil
		}
		path := []string{t.text}
		for p.at(tokDot) {
			p.take()
			part, err := p.expect(tokIdent, "identifier after .")
			if err != nil {
				return nil, err
			}
			path = append(path, part.text)
		}
		return &varRef{path: path, line: t.line}, nil
	}
	return nil, fmt.Errorf("line %d: unexpected %q", t.line, t.text)
}
