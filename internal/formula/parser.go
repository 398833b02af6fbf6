package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// 公式语法（仅覆盖校准表实际用到的部分）：
//
//	formula := "=" expr
//	expr    := operand { "-" operand }
//	operand := NUMBER | CELL | FUNC "(" CELL ":" CELL ")"
//	FUNC    := MAX | MIN | AVERAGE | STDEV

type node interface {
	eval(lookup CellLookup) Value
	refs(dst []Address) []Address
}

// parseError 携带写入单元格的错误标记
type parseError struct {
	code ErrorValue
	msg  string
}

func (e *parseError) Error() string { return e.msg }

func syntaxErr(format string, args ...any) error {
	return &parseError{code: ErrSyntax, msg: fmt.Sprintf(format, args...)}
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokMinus
	tokLParen
	tokRParen
	tokColon
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case ch == '-':
			toks = append(toks, token{kind: tokMinus, text: "-"})
			i++
		case ch == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case ch == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		case ch == ':':
			toks = append(toks, token{kind: tokColon, text: ":"})
			i++
		case (ch >= '0' && ch <= '9') || ch == '.':
			j := i
			for j < len(s) && ((s[j] >= '0' && s[j] <= '9') || s[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: s[i:j]})
			i = j
		case (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z'):
			j := i
			for j < len(s) && ((s[j] >= 'A' && s[j] <= 'Z') || (s[j] >= 'a' && s[j] <= 'z') || (s[j] >= '0' && s[j] <= '9')) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: strings.ToUpper(s[i:j])})
			i = j
		default:
			return nil, syntaxErr("无法识别的字符 %q", ch)
		}
	}
	return append(toks, token{kind: tokEOF}), nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != k {
		return t, syntaxErr("期望 %s，实际为 %q", what, t.text)
	}
	return t, nil
}

// parse 解析以 "=" 开头的公式
func parse(expr string) (node, error) {
	s := strings.TrimSpace(expr)
	if !strings.HasPrefix(s, "=") {
		return nil, syntaxErr("公式必须以 = 开头: %q", expr)
	}
	toks, err := tokenize(s[1:])
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, syntaxErr("多余的内容 %q", t.text)
	}
	return n, nil
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokMinus {
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		left = &subNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseOperand() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, syntaxErr("无效的数字 %q", t.text)
		}
		return &numNode{v: f}, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(t.text)
		}
		addr, err := ParseAddress(t.text)
		if err != nil {
			return nil, &parseError{code: ErrName, msg: err.Error()}
		}
		return &refNode{addr: addr}, nil
	default:
		return nil, syntaxErr("期望操作数，实际为 %q", t.text)
	}
}

func (p *parser) parseCall(name string) (node, error) {
	agg, ok := aggregates[name]
	if !ok {
		return nil, &parseError{code: ErrName, msg: fmt.Sprintf("不支持的函数 %s", name)}
	}
	p.next() // (
	from, err := p.expect(tokIdent, "单元格地址")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColon, ":"); err != nil {
		return nil, err
	}
	to, err := p.expect(tokIdent, "单元格地址")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	rng, err := ParseRange(from.text + ":" + to.text)
	if err != nil {
		return nil, &parseError{code: ErrRef, msg: err.Error()}
	}
	return &aggNode{name: name, fn: agg, rng: rng}, nil
}
