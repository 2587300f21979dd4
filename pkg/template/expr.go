/*
Copyright © 2024 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package template

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// --- Action 6: restricted numeric expression (names, + - * /, integer result) ---

func evalNumericExpr(expr string, defs map[string]any) (int, error) {
	toks, err := tokenizeNumeric(expr)
	if err != nil {
		return 0, err
	}
	p := &numericParser{toks: toks, defs: defs}
	v, err := p.parseAdditive()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.toks) {
		return 0, fmt.Errorf("unexpected trailing input at %q", p.toks[p.pos])
	}
	return v, nil
}

func tokenizeNumeric(expr string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(expr) {
		r := rune(expr[i])
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+' || r == '-' || r == '*' || r == '/':
			toks = append(toks, string(r))
			i++
		default:
			j := i
			for j < len(expr) && !strings.ContainsRune(" \t\n+-*/", rune(expr[j])) {
				j++
			}
			if j == i {
				return nil, fmt.Errorf("unexpected character %q in numeric expression", expr[i])
			}
			toks = append(toks, expr[i:j])
			i = j
		}
	}
	return toks, nil
}

type numericParser struct {
	toks []string
	pos  int
	defs map[string]any
}

func (p *numericParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *numericParser) parseAdditive() (int, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return 0, err
	}
	for p.peek() == "+" || p.peek() == "-" {
		op := p.toks[p.pos]
		p.pos++
		right, err := p.parseMultiplicative()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

func (p *numericParser) parseMultiplicative() (int, error) {
	left, err := p.parseOperand()
	if err != nil {
		return 0, err
	}
	for p.peek() == "*" || p.peek() == "/" {
		op := p.toks[p.pos]
		p.pos++
		right, err := p.parseOperand()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
	return left, nil
}

func (p *numericParser) parseOperand() (int, error) {
	if p.pos >= len(p.toks) {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	tok := p.toks[p.pos]
	p.pos++
	if n, err := strconv.Atoi(tok); err == nil {
		return n, nil
	}
	v, ok := p.defs[tok]
	if !ok {
		return 0, fmt.Errorf("%q is not a defined numeric operand", tok)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", tok)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%q is not numeric", tok)
	}
}

// --- Action 11: general restricted expression grammar ---
//
// literals, string concatenation (+), comparisons, ternary, membership
// (in), arithmetic, and startswith/endswith/len — deliberately small and
// bounded deliberately: this is not a general-purpose interpreter.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
}

func tokenizeExpr(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '[':
			toks = append(toks, token{tokLBracket, "["})
			i++
		case c == ']':
			toks = append(toks, token{tokRBracket, "]"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '\'' || c == '"':
			j := i + 1
			for j < len(s) && s[j] != c {
				j++
			}
			if j >= len(s) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, token{tokString, s[i+1 : j]})
			i = j + 1
		case strings.ContainsRune("+-*/", rune(c)):
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c == '=' && i+1 < len(s) && s[i+1] == '=':
			toks = append(toks, token{tokOp, "=="})
			i += 2
		case c == '!' && i+1 < len(s) && s[i+1] == '=':
			toks = append(toks, token{tokOp, "!="})
			i += 2
		case c == '!':
			toks = append(toks, token{tokOp, "!"})
			i++
		case c == '<' && i+1 < len(s) && s[i+1] == '=':
			toks = append(toks, token{tokOp, "<="})
			i += 2
		case c == '>' && i+1 < len(s) && s[i+1] == '=':
			toks = append(toks, token{tokOp, ">="})
			i += 2
		case c == '<' || c == '>':
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c == '&' && i+1 < len(s) && s[i+1] == '&':
			toks = append(toks, token{tokOp, "&&"})
			i += 2
		case c == '|' && i+1 < len(s) && s[i+1] == '|':
			toks = append(toks, token{tokOp, "||"})
			i += 2
		case unicode.IsDigit(rune(c)):
			j := i
			for j < len(s) && (unicode.IsDigit(rune(s[j])) || s[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i
			for j < len(s) && (unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j])) || s[j] == '_') {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q in expression", c)
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

type exprParser struct {
	toks []token
	pos  int
	defs map[string]any
}

func evalExpression(expr string, defs map[string]any) (any, error) {
	toks, err := tokenizeExpr(expr)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks, defs: defs}
	v, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("unexpected trailing token %q", p.cur().text)
	}
	return v, nil
}

func (p *exprParser) cur() token { return p.toks[p.pos] }

func (p *exprParser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

// parseTernary implements Python's conditional-expression grammar:
// "value if cond else alternative". value is parsed first; if what
// follows isn't the "if" keyword, it is the whole result. The alternative
// is parsed as another parseTernary so "a if b else c if d else e" chains
// right-associatively, matching Python itself.
func (p *exprParser) parseTernary() (any, error) {
	value, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !(p.cur().kind == tokIdent && p.cur().text == "if") {
		return value, nil
	}
	p.advance()
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !(p.cur().kind == tokIdent && p.cur().text == "else") {
		return nil, fmt.Errorf("expected 'else' in conditional expression")
	}
	p.advance()
	alternative, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return value, nil
	}
	return alternative, nil
}

func (p *exprParser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && p.cur().text == "||" {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}
	return left, nil
}

func (p *exprParser) parseAnd() (any, error) {
	left, err := p.parseMembership()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && p.cur().text == "&&" {
		p.advance()
		right, err := p.parseMembership()
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}
	return left, nil
}

func (p *exprParser) parseMembership() (any, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	if p.cur().kind == tokIdent && p.cur().text == "in" {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		return memberOf(left, right), nil
	}
	return left, nil
}

func (p *exprParser) parseEquality() (any, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && (p.cur().text == "==" || p.cur().text == "!=") {
		op := p.advance().text
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		eq := fmt.Sprint(left) == fmt.Sprint(right)
		if op == "==" {
			left = eq
		} else {
			left = !eq
		}
	}
	return left, nil
}

func (p *exprParser) parseComparison() (any, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && (p.cur().text == "<" || p.cur().text == "<=" || p.cur().text == ">" || p.cur().text == ">=") {
		op := p.advance().text
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		cmp, err := compareValues(left, right)
		if err != nil {
			return nil, err
		}
		switch op {
		case "<":
			left = cmp < 0
		case "<=":
			left = cmp <= 0
		case ">":
			left = cmp > 0
		case ">=":
			left = cmp >= 0
		}
	}
	return left, nil
}

func (p *exprParser) parseAdditive() (any, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && (p.cur().text == "+" || p.cur().text == "-") {
		op := p.advance().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left, err = applyAdditive(op, left, right)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *exprParser) parseMultiplicative() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && (p.cur().text == "*" || p.cur().text == "/") {
		op := p.advance().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lf, lok := toFloat(left)
		rf, rok := toFloat(right)
		if !lok || !rok {
			return nil, fmt.Errorf("arithmetic requires numeric operands")
		}
		if op == "*" {
			left = lf * rf
		} else {
			if rf == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			left = lf / rf
		}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (any, error) {
	if p.cur().kind == tokOp && p.cur().text == "!" {
		p.advance()
		v, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	}
	if p.cur().kind == tokOp && p.cur().text == "-" {
		p.advance()
		v, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("unary '-' requires a numeric operand")
		}
		return -f, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (any, error) {
	t := p.cur()
	switch {
	case t.kind == tokNumber:
		p.advance()
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			return f, err
		}
		n, err := strconv.Atoi(t.text)
		return n, err
	case t.kind == tokString:
		p.advance()
		return t.text, nil
	case t.kind == tokLParen:
		p.advance()
		v, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if p.cur().kind != tokRParen {
			return nil, fmt.Errorf("expected ')'")
		}
		p.advance()
		return v, nil
	case t.kind == tokLBracket:
		return p.parseArrayLiteral()
	case t.kind == tokIdent:
		return p.parseIdentOrCall()
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

func (p *exprParser) parseArrayLiteral() (any, error) {
	p.advance() // consume '['
	var items []any
	for p.cur().kind != tokRBracket {
		v, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	if p.cur().kind != tokRBracket {
		return nil, fmt.Errorf("expected ']'")
	}
	p.advance()
	return items, nil
}

func (p *exprParser) parseIdentOrCall() (any, error) {
	name := p.advance().text
	switch name {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	if p.cur().kind == tokLParen {
		p.advance()
		var args []any
		for p.cur().kind != tokRParen {
			v, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			args = append(args, v)
			if p.cur().kind == tokComma {
				p.advance()
				continue
			}
			break
		}
		if p.cur().kind != tokRParen {
			return nil, fmt.Errorf("expected ')' closing call to %q", name)
		}
		p.advance()
		return callBuiltin(name, args)
	}

	v, ok := p.defs[name]
	if !ok {
		return nil, fmt.Errorf("%q is not defined", name)
	}
	return v, nil
}

func callBuiltin(name string, args []any) (any, error) {
	switch name {
	case "len":
		if len(args) != 1 {
			return nil, fmt.Errorf("len() takes exactly one argument")
		}
		return lengthOf(args[0]), nil
	case "startswith":
		if len(args) != 2 {
			return nil, fmt.Errorf("startswith() takes exactly two arguments")
		}
		return strings.HasPrefix(fmt.Sprint(args[0]), fmt.Sprint(args[1])), nil
	case "endswith":
		if len(args) != 2 {
			return nil, fmt.Errorf("endswith() takes exactly two arguments")
		}
		return strings.HasSuffix(fmt.Sprint(args[0]), fmt.Sprint(args[1])), nil
	default:
		return nil, fmt.Errorf("unknown function %q", name)
	}
}

func lengthOf(v any) int {
	switch val := v.(type) {
	case string:
		return len(val)
	case []any:
		return len(val)
	default:
		return len(fmt.Sprint(val))
	}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case float64:
		return val != 0
	case nil:
		return false
	default:
		return true
	}
}

func memberOf(needle, haystack any) bool {
	switch hs := haystack.(type) {
	case []any:
		for _, item := range hs {
			if fmt.Sprint(item) == fmt.Sprint(needle) {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(hs, fmt.Sprint(needle))
	default:
		return false
	}
}

func applyAdditive(op string, left, right any) (any, error) {
	if op == "+" {
		lf, lok := toFloat(left)
		rf, rok := toFloat(right)
		if lok && rok {
			return lf + rf, nil
		}
		return fmt.Sprint(left) + fmt.Sprint(right), nil
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("'-' requires numeric operands")
	}
	return lf - rf, nil
}

func compareValues(left, right any) (int, error) {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	ls, rs := fmt.Sprint(left), fmt.Sprint(right)
	return strings.Compare(ls, rs), nil
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
