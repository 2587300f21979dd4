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
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

var (
	reFullValue  = regexp.MustCompile(`%>([^<]*)<%`)
	reInline     = regexp.MustCompile(`>>([^<]*)<<`)
	reBasename   = regexp.MustCompile(`\+>([^<]*)<\+`)
	reDNS        = regexp.MustCompile(`\*>([^<]*)<\*`)
	reSecret     = regexp.MustCompile(`\|>([^<]*)<\|`)
	reNumeric    = regexp.MustCompile(`#>([^<]*)<#`)
	reEnv        = regexp.MustCompile(`\$>([^<]*)<\$`)
	reMD5Crypt   = regexp.MustCompile(`1>([^<]*)<1`)
	reSHA256     = regexp.MustCompile(`5>([^<]*)<5`)
	reSHA512     = regexp.MustCompile(`6>([^<]*)<6`)
	reExpression = regexp.MustCompile(`E>([^<]*)<E`)
	reSplice     = regexp.MustCompile(`^\[>([^<]*)<\]$`)
)

// spliceKey reports whether s is, in its entirety (after trimming), a sole
// action-12 splice marker, returning the key it names.
func spliceKey(s string) (string, bool) {
	m := reSplice.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// expandString runs actions 1 through 11 over s in their fixed order. A
// marker produced by one action is never re-scanned by an earlier one:
// each action's output becomes the next action's input. Actions 1, 2, and
// 11 can short-circuit the remaining actions by returning a non-string
// value when the whole (trimmed) string was a single marker of that kind.
func (e *Engine) expandString(s string) (any, error) {
	cur := any(s)

	steps := []func(string) (any, error){
		e.actionFullValue,
		e.actionInline,
		e.actionBasename,
		e.actionDNS,
		e.actionSecret,
		e.actionNumeric,
		e.actionEnv,
		e.actionMD5Crypt,
		e.actionSHA256Crypt,
		e.actionSHA512Crypt,
		e.actionExpression,
	}

	for _, step := range steps {
		str, ok := cur.(string)
		if !ok {
			// A previous action already produced a typed, final value;
			// nothing left to scan.
			return cur, nil
		}
		next, err := step(str)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// substitute is the shared engine for actions that replace `re` matches
// with the result of resolve(key). When the whole (trimmed) string is a
// single match, the resolved value's type is returned unchanged (type
// preservation); otherwise every match is stringified and spliced into the
// surrounding text.
func substitute(s string, re *regexp.Regexp, resolve func(key string) (any, bool, error)) (any, error) {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	if len(matches) == 1 && isWholeMatch(s, matches[0]) {
		key := s[matches[0][2]:matches[0][3]]
		val, found, err := resolve(key)
		if err != nil {
			return nil, err
		}
		if !found {
			return "", nil
		}
		return val, nil
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(s[last:m[0]])
		key := s[m[2]:m[3]]
		val, found, err := resolve(key)
		if err != nil {
			return nil, err
		}
		if found {
			sb.WriteString(fmt.Sprint(val))
		}
		last = m[1]
	}
	sb.WriteString(s[last:])
	return sb.String(), nil
}

func isWholeMatch(s string, m []int) bool {
	trimmed := strings.TrimSpace(s)
	matched := s[m[0]:m[1]]
	return trimmed == matched
}

// Action 1: %>key<% — full-value replacement, type-preserved on whole match.
func (e *Engine) actionFullValue(s string) (any, error) {
	return substitute(s, reFullValue, func(key string) (any, bool, error) {
		v, ok := e.Defs[key]
		return v, ok, nil
	})
}

// Action 2: >>key<< — inline substitution. A missing key on a whole-string
// match raises UnresolvedVariable (the strict variant chosen for the
// source's inconsistent behavior here); a missing key inside a larger
// string is treated as empty, matching actions 1, 3, and 4.
func (e *Engine) actionInline(s string) (any, error) {
	matches := reInline.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}
	if len(matches) == 1 && isWholeMatch(s, matches[0]) {
		key := s[matches[0][2]:matches[0][3]]
		v, ok := e.Defs[key]
		if !ok {
			return nil, oerrors.WithKind(oerrors.UnresolvedVariable,
				fmt.Errorf("template: %q is not defined", key))
		}
		return v, nil
	}
	return substitute(s, reInline, func(key string) (any, bool, error) {
		v, ok := e.Defs[key]
		return v, ok, nil
	})
}

// Action 3: +>key<+ — basename of the defs value. A missing key on a
// whole-string match raises UnresolvedVariable; inside a larger string it
// substitutes empty, matching actions 1, 2, and 4.
func (e *Engine) actionBasename(s string) (any, error) {
	matches := reBasename.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}
	if len(matches) == 1 && isWholeMatch(s, matches[0]) {
		key := s[matches[0][2]:matches[0][3]]
		v, ok := e.Defs[key]
		if !ok {
			return nil, oerrors.WithKind(oerrors.UnresolvedVariable,
				fmt.Errorf("template: %q is not defined", key))
		}
		return path.Base(fmt.Sprint(v)), nil
	}
	return substitute(s, reBasename, func(key string) (any, bool, error) {
		v, ok := e.Defs[key]
		if !ok {
			return nil, false, nil
		}
		return path.Base(fmt.Sprint(v)), true, nil
	})
}

// Action 4: *>key<* — DNS A-record resolution. A missing key raises
// UnresolvedVariable on a whole-string match, matching actions 2 and 3;
// a lookup failure for a key that is defined stays non-fatal (empty
// string) regardless of match position.
func (e *Engine) actionDNS(s string) (any, error) {
	matches := reDNS.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}
	if len(matches) == 1 && isWholeMatch(s, matches[0]) {
		key := s[matches[0][2]:matches[0][3]]
		v, ok := e.Defs[key]
		if !ok {
			return nil, oerrors.WithKind(oerrors.UnresolvedVariable,
				fmt.Errorf("template: %q is not defined", key))
		}
		if e.DNS == nil {
			return "", nil
		}
		addr, err := e.DNS.LookupHost(fmt.Sprint(v))
		if err != nil {
			return "", nil
		}
		return addr, nil
	}
	return substitute(s, reDNS, func(key string) (any, bool, error) {
		v, ok := e.Defs[key]
		if !ok || e.DNS == nil {
			return "", true, nil
		}
		addr, err := e.DNS.LookupHost(fmt.Sprint(v))
		if err != nil {
			return "", true, nil
		}
		return addr, true, nil
	})
}

// Action 5: |>path:key<| — Credential Provider lookup. An unresolvable
// path/key fails the build with SecretUnavailable.
func (e *Engine) actionSecret(s string) (any, error) {
	return substitute(s, reSecret, func(marker string) (any, bool, error) {
		secretPath, key := splitPathKey(marker)
		if e.Secrets == nil {
			return nil, false, oerrors.WithKind(oerrors.SecretUnavailable,
				fmt.Errorf("template: no credential provider configured for %q", marker))
		}
		v, err := e.Secrets.GetSecret(secretPath, key)
		if err != nil {
			return nil, false, oerrors.WithKind(oerrors.SecretUnavailable, err)
		}
		return v, true, nil
	})
}

// Action 6: #>expr<# — numeric expression over defs names using + - * /.
// A non-numeric operand fails with ExpressionError. Unlike actions 1, 2,
// and 11, the result is always rendered as text: the contract promises an
// integer, not a type-preserved defs value.
func (e *Engine) actionNumeric(s string) (any, error) {
	return substitute(s, reNumeric, func(expr string) (any, bool, error) {
		result, err := evalNumericExpr(expr, e.Defs)
		if err != nil {
			return nil, false, oerrors.WithKind(oerrors.ExpressionError,
				fmt.Errorf("template: evaluating %q: %w", expr, err))
		}
		return strconv.Itoa(result), true, nil
	})
}

// Action 7: $>NAME<$ — environment variable; missing yields empty string.
func (e *Engine) actionEnv(s string) (any, error) {
	return substitute(s, reEnv, func(name string) (any, bool, error) {
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", true, nil
		}
		return v, true, nil
	})
}

// Action 8: 1>path:key<1 — MD5-crypt ($1$…) of the retrieved secret.
func (e *Engine) actionMD5Crypt(s string) (any, error) {
	return e.substituteCrypt(s, reMD5Crypt, Md5Crypt)
}

// Action 9: 5>path:key<5 — SHA-256-crypt ($5$…).
func (e *Engine) actionSHA256Crypt(s string) (any, error) {
	return e.substituteCrypt(s, reSHA256, Sha256Crypt)
}

// Action 10: 6>path:key<6 — SHA-512-crypt ($6$…).
func (e *Engine) actionSHA512Crypt(s string) (any, error) {
	return e.substituteCrypt(s, reSHA512, Sha512Crypt)
}

func (e *Engine) substituteCrypt(s string, re *regexp.Regexp, hash func(password string) (string, error)) (any, error) {
	return substitute(s, re, func(marker string) (any, bool, error) {
		secretPath, key := splitPathKey(marker)
		if e.Secrets == nil {
			return nil, false, oerrors.WithKind(oerrors.SecretUnavailable,
				fmt.Errorf("template: no credential provider configured for %q", marker))
		}
		secret, err := e.Secrets.GetSecret(secretPath, key)
		if err != nil {
			return nil, false, oerrors.WithKind(oerrors.SecretUnavailable, err)
		}
		hashed, err := hash(secret)
		if err != nil {
			return nil, false, oerrors.WithKind(oerrors.SecretUnavailable, err)
		}
		return hashed, true, nil
	})
}

// Action 11: E>expression<E — arbitrary expression evaluation. Action-2
// markers inside the expression are pre-expanded as a pure textual pass
// before the expression is parsed and evaluated; the result keeps its
// native type.
func (e *Engine) actionExpression(s string) (any, error) {
	matches := reExpression.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	whole := len(matches) == 1 && isWholeMatch(s, matches[0])

	if whole {
		expr := s[matches[0][2]:matches[0][3]]
		pre, err := e.preExpandInline(expr)
		if err != nil {
			return nil, err
		}
		result, err := evalExpression(pre, e.Defs)
		if err != nil {
			return nil, oerrors.WithKind(oerrors.ExpressionError,
				fmt.Errorf("template: evaluating %q: %w", pre, err))
		}
		return result, nil
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(s[last:m[0]])
		expr := s[m[2]:m[3]]
		pre, err := e.preExpandInline(expr)
		if err != nil {
			return nil, err
		}
		result, err := evalExpression(pre, e.Defs)
		if err != nil {
			return nil, oerrors.WithKind(oerrors.ExpressionError,
				fmt.Errorf("template: evaluating %q: %w", pre, err))
		}
		sb.WriteString(fmt.Sprint(result))
		last = m[1]
	}
	sb.WriteString(s[last:])
	return sb.String(), nil
}

// preExpandInline textually replaces action-2 (>>key<<) markers inside an
// action-11 expression before it is parsed, per the pinned ordering of
// inner-marker expansion relative to the outer evaluation.
func (e *Engine) preExpandInline(expr string) (string, error) {
	result, err := substitute(expr, reInline, func(key string) (any, bool, error) {
		v, ok := e.Defs[key]
		return v, ok, nil
	})
	if err != nil {
		return "", err
	}
	if str, ok := result.(string); ok {
		return str, nil
	}
	return fmt.Sprint(result), nil
}

// splitPathKey splits a "path:key" marker on its last colon, since a vault
// path may itself contain colons but the key component never does.
func splitPathKey(marker string) (path, key string) {
	idx := strings.LastIndex(marker, ":")
	if idx < 0 {
		return marker, ""
	}
	return marker[:idx], marker[idx+1:]
}

// ContainsCredentialMarker reports whether s contains any of the four
// marker forms that require a Credential Provider (actions 5, 8, 9, 10).
// Callers use this to decide whether resolving a build needs one loaded at
// all before paying the cost of authenticating against it.
func ContainsCredentialMarker(s string) bool {
	return reSecret.MatchString(s) || reMD5Crypt.MatchString(s) ||
		reSHA256.MatchString(s) || reSHA512.MatchString(s)
}

// splitList splits a string on whitespace and commas for action 12's
// string-to-list splicing fallback.
func splitList(s string) []any {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, f)
	}
	return out
}
