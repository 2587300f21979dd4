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

// Package specindex builds and caches the (dist, version, arch) → spec file
// index described by §4.4: expanding provides.versions range syntax,
// crossing it with provides.arches, and sorting the result with a
// version-aware comparator.
package specindex

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/Masterminds/semver/v3"
)

var bracketGroup = regexp.MustCompile(`\[[^\]]*\]`)

// ExpandVersions expands a provides.versions template string against its
// bracketed range/list groups (§4.4):
//
//	"8.[3-5]"       -> 8.3, 8.4, 8.5
//	"12.[01-03]"    -> 12.01, 12.02, 12.03 (zero-padding of the range preserved)
//	"5.[1,9,10]"    -> 5.1, 5.9, 5.10
//
// Multiple bracket groups in one template are expanded as a cartesian
// product. A plain string with no bracket groups is returned verbatim.
func ExpandVersions(template string) ([]string, error) {
	locs := bracketGroup.FindAllStringIndex(template, -1)
	if len(locs) == 0 {
		return []string{template}, nil
	}

	groupValues := make([][]string, len(locs))
	for i, loc := range locs {
		raw := template[loc[0]+1 : loc[1]-1]
		vals, err := expandGroup(raw)
		if err != nil {
			return nil, fmt.Errorf("expanding %q in %q: %w", raw, template, err)
		}
		groupValues[i] = vals
	}

	var results []string
	var walk func(i int, chosen []string)
	walk = func(i int, chosen []string) {
		if i == len(locs) {
			var sb strings.Builder
			prev := 0
			for gi, loc := range locs {
				sb.WriteString(template[prev:loc[0]])
				sb.WriteString(chosen[gi])
				prev = loc[1]
			}
			sb.WriteString(template[prev:])
			results = append(results, sb.String())
			return
		}
		for _, v := range groupValues[i] {
			walk(i+1, append(chosen, v))
		}
	}
	walk(0, make([]string, 0, len(locs)))

	return results, nil
}

func expandGroup(raw string) ([]string, error) {
	hasDash := strings.Contains(raw, "-")
	hasComma := strings.Contains(raw, ",")

	switch {
	case hasDash && hasComma:
		return nil, fmt.Errorf("mixed range and list syntax in group %q", raw)
	case hasDash:
		parts := strings.SplitN(raw, "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid range %q", raw)
		}
		return expandRange(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	case hasComma:
		items := strings.Split(raw, ",")
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, strings.TrimSpace(it))
		}
		return out, nil
	default:
		return []string{raw}, nil
	}
}

func expandRange(startStr, endStr string) ([]string, error) {
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return nil, fmt.Errorf("invalid range start %q: %w", startStr, err)
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return nil, fmt.Errorf("invalid range end %q: %w", endStr, err)
	}
	if end < start {
		return nil, fmt.Errorf("range end %d is before start %d", end, start)
	}

	width := len(startStr)
	if len(endStr) > width {
		width = len(endStr)
	}

	out := make([]string, 0, end-start+1)
	for n := start; n <= end; n++ {
		out = append(out, fmt.Sprintf("%0*d", width, n))
	}
	return out, nil
}

// CompareVersions orders two version strings for the Spec Index's natural
// (version-aware) sort. Both operands are first tried as semver — most OS
// dist versions aren't valid semver (two components, leading zeros), so
// this falls back to a natural comparator that treats embedded digit runs
// as integers rather than comparing them lexically.
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return naturalCompare(a, b)
}

func naturalCompare(a, b string) int {
	ar, br := splitRuns(a), splitRuns(b)
	for i := 0; i < len(ar) && i < len(br); i++ {
		if c := compareRun(ar[i], br[i]); c != 0 {
			return c
		}
	}
	return len(ar) - len(br)
}

func compareRun(a, b string) int {
	an, aErr := strconv.Atoi(a)
	bn, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// splitRuns breaks a string into alternating runs of digits and non-digits,
// e.g. "rhel9.10" -> ["rhel", "9", ".", "10"].
func splitRuns(s string) []string {
	var runs []string
	var cur strings.Builder
	var curIsDigit bool

	for i, r := range s {
		isDigit := unicode.IsDigit(r)
		if i > 0 && isDigit != curIsDigit {
			runs = append(runs, cur.String())
			cur.Reset()
		}
		cur.WriteRune(r)
		curIsDigit = isDigit
	}
	if cur.Len() > 0 {
		runs = append(runs, cur.String())
	}
	return runs
}
