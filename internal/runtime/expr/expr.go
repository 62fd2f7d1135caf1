// Package expr resolves {{ path }} bindings inside component props against a
// runtime context.
package expr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pagecraft/pagecraft/internal/page"
)

var bindingPattern = regexp.MustCompile(`\{\{\s*([^}]+)\s*\}\}`)

// Resolve resolves bindings inside v. Non-string values are returned unchanged.
func Resolve(v page.Value, ctx page.Map) page.Value {
	s, ok := v.AsString()
	if !ok {
		return v
	}
	return ResolveString(s, ctx)
}

// ResolveString resolves the bindings of a single string.
//
// A string consisting of exactly one binding (surrounding whitespace allowed)
// resolves to the bound value with its type preserved, including undefined.
// Otherwise every binding is replaced by the text form of its value and the
// result is a string; strings without bindings come back unchanged.
func ResolveString(s string, ctx page.Map) page.Value {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		matches := bindingPattern.FindAllStringSubmatchIndex(trimmed, -1)
		if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(trimmed) {
			path := trimmed[matches[0][2]:matches[0][3]]
			return Lookup(ctx, strings.TrimSpace(path))
		}
	}

	if !bindingPattern.MatchString(s) {
		return page.String(s)
	}

	out := bindingPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := bindingPattern.FindStringSubmatch(match)
		return Lookup(ctx, strings.TrimSpace(sub[1])).Text()
	})
	return page.String(out)
}

// ResolveMap returns a copy of m with every string resolved, descending into
// nested maps and lists
func ResolveMap(m page.Map, ctx page.Map) page.Map {
	out := make(page.Map, len(m))
	for k, v := range m {
		out[k] = resolveDeep(v, ctx)
	}
	return out
}

func resolveDeep(v page.Value, ctx page.Map) page.Value {
	switch v.Kind() {
	case page.KindString:
		return Resolve(v, ctx)
	case page.KindMap:
		m, _ := v.AsMap()
		return page.MapOf(ResolveMap(m, ctx))
	case page.KindList:
		items, _ := v.AsList()
		out := make([]page.Value, len(items))
		for i, item := range items {
			out[i] = resolveDeep(item, ctx)
		}
		return page.List(out...)
	default:
		return v
	}
}

// Lookup follows a dotted path such as "user.name" or "rows[0].id" through
// ctx. Missing segments yield undefined.
func Lookup(ctx page.Map, path string) page.Value {
	segments := splitPath(path)
	if len(segments) == 0 {
		return page.Undefined()
	}

	current := page.MapOf(ctx)
	for _, seg := range segments {
		switch current.Kind() {
		case page.KindMap:
			m, _ := current.AsMap()
			next, ok := m[seg]
			if !ok {
				return page.Undefined()
			}
			current = next
		case page.KindList:
			items, _ := current.AsList()
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(items) {
				return page.Undefined()
			}
			current = items[i]
		default:
			return page.Undefined()
		}
	}
	return current
}

// splitPath turns a.b[0]['c'] into [a b 0 c]
func splitPath(path string) []string {
	var segments []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			segments = append(segments, buf.String())
			buf.Reset()
		}
	}

	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '.':
			flush()
		case '[':
			flush()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				buf.WriteString(path[i:])
				i = len(path)
				continue
			}
			key := strings.Trim(path[i+1:i+end], `'" `)
			segments = append(segments, key)
			i += end
		default:
			buf.WriteByte(c)
		}
	}
	flush()
	return segments
}
