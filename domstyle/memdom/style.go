package memdom

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/deepresearch/domstyle"
)

const important = "!important"

type declaration struct {
	prop  string
	value string
}

// parseStyle splits an inline style attribute into declarations. The
// "!important" flag is stripped from values. Later duplicates win.
func parseStyle(s string) []declaration {
	var out []declaration
	index := make(map[string]int)
	for _, part := range splitDecls(s) {
		colon := strings.IndexByte(part, ':')
		if colon < 0 {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(part[:colon]))
		val := strings.TrimSpace(part[colon+1:])
		val = strings.TrimSpace(strings.TrimSuffix(val, important))
		if prop == "" {
			continue
		}
		if i, ok := index[prop]; ok {
			out[i].value = val
			continue
		}
		index[prop] = len(out)
		out = append(out, declaration{prop: prop, value: val})
	}
	return out
}

// splitDecls splits on ';' outside parentheses and quotes.
func splitDecls(s string) []string {
	var out []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == ';' && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func formatStyle(decls []declaration) string {
	var b strings.Builder
	for i, d := range decls {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(d.prop)
		b.WriteString(": ")
		b.WriteString(d.value)
		b.WriteString(" " + important + ";")
	}
	return b.String()
}

// setStyleLocked merges props into n's style attribute. Writing the same
// props twice yields a byte-identical attribute.
func setStyleLocked(n *html.Node, props domstyle.Properties) {
	decls := parseStyle(attr(n, "style"))
	index := make(map[string]int, len(decls))
	for i, d := range decls {
		index[d.prop] = i
	}
	for _, k := range props.Keys() {
		if i, ok := index[k]; ok {
			decls[i].value = props[k]
			continue
		}
		index[k] = len(decls)
		decls = append(decls, declaration{prop: k, value: props[k]})
	}
	setAttr(n, "style", formatStyle(decls))
}
