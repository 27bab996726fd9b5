package domstyle

import (
	"errors"
	"fmt"
	"strings"
)

// Element is the read-only view of a node that a Selector matches against.
// Parent must return an untyped nil at the top of the tree.
type Element interface {
	Tag() string
	Attr(key string) (string, bool)
	Parent() Element
}

// Selector is a parsed structural match predicate. It supports a subset of
// CSS:
//   - tag: "textarea", "button", "*"
//   - .class: ".stChatMessage"
//   - #id: "#root"
//   - [attr], [attr=val], [attr="val"]: "[data-testid=stChatMessageAvatar]"
//   - :not(compound): ":not([data-avatar-for-user=true])"
//   - descendant (space) and child (>) combinators
//
// The zero Selector matches nothing.
type Selector struct {
	text  string
	steps []step
}

type combinator int

const (
	descendant combinator = iota
	child
)

type step struct {
	comb combinator // relation to the previous step
	c    compound
}

type compound struct {
	tag     string
	ids     []string
	classes []string
	attrs   []attrCond
	not     []compound
}

type attrCond struct {
	key    string
	val    string
	hasVal bool
}

// Parse compiles a selector string.
func Parse(text string) (Selector, error) {
	p := &parser{s: strings.TrimSpace(text)}
	if p.s == "" {
		return Selector{}, errors.New("domstyle: empty selector")
	}
	sel := Selector{text: p.s}
	comb := descendant
	for {
		c, err := p.compound()
		if err != nil {
			return Selector{}, fmt.Errorf("domstyle: selector %q: %w", text, err)
		}
		sel.steps = append(sel.steps, step{comb: comb, c: c})

		ws := p.skipSpace()
		if p.eof() {
			break
		}
		if p.peek() == '>' {
			p.pos++
			p.skipSpace()
			comb = child
			continue
		}
		if !ws {
			return Selector{}, fmt.Errorf("domstyle: selector %q: unexpected %q at offset %d", text, p.peek(), p.pos)
		}
		comb = descendant
	}
	return sel, nil
}

// MustParse is Parse for static selectors; it panics on error.
func MustParse(text string) Selector {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the selector text, usable with querySelectorAll.
func (s Selector) String() string { return s.text }

// IsZero reports whether s was never parsed.
func (s Selector) IsZero() bool { return len(s.steps) == 0 }

// Match reports whether e satisfies the selector.
func (s Selector) Match(e Element) bool {
	if e == nil || len(s.steps) == 0 {
		return false
	}
	return s.matchAt(len(s.steps)-1, e)
}

func (s Selector) matchAt(i int, e Element) bool {
	if !s.steps[i].c.matches(e) {
		return false
	}
	if i == 0 {
		return true
	}
	if s.steps[i].comb == child {
		p := e.Parent()
		return p != nil && s.matchAt(i-1, p)
	}
	for p := e.Parent(); p != nil; p = p.Parent() {
		if s.matchAt(i-1, p) {
			return true
		}
	}
	return false
}

func (c compound) matches(e Element) bool {
	if c.tag != "" && !strings.EqualFold(e.Tag(), c.tag) {
		return false
	}
	for _, id := range c.ids {
		if v, _ := e.Attr("id"); v != id {
			return false
		}
	}
	if len(c.classes) > 0 {
		v, _ := e.Attr("class")
		have := strings.Fields(v)
		for _, want := range c.classes {
			if !containsToken(have, want) {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		v, ok := e.Attr(a.key)
		if !ok || (a.hasVal && v != a.val) {
			return false
		}
	}
	for _, n := range c.not {
		if n.matches(e) {
			return false
		}
	}
	return true
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

type parser struct {
	s   string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.s) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) skipSpace() bool {
	start := p.pos
	for !p.eof() && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t' || p.s[p.pos] == '\n') {
		p.pos++
	}
	return p.pos > start
}

func isIdentByte(b byte) bool {
	return b == '-' || b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() && isIdentByte(p.s[p.pos]) {
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) compound() (compound, error) {
	var c compound
	start := p.pos
	if p.peek() == '*' {
		p.pos++
	} else if isIdentByte(p.peek()) {
		c.tag = strings.ToLower(p.ident())
	}

	for more := true; more && !p.eof(); {
		switch p.peek() {
		case '.':
			p.pos++
			name := p.ident()
			if name == "" {
				return c, fmt.Errorf("empty class at offset %d", p.pos)
			}
			c.classes = append(c.classes, name)
		case '#':
			p.pos++
			name := p.ident()
			if name == "" {
				return c, fmt.Errorf("empty id at offset %d", p.pos)
			}
			c.ids = append(c.ids, name)
		case '[':
			a, err := p.attr()
			if err != nil {
				return c, err
			}
			c.attrs = append(c.attrs, a)
		case ':':
			if !strings.HasPrefix(p.s[p.pos:], ":not(") {
				return c, fmt.Errorf("unsupported pseudo-class at offset %d", p.pos)
			}
			p.pos += len(":not(")
			p.skipSpace()
			inner, err := p.compound()
			if err != nil {
				return c, err
			}
			p.skipSpace()
			if p.peek() != ')' {
				return c, fmt.Errorf("unterminated :not at offset %d", p.pos)
			}
			p.pos++
			c.not = append(c.not, inner)
		default:
			more = false
		}
	}

	if p.pos == start {
		return c, fmt.Errorf("expected selector at offset %d", p.pos)
	}
	return c, nil
}

func (p *parser) attr() (attrCond, error) {
	var a attrCond
	p.pos++ // '['
	p.skipSpace()
	a.key = p.ident()
	if a.key == "" {
		return a, fmt.Errorf("empty attribute name at offset %d", p.pos)
	}
	p.skipSpace()
	if p.peek() == '=' {
		p.pos++
		p.skipSpace()
		a.hasVal = true
		if q := p.peek(); q == '"' || q == '\'' {
			end := strings.IndexByte(p.s[p.pos+1:], q)
			if end < 0 {
				return a, fmt.Errorf("unterminated string at offset %d", p.pos)
			}
			a.val = p.s[p.pos+1 : p.pos+1+end]
			p.pos += end + 2
		} else {
			a.val = p.ident()
		}
		p.skipSpace()
	}
	if p.peek() != ']' {
		return a, fmt.Errorf("unterminated attribute at offset %d", p.pos)
	}
	p.pos++
	return a, nil
}
