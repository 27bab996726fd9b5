// Package render turns chat message Markdown into sanitized HTML.
//
// Before Markdown conversion, $$...$$ and $...$ become MathJax spans
// (span.math-display, span.math-inline) and _x, _{..}, ^x, ^{..} become
// sub- and superscripts. Code spans, URLs and inline HTML are left alone by
// those rewrites. The converted HTML goes through a bluemonday policy that
// keeps the classes and pill colours research reports rely on.
package render

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Renderer converts Markdown to safe HTML. Safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New returns a Renderer with GitHub-flavoured Markdown and hard line
// breaks.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithUnsafe()),
		),
		policy: Policy(),
	}
}

// Policy is the sanitizer applied to rendered messages: bluemonday's UGC
// policy plus the math and citation markup.
func Policy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^(math-display|math-inline|source-link|credibility-pill)$`)).OnElements("span", "a")
	p.AllowAttrs("id").Matching(regexp.MustCompile(`^source-\d+$`)).OnElements("a")
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.AllowStyles("background-color").Matching(regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)).OnElements("span")
	p.RequireNoReferrerOnLinks(true)
	return p
}

// Render converts src to sanitized HTML.
func (r *Renderer) Render(src string) (template.HTML, error) {
	var ph placeholders
	src = ph.protectVerbatim(src)
	src = ph.protectMath(src)
	src = scripts(src)
	src = ph.restoreVerbatim(src)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render: markdown: %w", err)
	}
	out := ph.restoreMath(buf.String())
	return template.HTML(r.policy.Sanitize(out)), nil
}

// Text renders src, falling back to escaped text on error.
func (r *Renderer) Text(src string) template.HTML {
	h, err := r.Render(src)
	if err != nil {
		return template.HTML("<p>" + html.EscapeString(src) + "</p>")
	}
	return h
}

var (
	displayMath = regexp.MustCompile(`(?s)\$\$(.+?)\$\$`)
	inlineMath  = regexp.MustCompile(`\$([^\s$](?:[^$\n]*[^\s$])?)\$`)

	// Regions the script rewrite must not touch.
	verbatim = regexp.MustCompile("(?s)```.*?```|`[^`\n]+`|<[^>\n]+>|https?://[^\\s)>\\]]+|\\]\\([^)\\s]+\\)")

	subBraced = regexp.MustCompile(`_\{([^}]+)\}`)
	subSingle = regexp.MustCompile(`([A-Za-z0-9)\]])_([A-Za-z0-9])`)
	supBraced = regexp.MustCompile(`\^\{([^}]+)\}`)
	supSingle = regexp.MustCompile(`\^([A-Za-z0-9])`)
)

// scripts rewrites sub- and superscript notation to HTML.
func scripts(s string) string {
	s = subBraced.ReplaceAllString(s, "<sub>$1</sub>")
	s = subSingle.ReplaceAllString(s, "$1<sub>$2</sub>")
	s = supBraced.ReplaceAllString(s, "<sup>$1</sup>")
	s = supSingle.ReplaceAllString(s, "<sup>$1</sup>")
	return s
}

// placeholders swaps regions out of the text and back. Tokens are plain
// alphanumerics so Markdown leaves them alone.
type placeholders struct {
	math     []string
	verbatim []string
}

func token(kind string, i int) string { return fmt.Sprintf("DRX%s%dX", kind, i) }

func (p *placeholders) protectMath(s string) string {
	s = displayMath.ReplaceAllStringFunc(s, func(m string) string {
		expr := displayMath.FindStringSubmatch(m)[1]
		p.math = append(p.math, `<span class="math-display">\[`+html.EscapeString(expr)+`\]</span>`)
		return token("M", len(p.math)-1)
	})
	return inlineMath.ReplaceAllStringFunc(s, func(m string) string {
		expr := inlineMath.FindStringSubmatch(m)[1]
		p.math = append(p.math, `<span class="math-inline">\(`+html.EscapeString(expr)+`\)</span>`)
		return token("M", len(p.math)-1)
	})
}

func (p *placeholders) restoreMath(s string) string {
	for i := len(p.math) - 1; i >= 0; i-- {
		s = strings.ReplaceAll(s, token("M", i), p.math[i])
	}
	return s
}

func (p *placeholders) protectVerbatim(s string) string {
	return verbatim.ReplaceAllStringFunc(s, func(m string) string {
		p.verbatim = append(p.verbatim, m)
		return token("V", len(p.verbatim)-1)
	})
}

func (p *placeholders) restoreVerbatim(s string) string {
	for i := len(p.verbatim) - 1; i >= 0; i-- {
		s = strings.ReplaceAll(s, token("V", i), p.verbatim[i])
	}
	return s
}
