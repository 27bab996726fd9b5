package render

import (
	"strings"
	"testing"
)

func render(t *testing.T, src string) string {
	t.Helper()
	out, err := New().Render(src)
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestRender_Markdown(t *testing.T) {
	out := render(t, "# Title\n\nSome **bold** text\nnext line\n\n- a\n- b")
	for _, want := range []string{`<h1 id="title">Title</h1>`, "<strong>bold</strong>", "<br", "<li>a</li>"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}

func TestRender_Math(t *testing.T) {
	out := render(t, "Energy $E = mc^2$ and\n\n$$\\int_0^1 x*y dx$$")
	if !strings.Contains(out, `<span class="math-inline">\(E = mc^2\)</span>`) {
		t.Errorf("inline math: %s", out)
	}
	if !strings.Contains(out, `<span class="math-display">\[\int_0^1 x*y dx\]</span>`) {
		t.Errorf("display math: %s", out)
	}
}

func TestRender_Prices(t *testing.T) {
	out := render(t, "It costs $5 and $10 today.")
	if strings.Contains(out, "math-inline") {
		t.Errorf("prices read as math: %s", out)
	}
}

func TestRender_Scripts(t *testing.T) {
	out := render(t, "Water is H_2O, CO_{2} too, and x^2 + 10^{-3}.")
	for _, want := range []string{"H<sub>2</sub>O", "CO<sub>2</sub>", "x<sup>2</sup>", "10<sup>-3</sup>"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}

func TestRender_CodeAndLinksUntouched(t *testing.T) {
	out := render(t, "Use `snake_case_name` or see [docs](https://example.com/a_b?x=1^2).")
	if !strings.Contains(out, "<code>snake_case_name</code>") {
		t.Errorf("code rewritten: %s", out)
	}
	if !strings.Contains(out, `href="https://example.com/a_b?x=1%5E2"`) && !strings.Contains(out, `href="https://example.com/a_b?x=1^2"`) {
		t.Errorf("link rewritten: %s", out)
	}
}

func TestRender_Sanitizes(t *testing.T) {
	out := render(t, `Hi <script>alert(1)</script><a href="javascript:alert(1)">x</a><img src=x onerror=alert(1)>`)
	for _, bad := range []string{"<script", "javascript:", "onerror"} {
		if strings.Contains(out, bad) {
			t.Errorf("%q survived: %s", bad, out)
		}
	}
}

func TestRender_KeepsReportMarkup(t *testing.T) {
	src := `Claim <a href="https://nature.com/x" target="_blank" class="source-link">[1]</a>` + "\n\n" +
		`<a id="source-1"></a>1. Nature <span class="credibility-pill" style="background-color: #28a745">High (0.95)</span>`
	out := render(t, src)
	for _, want := range []string{`class="source-link"`, `target="_blank"`, `id="source-1"`, `class="credibility-pill"`, `background-color: #28a745`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}

func TestText_NeverEmpty(t *testing.T) {
	if New().Text("plain") == "" {
		t.Fatal("empty output")
	}
}
