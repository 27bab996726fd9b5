package research

import (
	"math"
	"strings"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestDomainCredibility(t *testing.T) {
	cases := map[string]float64{
		"nature.com":           0.95,
		"ncbi.nlm.nih.gov":     0.95,
		"en.wikipedia.org":     0.9,
		"arxiv.org":            0.85,
		"reuters.com":          0.85,
		"bbc.com":              0.8,
		"cs.example.edu":       0.9,
		"agency.gov":           0.9,
		"example.org":          0.7,
		"example.com":          0.5,
		"someone.blogspot.com": 0.3,
		"medium.com":           0.4,
		"facebook.com":         0.2,
		"":                     0.5,
	}
	for d, want := range cases {
		if got := DomainCredibility(d); !approx(got, want) {
			t.Errorf("DomainCredibility(%q) = %v, want %v", d, got, want)
		}
	}
}

func TestScore_Bounds(t *testing.T) {
	low := Score(Result{URL: "https://tiktok.com/@x", Snippet: "lol"}, now)
	if !approx(low, 0.2) {
		t.Errorf("tiktok score = %v, want 0.2", low)
	}

	rich := Result{
		URL: "https://www.nature.com/articles/abc",
		Snippet: "A new study by Dr. Smith et al. presents research findings and data analysis; " +
			strings.Repeat("evidence ", 40),
		Date: "2 days ago",
	}
	if got := Score(rich, now); !approx(got, 0.9) {
		t.Errorf("rich score = %v, want clamp to 0.9", got)
	}
}

func TestScore_Components(t *testing.T) {
	base := Result{URL: "https://example.com/post", Snippet: "plain words"}
	if got := Score(base, now); !approx(got, 0.5) {
		t.Fatalf("base = %v", got)
	}

	cited := base
	cited.Snippet = "according to the report"
	if got := Score(cited, now); !approx(got, 0.65) {
		t.Errorf("citation bonus: %v", got)
	}

	academic := base
	academic.Snippet = "study research"
	if got := Score(academic, now); !approx(got, 0.5+0.2*0.15) {
		t.Errorf("academic bonus: %v", got)
	}

	fresh := base
	fresh.Date = now.Format("2006-01-02")
	if got := Score(fresh, now); !approx(got, 0.6) {
		t.Errorf("fresh bonus: %v", got)
	}

	old := base
	old.Date = "2019-01-01"
	if got := Score(old, now); !approx(got, 0.5) {
		t.Errorf("stale result got freshness bonus: %v", got)
	}
}

func TestScore_NewsAgesFast(t *testing.T) {
	r := Result{URL: "https://bbc.com/x", Snippet: "x", Date: "15 days ago"}
	if got := Score(r, now); !approx(got, 0.8+0.05) {
		t.Errorf("news half-life: %v", got)
	}
}
