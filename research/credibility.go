package research

import (
	"strings"
	"time"
)

type domainScore struct {
	domain string
	score  float64
}

var reputableDomains = []domainScore{
	{"wikipedia.org", 0.9},
	{"nature.com", 0.95},
	{"science.org", 0.95},
	{"nih.gov", 0.95},
	{"cdc.gov", 0.95},
	{"who.int", 0.95},
	{"ieee.org", 0.9},
	{"acm.org", 0.9},
	{"mit.edu", 0.95},
	{"harvard.edu", 0.95},
	{"stanford.edu", 0.95},
	{"arxiv.org", 0.85},
	{"jstor.org", 0.85},
	{"sciencedirect.com", 0.85},
	{"springer.com", 0.85},
	{"wiley.com", 0.85},
	{"ncbi.nlm.nih.gov", 0.95},
	{"pubmed.gov", 0.95},
}

var newsDomains = []domainScore{
	{"reuters.com", 0.85},
	{"apnews.com", 0.85},
	{"bbc.com", 0.8},
	{"nytimes.com", 0.8},
	{"wsj.com", 0.8},
	{"economist.com", 0.85},
	{"ft.com", 0.8},
	{"bloomberg.com", 0.8},
}

// Penalties added to the TLD score.
var lessReliableDomains = []domainScore{
	{"wordpress.com", -0.2},
	{"blogspot.com", -0.2},
	{"medium.com", -0.1},
	{"substack.com", -0.1},
	{"facebook.com", -0.3},
	{"twitter.com", -0.2},
	{"instagram.com", -0.3},
	{"tiktok.com", -0.3},
	{"reddit.com", -0.1},
}

var tldScores = map[string]float64{
	"edu": 0.9,
	"gov": 0.9,
	"org": 0.7,
}

const defaultDomainScore = 0.5

func matchDomain(domain string, table []domainScore) (float64, bool) {
	for _, d := range table {
		if domain == d.domain || strings.HasSuffix(domain, "."+d.domain) {
			return d.score, true
		}
	}
	return 0, false
}

// DomainCredibility scores a domain in [0.1, 0.95]. Known reputable and news
// domains (and their subdomains) have fixed scores; other domains get their
// TLD's score, lowered for blog and social platforms.
func DomainCredibility(domain string) float64 {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return defaultDomainScore
	}
	if s, ok := matchDomain(domain, reputableDomains); ok {
		return s
	}
	if s, ok := matchDomain(domain, newsDomains); ok {
		return s
	}

	base := defaultDomainScore
	if i := strings.LastIndexByte(domain, '.'); i >= 0 {
		if s, ok := tldScores[domain[i+1:]]; ok {
			base = s
		}
	}
	if penalty, ok := matchDomain(domain, lessReliableDomains); ok {
		return max(0.1, base+penalty)
	}
	return base
}

var (
	citationIndicators = []string{
		"cited by", "references", "bibliography", "et al.", "according to",
		"[1]", "[2]", "doi:", "doi.org", "pmid:", "isbn:",
	}
	academicIndicators = []string{
		"study", "research", "analysis", "evidence", "data", "findings",
		"methodology", "conclusion", "results show", "published in",
	}
	authorIndicators = []string{
		"professor", "dr.", "phd", "md", "researcher", "scientist",
		"expert", "specialist", "author", "journalist", "editor",
	}
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Score rates a result in [0.1, 0.9]: the domain score plus bonuses for
// citations, academic vocabulary, author credentials, snippet length and
// freshness. Freshness decays over five years on academic domains (> 0.8),
// one month on news domains (> 0.7) and one year elsewhere.
func Score(r Result, now time.Time) float64 {
	domain := r.Domain
	if domain == "" {
		domain = ExtractDomain(r.URL)
	}
	domainScore := DomainCredibility(domain)
	score := domainScore

	snippet := strings.ToLower(r.Snippet)
	if containsAny(snippet, citationIndicators) {
		score += 0.15
	}

	hits := 0
	for _, w := range academicIndicators {
		if strings.Contains(snippet, w) {
			hits++
		}
	}
	score += float64(hits) / float64(len(academicIndicators)) * 0.15

	if containsAny(snippet, authorIndicators) {
		score += 0.1
	}

	switch n := len(r.Snippet); {
	case n > 300:
		score += 0.1
	case n > 200:
		score += 0.05
	}

	published := r.Published
	if published.IsZero() && r.Date != "" {
		published = ParseDate(r.Date, now)
	}
	if !published.IsZero() {
		daysOld := now.Sub(published).Hours() / 24
		horizon := 365.0
		switch {
		case domainScore > 0.8:
			horizon = 1825
		case domainScore > 0.7:
			horizon = 30
		}
		score += max(0, 0.1*(1-float64(int(daysOld))/horizon))
	}

	return max(0.1, min(0.9, score))
}
