package research

import (
	"testing"
	"time"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"3 days ago", now.AddDate(0, 0, -3)},
		{"1 day ago", now.AddDate(0, 0, -1)},
		{"5 hours ago", now.Add(-5 * time.Hour)},
		{"30 minutes ago", now.Add(-30 * time.Minute)},
		{"2 weeks ago", now.AddDate(0, 0, -14)},
		{"2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"2024/05/01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"Mar 4, 2024", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"March 4, 2024", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"4 Mar 2024", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"Published 2023-11-20 by staff", time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC)},
		{"sometime last spring", time.Time{}},
	}
	for _, tc := range cases {
		got := ParseDate(tc.in, now)
		if !got.Equal(tc.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestExtractDomain(t *testing.T) {
	cases := map[string]string{
		"https://www.Nature.com/articles/x": "nature.com",
		"http://news.bbc.com/a":             "news.bbc.com",
		"arxiv.org/abs/2401.0001":           "arxiv.org",
		"https://example.org:8443/p":        "example.org",
		"":                                  "",
	}
	for in, want := range cases {
		if got := ExtractDomain(in); got != want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
