package research

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/deepresearch/serper"
)

// Result is a scored search hit.
type Result struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Snippet     string    `json:"snippet"`
	Date        string    `json:"date,omitempty"`
	Published   time.Time `json:"published,omitzero"`
	Domain      string    `json:"domain"`
	Credibility float64   `json:"credibility"`
}

// NewResult converts a raw search hit and scores it at now.
func NewResult(r serper.Result, now time.Time) Result {
	res := Result{
		Title:     r.Title,
		URL:       r.Link,
		Snippet:   r.Snippet,
		Date:      r.Date,
		Published: ParseDate(r.Date, now),
		Domain:    ExtractDomain(r.Link),
	}
	res.Credibility = Score(res, now)
	return res
}

var relativeDate = regexp.MustCompile(`^(\d+)\s*(second|minute|hour|day|week|month|year)s?\s*ago$`)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-0700",
}

var embeddedDate = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}`)

// ParseDate understands the dates search engines attach to results:
// "N units ago" relative to now, a handful of absolute layouts, and an ISO
// date embedded in longer text. Anything else yields the zero time.
func ParseDate(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	if m := relativeDate.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}
		}
		switch m[2] {
		case "second":
			return now.Add(-time.Duration(n) * time.Second)
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute)
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour)
		case "day":
			return now.AddDate(0, 0, -n)
		case "week":
			return now.AddDate(0, 0, -7*n)
		case "month":
			return now.AddDate(0, -n, 0)
		case "year":
			return now.AddDate(-n, 0, 0)
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	if m := embeddedDate.FindString(s); m != "" {
		if t, err := time.Parse("2006-01-02", strings.ReplaceAll(m, "/", "-")); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ExtractDomain returns the lowercase host of rawURL without a leading
// "www.". A missing scheme is tolerated; garbage yields "".
func ExtractDomain(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
