package research

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrEmptyReport = errors.New("research: empty report")
	ErrShortReport = errors.New("research: report content too short")
)

// minReportLen is the shortest content FormatReport accepts unless told to
// ignore length (partial content while streaming).
const minReportLen = 50

// FormatOptions tune FormatReport.
type FormatOptions struct {
	// IgnoreShort skips the minimum length check.
	IgnoreShort bool

	// ShowSources appends the numbered Sources section.
	ShowSources bool
}

var (
	citationGroup = regexp.MustCompile(`\[Source\s+\d+(?:(?:\s*,\s*|\s+and\s+)Source\s+\d+)*\]`)
	citationNum   = regexp.MustCompile(`Source\s+(\d+)`)
)

// FormatReport renders r for display: citations such as [Source 2],
// [Source 1, Source 3] or [Source 1 and Source 2] become links to the
// matching source, and with ShowSources a Sources section listing every
// source with its credibility pill is appended. The output is Markdown
// with inline HTML.
func FormatReport(r *Report, opts FormatOptions) (string, error) {
	if r == nil {
		return "", ErrEmptyReport
	}
	content := r.Content
	if !opts.IgnoreShort && len(strings.TrimSpace(content)) < minReportLen {
		return "", fmt.Errorf("%w: %d chars", ErrShortReport, len(strings.TrimSpace(content)))
	}

	urls := make(map[int]string, len(r.Sources))
	for i, src := range r.Sources {
		if src.URL != "" {
			urls[i+1] = src.URL
		}
	}

	content = citationGroup.ReplaceAllStringFunc(content, func(group string) string {
		nums := citationNum.FindAllStringSubmatch(group, -1)
		links := make([]string, 0, len(nums))
		for _, m := range nums {
			n, _ := strconv.Atoi(m[1])
			if u, ok := urls[n]; ok {
				links = append(links, fmt.Sprintf(`<a href="%s" target="_blank" class="source-link">[%d]</a>`, html.EscapeString(u), n))
			} else {
				links = append(links, fmt.Sprintf("[%d]", n))
			}
		}
		return strings.Join(links, " ")
	})

	if opts.ShowSources && len(r.Sources) > 0 {
		var b strings.Builder
		b.WriteString(content)
		b.WriteString("\n\n## Sources\n\n")
		for i, src := range r.Sources {
			title := src.Title
			if title == "" {
				title = fmt.Sprintf("Source %d", i+1)
			}
			fmt.Fprintf(&b, `<a id="source-%d"></a>%d. %s`, i+1, i+1, html.EscapeString(title))
			if src.URL != "" {
				fmt.Fprintf(&b, ` <a href="%s" target="_blank" class="source-link">Link</a>`, html.EscapeString(src.URL))
			}
			fmt.Fprintf(&b, ` <span class="credibility-pill" style="background-color: %s">%s (%.2f)</span>`+"\n\n",
				CredibilityColor(src.Credibility), CredibilityLabel(src.Credibility), src.Credibility)
		}
		content = b.String()
	}
	return content, nil
}

// CredibilityLabel buckets a score: High >= 0.8, Good >= 0.6, Medium >= 0.4,
// Low >= 0.2, Poor below. Scores outside [0, 1] are Medium.
func CredibilityLabel(c float64) string {
	switch {
	case c < 0 || c > 1:
		return "Medium"
	case c >= 0.8:
		return "High"
	case c >= 0.6:
		return "Good"
	case c >= 0.4:
		return "Medium"
	case c >= 0.2:
		return "Low"
	default:
		return "Poor"
	}
}

// CredibilityColor interpolates red (#dc3545) through yellow (#ffc107) to
// green (#28a745) as c goes from 0 through 0.5 to 1.
func CredibilityColor(c float64) string {
	var r, g, b int
	if c < 0.5 {
		r = int(220 - c*2*(220-255))
		g = int(53 + c*2*(193-53))
		b = int(69 + c*2*(7-69))
	} else {
		r = int(255 - (c-0.5)*2*(255-40))
		g = int(193 + (c-0.5)*2*(167-193))
		b = int(7 + (c-0.5)*2*(69-7))
	}
	clamp := func(v int) int { return max(0, min(255, v)) }
	return fmt.Sprintf("#%02x%02x%02x", clamp(r), clamp(g), clamp(b))
}
