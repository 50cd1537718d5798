package hackerrank

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"hrexport/internal/fetch"
	"hrexport/internal/submission"
	"hrexport/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ChallengeId turns the href of a challenge link into the identifier used in
// submission keys, "/challenges/<slug>" becomes "<slug>" and anything else
// (contest challenges) keeps its full path.
func ChallengeId(href string) string {
	if parsed, err := url.Parse(href); err == nil {
		href = parsed.Path
	}
	id := strings.Trim(href, "/")
	slug, found := strings.CutPrefix(id, "challenges/")
	if found && !strings.Contains(slug, "/") {
		return slug
	}
	return id
}

// ProblemUrl is the inverse of ChallengeId, it points to the problem
// statement of a challenge.
func ProblemUrl(baseUrl, challenge string) string {
	base := strings.TrimSuffix(baseUrl, "/")
	if strings.Contains(challenge, "/") {
		return base + "/" + challenge + "/problem"
	}
	return base + "/challenges/" + challenge + "/problem"
}

func resolve(baseUrl *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	if !ref.IsAbs() && !strings.HasPrefix(ref.Path, "/") {
		ref.Path = "/" + ref.Path
	}
	return baseUrl.ResolveReference(ref).String(), nil
}

func parseTotalPages(doc *goquery.Document) int {
	total := 0
	doc.Find(".backbone").Each(func(_ int, s *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(s.AttrOr("data-attr8", "")))
		if err == nil && n > total {
			total = n
		}
	})
	return total
}

func parseSubmissionRow(row *goquery.Selection, baseUrl *url.URL) (submission.Summary, error) {
	challengeLink := row.Find("a.challenge-slug").First()
	href, ok := challengeLink.Attr("href")
	if !ok || strings.Trim(href, "/ ") == "" {
		return submission.Summary{}, fmt.Errorf("missing challenge link")
	}
	codeHref, ok := row.Find("a.btn").First().Attr("href")
	if !ok || strings.TrimSpace(codeHref) == "" {
		return submission.Summary{}, fmt.Errorf("missing code link")
	}

	challengeUrl, err := resolve(baseUrl, strings.TrimSuffix(strings.TrimSpace(href), "/")+"/problem")
	if err != nil {
		return submission.Summary{}, fmt.Errorf("challenge link: %w", err)
	}
	codeUrl, err := resolve(baseUrl, codeHref)
	if err != nil {
		return submission.Summary{}, fmt.Errorf("code link: %w", err)
	}

	language := htmlutil.Text(row.Find("div.submissions-language p"))
	if language == "" {
		return submission.Summary{}, fmt.Errorf("missing language")
	}

	return submission.Summary{
		Challenge:    ChallengeId(href),
		ChallengeUrl: challengeUrl,
		Language:     language,
		Name:         htmlutil.Text(challengeLink),
		Time:         htmlutil.Text(row.Find("div.submissions-time p")),
		Status:       htmlutil.Text(row.Find("div.span3 p")),
		Points:       htmlutil.Text(row.Find("div.span1 p")),
		CodeUrl:      codeUrl,
	}, nil
}

// parseSubmissionPage returns the entries of a submission list page in the
// order they are listed, along with the number of rows that could not be read.
func parseSubmissionPage(doc *goquery.Document, baseUrl *url.URL, first bool) (fetch.Page, int, error) {
	if doc.Find(".submissions_list").Length() == 0 ||
		doc.Find(".pagination-sub").Length() == 0 {
		return fetch.Page{}, 0, fmt.Errorf("%w: submission list not rendered", fetch.ErrNotReady)
	}

	page := fetch.Page{Entries: []submission.Summary{}}
	if first {
		page.TotalPages = parseTotalPages(doc)
	}

	skipped := 0
	doc.Find(".chronological-submissions-list-view").Each(func(_ int, row *goquery.Selection) {
		entry, err := parseSubmissionRow(row, baseUrl)
		if err != nil {
			skipped++
			return
		}
		page.Entries = append(page.Entries, entry)
	})
	return page, skipped, nil
}

var lineNumber = regexp.MustCompile(`^\d`)

// ParseCodeLines recovers source lines from the rendered text of the code
// viewer, where every source line is preceded by a line holding its number.
// A number directly following another number stands for an empty source line.
func ParseCodeLines(text string) []string {
	code := []string{}
	previousNumbered := false
	for _, line := range strings.Split(text, "\n") {
		numbered := lineNumber.MatchString(line)
		switch {
		case !numbered:
			code = append(code, line)
		case previousNumbered:
			code = append(code, "")
		}
		previousNumbered = numbered
	}
	return code
}

func parseCodeLines(viewer *goquery.Selection) []string {
	lines := viewer.Find(".CodeMirror-line")
	if lines.Length() > 0 {
		code := make([]string, 0, lines.Length())
		lines.Each(func(_ int, line *goquery.Selection) {
			text := ""
			if len(line.Nodes) > 0 {
				text = htmlutil.GetText(line.Nodes[0])
			}
			// codemirror renders empty lines as a zero width space
			code = append(code, strings.TrimRight(strings.ReplaceAll(text, "\u200b", ""), "\r"))
		})
		return code
	}
	if len(viewer.Nodes) == 0 {
		return []string{}
	}
	return ParseCodeLines(strings.Trim(htmlutil.GetText(viewer.Nodes[0]), "\n"))
}

func parseCodePage(doc *goquery.Document) (fetch.Detail, error) {
	viewer := doc.Find(".code-viewer").First()
	if viewer.Length() == 0 || doc.Find(".community-footer").Length() == 0 {
		return fetch.Detail{}, fmt.Errorf("%w: code viewer not rendered", fetch.ErrNotReady)
	}

	name := htmlutil.Text(doc.Find(".challenge-name"))
	if name == "" {
		name = htmlutil.Text(doc.Find("h1"))
	}

	return fetch.Detail{
		Code: parseCodeLines(viewer),
		Name: name,
	}, nil
}
