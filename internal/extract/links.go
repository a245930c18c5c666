package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/mopscov/internal/model"
)

var (
	readfilePattern = regexp.MustCompile(`readfile2\("([^"]+)","([^"]+)","([^"]+)"\)`)
	pdfNamePattern  = regexp.MustCompile(`([^/,"]+\.pdf)`)
)

// ResolveDownloadReference turns a listing link target into an absolute
// download URL. Script links of the form readfile2("kind","co_id","file")
// become a step=9 request against baseURL; other links resolve relative to it.
func ResolveDownloadReference(baseURL, href string) string {
	href = strings.TrimSpace(href)

	if strings.HasPrefix(strings.ToLower(href), "javascript:") {
		m := readfilePattern.FindStringSubmatch(href)
		if m == nil {
			return href
		}
		return fmt.Sprintf("%s?step=9&kind=%s&co_id=%s&filename=%s",
			baseURL, url.QueryEscape(m[1]), url.QueryEscape(m[2]), url.QueryEscape(m[3]))
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// filenameFromLink prefers link text ending in .pdf, then a .pdf name in the href
func filenameFromLink(text, href string) string {
	text = strings.TrimSpace(text)
	if strings.HasSuffix(text, ".pdf") {
		return text
	}
	if !strings.Contains(href, ".pdf") {
		return ""
	}
	if m := pdfNamePattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

// FindPDFLink locates the /pdf/*.pdf link on a step=9 download page and
// returns it as an absolute URL on origin
func FindPDFLink(markup, origin string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrParsing, err)
	}

	var path string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if strings.HasPrefix(href, "/pdf/") && strings.HasSuffix(href, ".pdf") {
			path = href
			return false
		}
		return true
	})

	// Some pages only carry the path inside script text
	if path == "" {
		if start := strings.Index(markup, "/pdf/"); start >= 0 {
			if end := strings.Index(markup[start:], ".pdf"); end >= 0 {
				path = markup[start : start+end+len(".pdf")]
			}
		}
	}

	if path == "" || strings.ContainsAny(path, "'\" <>") {
		return "", model.ErrNoPDFLink
	}

	return strings.TrimRight(origin, "/") + path, nil
}
