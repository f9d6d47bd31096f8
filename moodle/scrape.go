package moodle

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const loginErrorMarker = "loginerrors"

var (
	sesskeyPattern    = regexp.MustCompile(`"sesskey":"([^"]+)"`)
	idPattern         = regexp.MustCompile(`[?&]id=(\d+)`)
	discussionPattern = regexp.MustCompile(`[?&]d=(\d+)`)
)

const (
	courseLinkMarker     = "course/view.php?id="
	discussionLinkMarker = "discuss.php"
	categoryLinkMarker   = "category.php"
	courseNameSelector   = ".coursename a"
	activitySelector     = ".activityinstance a, .activityname a, li.activity a.aalink"
)

// ParseDocument parses an html page. base is used to resolve relative links and may be nil.
func ParseDocument(body []byte, base *url.URL) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	doc.Url = base
	return doc, nil
}

func LoginToken(doc *goquery.Document) string {
	return doc.Find("input[name=logintoken]").AttrOr("value", "")
}

func Sesskey(body string) string {
	groups := sesskeyPattern.FindStringSubmatch(body)
	if len(groups) < 2 {
		return ""
	}
	return groups[1]
}

func HasLoginErrors(body string) bool {
	return strings.Contains(body, loginErrorMarker)
}

// CourseLinks prefers the course list entries, whose text is the full course name.
// Pages without them are scanned for any course link.
func CourseLinks(doc *goquery.Document) []Link {
	if links := findLinks(doc, doc.Find(courseNameSelector), courseLinkMarker, idPattern); len(links) > 0 {
		return links
	}
	return findLinks(doc, doc.Find("a[href]"), courseLinkMarker, idPattern)
}

func DiscussionLinks(doc *goquery.Document) []Link {
	return findLinks(doc, doc.Find("a[href]"), discussionLinkMarker, discussionPattern)
}

func CategoryLinks(doc *goquery.Document) []Link {
	return findLinks(doc, doc.Find("a[href]"), categoryLinkMarker, idPattern)
}

// ActivityLinks returns every activity of a course page including the ones of unknown type.
func ActivityLinks(doc *goquery.Document, courseId int64) []Activity {
	links := findLinks(doc, doc.Find(activitySelector), "", idPattern)
	activities := make([]Activity, 0, len(links))
	for _, link := range links {
		activities = append(activities, Activity{
			Id:       link.Id,
			CourseId: courseId,
			Name:     link.Name,
			Type:     ActivityTypeFromURL(link.Href),
			Url:      link.Href,
		})
	}
	return activities
}

// findLinks collects anchors whose href contains marker and an id matched by idRegexp.
// Links are deduplicated by id.
func findLinks(doc *goquery.Document, selection *goquery.Selection, marker string, idRegexp *regexp.Regexp) []Link {
	links := make([]Link, 0)
	seen := make(map[int64]bool)
	selection.Each(func(_ int, anchor *goquery.Selection) {
		href, ok := anchor.Attr("href")
		if !ok || href == "" || !strings.Contains(href, marker) {
			return
		}
		groups := idRegexp.FindStringSubmatch(href)
		if len(groups) < 2 {
			return
		}
		id, err := strconv.ParseInt(groups[1], 10, 64)
		if err != nil {
			return
		}
		if seen[id] {
			return
		}
		seen[id] = true
		links = append(links, Link{
			Id:   id,
			Name: strings.Join(strings.Fields(anchor.Text()), " "),
			Href: resolve(doc.Url, href),
		})
	})
	return links
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
