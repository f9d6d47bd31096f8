package moodle

import "strings"

type ActivityType string

const (
	Forum      ActivityType = "forum"
	Assignment ActivityType = "assignment"
	Quiz       ActivityType = "quiz"
	Resource   ActivityType = "resource"
	Page       ActivityType = "page"
	Book       ActivityType = "book"
	Unknown    ActivityType = "unknown"
)

// checked in order, the first matching substring wins
var urlActivityTypes = []struct {
	marker       string
	activityType ActivityType
}{
	{"mod/forum", Forum},
	{"mod/assign", Assignment},
	{"mod/quiz", Quiz},
	{"mod/resource", Resource},
	{"mod/page", Page},
	{"mod/book", Book},
}

var moduleActivityTypes = map[string]ActivityType{
	"forum":    Forum,
	"assign":   Assignment,
	"quiz":     Quiz,
	"resource": Resource,
	"page":     Page,
	"book":     Book,
}

// ActivityTypeFromURL classifies an activity link scraped from a course page.
func ActivityTypeFromURL(href string) ActivityType {
	for _, t := range urlActivityTypes {
		if strings.Contains(href, t.marker) {
			return t.activityType
		}
	}
	return Unknown
}

// ActivityTypeFromModule classifies a module by the modname reported by the web service.
func ActivityTypeFromModule(modname string) ActivityType {
	if t, ok := moduleActivityTypes[modname]; ok {
		return t
	}
	return Unknown
}
