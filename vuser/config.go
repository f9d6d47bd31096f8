package vuser

import (
	"context"
	"math/rand"
	"time"

	"github.com/ledokol-inc/moodle-load/load"
	"github.com/ledokol-inc/moodle-load/load/variables"
	"github.com/ledokol-inc/moodle-load/moodle"
)

// SearchVariable is the test variable that, when defined, replaces the search vocabulary.
const SearchVariable = "search"

type Credentials struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

var DefaultUsers = []Credentials{
	{Username: "student1", Password: "password"},
	{Username: "student2", Password: "password"},
	{Username: "student3", Password: "password"},
	{Username: "teacher1", Password: "password"},
	{Username: "admin", Password: "W0lf12345%"},
}

var DefaultSearchTerms = []string{"programación", "matemáticas", "ciencia", "historia", "inglés", "física", "química"}

const (
	DefaultToken        = "TOKEN_VALUE"
	DefaultReloginPause = time.Second
)

type Config struct {
	BaseUrl            string
	Timeout            time.Duration
	Token              string
	Users              []Credentials
	ReloginPause       time.Duration
	SearchTerms        []string
	SearchPattern      *variables.Variable
	MaxPrefetchCourses int
}

type searchTerms struct {
	terms   []string
	pattern *variables.Variable
}

// newSearchTerms prefers a per-test variable over the configured pattern over the vocabulary.
func newSearchTerms(cfg Config, user load.UserContext) searchTerms {
	terms := cfg.SearchTerms
	if len(terms) == 0 {
		terms = DefaultSearchTerms
	}
	pattern := cfg.SearchPattern
	if variable, ok := user.Variables[SearchVariable]; ok {
		pattern = variable
	}
	return searchTerms{terms: terms, pattern: pattern}
}

func (s searchTerms) next(rnd *rand.Rand) string {
	if s.pattern != nil {
		return s.pattern.Generate(rnd)
	}
	return s.terms[rnd.Intn(len(s.terms))]
}

const (
	taskHome       = "home"
	taskCourse     = "course"
	taskForum      = "forum"
	taskAssignment = "assignment"
	taskCalendar   = "calendar"
	taskProfile    = "profile"
	taskCategory   = "category"
	taskSearch     = "search"
	taskLogout     = "logout"
)

// repertoire is the set of actions both user variants share.
type repertoire struct {
	home       func(ctx context.Context) error
	course     func(ctx context.Context) error
	forum      func(ctx context.Context) error
	assignment func(ctx context.Context) error
	calendar   func(ctx context.Context) error
	profile    func(ctx context.Context) error
	category   func(ctx context.Context) error
	search     func(ctx context.Context) error
}

func (r repertoire) tasks() []load.Task {
	return []load.Task{
		{Name: taskHome, Weight: 3, Tags: []string{"home"}, Run: r.home},
		{Name: taskCourse, Weight: 5, Tags: []string{"courses"}, Run: r.course},
		{Name: taskForum, Weight: 2, Tags: []string{"activity", "forum"}, Run: r.forum},
		{Name: taskAssignment, Weight: 2, Tags: []string{"activity", "assignment"}, Run: r.assignment},
		{Name: taskCalendar, Weight: 1, Tags: []string{"calendar"}, Run: r.calendar},
		{Name: taskProfile, Weight: 1, Tags: []string{"profile"}, Run: r.profile},
		{Name: taskCategory, Weight: 1, Tags: []string{"category"}, Run: r.category},
		{Name: taskSearch, Weight: 1, Tags: []string{"search"}, Run: r.search},
	}
}

func activitiesOfType(courses []*moodle.Course, activityType moodle.ActivityType) []moodle.Activity {
	result := make([]moodle.Activity, 0)
	for _, course := range courses {
		result = append(result, course.ActivitiesOfType(activityType)...)
	}
	return result
}
