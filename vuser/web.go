package vuser

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ledokol-inc/moodle-load/load"
	"github.com/ledokol-inc/moodle-load/moodle"
)

const (
	homePath       = "/my/"
	coursePath     = "/course/view.php"
	calendarPath   = "/calendar/view.php"
	profilePath    = "/user/profile.php"
	categoriesPath = "/course/index.php"
	searchPath     = "/course/search.php"
)

// WebUser browses the site through html pages and a cookie session.
// It is either anonymous or authenticated, logging out starts a new login right away.
type WebUser struct {
	client       *moodle.WebClient
	credentials  Credentials
	rnd          *rand.Rand
	search       searchTerms
	reloginPause time.Duration

	loggedIn bool
	sesskey  string
	courses  []*moodle.Course
}

func NewWebFactory(cfg Config) load.BehaviorFactory {
	return func(user load.UserContext) (load.Behavior, error) {
		client, err := moodle.NewWebClient(moodle.ClientOptions{BaseUrl: cfg.BaseUrl, Timeout: cfg.Timeout})
		if err != nil {
			return nil, err
		}
		load.InstrumentClient(client.Http, user.TestName, user.ScenarioName)

		users := cfg.Users
		if len(users) == 0 {
			users = DefaultUsers
		}
		return NewWebUser(client, users[user.Rand.Intn(len(users))], user.Rand, cfg, user), nil
	}
}

func NewWebUser(client *moodle.WebClient, credentials Credentials, rnd *rand.Rand, cfg Config, user load.UserContext) *WebUser {
	return &WebUser{
		client:       client,
		credentials:  credentials,
		rnd:          rnd,
		search:       newSearchTerms(cfg, user),
		reloginPause: cfg.ReloginPause,
	}
}

func (wu *WebUser) LoggedIn() bool {
	return wu.loggedIn
}

func (wu *WebUser) Sesskey() string {
	return wu.sesskey
}

func (wu *WebUser) Courses() []*moodle.Course {
	return wu.courses
}

func (wu *WebUser) OnStart(ctx context.Context) {
	if err := wu.login(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("username", wu.credentials.Username).Msg("Login failed")
		return
	}
	if err := wu.loadCourses(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to load course list")
	}
}

func (wu *WebUser) Tasks() []load.Task {
	tasks := repertoire{
		home:       wu.accessHome,
		course:     wu.accessCourse,
		forum:      wu.accessForum,
		assignment: wu.accessAssignment,
		calendar:   wu.accessCalendar,
		profile:    wu.accessProfile,
		category:   wu.browseCategories,
		search:     wu.searchCourses,
	}.tasks()
	return append(tasks, load.Task{Name: taskLogout, Weight: 1, Tags: []string{"logout"}, Run: wu.logout})
}

// login starts from an empty cookie jar so nothing of a previous session survives.
func (wu *WebUser) login(ctx context.Context) error {
	logger := log.Ctx(ctx)
	logger.Info().Str("username", wu.credentials.Username).Msg("Logging in")

	if err := wu.client.ResetSession(); err != nil {
		return err
	}
	sesskey, err := wu.client.Login(ctx, wu.credentials.Username, wu.credentials.Password)
	if err != nil {
		return err
	}
	if sesskey == "" {
		logger.Warn().Str("username", wu.credentials.Username).Msg("Logged in but no sesskey found")
	} else {
		logger.Info().Str("username", wu.credentials.Username).Msg("Logged in")
	}
	wu.sesskey = sesskey
	wu.loggedIn = true
	return nil
}

func (wu *WebUser) loadCourses(ctx context.Context) error {
	doc, err := wu.client.Document(ctx, homePath, nil)
	if err != nil {
		return err
	}
	links := moodle.CourseLinks(doc)
	courses := make([]*moodle.Course, 0, len(links))
	for _, link := range links {
		courses = append(courses, &moodle.Course{Id: link.Id, Name: link.Name})
	}
	wu.courses = courses
	log.Ctx(ctx).Info().Int("courses", len(courses)).Msg("Course list loaded")
	return nil
}

func (wu *WebUser) accessHome(ctx context.Context) error {
	if !wu.loggedIn {
		return nil
	}
	_, err := wu.client.Page(ctx, homePath, nil)
	return err
}

func (wu *WebUser) accessCourse(ctx context.Context) error {
	if !wu.loggedIn || len(wu.courses) == 0 {
		return nil
	}
	course := wu.courses[wu.rnd.Intn(len(wu.courses))]
	log.Ctx(ctx).Debug().Int64("course", course.Id).Str("name", course.Name).Msg("Opening course")

	doc, err := wu.client.Document(ctx, coursePath, map[string]string{"id": strconv.FormatInt(course.Id, 10)})
	if err != nil {
		return fmt.Errorf("course %d: %w", course.Id, err)
	}
	course.Activities = moodle.ActivityLinks(doc, course.Id)
	return nil
}

func (wu *WebUser) accessForum(ctx context.Context) error {
	if !wu.loggedIn || len(wu.courses) == 0 {
		return nil
	}
	forums := activitiesOfType(wu.courses, moodle.Forum)
	if len(forums) == 0 {
		return nil
	}
	forum := forums[wu.rnd.Intn(len(forums))]
	log.Ctx(ctx).Debug().Int64("forum", forum.Id).Str("name", forum.Name).Msg("Opening forum")

	doc, err := wu.client.Document(ctx, forum.Url, nil)
	if err != nil {
		return fmt.Errorf("forum %d: %w", forum.Id, err)
	}
	discussions := moodle.DiscussionLinks(doc)
	if len(discussions) == 0 {
		return nil
	}
	discussion := discussions[wu.rnd.Intn(len(discussions))]
	if _, err := wu.client.Page(ctx, discussion.Href, nil); err != nil {
		return fmt.Errorf("discussion %d: %w", discussion.Id, err)
	}
	return nil
}

func (wu *WebUser) accessAssignment(ctx context.Context) error {
	if !wu.loggedIn || len(wu.courses) == 0 {
		return nil
	}
	assignments := activitiesOfType(wu.courses, moodle.Assignment)
	if len(assignments) == 0 {
		return nil
	}
	assignment := assignments[wu.rnd.Intn(len(assignments))]
	if _, err := wu.client.Page(ctx, assignment.Url, nil); err != nil {
		return fmt.Errorf("assignment %d: %w", assignment.Id, err)
	}
	return nil
}

func (wu *WebUser) accessCalendar(ctx context.Context) error {
	if !wu.loggedIn {
		return nil
	}
	_, err := wu.client.Page(ctx, calendarPath, nil)
	return err
}

func (wu *WebUser) accessProfile(ctx context.Context) error {
	if !wu.loggedIn {
		return nil
	}
	_, err := wu.client.Page(ctx, profilePath, nil)
	return err
}

func (wu *WebUser) browseCategories(ctx context.Context) error {
	if !wu.loggedIn {
		return nil
	}
	doc, err := wu.client.Document(ctx, categoriesPath, nil)
	if err != nil {
		return err
	}
	categories := moodle.CategoryLinks(doc)
	if len(categories) == 0 {
		return nil
	}
	category := categories[wu.rnd.Intn(len(categories))]
	if _, err := wu.client.Page(ctx, category.Href, nil); err != nil {
		return fmt.Errorf("category %d: %w", category.Id, err)
	}
	return nil
}

func (wu *WebUser) searchCourses(ctx context.Context) error {
	if !wu.loggedIn {
		return nil
	}
	term := wu.search.next(wu.rnd)
	log.Ctx(ctx).Debug().Str("term", term).Msg("Searching courses")
	_, err := wu.client.Page(ctx, searchPath, map[string]string{"q": term})
	return err
}

// logout keeps the session untouched when the request fails.
func (wu *WebUser) logout(ctx context.Context) error {
	if !wu.loggedIn {
		return nil
	}
	if err := wu.client.Logout(ctx, wu.sesskey); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("username", wu.credentials.Username).Msg("Logged out")
	wu.loggedIn = false
	wu.sesskey = ""
	wu.courses = nil

	if !pause(ctx, wu.reloginPause) {
		return ctx.Err()
	}
	if err := wu.login(ctx); err != nil {
		return fmt.Errorf("login after logout: %w", err)
	}
	return wu.loadCourses(ctx)
}

func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var _ load.Behavior = (*WebUser)(nil)
