package vuser

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/ledokol-inc/moodle-load/load"
	"github.com/ledokol-inc/moodle-load/moodle"
)

const discussionsPerPage = 10

// ApiUser talks to the REST web service with a static token.
// It is authenticated for its whole lifetime and never logs out.
type ApiUser struct {
	client             *moodle.WSClient
	rnd                *rand.Rand
	search             searchTerms
	maxPrefetchCourses int

	siteInfo *moodle.SiteInfo
	courses  []*moodle.Course
}

func NewApiFactory(cfg Config) load.BehaviorFactory {
	return func(user load.UserContext) (load.Behavior, error) {
		token := cfg.Token
		if token == "" {
			token = DefaultToken
		}
		client, err := moodle.NewWSClient(moodle.ClientOptions{BaseUrl: cfg.BaseUrl, Timeout: cfg.Timeout}, token)
		if err != nil {
			return nil, err
		}
		load.InstrumentClient(client.Http, user.TestName, user.ScenarioName)
		return NewApiUser(client, user.Rand, cfg, user), nil
	}
}

func NewApiUser(client *moodle.WSClient, rnd *rand.Rand, cfg Config, user load.UserContext) *ApiUser {
	return &ApiUser{
		client:             client,
		rnd:                rnd,
		search:             newSearchTerms(cfg, user),
		maxPrefetchCourses: cfg.MaxPrefetchCourses,
	}
}

func (au *ApiUser) Courses() []*moodle.Course {
	return au.courses
}

func (au *ApiUser) SiteInfo() *moodle.SiteInfo {
	return au.siteInfo
}

// OnStart loads site info, the course list and then the contents of each course one after another.
func (au *ApiUser) OnStart(ctx context.Context) {
	logger := log.Ctx(ctx)

	info, err := au.client.SiteInfo(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get site info")
	} else {
		au.siteInfo = &info
		logger.Info().Str("username", info.Username).Msg("Site info loaded")
	}

	if err := au.loadCourses(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to load course list")
		return
	}

	for i, course := range au.courses {
		if au.maxPrefetchCourses > 0 && i >= au.maxPrefetchCourses {
			break
		}
		if err := au.loadContents(ctx, course); err != nil {
			logger.Error().Err(err).Int64("course", course.Id).Msg("Failed to load course contents")
		}
	}
}

func (au *ApiUser) Tasks() []load.Task {
	return repertoire{
		home:       au.accessHome,
		course:     au.accessCourse,
		forum:      au.accessForum,
		assignment: au.accessAssignment,
		calendar:   au.accessCalendar,
		profile:    au.accessProfile,
		category:   au.browseCategories,
		search:     au.searchCourses,
	}.tasks()
}

func (au *ApiUser) loadCourses(ctx context.Context) error {
	infos, err := au.client.Courses(ctx)
	if err != nil {
		return err
	}
	au.courses = moodle.CoursesFromInfo(infos)
	log.Ctx(ctx).Info().Int("courses", len(au.courses)).Msg("Course list loaded")
	return nil
}

func (au *ApiUser) loadContents(ctx context.Context, course *moodle.Course) error {
	sections, err := au.client.CourseContents(ctx, course.Id)
	if err != nil {
		return err
	}
	course.Activities = moodle.ActivitiesFromContents(sections, course.Id)
	log.Ctx(ctx).Debug().Int64("course", course.Id).Int("activities", len(course.Activities)).Msg("Course contents loaded")
	return nil
}

func (au *ApiUser) accessHome(ctx context.Context) error {
	_, err := au.client.SiteInfo(ctx)
	return err
}

func (au *ApiUser) accessCourse(ctx context.Context) error {
	if len(au.courses) == 0 {
		return nil
	}
	course := au.courses[au.rnd.Intn(len(au.courses))]
	if err := au.loadContents(ctx, course); err != nil {
		return fmt.Errorf("course %d: %w", course.Id, err)
	}
	return nil
}

func (au *ApiUser) accessForum(ctx context.Context) error {
	forums := activitiesOfType(au.courses, moodle.Forum)
	if len(forums) == 0 {
		return nil
	}
	forum := forums[au.rnd.Intn(len(forums))]
	forumId := forum.Instance
	if forumId == 0 {
		forumId = forum.Id
	}

	discussions, err := au.client.ForumDiscussions(ctx, forumId, 0, discussionsPerPage)
	if err != nil {
		return fmt.Errorf("forum %d: %w", forumId, err)
	}
	if len(discussions) == 0 {
		return nil
	}
	discussion := discussions[au.rnd.Intn(len(discussions))]
	if err := au.client.DiscussionPosts(ctx, discussion.ThreadId()); err != nil {
		return fmt.Errorf("discussion %d: %w", discussion.ThreadId(), err)
	}
	return nil
}

func (au *ApiUser) accessAssignment(ctx context.Context) error {
	assignments := activitiesOfType(au.courses, moodle.Assignment)
	if len(assignments) == 0 {
		return nil
	}
	assignment := assignments[au.rnd.Intn(len(assignments))]
	if err := au.client.Assignments(ctx, assignment.CourseId); err != nil {
		return fmt.Errorf("assignment %d: %w", assignment.Id, err)
	}
	return nil
}

func (au *ApiUser) accessCalendar(ctx context.Context) error {
	return au.client.CalendarUpcoming(ctx)
}

func (au *ApiUser) accessProfile(ctx context.Context) error {
	if au.siteInfo == nil || au.siteInfo.UserId == 0 {
		return nil
	}
	return au.client.UserById(ctx, au.siteInfo.UserId)
}

func (au *ApiUser) browseCategories(ctx context.Context) error {
	categories, err := au.client.Categories(ctx)
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		return nil
	}
	category := categories[au.rnd.Intn(len(categories))]
	return au.client.CoursesByField(ctx, "category", strconv.FormatInt(category.Id, 10))
}

func (au *ApiUser) searchCourses(ctx context.Context) error {
	term := au.search.next(au.rnd)
	log.Ctx(ctx).Debug().Str("term", term).Msg("Searching courses")
	return au.client.SearchCourses(ctx, term)
}

var _ load.Behavior = (*ApiUser)(nil)
