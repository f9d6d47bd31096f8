package moodle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-resty/resty/v2"
)

const RestEndpoint = "/webservice/rest/server.php"

const (
	FunctionSiteInfo         = "core_webservice_get_site_info"
	FunctionCourses          = "core_course_get_courses"
	FunctionCourseContents   = "core_course_get_contents"
	FunctionForumDiscussions = "mod_forum_get_forum_discussions_paginated"
	FunctionDiscussionPosts  = "mod_forum_get_forum_discussion_posts"
	FunctionAssignments      = "mod_assign_get_assignments"
	FunctionCalendarUpcoming = "core_calendar_get_calendar_upcoming_view"
	FunctionUsersById        = "core_user_get_users_by_id"
	FunctionCategories       = "core_course_get_categories"
	FunctionCoursesByField   = "core_course_get_courses_by_field"
	FunctionSearchCourses    = "core_course_search_courses"
)

// SiteCourseId is the front page course every installation has.
const SiteCourseId int64 = 1

// WebServiceError is the exception document the REST server answers with, usually with status 200.
type WebServiceError struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

func (e *WebServiceError) Error() string {
	return fmt.Sprintf("web service %s (%s): %s", e.Exception, e.ErrorCode, e.Message)
}

// WSClient calls the REST web service with a static token, there is no login flow.
type WSClient struct {
	Http  *resty.Client
	token string
}

func NewWSClient(opts ClientOptions, token string) (*WSClient, error) {
	client, err := newRestyClient(opts)
	if err != nil {
		return nil, err
	}
	return &WSClient{Http: client, token: token}, nil
}

// Call invokes a web service function and decodes the json answer into out.
// out may be nil, the body is still checked to be well-formed json.
func (c *WSClient) Call(ctx context.Context, function string, args url.Values, out interface{}) error {
	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParam("wstoken", c.token).
		SetQueryParam("wsfunction", function).
		SetQueryParam("moodlewsrestformat", "json").
		SetQueryParamsFromValues(args).
		Get(RestEndpoint)
	if err != nil {
		return fmt.Errorf("%s: %w", function, err)
	}
	if res.StatusCode() != http.StatusOK {
		return fmt.Errorf("%s: %w: %d", function, ErrUnexpectedStatus, res.StatusCode())
	}
	if err := decodeResponse(res.Body(), out); err != nil {
		return fmt.Errorf("%s: %w", function, err)
	}
	return nil
}

func decodeResponse(body []byte, out interface{}) error {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var wsErr WebServiceError
		if err := json.Unmarshal(body, &wsErr); err == nil && wsErr.Exception != "" {
			return &wsErr
		}
	}
	if out == nil {
		var raw json.RawMessage
		out = &raw
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *WSClient) SiteInfo(ctx context.Context) (SiteInfo, error) {
	var info SiteInfo
	err := c.Call(ctx, FunctionSiteInfo, nil, &info)
	return info, err
}

func (c *WSClient) Courses(ctx context.Context) ([]CourseInfo, error) {
	var courses []CourseInfo
	err := c.Call(ctx, FunctionCourses, nil, &courses)
	return courses, err
}

func (c *WSClient) CourseContents(ctx context.Context, courseId int64) ([]Section, error) {
	var sections []Section
	err := c.Call(ctx, FunctionCourseContents, url.Values{
		"courseid": {formatId(courseId)},
	}, &sections)
	return sections, err
}

func (c *WSClient) ForumDiscussions(ctx context.Context, forumId int64, page, perPage int) ([]Discussion, error) {
	var result struct {
		Discussions []Discussion `json:"discussions"`
	}
	err := c.Call(ctx, FunctionForumDiscussions, url.Values{
		"forumid": {formatId(forumId)},
		"page":    {strconv.Itoa(page)},
		"perpage": {strconv.Itoa(perPage)},
	}, &result)
	return result.Discussions, err
}

func (c *WSClient) DiscussionPosts(ctx context.Context, discussionId int64) error {
	return c.Call(ctx, FunctionDiscussionPosts, url.Values{
		"discussionid": {formatId(discussionId)},
	}, nil)
}

func (c *WSClient) Assignments(ctx context.Context, courseId int64) error {
	return c.Call(ctx, FunctionAssignments, url.Values{
		"courseids[0]": {formatId(courseId)},
	}, nil)
}

func (c *WSClient) CalendarUpcoming(ctx context.Context) error {
	return c.Call(ctx, FunctionCalendarUpcoming, nil, nil)
}

func (c *WSClient) UserById(ctx context.Context, userId int64) error {
	return c.Call(ctx, FunctionUsersById, url.Values{
		"userids[0]": {formatId(userId)},
	}, nil)
}

func (c *WSClient) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	err := c.Call(ctx, FunctionCategories, nil, &categories)
	return categories, err
}

func (c *WSClient) CoursesByField(ctx context.Context, field, value string) error {
	return c.Call(ctx, FunctionCoursesByField, url.Values{
		"field": {field},
		"value": {value},
	}, nil)
}

func (c *WSClient) SearchCourses(ctx context.Context, term string) error {
	return c.Call(ctx, FunctionSearchCourses, url.Values{
		"criterianame":  {"search"},
		"criteriavalue": {term},
	}, nil)
}

// CoursesFromInfo drops the site course, which is not a real course.
func CoursesFromInfo(infos []CourseInfo) []*Course {
	courses := make([]*Course, 0, len(infos))
	for _, info := range infos {
		if info.Id == SiteCourseId {
			continue
		}
		courses = append(courses, &Course{Id: info.Id, Name: info.FullName})
	}
	return courses
}

// ActivitiesFromContents flattens course sections, modules of unknown type are skipped.
func ActivitiesFromContents(sections []Section, courseId int64) []Activity {
	activities := make([]Activity, 0)
	for _, section := range sections {
		for _, module := range section.Modules {
			activityType := ActivityTypeFromModule(module.ModName)
			if activityType == Unknown {
				continue
			}
			activities = append(activities, Activity{
				Id:       module.Id,
				Instance: module.Instance,
				CourseId: courseId,
				Name:     module.Name,
				Type:     activityType,
				Url:      module.Url,
			})
		}
	}
	return activities
}

func formatId(id int64) string {
	return strconv.FormatInt(id, 10)
}
