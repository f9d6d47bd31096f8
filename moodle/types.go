package moodle

type Course struct {
	Id   int64
	Name string
	// nil until the course contents were fetched for the first time
	Activities []Activity
}

func (course *Course) ActivitiesFetched() bool {
	return course.Activities != nil
}

func (course *Course) ActivitiesOfType(activityType ActivityType) []Activity {
	result := make([]Activity, 0)
	for _, activity := range course.Activities {
		if activity.Type == activityType {
			result = append(result, activity)
		}
	}
	return result
}

type Activity struct {
	Id int64
	// module instance id, only known for activities discovered through the web service
	Instance int64
	CourseId int64
	Name     string
	Type     ActivityType
	Url      string
}

type Link struct {
	Id   int64
	Name string
	Href string
}

type SiteInfo struct {
	UserId   int64  `json:"userid"`
	Username string `json:"username"`
	FullName string `json:"fullname"`
	SiteName string `json:"sitename"`
}

type CourseInfo struct {
	Id         int64  `json:"id"`
	ShortName  string `json:"shortname"`
	FullName   string `json:"fullname"`
	CategoryId int64  `json:"categoryid"`
}

type Section struct {
	Id      int64    `json:"id"`
	Name    string   `json:"name"`
	Modules []Module `json:"modules"`
}

type Module struct {
	Id       int64  `json:"id"`
	Instance int64  `json:"instance"`
	Name     string `json:"name"`
	ModName  string `json:"modname"`
	Url      string `json:"url"`
}

type Discussion struct {
	Id           int64  `json:"id"`
	DiscussionId int64  `json:"discussion"`
	Name         string `json:"name"`
}

// ThreadId returns the id accepted by mod_forum_get_forum_discussion_posts.
// Newer Moodle versions report the first post id in "id" and the thread id in "discussion".
func (discussion Discussion) ThreadId() int64 {
	if discussion.DiscussionId != 0 {
		return discussion.DiscussionId
	}
	return discussion.Id
}

type Category struct {
	Id     int64  `json:"id"`
	Name   string `json:"name"`
	Parent int64  `json:"parent"`
}
