// Package moodletest provides an in-memory Moodle site for tests of clients and simulated users.
package moodletest

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/ledokol-inc/moodle-load/moodle"
)

const (
	SessionCookie = "MoodleSession"
	LoginToken    = "xLoginToken42"
	Sesskey       = "sEsSkEy123"
	Token         = "TOKEN_VALUE"
)

// Site answers the pages and web service functions simulated users touch.
// Hits are counted per path for pages and per function name for web service calls.
type Site struct {
	Server *httptest.Server

	Users       map[string]string
	Courses     []moodle.CourseInfo
	Contents    map[int64][]moodle.Section
	Discussions map[int64][]moodle.Discussion
	Categories  []moodle.Category
	// HideSesskey serves pages without a session key
	HideSesskey bool
	// HtmlFunctions answer with an html error page instead of json
	HtmlFunctions map[string]bool

	lock     sync.Mutex
	sessions map[string]string
	hits     map[string]int
	queries  map[string][]string
	next     int
}

func NewSite() *Site {
	site := &Site{
		Users: map[string]string{"student1": "password"},
		Courses: []moodle.CourseInfo{
			{Id: 1, ShortName: "site", FullName: "Moodle site"},
			{Id: 2, ShortName: "PROG101", FullName: "Introducción a la Programación"},
			{Id: 3, ShortName: "MATH201", FullName: "Matemáticas Avanzadas"},
		},
		Contents: map[int64][]moodle.Section{
			2: {{Id: 10, Name: "General", Modules: []moodle.Module{
				{Id: 101, Instance: 7, Name: "Foro de avisos", ModName: "forum"},
				{Id: 102, Instance: 8, Name: "Tarea 1", ModName: "assign"},
				{Id: 103, Instance: 9, Name: "Etiqueta", ModName: "label"},
			}}},
			3: {{Id: 11, Name: "General", Modules: []moodle.Module{
				{Id: 104, Instance: 10, Name: "Apuntes", ModName: "resource"},
			}}},
		},
		Discussions: map[int64][]moodle.Discussion{
			7: {{Id: 501, DiscussionId: 50, Name: "Bienvenida"}},
		},
		Categories: []moodle.Category{{Id: 1, Name: "Miscellaneous"}},
		sessions:   make(map[string]string),
		hits:       make(map[string]int),
		queries:    make(map[string][]string),
	}
	site.Server = httptest.NewServer(http.HandlerFunc(site.serve))
	return site
}

func (site *Site) URL() string {
	return site.Server.URL
}

func (site *Site) Close() {
	site.Server.Close()
}

func (site *Site) Hits(key string) int {
	site.lock.Lock()
	defer site.lock.Unlock()
	return site.hits[key]
}

func (site *Site) TotalHits() int {
	site.lock.Lock()
	defer site.lock.Unlock()
	total := 0
	for _, count := range site.hits {
		total += count
	}
	return total
}

// Queries returns the raw queries received for key, in order.
func (site *Site) Queries(key string) []string {
	site.lock.Lock()
	defer site.lock.Unlock()
	return append([]string(nil), site.queries[key]...)
}

func (site *Site) ResetHits() {
	site.lock.Lock()
	defer site.lock.Unlock()
	site.hits = make(map[string]int)
	site.queries = make(map[string][]string)
}

func (site *Site) record(key string, r *http.Request) {
	site.lock.Lock()
	defer site.lock.Unlock()
	site.hits[key]++
	site.queries[key] = append(site.queries[key], r.URL.RawQuery)
}

func (site *Site) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == moodle.RestEndpoint {
		site.record(r.URL.Query().Get("wsfunction"), r)
		site.serveWebService(w, r)
		return
	}
	site.record(r.URL.Path, r)

	switch r.URL.Path {
	case moodle.LoginPath:
		if r.Method == http.MethodPost {
			site.login(w, r)
			return
		}
		site.page(w, `<form action="/login/index.php" method="post">
<input type="hidden" name="logintoken" value="`+LoginToken+`">
<input type="text" name="username"><input type="password" name="password">
</form>`, "")
	case moodle.LogoutPath:
		site.logout(w, r)
	case "/":
		site.page(w, "<h1>Moodle</h1>", "")
	default:
		username, ok := site.user(r)
		if !ok {
			http.Redirect(w, r, moodle.LoginPath, http.StatusSeeOther)
			return
		}
		site.servePage(w, r, username)
	}
}

func (site *Site) servePage(w http.ResponseWriter, r *http.Request, username string) {
	id, _ := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	var body strings.Builder
	switch r.URL.Path {
	case "/my/":
		var list strings.Builder
		body.WriteString(`<nav class="breadcrumb">`)
		for _, course := range site.Courses {
			if course.Id == moodle.SiteCourseId {
				continue
			}
			fmt.Fprintf(&body, `<a href="/course/view.php?id=%d">%s</a>`, course.Id, html.EscapeString(course.ShortName))
			fmt.Fprintf(&list, `<div class="coursename"><a href="/course/view.php?id=%d">%s</a></div>`, course.Id, html.EscapeString(course.FullName))
		}
		body.WriteString(`</nav>`)
		body.WriteString(list.String())
	case "/course/view.php":
		body.WriteString(`<ul class="section">`)
		for _, section := range site.Contents[id] {
			for _, module := range section.Modules {
				fmt.Fprintf(&body, `<li class="activity"><div class="activityinstance"><a href="/mod/%s/view.php?id=%d">%s</a></div></li>`,
					module.ModName, module.Id, html.EscapeString(module.Name))
			}
		}
		body.WriteString(`</ul>`)
	case "/mod/forum/view.php":
		for _, discussion := range site.Discussions[site.instanceOf(id)] {
			fmt.Fprintf(&body, `<a href="/mod/forum/discuss.php?d=%d">%s</a>`, discussion.ThreadId(), html.EscapeString(discussion.Name))
		}
	case "/course/index.php":
		for _, category := range site.Categories {
			fmt.Fprintf(&body, `<a href="/course/category.php?id=%d">%s</a>`, category.Id, html.EscapeString(category.Name))
		}
	case "/mod/forum/discuss.php", "/mod/assign/view.php", "/mod/resource/view.php",
		"/calendar/view.php", "/user/profile.php", "/course/category.php", "/course/search.php":
		fmt.Fprintf(&body, "<p>%s</p>", html.EscapeString(username))
	default:
		http.NotFound(w, r)
		return
	}
	site.page(w, body.String(), Sesskey)
}

func (site *Site) instanceOf(moduleId int64) int64 {
	for _, sections := range site.Contents {
		for _, section := range sections {
			for _, module := range section.Modules {
				if module.Id == moduleId {
					return module.Instance
				}
			}
		}
	}
	return 0
}

func (site *Site) page(w http.ResponseWriter, content string, sesskey string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	config := ""
	if sesskey != "" && !site.HideSesskey {
		config = `<script>M.cfg = {"wwwroot":"http://moodle","sesskey":"` + sesskey + `"};</script>`
	}
	fmt.Fprintf(w, "<html><head>%s</head><body>%s</body></html>", config, content)
}

func (site *Site) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := r.PostForm.Get("username")
	password, known := site.Users[username]
	if r.PostForm.Get("logintoken") != LoginToken || !known || password != r.PostForm.Get("password") {
		site.page(w, `<div class="loginerrors"><a href="#" id="loginerrormessage">Invalid login, please try again</a></div>`, "")
		return
	}

	site.lock.Lock()
	site.next++
	session := "session" + strconv.Itoa(site.next)
	site.sessions[session] = username
	site.lock.Unlock()

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: session, Path: "/"})
	http.Redirect(w, r, "/my/", http.StatusSeeOther)
}

func (site *Site) logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookie)
	if err == nil && r.URL.Query().Get("sesskey") == Sesskey {
		site.lock.Lock()
		delete(site.sessions, cookie.Value)
		site.lock.Unlock()
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (site *Site) user(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	site.lock.Lock()
	defer site.lock.Unlock()
	username, ok := site.sessions[cookie.Value]
	return username, ok
}

// Sessions is the number of authenticated sessions still open.
func (site *Site) Sessions() int {
	site.lock.Lock()
	defer site.lock.Unlock()
	return len(site.sessions)
}

func (site *Site) serveWebService(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("wstoken") != Token {
		writeJson(w, moodle.WebServiceError{Exception: "moodle_exception", ErrorCode: "invalidtoken", Message: "Invalid token - token not found"})
		return
	}
	id := func(name string) int64 {
		value, _ := strconv.ParseInt(query.Get(name), 10, 64)
		return value
	}

	site.lock.Lock()
	broken := site.HtmlFunctions[query.Get("wsfunction")]
	site.lock.Unlock()
	if broken {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, "<html><body><p>Error reading from database</p></body></html>")
		return
	}

	switch query.Get("wsfunction") {
	case moodle.FunctionSiteInfo:
		writeJson(w, moodle.SiteInfo{UserId: 42, Username: "student1", FullName: "Juan García", SiteName: "Moodle"})
	case moodle.FunctionCourses:
		writeJson(w, site.Courses)
	case moodle.FunctionCourseContents:
		sections, ok := site.Contents[id("courseid")]
		if !ok {
			sections = []moodle.Section{}
		}
		writeJson(w, sections)
	case moodle.FunctionForumDiscussions:
		discussions, ok := site.Discussions[id("forumid")]
		if !ok {
			discussions = []moodle.Discussion{}
		}
		writeJson(w, map[string]interface{}{"discussions": discussions, "warnings": []string{}})
	case moodle.FunctionCategories:
		writeJson(w, site.Categories)
	case moodle.FunctionDiscussionPosts, moodle.FunctionAssignments, moodle.FunctionCalendarUpcoming,
		moodle.FunctionCoursesByField, moodle.FunctionSearchCourses:
		writeJson(w, map[string]interface{}{"warnings": []string{}})
	case moodle.FunctionUsersById:
		writeJson(w, []map[string]interface{}{{"id": id("userids[0]")}})
	default:
		writeJson(w, moodle.WebServiceError{Exception: "dml_missing_record_exception", ErrorCode: "invalidrecord", Message: "Can't find data record in database table external_functions."})
	}
}

func writeJson(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
