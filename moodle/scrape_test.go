package moodle

import (
	"net/url"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dashboardPage = `<html><head>
<script>M.cfg = {"wwwroot":"https://moodle.example","sesskey":"AbC123xyz","themerev":"1"};</script>
</head><body>
<nav><a href="https://moodle.example/course/view.php?id=2">PROG101</a></nav>
<div class="course-list">
  <div class="coursename"><a href="https://moodle.example/course/view.php?id=2">
      Introducción a la
      Programación</a></div>
  <div class="coursename"><a href="/course/view.php?id=3&section=1">Matemáticas Avanzadas</a></div>
  <div class="coursename"><a href="/course/view.php?name=x">No id</a></div>
  <a href="/user/profile.php?id=2">Profile</a>
</div>
</body></html>`

const coursePage = `<html><body>
<ul>
<li class="activity forum"><div class="activityinstance"><a href="/mod/forum/view.php?id=11"><span>Avisos</span></a></div></li>
<li class="activity assign"><div class="activityname"><a href="/mod/assign/view.php?id=12">Tarea 1</a></div></li>
<li class="activity quiz"><a class="aalink" href="/mod/quiz/view.php?id=13">Examen</a></li>
<li class="activity label"><div class="activityinstance"><a href="/mod/label/view.php?id=14">Etiqueta</a></div></li>
<li class="activity forum"><div class="activityinstance"><a href="/mod/forum/view.php?id=11">Avisos</a></div></li>
</ul>
<a href="/mod/forum/view.php?id=99">Outside the course content</a>
</body></html>`

func parse(t *testing.T, body string) *goquery.Document {
	t.Helper()
	base, err := url.Parse("https://moodle.example/my/")
	require.NoError(t, err)
	doc, err := ParseDocument([]byte(body), base)
	require.NoError(t, err)
	return doc
}

func TestSesskey(t *testing.T) {
	assert.Equal(t, "AbC123xyz", Sesskey(dashboardPage))
	assert.Equal(t, "", Sesskey("<html><body>no config</body></html>"))
}

func TestLoginToken(t *testing.T) {
	doc := parse(t, `<form><input type="hidden" name="logintoken" value="tok-1"><input name="username"></form>`)
	assert.Equal(t, "tok-1", LoginToken(doc))

	assert.Equal(t, "", LoginToken(parse(t, `<form><input name="username"></form>`)))
}

func TestHasLoginErrors(t *testing.T) {
	assert.True(t, HasLoginErrors(`<div class="loginerrors">Invalid login</div>`))
	assert.False(t, HasLoginErrors(dashboardPage))
}

func TestCourseLinks(t *testing.T) {
	links := CourseLinks(parse(t, dashboardPage))

	want := []Link{
		{Id: 2, Name: "Introducción a la Programación", Href: "https://moodle.example/course/view.php?id=2"},
		{Id: 3, Name: "Matemáticas Avanzadas", Href: "https://moodle.example/course/view.php?id=3&section=1"},
	}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("CourseLinks() mismatch (-want +got):\n%s", diff)
	}
}

func TestCourseLinksWithoutCourseList(t *testing.T) {
	links := CourseLinks(parse(t, `<html><body>
<nav><a href="/course/view.php?id=2">PROG101</a></nav>
<a href="/course/view.php?id=2">Introducción a la Programación</a>
<a href="/course/view.php?id=3">Matemáticas Avanzadas</a>
</body></html>`))

	want := []Link{
		{Id: 2, Name: "PROG101", Href: "https://moodle.example/course/view.php?id=2"},
		{Id: 3, Name: "Matemáticas Avanzadas", Href: "https://moodle.example/course/view.php?id=3"},
	}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("CourseLinks() mismatch (-want +got):\n%s", diff)
	}
}

func TestActivityLinks(t *testing.T) {
	activities := ActivityLinks(parse(t, coursePage), 2)

	want := []Activity{
		{Id: 11, CourseId: 2, Name: "Avisos", Type: Forum, Url: "https://moodle.example/mod/forum/view.php?id=11"},
		{Id: 12, CourseId: 2, Name: "Tarea 1", Type: Assignment, Url: "https://moodle.example/mod/assign/view.php?id=12"},
		{Id: 13, CourseId: 2, Name: "Examen", Type: Quiz, Url: "https://moodle.example/mod/quiz/view.php?id=13"},
		{Id: 14, CourseId: 2, Name: "Etiqueta", Type: Unknown, Url: "https://moodle.example/mod/label/view.php?id=14"},
	}
	if diff := cmp.Diff(want, activities); diff != "" {
		t.Errorf("ActivityLinks() mismatch (-want +got):\n%s", diff)
	}
}

func TestActivityLinksEmptyPage(t *testing.T) {
	activities := ActivityLinks(parse(t, `<html><body><p>Nothing here</p></body></html>`), 2)
	assert.NotNil(t, activities)
	assert.Empty(t, activities)
}

func TestDiscussionAndCategoryLinks(t *testing.T) {
	doc := parse(t, `<html><body>
<a href="/mod/forum/discuss.php?d=50">Bienvenida</a>
<a href="/mod/forum/discuss.php?d=50#p3">Re: Bienvenida</a>
<a href="/mod/forum/discuss.php?d=51">Dudas</a>
<a href="/course/category.php?id=4">Ciencias</a>
<a href="/course/index.php?categoryid=5">Letras</a>
</body></html>`)

	discussions := DiscussionLinks(doc)
	require.Len(t, discussions, 2)
	assert.Equal(t, int64(50), discussions[0].Id)
	assert.Equal(t, int64(51), discussions[1].Id)

	categories := CategoryLinks(doc)
	require.Len(t, categories, 1)
	assert.Equal(t, "https://moodle.example/course/category.php?id=4", categories[0].Href)
}
