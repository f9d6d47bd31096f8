package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	script string
	args   []string
}

// option reads a --name=value argument
func (c call) option(name string) (string, bool) {
	for _, arg := range c.args {
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"="), true
		}
	}
	return "", false
}

func (c call) flag(name string) string {
	for i := 0; i+1 < len(c.args); i++ {
		if c.args[i] == name {
			return c.args[i+1]
		}
	}
	return ""
}

type fakeRunner struct {
	lock   sync.Mutex
	calls  []call
	nextId int64
	// optional failure per script, checked before the call is answered
	fail func(c call) error
	// output of create_course, id is the id assigned to the course
	courseOutput func(id int64) string
}

func (r *fakeRunner) Run(_ context.Context, script string, args ...string) (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	c := call{script: script, args: args}
	r.calls = append(r.calls, c)
	if r.fail != nil {
		if err := r.fail(c); err != nil {
			return "", err
		}
	}
	if script == createCourseScript {
		r.nextId++
		if r.courseOutput != nil {
			return r.courseOutput(r.nextId + 1), nil
		}
		return fmt.Sprintf("Course created\nid: %d\n", r.nextId+1), nil
	}
	return "", nil
}

func (r *fakeRunner) count(script string) int {
	n := 0
	for _, c := range r.calls {
		if c.script == script {
			n++
		}
	}
	return n
}

func (r *fakeRunner) activities() []call {
	var result []call
	for _, c := range r.calls {
		if filepath.Base(c.script) == activityScriptName {
			result = append(result, c)
		}
	}
	return result
}

func (r *fakeRunner) of(script string) []call {
	var result []call
	for _, c := range r.calls {
		if c.script == script {
			result = append(result, c)
		}
	}
	return result
}

func moodleRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, moodleConfigFile), []byte("<?php\n"), 0600))
	return dir
}

func newSeeder(t *testing.T, cfg Config, runner Runner) *Seeder {
	t.Helper()
	cfg.MoodleDir = moodleRoot(t)
	return New(cfg, runner, rand.New(rand.NewSource(1)))
}

func TestSeedDefaults(t *testing.T) {
	runner := &fakeRunner{}
	summary, err := newSeeder(t, DefaultConfig(), runner).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, runner.count(createCourseScript))
	assert.Equal(t, 25, runner.count(createUserScript))
	assert.Equal(t, 25, runner.count(assignRoleScript))
	// 2 teachers and 10 students in each of the 5 courses
	assert.Equal(t, 60, runner.count(enrolUserScript))
	assert.Equal(t, 60, summary.Enrollments)
	// a forum and two assignments in each course
	assert.Len(t, runner.activities(), 15)
	assert.Equal(t, 15, summary.Activities)
	assert.Zero(t, summary.Failures)
	assert.Len(t, summary.Courses, 5)
	assert.Len(t, summary.Teachers, 5)
	assert.Len(t, summary.Students, 20)
}

func TestSeedCommandArguments(t *testing.T) {
	runner := &fakeRunner{}
	cfg := DefaultConfig()
	cfg.NumStudents, cfg.NumTeachers = 1, 1
	cfg.Courses = cfg.Courses[:1]
	_, err := newSeeder(t, cfg, runner).Run(context.Background())
	require.NoError(t, err)

	course := runner.of(createCourseScript)[0]
	assert.Equal(t, "PROG101", course.flag("--shortname"))
	assert.Equal(t, "Introducción a la Programación", course.flag("--fullname"))
	assert.Equal(t, "1", course.flag("--category"))

	users := runner.of(createUserScript)
	require.Len(t, users, 2)
	assert.Equal(t, "teacher1", users[0].flag("--username"))
	assert.Equal(t, "student1", users[1].flag("--username"))
	assert.Equal(t, "student1@example.com", users[1].flag("--email"))
	assert.Equal(t, "password", users[1].flag("--password"))
	assert.Contains(t, FirstNames, users[1].flag("--firstname"))
	assert.Contains(t, LastNames, users[1].flag("--lastname"))

	roles := runner.of(assignRoleScript)
	require.Len(t, roles, 2)
	assert.Equal(t, "3", roles[0].flag("--role"))
	assert.Equal(t, "teacher1", roles[0].flag("--user"))
	assert.Equal(t, "1", roles[0].flag("--contextid"))
	assert.Equal(t, "5", roles[1].flag("--role"))

	enrolments := runner.of(enrolUserScript)
	require.Len(t, enrolments, 2)
	assert.Equal(t, "teacher1", enrolments[0].flag("--user"))
	assert.Equal(t, "2", enrolments[0].flag("--course"))
	assert.Equal(t, "3", enrolments[0].flag("--role"))
	assert.Equal(t, "student1", enrolments[1].flag("--user"))
	assert.Equal(t, "5", enrolments[1].flag("--role"))
}

func TestSeedWithoutUsers(t *testing.T) {
	runner := &fakeRunner{}
	cfg := DefaultConfig()
	cfg.NumStudents, cfg.NumTeachers = 0, 0
	summary, err := newSeeder(t, cfg, runner).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, runner.count(createCourseScript))
	assert.Zero(t, runner.count(createUserScript))
	assert.Zero(t, runner.count(assignRoleScript))
	assert.Zero(t, runner.count(enrolUserScript))
	assert.Zero(t, summary.Enrollments)
}

func TestSeedFewerUsersThanPerCourse(t *testing.T) {
	runner := &fakeRunner{}
	cfg := DefaultConfig()
	cfg.NumStudents, cfg.NumTeachers = 3, 1
	cfg.Courses = cfg.Courses[:2]
	_, err := newSeeder(t, cfg, runner).Run(context.Background())
	require.NoError(t, err)

	// every user lands in every course, each at most once
	assert.Equal(t, 8, runner.count(enrolUserScript))
	seen := map[string]bool{}
	for _, c := range runner.of(enrolUserScript) {
		key := c.flag("--course") + "/" + c.flag("--user")
		assert.False(t, seen[key], key)
		seen[key] = true
	}
}

func TestSeedFailuresDoNotStopTheRun(t *testing.T) {
	runner := &fakeRunner{fail: func(c call) error {
		switch {
		case c.script == createUserScript && c.flag("--username") == "student2":
			return errors.New("username already exists")
		case c.script == createCourseScript && c.flag("--shortname") == "MATH201":
			return errors.New("shortname taken")
		case c.script == enrolUserScript && c.flag("--user") == "teacher1":
			return errors.New("enrol failed")
		}
		return nil
	}}
	cfg := DefaultConfig()
	cfg.NumStudents, cfg.NumTeachers = 3, 1
	summary, err := newSeeder(t, cfg, runner).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, summary.Courses, 4)
	assert.Equal(t, []string{"student1", "student3"}, summary.Students)
	// no role for the user that could not be created
	assert.Equal(t, 3, runner.count(assignRoleScript))
	for _, c := range runner.of(enrolUserScript) {
		assert.NotEqual(t, "student2", c.flag("--user"))
	}
	assert.Equal(t, 8, summary.Enrollments)
	assert.Equal(t, 1+1+4, summary.Failures)
}

func TestSeedCourseWithoutIdSkipsEnrolments(t *testing.T) {
	runner := &fakeRunner{courseOutput: func(int64) string { return "Course created\n" }}
	cfg := DefaultConfig()
	cfg.NumStudents, cfg.NumTeachers = 2, 1
	summary, err := newSeeder(t, cfg, runner).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, summary.Courses)
	assert.Equal(t, 3, runner.count(createUserScript))
	assert.Zero(t, runner.count(enrolUserScript))
}

func TestSeedOutsideMoodleRoot(t *testing.T) {
	runner := &fakeRunner{}
	cfg := DefaultConfig()
	cfg.MoodleDir = t.TempDir()
	_, err := New(cfg, runner, rand.New(rand.NewSource(1))).Run(context.Background())

	assert.True(t, errors.Is(err, ErrNotMoodleRoot))
	assert.Empty(t, runner.calls)
}

func TestSeedCourseActivities(t *testing.T) {
	var scripts []string
	runner := &fakeRunner{fail: func(c call) error {
		if filepath.Base(c.script) == activityScriptName {
			data, err := os.ReadFile(c.script)
			if err != nil {
				return err
			}
			scripts = append(scripts, string(data))
		}
		return nil
	}}
	cfg := DefaultConfig()
	cfg.NumStudents, cfg.NumTeachers = 0, 0
	cfg.Courses = cfg.Courses[:1]
	seeder := newSeeder(t, cfg, runner)
	summary, err := seeder.Run(context.Background())
	require.NoError(t, err)

	calls := runner.activities()
	require.Len(t, calls, 3)
	assert.Equal(t, 3, summary.Activities)
	for _, script := range scripts {
		assert.Equal(t, createActivitySource, script)
	}
	_, err = os.Stat(calls[0].script)
	assert.True(t, os.IsNotExist(err), "activity script is removed after seeding")

	moodleDir, _ := calls[0].option("--moodle-dir")
	assert.True(t, filepath.IsAbs(moodleDir))
	assert.Equal(t, seeder.cfg.MoodleDir, moodleDir)

	kinds := []string{}
	names := []string{}
	for _, c := range calls {
		course, _ := c.option("--course")
		assert.Equal(t, "2", course)
		kind, _ := c.option("--type")
		name, _ := c.option("--name")
		kinds = append(kinds, kind)
		names = append(names, name)
		_, due := c.option("--duedate")
		assert.Equal(t, kind == string(AssignmentActivity), due, name)
	}
	assert.Equal(t, []string{"forum", "assign", "assign"}, kinds)
	assert.Equal(t, []string{"Foro General", "Tarea 1", "Tarea 2"}, names)
}

func TestSeedWithoutActivities(t *testing.T) {
	runner := &fakeRunner{}
	cfg := DefaultConfig()
	cfg.Forums, cfg.Assignments = 0, 0
	summary, err := newSeeder(t, cfg, runner).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, runner.activities())
	assert.Zero(t, summary.Activities)
}

func TestSeedActivityFailures(t *testing.T) {
	runner := &fakeRunner{fail: func(c call) error {
		if kind, _ := c.option("--type"); kind == string(ForumActivity) {
			return errors.New("forum module disabled")
		}
		return nil
	}}
	cfg := DefaultConfig()
	cfg.NumStudents, cfg.NumTeachers = 0, 0
	cfg.Courses = cfg.Courses[:2]
	summary, err := newSeeder(t, cfg, runner).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, runner.activities(), 6)
	assert.Equal(t, 4, summary.Activities)
	assert.Equal(t, 2, summary.Failures)
}

func TestCourseActivities(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	activities := CourseActivities(2, 2, now)

	require.Len(t, activities, 4)
	assert.Equal(t, "Foro General", activities[0].Name)
	assert.Equal(t, "Foro General 2", activities[1].Name)
	assert.True(t, activities[0].DueDate.IsZero())
	assert.Equal(t, now.AddDate(0, 0, 7), activities[2].DueDate)
	assert.Equal(t, now.AddDate(0, 0, 14), activities[3].DueDate)

	assert.Empty(t, CourseActivities(0, 0, now))
}

func TestParseCourseId(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   int64
		found  bool
	}{
		{"simple", "id: 12", 12, true},
		{"among other lines", "Creating course...\nid: 7\nDone\n", 7, true},
		{"last match wins", "category id: 1\ncourse id: 9\n", 9, true},
		{"padded", "id:    42   \n", 42, true},
		{"windows line endings", "id: 5\r\n", 5, true},
		{"no id", "Course created\n", 0, false},
		{"not a number", "id: abc\n", 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, found := ParseCourseId(tt.output)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCommandErrorIncludesStderr(t *testing.T) {
	err := &CommandError{Script: createUserScript, Stderr: "  Username exists\n", Err: errors.New("exit status 1")}
	assert.True(t, strings.HasSuffix(err.Error(), "Username exists"))
	assert.Equal(t, "exit status 1", errors.Unwrap(err).Error())
}
