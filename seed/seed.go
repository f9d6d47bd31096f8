package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	createUserScript   = "admin/cli/create_user.php"
	assignRoleScript   = "admin/cli/assign_role.php"
	createCourseScript = "admin/cli/create_course.php"
	enrolUserScript    = "admin/cli/enrol_user.php"

	moodleConfigFile = "config.php"
	courseIdMarker   = "id:"
)

var ErrNotMoodleRoot = errors.New("seeding must run from the Moodle root directory")

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

type Account struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
	Role      Role
}

type Course struct {
	ShortName string `mapstructure:"shortname"`
	FullName  string `mapstructure:"fullname"`
	Category  int    `mapstructure:"category"`
	// assigned by Moodle
	Id int64 `mapstructure:"-"`
}

type Summary struct {
	Courses     []Course
	Teachers    []string
	Students    []string
	Enrollments int
	Activities  int
	Failures    int
}

// Seeder provisions a fixed population of users and courses through the Moodle cli, one call per entity.
// Failures are logged and skipped, nothing is retried or rolled back.
type Seeder struct {
	cfg    Config
	runner Runner
	rnd    *rand.Rand
}

func New(cfg Config, runner Runner, rnd *rand.Rand) *Seeder {
	return &Seeder{cfg: cfg, runner: runner, rnd: rnd}
}

func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	if _, err := os.Stat(filepath.Join(s.cfg.MoodleDir, moodleConfigFile)); err != nil {
		return nil, fmt.Errorf("%w: %s not found in %q", ErrNotMoodleRoot, moodleConfigFile, s.cfg.MoodleDir)
	}

	summary := &Summary{}

	for _, definition := range s.cfg.Courses {
		course, ok := s.createCourse(ctx, definition)
		if !ok {
			summary.Failures++
			continue
		}
		summary.Courses = append(summary.Courses, course)
	}
	if len(summary.Courses) == 0 {
		log.Error().Msg("No course could be created")
	}

	summary.Teachers = s.createAccounts(ctx, "teacher", s.cfg.NumTeachers, RoleTeacher, s.cfg.TeacherRoleId, summary)
	summary.Students = s.createAccounts(ctx, "student", s.cfg.NumStudents, RoleStudent, s.cfg.StudentRoleId, summary)

	s.createActivities(ctx, summary.Courses, summary)

	for _, course := range summary.Courses {
		for _, teacher := range s.sample(summary.Teachers, s.cfg.TeachersPerCourse) {
			s.enrol(ctx, teacher, course, s.cfg.TeacherRoleId, summary)
		}
		for _, student := range s.sample(summary.Students, s.cfg.StudentsPerCourse) {
			s.enrol(ctx, student, course, s.cfg.StudentRoleId, summary)
		}
	}

	log.Info().Int("courses", len(summary.Courses)).Int("teachers", len(summary.Teachers)).
		Int("students", len(summary.Students)).Int("enrollments", summary.Enrollments).Int("activities", summary.Activities).
		Int("failures", summary.Failures).Msg("Seeding finished")
	return summary, nil
}

func (s *Seeder) createAccounts(ctx context.Context, prefix string, count int, role Role, roleId int, summary *Summary) []string {
	created := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		account := s.newAccount(fmt.Sprintf("%s%d", prefix, i), role)
		if !s.createUser(ctx, account) {
			summary.Failures++
			continue
		}
		created = append(created, account.Username)
		if !s.assignRole(ctx, account.Username, roleId) {
			summary.Failures++
		}
	}
	return created
}

func (s *Seeder) newAccount(username string, role Role) Account {
	return Account{
		Username:  username,
		Password:  s.cfg.Password,
		FirstName: FirstNames[s.rnd.Intn(len(FirstNames))],
		LastName:  LastNames[s.rnd.Intn(len(LastNames))],
		Email:     username + "@example.com",
		Role:      role,
	}
}

func (s *Seeder) createUser(ctx context.Context, account Account) bool {
	logger := log.With().Str("username", account.Username).Str("role", string(account.Role)).Logger()
	logger.Info().Str("name", account.FirstName+" "+account.LastName).Msg("Creating user")
	_, err := s.runner.Run(ctx, createUserScript,
		"--username", account.Username,
		"--password", account.Password,
		"--firstname", account.FirstName,
		"--lastname", account.LastName,
		"--email", account.Email,
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create user")
		return false
	}
	logger.Info().Msg("User created")
	return true
}

func (s *Seeder) assignRole(ctx context.Context, username string, roleId int) bool {
	logger := log.With().Str("username", username).Int("role", roleId).Logger()
	_, err := s.runner.Run(ctx, assignRoleScript,
		"--role", strconv.Itoa(roleId),
		"--user", username,
		"--contextid", strconv.Itoa(s.cfg.ContextId),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to assign role")
		return false
	}
	logger.Info().Msg("Role assigned")
	return true
}

func (s *Seeder) createCourse(ctx context.Context, course Course) (Course, bool) {
	logger := log.With().Str("course", course.ShortName).Logger()
	logger.Info().Str("name", course.FullName).Msg("Creating course")
	output, err := s.runner.Run(ctx, createCourseScript,
		"--shortname", course.ShortName,
		"--fullname", course.FullName,
		"--category", strconv.Itoa(course.Category),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create course")
		return course, false
	}
	id, ok := ParseCourseId(output)
	if !ok {
		logger.Error().Str("output", output).Msg("Course created but its id was not found in the output, enrollments are skipped")
		return course, false
	}
	course.Id = id
	logger.Info().Int64("id", id).Msg("Course created")
	return course, true
}

func (s *Seeder) enrol(ctx context.Context, username string, course Course, roleId int, summary *Summary) {
	logger := log.With().Str("username", username).Int64("course", course.Id).Int("role", roleId).Logger()
	_, err := s.runner.Run(ctx, enrolUserScript,
		"--user", username,
		"--course", strconv.FormatInt(course.Id, 10),
		"--role", strconv.Itoa(roleId),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to enrol user")
		summary.Failures++
		return
	}
	summary.Enrollments++
	logger.Info().Msg("User enrolled")
}

// sample picks min(n, len(usernames)) distinct usernames.
func (s *Seeder) sample(usernames []string, n int) []string {
	if n > len(usernames) {
		n = len(usernames)
	}
	if n <= 0 {
		return nil
	}
	result := make([]string, 0, n)
	for _, i := range s.rnd.Perm(len(usernames))[:n] {
		result = append(result, usernames[i])
	}
	return result
}

// ParseCourseId scans the create_course output for "id: <n>", the last match wins.
func ParseCourseId(output string) (int64, bool) {
	return parseId(output)
}

func parseId(output string) (int64, bool) {
	var id int64
	found := false
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, courseIdMarker)
		if idx < 0 {
			continue
		}
		value, err := strconv.ParseInt(strings.TrimSpace(line[idx+len(courseIdMarker):]), 10, 64)
		if err != nil {
			continue
		}
		id, found = value, true
	}
	return id, found
}
