package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed create_activity.php
var createActivitySource string

const activityScriptName = "create_activity.php"

type ActivityKind string

const (
	ForumActivity      ActivityKind = "forum"
	AssignmentActivity ActivityKind = "assign"
)

type Activity struct {
	Kind  ActivityKind
	Name  string
	Intro string
	// zero for no due date
	DueDate time.Time
}

// CourseActivities lists the forums and assignments added to every seeded course.
// Assignment n is due n weeks after now.
func CourseActivities(forums, assignments int, now time.Time) []Activity {
	activities := make([]Activity, 0, forums+assignments)
	for i := 1; i <= forums; i++ {
		name := "Foro General"
		if i > 1 {
			name = fmt.Sprintf("Foro General %d", i)
		}
		activities = append(activities, Activity{
			Kind:  ForumActivity,
			Name:  name,
			Intro: "Este es el foro general para discusiones del curso.",
		})
	}
	for i := 1; i <= assignments; i++ {
		activities = append(activities, Activity{
			Kind:    AssignmentActivity,
			Name:    fmt.Sprintf("Tarea %d", i),
			Intro:   fmt.Sprintf("Esta es la tarea %d del curso.", i),
			DueDate: now.Add(time.Duration(i) * 7 * 24 * time.Hour),
		})
	}
	return activities
}

// installActivityScript writes the bundled activity script outside the Moodle tree.
func installActivityScript() (string, func(), error) {
	dir, err := os.MkdirTemp("", "moodle-load-seed")
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, activityScriptName)
	if err := os.WriteFile(path, []byte(createActivitySource), 0600); err != nil {
		os.RemoveAll(dir)
		return "", nil, err
	}
	return path, func() { os.RemoveAll(dir) }, nil
}

func (s *Seeder) createActivities(ctx context.Context, courses []Course, summary *Summary) {
	activities := CourseActivities(s.cfg.Forums, s.cfg.Assignments, time.Now())
	if len(activities) == 0 || len(courses) == 0 {
		return
	}
	moodleDir, err := filepath.Abs(s.cfg.MoodleDir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve the Moodle root, activities are skipped")
		summary.Failures += len(activities) * len(courses)
		return
	}
	script, cleanup, err := installActivityScript()
	if err != nil {
		log.Error().Err(err).Msg("Failed to install the activity script, activities are skipped")
		summary.Failures += len(activities) * len(courses)
		return
	}
	defer cleanup()

	for _, course := range courses {
		for _, activity := range activities {
			if s.createActivity(ctx, script, moodleDir, course, activity) {
				summary.Activities++
			} else {
				summary.Failures++
			}
		}
	}
}

func (s *Seeder) createActivity(ctx context.Context, script string, moodleDir string, course Course, activity Activity) bool {
	logger := log.With().Int64("course", course.Id).Str("type", string(activity.Kind)).Str("name", activity.Name).Logger()
	args := []string{
		"--moodle-dir=" + moodleDir,
		"--type=" + string(activity.Kind),
		"--course=" + strconv.FormatInt(course.Id, 10),
		"--name=" + activity.Name,
		"--intro=" + activity.Intro,
	}
	if !activity.DueDate.IsZero() {
		args = append(args, "--duedate="+strconv.FormatInt(activity.DueDate.Unix(), 10))
	}
	output, err := s.runner.Run(ctx, script, args...)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create activity")
		return false
	}
	cmid, ok := parseId(output)
	if !ok {
		logger.Warn().Str("output", output).Msg("Activity created but its id was not found in the output")
		return true
	}
	logger.Info().Int64("cmid", cmid).Msg("Activity created")
	return true
}
