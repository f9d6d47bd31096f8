package commands

import (
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledokol-inc/moodle-load/seed"
)

var (
	seedMoodleDir  string
	seedStudents   int
	seedTeachers   int
	seedRandomSeed int64
)

func init() {
	seedCmd.Flags().StringVar(&seedMoodleDir, "moodle-dir", "", "Moodle root directory, overrides seed.moodle-dir.")
	seedCmd.Flags().IntVar(&seedStudents, "students", -1, "Number of students, overrides seed.num-students.")
	seedCmd.Flags().IntVar(&seedTeachers, "teachers", -1, "Number of teachers, overrides seed.num-teachers.")
	seedCmd.Flags().Int64Var(&seedRandomSeed, "random-seed", 0, "Seed of the name and enrollment choices, 0 picks one from the clock.")
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed [--moodle-dir <path>] [--students <n>] [--teachers <n>]",
	Short: "Creates test users and courses through the Moodle admin cli.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Seed
		if seedMoodleDir != "" {
			cfg.MoodleDir = seedMoodleDir
		}
		if seedStudents >= 0 {
			cfg.NumStudents = seedStudents
		}
		if seedTeachers >= 0 {
			cfg.NumTeachers = seedTeachers
		}
		randomSeed := seedRandomSeed
		if randomSeed == 0 {
			randomSeed = time.Now().UnixNano()
		}

		seeder := seed.New(cfg, seed.PhpRunner{Php: cfg.Php, Dir: cfg.MoodleDir}, rand.New(rand.NewSource(randomSeed)))
		_, err := seeder.Run(cmd.Context())
		return err
	},
}
