package commands

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ledokol-inc/moodle-load/load"
	"github.com/ledokol-inc/moodle-load/store"
)

var (
	runTestName    string
	runTestFile    string
	runOptions     load.TestOptions
	runMetricsPort int
)

func init() {
	runCmd.Flags().StringVar(&runTestName, "test", "", "Name of the test in the catalog.")
	runCmd.Flags().StringVar(&runTestFile, "file", "", "Path to a json test description, used instead of the catalog.")
	runCmd.Flags().Float64Var(&runOptions.TotalDuration, "duration", 0, "Total duration in seconds, 0 runs every step to the end.")
	runCmd.Flags().StringSliceVar(&runOptions.Tags, "tags", nil, "Only run tasks with one of these tags.")
	runCmd.Flags().StringSliceVar(&runOptions.ExcludeTags, "exclude-tags", nil, "Never run tasks with one of these tags.")
	runCmd.Flags().IntVar(&runMetricsPort, "metrics-port", 0, "Serve prometheus metrics on this port while the test runs.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run (--test <name> | --file <path>) [--duration <seconds>] [--tags a,b] [--exclude-tags c]",
	Short: "Runs one test in the foreground and records it in the history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.registerBehaviors(); err != nil {
			return err
		}
		testStore, err := config.newStore()
		if err != nil {
			return err
		}

		test, err := findTest(testStore)
		if err != nil {
			return err
		}
		test.SetOptions(&runOptions)

		sink, closeSink := config.newSink()
		defer closeSink()
		if sink != nil {
			test.SetSink(sink)
		}
		if err := test.PrepareTest(); err != nil {
			return err
		}

		if runMetricsPort != 0 {
			go serveMetrics(runMetricsPort)
		}

		go func() {
			<-cmd.Context().Done()
			log.Info().Str("test", test.Id).Msg("Interrupted, stopping test")
			test.Stop()
		}()

		start, end := test.Run()
		if err := testStore.InsertTest(test.Id, test.Name, start, end); err != nil {
			log.Error().Err(err).Msg("Failed to save the run in history")
		}
		log.Info().Str("test", test.Name).Str("id", test.Id).
			Str("start", time.Unix(start, 0).Format(load.TimeFormat)).
			Str("end", time.Unix(end, 0).Format(load.TimeFormat)).Msg("Run recorded")
		return nil
	},
}

func findTest(testStore store.Store) (*load.Test, error) {
	switch {
	case runTestFile != "":
		description, err := os.ReadFile(runTestFile)
		if err != nil {
			return nil, err
		}
		return store.DecodeTest("", description)
	case runTestName != "":
		return testStore.FindTest(runTestName)
	default:
		return nil, errors.New("one of --test or --file is required")
	}
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		log.Error().Err(err).Msg("Metrics server stopped")
	}
}
