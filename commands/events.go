package commands

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ledokol-inc/moodle-load/kafkah"
	"github.com/ledokol-inc/moodle-load/load"
)

func init() {
	rootCmd.AddCommand(eventsCmd)
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follows the result events published by generators to kafka.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !config.Kafka.Enabled() {
			return errors.New("kafka.brokers is not configured")
		}
		consumer := kafkah.NewConsumer(config.Kafka)
		defer consumer.Close()

		return consumer.ProcessConsume(cmd.Context(), func(event load.Event) {
			logEvent := log.Info()
			if !event.Success {
				logEvent = log.Warn().Str("error", event.Error)
			}
			logEvent.Str("type", event.Type).Str("test", event.TestName).Str("id", event.TestId).
				Str("scenario", event.Scenario).Int("user", event.User).Str("task", event.Task).
				Int64("durationMs", event.DurationMs).Time("time", event.Time).Msg("Event")
		})
	},
}
