package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	config     *appConfig
)

var rootCmd = &cobra.Command{
	Use:           "moodle-load",
	Short:         "moodle-load seeds a Moodle site and drives simulated users against it.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configFile)
		if err != nil {
			return err
		}
		config = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "Path to the configuration file.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
