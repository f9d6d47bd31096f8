package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ledokol-inc/moodle-load/discovery"
)

const shutdownTimeout = 10 * time.Second

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port of the control server, overrides server.http-port.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--port <port>]",
	Short: "Starts the control server that runs tests on request.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.registerBehaviors(); err != nil {
			return err
		}
		testStore, err := config.newStore()
		if err != nil {
			return err
		}
		sink, closeSink := config.newSink()
		defer closeSink()

		port := config.Server.HttpPort
		if servePort != 0 {
			port = servePort
		}

		var service *discovery.Service
		if config.Consul.Enabled {
			consulCfg := config.Consul.Config
			consulCfg.Port = port
			service, err = discovery.RegisterInConsul(consulCfg)
			if err != nil {
				return err
			}
			defer service.DeregisterInConsul()
		}

		server := newControlServer(testStore, service, sink)
		httpServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.router(),
		}

		ctx := cmd.Context()
		errCh := make(chan error, 1)
		go func() {
			log.Info().Int("port", port).Msg("Control server started")
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ListenAndServe() error: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down, stopping running tests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down the control server")
		}
		server.stopAll()
		return nil
	},
}
