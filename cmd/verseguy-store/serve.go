package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asMODhias/VerseGuy-sub000/pkg/events"
	"github.com/asMODhias/VerseGuy-sub000/pkg/log"
	"github.com/asMODhias/VerseGuy-sub000/pkg/metrics"
	"github.com/asMODhias/VerseGuy-sub000/pkg/storage"
	"github.com/asMODhias/VerseGuy-sub000/pkg/types"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		addr    string
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Hold the store open with metrics, health checks and auto-backup",
		Long: `Open the store and keep it open, serving Prometheus metrics on
/metrics and health probes on /health, /ready and /live. Backups are taken
every auto_backup_hours while running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics.SetVersion(Version)

			broker := events.NewBroker()
			broker.Start()
			defer broker.Stop()
			sub := broker.Subscribe()
			defer broker.Unsubscribe(sub)
			go logEvents(sub)

			e, err := opts.openEngine(storage.WithEvents(broker))
			if err != nil {
				return err
			}
			defer e.Close()

			if migrate {
				mm, err := types.Migrations()
				if err != nil {
					return err
				}
				mm.SetPublisher(broker)
				if _, err := mm.Run(e); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			e.StartAutoBackup(ctx)

			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.HandleFunc("/health", metrics.HealthHandler())
			mux.HandleFunc("/ready", metrics.ReadyHandler())
			mux.HandleFunc("/live", metrics.LivenessHandler())

			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("metrics server: %w", err)
				}
			}()

			log.Logger.Info().Str("addr", addr).Str("path", e.Path()).Msg("Serving store")
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s. Press Ctrl+C to stop.\n", e.Path(), addr)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-sigCh:
				fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down...")
			case <-ctx.Done():
			case err = <-errCh:
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if serr := server.Shutdown(shutdownCtx); serr != nil {
				log.Logger.Warn().Err(serr).Msg("Metrics server shutdown")
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9464", "Listen address for metrics and health endpoints")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply pending migrations before serving")
	return cmd
}

// logEvents writes store events to the log until sub is closed
func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for ev := range sub {
		logger.Info().
			Str("type", string(ev.Type)).
			Str("key", ev.Key).
			Str("message", ev.Message).
			Msg("Store event")
	}
}
