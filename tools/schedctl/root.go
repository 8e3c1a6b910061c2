package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutorhub/bookingengine/libs/config"
	otelx "github.com/tutorhub/bookingengine/libs/otel"
	"github.com/tutorhub/bookingengine/libs/runtime"
)

type globals struct {
	baseURL  string
	timeout  time.Duration
	logLevel string
	out      io.Writer
	shutdown func(context.Context) error
}

func (g *globals) logger() *slog.Logger {
	return runtime.NewLogger("schedctl", g.logLevel)
}

func (g *globals) client() *apiClient {
	return newAPIClient(g.baseURL, g.timeout)
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globals{out: out}
	root := &cobra.Command{
		Use:           "schedctl",
		Short:         "Operate the tutoring booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional; flags and the real environment still win.
			if err := config.Load(&struct{}{}); err != nil {
				return err
			}
			shutdown, err := otelx.Setup(cmd.Context(), otelx.ConfigFromEnv("schedctl"))
			if err != nil {
				return err
			}
			g.shutdown = shutdown
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if g.shutdown == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
			defer cancel()
			return g.shutdown(ctx)
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&g.baseURL, "base-url", config.String("BOOKING_BASE_URL", "http://localhost:8083"), "booking service base url")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 15*time.Second, "request timeout")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", config.String("LOG_LEVEL", "warn"), "log level for diagnostic output")

	root.AddCommand(
		newSlotsCmd(g),
		newBookCmd(g),
		newTokenCmd(g),
		newHashKeyCmd(g),
		newMigrateCmd(g),
		newHealthCmd(g),
		newNotificationsCmd(g),
	)
	return root
}
