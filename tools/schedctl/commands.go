package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tutorhub/bookingengine/libs/auth"
	"github.com/tutorhub/bookingengine/libs/config"
	"github.com/tutorhub/bookingengine/libs/db"
	"github.com/tutorhub/bookingengine/libs/grpcx"
	"github.com/tutorhub/bookingengine/services/booking-service/migrations"
)

func newSlotsCmd(g *globals) *cobra.Command {
	var (
		start, end string
		days       int
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List bookable slots",
		Example: `  schedctl slots
  schedctl slots --start 2026-03-02 --days 7`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := g.client().Slots(cmd.Context(), start, end, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(g.out, "%s .. %s (%s, %d min slots, policy v%d)\n",
				res.Meta.From, res.Meta.To, res.Meta.Timezone, res.Meta.SlotMinutes, res.Meta.PolicyVersion)
			if len(res.Days) == 0 {
				fmt.Fprintln(g.out, "no open slots")
				return nil
			}
			loc, err := time.LoadLocation(res.Meta.Timezone)
			if err != nil {
				loc = time.UTC
			}
			tw := tabwriter.NewWriter(g.out, 0, 4, 2, ' ', 0)
			for _, d := range res.Days {
				times := make([]string, 0, len(d.Slots))
				for _, s := range d.Slots {
					times = append(times, s.Start.In(loc).Format("15:04"))
				}
				fmt.Fprintf(tw, "%s\t%s\n", d.Date, strings.Join(times, " "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first date, YYYY-MM-DD (default tomorrow)")
	cmd.Flags().StringVar(&end, "end", "", "end date, exclusive, YYYY-MM-DD")
	cmd.Flags().IntVar(&days, "days", 0, "number of days when --end is not set")
	return cmd
}

func newBookCmd(g *globals) *cobra.Command {
	var (
		start string
		dur   time.Duration
		key   string
		r     requesterJSON
	)
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a slot",
		Example: `  schedctl book --start 2026-03-02T10:00:00+09:00 --name "Aiko Tanaka" --email aiko@example.com`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start must be RFC 3339: %w", err)
			}
			if key == "" {
				key = uuid.NewString()
			}
			res, err := g.client().Book(cmd.Context(), bookRequest{
				Slot:      slotJSON{Start: at, End: at.Add(dur)},
				Requester: r,
			}, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(g.out, "booking %s (%s)\n", res.Booking.ID, res.Stage)
			fmt.Fprintf(g.out, "  slot      %s - %s\n", res.Booking.Slot.Start.Format(time.RFC3339), res.Booking.Slot.End.Format("15:04"))
			fmt.Fprintf(g.out, "  event     %s\n", res.Booking.CalendarEventID)
			if res.Booking.MeetingReference != "" {
				fmt.Fprintf(g.out, "  meeting   %s\n", res.Booking.MeetingReference)
			}
			for _, n := range res.Notifications {
				status := "sent"
				if !n.Sent {
					status = "failed: " + n.Error
				}
				fmt.Fprintf(g.out, "  notify    %s -> %s %s\n", n.Kind, n.Recipient, status)
			}
			if res.Replayed {
				fmt.Fprintf(g.out, "  (replayed for idempotency key %s)\n", key)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "slot start, RFC 3339")
	cmd.Flags().DurationVar(&dur, "duration", time.Hour, "slot length")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "reuse to retry safely (default random)")
	cmd.Flags().StringVar(&r.Name, "name", "", "student name")
	cmd.Flags().StringVar(&r.Email, "email", "", "student email")
	cmd.Flags().StringVar(&r.Phone, "phone", "", "student phone")
	cmd.Flags().StringVar(&r.Company, "company", "", "school or company")
	cmd.Flags().StringVar(&r.Message, "message", "", "note for the tutor")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newTokenCmd(g *globals) *cobra.Command {
	var (
		sub, role, secret string
		ttl               time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token",
		RunE: func(_ *cobra.Command, _ []string) error {
			if secret == "" {
				v, err := config.RequiredString("ADMIN_JWT_SECRET")
				if err != nil {
					return fmt.Errorf("--secret not set: %w", err)
				}
				secret = v
			}
			tok, err := auth.SignHS256(auth.NewClaims(sub, role, ttl, time.Now()), secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(g.out, tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "admin", "token subject")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "token role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default $ADMIN_JWT_SECRET)")
	return cmd
}

func newHashKeyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <api-key>",
		Short: "Print the bcrypt hash to use as ADMIN_API_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			h, err := auth.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(g.out, h)
			return nil
		},
	}
}

func newMigrateCmd(g *globals) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				v, err := config.RequiredString("DATABASE_URL")
				if err != nil {
					return fmt.Errorf("--database-url not set: %w", err)
				}
				dsn = v
			}
			pool, err := db.Open(cmd.Context(), dsn, db.Options{MaxConns: 2})
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()
			if err := db.Migrate(cmd.Context(), pool, migrations.FS, migrations.Dir, g.logger()); err != nil {
				return err
			}
			fmt.Fprintln(g.out, "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "database-url", "", "postgres url (default $DATABASE_URL)")
	return cmd
}

func newHealthCmd(g *globals) *cobra.Command {
	var addr, service string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := grpcx.Dial(cmd.Context(), addr, grpcx.DialOptions{Timeout: g.timeout})
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()
			status, err := grpcx.CheckHealth(cmd.Context(), conn, service)
			if err != nil {
				return err
			}
			fmt.Fprintln(g.out, status.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.String("BOOKING_GRPC_ADDR", "localhost:9093"), "grpc address")
	cmd.Flags().StringVar(&service, "service", "booking-service", "service name; empty checks the server as a whole")
	return cmd
}
