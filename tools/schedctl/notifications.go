package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/tutorhub/bookingengine/libs/config"
	"github.com/tutorhub/bookingengine/libs/kafkax"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// notificationEvent is the subset of the notification topic payload the
// tail prints.
type notificationEvent struct {
	Kind      string    `json:"kind"`
	BookingID string    `json:"booking_id"`
	Subject   string    `json:"subject"`
	SlotStart time.Time `json:"slot_start"`
	To        struct {
		Email string `json:"email"`
	} `json:"to"`
}

func newNotificationsCmd(g *globals) *cobra.Command {
	var (
		brokers, topic, group string
		limit                 int
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print notification events from Kafka",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := kafkax.SplitBrokers(brokers)
			if len(list) == 0 {
				return errors.New("--brokers or KAFKA_BROKERS is required")
			}
			cfg := kafka.ReaderConfig{
				Brokers:  list,
				GroupID:  group,
				Topic:    topic,
				MinBytes: 1,
				MaxBytes: 10e6,
			}
			if group == "" {
				cfg.StartOffset = kafka.LastOffset
			}
			return tailNotifications(cmd.Context(), kafka.NewReader(cfg), g.out, limit, g.logger())
		},
	}
	tail.Flags().StringVar(&brokers, "brokers", config.String("KAFKA_BROKERS", "localhost:9092"), "kafka brokers, comma separated")
	tail.Flags().StringVar(&topic, "topic", config.String("KAFKA_NOTIFY_TOPIC", "booking.notification.requested.v1"), "notification topic")
	tail.Flags().StringVar(&group, "group", "", "consumer group; empty reads from the end without committing")
	tail.Flags().IntVar(&limit, "limit", 0, "stop after this many events (0 = follow)")

	cmd := &cobra.Command{Use: "notifications", Short: "Inspect booking notifications"}
	cmd.AddCommand(tail)
	return cmd
}

func tailNotifications(ctx context.Context, r messageReader, out io.Writer, limit int, logger *slog.Logger) error {
	defer r.Close()
	seen := 0
	for limit <= 0 || seen < limit {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		seen++

		meta := kafkax.ExtractEventMeta(msg)
		traceID := trace.SpanContextFromContext(kafkax.ExtractTraceContext(ctx, msg)).TraceID()

		var ev notificationEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			fmt.Fprintf(out, "%s %s undecodable payload: %v\n", msg.Time.UTC().Format(time.RFC3339), meta.EventID, err)
			continue
		}
		line := fmt.Sprintf("%s %-20s booking=%s to=%s slot=%s",
			msg.Time.UTC().Format(time.RFC3339), ev.Kind, ev.BookingID, ev.To.Email, ev.SlotStart.Format(time.RFC3339))
		if traceID.IsValid() {
			line += " trace=" + traceID.String()
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
