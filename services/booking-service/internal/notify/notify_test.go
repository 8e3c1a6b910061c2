package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhub/bookingengine/libs/kafkax"
	otelx "github.com/tutorhub/bookingengine/libs/otel"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

func testMessage(kind Kind) Message {
	start := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	b := model.Booking{
		ID:               "b-1",
		Requester:        model.Requester{Name: "Aiko Tanaka", Email: "aiko@example.com", Phone: "+81 90 1234 5678", Message: "Grammar review"},
		Slot:             model.Slot{Start: start, End: start.Add(time.Hour)},
		CalendarEventID:  "b1",
		MeetingReference: "https://meet.google.com/abc-defg-hij",
	}
	return Message{
		ID:           MessageID(b.ID, kind),
		Kind:         kind,
		Recipient:    Recipient{Email: b.Requester.Email, Name: b.Requester.Name},
		Booking:      b,
		BusinessName: "Kyoto English Studio",
		Location:     time.FixedZone("Asia/Tokyo", 9*60*60),
	}
}

func TestRenderConfirmation(t *testing.T) {
	subject, body, err := Render(testMessage(KindBookingConfirmation))
	require.NoError(t, err)
	assert.Equal(t, "Your lesson with Kyoto English Studio is confirmed", subject)
	assert.Contains(t, body, "Hi Aiko Tanaka,")
	assert.Contains(t, body, "Mon 2 Mar 2026, 10:00-11:00 (Asia/Tokyo)")
	assert.Contains(t, body, "https://meet.google.com/abc-defg-hij")
}

func TestRenderAdmin(t *testing.T) {
	subject, body, err := Render(testMessage(KindAdminNewBooking))
	require.NoError(t, err)
	assert.Equal(t, "New booking: Aiko Tanaka on Mon 2 Mar 2026 10:00", subject)
	assert.Contains(t, body, "Phone:   +81 90 1234 5678")
	assert.Contains(t, body, "Grammar review")
	assert.NotContains(t, body, "Company:")
}

func TestRenderUnknownKind(t *testing.T) {
	_, _, err := Render(Message{Kind: "sms_reminder"})
	assert.Error(t, err)
}

// fakeSMTP accepts one message and records the DATA section.
func fakeSMTP(t *testing.T) (addr string, data <-chan string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })
	out := make(chan string, 1)

	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
		reply("220 fake ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 fake")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				reply("250 ok")
			case cmd == "DATA":
				reply("354 go ahead")
				var b strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					b.WriteString(l)
				}
				out <- b.String()
				reply("250 queued")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("250 ok")
			}
		}
	}()
	return lis.Addr().String(), out
}

func TestSMTPSend(t *testing.T) {
	addr, data := fakeSMTP(t)
	host, port, _ := net.SplitHostPort(addr)
	s, err := NewSMTP(SMTPConfig{Host: host, Port: port, From: "Studio <studio@example.com>"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, s.Send(ctx, testMessage(KindBookingConfirmation)))

	select {
	case raw := <-data:
		assert.Contains(t, raw, `From: "Studio" <studio@example.com>`)
		assert.Contains(t, raw, `To: "Aiko Tanaka" <aiko@example.com>`)
		assert.Contains(t, raw, "Subject: Your lesson with Kyoto English Studio is confirmed")
		assert.Contains(t, raw, "Content-Type: text/plain; charset=utf-8")
	case <-time.After(3 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSMTPUnreachableIsDispatchError(t *testing.T) {
	s, err := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: "1"})
	require.NoError(t, err)
	err = s.Send(context.Background(), testMessage(KindAdminNewBooking))
	assert.ErrorIs(t, err, model.ErrNotificationDispatch)
}

func TestNewSMTPRequiresHost(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{})
	assert.Error(t, err)
}

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaSend(t *testing.T) {
	_, err := otelx.Setup(context.Background(), otelx.Config{})
	require.NoError(t, err)
	ctx := otelx.ContextWithTraceContext(context.Background(), "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", "")

	w := &captureWriter{}
	k := newKafka(w, "booking.notification.requested.v1")
	msg := testMessage(KindAdminNewBooking)
	require.NoError(t, k.Send(ctx, msg))

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, "b-1", string(m.Key))
	meta := kafkax.ExtractEventMeta(m)
	assert.Equal(t, "b-1:admin_new_booking", meta.EventID)
	assert.Equal(t, "admin_new_booking", meta.EventType)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", kafkax.HeaderValue(m.Headers, "traceparent"))

	var ev Event
	require.NoError(t, json.Unmarshal(m.Value, &ev))
	assert.Equal(t, "aiko@example.com", ev.To.Email)
	assert.Equal(t, msg.Booking.Slot.Start, ev.SlotStart)
	assert.NotEmpty(t, ev.Body)
}

func TestKafkaWriteFailure(t *testing.T) {
	k := newKafka(&captureWriter{err: errors.New("leader not available")}, "t")
	assert.ErrorIs(t, k.Send(context.Background(), testMessage(KindAdminNewBooking)), model.ErrNotificationDispatch)
}

func TestNewKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(KafkaConfig{Topic: "t"})
	assert.Error(t, err)
}

func TestWebhookSend(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "b-1:booking_confirmation", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL, "secret").Send(context.Background(), testMessage(KindBookingConfirmation)))
	assert.Equal(t, "aiko@example.com", got.To.Email)
	assert.Equal(t, "b-1", got.BookingID)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	assert.ErrorIs(t, NewWebhook(bad.URL, "").Send(context.Background(), testMessage(KindBookingConfirmation)), model.ErrNotificationDispatch)
}

type stubDispatcher struct {
	err   error
	calls int
}

func (s *stubDispatcher) Send(context.Context, Message) error {
	s.calls++
	return s.err
}

func TestFanoutSendsToAllAndJoinsErrors(t *testing.T) {
	ok, bad := &stubDispatcher{}, &stubDispatcher{err: dispatchErr("smtp", errors.New("refused"))}
	err := Fanout{bad, ok}.Send(context.Background(), testMessage(KindAdminNewBooking))
	assert.ErrorIs(t, err, model.ErrNotificationDispatch)
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)
	assert.NoError(t, Fanout{ok}.Send(context.Background(), testMessage(KindAdminNewBooking)))
	assert.NoError(t, Noop{}.Send(context.Background(), Message{}))
}

type memLog struct {
	entries []LogEntry
	err     error
}

func (m *memLog) RecordNotification(_ context.Context, e LogEntry) error {
	m.entries = append(m.entries, e)
	return m.err
}

func TestLoggedRecordsOutcome(t *testing.T) {
	log := &memLog{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, NewLogged(&stubDispatcher{}, log, logger).Send(context.Background(), testMessage(KindBookingConfirmation)))
	failing := NewLogged(&stubDispatcher{err: errors.New("boom")}, log, logger)
	assert.Error(t, failing.Send(context.Background(), testMessage(KindAdminNewBooking)))

	require.Len(t, log.entries, 2)
	assert.Equal(t, StatusSent, log.entries[0].Status)
	assert.Equal(t, "b-1", log.entries[0].BookingID)
	assert.Equal(t, StatusFailed, log.entries[1].Status)
	assert.Equal(t, "boom", log.entries[1].Error)
}

func TestLoggedIgnoresLogFailure(t *testing.T) {
	log := &memLog{err: errors.New("db down")}
	l := NewLogged(&stubDispatcher{}, log, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, l.Send(context.Background(), testMessage(KindBookingConfirmation)))
}
