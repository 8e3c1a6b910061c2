package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tutorhub/bookingengine/libs/db"
	"github.com/tutorhub/bookingengine/libs/grpcx"
	"github.com/tutorhub/bookingengine/libs/httpx"
	"github.com/tutorhub/bookingengine/libs/kafkax"
	otelx "github.com/tutorhub/bookingengine/libs/otel"
	"github.com/tutorhub/bookingengine/libs/runtime"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/availability"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/booking"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/handlers"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/notify"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/policy"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/storage"
	"github.com/tutorhub/bookingengine/services/booking-service/migrations"
)

// ledger is the local record of bookings, idempotency keys and sent
// notifications: Postgres when DATABASE_URL is set, process memory otherwise.
type ledger interface {
	booking.Ledger
	handlers.Idempotency
	handlers.BookingLister
	notify.Log
}

type pgLedger struct {
	*storage.BookingRepository
	*storage.NotificationLog
}

func main() {
	cfg, loc, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var readyChecks []runtime.ReadyCheck
	var (
		admin policy.Admin
		local ledger
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx, pool, migrations.FS, migrations.Dir, logger); err != nil {
				logger.Error("db migration failed", "err", err)
				panic(err)
			}
		}
		admin = storage.NewPolicyRepository(pool)
		local = pgLedger{storage.NewBookingRepository(pool), storage.NewNotificationLog(pool)}
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		logger.Warn("DATABASE_URL not set; policy and bookings are kept in memory")
		admin = policy.NewMemory(defaultWeeklyTemplate())
		local = storage.NewMemory()
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = openRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("redis unavailable; using process-local locks and rate limits", "err", err)
			rdb = nil
		} else {
			defer rdb.Close()
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}})
		}
	}

	cal, err := buildCalendar(ctx, cfg, loc, logger)
	if err != nil {
		logger.Error("calendar provider init failed", "err", err)
		panic(err)
	}

	notifier, closers, err := buildNotifier(cfg, local, logger)
	if err != nil {
		logger.Error("notifier init failed", "err", err)
		panic(err)
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if cfg.KafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	cached := policy.NewCachedStore(admin, cfg.PolicyCacheSize, cfg.PolicyCacheTTL)
	manager := policy.NewManager(admin, cached, logger)

	slots := availability.NewService(cached, cal, availability.Config{
		CalendarID:       cfg.CalendarID,
		Location:         loc,
		SlotDuration:     cfg.slotDuration(),
		MaxRangeDays:     cfg.MaxRangeDays,
		DefaultRangeDays: cfg.DefaultRangeDays,
	}, logger)

	var locker booking.SlotLocker = booking.NewLocalLocker()
	if rdb != nil {
		locker = booking.NewRedisLocker(rdb, "booking:slot-lock", logger)
	}
	deps := booking.Deps{
		Busy:     cal,
		Events:   cal,
		Notifier: notifier,
		Locker:   locker,
		Ledger:   local,
	}
	if cfg.EnforcePolicy {
		deps.Policy = slots
	}
	transactor := booking.NewTransactor(deps, booking.Config{
		CalendarID:     cfg.CalendarID,
		Location:       loc,
		SlotDuration:   cfg.slotDuration(),
		EventTimeout:   cfg.EventTimeout,
		NotifyTimeout:  cfg.NotifyTimeout,
		LockTTL:        cfg.SlotLockTTL,
		BusinessName:   cfg.BusinessName,
		AdminEmail:     cfg.AdminEmail,
		AdminName:      cfg.AdminName,
		RequestMeeting: cfg.RequestMeeting,
	}, logger)

	var publicLimit httpx.Middleware
	if cfg.RateLimitPerMinute > 0 {
		if rdb != nil {
			publicLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "booking:rl").Middleware(logger, true)
		} else {
			publicLimit = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware()
		}
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.Register(mux,
		handlers.NewBookingHandler(slots, transactor, local, logger),
		handlers.NewAdminHandler(manager, local, loc, nil, logger),
		handlers.RouteOptions{
			BodyLimit:       cfg.BodyLimitBytes,
			PublicLimit:     publicLimit,
			ReadTimeout:     cfg.RequestTimeout,
			AdminJWTSecret:  cfg.AdminJWTSecret,
			AdminAPIKeyHash: cfg.AdminAPIKeyHash,
			Logger:          logger,
		},
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Api-Key", httpx.RequestIDHeader},
			MaxAge:         cfg.CORSMaxAge,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewServer(logger)
	grpcSrv.SetServing(cfg.ServiceName, true)
	grpcDone := make(chan struct{})
	go func() {
		defer close(grpcDone)
		if err := grpcSrv.Run(ctx, ":"+cfg.GRPCPort, 5*time.Second); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "calendar", cfg.CalendarProvider, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	grpcSrv.SetServing(cfg.ServiceName, false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	<-grpcDone
	logger.Info("http server stopped")
}

// defaultWeeklyTemplate opens Monday to Saturday, 10:00 to 21:00, for runs
// without a database.
func defaultWeeklyTemplate() []model.WeeklyTemplate {
	rows := make([]model.WeeklyTemplate, 0, 6)
	for d := time.Monday; d <= time.Saturday; d++ {
		rows = append(rows, model.WeeklyTemplate{
			DayOfWeek: d,
			Start:     model.NewClockTime(10, 0),
			End:       model.NewClockTime(21, 0),
			Enabled:   true,
		})
	}
	return rows
}
