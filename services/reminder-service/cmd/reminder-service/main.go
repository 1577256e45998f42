package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yawo-koffi/voyago/libs/config"
	"github.com/yawo-koffi/voyago/libs/db"
	"github.com/yawo-koffi/voyago/libs/httpx"
	"github.com/yawo-koffi/voyago/libs/inbox"
	"github.com/yawo-koffi/voyago/libs/kafkax"
	otelx "github.com/yawo-koffi/voyago/libs/otel"
	"github.com/yawo-koffi/voyago/libs/outbox"
	"github.com/yawo-koffi/voyago/libs/runtime"
	"github.com/yawo-koffi/voyago/services/reminder-service/internal/dispatch"
	"github.com/yawo-koffi/voyago/services/reminder-service/internal/handlers"
	"github.com/yawo-koffi/voyago/services/reminder-service/internal/scan"
	"github.com/yawo-koffi/voyago/services/reminder-service/internal/storage"
)

// The booking lifecycle topics this service projects into upcoming_bookings.
var bookingTopics = []string{
	"booking.scheduled.v1",
	"booking.confirmed.v1",
	"booking.cancelled.v1",
	"booking.completed.v1",
}

func main() {
	service := config.String("SERVICE_NAME", "reminder-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	upcomingRepo := storage.NewUpcomingRepository(pool)
	settingsRepo := storage.NewSettingsRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	inboxRepo := inbox.NewRepository(pool)
	groupID := config.String("KAFKA_GROUP_ID", "reminder-service")
	for _, topic := range bookingTopics {
		eventConsumer := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				BookingID    string `json:"booking_id"`
				Status       string `json:"status"`
				SubjectName  string `json:"subject_name"`
				ContactEmail string `json:"contact_email"`
				ContactPhone string `json:"contact_phone"`
				SlotStart    string `json:"slot_start"`
				SlotEnd      string `json:"slot_end"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.BookingID == "" || payload.Status == "" {
				logger.Error("missing required event fields", "topic", msg.Topic)
				return nil
			}
			slotStart, err := time.Parse(time.RFC3339, payload.SlotStart)
			if err != nil {
				// Status-only updates still apply when the payload has no usable times.
				return upcomingRepo.SetStatus(ctx, payload.BookingID, payload.Status)
			}
			slotEnd, err := time.Parse(time.RFC3339, payload.SlotEnd)
			if err != nil {
				slotEnd = slotStart
			}
			return upcomingRepo.Upsert(ctx, storage.UpcomingBooking{
				BookingID:    payload.BookingID,
				SubjectName:  payload.SubjectName,
				ContactEmail: payload.ContactEmail,
				ContactPhone: payload.ContactPhone,
				SlotStart:    slotStart,
				SlotEnd:      slotEnd,
				Status:       payload.Status,
			})
		})
		go eventConsumer.Run(ctx)
	}

	dispatcher := dispatch.NewOutboxDispatcher(pool, outboxRepo)
	scanner := scan.NewScanner(upcomingRepo, dispatcher, settingsRepo, logger)

	scanEvery := time.Duration(config.Int("SCAN_INTERVAL_MINUTES", 15)) * time.Minute
	worker := scan.NewWorker(scanner, logger, scanEvery)
	go worker.Run(ctx)

	reminderHandler := handlers.NewReminderHandler(scanner, settingsRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/admin/reminders/run", reminderHandler.Run)
	mux.HandleFunc("/api/v1/admin/settings/reminders", reminderHandler.Settings)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "reminder")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
