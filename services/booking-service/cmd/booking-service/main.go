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
	"github.com/yawo-koffi/voyago/services/booking-service/internal/handlers"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/ledger"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/slotgen"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	slotRepo := storage.NewSlotRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool)
	hoursRepo := storage.NewHoursRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	bookingLedger := ledger.New(pool, slotRepo, bookingRepo, outboxRepo, logger)
	generator := slotgen.NewGenerator(hoursRepo, slotRepo, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// Reminder delivery outcomes flow back so booking rows carry the last
	// time a reminder actually went out.
	inboxRepo := inbox.NewRepository(pool)
	sentConsumer := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "notification.sent.v1"),
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			BookingID string `json:"booking_id"`
			SentAt    string `json:"sent_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.BookingID == "" {
			logger.Error("missing booking_id in event", "topic", msg.Topic)
			return nil
		}
		sentAt := time.Now().UTC()
		if ts, err := time.Parse(time.RFC3339, payload.SentAt); err == nil {
			sentAt = ts
		}
		return bookingRepo.StampReminder(ctx, payload.BookingID, sentAt)
	})
	go sentConsumer.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(bookingLedger, bookingRepo, slotRepo, logger)
	adminHandler := handlers.NewAdminHandler(generator, hoursRepo, slotRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Book)
	mux.HandleFunc("/api/v1/bookings", bookingHandler.List)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/bookings/confirm", bookingHandler.Confirm)
	mux.HandleFunc("/api/v1/bookings/complete", bookingHandler.Complete)
	mux.HandleFunc("/api/v1/admin/slots/generate", adminHandler.GenerateSlots)
	mux.HandleFunc("/api/v1/admin/slots/generate-recurring", adminHandler.GenerateRecurring)
	mux.HandleFunc("/api/v1/admin/slots/availability", adminHandler.SetAvailability)
	mux.HandleFunc("/api/v1/admin/slots/clear", adminHandler.ClearUnbooked)
	mux.HandleFunc("/api/v1/admin/hours", adminHandler.Hours)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
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
