package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
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
	"github.com/yawo-koffi/voyago/services/notification-service/internal/email"
	"github.com/yawo-koffi/voyago/services/notification-service/internal/sms"
	"github.com/yawo-koffi/voyago/services/notification-service/internal/storage"
	"github.com/yawo-koffi/voyago/services/notification-service/internal/template"
)

type reminderDuePayload struct {
	BookingID     string `json:"booking_id"`
	SubjectName   string `json:"subject_name"`
	ContactEmail  string `json:"contact_email"`
	ContactPhone  string `json:"contact_phone"`
	SlotStart     string `json:"slot_start"`
	SlotEnd       string `json:"slot_end"`
	LeadHours     int    `json:"lead_hours"`
	EmailEnabled  bool   `json:"email_enabled"`
	SMSEnabled    bool   `json:"sms_enabled"`
	EmailTemplate string `json:"email_template"`
	SMSTemplate   string `json:"sms_template"`
}

// newReminderDuePayload seeds the channel flags so events from before the
// per-channel settings existed still deliver over both channels.
func newReminderDuePayload() reminderDuePayload {
	return reminderDuePayload{EmailEnabled: true, SMSEnabled: true}
}

// pickChannel selects the delivery channel: email when it is enabled and an
// address is known, otherwise SMS under the same conditions.
func pickChannel(p reminderDuePayload) (channel, recipient string, ok bool) {
	if p.EmailEnabled && p.ContactEmail != "" {
		return "email", p.ContactEmail, true
	}
	if p.SMSEnabled && p.ContactPhone != "" {
		return "sms", p.ContactPhone, true
	}
	return "", "", false
}

func templateOr(custom, fallback string) string {
	if strings.TrimSpace(custom) == "" {
		return fallback
	}
	return custom
}

func writeOutboxResult(ctx context.Context, pool *db.Pool, outboxRepo *outbox.Repository, payload reminderDuePayload, eventType string, extra map[string]any) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fields := map[string]any{
		"booking_id": payload.BookingID,
		"lead_hours": payload.LeadHours,
	}
	for k, v := range extra {
		fields[k] = v
	}
	eventPayload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	if err := outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   payload.BookingID,
		EventType:     eventType,
		Payload:       eventPayload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@voyago.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	default:
		smsSender = sms.NewNoopSender()
	}

	eventConsumer := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "reminder.due.v1"),
	}, func(ctx context.Context, msg kafka.Message) error {
		payload := newReminderDuePayload()
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid reminder payload", "err", err)
			return nil
		}
		if payload.BookingID == "" || payload.SlotStart == "" {
			logger.Error("missing reminder fields")
			return nil
		}
		slotStart, err := time.Parse(time.RFC3339, payload.SlotStart)
		if err != nil {
			logger.Error("invalid slot_start", "err", err)
			return nil
		}

		data := template.Data{
			Name:  payload.SubjectName,
			Start: slotStart.Format("2006-01-02 15:04 MST"),
			Hours: strconv.Itoa(payload.LeadHours),
		}
		if slotEnd, err := time.Parse(time.RFC3339, payload.SlotEnd); err == nil {
			data.End = slotEnd.Format("2006-01-02 15:04 MST")
		}
		if data.Name == "" {
			data.Name = "traveler"
		}

		channel, recipient, ok := pickChannel(payload)
		if !ok {
			logger.Warn("reminder has no enabled channel with contact details", "booking_id", payload.BookingID)
			return writeOutboxResult(ctx, pool, outboxRepo, payload, "notification.failed.v1", map[string]any{
				"error_reason": "no enabled channel with contact details",
				"failed_at":    time.Now().UTC().Format(time.RFC3339),
			})
		}

		var sendErr error
		switch channel {
		case "email":
			subject := template.Render(template.DefaultEmailSubject, data)
			body := template.Render(templateOr(payload.EmailTemplate, template.DefaultEmailBody), data)
			sendErr = emailSender.Send(recipient, subject, body)
		case "sms":
			sendErr = smsSender.Send(ctx, recipient, template.Render(templateOr(payload.SMSTemplate, template.DefaultSMSBody), data))
		}

		status := "sent"
		if sendErr != nil {
			status = "failed"
			logger.Error("notification send failed", "booking_id", payload.BookingID, "channel", channel, "err", sendErr)
		}

		if err := notificationsRepo.Insert(ctx, storage.Notification{
			BookingID: payload.BookingID,
			Channel:   channel,
			Recipient: recipient,
			LeadHours: payload.LeadHours,
			Payload:   map[string]any{"slot_start": payload.SlotStart, "subject_name": payload.SubjectName},
			Status:    status,
		}); err != nil {
			return err
		}

		if sendErr != nil {
			return writeOutboxResult(ctx, pool, outboxRepo, payload, "notification.failed.v1", map[string]any{
				"channel":      channel,
				"error_reason": sendErr.Error(),
				"failed_at":    time.Now().UTC().Format(time.RFC3339),
			})
		}
		return writeOutboxResult(ctx, pool, outboxRepo, payload, "notification.sent.v1", map[string]any{
			"channel": channel,
			"sent_at": time.Now().UTC().Format(time.RFC3339),
		})
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "notification")
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
