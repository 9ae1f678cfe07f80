package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docbookhq/docbook/internal/availability"
	"github.com/docbookhq/docbook/internal/consumer"
	"github.com/docbookhq/docbook/internal/inbox"
	"github.com/docbookhq/docbook/internal/notify"
	"github.com/docbookhq/docbook/internal/outbox"
	"github.com/docbookhq/docbook/libs/db"
	"github.com/docbookhq/docbook/libs/kafkax"
	otelx "github.com/docbookhq/docbook/libs/otel"
	"github.com/docbookhq/docbook/libs/runtime"
	"github.com/segmentio/kafka-go"
)

// appointmentEvent is the shared payload shape of booking and cancellation
// events. Cancellation adds reason; deposit events omit patient fields.
type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	SlotID        string `json:"slot_id"`
	DoctorID      string `json:"doctor_id"`
	PatientName   string `json:"patient_name"`
	PatientEmail  string `json:"patient_email"`
	Serial        int    `json:"serial"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	Reason        string `json:"reason"`
}

func bookedMail(evt appointmentEvent) (subject, body string) {
	when := evt.Date
	if display := availability.FormatTimeOfDay(evt.StartTime); display != "" {
		when += " " + display
	}
	subject = "Appointment confirmed"
	body = fmt.Sprintf(
		"Dear %s,\n\nYour appointment is confirmed for %s.\nYour serial number is %d.\n\nPlease arrive before your serial is called.\n",
		evt.PatientName, when, evt.Serial,
	)
	return subject, body
}

func cancelledMail(evt appointmentEvent) (subject, body string) {
	subject = "Appointment cancelled"
	body = fmt.Sprintf(
		"Dear %s,\n\nYour appointment (serial %d) has been cancelled by the chamber.\n",
		evt.PatientName, evt.Serial,
	)
	if reason := strings.TrimSpace(evt.Reason); reason != "" {
		body += "\nReason: " + reason + "\n"
	}
	return subject, body
}

func main() {
	service := runtime.Env("SERVICE_NAME", "docbook-notifier")
	port, err := runtime.EnvPort("PORT", "8081")
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

	dbURL, err := runtime.RequiredEnv("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, int32(runtime.EnvInt("DB_MAX_CONNS", 5)))
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	kafkaBrokers, err := runtime.RequiredEnv("KAFKA_BROKERS")
	if err != nil {
		panic(err)
	}
	groupID := runtime.Env("KAFKA_GROUP_ID", "docbook-notifier")

	sender := notify.NewSMTPSender(
		runtime.Env("SMTP_HOST", "localhost"),
		runtime.Env("SMTP_PORT", "1025"),
		runtime.Env("SMTP_FROM", ""),
	)

	inboxRepo := inbox.NewRepository(pool)

	makeHandler := func(mail func(appointmentEvent) (string, string)) consumer.Handler {
		return func(ctx context.Context, msg kafka.Message) error {
			var evt appointmentEvent
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if evt.PatientEmail == "" {
				logger.Info("no patient email on appointment, skipping mail",
					"appointment_id", evt.AppointmentID, "topic", msg.Topic)
				return nil
			}
			subject, body := mail(evt)
			if err := sender.Send(evt.PatientEmail, subject, body); err != nil {
				return err
			}
			logger.Info("notification sent",
				"appointment_id", evt.AppointmentID, "topic", msg.Topic, "to", evt.PatientEmail)
			return nil
		}
	}

	startConsumer := func(topic string, handler consumer.Handler) {
		cfg := consumer.Config{Brokers: kafkaBrokers, GroupID: groupID, Topic: topic}
		go consumer.New(logger, inboxRepo, cfg, handler).Run(ctx)
	}

	startConsumer(outbox.EventAppointmentBooked, makeHandler(bookedMail))
	startConsumer(outbox.EventAppointmentCancelled, makeHandler(cancelledMail))

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
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
