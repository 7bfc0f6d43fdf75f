package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/psds-microservice/support-ticket-service/internal/application"
	"github.com/psds-microservice/support-ticket-service/internal/clock"
	"github.com/psds-microservice/support-ticket-service/internal/database"
	"github.com/psds-microservice/support-ticket-service/internal/events"
	"github.com/psds-microservice/support-ticket-service/internal/service"
)

const republishBatch = 200

var republishCmd = &cobra.Command{
	Use:   "republish",
	Short: "Replay every ticket as a ticket.updated event to the configured sinks (Kafka, RabbitMQ, webhook)",
	RunE:  runRepublish,
}

func runRepublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	notifier := events.NewNotifier(events.Open(application.EventsConfig(cfg)), clock.Real())
	if !notifier.Enabled() {
		return errors.New("republish: no event sinks configured (KAFKA_BROKERS, RABBITMQ_URL, EVENTS_WEBHOOK_URL)")
	}
	defer notifier.Close()

	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	svc := service.NewTicketService(db, clock.Real())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sent, failed := 0, 0
	var lastID uint64
	for {
		page, err := svc.ListAfter(ctx, lastID, republishBatch)
		if err != nil {
			return fmt.Errorf("republish: list tickets: %w", err)
		}
		for i := range page {
			lastID = page[i].ID
			if err := notifier.Publish(ctx, events.TypeTicketUpdated, &page[i]); err != nil {
				failed++
				slog.Warn("republish: publish failed", "ticket_id", page[i].ID, "error", err)
				continue
			}
			sent++
		}
		slog.Info("republish: progress", "sent", sent, "failed", failed)
		if len(page) < republishBatch {
			break
		}
	}
	slog.Info("republish: done", "sent", sent, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("republish: %d of %d events failed", failed, sent+failed)
	}
	return nil
}
