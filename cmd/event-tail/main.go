// Command event-tail follows the storefront domain event topics and logs each
// event, as an audit trail of back-office changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"ms-storefront/internal/config"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/joho/godotenv"
)

func main() {
	group := flag.String("group", "storefront-event-tail", "consumer group id")
	list := flag.Bool("list", false, "list broker topics and exit")
	flag.Parse()

	log := logger.NewLogger("event-tail")
	defer log.Close()
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *list {
		topics, err := kafka.ListTopics(ctx, cfg.Kafka.Brokers)
		if err != nil {
			log.Fatal("KAFKA", err.Error())
		}
		for _, t := range topics {
			log.Info("KAFKA", t)
		}
		return
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), *group, log)
	defer consumer.Close()

	err := consumer.Run(ctx, func(topic string, ev models.DomainEvent) error {
		log.LogKafka("RECEIVED", topic, describe(ev))
		return nil
	})
	if err != nil {
		log.Fatal("KAFKA", err.Error())
	}
}

func describe(ev models.DomainEvent) string {
	msg := fmt.Sprintf("%s %s by %q", ev.Type, ev.EntityID, ev.Actor)
	switch {
	case ev.Totals != nil:
		msg += fmt.Sprintf(" subtotal=%d total=%d", ev.Totals.Subtotal, ev.Totals.Total)
	case ev.Seats != nil:
		msg += fmt.Sprintf(" available=%d/%d delta=%d", ev.Seats.AvailableSeats, ev.Seats.TotalSeats, ev.Seats.Delta)
	}
	if ev.Status != "" {
		msg += fmt.Sprintf(" %s -> %s", ev.PreviousStatus, ev.Status)
	}
	return msg
}
