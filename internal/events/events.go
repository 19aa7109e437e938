// Package events publishes completed sales for downstream consumers
// (dashboards, bookkeeping exports).
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/config"
	"github.com/shopspring/decimal"
)

const EventTypeSaleCompleted = "sale.completed"

type SaleItem struct {
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	Weight    string          `json:"weight"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type SaleCompleted struct {
	EventID           uuid.UUID       `json:"event_id"`
	OwnerID           uuid.UUID       `json:"owner_id"`
	TransactionID     uuid.UUID       `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	Total             decimal.Decimal `json:"total_amount"`
	Tendered          decimal.Decimal `json:"customer_money"`
	Change            decimal.Decimal `json:"change_amount"`
	Items             []SaleItem      `json:"items"`
	CompletedAt       time.Time       `json:"completed_at"`
}

type Publisher interface {
	PublishSale(ctx context.Context, event SaleCompleted) error
	Close() error
}

// NewPublisher returns a Kafka publisher, or a log-only one when no brokers
// are configured.
func NewPublisher(cfg config.KafkaConfig, logger zerolog.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		return NewLogPublisher(logger)
	}
	return NewKafkaPublisher(cfg, logger)
}

type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) PublishSale(_ context.Context, event SaleCompleted) error {
	p.logger.Info().
		Str("event_type", EventTypeSaleCompleted).
		Str("owner_id", event.OwnerID.String()).
		Str("transaction_number", event.TransactionNumber).
		Str("total", event.Total.String()).
		Int("items", len(event.Items)).
		Msg("sale completed")
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
