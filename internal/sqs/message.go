package sqs

import (
	"time"

	"github.com/google/uuid"
	"github.com/iyhunko/price-tracker/internal/model"
	"github.com/shopspring/decimal"
)

// PriceDroppedEvent is the event type of messages published when a price falls below the alert threshold.
const PriceDroppedEvent = "price.dropped"

// PriceChangeMessage describes a price change of a tracked product.
type PriceChangeMessage struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	ProductID        int64           `json:"product_id"`
	Name             string          `json:"name"`
	Store            string          `json:"store"`
	Link             string          `json:"link"`
	Price            decimal.Decimal `json:"price"`
	ChangePercentage decimal.Decimal `json:"change_percentage"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// NewPriceDropMessage builds a price.dropped message for a freshly upserted product.
func NewPriceDropMessage(product model.Product) PriceChangeMessage {
	return PriceChangeMessage{
		EventID:          uuid.NewString(),
		EventType:        PriceDroppedEvent,
		ProductID:        product.ID,
		Name:             product.Name,
		Store:            product.Store,
		Link:             product.Link,
		Price:            product.Price,
		ChangePercentage: product.PriceChangePercentage,
		OccurredAt:       product.UpdatedAt,
	}
}
