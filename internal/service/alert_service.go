package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/iyhunko/price-tracker/internal/report"
	"github.com/iyhunko/price-tracker/internal/sqs"
)

// MessageSender delivers a text alert.
type MessageSender interface {
	SendMessage(ctx context.Context, text string) error
}

// AlertService turns price events into chat alerts.
type AlertService struct {
	sender MessageSender
}

func NewAlertService(sender MessageSender) *AlertService {
	return &AlertService{sender: sender}
}

// HandlePriceChange sends an alert for price.dropped events and ignores everything else.
// It matches sqs.Handler.
func (a *AlertService) HandlePriceChange(ctx context.Context, msg sqs.PriceChangeMessage) error {
	if msg.EventType != sqs.PriceDroppedEvent {
		slog.Debug("skipping event", slog.String("event_type", msg.EventType), slog.String("event_id", msg.EventID))
		return nil
	}

	if err := a.sender.SendMessage(ctx, FormatPriceDropAlert(msg)); err != nil {
		return fmt.Errorf("failed to send price drop alert: %w", err)
	}
	slog.Info("price drop alert sent", slog.String("event_id", msg.EventID), slog.Int64("product_id", msg.ProductID))
	return nil
}

// FormatPriceDropAlert renders the HTML alert text for a price drop.
func FormatPriceDropAlert(msg sqs.PriceChangeMessage) string {
	text := fmt.Sprintf("<b>Price drop at %s</b>\n%s\nNow %s (%s)",
		html.EscapeString(msg.Store),
		html.EscapeString(msg.Name),
		report.FormatMoney(msg.Price),
		report.FormatChange(msg.ChangePercentage),
	)
	if msg.Link != "" {
		text += fmt.Sprintf("\n<a href=\"%s\">View product</a>", html.EscapeString(msg.Link))
	}
	return text
}
