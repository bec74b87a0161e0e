package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"unicode"
	"unicode/utf8"

	"github.com/iyhunko/price-tracker/internal/config"
	"github.com/iyhunko/price-tracker/internal/metrics"
	"github.com/iyhunko/price-tracker/internal/model"
	"github.com/iyhunko/price-tracker/internal/report"
	"github.com/iyhunko/price-tracker/internal/repository"
	"github.com/iyhunko/price-tracker/internal/sqs"
	"github.com/shopspring/decimal"
)

const reportLimit = 1000

// ErrReportDeliveryDisabled is returned by SendReport when no document sender is configured.
var ErrReportDeliveryDisabled = errors.New("report delivery is not configured")

// PriceEventPublisher publishes price change events.
type PriceEventPublisher interface {
	PublishPriceChange(ctx context.Context, msg sqs.PriceChangeMessage) error
}

// DocumentSender delivers a rendered report file.
type DocumentSender interface {
	SendDocument(ctx context.Context, name string, data []byte, caption string) error
}

// TrackerService is the single entry point for scrapers and report renderers.
type TrackerService struct {
	repo          repository.ProductRepository
	publisher     PriceEventPublisher
	documents     DocumentSender
	dropThreshold decimal.Decimal
}

// NewTrackerService creates a TrackerService. publisher and documents may be nil.
// Products whose price fell by at least dropThreshold percent produce a price.dropped event.
func NewTrackerService(repo repository.ProductRepository, publisher PriceEventPublisher, documents DocumentSender, dropThreshold float64) *TrackerService {
	return &TrackerService{
		repo:          repo,
		publisher:     publisher,
		documents:     documents,
		dropThreshold: thresholdDecimal(dropThreshold),
	}
}

// thresholdDecimal falls back to the default threshold for NaN and infinities.
func thresholdDecimal(threshold float64) decimal.Decimal {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		slog.Warn("price drop threshold is not a finite number, using default",
			slog.Float64("threshold", threshold), slog.Float64("default", config.DefaultPriceDropThreshold))
		threshold = config.DefaultPriceDropThreshold
	}
	return decimal.NewFromFloat(threshold)
}

// StoreProducts normalizes scraped records of one store and upserts them as a batch.
// A malformed record rejects the whole batch with ErrInvalidArgument.
func (s *TrackerService) StoreProducts(ctx context.Context, store string, raws []model.RawProduct) ([]int64, error) {
	products := make([]*model.Product, 0, len(raws))
	for i, raw := range raws {
		product, err := model.NewProductFromRaw(raw, store)
		if err != nil {
			return nil, repository.InvalidArgument(fmt.Errorf("record %d: %w", i, err))
		}
		products = append(products, product)
	}

	ids, err := s.repo.UpsertProducts(ctx, products)
	if err != nil {
		return nil, err
	}
	slog.Info("products stored", slog.String("store", store), slog.Int("count", len(ids)))

	for _, product := range products {
		slog.Debug("product upserted",
			slog.Int64("product_id", product.ID),
			slog.String("store", product.Store),
			slog.String("name", product.Name),
			slog.String("price", product.Price.String()),
			slog.String("change_percentage", product.PriceChangePercentage.StringFixed(1)),
		)
		if s.isPriceDrop(product.PriceChangePercentage) {
			s.notifyPriceDrop(ctx, *product)
		}
	}

	return ids, nil
}

func (s *TrackerService) isPriceDrop(change decimal.Decimal) bool {
	if !change.IsNegative() {
		return false
	}
	return change.Neg().GreaterThanOrEqual(s.dropThreshold)
}

func (s *TrackerService) notifyPriceDrop(ctx context.Context, product model.Product) {
	metrics.PriceDrops.WithLabelValues(product.Store).Inc()
	slog.Info("price drop detected",
		slog.Int64("product_id", product.ID),
		slog.String("store", product.Store),
		slog.String("change_percentage", product.PriceChangePercentage.StringFixed(1)),
	)

	if s.publisher == nil {
		return
	}
	msg := sqs.NewPriceDropMessage(product)
	if err := s.publisher.PublishPriceChange(ctx, msg); err != nil {
		// Log error but don't fail the request
		slog.Error("Failed to send SQS message", slog.Any("err", err),
			slog.String("event_id", msg.EventID), slog.Int64("product_id", product.ID))
	}
}

// Products lists products, optionally filtered by store.
func (s *TrackerService) Products(ctx context.Context, query repository.Query) ([]model.Product, error) {
	return s.repo.GetProducts(ctx, query)
}

// ProductsWithStats lists products together with their price statistics.
func (s *TrackerService) ProductsWithStats(ctx context.Context, query repository.Query) ([]model.ProductWithStats, error) {
	return s.repo.GetProductsWithStats(ctx, query)
}

// Product returns a product by id, or nil when it does not exist.
func (s *TrackerService) Product(ctx context.Context, id int64) (*model.Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

// PriceHistory returns the price history of a product, newest first.
func (s *TrackerService) PriceHistory(ctx context.Context, id int64) ([]model.PricePoint, error) {
	return s.repo.GetPriceHistory(ctx, id)
}

// LatestPrices returns the newest recorded price per product id.
func (s *TrackerService) LatestPrices(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	return s.repo.GetLatestPrices(ctx, ids)
}

// PriceStatistics returns lowest, highest and average price of a product.
func (s *TrackerService) PriceStatistics(ctx context.Context, id int64) (model.PriceStats, error) {
	return s.repo.GetPriceStatistics(ctx, id)
}

// DeleteProduct removes a product and its history.
func (s *TrackerService) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.DeleteProduct(ctx, id)
}

// Report renders the products of a store, or of all stores when store is empty.
func (s *TrackerService) Report(ctx context.Context, store string, format report.Format) ([]byte, error) {
	query := repository.NewQuery().With(repository.StoreField, store).ApplyLimit(reportLimit)
	records, err := s.repo.GetProductsWithStats(ctx, *query)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, format, records); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

// SendReport renders the report of a store and delivers it as a document.
func (s *TrackerService) SendReport(ctx context.Context, store string, format report.Format) error {
	if s.documents == nil {
		return ErrReportDeliveryDisabled
	}

	data, err := s.Report(ctx, store, format)
	if err != nil {
		return err
	}

	name := format.FileName(store)
	if err := s.documents.SendDocument(ctx, name, data, reportCaption(store)); err != nil {
		return err
	}
	slog.Info("report sent", slog.String("store", store), slog.String("file", name))
	return nil
}

func reportCaption(store string) string {
	if store == "" {
		return "Product data from all stores"
	}
	first, size := utf8.DecodeRuneInString(store)
	return "Product data from " + string(unicode.ToUpper(first)) + store[size:]
}
