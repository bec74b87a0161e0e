package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidPrice is returned when a scraped price cannot be turned into a non-negative amount.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrEmptyName is returned when a scraped record has no product name.
	ErrEmptyName = errors.New("product name must not be empty")
)

// UnknownStore is used when a record arrives without a store tag.
const UnknownStore = "unknown"

// Product represents a tracked product listing of a single store.
// ID is zero until the product has been persisted.
type Product struct {
	ID                    int64
	Name                  string
	Price                 decimal.Decimal
	Link                  string
	ImageURL              string
	Store                 string
	PriceChangePercentage decimal.Decimal
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// InitMeta initializes the product timestamps.
func (p *Product) InitMeta() {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
}

// RawProduct is a listing as produced by a scraper, before normalization.
type RawProduct struct {
	Name  string          `json:"name"`
	Price json.RawMessage `json:"price"`
	Link  string          `json:"link"`
	Image string          `json:"image"`
}

// PriceValue returns the raw price as a string or json.Number, whichever the scraper sent.
func (r RawProduct) PriceValue() (any, error) {
	if len(r.Price) == 0 {
		return nil, fmt.Errorf("%w: price is missing", ErrInvalidPrice)
	}
	if r.Price[0] == '"' {
		var s string
		if err := json.Unmarshal(r.Price, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
		}
		return s, nil
	}
	return json.Number(strings.TrimSpace(string(r.Price))), nil
}

// NewProductFromRaw normalizes a scraped record into a Product that has not been persisted yet.
func NewProductFromRaw(raw RawProduct, store string) (*Product, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return nil, ErrEmptyName
	}

	value, err := raw.PriceValue()
	if err != nil {
		return nil, err
	}
	price, err := ParsePrice(value)
	if err != nil {
		return nil, fmt.Errorf("product %q: %w", name, err)
	}

	if store == "" {
		store = UnknownStore
	}

	product := &Product{
		Name:                  name,
		Price:                 price,
		Link:                  raw.Link,
		ImageURL:              raw.Image,
		Store:                 store,
		PriceChangePercentage: decimal.Zero,
	}
	product.InitMeta()
	return product, nil
}

// ParsePrice converts price text such as "$1,299.99" or a numeric value into a decimal amount.
func ParsePrice(value any) (decimal.Decimal, error) {
	var (
		price decimal.Decimal
		err   error
	)

	switch v := value.(type) {
	case decimal.Decimal:
		price = v
	case string:
		price, err = parsePriceText(v)
	case json.Number:
		price, err = parsePriceText(v.String())
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("%w: %v is not a finite number", ErrInvalidPrice, v)
		}
		price = decimal.NewFromFloat(v)
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return decimal.Zero, fmt.Errorf("%w: %v is not a finite number", ErrInvalidPrice, v)
		}
		price = decimal.NewFromFloat32(v)
	case int:
		price = decimal.NewFromInt(int64(v))
	case int64:
		price = decimal.NewFromInt(v)
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported type %T", ErrInvalidPrice, value)
	}
	if err != nil {
		return decimal.Zero, err
	}

	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s is negative", ErrInvalidPrice, price.String())
	}
	return price, nil
}

var priceTextReplacer = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "")

func parsePriceText(text string) (decimal.Decimal, error) {
	cleaned := priceTextReplacer.Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: %q is empty", ErrInvalidPrice, text)
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, text)
	}
	return price, nil
}
