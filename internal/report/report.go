package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/iyhunko/price-tracker/internal/model"
	"github.com/shopspring/decimal"
)

// Format is an output format of a product report.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for unknown report formats.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Header is the fixed column order of every report.
var Header = []string{
	"Name", "Current Price", "Price Change %", "Lowest Price", "Highest Price", "Average Price", "Link", "Image", "Store",
}

// ParseFormat maps a format name to a Format. An empty name selects CSV.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// FileName returns the report file name for a store.
func (f Format) FileName(store string) string {
	if store == "" {
		store = "products"
	}
	return store + "." + string(f)
}

// FormatMoney renders an amount as "$1234.50".
func FormatMoney(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

// FormatChange renders a percentage with an explicit sign, e.g. "+5.0%" or "-10.0%".
func FormatChange(change decimal.Decimal) string {
	s := change.StringFixed(1)
	if !strings.HasPrefix(s, "-") {
		s = "+" + s
	}
	return s + "%"
}

// Row renders one product in Header order.
func Row(record model.ProductWithStats) []string {
	p := record.Product
	return []string{
		p.Name,
		FormatMoney(p.Price),
		FormatChange(p.PriceChangePercentage),
		FormatMoney(record.Stats.Lowest),
		FormatMoney(record.Stats.Highest),
		FormatMoney(record.Stats.Average),
		p.Link,
		p.ImageURL,
		p.Store,
	}
}

// Render writes the records in the given format.
func Render(w io.Writer, format Format, records []model.ProductWithStats) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatXLSX:
		return WriteXLSX(w, records)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteCSV writes the records as comma separated values with a header line.
func WriteCSV(w io.Writer, records []model.ProductWithStats) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(Row(record)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
