package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/iyhunko/price-tracker/internal/model"
	"github.com/xuri/excelize/v2"
)

const (
	defaultSheet      = "Sheet1"
	emptyReportSheet  = "Products"
	maxSheetNameRunes = 31
)

var sheetNameReplacer = strings.NewReplacer(
	"[", "_", "]", "_", ":", "_", "*", "_", "?", "_", "/", "_", "\\", "_",
)

// WriteXLSX writes the records as a workbook with one sheet per store.
func WriteXLSX(w io.Writer, records []model.ProductWithStats) error {
	f := excelize.NewFile()
	defer f.Close()

	sheets, byStore := groupByStore(records)
	if len(sheets) == 0 {
		sheets = []string{emptyReportSheet}
	}

	for i, store := range sheets {
		sheet := sheetName(store)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}

		if err := writeSheetRow(f, sheet, 1, Header); err != nil {
			return err
		}
		for j, record := range byStore[store] {
			if err := writeSheetRow(f, sheet, j+2, Row(record)); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func groupByStore(records []model.ProductWithStats) ([]string, map[string][]model.ProductWithStats) {
	var stores []string
	byStore := make(map[string][]model.ProductWithStats)
	for _, record := range records {
		store := record.Product.Store
		if _, ok := byStore[store]; !ok {
			stores = append(stores, store)
		}
		byStore[store] = append(byStore[store], record)
	}
	return stores, byStore
}

func writeSheetRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to resolve cell: %w", err)
	}

	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d of sheet %s: %w", row, sheet, err)
	}
	return nil
}

func sheetName(store string) string {
	name := sheetNameReplacer.Replace(strings.TrimSpace(store))
	if name == "" {
		name = emptyReportSheet
	}
	if runes := []rune(name); len(runes) > maxSheetNameRunes {
		name = string(runes[:maxSheetNameRunes])
	}
	return name
}
