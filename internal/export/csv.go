// Package export renders export cart contents as CSV and optionally
// archives the rendered files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/tariffsim/tariff-engine/internal/model"
)

var header = []string{
	"ID", "Product", "Brand", "Exporting From", "Importing To", "Quantity", "Unit",
	"Product Cost", "Tariff Rate", "Tariff Amount", "Total Cost", "Tariff Type", "Created At",
}

// WriteCSV writes a header row and one row per entry. Money columns use two
// decimal places and the rate carries a percent sign.
func WriteCSV(w io.Writer, entries []model.CalculationHistoryEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.ID,
			e.Product,
			e.Brand,
			e.ExportingFrom,
			e.ImportingTo,
			e.Quantity.String(),
			e.Unit,
			e.ProductCost.StringFixed(2),
			e.TariffRate.StringFixed(2) + "%",
			e.TariffAmount.StringFixed(2),
			e.TotalCost.StringFixed(2),
			e.TariffType,
			e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename names an export produced at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("export_cart_%d.csv", t.UnixMilli())
}
