package reports

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatStockReport renders the stock report as a plain-text table with
// grouped digits, the format the warehouse floor prints out.
func FormatStockReport(rows []StockRow) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	b.WriteString("ARTICLE          LOCATION   QUANTITY        UNIT  FLAGS\n")
	for _, row := range rows {
		flags := ""
		if row.LowStock {
			flags = "LOW"
		}
		qty, _ := row.Quantity.Float64()
		p.Fprintf(&b, "%-16s %-10s %12.3f  %-4s  %s\n", row.Article, row.LocationCode, qty, row.Unit, flags)
	}
	if len(rows) == 0 {
		b.WriteString("(no stock)\n")
	}
	return b.String()
}
