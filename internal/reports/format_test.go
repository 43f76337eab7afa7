package reports

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatStockReport(t *testing.T) {
	rows := []StockRow{
		{Article: "WID-1", LocationCode: "A-01", Quantity: decimal.RequireFromString("1250.5"), Unit: "pcs", MinStock: decimal.NewFromInt(2000), LowStock: true},
		{Article: "GAD-2", LocationCode: "B-03", Quantity: decimal.NewFromInt(40), Unit: "box"},
	}

	out := FormatStockReport(rows)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "WID-1")
	require.Contains(t, lines[1], "1,250.500")
	require.Contains(t, lines[1], "LOW")
	require.Contains(t, lines[2], "GAD-2")
	require.NotContains(t, lines[2], "LOW")
}

func TestFormatStockReportEmpty(t *testing.T) {
	require.Contains(t, FormatStockReport(nil), "(no stock)")
}
