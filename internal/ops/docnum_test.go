package ops

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDocumentNumberFormat(t *testing.T) {
	at := time.Date(2026, 3, 7, 15, 4, 5, 0, time.UTC)
	pattern := regexp.MustCompile(`^(RCV|SHP|MOV|INV)-20260307-\d{4}$`)

	for _, op := range []OperationType{OperationReceipt, OperationShipment, OperationMovement, OperationInventory} {
		for i := 0; i < 100; i++ {
			num := DocumentNumber(op, at)
			require.Regexp(t, pattern, num)
		}
	}

	require.Regexp(t, `^RCV-`, DocumentNumber(OperationReceipt, at))
	require.Regexp(t, `^SHP-`, DocumentNumber(OperationShipment, at))
	require.Regexp(t, `^MOV-`, DocumentNumber(OperationMovement, at))
	require.Regexp(t, `^INV-`, DocumentNumber(OperationInventory, at))
}
