package ops

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// DocumentNumber builds a human-readable document number in the form
// <PREFIX>-<YYYYMMDD>-<4 digits>. The random suffix may collide across
// concurrent postings; uniqueness is enforced by the documents table and the
// engine regenerates on collision.
func DocumentNumber(op OperationType, at time.Time) string {
	return fmt.Sprintf("%s-%s-%04d", op.Prefix(), at.Format("20060102"), rand.IntN(9999)+1)
}
