package billing

import (
	"fmt"

	"github.com/google/uuid"
)

// InvoiceNumber formats INV-{yyyy}{mm}-{member}-{random}, where member is the
// first 6 hex characters of the member ID and random is 4 hex characters from
// a fresh v4 UUID. Collisions are possible; the store's unique index on the
// number turns them into ErrDuplicateInvoiceNumber.
func InvoiceNumber(period Period, memberID uuid.UUID) string {
	return fmt.Sprintf("INV-%d%02d-%s-%s",
		period.Year, period.Month,
		memberID.String()[:6],
		uuid.New().String()[:4],
	)
}

// NumberFunc allocates an invoice number. Tests replace it to force collisions.
type NumberFunc func(period Period, memberID uuid.UUID) string
