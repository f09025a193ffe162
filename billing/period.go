package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// PERIOD - A (year, month) billing period
// =============================================================================

// Period is a calendar month. (Year, Month) is unique across the system.
type Period struct {
	ID        uuid.UUID
	Year      int
	Month     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// YearMonth identifies a period without its storage key.
type YearMonth struct {
	Year  int
	Month int
}

// Key returns the (year, month) pair of the period.
func (p Period) Key() YearMonth {
	return YearMonth{Year: p.Year, Month: p.Month}
}

// Previous returns the calendar month before p. January rolls back to
// December of the previous year.
func (p Period) Previous() YearMonth {
	return p.Key().Previous()
}

// Previous returns the calendar month before ym.
func (ym YearMonth) Previous() YearMonth {
	if ym.Month <= 1 {
		return YearMonth{Year: ym.Year - 1, Month: 12}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month - 1}
}

// Validate checks that the month is 1..12 and the year positive.
func (ym YearMonth) Validate() error {
	if ym.Year <= 0 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, ym.Year)
	}
	if ym.Month < 1 || ym.Month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, ym.Month)
	}
	return nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%d-%02d", ym.Year, ym.Month)
}

func (p Period) String() string {
	return p.Key().String()
}
