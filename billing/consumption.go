/*
consumption.go - Consumption deltas across adjacent periods

PURPOSE:
  Meters report cumulative values. What a member used in a period is the
  difference between this period's reading and the previous period's.

RULES:
  - No reading in the period: the meter contributes nothing (HasCurrent=false).
  - No previous period or no previous reading: Consumed = 0, Start = nil.
  - Consumed = current - previous, even when negative. A reading that went
    down is billed as negative consumption; the engine does not reject it.
  - The previous period is the calendar predecessor, so January looks at
    December of the year before.
*/
package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Consumption is one meter's usage in one period.
type Consumption struct {
	Meter      Meter
	HasCurrent bool
	Current    *MeterReading
	Previous   *MeterReading
	Consumed   decimal.Decimal
	Start      *decimal.Decimal
	End        *decimal.Decimal
}

// GroupConsumption is the group-wide reading total for one meter type.
type GroupConsumption struct {
	Current  decimal.Decimal
	Previous decimal.Decimal
}

// Delta is the denominator for proportional charges: current - previous when a
// previous total exists (is non-zero), otherwise the current total.
func (g GroupConsumption) Delta() decimal.Decimal {
	if g.Previous.IsZero() {
		return g.Current
	}
	return g.Current.Sub(g.Previous)
}

// Calculator resolves readings into consumption.
type Calculator struct {
	Repo Repository
}

// NewCalculator creates a calculator reading from repo.
func NewCalculator(repo Repository) *Calculator {
	return &Calculator{Repo: repo}
}

// Resolve computes the meter's consumption in period.
func (c *Calculator) Resolve(ctx context.Context, meter Meter, period Period) (Consumption, error) {
	result := Consumption{Meter: meter, Consumed: decimal.Zero}

	current, err := c.Repo.Reading(ctx, meter.ID, period.ID)
	if err != nil {
		return result, fmt.Errorf("reading for meter %s in %s: %w", meter.ID, period, err)
	}
	if current == nil {
		return result, nil
	}
	result.HasCurrent = true
	result.Current = current
	end := current.Value
	result.End = &end

	prevPeriod, err := c.previousPeriod(ctx, period)
	if err != nil {
		return result, err
	}
	if prevPeriod == nil {
		return result, nil
	}

	previous, err := c.Repo.Reading(ctx, meter.ID, prevPeriod.ID)
	if err != nil {
		return result, fmt.Errorf("reading for meter %s in %s: %w", meter.ID, prevPeriod, err)
	}
	if previous == nil {
		return result, nil
	}
	result.Previous = previous
	start := previous.Value
	result.Start = &start
	result.Consumed = current.Value.Sub(previous.Value)
	return result, nil
}

// Aggregate sums the group's readings for meterType in period and in the
// period before it. A missing period counts as zero.
func (c *Calculator) Aggregate(ctx context.Context, groupID uuid.UUID, meterType MeterType, period Period) (GroupConsumption, error) {
	result := GroupConsumption{Current: decimal.Zero, Previous: decimal.Zero}

	current, err := c.Repo.GroupReadingsTotal(ctx, groupID, meterType, period.ID)
	if err != nil {
		return result, fmt.Errorf("group %s total for %s in %s: %w", groupID, meterType, period, err)
	}
	result.Current = current

	prevPeriod, err := c.previousPeriod(ctx, period)
	if err != nil {
		return result, err
	}
	if prevPeriod == nil {
		return result, nil
	}

	previous, err := c.Repo.GroupReadingsTotal(ctx, groupID, meterType, prevPeriod.ID)
	if err != nil {
		return result, fmt.Errorf("group %s total for %s in %s: %w", groupID, meterType, prevPeriod, err)
	}
	result.Previous = previous
	return result, nil
}

func (c *Calculator) previousPeriod(ctx context.Context, period Period) (*Period, error) {
	prev := period.Previous()
	p, err := c.Repo.FindPeriod(ctx, prev.Year, prev.Month)
	if err != nil {
		return nil, fmt.Errorf("find period %s: %w", prev, err)
	}
	return p, nil
}
