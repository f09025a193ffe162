/*
distribution.go - The four allocation rules

PURPOSE:
  A PeriodCharge is an amount the whole group owes. A Strategy decides what
  share of it one member pays and describes that share as invoice items.

RULES:
  fixed         every member pays the full amount
  equal_split   amount / number of members in the group
  by_area       amount * member floor area / total floor area of the group
  proportional  one item per member meter of the charge's meter type:
                amount * meter consumption / group-wide consumption

ROUNDING:
  Line totals are rounded to 2 places with banker's rounding. Unit prices keep
  full precision. Shares are not reconciled against the charge amount, so the
  sum over all members may differ from the amount by a few cents.

DATA ABSENCE:
  A zero denominator (no members, no floor area, no group consumption) yields
  zero-valued items, never an error. A meter without a reading in the period
  yields no item at all.

The variant set is closed: Strategy has an unexported method, so only the types
in this file implement it. ChargeDefinition.Strategy is the one place where a
rule tag is turned into a variant.
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// moneyPlaces is the number of decimal places kept on line totals.
const moneyPlaces = 2

// =============================================================================
// STRATEGY
// =============================================================================

// AllocationInput is the group-level snapshot a strategy allocates against.
type AllocationInput struct {
	MemberCount int
	TotalArea   decimal.Decimal

	// Meters holds the member's meters of the charge's meter type, resolved
	// for the period. Only filled for Proportional.
	Meters []Consumption

	// Group is the group-wide consumption of the charge's meter type. Only
	// filled for Proportional.
	Group GroupConsumption
}

// Allocation is one member's share of one charge.
type Allocation struct {
	Items    []InvoiceItem
	Subtotal decimal.Decimal
}

func newAllocation(items ...InvoiceItem) Allocation {
	a := Allocation{Items: items, Subtotal: decimal.Zero}
	for _, it := range items {
		a.Subtotal = a.Subtotal.Add(it.Total)
	}
	return a
}

// Strategy computes a member's share of a period charge.
type Strategy interface {
	Rule() Rule
	Apply(member Member, charge PeriodCharge, in AllocationInput) Allocation
	strategy()
}

// Strategy returns the allocation variant for the definition's rule, or false
// for a rule this engine does not know.
func (d ChargeDefinition) Strategy() (Strategy, bool) {
	switch d.Rule {
	case RuleFixed:
		return FixedFee{}, true
	case RuleEqualSplit:
		return EqualSplit{}, true
	case RuleByArea:
		return ByArea{}, true
	case RuleProportional:
		return Proportional{MeterType: d.MeterType}, true
	default:
		return nil, false
	}
}

func itemDescription(charge PeriodCharge) string {
	return charge.Definition.Name + " (" + charge.Definition.Rule.Label() + ")"
}

func chargeRef(charge PeriodCharge) *PeriodCharge {
	c := charge
	return &c
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(moneyPlaces)
}

// =============================================================================
// FIXED FEE
// =============================================================================

// FixedFee charges every member the full amount.
type FixedFee struct{}

func (FixedFee) Rule() Rule { return RuleFixed }

func (FixedFee) strategy() {}

func (FixedFee) Apply(_ Member, charge PeriodCharge, _ AllocationInput) Allocation {
	total := roundMoney(charge.Amount)
	return newAllocation(InvoiceItem{
		Description: itemDescription(charge),
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   charge.Amount,
		Total:       total,
		Charge:      chargeRef(charge),
	})
}

// =============================================================================
// EQUAL SPLIT
// =============================================================================

// EqualSplit divides the amount evenly across the group's members.
type EqualSplit struct{}

func (EqualSplit) Rule() Rule { return RuleEqualSplit }

func (EqualSplit) strategy() {}

func (EqualSplit) Apply(_ Member, charge PeriodCharge, in AllocationInput) Allocation {
	share := decimal.Zero
	if in.MemberCount > 0 {
		share = charge.Amount.Div(decimal.NewFromInt(int64(in.MemberCount)))
	}
	return newAllocation(InvoiceItem{
		Description: itemDescription(charge),
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   share,
		Total:       roundMoney(share),
		Charge:      chargeRef(charge),
	})
}

// =============================================================================
// BY AREA
// =============================================================================

// ByArea weights the amount by the member's floor area.
type ByArea struct{}

func (ByArea) Rule() Rule { return RuleByArea }

func (ByArea) strategy() {}

func (ByArea) Apply(member Member, charge PeriodCharge, in AllocationInput) Allocation {
	unitPrice := decimal.Zero
	total := decimal.Zero
	if in.TotalArea.IsPositive() {
		unitPrice = charge.Amount.Div(in.TotalArea)
		// Multiply before dividing so a 25% share of 200 is exactly 50.
		total = roundMoney(member.FloorArea.Mul(charge.Amount).Div(in.TotalArea))
	}
	return newAllocation(InvoiceItem{
		Description: itemDescription(charge),
		Quantity:    member.FloorArea,
		UnitPrice:   unitPrice,
		Total:       total,
		Charge:      chargeRef(charge),
	})
}

// =============================================================================
// PROPORTIONAL
// =============================================================================

// Proportional splits the amount by metered consumption of one meter type.
type Proportional struct {
	MeterType MeterType
}

func (Proportional) Rule() Rule { return RuleProportional }

func (Proportional) strategy() {}

// UnitPrice is the price of one unit of group consumption.
func (Proportional) UnitPrice(charge PeriodCharge, group GroupConsumption) decimal.Decimal {
	delta := group.Delta()
	if !delta.IsPositive() {
		return decimal.Zero
	}
	return charge.Amount.Div(delta)
}

func (p Proportional) Apply(_ Member, charge PeriodCharge, in AllocationInput) Allocation {
	unitPrice := p.UnitPrice(charge, in.Group)
	delta := in.Group.Delta()
	supplier := charge.Amount

	var items []InvoiceItem
	for _, c := range in.Meters {
		if !c.HasCurrent || c.Meter.Type != p.MeterType {
			continue
		}
		meter := c.Meter
		consumed := c.Consumed
		totalDiff := delta
		items = append(items, InvoiceItem{
			Description:    itemDescription(charge),
			Quantity:       consumed,
			UnitPrice:      unitPrice,
			Total:          roundMoney(consumed.Mul(unitPrice)),
			Meter:          &meter,
			Charge:         chargeRef(charge),
			StartValue:     c.Start,
			EndValue:       c.End,
			Consumed:       &consumed,
			SupplierAmount: &supplier,
			TotalDiff:      &totalDiff,
		})
	}
	return newAllocation(items...)
}
