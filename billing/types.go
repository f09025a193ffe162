/*
Package billing provides the cost apportionment and invoice assembly engine.

PURPOSE:
  A cost-sharing group (a building's resident association, a co-op) receives
  periodic bills: electricity, water, a caretaker's fee, a roof repair fund.
  This package splits each configured charge across the group's members and
  assembles each member's share into an immutable, itemized invoice.

KEY CONCEPTS IN THIS FILE (types.go):
  - Group / Member: who pays
  - Period: a (year, month) billing period
  - Meter / MeterReading: metered consumption, unit derived from meter type
  - ChargeDefinition: a named, rule-tagged kind of cost
  - PeriodCharge: the concrete amount of a ChargeDefinition for one period
  - Invoice / InvoiceItem: the persisted result

DESIGN PRINCIPLES:
  1. Precision: all money and quantities are decimal.Decimal
  2. Derived state is computed, never stored twice (Meter.Unit, Item.Currency)
  3. Invoices are immutable once created; there is no update path
  4. Invalid configuration is rejected at write time (Validate), so the engine
     can trust what it reads

SEE ALSO:
  - distribution.go: the four allocation rules
  - consumption.go: reading deltas across adjacent periods
  - assembler.go: invoice generation
  - store.go: repository interfaces
*/
package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// MeterType is the kind of utility a meter measures.
type MeterType string

const (
	MeterElectricity MeterType = "electricity"
	MeterWater       MeterType = "water"
	MeterGas         MeterType = "gas"
)

// MeterTypes lists every supported meter type.
var MeterTypes = []MeterType{MeterElectricity, MeterWater, MeterGas}

func meterTypeList() string {
	names := make([]string, len(MeterTypes))
	for i, t := range MeterTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// places is the number of decimal places kept for amounts, readings and
// floor areas.
const places = 2

// exceedsPlaces reports whether d carries more precision than places.
func exceedsPlaces(d decimal.Decimal) bool {
	return !d.Equal(d.Truncate(places))
}

// Unit is a measurement unit shown next to quantities.
type Unit string

const (
	UnitKWh         Unit = "kWh"
	UnitCubicMetre  Unit = "m3"
	UnitSquareMetre Unit = "m2"
)

var meterTypeUnits = map[MeterType]Unit{
	MeterElectricity: UnitKWh,
	MeterWater:       UnitCubicMetre,
	MeterGas:         UnitCubicMetre,
}

// UnitFor returns the unit a meter of the given type reads in.
func UnitFor(t MeterType) (Unit, bool) {
	u, ok := meterTypeUnits[t]
	return u, ok
}

// Valid reports whether t is a known meter type.
func (t MeterType) Valid() bool {
	_, ok := meterTypeUnits[t]
	return ok
}

// Display returns a human label for the unit.
func (u Unit) Display() string {
	switch u {
	case UnitCubicMetre:
		return "m³"
	case UnitSquareMetre:
		return "m²"
	default:
		return string(u)
	}
}

// Rule is the distribution rule tag stored on a ChargeDefinition.
type Rule string

const (
	RuleFixed        Rule = "fixed"
	RuleEqualSplit   Rule = "equal_split"
	RuleByArea       Rule = "by_area"
	RuleProportional Rule = "proportional"
)

// Label returns the display name used in invoice item descriptions.
func (r Rule) Label() string {
	switch r {
	case RuleProportional:
		return "Proportional by meter data"
	case RuleFixed:
		return "Fixed fee per customer"
	case RuleByArea:
		return "Proportional by floor area"
	case RuleEqualSplit:
		return "Split equally among all"
	default:
		return string(r)
	}
}

// Currency is a lower-case ISO 4217 code.
type Currency string

const (
	CurrencyEUR Currency = "eur"
	CurrencyUSD Currency = "usd"
	CurrencyGBP Currency = "gbp"
)

// Symbol returns the currency sign.
func (c Currency) Symbol() string {
	switch c {
	case CurrencyEUR:
		return "€"
	case CurrencyUSD:
		return "$"
	case CurrencyGBP:
		return "£"
	default:
		return string(c)
	}
}

// Valid reports whether c is a supported currency.
func (c Currency) Valid() bool {
	return c == CurrencyEUR || c == CurrencyUSD || c == CurrencyGBP
}

// =============================================================================
// ENTITIES
// =============================================================================

// Group is a cost-sharing collective.
type Group struct {
	ID          uuid.UUID
	Name        string
	Description string
	ManagerID   string // optional
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the group before it is saved.
func (g Group) Validate() error {
	if g.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required", Err: ErrInvalidGroup}
	}
	return nil
}

// Member is a billable participant in a Group.
type Member struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	FullName  string
	Email     string
	Phone     string
	Address   string
	FloorArea decimal.Decimal
	// Balance: positive = prepaid credit, negative = debt.
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the member before it is saved.
func (m Member) Validate() error {
	if m.FullName == "" {
		return &ValidationError{Field: "full_name", Message: "name is required", Err: ErrInvalidMember}
	}
	if m.FloorArea.IsNegative() {
		return &ValidationError{Field: "floor_area", Message: "floor area cannot be negative", Err: ErrInvalidMember}
	}
	if exceedsPlaces(m.FloorArea) {
		return &ValidationError{Field: "floor_area", Message: "at most 2 decimal places", Err: ErrInvalidMember}
	}
	return nil
}

// Meter measures one utility for one member.
type Meter struct {
	ID           uuid.UUID
	MemberID     uuid.UUID
	Type         MeterType
	Description  string
	SerialNumber string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Unit is derived from the meter type. It is never set independently.
func (m Meter) Unit() Unit {
	u, _ := UnitFor(m.Type)
	return u
}

// Validate checks the meter before it is saved.
func (m Meter) Validate() error {
	if !m.Type.Valid() {
		return &ValidationError{Field: "meter_type", Message: "no unit defined for meter type '" + string(m.Type) + "' (known: " + meterTypeList() + ")", Err: ErrUnknownMeterType}
	}
	return nil
}

// CheckUnit verifies that a persisted unit agrees with the type-to-unit mapping.
func (m Meter) CheckUnit(stored Unit) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if stored != m.Unit() {
		return &ValidationError{Field: "unit", Message: "unit '" + string(stored) + "' does not match meter type '" + string(m.Type) + "'", Err: ErrUnitMismatch}
	}
	return nil
}

// MeterReading is the cumulative value of a meter at the end of a period.
type MeterReading struct {
	ID        uuid.UUID
	MeterID   uuid.UUID
	PeriodID  uuid.UUID
	Value     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the reading before it is saved.
func (r MeterReading) Validate() error {
	if r.Value.IsNegative() {
		return &ValidationError{Field: "value", Message: "reading cannot be negative", Err: ErrInvalidReading}
	}
	if exceedsPlaces(r.Value) {
		return &ValidationError{Field: "value", Message: "at most 2 decimal places", Err: ErrInvalidReading}
	}
	return nil
}

// ChargeDefinition is a named kind of cost with its distribution rule.
type ChargeDefinition struct {
	ID          uuid.UUID
	GroupID     uuid.UUID
	Name        string
	Description string
	Rule        Rule
	Currency    Currency
	// MeterType is set if and only if Rule is RuleProportional.
	MeterType MeterType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces the rule/meter-type mutual exclusion.
func (d ChargeDefinition) Validate() error {
	switch d.Rule {
	case RuleFixed, RuleEqualSplit, RuleByArea, RuleProportional:
	default:
		return &ValidationError{Field: "distribution_type", Message: "unknown distribution type '" + string(d.Rule) + "'", Err: ErrInvalidChargeDefinition}
	}
	if d.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required", Err: ErrInvalidChargeDefinition}
	}
	if !d.Currency.Valid() {
		return &ValidationError{Field: "currency", Message: "unsupported currency '" + string(d.Currency) + "'", Err: ErrInvalidChargeDefinition}
	}
	if d.Rule == RuleProportional && d.MeterType == "" {
		return &ValidationError{Field: "meter_type", Message: "required when distribution_type is 'proportional'", Err: ErrInvalidChargeDefinition}
	}
	if d.Rule != RuleProportional && d.MeterType != "" {
		return &ValidationError{Field: "meter_type", Message: "must be empty unless distribution_type is 'proportional'", Err: ErrInvalidChargeDefinition}
	}
	if d.MeterType != "" && !d.MeterType.Valid() {
		return &ValidationError{Field: "meter_type", Message: "unknown meter type '" + string(d.MeterType) + "' (known: " + meterTypeList() + ")", Err: ErrInvalidChargeDefinition}
	}
	return nil
}

// PeriodCharge is the amount of one ChargeDefinition to distribute for one period.
type PeriodCharge struct {
	ID         uuid.UUID
	GroupID    uuid.UUID
	PeriodID   uuid.UUID
	Definition ChargeDefinition
	Amount     decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Currency is inherited from the charge definition.
func (pc PeriodCharge) Currency() Currency {
	return pc.Definition.Currency
}

// Validate checks the period charge before it is saved.
func (pc PeriodCharge) Validate() error {
	if pc.Definition.GroupID != pc.GroupID {
		return &ValidationError{Field: "tax_type", Message: "charge definition belongs to another group", Err: ErrInvalidPeriodCharge}
	}
	if exceedsPlaces(pc.Amount) {
		return &ValidationError{Field: "amount", Message: "at most 2 decimal places", Err: ErrInvalidPeriodCharge}
	}
	return nil
}

// Invoice is one member's bill for one period.
type Invoice struct {
	ID            uuid.UUID
	MemberID      uuid.UUID
	PeriodID      uuid.UUID
	Number        string
	Date          time.Time
	TotalAmount   decimal.Decimal
	PayableAmount decimal.Decimal
	Balance       decimal.Decimal
	Items         []InvoiceItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ItemsTotal sums the item totals.
func (inv *Invoice) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range inv.Items {
		sum = sum.Add(it.Total)
	}
	return sum
}

// InvoiceItem is one line of an invoice.
//
// Meter and Charge are borrowed references to the originating entities; the
// persisted shape keeps only their IDs.
type InvoiceItem struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal

	Meter  *Meter
	Charge *PeriodCharge

	// Metered items only. SupplierAmount is the charge amount being split and
	// TotalDiff the group-wide consumption it was split over.
	StartValue     *decimal.Decimal
	EndValue       *decimal.Decimal
	Consumed       *decimal.Decimal
	SupplierAmount *decimal.Decimal
	TotalDiff      *decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MeterID returns the referenced meter's ID.
func (it InvoiceItem) MeterID() uuid.NullUUID {
	if it.Meter == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: it.Meter.ID, Valid: true}
}

// PeriodChargeID returns the referenced period charge's ID.
func (it InvoiceItem) PeriodChargeID() uuid.NullUUID {
	if it.Charge == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: it.Charge.ID, Valid: true}
}

// Currency is inherited from the referenced period charge.
func (it InvoiceItem) Currency() Currency {
	if it.Charge == nil {
		return ""
	}
	return it.Charge.Currency()
}

// Unit is the meter unit for metered items, m2 for area-based items.
func (it InvoiceItem) Unit() Unit {
	if it.Meter != nil {
		return it.Meter.Unit()
	}
	if it.Charge != nil && it.Charge.Definition.Rule == RuleByArea {
		return UnitSquareMetre
	}
	return ""
}
