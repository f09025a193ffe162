// Package store provides an in-memory billing.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/costshare/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps configuration, readings and invoices in maps.
type Memory struct {
	mu sync.RWMutex

	members       map[uuid.UUID]billing.Member
	meters        map[uuid.UUID]billing.Meter
	periods       map[billing.YearMonth]billing.Period
	readings      map[readingKey]billing.MeterReading
	definitions   map[uuid.UUID]billing.ChargeDefinition
	periodCharges []periodCharge
	invoices      []billing.Invoice
	numbers       map[string]bool

	// failAfter > 0 makes the failAfter-th item insert return failErr.
	failAfter int
	failErr   error
	inserted  int
}

type readingKey struct {
	MeterID  uuid.UUID
	PeriodID uuid.UUID
}

type periodCharge struct {
	ID           uuid.UUID
	GroupID      uuid.UUID
	PeriodID     uuid.UUID
	DefinitionID uuid.UUID
	Amount       decimal.Decimal
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		members:     make(map[uuid.UUID]billing.Member),
		meters:      make(map[uuid.UUID]billing.Meter),
		periods:     make(map[billing.YearMonth]billing.Period),
		readings:    make(map[readingKey]billing.MeterReading),
		definitions: make(map[uuid.UUID]billing.ChargeDefinition),
		numbers:     make(map[string]bool),
	}
}

// =============================================================================
// SEEDING - Configuration writes (validated like the SQL store)
// =============================================================================

// AddMember stores a member, assigning an ID if it has none.
func (m *Memory) AddMember(member billing.Member) (billing.Member, error) {
	if err := member.Validate(); err != nil {
		return billing.Member{}, err
	}
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[member.ID] = member
	return member, nil
}

// AddMeter stores a meter for an existing member.
func (m *Memory) AddMeter(meter billing.Meter) (billing.Meter, error) {
	if err := meter.Validate(); err != nil {
		return billing.Meter{}, err
	}
	if meter.ID == uuid.Nil {
		meter.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[meter.MemberID]; !ok {
		return billing.Meter{}, billing.ErrNotFound
	}
	m.meters[meter.ID] = meter
	return meter, nil
}

// Period returns the period for (year, month), creating it if needed.
func (m *Memory) Period(year, month int) (billing.Period, error) {
	ym := billing.YearMonth{Year: year, Month: month}
	if err := ym.Validate(); err != nil {
		return billing.Period{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.periods[ym]; ok {
		return p, nil
	}
	p := billing.Period{ID: uuid.New(), Year: year, Month: month}
	m.periods[ym] = p
	return p, nil
}

// AddReading stores one reading per (meter, period).
func (m *Memory) AddReading(r billing.MeterReading) (billing.MeterReading, error) {
	if err := r.Validate(); err != nil {
		return billing.MeterReading{}, err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := readingKey{MeterID: r.MeterID, PeriodID: r.PeriodID}
	if _, ok := m.readings[k]; ok {
		return billing.MeterReading{}, billing.ErrDuplicateReading
	}
	m.readings[k] = r
	return r, nil
}

// AddDefinition stores a charge definition.
func (m *Memory) AddDefinition(d billing.ChargeDefinition) (billing.ChargeDefinition, error) {
	if d.Currency == "" {
		d.Currency = billing.CurrencyEUR
	}
	if err := d.Validate(); err != nil {
		return billing.ChargeDefinition{}, err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[d.ID] = d
	return d, nil
}

// AddPeriodCharge stores the amount of a definition for a period.
func (m *Memory) AddPeriodCharge(pc billing.PeriodCharge) (billing.PeriodCharge, error) {
	if err := pc.Validate(); err != nil {
		return billing.PeriodCharge{}, err
	}
	if pc.ID == uuid.Nil {
		pc.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[pc.Definition.ID]; !ok {
		return billing.PeriodCharge{}, billing.ErrNotFound
	}
	m.periodCharges = append(m.periodCharges, periodCharge{
		ID:           pc.ID,
		GroupID:      pc.GroupID,
		PeriodID:     pc.PeriodID,
		DefinitionID: pc.Definition.ID,
		Amount:       pc.Amount,
	})
	return pc, nil
}

// Invoices returns the member's invoices in insertion order.
func (m *Memory) Invoices(memberID uuid.UUID) []billing.Invoice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.Invoice
	for _, inv := range m.invoices {
		if inv.MemberID == memberID {
			result = append(result, inv)
		}
	}
	return result
}

// FailItemInsert makes the n-th item insert from now on fail with err.
func (m *Memory) FailItemInsert(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failErr = err
	m.inserted = 0
}

// =============================================================================
// REPOSITORY
// =============================================================================

func (m *Memory) PeriodCharges(_ context.Context, groupID, periodID uuid.UUID) ([]billing.PeriodCharge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.PeriodCharge
	for _, pc := range m.periodCharges {
		if pc.GroupID != groupID || pc.PeriodID != periodID {
			continue
		}
		result = append(result, billing.PeriodCharge{
			ID:         pc.ID,
			GroupID:    pc.GroupID,
			PeriodID:   pc.PeriodID,
			Definition: m.definitions[pc.DefinitionID],
			Amount:     pc.Amount,
		})
	}
	return result, nil
}

func (m *Memory) GroupMembers(_ context.Context, groupID uuid.UUID) ([]billing.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.Member
	for _, member := range m.members {
		if member.GroupID == groupID {
			result = append(result, member)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FullName < result[j].FullName })
	return result, nil
}

func (m *Memory) MemberMeters(_ context.Context, memberID uuid.UUID) ([]billing.Meter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.memberMetersLocked(memberID), nil
}

func (m *Memory) memberMetersLocked(memberID uuid.UUID) []billing.Meter {
	var result []billing.Meter
	for _, meter := range m.meters {
		if meter.MemberID == memberID {
			result = append(result, meter)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SerialNumber < result[j].SerialNumber })
	return result
}

func (m *Memory) FindPeriod(_ context.Context, year, month int) (*billing.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.periods[billing.YearMonth{Year: year, Month: month}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) Reading(_ context.Context, meterID, periodID uuid.UUID) (*billing.MeterReading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.readings[readingKey{MeterID: meterID, PeriodID: periodID}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) GroupReadingsTotal(_ context.Context, groupID uuid.UUID, meterType billing.MeterType, periodID uuid.UUID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for k, r := range m.readings {
		if k.PeriodID != periodID {
			continue
		}
		meter, ok := m.meters[k.MeterID]
		if !ok || meter.Type != meterType {
			continue
		}
		if owner, ok := m.members[meter.MemberID]; ok && owner.GroupID == groupID {
			sum = sum.Add(r.Value)
		}
	}
	return sum, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(billing.InvoiceWriter) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	defer func() {
		if r := recover(); r != nil {
			m.restore(snap)
			panic(r)
		}
		if err != nil {
			m.restore(snap)
		}
	}()

	return fn(&txView{parent: m})
}

type memorySnapshot struct {
	invoices int
	numbers  map[string]bool
}

func (m *Memory) snapshot() memorySnapshot {
	numbers := make(map[string]bool, len(m.numbers))
	for k, v := range m.numbers {
		numbers[k] = v
	}
	return memorySnapshot{invoices: len(m.invoices), numbers: numbers}
}

func (m *Memory) restore(s memorySnapshot) {
	m.invoices = m.invoices[:s.invoices]
	m.numbers = s.numbers
}

type txView struct {
	parent *Memory
}

func (tv *txView) InsertInvoice(_ context.Context, inv billing.Invoice) error {
	if tv.parent.numbers[inv.Number] {
		return billing.ErrDuplicateInvoiceNumber
	}
	tv.parent.numbers[inv.Number] = true
	inv.Items = nil
	tv.parent.invoices = append(tv.parent.invoices, inv)
	return nil
}

func (tv *txView) InsertInvoiceItem(_ context.Context, item billing.InvoiceItem) error {
	p := tv.parent
	p.inserted++
	if p.failAfter > 0 && p.inserted == p.failAfter {
		return p.failErr
	}
	for i := range p.invoices {
		if p.invoices[i].ID == item.InvoiceID {
			p.invoices[i].Items = append(p.invoices[i].Items, item)
			return nil
		}
	}
	return billing.ErrNotFound
}
