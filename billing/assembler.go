/*
assembler.go - Invoice generation

PURPOSE:
  Generate turns the charges configured for a member's group in a period into
  one persisted invoice for that member.

FLOW:
  1. Load the period charges of the member's group
  2. For each charge, pick the Strategy from its rule and gather what it needs
     (member count and floor area, or metered consumption)
  3. Concatenate the items; total = sum of subtotals
  4. No items: return (nil, nil). There is nothing to bill.
  5. Otherwise write invoice and items in one transaction

Generate does not check for an existing invoice of the same member and period.
Calling it twice produces two invoices with distinct numbers.

Charges with a rule the engine does not know are skipped. Definitions are
validated on write, so this only happens when the database was edited by hand.
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Assembler generates invoices.
type Assembler struct {
	store  Store
	calc   *Calculator
	logger *zap.Logger
	now    func() time.Time
	number NumberFunc
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock sets the time source used for the invoice date and timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithNumberFunc replaces the invoice number generator.
func WithNumberFunc(fn NumberFunc) Option {
	return func(a *Assembler) { a.number = fn }
}

// NewAssembler creates an assembler over store.
func NewAssembler(store Store, opts ...Option) *Assembler {
	a := &Assembler{
		store:  store,
		calc:   NewCalculator(store),
		logger: zap.NewNop(),
		now:    time.Now,
		number: InvoiceNumber,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// =============================================================================
// GENERATE
// =============================================================================

// Generate builds and persists the member's invoice for period. It returns
// (nil, nil) when no charge produced an item.
func (a *Assembler) Generate(ctx context.Context, member Member, period Period) (*Invoice, error) {
	log := a.logger.With(
		zap.String("member_id", member.ID.String()),
		zap.String("period", period.String()),
	)

	charges, err := a.store.PeriodCharges(ctx, member.GroupID, period.ID)
	if err != nil {
		return nil, fmt.Errorf("load period charges: %w", err)
	}

	snap := &snapshot{assembler: a, member: member, period: period}
	items := make([]InvoiceItem, 0, len(charges))
	total := decimal.Zero

	for _, charge := range charges {
		strategy, ok := charge.Definition.Strategy()
		if !ok {
			log.Debug("skipping charge with unknown rule",
				zap.String("charge", charge.Definition.Name),
				zap.String("rule", string(charge.Definition.Rule)))
			continue
		}

		in, err := snap.inputFor(ctx, strategy)
		if err != nil {
			return nil, fmt.Errorf("charge %q: %w", charge.Definition.Name, err)
		}

		alloc := strategy.Apply(member, charge, in)
		items = append(items, alloc.Items...)
		total = total.Add(alloc.Subtotal)
	}

	if len(items) == 0 {
		log.Debug("nothing to bill", zap.Int("charges", len(charges)))
		return nil, nil
	}

	now := a.now().UTC()
	inv := &Invoice{
		ID:            uuid.New(),
		MemberID:      member.ID,
		PeriodID:      period.ID,
		Number:        a.number(period, member.ID),
		Date:          time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		TotalAmount:   total,
		PayableAmount: total,
		Balance:       decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := range items {
		items[i].ID = uuid.New()
		items[i].InvoiceID = inv.ID
		items[i].CreatedAt = now
		items[i].UpdatedAt = now
	}
	inv.Items = items

	err = a.store.WithTx(ctx, func(w InvoiceWriter) error {
		if err := w.InsertInvoice(ctx, *inv); err != nil {
			return &PersistenceError{Op: "invoice " + inv.Number, Err: err}
		}
		for _, it := range inv.Items {
			if err := w.InsertInvoiceItem(ctx, it); err != nil {
				return &PersistenceError{Op: "invoice item " + it.ID.String(), Err: err}
			}
		}
		return nil
	})
	if err != nil {
		log.Warn("invoice not persisted", zap.Error(err))
		return nil, err
	}

	log.Info("invoice generated",
		zap.String("number", inv.Number),
		zap.Int("items", len(inv.Items)),
		zap.String("total", inv.TotalAmount.StringFixed(moneyPlaces)))
	return inv, nil
}

// =============================================================================
// SNAPSHOT - Group data loaded once per generation
// =============================================================================

type snapshot struct {
	assembler *Assembler
	member    Member
	period    Period

	membersLoaded bool
	memberCount   int
	totalArea     decimal.Decimal

	meters []Meter // nil until loaded
	groups map[MeterType]GroupConsumption
}

func (s *snapshot) inputFor(ctx context.Context, strategy Strategy) (AllocationInput, error) {
	switch st := strategy.(type) {
	case FixedFee:
		return AllocationInput{}, nil
	case EqualSplit, ByArea:
		if err := s.loadMembers(ctx); err != nil {
			return AllocationInput{}, err
		}
		return AllocationInput{MemberCount: s.memberCount, TotalArea: s.totalArea}, nil
	case Proportional:
		return s.proportional(ctx, st.MeterType)
	default:
		return AllocationInput{}, fmt.Errorf("no input for rule %q", strategy.Rule())
	}
}

func (s *snapshot) loadMembers(ctx context.Context) error {
	if s.membersLoaded {
		return nil
	}
	members, err := s.assembler.store.GroupMembers(ctx, s.member.GroupID)
	if err != nil {
		return fmt.Errorf("load group members: %w", err)
	}
	s.memberCount = len(members)
	s.totalArea = decimal.Zero
	for _, m := range members {
		s.totalArea = s.totalArea.Add(m.FloorArea)
	}
	s.membersLoaded = true
	return nil
}

func (s *snapshot) proportional(ctx context.Context, meterType MeterType) (AllocationInput, error) {
	if s.meters == nil {
		meters, err := s.assembler.store.MemberMeters(ctx, s.member.ID)
		if err != nil {
			return AllocationInput{}, fmt.Errorf("load member meters: %w", err)
		}
		s.meters = append([]Meter{}, meters...)
	}

	in := AllocationInput{}
	for _, m := range s.meters {
		if m.Type != meterType {
			continue
		}
		c, err := s.assembler.calc.Resolve(ctx, m, s.period)
		if err != nil {
			return AllocationInput{}, err
		}
		in.Meters = append(in.Meters, c)
	}

	if s.groups == nil {
		s.groups = make(map[MeterType]GroupConsumption)
	}
	group, ok := s.groups[meterType]
	if !ok {
		var err error
		group, err = s.assembler.calc.Aggregate(ctx, s.member.GroupID, meterType, s.period)
		if err != nil {
			return AllocationInput{}, err
		}
		s.groups[meterType] = group
	}
	in.Group = group
	return in, nil
}
