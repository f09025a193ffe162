package billing_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costshare/billing"
)

// =============================================================================
// HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func charge(name string, rule billing.Rule, amount string) billing.PeriodCharge {
	groupID := uuid.New()
	def := billing.ChargeDefinition{
		ID:       uuid.New(),
		GroupID:  groupID,
		Name:     name,
		Rule:     rule,
		Currency: billing.CurrencyEUR,
	}
	if rule == billing.RuleProportional {
		def.MeterType = billing.MeterElectricity
	}
	return billing.PeriodCharge{
		ID:         uuid.New(),
		GroupID:    groupID,
		PeriodID:   uuid.New(),
		Definition: def,
		Amount:     dec(amount),
	}
}

func consumption(meterType billing.MeterType, start, end string) billing.Consumption {
	c := billing.Consumption{
		Meter:      billing.Meter{ID: uuid.New(), Type: meterType},
		HasCurrent: true,
		End:        decPtr(end),
		Consumed:   dec(end),
	}
	if start != "" {
		c.Start = decPtr(start)
		c.Consumed = dec(end).Sub(dec(start))
	}
	return c
}

// =============================================================================
// STRATEGY SELECTION
// =============================================================================

func TestStrategy_MapsEveryRule(t *testing.T) {
	cases := []struct {
		rule billing.Rule
		want billing.Strategy
	}{
		{billing.RuleFixed, billing.FixedFee{}},
		{billing.RuleEqualSplit, billing.EqualSplit{}},
		{billing.RuleByArea, billing.ByArea{}},
		{billing.RuleProportional, billing.Proportional{MeterType: billing.MeterGas}},
	}
	for _, tc := range cases {
		t.Run(string(tc.rule), func(t *testing.T) {
			def := billing.ChargeDefinition{Rule: tc.rule}
			if tc.rule == billing.RuleProportional {
				def.MeterType = billing.MeterGas
			}
			got, ok := def.Strategy()
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.rule, got.Rule())
		})
	}
}

func TestStrategy_UnknownRule(t *testing.T) {
	_, ok := billing.ChargeDefinition{Rule: "by_headcount"}.Strategy()
	assert.False(t, ok)
}

// =============================================================================
// FIXED FEE
// =============================================================================

func TestFixedFee_TotalEqualsAmount(t *testing.T) {
	// GIVEN: A caretaker fee of 50
	// WHEN: Allocated to any member
	// THEN: One item, quantity 1, unit price and total 50

	pc := charge("Caretaker", billing.RuleFixed, "50")
	alloc := billing.FixedFee{}.Apply(billing.Member{}, pc, billing.AllocationInput{MemberCount: 4})

	require.Len(t, alloc.Items, 1)
	item := alloc.Items[0]
	assertDecimal(t, "1", item.Quantity)
	assertDecimal(t, "50", item.UnitPrice)
	assertDecimal(t, "50", item.Total)
	assertDecimal(t, "50", alloc.Subtotal)
	assert.Equal(t, "Caretaker (Fixed fee per customer)", item.Description)
	assert.Equal(t, pc.ID, item.PeriodChargeID().UUID)
	assert.False(t, item.MeterID().Valid)
	assert.Equal(t, billing.CurrencyEUR, item.Currency())
}

// =============================================================================
// EQUAL SPLIT
// =============================================================================

func TestEqualSplit_SumsToAmountWithinRounding(t *testing.T) {
	// GIVEN: 100 split across 3 members
	// WHEN: Each member's share is computed
	// THEN: Each pays 33.33; the sum differs from 100 by less than one cent per member

	pc := charge("Cleaning", billing.RuleEqualSplit, "100")
	in := billing.AllocationInput{MemberCount: 3}

	sum := decimal.Zero
	for i := 0; i < 3; i++ {
		alloc := billing.EqualSplit{}.Apply(billing.Member{}, pc, in)
		require.Len(t, alloc.Items, 1)
		assertDecimal(t, "33.33", alloc.Items[0].Total)
		sum = sum.Add(alloc.Subtotal)
	}

	diff := dec("100").Sub(sum).Abs()
	assert.True(t, diff.LessThanOrEqual(dec("0.03")), "drift %s", diff)
}

func TestEqualSplit_NoMembers_Zero(t *testing.T) {
	pc := charge("Cleaning", billing.RuleEqualSplit, "100")
	alloc := billing.EqualSplit{}.Apply(billing.Member{}, pc, billing.AllocationInput{})

	require.Len(t, alloc.Items, 1)
	assertDecimal(t, "0", alloc.Items[0].Total)
}

// =============================================================================
// BY AREA
// =============================================================================

func TestByArea_ShareOfTotalArea(t *testing.T) {
	// GIVEN: A 200 repair fund and a member owning 25 of 100 m2
	// WHEN: Allocated by floor area
	// THEN: Quantity 25, unit price 2, total 50

	pc := charge("Roof fund", billing.RuleByArea, "200")
	member := billing.Member{FloorArea: dec("25")}
	alloc := billing.ByArea{}.Apply(member, pc, billing.AllocationInput{MemberCount: 2, TotalArea: dec("100")})

	require.Len(t, alloc.Items, 1)
	item := alloc.Items[0]
	assertDecimal(t, "25", item.Quantity)
	assertDecimal(t, "2", item.UnitPrice)
	assertDecimal(t, "50", item.Total)
	assert.Equal(t, billing.UnitSquareMetre, item.Unit())
}

func TestByArea_AllMembersSumToAmount(t *testing.T) {
	pc := charge("Roof fund", billing.RuleByArea, "200")
	areas := []string{"10", "30", "60"}
	in := billing.AllocationInput{MemberCount: 3, TotalArea: dec("100")}

	sum := decimal.Zero
	for _, a := range areas {
		sum = sum.Add(billing.ByArea{}.Apply(billing.Member{FloorArea: dec(a)}, pc, in).Subtotal)
	}
	assertDecimal(t, "200", sum)
}

func TestByArea_ZeroTotalArea_Zero(t *testing.T) {
	pc := charge("Roof fund", billing.RuleByArea, "200")
	alloc := billing.ByArea{}.Apply(billing.Member{}, pc, billing.AllocationInput{MemberCount: 2})

	require.Len(t, alloc.Items, 1)
	assertDecimal(t, "0", alloc.Items[0].UnitPrice)
	assertDecimal(t, "0", alloc.Items[0].Total)
}

// =============================================================================
// PROPORTIONAL
// =============================================================================

func TestProportional_SplitsByConsumption(t *testing.T) {
	// GIVEN: Two members used 30 and 70 kWh; the supplier bill is 100
	// WHEN: Each member's meter is allocated
	// THEN: They pay 30 and 70

	pc := charge("Electricity", billing.RuleProportional, "100")
	group := billing.GroupConsumption{Current: dec("400"), Previous: dec("300")}
	strategy := billing.Proportional{MeterType: billing.MeterElectricity}

	a := strategy.Apply(billing.Member{}, pc, billing.AllocationInput{
		Meters: []billing.Consumption{consumption(billing.MeterElectricity, "100", "130")},
		Group:  group,
	})
	b := strategy.Apply(billing.Member{}, pc, billing.AllocationInput{
		Meters: []billing.Consumption{consumption(billing.MeterElectricity, "200", "270")},
		Group:  group,
	})

	require.Len(t, a.Items, 1)
	require.Len(t, b.Items, 1)
	assertDecimal(t, "30", a.Subtotal)
	assertDecimal(t, "70", b.Subtotal)

	item := a.Items[0]
	assertDecimal(t, "30", item.Quantity)
	assertDecimal(t, "1", item.UnitPrice)
	assertDecimal(t, "100", *item.StartValue)
	assertDecimal(t, "130", *item.EndValue)
	assertDecimal(t, "30", *item.Consumed)
	assertDecimal(t, "100", *item.SupplierAmount)
	assertDecimal(t, "100", *item.TotalDiff)
	assert.True(t, item.MeterID().Valid)
	assert.Equal(t, billing.UnitKWh, item.Unit())
}

func TestProportional_NoPreviousGroupTotal_UsesCurrent(t *testing.T) {
	pc := charge("Electricity", billing.RuleProportional, "100")
	price := billing.Proportional{}.UnitPrice(pc, billing.GroupConsumption{Current: dec("50"), Previous: decimal.Zero})
	assertDecimal(t, "2", price)
}

func TestProportional_NonPositiveDenominator_ZeroPrice(t *testing.T) {
	pc := charge("Electricity", billing.RuleProportional, "100")
	strategy := billing.Proportional{MeterType: billing.MeterElectricity}

	alloc := strategy.Apply(billing.Member{}, pc, billing.AllocationInput{
		Meters: []billing.Consumption{consumption(billing.MeterElectricity, "10", "20")},
		Group:  billing.GroupConsumption{Current: dec("100"), Previous: dec("120")},
	})

	require.Len(t, alloc.Items, 1)
	assertDecimal(t, "0", alloc.Items[0].UnitPrice)
	assertDecimal(t, "0", alloc.Items[0].Total)
}

func TestProportional_MeterWithoutReading_NoItem(t *testing.T) {
	// GIVEN: A member meter with no reading this period
	// WHEN: Allocated
	// THEN: It contributes no item

	pc := charge("Electricity", billing.RuleProportional, "100")
	missing := billing.Consumption{Meter: billing.Meter{ID: uuid.New(), Type: billing.MeterElectricity}}

	alloc := billing.Proportional{MeterType: billing.MeterElectricity}.Apply(billing.Member{}, pc, billing.AllocationInput{
		Meters: []billing.Consumption{missing},
		Group:  billing.GroupConsumption{Current: dec("100")},
	})

	assert.Empty(t, alloc.Items)
	assertDecimal(t, "0", alloc.Subtotal)
}

func TestProportional_LineTotalRoundedHalfEven(t *testing.T) {
	// 1 kWh at 0.125 is 0.125, which rounds to 0.12 under banker's rounding.
	pc := charge("Electricity", billing.RuleProportional, "1")
	alloc := billing.Proportional{MeterType: billing.MeterElectricity}.Apply(billing.Member{}, pc, billing.AllocationInput{
		Meters: []billing.Consumption{consumption(billing.MeterElectricity, "0", "1")},
		Group:  billing.GroupConsumption{Current: dec("8")},
	})

	require.Len(t, alloc.Items, 1)
	assertDecimal(t, "0.125", alloc.Items[0].UnitPrice)
	assertDecimal(t, "0.12", alloc.Items[0].Total)
}
