package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costshare/billing"
)

func TestResolve_NoCurrentReading(t *testing.T) {
	f := newFixture(t)
	meter := f.addMeter(t, f.alice, billing.MeterElectricity, "E-A")
	f.read(t, meter, f.feb, "100")

	c, err := billing.NewCalculator(f.store).Resolve(context.Background(), meter, f.mar)

	require.NoError(t, err)
	assert.False(t, c.HasCurrent)
	assert.Nil(t, c.End)
}

func TestResolve_NoPreviousPeriod(t *testing.T) {
	// GIVEN: February exists but January does not
	// WHEN: Resolving February
	// THEN: Consumption is zero and there is no start value

	f := newFixture(t)
	meter := f.addMeter(t, f.alice, billing.MeterElectricity, "E-A")
	f.read(t, meter, f.feb, "100")

	c, err := billing.NewCalculator(f.store).Resolve(context.Background(), meter, f.feb)

	require.NoError(t, err)
	assert.True(t, c.HasCurrent)
	assert.Nil(t, c.Start)
	assertDecimal(t, "100", *c.End)
	assertDecimal(t, "0", c.Consumed)
}

func TestResolve_NoPreviousReading(t *testing.T) {
	f := newFixture(t)
	meter := f.addMeter(t, f.alice, billing.MeterElectricity, "E-A")
	f.read(t, meter, f.mar, "100")

	c, err := billing.NewCalculator(f.store).Resolve(context.Background(), meter, f.mar)

	require.NoError(t, err)
	assert.True(t, c.HasCurrent)
	assert.Nil(t, c.Previous)
	assertDecimal(t, "0", c.Consumed)
}

func TestResolve_NegativeConsumptionPropagates(t *testing.T) {
	// GIVEN: A meter replaced mid-year reads lower than last month
	// WHEN: Resolving
	// THEN: Consumption is negative; nothing is clamped

	f := newFixture(t)
	meter := f.addMeter(t, f.alice, billing.MeterWater, "W-A")
	f.read(t, meter, f.feb, "950")
	f.read(t, meter, f.mar, "4")

	c, err := billing.NewCalculator(f.store).Resolve(context.Background(), meter, f.mar)

	require.NoError(t, err)
	assertDecimal(t, "-946", c.Consumed)
}

func TestAggregate_SumsGroupByType(t *testing.T) {
	f := newFixture(t)
	ae := f.addMeter(t, f.alice, billing.MeterElectricity, "E-A")
	be := f.addMeter(t, f.bob, billing.MeterElectricity, "E-B")
	aw := f.addMeter(t, f.alice, billing.MeterWater, "W-A")
	f.read(t, ae, f.feb, "10")
	f.read(t, be, f.feb, "20")
	f.read(t, ae, f.mar, "15")
	f.read(t, be, f.mar, "40")
	f.read(t, aw, f.mar, "999")

	g, err := billing.NewCalculator(f.store).Aggregate(context.Background(), f.groupID, billing.MeterElectricity, f.mar)

	require.NoError(t, err)
	assertDecimal(t, "55", g.Current)
	assertDecimal(t, "30", g.Previous)
	assertDecimal(t, "25", g.Delta())
}

func TestGroupConsumption_Delta_NoPrevious(t *testing.T) {
	g := billing.GroupConsumption{Current: dec("42"), Previous: dec("0")}
	assertDecimal(t, "42", g.Delta())
}
