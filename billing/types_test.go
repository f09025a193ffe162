package billing_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costshare/billing"
)

// =============================================================================
// CHARGE DEFINITION VALIDATION
// =============================================================================

func TestChargeDefinition_Validate(t *testing.T) {
	base := billing.ChargeDefinition{Name: "Electricity", Currency: billing.CurrencyEUR}

	cases := []struct {
		name      string
		rule      billing.Rule
		meterType billing.MeterType
		currency  billing.Currency
		field     string
	}{
		{name: "proportional with meter type", rule: billing.RuleProportional, meterType: billing.MeterElectricity},
		{name: "fixed without meter type", rule: billing.RuleFixed},
		{name: "proportional missing meter type", rule: billing.RuleProportional, field: "meter_type"},
		{name: "by_area with meter type", rule: billing.RuleByArea, meterType: billing.MeterWater, field: "meter_type"},
		{name: "unknown meter type", rule: billing.RuleProportional, meterType: "steam", field: "meter_type"},
		{name: "unknown rule", rule: "by_headcount", field: "distribution_type"},
		{name: "unsupported currency", rule: billing.RuleFixed, currency: "chf", field: "currency"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := base
			d.Rule = tc.rule
			d.MeterType = tc.meterType
			if tc.currency != "" {
				d.Currency = tc.currency
			}

			err := d.Validate()

			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *billing.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.ErrorIs(t, err, billing.ErrInvalidChargeDefinition)
			assert.True(t, billing.IsClientError(err))
		})
	}
}

func TestPeriodCharge_AmountPlaces(t *testing.T) {
	groupID := uuid.New()
	charge := func(amount string) billing.PeriodCharge {
		return billing.PeriodCharge{
			GroupID:    groupID,
			Definition: billing.ChargeDefinition{GroupID: groupID, Rule: billing.RuleFixed},
			Amount:     dec(amount),
		}
	}

	assert.NoError(t, charge("12.34").Validate())
	assert.NoError(t, charge("12.340").Validate(), "trailing zeros carry no extra precision")

	err := charge("10.005").Validate()
	assert.ErrorIs(t, err, billing.ErrInvalidPeriodCharge)
	var ve *billing.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
	assert.True(t, billing.IsClientError(err))
}

func TestMember_FloorAreaPlaces(t *testing.T) {
	assert.NoError(t, billing.Member{FullName: "Alice", FloorArea: dec("55.25")}.Validate())
	assert.ErrorIs(t, billing.Member{FullName: "Alice", FloorArea: dec("55.255")}.Validate(), billing.ErrInvalidMember)
}

func TestPeriodCharge_DefinitionOfAnotherGroup(t *testing.T) {
	pc := billing.PeriodCharge{
		GroupID:    uuid.New(),
		Definition: billing.ChargeDefinition{GroupID: uuid.New()},
	}
	assert.ErrorIs(t, pc.Validate(), billing.ErrInvalidPeriodCharge)
}

// =============================================================================
// METERS AND UNITS
// =============================================================================

func TestMeter_UnitDerivedFromType(t *testing.T) {
	assert.Equal(t, billing.UnitKWh, billing.Meter{Type: billing.MeterElectricity}.Unit())
	assert.Equal(t, billing.UnitCubicMetre, billing.Meter{Type: billing.MeterWater}.Unit())
	assert.Equal(t, billing.UnitCubicMetre, billing.Meter{Type: billing.MeterGas}.Unit())
	assert.Equal(t, "m³", billing.UnitCubicMetre.Display())
}

func TestMeter_CheckUnit(t *testing.T) {
	m := billing.Meter{Type: billing.MeterElectricity}
	assert.NoError(t, m.CheckUnit(billing.UnitKWh))
	assert.ErrorIs(t, m.CheckUnit(billing.UnitCubicMetre), billing.ErrUnitMismatch)

	unknown := billing.Meter{Type: "steam"}
	assert.ErrorIs(t, unknown.CheckUnit(billing.UnitKWh), billing.ErrUnknownMeterType)
}

func TestMeterReading_Negative(t *testing.T) {
	err := billing.MeterReading{Value: dec("-1")}.Validate()
	assert.ErrorIs(t, err, billing.ErrInvalidReading)
}

func TestMeterReading_Places(t *testing.T) {
	assert.NoError(t, billing.MeterReading{Value: dec("1024.75")}.Validate())
	assert.ErrorIs(t, billing.MeterReading{Value: dec("1024.755")}.Validate(), billing.ErrInvalidReading)
}

func TestMeter_UnknownTypeListsKnownTypes(t *testing.T) {
	err := billing.Meter{Type: "steam"}.Validate()
	require.Error(t, err)
	for _, mt := range billing.MeterTypes {
		assert.Contains(t, err.Error(), string(mt))
	}
}

func TestInvoiceItem_UnitAndCurrency(t *testing.T) {
	gbp := billing.PeriodCharge{Definition: billing.ChargeDefinition{Rule: billing.RuleFixed, Currency: billing.CurrencyGBP}}
	fixed := billing.InvoiceItem{Charge: &gbp}
	assert.Equal(t, billing.CurrencyGBP, fixed.Currency())
	assert.Equal(t, billing.Unit(""), fixed.Unit())

	area := billing.PeriodCharge{Definition: billing.ChargeDefinition{Rule: billing.RuleByArea}}
	assert.Equal(t, billing.UnitSquareMetre, billing.InvoiceItem{Charge: &area}.Unit())

	assert.Equal(t, billing.Currency(""), billing.InvoiceItem{}.Currency())
}

// =============================================================================
// PERIODS
// =============================================================================

func TestPeriod_Previous(t *testing.T) {
	assert.Equal(t, billing.YearMonth{Year: 2024, Month: 2}, billing.Period{Year: 2024, Month: 3}.Previous())
	assert.Equal(t, billing.YearMonth{Year: 2023, Month: 12}, billing.Period{Year: 2024, Month: 1}.Previous())
}

func TestYearMonth_Validate(t *testing.T) {
	assert.NoError(t, billing.YearMonth{Year: 2024, Month: 12}.Validate())
	assert.ErrorIs(t, billing.YearMonth{Year: 2024, Month: 13}.Validate(), billing.ErrInvalidPeriod)
	assert.ErrorIs(t, billing.YearMonth{Year: 2024, Month: 0}.Validate(), billing.ErrInvalidPeriod)
	assert.ErrorIs(t, billing.YearMonth{Year: 0, Month: 5}.Validate(), billing.ErrInvalidPeriod)
}


func TestErrors_Helpers(t *testing.T) {
	wrapped := errors.Join(errors.New("lookup"), billing.ErrNotFound)
	assert.True(t, billing.IsNotFound(wrapped))
	assert.False(t, billing.IsClientError(billing.ErrNotFound))
	assert.True(t, billing.IsClientError(billing.ErrMeterNotOwned))
}
