/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates a group, its members
	and meters, readings for consecutive periods, and charges that exercise
	the distribution rules.

AVAILABLE SCENARIOS:

	apartment-building: All four rules in March 2024 (fixed, equal split,
	                    by area, water and electricity by meter)
	year-boundary:      January 2024 water bill, consumption measured
	                    against December 2023 readings
	nothing-to-bill:    Members and a period without charges

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create group and members
 3. Create meters and periods, submit readings
 4. Create charge definitions and period charges

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "apartment-building"}

	Then generate invoices with
	POST /api/members/{memberID}/invoices/generate/{periodID}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to scenarioLoaders

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Entity endpoints
  - invoices.go: Invoice generation
*/
package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/costshare/billing"
	"github.com/warp/costshare/store/sqlstore"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "apartment-building",
		Name:        "Apartment Building",
		Description: "Three flats sharing cleaning, elevator, roof fund, water and electricity",
	},
	{
		ID:          "year-boundary",
		Name:        "Year Boundary",
		Description: "January water bill split by consumption since December",
	},
	{
		ID:          "nothing-to-bill",
		Name:        "Nothing To Bill",
		Description: "A period without configured charges",
	},
}

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"apartment-building": h.loadApartmentBuildingScenario,
		"year-boundary":      h.loadYearBoundaryScenario,
		"nothing-to-bill":    h.loadNothingToBillScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	load, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		h.fail(w, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadApartmentBuildingScenario(ctx context.Context) error {
	s := &seeder{ctx: ctx, store: h.Store}

	g := s.group("Maple Court", "Residential building, three flats")
	alice := s.member(g, "Alice Martin", "alice@example.com", "Flat 1, Maple Court", "50")
	bob := s.member(g, "Bob Keller", "bob@example.com", "Flat 2, Maple Court", "75")
	carol := s.member(g, "Carol Dubois", "carol@example.com", "Flat 3, Maple Court", "125")

	feb := s.period(2024, 2)
	mar := s.period(2024, 3)

	// Water: 12 + 18 + 30 = 60 m3 in March
	for _, m := range []struct {
		member     billing.Member
		serial     string
		start, end string
	}{
		{alice, "W-001", "100", "112"},
		{bob, "W-002", "200", "218"},
		{carol, "W-003", "300", "330"},
	} {
		meter := s.meter(m.member, billing.MeterWater, m.serial)
		s.reading(m.member, meter, feb, m.start)
		s.reading(m.member, meter, mar, m.end)
	}

	// Electricity: 150 + 250 = 400 kWh in March. Carol has no meter.
	for _, m := range []struct {
		member     billing.Member
		serial     string
		start, end string
	}{
		{alice, "E-001", "1000", "1150"},
		{bob, "E-002", "2000", "2250"},
	} {
		meter := s.meter(m.member, billing.MeterElectricity, m.serial)
		s.reading(m.member, meter, feb, m.start)
		s.reading(m.member, meter, mar, m.end)
	}

	cleaning := s.definition(g, "Cleaning", "", billing.RuleFixed, "")
	elevator := s.definition(g, "Elevator maintenance", "", billing.RuleEqualSplit, "")
	roof := s.definition(g, "Roof fund", "Reserve for the 2025 roof renovation", billing.RuleByArea, "")
	water := s.definition(g, "Water", "City water supplier, quarterly tariff", billing.RuleProportional, billing.MeterWater)
	power := s.definition(g, "Electricity", "", billing.RuleProportional, billing.MeterElectricity)

	s.charge(g, mar, cleaning, "15")
	s.charge(g, mar, elevator, "90")
	s.charge(g, mar, roof, "500")
	s.charge(g, mar, water, "120")
	s.charge(g, mar, power, "200")

	return s.err
}

func (h *Handler) loadYearBoundaryScenario(ctx context.Context) error {
	s := &seeder{ctx: ctx, store: h.Store}

	g := s.group("Harbour Lofts", "Two lofts sharing one water supply")
	dana := s.member(g, "Dana Novak", "dana@example.com", "Loft A", "60")
	eli := s.member(g, "Eli Brandt", "eli@example.com", "Loft B", "40")

	dec := s.period(2023, 12)
	jan := s.period(2024, 1)

	danaMeter := s.meter(dana, billing.MeterWater, "HL-1")
	eliMeter := s.meter(eli, billing.MeterWater, "HL-2")
	s.reading(dana, danaMeter, dec, "50")
	s.reading(dana, danaMeter, jan, "58")
	s.reading(eli, eliMeter, dec, "70")
	s.reading(eli, eliMeter, jan, "82")

	water := s.definition(g, "Water", "", billing.RuleProportional, billing.MeterWater)
	admin := s.definition(g, "Administration", "", billing.RuleFixed, "")
	s.charge(g, jan, water, "100")
	s.charge(g, jan, admin, "10")

	return s.err
}

func (h *Handler) loadNothingToBillScenario(ctx context.Context) error {
	s := &seeder{ctx: ctx, store: h.Store}

	g := s.group("Quiet Row", "No charges configured yet")
	s.member(g, "Frank Olsen", "frank@example.com", "House 1", "90")
	s.period(2024, 5)
	s.definition(g, "Garden", "", billing.RuleEqualSplit, "")

	return s.err
}

// =============================================================================
// SEEDER
// =============================================================================

// seeder creates scenario entities and stops at the first error.
type seeder struct {
	ctx   context.Context
	store *sqlstore.Store
	err   error
}

func (s *seeder) group(name, description string) billing.Group {
	if s.err != nil {
		return billing.Group{}
	}
	var g billing.Group
	g, s.err = s.store.CreateGroup(s.ctx, billing.Group{Name: name, Description: description})
	return g
}

func (s *seeder) member(g billing.Group, name, email, address, area string) billing.Member {
	if s.err != nil {
		return billing.Member{}
	}
	var m billing.Member
	m, s.err = s.store.CreateMember(s.ctx, billing.Member{
		GroupID:   g.ID,
		FullName:  name,
		Email:     email,
		Address:   address,
		FloorArea: decimal.RequireFromString(area),
	})
	return m
}

func (s *seeder) period(year, month int) billing.Period {
	if s.err != nil {
		return billing.Period{}
	}
	var p billing.Period
	p, s.err = s.store.GetOrCreatePeriod(s.ctx, year, month)
	return p
}

func (s *seeder) meter(m billing.Member, t billing.MeterType, serial string) billing.Meter {
	if s.err != nil {
		return billing.Meter{}
	}
	var meter billing.Meter
	meter, s.err = s.store.CreateMeter(s.ctx, billing.Meter{MemberID: m.ID, Type: t, SerialNumber: serial})
	return meter
}

func (s *seeder) reading(m billing.Member, meter billing.Meter, p billing.Period, value string) {
	if s.err != nil {
		return
	}
	_, s.err = s.store.CreateReading(s.ctx, m.ID, billing.MeterReading{
		MeterID:  meter.ID,
		PeriodID: p.ID,
		Value:    decimal.RequireFromString(value),
	})
}

func (s *seeder) definition(g billing.Group, name, description string, rule billing.Rule, meterType billing.MeterType) billing.ChargeDefinition {
	if s.err != nil {
		return billing.ChargeDefinition{}
	}
	var d billing.ChargeDefinition
	d, s.err = s.store.CreateDefinition(s.ctx, billing.ChargeDefinition{
		GroupID:     g.ID,
		Name:        name,
		Description: description,
		Rule:        rule,
		MeterType:   meterType,
	})
	return d
}

func (s *seeder) charge(g billing.Group, p billing.Period, d billing.ChargeDefinition, amount string) {
	if s.err != nil {
		return
	}
	_, s.err = s.store.CreatePeriodCharge(s.ctx, billing.PeriodCharge{
		ID:         uuid.New(),
		GroupID:    g.ID,
		PeriodID:   p.ID,
		Definition: d,
		Amount:     decimal.RequireFromString(amount),
	})
}
