package api_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/costshare/api"
	"github.com/warp/costshare/billing"
)

// loadScenario loads a demo scenario and returns its only group's members by name
// and the period for (year, month).
func (s *testServer) loadScenario(id string, year, month int) (map[string]api.MemberDTO, billing.Period) {
	s.t.Helper()
	s.call(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: id}, http.StatusOK, nil)

	var groups []api.GroupDTO
	s.call(http.MethodGet, "/api/groups", nil, http.StatusOK, &groups)
	require.Len(s.t, groups, 1)

	var members []api.MemberDTO
	s.call(http.MethodGet, "/api/groups/"+groups[0].ID.String()+"/members", nil, http.StatusOK, &members)
	byName := make(map[string]api.MemberDTO, len(members))
	for _, m := range members {
		byName[m.FullName] = m
	}

	p, err := s.store.FindPeriod(context.Background(), year, month)
	require.NoError(s.t, err)
	require.NotNil(s.t, p)
	return byName, *p
}

func (s *testServer) generate(memberID, periodID uuid.UUID, wantStatus int) api.InvoiceDTO {
	s.t.Helper()
	var inv api.InvoiceDTO
	s.call(http.MethodPost, "/api/members/"+memberID.String()+"/invoices/generate/"+periodID.String(), nil, wantStatus, &inv)
	return inv
}

func TestGenerateInvoice_AllRules(t *testing.T) {
	// GIVEN the apartment building with March charges
	s := newTestServer(t)
	members, mar := s.loadScenario("apartment-building", 2024, 3)
	alice := members["Alice Martin"]

	// WHEN Alice's March invoice is generated
	inv := s.generate(alice.ID, mar.ID, http.StatusCreated)

	// THEN every rule contributes: 15 + 30 + 100 + 24 (water) + 75 (power)
	assertDecimal(t, "244", inv.TotalAmount)
	assertDecimal(t, "244", inv.PayableAmount)
	assertDecimal(t, "0", inv.Balance)
	assert.Regexp(t, `^INV-202403-[0-9a-f]{6}-[0-9a-f]{4}$`, inv.Number)
	assert.Equal(t, alice.ID.String()[:6], inv.Number[11:17])
	require.Len(t, inv.Items, 5)

	// AND unmetered items are listed first, then metered by consumption
	assert.Nil(t, inv.Items[0].Consumed)
	assert.Nil(t, inv.Items[1].Consumed)
	assert.Nil(t, inv.Items[2].Consumed)
	require.NotNil(t, inv.Items[3].Consumed)
	assertDecimal(t, "12", *inv.Items[3].Consumed)
	assertDecimal(t, "2", inv.Items[3].UnitPrice)
	assertDecimal(t, "24", inv.Items[3].Total)
	assert.Equal(t, "m³", inv.Items[3].Unit)
	require.NotNil(t, inv.Items[4].Consumed)
	assertDecimal(t, "150", *inv.Items[4].Consumed)
	assertDecimal(t, "0.5", inv.Items[4].UnitPrice)

	// AND the roof fund and water descriptions become footnotes
	require.Len(t, inv.Footnotes, 2)
	assert.Equal(t, 1, inv.Footnotes[0].Number)
	assert.Equal(t, "Reserve for the 2025 roof renovation", inv.Footnotes[0].Text)
	assert.Equal(t, 2, inv.Items[3].Footnote)
}

func TestGenerateInvoice_MemberWithoutMeter(t *testing.T) {
	s := newTestServer(t)
	members, mar := s.loadScenario("apartment-building", 2024, 3)

	inv := s.generate(members["Carol Dubois"].ID, mar.ID, http.StatusCreated)

	// 15 + 30 + 250 + 60, no electricity item
	assertDecimal(t, "355", inv.TotalAmount)
	assert.Len(t, inv.Items, 4)
}

func TestGenerateInvoice_YearBoundary(t *testing.T) {
	// GIVEN January readings measured against December of the previous year
	s := newTestServer(t)
	members, jan := s.loadScenario("year-boundary", 2024, 1)

	// WHEN invoices are generated
	dana := s.generate(members["Dana Novak"].ID, jan.ID, http.StatusCreated)
	eli := s.generate(members["Eli Brandt"].ID, jan.ID, http.StatusCreated)

	// THEN the water bill is split 8:12 over 20 m3
	assertDecimal(t, "50", dana.TotalAmount)
	assertDecimal(t, "70", eli.TotalAmount)
}

func TestGenerateInvoice_NothingToBill(t *testing.T) {
	s := newTestServer(t)
	members, may := s.loadScenario("nothing-to-bill", 2024, 5)

	var resp api.ErrorResponse
	s.call(http.MethodPost, "/api/members/"+members["Frank Olsen"].ID.String()+"/invoices/generate/"+may.ID.String(),
		nil, http.StatusUnprocessableEntity, &resp)
	assert.Equal(t, "nothing_to_bill", resp.Error)

	var invoices []api.InvoiceSummaryDTO
	s.call(http.MethodGet, "/api/members/"+members["Frank Olsen"].ID.String()+"/invoices", nil, http.StatusOK, &invoices)
	assert.Empty(t, invoices)
}

func TestGenerateInvoice_UnknownMemberOrPeriod(t *testing.T) {
	s := newTestServer(t)
	members, mar := s.loadScenario("apartment-building", 2024, 3)

	s.generate(uuid.New(), mar.ID, http.StatusNotFound)
	s.generate(members["Alice Martin"].ID, uuid.New(), http.StatusNotFound)
}

func TestInvoices_ListAndDetail(t *testing.T) {
	// GIVEN two invoices for Alice in the same period
	s := newTestServer(t)
	members, mar := s.loadScenario("apartment-building", 2024, 3)
	alice := members["Alice Martin"]
	first := s.generate(alice.ID, mar.ID, http.StatusCreated)
	second := s.generate(alice.ID, mar.ID, http.StatusCreated)

	// THEN both are listed with distinct numbers
	assert.NotEqual(t, first.Number, second.Number)
	var invoices []api.InvoiceSummaryDTO
	s.call(http.MethodGet, "/api/members/"+alice.ID.String()+"/invoices", nil, http.StatusOK, &invoices)
	assert.Len(t, invoices, 2)

	// AND the detail reloads the same items and footnotes
	var detail api.InvoiceDTO
	s.call(http.MethodGet, "/api/members/"+alice.ID.String()+"/invoices/"+first.ID.String(), nil, http.StatusOK, &detail)
	assert.Equal(t, first.Number, detail.Number)
	require.Len(t, detail.Items, len(first.Items))
	for i := range first.Items {
		assert.Equal(t, first.Items[i].Description, detail.Items[i].Description)
		assertDecimal(t, first.Items[i].Total.String(), detail.Items[i].Total)
	}
	assert.Equal(t, first.Footnotes, detail.Footnotes)

	// AND another member cannot read it
	bob := members["Bob Keller"]
	s.call(http.MethodGet, "/api/members/"+bob.ID.String()+"/invoices/"+first.ID.String(), nil, http.StatusNotFound, nil)
}

func TestInvoices_Export(t *testing.T) {
	s := newTestServer(t)
	members, mar := s.loadScenario("apartment-building", 2024, 3)
	alice := members["Alice Martin"]
	inv := s.generate(alice.ID, mar.ID, http.StatusCreated)
	path := "/api/members/" + alice.ID.String() + "/invoices/" + inv.ID.String() + "/export"

	t.Run("pdf", func(t *testing.T) {
		rec := s.do(http.MethodGet, path+"?format=pdf", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), inv.Number+".pdf")
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
	})

	t.Run("xlsx", func(t *testing.T) {
		rec := s.do(http.MethodGet, path+"?format=xlsx", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		number, err := f.GetCellValue("summary", "B1")
		require.NoError(t, err)
		assert.Equal(t, inv.Number, number)
		issuer, err := f.GetCellValue("summary", "B5")
		require.NoError(t, err)
		assert.Equal(t, "Maple Court", issuer)
	})

	t.Run("unsupported format", func(t *testing.T) {
		rec := s.do(http.MethodGet, path+"?format=csv", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
