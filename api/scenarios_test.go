package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costshare/api"
)

func TestScenarios_List(t *testing.T) {
	s := newTestServer(t)

	var scenarios []api.ScenarioDTO
	s.call(http.MethodGet, "/api/scenarios", nil, http.StatusOK, &scenarios)

	require.Len(t, scenarios, 3)
	assert.Equal(t, "apartment-building", scenarios[0].ID)
}

func TestScenarios_LoadTracksCurrent(t *testing.T) {
	// GIVEN no scenario loaded
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())

	// WHEN a scenario is loaded
	s.call(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "year-boundary"}, http.StatusOK, nil)

	// THEN it is the current one
	var current api.ScenarioDTO
	s.call(http.MethodGet, "/api/scenarios/current", nil, http.StatusOK, &current)
	assert.Equal(t, "year-boundary", current.ID)
}

func TestScenarios_LoadResetsDatabase(t *testing.T) {
	s := newTestServer(t)

	s.call(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "apartment-building"}, http.StatusOK, nil)
	s.call(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "apartment-building"}, http.StatusOK, nil)

	var groups []api.GroupDTO
	s.call(http.MethodGet, "/api/groups", nil, http.StatusOK, &groups)
	require.Len(t, groups, 1)

	var members []api.MemberDTO
	s.call(http.MethodGet, "/api/groups/"+groups[0].ID.String()+"/members", nil, http.StatusOK, &members)
	assert.Len(t, members, 3)

	var periods []api.PeriodDTO
	s.call(http.MethodGet, "/api/periods", nil, http.StatusOK, &periods)
	assert.Len(t, periods, 2)
}

func TestScenarios_Unknown(t *testing.T) {
	s := newTestServer(t)
	s.call(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "moon-base"}, http.StatusBadRequest, nil)
}
