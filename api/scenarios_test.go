/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Each scenario must load cleanly and leave the ledger in the state its
	description promises. They double as end-to-end checks of the engine.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, s *testServer, id string) {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/scenarios/load", nobody, map[string]string{"scenario_id": id})
	data[map[string]string](t, rec, http.StatusOK)
}

func TestScenarios_ListAndCurrent(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	list := data[[]ScenarioDTO](t, s.do(http.MethodGet, "/api/scenarios", nobody, nil), http.StatusOK)
	require.Len(t, list, len(scenarios))
	assert.Equal(t, "completed-stay", list[0].ID)

	rec := s.do(http.MethodGet, "/api/scenarios/current", nobody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, envelope(t, rec).Data)

	loadScenario(t, s, "double-booking")
	current := data[ScenarioDTO](t, s.do(http.MethodGet, "/api/scenarios/current", nobody, nil), http.StatusOK)
	assert.Equal(t, "double-booking", current.ID)
}

func TestScenario_CompletedStay(t *testing.T) {
	// GIVEN: The completed-stay scenario
	// WHEN: The dashboards are read
	// THEN: Escrow is empty, the platform kept 20 and the owner earned 180

	s := newTestServer(t, serverOptions{})
	loadScenario(t, s, "completed-stay")

	dash := data[AdminDashboardDTO](t, s.do(http.MethodGet, "/api/ledger/admin/dashboard", admin, nil), http.StatusOK)
	assert.Equal(t, "0.00", dash.EscrowBalance)
	assert.Equal(t, "20.00", dash.CommissionTotal)

	earnings := data[OwnerDashboardDTO](t, s.do(http.MethodGet, "/api/ledger/owner/dashboard", owner, nil), http.StatusOK)
	assert.Equal(t, "180.00", earnings.Earnings)

	bookings := data[[]BookingDTO](t, s.do(http.MethodGet, "/api/bookings", nobody, nil), http.StatusOK)
	require.Len(t, bookings, 1)
	assert.Equal(t, "completed", bookings[0].Status)
	assert.Equal(t, "200.00", bookings[0].TotalPrice)
}

func TestScenario_DoubleBooking(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	loadScenario(t, s, "double-booking")

	bookings := data[[]BookingDTO](t, s.do(http.MethodGet, "/api/bookings", nobody, nil), http.StatusOK)
	require.Len(t, bookings, 1, "the overlapping request created nothing")

	dash := data[AdminDashboardDTO](t, s.do(http.MethodGet, "/api/ledger/admin/dashboard", admin, nil), http.StatusOK)
	assert.Equal(t, "200.00", dash.EscrowBalance)
}

func TestScenario_CancelledBooking(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	loadScenario(t, s, "cancelled-booking")

	bookings := data[[]BookingDTO](t, s.do(http.MethodGet, "/api/bookings", nobody, nil), http.StatusOK)
	require.Len(t, bookings, 2)

	statuses := map[string]string{}
	for _, b := range bookings {
		statuses[b.ActorID] = b.Status
		assert.Equal(t, []string{"2024-03-01", "2024-03-02"}, b.BookedDates)
	}
	assert.Equal(t, map[string]string{"guest-1": "cancelled", "guest-2": "pending"}, statuses)

	report, err := s.handler.Auditor.RunNow(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
	require.Len(t, report.Notices, 1, "hold mode leaves the cancelled escrow unreconciled")
}

func TestScenario_ReviewsWishlist(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	loadScenario(t, s, "reviews-wishlist")

	homes := data[[]HomeDTO](t, s.do(http.MethodGet, "/api/homes", nobody, nil), http.StatusOK)
	require.Len(t, homes, 2)
	ratings := map[string]float64{}
	for _, h := range homes {
		ratings[h.Title] = h.AverageRating
	}
	assert.Equal(t, 4.5, ratings["Tea Estate Bungalow"])
	assert.Equal(t, 0.0, ratings["City Loft"])

	wishlist := data[[]WishlistItemDTO](t, s.do(http.MethodGet, "/api/wishlist", guest2, nil), http.StatusOK)
	require.Len(t, wishlist, 2)
	assert.Equal(t, 1, wishlist[0].Priority)
	assert.Equal(t, 2, wishlist[1].Priority)
}

func TestScenario_ReloadResets(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	loadScenario(t, s, "completed-stay")
	loadScenario(t, s, "completed-stay")

	homes := data[[]HomeDTO](t, s.do(http.MethodGet, "/api/homes", nobody, nil), http.StatusOK)
	assert.Len(t, homes, 1)

	data[map[string]string](t, s.do(http.MethodPost, "/api/scenarios/reset", nobody, nil), http.StatusOK)
	homes = data[[]HomeDTO](t, s.do(http.MethodGet, "/api/homes", nobody, nil), http.StatusOK)
	assert.Empty(t, homes)
}

func TestScenario_Unknown(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	body := failure(t,
		s.do(http.MethodPost, "/api/scenarios/load", nobody, map[string]string{"scenario_id": "nope"}),
		http.StatusNotFound)
	assert.Equal(t, "not_found", body.Kind)

	failure(t, s.do(http.MethodPost, "/api/scenarios/load", nobody, map[string]string{}), http.StatusBadRequest)
}
