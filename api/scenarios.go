/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Pre-built data sets that walk through the booking lifecycle. Each one
	wipes the store, then drives the engine exactly as API clients would,
	so the ledger it leaves behind is a real one.

AVAILABLE SCENARIOS:

	completed-stay:    100/night home, two nights, completed (200 / 180 / 20)
	double-booking:    pending booking plus a rejected overlapping request
	cancelled-booking: cancelled booking whose nights are re-booked
	reviews-wishlist:  two homes, ratings from two actors, a guest wishlist

ACTORS:

	owner-1 (owner), guest-1 and guest-2 (guests), admin-1 (admin)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "completed-stay"}

NOTE:

	Scenarios reset the data. Only mounted when scenarios are enabled.

SEE ALSO:
  - handlers.go: Handler.Resetter
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/stay-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var (
	scenarioOwner  = engine.Actor{ID: "owner-1", Role: engine.RoleOwner}
	scenarioGuest  = engine.Actor{ID: "guest-1", Role: engine.RoleGuest}
	scenarioGuest2 = engine.Actor{ID: "guest-2", Role: engine.RoleGuest}
)

type scenario struct {
	ScenarioDTO
	load func(h *Handler, ctx context.Context) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "completed-stay",
			Name:        "Completed Stay",
			Description: "Two nights at 100/night, completed: owner 180, platform 20, escrow 0",
		},
		load: (*Handler).loadCompletedStay,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "double-booking",
			Name:        "Double Booking",
			Description: "A pending booking and a rejected request for an overlapping night",
		},
		load: (*Handler).loadDoubleBooking,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "cancelled-booking",
			Name:        "Cancelled Booking",
			Description: "A cancelled booking whose nights are immediately booked by another guest",
		},
		load: (*Handler).loadCancelledBooking,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "reviews-wishlist",
			Name:        "Reviews & Wishlist",
			Description: "Two homes, reviews from two actors and a prioritized wishlist",
		},
		load: (*Handler).loadReviewsWishlist,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, s.ScenarioDTO)
	}
	writeData(w, http.StatusOK, out)
}

// GetCurrentScenario returns the loaded scenario, or null.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, Envelope{Success: true})
		return
	}
	writeData(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets the data and loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		h.writeError(w, r, &engine.NotFoundError{Entity: "scenario", ID: req.ScenarioID})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.load(h, r.Context()); err != nil {
		h.writeError(w, r, fmt.Errorf("load scenario %s: %w", s.ID, err))
		return
	}
	h.currentScenario = s.ID
	h.Log.WithField("scenario", s.ID).Info("scenario loaded")

	writeData(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": s.ID})
}

// ResetData wipes every property, booking, entry, review and wishlist item.
// POST /api/scenarios/reset
func (h *Handler) ResetData(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reset must be called with h.mu held.
func (h *Handler) reset(ctx context.Context) error {
	if h.Resetter == nil {
		return &engine.StateError{Op: "reset", Message: "reset is not supported by this store"}
	}
	if err := h.Resetter.Reset(ctx); err != nil {
		return &engine.InternalError{Op: "reset", Err: err}
	}
	if h.Homes != nil {
		h.Homes.Clear()
	}
	h.currentScenario = ""
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) seedHome(ctx context.Context, title, city string, price int64) (*engine.Property, error) {
	return h.Engine.Properties.Create(ctx, scenarioOwner, engine.NewProperty{
		Title:       title,
		Description: "Demo listing",
		Location: engine.Location{
			Province:  "Central",
			District:  "Kandy",
			City:      city,
			Address:   "12 Lake Road",
			Latitude:  7.29,
			Longitude: 80.63,
		},
		Price:     decimal.NewFromInt(price),
		Bedrooms:  2,
		Bathrooms: 1,
		Features:  []string{"wifi", "parking"},
	})
}

func (h *Handler) seedBooking(ctx context.Context, actor engine.Actor, home engine.PropertyID, in engine.Night, nights int) (*engine.Booking, error) {
	stay := engine.Stay{CheckIn: in, CheckOut: in.AddDays(nights)}
	return h.Engine.Bookings.Create(ctx, actor, engine.CreateBooking{
		PropertyID: home,
		Guest:      engine.Guest{Name: string(actor.ID), Phone: "+94 77 000 0000", IDCard: "ID-" + string(actor.ID)},
		Nights:     stay.Nights(),
		CheckIn:    stay.CheckIn,
		CheckOut:   stay.CheckOut,
	})
}

func (h *Handler) loadCompletedStay(ctx context.Context) error {
	home, err := h.seedHome(ctx, "Lake View Cottage", "Kandy", 100)
	if err != nil {
		return err
	}
	b, err := h.seedBooking(ctx, scenarioGuest, home.ID, engine.NewNight(2024, 3, 1), 2)
	if err != nil {
		return err
	}
	_, err = h.Engine.Bookings.Complete(ctx, scenarioOwner, b.ID)
	return err
}

func (h *Handler) loadDoubleBooking(ctx context.Context) error {
	home, err := h.seedHome(ctx, "Hill Top Villa", "Nuwara Eliya", 100)
	if err != nil {
		return err
	}
	if _, err := h.seedBooking(ctx, scenarioGuest, home.ID, engine.NewNight(2024, 3, 1), 2); err != nil {
		return err
	}
	_, err = h.seedBooking(ctx, scenarioGuest2, home.ID, engine.NewNight(2024, 3, 2), 2)
	if !errors.Is(err, engine.ErrConflict) {
		return fmt.Errorf("overlapping booking: want conflict, got %v", err)
	}
	return nil
}

func (h *Handler) loadCancelledBooking(ctx context.Context) error {
	home, err := h.seedHome(ctx, "Beach House", "Galle", 100)
	if err != nil {
		return err
	}
	first, err := h.seedBooking(ctx, scenarioGuest, home.ID, engine.NewNight(2024, 3, 1), 2)
	if err != nil {
		return err
	}
	if _, err := h.Engine.Bookings.Cancel(ctx, scenarioGuest, first.ID, "Plans changed"); err != nil {
		return err
	}
	_, err = h.seedBooking(ctx, scenarioGuest2, home.ID, engine.NewNight(2024, 3, 1), 2)
	return err
}

func (h *Handler) loadReviewsWishlist(ctx context.Context) error {
	cottage, err := h.seedHome(ctx, "Tea Estate Bungalow", "Ella", 120)
	if err != nil {
		return err
	}
	loft, err := h.seedHome(ctx, "City Loft", "Colombo", 80)
	if err != nil {
		return err
	}

	b, err := h.seedBooking(ctx, scenarioGuest, cottage.ID, engine.NewNight(2024, 4, 10), 3)
	if err != nil {
		return err
	}
	if _, err := h.Engine.Bookings.Complete(ctx, scenarioOwner, b.ID); err != nil {
		return err
	}
	if _, err := h.Engine.Reviews.Add(ctx, scenarioGuest, b.ID, 5, "Wonderful views"); err != nil {
		return err
	}
	if _, err := h.Engine.Reviews.Add(ctx, scenarioGuest2, b.ID, 4, "Travelled along, lovely stay"); err != nil {
		return err
	}

	for _, id := range []engine.PropertyID{loft.ID, cottage.ID} {
		if _, err := h.Engine.Wishlist.Add(ctx, scenarioGuest2, id); err != nil {
			return err
		}
	}
	return nil
}
