package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/warp/stay-engine/engine"
)

// =============================================================================
// BOOKING ENDPOINTS
// =============================================================================

// CreateBooking holds the requested nights and captures payment into escrow.
// POST /api/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req CreateBookingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in, err := req.toEngine()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	booking, err := h.Engine.Bookings.Create(r.Context(), actor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toBookingDTO(*booking))
}

// ListBookings returns every booking.
// GET /api/bookings
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Engine.Bookings.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBookingDTOs(bookings))
}

// GetBooking returns one booking.
// GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.Engine.Bookings.Get(r.Context(), engine.BookingID(urlParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBookingDTO(*booking))
}

// GetHeldNights is the calendar of a home: every night a live booking holds.
// GET /api/bookings/home/{homeId}
func (h *Handler) GetHeldNights(w http.ResponseWriter, r *http.Request) {
	id := engine.PropertyID(urlParam(r, "homeId"))
	nights, err := h.Engine.Availability.HeldNights(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, HeldNightsDTO{HomeID: string(id), Nights: engine.NightStrings(nights)})
}

// CheckAvailability reports which of the requested nights are taken.
// GET /api/homes/{id}/availability?dates=2024-03-01,2024-03-02
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	id := engine.PropertyID(urlParam(r, "id"))
	raw := strings.TrimSpace(r.URL.Query().Get("dates"))
	if raw == "" {
		h.writeError(w, r, &engine.ValidationError{Field: "dates", Message: "required"})
		return
	}
	nights, err := parseNights("dates", strings.Split(raw, ","))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.Engine.Properties.Get(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Engine.Availability.Check(r.Context(), id, nights)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, AvailabilityDTO{
		HomeID:      string(id),
		Available:   res.Available,
		Conflicting: engine.NightStrings(res.Conflicting),
	})
}

// ListOwnerBookings returns bookings across the owner's homes, newest first.
// GET /api/bookings/owner/{ownerId}
func (h *Handler) ListOwnerBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Engine.Bookings.ListByOwner(r.Context(), engine.ActorID(urlParam(r, "ownerId")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBookingDTOs(bookings))
}

// CompleteBooking releases escrow to the owner and the platform.
// POST /api/bookings/{id}/complete
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.Bookings.Complete(r.Context(), actor, engine.BookingID(urlParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, CompletionDTO{
		Booking:    toBookingDTO(res.Booking),
		Payout:     res.Payout.Value.StringFixed(2),
		Commission: res.Commission.Value.StringFixed(2),
	})
}

// CancelBooking frees the nights. The body is optional.
// PUT /api/bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req CancelBookingRequest
	if err := h.decodeOptional(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	booking, err := h.Engine.Bookings.Cancel(r.Context(), actor, engine.BookingID(urlParam(r, "id")), req.RefundReason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBookingDTO(*booking))
}

// GetBookingLedger returns the ledger entries of one booking.
// GET /api/bookings/{id}/ledger
func (h *Handler) GetBookingLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.Ledger.EntriesForBooking(r.Context(), engine.BookingID(urlParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toLedgerEntryDTOs(entries))
}

// =============================================================================
// DATE PARSING
// =============================================================================

func (req CreateBookingRequest) toEngine() (engine.CreateBooking, error) {
	nights, err := parseNights("booked_dates", req.BookedDates)
	if err != nil {
		return engine.CreateBooking{}, err
	}
	checkIn, err := engine.ParseNight(strings.TrimSpace(req.StartDate))
	if err != nil {
		return engine.CreateBooking{}, &engine.ValidationError{Field: "start_date", Message: "not a date"}
	}
	checkOut, err := engine.ParseNight(strings.TrimSpace(req.EndDate))
	if err != nil {
		return engine.CreateBooking{}, &engine.ValidationError{Field: "end_date", Message: "not a date"}
	}
	return engine.CreateBooking{
		PropertyID: engine.PropertyID(req.HomeID),
		Guest: engine.Guest{
			Name:   req.GuestName,
			Phone:  req.Phone,
			IDCard: req.IDCard,
		},
		Nights:   nights,
		CheckIn:  checkIn,
		CheckOut: checkOut,
	}, nil
}

func parseNights(field string, raw []string) ([]engine.Night, error) {
	nights := make([]engine.Night, 0, len(raw))
	for i, s := range raw {
		n, err := engine.ParseNight(strings.TrimSpace(s))
		if err != nil {
			return nil, &engine.ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Message: "not a date"}
		}
		nights = append(nights, n)
	}
	return nights, nil
}
