package api

import (
	"net/http"

	"github.com/warp/stay-engine/engine"
)

// =============================================================================
// REVIEW ENDPOINTS
// =============================================================================

// AddReview rates a booking. One review per booking and actor.
// POST /api/reviews/{id} (id is the booking)
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req CreateReviewRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	review, err := h.Engine.Reviews.Add(r.Context(), actor, engine.BookingID(urlParam(r, "id")), req.Rating, req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toReviewDTO(*review))
}

// ListBookingReviews returns a booking's reviews, newest first.
// GET /api/reviews/{id} (id is the booking)
func (h *Handler) ListBookingReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.Engine.Reviews.ListByBooking(r.Context(), engine.BookingID(urlParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toReviewDTOs(reviews))
}

// ListHomeReviews returns every review left on a home's bookings.
// GET /api/homes/{id}/reviews
func (h *Handler) ListHomeReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.Engine.Reviews.ListByProperty(r.Context(), engine.PropertyID(urlParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toReviewDTOs(reviews))
}

// DeleteReview removes a review; the author or an admin only.
// DELETE /api/reviews/{id} (id is the review)
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.Engine.Reviews.Delete(r.Context(), actor, engine.ReviewID(urlParam(r, "id"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
}
