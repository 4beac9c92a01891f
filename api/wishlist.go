package api

import (
	"net/http"

	"github.com/warp/stay-engine/engine"
)

// =============================================================================
// WISHLIST ENDPOINTS
// =============================================================================

// GetWishlist returns the caller's wishlist ordered by priority.
// GET /api/wishlist
func (h *Handler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	items, err := h.Engine.Wishlist.List(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toWishlistDTOs(items))
}

// AddToWishlist appends a home at the next priority.
// POST /api/wishlist
func (h *Handler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req AddWishlistRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.Engine.Wishlist.Add(r.Context(), actor, engine.PropertyID(req.HomeID)); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondWishlist(w, r, actor, http.StatusCreated)
}

// RemoveFromWishlist drops a home and closes the priority gap.
// DELETE /api/wishlist/{homeId}
func (h *Handler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.Engine.Wishlist.Remove(r.Context(), actor, engine.PropertyID(urlParam(r, "homeId"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondWishlist(w, r, actor, http.StatusOK)
}

// respondWishlist writes the whole list after a change, as clients re-render it.
func (h *Handler) respondWishlist(w http.ResponseWriter, r *http.Request, actor engine.Actor, status int) {
	items, err := h.Engine.Wishlist.List(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, status, toWishlistDTOs(items))
}
