package api

import (
	"net/http"

	"github.com/warp/stay-engine/engine"
)

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

// CreateLedgerEntry posts a manual entry against a booking. Admin only.
// POST /api/ledger/entries
func (h *Handler) CreateLedgerEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req CreateEntryRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	entry, err := h.Engine.Ledger.Post(r.Context(), actor, req.toEngine())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toLedgerEntryDTO(entry))
}

// GetAdminDashboard returns escrow balance and commission total.
// GET /api/ledger/admin/dashboard
func (h *Handler) GetAdminDashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	d, err := h.Engine.Ledger.AdminDashboard(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, AdminDashboardDTO{
		EscrowBalance:   d.EscrowBalance.Value.StringFixed(2),
		CommissionTotal: d.CommissionTotal.Value.StringFixed(2),
		Currency:        string(d.EscrowBalance.Currency),
	})
}

// GetOwnerDashboard returns the caller's payout total.
// GET /api/ledger/owner/dashboard
func (h *Handler) GetOwnerDashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	earnings, err := h.Engine.Ledger.OwnerEarnings(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, OwnerDashboardDTO{
		OwnerID:  string(actor.ID),
		Earnings: earnings.Value.StringFixed(2),
		Currency: string(earnings.Currency),
	})
}

// GetAuditReport returns the scheduler's last report. ?fresh=true, or no
// report yet, runs an audit inline. Admin only.
// GET /api/ledger/admin/audit
func (h *Handler) GetAuditReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		h.writeError(w, r, &engine.UnauthorizedError{Actor: actor.ID, Op: "view ledger audit"})
		return
	}

	fresh := r.URL.Query().Get("fresh") == "true"
	if h.Auditor != nil && !fresh {
		if report, ok := h.Auditor.LastReport(); ok {
			writeData(w, http.StatusOK, toAuditReportDTO(report))
			return
		}
	}

	var (
		report engine.AuditReport
		err    error
	)
	if h.Auditor != nil {
		report, err = h.Auditor.RunNow(r.Context())
	} else {
		report, err = h.Engine.Ledger.Audit(r.Context())
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAuditReportDTO(report))
}
