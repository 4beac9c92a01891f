package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AUDIT - Cross-check the ledger against bookings
// =============================================================================

type FindingCode string

const (
	FindingNegativeEscrow      FindingCode = "negative_escrow"
	FindingMissingEscrow       FindingCode = "missing_escrow"
	FindingDuplicateEscrow     FindingCode = "duplicate_escrow"
	FindingEscrowMismatch      FindingCode = "escrow_mismatch"
	FindingSettlementMismatch  FindingCode = "settlement_mismatch"
	FindingDuplicateSettlement FindingCode = "duplicate_settlement"
	FindingSettledNotCompleted FindingCode = "settled_not_completed"
	FindingOrphanEntry         FindingCode = "orphan_entry"

	// Informational: expected while cancellation mode is hold.
	FindingUnreconciledEscrow FindingCode = "unreconciled_escrow"
)

type Finding struct {
	Code      FindingCode
	BookingID BookingID
	Message   string
}

// AuditReport is the outcome of one audit run. Violations break a ledger
// invariant; Notices are expected consequences of policy.
type AuditReport struct {
	At              time.Time
	Bookings        int
	Entries         int
	EscrowBalance   decimal.Decimal
	CommissionTotal decimal.Decimal
	Violations      []Finding
	Notices         []Finding
}

func (r AuditReport) OK() bool { return len(r.Violations) == 0 }

// Audit scans every booking and entry. It is read-only and never posts.
func (l *Ledger) Audit(ctx context.Context) (AuditReport, error) {
	bookings, err := l.store.ListBookings(ctx)
	if err != nil {
		return AuditReport{}, internal("audit", err)
	}
	entries, err := l.store.Entries(ctx, EntryFilter{})
	if err != nil {
		return AuditReport{}, internal("audit", err)
	}
	return AuditLedger(bookings, entries, l.now()), nil
}

// AuditLedger checks the ledger invariants over a consistent snapshot.
func AuditLedger(bookings []Booking, entries []LedgerEntry, at time.Time) AuditReport {
	r := AuditReport{
		At:              at,
		Bookings:        len(bookings),
		Entries:         len(entries),
		EscrowBalance:   EscrowBalanceOf(entries),
		CommissionTotal: CommissionTotalOf(entries),
	}
	if r.EscrowBalance.IsNegative() {
		r.Violations = append(r.Violations, Finding{
			Code:    FindingNegativeEscrow,
			Message: fmt.Sprintf("escrow balance is %s", r.EscrowBalance),
		})
	}

	byBooking := make(map[BookingID][]LedgerEntry)
	for _, e := range entries {
		byBooking[e.BookingID] = append(byBooking[e.BookingID], e)
	}

	known := make(map[BookingID]bool, len(bookings))
	for _, b := range bookings {
		known[b.ID] = true
		r.auditBooking(b, byBooking[b.ID])
	}
	for id := range byBooking {
		if !known[id] {
			r.Violations = append(r.Violations, Finding{
				Code:      FindingOrphanEntry,
				BookingID: id,
				Message:   "ledger entries reference an unknown booking",
			})
		}
	}
	return r
}

func (r *AuditReport) auditBooking(b Booking, entries []LedgerEntry) {
	var (
		escrows, payouts, commissions, refunds int
		escrowed, settled                      = decimal.Zero, decimal.Zero
	)
	for _, e := range entries {
		switch e.Type {
		case EntryEscrow:
			escrows++
			escrowed = escrowed.Add(e.Credit)
		case EntryPayoutOwner:
			payouts++
			settled = settled.Add(e.Credit)
		case EntryCommission:
			commissions++
			settled = settled.Add(e.Credit)
		case EntryRefund:
			refunds++
		}
	}

	violate := func(code FindingCode, format string, args ...any) {
		r.Violations = append(r.Violations, Finding{Code: code, BookingID: b.ID, Message: fmt.Sprintf(format, args...)})
	}

	switch {
	case escrows == 0:
		violate(FindingMissingEscrow, "no escrow entry")
	case escrows > 1:
		violate(FindingDuplicateEscrow, "%d escrow entries", escrows)
	case !escrowed.Equal(b.TotalPrice.Value):
		violate(FindingEscrowMismatch, "escrowed %s, total %s", escrowed, b.TotalPrice.Value)
	}

	if payouts > 1 || commissions > 1 {
		violate(FindingDuplicateSettlement, "%d payouts, %d commissions", payouts, commissions)
	}

	if b.Status == BookingCompleted {
		if !settled.Equal(b.TotalPrice.Value) {
			violate(FindingSettlementMismatch, "payout + commission = %s, total %s", settled, b.TotalPrice.Value)
		}
	} else if payouts > 0 || commissions > 0 {
		violate(FindingSettledNotCompleted, "settlement posted while %s", b.Status)
	}

	if b.Status == BookingCancelled && refunds == 0 && escrows > 0 {
		r.Notices = append(r.Notices, Finding{
			Code:      FindingUnreconciledEscrow,
			BookingID: b.ID,
			Message:   fmt.Sprintf("%s held in escrow for a cancelled booking", escrowed),
		})
	}
}
