/*
ledger.go - Append-only money ledger

PURPOSE:
  The ledger is the only record of money. Escrow balance, platform
  commission and owner earnings are never stored; they are computed by
  scanning entries, so there is no second number that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. Corrections are new entries.
  2. UNIDIRECTIONAL: An entry has a debit or a credit, never both.
  3. IDEMPOTENT: Entries posted by the lifecycle carry a deterministic
     idempotency key (<booking>:<type>), so a replayed Complete cannot
     post twice even if two callers race.
  4. LIFECYCLE-OWNED ESCROW: Manual entries never credit escrow nor post
     escrow, payout or commission types. They may release escrow only
     of a cancelled booking, up to what it still holds.

ACCOUNTS:
  customer_wallet → escrow_account     on booking creation   (escrow_account)
  escrow_account  → owner_wallet       on completion         (payout_owner)
  escrow_account  → platform_wallet    on completion         (commission_income)
  escrow_account  → customer_wallet    on refund-mode cancel (refund)

AGGREGATES (full scan):
  EscrowBalance   = Σ credit(to = escrow_account) − Σ credit(from = escrow_account)
  CommissionTotal = Σ credit(type = commission_income)
  OwnerEarnings   = Σ credit(type = payout_owner, owner)

SEE ALSO:
  - booking.go: Lifecycle postings
  - audit.go: Cross-checks the ledger against bookings
*/
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	*deps
}

// Post records a manual entry. Only admins may post outside the booking lifecycle.
func (l *Ledger) Post(ctx context.Context, actor Actor, entry LedgerEntry) (LedgerEntry, error) {
	if err := requireActor(actor, "post ledger entry"); err != nil {
		return LedgerEntry{}, err
	}
	if !actor.IsAdmin() {
		return LedgerEntry{}, &UnauthorizedError{Actor: actor.ID, Op: "post ledger entry"}
	}
	if entry.BookingID == "" {
		return LedgerEntry{}, &ValidationError{Field: "booking_id", Message: "required"}
	}
	if err := ValidateEntry(entry); err != nil {
		return LedgerEntry{}, err
	}
	if err := validateManualEntry(entry); err != nil {
		return LedgerEntry{}, err
	}

	var posted []LedgerEntry
	err := l.store.WithTx(ctx, func(s Store) error {
		b, err := s.GetBooking(ctx, entry.BookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return &NotFoundError{Entity: "booking", ID: string(entry.BookingID)}
		}
		if entry.Accounts.From == AccountEscrow {
			if err := l.checkEscrowRelease(ctx, s, b, entry); err != nil {
				return err
			}
		}
		posted, err = l.post(ctx, s, actor, entry)
		return err
	})
	if err != nil {
		return LedgerEntry{}, internal("post ledger entry", err)
	}

	l.log.WithFields(logrus.Fields{
		"entry_id":   posted[0].ID,
		"booking_id": posted[0].BookingID,
		"type":       posted[0].Type,
		"actor_id":   actor.ID,
	}).Info("manual ledger entry posted")
	return posted[0], nil
}

// validateManualEntry rejects what only the booking lifecycle may post.
func validateManualEntry(e LedgerEntry) error {
	switch e.Type {
	case EntryEscrow, EntryPayoutOwner, EntryCommission:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("%s entries are posted by the booking lifecycle", e.Type)}
	}
	if e.Accounts.To == AccountEscrow {
		return &ValidationError{Field: "accounts.to", Message: "escrow is credited by the booking lifecycle"}
	}
	if e.IdempotencyKey != "" {
		return &ValidationError{Field: "idempotency_key", Message: "reserved for lifecycle postings"}
	}
	return nil
}

// checkEscrowRelease allows a manual release of escrow only for a cancelled
// booking, and never more than the booking still holds. Pending escrow
// belongs to Complete; completed escrow is already settled.
func (l *Ledger) checkEscrowRelease(ctx context.Context, s Store, b *Booking, e LedgerEntry) error {
	if b.Status != BookingCancelled {
		return &StateError{Op: "post ledger entry", ID: string(b.ID), Current: string(b.Status),
			Message: fmt.Sprintf("escrow of a %s booking is released by its lifecycle", b.Status)}
	}
	entries, err := s.Entries(ctx, EntryFilter{BookingID: b.ID})
	if err != nil {
		return fmt.Errorf("booking entries: %w", err)
	}
	held := EscrowBalanceOf(entries)
	if e.Credit.GreaterThan(held) {
		return &StateError{Op: "post ledger entry", ID: string(b.ID), Current: string(b.Status),
			Message: fmt.Sprintf("release of %s exceeds the %s held in escrow", e.Credit.StringFixed(2), held.StringFixed(2))}
	}
	return nil
}

// post validates, stamps and appends entries through s. Callers own the transaction.
func (l *Ledger) post(ctx context.Context, s Store, actor Actor, entries ...LedgerEntry) ([]LedgerEntry, error) {
	now := l.now()
	out := make([]LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e.Currency == "" {
			e.Currency = l.policy.Currency
		}
		if err := ValidateEntry(e); err != nil {
			return nil, err
		}
		if e.ID == "" {
			e.ID = EntryID(NewID("ent"))
		}
		if e.CreatedBy == "" {
			e.CreatedBy = actor.ID
		}
		e.CreatedAt = now
		out = append(out, e)
	}

	if err := s.AppendEntries(ctx, out); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return nil, &ConflictError{Reason: "ledger entry already posted", Err: err}
		}
		return nil, fmt.Errorf("append entries: %w", err)
	}
	return out, nil
}

// ValidateEntry checks the shape of an entry before it is appended.
func ValidateEntry(e LedgerEntry) error {
	if !e.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown entry type %q", e.Type)}
	}
	if e.Accounts.From == "" || e.Accounts.To == "" {
		return &ValidationError{Field: "accounts", Message: "both from and to are required"}
	}
	if !e.Accounts.From.Valid() {
		return &ValidationError{Field: "accounts.from", Message: fmt.Sprintf("unknown account %q", e.Accounts.From)}
	}
	if !e.Accounts.To.Valid() {
		return &ValidationError{Field: "accounts.to", Message: fmt.Sprintf("unknown account %q", e.Accounts.To)}
	}
	if e.Accounts.From == e.Accounts.To {
		return &ValidationError{Field: "accounts", Message: "from and to must differ"}
	}
	if e.Debit.IsNegative() || e.Credit.IsNegative() {
		return &ValidationError{Field: "amount", Message: "debit and credit must not be negative"}
	}
	if !e.Debit.IsZero() && !e.Credit.IsZero() {
		return &ValidationError{Field: "amount", Message: "an entry is either a debit or a credit"}
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (l *Ledger) EscrowBalance(ctx context.Context) (Amount, error) {
	entries, err := l.store.Entries(ctx, EntryFilter{})
	if err != nil {
		return Amount{}, internal("escrow balance", err)
	}
	return Amount{Value: EscrowBalanceOf(entries), Currency: l.policy.Currency}, nil
}

func (l *Ledger) CommissionTotal(ctx context.Context) (Amount, error) {
	entries, err := l.store.Entries(ctx, EntryFilter{Type: EntryCommission})
	if err != nil {
		return Amount{}, internal("commission total", err)
	}
	return Amount{Value: CommissionTotalOf(entries), Currency: l.policy.Currency}, nil
}

func (l *Ledger) OwnerEarnings(ctx context.Context, owner ActorID) (Amount, error) {
	if owner == "" {
		return Amount{}, &ValidationError{Field: "owner_id", Message: "required"}
	}
	entries, err := l.store.Entries(ctx, EntryFilter{Type: EntryPayoutOwner, OwnerID: owner})
	if err != nil {
		return Amount{}, internal("owner earnings", err)
	}
	return Amount{Value: OwnerEarningsOf(entries, owner), Currency: l.policy.Currency}, nil
}

func (l *Ledger) EntriesForBooking(ctx context.Context, id BookingID) ([]LedgerEntry, error) {
	entries, err := l.store.Entries(ctx, EntryFilter{BookingID: id})
	if err != nil {
		return nil, internal("booking entries", err)
	}
	return entries, nil
}

// AdminDashboard is the platform-wide view.
type AdminDashboard struct {
	EscrowBalance   Amount
	CommissionTotal Amount
}

func (l *Ledger) AdminDashboard(ctx context.Context, actor Actor) (AdminDashboard, error) {
	if !actor.IsAdmin() {
		return AdminDashboard{}, &UnauthorizedError{Actor: actor.ID, Op: "view admin dashboard"}
	}
	entries, err := l.store.Entries(ctx, EntryFilter{})
	if err != nil {
		return AdminDashboard{}, internal("admin dashboard", err)
	}
	return AdminDashboard{
		EscrowBalance:   Amount{Value: EscrowBalanceOf(entries), Currency: l.policy.Currency},
		CommissionTotal: Amount{Value: CommissionTotalOf(entries), Currency: l.policy.Currency},
	}, nil
}

// =============================================================================
// PURE AGGREGATES - Shared by the ledger, the recalculator and the auditor
// =============================================================================

func EscrowBalanceOf(entries []LedgerEntry) decimal.Decimal {
	in, out := decimal.Zero, decimal.Zero
	for _, e := range entries {
		if e.Accounts.To == AccountEscrow {
			in = in.Add(e.Credit)
		}
		if e.Accounts.From == AccountEscrow {
			out = out.Add(e.Credit)
		}
	}
	return in.Sub(out)
}

func CommissionTotalOf(entries []LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Type == EntryCommission {
			total = total.Add(e.Credit)
		}
	}
	return total
}

func OwnerEarningsOf(entries []LedgerEntry, owner ActorID) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Type == EntryPayoutOwner && e.OwnerID == owner {
			total = total.Add(e.Credit)
		}
	}
	return total
}

// idempotencyKey is the deterministic key of a lifecycle posting.
func idempotencyKey(id BookingID, t EntryType) string {
	return string(id) + ":" + string(t)
}
