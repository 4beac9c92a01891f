/*
booking.go - Booking lifecycle and its ledger postings

PURPOSE:
  Owns the three transitions of a booking and the money movements tied to
  each. A transition and its postings commit together or not at all.

LIFECYCLE:
  Create:   (none)   → pending     escrow_account     customer → escrow
  Complete: pending  → completed   payout_owner       escrow → owner
                                   commission_income  escrow → platform
  Cancel:   pending  → cancelled   refund (refund mode only) escrow → customer

  completed and cancelled are terminal. active and refunded are declared
  statuses that no transition enters.

DOUBLE-BOOKING:
  Create checks availability and inserts inside one WithTx. Stores also
  reject a second holder of a night (ErrNightTaken), so two creators racing
  for the same nights cannot both commit.

DOUBLE-COMPLETION:
  Complete re-reads the status inside its transaction, and lifecycle entries
  carry unique idempotency keys (<booking>:payout_owner, ...). A second
  Complete fails with a StateError and posts nothing.

AUTHORIZATION:
  Create:   any identified actor
  Complete: property owner or admin
  Cancel:   the booking's actor, property owner or admin

SEE ALSO:
  - availability.go: Held-night check
  - ledger.go: Posting validation and idempotency
  - policy.go: Commission split and cancellation mode
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const defaultRefundReason = "No reason provided"

// CreateBooking is the input of BookingManager.Create.
type CreateBooking struct {
	PropertyID PropertyID
	Guest      Guest
	Nights     []Night
	CheckIn    Night
	CheckOut   Night
}

// Validate checks the request shape. Property-dependent checks happen in Create.
func (r CreateBooking) Validate() error {
	if r.PropertyID == "" {
		return &ValidationError{Field: "property_id", Message: "required"}
	}
	if strings.TrimSpace(r.Guest.Name) == "" {
		return &ValidationError{Field: "guest_name", Message: "required"}
	}
	if strings.TrimSpace(r.Guest.Phone) == "" {
		return &ValidationError{Field: "phone", Message: "required"}
	}
	if strings.TrimSpace(r.Guest.IDCard) == "" {
		return &ValidationError{Field: "id_card", Message: "required"}
	}
	if len(r.Nights) == 0 {
		return &ValidationError{Field: "nights", Message: "at least one night is required"}
	}
	if r.CheckIn.IsZero() || r.CheckOut.IsZero() {
		return &ValidationError{Field: "dates", Message: "check-in and check-out are required"}
	}
	if !r.CheckOut.After(r.CheckIn) {
		return &ValidationError{Field: "check_out", Message: "must be after check-in"}
	}

	stay := Stay{CheckIn: r.CheckIn, CheckOut: r.CheckOut}
	seen := make(map[Night]bool, len(r.Nights))
	for _, n := range r.Nights {
		n = NightOf(n.Time)
		if seen[n] {
			return &ValidationError{Field: "nights", Message: fmt.Sprintf("night %s listed twice", n)}
		}
		seen[n] = true
		if !stay.Contains(n) {
			return &ValidationError{Field: "nights", Message: fmt.Sprintf("night %s is outside %s", n, stay)}
		}
	}
	return nil
}

// =============================================================================
// BOOKING MANAGER
// =============================================================================

type BookingManager struct {
	*deps
	availability *AvailabilityIndex
	ledger       *Ledger
}

// Create books nights for the actor and moves the total into escrow.
func (m *BookingManager) Create(ctx context.Context, actor Actor, req CreateBooking) (*Booking, error) {
	if err := requireActor(actor, "create booking"); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	req.CheckIn, req.CheckOut = NightOf(req.CheckIn.Time), NightOf(req.CheckOut.Time)
	nights := make([]Night, len(req.Nights))
	for i, n := range req.Nights {
		nights[i] = NightOf(n.Time)
	}
	SortNights(nights)

	var booking Booking
	err := m.store.WithTx(ctx, func(s Store) error {
		p, err := s.GetProperty(ctx, req.PropertyID)
		if err != nil {
			return err
		}
		if p == nil {
			return &NotFoundError{Entity: "property", ID: string(req.PropertyID)}
		}
		if p.Status != PropertyActive {
			return &StateError{Op: "book", ID: string(p.ID), Current: string(p.Status),
				Message: fmt.Sprintf("property %s is %s and cannot be booked", p.ID, p.Status)}
		}

		avail, err := m.availability.check(ctx, s, p.ID, nights)
		if err != nil {
			return err
		}
		if !avail.Available {
			return &ConflictError{Reason: "selected dates are already booked", Nights: avail.Conflicting}
		}

		now := m.now()
		booking = Booking{
			ID:         BookingID(NewID("bkg")),
			PropertyID: p.ID,
			ActorID:    actor.ID,
			Guest:      req.Guest,
			Nights:     nights,
			CheckIn:    req.CheckIn,
			CheckOut:   req.CheckOut,
			TotalPrice: p.Price.Mul(decimalInt(len(nights))),
			Status:     BookingPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.InsertBooking(ctx, booking); err != nil {
			if errors.Is(err, ErrNightTaken) {
				return &ConflictError{Reason: "selected dates are already booked", Nights: nights, Err: err}
			}
			return fmt.Errorf("insert booking: %w", err)
		}

		_, err = m.ledger.post(ctx, s, actor, LedgerEntry{
			BookingID:      booking.ID,
			Type:           EntryEscrow,
			Credit:         booking.TotalPrice.Value,
			Accounts:       Accounts{From: AccountCustomer, To: AccountEscrow},
			Currency:       booking.TotalPrice.Currency,
			Note:           "Payment held in escrow until checkout",
			IdempotencyKey: idempotencyKey(booking.ID, EntryEscrow),
		})
		return err
	})
	if err != nil {
		return nil, internal("create booking", err)
	}

	m.log.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"property_id": booking.PropertyID,
		"actor_id":    actor.ID,
		"nights":      len(booking.Nights),
		"total":       booking.TotalPrice.String(),
	}).Info("booking created")
	m.publish(ctx, Event{
		Type:       EventBookingCreated,
		BookingID:  booking.ID,
		PropertyID: booking.PropertyID,
		ActorID:    actor.ID,
		Amount:     booking.TotalPrice,
		At:         booking.CreatedAt,
	})
	return &booking, nil
}

// CompletionResult reports the split posted by Complete.
type CompletionResult struct {
	Booking    Booking
	Payout     Amount
	Commission Amount
}

// Complete releases escrow to the owner and the platform.
func (m *BookingManager) Complete(ctx context.Context, actor Actor, id BookingID) (*CompletionResult, error) {
	if err := requireActor(actor, "complete booking"); err != nil {
		return nil, err
	}

	var res CompletionResult
	err := m.store.WithTx(ctx, func(s Store) error {
		b, p, err := m.load(ctx, s, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && actor.ID != p.OwnerID {
			return &UnauthorizedError{Actor: actor.ID, Op: "complete booking " + string(b.ID)}
		}
		if b.Status.IsTerminal() {
			return &StateError{Op: "complete", ID: string(b.ID), Current: string(b.Status),
				Message: fmt.Sprintf("booking %s already %s", b.ID, b.Status)}
		}

		commission, payout := m.policy.Split(b.TotalPrice.Value)
		currency := b.TotalPrice.Currency
		_, err = m.ledger.post(ctx, s, actor,
			LedgerEntry{
				BookingID:      b.ID,
				OwnerID:        p.OwnerID,
				Type:           EntryPayoutOwner,
				Credit:         payout,
				Accounts:       Accounts{From: AccountEscrow, To: AccountOwner},
				Currency:       currency,
				Note:           "Owner payout after successful checkout",
				IdempotencyKey: idempotencyKey(b.ID, EntryPayoutOwner),
			},
			LedgerEntry{
				BookingID:      b.ID,
				Type:           EntryCommission,
				Credit:         commission,
				Accounts:       Accounts{From: AccountEscrow, To: AccountPlatform},
				Currency:       currency,
				Note:           "Commission collected by platform",
				IdempotencyKey: idempotencyKey(b.ID, EntryCommission),
			},
		)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				return &StateError{Op: "complete", ID: string(b.ID), Current: string(b.Status),
					Message: fmt.Sprintf("booking %s already settled", b.ID)}
			}
			return err
		}

		now := m.now()
		if err := s.UpdateBookingStatus(ctx, b.ID, BookingCompleted, b.RefundReason, now); err != nil {
			return fmt.Errorf("update booking status: %w", err)
		}
		b.Status = BookingCompleted
		b.UpdatedAt = now
		res = CompletionResult{
			Booking:    *b,
			Payout:     Amount{Value: payout, Currency: currency},
			Commission: Amount{Value: commission, Currency: currency},
		}
		return nil
	})
	if err != nil {
		return nil, internal("complete booking", err)
	}

	m.log.WithFields(logrus.Fields{
		"booking_id": id,
		"actor_id":   actor.ID,
		"payout":     res.Payout.String(),
		"commission": res.Commission.String(),
	}).Info("booking completed")
	m.publish(ctx, Event{
		Type:       EventBookingCompleted,
		BookingID:  id,
		PropertyID: res.Booking.PropertyID,
		ActorID:    actor.ID,
		Amount:     res.Booking.TotalPrice,
		At:         res.Booking.UpdatedAt,
	})
	return &res, nil
}

// Cancel frees the booking's nights. In refund mode escrow is returned to the customer.
func (m *BookingManager) Cancel(ctx context.Context, actor Actor, id BookingID, reason string) (*Booking, error) {
	if err := requireActor(actor, "cancel booking"); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRefundReason
	}

	var booking Booking
	err := m.store.WithTx(ctx, func(s Store) error {
		b, p, err := m.load(ctx, s, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && actor.ID != b.ActorID && actor.ID != p.OwnerID {
			return &UnauthorizedError{Actor: actor.ID, Op: "cancel booking " + string(b.ID)}
		}
		if b.Status.IsTerminal() {
			return &StateError{Op: "cancel", ID: string(b.ID), Current: string(b.Status),
				Message: fmt.Sprintf("booking %s already %s", b.ID, b.Status)}
		}

		now := m.now()
		if err := s.UpdateBookingStatus(ctx, b.ID, BookingCancelled, reason, now); err != nil {
			return fmt.Errorf("update booking status: %w", err)
		}

		if m.policy.CancellationMode == CancelRefund {
			_, err := m.ledger.post(ctx, s, actor, LedgerEntry{
				BookingID:      b.ID,
				Type:           EntryRefund,
				Credit:         b.TotalPrice.Value,
				Accounts:       Accounts{From: AccountEscrow, To: AccountCustomer},
				Currency:       b.TotalPrice.Currency,
				Note:           "Refund on cancellation: " + reason,
				IdempotencyKey: idempotencyKey(b.ID, EntryRefund),
			})
			if err != nil {
				return err
			}
		}

		b.Status = BookingCancelled
		b.RefundReason = reason
		b.UpdatedAt = now
		booking = *b
		return nil
	})
	if err != nil {
		return nil, internal("cancel booking", err)
	}

	m.log.WithFields(logrus.Fields{
		"booking_id": id,
		"actor_id":   actor.ID,
		"reason":     reason,
		"mode":       m.policy.CancellationMode,
	}).Info("booking cancelled")
	m.publish(ctx, Event{
		Type:       EventBookingCancelled,
		BookingID:  id,
		PropertyID: booking.PropertyID,
		ActorID:    actor.ID,
		Amount:     booking.TotalPrice,
		At:         booking.UpdatedAt,
	})
	return &booking, nil
}

// load fetches a booking and its property, failing with NotFoundError.
func (m *BookingManager) load(ctx context.Context, s Store, id BookingID) (*Booking, *Property, error) {
	b, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if b == nil {
		return nil, nil, &NotFoundError{Entity: "booking", ID: string(id)}
	}
	p, err := s.GetProperty(ctx, b.PropertyID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, &NotFoundError{Entity: "property", ID: string(b.PropertyID)}
	}
	return b, p, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (m *BookingManager) Get(ctx context.Context, id BookingID) (*Booking, error) {
	b, err := m.store.GetBooking(ctx, id)
	if err != nil {
		return nil, internal("get booking", err)
	}
	if b == nil {
		return nil, &NotFoundError{Entity: "booking", ID: string(id)}
	}
	return b, nil
}

func (m *BookingManager) List(ctx context.Context) ([]Booking, error) {
	bookings, err := m.store.ListBookings(ctx)
	if err != nil {
		return nil, internal("list bookings", err)
	}
	return bookings, nil
}

// ListByProperty returns the property's bookings that still hold nights.
func (m *BookingManager) ListByProperty(ctx context.Context, propertyID PropertyID) ([]Booking, error) {
	all, err := m.store.ListBookingsByProperty(ctx, propertyID)
	if err != nil {
		return nil, internal("list bookings", err)
	}
	out := make([]Booking, 0, len(all))
	for _, b := range all {
		if b.Status.HoldsNights() {
			out = append(out, b)
		}
	}
	return out, nil
}

// ListByOwner returns every booking of the owner's properties, newest first.
func (m *BookingManager) ListByOwner(ctx context.Context, owner ActorID) ([]Booking, error) {
	props, err := m.store.ListPropertiesByOwner(ctx, owner)
	if err != nil {
		return nil, internal("list bookings by owner", err)
	}
	if len(props) == 0 {
		return nil, &NotFoundError{Entity: "properties of owner", ID: string(owner)}
	}
	var out []Booking
	for _, p := range props {
		bs, err := m.store.ListBookingsByProperty(ctx, p.ID)
		if err != nil {
			return nil, internal("list bookings by owner", err)
		}
		out = append(out, bs...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
