/*
Package engine provides the booking-ledger consistency core.

PURPOSE:
  This package owns the rules that keep a short-term rental platform honest:
  a night can only be sold once, guest money moves through escrow before it
  reaches the owner and the platform, and cached summaries (home rating,
  escrow balance) always agree with the records they are derived from.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A decimal quantity of money in a currency
  - Property: A rentable home with a nightly price and cached rating fields
  - Booking: A guest's hold on a set of nights for one property
  - LedgerEntry: An immutable record of money moving between two accounts
  - Review / WishlistItem: Guest-authored records feeding aggregates
  - Actor: Who is performing an operation (always passed explicitly)

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never modified, only followed by new entries
  2. Precision: Uses decimal.Decimal to avoid floating-point money errors
  3. Type Safety: Strong typing for IDs prevents mixing property/booking IDs
  4. Auditability: Every entry carries an idempotency key and its author

USAGE:
  price := engine.NewAmountFromInt(100, engine.CurrencyLKR)
  entry := engine.LedgerEntry{
      BookingID: booking.ID,
      Type:      engine.EntryEscrow,
      Credit:    booking.TotalPrice.Value,
      Accounts:  engine.Accounts{From: engine.AccountCustomer, To: engine.AccountEscrow},
  }

SEE ALSO:
  - errors.go: Error taxonomy shared by every component
  - ledger.go: Posting and full-scan balance queries
  - booking.go: Booking lifecycle and its ledger postings
*/
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Money with a currency
// =============================================================================

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const (
	CurrencyLKR Currency = "LKR"
	CurrencyUSD Currency = "USD"
)

func NewAmountFromInt(value int64, currency Currency) Amount {
	return Amount{Value: decimal.NewFromInt(value), Currency: currency}
}

func decimalInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Currency: a.Currency} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Currency: a.Currency} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) && a.Currency == b.Currency }
func (a Amount) String() string               { return a.Value.StringFixed(2) + " " + string(a.Currency) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PropertyID string
type BookingID string
type EntryID string
type ReviewID string
type ActorID string

// NewID returns a random identifier with the given prefix, e.g. "bkg-3f2a...".
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// =============================================================================
// ACTOR - The identity performing an operation
// =============================================================================

type Role string

const (
	RoleGuest Role = "guest"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// Actor is supplied by the identity provider. The engine never invents one.
type Actor struct {
	ID   ActorID
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
func (a Actor) IsZero() bool  { return a.ID == "" }

// SystemActor is used by seeders and background jobs.
var SystemActor = Actor{ID: "system", Role: RoleAdmin}

// =============================================================================
// PROPERTY - A rentable home
// =============================================================================

type PropertyStatus string

const (
	PropertyActive      PropertyStatus = "active"
	PropertyHidden      PropertyStatus = "hidden"
	PropertyUnavailable PropertyStatus = "unavailable"
)

type Location struct {
	Province  string
	District  string
	City      string
	Address   string
	Latitude  float64
	Longitude float64
}

type Property struct {
	ID          PropertyID
	Title       string
	Description string
	Location    Location
	Price       Amount // per night
	OwnerID     ActorID
	Status      PropertyStatus
	// StatusReason explains the last hide/unavailable action.
	StatusReason string

	Bedrooms  int
	Bathrooms int
	Features  []string
	Images    []string

	// Derived. Only the Recalculator writes these.
	AverageRating float64
	ReviewsCount  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// BOOKING - A hold on nights of a property
// =============================================================================

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingActive    BookingStatus = "active" // declared, never entered
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRefunded  BookingStatus = "refunded" // declared, never entered
)

// HoldsNights reports whether a booking in this status keeps its nights unavailable.
func (s BookingStatus) HoldsNights() bool { return s != BookingCancelled }

// IsTerminal reports whether no further lifecycle transition is allowed.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled || s == BookingRefunded
}

type Guest struct {
	Name   string
	Phone  string
	IDCard string
}

type Booking struct {
	ID         BookingID
	PropertyID PropertyID
	ActorID    ActorID
	Guest      Guest

	Nights   []Night // booked nights, check-out day excluded
	CheckIn  Night
	CheckOut Night

	TotalPrice Amount // fixed at creation
	Status     BookingStatus

	RefundReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// LEDGER ENTRY - Immutable money movement
// =============================================================================

type EntryType string

const (
	EntryPaymentCapture EntryType = "payment_capture"
	EntryEscrow         EntryType = "escrow_account"
	EntryPayoutOwner    EntryType = "payout_owner"
	EntryCommission     EntryType = "commission_income"
	EntryRefund         EntryType = "refund"
	EntryAdjustment     EntryType = "adjustment"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryPaymentCapture, EntryEscrow, EntryPayoutOwner, EntryCommission, EntryRefund, EntryAdjustment:
		return true
	}
	return false
}

type Account string

const (
	AccountCustomer Account = "customer_wallet"
	AccountEscrow   Account = "escrow_account"
	AccountOwner    Account = "owner_wallet"
	AccountPlatform Account = "platform_wallet"
)

func (a Account) Valid() bool {
	switch a {
	case AccountCustomer, AccountEscrow, AccountOwner, AccountPlatform:
		return true
	}
	return false
}

type Accounts struct {
	From Account
	To   Account
}

type LedgerEntry struct {
	ID        EntryID
	BookingID BookingID
	OwnerID   ActorID // set on owner payouts
	Type      EntryType

	// Unidirectional: an entry is a debit posting or a credit posting.
	Debit  decimal.Decimal
	Credit decimal.Decimal

	Accounts Accounts
	Currency Currency
	Note     string

	IdempotencyKey string
	CreatedBy      ActorID
	CreatedAt      time.Time
}

// =============================================================================
// REVIEW / WISHLIST
// =============================================================================

type Review struct {
	ID        ReviewID
	BookingID BookingID
	ActorID   ActorID
	Rating    int
	Comment   string
	CreatedAt time.Time
}

type WishlistItem struct {
	ActorID    ActorID
	PropertyID PropertyID
	Priority   int
	CreatedAt  time.Time
}
