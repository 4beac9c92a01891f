/*
store.go - Persistence interfaces

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite or in-memory storage; both must honour
  the same contracts.

KEY INTERFACES:
  PropertyStore:  Homes and their cached aggregate fields
  BookingStore:   Bookings and the nights they hold
  LedgerStore:    Append-only ledger entries
  ReviewStore:    Reviews, unique per (booking, actor)
  WishlistStore:  Per-actor ordered wishlist
  TxStore:        All of the above plus an atomic unit of work

APPEND-ONLY CONTRACT:
  LedgerStore has no Update or Delete method. Corrections are new entries.

NIGHT UNIQUENESS:
  InsertBooking MUST reject a booking holding a night that a non-cancelled
  booking of the same property already holds, returning ErrNightTaken.
  This is the storage-level half of the double-booking guard; the engine's
  availability check inside WithTx is the other half.

NOT FOUND:
  Get* methods return (nil, nil) when the entity does not exist.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite with partial unique index on nights
  - engine/store/memory.go: In-memory for tests and demos
*/
package engine

import (
	"context"
	"time"
)

type PropertyStore interface {
	GetProperty(ctx context.Context, id PropertyID) (*Property, error)
	// SaveProperty inserts or replaces a property, including its derived fields.
	SaveProperty(ctx context.Context, p Property) error
	ListProperties(ctx context.Context) ([]Property, error)
	ListPropertiesByOwner(ctx context.Context, owner ActorID) ([]Property, error)
	// UpdatePropertyRating replaces the cached rating fields wholesale.
	UpdatePropertyRating(ctx context.Context, id PropertyID, average float64, count int, at time.Time) error
}

type BookingStore interface {
	GetBooking(ctx context.Context, id BookingID) (*Booking, error)
	// InsertBooking returns ErrNightTaken when a night is already held.
	InsertBooking(ctx context.Context, b Booking) error
	// UpdateBookingStatus changes status and refund reason. Moving to
	// cancelled releases the booking's nights.
	UpdateBookingStatus(ctx context.Context, id BookingID, status BookingStatus, refundReason string, at time.Time) error
	ListBookings(ctx context.Context) ([]Booking, error)
	ListBookingsByProperty(ctx context.Context, propertyID PropertyID) ([]Booking, error)
	// HeldNights returns the subset of nights already held for the property.
	// Passing nil returns every held night.
	HeldNights(ctx context.Context, propertyID PropertyID, nights []Night) ([]Night, error)
}

// EntryFilter narrows ledger scans. Zero fields match everything.
type EntryFilter struct {
	BookingID BookingID
	OwnerID   ActorID
	Type      EntryType
}

type LedgerStore interface {
	// AppendEntries persists entries atomically. Returns
	// ErrDuplicateIdempotencyKey if any key already exists.
	AppendEntries(ctx context.Context, entries []LedgerEntry) error
	Entries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error)
}

type ReviewStore interface {
	GetReview(ctx context.Context, id ReviewID) (*Review, error)
	FindReview(ctx context.Context, bookingID BookingID, actorID ActorID) (*Review, error)
	// InsertReview returns ErrDuplicateReview for a second (booking, actor) review.
	InsertReview(ctx context.Context, r Review) error
	DeleteReview(ctx context.Context, id ReviewID) error
	ReviewsByBooking(ctx context.Context, bookingID BookingID) ([]Review, error)
	// ReviewsByProperty joins reviews to bookings of the property.
	ReviewsByProperty(ctx context.Context, propertyID PropertyID) ([]Review, error)
}

type WishlistStore interface {
	// Wishlist returns the actor's items ordered by priority.
	Wishlist(ctx context.Context, actorID ActorID) ([]WishlistItem, error)
	// InsertWishlistItem returns ErrDuplicateWishlist for a repeated property.
	InsertWishlistItem(ctx context.Context, item WishlistItem) error
	DeleteWishlistItem(ctx context.Context, actorID ActorID, propertyID PropertyID) (bool, error)
	SetWishlistPriority(ctx context.Context, actorID ActorID, propertyID PropertyID, priority int) error
}

// Store is the full persistence surface.
type Store interface {
	PropertyStore
	BookingStore
	LedgerStore
	ReviewStore
	WishlistStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	// Concurrent WithTx calls are serialized; readers never observe a
	// partially applied fn.
	WithTx(ctx context.Context, fn func(Store) error) error
}
