/*
engine.go - Wiring of the booking-ledger components

PURPOSE:
  Builds every component over one TxStore so they share the same transaction
  boundary, clock, logger and post-commit hooks.

COMPONENTS:
  Properties:   Catalog of homes (PropertyService)
  Availability: Which nights of a home are held (AvailabilityIndex)
  Bookings:     Create / Complete / Cancel (BookingManager)
  Ledger:       Postings and balance queries (Ledger)
  Aggregates:   Rating and ledger totals recomputation (Recalculator)
  Reviews:      One review per (booking, actor) (ReviewManager)
  Wishlist:     Ordered saved homes (WishlistManager)

POST-COMMIT HOOKS:
  Events and cache invalidation run only after WithTx returns nil. A failing
  publisher or cache is logged; it never undoes a committed operation.

USAGE:
  eng := engine.New(store, engine.DefaultPolicy(),
      engine.WithLogger(log),
      engine.WithPublisher(events.NewAMQP(...)),
  )
  booking, err := eng.Bookings.Create(ctx, actor, req)
*/
package engine

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingCompleted EventType = "booking.completed"
	EventBookingCancelled EventType = "booking.cancelled"
	EventReviewAdded      EventType = "review.added"
	EventReviewDeleted    EventType = "review.deleted"
)

// Event describes a committed state change.
type Event struct {
	Type       EventType
	BookingID  BookingID
	PropertyID PropertyID
	ReviewID   ReviewID
	ActorID    ActorID
	Amount     Amount
	At         time.Time
}

// Publisher delivers events to interested parties outside the engine.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PropertyInvalidator drops cached copies of a property after its derived
// fields change.
type PropertyInvalidator interface {
	Invalidate(ctx context.Context, id PropertyID)
}

// BlobStore persists uploaded images and returns their public URL.
type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader) (string, error)
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store  TxStore
	Policy Policy

	Properties   *PropertyService
	Availability *AvailabilityIndex
	Bookings     *BookingManager
	Ledger       *Ledger
	Aggregates   *Recalculator
	Reviews      *ReviewManager
	Wishlist     *WishlistManager
}

type Option func(*deps)

func WithLogger(log logrus.FieldLogger) Option { return func(d *deps) { d.log = log } }
func WithPublisher(p Publisher) Option        { return func(d *deps) { d.publisher = p } }
func WithClock(now func() time.Time) Option   { return func(d *deps) { d.now = now } }
func WithBlobStore(b BlobStore) Option        { return func(d *deps) { d.blobs = b } }

func WithPropertyCache(c PropertyInvalidator) Option {
	return func(d *deps) { d.cache = c }
}

// New builds an engine. The policy is assumed valid; see Policy.Validate.
func New(store TxStore, policy Policy, opts ...Option) *Engine {
	d := &deps{
		store:  store,
		policy: policy,
		log:    logrus.StandardLogger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}

	agg := &Recalculator{deps: d}
	avail := &AvailabilityIndex{deps: d}
	ledger := &Ledger{deps: d}
	return &Engine{
		Store:        store,
		Policy:       policy,
		Properties:   &PropertyService{deps: d},
		Availability: avail,
		Bookings:     &BookingManager{deps: d, availability: avail, ledger: ledger},
		Ledger:       ledger,
		Aggregates:   agg,
		Reviews:      &ReviewManager{deps: d, aggregates: agg},
		Wishlist:     &WishlistManager{deps: d},
	}
}

// deps is shared by every component of one Engine.
type deps struct {
	store     TxStore
	policy    Policy
	log       logrus.FieldLogger
	now       func() time.Time
	publisher Publisher
	cache     PropertyInvalidator
	blobs     BlobStore
}

func (d *deps) publish(ctx context.Context, events ...Event) {
	if d.publisher == nil {
		return
	}
	for _, e := range events {
		if err := d.publisher.Publish(ctx, e); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"event":      e.Type,
				"booking_id": e.BookingID,
			}).Warn("event publish failed")
		}
	}
}

func (d *deps) invalidate(ctx context.Context, ids ...PropertyID) {
	if d.cache == nil {
		return
	}
	for _, id := range ids {
		d.cache.Invalidate(ctx, id)
	}
}

// requireActor rejects operations attempted without an identity.
func requireActor(actor Actor, op string) error {
	if actor.IsZero() {
		return &UnauthorizedError{Op: op}
	}
	return nil
}
