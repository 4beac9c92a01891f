// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/stay-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements engine.TxStore. Every public method takes the lock;
// WithTx holds it for the whole unit of work and restores a snapshot if fn
// fails.
type Memory struct {
	mu sync.RWMutex
	d  *memData
}

var _ engine.TxStore = (*Memory)(nil)

type nightKey struct {
	PropertyID engine.PropertyID
	Night      string
}

type wishKey struct {
	ActorID    engine.ActorID
	PropertyID engine.PropertyID
}

type memData struct {
	properties map[engine.PropertyID]engine.Property
	bookings   []engine.Booking
	nights     map[nightKey]engine.BookingID // held nights only
	entries    []engine.LedgerEntry
	keys       map[string]bool
	reviews    []engine.Review
	wishlist   map[wishKey]engine.WishlistItem
}

func newMemData() *memData {
	return &memData{
		properties: make(map[engine.PropertyID]engine.Property),
		nights:     make(map[nightKey]engine.BookingID),
		keys:       make(map[string]bool),
		wishlist:   make(map[wishKey]engine.WishlistItem),
	}
}

func NewMemory() *Memory {
	return &Memory{d: newMemData()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.d.clone()
	if err := fn(view{m.d}); err != nil {
		m.d = snapshot
		return err
	}
	return nil
}

// Reset drops all data. Used by the scenario loader.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d = newMemData()
	return nil
}

func (d *memData) clone() *memData {
	c := &memData{
		properties: make(map[engine.PropertyID]engine.Property, len(d.properties)),
		bookings:   append([]engine.Booking(nil), d.bookings...),
		nights:     make(map[nightKey]engine.BookingID, len(d.nights)),
		entries:    append([]engine.LedgerEntry(nil), d.entries...),
		keys:       make(map[string]bool, len(d.keys)),
		reviews:    append([]engine.Review(nil), d.reviews...),
		wishlist:   make(map[wishKey]engine.WishlistItem, len(d.wishlist)),
	}
	for k, v := range d.properties {
		c.properties[k] = v
	}
	for k, v := range d.nights {
		c.nights[k] = v
	}
	for k, v := range d.keys {
		c.keys[k] = v
	}
	for k, v := range d.wishlist {
		c.wishlist[k] = v
	}
	return c
}

// =============================================================================
// LOCKED ACCESSORS - Delegate to the unlocked view
// =============================================================================

func (m *Memory) read() view {
	return view{m.d}
}

func (m *Memory) GetProperty(ctx context.Context, id engine.PropertyID) (*engine.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetProperty(ctx, id)
}

func (m *Memory) SaveProperty(ctx context.Context, p engine.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().SaveProperty(ctx, p)
}

func (m *Memory) ListProperties(ctx context.Context) ([]engine.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListProperties(ctx)
}

func (m *Memory) ListPropertiesByOwner(ctx context.Context, owner engine.ActorID) ([]engine.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListPropertiesByOwner(ctx, owner)
}

func (m *Memory) UpdatePropertyRating(ctx context.Context, id engine.PropertyID, average float64, count int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().UpdatePropertyRating(ctx, id, average, count, at)
}

func (m *Memory) GetBooking(ctx context.Context, id engine.BookingID) (*engine.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetBooking(ctx, id)
}

func (m *Memory) InsertBooking(ctx context.Context, b engine.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().InsertBooking(ctx, b)
}

func (m *Memory) UpdateBookingStatus(ctx context.Context, id engine.BookingID, status engine.BookingStatus, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().UpdateBookingStatus(ctx, id, status, reason, at)
}

func (m *Memory) ListBookings(ctx context.Context) ([]engine.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListBookings(ctx)
}

func (m *Memory) ListBookingsByProperty(ctx context.Context, propertyID engine.PropertyID) ([]engine.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListBookingsByProperty(ctx, propertyID)
}

func (m *Memory) HeldNights(ctx context.Context, propertyID engine.PropertyID, nights []engine.Night) ([]engine.Night, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().HeldNights(ctx, propertyID, nights)
}

func (m *Memory) AppendEntries(ctx context.Context, entries []engine.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().AppendEntries(ctx, entries)
}

func (m *Memory) Entries(ctx context.Context, filter engine.EntryFilter) ([]engine.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().Entries(ctx, filter)
}

func (m *Memory) GetReview(ctx context.Context, id engine.ReviewID) (*engine.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetReview(ctx, id)
}

func (m *Memory) FindReview(ctx context.Context, bookingID engine.BookingID, actorID engine.ActorID) (*engine.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().FindReview(ctx, bookingID, actorID)
}

func (m *Memory) InsertReview(ctx context.Context, r engine.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().InsertReview(ctx, r)
}

func (m *Memory) DeleteReview(ctx context.Context, id engine.ReviewID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().DeleteReview(ctx, id)
}

func (m *Memory) ReviewsByBooking(ctx context.Context, bookingID engine.BookingID) ([]engine.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ReviewsByBooking(ctx, bookingID)
}

func (m *Memory) ReviewsByProperty(ctx context.Context, propertyID engine.PropertyID) ([]engine.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ReviewsByProperty(ctx, propertyID)
}

func (m *Memory) Wishlist(ctx context.Context, actorID engine.ActorID) ([]engine.WishlistItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().Wishlist(ctx, actorID)
}

func (m *Memory) InsertWishlistItem(ctx context.Context, item engine.WishlistItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().InsertWishlistItem(ctx, item)
}

func (m *Memory) DeleteWishlistItem(ctx context.Context, actorID engine.ActorID, propertyID engine.PropertyID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().DeleteWishlistItem(ctx, actorID, propertyID)
}

func (m *Memory) SetWishlistPriority(ctx context.Context, actorID engine.ActorID, propertyID engine.PropertyID, priority int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().SetWishlistPriority(ctx, actorID, propertyID, priority)
}

// =============================================================================
// VIEW - Unlocked operations; the caller holds the lock
// =============================================================================

type view struct {
	d *memData
}

func (v view) GetProperty(_ context.Context, id engine.PropertyID) (*engine.Property, error) {
	p, ok := v.d.properties[id]
	if !ok {
		return nil, nil
	}
	p.Features = append([]string(nil), p.Features...)
	p.Images = append([]string(nil), p.Images...)
	return &p, nil
}

func (v view) SaveProperty(_ context.Context, p engine.Property) error {
	p.Features = append([]string(nil), p.Features...)
	p.Images = append([]string(nil), p.Images...)
	v.d.properties[p.ID] = p
	return nil
}

func (v view) ListProperties(_ context.Context) ([]engine.Property, error) {
	out := make([]engine.Property, 0, len(v.d.properties))
	for _, p := range v.d.properties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v view) ListPropertiesByOwner(ctx context.Context, owner engine.ActorID) ([]engine.Property, error) {
	all, _ := v.ListProperties(ctx)
	var out []engine.Property
	for _, p := range all {
		if p.OwnerID == owner {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v view) UpdatePropertyRating(_ context.Context, id engine.PropertyID, average float64, count int, at time.Time) error {
	p, ok := v.d.properties[id]
	if !ok {
		return nil
	}
	p.AverageRating = average
	p.ReviewsCount = count
	p.UpdatedAt = at
	v.d.properties[id] = p
	return nil
}

func (v view) GetBooking(_ context.Context, id engine.BookingID) (*engine.Booking, error) {
	for _, b := range v.d.bookings {
		if b.ID == id {
			b.Nights = append([]engine.Night(nil), b.Nights...)
			return &b, nil
		}
	}
	return nil, nil
}

func (v view) InsertBooking(_ context.Context, b engine.Booking) error {
	for _, n := range b.Nights {
		if _, taken := v.d.nights[nightKey{b.PropertyID, n.String()}]; taken {
			return engine.ErrNightTaken
		}
	}
	for _, n := range b.Nights {
		v.d.nights[nightKey{b.PropertyID, n.String()}] = b.ID
	}
	b.Nights = append([]engine.Night(nil), b.Nights...)
	v.d.bookings = append(v.d.bookings, b)
	return nil
}

func (v view) UpdateBookingStatus(_ context.Context, id engine.BookingID, status engine.BookingStatus, reason string, at time.Time) error {
	for i := range v.d.bookings {
		b := &v.d.bookings[i]
		if b.ID != id {
			continue
		}
		b.Status = status
		b.RefundReason = reason
		b.UpdatedAt = at
		if !status.HoldsNights() {
			for _, n := range b.Nights {
				k := nightKey{b.PropertyID, n.String()}
				if v.d.nights[k] == id {
					delete(v.d.nights, k)
				}
			}
		}
		return nil
	}
	return nil
}

func (v view) ListBookings(_ context.Context) ([]engine.Booking, error) {
	out := make([]engine.Booking, len(v.d.bookings))
	copy(out, v.d.bookings)
	return out, nil
}

func (v view) ListBookingsByProperty(_ context.Context, propertyID engine.PropertyID) ([]engine.Booking, error) {
	var out []engine.Booking
	for _, b := range v.d.bookings {
		if b.PropertyID == propertyID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (v view) HeldNights(_ context.Context, propertyID engine.PropertyID, nights []engine.Night) ([]engine.Night, error) {
	var held []engine.Night
	if nights == nil {
		for k := range v.d.nights {
			if k.PropertyID == propertyID {
				n, err := engine.ParseNight(k.Night)
				if err != nil {
					return nil, err
				}
				held = append(held, n)
			}
		}
		return held, nil
	}
	for _, n := range nights {
		if _, ok := v.d.nights[nightKey{propertyID, n.String()}]; ok {
			held = append(held, n)
		}
	}
	return held, nil
}

func (v view) AppendEntries(_ context.Context, entries []engine.LedgerEntry) error {
	// Check all idempotency keys first (atomic check)
	batch := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		if v.d.keys[e.IdempotencyKey] || batch[e.IdempotencyKey] {
			return engine.ErrDuplicateIdempotencyKey
		}
		batch[e.IdempotencyKey] = true
	}
	for _, e := range entries {
		v.d.entries = append(v.d.entries, e)
		if e.IdempotencyKey != "" {
			v.d.keys[e.IdempotencyKey] = true
		}
	}
	return nil
}

func (v view) Entries(_ context.Context, f engine.EntryFilter) ([]engine.LedgerEntry, error) {
	var out []engine.LedgerEntry
	for _, e := range v.d.entries {
		if f.BookingID != "" && e.BookingID != f.BookingID {
			continue
		}
		if f.OwnerID != "" && e.OwnerID != f.OwnerID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (v view) GetReview(_ context.Context, id engine.ReviewID) (*engine.Review, error) {
	for _, r := range v.d.reviews {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (v view) FindReview(_ context.Context, bookingID engine.BookingID, actorID engine.ActorID) (*engine.Review, error) {
	for _, r := range v.d.reviews {
		if r.BookingID == bookingID && r.ActorID == actorID {
			return &r, nil
		}
	}
	return nil, nil
}

func (v view) InsertReview(ctx context.Context, r engine.Review) error {
	if existing, _ := v.FindReview(ctx, r.BookingID, r.ActorID); existing != nil {
		return engine.ErrDuplicateReview
	}
	v.d.reviews = append(v.d.reviews, r)
	return nil
}

func (v view) DeleteReview(_ context.Context, id engine.ReviewID) error {
	kept := v.d.reviews[:0]
	for _, r := range v.d.reviews {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	v.d.reviews = kept
	return nil
}

// ReviewsByBooking returns the booking's reviews, newest first.
func (v view) ReviewsByBooking(_ context.Context, bookingID engine.BookingID) ([]engine.Review, error) {
	var out []engine.Review
	for _, r := range v.d.reviews {
		if r.BookingID == bookingID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v view) ReviewsByProperty(_ context.Context, propertyID engine.PropertyID) ([]engine.Review, error) {
	ofProperty := make(map[engine.BookingID]bool)
	for _, b := range v.d.bookings {
		if b.PropertyID == propertyID {
			ofProperty[b.ID] = true
		}
	}
	var out []engine.Review
	for _, r := range v.d.reviews {
		if ofProperty[r.BookingID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (v view) Wishlist(_ context.Context, actorID engine.ActorID) ([]engine.WishlistItem, error) {
	var out []engine.WishlistItem
	for k, it := range v.d.wishlist {
		if k.ActorID == actorID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (v view) InsertWishlistItem(_ context.Context, item engine.WishlistItem) error {
	k := wishKey{item.ActorID, item.PropertyID}
	if _, ok := v.d.wishlist[k]; ok {
		return engine.ErrDuplicateWishlist
	}
	v.d.wishlist[k] = item
	return nil
}

func (v view) DeleteWishlistItem(_ context.Context, actorID engine.ActorID, propertyID engine.PropertyID) (bool, error) {
	k := wishKey{actorID, propertyID}
	if _, ok := v.d.wishlist[k]; !ok {
		return false, nil
	}
	delete(v.d.wishlist, k)
	return true, nil
}

func (v view) SetWishlistPriority(_ context.Context, actorID engine.ActorID, propertyID engine.PropertyID, priority int) error {
	k := wishKey{actorID, propertyID}
	it, ok := v.d.wishlist[k]
	if !ok {
		return nil
	}
	it.Priority = priority
	v.d.wishlist[k] = it
	return nil
}
