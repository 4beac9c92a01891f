// Package storetest holds behaviour every engine.TxStore must share. Each
// backend's tests call Run with a constructor for a fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/engine"
	"github.com/warp/stay-engine/logging"
)

// Opener returns an empty store. Cleanup is registered on t.
type Opener func(t *testing.T) engine.TxStore

var epoch = time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)

func Run(t *testing.T, open Opener) {
	t.Run("PropertyRoundTrip", func(t *testing.T) { testPropertyRoundTrip(t, open(t)) })
	t.Run("NightUniqueness", func(t *testing.T) { testNightUniqueness(t, open(t)) })
	t.Run("CancelReleasesNights", func(t *testing.T) { testCancelReleasesNights(t, open(t)) })
	t.Run("IdempotencyKeys", func(t *testing.T) { testIdempotencyKeys(t, open(t)) })
	t.Run("EntryFilter", func(t *testing.T) { testEntryFilter(t, open(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, open(t)) })
	t.Run("Reviews", func(t *testing.T) { testReviews(t, open(t)) })
	t.Run("Wishlist", func(t *testing.T) { testWishlist(t, open(t)) })
	t.Run("ConcurrentBookingThroughEngine", func(t *testing.T) { testConcurrentBooking(t, open(t)) })
}

// =============================================================================
// FIXTURES
// =============================================================================

func night(day int) engine.Night {
	return engine.NewNight(2026, time.March, day)
}

func property(id engine.PropertyID) engine.Property {
	return engine.Property{
		ID:        id,
		Title:     "Lagoon Villa",
		Location:  engine.Location{Province: "Southern", District: "Galle", City: "Galle", Address: "1 Fort Rd"},
		Price:     engine.Amount{Value: decimal.NewFromInt(100), Currency: engine.CurrencyLKR},
		OwnerID:   "owner-1",
		Status:    engine.PropertyActive,
		Features:  []string{"pool"},
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
}

func booking(id engine.BookingID, pid engine.PropertyID, nights ...engine.Night) engine.Booking {
	return engine.Booking{
		ID:         id,
		PropertyID: pid,
		ActorID:    "guest-1",
		Guest:      engine.Guest{Name: "Nimal", Phone: "0771234567", IDCard: "901234567V"},
		Nights:     nights,
		CheckIn:    nights[0],
		CheckOut:   nights[len(nights)-1].AddDays(1),
		TotalPrice: engine.Amount{Value: decimal.NewFromInt(int64(100 * len(nights))), Currency: engine.CurrencyLKR},
		Status:     engine.BookingPending,
		CreatedAt:  epoch,
		UpdatedAt:  epoch,
	}
}

func entry(bid engine.BookingID, typ engine.EntryType, key string) engine.LedgerEntry {
	return engine.LedgerEntry{
		ID:             engine.EntryID(engine.NewID("ent")),
		BookingID:      bid,
		Type:           typ,
		Credit:         decimal.NewFromInt(100),
		Accounts:       engine.Accounts{From: engine.AccountCustomer, To: engine.AccountEscrow},
		Currency:       engine.CurrencyLKR,
		IdempotencyKey: key,
		CreatedBy:      "guest-1",
		CreatedAt:      epoch,
	}
}

func seed(t *testing.T, s engine.TxStore, pid engine.PropertyID) {
	t.Helper()
	require.NoError(t, s.SaveProperty(context.Background(), property(pid)))
}

// =============================================================================
// CASES
// =============================================================================

func testPropertyRoundTrip(t *testing.T, s engine.TxStore) {
	ctx := context.Background()

	missing, err := s.GetProperty(ctx, "home-none")
	require.NoError(t, err)
	assert.Nil(t, missing)

	p := property("home-1")
	require.NoError(t, s.SaveProperty(ctx, p))

	p.Title = "Lagoon Villa II"
	p.Status = engine.PropertyHidden
	p.StatusReason = "duplicate listing"
	require.NoError(t, s.SaveProperty(ctx, p))

	got, err := s.GetProperty(ctx, "home-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Lagoon Villa II", got.Title)
	assert.Equal(t, engine.PropertyHidden, got.Status)
	assert.Equal(t, "duplicate listing", got.StatusReason)
	assert.True(t, got.Price.Value.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, []string{"pool"}, got.Features)

	require.NoError(t, s.UpdatePropertyRating(ctx, "home-1", 4.5, 2, epoch.Add(time.Hour)))
	got, err = s.GetProperty(ctx, "home-1")
	require.NoError(t, err)
	assert.InDelta(t, 4.5, got.AverageRating, 1e-9)
	assert.Equal(t, 2, got.ReviewsCount)

	byOwner, err := s.ListPropertiesByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, byOwner, 1)
}

func testNightUniqueness(t *testing.T, s engine.TxStore) {
	ctx := context.Background()
	seed(t, s, "home-1")
	seed(t, s, "home-2")

	require.NoError(t, s.InsertBooking(ctx, booking("bkg-1", "home-1", night(1), night(2))))

	err := s.InsertBooking(ctx, booking("bkg-2", "home-1", night(2), night(3)))
	assert.ErrorIs(t, err, engine.ErrNightTaken)

	// Same nights on another home are independent.
	require.NoError(t, s.InsertBooking(ctx, booking("bkg-3", "home-2", night(2), night(3))))

	held, err := s.HeldNights(ctx, "home-1", []engine.Night{night(2), night(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-02"}, engine.NightStrings(held))

	all, err := s.HeldNights(ctx, "home-1", nil)
	require.NoError(t, err)
	engine.SortNights(all)
	assert.Equal(t, []string{"2026-03-01", "2026-03-02"}, engine.NightStrings(all))

	b, err := s.GetBooking(ctx, "bkg-2")
	require.NoError(t, err)
	assert.Nil(t, b, "a rejected booking leaves no row")
}

func testCancelReleasesNights(t *testing.T, s engine.TxStore) {
	ctx := context.Background()
	seed(t, s, "home-1")
	require.NoError(t, s.InsertBooking(ctx, booking("bkg-1", "home-1", night(5), night(6))))

	require.NoError(t, s.UpdateBookingStatus(ctx, "bkg-1", engine.BookingCompleted, "", epoch))
	err := s.InsertBooking(ctx, booking("bkg-2", "home-1", night(5)))
	assert.ErrorIs(t, err, engine.ErrNightTaken, "completed bookings keep their nights")

	seed(t, s, "home-2")
	require.NoError(t, s.InsertBooking(ctx, booking("bkg-3", "home-2", night(5), night(6))))
	require.NoError(t, s.UpdateBookingStatus(ctx, "bkg-3", engine.BookingCancelled, "plans changed", epoch))

	require.NoError(t, s.InsertBooking(ctx, booking("bkg-4", "home-2", night(6))))

	cancelled, err := s.GetBooking(ctx, "bkg-3")
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, engine.BookingCancelled, cancelled.Status)
	assert.Equal(t, "plans changed", cancelled.RefundReason)
	assert.Len(t, cancelled.Nights, 2, "the booking keeps its nights for history")
}

func testIdempotencyKeys(t *testing.T, s engine.TxStore) {
	ctx := context.Background()
	seed(t, s, "home-1")
	require.NoError(t, s.InsertBooking(ctx, booking("bkg-1", "home-1", night(1))))

	require.NoError(t, s.AppendEntries(ctx, []engine.LedgerEntry{entry("bkg-1", engine.EntryEscrow, "bkg-1:escrow_account")}))

	err := s.AppendEntries(ctx, []engine.LedgerEntry{
		entry("bkg-1", engine.EntryAdjustment, ""),
		entry("bkg-1", engine.EntryEscrow, "bkg-1:escrow_account"),
	})
	assert.ErrorIs(t, err, engine.ErrDuplicateIdempotencyKey)

	all, err := s.Entries(ctx, engine.EntryFilter{BookingID: "bkg-1"})
	require.NoError(t, err)
	assert.Len(t, all, 1, "a rejected batch appends nothing")
}

func testEntryFilter(t *testing.T, s engine.TxStore) {
	ctx := context.Background()
	seed(t, s, "home-1")
	require.NoError(t, s.InsertBooking(ctx, booking("bkg-1", "home-1", night(1))))
	require.NoError(t, s.InsertBooking(ctx, booking("bkg-2", "home-1", night(2))))

	payout := entry("bkg-1", engine.EntryPayoutOwner, "bkg-1:payout_owner")
	payout.OwnerID = "owner-1"
	payout.Accounts = engine.Accounts{From: engine.AccountEscrow, To: engine.AccountOwner}
	payout.CreatedAt = epoch.Add(time.Minute)

	require.NoError(t, s.AppendEntries(ctx, []engine.LedgerEntry{
		entry("bkg-1", engine.EntryEscrow, "bkg-1:escrow_account"),
		entry("bkg-2", engine.EntryEscrow, "bkg-2:escrow_account"),
	}))
	require.NoError(t, s.AppendEntries(ctx, []engine.LedgerEntry{payout}))

	byBooking, err := s.Entries(ctx, engine.EntryFilter{BookingID: "bkg-1"})
	require.NoError(t, err)
	require.Len(t, byBooking, 2)
	assert.Equal(t, engine.EntryEscrow, byBooking[0].Type, "entries come back in append order")
	assert.Equal(t, engine.EntryPayoutOwner, byBooking[1].Type)

	byOwner, err := s.Entries(ctx, engine.EntryFilter{OwnerID: "owner-1"})
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.True(t, byOwner[0].Credit.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, engine.AccountOwner, byOwner[0].Accounts.To)

	byType, err := s.Entries(ctx, engine.EntryFilter{Type: engine.EntryEscrow})
	require.NoError(t, err)
	assert.Len(t, byType, 2)
}

func testTxRollback(t *testing.T, s engine.TxStore) {
	ctx := context.Background()
	seed(t, s, "home-1")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx engine.Store) error {
		if err := tx.InsertBooking(ctx, booking("bkg-1", "home-1", night(1))); err != nil {
			return err
		}
		if err := tx.AppendEntries(ctx, []engine.LedgerEntry{entry("bkg-1", engine.EntryEscrow, "bkg-1:escrow_account")}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	b, err := s.GetBooking(ctx, "bkg-1")
	require.NoError(t, err)
	assert.Nil(t, b)

	held, err := s.HeldNights(ctx, "home-1", nil)
	require.NoError(t, err)
	assert.Empty(t, held)

	entries, err := s.Entries(ctx, engine.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The rolled-back key is free again.
	require.NoError(t, s.AppendEntries(ctx, []engine.LedgerEntry{entry("bkg-1", engine.EntryEscrow, "bkg-1:escrow_account")}))
}

func testReviews(t *testing.T, s engine.TxStore) {
	ctx := context.Background()
	seed(t, s, "home-1")
	require.NoError(t, s.InsertBooking(ctx, booking("bkg-1", "home-1", night(1))))

	first := engine.Review{ID: "rev-1", BookingID: "bkg-1", ActorID: "guest-1", Rating: 4, Comment: "nice", CreatedAt: epoch}
	second := engine.Review{ID: "rev-2", BookingID: "bkg-1", ActorID: "guest-2", Rating: 2, CreatedAt: epoch.Add(time.Hour)}
	require.NoError(t, s.InsertReview(ctx, first))
	require.NoError(t, s.InsertReview(ctx, second))

	dup := first
	dup.ID = "rev-3"
	assert.ErrorIs(t, s.InsertReview(ctx, dup), engine.ErrDuplicateReview)

	found, err := s.FindReview(ctx, "bkg-1", "guest-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, engine.ReviewID("rev-1"), found.ID)

	byBooking, err := s.ReviewsByBooking(ctx, "bkg-1")
	require.NoError(t, err)
	require.Len(t, byBooking, 2)
	assert.Equal(t, engine.ReviewID("rev-2"), byBooking[0].ID, "newest first")

	require.NoError(t, s.DeleteReview(ctx, "rev-1"))
	byProperty, err := s.ReviewsByProperty(ctx, "home-1")
	require.NoError(t, err)
	require.Len(t, byProperty, 1)
	assert.Equal(t, engine.ReviewID("rev-2"), byProperty[0].ID)

	gone, err := s.GetReview(ctx, "rev-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func testWishlist(t *testing.T, s engine.TxStore) {
	ctx := context.Background()
	for _, id := range []engine.PropertyID{"home-a", "home-b", "home-c"} {
		seed(t, s, id)
	}

	require.NoError(t, s.InsertWishlistItem(ctx, engine.WishlistItem{ActorID: "guest-1", PropertyID: "home-b", Priority: 2, CreatedAt: epoch}))
	require.NoError(t, s.InsertWishlistItem(ctx, engine.WishlistItem{ActorID: "guest-1", PropertyID: "home-a", Priority: 1, CreatedAt: epoch}))
	require.NoError(t, s.InsertWishlistItem(ctx, engine.WishlistItem{ActorID: "guest-2", PropertyID: "home-c", Priority: 1, CreatedAt: epoch}))

	err := s.InsertWishlistItem(ctx, engine.WishlistItem{ActorID: "guest-1", PropertyID: "home-a", Priority: 3, CreatedAt: epoch})
	assert.ErrorIs(t, err, engine.ErrDuplicateWishlist)

	items, err := s.Wishlist(ctx, "guest-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, engine.PropertyID("home-a"), items[0].PropertyID)
	assert.Equal(t, engine.PropertyID("home-b"), items[1].PropertyID)

	removed, err := s.DeleteWishlistItem(ctx, "guest-1", "home-a")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.DeleteWishlistItem(ctx, "guest-1", "home-a")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, s.SetWishlistPriority(ctx, "guest-1", "home-b", 1))
	items, err = s.Wishlist(ctx, "guest-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Priority)
}

// testConcurrentBooking races overlapping bookings through the engine so the
// store's transaction boundary is what keeps exactly one winner.
func testConcurrentBooking(t *testing.T, s engine.TxStore) {
	ctx := context.Background()
	eng := engine.New(s, engine.DefaultPolicy(), engine.WithLogger(logging.Discard()))
	owner := engine.Actor{ID: "owner-1", Role: engine.RoleOwner}

	home, err := eng.Properties.Create(ctx, owner, engine.NewProperty{
		Title:    "Race Track Cottage",
		Location: engine.Location{Province: "Western", District: "Colombo", City: "Colombo", Address: "9 Lane"},
		Price:    decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	const racers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := engine.Actor{ID: engine.ActorID(engine.NewID("guest")), Role: engine.RoleGuest}
			_, err := eng.Bookings.Create(ctx, actor, engine.CreateBooking{
				PropertyID: home.ID,
				Guest:      engine.Guest{Name: "Racer", Phone: "0770000000", IDCard: "000000000V"},
				Nights:     []engine.Night{night(10), night(11)},
				CheckIn:    night(10),
				CheckOut:   night(12),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, engine.ErrConflict):
				conflicts++
			default:
				t.Errorf("racer %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, conflicts)

	escrow, err := eng.Ledger.EscrowBalance(ctx)
	require.NoError(t, err)
	assert.True(t, escrow.Value.Equal(decimal.NewFromInt(200)), "escrow %s", escrow)
}
