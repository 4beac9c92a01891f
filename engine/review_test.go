package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/engine"
)

func TestReview_RatingRecomputedAndResetToZero(t *testing.T) {
	// GIVEN: A home with two bookings
	// WHEN: Reviews 4 and 5 are added, then both deleted
	// THEN: Rating is 4.5 over 2 reviews, then 0 over 0

	f := newFixture(t, engine.DefaultPolicy())
	ctx := context.Background()
	home := f.home(t, 100)

	b1, err := f.eng.Bookings.Create(ctx, guest, stay(home.ID, jan(1), jan(2)))
	require.NoError(t, err)
	b2, err := f.eng.Bookings.Create(ctx, other, stay(home.ID, jan(3), jan(4)))
	require.NoError(t, err)

	r1, err := f.eng.Reviews.Add(ctx, guest, b1.ID, 4, "Lovely view")
	require.NoError(t, err)
	r2, err := f.eng.Reviews.Add(ctx, other, b2.ID, 5, "Perfect")
	require.NoError(t, err)

	p, err := f.eng.Properties.Get(ctx, home.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, p.AverageRating, 1e-9)
	assert.Equal(t, 2, p.ReviewsCount)

	require.NoError(t, f.eng.Reviews.Delete(ctx, guest, r1.ID))
	p, err = f.eng.Properties.Get(ctx, home.ID)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, p.AverageRating, 1e-9)
	assert.Equal(t, 1, p.ReviewsCount)

	require.NoError(t, f.eng.Reviews.Delete(ctx, admin, r2.ID))
	p, err = f.eng.Properties.Get(ctx, home.ID)
	require.NoError(t, err)
	assert.Zero(t, p.AverageRating)
	assert.Zero(t, p.ReviewsCount)

	assert.Contains(t, f.events.types(), engine.EventReviewDeleted)
}

func TestReview_OnePerBookingPerActor(t *testing.T) {
	f := newFixture(t, engine.DefaultPolicy())
	ctx := context.Background()
	home := f.home(t, 100)
	b, err := f.eng.Bookings.Create(ctx, guest, stay(home.ID, jan(1), jan(2)))
	require.NoError(t, err)

	_, err = f.eng.Reviews.Add(ctx, guest, b.ID, 3, "ok")
	require.NoError(t, err)

	_, err = f.eng.Reviews.Add(ctx, guest, b.ID, 5, "changed my mind")
	assert.ErrorIs(t, err, engine.ErrConflict)

	// A different actor may still review the same booking.
	_, err = f.eng.Reviews.Add(ctx, other, b.ID, 1, "noisy")
	require.NoError(t, err)

	p, err := f.eng.Properties.Get(ctx, home.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, p.AverageRating, 1e-9)
	assert.Equal(t, 2, p.ReviewsCount)

	reviews, err := f.eng.Reviews.ListByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, reviews, 2)

	byHome, err := f.eng.Reviews.ListByProperty(ctx, home.ID)
	require.NoError(t, err)
	assert.Len(t, byHome, 2)
}

func TestReview_Rejections(t *testing.T) {
	f := newFixture(t, engine.DefaultPolicy())
	ctx := context.Background()
	home := f.home(t, 100)
	b, err := f.eng.Bookings.Create(ctx, guest, stay(home.ID, jan(1), jan(2)))
	require.NoError(t, err)

	for _, rating := range []int{0, 6, -1} {
		_, err := f.eng.Reviews.Add(ctx, guest, b.ID, rating, "")
		assert.ErrorIs(t, err, engine.ErrValidation, "rating %d", rating)
	}

	_, err = f.eng.Reviews.Add(ctx, guest, "bkg-missing", 4, "")
	assert.True(t, engine.IsNotFound(err))

	err = f.eng.Reviews.Delete(ctx, guest, "rev-missing")
	assert.True(t, engine.IsNotFound(err))

	r, err := f.eng.Reviews.Add(ctx, guest, b.ID, 4, "")
	require.NoError(t, err)
	err = f.eng.Reviews.Delete(ctx, other, r.ID)
	assert.ErrorIs(t, err, engine.ErrUnauthorized)

	p, err := f.eng.Properties.Get(ctx, home.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.ReviewsCount, "failed operations leave the rating untouched")
}

func TestRatingOf(t *testing.T) {
	assert.Equal(t, engine.Rating{}, engine.RatingOf(nil))
	got := engine.RatingOf([]engine.Review{{Rating: 1}, {Rating: 2}, {Rating: 4}})
	assert.Equal(t, 3, got.Count)
	assert.InDelta(t, 7.0/3.0, got.Average, 1e-9)
}
