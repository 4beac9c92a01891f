package engine

import (
	"context"
	"fmt"
)

// =============================================================================
// RECALCULATOR - Derived fields, always recomputed from scratch
// =============================================================================

// Recalculator owns the derived fields of the model. It never increments:
// every call rescans its source records, so a missed or repeated trigger
// cannot leave a stale value behind.
type Recalculator struct {
	*deps
}

// Rating is the derived rating summary of a property.
type Rating struct {
	Average float64
	Count   int
}

// RecalculateProperty recomputes the average rating and review count of a
// property from reviews joined to its bookings, and writes both through s.
// Callers run it inside the transaction that changed the review set.
func (r *Recalculator) RecalculateProperty(ctx context.Context, s Store, propertyID PropertyID) (Rating, error) {
	reviews, err := s.ReviewsByProperty(ctx, propertyID)
	if err != nil {
		return Rating{}, fmt.Errorf("reviews by property: %w", err)
	}
	rating := RatingOf(reviews)
	if err := s.UpdatePropertyRating(ctx, propertyID, rating.Average, rating.Count, r.now()); err != nil {
		return Rating{}, fmt.Errorf("update property rating: %w", err)
	}
	return rating, nil
}

// RatingOf averages review ratings. No reviews means a zero average and count.
func RatingOf(reviews []Review) Rating {
	if len(reviews) == 0 {
		return Rating{}
	}
	sum := 0
	for _, rv := range reviews {
		sum += rv.Rating
	}
	return Rating{Average: float64(sum) / float64(len(reviews)), Count: len(reviews)}
}
