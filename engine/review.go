package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// REVIEW MANAGER - One review per (booking, actor), rating kept in sync
// =============================================================================

// ReviewManager adds and removes reviews. Every change recomputes the
// property's rating in the same transaction and drops the cached property
// after commit.
type ReviewManager struct {
	*deps
	aggregates *Recalculator
}

func (m *ReviewManager) Add(ctx context.Context, actor Actor, bookingID BookingID, rating int, comment string) (*Review, error) {
	if err := requireActor(actor, "add review"); err != nil {
		return nil, err
	}
	if rating < 1 || rating > 5 {
		return nil, &ValidationError{Field: "rating", Message: fmt.Sprintf("must be between 1 and 5, got %d", rating)}
	}

	var (
		review     Review
		propertyID PropertyID
	)
	err := m.store.WithTx(ctx, func(s Store) error {
		b, err := s.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return &NotFoundError{Entity: "booking", ID: string(bookingID)}
		}
		existing, err := s.FindReview(ctx, bookingID, actor.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ConflictError{Reason: "you have already submitted a review for this booking", Err: ErrDuplicateReview}
		}

		review = Review{
			ID:        ReviewID(NewID("rev")),
			BookingID: bookingID,
			ActorID:   actor.ID,
			Rating:    rating,
			Comment:   strings.TrimSpace(comment),
			CreatedAt: m.now(),
		}
		if err := s.InsertReview(ctx, review); err != nil {
			if errors.Is(err, ErrDuplicateReview) {
				return &ConflictError{Reason: "you have already submitted a review for this booking", Err: err}
			}
			return fmt.Errorf("insert review: %w", err)
		}

		propertyID = b.PropertyID
		_, err = m.aggregates.RecalculateProperty(ctx, s, propertyID)
		return err
	})
	if err != nil {
		return nil, internal("add review", err)
	}

	m.invalidate(ctx, propertyID)
	m.log.WithFields(logrus.Fields{
		"review_id":   review.ID,
		"booking_id":  bookingID,
		"property_id": propertyID,
		"rating":      rating,
	}).Info("review added")
	m.publish(ctx, Event{
		Type:       EventReviewAdded,
		BookingID:  bookingID,
		PropertyID: propertyID,
		ReviewID:   review.ID,
		ActorID:    actor.ID,
		At:         review.CreatedAt,
	})
	return &review, nil
}

// Delete removes a review. Only its author or an admin may do so.
func (m *ReviewManager) Delete(ctx context.Context, actor Actor, id ReviewID) error {
	if err := requireActor(actor, "delete review"); err != nil {
		return err
	}

	var (
		review     *Review
		propertyID PropertyID
	)
	err := m.store.WithTx(ctx, func(s Store) error {
		var err error
		review, err = s.GetReview(ctx, id)
		if err != nil {
			return err
		}
		if review == nil {
			return &NotFoundError{Entity: "review", ID: string(id)}
		}
		b, err := s.GetBooking(ctx, review.BookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return &NotFoundError{Entity: "booking", ID: string(review.BookingID)}
		}
		if !actor.IsAdmin() && actor.ID != review.ActorID {
			return &UnauthorizedError{Actor: actor.ID, Op: "delete review " + string(id)}
		}

		if err := s.DeleteReview(ctx, id); err != nil {
			return fmt.Errorf("delete review: %w", err)
		}
		propertyID = b.PropertyID
		_, err = m.aggregates.RecalculateProperty(ctx, s, propertyID)
		return err
	})
	if err != nil {
		return internal("delete review", err)
	}

	m.invalidate(ctx, propertyID)
	m.log.WithFields(logrus.Fields{
		"review_id":   id,
		"property_id": propertyID,
		"actor_id":    actor.ID,
	}).Info("review deleted")
	m.publish(ctx, Event{
		Type:       EventReviewDeleted,
		BookingID:  review.BookingID,
		PropertyID: propertyID,
		ReviewID:   id,
		ActorID:    actor.ID,
		At:         m.now(),
	})
	return nil
}

func (m *ReviewManager) ListByBooking(ctx context.Context, bookingID BookingID) ([]Review, error) {
	reviews, err := m.store.ReviewsByBooking(ctx, bookingID)
	if err != nil {
		return nil, internal("list reviews", err)
	}
	return reviews, nil
}

func (m *ReviewManager) ListByProperty(ctx context.Context, propertyID PropertyID) ([]Review, error) {
	reviews, err := m.store.ReviewsByProperty(ctx, propertyID)
	if err != nil {
		return nil, internal("list reviews", err)
	}
	return reviews, nil
}
