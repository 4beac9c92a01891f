package engine

import (
	"context"
	"fmt"
)

// =============================================================================
// AVAILABILITY INDEX - Which nights of a property are held
// =============================================================================

// AvailabilityIndex answers whether a set of nights is free. A night is held
// while any booking holding it is not cancelled; cancelling frees it at once.
//
// Check alone is advisory. BookingManager.Create runs the same check and the
// insert inside one WithTx, and stores reject a second holder of a night.
type AvailabilityIndex struct {
	*deps
}

// Availability is the outcome of a check. Conflicting is empty when available.
type Availability struct {
	Available   bool
	Conflicting []Night
}

func (a *AvailabilityIndex) Check(ctx context.Context, propertyID PropertyID, nights []Night) (Availability, error) {
	res, err := a.check(ctx, a.store, propertyID, nights)
	if err != nil {
		return Availability{}, internal("check availability", err)
	}
	return res, nil
}

func (a *AvailabilityIndex) check(ctx context.Context, s Store, propertyID PropertyID, nights []Night) (Availability, error) {
	if propertyID == "" {
		return Availability{}, &ValidationError{Field: "property_id", Message: "required"}
	}
	if len(nights) == 0 {
		return Availability{}, &ValidationError{Field: "nights", Message: "at least one night is required"}
	}
	held, err := s.HeldNights(ctx, propertyID, nights)
	if err != nil {
		return Availability{}, fmt.Errorf("held nights: %w", err)
	}
	if len(held) > 0 {
		SortNights(held)
		return Availability{Available: false, Conflicting: held}, nil
	}
	return Availability{Available: true}, nil
}

// HeldNights is the calendar projection of a property: every night currently held.
func (a *AvailabilityIndex) HeldNights(ctx context.Context, propertyID PropertyID) ([]Night, error) {
	p, err := a.store.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, internal("held nights", err)
	}
	if p == nil {
		return nil, &NotFoundError{Entity: "property", ID: string(propertyID)}
	}
	held, err := a.store.HeldNights(ctx, propertyID, nil)
	if err != nil {
		return nil, internal("held nights", err)
	}
	SortNights(held)
	return held, nil
}
