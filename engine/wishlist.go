package engine

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// WISHLIST MANAGER - Per-actor saved homes with contiguous priorities
// =============================================================================

// WishlistManager keeps each actor's priorities at exactly 1..N. The
// max-priority read and the insert happen inside one WithTx, so two adds by
// the same actor never receive the same priority.
type WishlistManager struct {
	*deps
}

func (m *WishlistManager) Add(ctx context.Context, actor Actor, propertyID PropertyID) (*WishlistItem, error) {
	if err := requireActor(actor, "add to wishlist"); err != nil {
		return nil, err
	}
	if propertyID == "" {
		return nil, &ValidationError{Field: "home_id", Message: "required"}
	}

	var item WishlistItem
	err := m.store.WithTx(ctx, func(s Store) error {
		p, err := s.GetProperty(ctx, propertyID)
		if err != nil {
			return err
		}
		if p == nil {
			return &NotFoundError{Entity: "property", ID: string(propertyID)}
		}

		items, err := s.Wishlist(ctx, actor.ID)
		if err != nil {
			return err
		}
		max := 0
		for _, it := range items {
			if it.PropertyID == propertyID {
				return &ConflictError{Reason: "already in wishlist", Err: ErrDuplicateWishlist}
			}
			if it.Priority > max {
				max = it.Priority
			}
		}

		item = WishlistItem{
			ActorID:    actor.ID,
			PropertyID: propertyID,
			Priority:   max + 1,
			CreatedAt:  m.now(),
		}
		if err := s.InsertWishlistItem(ctx, item); err != nil {
			if errors.Is(err, ErrDuplicateWishlist) {
				return &ConflictError{Reason: "already in wishlist", Err: err}
			}
			return fmt.Errorf("insert wishlist item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, internal("add to wishlist", err)
	}
	return &item, nil
}

// Remove deletes an item and shifts later items up so priorities stay 1..N.
func (m *WishlistManager) Remove(ctx context.Context, actor Actor, propertyID PropertyID) error {
	if err := requireActor(actor, "remove from wishlist"); err != nil {
		return err
	}

	err := m.store.WithTx(ctx, func(s Store) error {
		deleted, err := s.DeleteWishlistItem(ctx, actor.ID, propertyID)
		if err != nil {
			return err
		}
		if !deleted {
			return &NotFoundError{Entity: "wishlist item", ID: string(propertyID)}
		}

		items, err := s.Wishlist(ctx, actor.ID)
		if err != nil {
			return err
		}
		for i, it := range items {
			if want := i + 1; it.Priority != want {
				if err := s.SetWishlistPriority(ctx, actor.ID, it.PropertyID, want); err != nil {
					return fmt.Errorf("compact wishlist: %w", err)
				}
			}
		}
		return nil
	})
	return internal("remove from wishlist", err)
}

// List returns the actor's wishlist ordered by priority.
func (m *WishlistManager) List(ctx context.Context, actor Actor) ([]WishlistItem, error) {
	if err := requireActor(actor, "view wishlist"); err != nil {
		return nil, err
	}
	items, err := m.store.Wishlist(ctx, actor.ID)
	if err != nil {
		return nil, internal("list wishlist", err)
	}
	return items, nil
}
