/*
property.go - Catalog of rentable homes

PURPOSE:
  Creates and maintains properties. Properties are never deleted; an admin
  hides one that violates platform rules, and an owner marks one
  unavailable to stop new bookings. Existing bookings are unaffected.

WRITABLE FIELDS:
  Owners and admins may change descriptive fields and the nightly price.
  OwnerID, AverageRating and ReviewsCount are not writable through this
  service: the owner is fixed at creation and the rating fields belong to
  the Recalculator.

CACHE:
  Every successful mutation invalidates the property in the configured
  PropertyInvalidator after commit.
*/
package engine

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultHideReason = "Violation of platform rules"

type PropertyService struct {
	*deps
}

// NewProperty is the input of PropertyService.Create.
type NewProperty struct {
	Title       string
	Description string
	Location    Location
	Price       decimal.Decimal
	Bedrooms    int
	Bathrooms   int
	Features    []string
	Images      []string
}

func (n NewProperty) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return &ValidationError{Field: "title", Message: "required"}
	}
	if err := validateLocation(n.Location); err != nil {
		return err
	}
	if n.Price.IsNegative() {
		return &ValidationError{Field: "price", Message: "must not be negative"}
	}
	if n.Bedrooms < 0 || n.Bathrooms < 0 {
		return &ValidationError{Field: "rooms", Message: "must not be negative"}
	}
	return nil
}

func validateLocation(l Location) error {
	required := map[string]string{
		"location.province": l.Province,
		"location.district": l.District,
		"location.city":     l.City,
		"location.address":  l.Address,
	}
	keys := make([]string, 0, len(required))
	for k := range required {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.TrimSpace(required[k]) == "" {
			return &ValidationError{Field: k, Message: "required"}
		}
	}
	if l.Latitude < -90 || l.Latitude > 90 {
		return &ValidationError{Field: "location.latitude", Message: "must be within [-90, 90]"}
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return &ValidationError{Field: "location.longitude", Message: "must be within [-180, 180]"}
	}
	return nil
}

// Create lists a new active property owned by the actor.
func (s *PropertyService) Create(ctx context.Context, actor Actor, in NewProperty) (*Property, error) {
	if err := requireActor(actor, "create property"); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	p := Property{
		ID:          PropertyID(NewID("home")),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Location:    in.Location,
		Price:       Amount{Value: in.Price, Currency: s.policy.Currency},
		OwnerID:     actor.ID,
		Status:      PropertyActive,
		Bedrooms:    in.Bedrooms,
		Bathrooms:   in.Bathrooms,
		Features:    in.Features,
		Images:      in.Images,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SaveProperty(ctx, p); err != nil {
		return nil, internal("create property", err)
	}

	s.log.WithFields(logrus.Fields{
		"property_id": p.ID,
		"owner_id":    p.OwnerID,
		"price":       p.Price.String(),
	}).Info("property created")
	return &p, nil
}

func (s *PropertyService) Get(ctx context.Context, id PropertyID) (*Property, error) {
	p, err := s.store.GetProperty(ctx, id)
	if err != nil {
		return nil, internal("get property", err)
	}
	if p == nil {
		return nil, &NotFoundError{Entity: "property", ID: string(id)}
	}
	return p, nil
}

// List returns every property, newest first.
func (s *PropertyService) List(ctx context.Context) ([]Property, error) {
	props, err := s.store.ListProperties(ctx)
	if err != nil {
		return nil, internal("list properties", err)
	}
	newestFirst(props)
	return props, nil
}

// ListByOwner fails with NotFoundError when the owner has no properties.
func (s *PropertyService) ListByOwner(ctx context.Context, owner ActorID) ([]Property, error) {
	props, err := s.store.ListPropertiesByOwner(ctx, owner)
	if err != nil {
		return nil, internal("list properties", err)
	}
	if len(props) == 0 {
		return nil, &NotFoundError{Entity: "properties of owner", ID: string(owner)}
	}
	newestFirst(props)
	return props, nil
}

func newestFirst(props []Property) {
	sort.SliceStable(props, func(i, j int) bool { return props[i].CreatedAt.After(props[j].CreatedAt) })
}

// PropertyUpdate carries optional changes. Nil fields are left untouched.
type PropertyUpdate struct {
	Title       *string
	Description *string
	Location    *Location
	Price       *decimal.Decimal
	Bedrooms    *int
	Bathrooms   *int
	Features    []string
}

func (s *PropertyService) Update(ctx context.Context, actor Actor, id PropertyID, u PropertyUpdate) (*Property, error) {
	if err := requireActor(actor, "update property"); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, id, "update property", func(p *Property) error {
		if !actor.IsAdmin() && actor.ID != p.OwnerID {
			return &UnauthorizedError{Actor: actor.ID, Op: "update property " + string(id)}
		}
		if u.Title != nil {
			if strings.TrimSpace(*u.Title) == "" {
				return &ValidationError{Field: "title", Message: "must not be empty"}
			}
			p.Title = strings.TrimSpace(*u.Title)
		}
		if u.Description != nil {
			p.Description = *u.Description
		}
		if u.Location != nil {
			if err := validateLocation(*u.Location); err != nil {
				return err
			}
			p.Location = *u.Location
		}
		if u.Price != nil {
			if u.Price.IsNegative() {
				return &ValidationError{Field: "price", Message: "must not be negative"}
			}
			p.Price = Amount{Value: *u.Price, Currency: p.Price.Currency}
		}
		if u.Bedrooms != nil {
			if *u.Bedrooms < 0 {
				return &ValidationError{Field: "bedrooms", Message: "must not be negative"}
			}
			p.Bedrooms = *u.Bedrooms
		}
		if u.Bathrooms != nil {
			if *u.Bathrooms < 0 {
				return &ValidationError{Field: "bathrooms", Message: "must not be negative"}
			}
			p.Bathrooms = *u.Bathrooms
		}
		if u.Features != nil {
			p.Features = u.Features
		}
		return nil
	})
}

// Hide takes a property out of the catalog. Admin only.
func (s *PropertyService) Hide(ctx context.Context, actor Actor, id PropertyID, reason string) (*Property, error) {
	if err := requireActor(actor, "hide property"); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, &UnauthorizedError{Actor: actor.ID, Op: "hide property " + string(id)}
	}
	if strings.TrimSpace(reason) == "" {
		reason = defaultHideReason
	}
	return s.mutate(ctx, actor, id, "hide property", func(p *Property) error {
		p.Status = PropertyHidden
		p.StatusReason = reason
		return nil
	})
}

// MarkUnavailable stops new bookings. Only the owner may do this.
func (s *PropertyService) MarkUnavailable(ctx context.Context, actor Actor, id PropertyID) (*Property, error) {
	if err := requireActor(actor, "mark property unavailable"); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, id, "mark property unavailable", func(p *Property) error {
		if actor.ID != p.OwnerID {
			return &UnauthorizedError{Actor: actor.ID, Op: "mark property unavailable " + string(id)}
		}
		p.Status = PropertyUnavailable
		return nil
	})
}

// Upload is one file handed to AttachImages.
type Upload struct {
	Name string
	Body io.Reader
}

// AttachImages stores uploads in the blob store and appends their URLs.
// Blobs are written before the property; an upload failure changes nothing.
func (s *PropertyService) AttachImages(ctx context.Context, actor Actor, id PropertyID, uploads []Upload) (*Property, error) {
	if err := requireActor(actor, "attach images"); err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, &ValidationError{Field: "images", Message: "at least one image is required"}
	}
	if s.blobs == nil {
		return nil, &InternalError{Op: "attach images", Err: fmt.Errorf("no blob store configured")}
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != current.OwnerID {
		return nil, &UnauthorizedError{Actor: actor.ID, Op: "attach images to " + string(id)}
	}

	urls := make([]string, 0, len(uploads))
	for _, u := range uploads {
		name := path.Join("homes", string(id), NewID("img")+path.Ext(u.Name))
		url, err := s.blobs.Put(ctx, name, u.Body)
		if err != nil {
			return nil, internal("attach images", fmt.Errorf("store %s: %w", u.Name, err))
		}
		urls = append(urls, url)
	}

	return s.mutate(ctx, actor, id, "attach images", func(p *Property) error {
		p.Images = append(p.Images, urls...)
		return nil
	})
}

// mutate applies fn to the stored property inside a transaction and saves it.
func (s *PropertyService) mutate(ctx context.Context, actor Actor, id PropertyID, op string, fn func(*Property) error) (*Property, error) {
	var out Property
	err := s.store.WithTx(ctx, func(tx Store) error {
		p, err := tx.GetProperty(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return &NotFoundError{Entity: "property", ID: string(id)}
		}
		if err := fn(p); err != nil {
			return err
		}
		p.UpdatedAt = s.now()
		if err := tx.SaveProperty(ctx, *p); err != nil {
			return fmt.Errorf("save property: %w", err)
		}
		out = *p
		return nil
	})
	if err != nil {
		return nil, internal(op, err)
	}

	s.invalidate(ctx, id)
	s.log.WithFields(logrus.Fields{
		"property_id": id,
		"actor_id":    actor.ID,
		"status":      out.Status,
	}).Info(op)
	return &out, nil
}
