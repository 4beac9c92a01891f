/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP API. Domain types never leave the engine package
  directly; the to*DTO helpers below convert them.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags for wire-level shape
  (required fields, enumerations, bounds). Domain rules such as stay
  contiguity or price sign stay in the engine; both paths produce
  engine.ValidationError, so clients see one error kind.

AMOUNTS:
  Money is rendered as a fixed two-decimal string ("200.00") with the
  currency alongside. Requests accept numbers or strings.

SEE ALSO:
  - handlers.go: decode + validate helpers
  - engine/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/stay-engine/engine"
)

// =============================================================================
// ENVELOPE
// =============================================================================

type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// =============================================================================
// HOMES
// =============================================================================

type LocationDTO struct {
	Province  string  `json:"province" validate:"max=100"`
	District  string  `json:"district" validate:"max=100"`
	City      string  `json:"city" validate:"max=100"`
	Address   string  `json:"address" validate:"max=300"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// CreateHomeRequest is the JSON body, or the "data" field of a multipart
// form when images are uploaded in the same request.
type CreateHomeRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	Location    LocationDTO     `json:"location"`
	Price       decimal.Decimal `json:"price"`
	Bedrooms    int             `json:"bedrooms" validate:"gte=0,lte=100"`
	Bathrooms   int             `json:"bathrooms" validate:"gte=0,lte=100"`
	Features    []string        `json:"features" validate:"max=50,dive,required,max=100"`
}

type UpdateHomeRequest struct {
	Title       *string          `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=5000"`
	Location    *LocationDTO     `json:"location"`
	Price       *decimal.Decimal `json:"price"`
	Bedrooms    *int             `json:"bedrooms" validate:"omitempty,gte=0,lte=100"`
	Bathrooms   *int             `json:"bathrooms" validate:"omitempty,gte=0,lte=100"`
	Features    []string         `json:"features" validate:"omitempty,max=50,dive,required,max=100"`
}

type HideHomeRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type HomeDTO struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Location      LocationDTO `json:"location"`
	Price         string      `json:"price"`
	Currency      string      `json:"currency"`
	OwnerID       string      `json:"owner_id"`
	Status        string      `json:"status"`
	StatusReason  string      `json:"status_reason,omitempty"`
	Bedrooms      int         `json:"bedrooms"`
	Bathrooms     int         `json:"bathrooms"`
	Features      []string    `json:"features"`
	Images        []string    `json:"images"`
	AverageRating float64     `json:"average_rating"`
	ReviewsCount  int         `json:"reviews_count"`
	CreatedAt     string      `json:"created_at"`
	UpdatedAt     string      `json:"updated_at"`
}

func (l LocationDTO) toEngine() engine.Location {
	return engine.Location{
		Province:  l.Province,
		District:  l.District,
		City:      l.City,
		Address:   l.Address,
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
	}
}

func (req CreateHomeRequest) toEngine() engine.NewProperty {
	return engine.NewProperty{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location.toEngine(),
		Price:       req.Price,
		Bedrooms:    req.Bedrooms,
		Bathrooms:   req.Bathrooms,
		Features:    req.Features,
	}
}

func (req UpdateHomeRequest) toEngine() engine.PropertyUpdate {
	u := engine.PropertyUpdate{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Bedrooms:    req.Bedrooms,
		Bathrooms:   req.Bathrooms,
		Features:    req.Features,
	}
	if req.Location != nil {
		loc := req.Location.toEngine()
		u.Location = &loc
	}
	return u
}

func toHomeDTO(p engine.Property) HomeDTO {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return HomeDTO{
		ID:          string(p.ID),
		Title:       p.Title,
		Description: p.Description,
		Location: LocationDTO{
			Province:  p.Location.Province,
			District:  p.Location.District,
			City:      p.Location.City,
			Address:   p.Location.Address,
			Latitude:  p.Location.Latitude,
			Longitude: p.Location.Longitude,
		},
		Price:         p.Price.Value.StringFixed(2),
		Currency:      string(p.Price.Currency),
		OwnerID:       string(p.OwnerID),
		Status:        string(p.Status),
		StatusReason:  p.StatusReason,
		Bedrooms:      p.Bedrooms,
		Bathrooms:     p.Bathrooms,
		Features:      features,
		Images:        images,
		AverageRating: p.AverageRating,
		ReviewsCount:  p.ReviewsCount,
		CreatedAt:     formatTime(p.CreatedAt),
		UpdatedAt:     formatTime(p.UpdatedAt),
	}
}

func toHomeDTOs(ps []engine.Property) []HomeDTO {
	out := make([]HomeDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toHomeDTO(p))
	}
	return out
}

// =============================================================================
// BOOKINGS
// =============================================================================

// CreateBookingRequest lists the booked nights explicitly; end_date is the
// check-out day and is never itself a booked night.
type CreateBookingRequest struct {
	HomeID      string   `json:"home_id" validate:"required,max=100"`
	GuestName   string   `json:"guest_name" validate:"required,max=200"`
	Phone       string   `json:"phone" validate:"required,max=40"`
	IDCard      string   `json:"id_card" validate:"required,max=40"`
	BookedDates []string `json:"booked_dates" validate:"required,min=1,max=366,dive,required"`
	StartDate   string   `json:"start_date" validate:"required"`
	EndDate     string   `json:"end_date" validate:"required"`
}

type CancelBookingRequest struct {
	RefundReason string `json:"refund_reason" validate:"max=500"`
}

type BookingDTO struct {
	ID           string   `json:"id"`
	HomeID       string   `json:"home_id"`
	ActorID      string   `json:"actor_id"`
	GuestName    string   `json:"guest_name"`
	Phone        string   `json:"phone"`
	IDCard       string   `json:"id_card"`
	BookedDates  []string `json:"booked_dates"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	TotalPrice   string   `json:"total_price"`
	Currency     string   `json:"currency"`
	Status       string   `json:"status"`
	RefundReason string   `json:"refund_reason,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

type CompletionDTO struct {
	Booking    BookingDTO `json:"booking"`
	Payout     string     `json:"payout"`
	Commission string     `json:"commission"`
}

type HeldNightsDTO struct {
	HomeID string   `json:"home_id"`
	Nights []string `json:"nights"`
}

type AvailabilityDTO struct {
	HomeID      string   `json:"home_id"`
	Available   bool     `json:"available"`
	Conflicting []string `json:"conflicting"`
}

func toBookingDTO(b engine.Booking) BookingDTO {
	return BookingDTO{
		ID:           string(b.ID),
		HomeID:       string(b.PropertyID),
		ActorID:      string(b.ActorID),
		GuestName:    b.Guest.Name,
		Phone:        b.Guest.Phone,
		IDCard:       b.Guest.IDCard,
		BookedDates:  engine.NightStrings(b.Nights),
		StartDate:    b.CheckIn.String(),
		EndDate:      b.CheckOut.String(),
		TotalPrice:   b.TotalPrice.Value.StringFixed(2),
		Currency:     string(b.TotalPrice.Currency),
		Status:       string(b.Status),
		RefundReason: b.RefundReason,
		CreatedAt:    formatTime(b.CreatedAt),
		UpdatedAt:    formatTime(b.UpdatedAt),
	}
}

func toBookingDTOs(bs []engine.Booking) []BookingDTO {
	out := make([]BookingDTO, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingDTO(b))
	}
	return out
}

// =============================================================================
// LEDGER
// =============================================================================

type AccountsDTO struct {
	From string `json:"from" validate:"required,oneof=customer_wallet escrow_account owner_wallet platform_wallet"`
	To   string `json:"to" validate:"required,oneof=customer_wallet escrow_account owner_wallet platform_wallet"`
}

// CreateEntryRequest is a manual (admin) ledger posting.
type CreateEntryRequest struct {
	BookingID string          `json:"booking_id" validate:"required"`
	Type      string          `json:"type" validate:"required,oneof=payment_capture escrow_account payout_owner commission_income refund adjustment"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Currency  string          `json:"currency" validate:"omitempty,len=3,alpha"`
	Accounts  AccountsDTO     `json:"accounts"`
	OwnerID   string          `json:"owner_id"`
	Note      string          `json:"note" validate:"max=500"`
}

type LedgerEntryDTO struct {
	ID        string      `json:"id"`
	BookingID string      `json:"booking_id"`
	OwnerID   string      `json:"owner_id,omitempty"`
	Type      string      `json:"type"`
	Debit     string      `json:"debit"`
	Credit    string      `json:"credit"`
	Currency  string      `json:"currency"`
	Accounts  AccountsDTO `json:"accounts"`
	Note      string      `json:"note,omitempty"`
	CreatedBy string      `json:"created_by"`
	CreatedAt string      `json:"created_at"`
}

type AdminDashboardDTO struct {
	EscrowBalance   string `json:"escrow_balance"`
	CommissionTotal string `json:"commission_total"`
	Currency        string `json:"currency"`
}

type OwnerDashboardDTO struct {
	OwnerID  string `json:"owner_id"`
	Earnings string `json:"earnings"`
	Currency string `json:"currency"`
}

type FindingDTO struct {
	Code      string `json:"code"`
	BookingID string `json:"booking_id"`
	Message   string `json:"message"`
}

type AuditReportDTO struct {
	At              string       `json:"at"`
	OK              bool         `json:"ok"`
	Bookings        int          `json:"bookings"`
	Entries         int          `json:"entries"`
	EscrowBalance   string       `json:"escrow_balance"`
	CommissionTotal string       `json:"commission_total"`
	Violations      []FindingDTO `json:"violations"`
	Notices         []FindingDTO `json:"notices"`
}

func (req CreateEntryRequest) toEngine() engine.LedgerEntry {
	return engine.LedgerEntry{
		BookingID: engine.BookingID(req.BookingID),
		OwnerID:   engine.ActorID(req.OwnerID),
		Type:      engine.EntryType(req.Type),
		Debit:     req.Debit,
		Credit:    req.Credit,
		Currency:  engine.Currency(req.Currency),
		Accounts: engine.Accounts{
			From: engine.Account(req.Accounts.From),
			To:   engine.Account(req.Accounts.To),
		},
		Note: req.Note,
	}
}

func toLedgerEntryDTO(e engine.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:        string(e.ID),
		BookingID: string(e.BookingID),
		OwnerID:   string(e.OwnerID),
		Type:      string(e.Type),
		Debit:     e.Debit.StringFixed(2),
		Credit:    e.Credit.StringFixed(2),
		Currency:  string(e.Currency),
		Accounts:  AccountsDTO{From: string(e.Accounts.From), To: string(e.Accounts.To)},
		Note:      e.Note,
		CreatedBy: string(e.CreatedBy),
		CreatedAt: formatTime(e.CreatedAt),
	}
}

func toLedgerEntryDTOs(es []engine.LedgerEntry) []LedgerEntryDTO {
	out := make([]LedgerEntryDTO, 0, len(es))
	for _, e := range es {
		out = append(out, toLedgerEntryDTO(e))
	}
	return out
}

func toFindingDTOs(fs []engine.Finding) []FindingDTO {
	out := make([]FindingDTO, 0, len(fs))
	for _, f := range fs {
		out = append(out, FindingDTO{Code: string(f.Code), BookingID: string(f.BookingID), Message: f.Message})
	}
	return out
}

func toAuditReportDTO(r engine.AuditReport) AuditReportDTO {
	return AuditReportDTO{
		At:              formatTime(r.At),
		OK:              r.OK(),
		Bookings:        r.Bookings,
		Entries:         r.Entries,
		EscrowBalance:   r.EscrowBalance.StringFixed(2),
		CommissionTotal: r.CommissionTotal.StringFixed(2),
		Violations:      toFindingDTOs(r.Violations),
		Notices:         toFindingDTOs(r.Notices),
	}
}

// =============================================================================
// REVIEWS / WISHLIST
// =============================================================================

type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type ReviewDTO struct {
	ID        string `json:"id"`
	BookingID string `json:"booking_id"`
	ActorID   string `json:"actor_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"created_at"`
}

type AddWishlistRequest struct {
	HomeID string `json:"home_id" validate:"required,max=100"`
}

type WishlistItemDTO struct {
	HomeID    string `json:"home_id"`
	Priority  int    `json:"priority"`
	CreatedAt string `json:"created_at"`
}

func toReviewDTO(r engine.Review) ReviewDTO {
	return ReviewDTO{
		ID:        string(r.ID),
		BookingID: string(r.BookingID),
		ActorID:   string(r.ActorID),
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: formatTime(r.CreatedAt),
	}
}

func toReviewDTOs(rs []engine.Review) []ReviewDTO {
	out := make([]ReviewDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toReviewDTO(r))
	}
	return out
}

func toWishlistDTOs(items []engine.WishlistItem) []WishlistItemDTO {
	out := make([]WishlistItemDTO, 0, len(items))
	for _, it := range items {
		out = append(out, WishlistItemDTO{
			HomeID:    string(it.PropertyID),
			Priority:  it.Priority,
			CreatedAt: formatTime(it.CreatedAt),
		})
	}
	return out
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
