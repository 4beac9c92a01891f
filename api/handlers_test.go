/*
handlers_test.go - HTTP tests for the booking API

Tests for:
- Booking lifecycle over HTTP (create, conflict, complete, dashboards)
- Cancellation freeing nights
- Authentication and validation errors
- Reviews, wishlist, image upload, cached home reads
- Idempotent replay of retried mutations
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stay-engine/auth"
	"github.com/warp/stay-engine/blob"
	"github.com/warp/stay-engine/cache"
	"github.com/warp/stay-engine/engine"
	"github.com/warp/stay-engine/engine/store"
	"github.com/warp/stay-engine/events"
	"github.com/warp/stay-engine/idempotency"
	"github.com/warp/stay-engine/logging"
)

var (
	owner  = engine.Actor{ID: "owner-1", Role: engine.RoleOwner}
	guest  = engine.Actor{ID: "guest-1", Role: engine.RoleGuest}
	guest2 = engine.Actor{ID: "guest-2", Role: engine.RoleGuest}
	admin  = engine.Actor{ID: "admin-1", Role: engine.RoleAdmin}
	nobody = engine.Actor{}
)

// =============================================================================
// HARNESS
// =============================================================================

type testServer struct {
	t       *testing.T
	router  http.Handler
	handler *Handler
	mem     *store.Memory
	events  *events.Recorder
	homes   *cache.Properties
}

type serverOptions struct {
	idempotency bool
	blobDir     string
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	log := logging.Discard()
	mem := store.NewMemory()
	rec := &events.Recorder{}
	homes := cache.NewProperties(time.Minute, "", log)
	t.Cleanup(homes.Stop)

	engineOpts := []engine.Option{
		engine.WithLogger(log),
		engine.WithPublisher(rec),
		engine.WithPropertyCache(homes),
	}
	cfg := RouterConfig{Auth: auth.Header{}, Scenarios: true}

	if opts.blobDir != "" {
		bucket, err := blob.Open(context.Background(), opts.blobDir, "/uploads", 0)
		require.NoError(t, err)
		t.Cleanup(func() { bucket.Close() })
		engineOpts = append(engineOpts, engine.WithBlobStore(bucket))
		cfg.Uploads = bucket.Handler()
		cfg.UploadsPath = "/uploads"
	}
	if opts.idempotency {
		idem, err := idempotency.Open(filepath.Join(t.TempDir(), "idem.db"), time.Hour)
		require.NoError(t, err)
		t.Cleanup(func() { idem.Close() })
		cfg.Idempotency = idem
	}

	eng := engine.New(mem, engine.DefaultPolicy(), engineOpts...)
	h := NewHandler(eng, log)
	h.Homes = homes
	h.Resetter = mem
	h.Auditor = NewLedgerAuditor(eng.Ledger, log)

	return &testServer{
		t:       t,
		router:  NewRouter(h, cfg),
		handler: h,
		mem:     mem,
		events:  rec,
		homes:   homes,
	}
}

// do sends a JSON request as actor. A zero actor sends no identity headers.
func (s *testServer) do(method, path string, actor engine.Actor, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return s.send(req, actor, headers...)
}

func (s *testServer) send(req *http.Request, actor engine.Actor, headers ...string) *httptest.ResponseRecorder {
	if !actor.IsZero() {
		req.Header.Set(auth.HeaderActorID, string(actor.ID))
		req.Header.Set(auth.HeaderActorRole, string(actor.Role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type rawEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) rawEnvelope {
	t.Helper()
	var env rawEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

// data asserts the status and decodes the success payload.
func data[T any](t *testing.T, rec *httptest.ResponseRecorder, status int) T {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	env := envelope(t, rec)
	require.True(t, env.Success)
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// failure asserts the status and returns the error body.
func failure(t *testing.T, rec *httptest.ResponseRecorder, status int) ErrorBody {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	env := envelope(t, rec)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	return *env.Error
}

func homeBody(price any) map[string]any {
	return map[string]any{
		"title":       "Lake View Cottage",
		"description": "Two rooms by the lake",
		"location": map[string]any{
			"province": "Central", "district": "Kandy", "city": "Kandy",
			"address": "12 Lake Road", "latitude": 7.29, "longitude": 80.63,
		},
		"price":     price,
		"bedrooms":  2,
		"bathrooms": 1,
		"features":  []string{"wifi"},
	}
}

func (s *testServer) createHome(price any) HomeDTO {
	s.t.Helper()
	return data[HomeDTO](s.t, s.do(http.MethodPost, "/api/homes", owner, homeBody(price)), http.StatusCreated)
}

func bookingBody(homeID string, nights ...string) map[string]any {
	in, _ := engine.ParseNight(nights[0])
	last, _ := engine.ParseNight(nights[len(nights)-1])
	return map[string]any{
		"home_id":      homeID,
		"guest_name":   "Nimal Perera",
		"phone":        "+94770000000",
		"id_card":      "901234567V",
		"booked_dates": nights,
		"start_date":   in.String(),
		"end_date":     last.AddDays(1).String(),
	}
}

// =============================================================================
// BOOKING LIFECYCLE
// =============================================================================

func TestBookingLifecycle(t *testing.T) {
	// GIVEN: A home at 100/night
	// WHEN: A guest books two nights, another guest overlaps, the owner completes
	// THEN: 200 is escrowed, the overlap is a 409, completion pays 180 and 20
	//       and the dashboards reflect it

	s := newTestServer(t, serverOptions{})
	home := s.createHome(100)
	assert.Equal(t, "100.00", home.Price)
	assert.Equal(t, "owner-1", home.OwnerID)
	assert.Equal(t, "active", home.Status)

	booking := data[BookingDTO](t,
		s.do(http.MethodPost, "/api/bookings", guest, bookingBody(home.ID, "2024-03-01", "2024-03-02")),
		http.StatusCreated)
	assert.Equal(t, "200.00", booking.TotalPrice)
	assert.Equal(t, "pending", booking.Status)
	assert.Equal(t, []string{"2024-03-01", "2024-03-02"}, booking.BookedDates)
	assert.Equal(t, "2024-03-03", booking.EndDate)

	conflict := failure(t,
		s.do(http.MethodPost, "/api/bookings", guest2, bookingBody(home.ID, "2024-03-02", "2024-03-03")),
		http.StatusConflict)
	assert.Equal(t, "conflict", conflict.Kind)

	held := data[HeldNightsDTO](t, s.do(http.MethodGet, "/api/bookings/home/"+home.ID, nobody, nil), http.StatusOK)
	assert.Equal(t, []string{"2024-03-01", "2024-03-02"}, held.Nights)

	failure(t, s.do(http.MethodPost, "/api/bookings/"+booking.ID+"/complete", guest, nil), http.StatusForbidden)

	done := data[CompletionDTO](t, s.do(http.MethodPost, "/api/bookings/"+booking.ID+"/complete", owner, nil), http.StatusOK)
	assert.Equal(t, "completed", done.Booking.Status)
	assert.Equal(t, "180.00", done.Payout)
	assert.Equal(t, "20.00", done.Commission)

	again := failure(t, s.do(http.MethodPost, "/api/bookings/"+booking.ID+"/complete", owner, nil), http.StatusBadRequest)
	assert.Equal(t, "state", again.Kind)

	entries := data[[]LedgerEntryDTO](t, s.do(http.MethodGet, "/api/bookings/"+booking.ID+"/ledger", admin, nil), http.StatusOK)
	assert.Len(t, entries, 3)

	dash := data[AdminDashboardDTO](t, s.do(http.MethodGet, "/api/ledger/admin/dashboard", admin, nil), http.StatusOK)
	assert.Equal(t, "0.00", dash.EscrowBalance)
	assert.Equal(t, "20.00", dash.CommissionTotal)
	assert.Equal(t, "LKR", dash.Currency)

	failure(t, s.do(http.MethodGet, "/api/ledger/admin/dashboard", guest, nil), http.StatusForbidden)

	earnings := data[OwnerDashboardDTO](t, s.do(http.MethodGet, "/api/ledger/owner/dashboard", owner, nil), http.StatusOK)
	assert.Equal(t, "180.00", earnings.Earnings)

	byOwner := data[[]BookingDTO](t, s.do(http.MethodGet, "/api/bookings/owner/owner-1", nobody, nil), http.StatusOK)
	require.Len(t, byOwner, 1)
	assert.Equal(t, booking.ID, byOwner[0].ID)

	assert.Len(t, s.events.Events(), 2)
}

func TestCancelBooking_FreesNights(t *testing.T) {
	// GIVEN: A pending booking
	// WHEN: The guest cancels without a body
	// THEN: The default refund reason is recorded and the nights are free

	s := newTestServer(t, serverOptions{})
	home := s.createHome(100)
	booking := data[BookingDTO](t,
		s.do(http.MethodPost, "/api/bookings", guest, bookingBody(home.ID, "2024-03-01", "2024-03-02")),
		http.StatusCreated)

	avail := data[AvailabilityDTO](t,
		s.do(http.MethodGet, "/api/homes/"+home.ID+"/availability?dates=2024-03-02,2024-03-05", nobody, nil),
		http.StatusOK)
	assert.False(t, avail.Available)
	assert.Equal(t, []string{"2024-03-02"}, avail.Conflicting)

	cancelled := data[BookingDTO](t, s.do(http.MethodPut, "/api/bookings/"+booking.ID+"/cancel", guest, nil), http.StatusOK)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "No reason provided", cancelled.RefundReason)

	avail = data[AvailabilityDTO](t,
		s.do(http.MethodGet, "/api/homes/"+home.ID+"/availability?dates=2024-03-01,2024-03-02", nobody, nil),
		http.StatusOK)
	assert.True(t, avail.Available)
	assert.Empty(t, avail.Conflicting)

	data[BookingDTO](t,
		s.do(http.MethodPost, "/api/bookings", guest2, bookingBody(home.ID, "2024-03-01", "2024-03-02")),
		http.StatusCreated)
}

func TestCancelBooking_WithReason(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	home := s.createHome(100)
	booking := data[BookingDTO](t,
		s.do(http.MethodPost, "/api/bookings", guest, bookingBody(home.ID, "2024-05-01")),
		http.StatusCreated)

	cancelled := data[BookingDTO](t,
		s.do(http.MethodPut, "/api/bookings/"+booking.ID+"/cancel", guest, map[string]string{"refund_reason": "Flight cancelled"}),
		http.StatusOK)
	assert.Equal(t, "Flight cancelled", cancelled.RefundReason)
}

// =============================================================================
// AUTHENTICATION & VALIDATION
// =============================================================================

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	missing := failure(t, s.do(http.MethodPost, "/api/homes", nobody, homeBody(100)), http.StatusUnauthorized)
	assert.Equal(t, "unauthenticated", missing.Kind)

	rec := s.do(http.MethodGet, "/api/homes", nobody, nil, auth.HeaderActorID, "x", auth.HeaderActorRole, "superuser")
	assert.Equal(t, "unauthenticated", failure(t, rec, http.StatusUnauthorized).Kind)

	// Reads need no identity.
	data[[]HomeDTO](t, s.do(http.MethodGet, "/api/homes", nobody, nil), http.StatusOK)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	home := s.createHome(100)

	noName := bookingBody(home.ID, "2024-03-01")
	delete(noName, "guest_name")

	badDate := bookingBody(home.ID, "2024-03-01")
	badDate["booked_dates"] = []string{"March first"}

	outside := bookingBody(home.ID, "2024-03-01")
	outside["booked_dates"] = []string{"2024-03-05"}

	noAddress := homeBody(100)
	noAddress["location"].(map[string]any)["address"] = ""

	tests := []struct {
		name  string
		path  string
		body  any
		field string
	}{
		{"missing guest name", "/api/bookings", noName, "guest_name"},
		{"unparseable night", "/api/bookings", badDate, "booked_dates[0]"},
		{"night outside stay", "/api/bookings", outside, "nights"},
		{"malformed json", "/api/bookings", `{"home_id":`, "body"},
		{"empty body", "/api/bookings", "", "body"},
		{"missing address", "/api/homes", noAddress, "location.address"},
		{"negative price", "/api/homes", homeBody(-5), "price"},
		{"bad rating", "/api/reviews/bkg-1", map[string]any{"rating": 7}, "rating"},
		{"unknown entry type", "/api/ledger/entries", map[string]any{
			"booking_id": "bkg-1", "type": "bonus",
			"accounts": map[string]string{"from": "escrow_account", "to": "owner_wallet"},
		}, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := failure(t, s.do(http.MethodPost, tt.path, admin, tt.body), http.StatusBadRequest)
			assert.Equal(t, "validation", body.Kind)
			assert.Equal(t, tt.field, body.Field)
		})
	}
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	assert.Equal(t, "not_found", failure(t, s.do(http.MethodGet, "/api/homes/missing", nobody, nil), http.StatusNotFound).Kind)
	failure(t, s.do(http.MethodGet, "/api/bookings/missing", nobody, nil), http.StatusNotFound)
	failure(t, s.do(http.MethodGet, "/api/homes/owner/nobody", nobody, nil), http.StatusNotFound)
	failure(t, s.do(http.MethodPost, "/api/bookings", guest, bookingBody("missing", "2024-03-01")), http.StatusNotFound)
}

// =============================================================================
// HOMES
// =============================================================================

func TestHomeAdministration(t *testing.T) {
	// GIVEN: A home read once through the cache
	// WHEN: The owner renames it, an admin hides it, the owner marks it unavailable
	// THEN: Every read reflects the latest write and bookings are refused

	s := newTestServer(t, serverOptions{})
	home := s.createHome("150.50")
	assert.Equal(t, "150.50", home.Price)

	data[HomeDTO](t, s.do(http.MethodGet, "/api/homes/"+home.ID, nobody, nil), http.StatusOK)

	renamed := data[HomeDTO](t,
		s.do(http.MethodPut, "/api/homes/"+home.ID, owner, map[string]any{"title": "Lakeside Retreat"}),
		http.StatusOK)
	assert.Equal(t, "Lakeside Retreat", renamed.Title)

	got := data[HomeDTO](t, s.do(http.MethodGet, "/api/homes/"+home.ID, nobody, nil), http.StatusOK)
	assert.Equal(t, "Lakeside Retreat", got.Title, "update invalidates the cached copy")

	failure(t, s.do(http.MethodPut, "/api/homes/"+home.ID, guest, map[string]any{"title": "Mine"}), http.StatusForbidden)
	failure(t, s.do(http.MethodPut, "/api/homes/"+home.ID+"/hide", owner, nil), http.StatusForbidden)

	hidden := data[HomeDTO](t, s.do(http.MethodPut, "/api/homes/"+home.ID+"/hide", admin, nil), http.StatusOK)
	assert.Equal(t, "hidden", hidden.Status)
	assert.Equal(t, "Violation of platform rules", hidden.StatusReason)

	refused := failure(t,
		s.do(http.MethodPost, "/api/bookings", guest, bookingBody(home.ID, "2024-03-01")),
		http.StatusBadRequest)
	assert.Equal(t, "state", refused.Kind)

	unavailable := data[HomeDTO](t, s.do(http.MethodPut, "/api/homes/"+home.ID+"/unavailable", owner, nil), http.StatusOK)
	assert.Equal(t, "unavailable", unavailable.Status)

	mine := data[[]HomeDTO](t, s.do(http.MethodGet, "/api/homes/owner/owner-1", nobody, nil), http.StatusOK)
	require.Len(t, mine, 1)
	assert.Equal(t, "unavailable", mine[0].Status)
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(imagesField, name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateHome_WithImages(t *testing.T) {
	// GIVEN: A directory blob bucket mounted at /uploads
	// WHEN: The owner creates a home with one image, then uploads another
	// THEN: Both URLs are recorded and served back

	s := newTestServer(t, serverOptions{blobDir: t.TempDir()})

	payload, err := json.Marshal(homeBody(100))
	require.NoError(t, err)
	req := multipartRequest(t, "/api/homes", map[string]string{"data": string(payload)},
		map[string][]byte{"front.jpg": []byte("jpeg-bytes")})

	home := data[HomeDTO](t, s.send(req, owner), http.StatusCreated)
	require.Len(t, home.Images, 1)
	assert.True(t, strings.HasPrefix(home.Images[0], "/uploads/homes/"+home.ID+"/"))
	assert.True(t, strings.HasSuffix(home.Images[0], ".jpg"))

	served := s.do(http.MethodGet, home.Images[0], nobody, nil)
	require.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, "jpeg-bytes", served.Body.String())

	req = multipartRequest(t, "/api/homes/"+home.ID+"/images", nil, map[string][]byte{"back.png": []byte("png")})
	failure(t, s.send(req, guest), http.StatusForbidden)

	req = multipartRequest(t, "/api/homes/"+home.ID+"/images", nil, map[string][]byte{"back.png": []byte("png")})
	updated := data[HomeDTO](t, s.send(req, owner), http.StatusOK)
	assert.Len(t, updated.Images, 2)

	req = multipartRequest(t, "/api/homes/"+home.ID+"/images", nil, nil)
	failure(t, s.send(req, owner), http.StatusBadRequest)
}

func TestCreateHome_MultipartWithoutData(t *testing.T) {
	s := newTestServer(t, serverOptions{blobDir: t.TempDir()})
	req := multipartRequest(t, "/api/homes", nil, map[string][]byte{"a.jpg": []byte("x")})
	body := failure(t, s.send(req, owner), http.StatusBadRequest)
	assert.Equal(t, "data", body.Field)
}

// =============================================================================
// REVIEWS & WISHLIST
// =============================================================================

func TestReviews(t *testing.T) {
	// GIVEN: A booking on a home
	// WHEN: Two actors review it, one twice, then one review is deleted
	// THEN: Duplicates conflict and the home's rating follows every change

	s := newTestServer(t, serverOptions{})
	home := s.createHome(100)
	booking := data[BookingDTO](t,
		s.do(http.MethodPost, "/api/bookings", guest, bookingBody(home.ID, "2024-03-01")),
		http.StatusCreated)

	first := data[ReviewDTO](t,
		s.do(http.MethodPost, "/api/reviews/"+booking.ID, guest, map[string]any{"rating": 4, "comment": "Nice"}),
		http.StatusCreated)
	data[ReviewDTO](t,
		s.do(http.MethodPost, "/api/reviews/"+booking.ID, guest2, map[string]any{"rating": 5}),
		http.StatusCreated)
	failure(t,
		s.do(http.MethodPost, "/api/reviews/"+booking.ID, guest, map[string]any{"rating": 2}),
		http.StatusConflict)

	got := data[HomeDTO](t, s.do(http.MethodGet, "/api/homes/"+home.ID, nobody, nil), http.StatusOK)
	assert.Equal(t, 4.5, got.AverageRating)
	assert.Equal(t, 2, got.ReviewsCount)

	list := data[[]ReviewDTO](t, s.do(http.MethodGet, "/api/reviews/"+booking.ID, nobody, nil), http.StatusOK)
	assert.Len(t, list, 2)
	byHome := data[[]ReviewDTO](t, s.do(http.MethodGet, "/api/homes/"+home.ID+"/reviews", nobody, nil), http.StatusOK)
	assert.Len(t, byHome, 2)

	failure(t, s.do(http.MethodDelete, "/api/reviews/"+first.ID, guest2, nil), http.StatusForbidden)
	data[map[string]string](t, s.do(http.MethodDelete, "/api/reviews/"+first.ID, guest, nil), http.StatusOK)

	got = data[HomeDTO](t, s.do(http.MethodGet, "/api/homes/"+home.ID, nobody, nil), http.StatusOK)
	assert.Equal(t, 5.0, got.AverageRating)
	assert.Equal(t, 1, got.ReviewsCount)
}

func TestWishlist(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	a := s.createHome(100)
	b := s.createHome(120)
	c := s.createHome(90)

	for _, id := range []string{a.ID, b.ID, c.ID} {
		data[[]WishlistItemDTO](t, s.do(http.MethodPost, "/api/wishlist", guest, map[string]string{"home_id": id}), http.StatusCreated)
	}
	failure(t, s.do(http.MethodPost, "/api/wishlist", guest, map[string]string{"home_id": a.ID}), http.StatusConflict)

	items := data[[]WishlistItemDTO](t, s.do(http.MethodDelete, "/api/wishlist/"+b.ID, guest, nil), http.StatusOK)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].HomeID)
	assert.Equal(t, 1, items[0].Priority)
	assert.Equal(t, c.ID, items[1].HomeID)
	assert.Equal(t, 2, items[1].Priority)

	other := data[[]WishlistItemDTO](t, s.do(http.MethodGet, "/api/wishlist", guest2, nil), http.StatusOK)
	assert.Empty(t, other)

	failure(t, s.do(http.MethodGet, "/api/wishlist", nobody, nil), http.StatusUnauthorized)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestManualLedgerEntry(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	home := s.createHome(100)
	booking := data[BookingDTO](t,
		s.do(http.MethodPost, "/api/bookings", guest, bookingBody(home.ID, "2024-03-01")),
		http.StatusCreated)

	body := map[string]any{
		"booking_id": booking.ID,
		"type":       "adjustment",
		"credit":     "15",
		"accounts":   map[string]string{"from": "escrow_account", "to": "customer_wallet"},
		"note":       "Goodwill",
	}
	failure(t, s.do(http.MethodPost, "/api/ledger/entries", owner, body), http.StatusForbidden)

	// Escrow of a pending booking belongs to checkout.
	rejected := failure(t, s.do(http.MethodPost, "/api/ledger/entries", admin, body), http.StatusBadRequest)
	assert.Equal(t, "state", rejected.Kind)

	payout := map[string]any{
		"booking_id": booking.ID,
		"type":       "payout_owner",
		"credit":     "90",
		"owner_id":   "owner-1",
		"accounts":   map[string]string{"from": "escrow_account", "to": "owner_wallet"},
	}
	rejected = failure(t, s.do(http.MethodPost, "/api/ledger/entries", admin, payout), http.StatusBadRequest)
	assert.Equal(t, "validation", rejected.Kind)
	assert.Equal(t, "type", rejected.Field)

	data[BookingDTO](t, s.do(http.MethodPut, "/api/bookings/"+booking.ID+"/cancel", guest, nil), http.StatusOK)

	entry := data[LedgerEntryDTO](t, s.do(http.MethodPost, "/api/ledger/entries", admin, body), http.StatusCreated)
	assert.Equal(t, "15.00", entry.Credit)
	assert.Equal(t, "adjustment", entry.Type)
	assert.Equal(t, "admin-1", entry.CreatedBy)

	dash := data[AdminDashboardDTO](t, s.do(http.MethodGet, "/api/ledger/admin/dashboard", admin, nil), http.StatusOK)
	assert.Equal(t, "85.00", dash.EscrowBalance)

	body["credit"] = "100"
	failure(t, s.do(http.MethodPost, "/api/ledger/entries", admin, body), http.StatusBadRequest)
}

func TestAuditReport(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	home := s.createHome(100)
	data[BookingDTO](t, s.do(http.MethodPost, "/api/bookings", guest, bookingBody(home.ID, "2024-03-01")), http.StatusCreated)

	failure(t, s.do(http.MethodGet, "/api/ledger/admin/audit", guest, nil), http.StatusForbidden)

	report := data[AuditReportDTO](t, s.do(http.MethodGet, "/api/ledger/admin/audit", admin, nil), http.StatusOK)
	assert.True(t, report.OK)
	assert.Equal(t, 1, report.Bookings)
	assert.Equal(t, "100.00", report.EscrowBalance)

	_, ok := s.handler.Auditor.LastReport()
	assert.True(t, ok, "first request stores the report")
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestIdempotentBookingReplay(t *testing.T) {
	// GIVEN: The idempotency middleware
	// WHEN: A booking request is retried with the same key
	// THEN: The stored response is replayed and only one booking exists;
	//       reusing the key for a different request is a conflict

	s := newTestServer(t, serverOptions{idempotency: true})
	home := s.createHome(100)
	body := bookingBody(home.ID, "2024-03-01", "2024-03-02")

	first := s.do(http.MethodPost, "/api/bookings", guest, body, idempotency.HeaderKey, "k-1")
	created := data[BookingDTO](t, first, http.StatusCreated)
	assert.Empty(t, first.Header().Get(idempotency.HeaderReplay))

	second := s.do(http.MethodPost, "/api/bookings", guest, body, idempotency.HeaderKey, "k-1")
	replayed := data[BookingDTO](t, second, http.StatusCreated)
	assert.Equal(t, "true", second.Header().Get(idempotency.HeaderReplay))
	assert.Equal(t, created.ID, replayed.ID)

	all := data[[]BookingDTO](t, s.do(http.MethodGet, "/api/bookings", nobody, nil), http.StatusOK)
	assert.Len(t, all, 1)

	other := bookingBody(home.ID, "2024-04-01")
	reused := failure(t, s.do(http.MethodPost, "/api/bookings", guest, other, idempotency.HeaderKey, "k-1"), http.StatusConflict)
	assert.Equal(t, "conflict", reused.Kind)

	// Keys are scoped per actor.
	data[BookingDTO](t, s.do(http.MethodPost, "/api/bookings", guest2, other, idempotency.HeaderKey, "k-1"), http.StatusCreated)
}
