package idempotency_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stay-engine/auth"
	"github.com/warp/stay-engine/idempotency"
	"github.com/warp/stay-engine/logging"
)

func newTestStore(t *testing.T) *idempotency.Store {
	t.Helper()
	s, err := idempotency.Open(filepath.Join(t.TempDir(), "idem.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	fp := idempotency.Fingerprint("POST", "/api/bookings", []byte(`{"a":1}`))

	rec, claimed, err := s.Begin("guest-1:k1", fp)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, idempotency.StateInFlight, rec.State)

	_, _, err = s.Begin("guest-1:k1", fp)
	assert.ErrorIs(t, err, idempotency.ErrInFlight)

	require.NoError(t, s.Complete("guest-1:k1", 201, nil, []byte(`{"success":true}`)))

	rec, claimed, err = s.Begin("guest-1:k1", fp)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, 201, rec.Status)
	assert.Equal(t, `{"success":true}`, string(rec.Body))

	_, _, err = s.Begin("guest-1:k1", idempotency.Fingerprint("POST", "/api/bookings", []byte(`{"a":2}`)))
	assert.ErrorIs(t, err, idempotency.ErrKeyReused)

	assert.ErrorIs(t, s.Complete("guest-1:k1", 200, nil, nil), idempotency.ErrNotInFlight)
}

func TestStore_AbortReleasesKey(t *testing.T) {
	s := newTestStore(t)
	_, claimed, err := s.Begin("k", "fp")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, s.Abort("k"))
	rec, err := s.Get("k")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, claimed, err = s.Begin("k", "fp")
	require.NoError(t, err)
	assert.True(t, claimed)

	assert.NoError(t, s.Abort("never-seen"))
}

func TestMiddleware_ReplaysResponse(t *testing.T) {
	// GIVEN: A handler that counts invocations
	// WHEN: The same keyed POST is sent twice
	// THEN: The handler runs once and the retry gets the identical response

	s := newTestStore(t)
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"call":` + string(rune('0'+n)) + `}`))
	})
	onError := func(w http.ResponseWriter, _ *http.Request, err error) {
		if idempotency.IsClientError(err) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}
	h := auth.Middleware(auth.Header{}, onError)(idempotency.Middleware(s, logging.Discard(), onError)(handler))

	send := func(body string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(body))
		r.Header.Set(idempotency.HeaderKey, "abc")
		r.Header.Set(auth.HeaderActorID, "guest-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	first := send(`{"home":"h1"}`)
	second := send(`{"home":"h1"}`)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(idempotency.HeaderReplay))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))

	reused := send(`{"home":"h2"}`)
	assert.Equal(t, http.StatusConflict, reused.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMiddleware_ServerErrorsAreNotStored(t *testing.T) {
	s := newTestStore(t)
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	h := idempotency.Middleware(s, logging.Discard(), func(w http.ResponseWriter, _ *http.Request, _ error) {
		w.WriteHeader(http.StatusConflict)
	})(handler)

	for _, want := range []int{http.StatusInternalServerError, http.StatusOK, http.StatusOK} {
		r := httptest.NewRequest(http.MethodPut, "/api/bookings/b1/cancel", nil)
		r.Header.Set(idempotency.HeaderKey, "retry-me")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, want, rec.Code)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestMiddleware_IgnoresReadsAndUnkeyed(t *testing.T) {
	s := newTestStore(t)
	var calls atomic.Int32
	h := idempotency.Middleware(s, logging.Discard(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "/api/homes", nil)
		r.Header.Set(idempotency.HeaderKey, "k")
		h.ServeHTTP(httptest.NewRecorder(), r)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/homes", nil))
	}
	assert.Equal(t, int32(4), calls.Load())
}
