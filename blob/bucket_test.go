package blob_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stay-engine/blob"
)

func open(t *testing.T, target string, maxSize int64) *blob.Bucket {
	t.Helper()
	b, err := blob.Open(context.Background(), target, "/uploads/", maxSize)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func get(b *blob.Bucket, method, url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(method, url, nil))
	return rec
}

func TestBucket_PutAndServe(t *testing.T) {
	// GIVEN: A directory bucket and an in-memory bucket
	// WHEN: An image is stored
	// THEN: Its URL is under the base URL and serves the same bytes

	dir := filepath.Join(t.TempDir(), "uploads")
	for name, target := range map[string]string{"dir": dir, "mem": "mem://"} {
		t.Run(name, func(t *testing.T) {
			b := open(t, target, 0)

			url, err := b.Put(context.Background(), "homes/home-1/img-1.jpg", strings.NewReader("jpeg bytes"))
			require.NoError(t, err)
			assert.Equal(t, "/uploads/homes/home-1/img-1.jpg", url)

			rec := get(b, http.MethodGet, url)
			assert.Equal(t, http.StatusOK, rec.Code)
			body, _ := io.ReadAll(rec.Body)
			assert.Equal(t, "jpeg bytes", string(body))
			assert.Equal(t, "10", rec.Header().Get("Content-Length"))

			assert.Equal(t, http.StatusNotFound, get(b, http.MethodGet, "/uploads/homes/missing.jpg").Code)
			assert.Equal(t, http.StatusMethodNotAllowed, get(b, http.MethodPost, url).Code)
		})
	}

	_, err := os.Stat(dir)
	assert.NoError(t, err, "a plain directory is created")
}

func TestBucket_Rejects(t *testing.T) {
	b := open(t, "mem://", 4)
	ctx := context.Background()

	for _, name := range []string{"", "../etc/passwd", "/abs.jpg", "a/../../b.jpg"} {
		_, err := b.Put(ctx, name, strings.NewReader("x"))
		assert.ErrorIs(t, err, blob.ErrInvalidName, "name %q", name)
	}

	_, err := b.Put(ctx, "big.jpg", strings.NewReader("too large"))
	assert.ErrorContains(t, err, "exceeds")
	assert.Equal(t, http.StatusNotFound, get(b, http.MethodGet, "/uploads/big.jpg").Code, "an oversized upload is not kept")

	_, err = blob.Open(ctx, "nosuchscheme://bucket", "/uploads", 0)
	assert.Error(t, err)
}
