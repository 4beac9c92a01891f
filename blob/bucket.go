// Package blob stores uploaded images in a gocloud.dev bucket and serves them back.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	gocloud "gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/warp/stay-engine/engine"
)

var ErrInvalidName = errors.New("invalid blob name")

// Bucket writes blobs to a gocloud bucket and returns URLs under BaseURL.
type Bucket struct {
	bucket  *gocloud.Bucket
	baseURL string
	maxSize int64
}

var _ engine.BlobStore = (*Bucket)(nil)

// Open opens target, either a bucket URL ("file:///srv/uploads", "mem://")
// or a plain directory, which is created if missing. maxSize <= 0 means 10 MiB.
func Open(ctx context.Context, target, baseURL string, maxSize int64) (*Bucket, error) {
	var (
		bkt *gocloud.Bucket
		err error
	)
	if strings.Contains(target, "://") {
		bkt, err = gocloud.OpenBucket(ctx, target)
	} else {
		bkt, err = openDir(target)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob bucket %q: %w", target, err)
	}
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &Bucket{bucket: bkt, baseURL: strings.TrimRight(baseURL, "/"), maxSize: maxSize}, nil
}

func openDir(dir string) (*gocloud.Bucket, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return fileblob.OpenBucket(abs, nil)
}

func (b *Bucket) Close() error { return b.bucket.Close() }

// Put stores r under name. The write is committed on success only; an
// oversized or failed upload leaves nothing behind.
func (b *Bucket) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := b.bucket.NewWriter(ctx, name, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open blob writer: %w", err)
	}

	n, err := io.Copy(w, io.LimitReader(r, b.maxSize+1))
	if err == nil && n > b.maxSize {
		err = fmt.Errorf("blob %s exceeds %d bytes", name, b.maxSize)
	}
	if err != nil {
		cancel()
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	return b.baseURL + "/" + name, nil
}

// Handler serves stored blobs; mount it at BaseURL.
func (b *Bucket) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, b.baseURL+"/")
		if validName(key) != nil {
			http.NotFound(w, r)
			return
		}

		rd, err := b.bucket.NewReader(r.Context(), key, nil)
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "failed to read blob", http.StatusInternalServerError)
			return
		}
		defer rd.Close()

		w.Header().Set("Content-Type", rd.ContentType())
		w.Header().Set("Content-Length", strconv.FormatInt(rd.Size(), 10))
		w.Header().Set("Last-Modified", rd.ModTime().UTC().Format(http.TimeFormat))
		if r.Method == http.MethodHead {
			return
		}
		io.Copy(w, rd)
	})
}

func validName(name string) error {
	clean := path.Clean("/" + name)[1:]
	if clean == "" || clean != name || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
