package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/warp/stay-engine/auth"
)

const (
	HeaderKey    = "Idempotency-Key"
	HeaderReplay = "Idempotent-Replayed"

	maxBody = 1 << 20
)

// Middleware replays stored responses for retried POST, PUT and DELETE
// requests that carry an Idempotency-Key. Server errors (5xx) are not
// stored, so the client may retry them for real.
func Middleware(s *Store, log logrus.FieldLogger, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
			if err != nil {
				onError(w, r, err)
				return
			}
			if len(body) > maxBody {
				// Too large to fingerprint and store; served without replay.
				r.Body = readCloser{io.MultiReader(bytes.NewReader(body), r.Body), r.Body}
				log.WithField("key", key).Debug("idempotency skipped for large body")
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scoped := string(auth.ActorFrom(r.Context()).ID) + ":" + key
			rec, claimed, err := s.Begin(scoped, Fingerprint(r.Method, r.URL.Path, body))
			if err != nil {
				onError(w, r, err)
				return
			}
			if !claimed {
				replay(w, rec)
				return
			}

			capture := &recorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if p := recover(); p != nil {
					s.Abort(scoped)
					panic(p)
				}
			}()
			next.ServeHTTP(capture, r)

			if capture.status >= 500 {
				if err := s.Abort(scoped); err != nil {
					log.WithError(err).WithField("key", key).Warn("idempotency abort failed")
				}
				return
			}
			header := map[string]string{"Content-Type": capture.Header().Get("Content-Type")}
			if err := s.Complete(scoped, capture.status, header, capture.body.Bytes()); err != nil {
				log.WithError(err).WithField("key", key).Warn("idempotency record not stored")
			}
		})
	}
}

// IsClientError reports whether err comes from misuse of a key.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInFlight) || errors.Is(err, ErrKeyReused)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func replay(w http.ResponseWriter, rec *Record) {
	for k, v := range rec.Header {
		if v != "" {
			w.Header().Set(k, v)
		}
	}
	w.Header().Set(HeaderReplay, "true")
	w.WriteHeader(rec.Status)
	w.Write(rec.Body)
}

type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

type readCloser struct {
	io.Reader
	io.Closer
}
