/*
handlers.go - HTTP API handlers for the booking ledger

PURPOSE:
  Exposes the engine over REST. Handlers parse and validate the request,
  take the actor from the request context, call exactly one engine
  operation and serialize the result. They never touch a store directly.

ARCHITECTURE:
  Handler holds:
  - Engine:  every domain operation
  - Homes:   read-through cache for GET /api/homes/{id} (optional)
  - Auditor: last ledger audit report (optional)
  - Resetter: scenario loader's data wipe (optional)

REQUEST FLOW:
  1. auth.Middleware resolved the actor
  2. decode + validate the body (validator/v10)
  3. call the engine
  4. writeData / writeError

ERROR HANDLING:
  writeError is the only place mapping errors to statuses:
  - 400: validation, state
  - 401: no or bad credentials
  - 403: unauthorized
  - 404: not found
  - 409: conflict, idempotency key misuse
  - 500: internal (logged with the request ID, message hidden)

SEE ALSO:
  - homes.go, bookings.go, ledger.go, reviews.go, wishlist.go: endpoints
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/stay-engine/auth"
	"github.com/warp/stay-engine/cache"
	"github.com/warp/stay-engine/engine"
	"github.com/warp/stay-engine/idempotency"
)

const maxJSONBody = 1 << 20

// HomeCache serves property reads. cache.Properties implements it.
type HomeCache interface {
	Get(ctx context.Context, id engine.PropertyID, load cache.Loader) (*engine.Property, error)
	Clear()
}

// Resetter wipes all data before a scenario is loaded.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	Engine   *engine.Engine
	Homes    HomeCache
	Auditor  *LedgerAuditor
	Resetter Resetter
	Log      logrus.FieldLogger

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over eng. Optional collaborators are set on
// the returned struct.
func NewHandler(eng *engine.Engine, log logrus.FieldLogger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Engine:   eng,
		Log:      log.WithField("component", "api"),
		validate: v,
	}
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &engine.ValidationError{Field: "body", Message: "required"}
		}
		return &engine.ValidationError{Field: "body", Message: "malformed JSON: " + err.Error()}
	}
	return h.check(dst)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(r *http.Request, dst any) error {
	err := h.decode(r, dst)
	var ve *engine.ValidationError
	if errors.As(err, &ve) && ve.Field == "body" && ve.Message == "required" {
		return h.check(dst)
	}
	return err
}

// check runs the struct validator and reports the first failing field.
func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &engine.ValidationError{Field: "body", Message: err.Error()}
	}
	fe := fieldErrs[0]
	return &engine.ValidationError{Field: fieldPath(fe.Namespace()), Message: describe(fe)}
}

// fieldPath drops the struct name from "CreateHomeRequest.location.city".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// requireActor writes 401 and returns false when the request is anonymous.
func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (engine.Actor, bool) {
	actor := auth.ActorFrom(r.Context())
	if actor.IsZero() {
		writeJSON(w, http.StatusUnauthorized, Envelope{Error: &ErrorBody{
			Kind:    "unauthenticated",
			Message: "authentication required",
		}})
		return engine.Actor{}, false
	}
	return actor, true
}

func urlParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

// writeError maps err to a status code and writes the error envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := h.classify(err)
	if status >= http.StatusInternalServerError {
		h.Log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
	}
	writeJSON(w, status, Envelope{Error: body})
}

func (h *Handler) classify(err error) (int, *ErrorBody) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnknownRole):
		return http.StatusUnauthorized, &ErrorBody{Kind: "unauthenticated", Message: err.Error()}
	case idempotency.IsClientError(err):
		return http.StatusConflict, &ErrorBody{Kind: string(engine.KindConflict), Message: err.Error()}
	}

	body := &ErrorBody{Kind: string(engine.KindOf(err)), Message: err.Error()}
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}

	switch engine.KindOf(err) {
	case engine.KindValidation, engine.KindState:
		return http.StatusBadRequest, body
	case engine.KindNotFound:
		return http.StatusNotFound, body
	case engine.KindConflict:
		return http.StatusConflict, body
	case engine.KindUnauthorized:
		return http.StatusForbidden, body
	default:
		body.Message = "internal error"
		return http.StatusInternalServerError, body
	}
}
