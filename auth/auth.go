/*
Package auth resolves the acting identity of an HTTP request.

PURPOSE:
  The engine never authenticates anyone; it receives an engine.Actor on
  every call. This package turns a request into that Actor.

PROVIDERS:
  JWT:    Authorization: Bearer <HS256 token> with claims sub + role
  Header: X-Actor-ID / X-Actor-Role, for local development and demos

  A request without credentials resolves to the zero Actor. Handlers that
  need an identity answer 401 for it; invalid credentials are rejected by
  the middleware with 401 immediately.
*/
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/warp/stay-engine/engine"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownRole        = errors.New("unknown role")
)

// Provider extracts the actor of a request. It returns the zero Actor and a
// nil error when the request carries no credentials.
type Provider interface {
	Actor(r *http.Request) (engine.Actor, error)
}

type ctxKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor engine.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// ActorFrom returns the actor stored by Middleware, or the zero Actor.
func ActorFrom(ctx context.Context) engine.Actor {
	actor, _ := ctx.Value(ctxKey{}).(engine.Actor)
	return actor
}

// Middleware resolves the actor once per request. onError writes the
// response for rejected credentials.
func Middleware(p Provider, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := p.Actor(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// ParseRole maps a claim or header value to a role. Empty means guest.
func ParseRole(s string) (engine.Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "guest", "user":
		return engine.RoleGuest, nil
	case "owner":
		return engine.RoleOwner, nil
	case "admin":
		return engine.RoleAdmin, nil
	default:
		return "", ErrUnknownRole
	}
}

// =============================================================================
// HEADER PROVIDER
// =============================================================================

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Header trusts the X-Actor-* headers. Never expose it publicly.
type Header struct{}

func (Header) Actor(r *http.Request) (engine.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderActorID))
	if id == "" {
		return engine.Actor{}, nil
	}
	role, err := ParseRole(r.Header.Get(HeaderActorRole))
	if err != nil {
		return engine.Actor{}, err
	}
	return engine.Actor{ID: engine.ActorID(id), Role: role}, nil
}
