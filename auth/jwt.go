package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/stay-engine/engine"
)

// Claims is the token payload: the subject is the actor ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWT validates HS256 bearer tokens.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) *JWT {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken signs a token for actor. Used by tooling and tests; the
// service itself does not log anyone in.
func (j *JWT) IssueToken(actor engine.Actor) (string, error) {
	now := j.now()
	claims := &Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(actor.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ParseToken verifies the signature and expiry and returns the actor.
func (j *JWT) ParseToken(raw string) (engine.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return engine.Actor{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if !token.Valid || claims.Subject == "" {
		return engine.Actor{}, ErrInvalidCredentials
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return engine.Actor{}, err
	}
	return engine.Actor{ID: engine.ActorID(claims.Subject), Role: role}, nil
}

func (j *JWT) Actor(r *http.Request) (engine.Actor, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return engine.Actor{}, nil
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return engine.Actor{}, ErrInvalidCredentials
	}
	return j.ParseToken(strings.TrimSpace(raw))
}
