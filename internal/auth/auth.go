// Package auth turns HS256 bearer tokens into identity.Actor values.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/identity"
)

const issuer = "clinic-booking"

type contextKey string

const actorKey contextKey = "actor"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carries the actor. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role           string `json:"role"`
	Flat           string `json:"flat,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	Department     string `json:"department,omitempty"`
	RollNumber     string `json:"roll_number,omitempty"`
}

// Issue signs a token for actor valid for ttl.
func Issue(secret []byte, actor identity.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	attrs := identity.AttributesOf(actor)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(actor.UserID(), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:           string(actor.Role()),
		Flat:           attrs.Flat,
		Specialization: attrs.Specialization,
		Department:     attrs.Department,
		RollNumber:     attrs.RollNumber,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its actor.
func Parse(secret []byte, raw string) (identity.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q", ErrInvalidToken, claims.Subject)
	}
	actor, err := identity.New(claims.Role, id, identity.Attributes{
		Flat:           claims.Flat,
		Specialization: claims.Specialization,
		Department:     claims.Department,
		RollNumber:     claims.RollNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return actor, nil
}

func WithActor(ctx context.Context, a identity.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// FromContext returns the authenticated actor, or nil.
func FromContext(ctx context.Context) identity.Actor {
	a, _ := ctx.Value(actorKey).(identity.Actor)
	return a
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// Middleware attaches the actor when a valid token is present. An invalid
// token is rejected; a missing one is left to RequireActor.
func Middleware(secret []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r)
			if !ok {
				if r.Header.Get("Authorization") != "" {
					unauthorized(w, ErrInvalidToken)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			actor, err := Parse(secret, raw)
			if err != nil {
				logger.Debug("rejected token", zap.Error(err))
				unauthorized(w, ErrInvalidToken)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireActor rejects requests that carry no authenticated actor.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			unauthorized(w, ErrMissingToken)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="clinic"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": err.Error()})
}
