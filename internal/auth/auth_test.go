package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hackgods/clinic-booking/internal/identity"
)

var secret = []byte("test-secret")

func TestIssueParseRoundTrip(t *testing.T) {
	actors := []identity.Actor{
		identity.Student{ID: 21, RollNumber: "21CS001"},
		identity.Doctor{ID: 7, Specialization: "ENT"},
		identity.Resident{ID: 5, Flat: "B-204"},
		identity.Admin{ID: 1},
	}
	for _, want := range actors {
		token, err := Issue(secret, want, time.Hour)
		if err != nil {
			t.Fatalf("Issue(%v): %v", want, err)
		}
		got, err := Parse(secret, token)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if got != want {
			t.Fatalf("got %#v, want %#v", got, want)
		}
	}
}

func TestParseRejects(t *testing.T) {
	good, _ := Issue(secret, identity.Admin{ID: 1}, time.Hour)
	expired, _ := Issue(secret, identity.Admin{ID: 1}, -time.Minute)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             "admin",
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             "janitor",
	})
	janitor, _ := badRole.SignedString(secret)

	cases := map[string]struct {
		token  string
		secret []byte
	}{
		"wrong secret": {good, []byte("other")},
		"expired":      {expired, secret},
		"alg none":     {unsigned, secret},
		"unknown role": {janitor, secret},
		"garbage":      {"not.a.token", secret},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(tc.secret, tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("err = %v, want invalid token", err)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	var seen identity.Actor
	h := Middleware(secret, nil)(RequireActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	token, _ := Issue(secret, identity.Doctor{ID: 7}, time.Hour)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"bad scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/appointments/1", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if d, ok := seen.(identity.Doctor); !ok || d.ID != 7 {
		t.Fatalf("actor = %#v", seen)
	}
}
