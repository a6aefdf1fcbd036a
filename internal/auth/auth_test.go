package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var testSecret = []byte("test-secret")

func TestTokenRoundTrip(t *testing.T) {
	tokenString, err := NewToken(testSecret, "user-1", RoleCustomer, time.Minute)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}

	claims, err := ParseToken(testSecret, tokenString)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != RoleCustomer {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestParseToken(t *testing.T) {
	t.Run("rejects wrong secret", func(t *testing.T) {
		tokenString, err := NewToken(testSecret, "user-1", RoleCustomer, time.Minute)
		if err != nil {
			t.Fatalf("failed to mint token: %v", err)
		}
		if _, err := ParseToken([]byte("other-secret"), tokenString); err == nil {
			t.Error("expected error for wrong secret")
		}
	})

	t.Run("rejects expired token", func(t *testing.T) {
		tokenString, err := NewToken(testSecret, "user-1", RoleCustomer, -time.Minute)
		if err != nil {
			t.Fatalf("failed to mint token: %v", err)
		}
		if _, err := ParseToken(testSecret, tokenString); err == nil {
			t.Error("expected error for expired token")
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := ParseToken(testSecret, "not-a-token"); err == nil {
			t.Error("expected error for malformed token")
		}
	})
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc123", "abc123", true},
		{"Bearer  abc123", "abc123", true},
		{"bearer abc123", "", false},
		{"Bearer ", "", false},
		{"abc123", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		token, ok := BearerToken(tc.header)
		if token != tc.token || ok != tc.ok {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tc.header, token, ok, tc.token, tc.ok)
		}
	}
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wrap := Middleware(testSecret, logger)

	var gotClaims Claims
	var called bool
	protected := wrap(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = FromContext(r.Context())
		called = true
		w.WriteHeader(http.StatusOK)
	})

	t.Run("passes claims through on a valid token", func(t *testing.T) {
		called = false
		tokenString, err := NewToken(testSecret, "rest-7", RoleRestaurantAdmin, time.Minute)
		if err != nil {
			t.Fatalf("failed to mint token: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		rec := httptest.NewRecorder()
		protected(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if !called {
			t.Fatal("expected handler to be called")
		}
		if gotClaims.Subject != "rest-7" || gotClaims.Role != RoleRestaurantAdmin {
			t.Errorf("unexpected claims: %+v", gotClaims)
		}
	})

	t.Run("rejects a missing token with 401", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()
		protected(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
		if called {
			t.Error("handler should not be called")
		}
	})

	t.Run("rejects an invalid token with 403", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", "Bearer forged")
		rec := httptest.NewRecorder()
		protected(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", rec.Code)
		}
		if called {
			t.Error("handler should not be called")
		}
	})
}
