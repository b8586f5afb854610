package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fiado/internal/core"
)

var testSecret = []byte("super-secret-test-key")

func testUser() core.User {
	return core.User{ID: 7, Username: "admin", Role: core.RoleAdmin, StoreID: 3}
}

func TestIssueAndParse(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)

	signed, err := tokens.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	id, err := tokens.Parse(signed)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if id.UserID != 7 {
		t.Errorf("UserID = %d, want 7", id.UserID)
	}
	if id.Role != core.RoleAdmin {
		t.Errorf("Role = %q, want admin", id.Role)
	}
	if id.StoreID != 3 {
		t.Errorf("StoreID = %d, want 3", id.StoreID)
	}
	if !id.IsAdmin() {
		t.Error("IsAdmin() = false for admin role")
	}
}

func TestParse_WrongSecret(t *testing.T) {
	signed, err := NewTokens([]byte("another-secret-entirely"), time.Hour).Issue(testUser())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewTokens(testSecret, time.Hour).Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
	}
}

func TestParse_Expired(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	signed, err := tokens.Issue(testUser())
	if err != nil {
		t.Fatal(err)
	}

	fresh := NewTokens(testSecret, time.Hour)
	if _, err := fresh.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token Parse() error = %v, want ErrInvalidToken", err)
	}
}

func TestParse_Garbage(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := tokens.Parse(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("123456")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "123456" {
		t.Error("hash equals plaintext")
	}
	if err := CheckPassword(hash, "123456"); err != nil {
		t.Errorf("CheckPassword() error = %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestCheckPassword_LegacySeedHash(t *testing.T) {
	// Hash carried over from the first deployment's seeded admin.
	const seeded = "$2a$10$XOPbrlUPQdwdJUpSrIF6X.LbE14qsMmKGhM1A8W9iqaG3vv1BD7WC"
	if err := CheckPassword(seeded, "123456"); err != nil {
		t.Errorf("seeded hash CheckPassword() error = %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	signed, err := tokens.Issue(testUser())
	if err != nil {
		t.Fatal(err)
	}

	var got Identity
	handler := NewMiddleware(tokens).Wrap(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		setHeader  func(*http.Request)
		wantStatus int
	}{
		{
			name:       "missing token",
			setHeader:  func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "bearer token",
			setHeader:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+signed) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "legacy header",
			setHeader:  func(r *http.Request) { r.Header.Set("x-auth-token", signed) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "malformed authorization",
			setHeader:  func(r *http.Request) { r.Header.Set("Authorization", signed) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			setHeader:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setHeader(req)
			rec := httptest.NewRecorder()
			handler(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && got.UserID != 7 {
				t.Errorf("identity UserID = %d, want 7", got.UserID)
			}
		})
	}
}
