// Package auth supplies the identity the ledger trusts: it verifies
// credentials at login, issues and parses JWTs, and hands the resulting
// (userId, role, storeId) triple to handlers via the request context.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"fiado/internal/core"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Identity is the pre-validated actor context every ledger operation
// receives. The engine trusts it and performs no credential checks.
type Identity struct {
	UserID  int64
	Role    core.Role
	StoreID int64
}

// IsAdmin reports whether the actor holds the admin role.
func (id Identity) IsAdmin() bool { return id.Role == core.RoleAdmin }

// Claims is the JWT payload carried by login tokens.
type Claims struct {
	Role    string `json:"role"`
	StoreID int64  `json:"storeId,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and parses login tokens with an HMAC secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}
}

// Issue signs a token for the user.
func (t *Tokens) Issue(u core.User) (string, error) {
	now := t.now()
	claims := Claims{
		Role:    string(u.Role),
		StoreID: u.StoreID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns the identity it carries.
func (t *Tokens) Parse(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	role, ok := core.NormalizeRole(claims.Role)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	var userID int64
	if _, err := fmt.Sscanf(claims.Subject, "%d", &userID); err != nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: userID, Role: role, StoreID: claims.StoreID}, nil
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
