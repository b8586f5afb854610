package core

import (
	"errors"
	"strings"
	"time"
)

// Roles the ledger distinguishes. Admins record purchases and close
// statements for their store; customers only read their own statements.
const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

type (
	Role string

	// User is an account in the directory. PasswordHash is a bcrypt
	// hash; the ledger itself only ever reads ID, Role and StoreID.
	User struct {
		ID           int64  `json:"id"`
		Username     string `json:"username"`
		PasswordHash string `json:"-"`
		Role         Role   `json:"role"`
		StoreID      int64  `json:"storeId,omitempty"` // 0 when unassigned
		Name         string `json:"name"`
	}

	// Store is a retail store owned by one admin user.
	Store struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		AdminID   int64     `json:"adminId"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already exists")
	ErrStoreNotFound = errors.New("store not found")
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleAdmin, RoleCustomer:
		return Role(value), true
	default:
		return "", false
	}
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return errors.New("empty username")
	}
	if _, ok := NormalizeRole(string(u.Role)); !ok {
		return errors.New("invalid role")
	}
	return nil
}
