package core

import (
	"errors"
	"strings"
	"time"
)

// Statement lifecycle states. A statement is open while purchases
// accumulate, then closed or paid exactly once.
const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
	StatusPaid   Status = "paid"
)

type (
	Status string

	// LineItem is a single purchase on a statement. Immutable once
	// appended; owned exclusively by its parent statement.
	LineItem struct {
		ID      int64  `json:"id"`
		Date    string `json:"date"` // "YYYY-MM-DD"
		Product string `json:"product"`
		Amount  Money  `json:"amount"`
	}

	// Statement is a customer's monthly purchase document. Totals are
	// derived from the items; CarryOver is a snapshot taken at creation
	// and never recomputed.
	Statement struct {
		ID         int64      `json:"id"`
		CustomerID int64      `json:"customerId"`
		StoreID    int64      `json:"storeId"`
		Month      MonthKey   `json:"month"`
		Items      []LineItem `json:"items"`
		Total      Money      `json:"total"`
		CarryOver  Money      `json:"carryOver"`
		BalanceDue Money      `json:"balanceDue"`
		Status     Status     `json:"status"`
		PaidAmount Money      `json:"paidAmount"`
		CreatedAt  time.Time  `json:"createdAt"`
		ClosedAt   *time.Time `json:"closedAt,omitempty"`
	}
)

var (
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidProduct         = errors.New("invalid product")
	ErrInvalidMonthKey        = errors.New("invalid month key")
	ErrInvalidPayment         = errors.New("invalid payment")
	ErrOverPayment            = errors.New("payment exceeds amount due")
	ErrNoOpenStatement        = errors.New("no open statement")
	ErrDuplicateOpenStatement = errors.New("duplicate open statement")
	ErrStatementNotOpen       = errors.New("statement not open")
	ErrStatementNotFound      = errors.New("statement not found")
)

// ValidStatus reports whether s is one of the three lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusClosed, StatusPaid:
		return true
	}
	return false
}

func (li LineItem) Validate() error {
	if len(strings.TrimSpace(li.Product)) == 0 {
		return ErrInvalidProduct
	}
	if err := li.Amount.Validate(); err != nil {
		return err
	}
	return nil
}

// NewStatement builds an open statement around its first item. Statements
// never exist without at least one item.
func NewStatement(customerID, storeID int64, month MonthKey, carryOver Money, first LineItem, at time.Time) Statement {
	s := Statement{
		CustomerID: customerID,
		StoreID:    storeID,
		Month:      month,
		CarryOver:  carryOver,
		Status:     StatusOpen,
		CreatedAt:  at,
	}
	s.Items = append(s.Items, first)
	s.recompute()
	return s
}

// WithItem returns a copy of the statement with the item appended and
// totals recomputed. The receiver is not modified, so stores can apply
// the result atomically (compute-then-replace).
func (s Statement) WithItem(item LineItem) (Statement, error) {
	if s.Status != StatusOpen {
		return Statement{}, ErrStatementNotOpen
	}
	out := s.clone()
	out.Items = append(out.Items, item)
	out.recompute()
	return out, nil
}

// Close settles the statement: BalanceDue becomes
// max(0, total + carryOver - paid) and the status transitions to paid
// when the balance clears, closed otherwise. Closing is one-shot.
func (s Statement) Close(paid Money, at time.Time) (Statement, error) {
	if s.Status != StatusOpen {
		return Statement{}, ErrStatementNotOpen
	}
	out := s.clone()
	due := out.Total.Add(out.CarryOver).Sub(paid)
	if due.Cents < 0 {
		due = Money{}
	}
	out.BalanceDue = due
	out.PaidAmount = paid
	if due.IsZero() {
		out.Status = StatusPaid
	} else {
		out.Status = StatusClosed
	}
	closedAt := at
	out.ClosedAt = &closedAt
	return out, nil
}

// TotalDue is the amount a payment is checked against when closing.
func (s Statement) TotalDue() Money {
	return s.Total.Add(s.CarryOver)
}

// recompute restores the open-statement invariants:
// total = sum(items) and balanceDue = total + carryOver.
func (s *Statement) recompute() {
	var total Money
	for _, it := range s.Items {
		total = total.Add(it.Amount)
	}
	s.Total = total
	s.BalanceDue = total.Add(s.CarryOver)
}

func (s Statement) clone() Statement {
	out := s
	out.Items = append([]LineItem(nil), s.Items...)
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		out.ClosedAt = &t
	}
	return out
}
