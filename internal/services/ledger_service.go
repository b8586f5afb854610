// Package services orchestrates ledger operations over the statement
// store and the event publisher.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fiado/internal/auth"
	"fiado/internal/core"
	"fiado/internal/store"
)

// ClosePublisher publishes statement-closed events for the export
// pipeline. Implemented by the AMQP client; nil disables publishing.
type ClosePublisher interface {
	PublishStatementClosed(ctx context.Context, st core.Statement) error
}

// PurchaseInput is one purchase to record. Date defaults to the clock's
// current date when empty.
type PurchaseInput struct {
	Product string
	Amount  core.Money
	Date    string // "YYYY-MM-DD"
}

// LedgerService is the public surface of the ledger engine. All
// mutations for the same (customer, month) key are serialized; every
// operation starts with a centralized role guard.
type LedgerService struct {
	statements store.StatementStore
	resolver   *CarryOverResolver
	publisher  ClosePublisher
	keys       *keyedMutex
	now        func() time.Time
}

func NewLedgerService(statements store.StatementStore, publisher ClosePublisher, now func() time.Time) *LedgerService {
	if now == nil {
		now = time.Now
	}
	return &LedgerService{
		statements: statements,
		resolver:   NewCarryOverResolver(statements),
		publisher:  publisher,
		keys:       newKeyedMutex(),
		now:        now,
	}
}

// RecordPurchase appends a purchase to the customer's statement for the
// current month, creating it (with its carry-over snapshot) when absent.
// The month bucket is always the wall-clock current month: a back-dated
// item still posts to the currently open statement.
func (s *LedgerService) RecordPurchase(ctx context.Context, actor auth.Identity, customerID int64, in PurchaseInput) (core.Statement, error) {
	if err := requireAdmin(actor); err != nil {
		return core.Statement{}, err
	}
	if err := in.Amount.Validate(); err != nil {
		return core.Statement{}, core.ErrInvalidAmount
	}
	product := strings.TrimSpace(in.Product)
	if product == "" {
		return core.Statement{}, core.ErrInvalidProduct
	}
	now := s.now()
	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = now.Format("2006-01-02")
	}
	month := core.CurrentMonthKey(now)
	item := core.LineItem{Date: date, Product: product, Amount: in.Amount}

	unlock := s.keys.lock(mutationKey(customerID, month))
	defer unlock()

	st, ok, err := s.statements.FindOpen(ctx, customerID, month)
	if err != nil {
		return core.Statement{}, fmt.Errorf("find open statement: %w", err)
	}
	if ok {
		updated, err := s.statements.AppendItem(ctx, st.ID, item)
		if err != nil {
			return core.Statement{}, fmt.Errorf("append item: %w", err)
		}
		slog.InfoContext(ctx, "Purchase recorded",
			"statement_id", updated.ID,
			"customer_id", customerID,
			"month", month,
			"product", product,
			"amount_cents", in.Amount.Cents,
			"total_cents", updated.Total.Cents)
		return updated, nil
	}

	carry, err := s.resolver.Resolve(ctx, customerID, month)
	if err != nil {
		return core.Statement{}, fmt.Errorf("resolve carry-over: %w", err)
	}
	created, err := s.statements.CreateOpen(ctx, customerID, actor.StoreID, month, carry, item)
	if err != nil {
		return core.Statement{}, fmt.Errorf("create statement: %w", err)
	}
	slog.InfoContext(ctx, "Statement opened",
		"statement_id", created.ID,
		"customer_id", customerID,
		"month", month,
		"carry_over_cents", carry.Cents,
		"amount_cents", in.Amount.Cents)
	return created, nil
}

// CloseStatement settles the open statement for (customer, month). The
// payment may not exceed total + carryOver; the resulting status is
// "paid" when the balance clears, "closed" otherwise.
func (s *LedgerService) CloseStatement(ctx context.Context, actor auth.Identity, customerID int64, month core.MonthKey, paid core.Money) (core.Statement, error) {
	if err := requireAdmin(actor); err != nil {
		return core.Statement{}, err
	}
	if _, err := core.ParseMonthKey(string(month)); err != nil {
		return core.Statement{}, core.ErrInvalidMonthKey
	}

	unlock := s.keys.lock(mutationKey(customerID, month))
	defer unlock()

	st, ok, err := s.statements.FindOpen(ctx, customerID, month)
	if err != nil {
		return core.Statement{}, fmt.Errorf("find open statement: %w", err)
	}
	if !ok {
		return core.Statement{}, core.ErrNoOpenStatement
	}
	if err := paid.ValidateNonNegative(); err != nil {
		return core.Statement{}, core.ErrInvalidPayment
	}
	if paid.Cents > st.TotalDue().Cents {
		return core.Statement{}, core.ErrOverPayment
	}

	closed, err := s.statements.CloseStatement(ctx, st.ID, paid)
	if err != nil {
		return core.Statement{}, fmt.Errorf("close statement: %w", err)
	}
	slog.InfoContext(ctx, "Statement closed",
		"statement_id", closed.ID,
		"customer_id", customerID,
		"month", month,
		"paid_cents", paid.Cents,
		"balance_due_cents", closed.BalanceDue.Cents,
		"status", closed.Status)

	// Publish async export event (non-blocking); the close succeeded
	// locally, so a publish failure must not fail the request.
	if s.publisher != nil {
		if err := s.publisher.PublishStatementClosed(ctx, closed); err != nil {
			slog.ErrorContext(ctx, "Failed to publish statement-closed event",
				"statement_id", closed.ID, "error", err)
		}
	}
	return closed, nil
}

// StatementsForCustomer lists a customer's statements. Customers may
// only read their own; admins only customers' data within their role.
func (s *LedgerService) StatementsForCustomer(ctx context.Context, actor auth.Identity, customerID int64) ([]core.Statement, error) {
	if actor.Role == core.RoleCustomer && actor.UserID != customerID {
		return nil, core.ErrForbidden
	}
	sts, err := s.statements.ListForCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list statements for customer %d: %w", customerID, err)
	}
	return sts, nil
}

// StatementsForStore lists all statements of a store. Admin-only, and
// strictly scoped to the admin's own store.
func (s *LedgerService) StatementsForStore(ctx context.Context, actor auth.Identity, storeID int64) ([]core.Statement, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if actor.StoreID != storeID {
		return nil, core.ErrForbidden
	}
	sts, err := s.statements.ListForStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list statements for store %d: %w", storeID, err)
	}
	return sts, nil
}

// OpenStatementFor returns the open statement for (customer, month), if
// any, under the same scoping rules as StatementsForCustomer.
func (s *LedgerService) OpenStatementFor(ctx context.Context, actor auth.Identity, customerID int64, month core.MonthKey) (core.Statement, bool, error) {
	if actor.Role == core.RoleCustomer && actor.UserID != customerID {
		return core.Statement{}, false, core.ErrForbidden
	}
	if _, err := core.ParseMonthKey(string(month)); err != nil {
		return core.Statement{}, false, core.ErrInvalidMonthKey
	}
	return s.statements.FindOpen(ctx, customerID, month)
}

// GetStatement returns one statement by id. Customers may only read
// their own; admins only statements of their store.
func (s *LedgerService) GetStatement(ctx context.Context, actor auth.Identity, statementID int64) (core.Statement, error) {
	st, err := s.statements.GetStatement(ctx, statementID)
	if err != nil {
		return core.Statement{}, err
	}
	if actor.Role == core.RoleCustomer && actor.UserID != st.CustomerID {
		return core.Statement{}, core.ErrForbidden
	}
	if actor.IsAdmin() && actor.StoreID != st.StoreID {
		return core.Statement{}, core.ErrForbidden
	}
	return st, nil
}

// StoreOutstanding sums the balance still due across a store's closed
// statements, the number the admin dashboard leads with.
func (s *LedgerService) StoreOutstanding(ctx context.Context, actor auth.Identity, storeID int64) (core.Money, error) {
	sts, err := s.StatementsForStore(ctx, actor, storeID)
	if err != nil {
		return core.Money{}, err
	}
	var sum core.Money
	for _, st := range sts {
		if st.Status == core.StatusClosed && st.BalanceDue.Cents > 0 {
			sum = sum.Add(st.BalanceDue)
		}
	}
	return sum, nil
}

// requireAdmin is the single authorization guard for mutations.
func requireAdmin(actor auth.Identity) error {
	if !actor.IsAdmin() {
		return core.ErrForbidden
	}
	return nil
}

func mutationKey(customerID int64, month core.MonthKey) string {
	return fmt.Sprintf("%d/%s", customerID, month)
}
