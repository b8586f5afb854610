package store

import (
	"context"

	"fiado/internal/core"
)

// Ports for the persistence backends. The SQLite repository and the
// in-memory store both implement them; the ledger service only ever
// talks to these interfaces.
type (
	// StatementStore owns the statement collection. Implementations
	// guarantee at most one open statement per (customer, month) and
	// apply every mutation atomically (compute-then-replace).
	StatementStore interface {
		// FindOpen returns the open statement for the key, if any.
		FindOpen(ctx context.Context, customerID int64, month core.MonthKey) (core.Statement, bool, error)

		// FindByStatus returns the customer's statement for the month
		// with the exact status, if any.
		FindByStatus(ctx context.Context, customerID int64, month core.MonthKey, status core.Status) (core.Statement, bool, error)

		// ListForCustomer returns every statement of the customer.
		ListForCustomer(ctx context.Context, customerID int64) ([]core.Statement, error)

		// ListForStore returns every statement scoped to the store.
		ListForStore(ctx context.Context, storeID int64) ([]core.Statement, error)

		// CreateOpen creates an open statement around its first item.
		// Fails with core.ErrDuplicateOpenStatement when an open
		// statement already exists for the key.
		CreateOpen(ctx context.Context, customerID, storeID int64, month core.MonthKey, carryOver core.Money, first core.LineItem) (core.Statement, error)

		// AppendItem appends the item and recomputes totals. Fails with
		// core.ErrStatementNotOpen when the statement is not open.
		AppendItem(ctx context.Context, statementID int64, item core.LineItem) (core.Statement, error)

		// CloseStatement settles the statement. One-shot; a second call
		// fails with core.ErrStatementNotOpen.
		CloseStatement(ctx context.Context, statementID int64, paid core.Money) (core.Statement, error)

		// GetStatement returns a statement by id.
		GetStatement(ctx context.Context, statementID int64) (core.Statement, error)
	}

	// UserDirectory manages the user accounts the auth layer reads.
	UserDirectory interface {
		GetUserByUsername(ctx context.Context, username string) (core.User, error)
		GetUser(ctx context.Context, id int64) (core.User, error)
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		ListUsers(ctx context.Context) ([]core.User, error)
		// AssignStore links an admin user to the store it owns.
		AssignStore(ctx context.Context, userID, storeID int64) error
	}

	// StoreDirectory manages the retail stores.
	StoreDirectory interface {
		CreateStore(ctx context.Context, s core.Store) (core.Store, error)
		GetStore(ctx context.Context, id int64) (core.Store, error)
		ListStores(ctx context.Context) ([]core.Store, error)
	}
)
