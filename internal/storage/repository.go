// Package storage persists the ledger in SQLite. Statement mutations
// run in a transaction: load, apply the core transition, write back.
// No statement row is ever updated field by field.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fiado/internal/core"

	_ "modernc.org/sqlite"
)

// Export states for closed statements, drained by the report worker.
const (
	ExportPending = "pending"
	ExportDone    = "done"
	ExportError   = "error"
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SetClock overrides the repository clock. Tests use it for
// deterministic timestamps.
func (r *SQLiteRepository) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

const statementColumns = `id, customer_id, store_id, month, total_cents, carry_over_cents,
	balance_due_cents, status, paid_cents, created_at, closed_at`

func (r *SQLiteRepository) FindOpen(ctx context.Context, customerID int64, month core.MonthKey) (core.Statement, bool, error) {
	return r.FindByStatus(ctx, customerID, month, core.StatusOpen)
}

func (r *SQLiteRepository) FindByStatus(ctx context.Context, customerID int64, month core.MonthKey, status core.Status) (core.Statement, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+statementColumns+` FROM statements
		 WHERE customer_id = ? AND month = ? AND status = ?`,
		customerID, string(month), string(status))
	st, err := r.scanStatement(ctx, r.db, row)
	if err == sql.ErrNoRows {
		return core.Statement{}, false, nil
	}
	if err != nil {
		return core.Statement{}, false, fmt.Errorf("find statement %d/%s/%s: %w", customerID, month, status, err)
	}
	return st, true, nil
}

func (r *SQLiteRepository) ListForCustomer(ctx context.Context, customerID int64) ([]core.Statement, error) {
	return r.listStatements(ctx, `customer_id = ?`, customerID)
}

func (r *SQLiteRepository) ListForStore(ctx context.Context, storeID int64) ([]core.Statement, error) {
	return r.listStatements(ctx, `store_id = ?`, storeID)
}

func (r *SQLiteRepository) listStatements(ctx context.Context, where string, arg int64) ([]core.Statement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	var out []core.Statement
	for rows.Next() {
		st, err := r.scanStatement(ctx, r.db, rows)
		if err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statements: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) CreateOpen(ctx context.Context, customerID, storeID int64, month core.MonthKey, carryOver core.Money, first core.LineItem) (core.Statement, error) {
	if err := first.Validate(); err != nil {
		return core.Statement{}, err
	}
	st := core.NewStatement(customerID, storeID, month, carryOver, first, r.now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Statement{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO statements (customer_id, store_id, month, total_cents, carry_over_cents,
		 balance_due_cents, status, paid_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		customerID, storeID, string(month), st.Total.Cents, st.CarryOver.Cents,
		st.BalanceDue.Cents, string(st.Status), st.CreatedAt.Format(time.RFC3339))
	if err != nil {
		// The partial unique index allows one open statement per
		// (customer, month).
		if isUniqueViolation(err) {
			return core.Statement{}, core.ErrDuplicateOpenStatement
		}
		return core.Statement{}, fmt.Errorf("insert statement: %w", err)
	}
	st.ID, err = res.LastInsertId()
	if err != nil {
		return core.Statement{}, fmt.Errorf("statement id: %w", err)
	}

	itemRes, err := tx.ExecContext(ctx,
		`INSERT INTO line_items (statement_id, item_date, product, amount_cents) VALUES (?, ?, ?, ?)`,
		st.ID, first.Date, first.Product, first.Amount.Cents)
	if err != nil {
		return core.Statement{}, fmt.Errorf("insert first item: %w", err)
	}
	st.Items[0].ID, err = itemRes.LastInsertId()
	if err != nil {
		return core.Statement{}, fmt.Errorf("item id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Statement{}, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Statement created",
		"id", st.ID,
		"customer_id", customerID,
		"month", month,
		"carry_over_cents", carryOver.Cents)
	return st, nil
}

func (r *SQLiteRepository) AppendItem(ctx context.Context, statementID int64, item core.LineItem) (core.Statement, error) {
	if err := item.Validate(); err != nil {
		return core.Statement{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Statement{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	st, err := r.getStatementTx(ctx, tx, statementID)
	if err != nil {
		return core.Statement{}, err
	}

	updated, err := st.WithItem(item)
	if err != nil {
		return core.Statement{}, err
	}

	itemRes, err := tx.ExecContext(ctx,
		`INSERT INTO line_items (statement_id, item_date, product, amount_cents) VALUES (?, ?, ?, ?)`,
		statementID, item.Date, item.Product, item.Amount.Cents)
	if err != nil {
		return core.Statement{}, fmt.Errorf("insert item: %w", err)
	}
	updated.Items[len(updated.Items)-1].ID, err = itemRes.LastInsertId()
	if err != nil {
		return core.Statement{}, fmt.Errorf("item id: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE statements SET total_cents = ?, balance_due_cents = ? WHERE id = ? AND status = 'open'`,
		updated.Total.Cents, updated.BalanceDue.Cents, statementID)
	if err != nil {
		return core.Statement{}, fmt.Errorf("update totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Statement{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (r *SQLiteRepository) CloseStatement(ctx context.Context, statementID int64, paid core.Money) (core.Statement, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Statement{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	st, err := r.getStatementTx(ctx, tx, statementID)
	if err != nil {
		return core.Statement{}, err
	}

	closed, err := st.Close(paid, r.now())
	if err != nil {
		return core.Statement{}, err
	}

	// Guarding on status = 'open' makes the close one-shot even if a
	// racing transaction got here first.
	res, err := tx.ExecContext(ctx,
		`UPDATE statements
		 SET status = ?, paid_cents = ?, balance_due_cents = ?, closed_at = ?, export_state = ?
		 WHERE id = ? AND status = 'open'`,
		string(closed.Status), closed.PaidAmount.Cents, closed.BalanceDue.Cents,
		closed.ClosedAt.Format(time.RFC3339), ExportPending, statementID)
	if err != nil {
		return core.Statement{}, fmt.Errorf("update statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Statement{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.Statement{}, core.ErrStatementNotOpen
	}

	if err := tx.Commit(); err != nil {
		return core.Statement{}, fmt.Errorf("commit: %w", err)
	}
	return closed, nil
}

func (r *SQLiteRepository) GetStatement(ctx context.Context, statementID int64) (core.Statement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE id = ?`, statementID)
	st, err := r.scanStatement(ctx, r.db, row)
	if err == sql.ErrNoRows {
		return core.Statement{}, core.ErrStatementNotFound
	}
	if err != nil {
		return core.Statement{}, fmt.Errorf("get statement %d: %w", statementID, err)
	}
	return st, nil
}

// GetPendingExportStatements returns closed statements whose report has
// not been generated yet.
func (r *SQLiteRepository) GetPendingExportStatements(ctx context.Context, limit int) ([]core.Statement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE export_state = ? ORDER BY id LIMIT ?`,
		ExportPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending export statements: %w", err)
	}
	defer rows.Close()

	var out []core.Statement
	for rows.Next() {
		st, err := r.scanStatement(ctx, r.db, rows)
		if err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// MarkExported marks a statement's report as generated.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE statements SET export_state = ? WHERE id = ?`, ExportDone, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	slog.InfoContext(ctx, "Statement marked as exported", "id", id)
	return nil
}

// MarkExportError marks a statement whose report generation failed; the
// periodic sweep will not retry it until it is reset manually.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE statements SET export_state = ? WHERE id = ?`, ExportError, id); err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	slog.WarnContext(ctx, "Statement marked with export error", "id", id)
	return nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, store_id, name FROM users WHERE username = ?`, username))
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, store_id, name FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	var storeID any
	if u.StoreID != 0 {
		storeID = u.StoreID
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, store_id, name) VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.PasswordHash, string(u.Role), storeID, u.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrUserExists
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("user id: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, password_hash, role, store_id, name FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []core.User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AssignStore(ctx context.Context, userID, storeID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET store_id = ? WHERE id = ?`, storeID, userID)
	if err != nil {
		return fmt.Errorf("assign store: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

func (r *SQLiteRepository) CreateStore(ctx context.Context, s core.Store) (core.Store, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO stores (name, admin_id, created_at) VALUES (?, ?, ?)`,
		s.Name, s.AdminID, s.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return core.Store{}, fmt.Errorf("insert store: %w", err)
	}
	s.ID, err = res.LastInsertId()
	if err != nil {
		return core.Store{}, fmt.Errorf("store id: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) GetStore(ctx context.Context, id int64) (core.Store, error) {
	var s core.Store
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, admin_id, created_at FROM stores WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &s.AdminID, &createdAt)
	if err == sql.ErrNoRows {
		return core.Store{}, core.ErrStoreNotFound
	}
	if err != nil {
		return core.Store{}, fmt.Errorf("get store %d: %w", id, err)
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return s, nil
}

func (r *SQLiteRepository) ListStores(ctx context.Context) ([]core.Store, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, admin_id, created_at FROM stores ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var out []core.Store
	for rows.Next() {
		var s core.Store
		var createdAt string
		if err := rows.Scan(&s.ID, &s.Name, &s.AdminID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *SQLiteRepository) scanStatement(ctx context.Context, q querier, row rowScanner) (core.Statement, error) {
	var st core.Statement
	var month, status, createdAt string
	var closedAt sql.NullString
	err := row.Scan(&st.ID, &st.CustomerID, &st.StoreID, &month, &st.Total.Cents,
		&st.CarryOver.Cents, &st.BalanceDue.Cents, &status, &st.PaidAmount.Cents,
		&createdAt, &closedAt)
	if err != nil {
		return core.Statement{}, err
	}
	st.Month = core.MonthKey(month)
	st.Status = core.Status(status)
	st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if closedAt.Valid {
		t, err := time.Parse(time.RFC3339, closedAt.String)
		if err == nil {
			st.ClosedAt = &t
		}
	}

	items, err := r.loadItems(ctx, q, st.ID)
	if err != nil {
		return core.Statement{}, err
	}
	st.Items = items
	return st, nil
}

func (r *SQLiteRepository) loadItems(ctx context.Context, q querier, statementID int64) ([]core.LineItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, item_date, product, amount_cents FROM line_items WHERE statement_id = ? ORDER BY id`,
		statementID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	var items []core.LineItem
	for rows.Next() {
		var it core.LineItem
		if err := rows.Scan(&it.ID, &it.Date, &it.Product, &it.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *SQLiteRepository) getStatementTx(ctx context.Context, tx *sql.Tx, statementID int64) (core.Statement, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE id = ?`, statementID)
	st, err := r.scanStatement(ctx, tx, row)
	if err == sql.ErrNoRows {
		return core.Statement{}, core.ErrStatementNotFound
	}
	if err != nil {
		return core.Statement{}, fmt.Errorf("load statement %d: %w", statementID, err)
	}
	return st, nil
}

func (r *SQLiteRepository) scanUser(row rowScanner) (core.User, error) {
	var u core.User
	var role string
	var storeID sql.NullInt64
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &storeID, &u.Name)
	if err == sql.ErrNoRows {
		return core.User{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = core.Role(role)
	if storeID.Valid {
		u.StoreID = storeID.Int64
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
