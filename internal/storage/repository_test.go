package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fiado/internal/core"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "fiado.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	repo.SetClock(func() time.Time { return testNow })
	return repo
}

func firstItem() core.LineItem {
	return core.LineItem{Date: "2024-03-05", Product: "arroz", Amount: core.Money{Cents: 1000}}
}

func TestMigrationsSeedAdmin(t *testing.T) {
	repo := newTestRepo(t)

	admin, err := repo.GetUserByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatalf("seeded admin not found: %v", err)
	}
	if admin.Role != core.RoleAdmin {
		t.Errorf("seeded role = %q, want admin", admin.Role)
	}
	if admin.PasswordHash == "" {
		t.Error("seeded admin has no password hash")
	}
}

func TestCreateOpenAndRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	st, err := repo.CreateOpen(ctx, 7, 1, "2024-03", core.Money{Cents: 500}, firstItem())
	if err != nil {
		t.Fatalf("CreateOpen() error = %v", err)
	}
	if st.ID == 0 || st.Items[0].ID == 0 {
		t.Error("ids not assigned")
	}

	found, ok, err := repo.FindOpen(ctx, 7, "2024-03")
	if err != nil || !ok {
		t.Fatalf("FindOpen() = %v, %v", ok, err)
	}
	if found.CarryOver.Cents != 500 {
		t.Errorf("carry over = %d, want 500", found.CarryOver.Cents)
	}
	if found.BalanceDue.Cents != 1500 {
		t.Errorf("balance due = %d, want 1500", found.BalanceDue.Cents)
	}
	if len(found.Items) != 1 || found.Items[0].Product != "arroz" {
		t.Errorf("items round-trip broken: %+v", found.Items)
	}
	if !found.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want %v", found.CreatedAt, testNow)
	}
}

func TestCreateOpen_DuplicateViaUniqueIndex(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateOpen(ctx, 7, 1, "2024-03", core.Money{}, firstItem()); err != nil {
		t.Fatal(err)
	}
	_, err := repo.CreateOpen(ctx, 7, 1, "2024-03", core.Money{}, firstItem())
	if !errors.Is(err, core.ErrDuplicateOpenStatement) {
		t.Errorf("duplicate CreateOpen error = %v, want ErrDuplicateOpenStatement", err)
	}
}

func TestAppendItemAndClose(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	st, err := repo.CreateOpen(ctx, 7, 1, "2024-03", core.Money{}, firstItem())
	if err != nil {
		t.Fatal(err)
	}
	updated, err := repo.AppendItem(ctx, st.ID, core.LineItem{Date: "2024-03-20", Product: "aceite", Amount: core.Money{Cents: 735}})
	if err != nil {
		t.Fatalf("AppendItem() error = %v", err)
	}
	if updated.Total.Cents != 1735 {
		t.Errorf("total = %d, want 1735", updated.Total.Cents)
	}

	closed, err := repo.CloseStatement(ctx, st.ID, core.Money{Cents: 1000})
	if err != nil {
		t.Fatalf("CloseStatement() error = %v", err)
	}
	if closed.Status != core.StatusClosed {
		t.Errorf("status = %q, want closed", closed.Status)
	}
	if closed.BalanceDue.Cents != 735 {
		t.Errorf("balance due = %d, want 735", closed.BalanceDue.Cents)
	}
	if closed.ClosedAt == nil {
		t.Fatal("ClosedAt is nil")
	}

	// Closing marks the statement for export.
	pending, err := repo.GetPendingExportStatements(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != st.ID {
		t.Errorf("pending exports = %+v, want the closed statement", pending)
	}

	if _, err := repo.CloseStatement(ctx, st.ID, core.Money{Cents: 1}); !errors.Is(err, core.ErrStatementNotOpen) {
		t.Errorf("re-close error = %v, want ErrStatementNotOpen", err)
	}
	if _, err := repo.AppendItem(ctx, st.ID, firstItem()); !errors.Is(err, core.ErrStatementNotOpen) {
		t.Errorf("append after close error = %v, want ErrStatementNotOpen", err)
	}

	// Fully paid statements end as paid.
	st2, err := repo.CreateOpen(ctx, 8, 1, "2024-03", core.Money{}, firstItem())
	if err != nil {
		t.Fatal(err)
	}
	paid, err := repo.CloseStatement(ctx, st2.ID, core.Money{Cents: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if paid.Status != core.StatusPaid {
		t.Errorf("status = %q, want paid", paid.Status)
	}
}

func TestExportStateTransitions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	st, err := repo.CreateOpen(ctx, 7, 1, "2024-03", core.Money{}, firstItem())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CloseStatement(ctx, st.ID, core.Money{}); err != nil {
		t.Fatal(err)
	}

	if err := repo.MarkExported(ctx, st.ID); err != nil {
		t.Fatalf("MarkExported() error = %v", err)
	}
	pending, err := repo.GetPendingExportStatements(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after MarkExported = %d, want 0", len(pending))
	}

	if err := repo.MarkExportError(ctx, st.ID); err != nil {
		t.Fatalf("MarkExportError() error = %v", err)
	}
	pending, _ = repo.GetPendingExportStatements(ctx, 10)
	if len(pending) != 0 {
		t.Error("errored statements must not be retried by the sweep")
	}
}

func TestFindByStatusAndLists(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	st, err := repo.CreateOpen(ctx, 7, 1, "2024-03", core.Money{}, firstItem())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CloseStatement(ctx, st.ID, core.Money{Cents: 400}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateOpen(ctx, 7, 1, "2024-04", core.Money{Cents: 600}, firstItem()); err != nil {
		t.Fatal(err)
	}

	closed, ok, err := repo.FindByStatus(ctx, 7, "2024-03", core.StatusClosed)
	if err != nil || !ok {
		t.Fatalf("FindByStatus() = %v, %v", ok, err)
	}
	if closed.BalanceDue.Cents != 600 {
		t.Errorf("closed balance = %d, want 600", closed.BalanceDue.Cents)
	}

	byCustomer, err := repo.ListForCustomer(ctx, 7)
	if err != nil || len(byCustomer) != 2 {
		t.Errorf("ListForCustomer = %d, %v; want 2", len(byCustomer), err)
	}
	byStore, err := repo.ListForStore(ctx, 1)
	if err != nil || len(byStore) != 2 {
		t.Errorf("ListForStore = %d, %v; want 2", len(byStore), err)
	}

	if _, err := repo.GetStatement(ctx, 9999); !errors.Is(err, core.ErrStatementNotFound) {
		t.Errorf("unknown statement error = %v, want ErrStatementNotFound", err)
	}
}

func TestUserAndStoreDirectories(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, core.User{Username: "maria", PasswordHash: "hash", Role: core.RoleCustomer, Name: "Maria"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if _, err := repo.CreateUser(ctx, core.User{Username: "maria", PasswordHash: "hash", Role: core.RoleCustomer, Name: "Dup"}); !errors.Is(err, core.ErrUserExists) {
		t.Errorf("duplicate username error = %v, want ErrUserExists", err)
	}

	got, err := repo.GetUser(ctx, u.ID)
	if err != nil || got.Username != "maria" {
		t.Errorf("GetUser = %+v, %v", got, err)
	}
	if got.StoreID != 0 {
		t.Errorf("unassigned store id = %d, want 0", got.StoreID)
	}

	st, err := repo.CreateStore(ctx, core.Store{Name: "Tienda Central", AdminID: u.ID})
	if err != nil {
		t.Fatalf("CreateStore() error = %v", err)
	}
	if err := repo.AssignStore(ctx, u.ID, st.ID); err != nil {
		t.Fatalf("AssignStore() error = %v", err)
	}
	got, _ = repo.GetUser(ctx, u.ID)
	if got.StoreID != st.ID {
		t.Errorf("assigned store id = %d, want %d", got.StoreID, st.ID)
	}

	if err := repo.AssignStore(ctx, 9999, st.ID); !errors.Is(err, core.ErrUserNotFound) {
		t.Errorf("assign to unknown user error = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.GetStore(ctx, 9999); !errors.Is(err, core.ErrStoreNotFound) {
		t.Errorf("unknown store error = %v, want ErrStoreNotFound", err)
	}

	stores, err := repo.ListStores(ctx)
	if err != nil || len(stores) != 1 {
		t.Errorf("ListStores = %d, %v; want 1", len(stores), err)
	}
	// Seeded admin plus maria.
	users, err := repo.ListUsers(ctx)
	if err != nil || len(users) != 2 {
		t.Errorf("ListUsers = %d, %v; want 2", len(users), err)
	}
}
