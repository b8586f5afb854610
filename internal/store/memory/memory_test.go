package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"fiado/internal/core"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return NewWithClock(func() time.Time { return testNow })
}

func firstItem() core.LineItem {
	return core.LineItem{Date: "2024-03-05", Product: "arroz", Amount: core.Money{Cents: 1000}}
}

func TestCreateOpenAndFindOpen(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	st, err := s.CreateOpen(ctx, 7, 1, "2024-03", core.Money{}, firstItem())
	if err != nil {
		t.Fatalf("CreateOpen() error = %v", err)
	}
	if st.ID == 0 {
		t.Error("statement id not assigned")
	}
	if st.Items[0].ID == 0 {
		t.Error("item id not assigned")
	}
	if !st.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want %v", st.CreatedAt, testNow)
	}

	found, ok, err := s.FindOpen(ctx, 7, "2024-03")
	if err != nil || !ok {
		t.Fatalf("FindOpen() = %v, %v", ok, err)
	}
	if found.ID != st.ID {
		t.Errorf("found id = %d, want %d", found.ID, st.ID)
	}
}

func TestCreateOpen_Duplicate(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if _, err := s.CreateOpen(ctx, 7, 1, "2024-03", core.Money{}, firstItem()); err != nil {
		t.Fatal(err)
	}
	_, err := s.CreateOpen(ctx, 7, 1, "2024-03", core.Money{}, firstItem())
	if !errors.Is(err, core.ErrDuplicateOpenStatement) {
		t.Errorf("second CreateOpen error = %v, want ErrDuplicateOpenStatement", err)
	}

	// A different customer or month is a different key.
	if _, err := s.CreateOpen(ctx, 8, 1, "2024-03", core.Money{}, firstItem()); err != nil {
		t.Errorf("other customer CreateOpen error = %v", err)
	}
	if _, err := s.CreateOpen(ctx, 7, 1, "2024-04", core.Money{}, firstItem()); err != nil {
		t.Errorf("other month CreateOpen error = %v", err)
	}
}

func TestAppendItemRecomputesTotals(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	st, err := s.CreateOpen(ctx, 7, 1, "2024-03", core.Money{Cents: 500}, firstItem())
	if err != nil {
		t.Fatal(err)
	}

	updated, err := s.AppendItem(ctx, st.ID, core.LineItem{Date: "2024-03-20", Product: "aceite", Amount: core.Money{Cents: 250}})
	if err != nil {
		t.Fatalf("AppendItem() error = %v", err)
	}
	if updated.Total.Cents != 1250 {
		t.Errorf("total = %d, want 1250", updated.Total.Cents)
	}
	if updated.BalanceDue.Cents != 1750 {
		t.Errorf("balance due = %d, want 1750", updated.BalanceDue.Cents)
	}
	if len(updated.Items) != 2 {
		t.Errorf("items = %d, want 2", len(updated.Items))
	}
	if updated.Items[1].ID == updated.Items[0].ID {
		t.Error("item ids must be distinct")
	}
}

func TestCloseStatementLifecycle(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	st, err := s.CreateOpen(ctx, 7, 1, "2024-03", core.Money{}, firstItem())
	if err != nil {
		t.Fatal(err)
	}

	closed, err := s.CloseStatement(ctx, st.ID, core.Money{Cents: 400})
	if err != nil {
		t.Fatalf("CloseStatement() error = %v", err)
	}
	if closed.Status != core.StatusClosed {
		t.Errorf("status = %q, want closed", closed.Status)
	}
	if closed.BalanceDue.Cents != 600 {
		t.Errorf("balance due = %d, want 600", closed.BalanceDue.Cents)
	}
	if closed.ClosedAt == nil || !closed.ClosedAt.Equal(testNow) {
		t.Errorf("ClosedAt = %v, want %v", closed.ClosedAt, testNow)
	}

	if _, err := s.CloseStatement(ctx, st.ID, core.Money{Cents: 600}); !errors.Is(err, core.ErrStatementNotOpen) {
		t.Errorf("re-close error = %v, want ErrStatementNotOpen", err)
	}
	if _, err := s.AppendItem(ctx, st.ID, firstItem()); !errors.Is(err, core.ErrStatementNotOpen) {
		t.Errorf("append after close error = %v, want ErrStatementNotOpen", err)
	}

	if _, ok, _ := s.FindOpen(ctx, 7, "2024-03"); ok {
		t.Error("closed statement still reported as open")
	}
	if _, ok, _ := s.FindByStatus(ctx, 7, "2024-03", core.StatusClosed); !ok {
		t.Error("closed statement not found by status")
	}
}

func TestListScoping(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if _, err := s.CreateOpen(ctx, 7, 1, "2024-03", core.Money{}, firstItem()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateOpen(ctx, 8, 2, "2024-03", core.Money{}, firstItem()); err != nil {
		t.Fatal(err)
	}

	byCustomer, err := s.ListForCustomer(ctx, 7)
	if err != nil || len(byCustomer) != 1 {
		t.Errorf("ListForCustomer = %d statements, err %v; want 1", len(byCustomer), err)
	}
	byStore, err := s.ListForStore(ctx, 2)
	if err != nil || len(byStore) != 1 {
		t.Errorf("ListForStore = %d statements, err %v; want 1", len(byStore), err)
	}
	if byStore[0].CustomerID != 8 {
		t.Errorf("store 2 statement customer = %d, want 8", byStore[0].CustomerID)
	}
}

func TestReturnedStatementsAreCopies(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	st, err := s.CreateOpen(ctx, 7, 1, "2024-03", core.Money{}, firstItem())
	if err != nil {
		t.Fatal(err)
	}
	st.Items[0].Product = "mutated"
	st.Total = core.Money{Cents: 999999}

	reloaded, err := s.GetStatement(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Items[0].Product != "arroz" {
		t.Error("caller mutation leaked into the store")
	}
	if reloaded.Total.Cents != 1000 {
		t.Error("caller mutation of totals leaked into the store")
	}
}

func TestUserDirectory(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, core.User{Username: "maria", PasswordHash: "x", Role: core.RoleCustomer, Name: "Maria"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if _, err := s.CreateUser(ctx, core.User{Username: "maria", PasswordHash: "x", Role: core.RoleCustomer, Name: "Dup"}); !errors.Is(err, core.ErrUserExists) {
		t.Errorf("duplicate username error = %v, want ErrUserExists", err)
	}

	byName, err := s.GetUserByUsername(ctx, "maria")
	if err != nil || byName.ID != u.ID {
		t.Errorf("GetUserByUsername = %+v, %v", byName, err)
	}
	if _, err := s.GetUser(ctx, 999); !errors.Is(err, core.ErrUserNotFound) {
		t.Errorf("unknown user error = %v, want ErrUserNotFound", err)
	}

	if err := s.AssignStore(ctx, u.ID, 3); err != nil {
		t.Fatalf("AssignStore() error = %v", err)
	}
	reloaded, _ := s.GetUser(ctx, u.ID)
	if reloaded.StoreID != 3 {
		t.Errorf("store id = %d, want 3", reloaded.StoreID)
	}
}

func TestStoreDirectory(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	st, err := s.CreateStore(ctx, core.Store{Name: "Tienda Central", AdminID: 1})
	if err != nil {
		t.Fatalf("CreateStore() error = %v", err)
	}
	if !st.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want clock value", st.CreatedAt)
	}

	got, err := s.GetStore(ctx, st.ID)
	if err != nil || got.Name != "Tienda Central" {
		t.Errorf("GetStore = %+v, %v", got, err)
	}
	if _, err := s.GetStore(ctx, 99); !errors.Is(err, core.ErrStoreNotFound) {
		t.Errorf("unknown store error = %v, want ErrStoreNotFound", err)
	}

	all, err := s.ListStores(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("ListStores = %d, %v; want 1", len(all), err)
	}
}
