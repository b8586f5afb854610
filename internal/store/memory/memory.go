// Package memory provides an in-memory implementation of the store
// ports, used as the default backend and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fiado/internal/core"
)

type Store struct {
	mu         sync.Mutex
	statements map[int64]core.Statement
	users      map[int64]core.User
	stores     map[int64]core.Store
	nextStmt   int64
	nextItem   int64
	nextUser   int64
	nextStore  int64
	now        func() time.Time
}

func New() *Store {
	return &Store{
		statements: make(map[int64]core.Statement),
		users:      make(map[int64]core.User),
		stores:     make(map[int64]core.Store),
		now:        time.Now,
	}
}

// NewWithClock returns a store whose timestamps come from the given
// clock. Tests use it for deterministic CreatedAt/ClosedAt values.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) FindOpen(_ context.Context, customerID int64, month core.MonthKey) (core.Statement, bool, error) {
	return s.findByStatus(customerID, month, core.StatusOpen)
}

func (s *Store) FindByStatus(_ context.Context, customerID int64, month core.MonthKey, status core.Status) (core.Statement, bool, error) {
	return s.findByStatus(customerID, month, status)
}

func (s *Store) findByStatus(customerID int64, month core.MonthKey, status core.Status) (core.Statement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.statements {
		if st.CustomerID == customerID && st.Month == month && st.Status == status {
			return cloneStatement(st), true, nil
		}
	}
	return core.Statement{}, false, nil
}

func (s *Store) ListForCustomer(_ context.Context, customerID int64) ([]core.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Statement
	for _, st := range s.statements {
		if st.CustomerID == customerID {
			out = append(out, cloneStatement(st))
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) ListForStore(_ context.Context, storeID int64) ([]core.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Statement
	for _, st := range s.statements {
		if st.StoreID == storeID {
			out = append(out, cloneStatement(st))
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) CreateOpen(_ context.Context, customerID, storeID int64, month core.MonthKey, carryOver core.Money, first core.LineItem) (core.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.statements {
		if st.CustomerID == customerID && st.Month == month && st.Status == core.StatusOpen {
			return core.Statement{}, core.ErrDuplicateOpenStatement
		}
	}
	s.nextItem++
	first.ID = s.nextItem
	st := core.NewStatement(customerID, storeID, month, carryOver, first, s.now())
	s.nextStmt++
	st.ID = s.nextStmt
	s.statements[st.ID] = st
	return cloneStatement(st), nil
}

func (s *Store) AppendItem(_ context.Context, statementID int64, item core.LineItem) (core.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statements[statementID]
	if !ok {
		return core.Statement{}, core.ErrStatementNotFound
	}
	s.nextItem++
	item.ID = s.nextItem
	updated, err := st.WithItem(item)
	if err != nil {
		return core.Statement{}, err
	}
	s.statements[statementID] = updated
	return cloneStatement(updated), nil
}

func (s *Store) CloseStatement(_ context.Context, statementID int64, paid core.Money) (core.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statements[statementID]
	if !ok {
		return core.Statement{}, core.ErrStatementNotFound
	}
	updated, err := st.Close(paid, s.now())
	if err != nil {
		return core.Statement{}, err
	}
	s.statements[statementID] = updated
	return cloneStatement(updated), nil
}

func (s *Store) GetStatement(_ context.Context, statementID int64) (core.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statements[statementID]
	if !ok {
		return core.Statement{}, core.ErrStatementNotFound
	}
	return cloneStatement(st), nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return core.User{}, core.ErrUserNotFound
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return core.User{}, core.ErrUserExists
		}
	}
	s.nextUser++
	u.ID = s.nextUser
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AssignStore(_ context.Context, userID, storeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.ErrUserNotFound
	}
	u.StoreID = storeID
	s.users[userID] = u
	return nil
}

func (s *Store) CreateStore(_ context.Context, st core.Store) (core.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextStore++
	st.ID = s.nextStore
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.now()
	}
	s.stores[st.ID] = st
	return st, nil
}

func (s *Store) GetStore(_ context.Context, id int64) (core.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[id]
	if !ok {
		return core.Store{}, core.ErrStoreNotFound
	}
	return st, nil
}

func (s *Store) ListStores(_ context.Context) ([]core.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Store, 0, len(s.stores))
	for _, st := range s.stores {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneStatement(st core.Statement) core.Statement {
	out := st
	out.Items = append([]core.LineItem(nil), st.Items...)
	if st.ClosedAt != nil {
		t := *st.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

func sortByID(sts []core.Statement) {
	sort.Slice(sts, func(i, j int) bool { return sts[i].ID < sts[j].ID })
}
