package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fiado/internal/amqp"
	"fiado/internal/core"
)

type fakeSource struct {
	statements map[int64]core.Statement
	pending    []core.Statement
	exported   []int64
	failed     []int64
}

func (f *fakeSource) GetStatement(_ context.Context, id int64) (core.Statement, error) {
	st, ok := f.statements[id]
	if !ok {
		return core.Statement{}, core.ErrStatementNotFound
	}
	return st, nil
}

func (f *fakeSource) GetPendingExportStatements(_ context.Context, limit int) ([]core.Statement, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeSource) MarkExported(_ context.Context, id int64) error {
	f.exported = append(f.exported, id)
	return nil
}

func (f *fakeSource) MarkExportError(_ context.Context, id int64) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeMirror struct {
	rows []core.Statement
	err  error
}

func (m *fakeMirror) AppendClosed(_ context.Context, st core.Statement) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, st)
	return nil
}

func testStatement(id int64) core.Statement {
	closedAt := time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC)
	return core.Statement{
		ID:         id,
		CustomerID: 7,
		StoreID:    1,
		Month:      "2024-03",
		Items: []core.LineItem{
			{ID: 1, Date: "2024-03-05", Product: "arroz", Amount: core.Money{Cents: 1235}},
		},
		Total:      core.Money{Cents: 1235},
		BalanceDue: core.Money{Cents: 735},
		Status:     core.StatusClosed,
		PaidAmount: core.Money{Cents: 500},
		CreatedAt:  time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		ClosedAt:   &closedAt,
	}
}

func TestHandleClosedMessage(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{statements: map[int64]core.Statement{42: testStatement(42)}}
	mirror := &fakeMirror{}
	w := NewExportWorker(source, mirror, dir, 10)

	msg := &amqp.StatementClosedMessage{StatementID: 42, CustomerID: 7, Month: "2024-03"}
	if err := w.HandleClosedMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleClosedMessage() error = %v", err)
	}

	base := filepath.Join(dir, "customer-7", "2024-03")
	for _, ext := range []string{".xlsx", ".pdf"} {
		if _, err := os.Stat(base + ext); err != nil {
			t.Errorf("expected report file %s: %v", base+ext, err)
		}
	}
	if len(source.exported) != 1 || source.exported[0] != 42 {
		t.Errorf("exported = %v, want [42]", source.exported)
	}
	if len(mirror.rows) != 1 {
		t.Errorf("mirror rows = %d, want 1", len(mirror.rows))
	}
}

func TestHandleClosedMessage_UnknownStatement(t *testing.T) {
	source := &fakeSource{statements: map[int64]core.Statement{}}
	w := NewExportWorker(source, nil, t.TempDir(), 10)

	msg := &amqp.StatementClosedMessage{StatementID: 99}
	if err := w.HandleClosedMessage(context.Background(), msg); err == nil {
		t.Fatal("HandleClosedMessage() expected error for unknown statement")
	}
	if len(source.exported) != 0 {
		t.Errorf("nothing should be marked exported, got %v", source.exported)
	}
}

func TestProcessPending(t *testing.T) {
	source := &fakeSource{
		pending: []core.Statement{testStatement(1), testStatement(2)},
	}
	w := NewExportWorker(source, nil, t.TempDir(), 10)

	if err := w.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if len(source.exported) != 2 {
		t.Errorf("exported = %v, want 2 ids", source.exported)
	}
}

func TestProcessPending_MirrorFailureIsNotFatal(t *testing.T) {
	source := &fakeSource{pending: []core.Statement{testStatement(1)}}
	mirror := &fakeMirror{err: errors.New("spreadsheet unavailable")}
	w := NewExportWorker(source, mirror, t.TempDir(), 10)

	if err := w.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if len(source.exported) != 1 {
		t.Errorf("statement should still be marked exported, got %v", source.exported)
	}
	if len(source.failed) != 0 {
		t.Errorf("mirror failure must not mark export error, got %v", source.failed)
	}
}
