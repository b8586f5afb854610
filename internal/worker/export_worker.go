// Package worker turns settled statements into report files. It is
// driven by statement-closed messages from AMQP, with a periodic sweep
// over pending rows as a backup in case messages are lost.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fiado/internal/amqp"
	"fiado/internal/core"
	"fiado/internal/export"
)

// StatementSource is the slice of the repository the worker needs.
type StatementSource interface {
	GetStatement(ctx context.Context, statementID int64) (core.Statement, error)
	GetPendingExportStatements(ctx context.Context, limit int) ([]core.Statement, error)
	MarkExported(ctx context.Context, id int64) error
	MarkExportError(ctx context.Context, id int64) error
}

// ClosedMirror receives a copy of every exported statement. Implemented
// by the Sheets client; nil disables mirroring.
type ClosedMirror interface {
	AppendClosed(ctx context.Context, st core.Statement) error
}

type ExportWorker struct {
	storage   StatementSource
	mirror    ClosedMirror
	reportDir string
	batchSize int
}

func NewExportWorker(storage StatementSource, mirror ClosedMirror, reportDir string, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		mirror:    mirror,
		reportDir: reportDir,
		batchSize: batchSize,
	}
}

// HandleClosedMessage processes a single statement-closed message.
func (w *ExportWorker) HandleClosedMessage(ctx context.Context, msg *amqp.StatementClosedMessage) error {
	slog.InfoContext(ctx, "Processing statement-closed message",
		"statement_id", msg.StatementID,
		"month", msg.Month)

	st, err := w.storage.GetStatement(ctx, msg.StatementID)
	if err != nil {
		return fmt.Errorf("get statement from storage: %w", err)
	}

	if err := w.exportStatement(ctx, st); err != nil {
		if markErr := w.storage.MarkExportError(ctx, st.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", st.ID, "error", markErr)
		}
		return fmt.Errorf("export statement: %w", err)
	}

	return w.storage.MarkExported(ctx, st.ID)
}

// ProcessPending sweeps statements whose report was never generated.
// Backup mechanism in case AMQP messages are lost.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportStatements(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending export statements: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending statement exports", "count", len(pending))

	for _, st := range pending {
		if err := w.exportStatement(ctx, st); err != nil {
			slog.ErrorContext(ctx, "Failed to export statement", "id", st.ID, "error", err)
			if markErr := w.storage.MarkExportError(ctx, st.ID); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark export error", "id", st.ID, "error", markErr)
			}
			continue
		}
		if err := w.storage.MarkExported(ctx, st.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark statement exported", "id", st.ID, "error", err)
		}
	}

	return nil
}

// Run sweeps pending exports on the given interval until the context is
// cancelled. An immediate sweep at startup recovers work missed while
// the worker was down.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.ProcessPending(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup export sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Export worker stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Export sweep failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) exportStatement(ctx context.Context, st core.Statement) error {
	dir := filepath.Join(w.reportDir, fmt.Sprintf("customer-%d", st.CustomerID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	base := filepath.Join(dir, string(st.Month))

	xlsx, err := export.BuildStatementXLSX(st)
	if err != nil {
		return fmt.Errorf("build xlsx: %w", err)
	}
	if err := os.WriteFile(base+".xlsx", xlsx, 0644); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}

	pdf, err := export.BuildStatementPDF(st)
	if err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	if err := os.WriteFile(base+".pdf", pdf, 0644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}

	if w.mirror != nil {
		// The files on disk are the deliverable; a mirror failure is
		// logged and retried on the next close, never fatal.
		if err := w.mirror.AppendClosed(ctx, st); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror statement", "id", st.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Statement report generated",
		"statement_id", st.ID,
		"customer_id", st.CustomerID,
		"month", st.Month,
		"path", base)
	return nil
}
