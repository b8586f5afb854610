package services

import (
	"context"
	"fmt"

	"fiado/internal/core"
	"fiado/internal/store"
)

// CarryOverResolver decides the carry-over for a newly created
// statement: the previous month's balance, but only when that month was
// explicitly closed with a balance still due.
type CarryOverResolver struct {
	statements store.StatementStore
}

func NewCarryOverResolver(statements store.StatementStore) *CarryOverResolver {
	return &CarryOverResolver{statements: statements}
}

// Resolve computes the carry-over snapshot at statement-creation time.
// Only a statement with status exactly "closed" contributes: a "paid"
// month owes nothing, and an unclosed previous month carries nothing
// even if it has a large running total. Unpaid debt crosses a month
// boundary only once the month has been closed.
func (r *CarryOverResolver) Resolve(ctx context.Context, customerID int64, month core.MonthKey) (core.Money, error) {
	prev, err := core.PreviousMonthKey(month)
	if err != nil {
		return core.Money{}, fmt.Errorf("previous month of %s: %w", month, err)
	}
	st, ok, err := r.statements.FindByStatus(ctx, customerID, prev, core.StatusClosed)
	if err != nil {
		return core.Money{}, fmt.Errorf("find closed statement %d/%s: %w", customerID, prev, err)
	}
	if !ok || st.BalanceDue.Cents <= 0 {
		return core.Money{}, nil
	}
	return st.BalanceDue, nil
}
