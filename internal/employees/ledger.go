package employees

import (
	"context"
	"database/sql"
	"errors"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/models"
)

// The floor keeps a decrement from driving the spent total negative.
const adjustSpent = `UPDATE employee_budgets
	SET spent = GREATEST(0, spent + $3), updated_at = NOW()
	WHERE employee_id = $1 AND expense_type = $2
	RETURNING spent`

// Ledger adjusts spent totals. Only FOOD, TRAVEL and TECH are ledgered.
type Ledger struct {
	db     *sql.DB
	logger logger.Logger
}

func NewLedger(db *sql.DB, log logger.Logger) *Ledger {
	return &Ledger{db: db, logger: log}
}

// Adjust adds amount to (increment) or subtracts it from the spent total and returns the new total.
func (l *Ledger) Adjust(ctx context.Context, employeeID string, cat models.Category, amount float64, increment bool) (float64, error) {
	if !cat.Ledgered() {
		return 0, apperrors.NewInvalidExpenseTypeError(string(cat))
	}
	delta := amount
	if !increment {
		delta = -amount
	}

	var spent float64
	err := l.db.QueryRowContext(ctx, adjustSpent, employeeID, string(cat), delta).Scan(&spent)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.NewEmployeeNotFoundError(employeeID)
	}
	if err != nil {
		return 0, apperrors.NewDatabaseQueryFailedError("adjust budget", err)
	}

	l.logger.Info("expense ledger adjusted", map[string]interface{}{
		"employeeId":  employeeID,
		"expenseType": cat,
		"delta":       delta,
		"spent":       spent,
	})
	return spent, nil
}
