// Package employees stores the employee directory and per-category budget ledger in PostgreSQL.
package employees

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/common/validation"
	"receipt-agent/internal/models"
)

const (
	selectEmployee = `SELECT id, name, email, phone, department FROM employees WHERE id = $1`
	selectBudgets  = `SELECT expense_type, budget, spent FROM employee_budgets WHERE employee_id = $1`

	listEmployees = `SELECT id, name, email, phone, department FROM employees ORDER BY id`
	listBudgets   = `SELECT employee_id, expense_type, budget, spent FROM employee_budgets ORDER BY employee_id, expense_type`

	upsertEmployee = `INSERT INTO employees (id, name, email, phone, department, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			department = EXCLUDED.department,
			updated_at = NOW()`

	upsertBudget = `INSERT INTO employee_budgets (employee_id, expense_type, budget, spent, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (employee_id, expense_type) DO UPDATE SET
			budget = EXCLUDED.budget,
			spent = EXCLUDED.spent,
			updated_at = NOW()`
)

// Directory reads and writes employee profiles together with their ledger rows.
type Directory struct {
	db     *sql.DB
	logger logger.Logger
}

func NewDirectory(db *sql.DB, log logger.Logger) *Directory {
	return &Directory{db: db, logger: log}
}

// Get returns one employee or EMPLOYEE_NOT_FOUND.
func (d *Directory) Get(ctx context.Context, employeeID string) (*models.Employee, error) {
	emp := newEmployee()
	err := d.db.QueryRowContext(ctx, selectEmployee, employeeID).
		Scan(&emp.ID, &emp.Name, &emp.Email, &emp.Phone, &emp.Department)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewEmployeeNotFoundError(employeeID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("get employee", err)
	}

	rows, err := d.db.QueryContext(ctx, selectBudgets, employeeID)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("get budgets", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cat string
		var budget, spent float64
		if err := rows.Scan(&cat, &budget, &spent); err != nil {
			return nil, apperrors.NewDatabaseQueryFailedError("scan budget", err)
		}
		emp.Budgets[models.Category(cat)] = budget
		emp.Expenses[models.Category(cat)] = spent
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("get budgets", err)
	}
	return emp, nil
}

// List returns every employee ordered by id.
func (d *Directory) List(ctx context.Context) ([]*models.Employee, error) {
	rows, err := d.db.QueryContext(ctx, listEmployees)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list employees", err)
	}
	defer rows.Close()

	byID := map[string]*models.Employee{}
	var out []*models.Employee
	for rows.Next() {
		emp := newEmployee()
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Email, &emp.Phone, &emp.Department); err != nil {
			return nil, apperrors.NewDatabaseQueryFailedError("scan employee", err)
		}
		byID[emp.ID] = emp
		out = append(out, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list employees", err)
	}

	budgetRows, err := d.db.QueryContext(ctx, listBudgets)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list budgets", err)
	}
	defer budgetRows.Close()

	for budgetRows.Next() {
		var id, cat string
		var budget, spent float64
		if err := budgetRows.Scan(&id, &cat, &budget, &spent); err != nil {
			return nil, apperrors.NewDatabaseQueryFailedError("scan budget", err)
		}
		if emp, ok := byID[id]; ok {
			emp.Budgets[models.Category(cat)] = budget
			emp.Expenses[models.Category(cat)] = spent
		}
	}
	if err := budgetRows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list budgets", err)
	}
	return out, nil
}

// Upsert writes the profile and one ledger row per ledgered category in a single transaction.
// Unknown or unledgered categories in the input are rejected.
func (d *Directory) Upsert(ctx context.Context, emp *models.Employee) error {
	if emp.ID == "" {
		return apperrors.NewInvalidSubmissionError("employee id is required")
	}
	if emp.Email != "" && !validation.ValidateEmail(emp.Email) {
		return apperrors.NewInvalidSubmissionError("invalid email " + emp.Email)
	}
	for cat := range emp.Budgets {
		if !cat.Ledgered() {
			return apperrors.NewInvalidExpenseTypeError(string(cat))
		}
	}
	for cat := range emp.Expenses {
		if !cat.Ledgered() {
			return apperrors.NewInvalidExpenseTypeError(string(cat))
		}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError("begin upsert", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, upsertEmployee, emp.ID, emp.Name, emp.Email, emp.Phone, emp.Department); err != nil {
		return apperrors.NewDatabaseQueryFailedError("upsert employee", err)
	}
	for _, cat := range ledgered() {
		if _, err := tx.ExecContext(ctx, upsertBudget, emp.ID, string(cat), emp.Budgets[cat], emp.Expenses[cat]); err != nil {
			return apperrors.NewDatabaseQueryFailedError("upsert budget", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewDatabaseQueryFailedError("commit upsert", err)
	}

	d.logger.Info("employee upserted", map[string]interface{}{"employeeId": emp.ID})
	return nil
}

func newEmployee() *models.Employee {
	return &models.Employee{
		Budgets:  map[models.Category]float64{},
		Expenses: map[models.Category]float64{},
	}
}

func ledgered() []models.Category {
	var out []models.Category
	for _, c := range models.Categories {
		if c.Ledgered() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
