package models

// Employee is a directory entry with its per-category budget ledger.
type Employee struct {
	ID         string               `json:"employeeId" yaml:"id"`
	Name       string               `json:"name" yaml:"name"`
	Email      string               `json:"email" yaml:"email"`
	Phone      string               `json:"phone,omitempty" yaml:"phone"`
	Department string               `json:"department,omitempty" yaml:"department"`
	Budgets    map[Category]float64 `json:"budgets" yaml:"budgets"`
	Expenses   map[Category]float64 `json:"expenses" yaml:"expenses"`
}

// Remaining returns the unspent budget for a category.
func (e *Employee) Remaining(c Category) float64 {
	return e.Budgets[c] - e.Expenses[c]
}
