package tools

import (
	"context"
	"errors"
	"fmt"

	"receipt-agent/internal/common/validation"
	"receipt-agent/internal/geocode"
	"receipt-agent/internal/models"
)

const (
	GetEmployeeData        = "get_employee_data"
	CheckLocationProximity = "check_location_proximity"
	UpdateExpenseBudget    = "update_expense_budget"
	IsDuplicateReceipt     = "is_duplicate_receipt"
	SendEmail              = "send_email"
)

type EmployeeDirectory interface {
	Get(ctx context.Context, employeeID string) (*models.Employee, error)
}

type BudgetLedger interface {
	Adjust(ctx context.Context, employeeID string, cat models.Category, amount float64, increment bool) (float64, error)
}

type ProximityChecker interface {
	Check(ctx context.Context, src, dest string) (*geocode.Proximity, error)
}

type Notifier interface {
	SendEmail(ctx context.Context, recipientID, subject, content string) (*models.NotificationResult, error)
}

type Dependencies struct {
	Directory EmployeeDirectory
	Ledger    BudgetLedger
	Proximity ProximityChecker
	Notifier  Notifier
}

var (
	errOtherEmployee = errors.New("tools may only act on the employee who submitted the receipt")
	errOtherReceipt  = errors.New("only the receipt under review can be checked")
)

// EmployeeView is what get_employee_data returns to the model.
type EmployeeView struct {
	EmployeeID string             `json:"employee_id"`
	Name       string             `json:"name"`
	Email      string             `json:"email"`
	Department string             `json:"department,omitempty"`
	Budgets    map[string]float64 `json:"budgets"`
	Expenses   map[string]float64 `json:"expenses"`
	Remaining  map[string]float64 `json:"remaining"`
}

// BudgetUpdate is what update_expense_budget returns to the model.
type BudgetUpdate struct {
	EmployeeID  string  `json:"employee_id"`
	ExpenseType string  `json:"expense_type"`
	Amount      float64 `json:"amount"`
	Increment   bool    `json:"increment"`
	Spent       float64 `json:"spent"`
}

func ledgerEnum() []string {
	var out []string
	for _, c := range models.Categories {
		if c.Ledgered() {
			out = append(out, string(c))
		}
	}
	return out
}

// ExpenseTools builds the receipt processing tool set.
func ExpenseTools(deps Dependencies) []Spec {
	return []Spec{
		{
			Name:        GetEmployeeData,
			Description: "Fetch the employee's profile, budgets, spent totals and remaining budget per expense type.",
			Kind:        KindLookup,
			Parameters: validation.JSONSchema{
				Type:     "object",
				Required: []string{"employee_id"},
				Properties: map[string]validation.Property{
					"employee_id": {Type: "string", MinLength: validation.IntPtr(1), Description: "employee id"},
				},
			},
			Invoke: func(ctx context.Context, params map[string]interface{}, tc *Context) (interface{}, error) {
				id := stringParam(params, "employee_id")
				if err := sameEmployee(tc, id); err != nil {
					return nil, err
				}
				emp, err := deps.Directory.Get(ctx, id)
				if err != nil {
					return nil, err
				}
				return viewOf(emp), nil
			},
		},
		{
			Name:        CheckLocationProximity,
			Description: "Check whether the trip's start or end address is within the office radius.",
			Kind:        KindBusinessRule,
			Parameters: validation.JSONSchema{
				Type:     "object",
				Required: []string{"src_address", "dest_address"},
				Properties: map[string]validation.Property{
					"src_address":  {Type: "string", MinLength: validation.IntPtr(1), Description: "trip start address"},
					"dest_address": {Type: "string", MinLength: validation.IntPtr(1), Description: "trip end address"},
				},
			},
			Invoke: func(ctx context.Context, params map[string]interface{}, _ *Context) (interface{}, error) {
				return deps.Proximity.Check(ctx, stringParam(params, "src_address"), stringParam(params, "dest_address"))
			},
		},
		{
			Name:        UpdateExpenseBudget,
			Description: "Add the amount to (increment=true) or remove it from the employee's spent total for an expense type.",
			Kind:        KindBusinessRule,
			Parameters: validation.JSONSchema{
				Type:     "object",
				Required: []string{"employee_id", "expense_type", "amount"},
				Properties: map[string]validation.Property{
					"employee_id":  {Type: "string", MinLength: validation.IntPtr(1)},
					"expense_type": {Type: "string", Enum: ledgerEnum()},
					"amount":       {Type: "number", Minimum: validation.FloatPtr(0)},
					"increment":    {Type: "boolean", Default: true},
				},
			},
			Invoke: func(ctx context.Context, params map[string]interface{}, tc *Context) (interface{}, error) {
				id := stringParam(params, "employee_id")
				if err := sameEmployee(tc, id); err != nil {
					return nil, err
				}
				cat := models.Category(stringParam(params, "expense_type"))
				amount, _ := params["amount"].(float64)
				increment, _ := params["increment"].(bool)

				spent, err := deps.Ledger.Adjust(ctx, id, cat, amount, increment)
				if err != nil {
					return nil, err
				}
				return &BudgetUpdate{
					EmployeeID:  id,
					ExpenseType: string(cat),
					Amount:      amount,
					Increment:   increment,
					Spent:       spent,
				}, nil
			},
		},
		{
			Name:        IsDuplicateReceipt,
			Description: "Return the duplicate verdict for the receipt under review.",
			Kind:        KindDuplicate,
			Parameters: validation.JSONSchema{
				Type:     "object",
				Required: []string{"receipt_id"},
				Properties: map[string]validation.Property{
					"receipt_id": {Type: "string", MinLength: validation.IntPtr(1)},
				},
			},
			Invoke: func(_ context.Context, params map[string]interface{}, tc *Context) (interface{}, error) {
				if tc.Record != nil && stringParam(params, "receipt_id") != tc.Record.ID {
					return nil, errOtherReceipt
				}
				v := tc.Verdict
				return &v, nil
			},
		},
		{
			Name:        SendEmail,
			Description: "Email the employee. content is HTML.",
			Kind:        KindNotification,
			Parameters: validation.JSONSchema{
				Type:     "object",
				Required: []string{"recipient_id", "subject", "content"},
				Properties: map[string]validation.Property{
					"recipient_id": {Type: "string", MinLength: validation.IntPtr(1), Description: "employee id"},
					"subject":      {Type: "string", MinLength: validation.IntPtr(1), MaxLength: validation.IntPtr(200)},
					"content":      {Type: "string", MinLength: validation.IntPtr(1)},
				},
			},
			Invoke: func(ctx context.Context, params map[string]interface{}, tc *Context) (interface{}, error) {
				id := stringParam(params, "recipient_id")
				if err := sameEmployee(tc, id); err != nil {
					return nil, err
				}
				return deps.Notifier.SendEmail(ctx, id, stringParam(params, "subject"), stringParam(params, "content"))
			},
		},
	}
}

func sameEmployee(tc *Context, id string) error {
	if tc.Record != nil && tc.Record.EmployeeID != "" && tc.Record.EmployeeID != id {
		return fmt.Errorf("%w: got %s", errOtherEmployee, id)
	}
	return nil
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func viewOf(emp *models.Employee) *EmployeeView {
	v := &EmployeeView{
		EmployeeID: emp.ID,
		Name:       emp.Name,
		Email:      emp.Email,
		Department: emp.Department,
		Budgets:    map[string]float64{},
		Expenses:   map[string]float64{},
		Remaining:  map[string]float64{},
	}
	for _, c := range models.Categories {
		if !c.Ledgered() {
			continue
		}
		v.Budgets[string(c)] = emp.Budgets[c]
		v.Expenses[string(c)] = emp.Expenses[c]
		v.Remaining[string(c)] = emp.Remaining(c)
	}
	return v
}
