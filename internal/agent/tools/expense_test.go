package tools

import (
	"context"
	"errors"
	"testing"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/geocode"
	"receipt-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) Get(ctx context.Context, id string) (*models.Employee, error) {
	args := m.Called(ctx, id)
	emp, _ := args.Get(0).(*models.Employee)
	return emp, args.Error(1)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Adjust(ctx context.Context, id string, cat models.Category, amount float64, increment bool) (float64, error) {
	args := m.Called(ctx, id, cat, amount, increment)
	return args.Get(0).(float64), args.Error(1)
}

type mockProximity struct{ mock.Mock }

func (m *mockProximity) Check(ctx context.Context, src, dest string) (*geocode.Proximity, error) {
	args := m.Called(ctx, src, dest)
	p, _ := args.Get(0).(*geocode.Proximity)
	return p, args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) SendEmail(ctx context.Context, id, subject, content string) (*models.NotificationResult, error) {
	args := m.Called(ctx, id, subject, content)
	r, _ := args.Get(0).(*models.NotificationResult)
	return r, args.Error(1)
}

type fixture struct {
	dir      *mockDirectory
	ledger   *mockLedger
	prox     *mockProximity
	notifier *mockNotifier
	registry *Registry
	tc       *Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:      &mockDirectory{},
		ledger:   &mockLedger{},
		prox:     &mockProximity{},
		notifier: &mockNotifier{},
	}
	r, err := NewRegistry(logger.NewTestLogger(t), ExpenseTools(Dependencies{
		Directory: f.dir,
		Ledger:    f.ledger,
		Proximity: f.prox,
		Notifier:  f.notifier,
	})...)
	require.NoError(t, err)
	f.registry = r
	f.tc = &Context{
		SessionID: "s1",
		Record:    &models.ReceiptRecord{ID: "R1", EmployeeID: "E1", Category: models.CategoryTravel},
		Verdict:   models.DuplicateVerdict{Outcome: models.OutcomeNovel, Score: 0.41, Threshold: 0.95},
	}
	return f
}

func TestExpenseTools_Kinds(t *testing.T) {
	f := newFixture(t)
	kinds := map[string]Kind{}
	for _, s := range f.registry.Specs() {
		kinds[s.Name] = s.Kind
	}
	assert.Equal(t, map[string]Kind{
		GetEmployeeData:        KindLookup,
		CheckLocationProximity: KindBusinessRule,
		UpdateExpenseBudget:    KindBusinessRule,
		IsDuplicateReceipt:     KindDuplicate,
		SendEmail:              KindNotification,
	}, kinds)
}

func TestGetEmployeeData(t *testing.T) {
	f := newFixture(t)
	f.dir.On("Get", mock.Anything, "E1").Return(&models.Employee{
		ID:       "E1",
		Name:     "Asha",
		Budgets:  map[models.Category]float64{models.CategoryTravel: 1000},
		Expenses: map[models.Category]float64{models.CategoryTravel: 200},
	}, nil)

	res, err := f.registry.Invoke(context.Background(), GetEmployeeData, map[string]interface{}{"employee_id": "E1"}, f.tc)
	require.NoError(t, err)
	view := res.Payload.(*EmployeeView)
	assert.Equal(t, 800.0, view.Remaining["TRAVEL_EXPENSE"])
	assert.NotContains(t, view.Budgets, "OTHER_EXPENSE")

	_, err = f.registry.Invoke(context.Background(), GetEmployeeData, map[string]interface{}{"employee_id": "E2"}, f.tc)
	assert.True(t, errors.Is(err, errOtherEmployee))
	f.dir.AssertNumberOfCalls(t, "Get", 1)
}

func TestGetEmployeeData_NotFound(t *testing.T) {
	f := newFixture(t)
	f.dir.On("Get", mock.Anything, "E1").Return(nil, apperrors.NewEmployeeNotFoundError("E1"))

	res, err := f.registry.Invoke(context.Background(), GetEmployeeData, map[string]interface{}{"employee_id": "E1"}, f.tc)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeToolExecutionError))
	std, _ := apperrors.As(err)
	assert.Equal(t, "EMPLOYEE_NOT_FOUND", std.Metadata["causeCode"])
	assert.Contains(t, res.Error, "E1")
}

func TestUpdateExpenseBudget(t *testing.T) {
	f := newFixture(t)
	f.ledger.On("Adjust", mock.Anything, "E1", models.CategoryTravel, 503.0, true).Return(703.0, nil)

	res, err := f.registry.Invoke(context.Background(), UpdateExpenseBudget, map[string]interface{}{
		"employee_id":  "E1",
		"expense_type": "TRAVEL_EXPENSE",
		"amount":       503.0,
	}, f.tc)
	require.NoError(t, err)
	upd := res.Payload.(*BudgetUpdate)
	assert.True(t, upd.Increment, "increment defaults to true")
	assert.Equal(t, 703.0, upd.Spent)
	f.ledger.AssertExpectations(t)
}

func TestUpdateExpenseBudget_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Invoke(ctx, UpdateExpenseBudget, map[string]interface{}{
		"employee_id": "E1", "expense_type": "OTHER_EXPENSE", "amount": 5.0,
	}, f.tc)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidParameters))

	_, err = f.registry.Invoke(ctx, UpdateExpenseBudget, map[string]interface{}{
		"employee_id": "E1", "expense_type": "FOOD_EXPENSE", "amount": -5.0,
	}, f.tc)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidParameters))

	_, err = f.registry.Invoke(ctx, UpdateExpenseBudget, map[string]interface{}{
		"employee_id": "E9", "expense_type": "FOOD_EXPENSE", "amount": 5.0,
	}, f.tc)
	assert.True(t, errors.Is(err, errOtherEmployee))

	f.ledger.AssertNotCalled(t, "Adjust", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckLocationProximity(t *testing.T) {
	f := newFixture(t)
	f.prox.On("Check", mock.Anything, "Hitec City", "Airport").
		Return(&geocode.Proximity{WithinRadius: true, SrcDistanceKm: 0.4, DestDistanceKm: 24}, nil)
	f.prox.On("Check", mock.Anything, "Atlantis", "Airport").
		Return(nil, apperrors.NewGeocodingFailedError("Atlantis", geocode.ErrNoMatch))

	res, err := f.registry.Invoke(context.Background(), CheckLocationProximity, map[string]interface{}{
		"src_address": "Hitec City", "dest_address": "Airport",
	}, f.tc)
	require.NoError(t, err)
	assert.True(t, res.Payload.(*geocode.Proximity).WithinRadius)

	_, err = f.registry.Invoke(context.Background(), CheckLocationProximity, map[string]interface{}{
		"src_address": "Atlantis", "dest_address": "Airport",
	}, f.tc)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeToolExecutionError))
}

func TestIsDuplicateReceipt(t *testing.T) {
	f := newFixture(t)

	res, err := f.registry.Invoke(context.Background(), IsDuplicateReceipt, map[string]interface{}{"receipt_id": "R1"}, f.tc)
	require.NoError(t, err)
	v := res.Payload.(*models.DuplicateVerdict)
	assert.False(t, v.IsDuplicate)
	assert.Equal(t, 0.41, v.Score)

	_, err = f.registry.Invoke(context.Background(), IsDuplicateReceipt, map[string]interface{}{"receipt_id": "R0"}, f.tc)
	assert.True(t, errors.Is(err, errOtherReceipt))
}

func TestSendEmail(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("SendEmail", mock.Anything, "E1", "Approved", "<p>ok</p>").
		Return(&models.NotificationResult{Status: models.NotificationSent}, nil)
	f.notifier.On("SendEmail", mock.Anything, "E1", "Retry", "<p>x</p>").
		Return(nil, apperrors.NewNotificationSendFailedError("email", errors.New("throttled")))

	res, err := f.registry.Invoke(context.Background(), SendEmail, map[string]interface{}{
		"recipient_id": "E1", "subject": "Approved", "content": "<p>ok</p>",
	}, f.tc)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, res.Payload.(*models.NotificationResult).Status)

	_, err = f.registry.Invoke(context.Background(), SendEmail, map[string]interface{}{
		"recipient_id": "E1", "subject": "Retry", "content": "<p>x</p>",
	}, f.tc)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeToolExecutionError))
}
