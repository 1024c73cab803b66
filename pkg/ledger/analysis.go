package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/carlot/pkg/models"
	"github.com/mcclellann/carlot/pkg/store"
	"github.com/mcclellann/carlot/pkg/tracing"
	"github.com/mcclellann/carlot/pkg/validators"
	"github.com/shopspring/decimal"
)

// ExpenseRequest records money spent, optionally on a specific car.
type ExpenseRequest struct {
	CarID       uuid.NullUUID
	Category    string
	Description string
	Amount      decimal.Decimal
	IncurredAt  time.Time // Zero means now
}

// CreateExpense stores an expense and journals it as money out.
func (l *Ledger) CreateExpense(req ExpenseRequest) (*models.Expense, error) {
	var errs validators.FieldErrors
	errs.Add(validators.Required("category", req.Category))
	errs.Add(validators.Positive("amount", req.Amount))
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if req.CarID.Valid {
		if _, err := l.storage.GetCar(req.CarID.UUID); err != nil {
			return nil, err
		}
	}

	now := l.now()
	incurred := req.IncurredAt
	if incurred.IsZero() {
		incurred = now
	}

	expense := &models.Expense{
		ID:          uuid.New(),
		CarID:       req.CarID,
		Category:    req.Category,
		Description: req.Description,
		Amount:      req.Amount,
		IncurredAt:  incurred.UTC(),
		CreatedAt:   now,
	}
	if err := l.storage.CreateExpense(expense); err != nil {
		return nil, fmt.Errorf("failed to store expense: %w", err)
	}

	l.journal(expense.ID, expense.Amount.Neg(), models.TransactionTypeExpense, expense.IncurredAt)
	return expense, nil
}

// ListExpenses retrieves expenses incurred within period.
func (l *Ledger) ListExpenses(period store.Period) ([]*models.Expense, error) {
	return l.storage.ListExpenses(period)
}

// DeleteExpense removes an expense.
func (l *Ledger) DeleteExpense(id uuid.UUID) error {
	return l.storage.DeleteExpense(id)
}

// MonthFigures are the totals of one calendar month (UTC).
type MonthFigures struct {
	Month       string          `json:"month"` // YYYY-MM
	CarsSold    int             `json:"cars_sold"`
	Revenue     decimal.Decimal `json:"revenue"`
	CostOfGoods decimal.Decimal `json:"cost_of_goods"`
	Expenses    decimal.Decimal `json:"expenses"`
	NetProfit   decimal.Decimal `json:"net_profit"`
}

// Analysis summarizes the dealership's results over a period.
type Analysis struct {
	From                   *time.Time      `json:"from,omitempty"`
	To                     *time.Time      `json:"to,omitempty"`
	CarsSold               int             `json:"cars_sold"`
	CashSales              int             `json:"cash_sales"`
	InstallmentSales       int             `json:"installment_sales"`
	Revenue                decimal.Decimal `json:"revenue"`
	CostOfGoods            decimal.Decimal `json:"cost_of_goods"`
	GrossProfit            decimal.Decimal `json:"gross_profit"`
	Expenses               decimal.Decimal `json:"expenses"`
	NetProfit              decimal.Decimal `json:"net_profit"`
	InstallmentsCollected  decimal.Decimal `json:"installments_collected"`
	OutstandingReceivables decimal.Decimal `json:"outstanding_receivables"`
	StockCount             int             `json:"stock_count"`
	StockValue             decimal.Decimal `json:"stock_value"`
	Months                 []MonthFigures  `json:"months"`
}

func newMonth(key string) *MonthFigures {
	return &MonthFigures{
		Month:       key,
		Revenue:     decimal.Zero,
		CostOfGoods: decimal.Zero,
		Expenses:    decimal.Zero,
		NetProfit:   decimal.Zero,
	}
}

// SalesAnalysis computes revenue, cost and profit for sales and expenses within period.
// Revenue is the sale price (the taxed price for installment sales); cost of goods is the
// purchase price of the cars sold. Outstanding receivables cover every active contract
// regardless of period.
func (l *Ledger) SalesAnalysis(ctx context.Context, period store.Period) (*Analysis, error) {
	_, span := tracing.Tracer.Start(ctx, "ledger.SalesAnalysis")
	defer span.End()

	sales, err := l.storage.ListSales(period)
	if err != nil {
		return nil, err
	}
	expenses, err := l.storage.ListExpenses(period)
	if err != nil {
		return nil, err
	}
	transactions, err := l.storage.ListTransactions(period)
	if err != nil {
		return nil, err
	}
	cars, err := l.storage.ListCars(store.CarFilter{})
	if err != nil {
		return nil, err
	}
	contracts, err := l.storage.ListContracts(models.ContractStatusActive)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		Revenue:                decimal.Zero,
		CostOfGoods:            decimal.Zero,
		Expenses:               decimal.Zero,
		InstallmentsCollected:  decimal.Zero,
		OutstandingReceivables: decimal.Zero,
		StockValue:             decimal.Zero,
	}
	if !period.From.IsZero() {
		a.From = &period.From
	}
	if !period.To.IsZero() {
		a.To = &period.To
	}

	purchase := make(map[uuid.UUID]decimal.Decimal, len(cars))
	for _, car := range cars {
		purchase[car.ID] = car.PurchasePrice
		if car.Status == models.CarStatusAvailable {
			a.StockCount++
			a.StockValue = a.StockValue.Add(car.PurchasePrice)
		}
	}

	months := make(map[string]*MonthFigures)
	month := func(t time.Time) *MonthFigures {
		key := t.UTC().Format("2006-01")
		m, ok := months[key]
		if !ok {
			m = newMonth(key)
			months[key] = m
		}
		return m
	}

	for _, sale := range sales {
		cost := purchase[sale.CarID]
		a.CarsSold++
		if sale.Type == models.SaleTypeInstallment {
			a.InstallmentSales++
		} else {
			a.CashSales++
		}
		a.Revenue = a.Revenue.Add(sale.Price)
		a.CostOfGoods = a.CostOfGoods.Add(cost)

		m := month(sale.SoldAt)
		m.CarsSold++
		m.Revenue = m.Revenue.Add(sale.Price)
		m.CostOfGoods = m.CostOfGoods.Add(cost)
	}

	for _, e := range expenses {
		a.Expenses = a.Expenses.Add(e.Amount)
		m := month(e.IncurredAt)
		m.Expenses = m.Expenses.Add(e.Amount)
	}

	for _, t := range transactions {
		if t.Type == models.TransactionTypeInstallment || t.Type == models.TransactionTypeReversal {
			a.InstallmentsCollected = a.InstallmentsCollected.Add(t.Amount)
		}
	}

	now := l.now()
	for _, c := range contracts {
		sched, err := l.loadSchedule(c)
		if err != nil {
			return nil, err
		}
		a.OutstandingReceivables = a.OutstandingReceivables.Add(sched.Summarize(now).OutstandingDue)
	}

	a.GrossProfit = a.Revenue.Sub(a.CostOfGoods)
	a.NetProfit = a.GrossProfit.Sub(a.Expenses)

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	a.Months = make([]MonthFigures, 0, len(keys))
	for _, k := range keys {
		m := months[k]
		m.NetProfit = m.Revenue.Sub(m.CostOfGoods).Sub(m.Expenses)
		a.Months = append(a.Months, *m)
	}
	return a, nil
}
