package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/carlot/pkg/models"
	"github.com/mcclellann/carlot/pkg/schedule"
	"github.com/mcclellann/carlot/pkg/store"
	"github.com/mcclellann/carlot/pkg/validators"
	"github.com/shopspring/decimal"
)

// MockStore is a simple in-memory implementation of the Storage interface for testing.
// Records are copied in and out like a real database would.
type MockStore struct {
	mu           sync.Mutex
	cars         map[uuid.UUID]models.Car
	sales        []models.Sale
	contracts    map[uuid.UUID]models.InstallmentContract
	payments     map[string]models.MonthlyPayment
	expenses     map[uuid.UUID]models.Expense
	transactions []*models.Transaction
	failUpsert   bool
	failSale     bool
}

func NewMockStore() *MockStore {
	return &MockStore{
		cars:         make(map[uuid.UUID]models.Car),
		contracts:    make(map[uuid.UUID]models.InstallmentContract),
		payments:     make(map[string]models.MonthlyPayment),
		expenses:     make(map[uuid.UUID]models.Expense),
		transactions: []*models.Transaction{},
	}
}

func inPeriod(t time.Time, p store.Period) bool {
	return (p.From.IsZero() || !t.Before(p.From)) && (p.To.IsZero() || t.Before(p.To))
}

func (m *MockStore) CreateCar(car *models.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cars[car.ID] = *car
	return nil
}

func (m *MockStore) GetCar(id uuid.UUID) (*models.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	car, ok := m.cars[id]
	if !ok {
		return nil, fmt.Errorf("car %w", store.ErrNotFound)
	}
	return &car, nil
}

func (m *MockStore) UpdateCar(car *models.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cars[car.ID]; !ok {
		return fmt.Errorf("car %w", store.ErrNotFound)
	}
	m.cars[car.ID] = *car
	return nil
}

func (m *MockStore) DeleteCar(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cars, id)
	return nil
}

func (m *MockStore) ListCars(filter store.CarFilter) ([]*models.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cars := []*models.Car{}
	for _, c := range m.cars {
		if filter.Status == "" || c.Status == filter.Status {
			car := c
			cars = append(cars, &car)
		}
	}
	return cars, nil
}

func (m *MockStore) CreateSale(sale *models.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales = append(m.sales, *sale)
	return nil
}

func (m *MockStore) RecordSale(sale *models.Sale, contract *models.InstallmentContract, car *models.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSale {
		return errors.New("connection reset")
	}
	if _, ok := m.cars[car.ID]; !ok {
		return fmt.Errorf("car %w", store.ErrNotFound)
	}
	if contract != nil {
		m.contracts[contract.ID] = *contract
	}
	m.sales = append(m.sales, *sale)
	m.cars[car.ID] = *car
	return nil
}

func (m *MockStore) ListSales(period store.Period) ([]*models.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sales := []*models.Sale{}
	for _, s := range m.sales {
		if inPeriod(s.SoldAt, period) {
			sale := s
			sales = append(sales, &sale)
		}
	}
	return sales, nil
}

func (m *MockStore) CreateContract(contract *models.InstallmentContract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[contract.ID] = *contract
	return nil
}

func (m *MockStore) GetContract(id uuid.UUID) (*models.InstallmentContract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %w", store.ErrNotFound)
	}
	return &c, nil
}

func (m *MockStore) UpdateContract(contract *models.InstallmentContract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[contract.ID] = *contract
	return nil
}

func (m *MockStore) ListContracts(status models.ContractStatus) ([]*models.InstallmentContract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contracts := []*models.InstallmentContract{}
	for _, c := range m.contracts {
		if status == "" || c.Status == status {
			contract := c
			contracts = append(contracts, &contract)
		}
	}
	return contracts, nil
}

func paymentKey(contractID uuid.UUID, month int) string {
	return fmt.Sprintf("%s/%d", contractID, month)
}

func (m *MockStore) UpsertMonthlyPayment(p *models.MonthlyPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert {
		return errors.New("disk full")
	}
	m.payments[paymentKey(p.ContractID, p.Month)] = *p
	return nil
}

func (m *MockStore) GetMonthlyPayments(contractID uuid.UUID) ([]*models.MonthlyPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payments := []*models.MonthlyPayment{}
	for _, p := range m.payments {
		if p.ContractID == contractID {
			payment := p
			payments = append(payments, &payment)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].Month < payments[j].Month })
	return payments, nil
}

func (m *MockStore) CreateExpense(e *models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses[e.ID] = *e
	return nil
}

func (m *MockStore) DeleteExpense(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expenses[id]; !ok {
		return fmt.Errorf("expense %w", store.ErrNotFound)
	}
	delete(m.expenses, id)
	return nil
}

func (m *MockStore) ListExpenses(period store.Period) ([]*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expenses := []*models.Expense{}
	for _, e := range m.expenses {
		if inPeriod(e.IncurredAt, period) {
			expense := e
			expenses = append(expenses, &expense)
		}
	}
	return expenses, nil
}

func (m *MockStore) CreateTransaction(tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *MockStore) ListTransactions(period store.Period) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txs := []*models.Transaction{}
	for _, tx := range m.transactions {
		if inPeriod(tx.Timestamp, period) {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) transactionsOfType(typ models.TransactionType) []*models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var txs []*models.Transaction
	for _, tx := range m.transactions {
		if tx.Type == typ {
			txs = append(txs, tx)
		}
	}
	return txs
}

var testOptions = Options{
	VATPercent: decimal.NewFromInt(7),
	LateFee:    decimal.NewFromInt(500),
	GraceDays:  5,
}

func newTestLedger(at time.Time) (*Ledger, *MockStore) {
	s := NewMockStore()
	l := NewLedger(s, testOptions)
	l.now = func() time.Time { return at }
	return l, s
}

func addCar(t *testing.T, l *Ledger, purchase, listing int64) *models.Car {
	t.Helper()
	car, err := l.CreateCar(&models.Car{
		Brand:         "Honda",
		Model:         "City",
		Year:          2020,
		PurchasePrice: decimal.NewFromInt(purchase),
		ListingPrice:  decimal.NewFromInt(listing),
	})
	if err != nil {
		t.Fatalf("Failed to create car: %v", err)
	}
	return car
}

// showroomContract finances a 100,000 car at 7% VAT, 50,000 down, 2.5% a month over 48 months.
func showroomContract(t *testing.T, l *Ledger, car *models.Car, term int) *ContractDetail {
	t.Helper()
	detail, err := l.CreateInstallment(context.Background(), InstallmentRequest{
		CarID:                   car.ID,
		CustomerName:            "Somchai",
		CarValue:                decimal.NewFromInt(100000),
		DownPayment:             decimal.NewFromInt(50000),
		InterestPerMonthPercent: decimal.RequireFromString("2.5"),
		TermMonths:              term,
		StartDate:               time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Failed to create installment: %v", err)
	}
	return detail
}

var jan15 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func TestCreateCar(t *testing.T) {
	l, _ := newTestLedger(jan15)

	car := addCar(t, l, 80000, 95000)
	if car.Status != models.CarStatusAvailable {
		t.Errorf("Expected status available, got %s", car.Status)
	}
	if car.ID == uuid.Nil {
		t.Error("Expected an ID to be assigned")
	}

	_, err := l.CreateCar(&models.Car{Year: 1800, PurchasePrice: decimal.NewFromInt(-1)})
	if !errors.Is(err, validators.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput, got %v", err)
	}
	if n := len(validators.Fields(err)); n != 4 {
		t.Errorf("Expected 4 field errors (brand, model, year, purchase_price), got %d: %v", n, err)
	}
}

func TestSellCar(t *testing.T) {
	l, s := newTestLedger(jan15)
	car := addCar(t, l, 80000, 95000)

	sale, err := l.SellCar(car.ID, CashSale{CustomerName: "Anan"})
	if err != nil {
		t.Fatalf("Failed to sell car: %v", err)
	}
	if !sale.Price.Equal(decimal.NewFromInt(95000)) {
		t.Errorf("Expected listing price 95000, got %s", sale.Price)
	}

	stored, _ := l.GetCar(car.ID)
	if stored.Status != models.CarStatusSold {
		t.Errorf("Expected car to be sold, got %s", stored.Status)
	}
	if n := len(s.transactionsOfType(models.TransactionTypeCashSale)); n != 1 {
		t.Errorf("Expected 1 cash sale transaction, got %d", n)
	}

	if _, err := l.SellCar(car.ID, CashSale{CustomerName: "Anan"}); !errors.Is(err, ErrCarNotAvailable) {
		t.Errorf("Expected ErrCarNotAvailable on second sale, got %v", err)
	}
	if err := l.DeleteCar(car.ID); !errors.Is(err, ErrCarNotAvailable) {
		t.Errorf("Expected ErrCarNotAvailable deleting a sold car, got %v", err)
	}
	if _, err := l.SellCar(uuid.New(), CashSale{CustomerName: "Anan"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown car, got %v", err)
	}
}

func TestUpdateCarKeepsStatus(t *testing.T) {
	l, _ := newTestLedger(jan15)
	car := addCar(t, l, 80000, 95000)

	update := *car
	update.Color = "Red"
	update.Status = models.CarStatusSold
	updated, err := l.UpdateCar(&update)
	if err != nil {
		t.Fatalf("Failed to update car: %v", err)
	}
	if updated.Status != models.CarStatusAvailable {
		t.Errorf("Expected status to stay available, got %s", updated.Status)
	}
	if updated.Color != "Red" {
		t.Errorf("Expected color Red, got %s", updated.Color)
	}
}

func TestCreateInstallment(t *testing.T) {
	l, s := newTestLedger(jan15)
	car := addCar(t, l, 90000, 100000)

	detail := showroomContract(t, l, car, 48)
	contract := detail.Contract

	if !contract.VATPercent.Equal(decimal.NewFromInt(7)) {
		t.Errorf("Expected default VAT 7, got %s", contract.VATPercent)
	}
	if !contract.MonthlyInstallment.Equal(decimal.RequireFromString("2612.5")) {
		t.Errorf("Expected monthly installment 2612.5, got %s", contract.MonthlyInstallment)
	}
	if !contract.TotalPayable.Equal(decimal.NewFromInt(125400)) {
		t.Errorf("Expected total payable 125400, got %s", contract.TotalPayable)
	}
	if len(detail.Schedule.Slots) != 48 {
		t.Errorf("Expected 48 slots, got %d", len(detail.Schedule.Slots))
	}
	if detail.OwnerBook != models.OwnerBookPending {
		t.Errorf("Expected owner book pending, got %s", detail.OwnerBook)
	}

	stored, _ := l.GetCar(car.ID)
	if stored.Status != models.CarStatusSold {
		t.Errorf("Expected car to be sold, got %s", stored.Status)
	}
	sales, _ := l.ListSales(store.Period{})
	if len(sales) != 1 || !sales[0].Price.Equal(decimal.NewFromInt(107000)) {
		t.Errorf("Expected one installment sale at 107000, got %+v", sales)
	}
	down := s.transactionsOfType(models.TransactionTypeDownPayment)
	if len(down) != 1 || !down[0].Amount.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Expected one down payment of 50000, got %d", len(down))
	}

	_, err := l.CreateInstallment(context.Background(), InstallmentRequest{CarID: car.ID, CustomerName: "Other", TermMonths: 12})
	if !errors.Is(err, ErrCarNotAvailable) {
		t.Errorf("Expected ErrCarNotAvailable, got %v", err)
	}
}

func TestSaleStorageFailureLeavesCarAvailable(t *testing.T) {
	l, s := newTestLedger(jan15)
	car := addCar(t, l, 90000, 100000)
	ctx := context.Background()

	s.failSale = true
	_, err := l.CreateInstallment(ctx, InstallmentRequest{
		CarID:                   car.ID,
		CustomerName:            "Somchai",
		DownPayment:             decimal.NewFromInt(50000),
		InterestPerMonthPercent: decimal.RequireFromString("2.5"),
		TermMonths:              48,
	})
	if err == nil {
		t.Fatal("Expected storage error to surface")
	}
	if _, err := l.SellCar(car.ID, CashSale{CustomerName: "Anan"}); err == nil {
		t.Fatal("Expected storage error to surface for cash sale")
	}
	s.failSale = false

	contracts, _ := l.ListContracts("")
	if len(contracts) != 0 {
		t.Errorf("Expected no contracts after failed sale, got %d", len(contracts))
	}
	sales, _ := l.ListSales(store.Period{})
	if len(sales) != 0 {
		t.Errorf("Expected no sales after failed sale, got %d", len(sales))
	}
	stored, _ := l.GetCar(car.ID)
	if stored.Status != models.CarStatusAvailable {
		t.Errorf("Expected car still available, got %s", stored.Status)
	}
	if n := len(s.transactionsOfType(models.TransactionTypeDownPayment)); n != 0 {
		t.Errorf("Expected no down payment transaction, got %d", n)
	}
	if n := len(s.transactionsOfType(models.TransactionTypeCashSale)); n != 0 {
		t.Errorf("Expected no cash sale transaction, got %d", n)
	}

	// The car can still be sold once storage recovers.
	if _, err := l.SellCar(car.ID, CashSale{CustomerName: "Anan"}); err != nil {
		t.Fatalf("Failed to sell car after recovery: %v", err)
	}
}

func TestCreateInstallmentInvalidInput(t *testing.T) {
	l, _ := newTestLedger(jan15)
	car := addCar(t, l, 90000, 100000)

	_, err := l.CreateInstallment(context.Background(), InstallmentRequest{
		CarID:        car.ID,
		CustomerName: "Somchai",
		DownPayment:  decimal.NewFromInt(-1),
		TermMonths:   0,
	})
	if !errors.Is(err, validators.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput, got %v", err)
	}

	stored, _ := l.GetCar(car.ID)
	if stored.Status != models.CarStatusAvailable {
		t.Errorf("Expected car to stay available after rejected contract, got %s", stored.Status)
	}
}

func TestRecordMonthlyPaymentSequential(t *testing.T) {
	l, s := newTestLedger(jan15)
	car := addCar(t, l, 90000, 100000)
	id := showroomContract(t, l, car, 48).Contract.ID
	ctx := context.Background()

	if _, err := l.RecordMonthlyPayment(ctx, id, 2, decimal.Zero); !errors.Is(err, schedule.ErrMonthLocked) {
		t.Errorf("Expected ErrMonthLocked for month 2, got %v", err)
	}

	detail, err := l.RecordMonthlyPayment(ctx, id, 1, decimal.Zero)
	if err != nil {
		t.Fatalf("Failed to pay month 1: %v", err)
	}
	if detail.Summary.PaidMonths != 1 {
		t.Errorf("Expected 1 paid month, got %d", detail.Summary.PaidMonths)
	}
	if detail.Summary.NextDueMonth != 2 {
		t.Errorf("Expected next due month 2, got %d", detail.Summary.NextDueMonth)
	}

	// Paying the same month again is a no-op.
	if _, err := l.RecordMonthlyPayment(ctx, id, 1, decimal.Zero); err != nil {
		t.Fatalf("Expected repeated payment to succeed, got %v", err)
	}
	if n := len(s.transactionsOfType(models.TransactionTypeInstallment)); n != 1 {
		t.Errorf("Expected 1 installment transaction, got %d", n)
	}

	detail, err = l.RecordMonthlyPayment(ctx, id, 2, decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("Failed to pay month 2: %v", err)
	}
	slot, _ := detail.Schedule.Slot(2)
	if !slot.PaidAmount.Equal(decimal.RequireFromString("2812.5")) {
		t.Errorf("Expected paid amount 2812.50, got %s", slot.PaidAmount)
	}

	if _, err := l.RecordMonthlyPayment(ctx, id, 49, decimal.Zero); !errors.Is(err, schedule.ErrMonthOutOfRange) {
		t.Errorf("Expected ErrMonthOutOfRange, got %v", err)
	}
	if _, err := l.RecordMonthlyPayment(ctx, id, 3, decimal.NewFromInt(-1)); !errors.Is(err, validators.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for negative penalty, got %v", err)
	}
}

func TestRecordMonthlyPaymentStorageFailure(t *testing.T) {
	l, s := newTestLedger(jan15)
	car := addCar(t, l, 90000, 100000)
	id := showroomContract(t, l, car, 12).Contract.ID

	s.failUpsert = true
	if _, err := l.RecordMonthlyPayment(context.Background(), id, 1, decimal.Zero); err == nil {
		t.Fatal("Expected storage error to surface")
	}
	s.failUpsert = false

	detail, err := l.GetSchedule(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to get schedule: %v", err)
	}
	if detail.Summary.PaidMonths != 0 {
		t.Errorf("Expected no paid months after failed save, got %d", detail.Summary.PaidMonths)
	}
	if n := len(s.transactionsOfType(models.TransactionTypeInstallment)); n != 0 {
		t.Errorf("Expected no installment transaction, got %d", n)
	}
}

func TestResetMonthlyPayment(t *testing.T) {
	l, s := newTestLedger(jan15)
	car := addCar(t, l, 90000, 100000)
	id := showroomContract(t, l, car, 48).Contract.ID
	ctx := context.Background()

	l.RecordMonthlyPayment(ctx, id, 1, decimal.Zero)
	l.RecordMonthlyPayment(ctx, id, 2, decimal.NewFromInt(200))

	if _, err := l.ResetMonthlyPayment(ctx, id, 1); !errors.Is(err, schedule.ErrLaterMonthPaid) {
		t.Errorf("Expected ErrLaterMonthPaid, got %v", err)
	}

	detail, err := l.ResetMonthlyPayment(ctx, id, 2)
	if err != nil {
		t.Fatalf("Failed to reset month 2: %v", err)
	}
	slot, _ := detail.Schedule.Slot(2)
	if slot.State != schedule.StatePending {
		t.Errorf("Expected month 2 pending, got %s", slot.State)
	}
	if !slot.PenaltyFee.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected penalty to survive reset, got %s", slot.PenaltyFee)
	}

	reversals := s.transactionsOfType(models.TransactionTypeReversal)
	if len(reversals) != 1 || !reversals[0].Amount.Equal(decimal.RequireFromString("-2812.5")) {
		t.Errorf("Expected one reversal of -2812.50, got %d", len(reversals))
	}

	// Resetting an unpaid month is a no-op.
	if _, err := l.ResetMonthlyPayment(ctx, id, 2); err != nil {
		t.Errorf("Expected reset of pending month to succeed, got %v", err)
	}
	if n := len(s.transactionsOfType(models.TransactionTypeReversal)); n != 1 {
		t.Errorf("Expected still 1 reversal, got %d", n)
	}
}

func TestCompletionAndOwnerBookTransfer(t *testing.T) {
	l, _ := newTestLedger(jan15)
	car := addCar(t, l, 90000, 100000)
	id := showroomContract(t, l, car, 2).Contract.ID
	ctx := context.Background()

	if _, err := l.TransferOwnerBook(ctx, id); !errors.Is(err, schedule.ErrOwnerBookNotReady) {
		t.Errorf("Expected ErrOwnerBookNotReady, got %v", err)
	}

	l.RecordMonthlyPayment(ctx, id, 1, decimal.Zero)
	detail, err := l.RecordMonthlyPayment(ctx, id, 2, decimal.Zero)
	if err != nil {
		t.Fatalf("Failed to pay month 2: %v", err)
	}
	if detail.Contract.Status != models.ContractStatusCompleted {
		t.Errorf("Expected contract completed, got %s", detail.Contract.Status)
	}
	if detail.OwnerBook != models.OwnerBookReady {
		t.Errorf("Expected owner book ready, got %s", detail.OwnerBook)
	}

	// Reset reopens the contract.
	detail, _ = l.ResetMonthlyPayment(ctx, id, 2)
	if detail.Contract.Status != models.ContractStatusActive {
		t.Errorf("Expected contract active after reset, got %s", detail.Contract.Status)
	}
	l.RecordMonthlyPayment(ctx, id, 2, decimal.Zero)

	detail, err = l.TransferOwnerBook(ctx, id)
	if err != nil {
		t.Fatalf("Failed to transfer owner book: %v", err)
	}
	if detail.OwnerBook != models.OwnerBookTransferred {
		t.Errorf("Expected owner book transferred, got %s", detail.OwnerBook)
	}

	if _, err := l.TransferOwnerBook(ctx, id); !errors.Is(err, schedule.ErrAlreadyTransferred) {
		t.Errorf("Expected ErrAlreadyTransferred, got %v", err)
	}
	if _, err := l.ResetMonthlyPayment(ctx, id, 2); !errors.Is(err, schedule.ErrAlreadyTransferred) {
		t.Errorf("Expected reset after transfer to be refused, got %v", err)
	}
}

func TestConcurrentPaymentsOnSameMonth(t *testing.T) {
	l, s := newTestLedger(jan15)
	car := addCar(t, l, 90000, 100000)
	id := showroomContract(t, l, car, 12).Contract.ID

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RecordMonthlyPayment(context.Background(), id, 1, decimal.Zero)
		}()
	}
	wg.Wait()

	if n := len(s.transactionsOfType(models.TransactionTypeInstallment)); n != 1 {
		t.Errorf("Expected exactly 1 installment transaction, got %d", n)
	}
}

func TestAssessLateFees(t *testing.T) {
	l, _ := newTestLedger(jan15)
	car := addCar(t, l, 90000, 100000)
	id := showroomContract(t, l, car, 48).Contract.ID
	ctx := context.Background()

	// Month 1 is due 2024-02-01; the grace period ends 2024-02-06.
	charged, err := l.AssessLateFees(ctx, time.Date(2024, 2, 6, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("AssessLateFees failed: %v", err)
	}
	if charged != 0 {
		t.Errorf("Expected no fee within the grace period, got %d", charged)
	}

	after := time.Date(2024, 2, 7, 0, 0, 0, 0, time.UTC)
	charged, _ = l.AssessLateFees(ctx, after)
	if charged != 1 {
		t.Errorf("Expected 1 month charged, got %d", charged)
	}
	charged, _ = l.AssessLateFees(ctx, after)
	if charged != 0 {
		t.Errorf("Expected second run to charge nothing, got %d", charged)
	}

	detail, err := l.RecordMonthlyPayment(ctx, id, 1, decimal.Zero)
	if err != nil {
		t.Fatalf("Failed to pay month 1: %v", err)
	}
	slot, _ := detail.Schedule.Slot(1)
	if !slot.PaidAmount.Equal(decimal.RequireFromString("3112.5")) {
		t.Errorf("Expected installment plus late fee 3112.50, got %s", slot.PaidAmount)
	}
}

func TestAssessLateFeesDisabled(t *testing.T) {
	s := NewMockStore()
	l := NewLedger(s, Options{VATPercent: decimal.NewFromInt(7)})
	charged, err := l.AssessLateFees(context.Background(), time.Now())
	if err != nil || charged != 0 {
		t.Errorf("Expected disabled job to do nothing, got %d, %v", charged, err)
	}
}

func TestExpenses(t *testing.T) {
	l, s := newTestLedger(jan15)
	car := addCar(t, l, 90000, 100000)

	expense, err := l.CreateExpense(ExpenseRequest{
		CarID:    uuid.NullUUID{UUID: car.ID, Valid: true},
		Category: "repair",
		Amount:   decimal.NewFromInt(4000),
	})
	if err != nil {
		t.Fatalf("Failed to create expense: %v", err)
	}
	if !expense.IncurredAt.Equal(jan15) {
		t.Errorf("Expected incurred time to default to now, got %s", expense.IncurredAt)
	}
	out := s.transactionsOfType(models.TransactionTypeExpense)
	if len(out) != 1 || !out[0].Amount.Equal(decimal.NewFromInt(-4000)) {
		t.Errorf("Expected one expense transaction of -4000, got %d", len(out))
	}

	if _, err := l.CreateExpense(ExpenseRequest{Category: "", Amount: decimal.Zero}); !errors.Is(err, validators.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if _, err := l.CreateExpense(ExpenseRequest{CarID: uuid.NullUUID{UUID: uuid.New(), Valid: true}, Category: "repair", Amount: decimal.NewFromInt(1)}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown car, got %v", err)
	}

	if err := l.DeleteExpense(expense.ID); err != nil {
		t.Fatalf("Failed to delete expense: %v", err)
	}
	list, _ := l.ListExpenses(store.Period{})
	if len(list) != 0 {
		t.Errorf("Expected no expenses, got %d", len(list))
	}
}

func TestSalesAnalysis(t *testing.T) {
	l, _ := newTestLedger(jan15)
	ctx := context.Background()

	cashCar := addCar(t, l, 80000, 95000)
	financedCar := addCar(t, l, 90000, 100000)
	addCar(t, l, 50000, 60000)

	l.SellCar(cashCar.ID, CashSale{CustomerName: "Anan"})
	l.CreateExpense(ExpenseRequest{Category: "rent", Amount: decimal.NewFromInt(5000)})

	l.now = func() time.Time { return time.Date(2024, 2, 3, 9, 0, 0, 0, time.UTC) }
	id := showroomContract(t, l, financedCar, 48).Contract.ID
	l.RecordMonthlyPayment(ctx, id, 1, decimal.Zero)

	a, err := l.SalesAnalysis(ctx, store.Period{})
	if err != nil {
		t.Fatalf("SalesAnalysis failed: %v", err)
	}

	if a.CarsSold != 2 || a.CashSales != 1 || a.InstallmentSales != 1 {
		t.Errorf("Expected 2 sales (1 cash, 1 installment), got %d (%d, %d)", a.CarsSold, a.CashSales, a.InstallmentSales)
	}
	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"revenue", a.Revenue, "202000"},
		{"cost of goods", a.CostOfGoods, "170000"},
		{"gross profit", a.GrossProfit, "32000"},
		{"expenses", a.Expenses, "5000"},
		{"net profit", a.NetProfit, "27000"},
		{"installments collected", a.InstallmentsCollected, "2612.5"},
		{"outstanding receivables", a.OutstandingReceivables, "122787.5"},
		{"stock value", a.StockValue, "50000"},
	}
	for _, c := range checks {
		if !c.got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("Expected %s %s, got %s", c.name, c.want, c.got)
		}
	}

	if len(a.Months) != 2 || a.Months[0].Month != "2024-01" || a.Months[1].Month != "2024-02" {
		t.Fatalf("Expected January and February breakdowns, got %+v", a.Months)
	}
	if !a.Months[0].NetProfit.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Expected January net profit 10000, got %s", a.Months[0].NetProfit)
	}

	feb, _ := l.SalesAnalysis(ctx, store.Period{From: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)})
	if feb.CarsSold != 1 || !feb.Expenses.IsZero() {
		t.Errorf("Expected only the February installment sale, got %d sales and %s expenses", feb.CarsSold, feb.Expenses)
	}
}
