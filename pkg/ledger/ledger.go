package ledger

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/carlot/pkg/models"
	"github.com/mcclellann/carlot/pkg/store"
	"github.com/mcclellann/carlot/pkg/validators"
	"github.com/shopspring/decimal"
)

const (
	minCarYear = 1900
	maxCarYear = 2100
	maxMileage = 10_000_000
)

// ErrCarNotAvailable is returned when a sold car is sold again or deleted.
var ErrCarNotAvailable = errors.New("car is not available")

// Options are the lending terms applied by the Ledger.
type Options struct {
	VATPercent decimal.Decimal // Default VAT for new contracts
	LateFee    decimal.Decimal // Zero disables AssessLateFees
	GraceDays  int
}

// Ledger handles the business logic for cars, sales, installment contracts and expenses.
type Ledger struct {
	storage store.Storage // Use the Storage interface
	opts    Options
	now     func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex // Serializes mutations per car or contract
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts Options) *Ledger {
	return &Ledger{
		storage: s,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// lock acquires the mutex for one car or contract and returns its release func.
func (l *Ledger) lock(id uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func validateCar(car *models.Car) error {
	var errs validators.FieldErrors
	errs.Add(validators.Required("brand", car.Brand))
	errs.Add(validators.Required("model", car.Model))
	errs.Add(validators.IntRange("year", car.Year, minCarYear, maxCarYear))
	errs.Add(validators.IntRange("mileage", car.Mileage, 0, maxMileage))
	errs.Add(validators.NonNegative("purchase_price", car.PurchasePrice))
	errs.Add(validators.NonNegative("listing_price", car.ListingPrice))
	return errs.Err()
}

// CreateCar adds a car to the stock as available.
func (l *Ledger) CreateCar(car *models.Car) (*models.Car, error) {
	if err := validateCar(car); err != nil {
		return nil, err
	}

	now := l.now()
	car.ID = uuid.New()
	car.Status = models.CarStatusAvailable
	car.CreatedAt = now
	car.UpdatedAt = now

	if err := l.storage.CreateCar(car); err != nil {
		return nil, fmt.Errorf("failed to store car: %w", err)
	}
	return car, nil
}

// GetCar retrieves a car by its ID.
func (l *Ledger) GetCar(id uuid.UUID) (*models.Car, error) {
	return l.storage.GetCar(id)
}

// ListCars retrieves cars; an empty status lists all of them.
func (l *Ledger) ListCars(status models.CarStatus) ([]*models.Car, error) {
	return l.storage.ListCars(store.CarFilter{Status: status})
}

// UpdateCar replaces the descriptive fields of a car. Status and creation time are
// owned by the ledger and kept from the stored record.
func (l *Ledger) UpdateCar(car *models.Car) (*models.Car, error) {
	if err := validateCar(car); err != nil {
		return nil, err
	}

	unlock := l.lock(car.ID)
	defer unlock()

	existing, err := l.storage.GetCar(car.ID)
	if err != nil {
		return nil, err
	}
	car.Status = existing.Status
	car.CreatedAt = existing.CreatedAt
	car.UpdatedAt = l.now()

	if err := l.storage.UpdateCar(car); err != nil {
		return nil, fmt.Errorf("failed to update car: %w", err)
	}
	return car, nil
}

// DeleteCar removes a car that has not been sold.
func (l *Ledger) DeleteCar(id uuid.UUID) error {
	unlock := l.lock(id)
	defer unlock()

	car, err := l.storage.GetCar(id)
	if err != nil {
		return err
	}
	if car.Status != models.CarStatusAvailable {
		return fmt.Errorf("cannot delete car %s: %w", id, ErrCarNotAvailable)
	}
	return l.storage.DeleteCar(id)
}

// CashSale is a request to sell a car outright.
type CashSale struct {
	CustomerName  string
	CustomerPhone string
	Price         decimal.Decimal // Zero sells at the listing price
}

// SellCar records a cash sale and marks the car as sold.
func (l *Ledger) SellCar(carID uuid.UUID, req CashSale) (*models.Sale, error) {
	var errs validators.FieldErrors
	errs.Add(validators.Required("customer_name", req.CustomerName))
	errs.Add(validators.NonNegative("price", req.Price))
	if err := errs.Err(); err != nil {
		return nil, err
	}

	unlock := l.lock(carID)
	defer unlock()

	car, err := l.storage.GetCar(carID)
	if err != nil {
		return nil, err
	}
	if car.Status != models.CarStatusAvailable {
		return nil, fmt.Errorf("cannot sell car %s: %w", carID, ErrCarNotAvailable)
	}

	price := req.Price
	if price.IsZero() {
		price = car.ListingPrice
	}

	now := l.now()
	sale := &models.Sale{
		ID:            uuid.New(),
		CarID:         car.ID,
		Type:          models.SaleTypeCash,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Price:         price,
		SoldAt:        now,
	}
	car.Status = models.CarStatusSold
	car.UpdatedAt = now
	if err := l.storage.RecordSale(sale, nil, car); err != nil {
		return nil, fmt.Errorf("failed to store sale: %w", err)
	}

	l.journal(sale.ID, price, models.TransactionTypeCashSale, now)
	return sale, nil
}

// ListSales retrieves the sales made within period.
func (l *Ledger) ListSales(period store.Period) ([]*models.Sale, error) {
	return l.storage.ListSales(period)
}

// journal appends a transaction. The business record is already stored, so a failure
// here is logged rather than returned.
func (l *Ledger) journal(ref uuid.UUID, amount decimal.Decimal, typ models.TransactionType, at time.Time) {
	transaction := &models.Transaction{
		ID:          uuid.New(),
		ReferenceID: ref,
		Amount:      amount,
		Type:        typ,
		Timestamp:   at,
	}
	if err := l.storage.CreateTransaction(transaction); err != nil {
		log.Printf("Error recording %s transaction for %s: %v", typ, ref, err)
	}
}
