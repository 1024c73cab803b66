package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/carlot/pkg/models"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// CarFilter narrows ListCars; the zero value lists every car.
type CarFilter struct {
	Status models.CarStatus
}

// Period bounds a time-ranged query. Zero bounds are open.
type Period struct {
	From time.Time
	To   time.Time
}

// Storage defines the interface for database operations of the dealership.
type Storage interface {
	CreateCar(car *models.Car) error
	GetCar(id uuid.UUID) (*models.Car, error)
	UpdateCar(car *models.Car) error
	DeleteCar(id uuid.UUID) error
	ListCars(filter CarFilter) ([]*models.Car, error)

	CreateSale(sale *models.Sale) error
	// RecordSale atomically stores sale, contract (nil for cash sales) and the sold car.
	RecordSale(sale *models.Sale, contract *models.InstallmentContract, car *models.Car) error
	ListSales(period Period) ([]*models.Sale, error)

	CreateContract(contract *models.InstallmentContract) error
	GetContract(id uuid.UUID) (*models.InstallmentContract, error)
	UpdateContract(contract *models.InstallmentContract) error
	ListContracts(status models.ContractStatus) ([]*models.InstallmentContract, error)

	UpsertMonthlyPayment(payment *models.MonthlyPayment) error
	GetMonthlyPayments(contractID uuid.UUID) ([]*models.MonthlyPayment, error)

	CreateExpense(expense *models.Expense) error
	DeleteExpense(id uuid.UUID) error
	ListExpenses(period Period) ([]*models.Expense, error)

	CreateTransaction(transaction *models.Transaction) error
	ListTransactions(period Period) ([]*models.Transaction, error)

	Close() error
}
