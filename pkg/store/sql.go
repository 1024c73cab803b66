package store

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/carlot/pkg/models"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore manages the database connection and operations for SQLite or MySQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLiteStore opens (and creates if needed) a SQLite database file.
func NewSQLiteStore(dataSourceName string) (*SQLStore, error) {
	return Open("sqlite3", dataSourceName)
}

// Open connects to the given driver ("sqlite3" or "mysql") and initializes the schema.
// MySQL DSNs need parseTime=true.
func Open(driver, dataSourceName string) (*SQLStore, error) {
	if driver != "sqlite3" && driver != "mysql" {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if driver == "sqlite3" {
		// One writer at a time; avoids "database is locked" under concurrent requests.
		// It also keeps the per-connection pragmas below in effect.
		db.SetMaxOpenConns(1)
		// Manually enable foreign keys and WAL mode
		if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Printf("Database connection established (%s) and schema initialized.", driver)
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// Decimal fields are TEXT so no precision is lost in either dialect.
func (s *SQLStore) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS cars (
			id VARCHAR(36) PRIMARY KEY,
			brand VARCHAR(255) NOT NULL,
			model VARCHAR(255) NOT NULL,
			year INTEGER NOT NULL,
			color VARCHAR(64) NOT NULL DEFAULT '',
			license_plate VARCHAR(32) NOT NULL DEFAULT '',
			vin VARCHAR(32) NOT NULL DEFAULT '',
			mileage INTEGER NOT NULL DEFAULT 0,
			purchase_price TEXT NOT NULL,
			listing_price TEXT NOT NULL,
			status VARCHAR(16) NOT NULL,
			notes TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS contracts (
			id VARCHAR(36) PRIMARY KEY,
			car_id VARCHAR(36) NOT NULL,
			sale_id VARCHAR(36) NOT NULL,
			customer_name VARCHAR(255) NOT NULL,
			customer_phone VARCHAR(64) NOT NULL DEFAULT '',
			car_value TEXT NOT NULL,
			vat_percent TEXT NOT NULL,
			finance_fees TEXT NOT NULL,
			down_payment TEXT NOT NULL,
			interest_per_month_percent TEXT NOT NULL,
			term_months INTEGER NOT NULL,
			monthly_installment TEXT NOT NULL,
			total_interest TEXT NOT NULL,
			total_payable TEXT NOT NULL,
			start_date DATETIME NOT NULL,
			status VARCHAR(16) NOT NULL,
			owner_book_transferred_at DATETIME NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY(car_id) REFERENCES cars(id)
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id VARCHAR(36) PRIMARY KEY,
			car_id VARCHAR(36) NOT NULL,
			type VARCHAR(16) NOT NULL,
			customer_name VARCHAR(255) NOT NULL,
			customer_phone VARCHAR(64) NOT NULL DEFAULT '',
			price TEXT NOT NULL,
			contract_id VARCHAR(36) NULL,
			sold_at DATETIME NOT NULL,
			FOREIGN KEY(car_id) REFERENCES cars(id)
		)`,
		`CREATE TABLE IF NOT EXISTS monthly_payments (
			contract_id VARCHAR(36) NOT NULL,
			month INTEGER NOT NULL,
			amount TEXT NOT NULL,
			penalty_fee TEXT NOT NULL,
			paid BOOLEAN NOT NULL,
			paid_at DATETIME NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY(contract_id, month),
			FOREIGN KEY(contract_id) REFERENCES contracts(id)
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id VARCHAR(36) PRIMARY KEY,
			car_id VARCHAR(36) NULL,
			category VARCHAR(64) NOT NULL,
			description TEXT,
			amount TEXT NOT NULL,
			incurred_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(36) PRIMARY KEY,
			reference_id VARCHAR(36) NOT NULL,
			amount TEXT NOT NULL,
			type VARCHAR(32) NOT NULL,
			timestamp DATETIME NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// upsertPaymentSQL differs per dialect; both key on (contract_id, month).
func (s *SQLStore) upsertPaymentSQL() string {
	const insert = `INSERT INTO monthly_payments (contract_id, month, amount, penalty_fee, paid, paid_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if s.driver == "mysql" {
		return insert + ` ON DUPLICATE KEY UPDATE amount = VALUES(amount), penalty_fee = VALUES(penalty_fee),
		paid = VALUES(paid), paid_at = VALUES(paid_at), updated_at = VALUES(updated_at)`
	}
	return insert + ` ON CONFLICT(contract_id, month) DO UPDATE SET amount = excluded.amount,
		penalty_fee = excluded.penalty_fee, paid = excluded.paid, paid_at = excluded.paid_at, updated_at = excluded.updated_at`
}

// periodClause appends time bounds on column to the query.
func periodClause(query, column string, period Period) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if !period.From.IsZero() {
		conds = append(conds, column+" >= ?")
		args = append(args, period.From.UTC())
	}
	if !period.To.IsZero() {
		conds = append(conds, column+" < ?")
		args = append(args, period.To.UTC())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query + " ORDER BY " + column + " ASC", args
}

func checkAffected(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return nil
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// scanner is satisfied by *sql.Row and *sql.Rows.
// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const carColumns = `id, brand, model, year, color, license_plate, vin, mileage, purchase_price, listing_price, status, notes, created_at, updated_at`

// CreateCar inserts a new car.
func (s *SQLStore) CreateCar(car *models.Car) error {
	_, err := s.db.Exec(
		`INSERT INTO cars (`+carColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		car.ID.String(), car.Brand, car.Model, car.Year, car.Color, car.LicensePlate, car.VIN, car.Mileage,
		car.PurchasePrice, car.ListingPrice, car.Status, car.Notes, car.CreatedAt, car.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create car: %w", err)
	}
	return nil
}

func scanCar(row scanner) (*models.Car, error) {
	var car models.Car
	var idStr string
	var notes sql.NullString
	if err := row.Scan(&idStr, &car.Brand, &car.Model, &car.Year, &car.Color, &car.LicensePlate, &car.VIN, &car.Mileage,
		&car.PurchasePrice, &car.ListingPrice, &car.Status, &notes, &car.CreatedAt, &car.UpdatedAt); err != nil {
		return nil, err
	}
	car.ID = uuid.MustParse(idStr)
	car.Notes = notes.String
	return &car, nil
}

// GetCar retrieves a car by its ID.
func (s *SQLStore) GetCar(id uuid.UUID) (*models.Car, error) {
	car, err := scanCar(s.db.QueryRow(`SELECT `+carColumns+` FROM cars WHERE id = ?`, id.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("car %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get car: %w", err)
	}
	return car, nil
}

// UpdateCar updates an existing car.
func (s *SQLStore) UpdateCar(car *models.Car) error {
	return updateCar(s.db, car)
}

func updateCar(ex execer, car *models.Car) error {
	result, err := ex.Exec(
		`UPDATE cars SET brand = ?, model = ?, year = ?, color = ?, license_plate = ?, vin = ?, mileage = ?,
		purchase_price = ?, listing_price = ?, status = ?, notes = ?, updated_at = ? WHERE id = ?`,
		car.Brand, car.Model, car.Year, car.Color, car.LicensePlate, car.VIN, car.Mileage,
		car.PurchasePrice, car.ListingPrice, car.Status, car.Notes, car.UpdatedAt, car.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update car: %w", err)
	}
	return checkAffected(result, "car")
}

// DeleteCar removes a car together with its expenses within a transaction.
func (s *SQLStore) DeleteCar(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM expenses WHERE car_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete associated expenses: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM cars WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete car: %w", err)
	}
	if err := checkAffected(result, "car"); err != nil {
		return err
	}

	return tx.Commit()
}

// ListCars retrieves cars, optionally filtered by status.
func (s *SQLStore) ListCars(filter CarFilter) ([]*models.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars`
	var args []interface{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cars: %w", err)
	}
	defer rows.Close()

	var cars []*models.Car
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan car row: %w", err)
		}
		cars = append(cars, car)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return cars, nil
}

// CreateSale inserts a new sale.
func (s *SQLStore) CreateSale(sale *models.Sale) error {
	return insertSale(s.db, sale)
}

func insertSale(ex execer, sale *models.Sale) error {
	_, err := ex.Exec(
		`INSERT INTO sales (id, car_id, type, customer_name, customer_phone, price, contract_id, sold_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID.String(), sale.CarID.String(), sale.Type, sale.CustomerName, sale.CustomerPhone, sale.Price,
		sale.ContractID, sale.SoldAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}
	return nil
}

// RecordSale stores a sale, its contract when there is one, and the car's new status
// within a transaction.
func (s *SQLStore) RecordSale(sale *models.Sale, contract *models.InstallmentContract, car *models.Car) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if contract != nil {
		if err := insertContract(tx, contract); err != nil {
			return err
		}
	}
	if err := insertSale(tx, sale); err != nil {
		return err
	}
	if err := updateCar(tx, car); err != nil {
		return err
	}

	return tx.Commit()
}

// ListSales retrieves sales whose sold_at falls in period.
func (s *SQLStore) ListSales(period Period) ([]*models.Sale, error) {
	query, args := periodClause(`SELECT id, car_id, type, customer_name, customer_phone, price, contract_id, sold_at FROM sales`, "sold_at", period)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	var sales []*models.Sale
	for rows.Next() {
		var sale models.Sale
		var idStr, carIDStr string
		if err := rows.Scan(&idStr, &carIDStr, &sale.Type, &sale.CustomerName, &sale.CustomerPhone, &sale.Price,
			&sale.ContractID, &sale.SoldAt); err != nil {
			return nil, fmt.Errorf("failed to scan sale row: %w", err)
		}
		sale.ID = uuid.MustParse(idStr)
		sale.CarID = uuid.MustParse(carIDStr)
		sales = append(sales, &sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return sales, nil
}

const contractColumns = `id, car_id, sale_id, customer_name, customer_phone, car_value, vat_percent, finance_fees, down_payment,
	interest_per_month_percent, term_months, monthly_installment, total_interest, total_payable, start_date, status,
	owner_book_transferred_at, created_at, updated_at`

// CreateContract inserts a new installment contract.
func (s *SQLStore) CreateContract(c *models.InstallmentContract) error {
	return insertContract(s.db, c)
}

func insertContract(ex execer, c *models.InstallmentContract) error {
	_, err := ex.Exec(
		`INSERT INTO contracts (`+contractColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.CarID.String(), c.SaleID.String(), c.CustomerName, c.CustomerPhone, c.CarValue, c.VATPercent,
		c.FinanceFees, c.DownPayment, c.InterestPerMonthPercent, c.TermMonths, c.MonthlyInstallment, c.TotalInterest,
		c.TotalPayable, c.StartDate, c.Status, c.OwnerBookTransferredAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

func scanContract(row scanner) (*models.InstallmentContract, error) {
	var c models.InstallmentContract
	var idStr, carIDStr, saleIDStr string
	var transferred sql.NullTime
	if err := row.Scan(&idStr, &carIDStr, &saleIDStr, &c.CustomerName, &c.CustomerPhone, &c.CarValue, &c.VATPercent,
		&c.FinanceFees, &c.DownPayment, &c.InterestPerMonthPercent, &c.TermMonths, &c.MonthlyInstallment,
		&c.TotalInterest, &c.TotalPayable, &c.StartDate, &c.Status, &transferred, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = uuid.MustParse(idStr)
	c.CarID = uuid.MustParse(carIDStr)
	c.SaleID = uuid.MustParse(saleIDStr)
	c.OwnerBookTransferredAt = nullTime(transferred)
	return &c, nil
}

// GetContract retrieves a contract by its ID.
func (s *SQLStore) GetContract(id uuid.UUID) (*models.InstallmentContract, error) {
	c, err := scanContract(s.db.QueryRow(`SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("contract %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return c, nil
}

// UpdateContract updates the mutable parts of a contract.
func (s *SQLStore) UpdateContract(c *models.InstallmentContract) error {
	result, err := s.db.Exec(
		`UPDATE contracts SET customer_name = ?, customer_phone = ?, status = ?, owner_book_transferred_at = ?, updated_at = ? WHERE id = ?`,
		c.CustomerName, c.CustomerPhone, c.Status, c.OwnerBookTransferredAt, c.UpdatedAt, c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	return checkAffected(result, "contract")
}

// ListContracts retrieves contracts, optionally filtered by status.
func (s *SQLStore) ListContracts(status models.ContractStatus) ([]*models.InstallmentContract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*models.InstallmentContract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract row: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return contracts, nil
}

// UpsertMonthlyPayment writes the state of one contract month, replacing any previous row.
func (s *SQLStore) UpsertMonthlyPayment(p *models.MonthlyPayment) error {
	_, err := s.db.Exec(s.upsertPaymentSQL(),
		p.ContractID.String(), p.Month, p.Amount, p.PenaltyFee, p.Paid, p.PaidAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save payment for month %d: %w", p.Month, err)
	}
	return nil
}

// GetMonthlyPayments retrieves every stored month of a contract ordered by month.
func (s *SQLStore) GetMonthlyPayments(contractID uuid.UUID) ([]*models.MonthlyPayment, error) {
	rows, err := s.db.Query(
		`SELECT contract_id, month, amount, penalty_fee, paid, paid_at, updated_at FROM monthly_payments WHERE contract_id = ? ORDER BY month ASC`,
		contractID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for contract %s: %w", contractID, err)
	}
	defer rows.Close()

	var payments []*models.MonthlyPayment
	for rows.Next() {
		var p models.MonthlyPayment
		var contractIDStr string
		var paidAt sql.NullTime
		if err := rows.Scan(&contractIDStr, &p.Month, &p.Amount, &p.PenaltyFee, &p.Paid, &paidAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		p.ContractID = uuid.MustParse(contractIDStr)
		p.PaidAt = nullTime(paidAt)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for contract payments: %w", err)
	}
	return payments, nil
}

// CreateExpense inserts a new expense.
func (s *SQLStore) CreateExpense(e *models.Expense) error {
	_, err := s.db.Exec(
		`INSERT INTO expenses (id, car_id, category, description, amount, incurred_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.CarID, e.Category, e.Description, e.Amount, e.IncurredAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// DeleteExpense removes an expense.
func (s *SQLStore) DeleteExpense(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM expenses WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return checkAffected(result, "expense")
}

// ListExpenses retrieves expenses incurred within period.
func (s *SQLStore) ListExpenses(period Period) ([]*models.Expense, error) {
	query, args := periodClause(`SELECT id, car_id, category, description, amount, incurred_at, created_at FROM expenses`, "incurred_at", period)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*models.Expense
	for rows.Next() {
		var e models.Expense
		var idStr string
		var description sql.NullString
		if err := rows.Scan(&idStr, &e.CarID, &e.Category, &description, &e.Amount, &e.IncurredAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense row: %w", err)
		}
		e.ID = uuid.MustParse(idStr)
		e.Description = description.String
		expenses = append(expenses, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return expenses, nil
}

// CreateTransaction inserts a new journal entry.
func (s *SQLStore) CreateTransaction(transaction *models.Transaction) error {
	_, err := s.db.Exec(
		`INSERT INTO transactions (id, reference_id, amount, type, timestamp) VALUES (?, ?, ?, ?, ?)`,
		transaction.ID.String(), transaction.ReferenceID.String(), transaction.Amount, transaction.Type, transaction.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// ListTransactions retrieves journal entries within period ordered by time.
func (s *SQLStore) ListTransactions(period Period) ([]*models.Transaction, error) {
	query, args := periodClause(`SELECT id, reference_id, amount, type, timestamp FROM transactions`, "timestamp", period)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		var transaction models.Transaction
		var txIDStr, refIDStr string
		if err := rows.Scan(&txIDStr, &refIDStr, &transaction.Amount, &transaction.Type, &transaction.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transaction.ID = uuid.MustParse(txIDStr)
		transaction.ReferenceID = uuid.MustParse(refIDStr)
		transactions = append(transactions, &transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for transactions: %w", err)
	}
	return transactions, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
