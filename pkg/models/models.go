package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CarStatus string

const (
	CarStatusAvailable CarStatus = "available"
	CarStatusSold      CarStatus = "sold"
)

type Car struct {
	ID            uuid.UUID       `json:"id"`
	Brand         string          `json:"brand"`
	Model         string          `json:"model"`
	Year          int             `json:"year"`
	Color         string          `json:"color"`
	LicensePlate  string          `json:"license_plate"` // Single spelling; aliases are mapped at the API boundary
	VIN           string          `json:"vin"`
	Mileage       int             `json:"mileage"`
	PurchasePrice decimal.Decimal `json:"purchase_price"` // What the dealership paid
	ListingPrice  decimal.Decimal `json:"listing_price"`  // Asking price before VAT
	Status        CarStatus       `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type SaleType string

const (
	SaleTypeCash        SaleType = "cash"
	SaleTypeInstallment SaleType = "installment"
)

type Sale struct {
	ID            uuid.UUID       `json:"id"`
	CarID         uuid.UUID       `json:"car_id"`
	Type          SaleType        `json:"type"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	Price         decimal.Decimal `json:"price"`       // Cash price, or the taxed price for installments
	ContractID    uuid.NullUUID   `json:"contract_id"` // Set for installment sales
	SoldAt        time.Time       `json:"sold_at"`
}

type ContractStatus string

const (
	ContractStatusActive    ContractStatus = "active"
	ContractStatusCompleted ContractStatus = "completed"
)

type OwnerBookStatus string

const (
	OwnerBookPending     OwnerBookStatus = "pending"
	OwnerBookReady       OwnerBookStatus = "ready"
	OwnerBookTransferred OwnerBookStatus = "transferred"
)

// InstallmentContract is a financed car sale repaid in equal monthly installments
// under the flat monthly-interest terms.
type InstallmentContract struct {
	ID                      uuid.UUID       `json:"id"`
	CarID                   uuid.UUID       `json:"car_id"`
	SaleID                  uuid.UUID       `json:"sale_id"`
	CustomerName            string          `json:"customer_name"`
	CustomerPhone           string          `json:"customer_phone,omitempty"`
	CarValue                decimal.Decimal `json:"car_value"`
	VATPercent              decimal.Decimal `json:"vat_percent"`
	FinanceFees             decimal.Decimal `json:"finance_fees"`
	DownPayment             decimal.Decimal `json:"down_payment"`
	InterestPerMonthPercent decimal.Decimal `json:"interest_per_month_percent"`
	TermMonths              int             `json:"term_months"`
	MonthlyInstallment      decimal.Decimal `json:"monthly_installment"`
	TotalInterest           decimal.Decimal `json:"total_interest"`
	TotalPayable            decimal.Decimal `json:"total_payable"`
	StartDate               time.Time       `json:"start_date"` // Month N is due StartDate + N months
	Status                  ContractStatus  `json:"status"`
	OwnerBookTransferredAt  *time.Time      `json:"owner_book_transferred_at,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// MonthlyPayment is the persisted state of one month of a contract. A reset row keeps
// Paid false and Amount zero; PenaltyFee survives a reset.
type MonthlyPayment struct {
	ContractID uuid.UUID       `json:"contract_id"`
	Month      int             `json:"month"`
	Amount     decimal.Decimal `json:"amount"`
	PenaltyFee decimal.Decimal `json:"penalty_fee"`
	Paid       bool            `json:"paid"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type Expense struct {
	ID          uuid.UUID       `json:"id"`
	CarID       uuid.NullUUID   `json:"car_id"` // Optional; general overhead has none
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	IncurredAt  time.Time       `json:"incurred_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

type TransactionType string

const (
	TransactionTypeCashSale    TransactionType = "cash_sale"
	TransactionTypeDownPayment TransactionType = "down_payment"
	TransactionTypeInstallment TransactionType = "installment"
	TransactionTypeReversal    TransactionType = "reversal"
	TransactionTypeExpense     TransactionType = "expense"
)

// Transaction is an append-only journal entry. Amounts are positive for money in and
// negative for money out (expenses, reversals).
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	ReferenceID uuid.UUID       `json:"reference_id"` // Sale, contract or expense
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Timestamp   time.Time       `json:"timestamp"`
}

// FieldError mirrors validators.FieldError on the wire.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Response is the envelope every API call returns.
type Response struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}
