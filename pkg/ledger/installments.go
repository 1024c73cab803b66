package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/carlot/pkg/amortization"
	"github.com/mcclellann/carlot/pkg/metrics"
	"github.com/mcclellann/carlot/pkg/models"
	"github.com/mcclellann/carlot/pkg/money"
	"github.com/mcclellann/carlot/pkg/schedule"
	"github.com/mcclellann/carlot/pkg/tracing"
	"github.com/mcclellann/carlot/pkg/validators"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// InstallmentRequest opens a financed sale of an available car.
type InstallmentRequest struct {
	CarID                   uuid.UUID
	CustomerName            string
	CustomerPhone           string
	CarValue                decimal.Decimal  // Zero uses the listing price
	VATPercent              *decimal.Decimal // Nil uses the configured rate
	DownPayment             decimal.Decimal
	InterestPerMonthPercent decimal.Decimal
	FinanceFees             decimal.Decimal
	TermMonths              int
	StartDate               time.Time // Zero starts today
}

// ContractDetail is a contract together with its derived schedule.
type ContractDetail struct {
	Contract  *models.InstallmentContract `json:"contract"`
	Schedule  *schedule.Schedule          `json:"schedule"`
	Summary   schedule.Summary            `json:"summary"`
	OwnerBook models.OwnerBookStatus      `json:"owner_book_status"`
}

// CreateInstallment prices the loan with the flat monthly-interest formula, stores the
// contract and its sale, and marks the car as sold.
func (l *Ledger) CreateInstallment(ctx context.Context, req InstallmentRequest) (*ContractDetail, error) {
	_, span := tracing.Tracer.Start(ctx, "ledger.CreateInstallment")
	defer span.End()

	var errs validators.FieldErrors
	errs.Add(validators.Required("customer_name", req.CustomerName))
	if req.CarID == uuid.Nil {
		errs.Add(validators.Missing("car_id"))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	unlock := l.lock(req.CarID)
	defer unlock()

	car, err := l.storage.GetCar(req.CarID)
	if err != nil {
		return nil, err
	}
	if car.Status != models.CarStatusAvailable {
		return nil, fmt.Errorf("cannot finance car %s: %w", car.ID, ErrCarNotAvailable)
	}

	input := amortization.InstallmentInput{
		CarValue:                req.CarValue,
		VATPercent:              l.opts.VATPercent,
		DownPayment:             req.DownPayment,
		InterestPerMonthPercent: req.InterestPerMonthPercent,
		FinanceFees:             req.FinanceFees,
		TermMonths:              req.TermMonths,
	}
	if input.CarValue.IsZero() {
		input.CarValue = car.ListingPrice
	}
	if req.VATPercent != nil {
		input.VATPercent = *req.VATPercent
	}
	breakdown, err := amortization.ComputeInstallment(input)
	if err != nil {
		return nil, err
	}

	now := l.now()
	start := req.StartDate
	if start.IsZero() {
		start = now.Truncate(24 * time.Hour)
	}

	contract := &models.InstallmentContract{
		ID:                      uuid.New(),
		CarID:                   car.ID,
		SaleID:                  uuid.New(),
		CustomerName:            req.CustomerName,
		CustomerPhone:           req.CustomerPhone,
		CarValue:                input.CarValue,
		VATPercent:              input.VATPercent,
		FinanceFees:             input.FinanceFees,
		DownPayment:             input.DownPayment,
		InterestPerMonthPercent: input.InterestPerMonthPercent,
		TermMonths:              input.TermMonths,
		MonthlyInstallment:      breakdown.MonthlyInstallment,
		TotalInterest:           breakdown.TotalInterest,
		TotalPayable:            breakdown.TotalPayable,
		StartDate:               start.UTC(),
		Status:                  models.ContractStatusActive,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	span.SetAttributes(attribute.String("contract.id", contract.ID.String()))

	sale := &models.Sale{
		ID:            contract.SaleID,
		CarID:         car.ID,
		Type:          models.SaleTypeInstallment,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Price:         breakdown.TotalWithVAT,
		ContractID:    uuid.NullUUID{UUID: contract.ID, Valid: true},
		SoldAt:        now,
	}
	car.Status = models.CarStatusSold
	car.UpdatedAt = now
	if err := l.storage.RecordSale(sale, contract, car); err != nil {
		return nil, fmt.Errorf("failed to store installment sale: %w", err)
	}

	if contract.DownPayment.IsPositive() {
		l.journal(contract.ID, contract.DownPayment, models.TransactionTypeDownPayment, now)
	}

	sched := schedule.Build(contract.StartDate, contract.TermMonths, money.Round(contract.MonthlyInstallment), nil)
	return l.detail(contract, sched), nil
}

// ListContracts retrieves contracts; an empty status lists all of them.
func (l *Ledger) ListContracts(status models.ContractStatus) ([]*models.InstallmentContract, error) {
	return l.storage.ListContracts(status)
}

// loadSchedule rebuilds the schedule of contract from its stored months.
func (l *Ledger) loadSchedule(contract *models.InstallmentContract) (*schedule.Schedule, error) {
	records, err := l.storage.GetMonthlyPayments(contract.ID)
	if err != nil {
		return nil, err
	}
	return schedule.Build(contract.StartDate, contract.TermMonths, money.Round(contract.MonthlyInstallment), records), nil
}

func (l *Ledger) detail(contract *models.InstallmentContract, sched *schedule.Schedule) *ContractDetail {
	return &ContractDetail{
		Contract:  contract,
		Schedule:  sched,
		Summary:   sched.Summarize(l.now()),
		OwnerBook: sched.OwnerBookStatus(contract.OwnerBookTransferredAt != nil),
	}
}

// GetSchedule returns the contract with its current schedule.
func (l *Ledger) GetSchedule(ctx context.Context, contractID uuid.UUID) (*ContractDetail, error) {
	_, span := tracing.Tracer.Start(ctx, "ledger.GetSchedule")
	defer span.End()

	contract, err := l.storage.GetContract(contractID)
	if err != nil {
		return nil, err
	}
	sched, err := l.loadSchedule(contract)
	if err != nil {
		return nil, err
	}
	return l.detail(contract, sched), nil
}

// RecordMonthlyPayment marks month as paid for the installment plus penalty. A positive
// penalty replaces the one already on the month. Paying a paid month changes nothing.
func (l *Ledger) RecordMonthlyPayment(ctx context.Context, contractID uuid.UUID, month int, penalty decimal.Decimal) (*ContractDetail, error) {
	_, span := tracing.Tracer.Start(ctx, "ledger.RecordMonthlyPayment")
	defer span.End()
	span.SetAttributes(attribute.String("contract.id", contractID.String()), attribute.Int("month", month))

	detail, err := l.recordMonthlyPayment(contractID, month, penalty)
	observe("paid", err)
	return detail, err
}

func (l *Ledger) recordMonthlyPayment(contractID uuid.UUID, month int, penalty decimal.Decimal) (*ContractDetail, error) {
	if err := validators.NonNegative("penalty_fee", penalty); err != nil {
		return nil, err
	}

	unlock := l.lock(contractID)
	defer unlock()

	contract, err := l.storage.GetContract(contractID)
	if err != nil {
		return nil, err
	}
	sched, err := l.loadSchedule(contract)
	if err != nil {
		return nil, err
	}

	now := l.now()
	changed, err := sched.MarkPaid(month, money.Round(penalty), now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return l.detail(contract, sched), nil
	}

	slot, _ := sched.Slot(month)
	payment := &models.MonthlyPayment{
		ContractID: contract.ID,
		Month:      month,
		Amount:     slot.PaidAmount,
		PenaltyFee: slot.PenaltyFee,
		Paid:       true,
		PaidAt:     &now,
		UpdatedAt:  now,
	}
	if err := l.storage.UpsertMonthlyPayment(payment); err != nil {
		return nil, err
	}
	l.journal(contract.ID, slot.PaidAmount, models.TransactionTypeInstallment, now)

	if sched.Complete() && contract.Status != models.ContractStatusCompleted {
		if err := l.setContractStatus(contract, models.ContractStatusCompleted, now); err != nil {
			return nil, err
		}
	}
	return l.detail(contract, sched), nil
}

// ResetMonthlyPayment returns a paid month to unpaid, keeping its penalty. Only the last
// paid month can be reset, and not after the owner book was handed over.
func (l *Ledger) ResetMonthlyPayment(ctx context.Context, contractID uuid.UUID, month int) (*ContractDetail, error) {
	_, span := tracing.Tracer.Start(ctx, "ledger.ResetMonthlyPayment")
	defer span.End()
	span.SetAttributes(attribute.String("contract.id", contractID.String()), attribute.Int("month", month))

	detail, err := l.resetMonthlyPayment(contractID, month)
	observe("reset", err)
	return detail, err
}

func (l *Ledger) resetMonthlyPayment(contractID uuid.UUID, month int) (*ContractDetail, error) {
	unlock := l.lock(contractID)
	defer unlock()

	contract, err := l.storage.GetContract(contractID)
	if err != nil {
		return nil, err
	}
	if contract.OwnerBookTransferredAt != nil {
		return nil, schedule.ErrAlreadyTransferred
	}
	sched, err := l.loadSchedule(contract)
	if err != nil {
		return nil, err
	}

	slot, err := sched.Slot(month)
	if err != nil {
		return nil, err
	}
	refund := slot.PaidAmount

	changed, err := sched.Reset(month)
	if err != nil {
		return nil, err
	}
	if !changed {
		return l.detail(contract, sched), nil
	}

	now := l.now()
	payment := &models.MonthlyPayment{
		ContractID: contract.ID,
		Month:      month,
		Amount:     decimal.Zero,
		PenaltyFee: slot.PenaltyFee,
		Paid:       false,
		UpdatedAt:  now,
	}
	if err := l.storage.UpsertMonthlyPayment(payment); err != nil {
		return nil, err
	}
	l.journal(contract.ID, refund.Neg(), models.TransactionTypeReversal, now)

	if contract.Status == models.ContractStatusCompleted {
		if err := l.setContractStatus(contract, models.ContractStatusActive, now); err != nil {
			return nil, err
		}
	}
	return l.detail(contract, sched), nil
}

// TransferOwnerBook hands the owner book to the customer once every month is paid.
func (l *Ledger) TransferOwnerBook(ctx context.Context, contractID uuid.UUID) (*ContractDetail, error) {
	_, span := tracing.Tracer.Start(ctx, "ledger.TransferOwnerBook")
	defer span.End()

	detail, err := l.transferOwnerBook(contractID)
	observe("transfer", err)
	return detail, err
}

func (l *Ledger) transferOwnerBook(contractID uuid.UUID) (*ContractDetail, error) {
	unlock := l.lock(contractID)
	defer unlock()

	contract, err := l.storage.GetContract(contractID)
	if err != nil {
		return nil, err
	}
	sched, err := l.loadSchedule(contract)
	if err != nil {
		return nil, err
	}
	if err := sched.CanTransfer(contract.OwnerBookTransferredAt != nil); err != nil {
		return nil, err
	}

	now := l.now()
	contract.OwnerBookTransferredAt = &now
	contract.UpdatedAt = now
	if err := l.storage.UpdateContract(contract); err != nil {
		contract.OwnerBookTransferredAt = nil
		return nil, fmt.Errorf("failed to record owner book transfer: %w", err)
	}
	return l.detail(contract, sched), nil
}

func (l *Ledger) setContractStatus(contract *models.InstallmentContract, status models.ContractStatus, at time.Time) error {
	previous := contract.Status
	contract.Status = status
	contract.UpdatedAt = at
	if err := l.storage.UpdateContract(contract); err != nil {
		contract.Status = previous
		return fmt.Errorf("failed to update contract status: %w", err)
	}
	return nil
}

func observe(action string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.PaymentActions.WithLabelValues(action, status).Inc()
}

// AssessLateFees charges the configured late fee on every unpaid month of an active
// contract that is more than GraceDays past due and carries no penalty yet. It returns
// the number of months charged. Running it again for the same day charges nothing.
func (l *Ledger) AssessLateFees(ctx context.Context, now time.Time) (int, error) {
	if !l.opts.LateFee.IsPositive() {
		return 0, nil
	}

	_, span := tracing.Tracer.Start(ctx, "ledger.AssessLateFees")
	defer span.End()

	contracts, err := l.storage.ListContracts(models.ContractStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to list active contracts: %w", err)
	}

	fee := money.Round(l.opts.LateFee)
	charged := 0
	for _, c := range contracts {
		n, err := l.assessContract(c.ID, fee, now)
		if err != nil {
			log.Printf("Error assessing late fees for contract %s: %v", c.ID, err)
		}
		charged += n
	}

	span.SetAttributes(attribute.Int("late_fees.charged", charged))
	return charged, nil
}

func (l *Ledger) assessContract(contractID uuid.UUID, fee decimal.Decimal, now time.Time) (int, error) {
	unlock := l.lock(contractID)
	defer unlock()

	contract, err := l.storage.GetContract(contractID)
	if err != nil {
		return 0, err
	}
	sched, err := l.loadSchedule(contract)
	if err != nil {
		return 0, err
	}

	charged := 0
	for _, slot := range sched.Slots {
		if slot.State == schedule.StatePaid || !slot.PenaltyFee.IsZero() {
			continue
		}
		if !now.After(slot.DueDate.AddDate(0, 0, l.opts.GraceDays)) {
			// Later months are due later still.
			break
		}
		payment := &models.MonthlyPayment{
			ContractID: contract.ID,
			Month:      slot.Month,
			Amount:     decimal.Zero,
			PenaltyFee: fee,
			Paid:       false,
			UpdatedAt:  now,
		}
		if err := l.storage.UpsertMonthlyPayment(payment); err != nil {
			return charged, err
		}
		metrics.LateFeesApplied.Inc()
		charged++
		log.Printf("Applied late fee %s to contract %s month %d", money.Format(fee), contract.ID, slot.Month)
	}
	return charged, nil
}
