// Package schedule derives the month-by-month payment state of an installment
// contract and enforces that months are paid strictly in order.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcclellann/carlot/pkg/models"
	"github.com/shopspring/decimal"
)

type State string

const (
	StateLocked  State = "locked"  // An earlier month is still unpaid
	StatePending State = "pending" // The next month to pay
	StatePaid    State = "paid"
)

var (
	ErrMonthOutOfRange    = errors.New("month out of range")
	ErrMonthLocked        = errors.New("previous month is not paid")
	ErrLaterMonthPaid     = errors.New("a later month is already paid")
	ErrOwnerBookNotReady  = errors.New("owner book is not ready for transfer")
	ErrAlreadyTransferred = errors.New("owner book already transferred")
)

// Slot is one month of the schedule.
type Slot struct {
	Month       int             `json:"month"`
	DueDate     time.Time       `json:"due_date"`
	Installment decimal.Decimal `json:"installment"`
	PenaltyFee  decimal.Decimal `json:"penalty_fee"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	State       State           `json:"state"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
}

// Schedule holds every slot of one contract, ordered by month.
type Schedule struct {
	Slots []Slot `json:"slots"`
}

// Build lays out termMonths slots from startDate and applies the persisted records.
// Records for months outside 1..termMonths are ignored.
func Build(startDate time.Time, termMonths int, installment decimal.Decimal, records []*models.MonthlyPayment) *Schedule {
	s := &Schedule{Slots: make([]Slot, termMonths)}
	for i := range s.Slots {
		s.Slots[i] = Slot{
			Month:       i + 1,
			DueDate:     startDate.AddDate(0, i+1, 0),
			Installment: installment,
			PenaltyFee:  decimal.Zero,
			AmountDue:   installment,
			PaidAmount:  decimal.Zero,
		}
	}

	for _, rec := range records {
		if rec.Month < 1 || rec.Month > termMonths {
			continue
		}
		slot := &s.Slots[rec.Month-1]
		slot.PenaltyFee = rec.PenaltyFee
		slot.AmountDue = slot.Installment.Add(rec.PenaltyFee)
		if rec.Paid {
			slot.State = StatePaid
			slot.PaidAmount = rec.Amount
			slot.PaidAt = rec.PaidAt
		}
	}

	s.recompute()
	return s
}

// recompute unlocks the first unpaid month and locks every unpaid month after it.
func (s *Schedule) recompute() {
	unlocked := false
	for i := range s.Slots {
		slot := &s.Slots[i]
		if slot.State == StatePaid {
			continue
		}
		if !unlocked {
			slot.State = StatePending
			unlocked = true
		} else {
			slot.State = StateLocked
		}
	}
}

// Slot returns the slot for month (1-based).
func (s *Schedule) Slot(month int) (*Slot, error) {
	if month < 1 || month > len(s.Slots) {
		return nil, fmt.Errorf("%w: %d not in 1..%d", ErrMonthOutOfRange, month, len(s.Slots))
	}
	return &s.Slots[month-1], nil
}

// Next returns the pending slot, or nil when every month is paid.
func (s *Schedule) Next() *Slot {
	for i := range s.Slots {
		if s.Slots[i].State == StatePending {
			return &s.Slots[i]
		}
	}
	return nil
}

// MarkPaid records a payment of the installment plus penalty for month.
// Paying an already-paid month changes nothing.
func (s *Schedule) MarkPaid(month int, penalty decimal.Decimal, at time.Time) (bool, error) {
	slot, err := s.Slot(month)
	if err != nil {
		return false, err
	}
	switch slot.State {
	case StatePaid:
		return false, nil
	case StateLocked:
		return false, fmt.Errorf("%w: month %d", ErrMonthLocked, month)
	}

	if penalty.IsPositive() {
		slot.PenaltyFee = penalty
	}
	slot.AmountDue = slot.Installment.Add(slot.PenaltyFee)
	slot.PaidAmount = slot.AmountDue
	slot.PaidAt = &at
	slot.State = StatePaid
	s.recompute()
	return true, nil
}

// Reset returns a paid month to pending. Resetting an unpaid month changes nothing.
func (s *Schedule) Reset(month int) (bool, error) {
	slot, err := s.Slot(month)
	if err != nil {
		return false, err
	}
	if slot.State != StatePaid {
		return false, nil
	}
	for _, later := range s.Slots[month:] {
		if later.State == StatePaid {
			return false, fmt.Errorf("%w: month %d", ErrLaterMonthPaid, later.Month)
		}
	}

	slot.State = StatePending
	slot.PaidAmount = decimal.Zero
	slot.PaidAt = nil
	s.recompute()
	return true, nil
}

// PaidCount is the number of paid months.
func (s *Schedule) PaidCount() int {
	n := 0
	for _, slot := range s.Slots {
		if slot.State == StatePaid {
			n++
		}
	}
	return n
}

// Complete reports whether every month is paid.
func (s *Schedule) Complete() bool {
	return s.PaidCount() == len(s.Slots)
}

// OwnerBookStatus derives the owner-book state; transferred wins over everything.
func (s *Schedule) OwnerBookStatus(transferred bool) models.OwnerBookStatus {
	switch {
	case transferred:
		return models.OwnerBookTransferred
	case s.Complete():
		return models.OwnerBookReady
	default:
		return models.OwnerBookPending
	}
}

// CanTransfer checks that the owner book may be handed over.
func (s *Schedule) CanTransfer(transferred bool) error {
	switch s.OwnerBookStatus(transferred) {
	case models.OwnerBookTransferred:
		return ErrAlreadyTransferred
	case models.OwnerBookReady:
		return nil
	default:
		return fmt.Errorf("%w: %d of %d months paid", ErrOwnerBookNotReady, s.PaidCount(), len(s.Slots))
	}
}

// Summary aggregates the schedule.
type Summary struct {
	TotalMonths    int             `json:"total_months"`
	PaidMonths     int             `json:"paid_months"`
	UnpaidMonths   int             `json:"unpaid_months"`
	OverdueMonths  int             `json:"overdue_months"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	OutstandingDue decimal.Decimal `json:"outstanding_due"`
	TotalPenalties decimal.Decimal `json:"total_penalties"`
	NextDueMonth   int             `json:"next_due_month,omitempty"`
	NextDueDate    *time.Time      `json:"next_due_date,omitempty"`
	NextAmountDue  decimal.Decimal `json:"next_amount_due"`
}

// Summarize counts months unpaid past their due date as overdue relative to now.
func (s *Schedule) Summarize(now time.Time) Summary {
	sum := Summary{
		TotalMonths:    len(s.Slots),
		PaidAmount:     decimal.Zero,
		OutstandingDue: decimal.Zero,
		TotalPenalties: decimal.Zero,
		NextAmountDue:  decimal.Zero,
	}
	for _, slot := range s.Slots {
		sum.TotalPenalties = sum.TotalPenalties.Add(slot.PenaltyFee)
		if slot.State == StatePaid {
			sum.PaidMonths++
			sum.PaidAmount = sum.PaidAmount.Add(slot.PaidAmount)
			continue
		}
		sum.UnpaidMonths++
		sum.OutstandingDue = sum.OutstandingDue.Add(slot.AmountDue)
		if slot.DueDate.Before(now) {
			sum.OverdueMonths++
		}
	}
	if next := s.Next(); next != nil {
		due := next.DueDate
		sum.NextDueMonth = next.Month
		sum.NextDueDate = &due
		sum.NextAmountDue = next.AmountDue
	}
	return sum
}
