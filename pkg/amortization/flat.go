// Package amortization implements the two installment formulas used by the
// dealership: flat monthly interest on the financed principal, and the standard
// fixed-rate annuity. They give different monthly payments for identical inputs
// and are deliberately kept apart.
package amortization

import (
	"errors"

	"github.com/mcclellann/carlot/pkg/money"
	"github.com/mcclellann/carlot/pkg/validators"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput is returned (wrapped in field errors) when an input is missing,
	// non-finite or out of its domain.
	ErrInvalidInput = validators.ErrInvalidInput

	// ErrArithmeticDegenerate marks the zero-rate annuity case, which is computed with
	// the linear formula instead.
	ErrArithmeticDegenerate = errors.New("degenerate annuity: zero interest rate")

	hundred = decimal.NewFromInt(100)
)

// InstallmentInput is the flat-interest loan request.
type InstallmentInput struct {
	CarValue                decimal.Decimal `json:"car_value"`
	VATPercent              decimal.Decimal `json:"vat_percent"`
	DownPayment             decimal.Decimal `json:"down_payment"`
	InterestPerMonthPercent decimal.Decimal `json:"interest_per_month_percent"`
	FinanceFees             decimal.Decimal `json:"finance_fees"`
	TermMonths              int             `json:"term_months"`
}

// LoanBreakdown holds every derived quantity at full precision.
type LoanBreakdown struct {
	TotalWithVAT          decimal.Decimal `json:"total_with_vat"`
	TotalWithFees         decimal.Decimal `json:"total_with_fees"`
	RemainingPrincipal    decimal.Decimal `json:"remaining_principal"`
	MonthlyInterestAmount decimal.Decimal `json:"monthly_interest_amount"`
	TotalInterest         decimal.Decimal `json:"total_interest"`
	TotalPayable          decimal.Decimal `json:"total_payable"`
	MonthlyInstallment    decimal.Decimal `json:"monthly_installment"`
	TotalCustomerPayment  decimal.Decimal `json:"total_customer_payment"`
}

// Validate checks the domain of every input field and reports all violations.
func (in InstallmentInput) Validate() error {
	var errs validators.FieldErrors
	errs.Add(validators.Positive("car_value", in.CarValue))
	errs.Add(validators.NonNegative("vat_percent", in.VATPercent))
	errs.Add(validators.NonNegative("down_payment", in.DownPayment))
	errs.Add(validators.NonNegative("interest_per_month_percent", in.InterestPerMonthPercent))
	errs.Add(validators.NonNegative("finance_fees", in.FinanceFees))
	if in.TermMonths < 1 {
		errs.Add(validators.IntRange("term_months", in.TermMonths, 1, maxTermMonths))
	}
	return errs.Err()
}

// maxTermMonths only bounds the error message; terms above it are accepted.
const maxTermMonths = 600

// ComputeInstallment derives the flat monthly-interest breakdown. A down payment
// larger than the taxed price yields a negative remaining principal, which is accepted.
func ComputeInstallment(in InstallmentInput) (*LoanBreakdown, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	term := decimal.NewFromInt(int64(in.TermMonths))

	totalWithVAT := in.CarValue.Mul(decimal.NewFromInt(1).Add(in.VATPercent.Div(hundred)))
	totalWithFees := totalWithVAT.Add(in.FinanceFees)
	remaining := totalWithFees.Sub(in.DownPayment)
	monthlyInterest := remaining.Mul(in.InterestPerMonthPercent).Div(hundred)
	totalInterest := monthlyInterest.Mul(term)
	totalPayable := remaining.Add(totalInterest)

	return &LoanBreakdown{
		TotalWithVAT:          totalWithVAT,
		TotalWithFees:         totalWithFees,
		RemainingPrincipal:    remaining,
		MonthlyInterestAmount: monthlyInterest,
		TotalInterest:         totalInterest,
		TotalPayable:          totalPayable,
		MonthlyInstallment:    totalPayable.Div(term),
		TotalCustomerPayment:  in.DownPayment.Add(totalPayable),
	}, nil
}

// Display returns the breakdown rounded and formatted for people.
func (b *LoanBreakdown) Display() map[string]string {
	return map[string]string{
		"total_with_vat":          money.Format(b.TotalWithVAT),
		"total_with_fees":         money.Format(b.TotalWithFees),
		"remaining_principal":     money.Format(b.RemainingPrincipal),
		"monthly_interest_amount": money.Format(b.MonthlyInterestAmount),
		"total_interest":          money.Format(b.TotalInterest),
		"total_payable":           money.Format(b.TotalPayable),
		"monthly_installment":     money.Format(b.MonthlyInstallment),
		"total_customer_payment":  money.Format(b.TotalCustomerPayment),
	}
}
