package amortization

import (
	"errors"

	"github.com/mcclellann/carlot/pkg/money"
	"github.com/mcclellann/carlot/pkg/validators"
	"github.com/shopspring/decimal"
)

var (
	one    = decimal.NewFromInt(1)
	twelve = decimal.NewFromInt(12)
)

// AnnuityResult is the fixed-payment loan summary.
type AnnuityResult struct {
	LoanAmount     decimal.Decimal `json:"loan_amount"`
	MonthlyRate    decimal.Decimal `json:"monthly_rate"`
	Months         int             `json:"months"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	TotalPayment   decimal.Decimal `json:"total_payment"`
	TotalInterest  decimal.Decimal `json:"total_interest"`
	// Linear is set when the rate is zero and the payment is loan / months.
	Linear bool `json:"linear"`
}

// ComputeAnnuityPayment applies M = L*r*(1+r)^n / ((1+r)^n - 1) with
// r = annualRatePercent/100/12 and n = termYears*12.
func ComputeAnnuityPayment(carPrice, downPayment, annualRatePercent decimal.Decimal, termYears int) (*AnnuityResult, error) {
	var errs validators.FieldErrors
	errs.Add(validators.Positive("car_price", carPrice))
	errs.Add(validators.NonNegative("down_payment", downPayment))
	errs.Add(validators.NonNegative("annual_rate_percent", annualRatePercent))
	if termYears < 1 {
		errs.Add(validators.IntRange("term_years", termYears, 1, maxTermMonths/12))
	}
	if carPrice.IsPositive() && !downPayment.IsNegative() {
		errs.Add(validators.GreaterThan("car_price", carPrice, downPayment, "down_payment"))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	loan := carPrice.Sub(downPayment)
	months := termYears * 12
	n := decimal.NewFromInt(int64(months))
	r := annualRatePercent.Div(hundred).Div(twelve)

	result := &AnnuityResult{
		LoanAmount:  loan,
		MonthlyRate: r,
		Months:      months,
	}

	factor, err := annuityFactor(r, months)
	switch {
	case errors.Is(err, ErrArithmeticDegenerate):
		result.MonthlyPayment = loan.Div(n)
		result.Linear = true
	case err != nil:
		return nil, err
	default:
		result.MonthlyPayment = loan.Mul(factor)
	}

	result.TotalPayment = result.MonthlyPayment.Mul(n)
	result.TotalInterest = result.TotalPayment.Sub(loan)
	return result, nil
}

// annuityFactor returns r*(1+r)^n / ((1+r)^n - 1). It reports ErrArithmeticDegenerate
// when the denominator vanishes, which only happens for r == 0.
func annuityFactor(r decimal.Decimal, months int) (decimal.Decimal, error) {
	if r.IsZero() {
		return decimal.Zero, ErrArithmeticDegenerate
	}
	growth := one.Add(r).Pow(decimal.NewFromInt(int64(months)))
	denominator := growth.Sub(one)
	if denominator.IsZero() {
		return decimal.Zero, ErrArithmeticDegenerate
	}
	return r.Mul(growth).Div(denominator), nil
}

// Display returns the result rounded and formatted for people.
func (a *AnnuityResult) Display() map[string]string {
	return map[string]string{
		"loan_amount":     money.Format(a.LoanAmount),
		"monthly_payment": money.Format(a.MonthlyPayment),
		"total_payment":   money.Format(a.TotalPayment),
		"total_interest":  money.Format(a.TotalInterest),
	}
}
