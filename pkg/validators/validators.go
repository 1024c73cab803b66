package validators

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is the kind shared by every field-level validation failure.
var ErrInvalidInput = errors.New("invalid input")

const dateLayout = "2006-01-02"

// FieldError describes a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

// FieldErrors collects several field errors so a request can report all of them at once.
type FieldErrors []*FieldError

// Add appends err when it is a *FieldError or FieldErrors (or wraps one); nil is ignored.
func (fe *FieldErrors) Add(err error) {
	if err == nil {
		return
	}
	var many FieldErrors
	if errors.As(err, &many) {
		*fe = append(*fe, many...)
		return
	}
	var f *FieldError
	if errors.As(err, &f) {
		*fe = append(*fe, f)
		return
	}
	*fe = append(*fe, &FieldError{Field: "", Message: err.Error()})
}

// Err returns nil when nothing was collected.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

func (fe FieldErrors) Error() string {
	msgs := make([]string, 0, len(fe))
	for _, f := range fe {
		msgs = append(msgs, f.Error())
	}
	return strings.Join(msgs, "; ")
}

func (fe FieldErrors) Unwrap() error {
	return ErrInvalidInput
}

// Fields extracts the field errors carried by err, if any.
func Fields(err error) []*FieldError {
	var many FieldErrors
	if errors.As(err, &many) {
		return many
	}
	var one *FieldError
	if errors.As(err, &one) {
		return []*FieldError{one}
	}
	return nil
}

func invalid(name, value, format string, args ...interface{}) error {
	return &FieldError{Field: name, Message: fmt.Sprintf(format, args...), Value: value}
}

// Number parses a decimal number without a float round-trip. NaN and infinities are not
// valid decimals, so they are rejected too.
func Number(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, invalid(name, raw, "value is not a finite number")
	}
	return d, nil
}

// NonNegative requires value >= 0.
func NonNegative(name string, value decimal.Decimal) error {
	if value.IsNegative() {
		return invalid(name, value.String(), "value must be >= 0")
	}
	return nil
}

// Positive requires value > 0.
func Positive(name string, value decimal.Decimal) error {
	if !value.IsPositive() {
		return invalid(name, value.String(), "value must be > 0")
	}
	return nil
}

// GreaterThan requires value > other.
func GreaterThan(name string, value, other decimal.Decimal, otherName string) error {
	if !value.GreaterThan(other) {
		return invalid(name, value.String(), "value must be greater than %s (%s)", otherName, other.String())
	}
	return nil
}

// IntRange requires minInclusive <= value <= maxInclusive.
func IntRange(name string, value, minInclusive, maxInclusive int) error {
	if value < minInclusive || value > maxInclusive {
		return invalid(name, fmt.Sprint(value), "value must be in range [%d; %d]", minInclusive, maxInclusive)
	}
	return nil
}

// Required rejects empty or whitespace-only strings.
func Required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(name, value, "value is required")
	}
	return nil
}

// Missing reports a field that was not supplied at all.
func Missing(name string) error {
	return invalid(name, "", "value is required")
}

// Date parses a YYYY-MM-DD value. An empty string yields the zero time and no error.
func Date(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, invalid(name, value, "value must be a date in YYYY-MM-DD format")
	}
	return t, nil
}
