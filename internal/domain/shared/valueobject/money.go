package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Currency is an ISO 4217 currency code
type Currency string

const (
	NGN Currency = "NGN"
	KES Currency = "KES"
	GHS Currency = "GHS"
	UGX Currency = "UGX"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

var (
	ErrEmptyCurrency    = errors.New("currency cannot be empty")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrExcessPrecision  = errors.New("amount has more decimal places than the currency allows")
)

// ParseCurrency validates and upper-cases an ISO 4217 code
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", ErrEmptyCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("invalid currency %q: %w", code, err)
	}
	return Currency(unit.String()), nil
}

// Scale returns the number of minor-unit digits (2 for USD, 0 for UGX)
func (c Currency) Scale() int {
	unit, err := currency.ParseISO(string(c))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// Money is an amount in integer minor units. Money never holds a float.
type Money struct {
	minor    int64
	currency Currency
}

// NewMoney creates Money from minor units
func NewMoney(minor int64, c Currency) (Money, error) {
	if c == "" {
		return Money{}, ErrEmptyCurrency
	}
	return Money{minor: minor, currency: c}, nil
}

// MustMoney is NewMoney that panics, for constants and tests
func MustMoney(minor int64, c Currency) Money {
	m, err := NewMoney(minor, c)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMajor converts a major-unit decimal (e.g. 100.50 from a gateway) to
// minor units. Amounts finer than the currency's minor unit are rejected
// instead of being rounded.
func FromMajor(amount decimal.Decimal, c Currency) (Money, error) {
	if c == "" {
		return Money{}, ErrEmptyCurrency
	}
	shifted := amount.Shift(int32(c.Scale()))
	if !shifted.Equal(shifted.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: %s %s", ErrExcessPrecision, amount.String(), c)
	}
	return Money{minor: shifted.IntPart(), currency: c}, nil
}

// FromMajorString parses a decimal string in major units
func FromMajorString(amount string, c Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return FromMajor(d, c)
}

// Zero returns zero in the given currency
func Zero(c Currency) Money {
	return Money{currency: c}
}

// Minor returns the amount in minor units
func (m Money) Minor() int64 {
	return m.minor
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// Major returns the amount in major units as a decimal
func (m Money) Major() decimal.Decimal {
	return decimal.New(m.minor, -int32(m.currency.Scale()))
}

func (m Money) IsZero() bool     { return m.minor == 0 }
func (m Money) IsPositive() bool { return m.minor > 0 }
func (m Money) IsNegative() bool { return m.minor < 0 }

// Add returns m + other
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{minor: m.minor + other.minor, currency: m.currency}, nil
}

// Sub returns m - other
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{minor: m.minor - other.minor, currency: m.currency}, nil
}

// GreaterThan reports m > other; currencies must match
func (m Money) GreaterThan(other Money) (bool, error) {
	if err := m.sameCurrency(other); err != nil {
		return false, err
	}
	return m.minor > other.minor, nil
}

// Equals reports whether amount and currency are equal
func (m Money) Equals(other Money) bool {
	return m.minor == other.minor && m.currency == other.currency
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

// String formats the amount in major units, e.g. "1125.00 NGN"
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Major().StringFixed(int32(m.currency.Scale())), m.currency)
}

type moneyJSON struct {
	AmountMinor int64    `json:"amount_minor"`
	Currency    Currency `json:"currency"`
}

// MarshalJSON emits minor units and currency
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{AmountMinor: m.minor, Currency: m.currency})
}

// UnmarshalJSON reads the MarshalJSON form
func (m *Money) UnmarshalJSON(data []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.minor = v.AmountMinor
	m.currency = v.Currency
	return nil
}

// Value stores Currency as its code
func (c Currency) Value() (driver.Value, error) {
	return string(c), nil
}

// Scan reads a currency code column
func (c *Currency) Scan(value any) error {
	switch v := value.(type) {
	case string:
		*c = Currency(v)
	case []byte:
		*c = Currency(v)
	case nil:
		*c = ""
	default:
		return fmt.Errorf("cannot scan %T into Currency", value)
	}
	return nil
}
