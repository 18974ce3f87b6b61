package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a non-negative monetary value in cents, sized for NUMERIC(12,2).
type Amount int64

// MaxAmount is the largest value NUMERIC(12,2) can hold.
const MaxAmount Amount = 999_999_999_999

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAmountOverflow = errors.New("amount exceeds 12 digits")
)

// ParseAmount parses a decimal string with at most two fraction digits.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && (frac == "" || len(frac) > 2)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
			}
		}
	}
	if len(strings.TrimLeft(whole, "0")) > 10 {
		return 0, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
	}

	for len(frac) < 2 {
		frac += "0"
	}

	cents, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	return Amount(cents), nil
}

// String formats the amount with exactly two fraction digits.
func (a Amount) String() string {
	return fmt.Sprintf("%d.%02d", int64(a)/100, int64(a)%100)
}

// Value stores the amount as a numeric literal.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}
