package model

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"hotspot-billing/internal/domain"

	"github.com/shopspring/decimal"
)

// canonicalPhone is 254 + a 7xx/1xx subscriber number, 12 digits in total.
var canonicalPhone = regexp.MustCompile(`^254(7|1)\d{8}$`)

const canonicalPhoneLen = 12

// NormalizePhone turns local (07XXXXXXXX), bare (7XXXXXXXX / 1XXXXXXXX) and
// international (254XXXXXXXXX, optionally with '+') forms into 254XXXXXXXXX.
// Digits beyond the 12th of a 254-prefixed input are dropped; any other
// mismatch is rejected.
func NormalizePhone(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, strings.TrimPrefix(strings.TrimSpace(raw), "+"))

	if digits == "" {
		return "", fmt.Errorf("%w: no digits in %q", domain.ErrInvalidPhone, raw)
	}

	switch {
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = "254" + digits[1:]
	case len(digits) == 9 && (digits[0] == '7' || digits[0] == '1'):
		digits = "254" + digits
	case strings.HasPrefix(digits, "254") && len(digits) > canonicalPhoneLen:
		digits = digits[:canonicalPhoneLen]
	}

	if !strings.HasPrefix(digits, "254") {
		return "", fmt.Errorf("%w: unsupported format %q", domain.ErrInvalidPhone, raw)
	}
	if len(digits) != canonicalPhoneLen {
		return "", fmt.Errorf("%w: expected %d digits, got %d", domain.ErrInvalidPhone, canonicalPhoneLen, len(digits))
	}
	if !canonicalPhone.MatchString(digits) {
		return "", fmt.Errorf("%w: unsupported network prefix in %q", domain.ErrInvalidPhone, digits)
	}
	return digits, nil
}

// ValidateAmount accepts numbers and numeric strings, requires a finite value
// above zero, and rounds half away from zero to whole units.
func ValidateAmount(raw any) (int64, error) {
	d, err := toDecimal(raw)
	if err != nil {
		return 0, err
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: must be greater than zero", domain.ErrInvalidAmount)
	}
	r := d.Round(0)
	if !r.IsPositive() {
		return 0, fmt.Errorf("%w: %s rounds to zero", domain.ErrInvalidAmount, d.String())
	}
	if r.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0, fmt.Errorf("%w: %s is too large", domain.ErrInvalidAmount, d.String())
	}
	return r.IntPart(), nil
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case nil:
		return decimal.Decimal{}, fmt.Errorf("%w: required", domain.ErrInvalidAmount)
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, fmt.Errorf("%w: not a finite number", domain.ErrInvalidAmount)
		}
		return decimal.NewFromFloat(v), nil
	case decimal.Decimal:
		return v, nil
	case json.Number:
		return parseDecimal(v.String())
	case string:
		return parseDecimal(v)
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: unsupported type %T", domain.ErrInvalidAmount, raw)
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: required", domain.ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidAmount, s)
	}
	return d, nil
}
