package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/shopledger_backend/config"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err
	}
	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}
	return nil
}

// NormalizePhone returns the E.164 form of phoneNumber for countryCode. An empty
// countryCode or phoneNumber passes the input through trimmed.
func NormalizePhone(phoneNumber, countryCode string) (string, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" || countryCode == "" {
		return phoneNumber, nil
	}
	if err := ValidatePhoneNumber(phoneNumber, countryCode); err != nil {
		return "", err
	}
	p, _ := libphonenumber.Parse(phoneNumber, countryCode)
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	var zero T
	if len(defaults) > 0 {
		return defaults[0]
	}
	return zero
}

// NilIfEmpty returns nil for the zero value, a pointer to a copy otherwise.
func NilIfEmpty[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// ParseAmount accepts user-formatted amounts such as "20,000", "MMK -20,000" or
// "Ks 1,234.50", keeping digits, '.', and a leading '-'.
func ParseAmount(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		return parseAmountString(v)
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	default:
		return decimal.Zero, fmt.Errorf("invalid amount %v", value)
	}
}

func parseAmountString(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s != "" {
		s = strings.ReplaceAll(s, ",", "")
		for _, token := range []string{"MMK", "mmk", "Ks", "ks"} {
			s = strings.ReplaceAll(s, token, "")
		}
		s = strings.TrimSpace(s)
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	var b strings.Builder
	b.Grow(len(s) + 1)
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	if neg {
		clean = "-" + clean
	}
	return decimal.NewFromString(clean)
}

// ObtainLock takes a redis lock on key and returns its release func. A nil locker means
// this process is the only writer and the lock is skipped.
func ObtainLock(ctx context.Context, locker *redislock.Client, key string, ttl time.Duration, moduleName string, functionName string) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	logger := config.GetLogger()
	lock, err := locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogWarn(logger, moduleName, functionName, "Lock held elsewhere", key, "could not obtain lock")
		return nil, err
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock", key, err)
		return nil, err
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}
