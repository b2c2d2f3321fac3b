package config

import (
	"os"
	"strings"
	"time"
)

const (
	StoreKindMemory   = "memory"
	StoreKindFile     = "file"
	StoreKindRedis    = "redis"
	StoreKindMySQL    = "mysql"
	StoreKindPostgres = "postgres"
)

// LedgerStoreKind selects the backing store.
//
// Set via env:
// - LEDGER_STORE=memory|file|redis|mysql|postgres (default file)
func LedgerStoreKind() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("LEDGER_STORE")))
	if v == "" {
		return StoreKindFile
	}
	return v
}

func LedgerFilePath() string {
	if v := strings.TrimSpace(os.Getenv("LEDGER_FILE")); v != "" {
		return v
	}
	return "ledger.json"
}

func RedisSnapshotKey() string {
	if v := strings.TrimSpace(os.Getenv("REDIS_SNAPSHOT_KEY")); v != "" {
		return v
	}
	return "shopledger:snapshot"
}

// ShopLocation is the time zone calendar days are counted in (reconciliation marker, nightly reset).
func ShopLocation() *time.Location {
	name := strings.TrimSpace(os.Getenv("SHOP_TIMEZONE"))
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// PhoneCountryCode enables phone validation for the given region, e.g. "MM". Empty disables it.
func PhoneCountryCode() string {
	return strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_COUNTRY_CODE")))
}

func ReconcileOnStart() bool {
	return boolFromEnv("RECONCILE_ON_START", true)
}

func DailyResetEnabled() bool {
	return boolFromEnv("DAILY_RESET_ENABLED", false)
}

func MetricsPrefix() string {
	if v := strings.TrimSpace(os.Getenv("METRICS_PREFIX")); v != "" {
		return v
	}
	return "shopledger"
}

func ServerPort() string {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		return v
	}
	return "8080"
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}
