package treasure

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTTL is how long a balance survives without a write.
const DefaultTTL = 60 * time.Second

// BalanceStore is the ephemeral cache holding the balances. Implementations
// only need single-key atomicity.
type BalanceStore interface {
	Get(ctx context.Context, key string) (int64, bool, error)
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Ledger is the fixed two-balance layout: which keys exist and what each is
// seeded with when found absent.
type Ledger struct {
	ThiefKey   string
	HolderKey  string
	ThiefSeed  int64
	HolderSeed int64
	TTL        time.Duration
}

// DefaultLedger returns the canonical thief/holder layout.
func DefaultLedger() Ledger {
	return Ledger{
		ThiefKey:   "thief-balance",
		HolderKey:  "holder-balance",
		ThiefSeed:  1000,
		HolderSeed: 0,
		TTL:        DefaultTTL,
	}
}

// SeedFor returns the seed of a known key.
func (l Ledger) SeedFor(key string) (int64, bool) {
	switch key {
	case l.ThiefKey:
		return l.ThiefSeed, true
	case l.HolderKey:
		return l.HolderSeed, true
	default:
		return 0, false
	}
}

func (l Ledger) ttl() time.Duration {
	if l.TTL <= 0 {
		return DefaultTTL
	}
	return l.TTL
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
