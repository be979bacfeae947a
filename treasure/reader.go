package treasure

import (
	"context"
	"log/slog"
)

// Reader resolves named balances, seeding absent ones.
type Reader struct {
	Store  BalanceStore
	Ledger Ledger
	Logger *slog.Logger
}

// Read returns the stored value of key, or writes seed with the standard TTL
// and returns it when the key is absent. A miss must be handled under the
// pair lock: a seed written after a concurrent transfer would overwrite it.
// Engine.Transfer and Engine.Balance both call Read with the lock held.
func (r Reader) Read(ctx context.Context, key string, seed int64) (int64, error) {
	value, found, err := r.Store.Get(ctx, key)
	if err != nil {
		return 0, storeError("get", key, err)
	}
	if found {
		return value, nil
	}

	if err := r.Store.Set(ctx, key, seed, r.Ledger.ttl()); err != nil {
		return 0, storeError("seed", key, err)
	}
	resolveLogger(r.Logger).Debug("balance seeded",
		"event", "balance_seeded",
		"module", "treasure",
		"layer", "core",
		"key", key,
		"seed", seed,
	)
	return seed, nil
}
