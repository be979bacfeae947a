package treasure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Request moves Amount from the From balance to the To balance.
type Request struct {
	From      string
	To        string
	Amount    int64
	Initiator string
}

// Entry is a balance key with its value after a transfer.
type Entry struct {
	Key    string
	Amount int64
}

// Result carries both balances after a completed transfer.
type Result struct {
	ID   string
	From Entry
	To   Entry
}

// Balances returns the result keyed by balance name.
func (r Result) Balances() map[string]int64 {
	return map[string]int64{
		r.From.Key: r.From.Amount,
		r.To.Key:   r.To.Amount,
	}
}

// Record is what the journal keeps of a completed transfer.
type Record struct {
	ID          string
	From        string
	To          string
	Amount      int64
	FromBalance int64
	ToBalance   int64
	Initiator   string
	CreatedAt   time.Time
}

// Journal receives completed transfers. It is an audit trail only.
type Journal interface {
	Record(ctx context.Context, record Record) error
}

// Engine performs read-validate-write transfers between the two balances.
// The whole sequence runs under the pair lock so concurrent transfers on the
// same pair cannot overwrite each other with stale reads.
type Engine struct {
	Reader  Reader
	Locker  PairLocker
	Journal Journal
	Logger  *slog.Logger
}

// Transfer moves req.Amount from req.From to req.To.
//
// The two writes are not atomic with each other. If the second fails the
// first stays applied and a *PartialWriteError is returned.
func (e Engine) Transfer(ctx context.Context, req Request) (Result, error) {
	if req.Amount <= 0 {
		return Result{}, ErrInvalidAmount
	}
	fromSeed, ok := e.Reader.Ledger.SeedFor(req.From)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownBalance, req.From)
	}
	toSeed, ok := e.Reader.Ledger.SeedFor(req.To)
	if !ok || req.To == req.From {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownBalance, req.To)
	}

	logger := resolveLogger(e.Logger)
	result, err := e.apply(ctx, req, fromSeed, toSeed)
	if err != nil {
		logger.Warn("transfer failed",
			"event", "transfer_failed",
			"module", "treasure",
			"layer", "core",
			"from", req.From,
			"to", req.To,
			"amount", req.Amount,
			"error", err.Error(),
		)
		return Result{}, err
	}

	logger.Info("transfer applied",
		"event", "transfer_applied",
		"module", "treasure",
		"layer", "core",
		"transfer_id", result.ID,
		"from", req.From,
		"to", req.To,
		"amount", req.Amount,
		"from_balance", result.From.Amount,
		"to_balance", result.To.Amount,
	)
	e.journal(ctx, req, result)
	return result, nil
}

// Balance reads one of the ledger's known keys. A hit is served without
// locking; a miss takes the pair lock and reads again before seeding so the
// seed cannot land on top of a transfer that completed in between.
func (e Engine) Balance(ctx context.Context, key string) (int64, error) {
	seed, ok := e.Reader.Ledger.SeedFor(key)
	if !ok {
		return 0, ErrUnknownBalance
	}

	value, found, err := e.Reader.Store.Get(ctx, key)
	if err != nil {
		return 0, storeError("get", key, err)
	}
	if found {
		return value, nil
	}

	ledger := e.Reader.Ledger
	unlock, err := e.locker().Lock(ctx, ledger.ThiefKey, ledger.HolderKey)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return e.Reader.Read(ctx, key, seed)
}

func (e Engine) apply(ctx context.Context, req Request, fromSeed, toSeed int64) (Result, error) {
	unlock, err := e.locker().Lock(ctx, req.From, req.To)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var fromBalance, toBalance int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := e.Reader.Read(gctx, req.From, fromSeed)
		fromBalance = v
		return err
	})
	g.Go(func() error {
		v, err := e.Reader.Read(gctx, req.To, toSeed)
		toBalance = v
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if fromBalance < req.Amount {
		return Result{}, fmt.Errorf("%w: %s holds %d, %d requested", ErrInsufficientFunds, req.From, fromBalance, req.Amount)
	}
	newFrom := fromBalance - req.Amount
	newTo := toBalance + req.Amount
	if newTo < toBalance {
		return Result{}, fmt.Errorf("%w: %s would overflow", ErrInvalidAmount, req.To)
	}

	// Once the first write is issued the second must be attempted even if the
	// caller goes away.
	wctx := context.WithoutCancel(ctx)
	ttl := e.Reader.Ledger.ttl()
	if err := e.Reader.Store.Set(wctx, req.To, newTo, ttl); err != nil {
		return Result{}, storeError("set", req.To, err)
	}
	if err := e.Reader.Store.Set(wctx, req.From, newFrom, ttl); err != nil {
		return Result{}, &PartialWriteError{Written: req.To, Failed: req.From, Err: err}
	}

	return Result{
		ID:   uuid.NewString(),
		From: Entry{Key: req.From, Amount: newFrom},
		To:   Entry{Key: req.To, Amount: newTo},
	}, nil
}

func (e Engine) journal(ctx context.Context, req Request, result Result) {
	if e.Journal == nil {
		return
	}
	err := e.Journal.Record(context.WithoutCancel(ctx), Record{
		ID:          result.ID,
		From:        req.From,
		To:          req.To,
		Amount:      req.Amount,
		FromBalance: result.From.Amount,
		ToBalance:   result.To.Amount,
		Initiator:   req.Initiator,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		resolveLogger(e.Logger).Error("transfer journal write failed",
			"event", "transfer_journal_failed",
			"module", "treasure",
			"layer", "core",
			"transfer_id", result.ID,
			"error", err.Error(),
		)
	}
}

func (e Engine) locker() PairLocker {
	if e.Locker == nil {
		return defaultLocker
	}
	return e.Locker
}
