package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// TxFunc is the body of a transaction. It may run more than once on contention.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption tunes a single RunTransaction call.
type TxOption func(*txSettings)

type txSettings struct {
	attempts int
	budget   time.Duration
}

// WithTxAttempts raises or lowers how often a contended transaction is retried.
func WithTxAttempts(attempts int) TxOption {
	return func(s *txSettings) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

var errTxArgs = errors.New("firestore: transaction needs a client and a function")

// RunTransaction runs fn with retries. The whole call, retries included, gets
// at most 15 seconds unless ctx already has a nearer deadline.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil || fn == nil {
		return WrapError("transaction", errTxArgs)
	}
	settings := txSettings{attempts: 5, budget: 15 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	ctx, cancel := withBudget(ctx, settings.budget)
	defer cancel()
	return WrapError("transaction", client.RunTransaction(ctx, fn, firestore.MaxAttempts(settings.attempts)))
}

func withBudget(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= budget {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, budget)
}
