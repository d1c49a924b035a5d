package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/platform/timeouts"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

// DefaultMaxTries is how many times a transient failure is attempted.
const DefaultMaxTries = 3

// Resilient decorates an adapter with a per-call timeout and exponential
// backoff for transient failures. Other failures are returned at once.
type Resilient struct {
	next       Adapter
	timeout    time.Duration
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// ResilientOption configures a Resilient adapter.
type ResilientOption func(*Resilient)

// WithTimeout sets the budget for one call, retries included.
func WithTimeout(d time.Duration) ResilientOption {
	return func(r *Resilient) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxTries sets the attempt limit.
func WithMaxTries(n uint) ResilientOption {
	return func(r *Resilient) {
		if n > 0 {
			r.maxTries = n
		}
	}
}

// WithBackOff sets the policy used between attempts.
func WithBackOff(newBackOff func() backoff.BackOff) ResilientOption {
	return func(r *Resilient) {
		if newBackOff != nil {
			r.newBackOff = newBackOff
		}
	}
}

// NewResilient wraps next.
func NewResilient(next Adapter, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		next:     next,
		timeout:  timeouts.Storage,
		maxTries: DefaultMaxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadCatalog reads one catalog page.
func (r *Resilient) LoadCatalog(ctx context.Context, query CatalogQuery) (CampPage, error) {
	return retry(ctx, r, "load catalog", func(ctx context.Context) (CampPage, error) {
		return r.next.LoadCatalog(ctx, query)
	})
}

// Upsert writes one row.
func (r *Resilient) Upsert(ctx context.Context, collection Collection, row Row) (Row, error) {
	return retry(ctx, r, "upsert "+string(collection), func(ctx context.Context) (Row, error) {
		return r.next.Upsert(ctx, collection, row)
	})
}

// Delete removes one row.
func (r *Resilient) Delete(ctx context.Context, collection Collection, id string) error {
	_, err := retry(ctx, r, "delete "+string(collection), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.Delete(ctx, collection, id)
	})
	return err
}

// List reads matching rows.
func (r *Resilient) List(ctx context.Context, collection Collection, where Where) ([]Row, error) {
	return retry(ctx, r, "list "+string(collection), func(ctx context.Context) ([]Row, error) {
		return r.next.List(ctx, collection, where)
	})
}

// OnAuthChange forwards to the wrapped adapter.
func (r *Resilient) OnAuthChange(handler func(*domain.User)) func() {
	return r.next.OnAuthChange(handler)
}

func retry[T any](ctx context.Context, r *Resilient, op string, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := backoff.Retry(ctx, func() (T, error) {
		v, err := call(ctx)
		if err == nil {
			return v, nil
		}
		err = classify(ctx, err)
		if !apperrors.CodeOf(err).Retryable() {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Printf("storage %s: retrying in %s: %v", op, wait, err)
		}),
	)
	if err != nil {
		return result, classify(ctx, err)
	}
	return result, nil
}

// classify turns deadline expiry into a transient error.
func classify(ctx context.Context, err error) error {
	if apperrors.CodeOf(err) != apperrors.CodeUnknown {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.CodeTransient, "storage timed out", err)
	}
	return err
}

var _ Adapter = (*Resilient)(nil)
