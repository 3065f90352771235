package repo

import (
	"context"
	"errors"
	"time"

	"github.com/shopflow/shopflow-backend/pkg/db"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"gorm.io/gorm"
)

const (
	defaultOperationTimeout = 5 * time.Second
	maxAttempts             = 2
)

// Connections hands out the shared datastore handle.
type Connections interface {
	Acquire(ctx context.Context) (*db.Client, error)
	Invalidate(client *db.Client)
}

// Base provides a shared foundation for domain repositories.
type Base struct {
	conns   Connections
	timeout time.Duration
}

// NewBase constructs a Base repository backed by the provided connection source.
func NewBase(conns Connections, timeout time.Duration) Base {
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return Base{conns: conns, timeout: timeout}
}

// Do runs fn against a freshly acquired handle bound to the operation timeout.
// Connection-class failures are retried once with a new acquisition before
// surfacing as a retryable dependency error.
func (b Base) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.run(ctx, func(opCtx context.Context, client *db.Client) error {
		return fn(client.DB().WithContext(opCtx))
	})
}

// DoTx is Do with fn wrapped in a single transaction, so multi-statement
// writes commit or roll back together.
func (b Base) DoTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.run(ctx, func(opCtx context.Context, client *db.Client) error {
		return client.WithTx(opCtx, fn)
	})
}

func (b Base) run(ctx context.Context, op func(opCtx context.Context, client *db.Client) error) error {
	if b.conns == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "repository has no connection source")
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request cancelled")
		}

		client, err := b.conns.Acquire(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		opCtx, cancel := context.WithTimeout(ctx, b.timeout)
		err = op(opCtx, client)
		cancel()
		if err == nil {
			return nil
		}
		if !db.IsConnectionError(err) {
			return err
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			b.conns.Invalidate(client)
		}
		lastErr = err
	}

	if pkgerrors.As(lastErr) != nil {
		return lastErr
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, lastErr, "datastore operation failed")
}
