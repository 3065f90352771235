package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopflow/shopflow-backend/pkg/config"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"github.com/shopflow/shopflow-backend/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const (
	defaultConnectTimeout = 10 * time.Second
	acquireKey            = "db"
)

// Opener establishes a new client. It must honour ctx for its deadline.
type Opener func(ctx context.Context) (*Client, error)

// PostgresOpener returns an Opener backed by New.
func PostgresOpener(cfg config.DBConfig, logg *logger.Logger) Opener {
	return func(ctx context.Context) (*Client, error) {
		return New(ctx, cfg, logg)
	}
}

// Cache owns the process-wide datastore handle. Concurrent cold-start callers
// share one initialization; failed initializations are not remembered.
type Cache struct {
	opener  Opener
	timeout time.Duration
	logg    *logger.Logger

	group singleflight.Group

	mu     sync.RWMutex
	client *Client
}

// NewCache constructs a lazily-initialized connection cache.
func NewCache(opener Opener, cfg config.DBConfig, logg *logger.Logger) *Cache {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	return &Cache{
		opener:  opener,
		timeout: timeout,
		logg:    logg,
	}
}

// Acquire returns the cached client, opening it on first use.
func (c *Cache) Acquire(ctx context.Context) (*Client, error) {
	if client := c.current(); client != nil {
		return client, nil
	}
	if c.opener == nil {
		return nil, connectionError(fmt.Errorf("%w: no opener configured", ErrConnection))
	}

	ch := c.group.DoChan(acquireKey, func() (any, error) {
		if client := c.current(); client != nil {
			return client, nil
		}

		// Detach from the first caller's cancellation; every waiter shares this attempt.
		openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		client, err := c.opener(openCtx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.client = client
		c.mu.Unlock()
		return client, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if c.logg != nil {
				c.logg.Error(ctx, "database acquire failed", res.Err)
			}
			return nil, connectionError(res.Err)
		}
		return res.Val.(*Client), nil
	case <-ctx.Done():
		return nil, connectionError(fmt.Errorf("%w: %v", ErrConnection, ctx.Err()))
	}
}

// Invalidate drops client if it is still the cached handle so the next
// Acquire reopens. Handles already replaced are left alone.
func (c *Cache) Invalidate(client *Client) {
	if client == nil {
		return
	}
	c.mu.Lock()
	if c.client != client {
		c.mu.Unlock()
		return
	}
	c.client = nil
	c.mu.Unlock()

	if err := client.Close(); err != nil && c.logg != nil {
		c.logg.Warn(context.Background(), fmt.Sprintf("closing invalidated db client: %v", err))
	}
}

// Ping acquires the handle and checks it responds.
func (c *Cache) Ping(ctx context.Context) error {
	client, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	return client.Ping(ctx)
}

// Close releases the cached handle, if any.
func (c *Cache) Close() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

func (c *Cache) current() *Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func connectionError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if !errors.Is(err, ErrConnection) {
		err = fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable")
}
