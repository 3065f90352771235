package repo

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopflow/shopflow-backend/pkg/config"
	"github.com/shopflow/shopflow-backend/pkg/db"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubConnections struct {
	client      *db.Client
	acquireErrs []error
	acquires    int
	invalidated int
}

func (s *stubConnections) Acquire(context.Context) (*db.Client, error) {
	s.acquires++
	if len(s.acquireErrs) > 0 {
		err := s.acquireErrs[0]
		s.acquireErrs = s.acquireErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.client, nil
}

func (s *stubConnections) Invalidate(*db.Client) {
	s.invalidated++
}

func newTestClient(t *testing.T) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	client, err := db.Open(context.Background(), sqlite.Open(dsn), config.DBConfig{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestBaseDoBindsOperationTimeout(t *testing.T) {
	conns := &stubConnections{client: newTestClient(t)}
	base := NewBase(conns, time.Second)

	err := base.Do(context.Background(), func(tx *gorm.DB) error {
		deadline, ok := tx.Statement.Context.Deadline()
		if !ok {
			t.Fatalf("expected deadline on bound context")
		}
		if time.Until(deadline) > time.Second {
			t.Fatalf("deadline exceeds configured timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBaseDoRetriesConnectionErrorOnce(t *testing.T) {
	conns := &stubConnections{client: newTestClient(t)}
	base := NewBase(conns, time.Second)

	calls := 0
	err := base.Do(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return driver.ErrBadConn
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 2 || conns.acquires != 2 {
		t.Fatalf("expected two attempts, got calls=%d acquires=%d", calls, conns.acquires)
	}
	if conns.invalidated != 1 {
		t.Fatalf("expected failed handle to be invalidated, got %d", conns.invalidated)
	}
}

func TestBaseDoSurfacesRetryableAfterSecondFailure(t *testing.T) {
	conns := &stubConnections{client: newTestClient(t)}
	base := NewBase(conns, time.Second)

	calls := 0
	err := base.Do(context.Background(), func(tx *gorm.DB) error {
		calls++
		return driver.ErrBadConn
	})
	if calls != 2 {
		t.Fatalf("expected exactly two attempts, got %d", calls)
	}
	if pkgerrors.CodeOf(err) != pkgerrors.CodeDependency || !pkgerrors.IsRetryable(err) {
		t.Fatalf("expected retryable dependency error, got %v", err)
	}
}

func TestBaseDoRetriesFailedAcquire(t *testing.T) {
	conns := &stubConnections{
		client:      newTestClient(t),
		acquireErrs: []error{fmt.Errorf("%w: refused", db.ErrConnection)},
	}
	base := NewBase(conns, time.Second)

	if err := base.Do(context.Background(), func(tx *gorm.DB) error { return nil }); err != nil {
		t.Fatalf("expected second acquisition to succeed, got %v", err)
	}
	if conns.acquires != 2 {
		t.Fatalf("expected two acquisitions, got %d", conns.acquires)
	}
}

func TestBaseDoDoesNotRetryQueryErrors(t *testing.T) {
	conns := &stubConnections{client: newTestClient(t)}
	base := NewBase(conns, time.Second)

	boom := errors.New("UNIQUE constraint failed: users.email")
	calls := 0
	err := base.Do(context.Background(), func(tx *gorm.DB) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected query error to pass through, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

type txRow struct {
	ID   int
	Name string
}

func TestBaseDoTxRollsBackAndRetries(t *testing.T) {
	client := newTestClient(t)
	if err := client.DB().AutoMigrate(&txRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conns := &stubConnections{client: client}
	base := NewBase(conns, time.Second)

	boom := errors.New("boom")
	err := base.DoTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&txRow{Name: "discarded"}).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	calls := 0
	err = base.DoTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if err := tx.Create(&txRow{Name: fmt.Sprintf("attempt-%d", calls)}).Error; err != nil {
			return err
		}
		if calls == 1 {
			return driver.ErrBadConn
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 || conns.invalidated != 1 {
		t.Fatalf("expected one retry with invalidation, calls=%d invalidated=%d", calls, conns.invalidated)
	}

	var names []string
	if err := client.DB().Model(&txRow{}).Order("id").Pluck("name", &names).Error; err != nil {
		t.Fatalf("pluck: %v", err)
	}
	if len(names) != 1 || names[0] != "attempt-2" {
		t.Fatalf("expected only the committed attempt, got %v", names)
	}
}
