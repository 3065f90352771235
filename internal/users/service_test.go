package users

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shopflow/shopflow-backend/pkg/db/models"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"github.com/shopflow/shopflow-backend/pkg/logger"
)

type stubRepo struct {
	found      *models.User
	findErr    error
	migrated   *models.User
	migrateErr error
	migrations int
}

func (s *stubRepo) FindByExternalID(context.Context, string) (*models.User, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.found == nil {
		return nil, ErrNotFound
	}
	return s.found, nil
}

func (s *stubRepo) MigrateLegacyIfPresent(context.Context, string) (*models.User, error) {
	s.migrations++
	return s.migrated, s.migrateErr
}

func newTestService(t *testing.T, repo repository) *Service {
	t.Helper()
	svc, err := NewService(repo, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestLookupReturnsExistingRecord(t *testing.T) {
	ext := "u1"
	repo := &stubRepo{found: &models.User{ID: "row", ExternalID: &ext}}
	svc := newTestService(t, repo)

	user, err := svc.Lookup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "row" {
		t.Fatalf("unexpected user %+v", user)
	}
	if repo.migrations != 0 {
		t.Fatalf("expected no migration attempt, got %d", repo.migrations)
	}
}

func TestLookupMigratesLegacyRecord(t *testing.T) {
	ext := "u1"
	repo := &stubRepo{migrated: &models.User{ID: "u1", ExternalID: &ext}}
	svc := newTestService(t, repo)

	user, err := svc.Lookup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.SubjectID() != "u1" || repo.migrations != 1 {
		t.Fatalf("expected migrated record, got %+v (migrations=%d)", user, repo.migrations)
	}
}

func TestLookupNotFound(t *testing.T) {
	svc := newTestService(t, &stubRepo{})

	_, err := svc.Lookup(context.Background(), "ghost")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLookupPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := newTestService(t, &stubRepo{findErr: boom})

	if _, err := svc.Lookup(context.Background(), "u1"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestLookupRequiresSubject(t *testing.T) {
	svc := newTestService(t, &stubRepo{})
	if _, err := svc.Lookup(context.Background(), ""); pkgerrors.CodeOf(err) != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
