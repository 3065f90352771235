package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopflow/shopflow-backend/pkg/db/models"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"github.com/shopflow/shopflow-backend/pkg/logger"
)

type repository interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	MigrateLegacyIfPresent(ctx context.Context, externalID string) (*models.User, error)
}

// Service resolves user records for authenticated callers.
type Service struct {
	repo repository
	logg *logger.Logger
}

func NewService(repo repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, logg: logg}, nil
}

// Lookup finds the record for externalID, migrating a legacy row on the way.
// A subject with no record yields a CodeNotFound error.
func (s *Service) Lookup(ctx context.Context, externalID string) (*models.User, error) {
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	user, err := s.repo.FindByExternalID(ctx, externalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	migrated, err := s.repo.MigrateLegacyIfPresent(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if migrated == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	s.logg.Info(s.logg.WithExternalID(ctx, externalID), "legacy user migrated on read")
	return migrated, nil
}
