package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopflow/shopflow-backend/internal/identity"
	"github.com/shopflow/shopflow-backend/internal/users"
	"github.com/shopflow/shopflow-backend/pkg/auth"
	"github.com/shopflow/shopflow-backend/pkg/db/models"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"github.com/shopflow/shopflow-backend/pkg/logger"
	"github.com/shopflow/shopflow-backend/pkg/types"
)

const (
	writeReplaced = "replaced"
	writeCreated  = "created"
	writeRejected = "rejected"
	writeFailed   = "failed"
)

type userStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	MigrateLegacyIfPresent(ctx context.Context, externalID string) (*models.User, error)
	UpsertFromIdentity(ctx context.Context, id identity.NormalizedIdentity) (*models.User, error)
	ReplaceCart(ctx context.Context, externalID string, cart types.Cart) (types.Cart, error)
}

// UserLookup fetches the provider's current user object.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (json.RawMessage, error)
}

// Recorder receives cart write observations.
type Recorder interface {
	IncCartWrite(result string)
}

// Subject identifies the authenticated caller of a cart write.
type Subject struct {
	ExternalID string
	Claims     *auth.SessionClaims
}

// Service exposes cart state operations.
type Service interface {
	GetCart(ctx context.Context, externalID string) (types.Cart, error)
	ReplaceCart(ctx context.Context, subject Subject, cart types.Cart) (types.Cart, error)
}

type ServiceParams struct {
	Users      userStore
	Lookup     UserLookup
	Normalizer identity.Normalizer
	Metrics    Recorder
	Logger     *logger.Logger
}

type service struct {
	users      userStore
	lookup     UserLookup
	normalizer identity.Normalizer
	metrics    Recorder
	logg       *logger.Logger
}

// NewService builds a cart service backed by the user store.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("user store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		users:      params.Users,
		lookup:     params.Lookup,
		normalizer: params.Normalizer,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

// GetCart returns the stored cart, or an empty one when the caller has no record yet.
func (s *service) GetCart(ctx context.Context, externalID string) (types.Cart, error) {
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	user, err := s.users.FindByExternalID(ctx, externalID)
	if errors.Is(err, users.ErrNotFound) {
		user, err = s.users.MigrateLegacyIfPresent(ctx, externalID)
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return types.Cart{}, nil
	}
	return user.Cart.Normalized(), nil
}

// ReplaceCart overwrites the caller's cart. A caller without a record gets
// one created from best-effort identity fields first. Concurrent replaces
// are last-writer-wins.
func (s *service) ReplaceCart(ctx context.Context, subject Subject, cart types.Cart) (types.Cart, error) {
	if subject.ExternalID == "" {
		s.record(writeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	ctx = s.logg.WithExternalID(ctx, subject.ExternalID)

	stored, err := s.users.ReplaceCart(ctx, subject.ExternalID, cart)
	if err == nil {
		s.record(writeReplaced)
		return stored, nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		s.record(writeFailed)
		return nil, err
	}

	if _, err := s.users.UpsertFromIdentity(ctx, s.bestEffortIdentity(ctx, subject)); err != nil {
		s.record(writeFailed)
		return nil, err
	}
	stored, err = s.users.ReplaceCart(ctx, subject.ExternalID, cart)
	if err != nil {
		s.record(writeFailed)
		return nil, err
	}
	s.logg.Info(ctx, "user created on first cart write")
	s.record(writeCreated)
	return stored, nil
}

// bestEffortIdentity prefers the provider's user object, then session
// claims, then a synthesized identity. The result is always provisional.
func (s *service) bestEffortIdentity(ctx context.Context, subject Subject) identity.NormalizedIdentity {
	if s.lookup != nil {
		raw, err := s.lookup.GetUser(ctx, subject.ExternalID)
		if err == nil {
			id, normErr := s.normalizer.Normalize(raw)
			if normErr == nil && id.ExternalID == subject.ExternalID {
				return identity.Provisional(id)
			}
			err = normErr
		}
		if err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("provider user lookup failed, using session claims: %v", err))
		}
	}

	claims := subject.Claims
	if claims == nil || claims.ExternalID() != subject.ExternalID {
		claims = &auth.SessionClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject.ExternalID}}
	}
	id, err := s.normalizer.FromSessionClaims(claims)
	if err != nil {
		// Blank subject; the store rejects it.
		return identity.Provisional(identity.NormalizedIdentity{ExternalID: subject.ExternalID})
	}
	return id
}

func (s *service) record(result string) {
	if s.metrics != nil {
		s.metrics.IncCartWrite(result)
	}
}
