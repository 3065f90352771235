package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopflow/shopflow-backend/internal/identity"
	"github.com/shopflow/shopflow-backend/pkg/auth"
	"github.com/shopflow/shopflow-backend/pkg/db/models"
	"github.com/shopflow/shopflow-backend/pkg/enums"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"github.com/shopflow/shopflow-backend/pkg/logger"
)

// Resolution sources, highest precedence first.
const (
	SourceMetadata = "metadata"
	SourceToken    = "token"
	SourceStored   = "stored"
	SourceDefault  = "default"
)

type userStore interface {
	UpsertFromIdentity(ctx context.Context, id identity.NormalizedIdentity) (*models.User, error)
	SetRole(ctx context.Context, externalID string, role enums.UserRole) error
}

// MetadataPusher mirrors role changes into the identity provider.
type MetadataPusher interface {
	UpdatePublicMetadata(ctx context.Context, userID string, metadata map[string]any) error
}

// UserLookup reads the provider's current view of a user.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (json.RawMessage, error)
}

// Recorder receives resolution observations.
type Recorder interface {
	IncRoleResolution(source string)
}

// ProviderClaims carries the role hints available for a caller.
type ProviderClaims struct {
	// MetadataRole is the role in the provider's current public metadata.
	MetadataRole string
	// TokenRole is the role embedded in a previously issued session token.
	TokenRole string
}

type ServiceParams struct {
	Users      userStore
	Pusher     MetadataPusher
	Lookup     UserLookup
	Normalizer identity.Normalizer
	Metrics    Recorder
	Logger     *logger.Logger
}

// Service resolves and changes user roles.
type Service struct {
	users      userStore
	pusher     MetadataPusher
	lookup     UserLookup
	normalizer identity.Normalizer
	metrics    Recorder
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("user store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		users:      params.Users,
		pusher:     params.Pusher,
		lookup:     params.Lookup,
		normalizer: params.Normalizer,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

// ClaimsFor collects the role hints for an authenticated session. The
// provider's public metadata is read live when a lookup is configured;
// lookup failures fall through to the token claim.
func (s *Service) ClaimsFor(ctx context.Context, claims *auth.SessionClaims) ProviderClaims {
	var out ProviderClaims
	if claims == nil {
		return out
	}
	out.TokenRole = claims.Metadata.Role

	externalID := claims.ExternalID()
	if s.lookup == nil || externalID == "" {
		return out
	}
	raw, err := s.lookup.GetUser(ctx, externalID)
	if err != nil {
		s.logg.Warn(s.logg.WithExternalID(ctx, externalID), fmt.Sprintf("provider metadata lookup failed: %v", err))
		return out
	}
	current, err := s.normalizer.Normalize(raw)
	if err != nil {
		s.logg.Warn(s.logg.WithExternalID(ctx, externalID), fmt.Sprintf("provider user not usable: %v", err))
		return out
	}
	out.MetadataRole = current.MetadataRole
	return out
}

// Resolve picks the first valid role from claims metadata, the session token,
// the stored record and finally the default. When user is non-nil and the
// winner differs from its stored role, the new value is written back and
// user.Role is updated in place.
func (s *Service) Resolve(ctx context.Context, claims ProviderClaims, user *models.User) (enums.UserRole, error) {
	role, source := resolve(claims, user)
	if s.metrics != nil {
		s.metrics.IncRoleResolution(source)
	}
	if user == nil || user.Role == role {
		return role, nil
	}

	externalID := user.SubjectID()
	if err := s.users.SetRole(ctx, externalID, role); err != nil {
		return "", err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithExternalID(ctx, externalID), map[string]any{
		"previous_role": string(user.Role),
		"role":          string(role),
		"source":        source,
	}), "stored role converged")
	user.Role = role
	return role, nil
}

func resolve(claims ProviderClaims, user *models.User) (enums.UserRole, string) {
	if role, err := enums.ParseUserRole(claims.MetadataRole); err == nil {
		return role, SourceMetadata
	}
	if role, err := enums.ParseUserRole(claims.TokenRole); err == nil {
		return role, SourceToken
	}
	if user != nil && user.Role.IsValid() {
		return user.Role, SourceStored
	}
	return enums.UserRoleUser, SourceDefault
}

// Change validates raw and persists it for externalID, creating the record
// from fallback when absent. The provider metadata push is best-effort.
func (s *Service) Change(ctx context.Context, externalID, raw string, fallback identity.NormalizedIdentity) (enums.UserRole, error) {
	if externalID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	role, err := enums.ParseUserRole(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role").
			WithDetails(map[string]any{"allowed": []string{enums.UserRoleUser.String(), enums.UserRoleSeller.String()}})
	}

	fallback.ExternalID = externalID
	if _, err := s.users.UpsertFromIdentity(ctx, identity.Provisional(fallback)); err != nil {
		return "", err
	}
	if err := s.users.SetRole(ctx, externalID, role); err != nil {
		return "", err
	}

	ctx = s.logg.WithField(s.logg.WithExternalID(ctx, externalID), "role", role.String())
	s.push(ctx, externalID, role)
	s.logg.Info(ctx, "role changed")
	return role, nil
}

func (s *Service) push(ctx context.Context, externalID string, role enums.UserRole) {
	if s.pusher == nil {
		return
	}
	err := s.pusher.UpdatePublicMetadata(ctx, externalID, map[string]any{"role": role.String()})
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		s.logg.Warn(ctx, "role push canceled")
		return
	}
	s.logg.Warn(ctx, fmt.Sprintf("role push to identity provider failed: %v", err))
}
