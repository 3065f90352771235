package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopflow/shopflow-backend/internal/identity"
	"github.com/shopflow/shopflow-backend/internal/repo"
	"github.com/shopflow/shopflow-backend/pkg/db"
	"github.com/shopflow/shopflow-backend/pkg/db/models"
	"github.com/shopflow/shopflow-backend/pkg/enums"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"github.com/shopflow/shopflow-backend/pkg/types"
	"gorm.io/gorm"
)

const (
	maxUpsertAttempts    = 3
	defaultAvatarURL     = "/default-avatar.png"
	selectLegacyUserSQL  = `SELECT * FROM users WHERE id = ? AND external_id IS NULL LIMIT 1`
	migrateLegacyUserSQL = `UPDATE users SET external_id = ?, updated_at = ? WHERE id = ? AND external_id IS NULL`
)

// ErrNotFound is returned when no record exists for a subject.
var ErrNotFound = errors.New("user not found")

// Recorder receives repository observations.
type Recorder interface {
	IncLegacyMigration()
	IncUpsertRace()
}

// Repository exposes user-related persistence operations.
type Repository struct {
	base          repo.Base
	defaultAvatar string
	metrics       Recorder
	now           func() time.Time
	newID         func() string
}

// NewRepository constructs a users repo bound to the provided connection base.
func NewRepository(base repo.Base, defaultAvatar string, metrics Recorder) *Repository {
	if strings.TrimSpace(defaultAvatar) == "" {
		defaultAvatar = defaultAvatarURL
	}
	return &Repository{
		base:          base,
		defaultAvatar: defaultAvatar,
		metrics:       metrics,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// FindByExternalID loads the migrated record for externalID.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var user *models.User
	err := r.base.Do(ctx, func(tx *gorm.DB) error {
		found, err := findByExternalID(tx, externalID)
		user = found
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// MigrateLegacyIfPresent adopts a legacy row keyed by externalID in its
// primary key. It returns nil, nil when there is nothing to migrate.
func (r *Repository) MigrateLegacyIfPresent(ctx context.Context, externalID string) (*models.User, error) {
	var user *models.User
	err := r.base.DoTx(ctx, func(tx *gorm.DB) error {
		migrated, err := r.migrateLegacy(tx, externalID)
		user = migrated
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpsertFromIdentity creates or refreshes the record for id.ExternalID in one
// transaction, legacy adoption included. Role and cart are never touched on update. Duplicate-key races with a
// concurrent writer are retried as updates.
func (r *Repository) UpsertFromIdentity(ctx context.Context, id identity.NormalizedIdentity) (*models.User, error) {
	if strings.TrimSpace(id.ExternalID) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, identity.ErrMissingIdentity, "identity has no subject")
	}

	var lastErr error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		var user *models.User
		err := r.base.DoTx(ctx, func(tx *gorm.DB) error {
			stored, err := r.upsert(tx, id)
			user = stored
			return err
		})
		if err == nil {
			return user, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, err
		}

		owned, ownerErr := r.emailOwnedByOther(ctx, id)
		if ownerErr != nil {
			return nil, ownerErr
		}
		if owned {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already belongs to another user")
		}
		if r.metrics != nil {
			r.metrics.IncUpsertRace()
		}
		lastErr = err
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "user upsert did not converge")
}

// ReplaceCart overwrites the stored cart. Non-positive quantities are dropped.
func (r *Repository) ReplaceCart(ctx context.Context, externalID string, cart types.Cart) (types.Cart, error) {
	normalized := cart.Normalized()
	err := r.base.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("external_id = ?", externalID).
			Updates(map[string]any{"cart": normalized, "updated_at": r.now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// SetRole persists role for externalID.
func (r *Repository) SetRole(ctx context.Context, externalID string, role enums.UserRole) error {
	if !role.IsValid() {
		return fmt.Errorf("%w %q", enums.ErrInvalidRole, role)
	}
	return r.base.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("external_id = ?", externalID).
			Updates(map[string]any{"role": role, "updated_at": r.now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteByExternalID removes the record for externalID, including an
// unmigrated legacy row. It reports whether anything was removed.
func (r *Repository) DeleteByExternalID(ctx context.Context, externalID string) (bool, error) {
	var removed bool
	err := r.base.Do(ctx, func(tx *gorm.DB) error {
		res := tx.
			Where("external_id = ?", externalID).
			Or("(id = ? AND external_id IS NULL)", externalID).
			Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		return nil
	})
	return removed, err
}

func (r *Repository) upsert(tx *gorm.DB, id identity.NormalizedIdentity) (*models.User, error) {
	existing, err := findByExternalID(tx, id.ExternalID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing == nil {
		existing, err = r.migrateLegacy(tx, id.ExternalID)
		if err != nil {
			return nil, err
		}
	}
	if existing == nil {
		return r.create(tx, id)
	}
	if id.Provisional {
		return existing, nil
	}
	return r.refresh(tx, existing, id)
}

func (r *Repository) create(tx *gorm.DB, id identity.NormalizedIdentity) (*models.User, error) {
	externalID := id.ExternalID
	avatar := id.AvatarURL
	if avatar == "" {
		avatar = r.defaultAvatar
	}
	user := &models.User{
		ID:              r.newID(),
		ExternalID:      &externalID,
		Email:           id.Email,
		DisplayName:     id.DisplayName,
		AvatarURL:       avatar,
		Role:            enums.UserRoleUser,
		Cart:            types.Cart{},
		IdentityVersion: id.Version,
	}
	if err := tx.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// refresh applies identity-derived fields only. Older provider versions,
// synthesized emails and empty avatars never replace what is stored, so
// created/updated deliveries converge regardless of arrival order.
func (r *Repository) refresh(tx *gorm.DB, existing *models.User, id identity.NormalizedIdentity) (*models.User, error) {
	if id.Version > 0 && id.Version < existing.IdentityVersion {
		return existing, nil
	}

	updates := map[string]any{}
	if !id.EmailSynthesized && id.Email != "" && id.Email != existing.Email {
		updates["email"] = id.Email
	}
	if id.DisplayName != "" && id.DisplayName != existing.DisplayName {
		updates["display_name"] = id.DisplayName
	}
	if id.AvatarURL != "" && id.AvatarURL != existing.AvatarURL {
		updates["avatar_url"] = id.AvatarURL
	}
	if id.Version > existing.IdentityVersion {
		updates["identity_version"] = id.Version
	}
	if len(updates) == 0 {
		return existing, nil
	}
	updates["updated_at"] = r.now()

	if err := tx.Model(&models.User{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	var refreshed models.User
	if err := tx.First(&refreshed, "id = ?", existing.ID).Error; err != nil {
		return nil, err
	}
	return &refreshed, nil
}

// migrateLegacy uses raw SQL: legacy primary keys are provider ids, not
// the uuid shape new rows are created with.
func (r *Repository) migrateLegacy(tx *gorm.DB, externalID string) (*models.User, error) {
	var legacy models.User
	res := tx.Raw(selectLegacyUserSQL, externalID).Scan(&legacy)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	now := r.now()
	updated := tx.Exec(migrateLegacyUserSQL, externalID, now, externalID)
	if updated.Error != nil {
		return nil, updated.Error
	}
	if updated.RowsAffected == 0 {
		// Migrated concurrently; read the winner's result.
		found, err := findByExternalID(tx, externalID)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return found, err
	}

	if r.metrics != nil {
		r.metrics.IncLegacyMigration()
	}
	legacy.ExternalID = &externalID
	legacy.UpdatedAt = now
	return &legacy, nil
}

func (r *Repository) emailOwnedByOther(ctx context.Context, id identity.NormalizedIdentity) (bool, error) {
	if id.Email == "" {
		return false, nil
	}
	var count int64
	err := r.base.Do(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.User{}).
			Where("email = ?", id.Email).
			Where("(external_id IS NULL AND id <> ?) OR external_id <> ?", id.ExternalID, id.ExternalID).
			Count(&count).Error
	})
	return count > 0, err
}

func findByExternalID(tx *gorm.DB, externalID string) (*models.User, error) {
	var user models.User
	err := tx.Where("external_id = ?", externalID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
