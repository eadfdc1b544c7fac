package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
)

// GormIdentityRepository serves the identity directory from an SQL mirror of the Users board.
type GormIdentityRepository struct{ db *gorm.DB }

func NewIdentityRepository(db *gorm.DB) *GormIdentityRepository {
	return &GormIdentityRepository{db: db}
}

func (r *GormIdentityRepository) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	var identity domain.Identity
	err := r.db.WithContext(ctx).Where("lower(email) = ?", domain.NormalizeEmail(email)).First(&identity).Error
	return r.result(ctx, "by_email", &identity, err)
}

func (r *GormIdentityRepository) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	var identity domain.Identity
	err := r.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).First(&identity).Error
	return r.result(ctx, "by_id", &identity, err)
}

// Upsert stores identity keyed by id, storing the email in normalized form.
func (r *GormIdentityRepository) Upsert(ctx context.Context, identity *domain.Identity) error {
	identity.Email = domain.NormalizeEmail(identity.Email)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "company_id", "updated_at"}),
	}).Create(identity).Error
}

func (r *GormIdentityRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormIdentityRepository) result(ctx context.Context, strategy string, identity *domain.Identity, err error) (*domain.Identity, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordDirectoryLookup(ctx, "gorm", strategy, "not_found")
			return nil, domain.ErrIdentityNotFound
		}
		observability.RecordDirectoryLookup(ctx, "gorm", strategy, "error")
		return nil, err
	}
	observability.RecordDirectoryLookup(ctx, "gorm", strategy, "found")
	return identity, nil
}
