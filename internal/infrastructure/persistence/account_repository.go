package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/marketsync/internal/domain/sync"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
)

// GormAccountRepository implements sync.AccountRepository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

var _ sync.AccountRepository = (*GormAccountRepository)(nil)

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// ---------------------------------------------------------------------------
// AccountReader implementation
// ---------------------------------------------------------------------------

// FindByID finds an account by its ID
func (r *GormAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.Account, error) {
	var model models.AccountModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByScope finds the account owning a scope
func (r *GormAccountRepository) FindByScope(ctx context.Context, scope string) (*sync.Account, error) {
	var model models.AccountModel
	if err := r.db.WithContext(ctx).First(&model, "scope = ?", scope).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalUserID finds an account by the marketplace user id
func (r *GormAccountRepository) FindByExternalUserID(ctx context.Context, externalUserID string) (*sync.Account, error) {
	var model models.AccountModel
	if err := r.db.WithContext(ctx).First(&model, "external_user_id = ?", externalUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ---------------------------------------------------------------------------
// AccountFinder implementation
// ---------------------------------------------------------------------------

// FindConnected returns all accounts in the connected state
func (r *GormAccountRepository) FindConnected(ctx context.Context) ([]sync.Account, error) {
	return r.findByState(ctx, sync.ConnectionStateConnected.String())
}

// FindAll returns all accounts regardless of state
func (r *GormAccountRepository) FindAll(ctx context.Context) ([]sync.Account, error) {
	return r.findByState(ctx, "")
}

func (r *GormAccountRepository) findByState(ctx context.Context, state string) ([]sync.Account, error) {
	query := r.db.WithContext(ctx).Order("created_at ASC")
	if state != "" {
		query = query.Where("state = ?", state)
	}

	var accountModels []models.AccountModel
	if err := query.Find(&accountModels).Error; err != nil {
		return nil, err
	}

	accounts := make([]sync.Account, len(accountModels))
	for i, model := range accountModels {
		accounts[i] = *model.ToDomain()
	}
	return accounts, nil
}

// ---------------------------------------------------------------------------
// AccountWriter implementation
// ---------------------------------------------------------------------------

// Save creates or updates an account
func (r *GormAccountRepository) Save(ctx context.Context, account *sync.Account) error {
	var model models.AccountModel
	model.FromDomain(account)
	return r.db.WithContext(ctx).Save(&model).Error
}

// UpdateTokenGrant replaces the token triple and connection state in a single
// UPDATE so no reader ever observes a partially applied grant.
func (r *GormAccountRepository) UpdateTokenGrant(ctx context.Context, id uuid.UUID, grant sync.TokenGrant) error {
	result := r.db.WithContext(ctx).Model(&models.AccountModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]any{
			"access_token":     grant.AccessToken,
			"refresh_token":    grant.RefreshToken,
			"token_expires_at": grant.ExpiresAt,
			"state":            sync.ConnectionStateConnected.String(),
			"last_error":       "",
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return sync.ErrAccountNotFound
	}
	return nil
}

// UpdateState updates the connection state and last error message
func (r *GormAccountRepository) UpdateState(ctx context.Context, id uuid.UUID, state sync.ConnectionState, lastError string) error {
	result := r.db.WithContext(ctx).Model(&models.AccountModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]any{
			"state":      state.String(),
			"last_error": lastError,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return sync.ErrAccountNotFound
	}
	return nil
}
