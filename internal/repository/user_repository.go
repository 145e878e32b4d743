package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"starterkit/api/internal/database"
	"starterkit/api/internal/ids"
	"starterkit/api/internal/models"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrAccountNotLinked = errors.New("email belongs to another account")
)

// DBProvider hands out the shared database handle, building it on first use.
type DBProvider interface {
	Get(ctx context.Context) (*database.DB, error)
}

type UserRepository struct {
	db DBProvider
}

func NewUserRepository(db DBProvider) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) conn(ctx context.Context) (*gorm.DB, error) {
	db, err := r.db.Get(ctx)
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}

	if err := db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) first(ctx context.Context, query string, arg any) (models.User, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	if err := db.Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

type ProfileUpdate struct {
	Name  *string
	Image *string
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (models.User, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return models.User{}, err
	}

	changes := map[string]any{}
	if update.Name != nil {
		changes["name"] = *update.Name
	}
	if update.Image != nil {
		changes["image"] = *update.Image
	}
	if len(changes) > 0 {
		res := db.Model(&models.User{}).Where("id = ?", id).Updates(changes)
		if res.Error != nil {
			return models.User{}, res.Error
		}
		if res.RowsAffected == 0 {
			return models.User{}, ErrUserNotFound
		}
	}

	return r.GetByID(ctx, id)
}

func (r *UserRepository) List(ctx context.Context, limit int, offset int) ([]models.User, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var users []models.User
	if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UpsertOAuthUser resolves the user behind an OAuth identity in one transaction:
// a known account signs in its user, a verified email links to the existing user,
// anything else creates a new user with the account attached.
func (r *UserRepository) UpsertOAuthUser(ctx context.Context, identity models.OAuthIdentity) (models.User, bool, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return models.User{}, false, err
	}

	var (
		user    models.User
		created bool
	)
	err = db.Transaction(func(tx *gorm.DB) error {
		var account models.Account
		err := tx.Where("provider = ? AND provider_account_id = ?", identity.Provider, identity.ProviderAccountID).
			First(&account).Error
		switch {
		case err == nil:
			if err := tx.Model(&account).Updates(accountTokens(identity)).Error; err != nil {
				return fmt.Errorf("update account tokens: %w", err)
			}
			return tx.Where("id = ?", account.UserID).First(&user).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("find account: %w", err)
		}

		err = tx.Where("email = ?", identity.Email).First(&user).Error
		switch {
		case err == nil:
			if !identity.EmailVerified {
				return ErrAccountNotLinked
			}
			if err := tx.Model(&user).Updates(fillProfile(user, identity)).Error; err != nil {
				return fmt.Errorf("update user: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = newOAuthUser(identity)
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			created = true
		default:
			return fmt.Errorf("find user by email: %w", err)
		}

		account = models.Account{
			ID:                ids.New(),
			UserID:            user.ID,
			Provider:          identity.Provider,
			ProviderAccountID: identity.ProviderAccountID,
			AccessToken:       identity.AccessToken,
			RefreshToken:      identity.RefreshToken,
			TokenType:         identity.TokenType,
			Scope:             identity.Scope,
			ExpiresAt:         identity.ExpiresAt,
		}
		if err := tx.Create(&account).Error; err != nil {
			return fmt.Errorf("link account: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.User{}, false, err
	}
	return user, created, nil
}

func accountTokens(identity models.OAuthIdentity) map[string]any {
	return map[string]any{
		"access_token":  identity.AccessToken,
		"refresh_token": identity.RefreshToken,
		"token_type":    identity.TokenType,
		"scope":         identity.Scope,
		"expires_at":    identity.ExpiresAt,
	}
}

// fillProfile only fills gaps; it never overwrites what the user set themselves.
func fillProfile(user models.User, identity models.OAuthIdentity) map[string]any {
	changes := map[string]any{}
	if user.Name == "" && identity.Name != "" {
		changes["name"] = identity.Name
	}
	if user.Image == nil && identity.Picture != "" {
		changes["image"] = identity.Picture
	}
	if user.EmailVerifiedAt == nil && identity.EmailVerified {
		changes["email_verified_at"] = time.Now().UTC()
	}
	if len(changes) == 0 {
		changes["updated_at"] = time.Now().UTC()
	}
	return changes
}

func newOAuthUser(identity models.OAuthIdentity) models.User {
	user := models.User{
		ID:     ids.New(),
		Name:   identity.Name,
		Email:  identity.Email,
		Role:   models.UserRoleUser,
		Status: models.UserStatusActive,
	}
	if identity.Picture != "" {
		picture := identity.Picture
		user.Image = &picture
	}
	if identity.EmailVerified {
		now := time.Now().UTC()
		user.EmailVerifiedAt = &now
	}
	return user
}
