package repository

import (
	"context"

	"starterkit/api/internal/models"
)

type AccountRepository struct {
	db DBProvider
}

func NewAccountRepository(db DBProvider) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID string) ([]models.Account, error) {
	db, err := r.db.Get(ctx)
	if err != nil {
		return nil, err
	}

	var accounts []models.Account
	if err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}
