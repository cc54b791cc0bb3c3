package notify

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/printlink/print-platform/internal/models"
)

var ErrTokenNotFound = errors.New("notify: device token not found")

// TokenStore manages registered push endpoints.
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) ActiveTokens(ctx context.Context, userID uint64, userKind string) ([]models.DeviceToken, error) {
	var tokens []models.DeviceToken
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND user_kind = ? AND is_active = ?", userID, userKind, true).
		Find(&tokens).Error
	return tokens, err
}

// Register upserts a device token: a token moving to another account is
// rebound, not duplicated.
func (s *TokenStore) Register(ctx context.Context, userID uint64, userKind, token, platform string) (*models.DeviceToken, error) {
	if platform == "" {
		platform = "mobile"
	}

	var existing models.DeviceToken
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&existing).Error
	if err == nil {
		existing.UserID = userID
		existing.UserKind = userKind
		existing.Platform = platform
		existing.IsActive = true
		if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	dt := models.DeviceToken{
		UserID:   userID,
		UserKind: userKind,
		Token:    token,
		Platform: platform,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(&dt).Error; err != nil {
		return nil, err
	}
	return &dt, nil
}

func (s *TokenStore) Unregister(ctx context.Context, token string) error {
	res := s.db.WithContext(ctx).Model(&models.DeviceToken{}).
		Where("token = ?", token).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// Deactivate marks a token the push provider rejected; it is excluded from
// future sends.
func (s *TokenStore) Deactivate(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Model(&models.DeviceToken{}).
		Where("token = ?", token).
		Update("is_active", false).Error
}
