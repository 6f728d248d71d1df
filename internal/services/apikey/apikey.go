package apikey

import (
	"context"
	"errors"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/database"
)

// Service manages users and their API keys. Keys are stored hashed; the
// plaintext is returned exactly once at creation.
type Service struct {
	db  *database.DB
	now func() time.Time
}

func NewService(db *database.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) CreateUser(ctx context.Context, req *models.UserCreateRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, models.NewInternalError("failed to create user", err)
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("user not found")
	}
	if err != nil {
		return nil, models.NewInternalError("failed to load user", err)
	}
	return &user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, models.NewInternalError("failed to list users", err)
	}
	return users, nil
}

// CreateKey mints a key for an existing active user.
func (s *Service) CreateKey(ctx context.Context, req *models.APIKeyCreateRequest) (*models.APIKeyResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, models.NewValidationError("user is not active", nil)
	}

	plaintext, err := models.GenerateAPIKey()
	if err != nil {
		return nil, models.NewInternalError("failed to generate key", err)
	}

	key := &models.APIKey{
		UserID:    req.UserID,
		Name:      req.Name,
		KeyHash:   models.HashAPIKey(plaintext),
		KeyPrefix: models.ExtractKeyPrefix(plaintext),
		IsActive:  true,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return nil, models.NewInternalError("failed to store key", err)
	}

	return &models.APIKeyResponse{
		ID:        key.ID,
		UserID:    key.UserID,
		Name:      key.Name,
		Key:       plaintext,
		KeyPrefix: key.KeyPrefix,
		IsActive:  key.IsActive,
		ExpiresAt: key.ExpiresAt,
		CreatedAt: key.CreatedAt,
	}, nil
}

func (s *Service) ListKeys(ctx context.Context, userID uint) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&keys).Error; err != nil {
		return nil, models.NewInternalError("failed to list keys", err)
	}
	return keys, nil
}

// RevokeKey deactivates a key without deleting its audit trail.
func (s *Service) RevokeKey(ctx context.Context, id uint) error {
	return s.setKeyActive(ctx, id, false)
}

// ActivateKey re-enables a previously revoked key.
func (s *Service) ActivateKey(ctx context.Context, id uint) error {
	return s.setKeyActive(ctx, id, true)
}

func (s *Service) setKeyActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return models.NewInternalError("failed to update key", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("api key not found")
	}
	return nil
}

// Validate resolves a plaintext key to its owner. Inactive, expired and
// unknown keys all fail identically so callers cannot probe key state.
func (s *Service) Validate(ctx context.Context, plaintext string) (*models.APIKey, error) {
	var key models.APIKey
	err := s.db.WithContext(ctx).
		Where("key_hash = ? AND is_active = ?", models.HashAPIKey(plaintext), true).
		First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewAuthenticationError("invalid API key")
	}
	if err != nil {
		return nil, models.NewInternalError("failed to validate key", err)
	}

	if key.Expired(s.now()) {
		return nil, models.NewAuthenticationError("invalid API key")
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, key.UserID).Error; err != nil || !user.IsActive {
		return nil, models.NewAuthenticationError("invalid API key")
	}

	s.touchLastUsed(ctx, key.ID)
	return &key, nil
}

func (s *Service) touchLastUsed(ctx context.Context, id uint) {
	now := s.now()
	if err := s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", now).Error; err != nil {
		fiberlog.Debugf("failed to update key last_used_at: %v", err)
	}
}
