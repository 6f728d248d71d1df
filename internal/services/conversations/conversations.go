package conversations

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/database"
	"github.com/modelrelay/modelrelay/internal/utils"
)

// Service manages persistent conversations and their message history.
// Every operation is scoped to the owning user; a conversation belonging to
// someone else looks like it does not exist.
type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service {
	return &Service{db: db}
}

// Enabled reports whether conversation persistence is available.
func (s *Service) Enabled() bool {
	return s != nil && s.db != nil
}

// Create starts a conversation. An empty title gets a placeholder until the
// first user message names it.
func (s *Service) Create(ctx context.Context, userID uint, title string) (*models.Conversation, error) {
	if title == "" {
		title = "New conversation"
	}
	conv := &models.Conversation{
		UserID: userID,
		Title:  utils.TruncateQuery(title, 255),
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, models.NewInternalError("failed to create conversation", err)
	}
	return conv, nil
}

// Get loads a conversation with its messages in chronological order.
func (s *Service) Get(ctx context.Context, userID, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ? AND user_id = ?", id, userID).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("conversation not found")
	}
	if err != nil {
		return nil, models.NewInternalError("failed to load conversation", err)
	}
	return &conv, nil
}

// List returns a page of the user's conversations, most recent first.
func (s *Service) List(ctx context.Context, userID uint, limit, offset int) (*models.ConversationList, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, models.NewInternalError("failed to count conversations", err)
	}

	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&convs).Error
	if err != nil {
		return nil, models.NewInternalError("failed to list conversations", err)
	}

	return &models.ConversationList{Conversations: convs, Total: total}, nil
}

func (s *Service) UpdateTitle(ctx context.Context, userID, id uint, title string) (*models.Conversation, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("title", utils.TruncateQuery(title, 255))
	if res.Error != nil {
		return nil, models.NewInternalError("failed to update conversation", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, models.NewNotFoundError("conversation not found")
	}
	return s.Get(ctx, userID, id)
}

// Delete removes a conversation and its messages.
func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	conv, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&models.ConversationMessage{}).Error; err != nil {
			return models.NewInternalError("failed to delete conversation messages", err)
		}
		if err := tx.Delete(&models.Conversation{}, conv.ID).Error; err != nil {
			return models.NewInternalError("failed to delete conversation", err)
		}
		return nil
	})
}

// History returns the conversation's messages as chat turns for merging
// into an upstream request.
func (s *Service) History(ctx context.Context, userID, id uint) ([]models.ChatMessage, error) {
	conv, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	history := make([]models.ChatMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		history = append(history, models.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// Append stores new turns on a conversation and bumps its updated_at.
func (s *Service) Append(ctx context.Context, conversationID uint, msgs ...models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	rows := make([]models.ConversationMessage, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, models.ConversationMessage{
			ConversationID: conversationID,
			Role:           m.Role,
			Content:        m.Content,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rows).Error; err != nil {
			return models.NewInternalError("failed to append conversation messages", err)
		}
		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error; err != nil {
			return models.NewInternalError("failed to touch conversation", err)
		}
		return nil
	})
}
