package models

import "time"

type Conversation struct {
	ID        uint      `gorm:"primaryKey" json:"conversation_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"size:255" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Messages []ConversationMessage `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

type ConversationMessage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index" json:"conversation_id"`
	Role           string    `gorm:"not null;size:20" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

type ConversationCreateRequest struct {
	Title string `json:"title,omitempty"`
}

type ConversationUpdateRequest struct {
	Title string `json:"title"`
}

func (r *ConversationUpdateRequest) Validate() error {
	if r.Title == "" {
		return NewValidationError("title is required", nil)
	}
	return nil
}

type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
	Total         int64          `json:"total"`
}
