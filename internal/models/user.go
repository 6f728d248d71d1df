package models

import "time"

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Email     string    `gorm:"size:255" json:"email,omitempty"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

func (r *UserCreateRequest) Validate() error {
	if r.Username == "" {
		return NewValidationError("username is required", nil)
	}
	if len(r.Username) > 255 {
		return NewValidationError("username must be at most 255 characters", nil)
	}
	return nil
}
