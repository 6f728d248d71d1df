package models

import "time"

// RequestLog records token accounting for one completed request. Cache
// hits are logged with zero token counts.
type RequestLog struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	APIKeyID         uint      `gorm:"index" json:"api_key_id,omitzero"`
	UserID           uint      `gorm:"index" json:"user_id,omitzero"`
	Provider         string    `gorm:"size:50;index" json:"provider"`
	Model            string    `gorm:"size:100;index" json:"model"`
	UserQuery        string    `gorm:"type:text" json:"user_query,omitempty"`
	PromptTokens     int64     `gorm:"default:0" json:"prompt_tokens"`
	CompletionTokens int64     `gorm:"default:0" json:"completion_tokens"`
	TotalTokens      int64     `gorm:"default:0" json:"total_tokens"`
	CacheHit         bool      `gorm:"default:false" json:"cache_hit"`
	LatencyMs        int       `gorm:"default:0" json:"latency_ms"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}

// UsageStats aggregates request logs for a user or key.
type UsageStats struct {
	TotalRequests    int64 `json:"total_requests"`
	TotalTokens      int64 `json:"total_tokens"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	CacheHits        int64 `json:"cache_hits"`
}
