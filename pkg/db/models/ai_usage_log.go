package models

import (
	"time"

	"github.com/google/uuid"
)

// AIUsageLog is an append-only audit row for a single provider call.
type AIUsageLog struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:idx_ai_usage_logs_user_created"`
	Operation        string    `gorm:"column:operation;not null"`
	Model            string    `gorm:"column:model;not null"`
	PromptTokens     int64     `gorm:"column:prompt_tokens;not null;default:0"`
	CompletionTokens int64     `gorm:"column:completion_tokens;not null;default:0"`
	Success          bool      `gorm:"column:success;not null"`
	ErrorText        string    `gorm:"column:error_text;not null;default:''"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime;index:idx_ai_usage_logs_user_created"`
}

func (AIUsageLog) TableName() string {
	return "ai_usage_logs"
}
