package models

import (
	"time"

	"github.com/google/uuid"
)

// DailyUsage accumulates a user's AI consumption for a single calendar day.
type DailyUsage struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_daily_usage_user_date"`
	UsageDate    time.Time `gorm:"column:usage_date;type:date;not null;uniqueIndex:idx_daily_usage_user_date"`
	STRCount     int       `gorm:"column:str_count;not null;default:0"`
	InputTokens  int64     `gorm:"column:input_tokens;not null;default:0"`
	OutputTokens int64     `gorm:"column:output_tokens;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DailyUsage) TableName() string {
	return "daily_usage"
}
