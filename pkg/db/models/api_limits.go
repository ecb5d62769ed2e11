package models

import (
	"time"

	"github.com/google/uuid"
)

// ApiLimits is the per-user monthly quota ledger row. One row per user,
// rolled over when reset_date passes.
type ApiLimits struct {
	UserID                  uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	PlanID                  string    `gorm:"column:plan_id;not null"`
	STRsUsedMonthly         int       `gorm:"column:strs_used_monthly;not null;default:0"`
	InputTokensUsedMonthly  int64     `gorm:"column:input_tokens_used_monthly;not null;default:0"`
	OutputTokensUsedMonthly int64     `gorm:"column:output_tokens_used_monthly;not null;default:0"`
	ResetDate               time.Time `gorm:"column:reset_date;type:date;not null"`
	CreatedAt               time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ApiLimits) TableName() string {
	return "api_limits"
}
