package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Plan captures the subscription tier a user bills under, including the caps
// the quota ledger enforces.
type Plan struct {
	ID                       string          `gorm:"column:id;primaryKey"`
	Name                     string          `gorm:"column:name;not null"`
	MaxSTRsPerMonth          int             `gorm:"column:max_strs_per_month;not null"`
	MaxSTRsPerDay            int             `gorm:"column:max_strs_per_day;not null"`
	MaxInputTokensPerMonth   int64           `gorm:"column:max_input_tokens_per_month;not null"`
	MaxOutputTokensPerMonth  int64           `gorm:"column:max_output_tokens_per_month;not null"`
	MaxFileSizeMBPerDocument int             `gorm:"column:max_file_size_mb_per_document;not null"`
	MaxTotalUploadMBPerSTR   int             `gorm:"column:max_total_upload_mb_per_str;not null"`
	PriceMonthly             decimal.Decimal `gorm:"column:price_monthly;type:numeric(12,2);not null"`
	Features                 pq.StringArray  `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	IsDefault                bool            `gorm:"column:is_default;not null;default:false"`
	CreatedAt                time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Plan) TableName() string {
	return "plans"
}
