package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GoldenRal/modSTR/pkg/db"
	"github.com/GoldenRal/modSTR/pkg/db/models"
)

// Repository exposes ledger persistence operations.
type Repository struct {
	client *db.Client
	db     *gorm.DB
}

// NewRepository constructs a quota repository tied to the provided database client.
func NewRepository(client *db.Client) *Repository {
	return &Repository{client: client, db: client.DB()}
}

// FindPlan loads a plan by id.
func (r *Repository) FindPlan(ctx context.Context, planID string) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).First(&plan, "id = ?", planID).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindDefaultPlan loads the plan flagged as default.
func (r *Repository) FindDefaultPlan(ctx context.Context) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).First(&plan, "is_default = ?", true).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListPlans returns all plans ordered by price.
func (r *Repository) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := r.db.WithContext(ctx).Order("price_monthly ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

// FindLimits loads the monthly ledger row for a user.
func (r *Repository) FindLimits(ctx context.Context, userID uuid.UUID) (*models.ApiLimits, error) {
	var limits models.ApiLimits
	if err := r.db.WithContext(ctx).First(&limits, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &limits, nil
}

// SaveLimits upserts the ledger row.
func (r *Repository) SaveLimits(ctx context.Context, limits *models.ApiLimits) error {
	return saveLimits(r.db.WithContext(ctx), limits)
}

func saveLimits(db *gorm.DB, limits *models.ApiLimits) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(limits).Error
}

// FindDailyUsage loads the usage row for one user and calendar day.
func (r *Repository) FindDailyUsage(ctx context.Context, userID uuid.UUID, day time.Time) (*models.DailyUsage, error) {
	var usage models.DailyUsage
	err := r.db.WithContext(ctx).
		First(&usage, "user_id = ? AND usage_date = ?", userID, day.Format("2006-01-02")).Error
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// upsertDailyUsage adds the deltas to the user's row for the given day,
// creating it when absent.
func upsertDailyUsage(db *gorm.DB, userID uuid.UUID, day time.Time, strDelta int, inputDelta, outputDelta int64) error {
	row := models.DailyUsage{
		UserID:       userID,
		UsageDate:    day,
		STRCount:     strDelta,
		InputTokens:  inputDelta,
		OutputTokens: outputDelta,
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "usage_date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"str_count":     gorm.Expr("daily_usage.str_count + ?", strDelta),
			"input_tokens":  gorm.Expr("daily_usage.input_tokens + ?", inputDelta),
			"output_tokens": gorm.Expr("daily_usage.output_tokens + ?", outputDelta),
			"updated_at":    time.Now().UTC(),
		}),
	}).Create(&row).Error
}

// ApplyCounters writes the ledger row and the day's usage deltas in one
// transaction so a failure between the two writes cannot skew the counters.
func (r *Repository) ApplyCounters(ctx context.Context, limits *models.ApiLimits, day time.Time, strDelta int, inputDelta, outputDelta int64) error {
	return r.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := saveLimits(tx, limits); err != nil {
			return err
		}
		return upsertDailyUsage(tx, limits.UserID, day, strDelta, inputDelta, outputDelta)
	})
}

// AppendUsageLog writes one audit row.
func (r *Repository) AppendUsageLog(ctx context.Context, row *models.AIUsageLog) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// ListStaleLimits returns ledger rows whose reset date falls before the
// given moment's month.
func (r *Repository) ListStaleLimits(ctx context.Context, now time.Time) ([]models.ApiLimits, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var rows []models.ApiLimits
	err := r.db.WithContext(ctx).
		Where("reset_date < ?", monthStart.Format("2006-01-02")).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
