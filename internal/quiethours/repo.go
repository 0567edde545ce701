package quiethours

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/huddle-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists per-user quiet windows.
type Repository interface {
	Get(ctx context.Context, userID string) (*Window, error)
	Upsert(ctx context.Context, userID string, w Window, now time.Time) error
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Get(ctx context.Context, userID string) (*Window, error) {
	var pref models.QuietHoursPreference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Window{StartMinute: pref.StartMinute, EndMinute: pref.EndMinute}, nil
}

func (r *repositoryImpl) Upsert(ctx context.Context, userID string, w Window, now time.Time) error {
	pref := models.QuietHoursPreference{
		UserID:      userID,
		StartMinute: w.StartMinute,
		EndMinute:   w.EndMinute,
		UpdatedAt:   now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_minute", "end_minute", "updated_at"}),
	}).Create(&pref).Error
}
