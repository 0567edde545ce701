package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/huddle-backend/pkg/db/models"
	"github.com/angelmondragon/huddle-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository exposes persistence helpers for board tasks and their edges.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, boardID, taskID string) (*models.Task, error)
	ListByBoard(ctx context.Context, boardID string) ([]models.Task, error)
	ListDependencies(ctx context.Context, boardID string) ([]models.TaskDependency, error)
	ReplaceDependencies(ctx context.Context, taskID string, dependsOn []string, now time.Time) error
	CountByStatus(ctx context.Context, boardID string, status enums.TaskStatus) (int64, error)
	UpdateStatus(ctx context.Context, taskID string, status enums.TaskStatus, now time.Time) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a tasks repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *repositoryImpl) Get(ctx context.Context, boardID, taskID string) (*models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).
		Where("board_id = ? AND id = ?", boardID, taskID).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *repositoryImpl) ListByBoard(ctx context.Context, boardID string) ([]models.Task, error) {
	var rows []models.Task
	err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) ListDependencies(ctx context.Context, boardID string) ([]models.TaskDependency, error) {
	var rows []models.TaskDependency
	err := r.db.WithContext(ctx).
		Model(&models.TaskDependency{}).
		Joins("JOIN tasks ON tasks.id = task_dependencies.task_id").
		Where("tasks.board_id = ?", boardID).
		Order("task_dependencies.task_id ASC, task_dependencies.depends_on_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) ReplaceDependencies(ctx context.Context, taskID string, dependsOn []string, now time.Time) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("task_id = ?", taskID).Delete(&models.TaskDependency{}).Error; err != nil {
		return err
	}
	if len(dependsOn) == 0 {
		return nil
	}
	rows := make([]models.TaskDependency, 0, len(dependsOn))
	for _, dep := range dependsOn {
		rows = append(rows, models.TaskDependency{TaskID: taskID, DependsOnID: dep, CreatedAt: now})
	}
	return db.Create(&rows).Error
}

func (r *repositoryImpl) CountByStatus(ctx context.Context, boardID string, status enums.TaskStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("board_id = ? AND status = ?", boardID, status).
		Count(&count).Error
	return count, err
}

func (r *repositoryImpl) UpdateStatus(ctx context.Context, taskID string, status enums.TaskStatus, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": now,
		}).Error
}
