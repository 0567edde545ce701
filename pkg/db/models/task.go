package models

import (
	"time"

	"github.com/angelmondragon/huddle-backend/pkg/enums"
)

// Task is a board card whose dependencies are validated as a graph.
type Task struct {
	ID        string           `gorm:"type:text;primaryKey" json:"id"`
	BoardID   string           `gorm:"type:text;not null;index:idx_tasks_board_status,priority:1" json:"boardId"`
	Title     string           `gorm:"type:text;not null" json:"title"`
	Status    enums.TaskStatus `gorm:"type:text;not null;index:idx_tasks_board_status,priority:2" json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// TaskDependency is one edge: TaskID depends on DependsOnID.
type TaskDependency struct {
	TaskID      string    `gorm:"type:text;primaryKey"`
	DependsOnID string    `gorm:"type:text;primaryKey"`
	CreatedAt   time.Time `gorm:"not null"`
}
