package models

import "time"

// QuietHoursPreference stores a user's notification quiet window as
// minutes after UTC midnight.
type QuietHoursPreference struct {
	UserID      string    `gorm:"type:text;primaryKey"`
	StartMinute int       `gorm:"not null"`
	EndMinute   int       `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}
