package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

var DefaultAlertChoices = []string{
	"Fire",
	"Flood",
	"Earthquake",
	"Tornado",
	"Medical Emergency",
}

// AlertChoice 可选的告警类型
type AlertChoice struct {
	ID            uint      `json:"-" gorm:"primaryKey"`
	EmergencyName string    `json:"emergency_name" gorm:"size:100;uniqueIndex;not null" binding:"required,max=100"`
	CreatedAt     time.Time `json:"-"`
}

func (AlertChoice) TableName() string { return "alert_choices" }

// DisasterFeedback 对某条告警的反馈
type DisasterFeedback struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	Description        string    `json:"description" gorm:"type:text;not null"`
	DateTimeOfFeedback time.Time `json:"date_time_of_feedback"`
	AlertID            uint      `json:"alert" gorm:"index;not null"`
	Alert              *Alert    `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func SeedAlertChoices(ctx context.Context, db *gorm.DB) error {
	for _, name := range DefaultAlertChoices {
		choice := AlertChoice{EmergencyName: name}
		if err := db.WithContext(ctx).Where(AlertChoice{EmergencyName: name}).FirstOrCreate(&choice).Error; err != nil {
			return err
		}
	}
	return nil
}

func ListAlertChoices(ctx context.Context, db *gorm.DB) ([]AlertChoice, error) {
	choices := make([]AlertChoice, 0)
	err := db.WithContext(ctx).Order("id").Find(&choices).Error
	return choices, err
}

func CreateAlertChoice(ctx context.Context, db *gorm.DB, choice *AlertChoice) error {
	return db.WithContext(ctx).Create(choice).Error
}

func ListFeedbacks(ctx context.Context, db *gorm.DB) ([]DisasterFeedback, error) {
	feedbacks := make([]DisasterFeedback, 0)
	err := db.WithContext(ctx).Order("id").Find(&feedbacks).Error
	return feedbacks, err
}

func CreateFeedback(ctx context.Context, db *gorm.DB, fb *DisasterFeedback) error {
	return db.WithContext(ctx).Omit("Alert").Create(fb).Error
}

// Migrate 建表并写入默认告警类型
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&Location{},
		&Alert{},
		&CustomUser{},
		&AlertChoice{},
		&DisasterFeedback{},
	); err != nil {
		return err
	}
	return SeedAlertChoices(ctx, db)
}
