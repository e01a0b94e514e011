package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Location 告警坐标，创建后不再修改
type Location struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Longitude float64   `json:"longitude" gorm:"not null"`
	Latitude  float64   `json:"latitude" gorm:"not null"`
	CreatedAt time.Time `json:"-" gorm:"autoCreateTime"`
}

// Alert 紧急告警
type Alert struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	AlertType        string    `json:"alert_type" gorm:"size:100;not null;index"`
	Description      string    `json:"description" gorm:"type:text;not null"`
	LocationID       *uint     `json:"-" gorm:"uniqueIndex"` // 一个坐标至多属于一条告警
	Location         *Location `json:"location" gorm:"constraint:OnDelete:SET NULL"`
	FirstAidResponse *string   `json:"first_aid_response" gorm:"type:text"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"-" gorm:"autoUpdateTime"`
}

// CreateAlert 在同一事务内写入坐标与告警
func CreateAlert(ctx context.Context, db *gorm.DB, alert *Alert) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if alert.Location != nil {
			if err := tx.Create(alert.Location).Error; err != nil {
				return err
			}
			alert.LocationID = &alert.Location.ID
		}
		return tx.Omit("Location").Create(alert).Error
	})
}

// SetFirstAidResponse 写入生成的急救建议
func SetFirstAidResponse(ctx context.Context, db *gorm.DB, alert *Alert, text string) error {
	if err := db.WithContext(ctx).Model(&Alert{}).
		Where("id = ?", alert.ID).
		Update("first_aid_response", text).Error; err != nil {
		return err
	}
	alert.FirstAidResponse = &text
	return nil
}

func GetAlert(ctx context.Context, db *gorm.DB, id uint) (*Alert, error) {
	var alert Alert
	if err := db.WithContext(ctx).Preload("Location").First(&alert, id).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListAlerts 按创建时间倒序返回全部告警
func ListAlerts(ctx context.Context, db *gorm.DB) ([]Alert, error) {
	alerts := make([]Alert, 0)
	err := db.WithContext(ctx).Preload("Location").Order("created_at DESC, id DESC").Find(&alerts).Error
	return alerts, err
}

func CreateLocation(ctx context.Context, db *gorm.DB, loc *Location) error {
	return db.WithContext(ctx).Create(loc).Error
}

func ListLocations(ctx context.Context, db *gorm.DB) ([]Location, error) {
	locations := make([]Location, 0)
	err := db.WithContext(ctx).Order("id").Find(&locations).Error
	return locations, err
}
