package models

import (
	"gorm.io/gorm"
)

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
)

type User struct {
	gorm.Model
	Name         string `gorm:"not null"`
	Surname      string `gorm:"not null"`
	Phone        string
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null;default:customer"` // customer или staff
	LocationID   *uint  `gorm:"index"`                     // Салон сотрудника (только для role=staff)
}

const (
	WaitEstimateFixed   = "fixed"   // фиксированное среднее время обслуживания
	WaitEstimateHistory = "history" // пересчёт по последним завершённым записям
)

type Location struct {
	gorm.Model
	Name      string `gorm:"not null"`
	Address   string
	Latitude  float64 `gorm:"not null"`
	Longitude float64 `gorm:"not null"`
	IsOpen    bool    `gorm:"default:true"`

	// Настройки очереди салона. Пороговые значения геопроверки и тайм-аут
	// неявки задаются на уровне салона, а не глобально.
	AutoApproveRadiusM    float64 `gorm:"default:100"`
	MaxAccuracyM          float64 `gorm:"default:50"`
	AverageServiceMinutes int     `gorm:"default:15"`
	NoShowTimeoutMinutes  int     `gorm:"default:10"`
	WaitEstimateMode      string  `gorm:"default:fixed"`
}

type Service struct {
	gorm.Model
	LocationID      uint    `gorm:"index;not null"`
	Name            string  `gorm:"not null"`
	Price           float64 `gorm:"type:decimal(10,2);default:0"`
	DurationMinutes int     `gorm:"default:30"`
	IsActive        bool    `gorm:"default:true"`
}
