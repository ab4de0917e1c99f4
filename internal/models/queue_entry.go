package models

import (
	"time"

	"gorm.io/gorm"
)

// QueueEntry — участие одного клиента в очереди одного салона.
// Статус меняется только через машину состояний (internal/queue),
// прямой записи полей из обработчиков нет.
type QueueEntry struct {
	gorm.Model
	LocationID uint `gorm:"index;not null"`
	CustomerID uint `gorm:"index;not null"`
	Customer   User `gorm:"foreignKey:CustomerID"`

	ServiceIDs string `gorm:"not null"` // ID выбранных услуг через запятую, например "3,17"
	Status     string `gorm:"index;not null"`

	// Позиция в активной части очереди (waiting/notified), начиная с 1.
	// nil — запись вне активной части.
	Position             *int `gorm:"index"`
	EstimatedWaitMinutes int

	JoinedAt           time.Time `gorm:"index;not null"`
	NotifiedAt         *time.Time
	CheckInRequestedAt *time.Time
	ArrivalConfirmedAt *time.Time
	CompletedAt        *time.Time

	// Данные первой попытки отметиться на месте. Заполняются один раз.
	CheckInLat          *float64
	CheckInLng          *float64
	CheckInAccuracyM    *float64
	CheckInDistanceM    *float64
	CheckInAutoApproved *bool

	// Сумма фиксируется при вступлении в очередь.
	TotalPrice         float64 `gorm:"type:decimal(10,2);default:0"`
	AppliedDiscountIDs string
	Notes              string
}
