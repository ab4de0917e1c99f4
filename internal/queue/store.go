package queue

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"salon_queue/internal/geo"
	"salon_queue/internal/models"

	"gorm.io/gorm"
)

// Dispatcher получает события стора после фиксации транзакции. Доставка
// fire-and-forget: стор не ждёт подтверждений и не повторяет отправку.
type Dispatcher interface {
	OnTransition(entry *models.QueueEntry, from, to Status)
	OnPositions(locationID uint, entries []models.QueueEntry)
}

// Store владеет записями очередей и их порядком по салонам. Все изменяющие
// операции одного салона сериализуются блокировкой салона и выполняются
// в одной транзакции вместе с пересчётом позиций: никто не увидит позиции,
// посчитанные по устаревшему составу очереди.
type Store struct {
	db          *gorm.DB
	locks       *locationLocks
	dispatcher  Dispatcher
	lockTimeout time.Duration
}

func NewStore(db *gorm.DB, d Dispatcher) *Store {
	return &Store{
		db:          db,
		locks:       newLocationLocks(),
		dispatcher:  d,
		lockTimeout: 3 * time.Second,
	}
}

// Join добавляет клиента в очередь салона со статусом waiting.
// Инвариант: не более одной незавершённой записи на пару (клиент, салон).
func (s *Store) Join(customerID, locationID uint, serviceIDs []uint, totalPrice float64, discountIDs []uint) (*models.QueueEntry, error) {
	if len(serviceIDs) == 0 {
		return nil, ErrNoServices
	}

	release, err := s.locks.acquire(locationID, s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	var entry models.QueueEntry
	var active []models.QueueEntry

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var location models.Location
		if err := tx.First(&location, locationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLocationNotFound
			}
			return err
		}
		if !location.IsOpen {
			return ErrLocationClosed
		}

		var count int64
		if err := tx.Model(&models.QueueEntry{}).
			Where("customer_id = ? AND location_id = ? AND status IN ?", customerID, locationID, NonTerminalStatuses()).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateActiveEntry
		}

		entry = models.QueueEntry{
			LocationID:         locationID,
			CustomerID:         customerID,
			ServiceIDs:         joinIDs(serviceIDs),
			Status:             string(StatusWaiting),
			JoinedAt:           time.Now(),
			TotalPrice:         totalPrice,
			AppliedDiscountIDs: joinIDs(discountIDs),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		active, err = s.recompute(tx, &location)
		if err != nil {
			return err
		}
		for _, e := range active {
			if e.ID == entry.ID {
				entry.Position = e.Position
				entry.EstimatedWaitMinutes = e.EstimatedWaitMinutes
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.OnTransition(&entry, "", StatusWaiting)
	s.dispatcher.OnPositions(locationID, active)
	return &entry, nil
}

// Transition применяет событие машины состояний к записи. Метки времени
// проставляются ровно один раз, выход из активной части очереди обнуляет
// позицию и запускает пересчёт остальных.
func (s *Store) Transition(entryID uint, ev Event, notes string) (*models.QueueEntry, error) {
	locationID, err := s.entryLocation(entryID)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(locationID, s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	var entry models.QueueEntry
	var active []models.QueueEntry
	var from, to Status
	recomputed := false

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&entry, entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEntryNotFound
			}
			return err
		}

		from = Status(entry.Status)
		to, err = NextStatus(from, ev)
		if err != nil {
			return err
		}

		entry.Status = string(to)
		stampTimestamps(&entry, to, time.Now())
		if notes != "" {
			entry.Notes = notes
		}

		if IsActive(from) && !IsActive(to) {
			entry.Position = nil
			entry.EstimatedWaitMinutes = 0
		}

		if err := tx.Save(&entry).Error; err != nil {
			return err
		}

		// Состав активной части изменился — позиции пересчитываются
		// в той же транзакции.
		if IsActive(from) != IsActive(to) {
			var location models.Location
			if err := tx.First(&location, entry.LocationID).Error; err != nil {
				return err
			}
			active, err = s.recompute(tx, &location)
			if err != nil {
				return err
			}
			recomputed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.OnTransition(&entry, from, to)
	if recomputed {
		s.dispatcher.OnPositions(entry.LocationID, active)
	}
	return &entry, nil
}

// CheckIn обрабатывает попытку клиента отметиться на месте: считает
// расстояние до салона и по порогам салона решает, подтверждать прибытие
// автоматически или отдавать на проверку сотруднику. Допустим только из
// статуса notified; данные попытки записываются один раз.
func (s *Store) CheckIn(entryID uint, lat, lng, accuracyM float64) (*models.QueueEntry, geo.Verification, error) {
	var verification geo.Verification

	locationID, err := s.entryLocation(entryID)
	if err != nil {
		return nil, verification, err
	}

	release, err := s.locks.acquire(locationID, s.lockTimeout)
	if err != nil {
		return nil, verification, err
	}
	defer release()

	var entry models.QueueEntry
	var active []models.QueueEntry
	var from, to Status

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&entry, entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEntryNotFound
			}
			return err
		}

		var location models.Location
		if err := tx.First(&location, entry.LocationID).Error; err != nil {
			return err
		}

		verification = geo.VerifyArrival(lat, lng, location.Latitude, location.Longitude,
			accuracyM, location.AutoApproveRadiusM, location.MaxAccuracyM)

		ev := EventCheckInPending
		if verification.Decision == geo.DecisionAutoApproved {
			ev = EventCheckInAuto
		}

		from = Status(entry.Status)
		to, err = NextStatus(from, ev)
		if err != nil {
			return err
		}

		autoApproved := ev == EventCheckInAuto
		entry.Status = string(to)
		entry.CheckInLat = &lat
		entry.CheckInLng = &lng
		entry.CheckInAccuracyM = &accuracyM
		entry.CheckInDistanceM = &verification.DistanceMeters
		entry.CheckInAutoApproved = &autoApproved
		stampTimestamps(&entry, to, time.Now())

		// Запись покидает активную часть очереди в обоих исходах.
		entry.Position = nil
		entry.EstimatedWaitMinutes = 0

		if err := tx.Save(&entry).Error; err != nil {
			return err
		}

		active, err = s.recompute(tx, &location)
		return err
	})
	if err != nil {
		return nil, verification, err
	}

	s.dispatcher.OnTransition(&entry, from, to)
	s.dispatcher.OnPositions(entry.LocationID, active)
	return &entry, verification, nil
}

// Get — авторитетное чтение одной записи (клиенты перечитывают состояние
// после каждого push-сообщения).
func (s *Store) Get(entryID uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := s.db.First(&entry, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// GetActive возвращает активную часть очереди салона по возрастанию позиций.
func (s *Store) GetActive(locationID uint) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.db.Preload("Customer").
		Where("location_id = ? AND status IN ?", locationID, ActiveStatuses()).
		Order("position ASC").
		Find(&entries).Error
	return entries, err
}

// recompute перечитывает активную часть очереди салона, назначает позиции
// заново и сохраняет их. Вызывается только под блокировкой салона внутри
// транзакции изменившей состав мутации.
func (s *Store) recompute(tx *gorm.DB, location *models.Location) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	if err := tx.Where("location_id = ? AND status IN ?", location.ID, ActiveStatuses()).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	RankActive(entries, location.AverageServiceMinutes)

	for _, e := range entries {
		if err := tx.Model(&models.QueueEntry{}).Where("id = ?", e.ID).
			Updates(map[string]interface{}{
				"position":               e.Position,
				"estimated_wait_minutes": e.EstimatedWaitMinutes,
			}).Error; err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *Store) entryLocation(entryID uint) (uint, error) {
	var entry models.QueueEntry
	if err := s.db.Select("id", "location_id").First(&entry, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrEntryNotFound
		}
		return 0, err
	}
	return entry.LocationID, nil
}

// stampTimestamps проставляет метки времени нового статуса. Каждая метка
// записывается один раз и только вперёд по времени.
func stampTimestamps(e *models.QueueEntry, to Status, now time.Time) {
	switch to {
	case StatusNotified:
		if e.NotifiedAt == nil {
			e.NotifiedAt = &now
		}
	case StatusPendingVerification:
		if e.CheckInRequestedAt == nil {
			e.CheckInRequestedAt = &now
		}
	case StatusCheckedIn:
		if e.CheckInRequestedAt == nil {
			e.CheckInRequestedAt = &now
		}
		if e.ArrivalConfirmedAt == nil {
			e.ArrivalConfirmedAt = &now
		}
	case StatusCompleted:
		if e.CompletedAt == nil {
			e.CompletedAt = &now
		}
	}
}

func joinIDs(ids []uint) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatUint(uint64(id), 10))
	}
	return strings.Join(parts, ",")
}
