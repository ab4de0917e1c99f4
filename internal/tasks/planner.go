package tasks

import (
	"log"
	"time"

	"salon_queue/internal/models"
	"salon_queue/internal/queue"
	"salon_queue/internal/storage"

	"github.com/robfig/cron/v3"
)

// MarkNoShows отмечает неявку клиентам, которые были позваны, но не
// отметились за отведённое салоном время. Переход идёт через стор, поэтому
// позиции пересчитываются и уведомления уходят как при действии сотрудника.
func MarkNoShows(store *queue.Store) {
	var locations []models.Location
	if err := storage.DB.Find(&locations).Error; err != nil {
		log.Println("Ошибка загрузки салонов для проверки неявок:", err)
		return
	}

	now := time.Now()
	for _, loc := range locations {
		if loc.NoShowTimeoutMinutes <= 0 {
			continue
		}
		deadline := now.Add(-time.Duration(loc.NoShowTimeoutMinutes) * time.Minute)

		var entries []models.QueueEntry
		if err := storage.DB.
			Where("location_id = ? AND status = ? AND notified_at < ?", loc.ID, string(queue.StatusNotified), deadline).
			Find(&entries).Error; err != nil {
			log.Println("Ошибка поиска просроченных записей салона", loc.ID, ":", err)
			continue
		}

		for _, e := range entries {
			if _, err := store.Transition(e.ID, queue.EventNoShow, "Автоматически: клиент не отметился вовремя"); err != nil {
				log.Println("Ошибка отметки неявки для записи", e.ID, ":", err)
			} else {
				log.Printf("Запись %d отмечена как неявка (салон %d)\n", e.ID, loc.ID)
			}
		}
	}
}

// RecomputeAverages пересчитывает среднее время обслуживания салонов
// в режиме history по последним завершённым записям.
func RecomputeAverages() {
	var locations []models.Location
	if err := storage.DB.
		Where("wait_estimate_mode = ?", models.WaitEstimateHistory).
		Find(&locations).Error; err != nil {
		log.Println("Ошибка загрузки салонов для пересчёта среднего времени:", err)
		return
	}

	for _, loc := range locations {
		var entries []models.QueueEntry
		if err := storage.DB.
			Where("location_id = ? AND status = ? AND arrival_confirmed_at IS NOT NULL AND completed_at IS NOT NULL",
				loc.ID, string(queue.StatusCompleted)).
			Order("completed_at DESC").
			Limit(20).
			Find(&entries).Error; err != nil || len(entries) == 0 {
			continue
		}

		var total time.Duration
		for _, e := range entries {
			total += e.CompletedAt.Sub(*e.ArrivalConfirmedAt)
		}
		avg := int(total.Minutes()) / len(entries)
		if avg < 1 {
			avg = 1
		}

		if err := storage.DB.Model(&models.Location{}).Where("id = ?", loc.ID).
			Update("average_service_minutes", avg).Error; err != nil {
			log.Println("Ошибка сохранения среднего времени салона", loc.ID, ":", err)
		} else {
			log.Printf("Салон %d: среднее время обслуживания обновлено до %d мин.\n", loc.ID, avg)
		}
	}
}

// InitScheduler инициализирует планировщик cron-задач.
func InitScheduler(store *queue.Store) *cron.Cron {
	c := cron.New(cron.WithSeconds())

	// Проверка неявок каждую минуту.
	_, err := c.AddFunc("0 * * * * *", func() { MarkNoShows(store) })
	if err != nil {
		log.Println("Ошибка запуска cron-задачи MarkNoShows:", err)
	}

	// Пересчёт среднего времени обслуживания каждый день в 03:00.
	_, err = c.AddFunc("0 0 3 * * *", RecomputeAverages)
	if err != nil {
		log.Println("Ошибка запуска cron-задачи RecomputeAverages:", err)
	}

	c.Start()
	log.Println("Cron-планировщик запущен.")
	return c
}
