package queue

import (
	"sort"

	"salon_queue/internal/models"
)

// RankActive сортирует активные записи салона по времени вступления
// (при равенстве — по ID, чтобы порядок был детерминированным) и назначает
// позиции 1..N без пропусков и дубликатов. Ожидание считается как
// позиция × среднее время обслуживания салона.
//
// Функция чистая по отношению к БД: изменяет только переданный срез.
func RankActive(entries []models.QueueEntry, averageServiceMinutes int) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})
	for i := range entries {
		p := i + 1
		entries[i].Position = &p
		entries[i].EstimatedWaitMinutes = p * averageServiceMinutes
	}
}
