package queue

import (
	"testing"
	"time"

	"salon_queue/internal/models"

	"github.com/stretchr/testify/assert"
)

func entryAt(id uint, joined time.Time) models.QueueEntry {
	e := models.QueueEntry{JoinedAt: joined, Status: string(StatusWaiting)}
	e.ID = id
	return e
}

func TestRankActiveContiguous(t *testing.T) {
	base := time.Now()
	entries := []models.QueueEntry{
		entryAt(3, base.Add(2*time.Minute)),
		entryAt(1, base),
		entryAt(2, base.Add(time.Minute)),
	}

	RankActive(entries, 15)

	// Позиции — непрерывная последовательность 1..N по времени вступления.
	for i, e := range entries {
		assert.NotNil(t, e.Position)
		assert.Equal(t, i+1, *e.Position)
		assert.Equal(t, uint(i+1), e.ID)
		assert.Equal(t, (i+1)*15, e.EstimatedWaitMinutes)
	}
}

func TestRankActiveTieBrokenByID(t *testing.T) {
	joined := time.Now()
	entries := []models.QueueEntry{
		entryAt(7, joined),
		entryAt(2, joined),
	}

	RankActive(entries, 10)

	assert.Equal(t, uint(2), entries[0].ID)
	assert.Equal(t, 1, *entries[0].Position)
	assert.Equal(t, uint(7), entries[1].ID)
	assert.Equal(t, 2, *entries[1].Position)
}

func TestRankActiveEmpty(t *testing.T) {
	entries := []models.QueueEntry{}
	RankActive(entries, 15)
	assert.Empty(t, entries)
}

func TestRankActivePositionsDistinct(t *testing.T) {
	base := time.Now()
	entries := make([]models.QueueEntry, 0, 10)
	for i := 0; i < 10; i++ {
		entries = append(entries, entryAt(uint(10-i), base.Add(time.Duration(10-i)*time.Second)))
	}

	RankActive(entries, 5)

	seen := make(map[int]bool)
	for _, e := range entries {
		assert.False(t, seen[*e.Position], "позиция %d встречается дважды", *e.Position)
		seen[*e.Position] = true
	}
	for p := 1; p <= len(entries); p++ {
		assert.True(t, seen[p], "пропущена позиция %d", p)
	}
}
