package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinRequiresServices(t *testing.T) {
	// Проверка списка услуг идёт до обращения к БД и блокировкам.
	s := NewStore(nil, nil)

	_, err := s.Join(1, 1, nil, 0, nil)
	assert.ErrorIs(t, err, ErrNoServices)

	_, err = s.Join(1, 1, []uint{}, 0, nil)
	assert.ErrorIs(t, err, ErrNoServices)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
}
