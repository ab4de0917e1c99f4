package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHappyPath(t *testing.T) {
	// waiting -> notified -> checked_in -> in_service -> completed
	s, err := NextStatus(StatusWaiting, EventNotify)
	assert.NoError(t, err)
	assert.Equal(t, StatusNotified, s)

	s, err = NextStatus(s, EventCheckInAuto)
	assert.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, s)

	s, err = NextStatus(s, EventCall)
	assert.NoError(t, err)
	assert.Equal(t, StatusInService, s)

	s, err = NextStatus(s, EventComplete)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, s)
}

func TestVerificationBranch(t *testing.T) {
	s, err := NextStatus(StatusNotified, EventCheckInPending)
	assert.NoError(t, err)
	assert.Equal(t, StatusPendingVerification, s)

	confirmed, err := NextStatus(s, EventConfirm)
	assert.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, confirmed)

	rejected, err := NextStatus(s, EventReject)
	assert.NoError(t, err)
	assert.Equal(t, StatusCancelled, rejected)
}

func TestNoSkipToInService(t *testing.T) {
	// Из waiting нельзя перепрыгнуть сразу на обслуживание.
	_, err := NextStatus(StatusWaiting, EventCall)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = NextStatus(StatusWaiting, EventComplete)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminalStatusesAreFinal(t *testing.T) {
	events := []Event{
		EventNotify, EventCheckInAuto, EventCheckInPending,
		EventConfirm, EventReject, EventCall, EventComplete,
		EventNoShow, EventCancel,
	}
	for _, terminal := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		assert.True(t, IsTerminal(terminal))
		for _, ev := range events {
			_, err := NextStatus(terminal, ev)
			assert.ErrorIs(t, err, ErrInvalidTransition, "из %s по %s", terminal, ev)
		}
	}
}

func TestCancelBranches(t *testing.T) {
	for _, from := range []Status{StatusWaiting, StatusNotified, StatusCheckedIn} {
		s, err := NextStatus(from, EventCancel)
		assert.NoError(t, err)
		assert.Equal(t, StatusCancelled, s)
	}
	// Из pending_verification отмена — только через reject сотрудника.
	_, err := NextStatus(StatusPendingVerification, EventCancel)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNoShowBranches(t *testing.T) {
	for _, from := range []Status{StatusNotified, StatusCheckedIn} {
		s, err := NextStatus(from, EventNoShow)
		assert.NoError(t, err)
		assert.Equal(t, StatusNoShow, s)
	}
	_, err := NextStatus(StatusWaiting, EventNoShow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIsActive(t *testing.T) {
	assert.True(t, IsActive(StatusWaiting))
	assert.True(t, IsActive(StatusNotified))
	assert.False(t, IsActive(StatusCheckedIn))
	assert.False(t, IsActive(StatusPendingVerification))
	assert.False(t, IsActive(StatusCompleted))
}
