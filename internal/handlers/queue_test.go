package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"salon_queue/internal/queue"
	"salon_queue/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestStoreErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &QueueHandler{}

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{queue.ErrNoServices, http.StatusBadRequest, "VALIDATION_ERROR"},
		{queue.ErrDuplicateActiveEntry, http.StatusBadRequest, "DUPLICATE_ACTIVE_ENTRY"},
		{queue.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{queue.ErrEntryNotFound, http.StatusNotFound, "ENTRY_NOT_FOUND"},
		{queue.ErrLocationNotFound, http.StatusNotFound, "LOCATION_NOT_FOUND"},
		{queue.ErrLocationClosed, http.StatusBadRequest, "LOCATION_CLOSED"},
		{queue.ErrLocationBusy, http.StatusServiceUnavailable, "LOCATION_BUSY"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		h.respondStoreError(c, tc.err)

		assert.Equal(t, tc.status, w.Code, "код ответа для %s", tc.code)
		var resp response.ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.code, resp.Code)
	}
}

// Отрицательные и нулевые идентификаторы в пути отклоняются до обращения
// к стору: uint-конверсия не должна «заворачивать» отрицательное число.
func TestNonPositiveIDsRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &QueueHandler{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "-5"}}
	h.JoinQueueHandler(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "0"}}
	h.LeaveQueueHandler(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "-1"}}
	h.GetLocationQueueHandler(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
