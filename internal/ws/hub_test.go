package ws

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// Отправка клиенту и закрытие его канала при отключении не должны
// пересекаться: removeLocked закрывает send под блокировкой записи,
// SendToCustomer пишет под блокировкой чтения. Без этого паника
// «send on closed channel» из фоновой задачи убивает процесс.
func TestSendToCustomerDuringDisconnect(t *testing.T) {
	h := NewHub(nil)
	h.Start()
	defer h.Stop()

	message := []byte(`{"type":"queue_position_update"}`)
	for i := 0; i < 500; i++ {
		client := &Client{
			hub:           h,
			send:          make(chan []byte, 1),
			locationID:    1,
			principalID:   42,
			authenticated: true,
		}
		h.register <- client

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				h.SendToCustomer(42, message)
			}
		}()
		go func() {
			defer wg.Done()
			h.unregister <- client
		}()
		wg.Wait()

		// После отключения сообщения просто теряются.
		h.SendToCustomer(42, message)
	}
}

func TestWebSocketRejectsBadLocationID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(nil)
	r := gin.New()
	r.GET("/api/locations/:id/ws", h.QueueWebSocketHandler)

	for _, id := range []string{"-1", "0", "abc"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/locations/"+id+"/ws", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "id=%s", id)
	}
}
