package test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"salon_queue/internal/auth"
	"salon_queue/internal/handlers"
	"salon_queue/internal/models"
	"salon_queue/internal/notify"
	"salon_queue/internal/queue"
	"salon_queue/internal/storage"
	"salon_queue/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
)

// Метров в одном градусе широты при радиусе Земли 6371000 м.
const metersPerDegree = 111194.93

func AuthMiddlewareTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDStr := c.Request.Header.Get("X-Test-UserID")
		if userIDStr == "" {
			// Значение по умолчанию
			c.Set("userID", uint(1))
		} else {
			id, err := strconv.Atoi(userIDStr)
			if err != nil {
				c.Set("userID", uint(1))
			} else {
				c.Set("userID", uint(id))
			}
		}
		c.Next()
	}
}

// wsAuthTest принимает вместо JWT просто ID пользователя.
func wsAuthTest(token string) (uint, bool, uint, error) {
	id, err := strconv.Atoi(token)
	if err != nil {
		return 0, false, 0, err
	}
	var user models.User
	if err := storage.DB.First(&user, id).Error; err != nil {
		return 0, false, 0, err
	}
	if user.Role == models.RoleStaff && user.LocationID != nil {
		return user.ID, true, *user.LocationID, nil
	}
	return user.ID, false, 0, nil
}

func setupTestServer(t *testing.T) *httptest.Server {
	key := os.Getenv("ENV_CHEK")
	if key == "" {
		fmt.Println("Подключение к .env")
		_ = godotenv.Load("../.env")
	}
	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("TEST_DB_HOST не задан — пропускаем интеграционный тест")
	}

	storage.ConnectTestingDatabase()

	if err := storage.DB.AutoMigrate(&models.User{}, &models.Location{}, &models.Service{}, &models.QueueEntry{}); err != nil {
		log.Fatal("Ошибка при миграции... ", err.Error())
	}
	storage.DB.Exec("TRUNCATE TABLE users, locations, services, queue_entries RESTART IDENTITY CASCADE;")

	storage.InitRedis()

	hub := ws.NewHub(wsAuthTest)
	hub.Start()
	dispatcher := notify.NewDispatcher(hub)
	hub.OnViewersChange = dispatcher.OnViewersChange
	store := queue.NewStore(storage.DB, dispatcher)
	queueHandler := handlers.NewQueueHandler(store, dispatcher)

	r := gin.Default()

	r.GET("/api/locations/:id/ws", hub.QueueWebSocketHandler)

	api := r.Group("/api", AuthMiddlewareTest())
	{
		api.GET("/profile/entries", queueHandler.GetMyEntriesHandler)
		api.POST("/locations/:id/join", queueHandler.JoinQueueHandler)
		api.GET("/entries/:id", queueHandler.GetEntryHandler)
		api.POST("/entries/:id/leave", queueHandler.LeaveQueueHandler)
		api.POST("/entries/:id/checkin", queueHandler.CheckInHandler)
	}

	staff := api.Group("", auth.StaffMiddleware())
	{
		staff.GET("/locations/:id/queue", queueHandler.GetLocationQueueHandler)
		staff.PUT("/locations/:id/config", handlers.UpdateLocationConfigHandler)
		staff.POST("/entries/:id/verify", queueHandler.VerifyArrivalHandler)
		staff.PUT("/entries/:id/status", queueHandler.UpdateStatusHandler)
		staff.POST("/entries/:id/notify", queueHandler.NotifyHandler)
	}

	return httptest.NewServer(r)
}

func doJSON(t *testing.T, method, url string, userID uint, body interface{}) (*http.Response, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-UserID", fmt.Sprintf("%d", userID))
	res, err := http.DefaultClient.Do(req)
	assert.NoError(t, err, "Ошибка запроса %s %s", method, url)

	var decoded map[string]interface{}
	_ = json.NewDecoder(res.Body).Decode(&decoded)
	res.Body.Close()
	return res, decoded
}

// readFrameOfType читает кадры, пока не встретит кадр нужного типа.
func readFrameOfType(t *testing.T, conn *websocket.Conn, frameType string) map[string]interface{} {
	deadline := time.Now().Add(5 * time.Second)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, raw, err := conn.ReadMessage()
		assert.NoError(t, err, "Ошибка чтения WS кадра (ждали %s)", frameType)
		if err != nil {
			return nil
		}
		var frame map[string]interface{}
		assert.NoError(t, json.Unmarshal(raw, &frame))
		log.Println("Получен WS кадр:", frame)
		if frame["type"] == frameType {
			return frame
		}
	}
	t.Fatalf("Не дождались WS кадра типа %s", frameType)
	return nil
}

func TestQueueFlow(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	// 1. Салон и пользователи.
	location := models.Location{
		Name:                  "Тестовый салон",
		Address:               "Москва, Тверская 1",
		Latitude:              55.751244,
		Longitude:             37.618423,
		IsOpen:                true,
		AutoApproveRadiusM:    100,
		MaxAccuracyM:          50,
		AverageServiceMinutes: 15,
		NoShowTimeoutMinutes:  10,
		WaitEstimateMode:      models.WaitEstimateFixed,
	}
	assert.NoError(t, storage.DB.Create(&location).Error)

	customerA := models.User{Name: "Иван", Surname: "Иванов", Email: "ivan@example.com", PasswordHash: "hashed123", Role: models.RoleCustomer}
	customerB := models.User{Name: "Петр", Surname: "Петров", Email: "petr@example.com", PasswordHash: "hashed456", Role: models.RoleCustomer}
	staffUser := models.User{Name: "Анна", Surname: "Смирнова", Email: "anna@example.com", PasswordHash: "hashed789", Role: models.RoleStaff, LocationID: &location.ID}
	assert.NoError(t, storage.DB.Create(&customerA).Error)
	assert.NoError(t, storage.DB.Create(&customerB).Error)
	assert.NoError(t, storage.DB.Create(&staffUser).Error)

	joinURL := ts.URL + "/api/locations/" + strconv.Itoa(int(location.ID)) + "/join"
	joinBody := map[string]interface{}{"service_ids": []uint{1}, "total_price": 1500.0}

	// 2. Клиент A вступает — позиция 1, ожидание 15 минут.
	res, entryA := doJSON(t, "POST", joinURL, customerA.ID, joinBody)
	assert.Equal(t, http.StatusOK, res.StatusCode, "Клиент A не смог вступить в очередь")
	assert.Equal(t, float64(1), entryA["position"])
	assert.Equal(t, float64(15), entryA["estimated_wait_minutes"])
	assert.Equal(t, "waiting", entryA["status"])
	entryAID := int(entryA["id"].(float64))

	// 3. Клиент B вступает — позиция 2.
	res, entryB := doJSON(t, "POST", joinURL, customerB.ID, joinBody)
	assert.Equal(t, http.StatusOK, res.StatusCode, "Клиент B не смог вступить в очередь")
	assert.Equal(t, float64(2), entryB["position"])
	assert.Equal(t, float64(30), entryB["estimated_wait_minutes"])
	entryBID := int(entryB["id"].(float64))

	// 4. Повторное вступление A отклоняется.
	res, dup := doJSON(t, "POST", joinURL, customerA.ID, joinBody)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "DUPLICATE_ACTIVE_ENTRY", dup["code"])

	// 5. Сотрудник подключается к WS и аутентифицируется.
	wsURL := "ws" + ts.URL[4:] + "/api/locations/" + strconv.Itoa(int(location.ID)) + "/ws"
	wsConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.NoError(t, err, "Ошибка подключения к WS")
	defer wsConn.Close()

	ack := readFrameOfType(t, wsConn, "ack")
	assert.NotNil(t, ack)

	authFrame := fmt.Sprintf(`{"type":"authenticate","token":"%d"}`, staffUser.ID)
	assert.NoError(t, wsConn.WriteMessage(websocket.TextMessage, []byte(authFrame)))
	viewers := readFrameOfType(t, wsConn, "live_viewers_update")
	assert.NotNil(t, viewers)

	// 6. Сотрудник зовёт клиента A — статус notified, позиция прежняя.
	statusURL := ts.URL + "/api/entries/" + strconv.Itoa(entryAID) + "/status"
	res, notified := doJSON(t, "PUT", statusURL, staffUser.ID, map[string]interface{}{"event": "notify"})
	assert.Equal(t, http.StatusOK, res.StatusCode, "Не удалось позвать клиента A")
	assert.Equal(t, "notified", notified["status"])
	assert.Equal(t, float64(1), notified["position"])
	assert.NotNil(t, notified["notified_at"])

	// 7. Клиент A отмечается в ~30 м от салона с точностью 15 м —
	// автоподтверждение, B пересчитывается на позицию 1.
	checkinURL := ts.URL + "/api/entries/" + strconv.Itoa(entryAID) + "/checkin"
	res, checkin := doJSON(t, "POST", checkinURL, customerA.ID, map[string]interface{}{
		"latitude":   location.Latitude + 30.0/metersPerDegree,
		"longitude":  location.Longitude,
		"accuracy_m": 15.0,
	})
	assert.Equal(t, http.StatusOK, res.StatusCode, "Ошибка отметки о прибытии")
	assert.Equal(t, "auto_approved", checkin["decision"])
	assert.Equal(t, "checked_in", checkin["new_status"])
	assert.InDelta(t, 30.0, checkin["distance_meters"].(float64), 1.0)

	// Сотрудники получают push о прибытии.
	arrived := readFrameOfType(t, wsConn, "customer_arrived")
	assert.NotNil(t, arrived)

	// 8. Push — только сигнал: авторитетное состояние перечитываем по REST.
	entryURL := ts.URL + "/api/entries/" + strconv.Itoa(entryBID)
	res, refetchedB := doJSON(t, "GET", entryURL, customerB.ID, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, float64(1), refetchedB["position"])
	assert.Equal(t, float64(15), refetchedB["estimated_wait_minutes"])

	// 9. Активная очередь салона — только B.
	queueURL := ts.URL + "/api/locations/" + strconv.Itoa(int(location.ID)) + "/queue"
	res, status := doJSON(t, "GET", queueURL, staffUser.ID, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	participants := status["participants"].([]interface{})
	assert.Equal(t, 1, len(participants), "В активной очереди должен остаться только B")

	// 10. Обслуживание A: call -> in_service, позиция обнулена.
	res, inService := doJSON(t, "PUT", statusURL, staffUser.ID, map[string]interface{}{"event": "call"})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "in_service", inService["status"])
	assert.Nil(t, inService["position"])

	// 11. Завершение: complete -> completed, метка времени есть.
	res, completed := doJSON(t, "PUT", statusURL, staffUser.ID, map[string]interface{}{"event": "complete"})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "completed", completed["status"])
	assert.NotNil(t, completed["completed_at"])

	// 12. Терминальный статус окончательный.
	res, second := doJSON(t, "PUT", statusURL, staffUser.ID, map[string]interface{}{"event": "complete"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", second["code"])
}

func TestCheckInWithoutCoordinates(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	location := models.Location{Name: "Салон без координат", Latitude: 55.75, Longitude: 37.61, IsOpen: true}
	assert.NoError(t, storage.DB.Create(&location).Error)
	customer := models.User{Name: "Олег", Surname: "Сидоров", Email: "oleg@example.com", PasswordHash: "hashed", Role: models.RoleCustomer}
	assert.NoError(t, storage.DB.Create(&customer).Error)

	joinURL := ts.URL + "/api/locations/" + strconv.Itoa(int(location.ID)) + "/join"
	res, entry := doJSON(t, "POST", joinURL, customer.ID, map[string]interface{}{"service_ids": []uint{1}})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	entryID := int(entry["id"].(float64))

	// Отметка без координат — отдельная ошибка, попытка не записывается.
	checkinURL := ts.URL + "/api/entries/" + strconv.Itoa(entryID) + "/checkin"
	res, failed := doJSON(t, "POST", checkinURL, customer.ID, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "LOCATION_UNAVAILABLE", failed["code"])

	res, refetched := doJSON(t, "GET", ts.URL+"/api/entries/"+strconv.Itoa(entryID), customer.ID, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "waiting", refetched["status"])
	assert.Nil(t, refetched["check_in"])
}
