package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"salon_queue/internal/models"
	"salon_queue/internal/notify"
	"salon_queue/internal/queue"
	"salon_queue/internal/response"
	"salon_queue/internal/storage"

	"github.com/gin-gonic/gin"
)

// QueueHandler — HTTP-обработчики операций очереди. Стор и диспетчер
// передаются при сборке приложения.
type QueueHandler struct {
	Store      *queue.Store
	Dispatcher *notify.Dispatcher
}

func NewQueueHandler(store *queue.Store, dispatcher *notify.Dispatcher) *QueueHandler {
	return &QueueHandler{Store: store, Dispatcher: dispatcher}
}

type JoinRequest struct {
	ServiceIDs         []uint  `json:"service_ids" binding:"required,min=1"`
	TotalPrice         float64 `json:"total_price"`
	AppliedDiscountIDs []uint  `json:"applied_discount_ids"`
}

type CheckInRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	AccuracyM *float64 `json:"accuracy_m" binding:"required"`
}

type VerifyRequest struct {
	Confirmed *bool `json:"confirmed" binding:"required"`
}

type StatusRequest struct {
	Event string `json:"event" binding:"required"`
	Notes string `json:"notes"`
}

type NotifyRequest struct {
	EstimatedMinutes int    `json:"estimated_minutes" binding:"required"`
	Message          string `json:"message"`
}

// CheckInInfo — данные попытки отметиться, если она была.
type CheckInInfo struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
	DistanceMeters float64 `json:"distance_meters"`
	AutoApproved   bool    `json:"auto_approved"`
}

// EntryResponse — запись очереди в ответах API.
type EntryResponse struct {
	ID                   uint         `json:"id"`
	LocationID           uint         `json:"location_id"`
	CustomerID           uint         `json:"customer_id"`
	ServiceIDs           string       `json:"service_ids"`
	Status               string       `json:"status"`
	Position             *int         `json:"position"`
	EstimatedWaitMinutes int          `json:"estimated_wait_minutes"`
	JoinedAt             time.Time    `json:"joined_at"`
	NotifiedAt           *time.Time   `json:"notified_at,omitempty"`
	CheckInRequestedAt   *time.Time   `json:"check_in_requested_at,omitempty"`
	ArrivalConfirmedAt   *time.Time   `json:"arrival_confirmed_at,omitempty"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
	CheckIn              *CheckInInfo `json:"check_in,omitempty"`
	TotalPrice           float64      `json:"total_price"`
	AppliedDiscountIDs   string       `json:"applied_discount_ids,omitempty"`
}

func entryResponse(e *models.QueueEntry) EntryResponse {
	resp := EntryResponse{
		ID:                   e.ID,
		LocationID:           e.LocationID,
		CustomerID:           e.CustomerID,
		ServiceIDs:           e.ServiceIDs,
		Status:               e.Status,
		Position:             e.Position,
		EstimatedWaitMinutes: e.EstimatedWaitMinutes,
		JoinedAt:             e.JoinedAt,
		NotifiedAt:           e.NotifiedAt,
		CheckInRequestedAt:   e.CheckInRequestedAt,
		ArrivalConfirmedAt:   e.ArrivalConfirmedAt,
		CompletedAt:          e.CompletedAt,
		TotalPrice:           e.TotalPrice,
		AppliedDiscountIDs:   e.AppliedDiscountIDs,
	}
	if e.CheckInLat != nil && e.CheckInLng != nil {
		resp.CheckIn = &CheckInInfo{
			Latitude:       *e.CheckInLat,
			Longitude:      *e.CheckInLng,
			AccuracyMeters: valueOr(e.CheckInAccuracyM),
			DistanceMeters: valueOr(e.CheckInDistanceM),
			AutoApproved:   e.CheckInAutoApproved != nil && *e.CheckInAutoApproved,
		}
	}
	return resp
}

func valueOr(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// События, доступные сотруднику через PUT /status.
var staffEvents = map[string]queue.Event{
	"notify":   queue.EventNotify,
	"call":     queue.EventCall,
	"complete": queue.EventComplete,
	"no_show":  queue.EventNoShow,
	"cancel":   queue.EventCancel,
}

// JoinQueueHandler обрабатывает запрос на вступление в очередь
// @Summary		Вступление в очередь салона
// @Description	Добавляет клиента в очередь, назначает позицию и уведомляет сотрудников
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			id		path		string		true	"ID салона"
// @Param			request	body		JoinRequest	true	"Выбранные услуги и сумма"
// @Security		BearerAuth
// @Success		200	{object}	EntryResponse	"Созданная запись с позицией"
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (INVALID_LOCATION_ID, VALIDATION_ERROR, DUPLICATE_ACTIVE_ENTRY, LOCATION_CLOSED)"
// @Failure		404	{object}	response.ErrorResponse	"Салон не найден (LOCATION_NOT_FOUND)"
// @Failure		503	{object}	response.ErrorResponse	"Очередь занята (LOCATION_BUSY)"
// @Router			/api/locations/{id}/join [post]
func (h *QueueHandler) JoinQueueHandler(c *gin.Context) {
	locationID, err := strconv.Atoi(c.Param("id"))
	if err != nil || locationID <= 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_LOCATION_ID",
			Message: "Неверный идентификатор салона",
		})
		return
	}

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	userID := c.GetUint("userID")
	entry, err := h.Store.Join(userID, uint(locationID), req.ServiceIDs, req.TotalPrice, req.AppliedDiscountIDs)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, entryResponse(entry))
}

// LeaveQueueHandler обрабатывает выход клиента из очереди
// @Summary		Выход из очереди
// @Description	Отменяет собственную запись клиента и пересчитывает позиции остальных
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			id	path		string	true	"ID записи"
// @Security		BearerAuth
// @Success		200	{object}	EntryResponse	"Запись в статусе cancelled"
// @Failure		403	{object}	response.ErrorResponse	"Чужая запись (NOT_OWNER)"
// @Failure		404	{object}	response.ErrorResponse	"Запись не найдена (ENTRY_NOT_FOUND)"
// @Failure		409	{object}	response.ErrorResponse	"Недопустимый переход (INVALID_TRANSITION)"
// @Router			/api/entries/{id}/leave [post]
func (h *QueueHandler) LeaveQueueHandler(c *gin.Context) {
	entryID, err := strconv.Atoi(c.Param("id"))
	if err != nil || entryID <= 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_ENTRY_ID",
			Message: "Неверный идентификатор записи",
		})
		return
	}

	entry, err := h.Store.Get(uint(entryID))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if entry.CustomerID != c.GetUint("userID") {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "NOT_OWNER",
			Message: "Запись принадлежит другому клиенту",
		})
		return
	}

	updated, err := h.Store.Transition(uint(entryID), queue.EventCancel, "")
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, entryResponse(updated))
}

// CheckInHandler обрабатывает попытку клиента отметиться на месте
// @Summary		Отметка о прибытии
// @Description	Проверяет координаты клиента: рядом и точно — подтверждение автоматическое, иначе ждёт решения сотрудника
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			id		path		string			true	"ID записи"
// @Param			request	body		CheckInRequest	true	"Координаты и точность в метрах"
// @Security		BearerAuth
// @Success		200	{object}	response.CheckInResponse	"Решение геопроверки и новый статус"
// @Failure		400	{object}	response.ErrorResponse	"Координаты недоступны (LOCATION_UNAVAILABLE)"
// @Failure		403	{object}	response.ErrorResponse	"Чужая запись (NOT_OWNER)"
// @Failure		409	{object}	response.ErrorResponse	"Запись не в статусе notified (INVALID_TRANSITION)"
// @Router			/api/entries/{id}/checkin [post]
func (h *QueueHandler) CheckInHandler(c *gin.Context) {
	entryID, err := strconv.Atoi(c.Param("id"))
	if err != nil || entryID <= 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_ENTRY_ID",
			Message: "Неверный идентификатор записи",
		})
		return
	}

	// Отсутствие координат — отдельный исход, не путать с «слишком далеко»:
	// попытка не записывается, клиент может повторить или попросить
	// сотрудника подтвердить прибытие вручную.
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "LOCATION_UNAVAILABLE",
			Message: "Не удалось получить координаты устройства",
			Details: "Разрешите доступ к геолокации в настройках браузера и повторите попытку, либо попросите сотрудника подтвердить прибытие вручную",
		})
		return
	}

	entry, err := h.Store.Get(uint(entryID))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if entry.CustomerID != c.GetUint("userID") {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "NOT_OWNER",
			Message: "Запись принадлежит другому клиенту",
		})
		return
	}

	updated, verification, err := h.Store.CheckIn(uint(entryID), *req.Latitude, *req.Longitude, *req.AccuracyM)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.CheckInResponse{
		Decision:       string(verification.Decision),
		DistanceMeters: verification.DistanceMeters,
		NewStatus:      updated.Status,
	})
}

// VerifyArrivalHandler — решение сотрудника по прибытию, ждущему проверки
// @Summary		Подтверждение прибытия сотрудником
// @Description	Подтверждает или отклоняет прибытие из статуса pending_verification
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			id		path		string			true	"ID записи"
// @Param			request	body		VerifyRequest	true	"Решение сотрудника"
// @Security		BearerAuth
// @Success		200	{object}	EntryResponse	"Обновлённая запись"
// @Failure		403	{object}	response.ErrorResponse	"Запись другого салона (WRONG_LOCATION)"
// @Failure		409	{object}	response.ErrorResponse	"Недопустимый переход (INVALID_TRANSITION)"
// @Router			/api/entries/{id}/verify [post]
func (h *QueueHandler) VerifyArrivalHandler(c *gin.Context) {
	entryID, err := strconv.Atoi(c.Param("id"))
	if err != nil || entryID <= 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_ENTRY_ID",
			Message: "Неверный идентификатор записи",
		})
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	if !h.staffOwnsEntry(c, uint(entryID)) {
		return
	}

	ev := queue.EventReject
	if *req.Confirmed {
		ev = queue.EventConfirm
	}
	updated, err := h.Store.Transition(uint(entryID), ev, "")
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, entryResponse(updated))
}

// UpdateStatusHandler — общий переход статуса по действию сотрудника
// @Summary		Смена статуса записи
// @Description	Применяет событие сотрудника: notify, call, complete, no_show или cancel
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			id		path		string			true	"ID записи"
// @Param			request	body		StatusRequest	true	"Событие и заметки"
// @Security		BearerAuth
// @Success		200	{object}	EntryResponse	"Обновлённая запись"
// @Failure		400	{object}	response.ErrorResponse	"Неизвестное событие (INVALID_EVENT)"
// @Failure		403	{object}	response.ErrorResponse	"Запись другого салона (WRONG_LOCATION)"
// @Failure		409	{object}	response.ErrorResponse	"Недопустимый переход (INVALID_TRANSITION)"
// @Router			/api/entries/{id}/status [put]
func (h *QueueHandler) UpdateStatusHandler(c *gin.Context) {
	entryID, err := strconv.Atoi(c.Param("id"))
	if err != nil || entryID <= 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_ENTRY_ID",
			Message: "Неверный идентификатор записи",
		})
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	ev, ok := staffEvents[req.Event]
	if !ok {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_EVENT",
			Message: "Неизвестное событие: " + req.Event,
		})
		return
	}

	if !h.staffOwnsEntry(c, uint(entryID)) {
		return
	}

	updated, err := h.Store.Transition(uint(entryID), ev, req.Notes)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, entryResponse(updated))
}

// NotifyHandler — push клиенту от сотрудника без смены статуса
// @Summary		Позвать клиента
// @Description	Отправляет клиенту сообщение с оценкой времени; статус записи не меняется
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			id		path		string			true	"ID записи"
// @Param			request	body		NotifyRequest	true	"Оценка времени и текст"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse	"Сообщение отправлено"
// @Failure		403	{object}	response.ErrorResponse	"Запись другого салона (WRONG_LOCATION)"
// @Failure		404	{object}	response.ErrorResponse	"Запись не найдена (ENTRY_NOT_FOUND)"
// @Router			/api/entries/{id}/notify [post]
func (h *QueueHandler) NotifyHandler(c *gin.Context) {
	entryID, err := strconv.Atoi(c.Param("id"))
	if err != nil || entryID <= 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_ENTRY_ID",
			Message: "Неверный идентификатор записи",
		})
		return
	}

	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	if !h.staffOwnsEntry(c, uint(entryID)) {
		return
	}

	entry, err := h.Store.Get(uint(entryID))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	h.Dispatcher.OnStaffNotify(entry, req.EstimatedMinutes, req.Message)
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Сообщение отправлено клиенту"})
}

// GetEntryHandler — авторитетное чтение записи владельцем или сотрудником
// @Summary		Получение записи очереди
// @Description	Возвращает актуальное состояние записи; клиенты вызывают после каждого push-сообщения
// @Tags			queue
// @Produce		json
// @Param			id	path		string	true	"ID записи"
// @Security		BearerAuth
// @Success		200	{object}	EntryResponse	"Текущая запись"
// @Failure		403	{object}	response.ErrorResponse	"Нет доступа (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Запись не найдена (ENTRY_NOT_FOUND)"
// @Router			/api/entries/{id} [get]
func (h *QueueHandler) GetEntryHandler(c *gin.Context) {
	entryID, err := strconv.Atoi(c.Param("id"))
	if err != nil || entryID <= 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_ENTRY_ID",
			Message: "Неверный идентификатор записи",
		})
		return
	}

	entry, err := h.Store.Get(uint(entryID))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	userID := c.GetUint("userID")
	if entry.CustomerID != userID {
		var user models.User
		if err := storage.DB.First(&user, userID).Error; err != nil ||
			user.Role != models.RoleStaff || user.LocationID == nil || *user.LocationID != entry.LocationID {
			c.JSON(http.StatusForbidden, response.ErrorResponse{
				Code:    "FORBIDDEN",
				Message: "Нет доступа к этой записи",
			})
			return
		}
	}

	c.JSON(http.StatusOK, entryResponse(entry))
}

// Participant — участник очереди в ответе для сотрудников.
type Participant struct {
	EntryID              uint   `json:"entry_id"`
	CustomerID           uint   `json:"customer_id"`
	Name                 string `json:"name"`
	Surname              string `json:"surname"`
	Status               string `json:"status"`
	Position             *int   `json:"position"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
}

// QueueStatusResponse содержит активную часть очереди салона.
type QueueStatusResponse struct {
	LocationID   uint          `json:"location_id"`
	Participants []Participant `json:"participants"`
}

// GetLocationQueueHandler — активная очередь салона для панели сотрудников
// @Summary		Очередь салона
// @Description	Возвращает активную часть очереди по возрастанию позиций
// @Tags			queue
// @Produce		json
// @Param			id	path		string	true	"ID салона"
// @Security		BearerAuth
// @Success		200	{object}	QueueStatusResponse	"Активные записи"
// @Failure		403	{object}	response.ErrorResponse	"Чужой салон (WRONG_LOCATION)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/locations/{id}/queue [get]
func (h *QueueHandler) GetLocationQueueHandler(c *gin.Context) {
	locationID, err := strconv.Atoi(c.Param("id"))
	if err != nil || locationID <= 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_LOCATION_ID",
			Message: "Неверный идентификатор салона",
		})
		return
	}

	if c.GetUint("staffLocationID") != uint(locationID) {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "WRONG_LOCATION",
			Message: "Очередь другого салона недоступна",
		})
		return
	}

	entries, err := h.Store.GetActive(uint(locationID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки записей очереди",
			Details: err.Error(),
		})
		return
	}

	participants := make([]Participant, 0, len(entries))
	for _, entry := range entries {
		participants = append(participants, Participant{
			EntryID:              entry.ID,
			CustomerID:           entry.CustomerID,
			Name:                 entry.Customer.Name,
			Surname:              entry.Customer.Surname,
			Status:               entry.Status,
			Position:             entry.Position,
			EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
		})
	}

	c.JSON(http.StatusOK, QueueStatusResponse{
		LocationID:   uint(locationID),
		Participants: participants,
	})
}

// GetMyEntriesHandler — записи клиента в очередях
// @Summary		Мои записи в очередях
// @Description	Возвращает незавершённые записи пользователя по всем салонам
// @Tags			profile
// @Produce		json
// @Security		BearerAuth
// @Success		200	{array}		EntryResponse	"Активные записи пользователя"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/profile/entries [get]
func (h *QueueHandler) GetMyEntriesHandler(c *gin.Context) {
	userID := c.GetUint("userID")

	var entries []models.QueueEntry
	if err := storage.DB.
		Where("customer_id = ? AND status IN ?", userID, queue.NonTerminalStatuses()).
		Order("joined_at ASC").
		Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки записей пользователя",
			Details: err.Error(),
		})
		return
	}

	result := make([]EntryResponse, 0, len(entries))
	for i := range entries {
		result = append(result, entryResponse(&entries[i]))
	}

	c.JSON(http.StatusOK, result)
}

// staffOwnsEntry проверяет, что запись относится к салону сотрудника.
// При отказе сама пишет ответ и возвращает false.
func (h *QueueHandler) staffOwnsEntry(c *gin.Context, entryID uint) bool {
	entry, err := h.Store.Get(entryID)
	if err != nil {
		h.respondStoreError(c, err)
		return false
	}
	if entry.LocationID != c.GetUint("staffLocationID") {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "WRONG_LOCATION",
			Message: "Запись относится к другому салону",
		})
		return false
	}
	return true
}

// respondStoreError переводит ошибки стора в ответы API.
func (h *QueueHandler) respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, queue.ErrNoServices):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Нужно выбрать хотя бы одну услугу",
		})
	case errors.Is(err, queue.ErrDuplicateActiveEntry):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "DUPLICATE_ACTIVE_ENTRY",
			Message: "У вас уже есть активная запись в очереди этого салона",
		})
	case errors.Is(err, queue.ErrInvalidTransition):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "INVALID_TRANSITION",
			Message: "Недопустимый переход статуса",
			Details: err.Error(),
		})
	case errors.Is(err, queue.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "ENTRY_NOT_FOUND",
			Message: "Запись очереди не найдена",
		})
	case errors.Is(err, queue.ErrLocationNotFound):
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "LOCATION_NOT_FOUND",
			Message: "Салон не найден",
		})
	case errors.Is(err, queue.ErrLocationClosed):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "LOCATION_CLOSED",
			Message: "Салон сейчас закрыт",
		})
	case errors.Is(err, queue.ErrLocationBusy):
		c.JSON(http.StatusServiceUnavailable, response.ErrorResponse{
			Code:    "LOCATION_BUSY",
			Message: "Очередь занята, повторите запрос",
		})
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Внутренняя ошибка сервера",
			Details: err.Error(),
		})
	}
}
