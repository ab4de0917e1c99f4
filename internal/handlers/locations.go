package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"salon_queue/internal/models"
	"salon_queue/internal/response"
	"salon_queue/internal/storage"

	"github.com/gin-gonic/gin"
)

var ctx = context.Background()

const locationsCacheKey = "locations_all"

// LocationItem — салон в публичном справочнике.
type LocationItem struct {
	ID        uint    `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	IsOpen    bool    `json:"is_open"`
}

// GetLocationsHandler обрабатывает запрос на получение списка салонов
// @Summary		Список салонов
// @Description	Возвращает справочник салонов, кэширует результат в Redis
// @Tags			locations
// @Produce		json
// @Success		200	{array}		LocationItem	"Салоны"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/locations [get]
func GetLocationsHandler(c *gin.Context) {
	// Проверка кэша
	cached, err := storage.RedisClient.Get(ctx, locationsCacheKey).Result()
	if err == nil && cached != "" {
		var items []LocationItem
		if err := json.Unmarshal([]byte(cached), &items); err == nil {
			c.JSON(http.StatusOK, items)
			return
		}
	}

	var locations []models.Location
	if err := storage.DB.Order("name ASC").Find(&locations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки списка салонов",
			Details: err.Error(),
		})
		return
	}

	items := make([]LocationItem, 0, len(locations))
	for _, l := range locations {
		items = append(items, LocationItem{
			ID:        l.ID,
			Name:      l.Name,
			Address:   l.Address,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			IsOpen:    l.IsOpen,
		})
	}

	if raw, err := json.Marshal(items); err == nil {
		storage.RedisClient.Set(ctx, locationsCacheKey, raw, 30*time.Second)
	}

	c.JSON(http.StatusOK, items)
}

// LocationConfigRequest — настройки очереди салона. Частичное обновление:
// nil-поля не трогаются.
type LocationConfigRequest struct {
	IsOpen                *bool    `json:"is_open"`
	AutoApproveRadiusM    *float64 `json:"auto_approve_radius_m"`
	MaxAccuracyM          *float64 `json:"max_accuracy_m"`
	AverageServiceMinutes *int     `json:"average_service_minutes"`
	NoShowTimeoutMinutes  *int     `json:"no_show_timeout_minutes"`
	WaitEstimateMode      *string  `json:"wait_estimate_mode"`
}

// UpdateLocationConfigHandler — настройка порогов очереди сотрудником
// @Summary		Настройки очереди салона
// @Description	Обновляет пороги геопроверки, среднее время обслуживания и тайм-аут неявки своего салона
// @Tags			locations
// @Accept			json
// @Produce		json
// @Param			id		path		string					true	"ID салона"
// @Param			request	body		LocationConfigRequest	true	"Изменяемые поля"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse	"Настройки сохранены"
// @Failure		403	{object}	response.ErrorResponse	"Чужой салон (WRONG_LOCATION)"
// @Failure		404	{object}	response.ErrorResponse	"Салон не найден (LOCATION_NOT_FOUND)"
// @Router			/api/locations/{id}/config [put]
func UpdateLocationConfigHandler(c *gin.Context) {
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
			Message: "Настройки другого салона недоступны",
		})
		return
	}

	var req LocationConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	var location models.Location
	if err := storage.DB.First(&location, locationID).Error; err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "LOCATION_NOT_FOUND",
			Message: "Салон не найден",
		})
		return
	}

	if req.IsOpen != nil {
		location.IsOpen = *req.IsOpen
	}
	if req.AutoApproveRadiusM != nil {
		location.AutoApproveRadiusM = *req.AutoApproveRadiusM
	}
	if req.MaxAccuracyM != nil {
		location.MaxAccuracyM = *req.MaxAccuracyM
	}
	if req.AverageServiceMinutes != nil {
		location.AverageServiceMinutes = *req.AverageServiceMinutes
	}
	if req.NoShowTimeoutMinutes != nil {
		location.NoShowTimeoutMinutes = *req.NoShowTimeoutMinutes
	}
	if req.WaitEstimateMode != nil {
		mode := *req.WaitEstimateMode
		if mode != models.WaitEstimateFixed && mode != models.WaitEstimateHistory {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Неизвестный режим оценки ожидания: " + mode,
			})
			return
		}
		location.WaitEstimateMode = mode
	}

	if err := storage.DB.Save(&location).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка сохранения настроек салона",
			Details: err.Error(),
		})
		return
	}

	// Справочник салонов мог измениться.
	storage.RedisClient.Del(ctx, locationsCacheKey)

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Настройки салона сохранены"})
}
