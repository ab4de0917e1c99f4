package auth

import (
	"net/http"
	"strings"

	"salon_queue/internal/handlers"
	"salon_queue/internal/models"
	"salon_queue/internal/response"
	"salon_queue/internal/storage"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware проверяет валидность access токена
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "NO_AUTH_HEADER",
				Message: "Требуется авторизация",
			})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := handlers.ParseAccessToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "INVALID_TOKEN",
				Message: "Неверный или просроченный токен",
				Details: err.Error(),
			})
			c.Abort()
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}

// StaffMiddleware пускает дальше только сотрудников; салон сотрудника
// кладётся в контекст как staffLocationID. Применяется после AuthMiddleware.
func StaffMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")

		var user models.User
		if err := storage.DB.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "USER_NOT_FOUND",
				Message: "Пользователь не найден",
			})
			c.Abort()
			return
		}

		if user.Role != models.RoleStaff || user.LocationID == nil {
			c.JSON(http.StatusForbidden, response.ErrorResponse{
				Code:    "STAFF_ONLY",
				Message: "Операция доступна только сотрудникам салона",
			})
			c.Abort()
			return
		}

		c.Set("staffLocationID", *user.LocationID)
		c.Next()
	}
}
