package main

import (
	"fmt"
	"log"
	"os"

	_ "salon_queue/docs"
	"salon_queue/internal/auth"
	"salon_queue/internal/handlers"
	"salon_queue/internal/models"
	"salon_queue/internal/notify"
	"salon_queue/internal/queue"
	"salon_queue/internal/storage"
	"salon_queue/internal/tasks"
	"salon_queue/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @Title						Онлайн очередь салона
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	key := os.Getenv("ENV_CHEK")
	if key == "" {
		fmt.Println("Подключение к .env")
		err := godotenv.Load()
		if err != nil {
			log.Fatal("Ошибка получения .env")
		}
	}

	storage.ConnectDatabase()

	if err := storage.DB.AutoMigrate(&models.User{}, &models.Location{}, &models.Service{}, &models.QueueEntry{}); err != nil {
		log.Fatal("Ошибка при миграции... ", err.Error())
	}

	storage.InitRedis()

	hub := ws.NewHub(handlers.WSAuth)
	hub.Start()
	defer hub.Stop()

	dispatcher := notify.NewDispatcher(hub)
	hub.OnViewersChange = dispatcher.OnViewersChange

	store := queue.NewStore(storage.DB, dispatcher)
	queueHandler := handlers.NewQueueHandler(store, dispatcher)

	tasks.InitScheduler(store)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", handlers.Login)
		authGroup.POST("/register", handlers.Register)
		authGroup.POST("/refresh", handlers.RefreshToken)
	}

	r.GET("/locations", handlers.GetLocationsHandler)

	// Аутентификация WebSocket идёт кадром authenticate внутри соединения.
	r.GET("/api/locations/:id/ws", hub.QueueWebSocketHandler)

	api := r.Group("/api", auth.AuthMiddleware())
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

	if err := r.Run(":8080"); err != nil {
		log.Fatal("Ошибка запуска сервера...", err.Error())
	}
}
