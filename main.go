package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/studygroup/backend/controllers"
	"github.com/studygroup/backend/database"
	"github.com/studygroup/backend/docs"
	"github.com/studygroup/backend/middleware"
	"github.com/studygroup/backend/ratelimit"
	"github.com/studygroup/backend/websocket"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Study Group Chat API
// @version         1.0
// @description     API Server for the Study Group Chat Application
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize database
	database.Connect()
	database.Migrate()

	// Message rate limiter: sweep stale entries in the background so the
	// per-user counter map does not grow without bound
	limiter := ratelimit.New(
		getEnvAsInt("RATE_LIMIT_MAX", ratelimit.DefaultLimit),
		time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_MS", int(ratelimit.DefaultWindow/time.Millisecond)))*time.Millisecond,
	)
	controllers.SetMessageLimiter(limiter)
	go func() {
		ticker := time.NewTicker(ratelimit.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			limiter.Sweep()
		}
	}()

	// Set up Swagger info
	docs.SwaggerInfo.Title = "Study Group Chat API"
	docs.SwaggerInfo.Description = "API Server for the Study Group Chat Application"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:" + os.Getenv("PORT")
	if docs.SwaggerInfo.Host == "localhost:" {
		docs.SwaggerInfo.Host = "localhost:8080"
	}
	docs.SwaggerInfo.BasePath = "/"
	docs.SwaggerInfo.Schemes = []string{"http"}

	// Set up router
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Authentication routes
	auth := router.Group("/api/auth")
	{
		auth.POST("/register", controllers.Register)
		auth.POST("/login", controllers.Login)
	}

	// Protected routes
	api := router.Group("/api")
	api.Use(middleware.JWTAuth())
	{
		// Room routes
		api.POST("/rooms/create", controllers.CreateRoom)
		api.GET("/rooms", controllers.GetRooms)
		api.GET("/rooms/:id", controllers.GetRoom)
		api.DELETE("/rooms/:id", controllers.DeleteRoom)
		api.POST("/rooms/:id/join", controllers.JoinRoom)
		api.DELETE("/rooms/clear-all", controllers.ClearAllRooms)

		// Message routes
		api.POST("/rooms/:id/message", controllers.CreateMessage)
		api.GET("/rooms/:id/messages", controllers.GetMessages)
		api.PUT("/rooms/:id/messages/:mid", controllers.UpdateMessage)
		api.DELETE("/rooms/:id/messages/:mid", controllers.DeleteMessage)
	}

	// WebSocket route
	router.GET("/ws", websocket.HandleConnection)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server running on port %s", port)
	log.Printf("Swagger documentation available at http://localhost:%s/swagger/index.html", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
