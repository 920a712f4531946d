package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/isaacparker671/rentago-demo/internal/api/handlers"
	"github.com/isaacparker671/rentago-demo/internal/api/middleware"
	"github.com/isaacparker671/rentago-demo/internal/cache"
	"github.com/isaacparker671/rentago-demo/internal/config"
	"github.com/isaacparker671/rentago-demo/internal/services"
	"github.com/isaacparker671/rentago-demo/internal/storage"
	"github.com/isaacparker671/rentago-demo/internal/tasks"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient *asynq.Client) *gin.Engine {
	// Initialize services needed by API handlers
	itemService := services.NewItemService(db, cfg)
	conversationService := services.NewConversationService(db, cfg)
	reviewService := services.NewReviewService(db, cfg, itemService)

	var unreadTracker services.IUnreadTracker
	var unreadStore handlers.IUnreadStore
	if rdb != nil {
		unread := cache.NewUnreadCounter(rdb)
		unreadTracker = unread
		unreadStore = unread
	}

	var notifier services.ITransactionNotifier
	if taskClient != nil {
		notifier = tasks.NewNotifier(taskClient)
	}

	transactionService := services.NewTransactionService(db, cfg, itemService, conversationService, unreadTracker, notifier)
	userService := services.NewUserService(db, cfg, itemService, transactionService)

	var s3StorageService storage.IS3Storage
	if cfg.AwsS3Bucket != "" {
		svc, err := storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatalf("CRITICAL: Failed to initialize S3 storage for API: %v", err)
		}
		s3StorageService = svc
	}

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Global middleware first (order matters)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	// Initialize handlers
	restUserHandler := handlers.NewRestUserHandler(cfg, userService, s3StorageService)
	restItemHandler := handlers.NewRestItemHandler(itemService, s3StorageService, taskClient)
	restConversationHandler := handlers.NewRestConversationHandler(conversationService, unreadStore)
	restTransactionHandler := handlers.NewRestTransactionHandler(transactionService)
	restReviewHandler := handlers.NewRestReviewHandler(reviewService)

	v1 := r.Group("/v1")
	{
		// Public routes
		v1.POST("/auth/register", restUserHandler.Register)
		v1.POST("/auth/login", restUserHandler.Login)

		v1.GET("/item/search", restItemHandler.SearchItems)
		v1.GET("/item/:id", restItemHandler.GetItemByID)
		v1.GET("/item/:id/reviews", restReviewHandler.ListItemReviews)

		v1.GET("/user/:id", restUserHandler.GetUserByID)
		v1.GET("/user/:id/items", restItemHandler.GetUserItems)
		v1.GET("/user/:id/reviews", restReviewHandler.ListUserReviews)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/me", restUserHandler.GetMe)
			authRequired.PATCH("/me", restUserHandler.UpdateMe)
			authRequired.DELETE("/me", restUserHandler.DeleteMe)
			authRequired.POST("/me/avatar", restUserHandler.RequestAvatarUpload)
			authRequired.POST("/me/avatar/confirm", restUserHandler.ConfirmAvatarUpload)

			authRequired.POST("/item", restItemHandler.CreateItem)
			authRequired.PATCH("/item/:id", restItemHandler.UpdateItem)
			authRequired.DELETE("/item/:id", restItemHandler.DeleteItem)
			authRequired.POST("/item/:id/returned", restItemHandler.MarkReturned)
			authRequired.POST("/item/:id/photo", restItemHandler.RequestPhotoUpload)
			authRequired.POST("/item/:id/photo/confirm", restItemHandler.ConfirmPhotoUpload)
			authRequired.POST("/item/:id/review", restReviewHandler.UpsertItemReview)

			authRequired.POST("/user/:id/review", restReviewHandler.UpsertUserReview)

			authRequired.POST("/conversations", restConversationHandler.CreateConversation)
			authRequired.GET("/conversations", restConversationHandler.ListConversations)
			authRequired.GET("/conversations/unread", restConversationHandler.GetUnreadCounts)
			authRequired.GET("/conversations/:id/messages", restConversationHandler.ListMessages)
			authRequired.POST("/conversations/:id/messages", restConversationHandler.SendMessage)
			authRequired.GET("/conversations/:id/transaction", restTransactionHandler.GetLatestByConversation)

			authRequired.POST("/transactions", restTransactionHandler.CreateTransaction)
			authRequired.GET("/transactions/:id", restTransactionHandler.GetTransaction)
			authRequired.POST("/transactions/:id/accept", restTransactionHandler.AcceptTransaction)
			authRequired.POST("/transactions/:id/deny", restTransactionHandler.DenyTransaction)
			authRequired.POST("/transactions/:id/cancel", restTransactionHandler.CancelTransaction)
			authRequired.POST("/transactions/:id/finalize", restTransactionHandler.FinalizeTransaction)

			authRequired.GET("/reviews/eligibility", restReviewHandler.GetEligibility)
		}

		// Admin routes
		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.POST("/user/:id/suspend", restUserHandler.SuspendUser)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine.
// Requires the Redis client for the getTestEmail endpoint.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		case "getTestEmail":
			var args []string // Expect ["event_type", "email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [eventType, email]"})
				return
			}
			eventType := args[0]
			emailAddr := args[1]
			redisKey := fmt.Sprintf("mockemail:%s:%s", emailAddr, eventType)

			// Poll Redis briefly for the key
			var emailJsonData string
			var getErr error
			found := false
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			for i := 0; i < 10; i++ { // Poll up to ~2 seconds
				emailJsonData, getErr = rdb.Get(ctx, redisKey).Result()
				if getErr == nil {
					found = true
					rdb.Del(ctx, redisKey) // Delete after fetching
					break
				}
				if getErr != redis.Nil {
					log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, getErr)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}

			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(emailJsonData), &emailData); err != nil {
				log.Printf("Service API: Error unmarshalling email data from key %s: %v", redisKey, err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
