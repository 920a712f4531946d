package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/isaacparker671/rentago-demo/internal/auth"
	"github.com/isaacparker671/rentago-demo/internal/config"
	"github.com/isaacparker671/rentago-demo/internal/services"
	"github.com/isaacparker671/rentago-demo/internal/storage"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// RestUserHandler handles REST requests related to users and auth.
type RestUserHandler struct {
	cfg            *config.Config
	userService    services.IUserService
	storageService storage.IS3Storage // nil when S3 is not configured
}

// NewRestUserHandler creates a new RestUserHandler.
func NewRestUserHandler(cfg *config.Config, userService services.IUserService, storageService storage.IS3Storage) *RestUserHandler {
	return &RestUserHandler{
		cfg:            cfg,
		userService:    userService,
		storageService: storageService,
	}
}

// PublicUser represents the data returned for a user profile.
type PublicUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Location   string `json:"location,omitempty"`
	AvatarKey  string `json:"avatar_key,omitempty"`
	DateJoined string `json:"date_joined"`
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /v1/auth/register
func (h *RestUserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, email and password are required"})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.IsAdmin, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

// Login handles POST /v1/auth/login
func (h *RestUserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	user, err := h.userService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		} else {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		}
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.IsAdmin, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// GetUserByID handles GET /v1/user/:id
func (h *RestUserHandler) GetUserByID(c *gin.Context) {
	userID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		}
		return
	}

	publicUser := PublicUser{
		ID:         user.ID.String(),
		Name:       user.Name,
		Location:   user.Location,
		AvatarKey:  user.AvatarKey,
		DateJoined: user.CreatedAt.Format("2006-01-02"),
	}

	c.JSON(http.StatusOK, publicUser)
}

// GetMe handles GET /v1/me
func (h *RestUserHandler) GetMe(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), viewerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve profile"})
		}
		return
	}

	c.JSON(http.StatusOK, user)
}

type updateProfileRequest struct {
	Name                    *string                 `json:"name"`
	Location                *string                 `json:"location"`
	NotificationPreferences *map[string]interface{} `json:"notification_preferences"`
}

// UpdateMe handles PATCH /v1/me
func (h *RestUserHandler) UpdateMe(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}
	if req.NotificationPreferences != nil {
		updates["notification_preferences"] = *req.NotificationPreferences
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No updatable fields provided"})
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), viewerID, updates)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, user)
}

// DeleteMe handles DELETE /v1/me
func (h *RestUserHandler) DeleteMe(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}

	if err := h.userService.DeleteAccount(c.Request.Context(), viewerID); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete account"})
		return
	}

	c.Status(http.StatusNoContent)
}

type avatarUploadRequest struct {
	ContentType string `json:"content_type" binding:"required"`
}

// RequestAvatarUpload handles POST /v1/me/avatar
func (h *RestUserHandler) RequestAvatarUpload(c *gin.Context) {
	if h.storageService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Uploads are not configured"})
		return
	}
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}

	var req avatarUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content_type is required"})
		return
	}

	url, key, err := h.storageService.GeneratePresignedAvatarURL(c.Request.Context(), viewerID.String(), req.ContentType)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate upload URL"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"upload_url": url, "s3_key": key})
}

type avatarConfirmRequest struct {
	S3Key string `json:"s3_key" binding:"required"`
}

// ConfirmAvatarUpload handles POST /v1/me/avatar/confirm
func (h *RestUserHandler) ConfirmAvatarUpload(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}

	var req avatarConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "s3_key is required"})
		return
	}

	if err := h.userService.SetAvatarKey(c.Request.Context(), viewerID, req.S3Key); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set avatar"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"avatar_key": req.S3Key})
}

// SuspendUser handles POST /v1/admin/user/:id/suspend
func (h *RestUserHandler) SuspendUser(c *gin.Context) {
	adminID, ok := getViewerID(c)
	if !ok {
		return
	}

	targetID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	if err := h.userService.SuspendUser(c.Request.Context(), targetID, adminID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
