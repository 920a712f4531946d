package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/isaacparker671/rentago-demo/internal/models"
	"github.com/isaacparker671/rentago-demo/internal/services"
	"github.com/isaacparker671/rentago-demo/internal/storage"
	"github.com/isaacparker671/rentago-demo/internal/tasks"
)

// RestItemHandler handles REST requests for items.
type RestItemHandler struct {
	itemService    services.IItemService
	storageService storage.IS3Storage // nil when S3 is not configured
	taskClient     *asynq.Client      // nil when no worker backend is configured
}

// NewRestItemHandler creates a new RestItemHandler.
func NewRestItemHandler(itemService services.IItemService, storageService storage.IS3Storage, taskClient *asynq.Client) *RestItemHandler {
	return &RestItemHandler{
		itemService:    itemService,
		storageService: storageService,
		taskClient:     taskClient,
	}
}

type createItemRequest struct {
	Title            string        `json:"title" binding:"required"`
	Body             string        `json:"body"`
	ListingType      string        `json:"listing_type" binding:"required"`
	Price            *models.Price `json:"price"`
	Tags             []string      `json:"tags"`
	AvailabilityDays []string      `json:"availability_days"` // "2006-01-02", rent only
}

func parseAvailabilityDays(raw []string) ([]time.Time, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	days := make([]time.Time, 0, len(raw))
	for _, d := range raw {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, errors.New("availability_days entries must be YYYY-MM-DD dates")
		}
		days = append(days, t.UTC())
	}
	return days, nil
}

// CreateItem handles POST /v1/item
func (h *RestItemHandler) CreateItem(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}

	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and listing_type are required"})
		return
	}

	days, err := parseAvailabilityDays(req.AvailabilityDays)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.itemService.CreateItem(c.Request.Context(), viewerID, req.Title, req.Body,
		models.ListingType(req.ListingType), req.Price, req.Tags, days)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, item)
}

// GetItemByID handles GET /v1/item/:id
func (h *RestItemHandler) GetItemByID(c *gin.Context) {
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID format"})
		return
	}

	item, err := h.itemService.FindItemByID(c.Request.Context(), itemID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve item"})
		}
		return
	}

	c.JSON(http.StatusOK, item)
}

type updateItemRequest struct {
	Title            *string       `json:"title"`
	Body             *string       `json:"body"`
	Price            *models.Price `json:"price"`
	Tags             *[]string     `json:"tags"`
	AvailabilityDays *[]string     `json:"availability_days"`
}

// UpdateItem handles PATCH /v1/item/:id
func (h *RestItemHandler) UpdateItem(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID format"})
		return
	}

	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Body != nil {
		updates["body"] = *req.Body
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.Tags != nil {
		updates["tags"] = *req.Tags
	}
	if req.AvailabilityDays != nil {
		days, err := parseAvailabilityDays(*req.AvailabilityDays)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates["availability_days"] = days
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No updatable fields provided"})
		return
	}

	item, err := h.itemService.UpdateItem(c.Request.Context(), itemID, viewerID, updates)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found or not yours"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, item)
}

// DeleteItem handles DELETE /v1/item/:id
func (h *RestItemHandler) DeleteItem(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID format"})
		return
	}

	if err := h.itemService.DeleteItem(c.Request.Context(), itemID, viewerID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found or not yours"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// MarkReturned handles POST /v1/item/:id/returned
// Owner-only; the item must be a rented-out rent listing.
func (h *RestItemHandler) MarkReturned(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID format"})
		return
	}

	if err := h.itemService.MarkReturned(c.Request.Context(), itemID, viewerID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		} else {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(models.ItemStatusAvailable)})
}

// SearchItems handles GET /v1/item/search
func (h *RestItemHandler) SearchItems(c *gin.Context) {
	query := c.Query("q")
	typeStr := c.Query("type")
	statusStr := c.Query("status")
	tagsStr := c.Query("tags")
	limitStr := c.DefaultQuery("limit", "50")

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}

	var queryPtr *string
	if query != "" {
		queryPtr = &query
	}
	var typePtr *models.ListingType
	if typeStr != "" {
		lt := models.ListingType(typeStr)
		if lt != models.ListingTypeRent && lt != models.ListingTypeSell {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type must be rent or sell"})
			return
		}
		typePtr = &lt
	}
	var statusPtr *models.ItemStatus
	if statusStr != "" {
		st := models.ItemStatus(statusStr)
		statusPtr = &st
	}

	var tags []string
	if tagsStr != "" {
		for _, tag := range strings.Split(tagsStr, ",") {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
	}

	items, err := h.itemService.SearchItems(c.Request.Context(), queryPtr, typePtr, statusPtr, tags, limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search items"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// GetUserItems handles GET /v1/user/:id/items
func (h *RestItemHandler) GetUserItems(c *gin.Context) {
	ownerID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	items, err := h.itemService.FindItemsByOwner(c.Request.Context(), ownerID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch items"})
		return
	}

	c.JSON(http.StatusOK, items)
}

type photoUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// RequestPhotoUpload handles POST /v1/item/:id/photo
// Returns a presigned PUT URL. The client uploads directly to S3, then
// confirms with the returned key so the image worker can normalize it.
func (h *RestItemHandler) RequestPhotoUpload(c *gin.Context) {
	if h.storageService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Uploads are not configured"})
		return
	}
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID format"})
		return
	}

	item, err := h.itemService.FindItemByID(c.Request.Context(), itemID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve item"})
		}
		return
	}
	if !item.IsOwner(viewerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can add photos"})
		return
	}

	var req photoUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename and content_type are required"})
		return
	}

	url, key, err := h.storageService.GeneratePresignedPutURL(c.Request.Context(), viewerID.String(), itemID.String(), req.Filename, req.ContentType)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate upload URL"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"upload_url": url, "s3_key": key})
}

type photoConfirmRequest struct {
	S3Key string `json:"s3_key" binding:"required"`
}

// ConfirmPhotoUpload handles POST /v1/item/:id/photo/confirm
// Enqueues the normalization task; the worker attaches the key to the item.
func (h *RestItemHandler) ConfirmPhotoUpload(c *gin.Context) {
	if h.taskClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Background processing is not configured"})
		return
	}
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID format"})
		return
	}

	item, err := h.itemService.FindItemByID(c.Request.Context(), itemID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve item"})
		}
		return
	}
	if !item.IsOwner(viewerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can add photos"})
		return
	}

	var req photoConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "s3_key is required"})
		return
	}

	payload, err := json.Marshal(tasks.ImageTaskPayload{S3Key: req.S3Key, ItemID: itemID.String()})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue processing task"})
		return
	}
	task := asynq.NewTask(tasks.TypeImageProcess, payload)
	if _, err := h.taskClient.EnqueueContext(c.Request.Context(), task, asynq.Queue("images")); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue processing task"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"s3_key": req.S3Key})
}
