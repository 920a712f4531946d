package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isaacparker671/rentago-demo/internal/services"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// RestReviewHandler handles REST requests for item and user reviews.
type RestReviewHandler struct {
	reviewService services.IReviewService
}

// NewRestReviewHandler creates a new RestReviewHandler.
func NewRestReviewHandler(reviewService services.IReviewService) *RestReviewHandler {
	return &RestReviewHandler{
		reviewService: reviewService,
	}
}

type reviewRequest struct {
	Rating int    `json:"rating" binding:"required"`
	Body   string `json:"body"`
}

// UpsertItemReview handles POST /v1/item/:id/review
// One review per (item, reviewer): repeats overwrite.
func (h *RestReviewHandler) UpsertItemReview(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID format"})
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating is required"})
		return
	}

	eligible, err := h.reviewService.CanReviewItem(c.Request.Context(), viewerID, itemID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check review eligibility"})
		return
	}
	if !eligible {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not eligible to review this item"})
		return
	}

	review, err := h.reviewService.UpsertItemReview(c.Request.Context(), viewerID, itemID, req.Rating, req.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, review)
}

// UpsertUserReview handles POST /v1/user/:id/review
func (h *RestReviewHandler) UpsertUserReview(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	reviewedUserID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating is required"})
		return
	}

	eligible, err := h.reviewService.CanReviewUser(c.Request.Context(), viewerID, reviewedUserID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check review eligibility"})
		return
	}
	if !eligible {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not eligible to review this user"})
		return
	}

	review, err := h.reviewService.UpsertUserReview(c.Request.Context(), viewerID, reviewedUserID, req.Rating, req.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, review)
}

// ListItemReviews handles GET /v1/item/:id/reviews
func (h *RestReviewHandler) ListItemReviews(c *gin.Context) {
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID format"})
		return
	}

	reviews, err := h.reviewService.ListItemReviews(c.Request.Context(), itemID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reviews"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reviews})
}

// ListUserReviews handles GET /v1/user/:id/reviews
func (h *RestReviewHandler) ListUserReviews(c *gin.Context) {
	reviewedUserID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	reviews, err := h.reviewService.ListUserReviews(c.Request.Context(), reviewedUserID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reviews"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reviews})
}

// GetEligibility handles GET /v1/reviews/eligibility?item=X&user=Y
// Both gate predicates in one call so the client can render review actions.
func (h *RestReviewHandler) GetEligibility(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}

	result := gin.H{}

	if itemStr := c.Query("item"); itemStr != "" {
		itemID, err := utils.ParseSixID(itemStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID format"})
			return
		}
		canItem, err := h.reviewService.CanReviewItem(c.Request.Context(), viewerID, itemID)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check item eligibility"})
			return
		}
		result["can_review_item"] = canItem
	}

	if userStr := c.Query("user"); userStr != "" {
		otherID, err := utils.ParseSixID(userStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
			return
		}
		canUser, err := h.reviewService.CanReviewUser(c.Request.Context(), viewerID, otherID)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check user eligibility"})
			return
		}
		result["can_review_user"] = canUser
	}

	if len(result) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item or user query parameter required"})
		return
	}

	c.JSON(http.StatusOK, result)
}
