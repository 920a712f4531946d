package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/isaacparker671/rentago-demo/internal/services"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// IUnreadStore is the unread-counter surface the conversation handler needs.
// Implemented by cache.UnreadCounter.
type IUnreadStore interface {
	Incr(ctx context.Context, userID, conversationID utils.SixID) error
	Clear(ctx context.Context, userID, conversationID utils.SixID) error
	Counts(ctx context.Context, userID utils.SixID) (map[string]int64, error)
}

// RestConversationHandler handles REST requests for conversations and messages.
type RestConversationHandler struct {
	conversationService services.IConversationService
	unread              IUnreadStore // nil when Redis is not configured
}

// NewRestConversationHandler creates a new RestConversationHandler.
func NewRestConversationHandler(conversationService services.IConversationService, unread IUnreadStore) *RestConversationHandler {
	return &RestConversationHandler{
		conversationService: conversationService,
		unread:              unread,
	}
}

type createConversationRequest struct {
	UserID string  `json:"user_id" binding:"required"`
	ItemID *string `json:"item_id"`
}

// CreateConversation handles POST /v1/conversations
// Get-or-create keyed on the normalized participant pair and the item.
func (h *RestConversationHandler) CreateConversation(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	otherID, err := utils.ParseSixID(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	var itemID *utils.SixID
	if req.ItemID != nil {
		parsed, err := utils.ParseSixID(*req.ItemID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID format"})
			return
		}
		itemID = &parsed
	}

	conversation, err := h.conversationService.GetOrCreateConversation(c.Request.Context(), itemID, viewerID, otherID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// ListConversations handles GET /v1/conversations
func (h *RestConversationHandler) ListConversations(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}

	conversations, err := h.conversationService.ListConversationsForUser(c.Request.Context(), viewerID, limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": conversations})
}

// ListMessages handles GET /v1/conversations/:id/messages
// Reading a conversation resets its unread counter for the viewer.
func (h *RestConversationHandler) ListMessages(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID format"})
		return
	}

	conversation, err := h.conversationService.FindConversationByID(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve conversation"})
		}
		return
	}
	if !conversation.HasParticipant(viewerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this conversation"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 100
	}

	messages, err := h.conversationService.ListMessages(c.Request.Context(), conversationID, limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list messages"})
		return
	}

	if h.unread != nil {
		if err := h.unread.Clear(c.Request.Context(), viewerID, conversationID); err != nil {
			log.Printf("Warning: failed to clear unread counter for user %s conversation %s: %v", viewerID.String(), conversationID.String(), err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": messages, "conversation": conversation})
}

type sendMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// SendMessage handles POST /v1/conversations/:id/messages
func (h *RestConversationHandler) SendMessage(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID format"})
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body is required"})
		return
	}

	conversation, err := h.conversationService.FindConversationByID(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve conversation"})
		}
		return
	}
	if !conversation.HasParticipant(viewerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this conversation"})
		return
	}

	message, err := h.conversationService.AppendMessage(c.Request.Context(), conversationID, viewerID, req.Body, false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.conversationService.TouchConversation(c.Request.Context(), conversationID, message.CreatedAt); err != nil {
		log.Printf("Warning: failed to touch conversation %s: %v", conversationID.String(), err)
	}
	if h.unread != nil {
		other := conversation.OtherParticipant(viewerID)
		if err := h.unread.Incr(c.Request.Context(), other, conversationID); err != nil {
			log.Printf("Warning: failed to bump unread counter for user %s conversation %s: %v", other.String(), conversationID.String(), err)
		}
	}

	c.JSON(http.StatusCreated, message)
}

// GetUnreadCounts handles GET /v1/conversations/unread
func (h *RestConversationHandler) GetUnreadCounts(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}

	if h.unread == nil {
		c.JSON(http.StatusOK, gin.H{"data": map[string]int64{}})
		return
	}

	counts, err := h.unread.Counts(c.Request.Context(), viewerID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch unread counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": counts})
}
