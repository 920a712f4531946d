package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/isaacparker671/rentago-demo/internal/models"
	"github.com/isaacparker671/rentago-demo/internal/services"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// RestTransactionHandler handles REST requests for the transaction lifecycle.
type RestTransactionHandler struct {
	transactionService services.ITransactionService
}

// NewRestTransactionHandler creates a new RestTransactionHandler.
func NewRestTransactionHandler(transactionService services.ITransactionService) *RestTransactionHandler {
	return &RestTransactionHandler{
		transactionService: transactionService,
	}
}

type createTransactionRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// CreateTransaction handles POST /v1/transactions
func (h *RestTransactionHandler) CreateTransaction(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}

	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id is required"})
		return
	}

	conversationID, err := utils.ParseSixID(req.ConversationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID format"})
		return
	}

	txn, err := h.transactionService.CreateRequest(c.Request.Context(), viewerID, conversationID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, txn)
}

// GetTransaction handles GET /v1/transactions/:id
func (h *RestTransactionHandler) GetTransaction(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	transactionID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction ID format"})
		return
	}

	txn, err := h.transactionService.FindTransactionByID(c.Request.Context(), transactionID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve transaction"})
		}
		return
	}
	if txn.BuyerID != viewerID && txn.SellerID != viewerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a party to this transaction"})
		return
	}

	c.JSON(http.StatusOK, txn)
}

// GetLatestByConversation handles GET /v1/conversations/:id/transaction
func (h *RestTransactionHandler) GetLatestByConversation(c *gin.Context) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID format"})
		return
	}

	txn, err := h.transactionService.LatestByConversation(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No transaction for this conversation"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve transaction"})
		}
		return
	}
	if txn.BuyerID != viewerID && txn.SellerID != viewerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a party to this transaction"})
		return
	}

	c.JSON(http.StatusOK, txn)
}

// transition runs one of the guarded lifecycle calls and maps errors.
func (h *RestTransactionHandler) transition(c *gin.Context, call func(viewerID, transactionID utils.SixID) (*models.Transaction, error)) {
	viewerID, ok := getViewerID(c)
	if !ok {
		return
	}
	transactionID, err := parseIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction ID format"})
		return
	}

	txn, err := call(viewerID, transactionID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		// The guarded update carries the full precondition; any miss is a
		// conflict between the caller's view and the stored row.
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, txn)
}

// AcceptTransaction handles POST /v1/transactions/:id/accept
func (h *RestTransactionHandler) AcceptTransaction(c *gin.Context) {
	h.transition(c, func(viewerID, transactionID utils.SixID) (*models.Transaction, error) {
		return h.transactionService.Accept(c.Request.Context(), viewerID, transactionID)
	})
}

// DenyTransaction handles POST /v1/transactions/:id/deny
func (h *RestTransactionHandler) DenyTransaction(c *gin.Context) {
	h.transition(c, func(viewerID, transactionID utils.SixID) (*models.Transaction, error) {
		return h.transactionService.Deny(c.Request.Context(), viewerID, transactionID)
	})
}

// CancelTransaction handles POST /v1/transactions/:id/cancel
func (h *RestTransactionHandler) CancelTransaction(c *gin.Context) {
	h.transition(c, func(viewerID, transactionID utils.SixID) (*models.Transaction, error) {
		return h.transactionService.Cancel(c.Request.Context(), viewerID, transactionID)
	})
}

// FinalizeTransaction handles POST /v1/transactions/:id/finalize
func (h *RestTransactionHandler) FinalizeTransaction(c *gin.Context) {
	h.transition(c, func(viewerID, transactionID utils.SixID) (*models.Transaction, error) {
		return h.transactionService.Finalize(c.Request.Context(), viewerID, transactionID)
	})
}
