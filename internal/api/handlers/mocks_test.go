package handlers_test

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"github.com/isaacparker671/rentago-demo/internal/api/middleware"
	"github.com/isaacparker671/rentago-demo/internal/models"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// withViewer stands in for AuthMiddleware, stamping the context the way a
// validated token would.
func withViewer(viewerID utils.SixID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, viewerID.String())
		c.Next()
	}
}

// --- Mocks ---

// MockTransactionService
type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) CreateRequest(ctx context.Context, viewerID, conversationID utils.SixID) (*models.Transaction, error) {
	args := m.Called(ctx, viewerID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *MockTransactionService) Accept(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error) {
	args := m.Called(ctx, viewerID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *MockTransactionService) Deny(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error) {
	args := m.Called(ctx, viewerID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *MockTransactionService) Cancel(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error) {
	args := m.Called(ctx, viewerID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *MockTransactionService) Finalize(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error) {
	args := m.Called(ctx, viewerID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *MockTransactionService) FindTransactionByID(ctx context.Context, transactionID utils.SixID) (*models.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *MockTransactionService) LatestByConversation(ctx context.Context, conversationID utils.SixID) (*models.Transaction, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}
func (m *MockTransactionService) DeleteForUser(ctx context.Context, userID utils.SixID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockReviewService
type MockReviewService struct {
	mock.Mock
}

func (m *MockReviewService) CanReviewItem(ctx context.Context, viewerID, itemID utils.SixID) (bool, error) {
	args := m.Called(ctx, viewerID, itemID)
	return args.Bool(0), args.Error(1)
}
func (m *MockReviewService) CanReviewUser(ctx context.Context, viewerID, otherUserID utils.SixID) (bool, error) {
	args := m.Called(ctx, viewerID, otherUserID)
	return args.Bool(0), args.Error(1)
}
func (m *MockReviewService) UpsertItemReview(ctx context.Context, viewerID, itemID utils.SixID, rating int, body string) (*models.ItemReview, error) {
	args := m.Called(ctx, viewerID, itemID, rating, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItemReview), args.Error(1)
}
func (m *MockReviewService) UpsertUserReview(ctx context.Context, viewerID, reviewedUserID utils.SixID, rating int, body string) (*models.UserReview, error) {
	args := m.Called(ctx, viewerID, reviewedUserID, rating, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserReview), args.Error(1)
}
func (m *MockReviewService) ListItemReviews(ctx context.Context, itemID utils.SixID) ([]models.ItemReview, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ItemReview), args.Error(1)
}
func (m *MockReviewService) ListUserReviews(ctx context.Context, reviewedUserID utils.SixID) ([]models.UserReview, error) {
	args := m.Called(ctx, reviewedUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UserReview), args.Error(1)
}

// MockConversationService
type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) GetOrCreateConversation(ctx context.Context, itemID *utils.SixID, userA, userB utils.SixID) (*models.Conversation, error) {
	args := m.Called(ctx, itemID, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}
func (m *MockConversationService) FindConversationByID(ctx context.Context, conversationID utils.SixID) (*models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}
func (m *MockConversationService) ListConversationsForUser(ctx context.Context, userID utils.SixID, limit int) ([]models.Conversation, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}
func (m *MockConversationService) AppendMessage(ctx context.Context, conversationID, senderID utils.SixID, body string, system bool) (*models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, body, system)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}
func (m *MockConversationService) TouchConversation(ctx context.Context, conversationID utils.SixID, at time.Time) error {
	args := m.Called(ctx, conversationID, at)
	return args.Error(0)
}
func (m *MockConversationService) ListMessages(ctx context.Context, conversationID utils.SixID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

// MockUnreadStore
type MockUnreadStore struct {
	mock.Mock
}

func (m *MockUnreadStore) Incr(ctx context.Context, userID, conversationID utils.SixID) error {
	args := m.Called(ctx, userID, conversationID)
	return args.Error(0)
}
func (m *MockUnreadStore) Clear(ctx context.Context, userID, conversationID utils.SixID) error {
	args := m.Called(ctx, userID, conversationID)
	return args.Error(0)
}
func (m *MockUnreadStore) Counts(ctx context.Context, userID utils.SixID) (map[string]int64, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	args := m.Called(ctx, name, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *MockUserService) Login(ctx context.Context, email, password string) (*models.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *MockUserService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *MockUserService) UpdateProfile(ctx context.Context, userID utils.SixID, updates map[string]interface{}) (*models.User, error) {
	args := m.Called(ctx, userID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *MockUserService) SetAvatarKey(ctx context.Context, userID utils.SixID, avatarKey string) error {
	args := m.Called(ctx, userID, avatarKey)
	return args.Error(0)
}
func (m *MockUserService) DeleteAccount(ctx context.Context, userID utils.SixID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
func (m *MockUserService) SuspendUser(ctx context.Context, userIDToSuspend, adminUserID utils.SixID) error {
	args := m.Called(ctx, userIDToSuspend, adminUserID)
	return args.Error(0)
}

// MockItemService
type MockItemService struct {
	mock.Mock
}

func (m *MockItemService) CreateItem(ctx context.Context, ownerID utils.SixID, title, body string, listingType models.ListingType, price *models.Price, tags []string, availabilityDays []time.Time) (*models.Item, error) {
	args := m.Called(ctx, ownerID, title, body, listingType, price, tags, availabilityDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}
func (m *MockItemService) FindItemByID(ctx context.Context, itemID utils.SixID) (*models.Item, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}
func (m *MockItemService) UpdateItem(ctx context.Context, itemID, ownerID utils.SixID, updates map[string]interface{}) (*models.Item, error) {
	args := m.Called(ctx, itemID, ownerID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}
func (m *MockItemService) DeleteItem(ctx context.Context, itemID, ownerID utils.SixID) error {
	args := m.Called(ctx, itemID, ownerID)
	return args.Error(0)
}
func (m *MockItemService) MarkReturned(ctx context.Context, itemID, ownerID utils.SixID) error {
	args := m.Called(ctx, itemID, ownerID)
	return args.Error(0)
}
func (m *MockItemService) ApplyStatus(ctx context.Context, itemID utils.SixID, from []models.ItemStatus, to models.ItemStatus) error {
	args := m.Called(ctx, itemID, from, to)
	return args.Error(0)
}
func (m *MockItemService) SearchItems(ctx context.Context, query *string, listingType *models.ListingType, status *models.ItemStatus, tags []string, limit int) ([]models.Item, error) {
	args := m.Called(ctx, query, listingType, status, tags, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Item), args.Error(1)
}
func (m *MockItemService) FindItemsByOwner(ctx context.Context, ownerID utils.SixID) ([]models.Item, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Item), args.Error(1)
}
func (m *MockItemService) AddImageToItem(ctx context.Context, itemID utils.SixID, imageKey string) error {
	args := m.Called(ctx, itemID, imageKey)
	return args.Error(0)
}
