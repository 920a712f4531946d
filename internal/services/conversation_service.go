package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/isaacparker671/rentago-demo/internal/config"
	"github.com/isaacparker671/rentago-demo/internal/db"
	"github.com/isaacparker671/rentago-demo/internal/models"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// IConversationService defines the interface for conversation and message
// operations. AppendMessage and TouchConversation are always two separate
// writes; nothing ties message existence to last_message_at correctness
// beyond best-effort ordering.
type IConversationService interface {
	GetOrCreateConversation(ctx context.Context, itemID *utils.SixID, userA, userB utils.SixID) (*models.Conversation, error)
	FindConversationByID(ctx context.Context, conversationID utils.SixID) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID utils.SixID, limit int) ([]models.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, senderID utils.SixID, body string, system bool) (*models.Message, error)
	TouchConversation(ctx context.Context, conversationID utils.SixID, at time.Time) error
	ListMessages(ctx context.Context, conversationID utils.SixID, limit int) ([]models.Message, error)
}

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// conversationService implements IConversationService.
type conversationService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewConversationService creates a new ConversationService.
func NewConversationService(db *mongo.Database, cfg *config.Config) IConversationService {
	return &conversationService{db: db, cfg: cfg}
}

// GetOrCreateConversation looks up the thread for (item, unordered pair) and
// lazily creates it on first contact. The pair is stored normalized and
// guarded by a unique index, so when two sessions race to create the first
// conversation the loser gets a duplicate-key error and re-reads the
// winner's row instead of inserting a second one.
func (s *conversationService) GetOrCreateConversation(ctx context.Context, itemID *utils.SixID, userA, userB utils.SixID) (*models.Conversation, error) {
	if userA == userB {
		return nil, fmt.Errorf("cannot open a conversation with yourself")
	}
	a, b := models.NormalizePair(userA, userB)

	collection := s.db.Collection(conversationsCollection)
	filter := bson.M{"user_a": a, "user_b": b}
	if itemID != nil {
		filter["item_id"] = *itemID
	} else {
		filter["item_id"] = nil
	}

	var conversation models.Conversation
	err := collection.FindOne(ctx, filter).Decode(&conversation)
	if err == nil {
		return &conversation, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("error looking up conversation: %w", err)
	}

	now := time.Now().UTC()
	operation := func() error {
		// Re-check inside the retry loop: after a duplicate-key error the
		// winner's row is the one we want.
		findErr := collection.FindOne(ctx, filter).Decode(&conversation)
		if findErr == nil {
			return nil
		}
		if !errors.Is(findErr, mongo.ErrNoDocuments) {
			return findErr
		}
		conversation = models.Conversation{
			ID:            utils.NewSixID(),
			ItemID:        itemID,
			UserA:         a,
			UserB:         b,
			LastMessageAt: now,
			CreatedAt:     now,
		}
		_, insertErr := collection.InsertOne(ctx, conversation)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to create conversation between %s and %s: %w", a.String(), b.String(), err)
	}
	return &conversation, nil
}

// FindConversationByID fetches a conversation by ID.
func (s *conversationService) FindConversationByID(ctx context.Context, conversationID utils.SixID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := s.db.Collection(conversationsCollection).FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding conversation %s: %w", conversationID.String(), err)
	}
	return &conversation, nil
}

// ListConversationsForUser returns the user's threads, most recently active first.
func (s *conversationService) ListConversationsForUser(ctx context.Context, userID utils.SixID, limit int) ([]models.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"user_a": userID},
		bson.M{"user_b": userID},
	}}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "last_message_at", Value: -1}})

	cursor, err := s.db.Collection(conversationsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for user %s: %w", userID.String(), err)
	}
	defer cursor.Close(ctx)

	var conversations []models.Conversation
	if err = cursor.All(ctx, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// AppendMessage inserts a message into a conversation. Append-only; callers
// are expected to TouchConversation separately.
func (s *conversationService) AppendMessage(ctx context.Context, conversationID, senderID utils.SixID, body string, system bool) (*models.Message, error) {
	if body == "" {
		return nil, fmt.Errorf("message body must not be empty")
	}

	message := &models.Message{
		ID:             utils.NewSixID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		System:         system,
		CreatedAt:      time.Now().UTC(),
	}

	operation := func() error {
		_, insertErr := s.db.Collection(messagesCollection).InsertOne(ctx, message)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to append message to conversation %s: %w", conversationID.String(), err)
	}
	return message, nil
}

// TouchConversation updates last_message_at.
func (s *conversationService) TouchConversation(ctx context.Context, conversationID utils.SixID, at time.Time) error {
	result, err := s.db.Collection(conversationsCollection).UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"last_message_at": at}},
	)
	if err != nil {
		return fmt.Errorf("db error touching conversation %s: %w", conversationID.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("conversation %s not found", conversationID.String())
	}
	return nil
}

// ListMessages returns a conversation's messages ordered by created_at.
func (s *conversationService) ListMessages(ctx context.Context, conversationID utils.SixID, limit int) ([]models.Message, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.db.Collection(messagesCollection).Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for conversation %s: %w", conversationID.String(), err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
