package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/isaacparker671/rentago-demo/internal/config"
	"github.com/isaacparker671/rentago-demo/internal/db"
	"github.com/isaacparker671/rentago-demo/internal/models"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// TransactionEvent names a lifecycle event for notification purposes.
type TransactionEvent string

const (
	EventRequested TransactionEvent = "requested"
	EventAccepted  TransactionEvent = "accepted"
	EventDenied    TransactionEvent = "denied"
	EventCancelled TransactionEvent = "cancelled"
	EventCompleted TransactionEvent = "completed"
)

// ITransactionNotifier delivers out-of-band notifications for lifecycle
// events. Delivery is auxiliary: failures are logged and ignored.
type ITransactionNotifier interface {
	NotifyTransactionEvent(ctx context.Context, event TransactionEvent, txn *models.Transaction, item *models.Item) error
}

// IUnreadTracker bumps unread counters for the receiving party of a message.
// Auxiliary as well; implemented on Redis in internal/cache.
type IUnreadTracker interface {
	Incr(ctx context.Context, userID, conversationID utils.SixID) error
}

// ITransactionService defines the transaction lifecycle operations.
//
// Each transition is a sequence of independent writes split into a core
// part and an auxiliary part. Core: the transaction row update, then the
// item row update. A core failure aborts the remaining steps and surfaces
// to the caller; already-applied writes are not rolled back. Auxiliary:
// the system message append, the conversation last_message_at touch, the
// unread counter bump and the notification enqueue, each best-effort
// and never fails the operation.
//
// Preconditions are enforced against the store, not the caller's stale
// view: every transition write carries the required current status and
// actor in its filter, so an illegal transition matches zero rows.
type ITransactionService interface {
	CreateRequest(ctx context.Context, viewerID, conversationID utils.SixID) (*models.Transaction, error)
	Accept(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error)
	Deny(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error)
	Cancel(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error)
	Finalize(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error)
	FindTransactionByID(ctx context.Context, transactionID utils.SixID) (*models.Transaction, error)
	LatestByConversation(ctx context.Context, conversationID utils.SixID) (*models.Transaction, error)
	DeleteForUser(ctx context.Context, userID utils.SixID) error
}

const transactionsCollection = "transactions"

// transactionService implements ITransactionService.
type transactionService struct {
	db           *mongo.Database
	cfg          *config.Config
	items        IItemService
	conversation IConversationService
	unread       IUnreadTracker       // optional
	notifier     ITransactionNotifier // optional
}

// NewTransactionService creates a new TransactionService. The unread tracker
// and notifier may be nil; the corresponding auxiliary steps are skipped.
func NewTransactionService(db *mongo.Database, cfg *config.Config, items IItemService, conversation IConversationService, unread IUnreadTracker, notifier ITransactionNotifier) ITransactionService {
	return &transactionService{
		db:           db,
		cfg:          cfg,
		items:        items,
		conversation: conversation,
		unread:       unread,
		notifier:     notifier,
	}
}

// CreateRequest creates a pending transaction inside a conversation tied to
// an item. The requester must be a participant other than the item owner,
// and the conversation must not already carry a transaction.
func (s *transactionService) CreateRequest(ctx context.Context, viewerID, conversationID utils.SixID) (*models.Transaction, error) {
	conversation, err := s.conversation.FindConversationByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation %s not found: %w", conversationID.String(), err)
	}
	if !conversation.HasParticipant(viewerID) {
		return nil, fmt.Errorf("user %s is not a participant of conversation %s", viewerID.String(), conversationID.String())
	}
	if conversation.ItemID == nil {
		return nil, fmt.Errorf("conversation %s is not tied to an item", conversationID.String())
	}

	item, err := s.items.FindItemByID(ctx, *conversation.ItemID)
	if err != nil {
		return nil, fmt.Errorf("item for conversation %s not found: %w", conversationID.String(), err)
	}
	if item.IsOwner(viewerID) {
		return nil, fmt.Errorf("owner cannot request own item %s", item.ID.String())
	}

	// Guarded only by "no existing transaction row for this conversation".
	if _, err := s.LatestByConversation(ctx, conversationID); err == nil {
		return nil, fmt.Errorf("conversation %s already has a transaction", conversationID.String())
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	now := time.Now().UTC()
	txn := &models.Transaction{
		ID:             utils.NewSixID(),
		ItemID:         item.ID,
		ConversationID: conversationID,
		BuyerID:        viewerID,
		SellerID:       item.OwnerID,
		Type:           item.ListingType, // copied from the listing at creation
		Status:         models.TransactionPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	operation := func() error {
		_, insertErr := s.db.Collection(transactionsCollection).InsertOne(ctx, txn)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert transaction for conversation %s: %w", conversationID.String(), err)
	}

	s.afterTransition(ctx, EventRequested, txn, item, viewerID)
	return txn, nil
}

// Accept moves a pending transaction to accepted (seller only) and reserves
// the item regardless of rent vs. sell.
func (s *transactionService) Accept(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error) {
	return s.transition(ctx, viewerID, transactionID, models.TransactionAccepted)
}

// Deny moves a pending transaction to denied (seller only). The item is left
// unchanged, still available.
func (s *transactionService) Deny(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error) {
	return s.transition(ctx, viewerID, transactionID, models.TransactionDenied)
}

// Cancel moves an accepted transaction to cancelled (buyer only) and reverts
// the item to available.
func (s *transactionService) Cancel(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error) {
	return s.transition(ctx, viewerID, transactionID, models.TransactionCancelled)
}

// Finalize moves an accepted transaction to completed (seller only), stamps
// completed_at, and settles the item to rented or sold per its type.
func (s *transactionService) Finalize(ctx context.Context, viewerID, transactionID utils.SixID) (*models.Transaction, error) {
	return s.transition(ctx, viewerID, transactionID, models.TransactionCompleted)
}

// statusBefore returns the single status a transition to the given target is
// legal from.
func statusBefore(to models.TransactionStatus) models.TransactionStatus {
	switch to {
	case models.TransactionAccepted, models.TransactionDenied:
		return models.TransactionPending
	default:
		return models.TransactionAccepted
	}
}

// itemStatusBefore returns the item statuses the item-side write of a
// transition is legal from. Cancel tolerates an already-available item so
// that retrying after a partial failure converges.
func itemStatusBefore(to models.TransactionStatus) []models.ItemStatus {
	switch to {
	case models.TransactionAccepted:
		return []models.ItemStatus{models.ItemStatusAvailable}
	case models.TransactionCancelled:
		return []models.ItemStatus{models.ItemStatusReserved, models.ItemStatusAvailable}
	case models.TransactionCompleted:
		return []models.ItemStatus{models.ItemStatusReserved}
	}
	return nil
}

func (s *transactionService) transition(ctx context.Context, viewerID, transactionID utils.SixID, to models.TransactionStatus) (*models.Transaction, error) {
	collection := s.db.Collection(transactionsCollection)
	now := time.Now().UTC()

	actorField := "seller_id"
	if to == models.TransactionCancelled {
		actorField = "buyer_id"
	}

	// Core write 1: the transaction row. The filter re-checks the
	// precondition (current status + actor) at write time.
	filter := bson.M{
		"_id":      transactionID,
		"status":   statusBefore(to),
		actorField: viewerID,
	}
	set := bson.M{"status": to, "updated_at": now}
	if to == models.TransactionCompleted {
		set["completed_at"] = now
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var txn models.Transaction
	err := collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&txn)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.diagnoseTransitionFailure(ctx, viewerID, transactionID, to, actorField)
		}
		return nil, fmt.Errorf("failed to update transaction %s to %s: %w", transactionID.String(), to, err)
	}

	// Core write 2: the item row, as a targeted partial update. Deny does
	// not touch the item. A failure here surfaces to the caller; the
	// transaction row is not rolled back.
	if itemStatus, touches := models.ItemStatusAfter(to, txn.Type); touches {
		if err := s.items.ApplyStatus(ctx, txn.ItemID, itemStatusBefore(to), itemStatus); err != nil {
			return &txn, fmt.Errorf("transaction %s moved to %s but item update failed: %w", transactionID.String(), to, err)
		}
	}

	item, err := s.items.FindItemByID(ctx, txn.ItemID)
	if err != nil {
		log.Printf("Warning: item %s not found after transaction %s transition: %v", txn.ItemID.String(), transactionID.String(), err)
		item = nil
	}

	s.afterTransition(ctx, eventFor(to), &txn, item, viewerID)
	return &txn, nil
}

// diagnoseTransitionFailure re-reads the row to report why a guarded
// transition matched nothing.
func (s *transactionService) diagnoseTransitionFailure(ctx context.Context, viewerID, transactionID utils.SixID, to models.TransactionStatus, actorField string) error {
	var txn models.Transaction
	err := s.db.Collection(transactionsCollection).FindOne(ctx, bson.M{"_id": transactionID}).Decode(&txn)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("transaction %s not found", transactionID.String())
	}
	if err != nil {
		return fmt.Errorf("error re-reading transaction %s: %w", transactionID.String(), err)
	}
	if txn.TransitionActor(to) != viewerID {
		return fmt.Errorf("user %s may not move transaction %s to %s (%s mismatch)", viewerID.String(), transactionID.String(), to, actorField)
	}
	if txn.Status.IsTerminal() {
		return fmt.Errorf("transaction %s is %s, a terminal state", transactionID.String(), txn.Status)
	}
	if !models.CanTransition(txn.Status, to) {
		return fmt.Errorf("transaction %s is %s, cannot move to %s", transactionID.String(), txn.Status, to)
	}
	return fmt.Errorf("failed to move transaction %s to %s (condition not met)", transactionID.String(), to)
}

func eventFor(to models.TransactionStatus) TransactionEvent {
	switch to {
	case models.TransactionAccepted:
		return EventAccepted
	case models.TransactionDenied:
		return EventDenied
	case models.TransactionCancelled:
		return EventCancelled
	default:
		return EventCompleted
	}
}

// systemMessageFor composes the boilerplate appended to the thread for a
// lifecycle event.
func systemMessageFor(event TransactionEvent, txn *models.Transaction, item *models.Item) string {
	title := "this item"
	if item != nil {
		title = fmt.Sprintf("%q", item.Title)
	}
	verb := "buy"
	if txn.Type == models.ListingTypeRent {
		verb = "rent"
	}
	switch event {
	case EventRequested:
		return fmt.Sprintf("Sent a request to %s %s.", verb, title)
	case EventAccepted:
		return fmt.Sprintf("The request for %s was accepted.", title)
	case EventDenied:
		return fmt.Sprintf("The request for %s was denied.", title)
	case EventCancelled:
		return fmt.Sprintf("The request for %s was cancelled by the requester.", title)
	case EventCompleted:
		return fmt.Sprintf("The transaction for %s is complete. Both parties can now leave a review.", title)
	}
	return ""
}

// afterTransition runs the auxiliary tail of a transition: system message,
// conversation touch, unread bump for the counter-party, notification
// enqueue. Failures are logged and never propagated.
func (s *transactionService) afterTransition(ctx context.Context, event TransactionEvent, txn *models.Transaction, item *models.Item, actorID utils.SixID) {
	now := time.Now().UTC()

	if body := systemMessageFor(event, txn, item); body != "" {
		if _, err := s.conversation.AppendMessage(ctx, txn.ConversationID, actorID, body, true); err != nil {
			log.Printf("Warning: failed to append system message for transaction %s (%s): %v", txn.ID.String(), event, err)
		}
	}
	if err := s.conversation.TouchConversation(ctx, txn.ConversationID, now); err != nil {
		log.Printf("Warning: failed to touch conversation %s for transaction %s: %v", txn.ConversationID.String(), txn.ID.String(), err)
	}

	counterparty := txn.SellerID
	if actorID == txn.SellerID {
		counterparty = txn.BuyerID
	}
	if s.unread != nil {
		if err := s.unread.Incr(ctx, counterparty, txn.ConversationID); err != nil {
			log.Printf("Warning: failed to bump unread counter for user %s: %v", counterparty.String(), err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyTransactionEvent(ctx, event, txn, item); err != nil {
			log.Printf("Warning: failed to enqueue %s notification for transaction %s: %v", event, txn.ID.String(), err)
		}
	}
}

// FindTransactionByID fetches a transaction by ID.
func (s *transactionService) FindTransactionByID(ctx context.Context, transactionID utils.SixID) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.Collection(transactionsCollection).FindOne(ctx, bson.M{"_id": transactionID}).Decode(&txn)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding transaction %s: %w", transactionID.String(), err)
	}
	return &txn, nil
}

// LatestByConversation returns the most recent transaction of a conversation,
// or mongo.ErrNoDocuments when none exists.
func (s *transactionService) LatestByConversation(ctx context.Context, conversationID utils.SixID) (*models.Transaction, error) {
	var txn models.Transaction
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err := s.db.Collection(transactionsCollection).FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&txn)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding latest transaction for conversation %s: %w", conversationID.String(), err)
	}
	return &txn, nil
}

// DeleteForUser hard-deletes all transactions a user participates in. Only
// the account-deletion cascade calls this; transactions are never deleted
// otherwise.
func (s *transactionService) DeleteForUser(ctx context.Context, userID utils.SixID) error {
	filter := bson.M{"$or": bson.A{
		bson.M{"buyer_id": userID},
		bson.M{"seller_id": userID},
	}}
	if _, err := s.db.Collection(transactionsCollection).DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete transactions for user %s: %w", userID.String(), err)
	}
	return nil
}
