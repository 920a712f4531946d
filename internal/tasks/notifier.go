package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/isaacparker671/rentago-demo/internal/models"
	"github.com/isaacparker671/rentago-demo/internal/services"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// Notifier implements services.ITransactionNotifier by enqueuing email
// delivery tasks. The lifecycle write path stays synchronous and fast; the
// email worker does the slow part.
type Notifier struct {
	client *asynq.Client
}

func NewNotifier(client *asynq.Client) *Notifier {
	return &Notifier{client: client}
}

// recipientFor picks the party who did NOT act: requests go to the seller,
// decisions go to the buyer, a buyer cancellation goes back to the seller.
func recipientFor(event services.TransactionEvent, txn *models.Transaction) utils.SixID {
	switch event {
	case services.EventRequested, services.EventCancelled:
		return txn.SellerID
	default:
		return txn.BuyerID
	}
}

// notifyPayloadFor builds the task payload for a lifecycle event. The item
// re-read after a transition is best-effort and may have failed; a nil item
// falls back to the type recorded on the transaction row.
func notifyPayloadFor(event services.TransactionEvent, txn *models.Transaction, item *models.Item) EmailNotifyPayload {
	itemTitle := "your item"
	listingType := txn.Type
	if item != nil {
		itemTitle = item.Title
		listingType = item.ListingType
	}

	return EmailNotifyPayload{
		Event:         string(event),
		RecipientID:   recipientFor(event, txn).String(),
		TransactionID: txn.ID.String(),
		ItemTitle:     itemTitle,
		ListingType:   string(listingType),
	}
}

func (n *Notifier) NotifyTransactionEvent(ctx context.Context, event services.TransactionEvent, txn *models.Transaction, item *models.Item) error {
	payload := notifyPayloadFor(event, txn, item)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email notify payload: %w", err)
	}

	task := asynq.NewTask(TypeEmailNotify, data)
	info, err := n.client.EnqueueContext(ctx, task, asynq.Queue("default"), asynq.MaxRetry(5))
	if err != nil {
		return fmt.Errorf("failed to enqueue email notify task: %w", err)
	}
	log.Printf("Enqueued %s notification task %s for transaction %s", event, info.ID, payload.TransactionID)
	return nil
}
