package models

import (
	"time"

	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// TransactionStatus is the lifecycle status of a rent/buy request.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionAccepted  TransactionStatus = "accepted"
	TransactionDenied    TransactionStatus = "denied"
	TransactionCancelled TransactionStatus = "cancelled"
	TransactionCompleted TransactionStatus = "completed"
)

// Transaction links a buyer and a seller over an item, inside the
// conversation it was requested in.
type Transaction struct {
	ID             utils.SixID       `bson:"_id,omitempty" json:"id,omitempty"`
	ItemID         utils.SixID       `bson:"item_id" json:"item_id"`
	ConversationID utils.SixID       `bson:"conversation_id" json:"conversation_id"`
	BuyerID        utils.SixID       `bson:"buyer_id" json:"buyer_id"`
	SellerID       utils.SixID       `bson:"seller_id" json:"seller_id"`
	Type           ListingType       `bson:"type" json:"type"` // copied from the item at creation
	Status         TransactionStatus `bson:"status" json:"status"`
	CompletedAt    *time.Time        `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CreatedAt      time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether no further transitions are permitted.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionDenied, TransactionCancelled, TransactionCompleted:
		return true
	}
	return false
}

// CanTransition reports whether the edge from → to exists in the state
// diagram: pending → {accepted, denied}; accepted → {cancelled, completed}.
func CanTransition(from, to TransactionStatus) bool {
	switch from {
	case TransactionPending:
		return to == TransactionAccepted || to == TransactionDenied
	case TransactionAccepted:
		return to == TransactionCancelled || to == TransactionCompleted
	}
	return false
}

// ItemStatusAfter returns the item status a transition leaves behind, or
// ("", false) when the transition does not touch the item row. Accept
// reserves regardless of type; Finalize settles to rented/sold per type;
// Cancel reverts the reservation; Deny leaves the item alone.
func ItemStatusAfter(to TransactionStatus, txType ListingType) (ItemStatus, bool) {
	switch to {
	case TransactionAccepted:
		return ItemStatusReserved, true
	case TransactionCancelled:
		return ItemStatusAvailable, true
	case TransactionCompleted:
		if txType == ListingTypeRent {
			return ItemStatusRented, true
		}
		return ItemStatusSold, true
	}
	return "", false
}

// TransitionActor identifies which party may trigger a given target status.
// Accept, deny and finalize belong to the seller; cancel to the buyer.
func (t *Transaction) TransitionActor(to TransactionStatus) utils.SixID {
	if to == TransactionCancelled {
		return t.BuyerID
	}
	return t.SellerID
}
