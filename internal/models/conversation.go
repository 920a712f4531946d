package models

import (
	"time"

	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// Conversation is a message thread between two users, optionally tied to an
// item. The participant pair is unordered; it is stored normalized with the
// byte-wise smaller ID in UserA so lookups hit the unique index for either
// ordering of the callers' arguments.
type Conversation struct {
	ID            utils.SixID  `bson:"_id,omitempty" json:"id,omitempty"`
	ItemID        *utils.SixID `bson:"item_id,omitempty" json:"item_id,omitempty"` // nil for direct messages
	UserA         utils.SixID  `bson:"user_a" json:"user_a"`
	UserB         utils.SixID  `bson:"user_b" json:"user_b"`
	LastMessageAt time.Time    `bson:"last_message_at" json:"last_message_at"`
	CreatedAt     time.Time    `bson:"created_at" json:"created_at"`
}

// HasParticipant reports whether the given user is one of the two parties.
func (c *Conversation) HasParticipant(userID utils.SixID) bool {
	return c.UserA == userID || c.UserB == userID
}

// OtherParticipant returns the counter-party of the given user.
func (c *Conversation) OtherParticipant(userID utils.SixID) utils.SixID {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// NormalizePair orders an unordered participant pair for storage.
func NormalizePair(a, b utils.SixID) (utils.SixID, utils.SixID) {
	if b.Less(a) {
		return b, a
	}
	return a, b
}
