package models

import (
	"time"

	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// Message is an append-only entry in a conversation. System-authored
// boilerplate emitted by transaction transitions is stored the same way as
// user text, flagged with System for rendering.
type Message struct {
	ID             utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
	ConversationID utils.SixID `bson:"conversation_id" json:"conversation_id"`
	SenderID       utils.SixID `bson:"sender_id" json:"sender_id"`
	Body           string      `bson:"body" json:"body"`
	System         bool        `bson:"system" json:"system"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
}
