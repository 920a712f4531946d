package models

import (
	"time"

	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// ItemReview is one reviewer's review of one item. At most one per
// (item_id, reviewer_id) pair; revisions upsert the existing row.
type ItemReview struct {
	ID         utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
	ItemID     utils.SixID `bson:"item_id" json:"item_id"`
	ReviewerID utils.SixID `bson:"reviewer_id" json:"reviewer_id"`
	Rating     int         `bson:"rating" json:"rating"` // 1..5
	Body       string      `bson:"body" json:"body"`
	CreatedAt  time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `bson:"updated_at" json:"updated_at"`
}

// UserReview is one reviewer's review of another user. At most one per
// (reviewer_id, reviewed_user_id) pair; self-reviews are forbidden.
type UserReview struct {
	ID             utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
	ReviewerID     utils.SixID `bson:"reviewer_id" json:"reviewer_id"`
	ReviewedUserID utils.SixID `bson:"reviewed_user_id" json:"reviewed_user_id"`
	Rating         int         `bson:"rating" json:"rating"` // 1..5
	Body           string      `bson:"body" json:"body"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `bson:"updated_at" json:"updated_at"`
}
