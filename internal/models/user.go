package models

import (
	"time"
)

// NotificationPreferences allows users to control transaction emails.
type NotificationPreferences struct {
	TransactionRequest bool `bson:"transaction_request" json:"transaction_request"`
	TransactionUpdate  bool `bson:"transaction_update" json:"transaction_update"`
	NewMessage         bool `bson:"new_message" json:"new_message"`
}

// User represents a marketplace profile.
type User struct {
	Base                    `bson:",inline"`
	Name                    string                   `bson:"name" json:"name"`
	Email                   string                   `bson:"email" json:"email"`
	PasswordHash            string                   `bson:"password" json:"-"` // bcrypt hash, never plaintext
	AvatarKey               string                   `bson:"avatar_key,omitempty" json:"avatar_key,omitempty"` // S3 key
	Location                string                   `bson:"location,omitempty" json:"location,omitempty"`
	IsAdmin                 bool                     `bson:"is_admin" json:"is_admin"`
	Suspended               bool                     `bson:"suspended" json:"suspended"`
	NotificationPreferences *NotificationPreferences `bson:"notification_preferences,omitempty" json:"notification_preferences,omitempty"`
	CreatedAt               time.Time                `bson:"created_at" json:"created_at"`
	UpdatedAt               time.Time                `bson:"updated_at" json:"updated_at"`
	Deleted                 bool                     `bson:"deleted" json:"-"` // Soft delete flag
}

// WantsEmail reports whether the user has the given notification enabled.
// Absent preferences mean everything is on.
func (u *User) WantsEmail(pick func(NotificationPreferences) bool) bool {
	if u.NotificationPreferences == nil {
		return true
	}
	return pick(*u.NotificationPreferences)
}
