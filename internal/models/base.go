package models

import (
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// Base carries the document ID for models that embed it.
type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
}

// NewBase returns a Base with a freshly generated ID.
func NewBase() Base {
	return Base{ID: utils.NewSixID()}
}
