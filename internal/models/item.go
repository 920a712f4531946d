package models

import (
	"time"

	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// ListingType distinguishes items offered for rent from items offered for sale.
type ListingType string

const (
	ListingTypeRent ListingType = "rent"
	ListingTypeSell ListingType = "sell"
)

// ItemStatus is the lifecycle status of an item. It moves only through
// transaction side effects, plus the owner-only "mark returned" action.
type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "available"
	ItemStatusReserved  ItemStatus = "reserved"
	ItemStatusRented    ItemStatus = "rented"
	ItemStatusSold      ItemStatus = "sold"
)

// Price defines the structure for monetary values.
type Price struct {
	Value        float64 `bson:"value" json:"value"`
	CurrencyCode string  `bson:"currency_code" json:"currency_code"`
}

// Item represents a rent/sell listing.
type Item struct {
	ID          utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
	OwnerID     utils.SixID `bson:"owner_id" json:"owner_id"`
	Title       string      `bson:"title" json:"title"`
	Body        string      `bson:"body" json:"body"`
	ListingType ListingType `bson:"listing_type" json:"listing_type"`
	Status      ItemStatus  `bson:"status" json:"status"`
	Price       *Price      `bson:"price,omitempty" json:"price,omitempty"`
	Tags        []string    `bson:"tags" json:"tags"`
	Images      []string    `bson:"images" json:"images"` // S3 keys
	// AvailabilityDays lists the calendar dates (UTC, truncated to day) a rent
	// item may be picked up. Empty or absent means "anytime". Sell items never
	// carry it.
	AvailabilityDays []time.Time `bson:"availability_days,omitempty" json:"availability_days,omitempty"`
	CreatedAt        time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `bson:"updated_at" json:"updated_at"`
	Deleted          bool        `bson:"deleted" json:"-"` // Soft delete flag
}

// IsOwner reports whether the given viewer owns the item.
func (i *Item) IsOwner(viewerID utils.SixID) bool {
	return i.OwnerID == viewerID
}
