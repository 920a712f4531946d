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

// IItemService defines the interface for item-related operations.
//
// Item status is never set directly by either party: it moves through
// ApplyStatus (called by the transaction service as a transition side
// effect) and through the owner-only MarkReturned action.
type IItemService interface {
	CreateItem(ctx context.Context, ownerID utils.SixID, title, body string, listingType models.ListingType, price *models.Price, tags []string, availabilityDays []time.Time) (*models.Item, error)
	FindItemByID(ctx context.Context, itemID utils.SixID) (*models.Item, error)
	UpdateItem(ctx context.Context, itemID, ownerID utils.SixID, updates map[string]interface{}) (*models.Item, error)
	DeleteItem(ctx context.Context, itemID, ownerID utils.SixID) error
	MarkReturned(ctx context.Context, itemID, ownerID utils.SixID) error
	ApplyStatus(ctx context.Context, itemID utils.SixID, from []models.ItemStatus, to models.ItemStatus) error
	SearchItems(ctx context.Context, query *string, listingType *models.ListingType, status *models.ItemStatus, tags []string, limit int) ([]models.Item, error)
	FindItemsByOwner(ctx context.Context, ownerID utils.SixID) ([]models.Item, error)
	AddImageToItem(ctx context.Context, itemID utils.SixID, imageKey string) error
}

const itemsCollection = "items"

// itemService implements IItemService.
type itemService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewItemService creates a new ItemService.
func NewItemService(db *mongo.Database, cfg *config.Config) IItemService {
	return &itemService{db: db, cfg: cfg}
}

// CreateItem creates a new item document in "available" status.
func (s *itemService) CreateItem(ctx context.Context, ownerID utils.SixID, title, body string, listingType models.ListingType, price *models.Price, tags []string, availabilityDays []time.Time) (*models.Item, error) {
	if listingType != models.ListingTypeRent && listingType != models.ListingTypeSell {
		return nil, fmt.Errorf("invalid listing type %q", listingType)
	}
	if listingType == models.ListingTypeSell && len(availabilityDays) > 0 {
		return nil, fmt.Errorf("availability days only apply to rent listings")
	}

	collection := s.db.Collection(itemsCollection)
	now := time.Now().UTC()

	var newItem *models.Item

	operation := func() error {
		newItem = &models.Item{
			ID:               utils.NewSixID(),
			OwnerID:          ownerID,
			Title:            title,
			Body:             body,
			ListingType:      listingType,
			Status:           models.ItemStatusAvailable,
			Price:            price,
			Tags:             tags,
			Images:           []string{},
			AvailabilityDays: availabilityDays,
			CreatedAt:        now,
			UpdatedAt:        now,
			Deleted:          false,
		}
		_, insertErr := collection.InsertOne(ctx, newItem)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		itemIDStr := "<unknown>"
		if newItem != nil {
			itemIDStr = newItem.ID.String()
		}
		return nil, fmt.Errorf("failed to insert new item for user %s (last attempted item ID: %s) after multiple retries: %w",
			ownerID.String(), itemIDStr, err)
	}

	return newItem, nil
}

// FindItemByID finds a non-deleted item by its ID. It does NOT check ownership.
func (s *itemService) FindItemByID(ctx context.Context, itemID utils.SixID) (*models.Item, error) {
	var item models.Item
	collection := s.db.Collection(itemsCollection)
	filter := bson.M{"_id": itemID, "deleted": false}

	err := collection.FindOne(ctx, filter).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding item by ID %s: %w", itemID.String(), err)
	}
	return &item, nil
}

// UpdateItem updates mutable fields of an item owned by the specified user.
// Status is deliberately not updatable here; it only moves via transaction
// side effects and MarkReturned.
func (s *itemService) UpdateItem(ctx context.Context, itemID, ownerID utils.SixID, updates map[string]interface{}) (*models.Item, error) {
	collection := s.db.Collection(itemsCollection)

	allowedUpdates := bson.M{}
	for key, value := range updates {
		switch key {
		case "title", "body", "price", "tags", "availability_days":
			allowedUpdates[key] = value
		default:
			return nil, fmt.Errorf("field '%s' cannot be updated via UpdateItem", key)
		}
	}
	if len(allowedUpdates) == 0 {
		return nil, fmt.Errorf("no valid fields provided for update")
	}
	allowedUpdates["updated_at"] = time.Now().UTC()

	filter := bson.M{
		"_id":      itemID,
		"owner_id": ownerID,
		"deleted":  false,
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updatedItem models.Item
	err := collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": allowedUpdates}, opts).Decode(&updatedItem)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("item not found, not owned by user, or cannot be updated")
		}
		return nil, fmt.Errorf("failed to update item %s: %w", itemID.String(), err)
	}

	return &updatedItem, nil
}

// DeleteItem performs a soft delete by setting the deleted flag to true.
func (s *itemService) DeleteItem(ctx context.Context, itemID, ownerID utils.SixID) error {
	now := time.Now().UTC()
	collection := s.db.Collection(itemsCollection)
	filter := bson.M{"_id": itemID, "owner_id": ownerID, "deleted": false}
	update := bson.M{"$set": bson.M{"deleted": true, "deleted_at": now, "updated_at": now}}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error deleting item %s: %w", itemID.String(), err)
	}
	if result.MatchedCount == 0 {
		var item models.Item
		checkErr := collection.FindOne(ctx, bson.M{"_id": itemID}).Decode(&item)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return fmt.Errorf("item %s not found", itemID.String())
		}
		if item.OwnerID != ownerID {
			return fmt.Errorf("item %s does not belong to user %s", itemID.String(), ownerID.String())
		}
		return fmt.Errorf("item %s is already deleted", itemID.String())
	}
	return nil
}

// MarkReturned resets a rented item back to "available". Owner-only, rent
// listings only; the transaction row is left untouched, which is what allows
// repeat rentals and unlocks item-review eligibility under the strict policy.
func (s *itemService) MarkReturned(ctx context.Context, itemID, ownerID utils.SixID) error {
	collection := s.db.Collection(itemsCollection)
	filter := bson.M{
		"_id":          itemID,
		"owner_id":     ownerID,
		"deleted":      false,
		"listing_type": models.ListingTypeRent,
		"status":       models.ItemStatusRented,
	}
	update := bson.M{"$set": bson.M{
		"status":     models.ItemStatusAvailable,
		"updated_at": time.Now().UTC(),
	}}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error marking item %s returned: %w", itemID.String(), err)
	}
	if result.MatchedCount == 0 {
		var item models.Item
		checkErr := collection.FindOne(ctx, bson.M{"_id": itemID}).Decode(&item)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return fmt.Errorf("item %s not found", itemID.String())
		}
		if item.OwnerID != ownerID {
			return fmt.Errorf("item %s does not belong to user %s", itemID.String(), ownerID.String())
		}
		if item.Deleted {
			return fmt.Errorf("item %s is deleted", itemID.String())
		}
		if item.ListingType != models.ListingTypeRent {
			return fmt.Errorf("item %s is not a rent listing", itemID.String())
		}
		if item.Status != models.ItemStatusRented {
			return fmt.Errorf("item %s is not currently rented (status: %s)", itemID.String(), item.Status)
		}
		return fmt.Errorf("failed to mark item %s returned (condition not met)", itemID.String())
	}
	return nil
}

// ApplyStatus moves an item's status with a targeted partial update, guarded
// by the set of statuses the transition is legal from. A zero match means the
// item raced past the precondition since it was last read.
func (s *itemService) ApplyStatus(ctx context.Context, itemID utils.SixID, from []models.ItemStatus, to models.ItemStatus) error {
	collection := s.db.Collection(itemsCollection)
	filter := bson.M{
		"_id":     itemID,
		"deleted": false,
		"status":  bson.M{"$in": from},
	}
	update := bson.M{"$set": bson.M{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error updating item %s status to %s: %w", itemID.String(), to, err)
	}
	if result.MatchedCount == 0 {
		var item models.Item
		checkErr := collection.FindOne(ctx, bson.M{"_id": itemID}).Decode(&item)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return fmt.Errorf("item %s not found", itemID.String())
		}
		if item.Deleted {
			return fmt.Errorf("item %s is deleted", itemID.String())
		}
		return fmt.Errorf("item %s status is %s, cannot move to %s", itemID.String(), item.Status, to)
	}
	return nil
}

// SearchItems searches non-deleted items by text, type, status and tags.
func (s *itemService) SearchItems(ctx context.Context, query *string, listingType *models.ListingType, status *models.ItemStatus, tags []string, limit int) ([]models.Item, error) {
	collection := s.db.Collection(itemsCollection)

	filter := bson.M{"deleted": false}
	if query != nil && *query != "" {
		filter["$text"] = bson.M{"$search": *query}
	}
	if listingType != nil {
		filter["listing_type"] = *listingType
	}
	if status != nil {
		filter["status"] = *status
	}
	if len(tags) > 0 {
		filter["tags"] = bson.M{"$all": tags}
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to execute item search query: %w", err)
	}
	defer cursor.Close(ctx)

	var results []models.Item
	if err = cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode item search results: %w", err)
	}
	return results, nil
}

// FindItemsByOwner returns all non-deleted items posted by a user.
func (s *itemService) FindItemsByOwner(ctx context.Context, ownerID utils.SixID) ([]models.Item, error) {
	collection := s.db.Collection(itemsCollection)
	cursor, err := collection.Find(ctx, bson.M{"owner_id": ownerID, "deleted": false})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var items []models.Item
	if err = cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AddImageToItem adds a processed image key to an item's image array.
// It should only be called after the image processing task is complete.
func (s *itemService) AddImageToItem(ctx context.Context, itemID utils.SixID, imageKey string) error {
	collection := s.db.Collection(itemsCollection)

	filter := bson.M{"_id": itemID, "deleted": false}
	update := bson.M{
		"$addToSet": bson.M{"images": imageKey},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error adding image %s to item %s: %w", imageKey, itemID.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("item %s not found or cannot be updated when adding image", itemID.String())
	}
	return nil
}
