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
	"github.com/isaacparker671/rentago-demo/internal/models"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// IReviewService holds the review-eligibility gates and the review upserts.
//
// The gates are pure read-side derivations over the transaction set; they
// are recomputed on every call, never cached. Review rows are keyed on
// their natural unique pair, so submitting twice revises the existing row.
type IReviewService interface {
	CanReviewItem(ctx context.Context, viewerID, itemID utils.SixID) (bool, error)
	CanReviewUser(ctx context.Context, viewerID, otherUserID utils.SixID) (bool, error)
	UpsertItemReview(ctx context.Context, viewerID, itemID utils.SixID, rating int, body string) (*models.ItemReview, error)
	UpsertUserReview(ctx context.Context, viewerID, reviewedUserID utils.SixID, rating int, body string) (*models.UserReview, error)
	ListItemReviews(ctx context.Context, itemID utils.SixID) ([]models.ItemReview, error)
	ListUserReviews(ctx context.Context, reviewedUserID utils.SixID) ([]models.UserReview, error)
}

const (
	itemReviewsCollection = "item_reviews"
	userReviewsCollection = "user_reviews"
)

// reviewService implements IReviewService.
type reviewService struct {
	db    *mongo.Database
	cfg   *config.Config
	items IItemService
}

// NewReviewService creates a new ReviewService.
func NewReviewService(db *mongo.Database, cfg *config.Config, items IItemService) IReviewService {
	return &reviewService{db: db, cfg: cfg, items: items}
}

// CanReviewItem requires at least one completed rent transaction by the
// viewer on the item. With ReviewRequireItemReturned set, the item must
// additionally be back in "available" status, i.e. marked returned by the
// owner.
func (s *reviewService) CanReviewItem(ctx context.Context, viewerID, itemID utils.SixID) (bool, error) {
	filter := bson.M{
		"item_id":  itemID,
		"buyer_id": viewerID,
		"type":     models.ListingTypeRent,
		"status":   models.TransactionCompleted,
	}
	err := s.db.Collection(transactionsCollection).FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking item review eligibility: %w", err)
	}

	if s.cfg.ReviewRequireItemReturned {
		item, err := s.items.FindItemByID(ctx, itemID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return false, nil
			}
			return false, err
		}
		if item.Status != models.ItemStatusAvailable {
			return false, nil
		}
	}
	return true, nil
}

// CanReviewUser requires at least one completed transaction between the two
// parties, in either buyer/seller direction. Self-reviews are short-circuited
// before the store is consulted.
func (s *reviewService) CanReviewUser(ctx context.Context, viewerID, otherUserID utils.SixID) (bool, error) {
	if viewerID == otherUserID {
		return false, nil
	}
	filter := bson.M{
		"status": models.TransactionCompleted,
		"$or": bson.A{
			bson.M{"buyer_id": viewerID, "seller_id": otherUserID},
			bson.M{"buyer_id": otherUserID, "seller_id": viewerID},
		},
	}
	err := s.db.Collection(transactionsCollection).FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking user review eligibility: %w", err)
	}
	return true, nil
}

// UpsertItemReview creates or revises the viewer's review of an item.
// Keyed on (item_id, reviewer_id); the unique index plus upsert makes a
// second submission an update, not a duplicate.
func (s *reviewService) UpsertItemReview(ctx context.Context, viewerID, itemID utils.SixID, rating int, body string) (*models.ItemReview, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5")
	}
	eligible, err := s.CanReviewItem(ctx, viewerID, itemID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, fmt.Errorf("user %s is not eligible to review item %s", viewerID.String(), itemID.String())
	}

	now := time.Now().UTC()
	filter := bson.M{"item_id": itemID, "reviewer_id": viewerID}
	update := bson.M{
		"$set": bson.M{
			"rating":     rating,
			"body":       body,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        utils.NewSixID(),
			"created_at": now,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.db.Collection(itemReviewsCollection).UpdateOne(ctx, filter, update, opts); err != nil {
		return nil, fmt.Errorf("failed to upsert item review for item %s: %w", itemID.String(), err)
	}

	var review models.ItemReview
	if err := s.db.Collection(itemReviewsCollection).FindOne(ctx, filter).Decode(&review); err != nil {
		return nil, fmt.Errorf("failed to re-read item review for item %s: %w", itemID.String(), err)
	}
	return &review, nil
}

// UpsertUserReview creates or revises the viewer's review of another user.
// Keyed on (reviewer_id, reviewed_user_id). Self-reviews are rejected before
// the eligibility gate runs.
func (s *reviewService) UpsertUserReview(ctx context.Context, viewerID, reviewedUserID utils.SixID, rating int, body string) (*models.UserReview, error) {
	if viewerID == reviewedUserID {
		return nil, fmt.Errorf("users cannot review themselves")
	}
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5")
	}
	eligible, err := s.CanReviewUser(ctx, viewerID, reviewedUserID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, fmt.Errorf("user %s is not eligible to review user %s", viewerID.String(), reviewedUserID.String())
	}

	now := time.Now().UTC()
	filter := bson.M{"reviewer_id": viewerID, "reviewed_user_id": reviewedUserID}
	update := bson.M{
		"$set": bson.M{
			"rating":     rating,
			"body":       body,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        utils.NewSixID(),
			"created_at": now,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.db.Collection(userReviewsCollection).UpdateOne(ctx, filter, update, opts); err != nil {
		return nil, fmt.Errorf("failed to upsert user review of %s: %w", reviewedUserID.String(), err)
	}

	var review models.UserReview
	if err := s.db.Collection(userReviewsCollection).FindOne(ctx, filter).Decode(&review); err != nil {
		return nil, fmt.Errorf("failed to re-read user review of %s: %w", reviewedUserID.String(), err)
	}
	return &review, nil
}

// ListItemReviews returns all reviews of an item, newest first.
func (s *reviewService) ListItemReviews(ctx context.Context, itemID utils.SixID) ([]models.ItemReview, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := s.db.Collection(itemReviewsCollection).Find(ctx, bson.M{"item_id": itemID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for item %s: %w", itemID.String(), err)
	}
	defer cursor.Close(ctx)
	var reviews []models.ItemReview
	if err = cursor.All(ctx, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// ListUserReviews returns all reviews of a user, newest first.
func (s *reviewService) ListUserReviews(ctx context.Context, reviewedUserID utils.SixID) ([]models.UserReview, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := s.db.Collection(userReviewsCollection).Find(ctx, bson.M{"reviewed_user_id": reviewedUserID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews of user %s: %w", reviewedUserID.String(), err)
	}
	defer cursor.Close(ctx)
	var reviews []models.UserReview
	if err = cursor.All(ctx, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}
