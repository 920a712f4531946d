package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/isaacparker671/rentago-demo/internal/auth"
	"github.com/isaacparker671/rentago-demo/internal/config"
	"github.com/isaacparker671/rentago-demo/internal/db"
	"github.com/isaacparker671/rentago-demo/internal/models"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// ErrInvalidCredentials is returned by Login for a wrong email or password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// IUserService defines the interface for profile operations.
type IUserService interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID utils.SixID, updates map[string]interface{}) (*models.User, error)
	SetAvatarKey(ctx context.Context, userID utils.SixID, avatarKey string) error
	DeleteAccount(ctx context.Context, userID utils.SixID) error
	SuspendUser(ctx context.Context, userIDToSuspend, adminUserID utils.SixID) error
}

const usersCollection = "users"

// userService implements IUserService.
type userService struct {
	db           *mongo.Database
	cfg          *config.Config
	items        IItemService
	transactions ITransactionService
}

// NewUserService creates a new UserService. The item and transaction
// services are used by the account-deletion cascade and may be nil in tests
// that never delete accounts.
func NewUserService(db *mongo.Database, cfg *config.Config, items IItemService, transactions ITransactionService) IUserService {
	return &userService{db: db, cfg: cfg, items: items, transactions: transactions}
}

// Register creates a new profile with a bcrypt-hashed password.
func (s *userService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email address")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &models.User{
		Base:         models.NewBase(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = s.db.Collection(usersCollection).InsertOne(ctx, user)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, fmt.Errorf("email %s is already registered", email)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// Login verifies the credentials and returns the profile. Suspended and
// deleted accounts cannot log in.
func (s *userService) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if user.Suspended {
		return nil, fmt.Errorf("account is suspended")
	}
	return user, nil
}

// FindByID fetches a non-deleted profile by ID.
func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID, "deleted": false}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user %s: %w", userID.String(), err)
	}
	return &user, nil
}

// FindByEmail fetches a non-deleted profile by email.
func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"email": email, "deleted": false}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by email: %w", err)
	}
	return &user, nil
}

// UpdateProfile updates mutable profile fields.
func (s *userService) UpdateProfile(ctx context.Context, userID utils.SixID, updates map[string]interface{}) (*models.User, error) {
	allowedUpdates := bson.M{}
	for key, value := range updates {
		switch key {
		case "name", "location", "notification_preferences":
			allowedUpdates[key] = value
		default:
			return nil, fmt.Errorf("field '%s' cannot be updated via UpdateProfile", key)
		}
	}
	if len(allowedUpdates) == 0 {
		return nil, fmt.Errorf("no valid fields provided for update")
	}
	allowedUpdates["updated_at"] = time.Now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	err := s.db.Collection(usersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": userID, "deleted": false},
		bson.M{"$set": allowedUpdates}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s not found", userID.String())
		}
		return nil, fmt.Errorf("failed to update user %s: %w", userID.String(), err)
	}
	return &user, nil
}

// SetAvatarKey stores the processed avatar S3 key on the profile.
func (s *userService) SetAvatarKey(ctx context.Context, userID utils.SixID, avatarKey string) error {
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID, "deleted": false},
		bson.M{"$set": bson.M{"avatar_key": avatarKey, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("db error setting avatar for user %s: %w", userID.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s not found", userID.String())
	}
	return nil
}

// DeleteAccount soft-deletes the profile and its items and hard-deletes
// the user's transactions. This is the only path that ever removes
// transaction rows.
func (s *userService) DeleteAccount(ctx context.Context, userID utils.SixID) error {
	now := time.Now().UTC()
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": now, "updated_at": now}})
	if err != nil {
		return fmt.Errorf("db error deleting user %s: %w", userID.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s not found or already deleted", userID.String())
	}

	if s.items != nil {
		items, err := s.items.FindItemsByOwner(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list items for deleted user %s: %w", userID.String(), err)
		}
		for _, item := range items {
			if err := s.items.DeleteItem(ctx, item.ID, userID); err != nil {
				return fmt.Errorf("failed to cascade-delete item %s: %w", item.ID.String(), err)
			}
		}
	}

	if s.transactions != nil {
		if err := s.transactions.DeleteForUser(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// SuspendUser marks a profile suspended. Admin-only; the caller checks the
// admin claim.
func (s *userService) SuspendUser(ctx context.Context, userIDToSuspend, adminUserID utils.SixID) error {
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userIDToSuspend, "deleted": false, "suspended": false},
		bson.M{"$set": bson.M{"suspended": true, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("db error suspending user %s: %w", userIDToSuspend.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s not found, deleted, or already suspended", userIDToSuspend.String())
	}
	fmt.Printf("User %s suspended by admin %s\n", userIDToSuspend.String(), adminUserID.String())
	return nil
}
