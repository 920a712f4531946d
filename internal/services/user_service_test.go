package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/isaacparker671/rentago-demo/internal/config"
	"github.com/isaacparker671/rentago-demo/internal/db"
	"github.com/isaacparker671/rentago-demo/internal/models"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

type userTestEnv struct {
	db           *mongo.Database
	items        IItemService
	conversation IConversationService
	transactions ITransactionService
	users        IUserService
}

func setupUserEnv(t *testing.T, dbName string) *userTestEnv {
	database := utils.SetupTestDB(t, dbName,
		"users", "items", "conversations", "messages", "transactions",
		"item_reviews", "user_reviews")
	require.NoError(t, db.EnsureIndexes(context.Background(), database))

	cfg := &config.Config{}
	items := NewItemService(database, cfg)
	conversation := NewConversationService(database, cfg)
	transactions := NewTransactionService(database, cfg, items, conversation, nil, nil)
	users := NewUserService(database, cfg, items, transactions)
	return &userTestEnv{db: database, items: items, conversation: conversation, transactions: transactions, users: users}
}

func TestRegister_Validation(t *testing.T) {
	env := setupUserEnv(t, "testdb_user_register")
	ctx := context.Background()

	_, err := env.users.Register(ctx, "Nora", "not-an-email", "password123")
	assert.ErrorContains(t, err, "invalid email")

	_, err = env.users.Register(ctx, "Nora", "nora@example.com", "short")
	assert.ErrorContains(t, err, "at least 8 characters")

	user, err := env.users.Register(ctx, "Nora", "  Nora@Example.com ", "password123")
	require.NoError(t, err)
	assert.Equal(t, "nora@example.com", user.Email, "emails are normalized")
	assert.False(t, user.ID.IsZero())
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.False(t, user.IsAdmin)

	_, err = env.users.Register(ctx, "Other Nora", "nora@example.com", "password456")
	assert.ErrorContains(t, err, "already registered")
}

func TestLogin(t *testing.T) {
	env := setupUserEnv(t, "testdb_user_login")
	ctx := context.Background()

	registered, err := env.users.Register(ctx, "Sam", "sam@example.com", "correct horse")
	require.NoError(t, err)

	logged, err := env.users.Login(ctx, "SAM@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, logged.ID)

	_, err = env.users.Login(ctx, "sam@example.com", "wrong horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.users.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, env.users.SuspendUser(ctx, registered.ID, utils.NewSixID()))
	_, err = env.users.Login(ctx, "sam@example.com", "correct horse")
	assert.ErrorContains(t, err, "suspended")
}

func TestUpdateProfile(t *testing.T) {
	env := setupUserEnv(t, "testdb_user_update")
	ctx := context.Background()

	user, err := env.users.Register(ctx, "Ada", "ada@example.com", "password123")
	require.NoError(t, err)

	_, err = env.users.UpdateProfile(ctx, user.ID, map[string]interface{}{"email": "new@example.com"})
	assert.ErrorContains(t, err, "cannot be updated")

	updated, err := env.users.UpdateProfile(ctx, user.ID, map[string]interface{}{
		"name":     "Ada L.",
		"location": "Wellington",
		"notification_preferences": &models.NotificationPreferences{
			TransactionRequest: true,
			TransactionUpdate:  false,
			NewMessage:         true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.Name)
	assert.Equal(t, "Wellington", updated.Location)
	require.NotNil(t, updated.NotificationPreferences)
	assert.False(t, updated.NotificationPreferences.TransactionUpdate)
	assert.False(t, updated.WantsEmail(func(np models.NotificationPreferences) bool { return np.TransactionUpdate }))
	assert.True(t, updated.WantsEmail(func(np models.NotificationPreferences) bool { return np.TransactionRequest }))
}

func TestSetAvatarKey(t *testing.T) {
	env := setupUserEnv(t, "testdb_user_avatar")
	ctx := context.Background()

	user, err := env.users.Register(ctx, "Kim", "kim@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, env.users.SetAvatarKey(ctx, user.ID, "avatars/abc/123"))
	found, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "avatars/abc/123", found.AvatarKey)

	err = env.users.SetAvatarKey(ctx, utils.NewSixID(), "avatars/none")
	assert.ErrorContains(t, err, "not found")
}

func TestDeleteAccount_Cascade(t *testing.T) {
	env := setupUserEnv(t, "testdb_user_delete")
	ctx := context.Background()

	seller, err := env.users.Register(ctx, "Seller", "seller@example.com", "password123")
	require.NoError(t, err)
	buyer, err := env.users.Register(ctx, "Buyer", "buyer@example.com", "password123")
	require.NoError(t, err)

	item, err := env.items.CreateItem(ctx, seller.ID, "Trailer", "", models.ListingTypeRent,
		&models.Price{Value: 40, CurrencyCode: "USD"}, nil, nil)
	require.NoError(t, err)
	conversation, err := env.conversation.GetOrCreateConversation(ctx, &item.ID, buyer.ID, seller.ID)
	require.NoError(t, err)
	_, err = env.transactions.CreateRequest(ctx, buyer.ID, conversation.ID)
	require.NoError(t, err)

	require.NoError(t, env.users.DeleteAccount(ctx, seller.ID))

	_, err = env.users.FindByID(ctx, seller.ID)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)
	_, err = env.users.FindByEmail(ctx, "seller@example.com")
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)

	// Listings are soft-deleted with the account.
	_, err = env.items.FindItemByID(ctx, item.ID)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)

	// Transactions the user was a party to are removed outright.
	_, err = env.transactions.LatestByConversation(ctx, conversation.ID)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)

	err = env.users.DeleteAccount(ctx, seller.ID)
	assert.ErrorContains(t, err, "not found or already deleted")
}

func TestSuspendUser(t *testing.T) {
	env := setupUserEnv(t, "testdb_user_suspend")
	ctx := context.Background()

	user, err := env.users.Register(ctx, "Tam", "tam@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, env.users.SuspendUser(ctx, user.ID, utils.NewSixID()))

	err = env.users.SuspendUser(ctx, user.ID, utils.NewSixID())
	assert.ErrorContains(t, err, "already suspended")

	err = env.users.SuspendUser(ctx, utils.NewSixID(), utils.NewSixID())
	assert.ErrorContains(t, err, "not found")
}
