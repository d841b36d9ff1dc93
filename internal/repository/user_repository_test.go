package repository

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nsxzhou1114/shop-api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newUser(email string) *model.User {
	return &model.User{
		Name:     "Jane",
		Email:    email,
		Password: "$2a$10$hash",
		Status:   model.StatusActive,
		Role:     model.RoleUser,
	}
}

// runUserRepositoryContract 所有存储实现共用的行为检查
func runUserRepositoryContract(t *testing.T, repo UserRepository) {
	ctx := context.Background()
	suffix := strings.ToLower(model.NewID())

	t.Run("create and find", func(t *testing.T) {
		u := newUser("find-" + suffix + "@shop.io")
		require.NoError(t, repo.Create(ctx, u))
		require.True(t, model.ValidID(u.ID))

		byID, err := repo.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, byID.Email)
		assert.False(t, byID.VerifyEmail)

		byEmail, err := repo.FindByEmail(ctx, u.Email)
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		email := "dup-" + suffix + "@shop.io"
		require.NoError(t, repo.Create(ctx, newUser(email)))
		assert.ErrorIs(t, repo.Create(ctx, newUser(email)), ErrDuplicateEmail)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, model.NewID())
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = repo.FindByEmail(ctx, "nobody-"+suffix+"@shop.io")
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = repo.Update(ctx, model.NewID(), model.Updates{model.FieldName: "x"})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("partial update", func(t *testing.T) {
		u := newUser("upd-" + suffix + "@shop.io")
		require.NoError(t, repo.Create(ctx, u))

		expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		updated, err := repo.Update(ctx, u.ID, model.Updates{
			model.FieldForgotPasswordOTP:    "123456",
			model.FieldForgotPasswordExpiry: expiry,
			model.FieldRefreshToken:         "rt",
		})
		require.NoError(t, err)
		assert.Equal(t, "123456", updated.ForgotPasswordOTP)
		require.NotNil(t, updated.ForgotPasswordExpiry)
		assert.True(t, expiry.Equal(updated.ForgotPasswordExpiry.UTC().Truncate(time.Second)))
		assert.Equal(t, "Jane", updated.Name)

		cleared, err := repo.Update(ctx, u.ID, model.Updates{}.ClearOTP())
		require.NoError(t, err)
		assert.Empty(t, cleared.ForgotPasswordOTP)
		assert.Nil(t, cleared.ForgotPasswordExpiry)
		assert.Equal(t, "rt", cleared.RefreshToken)
	})

	t.Run("email change keeps uniqueness", func(t *testing.T) {
		a := newUser("a-" + suffix + "@shop.io")
		b := newUser("b-" + suffix + "@shop.io")
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.Create(ctx, b))

		_, err := repo.Update(ctx, b.ID, model.Updates{model.FieldEmail: a.Email})
		assert.ErrorIs(t, err, ErrDuplicateEmail)

		moved, err := repo.Update(ctx, b.ID, model.Updates{model.FieldEmail: "c-" + suffix + "@shop.io"})
		require.NoError(t, err)
		assert.Equal(t, "c-"+suffix+"@shop.io", moved.Email)

		_, err = repo.FindByEmail(ctx, b.Email)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("list", func(t *testing.T) {
		users, err := repo.List(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})
}

func TestMemoryUserRepository(t *testing.T) {
	runUserRepositoryContract(t, NewMemoryUserRepository())
}

func TestMemoryUserRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := newUser("copy@shop.io")
	require.NoError(t, repo.Create(ctx, u))

	got, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", again.Name)
}

func TestMongoUserRepository(t *testing.T) {
	uri := os.Getenv("SHOP_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SHOP_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("shop_test_" + strings.ToLower(model.NewID()))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })
	require.NoError(t, model.EnsureIndexes(ctx, db))

	runUserRepositoryContract(t, NewMongoUserRepository(db))
}

func TestGormUserRepository(t *testing.T) {
	dsn := os.Getenv("SHOP_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("SHOP_TEST_MYSQL_DSN not set")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.Migrator().DropTable(&model.User{}))
	require.NoError(t, model.InitTables(db))

	runUserRepositoryContract(t, NewGormUserRepository(db))
}
