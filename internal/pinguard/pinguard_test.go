package pinguard

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/swishtrade/swish/internal/hash"
	"github.com/swishtrade/swish/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func createUser(t *testing.T, db *gorm.DB, pin string) models.User {
	t.Helper()
	user := models.User{Username: "collector", Email: "collector@example.com", PasswordHash: "x", Role: "user"}
	if pin != "" {
		hashed, err := hash.HashPassword(pin)
		require.NoError(t, err)
		user.SecurityPin = &hashed
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestRequireNoPinConfigured(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "")
	g := New(db)

	// Default-open: without a configured PIN every candidate passes,
	// including an empty one.
	require.NoError(t, g.Require(context.Background(), user.ID, ""))
	require.NoError(t, g.Require(context.Background(), user.ID, "0000"))
}

func TestRequireFailsClosed(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "4242")
	g := New(db)

	require.ErrorIs(t, g.Require(context.Background(), user.ID, ""), ErrPINRequired)
	require.ErrorIs(t, g.Require(context.Background(), user.ID, "1234"), ErrPINInvalid)
	require.NoError(t, g.Require(context.Background(), user.ID, "4242"))
}

func TestRequireUnknownUser(t *testing.T) {
	db := newTestDB(t)
	g := New(db)

	require.ErrorIs(t, g.Require(context.Background(), 999, "4242"), ErrUserMissing)
}
