package token

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/swishtrade/swish/internal/models"
)

var (
	jwtSecret     = []byte("access-secret")
	refreshSecret = []byte("refresh-secret")
)

func newService(t *testing.T) *TokenService {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.RefreshToken{}))
	return &TokenService{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret}
}

func TestSignAccessToken(t *testing.T) {
	raw, err := SignAccessToken(7, "admin", jwtSecret)
	require.NoError(t, err)

	parsed, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return jwtSecret, nil })
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims := parsed.Claims.(jwt.MapClaims)
	require.EqualValues(t, 7, claims["sub"])
	require.Equal(t, "admin", claims["role"])
}

func TestRotateToken(t *testing.T) {
	svc := newService(t)

	refresh, err := SignRefreshToken(7, "user", refreshSecret)
	require.NoError(t, err)
	require.NoError(t, SaveRefreshToken(svc.DB, refresh, 7, "user"))

	access, newRefresh, err := svc.RotateToken(refresh)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEqual(t, refresh, newRefresh)

	// The rotated refresh token is persisted and itself rotatable.
	_, _, err = svc.RotateToken(newRefresh)
	require.NoError(t, err)
}

func TestRotateRejectsUnknownToken(t *testing.T) {
	svc := newService(t)

	refresh, err := SignRefreshToken(7, "user", refreshSecret)
	require.NoError(t, err)

	// Valid signature but never persisted.
	_, _, err = svc.RotateToken(refresh)
	require.Error(t, err)
}

func TestRotateRejectsRevokedToken(t *testing.T) {
	svc := newService(t)

	refresh, err := SignRefreshToken(7, "user", refreshSecret)
	require.NoError(t, err)
	require.NoError(t, SaveRefreshToken(svc.DB, refresh, 7, "user"))
	require.NoError(t, svc.RevokeRefresh(refresh))

	_, _, err = svc.RotateToken(refresh)
	require.Error(t, err)
}

func TestRotateRejectsAccessTokenAsRefresh(t *testing.T) {
	svc := newService(t)

	// An access token signed with the refresh secret still lacks the
	// refresh type claim and must be refused.
	access, err := SignAccessToken(7, "user", refreshSecret)
	require.NoError(t, err)

	_, _, err = svc.RotateToken(access)
	require.Error(t, err)
}
