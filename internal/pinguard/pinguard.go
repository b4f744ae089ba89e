// Package pinguard implements the security-PIN check shared by every
// sensitive account mutation. A user without a configured PIN passes
// unguarded; once a PIN exists the guard fails closed.
package pinguard

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/swishtrade/swish/internal/hash"
	"github.com/swishtrade/swish/internal/models"
)

var (
	ErrPINRequired = errors.New("PIN required")
	ErrPINInvalid  = errors.New("invalid PIN")
	ErrUserMissing = errors.New("user not found")
)

type Guard struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Guard {
	return &Guard{DB: db}
}

// Require verifies the candidate PIN for the given user. It returns nil
// when the user never configured a PIN, ErrPINRequired when one is
// configured and no candidate was supplied, and ErrPINInvalid on mismatch.
// Side-effect free; safe to call repeatedly.
func (g *Guard) Require(ctx context.Context, userID uint, candidate string) error {
	var user models.User
	if err := g.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserMissing
		}
		return fmt.Errorf("db error: %w", err)
	}

	if user.SecurityPin == nil {
		return nil
	}
	if candidate == "" {
		return ErrPINRequired
	}
	if !hash.CheckPassword(*user.SecurityPin, candidate) {
		return ErrPINInvalid
	}
	return nil
}
