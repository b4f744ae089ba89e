package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/swishtrade/swish/internal/events"
	"github.com/swishtrade/swish/internal/hash"
	"github.com/swishtrade/swish/internal/models"
	"github.com/swishtrade/swish/internal/pinguard"
)

type UserHandler struct {
	DB        *gorm.DB
	Guard     *pinguard.Guard
	Producer  events.Publisher
	JWTSecret []byte
}

// SetPin sets or changes the security PIN. Changing an existing PIN
// requires the current one.
func (h *UserHandler) SetPin(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		PIN        string `json:"pin"`
		CurrentPIN string `json:"current_pin"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	if len(req.PIN) < 4 {
		return errorResponse(c, http.StatusBadRequest, "PIN must be at least 4 digits")
	}

	if err := h.Guard.Require(c.Request().Context(), userID, req.CurrentPIN); err != nil {
		return pinError(c, err)
	}

	pinHash, err := hash.HashPassword(req.PIN)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "could not hash PIN")
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("security_pin", pinHash).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	publish(c, h.Producer, events.TopicUsers, fmt.Sprint(userID), map[string]any{
		"type":   "security_pin_set",
		"userID": userID,
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "PIN configured"})
}

// RemovePin clears the PIN. The current PIN is required, except for an
// admin acting on another user.
func (h *UserHandler) RemovePin(c echo.Context) error {
	callerID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	role, err := GetRole(c, h.JWTSecret)
	if err != nil {
		return err
	}

	targetID := callerID
	if idParam := c.Param("id"); idParam != "" {
		id, err := parseIDParam(c, "id")
		if err != nil {
			return err
		}
		targetID = id
	}

	adminOverride := role == "admin" && targetID != callerID
	if !adminOverride {
		if targetID != callerID {
			return errorResponse(c, http.StatusForbidden, "cannot remove another user's PIN")
		}
		var req struct {
			PIN string `json:"pin"`
		}
		_ = c.Bind(&req)
		if err := h.Guard.Require(c.Request().Context(), callerID, req.PIN); err != nil {
			return pinError(c, err)
		}
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", targetID).
		Update("security_pin", nil).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	publish(c, h.Producer, events.TopicUsers, fmt.Sprint(targetID), map[string]any{
		"type":   "security_pin_removed",
		"userID": targetID,
		"admin":  adminOverride,
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "PIN removed"})
}

// UpdateShippingAddress is PIN-gated once a PIN exists.
func (h *UserHandler) UpdateShippingAddress(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		models.Address
		PIN string `json:"pin"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid request body")
	}

	if err := h.Guard.Require(c.Request().Context(), userID, req.PIN); err != nil {
		return pinError(c, err)
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("shipping_address", &req.Address).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, req.Address)
}

// DeleteAccount removes the user and everything scoped to them. PIN-gated.
func (h *UserHandler) DeleteAccount(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		PIN string `json:"pin"`
	}
	_ = c.Bind(&req)

	if err := h.Guard.Require(c.Request().Context(), userID, req.PIN); err != nil {
		return pinError(c, err)
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{
			&models.CartItem{}, &models.PaymentMethod{}, &models.Favorite{},
			&models.RefreshToken{},
		} {
			if err := tx.Where("user_id = ?", userID).Delete(m).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("follower_id = ? OR followee_id = ?", userID, userID).
			Delete(&models.Follow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, userID).Error
	})
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	publish(c, h.Producer, events.TopicUsers, fmt.Sprint(userID), map[string]any{
		"type":   "account_deleted",
		"userID": userID,
	})

	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) Follow(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	targetID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	if targetID == userID {
		return errorResponse(c, http.StatusBadRequest, "cannot follow yourself")
	}

	var target models.User
	if err := h.DB.First(&target, targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, "user not found")
		}
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	follow := models.Follow{FollowerID: userID, FolloweeID: targetID}
	if err := h.DB.Where(&follow).FirstOrCreate(&follow).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, follow)
}

func (h *UserHandler) Unfollow(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	targetID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.DB.Where("follower_id = ? AND followee_id = ?", userID, targetID).
		Delete(&models.Follow{}).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) Favorite(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	cardID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var card models.Card
	if err := h.DB.First(&card, cardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, "card not found")
		}
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	fav := models.Favorite{UserID: userID, CardID: cardID}
	if err := h.DB.Where(&fav).FirstOrCreate(&fav).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, fav)
}

func (h *UserHandler) Unfavorite(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	cardID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.DB.Where("user_id = ? AND card_id = ?", userID, cardID).
		Delete(&models.Favorite{}).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
