package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/swishtrade/swish/internal/events"
	"github.com/swishtrade/swish/internal/models"
)

type CartHandler struct {
	DB        *gorm.DB
	Producer  events.Publisher
	JWTSecret []byte
}

func (h *CartHandler) GetCart(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var items []models.CartItem
	if err := h.DB.Where("user_id = ?", userID).Find(&items).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// AddToCart stages a card for checkout. Each card appears at most once in
// a cart; saleability is only advisory here, checkout re-validates.
func (h *CartHandler) AddToCart(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		CardID uint `json:"card_id"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid request body")
	}

	var card models.Card
	if err := h.DB.First(&card, req.CardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, "card not found")
		}
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	if card.OwnerID == userID {
		return errorResponse(c, http.StatusBadRequest, "you already own this card")
	}
	if !card.IsForSale {
		return errorResponse(c, http.StatusBadRequest, "card is not for sale")
	}

	var existing models.CartItem
	tx := h.DB.Where("user_id = ? AND card_id = ?", userID, req.CardID).First(&existing)
	if tx.Error == nil {
		return c.JSON(http.StatusOK, existing)
	}
	if !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return errorResponse(c, http.StatusInternalServerError, tx.Error.Error())
	}

	item := models.CartItem{UserID: userID, CardID: req.CardID}
	if err := h.DB.Create(&item).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	publish(c, h.Producer, events.TopicCards, fmt.Sprint(userID), map[string]any{
		"type":   "cart_item_added",
		"userID": userID,
		"cardID": req.CardID,
	})

	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var item models.CartItem
	if err := h.DB.Where("id = ? AND user_id = ?", id, userID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, "item not found")
		}
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	if err := h.DB.Delete(&item).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	publish(c, h.Producer, events.TopicCards, fmt.Sprint(userID), map[string]any{
		"type":   "cart_item_removed",
		"userID": userID,
		"cardID": item.CardID,
	})

	return c.JSON(http.StatusOK, map[string]any{"deleted_item": id})
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	if err := h.DB.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	return c.NoContent(http.StatusNoContent)
}
