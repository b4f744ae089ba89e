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

type TradeHandler struct {
	DB        *gorm.DB
	Producer  events.Publisher
	JWTSecret []byte
}

func (h *TradeHandler) List(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var trades []models.Trade
	if err := h.DB.Where("offerer_id = ? OR target_id = ?", userID, userID).
		Order("created_at DESC").Find(&trades).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, trades)
}

func (h *TradeHandler) Create(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		TargetID      uint   `json:"target_id"`
		OffererCardID uint   `json:"offerer_card_id"`
		TargetCardID  uint   `json:"target_card_id"`
		Message       string `json:"message"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	if req.TargetID == userID {
		return errorResponse(c, http.StatusBadRequest, "cannot trade with yourself")
	}

	var offered, wanted models.Card
	if err := h.DB.First(&offered, req.OffererCardID).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, "offered card not found")
	}
	if err := h.DB.First(&wanted, req.TargetCardID).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, "requested card not found")
	}
	if offered.OwnerID != userID {
		return errorResponse(c, http.StatusForbidden, "you do not own the offered card")
	}
	if wanted.OwnerID != req.TargetID {
		return errorResponse(c, http.StatusBadRequest, "target user does not own the requested card")
	}
	if !wanted.IsForTrade {
		return errorResponse(c, http.StatusBadRequest, "requested card is not open for trades")
	}

	trade := models.Trade{
		OffererID:     userID,
		TargetID:      req.TargetID,
		OffererCardID: req.OffererCardID,
		TargetCardID:  req.TargetCardID,
		Status:        models.TradePending,
		Message:       req.Message,
	}
	if err := h.DB.Create(&trade).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	publish(c, h.Producer, events.TopicCards, fmt.Sprint(userID), map[string]any{
		"type":    "trade_offered",
		"tradeID": trade.ID,
		"from":    userID,
		"to":      req.TargetID,
	})

	return c.JSON(http.StatusCreated, trade)
}

// Accept swaps ownership of both cards in one transaction, re-verifying
// that each party still owns their side before committing. A card that
// changed hands since the offer voids the trade.
func (h *TradeHandler) Accept(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var trade models.Trade
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND status = ?", id, models.TradePending).First(&trade).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "trade not found or not pending")
			}
			return err
		}
		if trade.TargetID != userID {
			return echo.NewHTTPError(http.StatusForbidden, "only the trade target can accept")
		}

		var offered, wanted models.Card
		if err := tx.Where("id = ? AND owner_id = ?", trade.OffererCardID, trade.OffererID).
			First(&offered).Error; err != nil {
			return echo.NewHTTPError(http.StatusConflict, "offerer no longer owns the card")
		}
		if err := tx.Where("id = ? AND owner_id = ?", trade.TargetCardID, trade.TargetID).
			First(&wanted).Error; err != nil {
			return echo.NewHTTPError(http.StatusConflict, "you no longer own the requested card")
		}

		// Swapping owners delists both cards; the new owner relists on
		// their own terms.
		for cardID, newOwner := range map[uint]uint{
			offered.ID: trade.TargetID,
			wanted.ID:  trade.OffererID,
		} {
			if err := tx.Model(&models.Card{}).Where("id = ?", cardID).Updates(map[string]any{
				"owner_id":     newOwner,
				"is_for_sale":  false,
				"price":        nil,
				"is_for_trade": false,
			}).Error; err != nil {
				return err
			}
		}

		trade.Status = models.TradeAccepted
		return tx.Save(&trade).Error
	})
	if txErr != nil {
		var he *echo.HTTPError
		if errors.As(txErr, &he) {
			return he
		}
		return errorResponse(c, http.StatusInternalServerError, txErr.Error())
	}

	publish(c, h.Producer, events.TopicCards, fmt.Sprint(userID), map[string]any{
		"type":    "trade_accepted",
		"tradeID": trade.ID,
	})

	return c.JSON(http.StatusOK, trade)
}

func (h *TradeHandler) Decline(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var trade models.Trade
	if err := h.DB.Where("id = ? AND status = ?", id, models.TradePending).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, "trade not found or not pending")
		}
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	switch userID {
	case trade.TargetID:
		trade.Status = models.TradeDeclined
	case trade.OffererID:
		trade.Status = models.TradeCanceled
	default:
		return errorResponse(c, http.StatusForbidden, "not your trade")
	}

	if err := h.DB.Save(&trade).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, trade)
}
