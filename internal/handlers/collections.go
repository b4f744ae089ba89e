package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/swishtrade/swish/internal/models"
	"github.com/swishtrade/swish/internal/pinguard"
)

type CollectionHandler struct {
	DB        *gorm.DB
	Guard     *pinguard.Guard
	JWTSecret []byte
}

func (h *CollectionHandler) List(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var collections []models.Collection
	if err := h.DB.Where("user_id = ?", userID).Order("id ASC").Find(&collections).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, collections)
}

func (h *CollectionHandler) Create(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return errorResponse(c, http.StatusBadRequest, "name is required")
	}

	col := models.Collection{UserID: userID, Name: req.Name, Description: req.Description}
	if err := h.DB.Create(&col).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, col)
}

func (h *CollectionHandler) load(c echo.Context, userID uint) (*models.Collection, error) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return nil, err
	}

	var col models.Collection
	if err := h.DB.First(&col, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "collection not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if col.UserID != userID {
		return nil, echo.NewHTTPError(http.StatusForbidden, "not your collection")
	}
	return &col, nil
}

func (h *CollectionHandler) AddCard(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	col, err := h.load(c, userID)
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
	if card.OwnerID != userID {
		return errorResponse(c, http.StatusForbidden, "you can only collect cards you own")
	}

	entry := models.CollectionCard{CollectionID: col.ID, CardID: req.CardID}
	if err := h.DB.Where(&entry).FirstOrCreate(&entry).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *CollectionHandler) RemoveCard(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	col, err := h.load(c, userID)
	if err != nil {
		return err
	}
	cardID, err := parseIDParam(c, "cardId")
	if err != nil {
		return err
	}

	if err := h.DB.Where("collection_id = ? AND card_id = ?", col.ID, cardID).
		Delete(&models.CollectionCard{}).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete removes a collection and its card entries. PIN-gated.
func (h *CollectionHandler) Delete(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	col, err := h.load(c, userID)
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
		if err := tx.Where("collection_id = ?", col.ID).Delete(&models.CollectionCard{}).Error; err != nil {
			return err
		}
		return tx.Delete(col).Error
	})
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
