package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/swishtrade/swish/internal/events"
	"github.com/swishtrade/swish/internal/models"
	"github.com/swishtrade/swish/internal/pinguard"
	"github.com/swishtrade/swish/internal/vault"
)

type PaymentMethodHandler struct {
	DB        *gorm.DB
	Vault     *vault.Vault
	Guard     *pinguard.Guard
	Producer  events.Publisher
	JWTSecret []byte
}

func pinError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, pinguard.ErrPINRequired), errors.Is(err, pinguard.ErrPINInvalid):
		return errorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, pinguard.ErrUserMissing):
		return errorResponse(c, http.StatusNotFound, err.Error())
	default:
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}

// List returns only the metadata projection. The stored records never
// reach the serializer.
func (h *PaymentMethodHandler) List(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var methods []models.PaymentMethod
	if err := h.DB.Where("user_id = ?", userID).Order("id ASC").Find(&methods).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	out := make([]vault.Metadata, 0, len(methods))
	for _, pm := range methods {
		out = append(out, h.Vault.Metadata(pm))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentMethodHandler) Add(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		vault.CardInput
		PIN string `json:"pin"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid request body")
	}

	if err := h.Guard.Require(c.Request().Context(), userID, req.PIN); err != nil {
		return pinError(c, err)
	}

	var existing []models.PaymentMethod
	if err := h.DB.Where("user_id = ?", userID).Find(&existing).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	if h.Vault.IsDuplicate(existing, req.CardNumber) {
		return errorResponse(c, http.StatusConflict, "this card is already saved")
	}

	pm, err := h.Vault.EncryptPaymentMethod(userID, req.CardInput)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}
	if err := h.DB.Create(&pm).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	publish(c, h.Producer, events.TopicUsers, fmt.Sprint(userID), map[string]any{
		"type":            "payment_method_added",
		"userID":          userID,
		"paymentMethodID": pm.ID,
	})

	return c.JSON(http.StatusCreated, h.Vault.Metadata(pm))
}

func (h *PaymentMethodHandler) Delete(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
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

	result := h.DB.Where("id = ? AND user_id = ?", id, userID).Delete(&models.PaymentMethod{})
	if result.Error != nil {
		return errorResponse(c, http.StatusInternalServerError, result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return errorResponse(c, http.StatusNotFound, "payment method not found")
	}

	publish(c, h.Producer, events.TopicUsers, fmt.Sprint(userID), map[string]any{
		"type":            "payment_method_deleted",
		"userID":          userID,
		"paymentMethodID": id,
	})

	return c.NoContent(http.StatusNoContent)
}
