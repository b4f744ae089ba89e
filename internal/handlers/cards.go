package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/swishtrade/swish/internal/events"
	"github.com/swishtrade/swish/internal/models"
	"github.com/swishtrade/swish/internal/util"
)

type CardHandler struct {
	DB        *gorm.DB
	Producer  events.Publisher
	JWTSecret []byte
}

type cardRequest struct {
	Name        string              `json:"name"`
	Player      string              `json:"player"`
	Team        string              `json:"team"`
	Year        int                 `json:"year"`
	Brand       string              `json:"brand"`
	CardNumber  string              `json:"card_number"`
	Condition   string              `json:"condition"`
	Rarity      string              `json:"rarity"`
	Description string              `json:"description"`
	ImageURL    string              `json:"image_url"`
	IsForTrade  bool                `json:"is_for_trade"`
	IsForSale   bool                `json:"is_for_sale"`
	Price       decimal.NullDecimal `json:"price"`
}

// validateListing enforces the price invariant at the API boundary: a card
// listed for sale carries a positive price, an unlisted card carries none.
func validateListing(forSale bool, price decimal.NullDecimal) (decimal.NullDecimal, error) {
	if forSale {
		if !price.Valid || price.Decimal.Sign() <= 0 {
			return price, errors.New("a card listed for sale requires a positive price")
		}
		return price, nil
	}
	return decimal.NullDecimal{}, nil
}

func (h *CardHandler) GetCard(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var card models.Card
	if err := h.DB.First(&card, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, "card not found")
		}
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, card)
}

func (h *CardHandler) ListCards(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.Card{})
	if v := c.QueryParam("player"); v != "" {
		q = q.Where("player = ?", v)
	}
	if v := c.QueryParam("team"); v != "" {
		q = q.Where("team = ?", v)
	}
	if v := c.QueryParam("brand"); v != "" {
		q = q.Where("brand = ?", v)
	}
	if v := c.QueryParam("rarity"); v != "" {
		q = q.Where("rarity = ?", v)
	}
	if v := c.QueryParam("year"); v != "" {
		q = q.Where("year = ?", parseIntDefault(v, 0))
	}
	if v := c.QueryParam("for_sale"); v == "true" {
		q = q.Where("is_for_sale = ?", true)
	}
	if v := c.QueryParam("for_trade"); v == "true" {
		q = q.Where("is_for_trade = ?", true)
	}
	if v := c.QueryParam("owner_id"); v != "" {
		q = q.Where("owner_id = ?", parseIntDefault(v, 0))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	var cards []models.Card
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&cards).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": cards,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *CardHandler) CreateCard(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req cardRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.Player == "" {
		return errorResponse(c, http.StatusBadRequest, "name and player are required")
	}

	price, err := validateListing(req.IsForSale, req.Price)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	card := models.Card{
		Name:        req.Name,
		Player:      req.Player,
		Team:        req.Team,
		Year:        req.Year,
		Brand:       req.Brand,
		CardNumber:  req.CardNumber,
		Condition:   req.Condition,
		Rarity:      req.Rarity,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		IsForTrade:  req.IsForTrade,
		IsForSale:   req.IsForSale,
		Price:       price,
		OwnerID:     userID,
	}
	if err := h.DB.Create(&card).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	publish(c, h.Producer, events.TopicCards, fmt.Sprint(userID), map[string]any{
		"type":   "card_created",
		"cardID": card.ID,
		"userID": userID,
		"name":   card.Name,
	})

	return c.JSON(http.StatusCreated, card)
}

func (h *CardHandler) PatchCard(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var card models.Card
	if err := h.DB.First(&card, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, "card not found")
		}
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	if card.OwnerID != userID {
		return errorResponse(c, http.StatusForbidden, "only the owner can edit a card")
	}

	var req cardRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid request body")
	}

	price, err := validateListing(req.IsForSale, req.Price)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	card.Name = req.Name
	card.Player = req.Player
	card.Team = req.Team
	card.Year = req.Year
	card.Brand = req.Brand
	card.CardNumber = req.CardNumber
	card.Condition = req.Condition
	card.Rarity = req.Rarity
	card.Description = req.Description
	card.ImageURL = req.ImageURL
	card.IsForTrade = req.IsForTrade
	card.IsForSale = req.IsForSale
	card.Price = price

	if err := h.DB.Save(&card).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	publish(c, h.Producer, events.TopicCards, fmt.Sprint(userID), map[string]any{
		"type":   "card_updated",
		"cardID": card.ID,
		"userID": userID,
	})

	return c.JSON(http.StatusOK, card)
}

func (h *CardHandler) DeleteCard(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var card models.Card
	if err := h.DB.First(&card, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, "card not found")
		}
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	if card.OwnerID != userID {
		return errorResponse(c, http.StatusForbidden, "only the owner can delete a card")
	}

	if err := h.DB.Delete(&card).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}

	publish(c, h.Producer, events.TopicCards, fmt.Sprint(userID), map[string]any{
		"type":   "card_deleted",
		"cardID": id,
		"userID": userID,
	})

	return c.NoContent(http.StatusNoContent)
}
