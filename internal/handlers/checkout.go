package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/swishtrade/swish/internal/cardcrypto"
	"github.com/swishtrade/swish/internal/checkout"
	"github.com/swishtrade/swish/internal/events"
	"github.com/swishtrade/swish/internal/logging"
	"github.com/swishtrade/swish/internal/mailer"
	"github.com/swishtrade/swish/internal/models"
	"github.com/swishtrade/swish/internal/payment"
	"github.com/swishtrade/swish/internal/vault"
)

// Orders at or above this amount ship free.
var (
	shippingFlatRate      = decimal.NewFromFloat(4.99)
	freeShippingThreshold = decimal.NewFromInt(100)
)

// OrderMailer dispatches the post-checkout confirmation mail.
type OrderMailer interface {
	SendOrderConfirmation(to, username string, lines []mailer.OrderLine, addr models.Address, shipping, total decimal.Decimal, txID string) error
}

type PurchaseHandler struct {
	DB        *gorm.DB
	Engine    *checkout.Engine
	Vault     *vault.Vault
	Mailer    OrderMailer
	Producer  events.Publisher
	JWTSecret []byte
	Log       *slog.Logger
}

type instrumentRequest struct {
	PaymentMethodID uint             `json:"payment_method_id"`
	OneTimePayment  *vault.CardInput `json:"one_time_payment"`
	CVV             string           `json:"cvv"`
}

// resolveInstrument turns the client's payment choice into in-memory card
// data for settlement: either a stored method (decrypted server-side, CVV
// re-verified when a hash is on file) or a one-time card.
func (h *PurchaseHandler) resolveInstrument(c echo.Context, userID uint, req instrumentRequest) (payment.Instrument, error) {
	if req.OneTimePayment != nil {
		in := *req.OneTimePayment
		number := cardcrypto.Normalize(in.CardNumber)
		if len(number) < 12 {
			return payment.Instrument{}, echo.NewHTTPError(http.StatusBadRequest, "invalid card number")
		}
		return payment.Instrument{
			CardNumber:     number,
			CardholderName: in.CardholderName,
			ExpiryMonth:    in.ExpiryMonth,
			ExpiryYear:     in.ExpiryYear,
			Descriptor:     fmt.Sprintf("%s ****%s", vault.DetectBrand(number), number[len(number)-4:]),
		}, nil
	}

	if req.PaymentMethodID == 0 {
		return payment.Instrument{}, echo.NewHTTPError(http.StatusBadRequest, "payment method is required")
	}

	var pm models.PaymentMethod
	if err := h.DB.Where("id = ? AND user_id = ?", req.PaymentMethodID, userID).First(&pm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return payment.Instrument{}, echo.NewHTTPError(http.StatusNotFound, "payment method not found")
		}
		return payment.Instrument{}, echo.NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if pm.CVVHash != "" {
		if req.CVV == "" {
			return payment.Instrument{}, echo.NewHTTPError(http.StatusBadRequest, "CVV is required for this payment method")
		}
		if !h.Vault.VerifyCVV(req.CVV, pm.CVVHash) {
			return payment.Instrument{}, echo.NewHTTPError(http.StatusBadRequest, "incorrect CVV")
		}
	}

	dec, err := h.Vault.Decrypt(pm)
	if err != nil {
		// Never echo decryption detail; log the record id only.
		logging.FromContext(c.Request().Context()).Error("payment method decryption failed", "payment_method_id", pm.ID)
		return payment.Instrument{}, echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return payment.Instrument{
		CardNumber:     dec.CardNumber,
		CardholderName: dec.CardholderName,
		ExpiryMonth:    dec.ExpiryMonth,
		ExpiryYear:     dec.ExpiryYear,
		Descriptor:     fmt.Sprintf("%s ****%s", pm.CardBrand, pm.Last4),
	}, nil
}

func (h *PurchaseHandler) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

func (h *PurchaseHandler) shippingAddress(userID uint, addr *models.Address) (models.Address, error) {
	if addr != nil {
		return *addr, nil
	}
	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return models.Address{}, err
	}
	if user.ShippingAddress == nil {
		return models.Address{}, errors.New("shipping address is required")
	}
	return *user.ShippingAddress, nil
}

// engineError translates engine failures into the response taxonomy.
// Client faults keep their message; anything unrecognized is a storage
// fault and must not leak internals.
func engineError(c echo.Context, err error) error {
	var transition *checkout.TransitionError
	switch {
	case errors.Is(err, checkout.ErrCardNotFound), errors.Is(err, checkout.ErrPurchaseMissing):
		return errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, checkout.ErrAlreadySold):
		return errorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrNotSeller):
		return errorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, checkout.ErrNotForSale),
		errors.Is(err, checkout.ErrSelfPurchase),
		errors.Is(err, checkout.ErrCartEmpty),
		errors.Is(err, checkout.ErrNoValidItems),
		errors.As(err, &transition):
		return errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrCardDeclined),
		errors.Is(err, payment.ErrInsufficientFunds),
		errors.Is(err, payment.ErrGatewayUnavail):
		return errorResponse(c, http.StatusPaymentRequired, err.Error())
	default:
		logging.FromContext(c.Request().Context()).Error("checkout storage fault", "err", err)
		return errorResponse(c, http.StatusInternalServerError, "internal error")
	}
}

// CreatePurchase handles POST /purchases, the single-item path.
func (h *PurchaseHandler) CreatePurchase(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		instrumentRequest
		CardID          uint            `json:"card_id"`
		ShippingAddress *models.Address `json:"shipping_address"`
		Notes           string          `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid request body")
	}

	instr, err := h.resolveInstrument(c, userID, req.instrumentRequest)
	if err != nil {
		return err
	}
	addr, err := h.shippingAddress(userID, req.ShippingAddress)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	purchase, txID, err := h.Engine.Purchase(c.Request().Context(), userID, req.CardID, instr, addr, req.Notes)
	if err != nil {
		return engineError(c, err)
	}

	publish(c, h.Producer, events.TopicPurchases, fmt.Sprint(userID), map[string]any{
		"type":       "purchase_created",
		"purchaseID": purchase.ID,
		"buyerID":    purchase.BuyerID,
		"sellerID":   purchase.SellerID,
		"cardID":     purchase.CardID,
		"price":      purchase.Price.String(),
	})

	h.sendConfirmation(userID, []models.Purchase{*purchase}, addr, txID)

	return c.JSON(http.StatusCreated, purchase)
}

// Checkout handles POST /cart/checkout, the FCFS protocol over the cart.
// Partial success returns 200 with losers listed in summary.invalid_items.
func (h *PurchaseHandler) Checkout(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		instrumentRequest
		ShippingAddress *models.Address `json:"shipping_address"`
		Notes           string          `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid request body")
	}

	instr, err := h.resolveInstrument(c, userID, req.instrumentRequest)
	if err != nil {
		return err
	}
	addr, err := h.shippingAddress(userID, req.ShippingAddress)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	result, err := h.Engine.CheckoutCart(c.Request().Context(), userID, instr, addr, req.Notes)
	if err != nil {
		if errors.Is(err, checkout.ErrNoValidItems) && result != nil {
			return c.JSON(http.StatusBadRequest, result)
		}
		return engineError(c, err)
	}

	publish(c, h.Producer, events.TopicPurchases, fmt.Sprint(userID), map[string]any{
		"type":          "cart_checked_out",
		"userID":        userID,
		"purchases":     result.Summary.TotalPurchases,
		"total":         result.Summary.TotalAmount.String(),
		"failed":        result.Summary.FailedItems,
		"transactionID": result.TransactionID,
	})

	if len(result.Purchases) > 0 {
		h.sendConfirmation(userID, result.Purchases, addr, result.TransactionID)
	}

	return c.JSON(http.StatusOK, result)
}

// sendConfirmation dispatches the order mail in the background. The
// purchase is already committed; a mail failure is logged and swallowed.
func (h *PurchaseHandler) sendConfirmation(userID uint, purchases []models.Purchase, addr models.Address, txID string) {
	if h.Mailer == nil {
		return
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil || user.Email == "" {
		h.logger().Warn("skipping order confirmation, no recipient", "user_id", userID)
		return
	}

	lines := make([]mailer.OrderLine, 0, len(purchases))
	total := decimal.Zero
	for _, p := range purchases {
		var card models.Card
		name := fmt.Sprintf("card #%d", p.CardID)
		if err := h.DB.First(&card, p.CardID).Error; err == nil {
			name = card.Name
		}
		lines = append(lines, mailer.OrderLine{CardName: name, Price: p.Price})
		total = total.Add(p.Price)
	}

	shipping := shippingFlatRate
	if total.GreaterThanOrEqual(freeShippingThreshold) {
		shipping = decimal.Zero
	}
	grand := total.Add(shipping)

	go func() {
		if err := h.Mailer.SendOrderConfirmation(user.Email, user.Username, lines, addr, shipping, grand, txID); err != nil {
			h.logger().Error("order confirmation dispatch failed", "user_id", userID, "err", err)
		}
	}()
}

func (h *PurchaseHandler) ListPurchases(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var purchases []models.Purchase
	if err := h.DB.
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&purchases).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, purchases)
}

func (h *PurchaseHandler) GetPurchase(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var purchase models.Purchase
	if err := h.DB.First(&purchase, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, "purchase not found")
		}
		return errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	if purchase.BuyerID != userID && purchase.SellerID != userID {
		return errorResponse(c, http.StatusForbidden, "not your purchase")
	}
	return c.JSON(http.StatusOK, purchase)
}

// UpdatePurchase handles PATCH /purchases/:id. Seller-only; the transition
// table in the checkout package is the sole authority on allowed moves.
func (h *PurchaseHandler) UpdatePurchase(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Status         models.PurchaseStatus `json:"status"`
		TrackingNumber string                `json:"tracking_number"`
		Notes          string                `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid request body")
	}

	purchase, err := h.Engine.UpdateStatus(c.Request().Context(), id, userID, req.Status, req.TrackingNumber, req.Notes)
	if err != nil {
		return engineError(c, err)
	}

	publish(c, h.Producer, events.TopicPurchases, fmt.Sprint(userID), map[string]any{
		"type":       "purchase_status_updated",
		"purchaseID": purchase.ID,
		"status":     purchase.Status,
	})

	return c.JSON(http.StatusOK, purchase)
}
