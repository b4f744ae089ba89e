package handlers_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/swishtrade/swish/internal/models"
	"github.com/swishtrade/swish/internal/payment"
)

var oneTimePayment = map[string]any{
	"card_number":     "4111 1111 1111 1111",
	"cardholder_name": "Jordan Fan",
	"expiry_month":    12,
	"expiry_year":     2030,
}

var shippingAddr = map[string]any{
	"full_name": "Jordan Fan", "street": "1 Court St", "city": "Chicago",
	"state": "IL", "postal_code": "60601", "country": "US",
}

func TestCreatePurchaseWithOneTimeCard(t *testing.T) {
	env := newEnv(t)
	buyer, cookie := env.createUser("buyer", "user")
	seller, _ := env.createUser("seller", "user")
	card := env.createCard(seller.ID, "Jordan Rookie", 49.99, true)

	rec := env.do(http.MethodPost, "/api/v1/purchases", map[string]any{
		"card_id":          card.ID,
		"one_time_payment": oneTimePayment,
		"shipping_address": shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	var purchase models.Purchase
	decodeBody(t, rec, &purchase)
	require.Equal(t, models.PurchasePaid, purchase.Status)
	require.Equal(t, buyer.ID, purchase.BuyerID)
	require.Contains(t, purchase.PaymentMethod, "visa ****1111")

	var after models.Card
	require.NoError(t, env.db.First(&after, card.ID).Error)
	require.Equal(t, buyer.ID, after.OwnerID)
	require.False(t, after.IsForSale)

	require.Len(t, env.pub.byType("purchase_created"), 1)
}

func TestCreatePurchaseWithStoredMethod(t *testing.T) {
	env := newEnv(t)
	_, cookie := env.createUser("buyer", "user")
	seller, _ := env.createUser("seller", "user")
	card := env.createCard(seller.ID, "Jordan Rookie", 49.99, true)

	rec := env.do(http.MethodPost, "/api/v1/payment-methods", addCardBody, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	var meta map[string]any
	decodeBody(t, rec, &meta)
	pmID := uint(meta["id"].(float64))

	// The stored method has a CVV hash on file, so the CVV must be
	// re-presented at checkout.
	rec = env.do(http.MethodPost, "/api/v1/purchases", map[string]any{
		"card_id":           card.ID,
		"payment_method_id": pmID,
		"shipping_address":  shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/purchases", map[string]any{
		"card_id":           card.ID,
		"payment_method_id": pmID,
		"cvv":               "999",
		"shipping_address":  shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/purchases", map[string]any{
		"card_id":           card.ID,
		"payment_method_id": pmID,
		"cvv":               "123",
		"shipping_address":  shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreatePurchaseErrors(t *testing.T) {
	env := newEnv(t)
	buyer, cookie := env.createUser("buyer", "user")
	seller, _ := env.createUser("seller", "user")

	body := func(cardID uint) map[string]any {
		return map[string]any{
			"card_id":          cardID,
			"one_time_payment": oneTimePayment,
			"shipping_address": shippingAddr,
		}
	}

	rec := env.do(http.MethodPost, "/api/v1/purchases", body(999), cookie)
	require.Equal(t, http.StatusNotFound, rec.Code)

	sold := env.createCard(seller.ID, "Sold Card", 20, true)
	require.NoError(t, env.db.Create(&models.Purchase{
		BuyerID: 42, SellerID: seller.ID, CardID: sold.ID,
		Price: decimal.NewFromInt(20), Status: models.PurchasePaid,
	}).Error)
	rec = env.do(http.MethodPost, "/api/v1/purchases", body(sold.ID), cookie)
	require.Equal(t, http.StatusConflict, rec.Code)

	own := env.createCard(buyer.ID, "Mine", 20, true)
	rec = env.do(http.MethodPost, "/api/v1/purchases", body(own.ID), cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing shipping address with no profile fallback.
	fresh := env.createCard(seller.ID, "Fresh", 20, true)
	rec = env.do(http.MethodPost, "/api/v1/purchases", map[string]any{
		"card_id":          fresh.ID,
		"one_time_payment": oneTimePayment,
	}, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartCheckoutEndpoint(t *testing.T) {
	env := newEnv(t)
	buyer, cookie := env.createUser("buyer", "user")
	seller, _ := env.createUser("seller", "user")
	a := env.createCard(seller.ID, "Card A", 30, true)
	b := env.createCard(seller.ID, "Card B", 25, true)
	require.NoError(t, env.db.Create(&models.CartItem{UserID: buyer.ID, CardID: a.ID}).Error)
	require.NoError(t, env.db.Create(&models.CartItem{UserID: buyer.ID, CardID: b.ID}).Error)

	rec := env.do(http.MethodPost, "/api/v1/cart/checkout", map[string]any{
		"one_time_payment": oneTimePayment,
		"shipping_address": shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Purchases []models.Purchase `json:"purchases"`
		Summary   struct {
			TotalPurchases int    `json:"total_purchases"`
			TotalAmount    string `json:"total_amount"`
			FailedItems    int    `json:"failed_items"`
		} `json:"summary"`
		TransactionID string `json:"transaction_id"`
	}
	decodeBody(t, rec, &result)
	require.Len(t, result.Purchases, 2)
	require.Equal(t, 2, result.Summary.TotalPurchases)
	require.Zero(t, result.Summary.FailedItems)
	require.Equal(t, "txn_stub", result.TransactionID)

	require.True(t, env.gw.amount.Equal(decimal.NewFromInt(55)))
	require.Len(t, env.pub.byType("cart_checked_out"), 1)
}

func TestCartCheckoutNoValidItems(t *testing.T) {
	env := newEnv(t)
	buyer, cookie := env.createUser("buyer", "user")
	seller, _ := env.createUser("seller", "user")
	delisted := env.createCard(seller.ID, "Delisted", 0, false)
	require.NoError(t, env.db.Create(&models.CartItem{UserID: buyer.ID, CardID: delisted.ID}).Error)

	rec := env.do(http.MethodPost, "/api/v1/cart/checkout", map[string]any{
		"one_time_payment": oneTimePayment,
		"shipping_address": shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// The 400 body still carries the per-item reasons.
	var result struct {
		Summary struct {
			FailedItems  int `json:"failed_items"`
			InvalidItems []struct {
				CardID uint   `json:"card_id"`
				Reason string `json:"reason"`
			} `json:"invalid_items"`
		} `json:"summary"`
	}
	decodeBody(t, rec, &result)
	require.Equal(t, 1, result.Summary.FailedItems)
	require.Equal(t, delisted.ID, result.Summary.InvalidItems[0].CardID)
	require.Equal(t, "card is not for sale", result.Summary.InvalidItems[0].Reason)

	require.Zero(t, env.gw.calls)
}

func TestCartCheckoutEmptyCart(t *testing.T) {
	env := newEnv(t)
	_, cookie := env.createUser("buyer", "user")

	rec := env.do(http.MethodPost, "/api/v1/cart/checkout", map[string]any{
		"one_time_payment": oneTimePayment,
		"shipping_address": shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "cart is empty")
}

func TestCreatePurchaseGatewayDecline(t *testing.T) {
	env := newEnv(t)
	_, cookie := env.createUser("buyer", "user")
	seller, _ := env.createUser("seller", "user")
	card := env.createCard(seller.ID, "Jordan Rookie", 49.99, true)
	env.gw.err = payment.ErrCardDeclined

	rec := env.do(http.MethodPost, "/api/v1/purchases", map[string]any{
		"card_id":          card.ID,
		"one_time_payment": oneTimePayment,
		"shipping_address": shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Contains(t, rec.Body.String(), "card declined")
}

func TestCreatePurchaseStorageFaultHidden(t *testing.T) {
	env := newEnv(t)
	_, cookie := env.createUser("buyer", "user")
	seller, _ := env.createUser("seller", "user")
	card := env.createCard(seller.ID, "Jordan Rookie", 49.99, true)
	require.NoError(t, env.db.Exec("DROP TABLE purchases").Error)

	rec := env.do(http.MethodPost, "/api/v1/purchases", map[string]any{
		"card_id":          card.ID,
		"one_time_payment": oneTimePayment,
		"shipping_address": shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal error")
	require.NotContains(t, rec.Body.String(), "no such table")
}

func TestConfirmationMailCarriesSettlementID(t *testing.T) {
	env := newEnv(t)
	_, cookie := env.createUser("buyer", "user")
	seller, _ := env.createUser("seller", "user")
	card := env.createCard(seller.ID, "Jordan Rookie", 49.99, true)

	rec := env.do(http.MethodPost, "/api/v1/purchases", map[string]any{
		"card_id":          card.ID,
		"one_time_payment": oneTimePayment,
		"shipping_address": shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Dispatch runs in the background.
	require.Eventually(t, func() bool {
		return env.mail.count() == 1
	}, time.Second, 10*time.Millisecond)

	send := env.mail.last()
	require.Equal(t, "buyer@example.com", send.To)
	require.Equal(t, "txn_stub", send.TxID)
	require.Equal(t, 1, send.Lines)
	require.True(t, send.Shipping.Equal(decimal.NewFromFloat(4.99)))
	require.True(t, send.Total.Equal(decimal.NewFromFloat(54.98)))
}

func TestMailFailureDoesNotBlockCheckout(t *testing.T) {
	env := newEnv(t)
	env.mail.err = errors.New("smtp connection refused")
	buyer, cookie := env.createUser("buyer", "user")
	seller, _ := env.createUser("seller", "user")
	card := env.createCard(seller.ID, "Jordan Rookie", 49.99, true)
	inCart := env.createCard(seller.ID, "Card B", 25, true)
	require.NoError(t, env.db.Create(&models.CartItem{UserID: buyer.ID, CardID: inCart.ID}).Error)

	rec := env.do(http.MethodPost, "/api/v1/purchases", map[string]any{
		"card_id":          card.ID,
		"one_time_payment": oneTimePayment,
		"shipping_address": shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/cart/checkout", map[string]any{
		"one_time_payment": oneTimePayment,
		"shipping_address": shippingAddr,
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	// Both purchases committed despite the dead mailer.
	var count int64
	require.NoError(t, env.db.Model(&models.Purchase{}).Where("buyer_id = ?", buyer.ID).Count(&count).Error)
	require.EqualValues(t, 2, count)

	require.Eventually(t, func() bool {
		return env.mail.count() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestUpdatePurchaseStatusAuthorization(t *testing.T) {
	env := newEnv(t)
	buyer, buyerCookie := env.createUser("buyer", "user")
	seller, sellerCookie := env.createUser("seller", "user")

	purchase := models.Purchase{
		BuyerID: buyer.ID, SellerID: seller.ID, CardID: 1,
		Price: decimal.NewFromInt(20), Status: models.PurchasePaid,
	}
	require.NoError(t, env.db.Create(&purchase).Error)
	path := fmt.Sprintf("/api/v1/purchases/%d", purchase.ID)

	// Only the seller drives fulfillment.
	rec := env.do(http.MethodPatch, path, map[string]any{"status": "SHIPPED"}, buyerCookie)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPatch, path, map[string]any{"status": "COMPLETED"}, sellerCookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid status transition")

	rec = env.do(http.MethodPatch, path, map[string]any{
		"status": "SHIPPED", "tracking_number": "1Z999",
	}, sellerCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.Purchase
	decodeBody(t, rec, &updated)
	require.Equal(t, models.PurchaseShipped, updated.Status)
	require.Equal(t, "1Z999", updated.TrackingNumber)
}

func TestGetAndListPurchasesScoped(t *testing.T) {
	env := newEnv(t)
	buyer, buyerCookie := env.createUser("buyer", "user")
	seller, sellerCookie := env.createUser("seller", "user")
	_, strangerCookie := env.createUser("stranger", "user")

	purchase := models.Purchase{
		BuyerID: buyer.ID, SellerID: seller.ID, CardID: 1,
		Price: decimal.NewFromInt(20), Status: models.PurchasePaid,
	}
	require.NoError(t, env.db.Create(&purchase).Error)
	path := fmt.Sprintf("/api/v1/purchases/%d", purchase.ID)

	for _, cookie := range []*http.Cookie{buyerCookie, sellerCookie} {
		rec := env.do(http.MethodGet, path, nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(http.MethodGet, path, nil, strangerCookie)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/purchases", nil, strangerCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Purchase
	decodeBody(t, rec, &list)
	require.Empty(t, list)
}
