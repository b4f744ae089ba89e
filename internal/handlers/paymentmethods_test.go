package handlers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swishtrade/swish/internal/models"
)

var addCardBody = map[string]any{
	"card_number":     "4111 1111 1111 1111",
	"cardholder_name": "Jordan Fan",
	"expiry_month":    12,
	"expiry_year":     2030,
	"cvv":             "123",
	"nickname":        "main visa",
}

func TestAddPaymentMethodReturnsMetadataOnly(t *testing.T) {
	env := newEnv(t)
	_, cookie := env.createUser("buyer", "user")

	rec := env.do(http.MethodPost, "/api/v1/payment-methods", addCardBody, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	var meta map[string]any
	decodeBody(t, rec, &meta)
	require.Equal(t, "visa", meta["card_brand"])
	require.Equal(t, "1111", meta["last4"])
	require.Equal(t, "main visa", meta["nickname"])

	// The raw card data must never appear in the response.
	body := rec.Body.String()
	require.NotContains(t, body, "4111111111111111")
	require.NotContains(t, body, "Jordan Fan")
	require.NotContains(t, body, "encrypted")
	require.NotContains(t, body, "fingerprint")

	require.Len(t, env.pub.byType("payment_method_added"), 1)
}

func TestAddPaymentMethodPINGate(t *testing.T) {
	env := newEnv(t)
	user, cookie := env.createUser("buyer", "user")
	env.setPin(user.ID, "4242")

	rec := env.do(http.MethodPost, "/api/v1/payment-methods", addCardBody, cookie)
	require.Equal(t, http.StatusForbidden, rec.Code)

	wrong := map[string]any{"pin": "0000"}
	for k, v := range addCardBody {
		wrong[k] = v
	}
	rec = env.do(http.MethodPost, "/api/v1/payment-methods", wrong, cookie)
	require.Equal(t, http.StatusForbidden, rec.Code)

	right := map[string]any{"pin": "4242"}
	for k, v := range addCardBody {
		right[k] = v
	}
	rec = env.do(http.MethodPost, "/api/v1/payment-methods", right, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestAddPaymentMethodDuplicate(t *testing.T) {
	env := newEnv(t)
	_, cookie := env.createUser("buyer", "user")

	rec := env.do(http.MethodPost, "/api/v1/payment-methods", addCardBody, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Same number with different formatting is still the same card.
	dup := map[string]any{}
	for k, v := range addCardBody {
		dup[k] = v
	}
	dup["card_number"] = "4111-1111-1111-1111"
	dup["nickname"] = "backup"
	rec = env.do(http.MethodPost, "/api/v1/payment-methods", dup, cookie)
	require.Equal(t, http.StatusConflict, rec.Code)

	// A different user may save the same card.
	_, other := env.createUser("other", "user")
	rec = env.do(http.MethodPost, "/api/v1/payment-methods", addCardBody, other)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestListPaymentMethods(t *testing.T) {
	env := newEnv(t)
	user, cookie := env.createUser("buyer", "user")
	_, otherCookie := env.createUser("other", "user")

	rec := env.do(http.MethodPost, "/api/v1/payment-methods", addCardBody, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/payment-methods", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	decodeBody(t, rec, &list)
	require.Len(t, list, 1)
	require.Equal(t, "1111", list[0]["last4"])
	require.NotContains(t, rec.Body.String(), "4111111111111111")

	// Scoped per user.
	rec = env.do(http.MethodGet, "/api/v1/payment-methods", nil, otherCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var empty []map[string]any
	decodeBody(t, rec, &empty)
	require.Empty(t, empty)

	var stored models.PaymentMethod
	require.NoError(t, env.db.Where("user_id = ?", user.ID).First(&stored).Error)
	require.NotEmpty(t, stored.EncryptedData)
}

func TestDeletePaymentMethod(t *testing.T) {
	env := newEnv(t)
	user, cookie := env.createUser("buyer", "user")

	rec := env.do(http.MethodPost, "/api/v1/payment-methods", addCardBody, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	var meta map[string]any
	decodeBody(t, rec, &meta)
	id := uint(meta["id"].(float64))

	env.setPin(user.ID, "4242")

	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/v1/payment-methods/%d", id), nil, cookie)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/v1/payment-methods/%d", id), map[string]any{"pin": "4242"}, cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/v1/payment-methods/%d", id), map[string]any{"pin": "4242"}, cookie)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
