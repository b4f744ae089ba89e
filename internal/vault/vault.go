// Package vault turns raw card entry into an encrypted-at-rest record plus
// a safe plaintext projection. The ciphertext blob is only ever opened
// server-side at settlement time; clients see the metadata projection and
// nothing else.
package vault

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/swishtrade/swish/internal/cardcrypto"
	"github.com/swishtrade/swish/internal/models"
)

type Vault struct {
	codec *cardcrypto.Codec
}

func New(codec *cardcrypto.Codec) *Vault {
	return &Vault{codec: codec}
}

// CardInput is what the client submits when adding a payment method.
type CardInput struct {
	CardNumber     string `json:"card_number"`
	CardholderName string `json:"cardholder_name"`
	ExpiryMonth    int    `json:"expiry_month"`
	ExpiryYear     int    `json:"expiry_year"`
	CVV            string `json:"cvv"`
	Nickname       string `json:"nickname"`
}

// sensitiveData is the shape of the ciphertext blob.
type sensitiveData struct {
	CardNumber     string `json:"card_number"`
	CardholderName string `json:"cardholder_name"`
	ExpiryMonth    int    `json:"expiry_month"`
	ExpiryYear     int    `json:"expiry_year"`
}

// DecryptedPaymentMethod is reconstructed card data for settlement. Never
// serialize this into a network response.
type DecryptedPaymentMethod struct {
	CardNumber     string
	CardholderName string
	ExpiryMonth    int
	ExpiryYear     int
}

// Metadata is the only payment-method representation sent to clients. It
// structurally cannot carry the card number, holder name or CVV.
type Metadata struct {
	ID          uint      `json:"id"`
	CardBrand   string    `json:"card_brand"`
	Last4       string    `json:"last4"`
	ExpiryMonth int       `json:"expiry_month"`
	ExpiryYear  int       `json:"expiry_year"`
	Nickname    string    `json:"nickname,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (v *Vault) EncryptPaymentMethod(userID uint, raw CardInput) (models.PaymentMethod, error) {
	number := cardcrypto.Normalize(raw.CardNumber)
	if len(number) < 12 {
		return models.PaymentMethod{}, fmt.Errorf("card number too short")
	}

	blob, err := json.Marshal(sensitiveData{
		CardNumber:     number,
		CardholderName: raw.CardholderName,
		ExpiryMonth:    raw.ExpiryMonth,
		ExpiryYear:     raw.ExpiryYear,
	})
	if err != nil {
		return models.PaymentMethod{}, fmt.Errorf("failed to bundle card data: %w", err)
	}

	encrypted, err := v.codec.Encrypt(string(blob))
	if err != nil {
		return models.PaymentMethod{}, fmt.Errorf("failed to encrypt card data: %w", err)
	}

	now := time.Now()
	pm := models.PaymentMethod{
		UserID:        userID,
		EncryptedData: encrypted,
		CardBrand:     DetectBrand(number),
		Last4:         number[len(number)-4:],
		ExpiryMonth:   raw.ExpiryMonth,
		ExpiryYear:    raw.ExpiryYear,
		Nickname:      raw.Nickname,
		Fingerprint:   v.codec.HashData(number),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if raw.CVV != "" {
		pm.CVVHash = v.codec.HashData(raw.CVV)
	}
	return pm, nil
}

func (v *Vault) Decrypt(stored models.PaymentMethod) (DecryptedPaymentMethod, error) {
	plain, err := v.codec.Decrypt(stored.EncryptedData)
	if err != nil {
		return DecryptedPaymentMethod{}, err
	}

	var data sensitiveData
	if err := json.Unmarshal([]byte(plain), &data); err != nil {
		return DecryptedPaymentMethod{}, cardcrypto.ErrDecryptFailed
	}

	return DecryptedPaymentMethod{
		CardNumber:     data.CardNumber,
		CardholderName: data.CardholderName,
		ExpiryMonth:    data.ExpiryMonth,
		ExpiryYear:     data.ExpiryYear,
	}, nil
}

func (v *Vault) Metadata(stored models.PaymentMethod) Metadata {
	return Metadata{
		ID:          stored.ID,
		CardBrand:   stored.CardBrand,
		Last4:       stored.Last4,
		ExpiryMonth: stored.ExpiryMonth,
		ExpiryYear:  stored.ExpiryYear,
		Nickname:    stored.Nickname,
		CreatedAt:   stored.CreatedAt,
		UpdatedAt:   stored.UpdatedAt,
	}
}

// IsDuplicate reports whether the candidate card number is already stored,
// comparing fingerprints only. Existing records are never decrypted.
func (v *Vault) IsDuplicate(existing []models.PaymentMethod, cardNumber string) bool {
	fp := v.codec.HashData(cardNumber)
	for _, pm := range existing {
		if pm.Fingerprint == fp {
			return true
		}
	}
	return false
}

func (v *Vault) VerifyCVV(candidate, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return v.codec.HashData(candidate) == storedHash
}

func DetectBrand(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return "visa"
	case len(number) > 1 && number[0] == '5' && number[1] >= '1' && number[1] <= '5':
		return "mastercard"
	case strings.HasPrefix(number, "34") || strings.HasPrefix(number, "37"):
		return "amex"
	case strings.HasPrefix(number, "6011") || strings.HasPrefix(number, "65"):
		return "discover"
	default:
		return "card"
	}
}
