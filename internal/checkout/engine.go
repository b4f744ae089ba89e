// Package checkout implements the purchase-reservation core: the logic
// that moves a sold card to exactly one winning buyer under concurrent
// checkouts.
//
// The engine runs a two-phase check. An advisory pre-check outside any
// transaction weeds out dead items and fixes the settlement amount; the
// authoritative re-check inside the transaction is the actual arbiter.
// "First come first served" here means commit order under the database's
// isolation, not request-arrival order. There is no in-process locking:
// production wires TxOpts to sql.LevelSerializable and migrations add a
// partial unique index on active purchases per card, so the invariant
// holds even if the isolation level is ever lowered.
package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/swishtrade/swish/internal/models"
	"github.com/swishtrade/swish/internal/payment"
)

var (
	ErrCardNotFound    = errors.New("card not found")
	ErrNotForSale      = errors.New("card is not for sale")
	ErrSelfPurchase    = errors.New("you cannot buy your own card")
	ErrAlreadySold     = errors.New("card already sold or pending")
	ErrCartEmpty       = errors.New("cart is empty")
	ErrNoValidItems    = errors.New("no purchasable items in cart")
	ErrPurchaseMissing = errors.New("purchase not found")
	ErrNotSeller       = errors.New("only the seller can update this purchase")
)

const (
	ReasonNotForSale   = "card is not for sale"
	ReasonOwnCard      = "you already own this card"
	ReasonAlreadySold  = "card already sold or pending"
	ReasonMissing      = "card no longer exists"
	ReasonLostRace     = "sold during checkout"
	defaultSettlementT = 10 * time.Second
)

type Engine struct {
	DB      *gorm.DB
	Gateway payment.Gateway
	// TxOpts is applied to the reservation transaction. Production passes
	// sql.LevelSerializable; tests on sqlite leave it nil.
	TxOpts *sql.TxOptions
	// SettlementTimeout bounds the gateway call so a hung settlement
	// surfaces as a failure with no state mutated.
	SettlementTimeout time.Duration
}

func NewEngine(db *gorm.DB, gw payment.Gateway, opts *sql.TxOptions) *Engine {
	return &Engine{DB: db, Gateway: gw, TxOpts: opts, SettlementTimeout: defaultSettlementT}
}

type InvalidItem struct {
	CardID uint   `json:"card_id"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

type Summary struct {
	TotalPurchases int             `json:"total_purchases"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	FailedItems    int             `json:"failed_items"`
	InvalidItems   []InvalidItem   `json:"invalid_items"`
}

type CheckoutResult struct {
	Purchases     []models.Purchase `json:"purchases"`
	Summary       Summary           `json:"summary"`
	TransactionID string            `json:"transaction_id,omitempty"`
}

func (e *Engine) transact(ctx context.Context, fc func(tx *gorm.DB) error) error {
	db := e.DB.WithContext(ctx)
	if e.TxOpts != nil {
		return db.Transaction(fc, e.TxOpts)
	}
	return db.Transaction(fc)
}

func (e *Engine) charge(ctx context.Context, instr payment.Instrument, amount decimal.Decimal) (string, error) {
	timeout := e.SettlementTimeout
	if timeout <= 0 {
		timeout = defaultSettlementT
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.Gateway.Charge(ctx, instr, amount)
}

func activePurchaseExists(tx *gorm.DB, cardID uint) (bool, error) {
	var count int64
	err := tx.Model(&models.Purchase{}).
		Where("card_id = ? AND status IN ?", cardID, models.ActiveStatuses).
		Count(&count).Error
	return count > 0, err
}

// Purchase executes the single-item path: validate, settle, then create
// the PAID purchase and flip the card inside one transaction. Ownership
// transfers to the buyer in the same transaction (unified policy across
// single-item and cart checkout). The settlement transaction id is
// returned alongside the purchase.
func (e *Engine) Purchase(ctx context.Context, buyerID, cardID uint, instr payment.Instrument, addr models.Address, notes string) (*models.Purchase, string, error) {
	var card models.Card
	if err := e.DB.WithContext(ctx).First(&card, cardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrCardNotFound
		}
		return nil, "", fmt.Errorf("db error: %w", err)
	}

	if !card.IsForSale || !card.Price.Valid || card.Price.Decimal.Sign() <= 0 {
		return nil, "", ErrNotForSale
	}
	if card.OwnerID == buyerID {
		return nil, "", ErrSelfPurchase
	}

	// Advisory collision checkpoint; the in-transaction re-check below is
	// the one that counts.
	sold, err := activePurchaseExists(e.DB.WithContext(ctx), card.ID)
	if err != nil {
		return nil, "", fmt.Errorf("db error: %w", err)
	}
	if sold {
		return nil, "", ErrAlreadySold
	}

	txID, err := e.charge(ctx, instr, card.Price.Decimal)
	if err != nil {
		return nil, "", fmt.Errorf("settlement failed: %w", err)
	}

	purchase := models.Purchase{
		BuyerID:         buyerID,
		SellerID:        card.OwnerID,
		CardID:          card.ID,
		Price:           card.Price.Decimal,
		Status:          models.PurchasePaid,
		PaymentMethod:   fmt.Sprintf("%s | %s", instr.Descriptor, txID),
		ShippingAddress: addr,
		Notes:           notes,
	}

	err = e.transact(ctx, func(tx *gorm.DB) error {
		sold, err := activePurchaseExists(tx, card.ID)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if sold {
			return ErrAlreadySold
		}
		if err := tx.Create(&purchase).Error; err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return tx.Model(&models.Card{}).Where("id = ?", card.ID).Updates(map[string]any{
			"is_for_sale": false,
			"price":       nil,
			"owner_id":    buyerID,
		}).Error
	})
	if err != nil {
		return nil, "", err
	}

	return &purchase, txID, nil
}

// CheckoutCart runs the FCFS collision protocol over the user's cart.
// Partial success is a first-class outcome: winners are committed, losers
// land in Summary.InvalidItems, and the cart is purged either way.
func (e *Engine) CheckoutCart(ctx context.Context, userID uint, instr payment.Instrument, addr models.Address, notes string) (*CheckoutResult, error) {
	db := e.DB.WithContext(ctx)

	var items []models.CartItem
	if err := db.Where("user_id = ?", userID).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}

	type validItem struct {
		item models.CartItem
		card models.Card
	}
	var (
		valid   []validItem
		invalid []InvalidItem
		total   = decimal.Zero
	)

	for _, it := range items {
		var card models.Card
		if err := db.First(&card, it.CardID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				invalid = append(invalid, InvalidItem{CardID: it.CardID, Reason: ReasonMissing})
				continue
			}
			return nil, fmt.Errorf("db error: %w", err)
		}
		switch {
		case !card.IsForSale || !card.Price.Valid || card.Price.Decimal.Sign() <= 0:
			invalid = append(invalid, InvalidItem{CardID: card.ID, Name: card.Name, Reason: ReasonNotForSale})
		case card.OwnerID == userID:
			invalid = append(invalid, InvalidItem{CardID: card.ID, Name: card.Name, Reason: ReasonOwnCard})
		default:
			sold, err := activePurchaseExists(db, card.ID)
			if err != nil {
				return nil, fmt.Errorf("db error: %w", err)
			}
			if sold {
				invalid = append(invalid, InvalidItem{CardID: card.ID, Name: card.Name, Reason: ReasonAlreadySold})
				continue
			}
			valid = append(valid, validItem{item: it, card: card})
			total = total.Add(card.Price.Decimal)
		}
	}

	if len(valid) == 0 {
		// Nothing purchasable; purge the cart so it does not keep stale
		// references, and report the collected reasons.
		if err := db.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		return &CheckoutResult{
			Summary: Summary{FailedItems: len(invalid), InvalidItems: invalid, TotalAmount: decimal.Zero},
		}, ErrNoValidItems
	}

	// One settlement for the whole valid set. Failure here leaves cart and
	// cards untouched; the request is safe to retry.
	txID, err := e.charge(ctx, instr, total)
	if err != nil {
		return nil, fmt.Errorf("settlement failed: %w", err)
	}

	var purchases []models.Purchase
	amount := decimal.Zero

	err = e.transact(ctx, func(tx *gorm.DB) error {
		purchases = purchases[:0]
		amount = decimal.Zero
		for _, v := range valid {
			// Authoritative re-check: a concurrent checkout may have won
			// the race since the advisory pass. Loser is skipped, no
			// retry, committed siblings stand.
			sold, err := activePurchaseExists(tx, v.card.ID)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			if sold {
				invalid = append(invalid, InvalidItem{CardID: v.card.ID, Name: v.card.Name, Reason: ReasonLostRace})
				continue
			}

			p := models.Purchase{
				BuyerID:         userID,
				SellerID:        v.card.OwnerID,
				CardID:          v.card.ID,
				Price:           v.card.Price.Decimal,
				Status:          models.PurchasePaid,
				PaymentMethod:   fmt.Sprintf("%s | %s", instr.Descriptor, txID),
				ShippingAddress: addr,
				Notes:           notes,
			}
			if err := tx.Create(&p).Error; err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			if err := tx.Model(&models.Card{}).Where("id = ?", v.card.ID).Updates(map[string]any{
				"is_for_sale": false,
				"price":       nil,
				"owner_id":    userID,
			}).Error; err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			purchases = append(purchases, p)
			amount = amount.Add(p.Price)
		}

		// Clear every evaluated item, valid or not.
		return tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		Purchases: purchases,
		Summary: Summary{
			TotalPurchases: len(purchases),
			TotalAmount:    amount,
			FailedItems:    len(invalid),
			InvalidItems:   invalid,
		},
		TransactionID: txID,
	}, nil
}

// UpdateStatus applies a seller-initiated lifecycle move, validated
// against the transition table.
func (e *Engine) UpdateStatus(ctx context.Context, purchaseID, sellerID uint, to models.PurchaseStatus, tracking, notes string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := e.DB.WithContext(ctx).First(&purchase, purchaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseMissing
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if purchase.SellerID != sellerID {
		return nil, ErrNotSeller
	}
	if err := ValidateTransition(purchase.Status, to); err != nil {
		return nil, err
	}

	purchase.Status = to
	if tracking != "" {
		purchase.TrackingNumber = tracking
	}
	if notes != "" {
		purchase.Notes = notes
	}
	if to == models.PurchaseCompleted {
		now := time.Now()
		purchase.CompletedAt = &now
	}

	if err := e.DB.WithContext(ctx).Save(&purchase).Error; err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &purchase, nil
}
