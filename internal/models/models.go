package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	Email        string `gorm:"unique;not null"          json:"email"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
	// SecurityPin holds a bcrypt hash, never the PIN itself. Nil until the
	// user opts into PIN protection.
	SecurityPin     *string   `json:"-"`
	ShippingAddress *Address  `gorm:"serializer:json" json:"shipping_address,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Address is snapshotted into purchases so later profile edits do not
// rewrite shipping history.
type Address struct {
	FullName   string `json:"full_name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Card struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"not null"                 json:"name"`
	Player      string `gorm:"not null;index"           json:"player"`
	Team        string `gorm:"index"                    json:"team"`
	Year        int    `json:"year"`
	Brand       string `gorm:"index"                    json:"brand"`
	CardNumber  string `json:"card_number"`
	Condition   string `json:"condition"`
	Rarity      string `gorm:"index"                    json:"rarity"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	IsForTrade  bool   `gorm:"default:false"            json:"is_for_trade"`
	// Invariant: IsForSale implies Price is a positive decimal; a card that
	// is not for sale has no price at all.
	IsForSale bool                `gorm:"default:false;index" json:"is_for_sale"`
	Price     decimal.NullDecimal `gorm:"type:decimal(12,2)"  json:"price"`
	OwnerID   uint                `gorm:"index;not null"      json:"owner_id"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "PENDING"
	PurchasePaid      PurchaseStatus = "PAID"
	PurchaseShipped   PurchaseStatus = "SHIPPED"
	PurchaseDelivered PurchaseStatus = "DELIVERED"
	PurchaseCompleted PurchaseStatus = "COMPLETED"
	PurchaseCancelled PurchaseStatus = "CANCELLED"
	PurchaseRefunded  PurchaseStatus = "REFUNDED"
)

// ActiveStatuses are the statuses that reserve a card. At most one purchase
// in one of these statuses may exist per card.
var ActiveStatuses = []PurchaseStatus{PurchasePending, PurchasePaid, PurchaseShipped}

type Purchase struct {
	ID       uint `gorm:"primaryKey;autoIncrement" json:"id"`
	BuyerID  uint `gorm:"index;not null"           json:"buyer_id"`
	SellerID uint `gorm:"index;not null"           json:"seller_id"`
	CardID   uint `gorm:"index;not null"           json:"card_id"`
	// Price is captured at transaction time and never tracks the card's
	// mutable listing price afterwards.
	Price           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Status          PurchaseStatus  `gorm:"size:16;not null;index"      json:"status"`
	PaymentMethod   string          `json:"payment_method"`
	ShippingAddress Address         `gorm:"serializer:json" json:"shipping_address"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

type CartItem struct {
	ID     uint `gorm:"primaryKey;autoIncrement"                  json:"id"`
	UserID uint `gorm:"index;not null;uniqueIndex:uniq_user_card" json:"user_id"`
	CardID uint `gorm:"not null;uniqueIndex:uniq_user_card"       json:"card_id"`
}

// PaymentMethod keeps the recoverable card data in one ciphertext blob and
// the client-visible fields in plaintext columns. Handlers must only ever
// serialize the metadata projection, never this struct.
type PaymentMethod struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint   `gorm:"index;not null"           json:"user_id"`
	EncryptedData string `gorm:"not null"                 json:"-"`
	CardBrand     string `gorm:"not null"                 json:"card_brand"`
	Last4         string `gorm:"size:4;not null"          json:"last4"`
	ExpiryMonth   int    `json:"expiry_month"`
	ExpiryYear    int    `json:"expiry_year"`
	Nickname      string `json:"nickname,omitempty"`
	// Fingerprint is a keyed one-way hash of the normalized card number,
	// compared for duplicate detection without decrypting anything.
	Fingerprint string    `gorm:"index;not null" json:"-"`
	CVVHash     string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Collection struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint      `gorm:"index;not null"           json:"user_id"`
	Name        string    `gorm:"not null"                 json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CollectionCard struct {
	ID           uint `gorm:"primaryKey;autoIncrement"                        json:"id"`
	CollectionID uint `gorm:"index;not null;uniqueIndex:uniq_collection_card" json:"collection_id"`
	CardID       uint `gorm:"not null;uniqueIndex:uniq_collection_card"       json:"card_id"`
}

type TradeStatus string

const (
	TradePending  TradeStatus = "PENDING"
	TradeAccepted TradeStatus = "ACCEPTED"
	TradeDeclined TradeStatus = "DECLINED"
	TradeCanceled TradeStatus = "CANCELLED"
)

type Trade struct {
	ID            uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	OffererID     uint        `gorm:"index;not null"           json:"offerer_id"`
	TargetID      uint        `gorm:"index;not null"           json:"target_id"`
	OffererCardID uint        `gorm:"not null"                 json:"offerer_card_id"`
	TargetCardID  uint        `gorm:"not null"                 json:"target_card_id"`
	Status        TradeStatus `gorm:"size:16;not null"         json:"status"`
	Message       string      `json:"message,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type Favorite struct {
	ID     uint `gorm:"primaryKey;autoIncrement"                 json:"id"`
	UserID uint `gorm:"index;not null;uniqueIndex:uniq_user_fav" json:"user_id"`
	CardID uint `gorm:"not null;uniqueIndex:uniq_user_fav"       json:"card_id"`
}

type Follow struct {
	ID         uint `gorm:"primaryKey;autoIncrement"                    json:"id"`
	FollowerID uint `gorm:"index;not null;uniqueIndex:uniq_follow_pair" json:"follower_id"`
	FolloweeID uint `gorm:"not null;uniqueIndex:uniq_follow_pair"       json:"followee_id"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"      json:"id"`
	Token     string `gorm:"unique;not null" json:"token"`
	UserID    uint   `gorm:"index;not null"  json:"user_id"`
	Role      string `json:"role"`
	ExpiresAt int64  `gorm:"not null"        json:"expires_at"`
	Revoked   bool   `gorm:"default:false"   json:"revoked"`
}
