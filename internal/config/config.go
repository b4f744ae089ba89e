package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/swishtrade/swish/internal/models"
	"github.com/swishtrade/swish/pkg/db"
)

type Config struct {
	DB_HOST           string
	DB_PORT           string
	DB_USER           string
	DB_PASSWORD       string
	DB_NAME           string
	ES_URL            string
	ES_USER           string
	ES_PASSWORD       string
	JWT_SECRET        string
	REFRESH_SECRET    string
	KAFKA_ADDRESS     string
	ENCRYPTION_KEY    string
	SMTP_HOST         string
	SMTP_PORT         string
	SMTP_USERNAME     string
	SMTP_PASSWORD     string
	SENDER_EMAIL      string
	PAYMENT_FAIL_RATE float64
	LOG_LEVEL         string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	failRate, _ := strconv.ParseFloat(os.Getenv("PAYMENT_FAIL_RATE"), 64)

	config := &Config{
		DB_HOST:           os.Getenv("DB_HOST"),
		DB_PORT:           os.Getenv("DB_PORT"),
		DB_USER:           os.Getenv("DB_USER"),
		DB_PASSWORD:       os.Getenv("DB_PASSWORD"),
		DB_NAME:           os.Getenv("DB_NAME"),
		ES_URL:            os.Getenv("ES_URL"),
		ES_USER:           os.Getenv("ES_USER"),
		ES_PASSWORD:       os.Getenv("ES_PASSWORD"),
		JWT_SECRET:        os.Getenv("JWT_SECRET"),
		REFRESH_SECRET:    os.Getenv("REFRESH_SECRET"),
		KAFKA_ADDRESS:     os.Getenv("KAFKA_ADDRESS"),
		ENCRYPTION_KEY:    os.Getenv("ENCRYPTION_KEY"),
		SMTP_HOST:         os.Getenv("SMTP_HOST"),
		SMTP_PORT:         os.Getenv("SMTP_PORT"),
		SMTP_USERNAME:     os.Getenv("SMTP_USERNAME"),
		SMTP_PASSWORD:     os.Getenv("SMTP_PASSWORD"),
		SENDER_EMAIL:      os.Getenv("SENDER_EMAIL"),
		PAYMENT_FAIL_RATE: failRate,
		LOG_LEVEL:         os.Getenv("LOG_LEVEL"),
	}

	return config, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB_USER, c.DB_PASSWORD, c.DB_HOST, c.DB_PORT, c.DB_NAME,
	)
}

func InitDB(ctx context.Context, cfg *Config) (*gorm.DB, error) {
	gdb, err := db.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Card{},
		&models.CartItem{},
		&models.Purchase{},
		&models.PaymentMethod{},
		&models.Collection{},
		&models.CollectionCard{},
		&models.Trade{},
		&models.Favorite{},
		&models.Follow{},
	); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Storage-level backstop for the one-active-purchase-per-card
	// invariant. With this index in place the reservation path stays
	// correct even under read-committed isolation.
	if gdb.Dialector.Name() == "postgres" {
		if err := gdb.Exec(
			`CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_purchase_per_card
			 ON purchases (card_id)
			 WHERE status IN ('PENDING', 'PAID', 'SHIPPED')`,
		).Error; err != nil {
			return fmt.Errorf("failed to create active-purchase index: %w", err)
		}
	}
	return nil
}
