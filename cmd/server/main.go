package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/swishtrade/swish/internal/cardcrypto"
	"github.com/swishtrade/swish/internal/checkout"
	"github.com/swishtrade/swish/internal/config"
	"github.com/swishtrade/swish/internal/es"
	"github.com/swishtrade/swish/internal/events"
	"github.com/swishtrade/swish/internal/handlers"
	"github.com/swishtrade/swish/internal/logging"
	"github.com/swishtrade/swish/internal/mailer"
	"github.com/swishtrade/swish/internal/payment"
	"github.com/swishtrade/swish/internal/pinguard"
	"github.com/swishtrade/swish/internal/service/token"
	httpserver "github.com/swishtrade/swish/internal/transport/http"
	"github.com/swishtrade/swish/internal/vault"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	ctx := context.Background()
	db, err := config.InitDB(ctx, configuration)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}

	codec, err := cardcrypto.New([]byte(configuration.ENCRYPTION_KEY))
	if err != nil {
		log.Fatalf("encryption key: %v", err)
	}
	cardVault := vault.New(codec)

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	prod := events.NewProducer(
		[]string{configuration.KAFKA_ADDRESS},
		[]string{events.TopicUsers, events.TopicCards, events.TopicPurchases},
	)

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Printf("elasticsearch unavailable, search disabled: %v", err)
		esClient = nil
	}

	gateway := payment.NewMock(300*time.Millisecond, configuration.PAYMENT_FAIL_RATE)
	engine := checkout.NewEngine(db, gateway, &sql.TxOptions{Isolation: sql.LevelSerializable})

	sender := mailer.NewSender(mailer.Config{
		Host:     configuration.SMTP_HOST,
		Port:     configuration.SMTP_PORT,
		Username: configuration.SMTP_USERNAME,
		Password: configuration.SMTP_PASSWORD,
		Sender:   configuration.SENDER_EMAIL,
	}, logger)

	guard := pinguard.New(db)

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())

	// Handlers pull the logger back out with logging.FromContext.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			reqLogger := logger.With("request_id", c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), reqLogger)))
			return next(c)
		}
	})

	deps := httpserver.Deps{
		AuthHandler:          &handlers.AuthHandler{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret, Producer: prod},
		CardHandler:          &handlers.CardHandler{DB: db, Producer: prod, JWTSecret: jwtSecret},
		CartHandler:          &handlers.CartHandler{DB: db, Producer: prod, JWTSecret: jwtSecret},
		PurchaseHandler:      &handlers.PurchaseHandler{DB: db, Engine: engine, Vault: cardVault, Mailer: sender, Producer: prod, JWTSecret: jwtSecret, Log: logger},
		PaymentMethodHandler: &handlers.PaymentMethodHandler{DB: db, Vault: cardVault, Guard: guard, Producer: prod, JWTSecret: jwtSecret},
		UserHandler:          &handlers.UserHandler{DB: db, Guard: guard, Producer: prod, JWTSecret: jwtSecret},
		CollectionHandler:    &handlers.CollectionHandler{DB: db, Guard: guard, JWTSecret: jwtSecret},
		TradeHandler:         &handlers.TradeHandler{DB: db, Producer: prod, JWTSecret: jwtSecret},
		TokenService:         &token.TokenService{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret},
	}
	if esClient != nil {
		deps.SearchHandler = handlers.NewSearchHandler(esClient, "cards")
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
