package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/swishtrade/swish/internal/handlers"
	"github.com/swishtrade/swish/internal/service/token"
)

type Deps struct {
	AuthHandler          *handlers.AuthHandler
	CardHandler          *handlers.CardHandler
	CartHandler          *handlers.CartHandler
	PurchaseHandler      *handlers.PurchaseHandler
	PaymentMethodHandler *handlers.PaymentMethodHandler
	UserHandler          *handlers.UserHandler
	CollectionHandler    *handlers.CollectionHandler
	TradeHandler         *handlers.TradeHandler
	SearchHandler        *handlers.SearchHandler
	TokenService         *token.TokenService
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)

	cards := v1.Group("/cards")
	cards.GET("", d.CardHandler.ListCards)
	cards.GET("/:id", d.CardHandler.GetCard)

	if d.SearchHandler != nil {
		v1.GET("/search", d.SearchHandler.Search)
	}

	auth := v1.Group("", d.TokenService.AutoRefreshMiddleware)

	auth.POST("/cards", d.CardHandler.CreateCard)
	auth.PATCH("/cards/:id", d.CardHandler.PatchCard)
	auth.DELETE("/cards/:id", d.CardHandler.DeleteCard)
	auth.POST("/cards/:id/favorite", d.UserHandler.Favorite)
	auth.DELETE("/cards/:id/favorite", d.UserHandler.Unfavorite)

	auth.GET("/cart", d.CartHandler.GetCart)
	auth.POST("/cart", d.CartHandler.AddToCart)
	auth.DELETE("/cart", d.CartHandler.ClearCart)
	auth.DELETE("/cart/:id", d.CartHandler.RemoveFromCart)
	auth.POST("/cart/checkout", d.PurchaseHandler.Checkout)

	auth.GET("/purchases", d.PurchaseHandler.ListPurchases)
	auth.POST("/purchases", d.PurchaseHandler.CreatePurchase)
	auth.GET("/purchases/:id", d.PurchaseHandler.GetPurchase)
	auth.PATCH("/purchases/:id", d.PurchaseHandler.UpdatePurchase)

	auth.GET("/payment-methods", d.PaymentMethodHandler.List)
	auth.POST("/payment-methods", d.PaymentMethodHandler.Add)
	auth.DELETE("/payment-methods/:id", d.PaymentMethodHandler.Delete)

	auth.POST("/security-pin", d.UserHandler.SetPin)
	auth.DELETE("/security-pin", d.UserHandler.RemovePin)
	auth.PUT("/shipping-address", d.UserHandler.UpdateShippingAddress)
	auth.DELETE("/account", d.UserHandler.DeleteAccount)
	auth.POST("/users/:id/follow", d.UserHandler.Follow)
	auth.DELETE("/users/:id/follow", d.UserHandler.Unfollow)

	auth.GET("/collections", d.CollectionHandler.List)
	auth.POST("/collections", d.CollectionHandler.Create)
	auth.DELETE("/collections/:id", d.CollectionHandler.Delete)
	auth.POST("/collections/:id/cards", d.CollectionHandler.AddCard)
	auth.DELETE("/collections/:id/cards/:cardId", d.CollectionHandler.RemoveCard)

	auth.GET("/trades", d.TradeHandler.List)
	auth.POST("/trades", d.TradeHandler.Create)
	auth.POST("/trades/:id/accept", d.TradeHandler.Accept)
	auth.POST("/trades/:id/decline", d.TradeHandler.Decline)

	admin := v1.Group("/admin", d.TokenService.AutoRefreshMiddlewareAdmin)
	admin.DELETE("/users/:id/security-pin", d.UserHandler.RemovePin)
}
