package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"shop-service/cart"
	"shop-service/config"
	"shop-service/consumers"
	"shop-service/controllers"
	"shop-service/database"
	"shop-service/inventory"
	"shop-service/middlewares"
	"shop-service/notifications"
	"shop-service/orders"
	"shop-service/rabbitmq"
	"shop-service/reviews"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := db.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}

	userStore := database.NewUserStore(db)
	productStore := database.NewProductStore(db)
	cartStore := database.NewCartStore(db)
	orderStore := database.NewOrderStore(db)
	reviewStore := database.NewReviewStore(db)

	ledger := inventory.NewLedger(productStore)
	cartSvc := cart.NewService(cartStore, productStore)
	orderSvc := orders.NewService(orderStore, productStore, userStore, cartSvc, orders.Config{
		DefaultTaxRate:        mustDecimal(cfg.DefaultTaxRate),
		DefaultShippingPrice:  mustDecimal(cfg.DefaultShippingPrice),
		FreeShippingThreshold: mustDecimal(cfg.FreeShippingThreshold),
		PaymentCheckDelay:     cfg.PaymentCheckDelay,
	})
	reviewSvc := reviews.NewService(reviewStore, productStore)

	rmq, err := rabbitmq.NewRabbitMQ(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}
	defer rmq.Close()
	if err := rmq.SetupQueues(); err != nil {
		log.Fatal().Err(err).Msg("failed to set up rabbitmq queues")
	}
	orderSvc.SetPublisher(rmq)

	mailer := notifications.NewMailer(rmq)
	orderSvc.SetMailer(mailer)

	consumer := consumers.NewOrderConsumer(rmq.Channel, cfg, orderSvc, userStore, mailer)
	if err := consumer.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to start order consumer")
	}

	go sweepAbandonedCarts(cartStore)

	authCtrl := controllers.NewAuthController(userStore, cartSvc, cfg.JWTSecret, cfg.JWTTTL)
	productCtrl := controllers.NewProductController(productStore, ledger)
	cartCtrl := controllers.NewCartController(cartSvc)
	orderCtrl := controllers.NewOrderController(orderSvc)
	reviewCtrl := controllers.NewReviewController(reviewSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	api.POST("/auth/register", authCtrl.Register)
	api.POST("/auth/login", authCtrl.Login)

	api.GET("/products", productCtrl.List)
	api.GET("/products/:id", productCtrl.Get)
	api.GET("/products/:id/reviews", reviewCtrl.ListByProduct)
	api.POST("/inventory/check", productCtrl.CheckInventory)

	// Carts work for guests; OptionalAuth resolves the owner either way.
	cartGroup := api.Group("/cart")
	cartGroup.Use(middlewares.OptionalAuth(cfg.JWTSecret))
	{
		cartGroup.GET("", cartCtrl.Get)
		cartGroup.POST("/items", cartCtrl.AddItem)
		cartGroup.PUT("/items/:productID", cartCtrl.UpdateItem)
		cartGroup.DELETE("/items/:productID", cartCtrl.RemoveItem)
		cartGroup.DELETE("", cartCtrl.Clear)
		cartGroup.GET("/validate", cartCtrl.Validate)
		cartGroup.POST("/refresh-prices", cartCtrl.RefreshPrices)
		cartGroup.POST("/discounts", cartCtrl.ApplyDiscount)
		cartGroup.POST("/abandon", cartCtrl.Abandon)
	}

	authed := api.Group("")
	authed.Use(middlewares.Auth(cfg.JWTSecret))
	{
		authed.GET("/auth/me", authCtrl.Me)

		authed.POST("/orders", orderCtrl.Create)
		authed.POST("/orders/from-cart", orderCtrl.CreateFromCart)
		authed.GET("/orders", orderCtrl.ListMine)
		authed.GET("/orders/:id", orderCtrl.Get)
		authed.GET("/orders/number/:number", orderCtrl.GetByNumber)
		authed.POST("/orders/:id/pay", orderCtrl.Pay)
		authed.POST("/orders/:id/cancel", orderCtrl.Cancel)

		authed.POST("/products/:id/reviews", reviewCtrl.Create)
		authed.PUT("/reviews/:id", reviewCtrl.Update)
		authed.DELETE("/reviews/:id", reviewCtrl.Delete)
		authed.POST("/reviews/:id/like", reviewCtrl.ToggleLike)
		authed.POST("/reviews/:id/dislike", reviewCtrl.ToggleDislike)
	}

	admin := api.Group("/admin")
	admin.Use(middlewares.Auth(cfg.JWTSecret), middlewares.AdminOnly())
	{
		admin.POST("/products", productCtrl.Create)
		admin.PUT("/products/:id", productCtrl.Update)
		admin.DELETE("/products/:id", productCtrl.Delete)

		admin.GET("/orders/by-status", orderCtrl.ListByStatus)
		admin.GET("/orders/by-date", orderCtrl.ListByDateRange)
		admin.PUT("/orders/:id/status", orderCtrl.UpdateStatus)
		admin.POST("/orders/:id/fulfill", orderCtrl.Fulfill)
		admin.POST("/orders/:id/refund", orderCtrl.Refund)
		admin.POST("/dead-letter", orderCtrl.HandleDeadLetter)
	}

	log.Info().Str("port", cfg.HTTPPort).Msg("shop service starting")
	if err := r.Run(":" + cfg.HTTPPort); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// sweepAbandonedCarts periodically marks long-untouched active carts as
// abandoned.
func sweepAbandonedCarts(store *database.CartStore) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		n, err := store.AbandonStale(context.Background(), 30)
		if err != nil {
			log.Error().Err(err).Msg("abandoned cart sweep failed")
			continue
		}
		if n > 0 {
			log.Info().Int64("count", n).Msg("marked stale carts abandoned")
		}
	}
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().
		Str("app", cfg.AppName).Logger()
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatal().Err(err).Str("value", s).Msg("invalid decimal in config")
	}
	return d
}
