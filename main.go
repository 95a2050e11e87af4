package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"backend/internal/cart"
	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/handlers"
	"backend/internal/inventory"
	"backend/internal/middleware"
	"backend/internal/orders"
	"backend/internal/payments"
	"backend/internal/repository"
)

func main() {
	config.Load()

	client, err := database.Connect(config.AppEnv.MongoURI)
	if err != nil {
		log.Fatal(err)
	}

	db := client.Database(config.AppEnv.DBName)

	log.Println("MongoDB connected to:", db.Name())

	if err := database.EnsureCartIndexes(db); err != nil {
		log.Printf("cart index warning: %v", err)
	}
	if err := database.EnsureOrderIndexes(db); err != nil {
		log.Printf("order index warning: %v", err)
	}
	if err := database.EnsurePaymentIndexes(db); err != nil {
		log.Printf("payment index warning: %v", err)
	}

	productRepo := repository.NewMongoProductRepository(db)
	cartRepo := repository.NewMongoCartRepository(db)
	orderRepo := repository.NewMongoOrderRepository(db)
	paymentRepo := repository.NewMongoPaymentRepository(db)
	tx := repository.NewMongoTxRunner(client)

	ledger := inventory.NewLedger(productRepo)
	cartSvc := cart.NewService(cartRepo, productRepo, ledger)
	reconciler := payments.NewReconciler(paymentRepo, orderRepo)
	orderSvc := orders.NewService(orderRepo, cartRepo, productRepo, ledger, reconciler, tx)

	r := gin.Default()
	r.Use(handlers.DBGuard(db))

	user := r.Group("/")
	user.Use(middleware.UserAuth(config.AppEnv.JWTSecret))
	{
		user.GET("/cart", handlers.GetCart(cartSvc))
		user.POST("/cart", handlers.AddToCart(cartSvc))
		user.PUT("/cart/:id", handlers.UpdateCartItem(cartSvc))
		user.DELETE("/cart/:id", handlers.RemoveFromCart(cartSvc))

		user.POST("/orders", handlers.CreateOrder(orderSvc))
		user.GET("/orders", handlers.GetOrders(orderSvc))
		user.GET("/orders/:id", handlers.GetOrder(orderSvc))
		user.DELETE("/orders/:id", handlers.CancelOrder(orderSvc))

		user.POST("/payments", handlers.RecordPayment(reconciler))
		user.GET("/payments", handlers.GetUserPayments(reconciler))
		user.GET("/payments/:orderId", handlers.GetPaymentByOrder(reconciler))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(config.AppEnv.JWTSecret))
	{
		admin.PUT("/orders/:id/ship", handlers.ShipOrder(orderSvc))
		admin.PUT("/orders/:id/deliver", handlers.DeliverOrder(orderSvc))
		admin.PUT("/orders/:id/sync-payment", handlers.SyncOrderPaymentStatus(reconciler))
		admin.POST("/orders/fix-payment-status", handlers.FixPaymentStatuses(reconciler))
	}

	r.Run(":" + config.AppEnv.Port)
}
