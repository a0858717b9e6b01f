package main

import (
	"log"
	"log/slog"
	"os"
	"time"

	config "github.com/anjiri1684/payment_gateway/configs"
	"github.com/anjiri1684/payment_gateway/database"
	"github.com/anjiri1684/payment_gateway/handlers"
	"github.com/anjiri1684/payment_gateway/jobs"
	"github.com/anjiri1684/payment_gateway/payments"
	"github.com/anjiri1684/payment_gateway/routes"
	"github.com/anjiri1684/payment_gateway/services"
	"github.com/anjiri1684/payment_gateway/store"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	database.ConnectDB()
	database.Migrate()

	cfg := config.Load()
	appLog := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	st := store.NewGormStore(database.DB)
	client := payments.NewClient(cfg, appLog)
	verifier := services.NewVerifier(st, client, appLog)
	notifier := services.NewNotifier(st, cfg, appLog)
	orchestrator := services.NewOrchestrator(st, client, verifier, notifier, cfg, appLog)

	paymentHandler := handlers.NewPaymentHandler(orchestrator)
	webhookHandler := handlers.NewWebhookTestHandler(cfg.TestWebhookSecret)

	c := cron.New()
	c.AddFunc("*/15 * * * *", jobs.ReportStalePayments(st, appLog))
	go c.Start()
	log.Println("Cron job for stale payment sweep scheduled successfully.")

	app := fiber.New(fiber.Config{
		AppName:       "Payment Gateway",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-Webhook-Signature, X-Webhook-Timestamp",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.PaymentRoutes(app, paymentHandler, st, appLog)
	routes.WebhookRoutes(app, webhookHandler)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Println("Server is running on port 8080")
	err := app.Listen(":8080")
	if err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
