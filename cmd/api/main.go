package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/katinat-coffee/ordering-backend/internal/analytics"
	"github.com/katinat-coffee/ordering-backend/internal/auth"
	"github.com/katinat-coffee/ordering-backend/internal/aws"
	"github.com/katinat-coffee/ordering-backend/internal/handlers"
	"github.com/katinat-coffee/ordering-backend/internal/idempotency"
	"github.com/katinat-coffee/ordering-backend/internal/mailq"
	"github.com/katinat-coffee/ordering-backend/internal/metrics"
	"github.com/katinat-coffee/ordering-backend/internal/notify"
	"github.com/katinat-coffee/ordering-backend/internal/orders"
	"github.com/katinat-coffee/ordering-backend/internal/payments"
	"github.com/katinat-coffee/ordering-backend/pkg/logger"
)

type config struct {
	Addr             string
	OrdersTable      string
	IdempotencyTable string
	MailQueueURL     string
	StripeSecretKey  string
	StripeWebhookKey string
	StripeCurrency   string
	JWTSecret        string
	LogLevel         string
}

func loadConfig() config {
	cfg := config{
		Addr:             os.Getenv("ADDR"),
		OrdersTable:      os.Getenv("ORDERS_TABLE"),
		IdempotencyTable: os.Getenv("IDEMPOTENCY_TABLE"),
		MailQueueURL:     os.Getenv("MAIL_QUEUE_URL"),
		StripeSecretKey:  os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookKey: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeCurrency:   os.Getenv("STRIPE_CURRENCY"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.StripeCurrency == "" {
		cfg.StripeCurrency = "vnd"
	}
	return cfg
}

func main() {
	cfg := loadConfig()
	log := logger.New(os.Stdout, cfg.LogLevel)

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	ledger := orders.NewLedger(clients.DynamoDB, cfg.OrdersTable)
	idempStore := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, 48*time.Hour)
	mailPub := mailq.NewPublisher(clients.SQS, cfg.MailQueueURL)
	emitter := metrics.NewEmitter(clients.CloudWatch, "KatinatOrdering")
	hub := notify.NewHub(log)
	verifier := auth.NewVerifier(cfg.JWTSecret, 7*24*time.Hour)

	machine := orders.NewMachine(ledger, hub, mailPub, emitter, log)
	gateway := payments.New(cfg.StripeSecretKey, cfg.StripeWebhookKey, cfg.StripeCurrency, ledger, machine, log)
	aggregator := analytics.New(ledger, log)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrderRoutes(r, handlers.Config{
		Ledger:           ledger,
		Machine:          machine,
		Gateway:          gateway,
		Hub:              hub,
		Mail:             mailPub,
		Idempotency:      idempStore,
		IdempotencyTable: cfg.IdempotencyTable,
		Verifier:         verifier,
		Log:              log,
	})
	handlers.RegisterWebhookRoutes(r, gateway, log)
	handlers.RegisterAnalyticsRoutes(r, aggregator, verifier)
	r.GET("/ws", notify.ServeWS(hub, verifier, log))

	log.Info("server starting", "addr", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
