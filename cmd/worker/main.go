package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/katinat-coffee/ordering-backend/internal/aws"
	"github.com/katinat-coffee/ordering-backend/internal/mailer"
	"github.com/katinat-coffee/ordering-backend/pkg/logger"
)

func main() {
	log := logger.New(os.Stdout, os.Getenv("LOG_LEVEL"))

	queueURL := os.Getenv("MAIL_QUEUE_URL")
	if queueURL == "" {
		log.Error("MAIL_QUEUE_URL is required")
		os.Exit(1)
	}

	smtpPort := 587
	if raw := os.Getenv("SMTP_PORT"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			log.Error("invalid SMTP_PORT", "value", raw)
			os.Exit(1)
		}
		smtpPort = p
	}

	from := os.Getenv("EMAIL_FROM")
	if from == "" {
		from = "noreply@katinat.com"
	}

	sender := mailer.NewSMTPSender(
		os.Getenv("SMTP_HOST"),
		smtpPort,
		os.Getenv("SMTP_USERNAME"),
		os.Getenv("SMTP_PASSWORD"),
		from,
	)

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := NewProcessor(clients.SQS, queueURL, sender, log)
	log.Info("mail worker starting", "queue", queueURL)
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
