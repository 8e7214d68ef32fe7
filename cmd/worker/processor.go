package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/katinat-coffee/ordering-backend/internal/aws"
	"github.com/katinat-coffee/ordering-backend/internal/mailer"
	"github.com/katinat-coffee/ordering-backend/internal/mailq"
	"github.com/katinat-coffee/ordering-backend/pkg/logger"
)

const (
	waitTimeSeconds  = 20
	maxBatchMessages = 10
	receiveBackoff   = 5 * time.Second
)

// Processor drains the mail queue and delivers each message over SMTP.
// A failed delivery leaves the message in the queue for SQS to redrive,
// so delivery is at-least-once.
type Processor struct {
	client   aws.SQSAPI
	queueURL string
	sender   mailer.Sender
	log      *logger.Logger
}

func NewProcessor(client aws.SQSAPI, queueURL string, sender mailer.Sender, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Default()
	}
	return &Processor{
		client:   client,
		queueURL: queueURL,
		sender:   sender,
		log:      log.WithComponent("mail_worker"),
	}
}

// Run long-polls until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &p.queueURL,
			MaxNumberOfMessages: maxBatchMessages,
			WaitTimeSeconds:     waitTimeSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Error("receive failed, backing off", "error", err)
			select {
			case <-time.After(receiveBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, m := range out.Messages {
			body := ""
			if m.Body != nil {
				body = *m.Body
			}
			if err := p.processMessage(body); err != nil {
				// leave it in the queue; SQS redrives or dead-letters it
				p.log.Error("delivery failed", "error", err)
				continue
			}
			if _, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      &p.queueURL,
				ReceiptHandle: m.ReceiptHandle,
			}); err != nil {
				p.log.Error("delete failed", "error", err)
			}
		}
	}
}

func (p *Processor) processMessage(body string) error {
	var msg mailq.Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.To == "" {
		return fmt.Errorf("message without recipient, order_id=%s", msg.OrderID)
	}

	if err := p.sender.Send(msg.To, msg.Subject, msg.Body); err != nil {
		return fmt.Errorf("send to %s: %w", msg.To, err)
	}

	p.log.Info("mail delivered", "to", msg.To, "order_id", msg.OrderID)
	return nil
}
