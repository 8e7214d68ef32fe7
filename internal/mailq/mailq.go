// Package mailq carries outbound customer emails from the API to the
// delivery worker over SQS, so a slow or failing mail provider can never
// block a committed order transition.
package mailq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/katinat-coffee/ordering-backend/internal/aws"
)

// Message is one email delivery job.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	OrderID string `json:"order_id,omitempty"`
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	client   aws.SQSAPI
	queueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(client aws.SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// Enqueue sends a delivery job to the queue. The order id rides along as a
// message attribute for tracing.
func (p *Publisher) Enqueue(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: awsString(string(body)),
	}
	if msg.OrderID != "" {
		input.MessageAttributes = map[string]sqstypes.MessageAttributeValue{
			"order_id": {
				DataType:    awsString("String"),
				StringValue: &msg.OrderID,
			},
		}
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
