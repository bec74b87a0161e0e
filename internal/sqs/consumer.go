package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const receiveRetryDelay = time.Second

// ConsumerAPI defines the interface for SQS operations used by Consumer.
type ConsumerAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Handler processes one decoded price change message.
// A message is deleted from the queue only when the handler returns nil.
type Handler func(ctx context.Context, msg PriceChangeMessage) error

// Consumer handles consuming price events from AWS SQS.
type Consumer struct {
	client   ConsumerAPI
	queueURL string
	handler  Handler
}

// NewConsumer creates a new SQS Consumer with the given client, queue URL and message handler.
func NewConsumer(client ConsumerAPI, queueURL string, handler Handler) *Consumer {
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		handler:  handler,
	}
}

// Start begins consuming messages from the SQS queue until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("Starting SQS consumer", slog.String("queueURL", c.queueURL))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping SQS consumer")
			return ctx.Err()
		default:
		}

		if err := c.receiveMessages(ctx); err != nil {
			slog.Error("Error receiving messages", slog.Any("err", err))
			select {
			case <-ctx.Done():
			case <-time.After(receiveRetryDelay):
			}
		}
	}
}

func (c *Consumer) receiveMessages(ctx context.Context) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(c.queueURL),
		MaxNumberOfMessages:   10,
		WaitTimeSeconds:       20, // Long polling
		MessageAttributeNames: []string{eventTypeAttribute},
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, message := range result.Messages {
		if err := c.processMessage(ctx, message); err != nil {
			slog.Error("Error processing message", slog.Any("err", err))
			continue
		}

		if err := c.deleteMessage(ctx, message); err != nil {
			slog.Error("Error deleting message", slog.Any("err", err))
		}
	}

	return nil
}

func (c *Consumer) processMessage(ctx context.Context, message types.Message) error {
	if message.Body == nil {
		return fmt.Errorf("message body is nil")
	}

	var priceMsg PriceChangeMessage
	if err := json.Unmarshal([]byte(*message.Body), &priceMsg); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	slog.Info("Received price change",
		slog.String("event_id", priceMsg.EventID),
		slog.String("event_type", priceMsg.EventType),
		slog.Int64("product_id", priceMsg.ProductID),
		slog.String("store", priceMsg.Store),
		slog.String("change_percentage", priceMsg.ChangePercentage.StringFixed(1)),
	)

	if c.handler == nil {
		return nil
	}
	if err := c.handler(ctx, priceMsg); err != nil {
		return fmt.Errorf("failed to handle message %s: %w", priceMsg.EventID, err)
	}
	return nil
}

func (c *Consumer) deleteMessage(ctx context.Context, message types.Message) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: message.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}
