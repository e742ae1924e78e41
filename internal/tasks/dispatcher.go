// Package tasks is the boundary to the external durable delayed-execution
// queue. The queue's contract: invoke the registered URL with the payload
// at or after the scheduled instant, retry non-2xx responses per its own
// policy, and expose the attempt counter to each invocation.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// Dispatcher registers a delayed callback with the external queue.
type Dispatcher interface {
	Enqueue(ctx context.Context, url string, payload []byte, scheduledAt time.Time) (string, error)
}

// Config holds queue configuration.
type Config struct {
	Region   string
	QueueURL string
}

// Envelope is the task body handed to the queue. The scheduler relay
// reading the queue invokes URL with Payload once ScheduledAt has passed.
type Envelope struct {
	URL         string          `json:"url"`
	Payload     json.RawMessage `json:"payload"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// SQSDispatcher implements Dispatcher on top of SQS.
type SQSDispatcher struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewSQSDispatcher creates a new SQS-backed dispatcher.
func NewSQSDispatcher(ctx context.Context, cfg Config, logger *zap.Logger) (*SQSDispatcher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg)

	logger.Info("task dispatcher initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &SQSDispatcher{
		client:   client,
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// Enqueue registers a task. SQS delay is capped at 15 minutes, so the
// delay is applied opportunistically; the authoritative scheduled instant
// travels in the envelope and the relay holds the task until it passes.
func (d *SQSDispatcher) Enqueue(ctx context.Context, url string, payload []byte, scheduledAt time.Time) (string, error) {
	env := Envelope{
		URL:         url,
		Payload:     payload,
		ScheduledAt: scheduledAt.UTC(),
		EnqueuedAt:  time.Now().UTC(),
	}

	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task envelope: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(d.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySeconds(time.Until(scheduledAt)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"scheduled_at": {
				DataType:    aws.String("String"),
				StringValue: aws.String(scheduledAt.UTC().Format(time.RFC3339)),
			},
		},
	}

	result, err := d.client.SendMessage(ctx, input)
	if err != nil {
		d.logger.Error("failed to register task",
			zap.Error(err),
			zap.Time("scheduled_at", scheduledAt),
		)
		return "", fmt.Errorf("sqs send failed: %w", err)
	}

	d.logger.Info("task registered",
		zap.String("message_id", *result.MessageId),
		zap.Time("scheduled_at", scheduledAt),
	)

	return *result.MessageId, nil
}

const maxSQSDelay = 900 // seconds

func delaySeconds(until time.Duration) int32 {
	if until <= 0 {
		return 0
	}
	secs := int32(until / time.Second)
	if secs > maxSQSDelay {
		return maxSQSDelay
	}
	return secs
}
