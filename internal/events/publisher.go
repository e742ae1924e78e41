// Package events publishes follow-up lifecycle events to an SNS topic.
// The statistics and spreadsheet-sync collaborators consume these
// externally; this service only ever publishes at the boundary.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/db"
)

// Event kinds published to the topic.
const (
	KindJobCreated        = "job_created"
	KindDeliveryCompleted = "delivery_completed"
)

// Event is the published lifecycle record.
type Event struct {
	Kind        string    `json:"kind"`
	JobID       string    `json:"job_id"`
	Type        string    `json:"type"`
	ChatID      string    `json:"chat_id"`
	Status      string    `json:"status,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher sends lifecycle events to an SNS topic.
type Publisher struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

// NewPublisher creates an SNS publisher for the given topic.
func NewPublisher(ctx context.Context, region, topicARN string, logger *zap.Logger) (*Publisher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("lifecycle event publisher initialized",
		zap.String("topic_arn", topicARN),
	)

	return &Publisher{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: topicARN,
		logger:   logger,
	}, nil
}

// JobCreated announces a newly persisted pending job.
func (p *Publisher) JobCreated(ctx context.Context, job *db.NotificationJob) error {
	return p.publish(ctx, Event{
		Kind:        KindJobCreated,
		JobID:       job.ID,
		Type:        string(job.Type),
		ChatID:      job.Payload.ChatID,
		ScheduledAt: job.ScheduledAt,
		OccurredAt:  time.Now().UTC(),
	})
}

// DeliveryCompleted announces a job reaching a terminal status.
func (p *Publisher) DeliveryCompleted(ctx context.Context, job *db.NotificationJob, status string) error {
	return p.publish(ctx, Event{
		Kind:        KindDeliveryCompleted,
		JobID:       job.ID,
		Type:        string(job.Type),
		ChatID:      job.Payload.ChatID,
		Status:      status,
		ScheduledAt: job.ScheduledAt,
		OccurredAt:  time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.Kind),
			},
			"type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.Type),
			},
		},
	}

	result, err := p.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	p.logger.Debug("lifecycle event published",
		zap.String("kind", ev.Kind),
		zap.String("job_id", ev.JobID),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}
