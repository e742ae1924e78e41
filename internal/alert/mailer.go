// Package alert emails the ops team when a follow-up burns through its
// retry ceiling without being delivered.
package alert

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/db"
)

// Mailer sends escalation emails via SES.
type Mailer struct {
	client *ses.Client
	from   string
	to     string
	logger *zap.Logger
}

// Config holds escalation mail settings.
type Config struct {
	Region    string
	FromEmail string
	ToEmail   string
}

// NewMailer creates an SES-backed escalation mailer.
func NewMailer(ctx context.Context, cfg Config, logger *zap.Logger) (*Mailer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}

	return &Mailer{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		to:     cfg.ToEmail,
		logger: logger,
	}, nil
}

// RetriesExhausted emails ops that a job expired undelivered.
func (m *Mailer) RetriesExhausted(ctx context.Context, job *db.NotificationJob, lastError string) error {
	subject := fmt.Sprintf("[salesflow] follow-up %s expired undelivered", job.Type)
	body := fmt.Sprintf(
		"Follow-up job %s (%s) for chat %q exhausted its retry ceiling and was expired.\n\nScheduled: %s\nLast error: %s\n\nThe conversation may need a manual follow-up.",
		job.ID, job.Type, job.Payload.ChatTitle, job.ScheduledAt.Format("2006-01-02 15:04 MST"), lastError,
	)

	input := &ses.SendEmailInput{
		Source: aws.String(m.from),
		Destination: &types.Destination{
			ToAddresses: []string{m.to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	m.logger.Info("escalation email sent",
		zap.String("job_id", job.ID),
		zap.String("to", m.to),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}
