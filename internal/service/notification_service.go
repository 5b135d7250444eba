package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DownMan01/evot4r/internal/models"
	"github.com/DownMan01/evot4r/pkg/config"
	"github.com/DownMan01/evot4r/pkg/jobs"
)

// Mailer delivers a rendered message to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes messages to the log instead of delivering them. It
// is the default in development environments without an SMTP relay.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) Send(_ context.Context, to, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("mail delivered to log",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

const (
	jobTypeTwoFactorCode = "two_factor_code"
	jobTypePasswordReset = "password_reset"
)

type mailJob struct {
	To      string
	Subject string
	Body    string
}

// NotificationService dispatches account emails through a background
// worker pool so request handlers never block on delivery.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService wires a mailer behind an async queue.
func NewNotificationService(mailer Mailer, logger *zap.Logger, cfg config.NotificationsConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(mailJob)
		if !ok {
			logger.Error("notification job has unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		return mailer.Send(ctx, payload.To, payload.Subject, payload.Body)
	}

	queue := jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})

	return &NotificationService{queue: queue, logger: logger}
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// SendTwoFactorCode queues the one-time login code for delivery.
func (s *NotificationService) SendTwoFactorCode(_ context.Context, voter *models.Voter, code string) error {
	return s.queue.TryEnqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: jobTypeTwoFactorCode,
		Payload: mailJob{
			To:      voter.Email,
			Subject: "Your Evotar verification code",
			Body:    "Hi " + voter.FullName + ",\n\nYour verification code is " + code + ". It expires in a few minutes.\n\nIf you did not try to sign in, you can ignore this message.",
		},
	})
}

// SendPasswordReset queues the reset instructions for delivery.
func (s *NotificationService) SendPasswordReset(_ context.Context, voter *models.Voter) error {
	return s.queue.TryEnqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: jobTypePasswordReset,
		Payload: mailJob{
			To:      voter.Email,
			Subject: "Reset your Evotar password",
			Body:    "Hi " + voter.FullName + ",\n\nWe received a request to reset your password. Follow the link in your student portal to choose a new one.\n\nIf you did not request this, no action is needed.",
		},
	})
}
