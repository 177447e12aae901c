// Package worker runs the avatar verification queue consumer.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ezmeets/backend/internal/models"
	"github.com/ezmeets/backend/internal/verify"
	"github.com/ezmeets/backend/pkg/queue"
)

// UserApprover is the slice of the user repository the worker needs.
type UserApprover interface {
	SetApproveStatus(ctx context.Context, id uuid.UUID, status models.ApproveStatus) error
}

// AvatarVerifier processes avatar verification jobs: call the external
// face-verification service and update the account's approve status.
type AvatarVerifier struct {
	users    UserApprover
	verifier *verify.Client
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewAvatarVerifier creates the verification processor. verifier may be nil
// when no verification service is configured; accounts then stay InProcess
// until an admin approves them manually.
func NewAvatarVerifier(users UserApprover, verifier *verify.Client, q *queue.Queue, logger *zap.Logger) *AvatarVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvatarVerifier{users: users, verifier: verifier, queue: q, logger: logger}
}

// Process executes one avatar verification job.
func (p *AvatarVerifier) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAvatarVerification {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.AvatarVerificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if p.verifier == nil {
		p.logger.Info("verification service not configured, leaving account in process",
			zap.String("user_id", payload.UserID.String()))
		return nil
	}

	result, err := p.verifier.VerifyAvatar(ctx, payload.UserID, payload.AvatarURL)
	if err != nil {
		return fmt.Errorf("verify avatar: %w", err)
	}

	status := models.ApproveStatusNotApproved
	if result.Verified {
		status = models.ApproveStatusApproved
	}
	if err := p.users.SetApproveStatus(ctx, payload.UserID, status); err != nil {
		return fmt.Errorf("update approve status: %w", err)
	}

	p.logger.Info("avatar verification completed",
		zap.String("user_id", payload.UserID.String()),
		zap.String("approve_status", string(status)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *AvatarVerifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("verification worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
