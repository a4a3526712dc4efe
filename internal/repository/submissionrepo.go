package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/jtaw5649/barforge-registry/internal/model"
)

// SubmissionRepository stores the moderation queue.
type SubmissionRepository interface {
	// Create inserts a pending submission.
	Create(ctx context.Context, s *model.Submission) error
	// Get loads a submission by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	// ListPending returns pending submissions oldest first.
	ListPending(ctx context.Context, limit, offset int) ([]model.Submission, error)
	// ListBySubmitter returns a user's submissions newest first.
	ListBySubmitter(ctx context.Context, userID uuid.UUID) ([]model.Submission, error)

	// Approve resolves a pending submission and, in the same transaction,
	// creates its module and first version. A non-pending submission yields
	// errs.ErrInvalidState; an existing module yields errs.ErrConflict and
	// leaves the submission pending.
	Approve(ctx context.Context, id, reviewer uuid.UUID) (*model.Submission, error)
	// Reject resolves a pending submission with an optional reason.
	Reject(ctx context.Context, id, reviewer uuid.UUID, reason string) (*model.Submission, error)
}
