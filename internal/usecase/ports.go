package usecase

import (
	"context"
	"time"

	"github.com/attestry/attestry"
	"github.com/attestry/attestry/internal/domain"
)

// RevisionStore defines the append/read contract against the revision log.
type RevisionStore interface {
	// Submit confirms one mutation. A nil Submission.StreamID allocates a
	// new stream. Returns ConflictError when Previous is not the head and
	// SubmissionError on transient failure; nothing partial ever becomes
	// visible to readers.
	Submit(ctx context.Context, sub domain.Submission) (attestry.CommitResult, error)

	// ReadChain returns the revision chain newest-first. With asOf set,
	// only revisions anchored at or before that instant are included.
	ReadChain(ctx context.Context, streamID string, asOf *time.Time) ([]domain.Revision, error)

	// GetLatest returns the current head revision of a stream.
	GetLatest(ctx context.Context, streamID string) (domain.Revision, error)

	// FindSingleton resolves the stream already holding a singleton kind
	// for owner, or NotFoundError.
	FindSingleton(ctx context.Context, kind string, owner string) (string, error)

	ListByOwner(ctx context.Context, kind string, owner string) ([]domain.Snapshot, error)
	ListAttestationsForTarget(ctx context.Context, targetStreamID string) ([]domain.Snapshot, error)
}

// IdentityProvider resolves the acting account for the current request.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (string, error)
}
