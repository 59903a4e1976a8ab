package usecase

import (
	"context"
	"time"

	"github.com/attestry/attestry/internal/domain"
)

type QueryUsecase struct {
	store RevisionStore
	ident IdentityProvider
}

func NewQueryUsecase(store RevisionStore, ident IdentityProvider) *QueryUsecase {
	return &QueryUsecase{store: store, ident: ident}
}

// GetEntity returns the latest confirmed snapshot, or with asOf set, the
// newest revision whose anchor time is at or before that instant. The
// result is a pure function of (streamID, asOf) over an unchanged store.
func (uc *QueryUsecase) GetEntity(ctx context.Context, streamID string, asOf *time.Time) (domain.Snapshot, error) {
	if asOf == nil {
		head, err := uc.store.GetLatest(ctx, streamID)
		if err != nil {
			return domain.Snapshot{}, err
		}
		return head.Snapshot(), nil
	}

	chain, err := uc.store.ReadChain(ctx, streamID, asOf)
	if err != nil {
		return domain.Snapshot{}, err
	}

	for _, rev := range chain {
		if !rev.AnchorTime.After(*asOf) {
			return rev.Snapshot(), nil
		}
	}

	return domain.Snapshot{}, domain.NotFoundError{Resource: "revision"}
}

// GetChain returns the full revision history, newest first.
func (uc *QueryUsecase) GetChain(ctx context.Context, streamID string, asOf *time.Time) ([]domain.Revision, error) {
	return uc.store.ReadChain(ctx, streamID, asOf)
}

// ListByOwner returns head snapshots of all streams of one kind owned by
// owner. Order is store-defined; callers must not rely on it.
func (uc *QueryUsecase) ListByOwner(ctx context.Context, kind string, owner string) ([]domain.Snapshot, error) {
	return uc.store.ListByOwner(ctx, kind, owner)
}

// ListAttestationsForTarget includes revoked attestations; each snapshot
// carries its current revoked flag and callers must check it.
func (uc *QueryUsecase) ListAttestationsForTarget(ctx context.Context, targetStreamID string) ([]domain.Snapshot, error) {
	return uc.store.ListAttestationsForTarget(ctx, targetStreamID)
}

func (uc *QueryUsecase) ResolveCurrentAccount(ctx context.Context) (string, error) {
	return uc.ident.CurrentIdentity(ctx)
}
