package usecase

import (
	"context"
	"errors"

	"github.com/attestry/attestry"
	"github.com/attestry/attestry/internal/domain"
	"github.com/attestry/attestry/schemas"
)

// CreateInput is the validated input for creating an entity stream.
type CreateInput struct {
	Kind   string
	Fields map[string]any
	Actor  string
	Raw    attestry.SignedDocument
}

// UpdateInput appends a revision to an existing stream. Base, when set,
// is the revision the caller derived Fields from; when nil the current
// head is used as the optimistic-concurrency base.
type UpdateInput struct {
	StreamID string
	Fields   map[string]any
	Actor    string
	Base     *string
	Raw      attestry.SignedDocument
}

type MutationUsecase struct {
	store RevisionStore
}

func NewMutationUsecase(store RevisionStore) *MutationUsecase {
	return &MutationUsecase{store: store}
}

func (uc *MutationUsecase) Create(ctx context.Context, input CreateInput) (attestry.CommitResult, error) {
	def, err := schemas.Get(input.Kind)
	if err != nil {
		return attestry.CommitResult{}, err
	}

	fields := cloneFields(input.Fields)

	if input.Kind == schemas.AttestationURL {
		if _, ok := fields["revoked"]; !ok {
			fields["revoked"] = false
		}
	}

	if err := def.ValidateCreate(fields); err != nil {
		return attestry.CommitResult{}, err
	}

	if input.Kind == schemas.AttestationURL {
		if err := uc.verifyPinnedVersions(ctx, fields); err != nil {
			return attestry.CommitResult{}, err
		}
	}

	if def.Singleton {
		existing, err := uc.store.FindSingleton(ctx, input.Kind, input.Actor)
		if err == nil {
			return uc.Update(ctx, UpdateInput{
				StreamID: existing,
				Fields:   input.Fields,
				Actor:    input.Actor,
				Raw:      input.Raw,
			})
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return attestry.CommitResult{}, err
		}
	}

	return uc.store.Submit(ctx, domain.Submission{
		Kind:     input.Kind,
		Owner:    input.Actor,
		Value:    fields,
		Document: input.Raw.Document,
		Proof:    input.Raw.Proof,
	})
}

func (uc *MutationUsecase) Update(ctx context.Context, input UpdateInput) (attestry.CommitResult, error) {
	head, err := uc.store.GetLatest(ctx, input.StreamID)
	if err != nil {
		return attestry.CommitResult{}, err
	}

	if head.Owner != input.Actor {
		return attestry.CommitResult{}, domain.NotAuthorizedError{Actor: input.Actor, StreamID: input.StreamID}
	}

	def, err := schemas.Get(head.Kind)
	if err != nil {
		return attestry.CommitResult{}, err
	}

	if err := def.ValidateUpdate(input.Fields); err != nil {
		return attestry.CommitResult{}, err
	}

	merged := cloneFields(head.Value)
	for name, value := range input.Fields {
		merged[name] = value
	}

	base := input.Base
	if base == nil {
		base = &head.RevisionID
	}

	return uc.store.Submit(ctx, domain.Submission{
		Kind:     head.Kind,
		StreamID: &input.StreamID,
		Owner:    head.Owner,
		Value:    merged,
		Document: input.Raw.Document,
		Proof:    input.Raw.Proof,
		Previous: base,
	})
}

// verifyPinnedVersions checks that the attested revisions actually exist
// in their streams. Any account may attest to any visible entity, so no
// ownership check happens here.
func (uc *MutationUsecase) verifyPinnedVersions(ctx context.Context, fields map[string]any) error {
	pairs := []struct {
		stream  string
		version string
	}{
		{"targetID", "targetVersion"},
		{"claimID", "claimVersion"},
	}

	for _, pair := range pairs {
		streamID, _ := fields[pair.stream].(string)
		version, _ := fields[pair.version].(string)

		chain, err := uc.store.ReadChain(ctx, streamID, nil)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ValidationError{Field: pair.stream, Reason: "unknown stream"}
			}
			return err
		}

		found := false
		for _, rev := range chain {
			if rev.RevisionID == version {
				found = true
				break
			}
		}
		if !found {
			return domain.ValidationError{Field: pair.version, Reason: "revision not in stream"}
		}
	}

	return nil
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for name, value := range fields {
		out[name] = value
	}
	return out
}
