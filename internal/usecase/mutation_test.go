package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/attestry/attestry"
	"github.com/attestry/attestry/internal/domain"
	"github.com/attestry/attestry/schemas"
)

const testCID = "bafybeibeaampol2yz5xuoxex7dxri6ztqveqrybzfh5obz6jrul5gb4cf4"

// --- fake store ---

type fakeStore struct {
	heads        map[string]domain.Revision
	chains       map[string][]domain.Revision // newest first
	singletons   map[string]string
	attestations map[string][]domain.Snapshot
	submitted    []domain.Submission
	nextStream   string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		heads:        make(map[string]domain.Revision),
		chains:       make(map[string][]domain.Revision),
		singletons:   make(map[string]string),
		attestations: make(map[string][]domain.Snapshot),
		nextStream:   "stream-new",
	}
}

func (f *fakeStore) Submit(ctx context.Context, sub domain.Submission) (attestry.CommitResult, error) {
	streamID := f.nextStream
	if sub.StreamID != nil {
		streamID = *sub.StreamID
		head, ok := f.heads[streamID]
		if !ok {
			return attestry.CommitResult{}, domain.NotFoundError{Resource: "stream"}
		}
		if sub.Previous == nil || *sub.Previous != head.RevisionID {
			actual := ""
			if sub.Previous != nil {
				actual = *sub.Previous
			}
			return attestry.CommitResult{}, domain.ConflictError{StreamID: streamID, Expected: head.RevisionID, Actual: actual}
		}
	}

	f.submitted = append(f.submitted, sub)
	revisionID := fmt.Sprintf("rev-%d", len(f.submitted))

	f.heads[streamID] = domain.Revision{
		RevisionID: revisionID,
		StreamID:   streamID,
		Kind:       sub.Kind,
		Owner:      sub.Owner,
		Value:      sub.Value,
		AnchorTime: time.Now(),
	}

	if def, err := schemas.Get(sub.Kind); err == nil && def.Singleton && sub.StreamID == nil {
		f.singletons[sub.Owner+"|"+sub.Kind] = streamID
	}

	return attestry.CommitResult{StreamID: streamID, RevisionID: revisionID}, nil
}

func (f *fakeStore) ReadChain(ctx context.Context, streamID string, asOf *time.Time) ([]domain.Revision, error) {
	if chain, ok := f.chains[streamID]; ok {
		if asOf == nil {
			return chain, nil
		}
		var filtered []domain.Revision
		for _, rev := range chain {
			if !rev.AnchorTime.After(*asOf) {
				filtered = append(filtered, rev)
			}
		}
		if len(filtered) == 0 {
			return nil, domain.NotFoundError{Resource: "revision"}
		}
		return filtered, nil
	}
	if head, ok := f.heads[streamID]; ok {
		return []domain.Revision{head}, nil
	}
	return nil, domain.NotFoundError{Resource: "stream"}
}

func (f *fakeStore) GetLatest(ctx context.Context, streamID string) (domain.Revision, error) {
	head, ok := f.heads[streamID]
	if !ok {
		return domain.Revision{}, domain.NotFoundError{Resource: "stream"}
	}
	return head, nil
}

func (f *fakeStore) FindSingleton(ctx context.Context, kind string, owner string) (string, error) {
	streamID, ok := f.singletons[owner+"|"+kind]
	if !ok {
		return "", domain.NotFoundError{Resource: "stream"}
	}
	return streamID, nil
}

func (f *fakeStore) ListByOwner(ctx context.Context, kind string, owner string) ([]domain.Snapshot, error) {
	var out []domain.Snapshot
	for _, head := range f.heads {
		if head.Kind == kind && head.Owner == owner {
			out = append(out, head.Snapshot())
		}
	}
	return out, nil
}

func (f *fakeStore) ListAttestationsForTarget(ctx context.Context, targetStreamID string) ([]domain.Snapshot, error) {
	return f.attestations[targetStreamID], nil
}

// --- tests ---

func TestMutationCreateResearchObject(t *testing.T) {
	store := newFakeStore()
	uc := NewMutationUsecase(store)

	result, err := uc.Create(context.Background(), CreateInput{
		Kind:   schemas.ResearchObjectURL,
		Fields: map[string]any{"title": "Test", "manifest": testCID},
		Actor:  "aid1owner",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if result.StreamID == "" || result.RevisionID == "" {
		t.Fatalf("expected stream and revision ids, got %+v", result)
	}

	sub := store.submitted[0]
	if sub.StreamID != nil {
		t.Fatalf("create must not target an existing stream")
	}
	if sub.Owner != "aid1owner" {
		t.Fatalf("owner must be the acting identity, got %s", sub.Owner)
	}
	if sub.Value["title"] != "Test" {
		t.Fatalf("submitted value mismatch: %+v", sub.Value)
	}
}

func TestMutationCreateValidationFailsBeforeSubmit(t *testing.T) {
	store := newFakeStore()
	uc := NewMutationUsecase(store)

	_, err := uc.Create(context.Background(), CreateInput{
		Kind:   schemas.ResearchObjectURL,
		Fields: map[string]any{"title": "Test"},
		Actor:  "aid1owner",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(store.submitted) != 0 {
		t.Fatalf("invalid payload must never be submitted")
	}
}

func TestMutationCreateUnknownKind(t *testing.T) {
	uc := NewMutationUsecase(newFakeStore())

	_, err := uc.Create(context.Background(), CreateInput{
		Kind:   "https://schemas.attestry.dev/nope.json",
		Fields: map[string]any{},
		Actor:  "aid1owner",
	})
	if !errors.Is(err, domain.ErrSchemaNotFound) {
		t.Fatalf("expected SchemaNotFoundError, got %v", err)
	}
}

func TestMutationProfileCreateIsUpsert(t *testing.T) {
	store := newFakeStore()
	uc := NewMutationUsecase(store)

	first, err := uc.Create(context.Background(), CreateInput{
		Kind:   schemas.ProfileURL,
		Fields: map[string]any{"displayName": "My Name", "orcid": "@handle"},
		Actor:  "aid1owner",
	})
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	second, err := uc.Create(context.Background(), CreateInput{
		Kind:   schemas.ProfileURL,
		Fields: map[string]any{"displayName": "New Name", "orcid": "@handle"},
		Actor:  "aid1owner",
	})
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}

	if first.StreamID != second.StreamID {
		t.Fatalf("repeated profile create must converge to one stream: %s vs %s", first.StreamID, second.StreamID)
	}
	if first.RevisionID == second.RevisionID {
		t.Fatalf("upsert must produce a new revision")
	}

	last := store.submitted[len(store.submitted)-1]
	if last.StreamID == nil || *last.StreamID != first.StreamID {
		t.Fatalf("second create must be redirected to the existing stream")
	}
	if last.Value["displayName"] != "New Name" {
		t.Fatalf("upsert value mismatch: %+v", last.Value)
	}
}

func TestMutationProfileUpsertKeepsOtherOwnersApart(t *testing.T) {
	store := newFakeStore()
	uc := NewMutationUsecase(store)

	first, err := uc.Create(context.Background(), CreateInput{
		Kind:   schemas.ProfileURL,
		Fields: map[string]any{"displayName": "A", "orcid": "0000-0001"},
		Actor:  "aid1usera",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	store.nextStream = "stream-b"
	second, err := uc.Create(context.Background(), CreateInput{
		Kind:   schemas.ProfileURL,
		Fields: map[string]any{"displayName": "B", "orcid": "0000-0002"},
		Actor:  "aid1userb",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if first.StreamID == second.StreamID {
		t.Fatalf("profiles of different owners must live in different streams")
	}
}

func TestMutationAttestationDefaultsRevoked(t *testing.T) {
	store := newFakeStore()
	store.chains["target"] = []domain.Revision{{RevisionID: "t1", StreamID: "target"}}
	store.chains["claim"] = []domain.Revision{{RevisionID: "c1", StreamID: "claim"}}
	uc := NewMutationUsecase(store)

	_, err := uc.Create(context.Background(), CreateInput{
		Kind: schemas.AttestationURL,
		Fields: map[string]any{
			"targetID":      "target",
			"targetVersion": "t1",
			"claimID":       "claim",
			"claimVersion":  "c1",
		},
		Actor: "aid1attester",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if store.submitted[0].Value["revoked"] != false {
		t.Fatalf("revoked must default to false")
	}
}

func TestMutationAttestationPinnedVersionMustExist(t *testing.T) {
	store := newFakeStore()
	store.chains["target"] = []domain.Revision{{RevisionID: "t2", StreamID: "target"}, {RevisionID: "t1", StreamID: "target"}}
	store.chains["claim"] = []domain.Revision{{RevisionID: "c1", StreamID: "claim"}}
	uc := NewMutationUsecase(store)

	_, err := uc.Create(context.Background(), CreateInput{
		Kind: schemas.AttestationURL,
		Fields: map[string]any{
			"targetID":      "target",
			"targetVersion": "t9",
			"claimID":       "claim",
			"claimVersion":  "c1",
		},
		Actor: "aid1attester",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ValidationError for missing revision, got %v", err)
	}
	if len(store.submitted) != 0 {
		t.Fatalf("invalid attestation must never be submitted")
	}
}

func TestMutationAttestationUnknownTargetStream(t *testing.T) {
	store := newFakeStore()
	store.chains["claim"] = []domain.Revision{{RevisionID: "c1", StreamID: "claim"}}
	uc := NewMutationUsecase(store)

	_, err := uc.Create(context.Background(), CreateInput{
		Kind: schemas.AttestationURL,
		Fields: map[string]any{
			"targetID":      "ghost",
			"targetVersion": "t1",
			"claimID":       "claim",
			"claimVersion":  "c1",
		},
		Actor: "aid1attester",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ValidationError for unknown stream, got %v", err)
	}
}

func TestMutationUpdateMergesPartialFields(t *testing.T) {
	store := newFakeStore()
	store.heads["ro"] = domain.Revision{
		RevisionID: "r1",
		StreamID:   "ro",
		Kind:       schemas.ResearchObjectURL,
		Owner:      "aid1owner",
		Value:      map[string]any{"title": "Old", "manifest": testCID},
	}
	uc := NewMutationUsecase(store)

	result, err := uc.Update(context.Background(), UpdateInput{
		StreamID: "ro",
		Fields:   map[string]any{"title": "New"},
		Actor:    "aid1owner",
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if result.StreamID != "ro" {
		t.Fatalf("update must keep the stream id")
	}

	sub := store.submitted[0]
	if sub.Value["title"] != "New" {
		t.Fatalf("updated field lost: %+v", sub.Value)
	}
	if sub.Value["manifest"] != testCID {
		t.Fatalf("unspecified field must retain prior value: %+v", sub.Value)
	}
	if sub.Previous == nil || *sub.Previous != "r1" {
		t.Fatalf("update must link to the prior revision")
	}
}

func TestMutationUpdateNotAuthorized(t *testing.T) {
	store := newFakeStore()
	store.heads["ro"] = domain.Revision{
		RevisionID: "r1",
		StreamID:   "ro",
		Kind:       schemas.ResearchObjectURL,
		Owner:      "aid1owner",
		Value:      map[string]any{"title": "Old", "manifest": testCID},
	}
	uc := NewMutationUsecase(store)

	_, err := uc.Update(context.Background(), UpdateInput{
		StreamID: "ro",
		Fields:   map[string]any{"title": "Stolen"},
		Actor:    "aid1thief",
	})
	if !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected NotAuthorizedError, got %v", err)
	}
	if len(store.submitted) != 0 {
		t.Fatalf("unauthorized update must never be submitted")
	}
}

func TestMutationUpdateUnknownStream(t *testing.T) {
	uc := NewMutationUsecase(newFakeStore())

	_, err := uc.Update(context.Background(), UpdateInput{
		StreamID: "ghost",
		Fields:   map[string]any{"title": "X"},
		Actor:    "aid1owner",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestMutationAttestationUpdateOnlyRevoked(t *testing.T) {
	store := newFakeStore()
	store.heads["att"] = domain.Revision{
		RevisionID: "a1",
		StreamID:   "att",
		Kind:       schemas.AttestationURL,
		Owner:      "aid1attester",
		Value: map[string]any{
			"targetID":      "target",
			"targetVersion": "t1",
			"claimID":       "claim",
			"claimVersion":  "c1",
			"revoked":       false,
		},
	}
	uc := NewMutationUsecase(store)

	_, err := uc.Update(context.Background(), UpdateInput{
		StreamID: "att",
		Fields:   map[string]any{"targetID": "other"},
		Actor:    "aid1attester",
	})
	if !errors.Is(err, domain.ErrImmutableField) {
		t.Fatalf("expected ImmutableFieldError, got %v", err)
	}

	_, err = uc.Update(context.Background(), UpdateInput{
		StreamID: "att",
		Fields:   map[string]any{"revoked": true},
		Actor:    "aid1attester",
	})
	if err != nil {
		t.Fatalf("revocation failed: %v", err)
	}

	sub := store.submitted[len(store.submitted)-1]
	if sub.Value["revoked"] != true {
		t.Fatalf("revoked flag not set: %+v", sub.Value)
	}
	if sub.Value["targetID"] != "target" {
		t.Fatalf("pinned fields must carry over unchanged: %+v", sub.Value)
	}
}

func TestMutationUpdateStaleBase(t *testing.T) {
	store := newFakeStore()
	store.heads["ro"] = domain.Revision{
		RevisionID: "r2",
		StreamID:   "ro",
		Kind:       schemas.ResearchObjectURL,
		Owner:      "aid1owner",
		Value:      map[string]any{"title": "Old", "manifest": testCID},
	}
	uc := NewMutationUsecase(store)

	stale := "r1"
	_, err := uc.Update(context.Background(), UpdateInput{
		StreamID: "ro",
		Fields:   map[string]any{"title": "New"},
		Actor:    "aid1owner",
		Base:     &stale,
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}
