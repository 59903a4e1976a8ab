package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/attestry/attestry/internal/domain"
	"github.com/attestry/attestry/schemas"
)

type fakeIdentity struct {
	aid string
}

func (f *fakeIdentity) CurrentIdentity(ctx context.Context) (string, error) {
	if f.aid == "" {
		return "", domain.UnauthenticatedError{}
	}
	return f.aid, nil
}

func seedChain(store *fakeStore, streamID string, anchors ...time.Time) {
	prev := ""
	var chain []domain.Revision
	for i, anchor := range anchors {
		rev := domain.Revision{
			RevisionID: streamID + "-r" + string(rune('1'+i)),
			StreamID:   streamID,
			Kind:       schemas.ResearchObjectURL,
			Owner:      "aid1owner",
			Value:      map[string]any{"title": "v" + string(rune('1'+i)), "manifest": testCID},
			AnchorTime: anchor,
		}
		if prev != "" {
			p := prev
			rev.PreviousID = &p
		}
		prev = rev.RevisionID
		// newest first
		chain = append([]domain.Revision{rev}, chain...)
	}
	store.chains[streamID] = chain
	store.heads[streamID] = chain[0]
}

func TestQueryGetEntityLatest(t *testing.T) {
	store := newFakeStore()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedChain(store, "ro", t0, t0.Add(time.Minute), t0.Add(2*time.Minute))
	uc := NewQueryUsecase(store, &fakeIdentity{})

	snapshot, err := uc.GetEntity(context.Background(), "ro", nil)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if snapshot.Fields["title"] != "v3" {
		t.Fatalf("expected head snapshot, got %+v", snapshot.Fields)
	}
}

func TestQueryGetEntityAsOf(t *testing.T) {
	store := newFakeStore()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedChain(store, "ro", t0, t0.Add(time.Minute), t0.Add(2*time.Minute))
	uc := NewQueryUsecase(store, &fakeIdentity{})

	between := t0.Add(90 * time.Second)
	snapshot, err := uc.GetEntity(context.Background(), "ro", &between)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if snapshot.Fields["title"] != "v2" {
		t.Fatalf("expected second revision at asOf, got %+v", snapshot.Fields)
	}

	exact := t0.Add(time.Minute)
	snapshot, err = uc.GetEntity(context.Background(), "ro", &exact)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if snapshot.Fields["title"] != "v2" {
		t.Fatalf("anchor time equal to asOf must qualify, got %+v", snapshot.Fields)
	}
}

func TestQueryGetEntityBeforeFirstAnchor(t *testing.T) {
	store := newFakeStore()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedChain(store, "ro", t0, t0.Add(time.Minute))
	uc := NewQueryUsecase(store, &fakeIdentity{})

	early := t0.Add(-time.Second)
	_, err := uc.GetEntity(context.Background(), "ro", &early)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFoundError before first anchor, got %v", err)
	}
}

func TestQueryTemporalMonotonicity(t *testing.T) {
	store := newFakeStore()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedChain(store, "ro", t0, t0.Add(time.Minute), t0.Add(2*time.Minute), t0.Add(3*time.Minute))
	uc := NewQueryUsecase(store, &fakeIdentity{})

	var lastAnchor time.Time
	for offset := time.Duration(0); offset <= 4*time.Minute; offset += 30 * time.Second {
		asOf := t0.Add(offset)
		snapshot, err := uc.GetEntity(context.Background(), "ro", &asOf)
		if err != nil {
			t.Fatalf("get at %v failed: %v", asOf, err)
		}
		if snapshot.AnchorTime.Before(lastAnchor) {
			t.Fatalf("later asOf resolved to an earlier revision: %v < %v", snapshot.AnchorTime, lastAnchor)
		}
		lastAnchor = snapshot.AnchorTime
	}
}

func TestQueryGetEntityDeterministic(t *testing.T) {
	store := newFakeStore()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedChain(store, "ro", t0, t0.Add(time.Minute))
	uc := NewQueryUsecase(store, &fakeIdentity{})

	asOf := t0.Add(30 * time.Second)
	first, err := uc.GetEntity(context.Background(), "ro", &asOf)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	second, err := uc.GetEntity(context.Background(), "ro", &asOf)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if first.RevisionID != second.RevisionID {
		t.Fatalf("same (stream, asOf) must resolve identically: %s vs %s", first.RevisionID, second.RevisionID)
	}
}

func TestQueryListAttestationsIncludesRevoked(t *testing.T) {
	store := newFakeStore()
	store.attestations["ro"] = []domain.Snapshot{
		{StreamID: "att1", Kind: schemas.AttestationURL, Fields: map[string]any{"revoked": false}},
		{StreamID: "att2", Kind: schemas.AttestationURL, Fields: map[string]any{"revoked": true}},
	}
	uc := NewQueryUsecase(store, &fakeIdentity{})

	snapshots, err := uc.ListAttestationsForTarget(context.Background(), "ro")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("revoked attestations must remain listed, got %d", len(snapshots))
	}
}

func TestQueryResolveCurrentAccount(t *testing.T) {
	store := newFakeStore()

	uc := NewQueryUsecase(store, &fakeIdentity{aid: "aid1viewer"})
	aid, err := uc.ResolveCurrentAccount(context.Background())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if aid != "aid1viewer" {
		t.Fatalf("unexpected viewer %s", aid)
	}

	uc = NewQueryUsecase(store, &fakeIdentity{})
	_, err = uc.ResolveCurrentAccount(context.Background())
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected UnauthenticatedError, got %v", err)
	}
}
