package repository

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/attestry/attestry"
	"github.com/attestry/attestry/internal/domain"
	"github.com/attestry/attestry/schemas"
)

type memStream struct {
	kind      string
	owner     string
	revisions []domain.Revision // oldest first
}

// MemoryRevisionStore keeps streams in process memory. Used by tests and
// as the dev-mode store when no Postgres DSN is configured.
type MemoryRevisionStore struct {
	mu         sync.RWMutex
	streams    map[string]*memStream
	singletons map[string]string   // owner|kind -> streamID
	targets    map[string][]string // target streamID -> attestation streamIDs

	// Clock supplies anchor times. Overridable in tests; submissions still
	// get strictly increasing anchors per stream even on a frozen clock.
	Clock func() time.Time
}

func NewMemoryRevisionStore() *MemoryRevisionStore {
	return &MemoryRevisionStore{
		streams:    make(map[string]*memStream),
		singletons: make(map[string]string),
		targets:    make(map[string][]string),
		Clock:      time.Now,
	}
}

func (s *MemoryRevisionStore) Submit(ctx context.Context, sub domain.Submission) (attestry.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creating := sub.StreamID == nil

	streamID := ""
	if creating {
		streamID = ulid.Make().String()
	} else {
		streamID = *sub.StreamID
	}

	stream, ok := s.streams[streamID]
	previous := ""
	switch {
	case creating:
		if def, err := schemas.Get(sub.Kind); err == nil && def.Singleton {
			key := sub.Owner + "|" + sub.Kind
			if _, taken := s.singletons[key]; taken {
				return attestry.CommitResult{}, domain.ConflictError{StreamID: streamID}
			}
		}
		stream = &memStream{kind: sub.Kind, owner: sub.Owner}
	default:
		if !ok {
			return attestry.CommitResult{}, domain.NotFoundError{Resource: "stream"}
		}
		head := stream.revisions[len(stream.revisions)-1]
		if sub.Previous == nil || *sub.Previous != head.RevisionID {
			actual := ""
			if sub.Previous != nil {
				actual = *sub.Previous
			}
			return attestry.CommitResult{}, domain.ConflictError{StreamID: streamID, Expected: head.RevisionID, Actual: actual}
		}
		previous = head.RevisionID
	}

	revisionID := attestry.NewRevisionID(previous, []byte(sub.Document))

	anchor := s.Clock().UTC()
	if len(stream.revisions) > 0 {
		last := stream.revisions[len(stream.revisions)-1].AnchorTime
		if !anchor.After(last) {
			anchor = last.Add(time.Microsecond)
		}
	}

	revision := domain.Revision{
		RevisionID: revisionID,
		StreamID:   streamID,
		Kind:       sub.Kind,
		Owner:      sub.Owner,
		Value:      cloneValue(sub.Value),
		Document:   sub.Document,
		Proof:      sub.Proof,
		AnchorTime: anchor,
	}
	if previous != "" {
		revision.PreviousID = &previous
	}

	stream.revisions = append(stream.revisions, revision)

	if creating {
		s.streams[streamID] = stream
		if def, err := schemas.Get(sub.Kind); err == nil && def.Singleton {
			s.singletons[sub.Owner+"|"+sub.Kind] = streamID
		}
		if sub.Kind == schemas.AttestationURL {
			targetID, _ := sub.Value["targetID"].(string)
			s.targets[targetID] = append(s.targets[targetID], streamID)
		}
	}

	return attestry.CommitResult{StreamID: streamID, RevisionID: revisionID}, nil
}

func (s *MemoryRevisionStore) ReadChain(ctx context.Context, streamID string, asOf *time.Time) ([]domain.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, ok := s.streams[streamID]
	if !ok {
		return nil, domain.NotFoundError{Resource: "stream"}
	}

	chain := make([]domain.Revision, 0, len(stream.revisions))
	for i := len(stream.revisions) - 1; i >= 0; i-- {
		rev := stream.revisions[i]
		if asOf != nil && rev.AnchorTime.After(*asOf) {
			continue
		}
		chain = append(chain, rev)
	}
	if len(chain) == 0 {
		return nil, domain.NotFoundError{Resource: "revision"}
	}
	return chain, nil
}

func (s *MemoryRevisionStore) GetLatest(ctx context.Context, streamID string) (domain.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, ok := s.streams[streamID]
	if !ok {
		return domain.Revision{}, domain.NotFoundError{Resource: "stream"}
	}
	return stream.revisions[len(stream.revisions)-1], nil
}

func (s *MemoryRevisionStore) FindSingleton(ctx context.Context, kind string, owner string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	streamID, ok := s.singletons[owner+"|"+kind]
	if !ok {
		return "", domain.NotFoundError{Resource: "stream"}
	}
	return streamID, nil
}

func (s *MemoryRevisionStore) ListByOwner(ctx context.Context, kind string, owner string) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshots []domain.Snapshot
	for _, stream := range s.streams {
		if stream.kind != kind || stream.owner != owner {
			continue
		}
		head := stream.revisions[len(stream.revisions)-1]
		snapshots = append(snapshots, head.Snapshot())
	}
	return snapshots, nil
}

func (s *MemoryRevisionStore) ListAttestationsForTarget(ctx context.Context, targetStreamID string) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshots []domain.Snapshot
	for _, attestationID := range s.targets[targetStreamID] {
		stream, ok := s.streams[attestationID]
		if !ok {
			continue
		}
		head := stream.revisions[len(stream.revisions)-1]
		snapshots = append(snapshots, head.Snapshot())
	}
	return snapshots, nil
}

func cloneValue(value map[string]any) map[string]any {
	out := make(map[string]any, len(value))
	for name, v := range value {
		out[name] = v
	}
	return out
}
