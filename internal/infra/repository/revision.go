package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/oklog/ulid/v2"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/attestry/attestry"
	"github.com/attestry/attestry/internal/domain"
	"github.com/attestry/attestry/internal/infra/database/models"
	"github.com/attestry/attestry/schemas"
)

const headCacheExpiration = 300 // seconds

// RevisionRepository persists streams in Postgres. The memcache client is
// optional; when present it serves head reads and is invalidated on every
// confirmed submit.
type RevisionRepository struct {
	db *gorm.DB
	mc *memcache.Client
}

func NewRevisionRepository(db *gorm.DB, mc *memcache.Client) *RevisionRepository {
	return &RevisionRepository{db: db, mc: mc}
}

func (r *RevisionRepository) Submit(ctx context.Context, sub domain.Submission) (attestry.CommitResult, error) {
	creating := sub.StreamID == nil

	streamID := ""
	if creating {
		streamID = ulid.Make().String()
	} else {
		streamID = *sub.StreamID
	}

	valueJSON, err := json.Marshal(sub.Value)
	if err != nil {
		return attestry.CommitResult{}, domain.SubmissionError{Err: err}
	}

	var result attestry.CommitResult

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var head models.StreamHead
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("stream_id = ?", streamID).
			Take(&head).Error

		previous := ""
		switch {
		case creating:
			if err == nil {
				return domain.SubmissionError{Err: pkgerrors.Errorf("stream id collision on %s", streamID)}
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(err, "locking stream head")
			}
		default:
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundError{Resource: "stream"}
			}
			if err != nil {
				return pkgerrors.Wrap(err, "locking stream head")
			}
			if sub.Previous == nil || *sub.Previous != head.HeadRevisionID {
				actual := ""
				if sub.Previous != nil {
					actual = *sub.Previous
				}
				return domain.ConflictError{StreamID: streamID, Expected: head.HeadRevisionID, Actual: actual}
			}
			previous = head.HeadRevisionID
		}

		revisionID := attestry.NewRevisionID(previous, []byte(sub.Document))

		anchor := time.Now().UTC()
		if !creating && !anchor.After(head.HeadAnchorTime) {
			anchor = head.HeadAnchorTime.Add(time.Microsecond)
		}

		revision := models.Revision{
			RevisionID:     revisionID,
			StreamID:       streamID,
			Value:          string(valueJSON),
			Document:       sub.Document,
			ProofType:      sub.Proof.Type,
			ProofSignature: sub.Proof.Signature,
			AnchorTime:     anchor,
		}
		if previous != "" {
			revision.PreviousID = &previous
		}

		if err := tx.Create(&revision).Error; err != nil {
			return pkgerrors.Wrap(err, "appending revision")
		}

		var singletonKey *string
		if def, derr := schemas.Get(sub.Kind); derr == nil && def.Singleton {
			key := sub.Owner + "|" + sub.Kind
			singletonKey = &key
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stream_id"}},
			DoUpdates: clause.Assignments(map[string]any{"head_revision_id": revisionID, "head_anchor_time": anchor}),
		}).Create(&models.StreamHead{
			StreamID:       streamID,
			Kind:           sub.Kind,
			Owner:          sub.Owner,
			HeadRevisionID: revisionID,
			HeadAnchorTime: anchor,
			SingletonKey:   singletonKey,
		}).Error
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Singleton backstop fired: another submit won the race.
				return domain.ConflictError{StreamID: streamID}
			}
			return pkgerrors.Wrap(err, "advancing stream head")
		}

		if creating && sub.Kind == schemas.AttestationURL {
			targetID, _ := sub.Value["targetID"].(string)
			err = tx.Clauses(clause.OnConflict{
				DoNothing: true,
			}).Create(&models.AttestationEdge{
				TargetID:      targetID,
				AttestationID: streamID,
				Owner:         sub.Owner,
			}).Error
			if err != nil {
				return pkgerrors.Wrap(err, "indexing attestation target")
			}
		}

		result = attestry.CommitResult{StreamID: streamID, RevisionID: revisionID}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrSubmission) {
			return attestry.CommitResult{}, err
		}
		return attestry.CommitResult{}, domain.SubmissionError{Err: err}
	}

	if r.mc != nil {
		r.mc.Delete(headCacheKey(streamID))
	}

	return result, nil
}

func (r *RevisionRepository) ReadChain(ctx context.Context, streamID string, asOf *time.Time) ([]domain.Revision, error) {
	var head models.StreamHead
	err := r.db.WithContext(ctx).
		Where("stream_id = ?", streamID).
		Take(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFoundError{Resource: "stream"}
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "resolving stream")
	}

	query := r.db.WithContext(ctx).Where("stream_id = ?", streamID)
	if asOf != nil {
		query = query.Where("anchor_time <= ?", asOf.UTC())
	}

	var rows []models.Revision
	if err := query.Order("anchor_time DESC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "reading chain")
	}
	if len(rows) == 0 {
		return nil, domain.NotFoundError{Resource: "revision"}
	}

	chain := make([]domain.Revision, 0, len(rows))
	for _, row := range rows {
		rev, err := toDomain(row, head)
		if err != nil {
			return nil, err
		}
		chain = append(chain, rev)
	}
	return chain, nil
}

func (r *RevisionRepository) GetLatest(ctx context.Context, streamID string) (domain.Revision, error) {
	if r.mc != nil {
		if item, err := r.mc.Get(headCacheKey(streamID)); err == nil {
			var rev domain.Revision
			if err := json.Unmarshal(item.Value, &rev); err == nil {
				return rev, nil
			}
		}
	}

	var head models.StreamHead
	err := r.db.WithContext(ctx).Preload("Head").
		Where("stream_id = ?", streamID).
		Take(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Revision{}, domain.NotFoundError{Resource: "stream"}
	}
	if err != nil {
		return domain.Revision{}, pkgerrors.Wrap(err, "resolving stream head")
	}

	rev, err := toDomain(head.Head, head)
	if err != nil {
		return domain.Revision{}, err
	}

	if r.mc != nil {
		if encoded, err := json.Marshal(rev); err == nil {
			r.mc.Set(&memcache.Item{
				Key:        headCacheKey(streamID),
				Value:      encoded,
				Expiration: headCacheExpiration,
			})
		}
	}

	return rev, nil
}

func (r *RevisionRepository) FindSingleton(ctx context.Context, kind string, owner string) (string, error) {
	key := owner + "|" + kind

	var head models.StreamHead
	err := r.db.WithContext(ctx).
		Where("singleton_key = ?", key).
		Take(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.NotFoundError{Resource: "stream"}
	}
	if err != nil {
		return "", pkgerrors.Wrap(err, "resolving singleton")
	}

	return head.StreamID, nil
}

func (r *RevisionRepository) ListByOwner(ctx context.Context, kind string, owner string) ([]domain.Snapshot, error) {
	var heads []models.StreamHead
	err := r.db.WithContext(ctx).Preload("Head").
		Where("kind = ? AND owner = ?", kind, owner).
		Find(&heads).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing streams by owner")
	}

	return headsToSnapshots(heads)
}

func (r *RevisionRepository) ListAttestationsForTarget(ctx context.Context, targetStreamID string) ([]domain.Snapshot, error) {
	var edges []models.AttestationEdge
	err := r.db.WithContext(ctx).Preload("Attestation.Head").
		Where("target_id = ?", targetStreamID).
		Find(&edges).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing attestations")
	}

	heads := make([]models.StreamHead, 0, len(edges))
	for _, edge := range edges {
		heads = append(heads, edge.Attestation)
	}
	return headsToSnapshots(heads)
}

func headCacheKey(streamID string) string {
	return "head:" + streamID
}

func toDomain(row models.Revision, head models.StreamHead) (domain.Revision, error) {
	var value map[string]any
	if err := json.Unmarshal([]byte(row.Value), &value); err != nil {
		return domain.Revision{}, pkgerrors.Wrap(err, "decoding revision value")
	}

	return domain.Revision{
		RevisionID: row.RevisionID,
		PreviousID: row.PreviousID,
		StreamID:   row.StreamID,
		Kind:       head.Kind,
		Owner:      head.Owner,
		Value:      value,
		Document:   row.Document,
		Proof:      attestry.Proof{Type: row.ProofType, Signature: row.ProofSignature},
		AnchorTime: row.AnchorTime,
	}, nil
}

func headsToSnapshots(heads []models.StreamHead) ([]domain.Snapshot, error) {
	snapshots := make([]domain.Snapshot, 0, len(heads))
	for _, head := range heads {
		rev, err := toDomain(head.Head, head)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, rev.Snapshot())
	}
	return snapshots, nil
}
