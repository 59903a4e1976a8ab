package domain

import (
	"time"

	"github.com/attestry/attestry"
)

// Revision is one confirmed, immutable snapshot in a stream's chain.
// Value holds the materialized fields at this revision (partial updates
// already folded in); Document keeps the raw signed mutation for audit.
type Revision struct {
	RevisionID string         `json:"revisionID"`
	PreviousID *string        `json:"previousID,omitempty"`
	StreamID   string         `json:"streamID"`
	Kind       string         `json:"kind"`
	Owner      string         `json:"owner"`
	Value      map[string]any `json:"value"`
	Document   string         `json:"document"`
	Proof      attestry.Proof `json:"proof"`
	AnchorTime time.Time      `json:"anchorTime"`
}

// Snapshot is the read view of an entity at one revision.
type Snapshot struct {
	StreamID   string         `json:"streamID"`
	RevisionID string         `json:"revisionID"`
	Kind       string         `json:"kind"`
	Owner      string         `json:"owner"`
	Fields     map[string]any `json:"fields"`
	AnchorTime time.Time      `json:"anchorTime"`
}

func (r Revision) Snapshot() Snapshot {
	return Snapshot{
		StreamID:   r.StreamID,
		RevisionID: r.RevisionID,
		Kind:       r.Kind,
		Owner:      r.Owner,
		Fields:     r.Value,
		AnchorTime: r.AnchorTime,
	}
}

// Submission is a validated mutation handed to the revision store.
// StreamID nil allocates a new stream. Previous nil means the stream is
// expected to have no head yet.
type Submission struct {
	Kind     string
	StreamID *string
	Owner    string
	Value    map[string]any
	Document string
	Proof    attestry.Proof
	Previous *string
}
