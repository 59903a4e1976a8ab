package attestry

import (
	"time"
)

// Document is the payload of a single mutation against a stream.
// StreamID is nil when the document creates a new stream. Value carries
// only the fields being set; unspecified fields keep their prior value.
type Document[T any] struct {
	StreamID *string `json:"streamID,omitempty"`
	Kind     string  `json:"kind"`
	Value    T       `json:"value"`

	Author string `json:"author"`

	// Previous is the revision the author based this mutation on.
	// The store rejects the submission when it no longer matches the head.
	Previous *string `json:"previous,omitempty"`

	SignedAt time.Time `json:"signedAt"`
}

type Proof struct {
	Type      string `json:"type"`
	Signature string `json:"signature"`
}

type SignedDocument struct {
	Document string `json:"document"`
	Proof    Proof  `json:"proof"`
}

// CommitResult identifies the confirmed revision of a submitted mutation.
type CommitResult struct {
	StreamID   string `json:"streamID"`
	RevisionID string `json:"revisionID"`
}

// Event is broadcast over the realtime feed when a revision is confirmed.
type Event struct {
	StreamID   string    `json:"streamID"`
	Kind       string    `json:"kind"`
	RevisionID string    `json:"revisionID"`
	Owner      string    `json:"owner"`
	AnchorTime time.Time `json:"anchorTime"`
}

type AttestryEndpoint struct {
	Template string    `json:"template"`
	Method   string    `json:"method"`
	Query    *[]string `json:"query,omitempty"`
}

type WellKnownAttestry struct {
	Version   string                      `json:"version"`
	Domain    string                      `json:"domain"`
	AID       string                      `json:"aid"`
	Endpoints map[string]AttestryEndpoint `json:"endpoints"`
}
