package models

import (
	"time"
)

// Revision is one immutable row of a stream's hash-linked chain. Value is
// the materialized JSON after folding partial updates; Document keeps the
// raw signed mutation.
type Revision struct {
	RevisionID     string    `json:"revisionID" gorm:"primaryKey;type:text"`
	StreamID       string    `json:"streamID" gorm:"type:text;index"`
	PreviousID     *string   `json:"previousID" gorm:"type:text"`
	Value          string    `json:"value" gorm:"type:text"`
	Document       string    `json:"document" gorm:"type:text"`
	ProofType      string    `json:"proofType" gorm:"type:text"`
	ProofSignature string    `json:"proofSignature" gorm:"type:text"`
	AnchorTime     time.Time `json:"anchorTime" gorm:"type:timestamp with time zone;not null;index"`
	CDate          time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

// StreamHead tracks the current head of each stream. SingletonKey is set
// to owner|kind for singleton kinds; its unique index is the backstop
// against a double-submit racing the read-then-write upsert.
type StreamHead struct {
	StreamID       string    `json:"streamID" gorm:"primaryKey;type:text"`
	Kind           string    `json:"kind" gorm:"type:text;index"`
	Owner          string    `json:"owner" gorm:"type:text;index"`
	HeadRevisionID string    `json:"headRevisionID" gorm:"type:text"`
	Head           Revision  `json:"-" gorm:"foreignKey:HeadRevisionID;references:RevisionID"`
	HeadAnchorTime time.Time `json:"headAnchorTime" gorm:"type:timestamp with time zone;not null"`
	SingletonKey   *string   `json:"-" gorm:"type:text;uniqueIndex"`
	CDate          time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

// AttestationEdge indexes attestation streams by their target stream.
type AttestationEdge struct {
	TargetID      string     `json:"targetID" gorm:"primaryKey;type:text;index"`
	AttestationID string     `json:"attestationID" gorm:"primaryKey;type:text"`
	Attestation   StreamHead `json:"-" gorm:"foreignKey:AttestationID;references:StreamID;constraint:OnDelete:CASCADE;"`
	Owner         string     `json:"owner" gorm:"type:text"`
}
