// Package models defines server-side data models persisted in the database.
package models

import "time"

// AccessType controls how the completed document is released.
type AccessType string

const (
	AccessPublic     AccessType = "public"
	AccessRestricted AccessType = "restricted"
)

// Document is the workflow subject. CurrentStep is a redundant cache of the
// phase-to-step mapping and is always written together with CurrentPhase.
// CompletedAt is set exactly once, when the phase becomes Completed.
//
// Distribution holds the recipient list the owner chose during the
// distribution phase; grants are materialized from it only at completion.
// IsPublic stays false until completion even when AccessType is public.
type Document struct {
	ID           string
	OwnerID      string
	Title        string
	CurrentPhase Phase
	CurrentStep  int
	IsPublic     bool
	AccessType   AccessType
	Distribution []string
	StorageKey   string
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
