package models

import "time"

// GrantKind distinguishes how a person came to hold view access.
type GrantKind string

const (
	GrantNamedRecipient GrantKind = "named-recipient"
	GrantPublic         GrantKind = "public"
)

// AccessGrant records that a person may view a completed document.
// Grants are materialized once, when the workflow completes.
type AccessGrant struct {
	ID             string
	DocumentID     string
	PersonID       string
	Kind           GrantKind
	LastAccessedAt *time.Time
	CreatedAt      time.Time
}
