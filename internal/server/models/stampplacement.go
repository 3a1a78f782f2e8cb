package models

import "time"

// StampPlacement is a positioned visual mark applied during the stamping
// phase. Geometry is opaque structured data (position/size/rotation) owned by
// the presentation layer; the workflow only stores it.
type StampPlacement struct {
	ID         string
	DocumentID string
	StampRef   string
	PersonID   string
	Page       int
	Geometry   []byte
	CreatedAt  time.Time
}
