package models

import "time"

// StandingSigner is a configured, priority-ordered appointment of a person to
// a recurring approval role family. Multiple appointments may exist per family
// for succession; resolution always picks the best-ranked active one.
type StandingSigner struct {
	ID            string
	PersonID      string
	RoleFamily    RoleFamily
	PriorityOrder int
	IsActive      bool
	CreatedAt     time.Time
}
