package models

import "github.com/google/uuid"

// ID prefixes, one per entity table
const (
	PrefixUser       = "USER"
	PrefixImage      = "IMAGE"
	PrefixImageLabel = "IMAGELABEL"
)

// NewID returns an opaque identifier of the form PREFIX-<uuid v4>.
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
