package model

import (
	"strings"
	"time"
)

// Supplier is created on first sighting of a new normalized name; every
// subsequent sighting with a new surface form appends an alias.
type Supplier struct {
	ID             string
	NormalizedName string
	Aliases        []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeSupplierName lowercases and trims a supplier surface form so that
// "ACME Corp " and "acme corp" resolve to the same supplier.
func NormalizeSupplierName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// HasAlias reports whether the given surface form has been seen before.
func (s *Supplier) HasAlias(surface string) bool {
	for _, a := range s.Aliases {
		if a == surface {
			return true
		}
	}
	return false
}
