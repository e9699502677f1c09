package model

import (
	"strings"
	"time"
)

// Part is created per distinct line-item description. The SKU is backfilled
// if a later sighting supplies one that a prior sighting lacked.
type Part struct {
	ID             string
	NormalizedDesc string
	SKU            string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NormalizePartDesc(desc string) string {
	return strings.ToLower(strings.Join(strings.Fields(desc), " "))
}
