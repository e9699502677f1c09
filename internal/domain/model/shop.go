package model

import "time"

// Shop is created lazily on the first job or scan that references its id.
type Shop struct {
	ID        string
	ShopID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
