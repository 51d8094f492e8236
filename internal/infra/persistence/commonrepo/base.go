package commonrepo

import "time"

// Mode is the shared column set. IDs are UUID strings assigned by the domain
// layer, never by the database.
type Mode struct {
	ID        string    `gorm:"primarykey;size:36"`
	CreatedAt time.Time `gorm:"index;autoCreateTime"`
	UpdatedAt time.Time `gorm:"index;autoUpdateTime"`
}
