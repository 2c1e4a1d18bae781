package models

import "time"

// Category partitions announcements and display credentials. A null
// announcement category means the row is global.
type Category struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
