package models

import "time"

// Live broadcast statuses stored on the singleton live_state row.
const (
	LiveStatusOn  = "ON"
	LiveStatusOff = "OFF"
)

// LiveStateID is the fixed id of the singleton row.
const LiveStateID = 1

// LiveState holds the current broadcast status. When the backing table is
// absent the live service keeps an in-process mirror instead; that mirror
// resets on restart.
type LiveState struct {
	Status    string     `json:"status"`
	Link      *string    `json:"link"`
	Links     []string   `json:"links"`
	Category  *string    `json:"category"`
	StartedAt *time.Time `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
