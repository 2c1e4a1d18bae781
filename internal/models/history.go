package models

import "time"

// Announcement lifecycle actions recorded in the history ledger.
const (
	HistoryActionCreated = "created"
	HistoryActionUpdated = "updated"
	HistoryActionDeleted = "deleted"
	HistoryActionExpired = "expired"
)

// System audit actions recorded through the same ledger.
const (
	HistoryActionLogin             = "login"
	HistoryActionLogout            = "logout"
	HistoryActionCategoryCreated   = "category_created"
	HistoryActionCategoryDeleted   = "category_deleted"
	HistoryActionCredentialCreated = "credential_created"
	HistoryActionCredentialDeleted = "credential_deleted"
	HistoryActionLiveStarted       = "live_started"
	HistoryActionLiveStopped       = "live_stopped"
)

// HistoryMode selects the on-disk shape of the history table.
type HistoryMode int

const (
	// HistoryModeUnknown means the schema has not been probed yet.
	HistoryModeUnknown HistoryMode = iota
	// HistoryModeLegacy stores a foreign announcement id plus a JSON snapshot.
	HistoryModeLegacy
	// HistoryModeModern duplicates the announcement's flat columns directly.
	HistoryModeModern
)

// HistoryEntry is the normalised view of an audit row regardless of the
// storage mode it was written in.
type HistoryEntry struct {
	ID           string       `json:"id"`
	Announcement Announcement `json:"announcement"`
	Action       string       `json:"action"`
	ActionAt     time.Time    `json:"action_at"`
	UserEmail    string       `json:"user_email"`
}
