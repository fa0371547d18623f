package events

import "time"

// AuthUserDeleted describes the payload delivered when the authentication
// provider reports an account removed.
type AuthUserDeleted struct {
	UserID    string    `json:"userId"`
	DeletedAt time.Time `json:"deletedAt,omitempty"`
}

// UserSnapshot is the subset of a user document the deletion triggers care about.
type UserSnapshot struct {
	UserID            string `json:"userId"`
	Username          string `json:"username"`
	DeletionPending   bool   `json:"deletionPending"`
	DeletionRequested bool   `json:"deletionRequested"`
}

// UserDocumentUpdated carries the before/after snapshots of a user document update.
type UserDocumentUpdated struct {
	UserID string       `json:"userId"`
	Before UserSnapshot `json:"before"`
	After  UserSnapshot `json:"after"`
}
