package deletion

import (
	"context"
	"time"
)

// Firestore collection names. These are the wire contract shared with the
// mobile client and must not change independently of it.
const (
	CollectionUsers            = "users"
	CollectionUsernames        = "usernames"
	CollectionNotifications    = "notifications"
	CollectionMessages         = "messages"
	CollectionDeletionFailures = "deletion_failures"
	CollectionDeletionLogs     = "deletionLogs"
	CollectionDeletionStats    = "deletionStats"
)

// DeletedUserLabel replaces the sender of every message left behind by a
// deleted account.
const DeletedUserLabel = "[Deleted User]"

// DefaultBatchSize bounds a single batched write, matching the store's
// maximum atomic batch size.
const DefaultBatchSize = 500

// MessageKind discriminates maypole (broadcast) messages from direct messages.
type MessageKind string

const (
	KindPlace  MessageKind = "place"
	KindDirect MessageKind = "direct"
)

// User represents the persisted user document.
type User struct {
	UserID            string `json:"userId" firestore:"-"`
	Username          string `json:"username" firestore:"username"`
	DeletionPending   bool   `json:"deletionPending" firestore:"deletionPending"`
	DeletionRequested bool   `json:"deletionRequested" firestore:"deletionRequested"`
	DeletionFailed    bool   `json:"deletionFailed" firestore:"deletionFailed"`
	DeletionError     string `json:"deletionError,omitempty" firestore:"deletionError"`
}

// Message is the subset of a message document the scrubber touches. The
// sender is a denormalized username label, not a stable reference.
type Message struct {
	Sender string      `json:"sender" firestore:"sender"`
	Kind   MessageKind `json:"type" firestore:"type"`
}

// DocRef is an opaque reference to a stored document, used to batch writes
// without refetching.
type DocRef struct {
	Path string
}

// FailureRecord is appended to the deletion_failures collection when a
// cleanup run fails.
type FailureRecord struct {
	UserID   string `firestore:"userId"`
	Username string `firestore:"username,omitempty"`
	Error    string `firestore:"error"`
}

// CompletionRecord is appended to deletionLogs when a cleanup run finishes.
type CompletionRecord struct {
	UserID   string `firestore:"userId"`
	Username string `firestore:"username"`
	Status   string `firestore:"status"`
}

// StatsRecord is appended to deletionStats with per-kind scrub counts.
type StatsRecord struct {
	Username               string `firestore:"username"`
	MaypoleMessagesUpdated int    `firestore:"maypoleMessagesUpdated"`
	DirectMessagesUpdated  int    `firestore:"directMessagesUpdated"`
}

// Store is the document-store surface the workflow needs. Every destructive
// operation is idempotent: deleting something already gone succeeds.
type Store interface {
	// GetUser returns ErrNotFound when the user document does not exist.
	GetUser(ctx context.Context, userID string) (*User, error)
	// MarkDeletionFailed annotates the user document for manual review.
	// Returns ErrNotFound when the document is already gone.
	MarkDeletionFailed(ctx context.Context, userID, errText string) error
	DeleteUser(ctx context.Context, userID string) error
	// DeleteUsername removes the reservation keyed by the lower-cased username.
	DeleteUsername(ctx context.Context, username string) error
	// ListMessageRefs returns references to every message across all threads
	// whose sender label and kind match.
	ListMessageRefs(ctx context.Context, sender string, kind MessageKind) ([]DocRef, error)
	ListNotificationRefs(ctx context.Context, userID string) ([]DocRef, error)
	// RewriteSenders sets the sender field on every referenced message as a
	// single atomic batch. len(refs) must not exceed the store's batch limit.
	RewriteSenders(ctx context.Context, refs []DocRef, sender string) error
	// DeleteRefs removes every referenced document as a single atomic batch.
	DeleteRefs(ctx context.Context, refs []DocRef) error
}

// AuthAdmin is the authentication-provider surface the workflow needs.
type AuthAdmin interface {
	// DeleteAccount returns ErrNotFound when the account is already absent.
	DeleteAccount(ctx context.Context, userID string) error
}

// Sink receives best-effort diagnostic records. Implementations must never
// let a write failure escape; a lost diagnostic is logged and swallowed.
type Sink interface {
	RecordFailure(ctx context.Context, rec FailureRecord)
	RecordCompletion(ctx context.Context, rec CompletionRecord)
	RecordStats(ctx context.Context, rec StatsRecord)
}

// StepResult reports the outcome of one cleanup step.
type StepResult struct {
	Step  string    `json:"step"`
	Count int       `json:"count,omitempty"`
	Err   error     `json:"-"`
	At    time.Time `json:"at"`
}

// Report is the structured outcome of a full cleanup run. Steps run
// best-effort: a failed step is recorded and the run continues.
type Report struct {
	UserID   string       `json:"userId"`
	Username string       `json:"username"`
	Steps    []StepResult `json:"steps"`
}

// Failed returns the results of every step that errored.
func (r *Report) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}
