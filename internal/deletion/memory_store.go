package deletion

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore implements Store using in-memory storage. It backs local
// development (DATASTORE=memory) and package tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]User
	usernames     map[string]string // lower-cased username -> userID
	messages      map[string]Message
	notifications map[string]string // path -> owning userID

	rewriteBatches int
	deleteBatches  int
	writes         int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]User),
		usernames:     make(map[string]string),
		messages:      make(map[string]Message),
		notifications: make(map[string]string),
	}
}

// SeedUser stores a user document and its username reservation.
func (s *MemoryStore) SeedUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
	if u.Username != "" {
		s.usernames[strings.ToLower(u.Username)] = u.UserID
	}
}

// SeedMessage stores a message document at the given path.
func (s *MemoryStore) SeedMessage(path string, m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[path] = m
}

// SeedNotification stores a notification document for the given user.
func (s *MemoryStore) SeedNotification(userID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := CollectionUsers + "/" + userID + "/" + CollectionNotifications + "/" + id
	s.notifications[path] = userID
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *MemoryStore) MarkDeletionFailed(_ context.Context, userID, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return ErrNotFound
	}
	user.DeletionFailed = true
	user.DeletionError = errText
	s.users[userID] = user
	s.writes++
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[userID]; exists {
		delete(s.users, userID)
		s.writes++
	}
	return nil
}

func (s *MemoryStore) DeleteUsername(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	if _, exists := s.usernames[key]; exists {
		delete(s.usernames, key)
		s.writes++
	}
	return nil
}

func (s *MemoryStore) ListMessageRefs(_ context.Context, sender string, kind MessageKind) ([]DocRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []DocRef
	for path, m := range s.messages {
		if m.Sender == sender && m.Kind == kind {
			refs = append(refs, DocRef{Path: path})
		}
	}
	sortRefs(refs)
	return refs, nil
}

func (s *MemoryStore) ListNotificationRefs(_ context.Context, userID string) ([]DocRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []DocRef
	for path, owner := range s.notifications {
		if owner == userID {
			refs = append(refs, DocRef{Path: path})
		}
	}
	sortRefs(refs)
	return refs, nil
}

func (s *MemoryStore) RewriteSenders(_ context.Context, refs []DocRef, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range refs {
		m, exists := s.messages[ref.Path]
		if !exists {
			continue
		}
		m.Sender = sender
		s.messages[ref.Path] = m
		s.writes++
	}
	s.rewriteBatches++
	return nil
}

func (s *MemoryStore) DeleteRefs(_ context.Context, refs []DocRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range refs {
		if _, exists := s.notifications[ref.Path]; exists {
			delete(s.notifications, ref.Path)
			s.writes++
			continue
		}
		if _, exists := s.messages[ref.Path]; exists {
			delete(s.messages, ref.Path)
			s.writes++
		}
	}
	s.deleteBatches++
	return nil
}

// HasUser reports whether a user document exists.
func (s *MemoryStore) HasUser(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.users[userID]
	return exists
}

// HasUsername reports whether a username reservation exists.
func (s *MemoryStore) HasUsername(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.usernames[strings.ToLower(username)]
	return exists
}

// MessageSender returns the current sender label of a stored message.
func (s *MemoryStore) MessageSender(path string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages[path].Sender
}

// NotificationCount returns the number of notifications owned by the user.
func (s *MemoryStore) NotificationCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, owner := range s.notifications {
		if owner == userID {
			count++
		}
	}
	return count
}

// RewriteBatchCount returns how many sender-rewrite batches were committed.
func (s *MemoryStore) RewriteBatchCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rewriteBatches
}

// DeleteBatchCount returns how many delete batches were committed.
func (s *MemoryStore) DeleteBatchCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleteBatches
}

// WriteCount returns the total number of document writes applied.
func (s *MemoryStore) WriteCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func sortRefs(refs []DocRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
}

// MemoryAuth implements AuthAdmin using an in-memory account set.
type MemoryAuth struct {
	mu       sync.Mutex
	accounts map[string]struct{}
}

// NewMemoryAuth creates an in-memory auth admin seeded with the given accounts.
func NewMemoryAuth(userIDs ...string) *MemoryAuth {
	accounts := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		accounts[id] = struct{}{}
	}
	return &MemoryAuth{accounts: accounts}
}

func (a *MemoryAuth) DeleteAccount(_ context.Context, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.accounts[userID]; !exists {
		return ErrNotFound
	}
	delete(a.accounts, userID)
	return nil
}

// HasAccount reports whether the account still exists.
func (a *MemoryAuth) HasAccount(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, exists := a.accounts[userID]
	return exists
}

// MemorySink implements Sink by collecting records in memory.
type MemorySink struct {
	mu          sync.Mutex
	Failures    []FailureRecord
	Completions []CompletionRecord
	Stats       []StatsRecord
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) RecordFailure(_ context.Context, rec FailureRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failures = append(s.Failures, rec)
}

func (s *MemorySink) RecordCompletion(_ context.Context, rec CompletionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Completions = append(s.Completions, rec)
}

func (s *MemorySink) RecordStats(_ context.Context, rec StatsRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stats = append(s.Stats, rec)
}
