package deletion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aedgar777/maypole-functions/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(store Store, authn AuthAdmin, sink Sink, batchSize int) *Service {
	return NewService(store, authn, sink, testLogger(), batchSize)
}

func seedBob(store *MemoryStore) {
	store.SeedUser(User{UserID: "uid-bob", Username: "bob"})
	for i := 0; i < 3; i++ {
		store.SeedMessage(fmt.Sprintf("places/p1/messages/m%d", i), Message{Sender: "bob", Kind: KindPlace})
	}
	for i := 0; i < 2; i++ {
		store.SeedMessage(fmt.Sprintf("dms/d1/messages/m%d", i), Message{Sender: "bob", Kind: KindDirect})
	}
	store.SeedNotification("uid-bob", "n1")
}

func TestHandleUserUpdated_IgnoresNonTransitions(t *testing.T) {
	cases := []struct {
		name          string
		before, after bool
	}{
		{"false to false", false, false},
		{"true to true", true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemoryStore()
			seedBob(store)
			sink := NewMemorySink()
			svc := newTestService(store, NewMemoryAuth("uid-bob"), sink, 0)

			err := svc.HandleUserUpdated(context.Background(),
				events.UserSnapshot{UserID: "uid-bob", Username: "bob", DeletionPending: tc.before},
				events.UserSnapshot{UserID: "uid-bob", Username: "bob", DeletionPending: tc.after},
			)
			if err != nil {
				t.Fatalf("expected no-op, got error: %v", err)
			}
			if store.WriteCount() != 0 {
				t.Fatalf("expected zero writes, got %d", store.WriteCount())
			}
			if !store.HasUser("uid-bob") || !store.HasUsername("bob") {
				t.Fatalf("expected user records to be untouched")
			}
			if len(sink.Completions)+len(sink.Failures)+len(sink.Stats) != 0 {
				t.Fatalf("expected no diagnostic records")
			}
		})
	}
}

func TestHandleUserUpdated_RunsCleanupExactlyOnce(t *testing.T) {
	store := NewMemoryStore()
	seedBob(store)
	authn := NewMemoryAuth("uid-bob")
	sink := NewMemorySink()
	svc := newTestService(store, authn, sink, 0)

	before := events.UserSnapshot{UserID: "uid-bob", Username: "bob"}
	after := events.UserSnapshot{UserID: "uid-bob", Username: "bob", DeletionPending: true}

	if err := svc.HandleUserUpdated(context.Background(), before, after); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if store.HasUser("uid-bob") {
		t.Fatalf("user document should be deleted")
	}
	if len(sink.Completions) != 1 {
		t.Fatalf("expected one completion record, got %d", len(sink.Completions))
	}
	writes := store.WriteCount()

	// A replayed update event leaves the flag true on both snapshots and
	// must not re-run the workflow.
	if err := svc.HandleUserUpdated(context.Background(), after, after); err != nil {
		t.Fatalf("replay should be a no-op: %v", err)
	}
	if store.WriteCount() != writes {
		t.Fatalf("replay wrote %d extra documents", store.WriteCount()-writes)
	}
	if len(sink.Completions) != 1 {
		t.Fatalf("replay recorded another completion")
	}
}

func TestHandleUserUpdated_DeletionRequestedFlag(t *testing.T) {
	store := NewMemoryStore()
	seedBob(store)
	svc := newTestService(store, NewMemoryAuth("uid-bob"), NewMemorySink(), 0)

	err := svc.HandleUserUpdated(context.Background(),
		events.UserSnapshot{UserID: "uid-bob", Username: "bob"},
		events.UserSnapshot{UserID: "uid-bob", Username: "bob", DeletionRequested: true},
	)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if store.HasUser("uid-bob") {
		t.Fatalf("deletionRequested transition should trigger cleanup")
	}
}

func TestScrubMessages_NoMatches(t *testing.T) {
	store := NewMemoryStore()
	store.SeedMessage("places/p1/messages/m1", Message{Sender: "carol", Kind: KindPlace})
	svc := newTestService(store, NewMemoryAuth(), NewMemorySink(), 0)

	count, err := svc.ScrubMessages(context.Background(), "nobody", KindPlace)
	if err != nil {
		t.Fatalf("scrub returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero matches, got %d", count)
	}
	if store.WriteCount() != 0 || store.RewriteBatchCount() != 0 {
		t.Fatalf("expected no writes, got %d writes in %d batches",
			store.WriteCount(), store.RewriteBatchCount())
	}
}

func TestScrubMessages_BatchesLargeSets(t *testing.T) {
	store := NewMemoryStore()
	const total = 1200
	for i := 0; i < total; i++ {
		store.SeedMessage(fmt.Sprintf("places/p1/messages/m%04d", i), Message{Sender: "alice", Kind: KindPlace})
	}
	svc := newTestService(store, NewMemoryAuth(), NewMemorySink(), 500)

	count, err := svc.ScrubMessages(context.Background(), "alice", KindPlace)
	if err != nil {
		t.Fatalf("scrub returned error: %v", err)
	}
	if count != total {
		t.Fatalf("expected %d rewrites, got %d", total, count)
	}
	if got := store.RewriteBatchCount(); got != 3 {
		t.Fatalf("expected ceil(1200/500)=3 batches, got %d", got)
	}
	for i := 0; i < total; i++ {
		path := fmt.Sprintf("places/p1/messages/m%04d", i)
		if sender := store.MessageSender(path); sender != DeletedUserLabel {
			t.Fatalf("message %s still has sender %q", path, sender)
		}
	}
}

func TestHandleAuthDeleted_ReplayAfterCleanup(t *testing.T) {
	store := NewMemoryStore()
	sink := NewMemorySink()
	svc := newTestService(store, NewMemoryAuth(), sink, 0)

	if err := svc.HandleAuthDeleted(context.Background(), "uid-gone"); err != nil {
		t.Fatalf("replay for absent user should succeed: %v", err)
	}
	if store.WriteCount() != 0 {
		t.Fatalf("expected no writes on replay, got %d", store.WriteCount())
	}
	if len(sink.Failures) != 0 {
		t.Fatalf("replay must not record a failure")
	}
}

func TestHandleAuthDeleted_EndToEnd(t *testing.T) {
	store := NewMemoryStore()
	seedBob(store)
	store.SeedMessage("places/p1/messages/other", Message{Sender: "carol", Kind: KindPlace})
	authn := NewMemoryAuth("uid-bob")
	sink := NewMemorySink()
	svc := newTestService(store, authn, sink, 0)

	if err := svc.HandleAuthDeleted(context.Background(), "uid-bob"); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		path := fmt.Sprintf("places/p1/messages/m%d", i)
		if sender := store.MessageSender(path); sender != DeletedUserLabel {
			t.Fatalf("place message %s has sender %q", path, sender)
		}
	}
	for i := 0; i < 2; i++ {
		path := fmt.Sprintf("dms/d1/messages/m%d", i)
		if sender := store.MessageSender(path); sender != DeletedUserLabel {
			t.Fatalf("direct message %s has sender %q", path, sender)
		}
	}
	if sender := store.MessageSender("places/p1/messages/other"); sender != "carol" {
		t.Fatalf("another user's message was rewritten to %q", sender)
	}
	if store.NotificationCount("uid-bob") != 0 {
		t.Fatalf("notifications should be deleted")
	}
	if store.HasUsername("bob") {
		t.Fatalf("username reservation should be deleted")
	}
	if store.HasUser("uid-bob") {
		t.Fatalf("user document should be deleted")
	}
	if authn.HasAccount("uid-bob") {
		t.Fatalf("auth account should be deleted")
	}

	if len(sink.Stats) != 1 || sink.Stats[0].MaypoleMessagesUpdated != 3 || sink.Stats[0].DirectMessagesUpdated != 2 {
		t.Fatalf("unexpected stats records: %+v", sink.Stats)
	}
	if len(sink.Completions) != 1 || sink.Completions[0].Status != "completed" {
		t.Fatalf("unexpected completion records: %+v", sink.Completions)
	}
}

type failingStore struct {
	Store
	usernameErr error
}

func (f *failingStore) DeleteUsername(ctx context.Context, username string) error {
	if f.usernameErr != nil {
		return f.usernameErr
	}
	return f.Store.DeleteUsername(ctx, username)
}

func TestCleanup_ContinuesPastFailedStep(t *testing.T) {
	mem := NewMemoryStore()
	seedBob(mem)
	store := &failingStore{Store: mem, usernameErr: errors.New("store unavailable")}
	authn := NewMemoryAuth("uid-bob")
	sink := NewMemorySink()
	svc := newTestService(store, authn, sink, 0)

	err := svc.HandleAuthDeleted(context.Background(), "uid-bob")
	if err == nil {
		t.Fatalf("expected the step failure to propagate")
	}
	if !strings.Contains(err.Error(), "store unavailable") {
		t.Fatalf("error should carry the step cause, got %v", err)
	}

	// Later steps still ran.
	if mem.HasUser("uid-bob") {
		t.Fatalf("user document step should still run after the failed step")
	}
	if authn.HasAccount("uid-bob") {
		t.Fatalf("auth account step should still run after the failed step")
	}
	if len(sink.Failures) != 1 {
		t.Fatalf("expected one failure record, got %d", len(sink.Failures))
	}
	if len(sink.Completions) != 0 {
		t.Fatalf("a failed run must not record completion")
	}
}

func TestManualCleanup_ScrubsBothKinds(t *testing.T) {
	store := NewMemoryStore()
	store.SeedMessage("places/p1/messages/m1", Message{Sender: "alice", Kind: KindPlace})
	store.SeedMessage("dms/d1/messages/m1", Message{Sender: "alice", Kind: KindDirect})
	sink := NewMemorySink()
	svc := newTestService(store, NewMemoryAuth(), sink, 0)

	if err := svc.ManualCleanup(context.Background(), "alice"); err != nil {
		t.Fatalf("manual cleanup failed: %v", err)
	}
	if store.MessageSender("places/p1/messages/m1") != DeletedUserLabel ||
		store.MessageSender("dms/d1/messages/m1") != DeletedUserLabel {
		t.Fatalf("expected both message kinds to be scrubbed")
	}
	if len(sink.Stats) != 1 || sink.Stats[0].MaypoleMessagesUpdated != 1 || sink.Stats[0].DirectMessagesUpdated != 1 {
		t.Fatalf("unexpected stats: %+v", sink.Stats)
	}
}

func TestManualCleanup_RequiresUsername(t *testing.T) {
	svc := newTestService(NewMemoryStore(), NewMemoryAuth(), NewMemorySink(), 0)
	if err := svc.ManualCleanup(context.Background(), ""); !errors.Is(err, ErrMissingUsername) {
		t.Fatalf("expected ErrMissingUsername, got %v", err)
	}
}

func TestChunkRefs(t *testing.T) {
	refs := make([]DocRef, 1200)
	chunks := chunkRefs(refs, 500)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 500 || len(chunks[1]) != 500 || len(chunks[2]) != 200 {
		t.Fatalf("unexpected chunk sizes: %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}
