package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aedgar777/maypole-functions/internal/events"
)

// Service runs the account-deletion consistency workflow. Two trigger paths
// (auth account removed, deletion flag flipped on the user document) can fire
// for the same logical deletion, possibly concurrently; every step tolerates
// already-gone state instead of relying on mutual exclusion.
type Service struct {
	store     Store
	authn     AuthAdmin
	sink      Sink
	logger    *slog.Logger
	batchSize int
}

// NewService creates a deletion service. batchSize bounds a single batched
// write; values <= 0 fall back to DefaultBatchSize.
func NewService(store Store, authn AuthAdmin, sink Sink, logger *slog.Logger, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{
		store:     store,
		authn:     authn,
		sink:      sink,
		logger:    logger,
		batchSize: batchSize,
	}
}

// HandleUserUpdated is the field-transition trigger entry. It runs cleanup
// only when a deletion flag transitioned from false to true between the two
// snapshots; every other document update is ignored, so replays and
// unrelated profile edits never reprocess a deletion.
func (s *Service) HandleUserUpdated(ctx context.Context, before, after events.UserSnapshot) error {
	pendingFlipped := after.DeletionPending && !before.DeletionPending
	requestedFlipped := after.DeletionRequested && !before.DeletionRequested
	if !pendingFlipped && !requestedFlipped {
		return nil
	}

	s.logger.Info("account deletion requested",
		"userId", after.UserID, "username", after.Username)
	return s.cleanup(ctx, after.UserID, after.Username)
}

// HandleAuthDeleted is the auth-deletion trigger entry. An absent user
// document means the other trigger path already finished; that is success.
func (s *Service) HandleAuthDeleted(ctx context.Context, userID string) error {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("user document already deleted", "userId", userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}

	s.logger.Info("auth account deleted, starting cleanup",
		"userId", userID, "username", user.Username)
	return s.cleanup(ctx, userID, user.Username)
}

// ManualCleanup rewrites every message sent under the given username, both
// maypole and direct, to the tombstone label. It is the callable entry for
// operators cleaning up after a partial deletion.
func (s *Service) ManualCleanup(ctx context.Context, username string) error {
	if username == "" {
		return ErrMissingUsername
	}

	placeCount, err := s.ScrubMessages(ctx, username, KindPlace)
	if err != nil {
		return err
	}
	directCount, err := s.ScrubMessages(ctx, username, KindDirect)
	if err != nil {
		return err
	}

	s.sink.RecordStats(ctx, StatsRecord{
		Username:               username,
		MaypoleMessagesUpdated: placeCount,
		DirectMessagesUpdated:  directCount,
	})
	return nil
}

// cleanup runs the full scrub+purge sequence best-effort: a failed step is
// recorded and the remaining steps still run, so a partial failure never
// leaves more orphaned state than it has to. Nothing is rolled back.
func (s *Service) cleanup(ctx context.Context, userID, username string) error {
	report := s.runSteps(ctx, userID, username)

	if failed := report.Failed(); len(failed) > 0 {
		stepErrs := make([]error, 0, len(failed))
		for _, step := range failed {
			s.logger.Error("cleanup step failed",
				"userId", userID, "step", step.Step, "error", step.Err)
			stepErrs = append(stepErrs, fmt.Errorf("%s: %w", step.Step, step.Err))
		}
		err := errors.Join(stepErrs...)

		// Annotate the user document for manual review. The document may
		// already be gone if the failure happened after the purge step.
		if markErr := s.store.MarkDeletionFailed(ctx, userID, err.Error()); markErr != nil && !errors.Is(markErr, ErrNotFound) {
			s.logger.Error("could not mark deletion failed", "userId", userID, "error", markErr)
		}
		s.sink.RecordFailure(ctx, FailureRecord{
			UserID:   userID,
			Username: username,
			Error:    err.Error(),
		})
		return err
	}

	s.sink.RecordCompletion(ctx, CompletionRecord{
		UserID:   userID,
		Username: username,
		Status:   "completed",
	})
	s.logger.Info("account cleanup completed", "userId", userID, "username", username)
	return nil
}

func (s *Service) runSteps(ctx context.Context, userID, username string) *Report {
	report := &Report{UserID: userID, Username: username}
	step := func(name string, fn func() (int, error)) {
		count, err := fn()
		report.Steps = append(report.Steps, StepResult{
			Step:  name,
			Count: count,
			Err:   err,
			At:    time.Now().UTC(),
		})
	}

	var placeCount, directCount int
	step("scrub maypole messages", func() (int, error) {
		n, err := s.ScrubMessages(ctx, username, KindPlace)
		placeCount = n
		return n, err
	})
	step("scrub direct messages", func() (int, error) {
		n, err := s.ScrubMessages(ctx, username, KindDirect)
		directCount = n
		return n, err
	})
	s.sink.RecordStats(ctx, StatsRecord{
		Username:               username,
		MaypoleMessagesUpdated: placeCount,
		DirectMessagesUpdated:  directCount,
	})

	step("delete notifications", func() (int, error) {
		return s.purgeNotifications(ctx, userID)
	})
	step("delete username reservation", func() (int, error) {
		if username == "" {
			return 0, nil
		}
		if err := s.store.DeleteUsername(ctx, username); err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, nil
	})
	step("delete user document", func() (int, error) {
		if err := s.store.DeleteUser(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, nil
	})
	step("delete auth account", func() (int, error) {
		err := s.authn.DeleteAccount(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			// The other trigger path already removed the account.
			s.logger.Info("auth account already deleted", "userId", userID)
			return 0, nil
		}
		return 0, err
	})

	return report
}

// ScrubMessages rewrites the sender of every message matching the username
// and kind to the tombstone label. Matching is by the current denormalized
// username string: messages sent under a since-changed username are not
// reachable. Updates are grouped into atomic batches committed concurrently;
// the whole operation is at-least-once, with no partial-success tracking
// inside a batch.
func (s *Service) ScrubMessages(ctx context.Context, username string, kind MessageKind) (int, error) {
	refs, err := s.store.ListMessageRefs(ctx, username, kind)
	if err != nil {
		return 0, fmt.Errorf("query %s messages for %s: %w", kind, username, err)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, batch := range chunkRefs(refs, s.batchSize) {
		g.Go(func() error {
			return s.store.RewriteSenders(ctx, batch, DeletedUserLabel)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("rewrite %s messages for %s: %w", kind, username, err)
	}

	s.logger.Info("scrubbed messages",
		"username", username, "kind", string(kind), "count", len(refs))
	return len(refs), nil
}

func (s *Service) purgeNotifications(ctx context.Context, userID string) (int, error) {
	refs, err := s.store.ListNotificationRefs(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("query notifications for %s: %w", userID, err)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, batch := range chunkRefs(refs, s.batchSize) {
		g.Go(func() error {
			return s.store.DeleteRefs(ctx, batch)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("delete notifications for %s: %w", userID, err)
	}
	return len(refs), nil
}

func chunkRefs(refs []DocRef, size int) [][]DocRef {
	chunks := make([][]DocRef, 0, (len(refs)+size-1)/size)
	for size < len(refs) {
		chunks = append(chunks, refs[:size])
		refs = refs[size:]
	}
	return append(chunks, refs)
}
