package deletion

import (
	"context"
	"log/slog"

	"cloud.google.com/go/firestore"
)

// firestoreSink appends diagnostic records to dedicated collections with
// server-assigned timestamps. Writes are best-effort: a failed append is
// logged and swallowed so diagnostics can never break the workflow itself.
type firestoreSink struct {
	client *firestore.Client
	logger *slog.Logger
}

// NewFirestoreSink creates a Firestore-backed observability sink.
func NewFirestoreSink(client *firestore.Client, logger *slog.Logger) Sink {
	return &firestoreSink{client: client, logger: logger}
}

func (s *firestoreSink) RecordFailure(ctx context.Context, rec FailureRecord) {
	s.append(ctx, CollectionDeletionFailures, map[string]any{
		"userId":    rec.UserID,
		"username":  rec.Username,
		"error":     rec.Error,
		"timestamp": firestore.ServerTimestamp,
	})
}

func (s *firestoreSink) RecordCompletion(ctx context.Context, rec CompletionRecord) {
	s.append(ctx, CollectionDeletionLogs, map[string]any{
		"userId":    rec.UserID,
		"username":  rec.Username,
		"status":    rec.Status,
		"timestamp": firestore.ServerTimestamp,
	})
}

func (s *firestoreSink) RecordStats(ctx context.Context, rec StatsRecord) {
	s.append(ctx, CollectionDeletionStats, map[string]any{
		"username":               rec.Username,
		"maypoleMessagesUpdated": rec.MaypoleMessagesUpdated,
		"directMessagesUpdated":  rec.DirectMessagesUpdated,
		"timestamp":              firestore.ServerTimestamp,
	})
}

func (s *firestoreSink) append(ctx context.Context, collection string, data map[string]any) {
	if _, _, err := s.client.Collection(collection).Add(ctx, data); err != nil {
		s.logger.Error("could not append diagnostic record",
			"collection", collection, "error", err)
	}
}
