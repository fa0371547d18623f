package deletion

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type firestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a Firestore-backed Store.
func NewFirestoreStore(client *firestore.Client) Store {
	return &firestoreStore{client: client}
}

func (s *firestoreStore) GetUser(ctx context.Context, userID string) (*User, error) {
	doc, err := s.client.Collection(CollectionUsers).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var user User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	user.UserID = doc.Ref.ID
	return &user, nil
}

func (s *firestoreStore) MarkDeletionFailed(ctx context.Context, userID, errText string) error {
	_, err := s.client.Collection(CollectionUsers).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "deletionFailed", Value: true},
		{Path: "deletionError", Value: errText},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

func (s *firestoreStore) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.client.Collection(CollectionUsers).Doc(userID).Delete(ctx)
	return err
}

func (s *firestoreStore) DeleteUsername(ctx context.Context, username string) error {
	_, err := s.client.Collection(CollectionUsernames).Doc(strings.ToLower(username)).Delete(ctx)
	return err
}

func (s *firestoreStore) ListMessageRefs(ctx context.Context, sender string, kind MessageKind) ([]DocRef, error) {
	query := s.client.CollectionGroup(CollectionMessages).
		Where("sender", "==", sender).
		Where("type", "==", string(kind)).
		Select()
	return collectRefs(query.Documents(ctx))
}

func (s *firestoreStore) ListNotificationRefs(ctx context.Context, userID string) ([]DocRef, error) {
	query := s.client.Collection(CollectionUsers).Doc(userID).
		Collection(CollectionNotifications).Select()
	return collectRefs(query.Documents(ctx))
}

func (s *firestoreStore) RewriteSenders(ctx context.Context, refs []DocRef, sender string) error {
	batch := s.client.Batch()
	for _, ref := range refs {
		batch.Update(s.client.Doc(ref.Path), []firestore.Update{
			{Path: "sender", Value: sender},
		})
	}
	_, err := batch.Commit(ctx)
	return err
}

func (s *firestoreStore) DeleteRefs(ctx context.Context, refs []DocRef) error {
	batch := s.client.Batch()
	for _, ref := range refs {
		batch.Delete(s.client.Doc(ref.Path))
	}
	_, err := batch.Commit(ctx)
	return err
}

func collectRefs(iter *firestore.DocumentIterator) ([]DocRef, error) {
	defer iter.Stop()

	var refs []DocRef
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		refs = append(refs, DocRef{Path: relativePath(doc.Ref.Path)})
	}
	return refs, nil
}

// relativePath strips the projects/{p}/databases/{d}/documents/ prefix so a
// ref can be resolved later with client.Doc.
func relativePath(full string) string {
	const marker = "/documents/"
	if i := strings.Index(full, marker); i >= 0 {
		return full[i+len(marker):]
	}
	return full
}
