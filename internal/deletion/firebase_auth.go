package deletion

import (
	"context"

	fbauth "firebase.google.com/go/v4/auth"
)

type firebaseAuth struct {
	client *fbauth.Client
}

// NewFirebaseAuth creates an AuthAdmin backed by the Firebase Admin SDK.
func NewFirebaseAuth(client *fbauth.Client) AuthAdmin {
	return &firebaseAuth{client: client}
}

func (a *firebaseAuth) DeleteAccount(ctx context.Context, userID string) error {
	err := a.client.DeleteUser(ctx, userID)
	if err == nil {
		return nil
	}
	if fbauth.IsUserNotFound(err) {
		return ErrNotFound
	}
	return err
}
