// package services defines the remote collaborators of the sync core and their HTTP implementations
package services

import (
	"context"

	"github.com/desertthunder/songbook/internal/models"
)

// DocumentStore is the remote, authoritative document database.
type DocumentStore interface {
	// Collection returns every document of a top-level collection.
	Collection(ctx context.Context, name string) ([]models.Document, error)

	// UserCollection returns every document of a collection nested under a user.
	UserCollection(ctx context.Context, userID, name string) ([]models.Document, error)
}

// Connectivity reports network reachability and publishes changes.
type Connectivity interface {
	// Online reports whether the network is currently reachable. Never fails.
	Online(ctx context.Context) bool

	// Subscribe registers fn for connectivity transitions. The returned func releases the subscription.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// UserProvider identifies the authenticated user, if any.
type UserProvider interface {
	CurrentUser(ctx context.Context) (string, bool)
}

// StaticUser is a [UserProvider] with a fixed user ID. The empty ID means nobody is signed in.
type StaticUser string

// CurrentUser returns the configured ID, reporting false when it is empty.
func (u StaticUser) CurrentUser(context.Context) (string, bool) {
	return string(u), u != ""
}
