// Package directory holds Dwell's user and listing records: the narrow
// collaborators the chat subsystem needs for participant and lister lookup.
package directory

import (
	"context"
	"time"
)

// User is a marketplace account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	AvatarURL    string
	CreatedAt    time.Time
}

// Listing is a rental property listing. ListerID is the responsible party
// for listing-bound chats.
type Listing struct {
	ID        string
	ListerID  string
	Title     string
	CreatedAt time.Time
}

// Users is the user directory boundary.
type Users interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// Listings is the listing directory boundary.
type Listings interface {
	CreateListing(ctx context.Context, l Listing) (Listing, error)
	GetListingByID(ctx context.Context, id string) (Listing, error)
}
