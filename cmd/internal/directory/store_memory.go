package directory

import (
	"context"
	"errors"
	"sync"
	"time"

	"dwell/cmd/internal/ids"
)

// InMemoryStore is a dev/test fallback when DB is not configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]User
	byEmail  map[string]string
	listings map[string]Listing
}

// NewInMemoryStore constructs an in-memory directory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]User),
		byEmail:  make(map[string]string),
		listings: make(map[string]Listing),
	}
}

// CreateUser adds a user, enforcing email uniqueness.
func (s *InMemoryStore) CreateUser(ctx context.Context, u User) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if u.Email == "" || u.PasswordHash == "" {
		return User{}, errors.New("directory: missing email or password hash")
	}

	now := time.Now().UTC()
	if u.ID == "" {
		id, err := ids.NewULID(now)
		if err != nil {
			return User{}, err
		}
		u.ID = id
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.Email]; ok {
		return User{}, ErrConflict
	}
	if _, ok := s.users[u.ID]; ok {
		return User{}, ErrConflict
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

// GetUserByID fetches a user by id.
func (s *InMemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// GetUserByEmail fetches a user by email.
func (s *InMemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.users[id], nil
}

// CreateListing adds a listing.
func (s *InMemoryStore) CreateListing(ctx context.Context, l Listing) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}
	if l.ListerID == "" {
		return Listing{}, errors.New("directory: missing lister id")
	}

	now := time.Now().UTC()
	if l.ID == "" {
		id, err := ids.NewULID(now)
		if err != nil {
			return Listing{}, err
		}
		l.ID = id
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[l.ID]; ok {
		return Listing{}, ErrConflict
	}
	s.listings[l.ID] = l
	return l, nil
}

// GetListingByID fetches a listing by id.
func (s *InMemoryStore) GetListingByID(ctx context.Context, id string) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return Listing{}, ErrNotFound
	}
	return l, nil
}
