package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"dwell/cmd/internal/directory"
)

type recordingEnqueuer struct {
	calls []string // "conversationID/recipientID"
	fail  bool
}

func (r *recordingEnqueuer) EnqueueUnreadReminder(_ context.Context, conversationID, recipientID string) error {
	r.calls = append(r.calls, conversationID+"/"+recipientID)
	if r.fail {
		return errors.New("queue down")
	}
	return nil
}

type fixture struct {
	svc       *Service
	store     *InMemoryStore
	dir       *directory.InMemoryStore
	reminders *recordingEnqueuer

	alice string // regular user
	bob   string // lister
	carol string // outsider
	house string // bob's listing
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := directory.NewInMemoryStore()
	ctx := context.Background()

	seedUser := func(email string) string {
		t.Helper()
		u, err := dir.CreateUser(ctx, directory.User{Email: email, PasswordHash: "x"})
		if err != nil {
			t.Fatalf("seed user %s: %v", email, err)
		}
		return u.ID
	}

	f := &fixture{
		store:     NewInMemoryStore(),
		dir:       dir,
		reminders: &recordingEnqueuer{},
	}
	f.alice = seedUser("alice@example.com")
	f.bob = seedUser("bob@example.com")
	f.carol = seedUser("carol@example.com")

	l, err := dir.CreateListing(ctx, directory.Listing{ListerID: f.bob, Title: "Two-bed flat"})
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	f.house = l.ID

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc, err = NewService(log, f.store, dir, dir, f.reminders)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return f
}

func TestFindOrCreateListingChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.FindOrCreateListingChat(ctx, f.alice, f.house)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.ListingID == nil || *first.ListingID != f.house {
		t.Fatalf("listing id = %v, want %s", first.ListingID, f.house)
	}
	if first.InitiatorID != f.alice || first.PeerID != f.bob {
		t.Fatalf("participants = %s/%s, want %s/%s", first.InitiatorID, first.PeerID, f.alice, f.bob)
	}
	if first.Initiator.Email != "alice@example.com" || first.Peer.Email != "bob@example.com" {
		t.Fatalf("participant details not joined: %+v", first)
	}

	second, err := f.svc.FindOrCreateListingChat(ctx, f.alice, f.house)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second call created a new conversation: %s != %s", second.ID, first.ID)
	}
}

func TestFindOrCreateListingChatRejectsOwnListing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FindOrCreateListingChat(context.Background(), f.bob, f.house)
	if !IsInvalidRequest(err) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestFindOrCreateListingChatMissingListing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FindOrCreateListingChat(context.Background(), f.alice, "01KNOPE0000000000000000000")
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// listerlessListings serves a listing whose responsible party is unset,
// which the directory stores themselves refuse to create.
type listerlessListings struct {
	directory.Listings
	listing directory.Listing
}

func (l listerlessListings) GetListingByID(context.Context, string) (directory.Listing, error) {
	return l.listing, nil
}

func TestFindOrCreateListingChatRejectsListerlessListing(t *testing.T) {
	f := newFixture(t)

	listings := listerlessListings{listing: directory.Listing{ID: "orphan", Title: "No lister"}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewService(log, f.store, f.dir, listings, f.reminders)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.FindOrCreateListingChat(context.Background(), f.alice, "orphan")
	if !IsInvalidRequest(err) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestFindOrCreateDirectChatSymmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ab, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatalf("alice->bob: %v", err)
	}
	if ab.ListingID != nil {
		t.Fatalf("direct chat has listing id %v", ab.ListingID)
	}

	ba, err := f.svc.FindOrCreateDirectChat(ctx, f.bob, f.alice)
	if err != nil {
		t.Fatalf("bob->alice: %v", err)
	}
	if ba.ID != ab.ID {
		t.Fatalf("reversed pair resolved a different conversation: %s != %s", ba.ID, ab.ID)
	}
}

func TestDirectAndListingChatsAreSeparate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	listing, err := f.svc.FindOrCreateListingChat(ctx, f.alice, f.house)
	if err != nil {
		t.Fatal(err)
	}
	direct, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatal(err)
	}
	if listing.ID == direct.ID {
		t.Fatal("listing-scoped and direct chats collapsed into one conversation")
	}
}

func TestFindOrCreateDirectChatSelf(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FindOrCreateDirectChat(context.Background(), f.alice, f.alice)
	if !IsInvalidRequest(err) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestFindOrCreateDirectChatMissingPeer(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FindOrCreateDirectChat(context.Background(), f.alice, "01KNOPE0000000000000000000")
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFindOrCreateResolvesInsertRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Simulate losing the insert race: the winner's row appears between our
	// failed find and our insert.
	winner, err := f.store.InsertConversation(ctx, Conversation{
		InitiatorID: f.bob,
		PeerID:      f.alice,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatalf("FindOrCreateDirectChat: %v", err)
	}
	if got.ID != winner.ID {
		t.Fatalf("resolved %s, want the existing row %s", got.ID, winner.ID)
	}
}

func TestAccessGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.GetConversation(ctx, conv.ID, f.alice); err != nil {
		t.Fatalf("participant rejected: %v", err)
	}
	if _, err := f.svc.GetConversation(ctx, conv.ID, f.bob); err != nil {
		t.Fatalf("peer participant rejected: %v", err)
	}

	if _, err := f.svc.GetConversation(ctx, conv.ID, f.carol); !IsForbidden(err) {
		t.Fatalf("outsider err = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.GetConversation(ctx, "01KNOPE0000000000000000000", f.alice); !IsNotFound(err) {
		t.Fatalf("missing conversation err = %v, want ErrNotFound", err)
	}
}

func TestAppendMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"over limit", strings.Repeat("x", MaxContentChars+1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AppendMessage(ctx, conv.ID, f.alice, tc.content, time.Now())
			if !IsInvalidRequest(err) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}

	// Exactly the limit is accepted; multi-byte runes count as one char.
	ok := strings.Repeat("é", MaxContentChars)
	if _, err := f.svc.AppendMessage(ctx, conv.ID, f.alice, ok, time.Now()); err != nil {
		t.Fatalf("limit-length message rejected: %v", err)
	}
}

func TestAppendMessageGatesSender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.AppendMessage(ctx, conv.ID, f.carol, "hi", time.Now()); !IsForbidden(err) {
		t.Fatalf("outsider append err = %v, want ErrForbidden", err)
	}
}

func TestAppendMessageBumpsRecency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatal(err)
	}

	at := conv.UpdatedAt.Add(5 * time.Minute)
	view, err := f.svc.AppendMessage(ctx, conv.ID, f.alice, "hello", at)
	if err != nil {
		t.Fatal(err)
	}
	if view.Sender.ID != f.alice {
		t.Fatalf("sender = %s, want %s", view.Sender.ID, f.alice)
	}
	if view.IsRead {
		t.Fatal("new message must start unread")
	}

	after, err := f.svc.GetConversation(ctx, conv.ID, f.alice)
	if err != nil {
		t.Fatal(err)
	}
	if !after.UpdatedAt.Equal(at) {
		t.Fatalf("updated_at = %v, want %v", after.UpdatedAt, at)
	}
}

func TestAppendMessageEnqueuesReminderForRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.AppendMessage(ctx, conv.ID, f.alice, "hi", time.Now()); err != nil {
		t.Fatal(err)
	}
	want := conv.ID + "/" + f.bob
	if len(f.reminders.calls) != 1 || f.reminders.calls[0] != want {
		t.Fatalf("reminder calls = %v, want [%s]", f.reminders.calls, want)
	}

	// Enqueue failures must not fail the append.
	f.reminders.fail = true
	if _, err := f.svc.AppendMessage(ctx, conv.ID, f.bob, "hi back", time.Now()); err != nil {
		t.Fatalf("append failed because reminder enqueue failed: %v", err)
	}
}

func TestListMessagesOrderAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		sender := f.alice
		if i%2 == 1 {
			sender = f.bob
		}
		if _, err := f.svc.AppendMessage(ctx, conv.ID, sender, string(rune('a'+i)), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	page1, total, totalPages, err := f.svc.ListMessages(ctx, conv.ID, f.alice, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || totalPages != 3 {
		t.Fatalf("total = %d, totalPages = %d, want 5 and 3", total, totalPages)
	}
	if len(page1) != 2 || page1[0].Content != "a" || page1[1].Content != "b" {
		t.Fatalf("page 1 = %+v, want oldest first", page1)
	}

	page3, _, _, err := f.svc.ListMessages(ctx, conv.ID, f.alice, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page3) != 1 || page3[0].Content != "e" {
		t.Fatalf("page 3 = %+v, want the single newest message", page3)
	}

	if _, _, _, err := f.svc.ListMessages(ctx, conv.ID, f.carol, 1, 10); !IsForbidden(err) {
		t.Fatalf("outsider list err = %v, want ErrForbidden", err)
	}
}

func TestListMessagesPageBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, _, err := f.svc.ListMessages(ctx, conv.ID, f.alice, -1, 10); !IsInvalidRequest(err) {
		t.Fatalf("negative page err = %v, want ErrInvalidRequest", err)
	}
	if _, _, _, err := f.svc.ListMessages(ctx, conv.ID, f.alice, 1, MaxPerPage+1); !IsInvalidRequest(err) {
		t.Fatalf("oversized per_page err = %v, want ErrInvalidRequest", err)
	}

	// Zero values take defaults.
	if _, _, _, err := f.svc.ListMessages(ctx, conv.ID, f.alice, 0, 0); err != nil {
		t.Fatalf("defaulted page err = %v", err)
	}
}

func TestListConversationsRecencyOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	withBob, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatal(err)
	}
	withCarol, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.carol)
	if err != nil {
		t.Fatal(err)
	}

	// Touch the older conversation so it becomes the most recent.
	later := time.Now().UTC().Add(time.Hour)
	if _, err := f.svc.AppendMessage(ctx, withBob.ID, f.bob, "still there?", later); err != nil {
		t.Fatal(err)
	}

	views, total, totalPages, err := f.svc.ListConversations(ctx, f.alice, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || totalPages != 1 {
		t.Fatalf("total = %d, totalPages = %d, want 2 and 1", total, totalPages)
	}
	if len(views) != 2 || views[0].ID != withBob.ID || views[1].ID != withCarol.ID {
		t.Fatalf("order = %s, %s; want %s first", views[0].ID, views[1].ID, withBob.ID)
	}

	// Carol sees only her own conversation.
	carols, total, _, err := f.svc.ListConversations(ctx, f.carol, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(carols) != 1 || carols[0].ID != withCarol.ID {
		t.Fatalf("carol sees %d conversations, want exactly her own", total)
	}
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.FindOrCreateDirectChat(ctx, f.alice, f.bob)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if _, err := f.svc.AppendMessage(ctx, conv.ID, f.alice, "ping", now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.svc.AppendMessage(ctx, conv.ID, f.bob, "pong", now.Add(10*time.Second)); err != nil {
		t.Fatal(err)
	}

	// Bob reads: only alice's 3 messages flip, not his own.
	flipped, err := f.svc.MarkRead(ctx, conv.ID, f.bob, now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if flipped != 3 {
		t.Fatalf("flipped = %d, want 3", flipped)
	}

	unreadForBob, err := f.store.CountUnread(ctx, conv.ID, f.bob)
	if err != nil {
		t.Fatal(err)
	}
	if unreadForBob != 0 {
		t.Fatalf("unread for bob = %d, want 0", unreadForBob)
	}
	unreadForAlice, err := f.store.CountUnread(ctx, conv.ID, f.alice)
	if err != nil {
		t.Fatal(err)
	}
	if unreadForAlice != 1 {
		t.Fatalf("unread for alice = %d, want 1 (bob's reply)", unreadForAlice)
	}

	// Idempotent: the second pass has nothing to flip.
	flipped, err = f.svc.MarkRead(ctx, conv.ID, f.bob, now.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if flipped != 0 {
		t.Fatalf("second mark-read flipped %d, want 0", flipped)
	}

	if _, err := f.svc.MarkRead(ctx, conv.ID, f.carol, now); !IsForbidden(err) {
		t.Fatalf("outsider mark-read err = %v, want ErrForbidden", err)
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total, perPage, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{100, 30, 4},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.perPage); got != tc.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tc.total, tc.perPage, got, tc.want)
		}
	}
}
