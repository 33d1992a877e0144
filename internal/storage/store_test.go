package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUserLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.EnsureUser(ctx, "alice", "")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if user == nil || user.ID == 0 || user.Role != RoleUser {
		t.Fatalf("unexpected user: %+v", user)
	}
	again, err := store.EnsureUser(ctx, "alice", RoleAdmin)
	if err != nil {
		t.Fatalf("EnsureUser again: %v", err)
	}
	if again.ID != user.ID || again.Role != RoleAdmin {
		t.Fatalf("expected same user promoted, got %+v", again)
	}

	byID, err := store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID == nil || byID.Username != "alice" {
		t.Fatalf("unexpected user: %+v", byID)
	}
	missing, err := store.GetUserByUsername(ctx, "nobody")
	if err != nil || missing != nil {
		t.Fatalf("expected nil user, got %+v, %v", missing, err)
	}
}

func TestMessagesAndFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, store, "alice")
	room, err := store.EnsureRoom(ctx, "general")
	if err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if same, _ := store.EnsureRoom(ctx, "general"); same.ID != room.ID {
		t.Fatalf("EnsureRoom should be idempotent")
	}

	if err := store.SaveFile(ctx, FileRecord{
		ID: "f1", RoomID: room.ID, Filename: "cat.png", MimeType: "image/png",
		SizeBytes: 3, SHA256: "abc", StoragePath: "/tmp/f1", UploadedBy: alice.ID,
	}); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	id, err := store.CreateMessage(ctx, Message{RoomID: room.ID, SenderID: alice.ID, Content: "look", FileID: "f1"})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	msg, err := store.GetMessage(ctx, id)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg == nil || msg.FileID != "f1" || msg.Content != "look" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	f, err := store.GetFile(ctx, "f1")
	if err != nil || f == nil || f.Filename != "cat.png" {
		t.Fatalf("unexpected file: %+v, %v", f, err)
	}
	if none, err := store.GetFile(ctx, "nope"); err != nil || none != nil {
		t.Fatalf("expected missing file, got %+v, %v", none, err)
	}
}

func TestReportsFeed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	clock := time.Date(2024, 12, 25, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")
	eve := mustUser(t, store, "eve")
	room, _ := store.EnsureRoom(ctx, "general")
	msgID, err := store.CreateMessage(ctx, Message{RoomID: room.ID, SenderID: bob.ID, Content: "spam"})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if err := store.CreateReport(ctx, msgID, alice.ID, "spam"); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if err := store.CreateReport(ctx, msgID, alice.ID, "again"); !errors.Is(err, ErrAlreadyReported) {
		t.Fatalf("expected ErrAlreadyReported, got %v", err)
	}
	clock = clock.Add(time.Minute)
	if err := store.CreateReport(ctx, msgID, eve.ID, "rude"); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}

	ids, err := store.ReportedMessageIDs(ctx, alice.ID, room.ID)
	if err != nil || len(ids) != 1 || ids[0] != msgID {
		t.Fatalf("unexpected reported ids %v, %v", ids, err)
	}

	changed, err := store.ReportsChangedSince(ctx, clock.Add(-30*time.Second))
	if err != nil || !changed {
		t.Fatalf("expected change, got %v, %v", changed, err)
	}
	changed, _ = store.ReportsChangedSince(ctx, clock)
	if changed {
		t.Fatalf("no change expected at the latest timestamp")
	}

	pending, err := store.PendingReports(ctx)
	if err != nil {
		t.Fatalf("PendingReports: %v", err)
	}
	if len(pending) != 1 || len(pending[0].Reports) != 2 {
		t.Fatalf("unexpected pending reports: %+v", pending)
	}
	if pending[0].SenderUsername != "bob" || !pending[0].UpdatedAt.Equal(clock) {
		t.Fatalf("unexpected entry: %+v", pending[0])
	}

	clock = clock.Add(time.Minute)
	n, err := store.DismissReports(ctx, msgID)
	if err != nil || n != 2 {
		t.Fatalf("DismissReports: %d, %v", n, err)
	}
	pending, _ = store.PendingReports(ctx)
	if len(pending) != 0 {
		t.Fatalf("dismissed reports still pending")
	}
	// the dismissal is newer than any pending row but is not a change
	changed, err = store.ReportsChangedSince(ctx, clock.Add(-2*time.Minute))
	if err != nil || changed {
		t.Fatalf("resolved reports should not count as a change, got %v, %v", changed, err)
	}
}

func TestBanSenderOnlyExtends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 12, 25, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")
	room, _ := store.EnsureRoom(ctx, "general")
	msgID, _ := store.CreateMessage(ctx, Message{RoomID: room.ID, SenderID: bob.ID, Content: "spam"})
	if err := store.CreateReport(ctx, msgID, alice.ID, "spam"); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}

	week := now.Add(7 * 24 * time.Hour)
	user, err := store.BanSender(ctx, msgID, &week)
	if err != nil {
		t.Fatalf("BanSender: %v", err)
	}
	if user.BannedUntil == nil || !user.BannedUntil.Equal(week) {
		t.Fatalf("unexpected ban: %+v", user)
	}
	day := now.Add(24 * time.Hour)
	user, _ = store.BanSender(ctx, msgID, &day)
	if !user.BannedUntil.Equal(week) {
		t.Fatalf("shorter ban must not shorten the existing one: %v", user.BannedUntil)
	}
	if pending, _ := store.PendingReports(ctx); len(pending) != 0 {
		t.Fatalf("reports should be acted on after a ban")
	}

	banned, err := store.BannedUsers(ctx, now)
	if err != nil || len(banned) != 1 || banned[0].Username != "bob" {
		t.Fatalf("unexpected banned list %+v, %v", banned, err)
	}
	if banned, _ := store.BannedUsers(ctx, week.Add(time.Second)); len(banned) != 0 {
		t.Fatalf("expired ban still listed")
	}

	user, _ = store.BanSender(ctx, msgID, nil)
	if !user.BanPermanent || !user.BannedAt(now.AddDate(50, 0, 0)) {
		t.Fatalf("expected permanent ban: %+v", user)
	}
	if _, err := store.BanSender(ctx, 9999, nil); err == nil {
		t.Fatalf("expected error for unknown message")
	}
}

func TestClearExpiredBans(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 12, 25, 10, 0, 0, 0, time.UTC)
	bob := mustUser(t, store, "bob")
	room, _ := store.EnsureRoom(ctx, "general")
	msgID, _ := store.CreateMessage(ctx, Message{RoomID: room.ID, SenderID: bob.ID, Content: "hi"})
	until := now.Add(time.Hour)
	if _, err := store.BanSender(ctx, msgID, &until); err != nil {
		t.Fatalf("BanSender: %v", err)
	}
	n, err := store.ClearExpiredBans(ctx, now.Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("ClearExpiredBans: %d, %v", n, err)
	}
	user, _ := store.GetUserByID(ctx, bob.ID)
	if user.BannedUntil != nil {
		t.Fatalf("ban should be cleared")
	}
}

func mustUser(t *testing.T, store *Store, name string) *User {
	t.Helper()
	user, err := store.EnsureUser(context.Background(), name, RoleUser)
	if err != nil {
		t.Fatalf("EnsureUser %s: %v", name, err)
	}
	return user
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "sqlite://file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}
