package repo

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keithlinneman/invitegate/internal/clock"
	"github.com/keithlinneman/invitegate/internal/tier"
)

func setupDB(t *testing.T) (*DB, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), fc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, fc
}

func seedUser(t *testing.T, db *DB) User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), User{Email: "Ana@Example.com", Name: "Ana", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestOpen_MigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	ctx := context.Background()
	db, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()
	db, err = Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestUsers(t *testing.T) {
	db, _ := setupDB(t)
	ctx := context.Background()
	u := seedUser(t, db)

	if u.ID == "" || u.Email != "ana@example.com" || u.Tier != tier.Free || u.Role != "user" {
		t.Fatalf("created user = %+v", u)
	}
	got, err := db.UserByEmail(ctx, " ANA@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("UserByEmail = %+v, %v", got, err)
	}
	if _, err := db.CreateUser(ctx, User{Email: "ana@example.com", Name: "Dup", PasswordHash: "h"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email err = %v", err)
	}
	if _, err := db.UserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user err = %v", err)
	}
}

func TestInvitations(t *testing.T) {
	db, fc := setupDB(t)
	ctx := context.Background()
	u := seedUser(t, db)

	inv, err := db.CreateInvitation(ctx, Invitation{
		OwnerID: u.ID, Slug: "ana-ben", Title: "Ana & Ben",
		Fields: map[string]any{"venue": "Garden"},
	})
	if err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	if _, err := db.CreateInvitation(ctx, Invitation{OwnerID: u.ID, Slug: "ana-ben", Title: "x"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate slug err = %v", err)
	}

	fc.Advance(time.Hour)
	upd, err := db.UpdateInvitation(ctx, inv.ID, "", map[string]any{"dress_code": "formal"})
	if err != nil {
		t.Fatalf("UpdateInvitation: %v", err)
	}
	if upd.Title != "Ana & Ben" || upd.Fields["venue"] != "Garden" || upd.Fields["dress_code"] != "formal" {
		t.Fatalf("updated = %+v", upd)
	}

	got, err := db.InvitationBySlug(ctx, "ana-ben")
	if err != nil {
		t.Fatal(err)
	}
	if !got.UpdatedAt.After(got.CreatedAt) || got.Fields["dress_code"] != "formal" {
		t.Fatalf("stored = %+v", got)
	}
	if _, err := db.UpdateInvitation(ctx, "nope", "t", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing invitation err = %v", err)
	}
}

func TestGuests(t *testing.T) {
	db, fc := setupDB(t)
	ctx := context.Background()
	u := seedUser(t, db)
	inv, _ := db.CreateInvitation(ctx, Invitation{OwnerID: u.ID, Slug: "s", Title: "t"})

	r, err := db.CreateRSVP(ctx, RSVP{InvitationID: inv.ID, GuestName: "Cy", Attending: true})
	if err != nil || r.Guests != 1 {
		t.Fatalf("CreateRSVP = %+v, %v", r, err)
	}

	for _, msg := range []string{"first", "second", "third"} {
		if _, err := db.CreateWish(ctx, Wish{InvitationID: inv.ID, GuestName: "Cy", Message: msg}); err != nil {
			t.Fatal(err)
		}
		fc.Advance(time.Minute)
	}
	wishes, err := db.ListWishes(ctx, inv.ID, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(wishes) != 2 || wishes[0].Message != "third" || wishes[1].Message != "second" {
		t.Fatalf("wishes = %+v", wishes)
	}
	if rest, _ := db.ListWishes(ctx, inv.ID, 10, 2); len(rest) != 1 || rest[0].Message != "first" {
		t.Fatalf("offset page = %+v", rest)
	}

	ps, err := db.AddPhotos(ctx, inv.ID, []Photo{{Key: "k", ContentType: "image/png", Size: 10}}, nil)
	if err != nil || len(ps) != 1 || ps[0].ID == "" || ps[0].InvitationID != inv.ID {
		t.Fatalf("AddPhotos = %+v, %v", ps, err)
	}
	if n, err := db.CountPhotos(ctx, inv.ID); err != nil || n != 1 {
		t.Fatalf("CountPhotos = %d, %v", n, err)
	}
}

func TestAddPhotos_RejectedRollsBack(t *testing.T) {
	db, _ := setupDB(t)
	ctx := context.Background()
	inv, _ := db.CreateInvitation(ctx, Invitation{OwnerID: seedUser(t, db).ID, Slug: "s", Title: "t"})

	full := errors.New("full")
	ps := []Photo{{Key: "a"}, {Key: "b"}}
	if _, err := db.AddPhotos(ctx, inv.ID, ps, func(int) error { return full }); err != full {
		t.Fatalf("err = %v, want the allow error unwrapped", err)
	}
	if n, _ := db.CountPhotos(ctx, inv.ID); n != 0 {
		t.Fatalf("count after rejected insert = %d", n)
	}
}

func TestAddPhotos_ConcurrentLimitHolds(t *testing.T) {
	db, _ := setupDB(t)
	ctx := context.Background()
	inv, _ := db.CreateInvitation(ctx, Invitation{OwnerID: seedUser(t, db).ID, Slug: "s", Title: "t"})

	limit := tier.Free.Limits().GalleryLimit
	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 4*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.AddPhotos(ctx, inv.ID, []Photo{{Key: "k", ContentType: "image/png"}}, func(n int) error {
				return tier.Free.CheckGallery(n, 1)
			})
			if err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := int(accepted.Load()); got != limit {
		t.Fatalf("accepted = %d, want %d", got, limit)
	}
	if n, err := db.CountPhotos(ctx, inv.ID); err != nil || n != limit {
		t.Fatalf("CountPhotos = %d, %v, want %d", n, err, limit)
	}
}
