package db

import (
	"context"
	"os"
	"testing"

	"Scrobble-Bridge-Go/pkg/session"
)

// TestSetAndGetSession verifies that sessions round-trip through the
// database unchanged.
func TestSetAndGetSession(t *testing.T) {
	d, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	ctx := context.Background()
	want := session.Session{UserID: "u1", SessionKey: "sk", Username: "listener", ScrobbleEnabled: true}
	if err := d.SetSession(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := d.GetSession(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

// TestGetSessionUnknownUser ensures missing rows are reported as unlinked
// sessions rather than errors.
func TestGetSessionUnknownUser(t *testing.T) {
	d, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	got, err := d.GetSession(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if got.Linked() {
		t.Fatalf("expected unlinked session, got %+v", got)
	}
	if !got.ScrobbleEnabled {
		t.Fatal("fresh sessions should default to scrobbling enabled")
	}
}

// TestSetSessionUpsert confirms a second write replaces the first.
func TestSetSessionUpsert(t *testing.T) {
	d, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.SetSession(ctx, session.Session{UserID: "u1", SessionKey: "old", ScrobbleEnabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSession(ctx, session.Session{UserID: "u1", SessionKey: "new", Username: "n", ScrobbleEnabled: false}); err != nil {
		t.Fatal(err)
	}
	got, err := d.GetSession(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.SessionKey != "new" || got.ScrobbleEnabled {
		t.Fatalf("upsert did not replace row: %+v", got)
	}
}

// TestClearSessionKey checks revocation keeps the row but blanks the key.
func TestClearSessionKey(t *testing.T) {
	d, err := New("test.db")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		d.Close()
		os.Remove("test.db")
	}()

	ctx := context.Background()
	if err := d.SetSession(ctx, session.Session{UserID: "u1", SessionKey: "sk", Username: "listener", ScrobbleEnabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := d.ClearSessionKey(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	got, err := d.GetSession(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Linked() {
		t.Fatalf("session key not cleared: %+v", got)
	}
	if got.Username != "listener" {
		t.Fatalf("row should survive revocation: %+v", got)
	}
}
