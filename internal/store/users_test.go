package store

import (
	"context"
	"testing"

	"github.com/erazemk/stockledger/internal/db"
)

func TestEnsureUserIsIdempotent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, err := EnsureUser(ctx, database, "sub-42", "a@example.com")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	second, err := EnsureUser(ctx, database, "sub-42", "b@example.com")
	if err != nil {
		t.Fatalf("EnsureUser again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same user, got %s and %s", first.ID, second.ID)
	}
	if second.Email != "b@example.com" {
		t.Errorf("expected refreshed email, got %q", second.Email)
	}
}

func TestGetUserNotFound(t *testing.T) {
	database := db.NewTestDB(t)

	u, err := GetUser(context.Background(), database, NewID())
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u != nil {
		t.Error("expected nil for missing user")
	}
}
