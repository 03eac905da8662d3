package store

import (
	"context"
	"testing"
	"time"

	"github.com/campusrent/campusrent/internal/db"
)

func TestRevokeToken(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	revoked, err := IsTokenRevoked(ctx, database, "jti-1")
	if err != nil {
		t.Fatalf("IsTokenRevoked: %v", err)
	}
	if revoked {
		t.Fatal("token should not be revoked yet")
	}

	if err := RevokeToken(ctx, database, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	// Revoking twice is fine.
	if err := RevokeToken(ctx, database, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeToken again: %v", err)
	}

	revoked, err = IsTokenRevoked(ctx, database, "jti-1")
	if err != nil {
		t.Fatalf("IsTokenRevoked: %v", err)
	}
	if !revoked {
		t.Error("token should be revoked")
	}
}

func TestPurgeExpiredRevocations(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2030, time.March, 1, 12, 0, 0, 0, time.UTC)

	RevokeToken(ctx, database, "old", now.Add(-time.Hour))
	RevokeToken(ctx, database, "new", now.Add(time.Hour))

	// Revoking does not purge on its own.
	if revoked, _ := IsTokenRevoked(ctx, database, "old"); !revoked {
		t.Fatal("old revocation should stay until purged")
	}

	n, err := PurgeExpiredRevocations(ctx, database, now)
	if err != nil {
		t.Fatalf("PurgeExpiredRevocations: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged entry, got %d", n)
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "old"); revoked {
		t.Error("expired revocation should have been purged")
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "new"); !revoked {
		t.Error("live revocation should remain")
	}

	if n, _ := PurgeExpiredRevocations(ctx, database, now); n != 0 {
		t.Errorf("second purge removed %d entries", n)
	}
}
