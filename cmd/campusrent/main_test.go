package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/store"
)

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(16)
	if err != nil {
		t.Fatalf("generatePassword: %v", err)
	}
	if len(a) != 16 {
		t.Errorf("expected 16 characters, got %d", len(a))
	}
	if err := model.ValidatePassword(a); err != nil {
		t.Errorf("generated password rejected: %v", err)
	}

	b, _ := generatePassword(16)
	if a == b {
		t.Error("two generated passwords are identical")
	}
}

func TestInitDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campusrent.sqlite3")

	database, password, err := initDatabase(path, "Root")
	if err != nil {
		t.Fatalf("initDatabase: %v", err)
	}
	defer database.Close()

	user, err := store.GetUserByLogin(context.Background(), database, "Root")
	if err != nil || user == nil {
		t.Fatalf("manager not created: %v", err)
	}
	if user.Role != model.RoleManager || !user.IsVerified {
		t.Errorf("unexpected manager: role %s, verified %v", user.Role, user.IsVerified)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		t.Error("printed password does not match the stored hash")
	}

	secret, err := store.GetJWTSecret(context.Background(), database)
	if err != nil || secret == "" {
		t.Errorf("JWT secret not available: %v", err)
	}
}
