package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/truthtally/truthtally/internal/model"
	"github.com/truthtally/truthtally/internal/store"
)

func TestUsersAndRoles(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	user := model.User{ID: "u1", Email: "a@example.com", PasswordHash: "hash", Role: model.RoleUser, CreatedAt: epoch}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	dup := user
	dup.ID = "u2"
	if err := st.CreateUser(ctx, dup); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}

	if err := st.SetUserRole(ctx, "u1", model.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	got, err := st.GetUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.Role != model.RoleAdmin || got.PasswordHash != "hash" {
		t.Fatalf("unexpected user %+v", got)
	}
	if err := st.SetUserRole(ctx, "missing", model.RoleMod); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := st.GetUser(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTokens(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	if err := st.CreateUser(ctx, model.User{ID: "u1", Email: "a@example.com", PasswordHash: "x", Role: model.RoleUser, CreatedAt: epoch}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	expires := time.Now().Add(time.Hour).UTC()
	if err := st.CreateToken(ctx, model.Token{Token: "tok", UserID: "u1", ExpiresAt: expires}); err != nil {
		t.Fatalf("create token: %v", err)
	}

	tok, err := st.GetToken(ctx, "tok")
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if tok.UserID != "u1" || !tok.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected token %+v", tok)
	}

	if err := st.DeleteToken(ctx, "tok"); err != nil {
		t.Fatalf("delete token: %v", err)
	}
	if _, err := st.GetToken(ctx, "tok"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// Tokens must reference a real user.
	if err := st.CreateToken(ctx, model.Token{Token: "orphan", UserID: "nobody", ExpiresAt: expires}); err == nil {
		t.Fatalf("expected foreign key violation")
	}
}
