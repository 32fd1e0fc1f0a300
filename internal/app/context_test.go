package app

import (
	"context"
	"testing"

	"clubline/internal/config"
	"clubline/internal/db"
	"clubline/internal/domain"
	"clubline/internal/migrate"
	"clubline/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func TestResolveClubSeedsFromConfig(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	cfg := config.Default("alpine-soaring")
	cfg.Club.Name = "Alpine Soaring"

	c, err := ResolveClub(ctx, "", "pilot-1", r, cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.Subdomain != "alpine-soaring" || c.Name != "Alpine Soaring" {
		t.Fatalf("club = %+v", c)
	}

	// the acting user becomes the first manager
	facts, err := r.MembershipFacts(ctx, "pilot-1", c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !facts.IsMember || !facts.IsManager {
		t.Fatalf("facts = %+v, want manager", facts)
	}

	// resolving again finds the same club instead of reseeding
	again, err := ResolveClub(ctx, "", "pilot-2", r, cfg)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if again.ID != c.ID {
		t.Fatalf("resolved %s, want %s", again.ID, c.ID)
	}
}

func TestResolveClubOverrideWinsOverConfig(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	cfg := config.Default("configured-club")

	c, err := ResolveClub(ctx, "override-club", "pilot-1", r, cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.Subdomain != "override-club" {
		t.Fatalf("subdomain = %s, want override-club", c.Subdomain)
	}
}

func TestResolveClubInfersSingleClub(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	// empty DB, nothing configured
	if _, err := ResolveClub(ctx, "", "pilot-1", r, nil); err == nil {
		t.Fatalf("expected error with no club to infer")
	}

	if err := r.InsertClub(ctx, domain.Club{ID: "only", Name: "Only", Subdomain: "only", Active: true, CreatedAt: "2024-01-01T00:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	c, err := ResolveClub(ctx, "", "pilot-1", r, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.ID != "only" {
		t.Fatalf("club = %+v", c)
	}
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if err := EnsureUser(ctx, r, "pilot-1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := EnsureUser(ctx, r, "pilot-1"); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	u, err := r.GetUser(ctx, "pilot-1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "pilot-1@local" || !u.Active {
		t.Fatalf("user = %+v", u)
	}
}
