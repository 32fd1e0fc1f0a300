package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clubline/internal/config"
	"clubline/internal/domain"
	"clubline/internal/repo"
)

// ResolveClub picks the active club and ensures it exists in the DB, seeding
// from the config when missing. It prefers an explicit subdomain override,
// then the configured subdomain, then a single-club DB. A club created on the
// fly makes the acting user its first manager.
func ResolveClub(ctx context.Context, subdomainOverride, actorID string, r repo.Repo, cfg *config.Config) (domain.Club, error) {
	subdomain := subdomainOverride
	if subdomain == "" && cfg != nil {
		subdomain = cfg.Club.Subdomain
	}
	if subdomain == "" {
		clubs, err := r.ListClubs(ctx)
		if err != nil {
			return domain.Club{}, err
		}
		if len(clubs) == 1 {
			return clubs[0], nil
		}
		return domain.Club{}, fmt.Errorf("club not specified; use --club or set club.subdomain")
	}
	c, err := r.GetClubBySubdomain(ctx, subdomain)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Club{}, err
	}
	return createClub(ctx, r, subdomain, actorID, cfg)
}

// createClub inserts a minimal club footprint: the club row, the acting user
// when unknown, and a manager membership for them.
func createClub(ctx context.Context, r repo.Repo, subdomain, actorID string, cfg *config.Config) (domain.Club, error) {
	name := subdomain
	if cfg != nil && cfg.Club.Name != "" {
		name = cfg.Club.Name
	}
	now := time.Now().UTC().Format(time.RFC3339)
	c := domain.Club{
		ID:        subdomain,
		Name:      name,
		Subdomain: subdomain,
		Active:    true,
		CreatedAt: now,
	}
	if err := r.InsertClub(ctx, c); err != nil {
		return c, fmt.Errorf("insert club: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := EnsureUser(ctx, r, actorID); err != nil {
		return c, err
	}
	m := domain.Membership{
		UserID:    actorID,
		ClubID:    c.ID,
		IsManager: true,
		CreatedAt: now,
	}
	if err := r.UpsertMembership(ctx, m); err != nil {
		return c, fmt.Errorf("seed membership: %w", err)
	}
	return c, nil
}

// EnsureUser inserts a user row when none exists yet.
func EnsureUser(ctx context.Context, r repo.Repo, userID string) error {
	_, err := r.GetUser(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	u := domain.User{
		ID:        userID,
		Email:     userID + "@local",
		Active:    true,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.InsertUser(ctx, u); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}
