package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"venuehub/internal/app/profiles"
	"venuehub/internal/domain/listings"
)

type fixtureFile struct {
	Users    []profiles.Profile `json:"users"`
	Listings []listingFixture   `json:"listings"`
}

type listingFixture struct {
	ID     string         `json:"id"`
	Host   string         `json:"host"`
	Title  string         `json:"title"`
	Photos []photoFixture `json:"photos"`
}

type photoFixture struct {
	URL  string `json:"url"`
	Main bool   `json:"main"`
}

type profileWriter interface {
	Save(ctx context.Context, p profiles.Profile) error
}

type listingWriter interface {
	Save(ctx context.Context, l *listings.Listing) error
}

// loadFixtures seeds users and listings for local runs.
func loadFixtures(ctx context.Context, path string, users profileWriter, catalog listingWriter, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fx fixtureFile
	if err := json.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	for _, u := range fx.Users {
		if err := users.Save(ctx, u); err != nil {
			logger.Error("cannot store fixture user", "user_id", u.UserID, "error", err)
		}
	}
	for _, l := range fx.Listings {
		listing := &listings.Listing{ID: listings.ListingID(l.ID), Host: listings.HostID(l.Host), Title: l.Title}
		for _, p := range l.Photos {
			listing.Photos = append(listing.Photos, listings.Photo{URL: p.URL, Main: p.Main})
		}
		if err := catalog.Save(ctx, listing); err != nil {
			logger.Error("cannot store fixture listing", "listing_id", l.ID, "error", err)
		}
	}
	logger.Info("fixtures imported", "users", len(fx.Users), "listings", len(fx.Listings))
	return nil
}
