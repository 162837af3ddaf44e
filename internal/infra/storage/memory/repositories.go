package memory

import (
	"context"
	"sync"

	domainlistings "venuehub/internal/domain/listings"
)

// ListingRepository is an in-memory listing catalog for demos and tests.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]*domainlistings.Listing
}

// NewListingRepository builds an empty repository.
func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		items: make(map[domainlistings.ListingID]*domainlistings.Listing),
	}
}

// Listing returns the host's listing or domainlistings.ErrNotFound.
func (r *ListingRepository) Listing(ctx context.Context, host domainlistings.HostID, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok || listing.Host != host {
		return nil, domainlistings.ErrNotFound
	}
	return cloneListing(listing), nil
}

// Save stores/updates a listing entry.
func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[listing.ID] = cloneListing(listing)
	return nil
}

func cloneListing(l *domainlistings.Listing) *domainlistings.Listing {
	out := *l
	out.Photos = append([]domainlistings.Photo(nil), l.Photos...)
	return &out
}

var _ domainlistings.Catalog = (*ListingRepository)(nil)
