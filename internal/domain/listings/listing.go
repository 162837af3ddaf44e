package listings

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("listings: listing not found")

type ListingID string

type HostID string

// Photo is one picture of a venue; Main marks the cover photo.
type Photo struct {
	URL  string
	Main bool
}

// Listing is the venue summary the messaging core needs: who hosts it, its
// title and its photos.
type Listing struct {
	ID     ListingID
	Host   HostID
	Title  string
	Photos []Photo
}

// Catalog reads listings from the host's listing collection.
type Catalog interface {
	Listing(ctx context.Context, host HostID, id ListingID) (*Listing, error)
}

// RepresentativePhoto returns the main photo, else the first one, else "".
func (l *Listing) RepresentativePhoto() string {
	if l == nil {
		return ""
	}
	for _, p := range l.Photos {
		if p.Main && strings.TrimSpace(p.URL) != "" {
			return p.URL
		}
	}
	for _, p := range l.Photos {
		if strings.TrimSpace(p.URL) != "" {
			return p.URL
		}
	}
	return ""
}
