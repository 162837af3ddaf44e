package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlistings "venuehub/internal/domain/listings"
)

// ListingRepository reads listings owned by hosts.
type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection("listings")}
}

func (r *ListingRepository) Listing(ctx context.Context, host domainlistings.HostID, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDocument
	filter := bson.M{"_id": string(id), "host_id": string(host)}
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ListingRepository) Save(ctx context.Context, l *domainlistings.Listing) error {
	doc := newListingDocument(l)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

type listingDocument struct {
	ID     string          `bson:"_id"`
	HostID string          `bson:"host_id"`
	Title  string          `bson:"title"`
	Photos []photoDocument `bson:"photos"`
}

type photoDocument struct {
	URL  string `bson:"url"`
	Main bool   `bson:"main,omitempty"`
}

func newListingDocument(l *domainlistings.Listing) listingDocument {
	doc := listingDocument{ID: string(l.ID), HostID: string(l.Host), Title: l.Title}
	for _, p := range l.Photos {
		doc.Photos = append(doc.Photos, photoDocument{URL: p.URL, Main: p.Main})
	}
	return doc
}

func (d listingDocument) toDomain() *domainlistings.Listing {
	out := &domainlistings.Listing{
		ID:    domainlistings.ListingID(d.ID),
		Host:  domainlistings.HostID(d.HostID),
		Title: d.Title,
	}
	for _, p := range d.Photos {
		out.Photos = append(out.Photos, domainlistings.Photo{URL: p.URL, Main: p.Main})
	}
	return out
}

var _ domainlistings.Catalog = (*ListingRepository)(nil)
