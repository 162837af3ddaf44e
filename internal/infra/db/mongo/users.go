package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"venuehub/internal/app/profiles"
)

// UserRepository reads display profiles from the users collection.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection("users")}
}

func (r *UserRepository) Profile(ctx context.Context, userID string) (profiles.Profile, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return profiles.Profile{}, profiles.ErrNotFound
		}
		return profiles.Profile{}, err
	}
	return doc.toProfile(), nil
}

// Save upserts the profile fields that are set.
func (r *UserRepository) Save(ctx context.Context, p profiles.Profile) error {
	set := bson.M{}
	if p.DisplayName != "" {
		set["display_name"] = p.DisplayName
	}
	if p.Email != "" {
		set["email"] = p.Email
	}
	if p.PhotoURL != "" {
		set["photo_url"] = p.PhotoURL
	}
	if len(set) == 0 {
		return nil
	}
	_, err := r.col.UpdateByID(ctx, p.UserID, bson.M{"$set": set}, options.Update().SetUpsert(true))
	return err
}

func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": userID})
	return err
}

type userDocument struct {
	ID          string `bson:"_id"`
	DisplayName string `bson:"display_name"`
	Email       string `bson:"email"`
	PhotoURL    string `bson:"photo_url"`
}

func (d userDocument) toProfile() profiles.Profile {
	return profiles.Profile{UserID: d.ID, DisplayName: d.DisplayName, Email: d.Email, PhotoURL: d.PhotoURL}
}

var _ profiles.Source = (*UserRepository)(nil)
