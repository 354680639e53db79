package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fieldops/livetrack/internal/core/domain"
)

const collectionLocations = "tech_locations"

// LocationRepository implements ports.LocationRepository using MongoDB.
// The collection holds exactly one document per identity (_id = identity);
// an upsert replaces the previous sample unconditionally.
type LocationRepository struct {
	col *mongo.Collection
}

func NewLocationRepository(db *mongo.Database) *LocationRepository {
	return &LocationRepository{col: db.Collection(collectionLocations)}
}

// Upsert overwrites the identity's sample, latest-write-wins.
func (r *LocationRepository) Upsert(ctx context.Context, s *domain.LocationSample) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": s.Identity}, s, opts)
	return err
}

// Latest returns up to limit samples, most recently updated first.
func (r *LocationRepository) Latest(ctx context.Context, limit int) ([]*domain.LocationSample, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	samples := make([]*domain.LocationSample, 0)
	for cur.Next(ctx) {
		var s domain.LocationSample
		if err := cur.Decode(&s); err != nil {
			return nil, err
		}
		samples = append(samples, &s)
	}
	return samples, cur.Err()
}

// EnsureIndexes creates necessary indexes on the locations collection.
func (r *LocationRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: -1}},
	})
	return err
}
