package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fieldops/livetrack/internal/core/domain"
)

const collectionBookings = "bookings"

// BookingRepository implements ports.BookingRepository using MongoDB. Only
// the status slice of the booking document is touched here; the rest of the
// document belongs to the surrounding application.
type BookingRepository struct {
	client *mongo.Client
	col    *mongo.Collection
}

func NewBookingRepository(client *mongo.Client, db *mongo.Database) *BookingRepository {
	return &BookingRepository{client: client, col: db.Collection(collectionBookings)}
}

// FindByID retrieves the booking's narrow projection (order code, owner,
// current status).
func (r *BookingRepository) FindByID(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var b domain.Booking
	err := r.col.FindOne(ctx, bson.M{"_id": bookingID}).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// UpdateStatus writes status_id and updated_at inside a session transaction.
// On any error the transaction aborts and the row is left untouched; the
// caller only publishes after this returns nil.
func (r *BookingRepository) UpdateStatus(ctx context.Context, bookingID int64, status domain.BookingStatus, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := r.col.UpdateOne(sc,
			bson.M{"_id": bookingID},
			bson.M{"$set": bson.M{
				"status_id":  int(status),
				"updated_at": at.UTC(),
			}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, domain.ErrBookingNotFound
		}
		return nil, nil
	})
	return err
}

// EnsureIndexes creates necessary indexes on the bookings collection.
func (r *BookingRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "identity", Value: 1}},
	})
	return err
}
