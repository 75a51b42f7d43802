package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

type mongoOneTimeCodeRepository struct {
	col *mongo.Collection
}

func NewMongoOneTimeCodeRepository(db *mongo.Database) OneTimeCodeRepository {
	return &mongoOneTimeCodeRepository{col: db.Collection("one_time_codes")}
}

// EnsureOneTimeCodeIndexes creates the per-key unique index and the two TTL
// indexes: one on expires_at, one on created_at with the absolute retention.
func EnsureOneTimeCodeIndexes(ctx context.Context, db *mongo.Database, retention time.Duration) error {
	_, err := db.Collection("one_time_codes").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "identifier", Value: 1}, {Key: "purpose", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
		},
	})
	if err != nil {
		return fmt.Errorf("one_time_codes indexes: %w", err)
	}
	return nil
}

func (r *mongoOneTimeCodeRepository) Replace(ctx context.Context, c *models.OneTimeCode) error {
	c.Used, c.Attempts = false, 0
	filter := bson.M{"identifier": c.Identifier, "purpose": c.Purpose}
	update := bson.M{
		"$set": bson.M{
			"code":       c.Code,
			"expires_at": c.ExpiresAt,
			"used":       false,
			"attempts":   0,
			"created_at": c.CreatedAt,
		},
		"$setOnInsert": bson.M{"_id": c.ID},
	}
	opts := options.Update().SetUpsert(true)

	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if isDuplicate(err) {
		// два upsert'а на один ключ: второй повторяем как обычный update
		res, err = r.col.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		return fmt.Errorf("one_time_code replace: %w", err)
	}
	if res.UpsertedID == nil {
		// запись переиспользована, _id остался прежним
		var existing struct {
			ID string `bson:"_id"`
		}
		if err := r.col.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&existing); err != nil {
			return fmt.Errorf("one_time_code replace: reload id: %w", err)
		}
		c.ID = existing.ID
	}
	return nil
}

func (r *mongoOneTimeCodeRepository) FindActive(ctx context.Context, identifier, purpose string, now time.Time) (*models.OneTimeCode, error) {
	var c models.OneTimeCode
	err := r.col.FindOne(ctx, bson.M{
		"identifier": identifier,
		"purpose":    purpose,
		"used":       false,
		"expires_at": bson.M{"$gt": now},
	}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("one_time_code find active: %w", err)
	}
	return &c, nil
}

func (r *mongoOneTimeCodeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var c models.OneTimeCode
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "used": false},
		bson.M{"$inc": bson.M{"attempts": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("one_time_code increment attempts: %w", err)
	}
	return c.Attempts, nil
}

func (r *mongoOneTimeCodeRepository) MarkUsed(ctx context.Context, id string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "used": false},
		bson.M{"$set": bson.M{"used": true}},
	)
	if err != nil {
		return fmt.Errorf("one_time_code mark used: %w", err)
	}
	if res.ModifiedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoOneTimeCodeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("one_time_code delete: %w", err)
	}
	return nil
}

// PurgeExpired is normally redundant with the TTL indexes (the TTL monitor
// runs once a minute), but keeps the contract identical to Postgres.
func (r *mongoOneTimeCodeRepository) PurgeExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"expires_at": bson.M{"$lte": now}},
		bson.M{"created_at": bson.M{"$lte": now.Add(-retention)}},
	}})
	if err != nil {
		return 0, fmt.Errorf("one_time_code purge: %w", err)
	}
	return res.DeletedCount, nil
}
