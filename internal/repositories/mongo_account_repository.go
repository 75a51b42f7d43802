package repositories

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/authz"
	"storefront/internal/models"
)

type mongoAccountRepository struct {
	col *mongo.Collection
}

func NewMongoAccountRepository(db *mongo.Database) AccountRepository {
	return &mongoAccountRepository{col: db.Collection("accounts")}
}

// EnsureAccountIndexes creates the unique email/phone indexes.
func EnsureAccountIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("accounts").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "phone", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("accounts indexes: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) Create(ctx context.Context, a *models.Account) error {
	a.UpdatedAt = a.CreatedAt
	_, err := r.col.InsertOne(ctx, a)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("account create: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) findOne(ctx context.Context, filter bson.M) (*models.Account, error) {
	var a models.Account
	err := r.col.FindOne(ctx, filter).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account get: %w", err)
	}
	return &a, nil
}

func (r *mongoAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *mongoAccountRepository) GetByPhone(ctx context.Context, phone string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"phone": phone})
}

func (r *mongoAccountRepository) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"$or": bson.A{
		bson.M{"email": email},
		bson.M{"phone": phone},
	}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("account exists: %w", err)
	}
	return n > 0, nil
}

func mongoAccountFilter(f models.AccountFilter) bson.M {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		rx := bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"name": rx},
			bson.M{"email": rx},
			bson.M{"phone": rx},
		}
	}
	return filter
}

func (r *mongoAccountRepository) List(ctx context.Context, f models.AccountFilter) ([]*models.Account, int, error) {
	filter := mongoAccountFilter(f)
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("account list: count: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("account list: %w", err)
	}
	defer cur.Close(ctx)

	var res []*models.Account
	if err := cur.All(ctx, &res); err != nil {
		return nil, 0, fmt.Errorf("account list: decode: %w", err)
	}
	return res, int(total), nil
}

func (r *mongoAccountRepository) update(ctx context.Context, op, id string, set bson.M, unset bson.M) error {
	set["updated_at"] = time.Now().UTC()
	upd := bson.M{"$set": set}
	if len(unset) > 0 {
		upd["$unset"] = unset
	}
	res, err := r.col.UpdateByID(ctx, id, upd)
	if err != nil {
		return fmt.Errorf("account %s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoAccountRepository) UpdateLoginState(ctx context.Context, id string, failedAttempts int, lockUntil *time.Time) error {
	if lockUntil == nil {
		return r.update(ctx, "update login state", id,
			bson.M{"failed_attempts": failedAttempts}, bson.M{"lock_until": ""})
	}
	return r.update(ctx, "update login state", id,
		bson.M{"failed_attempts": failedAttempts, "lock_until": *lockUntil}, nil)
}

const loginStateRetries = 10

var errLoginStateContention = errors.New("account modify login state: too many concurrent updates")

// ModifyLoginState is a compare-and-swap on the counters: the write only
// lands if nobody changed them since the read, otherwise it starts over.
func (r *mongoAccountRepository) ModifyLoginState(ctx context.Context, id string, fn LoginStateFunc) (authz.LoginState, error) {
	for i := 0; i < loginStateRetries; i++ {
		var cur struct {
			FailedAttempts int        `bson:"failed_attempts"`
			LockUntil      *time.Time `bson:"lock_until,omitempty"`
		}
		err := r.col.FindOne(ctx, bson.M{"_id": id},
			options.FindOne().SetProjection(bson.M{"failed_attempts": 1, "lock_until": 1}),
		).Decode(&cur)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return authz.LoginState{}, ErrNotFound
		}
		if err != nil {
			return authz.LoginState{}, fmt.Errorf("account modify login state: %w", err)
		}

		next := fn(authz.LoginState{FailedAttempts: cur.FailedAttempts, LockUntil: cur.LockUntil})

		// null матчит и отсутствующее поле
		filter := bson.M{"_id": id, "failed_attempts": cur.FailedAttempts, "lock_until": nil}
		if cur.LockUntil != nil {
			filter["lock_until"] = *cur.LockUntil
		}
		set := bson.M{"failed_attempts": next.FailedAttempts, "updated_at": time.Now().UTC()}
		upd := bson.M{"$set": set}
		if next.LockUntil != nil {
			set["lock_until"] = *next.LockUntil
		} else {
			upd["$unset"] = bson.M{"lock_until": ""}
		}
		res, err := r.col.UpdateOne(ctx, filter, upd)
		if err != nil {
			return authz.LoginState{}, fmt.Errorf("account modify login state: %w", err)
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
	}
	return authz.LoginState{}, errLoginStateContention
}

func (r *mongoAccountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, "update last login", id, bson.M{"last_login": at}, nil)
}

func (r *mongoAccountRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.update(ctx, "update password", id, bson.M{"password_hash": hash}, nil)
}

func (r *mongoAccountRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.update(ctx, "update status", id, bson.M{"status": status}, nil)
}
