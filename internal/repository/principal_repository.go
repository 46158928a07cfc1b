package repository

import (
	"context"
	"strings"
	"time"

	"techstore-order-service/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoPrincipalRepository struct {
	col *mongo.Collection
}

func NewMongoPrincipalRepository(db *mongo.Database) *MongoPrincipalRepository {
	return &MongoPrincipalRepository{col: db.Collection("users")}
}

func (m *MongoPrincipalRepository) EnsureIndexes(ctx context.Context) error {
	_, err := m.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "role", Value: 1}}},
	})
	return err
}

func (m *MongoPrincipalRepository) FindByID(ctx context.Context, id string) (*model.Principal, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoPrincipalRepository) FindByEmail(ctx context.Context, email string) (*model.Principal, error) {
	return m.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (m *MongoPrincipalRepository) findOne(ctx context.Context, filter bson.M) (*model.Principal, error) {
	var p model.Principal
	err := m.col.FindOne(ctx, filter).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *MongoPrincipalRepository) Insert(ctx context.Context, p *model.Principal) error {
	_, err := m.col.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (m *MongoPrincipalRepository) Save(ctx context.Context, p *model.Principal) error {
	res, err := m.col.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailedLogin hace en una sola operación atómica lo mismo que
// model.Principal.RegisterFailedLogin, para que dos logins fallidos
// simultáneos no pierdan un incremento.
func (m *MongoPrincipalRepository) RecordFailedLogin(ctx context.Context, id string, now time.Time, policy model.LockoutPolicy) (*model.Principal, error) {
	farFuture := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	epoch := time.Unix(0, 0).UTC()

	lockExpired := bson.D{{Key: "$lte", Value: bson.A{
		bson.D{{Key: "$ifNull", Value: bson.A{"$lock_until", farFuture}}}, now,
	}}}
	lockedNow := bson.D{{Key: "$gt", Value: bson.A{
		bson.D{{Key: "$ifNull", Value: bson.A{"$lock_until", epoch}}}, now,
	}}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "_reset", Value: lockExpired},
			{Key: "failed_attempts", Value: bson.D{{Key: "$cond", Value: bson.A{
				lockExpired,
				1,
				bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$failed_attempts", 0}}}, 1}}},
			}}}},
			{Key: "lock_until", Value: bson.D{{Key: "$cond", Value: bson.A{lockExpired, nil, "$lock_until"}}}},
			{Key: "updated_at", Value: now},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "lock_until", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$not", Value: bson.A{"$_reset"}}},
					bson.D{{Key: "$gte", Value: bson.A{"$failed_attempts", policy.MaxAttempts}}},
					bson.D{{Key: "$not", Value: bson.A{lockedNow}}},
				}}},
				now.Add(policy.LockDuration),
				"$lock_until",
			}}}},
		}}},
		{{Key: "$unset", Value: "_reset"}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var p model.Principal
	err := m.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *MongoPrincipalRepository) ClearFailedLogins(ctx context.Context, id string, now time.Time) error {
	update := bson.M{"$set": bson.M{
		"failed_attempts": 0,
		"lock_until":      nil,
		"last_login":      now,
		"updated_at":      now,
	}}
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
