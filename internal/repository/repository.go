package repository

import (
	"context"
	"errors"
	"fmt"

	"techstore-order-service/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound         = errors.New("registro no encontrado")
	ErrVersionConflict  = errors.New("el documento cambió desde que se leyó")
	ErrDuplicateOrderID = errors.New("número de pedido duplicado")
	ErrDuplicateEmail   = errors.New("email duplicado")
)

// Mongo implementation
type MongoOrderRepository struct {
	col *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{col: db.Collection("orders")}
}

// EnsureIndexes crea el índice único que evita números de pedido repetidos
// entre varias instancias del servicio.
func (m *MongoOrderRepository) EnsureIndexes(ctx context.Context) error {
	_, err := m.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "order_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "period", Value: 1}, {Key: "sequence", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

func (m *MongoOrderRepository) Insert(ctx context.Context, o *model.Order) error {
	o.Version = 1
	_, err := m.col.InsertOne(ctx, o)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateOrderID
	}
	return err
}

// Save reemplaza el pedido sólo si nadie lo modificó desde que se leyó
// (version == expectedVersion).
func (m *MongoOrderRepository) Save(ctx context.Context, o *model.Order, expectedVersion int64) error {
	next := *o
	next.Version = expectedVersion + 1

	filter := bson.M{"order_id": o.OrderID, "version": expectedVersion}
	res, err := m.col.ReplaceOne(ctx, filter, &next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := m.col.CountDocuments(ctx, bson.M{"order_id": o.OrderID})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	o.Version = next.Version
	return nil
}

func (m *MongoOrderRepository) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	var res model.Order
	err := m.col.FindOne(ctx, bson.M{"order_id": orderID}).Decode(&res)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// MaxSequenceForPeriod devuelve 0 si no hay pedidos en el mes.
func (m *MongoOrderRepository) MaxSequenceForPeriod(ctx context.Context, period string) (int, error) {
	var res struct {
		Sequence int `bson:"sequence"`
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "sequence", Value: -1}}).
		SetProjection(bson.M{"sequence": 1})
	err := m.col.FindOne(ctx, bson.M{"period": period}, opts).Decode(&res)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("max sequence for %s: %w", period, err)
	}
	return res.Sequence, nil
}

func (m *MongoOrderRepository) FindAll(ctx context.Context) ([]*model.Order, error) {
	return m.find(ctx, bson.M{})
}

func (m *MongoOrderRepository) FindByStatus(ctx context.Context, status model.OrderStatus) ([]*model.Order, error) {
	return m.find(ctx, bson.M{"status": status})
}

func (m *MongoOrderRepository) FindByOwner(ctx context.Context, userID string) ([]*model.Order, error) {
	return m.find(ctx, bson.M{"user_id": userID})
}

func (m *MongoOrderRepository) find(ctx context.Context, filter bson.M) ([]*model.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*model.Order{}
	for cur.Next(ctx) {
		var v model.Order
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}
