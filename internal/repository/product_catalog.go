package repository

import (
	"context"
	"sync"

	"techstore-order-service/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProductCatalog lee la colección products que mantiene el servicio de
// catálogo. Nunca escribe en ella.
type MongoProductCatalog struct {
	col *mongo.Collection
}

func NewMongoProductCatalog(db *mongo.Database) *MongoProductCatalog {
	return &MongoProductCatalog{col: db.Collection("products")}
}

var productProjection = bson.M{"name": 1, "price": 1, "mainImage": 1, "inStock": 1, "quantity": 1}

// productFilter acepta ids ObjectID (hex) y también ids de texto.
func productFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": id}
}

func (m *MongoProductCatalog) FindProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	opts := options.FindOne().SetProjection(productProjection)
	err := m.col.FindOne(ctx, productFilter(id), opts).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ID = id
	return &p, nil
}

// MemoryProductCatalog sirve para tests y para STORAGE_DRIVER=memory.
type MemoryProductCatalog struct {
	mu       sync.RWMutex
	products map[string]model.Product
}

func NewMemoryProductCatalog(products ...model.Product) *MemoryProductCatalog {
	c := &MemoryProductCatalog{products: make(map[string]model.Product)}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

func (m *MemoryProductCatalog) Put(p model.Product) {
	m.mu.Lock()
	m.products[p.ID] = p
	m.mu.Unlock()
}

func (m *MemoryProductCatalog) FindProduct(_ context.Context, id string) (*model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}
