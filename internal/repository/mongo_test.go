package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"techstore-order-service/internal/model"
)

// testDB abre una base desechable en el Mongo de MONGO_TEST_URI. Sin esa
// variable los tests de integración se saltan.
func testDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI no definido, se omite el test de integración con MongoDB")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetTimeout(10*time.Second))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database("orders_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

// Los pasos se aplican en el pipeline de Mongo y en el modelo en memoria; los
// dos tienen que quedar iguales después de cada intento.
func TestMongoPrincipalRepository_RecordFailedLoginMatchesModel(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	policy := model.LockoutPolicy{MaxAttempts: 3, LockDuration: 30 * time.Minute}

	mongoRepo := NewMongoPrincipalRepository(db)
	require.NoError(t, mongoRepo.EnsureIndexes(ctx))
	memRepo := NewMemoryPrincipalRepository()

	p := &model.Principal{ID: "u-1", Email: "ana@example.com", Role: model.RoleCustomer, Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, mongoRepo.Insert(ctx, p))
	require.NoError(t, memRepo.Insert(ctx, p))

	steps := []struct {
		name       string
		at         time.Duration
		wantCount  int
		wantLocked bool
	}{
		{"primer fallo", 0, 1, false},
		{"segundo fallo", time.Minute, 2, false},
		{"tercer fallo bloquea", 2 * time.Minute, 3, true},
		{"fallo con bloqueo vigente", 10 * time.Minute, 4, true},
		{"bloqueo vencido reinicia en 1", 40 * time.Minute, 1, false},
		{"vuelve a contar", 41 * time.Minute, 2, false},
	}
	for _, st := range steps {
		at := now.Add(st.at)
		fromMongo, err := mongoRepo.RecordFailedLogin(ctx, p.ID, at, policy)
		require.NoError(t, err, st.name)
		fromMem, err := memRepo.RecordFailedLogin(ctx, p.ID, at, policy)
		require.NoError(t, err, st.name)

		assert.Equal(t, st.wantCount, fromMongo.FailedAttempts, st.name)
		assert.Equal(t, fromMem.FailedAttempts, fromMongo.FailedAttempts, st.name)
		assert.Equal(t, st.wantLocked, fromMongo.IsLocked(at), st.name)
		assert.Equal(t, fromMem.IsLocked(at), fromMongo.IsLocked(at), st.name)
		if fromMem.LockUntil != nil {
			require.NotNil(t, fromMongo.LockUntil, st.name)
			assert.True(t, fromMem.LockUntil.Equal(*fromMongo.LockUntil), st.name)
		}
	}

	require.NoError(t, mongoRepo.ClearFailedLogins(ctx, p.ID, now.Add(time.Hour)))
	cleared, err := mongoRepo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, cleared.FailedAttempts)
	assert.Nil(t, cleared.LockUntil)
	require.NotNil(t, cleared.LastLogin)

	_, err = mongoRepo.RecordFailedLogin(ctx, "nadie", now, policy)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMongoPrincipalRepository_DuplicateEmail(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewMongoPrincipalRepository(db)
	require.NoError(t, repo.EnsureIndexes(ctx))

	require.NoError(t, repo.Insert(ctx, &model.Principal{ID: "a", Email: "ana@example.com"}))
	require.ErrorIs(t, repo.Insert(ctx, &model.Principal{ID: "b", Email: "ana@example.com"}), ErrDuplicateEmail)

	got, err := repo.FindByEmail(ctx, " ANA@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestMongoOrderRepository_VersionedSave(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewMongoOrderRepository(db)
	require.NoError(t, repo.EnsureIndexes(ctx))

	o := &model.Order{
		OrderID:  "2026-10-0001",
		Period:   "2026-10",
		Sequence: 1,
		UserID:   "u-1",
		Status:   model.StatusPending,
		Rules:    model.PriceRules{TaxRate: 0.19, ShippingCost: 25000, FreeShippingThreshold: 200000},
	}
	require.NoError(t, repo.Insert(ctx, o))
	require.ErrorIs(t, repo.Insert(ctx, o.Clone()), ErrDuplicateOrderID)

	loaded, err := repo.FindByID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, o.Rules, loaded.Rules)

	loaded.Status = model.StatusConfirmed
	require.NoError(t, repo.Save(ctx, loaded, 1))
	assert.Equal(t, int64(2), loaded.Version)
	require.ErrorIs(t, repo.Save(ctx, o, 1), ErrVersionConflict)

	top, err := repo.MaxSequenceForPeriod(ctx, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, 1, top)
}

func TestMongoProductCatalog_FindProduct(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	oid := primitive.NewObjectID()
	_, err := db.Collection("products").InsertMany(ctx, []any{
		bson.M{"_id": oid, "name": "Laptop", "price": int64(2500000), "mainImage": "laptop.png", "inStock": true, "quantity": 4},
		bson.M{"_id": "sku-1", "name": "Mouse", "price": int64(50000), "inStock": false, "quantity": 0},
	})
	require.NoError(t, err)

	catalog := NewMongoProductCatalog(db)
	p, err := catalog.FindProduct(ctx, oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.Product{ID: oid.Hex(), Name: "Laptop", Price: 2500000, MainImage: "laptop.png", InStock: true, Quantity: 4}, *p)

	p, err = catalog.FindProduct(ctx, "sku-1")
	require.NoError(t, err)
	assert.False(t, p.InStock)

	_, err = catalog.FindProduct(ctx, primitive.NewObjectID().Hex())
	require.ErrorIs(t, err, ErrNotFound)
}
