package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"techstore-order-service/internal/clock"
	"techstore-order-service/internal/config"
	"techstore-order-service/internal/controller"
	"techstore-order-service/internal/ledger"
	"techstore-order-service/internal/middleware"
	"techstore-order-service/internal/model"
	"techstore-order-service/internal/rabbit"
	"techstore-order-service/internal/repository"
	"techstore-order-service/internal/service"
	"techstore-order-service/internal/token"
)

func main() {
	if err := run(); err != nil {
		slog.Error("el servicio terminó con error", "error", err)
		os.Exit(1)
	}
}

type stores struct {
	orders     service.OrderRepository
	principals service.PrincipalRepository
	catalog    service.ProductCatalog
	close      func(context.Context) error
}

// seedCatalog carga el catálogo en memoria desde un JSON [{id, name, price, ...}].
func seedCatalog(path string) (*repository.MemoryProductCatalog, error) {
	catalog := repository.NewMemoryProductCatalog()
	if path == "" {
		return catalog, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer catálogo: %w", err)
	}
	var products []model.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("catálogo inválido: %w", err)
	}
	for _, p := range products {
		catalog.Put(p)
	}
	return catalog, nil
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	if cfg.StorageDriver == "memory" {
		log.Warn("usando almacenamiento en memoria; los datos se pierden al reiniciar")
		catalog, err := seedCatalog(cfg.CatalogSeedFile)
		if err != nil {
			return nil, err
		}
		return &stores{
			orders:     repository.NewMemoryOrderRepository(),
			principals: repository.NewMemoryPrincipalRepository(),
			catalog:    catalog,
			close:      func(context.Context) error { return nil },
		}, nil
	}

	// Conexión a MongoDB
	connectCtx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI).SetTimeout(cfg.MongoTimeout))
	if err != nil {
		return nil, fmt.Errorf("conectar a MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("ping a MongoDB: %w", err)
	}
	db := client.Database(cfg.MongoDBName)

	orders := repository.NewMongoOrderRepository(db)
	principals := repository.NewMongoPrincipalRepository(db)
	if err := orders.EnsureIndexes(connectCtx); err != nil {
		return nil, fmt.Errorf("índices de pedidos: %w", err)
	}
	if err := principals.EnsureIndexes(connectCtx); err != nil {
		return nil, fmt.Errorf("índices de usuarios: %w", err)
	}
	log.Info("conectado a MongoDB", "db", cfg.MongoDBName)

	return &stores{
		orders:     orders,
		principals: principals,
		catalog:    repository.NewMongoProductCatalog(db),
		close:      client.Disconnect,
	}, nil
}

func pricingFrom(cfg *config.Config) ledger.Pricing {
	return ledger.Pricing{
		TaxRate: cfg.TaxRate,
		Shipping: ledger.ShippingPolicy{
			FreeThreshold: cfg.FreeShippingThreshold,
			Costs: map[model.ShippingMethod]int64{
				model.ShippingStandard:  cfg.ShippingStandard,
				model.ShippingExpress:   cfg.ShippingExpress,
				model.ShippingOvernight: cfg.ShippingOvernight,
				model.ShippingPickup:    0,
			},
		},
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuración: %w", err)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			log.Error("cerrando almacenamiento", "error", err)
		}
	}()

	clk := clock.System()
	codec, err := token.NewJWTCodec(cfg.JWTSecret, cfg.JWTTTL, clk)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	// Repositorio y servicios
	authService := service.NewAuthService(st.principals, codec, clk,
		service.WithLockoutPolicy(model.LockoutPolicy{MaxAttempts: cfg.LoginMaxFail, LockDuration: cfg.LoginLockFor}),
		service.WithBcryptCost(cfg.BcryptCost),
		service.WithAuthLogger(log),
	)
	if cfg.BootstrapAdminEmail != "" {
		if _, err := authService.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
			return fmt.Errorf("crear administrador inicial: %w", err)
		}
	}

	orderOpts := []service.OrderOption{
		service.WithPricing(pricingFrom(cfg)),
		service.WithCatalog(st.catalog),
		service.WithOrderLogger(log),
	}

	// Conexión a RabbitMQ
	var conn *amqp091.Connection
	if cfg.RabbitEnabled {
		conn, err = amqp091.Dial(cfg.RabbitURL)
		if err != nil {
			return fmt.Errorf("conectar a RabbitMQ: %w", err)
		}
		defer conn.Close()

		pubCh, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("canal de publicación: %w", err)
		}
		publisher, err := rabbit.NewPublisher(pubCh)
		if err != nil {
			return err
		}
		orderOpts = append(orderOpts, service.WithPublisher(publisher))
	}
	orderService := service.NewOrderService(st.orders, clk, orderOpts...)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := controller.NewRouter(ctx, controller.RouterDeps{
		Gate:         service.NewGate(codec, st.principals, clk),
		Auth:         authService,
		Orders:       orderService,
		Logger:       log,
		APILimit:     middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		AuthAPILimit: middleware.RateLimitConfig{RequestsPerSecond: cfg.AuthRateLimitRPS, Burst: cfg.AuthRateLimitBurst, Message: "demasiados intentos de autenticación, intenta en 15 minutos"},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if conn != nil {
		consumeCh, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("canal de consumo: %w", err)
		}
		consumer := rabbit.NewCartCommittedConsumer(orderService, log)
		done, err := rabbit.SetupConsumers(gctx, consumeCh, consumer, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			select {
			case <-done:
				if gctx.Err() == nil {
					return errors.New("el consumidor de RabbitMQ se detuvo")
				}
			case <-gctx.Done():
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info("TechStore order service ejecutándose", "port", cfg.Port, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("apagando servidor HTTP")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
