// config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	StorageDriver string // mongo | memory
	MongoURI      string
	MongoDBName   string
	MongoTimeout  time.Duration

	// JSON con productos para el catálogo en memoria.
	CatalogSeedFile string

	RabbitEnabled bool
	RabbitURL     string

	JWTSecret    string
	JWTTTL       time.Duration
	BcryptCost   int
	LoginMaxFail int
	LoginLockFor time.Duration

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	TaxRate               float64
	FreeShippingThreshold int64
	ShippingStandard      int64
	ShippingExpress       int64
	ShippingOvernight     int64

	RateLimitRPS       float64
	RateLimitBurst     int
	AuthRateLimitRPS   float64
	AuthRateLimitBurst int

	LogLevel string
}

// Load lee un .env si existe y después las variables de entorno.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("leer .env: %w", err)
	}
	return FromEnv()
}

// FromEnv arma la configuración sólo desde el entorno y la valida.
func FromEnv() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "mongo")),
		MongoURI:      getEnv("MONGO_URI", "mongodb://host.docker.internal:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "techstore_orders"),
		MongoTimeout:  p.duration("MONGO_TIMEOUT", 10*time.Second),

		CatalogSeedFile: getEnv("CATALOG_SEED_FILE", ""),

		RabbitEnabled: p.boolean("RABBIT_ENABLED", true),
		RabbitURL:     getEnv("RABBIT_URL", "amqp://host.docker.internal"),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTTTL:       p.duration("JWT_TTL", 7*24*time.Hour),
		BcryptCost:   p.integer("BCRYPT_COST", 12),
		LoginMaxFail: p.integer("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockFor: p.duration("LOGIN_LOCK_DURATION", 30*time.Minute),

		BootstrapAdminEmail:    os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),

		TaxRate:               p.float("TAX_RATE", 0.19),
		FreeShippingThreshold: p.int64("FREE_SHIPPING_THRESHOLD", 200000),
		ShippingStandard:      p.int64("SHIPPING_STANDARD", 25000),
		ShippingExpress:       p.int64("SHIPPING_EXPRESS", 45000),
		ShippingOvernight:     p.int64("SHIPPING_OVERNIGHT", 75000),

		// 100 peticiones cada 15 minutos, y 5 para /auth
		RateLimitRPS:       p.float("RATE_LIMIT_RPS", 100.0/900),
		RateLimitBurst:     p.integer("RATE_LIMIT_BURST", 100),
		AuthRateLimitRPS:   p.float("AUTH_RATE_LIMIT_RPS", 5.0/900),
		AuthRateLimitBurst: p.integer("AUTH_RATE_LIMIT_BURST", 5),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rechaza configuraciones con las que el servicio no debe arrancar.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET es obligatorio"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL debe ser positivo"))
	}
	if c.LoginMaxFail <= 0 || c.LoginLockFor <= 0 {
		errs = append(errs, errors.New("LOGIN_MAX_ATTEMPTS y LOGIN_LOCK_DURATION deben ser positivos"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST fuera de rango: %d", c.BcryptCost))
	}
	if c.TaxRate < 0 || c.TaxRate > 1 {
		errs = append(errs, fmt.Errorf("TAX_RATE debe estar entre 0 y 1, es %v", c.TaxRate))
	}
	if c.FreeShippingThreshold < 0 || c.ShippingStandard < 0 || c.ShippingExpress < 0 || c.ShippingOvernight < 0 {
		errs = append(errs, errors.New("los costos de envío no pueden ser negativos"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 || c.AuthRateLimitRPS <= 0 || c.AuthRateLimitBurst <= 0 {
		errs = append(errs, errors.New("los límites de peticiones deben ser positivos"))
	}
	if c.StorageDriver != "mongo" && c.StorageDriver != "memory" {
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER desconocido: %q", c.StorageDriver))
	}
	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_EMAIL y BOOTSTRAP_ADMIN_PASSWORD van juntos"))
	}
	return errors.Join(errs...)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// parser junta los errores de conversión para reportarlos todos juntos.
type parser struct {
	errs []error
}

func (p *parser) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (p *parser) fail(key, v string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q: %w", key, v, err))
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

func (p *parser) integer(key string, fallback int) int {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) int64(key string, fallback int64) int64 {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return f
}

func (p *parser) boolean(key string, fallback bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}
