package providers

import (
	"context"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"

	"github.com/fumikura/outfeed/internal/config"
	"github.com/fumikura/outfeed/internal/devserver/storage"
)

// NewDatabase opens a Postgres connection using the configured DSN.
func NewDatabase(conf config.Server) (*gorm.DB, error) {
	return storage.NewPostgres(conf.PostgresDsn)
}

// MigrateDatabase applies migrations for the dev server models.
func MigrateDatabase(db *gorm.DB) error {
	return storage.MigratePostgres(db)
}

// NewRedis creates the pub/sub client for the signal service.
func NewRedis(conf config.Server) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: conf.RedisAddr,
		DB:   conf.RedisDB,
	})
}

// NewMemcache creates a memcache client for the page-count cache.
func NewMemcache(addr string) *memcache.Client {
	return memcache.New(addr)
}

// SetupTraceProvider installs an OTLP/HTTP trace exporter and returns its
// shutdown function. Call only when tracing is enabled in config.
func SetupTraceProvider(ctx context.Context, conf config.Server) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(conf.TraceEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
