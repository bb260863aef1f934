package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/fumikura/outfeed/internal/config"
	"github.com/fumikura/outfeed/internal/devserver"
	"github.com/fumikura/outfeed/internal/devserver/middleware"
	"github.com/fumikura/outfeed/internal/devserver/providers"
	"github.com/fumikura/outfeed/internal/devserver/signal"
	"github.com/fumikura/outfeed/internal/devserver/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	ctx := context.Background()

	conf, err := config.Load(ctx, *configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := providers.NewDatabase(conf.Server)
	if err != nil {
		slog.Error("Failed to connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := providers.MigrateDatabase(db); err != nil {
		slog.Error("Failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := providers.NewRedis(conf.Server)
	mc := providers.NewMemcache(conf.Server.MemcachedAddr)

	handler := devserver.NewHandler(
		storage.NewOutputRepository(db),
		signal.NewService(rdb),
		storage.NewPageCountCache(mc),
	)
	auth := middleware.NewAuthMiddleware(middleware.StaticVerifier{})

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(auth.IdentifyRequester)

	if conf.Server.EnableTrace {
		shutdown, err := providers.SetupTraceProvider(ctx, conf.Server)
		if err != nil {
			slog.Error("Failed to set up tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer shutdown(ctx)
		e.Use(otelecho.Middleware("outfeed-devserver"))
	}

	handler.RegisterRoutes(e)

	e.Logger.Fatal(e.Start(conf.Server.Listen))
}
