package main

import (
	"context"
	"os"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/attestry/attestry/internal/config"
	"github.com/attestry/attestry/internal/domain"
	"github.com/attestry/attestry/internal/infra/database"
	"github.com/attestry/attestry/internal/infra/repository"
	"github.com/attestry/attestry/internal/present/rest"
	"github.com/attestry/attestry/internal/present/rest/middleware"
	"github.com/attestry/attestry/internal/service"
	"github.com/attestry/attestry/internal/usecase"
)

func main() {
	confPath := os.Getenv("ATTESTRY_CONFIG")
	if confPath == "" {
		confPath = "config.yaml"
	}

	conf, err := config.Load(confPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if conf.Server.EnableTrace {
		shutdown, err := setupTracer(conf.Server.TraceEndpoint)
		if err != nil {
			panic("failed to set up tracing: " + err.Error())
		}
		defer shutdown()
	}

	var store usecase.RevisionStore
	if conf.Server.PostgresDsn != "" {
		db, err := database.NewPostgres(conf.Server.PostgresDsn)
		if err != nil {
			panic("failed to connect database")
		}
		err = database.MigratePostgres(db)
		if err != nil {
			panic("failed to migrate database")
		}

		if conf.Server.MemcachedAddr != "" {
			store = repository.NewRevisionRepository(db, database.NewMemcached(conf.Server.MemcachedAddr))
		} else {
			store = repository.NewRevisionRepository(db, nil)
		}
	} else {
		store = repository.NewMemoryRevisionStore()
	}

	domainConf := domain.Config{
		FQDN:       conf.NodeInfo.FQDN,
		PrivateKey: conf.NodeInfo.PrivateKey,
		AID:        conf.NodeInfo.AID,
	}

	auth := service.NewAuthService(&domainConf)

	var signal *service.SignalService
	if conf.Server.RedisAddr != "" {
		rdb := database.NewRedis(conf.Server.RedisAddr, "", conf.Server.RedisDB)
		signal = service.NewSignalService(rdb)
	}

	mutation := usecase.NewMutationUsecase(store)
	query := usecase.NewQueryUsecase(store, auth)

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware(conf.NodeInfo.FQDN))
	}

	authMiddleware := middleware.NewAuthMiddleware(auth, domainConf)
	e.Use(authMiddleware.IdentifyViewer)

	h := rest.NewHandler(domainConf, mutation, query, signal)
	h.RegisterRoutes(e)

	listen := conf.Server.Listen
	if listen == "" {
		listen = ":8000"
	}

	e.Logger.Fatal(e.Start(listen))
}

func setupTracer(endpoint string) (func(), error) {
	ctx := context.Background()

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "attestry"),
		)),
	)
	otel.SetTracerProvider(tp)

	return func() {
		tp.Shutdown(context.Background())
	}, nil
}
