package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/orders"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/scheduler"
	"github.com/Ramsey-B/fern/pkg/softone"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/woocommerce"
)

// infra holds the process resources started by the startup graph.
type infra struct {
	provider  *sdktrace.TracerProvider
	db        *database.DatabaseInstance
	redis     *redis.Client
	publisher events.Publisher
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	checker := health.NewChecker(cfg.Version)

	res := &infra{publisher: events.Nop{}}
	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	for _, dep := range dependencies(cfg, logger, res) {
		boot.AddDependency(dep)
	}
	if err := boot.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = boot.Stop(stopCtx)
	}()

	policy, err := catalog.ParseStalePolicy(cfg.ImportStalePolicy)
	if err != nil {
		return err
	}

	softCfg := softone.Config{
		Endpoint:         cfg.SoftOneEndpoint,
		Username:         cfg.SoftOneUsername,
		Password:         cfg.SoftOnePassword,
		AppID:            cfg.SoftOneAppID,
		Company:          cfg.SoftOneCompany,
		Branch:           cfg.SoftOneBranch,
		Module:           cfg.SoftOneModule,
		RefID:            cfg.SoftOneRefID,
		DefaultTTL:       cfg.SoftOneSessionTTL,
		Timeout:          cfg.SoftOneTimeout,
		LoginExpiryPaths: cfg.SoftOneLoginExpiryPaths,
		AuthExpiryPaths:  cfg.SoftOneAuthExpiryPaths,
	}

	options := repositories.NewOptionRepository(res.db, logger)
	links := repositories.NewProductLinkRepository(res.db, logger)
	fast := redis.NewStore(res.redis, cfg.RedisKeyPrefix)

	transport := softone.NewTransport(softCfg, logger)
	sessions := softone.NewSessionManager(softCfg, transport, fast, options, logger)
	erp := softone.NewClient(softCfg, transport, sessions, logger)

	store := woocommerce.NewClient(woocommerce.Config{
		StoreURL:       cfg.WooCommerceURL,
		ConsumerKey:    cfg.WooCommerceConsumerKey,
		ConsumerSecret: cfg.WooCommerceConsumerSecret,
		Version:        cfg.WooCommerceVersion,
		Timeout:        cfg.WooCommerceTimeout,
	}, logger)
	products := woocommerce.NewProductStore(store, links, logger)
	taxonomy := woocommerce.NewTaxonomy(store, logger)
	orderStore := woocommerce.NewOrderStore(store)
	customers := woocommerce.NewCustomerSync(store, erp, cfg.ExportCountryCodes, logger)

	engine := catalog.NewEngine(
		catalog.NewERPItemSource(erp, cfg.SoftOneItemsSQL, cfg.SoftOneDeltaParam),
		products,
		taxonomy,
		catalog.NewStaleHandler(products, policy, cfg.ImportStalePageSize, logger),
		options,
		catalog.EngineOptions{
			ImportCategories:  cfg.ImportCategories,
			ImportAttributes:  cfg.ImportAttributes,
			DefaultFullImport: cfg.ImportDefaultFull,
		},
		logger,
	)
	imports := catalog.NewService(engine, catalog.NewStateStore(fast, cfg.ImportStateTTL), res.publisher, logger)

	exporter := orders.NewExporter(orders.Config{
		Series:             cfg.ExportSeries,
		QualifyingStatuses: cfg.ExportQualifyingStatuses,
		MaxAttempts:        cfg.ExportMaxAttempts,
		CustomerLookupSQL:  cfg.SoftOneCustomerLookupSQL,
		CountryCodes:       cfg.ExportCountryCodes,
		PaymentCodes:       cfg.ExportPaymentCodes,
		ShipmentCode:       cfg.ExportShipmentCode,
		GuestCustomerCode:  cfg.ExportGuestCustomerCode,
	}, erp, orderStore, products, customers, res.publisher, logger)
	exporter.SetDeadLetters(redis.NewDeadLetterQueue(res.redis, cfg.RedisKeyPrefix+"export-dlq", logger))

	checker.AddCheck("postgres", res.db.PingContext)
	checker.AddCheck("redis", res.redis.Ping)
	checker.AddOptionalCheck("softone", func(ctx context.Context) error {
		_, err := sessions.GetClientID(ctx, false)
		return err
	})

	e, api, err := newServer(ctx, cfg, logger, checker)
	if err != nil {
		return err
	}
	handlers.NewImportHandler(imports, cfg.ImportBatchSize).RegisterRoutes(api)
	handlers.NewOrderHandler(exporter).RegisterRoutes(api)
	handlers.NewConnectionHandler(erp).RegisterRoutes(api)

	sched := scheduler.New(scheduler.Config{
		Interval:           cfg.SchedulerInterval,
		FullImportInterval: cfg.SchedulerFullImportInterval,
		BatchSize:          cfg.ImportBatchSize,
		LockTTL:            cfg.SchedulerLockTTL,
	}, imports, redis.NewLocker(res.redis, cfg.RedisKeyPrefix+"lock:"), logger)
	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Scheduler stopped")
		}
	}()

	checker.SetReady(true)
	return serve(ctx, cfg, logger, e)
}

func dependencies(cfg *config.Config, logger ectologger.Logger, res *infra) []startup.Dependency {
	return []startup.Dependency{
		&startup.Func{
			Name: "tracing",
			OnStart: func(ctx context.Context) error {
				var exporter sdktrace.SpanExporter
				if cfg.OTLPEnabled {
					exp, err := tracing.NewOTLPExporter(ctx, tracing.OTLPConfig{
						Endpoint: cfg.OTLPEndpoint,
						Protocol: cfg.OTLPProtocol,
						Insecure: cfg.OTLPInsecure,
					})
					if err != nil {
						return fmt.Errorf("create otlp exporter: %w", err)
					}
					exporter = exp
				}
				res.provider = tracing.NewProvider(cfg.AppName, exporter)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return res.provider.Shutdown(ctx)
			},
		},
		&startup.Func{
			Name: "postgres",
			OnStart: func(ctx context.Context) error {
				db, err := database.Open(ctx, database.Config{
					Host:            cfg.DatabaseHost,
					Port:            cfg.DatabasePort,
					User:            cfg.DatabaseUserName,
					Password:        cfg.DatabasePassword,
					Name:            cfg.DatabaseName,
					SSLMode:         cfg.DatabaseSSLMode,
					MaxOpenConns:    cfg.DatabaseMaxOpenConns,
					MaxIdleConns:    cfg.DatabaseMaxIdleConns,
					ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
				}, logger)
				if err != nil {
					return err
				}

				migrations := database.NewMigrationService(logger, database.MigrationConfig{
					MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
					Version:             cfg.DatabaseMigrationVersion,
					Force:               cfg.DatabaseMigrationForce,
				})
				if err := migrations.Migrate(db.DB, cfg.DatabaseName); err != nil {
					_ = db.Close()
					return err
				}
				res.db = db
				return nil
			},
			OnStop: func(context.Context) error {
				return res.db.Close()
			},
		},
		&startup.Func{
			Name: "redis",
			OnStart: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				if err != nil {
					return err
				}
				res.redis = client
				return nil
			},
			OnStop: func(context.Context) error {
				return res.redis.Close()
			},
		},
		&startup.Func{
			Name:     "kafka",
			Requires: []string{"tracing"},
			OnStart: func(context.Context) error {
				kcfg := kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
				if len(kcfg.Brokers) == 0 {
					logger.Info("No Kafka brokers configured, lifecycle events are disabled")
					return nil
				}
				res.publisher = kafka.NewProducer(kcfg, logger)
				return nil
			},
			OnStop: func(context.Context) error {
				if producer, ok := res.publisher.(*kafka.Producer); ok {
					return producer.Close()
				}
				return nil
			},
		},
	}
}

// newServer builds the echo instance and the /api/v1 group the sync handlers hang off.
func newServer(ctx context.Context, cfg *config.Config, logger ectologger.Logger, checker *health.Checker) (*echo.Echo, *echo.Group, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger, handlers.ClassifyError)

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName, otelecho.WithSkipper(func(c echo.Context) bool {
		return strings.HasPrefix(c.Path(), "/api/v1/health") || c.Path() == "/metrics"
	})))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var apiMiddleware []echo.MiddlewareFunc
	if cfg.AuthEnabled {
		auth, err := middleware.Authentication(ctx, logger, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return nil, nil, err
		}
		apiMiddleware = append(apiMiddleware, auth)
	}
	return e, e.Group("/api/v1", apiMiddleware...), nil
}

func serve(ctx context.Context, cfg *config.Config, logger ectologger.Logger, e *echo.Echo) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
