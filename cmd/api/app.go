package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"supply-daddy-api-server/config"
	"supply-daddy-api-server/internal/admin"
	"supply-daddy-api-server/internal/anomaly"
	"supply-daddy-api-server/internal/audit"
	"supply-daddy-api-server/internal/auth"
	"supply-daddy-api-server/internal/blockchain"
	"supply-daddy-api-server/internal/ca"
	"supply-daddy-api-server/internal/checkpoint"
	"supply-daddy-api-server/internal/database"
	"supply-daddy-api-server/internal/events"
	"supply-daddy-api-server/internal/ledger"
	"supply-daddy-api-server/internal/logger"
	"supply-daddy-api-server/internal/metrics"
	"supply-daddy-api-server/internal/narrative"
	"supply-daddy-api-server/internal/routegraph"
	"supply-daddy-api-server/internal/s3"
	"supply-daddy-api-server/internal/scheduler"
	"supply-daddy-api-server/internal/shipment"
	"supply-daddy-api-server/internal/socket"
	"supply-daddy-api-server/internal/users"
)

const narrativeQueueSize = 256

// app holds every component of a running process.
type app struct {
	cfg       config.Config
	log       *logrus.Logger
	store     *database.Store
	ledger    ledger.Ledger
	metrics   *metrics.Metrics
	engine    *checkpoint.Engine
	hub       *socket.Hub
	worker    *narrative.Worker
	scheduler *scheduler.Scheduler
	shipments *shipment.Service
	admin     *admin.Service
	users     *users.Service
	auditor   *audit.Auditor
	tokens    *auth.TokenManager
	fabric    *blockchain.FabricSetup

	closers []func(ctx context.Context)
}

func loadConfig() (config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("could not load config: %w", err)
	}
	return cfg, logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat), nil
}

// openStorage connects the repositories and the ledger picked by the store
// and ledger drivers. It is shared by every command.
func (a *app) openStorage(ctx context.Context) error {
	storeDriver := strings.ToLower(a.cfg.Store.Driver)
	ledgerDriver := strings.ToLower(a.cfg.Ledger.Driver)

	var db *mongo.Database
	if storeDriver == "mongo" || ledgerDriver == "mongo" {
		client, mdb, err := database.Connect(ctx, a.cfg.Mongo.URI, a.cfg.Mongo.DBName)
		if err != nil {
			return err
		}
		db = mdb
		a.closers = append(a.closers, func(ctx context.Context) { _ = client.Disconnect(ctx) })
		a.log.WithField("db", a.cfg.Mongo.DBName).Info("connected to MongoDB")
	}

	switch storeDriver {
	case "", "memory":
		a.store = database.NewMemoryStore()
	case "mongo":
		store, err := database.NewMongoStore(ctx, db)
		if err != nil {
			return err
		}
		a.store = store
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}

	switch ledgerDriver {
	case "", "memory":
		a.ledger = ledger.NewMemory()
	case "mongo":
		l := ledger.NewMongo(db)
		if err := l.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ledger indexes: %w", err)
		}
		a.ledger = l
	case "fabric":
		setup, err := blockchain.Initialize(a.cfg.Fabric, a.log)
		if err != nil {
			return err
		}
		a.fabric = setup
		a.ledger = blockchain.NewFabricLedger(setup.Contract)
		a.closers = append(a.closers, func(context.Context) { setup.Close() })
	default:
		return fmt.Errorf("unknown ledger driver %q", a.cfg.Ledger.Driver)
	}
	a.log.WithFields(logrus.Fields{"store": a.cfg.Store.Driver, "ledger": a.cfg.Ledger.Driver}).Info("storage ready")
	return nil
}

// build wires the full server: engine, enrichment, events, services and the
// transit scheduler.
func (a *app) build(ctx context.Context, reg prometheus.Registerer) error {
	if err := a.openStorage(ctx); err != nil {
		return err
	}

	graph, err := routegraph.New(routegraph.DefaultNodes(), routegraph.DefaultEdges(), a.cfg.Routes.DefaultTravelHours)
	if err != nil {
		return fmt.Errorf("route graph: %w", err)
	}

	var gate checkpoint.Gate = checkpoint.NewLocalGate()
	if a.cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		gate = checkpoint.NewRedisGate(rdb, a.cfg.Redis.LockKey, a.cfg.Redis.LockTTL)
		a.closers = append(a.closers, func(context.Context) { _ = rdb.Close() })
		a.log.Info("submission gate backed by Redis")
	}

	a.hub = socket.NewHub(a.log)
	fanout := events.NewFanout(a.log, a.hub)
	if len(a.cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.log)
		if err != nil {
			return err
		}
		fanout.Add(kp)
		a.closers = append(a.closers, kp.Close)
		a.log.WithField("topic", a.cfg.Kafka.Topic).Info("streaming events to Kafka")
	}

	var (
		narrator   narrative.Narrator = narrative.Template{}
		classifier narrative.DocumentClassifier
	)
	if a.cfg.GenAI.APIKey != "" {
		gemini, err := narrative.NewGemini(ctx, a.cfg.GenAI.APIKey, a.cfg.GenAI.Model, a.cfg.GenAI.Timeout)
		if err != nil {
			return err
		}
		narrator, classifier = gemini, gemini
	}
	a.worker = narrative.NewWorker(narrator, a.store.Anomalies, a.cfg.GenAI.Workers, narrativeQueueSize, a.log)

	var archiver shipment.Archiver
	if a.cfg.S3.Bucket != "" {
		uploader, err := s3.NewUploader(ctx, a.cfg.S3)
		if err != nil {
			return err
		}
		archiver = uploader
	}

	a.metrics = metrics.New(reg)
	a.engine = checkpoint.NewEngine(checkpoint.Deps{
		Shipments:  a.store.Shipments,
		Anomalies:  a.store.Anomalies,
		Ledger:     a.ledger,
		Graph:      graph,
		Classifier: anomaly.New(anomaly.ConfigFrom(a.cfg.Risk)),
		Gate:       gate,
		Events:     fanout,
		Enricher:   a.worker,
		Metrics:    a.metrics,
		Log:        a.log,
	})

	a.tokens, err = auth.NewTokenManager(a.cfg.JWT.Secret, a.cfg.JWT.Expiration)
	if err != nil {
		return err
	}
	var enroller users.Enroller
	if a.fabric != nil {
		enroller = ca.NewService(a.fabric.SDK, a.fabric.Wallet, a.cfg.Fabric, a.log)
	}

	a.scheduler = scheduler.New(a.engine, scheduler.ConfigFrom(a.cfg.Simulation), a.log, a.metrics)
	a.shipments = shipment.NewService(shipment.Deps{
		Engine:     a.engine,
		Users:      a.store.Users,
		Archiver:   archiver,
		Classifier: classifier,
		Log:        a.log,
	})
	a.admin = admin.NewService(a.engine, a.scheduler, a.log)
	a.users = users.NewService(a.store.Users, a.tokens, enroller, a.log)
	a.auditor = audit.NewAuditor(a.store.Shipments, a.ledger)
	return nil
}

func (a *app) seed(ctx context.Context) error {
	enrollmentID := ""
	if a.fabric != nil {
		enrollmentID = a.cfg.Fabric.UserName
	}
	return database.SeedSuperAdmin(ctx, a.store.Users, a.cfg.SuperAdmin.Email, a.cfg.SuperAdmin.Password, enrollmentID, a.log)
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}
