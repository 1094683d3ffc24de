package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	chclient "atlas/internal/adapters/clickhouse"
	"atlas/internal/adapters/config"
	"atlas/internal/adapters/kafka"
	pgclient "atlas/internal/adapters/postgres"
	redisclient "atlas/internal/adapters/redis"
	"atlas/internal/adapters/transport"
	"atlas/internal/domain/asset"
	"atlas/internal/domain/fund"
	"atlas/internal/domain/message"
	"atlas/internal/domain/pricing"
	"atlas/internal/events"
	"atlas/internal/metrics"
	chrepo "atlas/internal/repository/clickhouse"
	pgrepo "atlas/internal/repository/postgres"
	redisrepo "atlas/internal/repository/redis"
	"atlas/internal/services/access"
	"atlas/internal/services/ledger"
	"atlas/internal/services/router"
	"atlas/internal/workers"
	"atlas/pkg/errors"
	"atlas/pkg/logger"
)

// Container holds all application dependencies in initialization order
type Container struct {
	Config *config.Config
	Log    *logger.Logger

	// Infrastructure
	PG       *pgclient.Client
	CH       *chclient.Client
	Redis    *redisclient.Client
	Producer *kafka.Producer
	History  *chrepo.BufferedQuoteHistory

	// Repositories
	Repos *Repositories

	// Domain
	Assets     *asset.Registry
	Aggregator *pricing.Aggregator

	// Services
	Access *access.Service
	Ledger *ledger.Service
	Router *router.Service

	// Background processing
	Publisher *events.Publisher
	Inbound   *transport.InboundListener
	Scheduler *workers.Scheduler

	// Observability
	MetricsServer *http.Server
}

// Repositories groups the persistent stores
type Repositories struct {
	Funds    fund.Repository
	Balances fund.BalanceRepository
	Messages message.Repository
	Nonces   message.NonceRepository
	History  pricing.HistoryRepository
	Cache    pricing.SnapshotCache
}

// New wires the full application graph
func New(cfg *config.Config) (*Container, error) {
	log := logger.Get()

	c := &Container{
		Config: cfg,
		Log:    log,
	}

	if err := c.initInfrastructure(); err != nil {
		return nil, err
	}
	c.initRepositories()
	if err := c.initServices(); err != nil {
		return nil, err
	}
	c.initBackground()

	log.Info("Container initialized",
		"chain_id", cfg.Chain.LocalChainID,
		"admin", cfg.App.Admin,
	)
	return c, nil
}

func (c *Container) initInfrastructure() error {
	pg, err := pgclient.NewClient(c.Config.Postgres)
	if err != nil {
		return errors.Wrap(err, "connect postgres")
	}
	c.PG = pg

	ch, err := chclient.NewClient(c.Config.ClickHouse)
	if err != nil {
		return errors.Wrap(err, "connect clickhouse")
	}
	c.CH = ch

	rd, err := redisclient.NewClient(c.Config.Redis)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	c.Redis = rd

	c.Producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers: c.Config.Kafka.Brokers,
	})

	return nil
}

func (c *Container) initRepositories() {
	db := c.PG.DB()

	c.History = chrepo.NewBufferedQuoteHistory(
		chrepo.NewQuoteHistoryRepository(c.CH.Conn()),
		c.Config.Aggregator.HistoryBatchSize,
		c.Config.Aggregator.HistoryFlushAge,
	)

	c.Repos = &Repositories{
		Funds:    pgrepo.NewFundRepository(db),
		Balances: pgrepo.NewShareBalanceRepository(db),
		Messages: pgrepo.NewMessageRepository(db),
		Nonces:   pgrepo.NewNonceRepository(db),
		History:  c.History,
		Cache:    redisrepo.NewPriceCache(c.Redis.Client(), c.Config.Aggregator.SnapshotTTL),
	}
}

func (c *Container) initServices() error {
	c.Assets = asset.NewRegistry()
	c.Access = access.NewService(c.Config.App.Admin)
	c.Publisher = events.NewPublisher(c.Producer)

	c.Aggregator = pricing.NewAggregator(pricing.Config{
		MinSources:     c.Config.Aggregator.MinSources,
		MaxQuoteAge:    c.Config.Aggregator.MaxQuoteAge,
		QuoteRateLimit: c.Config.Aggregator.QuoteRateLimit,
		QuoteRateBurst: c.Config.Aggregator.QuoteRateBurst,
	}, c.Repos.History)

	minRedeem, err := decimal.NewFromString(c.Config.Ledger.MinRedeemShares)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "min redeem shares %q", c.Config.Ledger.MinRedeemShares)
	}

	c.Ledger = ledger.NewService(
		c.Repos.Funds,
		c.Repos.Balances,
		c.Assets,
		c.Aggregator,
		c.Access,
		c.Publisher,
		ledger.Config{MinRedeemShares: minRedeem},
	)

	fees, err := router.NewFeeSchedule(c.Config.Chain)
	if err != nil {
		return errors.Wrap(err, "build fee schedule")
	}

	outbound := transport.NewKafkaTransport(
		c.Producer,
		c.Config.Router.SendRetries,
		c.Config.Router.SendRetryDelay,
	)

	c.Router = router.NewService(
		c.Repos.Messages,
		c.Repos.Nonces,
		outbound,
		c.Ledger,
		fees,
		c.Access,
		c.Publisher,
		router.Config{
			LocalChainID:    c.Config.Chain.LocalChainID,
			FreshnessWindow: c.Config.Router.FreshnessWindow,
		},
	)

	return nil
}

func (c *Container) initBackground() {
	inboundConsumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: c.Config.Kafka.Brokers,
		GroupID: c.Config.Kafka.GroupID,
		Topic:   kafka.ChainTopic(c.Config.Chain.LocalChainID),
	})
	c.Inbound = transport.NewInboundListener(inboundConsumer, c.Router)

	c.Scheduler = workers.NewScheduler()
	c.Scheduler.RegisterWorker(workers.NewRebalanceMonitorWorker(
		c.Repos.Funds, c.Ledger, c.Publisher, c.Config.Workers,
	))
	c.Scheduler.RegisterWorker(workers.NewQuotePrunerWorker(
		c.Aggregator, c.Config.Workers,
	))
	c.Scheduler.RegisterWorker(workers.NewPriceSnapshotWorker(
		c.Assets, c.Aggregator, c.Repos.Cache, c.Config.Workers.PriceSnapshotInterval,
	))

	metrics.Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", c.handleHealth)
	c.MetricsServer = &http.Server{
		Addr:    c.Config.App.MetricsAddr,
		Handler: mux,
	}
}

func (c *Container) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range map[string]func(context.Context) error{
		"postgres":   c.PG.Health,
		"clickhouse": c.CH.Health,
		"redis":      c.Redis.Health,
	} {
		if err := check(ctx); err != nil {
			c.Log.Warn("Health check failed", "dependency", name, "error", err)
			http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
