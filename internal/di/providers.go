package di

import (
	"context"
	"fmt"
	"time"

	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/domain/repository"
	"CoinTrend/internal/domain/service"
	"CoinTrend/internal/handler/api"
	internalrepo "CoinTrend/internal/repository"
	"CoinTrend/internal/repository/memory"
	"CoinTrend/internal/services/notify"
	"CoinTrend/internal/services/providers/binance"
	"CoinTrend/internal/services/providers/sentiment"
	"CoinTrend/internal/services/registry"
	"CoinTrend/internal/services/symbol"
	"CoinTrend/internal/usecase"
	"CoinTrend/pkg/cache"
	pkgch "CoinTrend/pkg/clickhouse"
	"CoinTrend/pkg/config"
	xhttp "CoinTrend/pkg/http"
	pkgkafka "CoinTrend/pkg/kafka"
	"CoinTrend/pkg/logger"
	"CoinTrend/pkg/metrics"
	"CoinTrend/pkg/postgres"
	"CoinTrend/pkg/queue"
	"CoinTrend/pkg/server"
)

const connectTimeout = 10 * time.Second

// Stores groups the repositories; each one is backed by a database when configured and by memory otherwise.
type Stores struct {
	Assets  repository.AssetRepository
	Symbols repository.SymbolRepository
	Users   repository.UserRepository
	Events  repository.EventRepository
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideKafkaProducer creates a Kafka producer, or nil without brokers.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled() {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: p.RequiredAcks,
		Compression:  p.Compression,
		MaxAttempts:  p.MaxAttempts,
		WriteTimeout: p.WriteTimeout,
		BatchSize:    p.BatchSize,
		BatchTimeout: p.BatchTimeout,
		Async:        p.Async,
		HashByKey:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. Error logs are shipped to Kafka when a collect topic is set.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.CollectTopic != "" && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logging.CollectInterval,
			CountThreshold: cfg.Logging.CollectMax,
			Topic:          cfg.Logging.CollectTopic,
			Publisher:      producer,
			Service:        "cointrend",
		})
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvidePostgres opens the pool and applies migrations, or returns nil when postgres is not configured.
func ProvidePostgres(cfg *config.Config, log *logger.Logger) (*postgres.Client, error) {
	pc := cfg.Postgres
	if !pc.Enabled() {
		log.Warn("postgres not configured, symbols and users are kept in memory")
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := postgres.New(ctx, postgres.Config{
		DSN:             pc.DSN,
		Host:            pc.Host,
		Port:            pc.Port,
		Database:        pc.Database,
		User:            pc.User,
		Password:        pc.Password,
		SSLMode:         pc.SSLMode,
		MaxConns:        pc.MaxConns,
		MinConns:        pc.MinConns,
		MaxConnLifetime: pc.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if pc.RunMigrations {
		if err := client.RunMigrations(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
	}
	return client, nil
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when clickhouse is not configured.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	cc := cfg.ClickHouse
	if !cc.Enabled() {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx, pkgch.Config{
		Host:         cc.Host,
		Port:         cc.Port,
		Database:     cc.Database,
		User:         cc.User,
		Password:     cc.Password,
		UseHTTP:      cc.UseHTTP,
		AsyncInsert:  cc.AsyncInsert,
		WaitForAsync: cc.WaitForAsync,
		DialTimeout:  cc.DialTimeout,
		ReadTimeout:  cc.ReadTimeout,
		MaxExecTime:  cc.MaxExecutionTime,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRedisCache connects to redis, or returns nil when redis is not configured.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	rc := cfg.Redis
	if !rc.Enabled() {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Host:         rc.Host,
		Port:         rc.Port,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
		Prefix:       rc.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return c, nil
}

// ProvideCache returns redis when available and a process-local cache otherwise.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc != nil {
		return rc
	}
	return cache.NewMemoryCache()
}

// ProvideLocker returns the distributed lock, nil without redis.
func ProvideLocker(rc *cache.RedisCache) repository.Locker {
	if rc == nil {
		return nil
	}
	return rc
}

// ProvideStores picks the backing store of every repository.
func ProvideStores(cfg *config.Config, pg *postgres.Client, ch *pkgch.Client, log *logger.Logger) (*Stores, error) {
	s := &Stores{}
	if pg != nil {
		symbols := internalrepo.NewPGSymbolRepository(pg.Pool())
		symbols.SetLogger(log)
		s.Assets = internalrepo.NewPGAssetRepository(pg.Pool())
		s.Symbols = symbols
		s.Users = internalrepo.NewPGUserRepository(pg.Pool())
	} else {
		users := make([]*models.User, 0, len(cfg.Users))
		for _, u := range cfg.Users {
			users = append(users, &models.User{
				ID:             u.ID,
				Email:          u.Email,
				Username:       u.Username,
				TelegramChatID: u.TelegramChatID,
				AlertLimit:     u.AlertLimit,
			})
		}
		s.Assets = memory.NewAssetRepository()
		s.Symbols = memory.NewSymbolRepository()
		s.Users = memory.NewUserRepository(users...)
	}

	if ch != nil {
		events := internalrepo.NewCHEventStore(ch, cfg.ClickHouse.Table)
		events.SetLogger(log)
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := events.Init(ctx); err != nil {
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		s.Events = events
	} else {
		log.Warn("clickhouse not configured, events are kept in memory")
		s.Events = memory.NewEventRepository()
	}
	return s, nil
}

// ProvideQueue creates the redis job queue, or nil without redis.
func ProvideQueue(cfg *config.Config, log *logger.Logger, rc *cache.RedisCache) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	return queue.NewRedisQueue(log, queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		PollEvery:  cfg.Queue.PollEvery,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
}

func ProvideNotifyManager(log *logger.Logger, m repository.Metrics) *notify.Manager {
	return notify.NewManager(log, m)
}

// ProvideNotifiers builds every enabled notifier. The email job is registered on the queue here.
func ProvideNotifiers(
	cfg *config.Config,
	log *logger.Logger,
	stores *Stores,
	locker repository.Locker,
	producer *pkgkafka.Producer,
	rc *cache.RedisCache,
	q *queue.RedisQueue,
) ([]service.Notifier, error) {
	nc := cfg.Notifiers
	mode := models.MatchMode(cfg.Chance.MatchMode)
	audience := notify.NewAudience(stores.Users, locker, mode, log)

	var out []service.Notifier
	if nc.Kafka.Enabled && producer != nil {
		out = append(out, notify.NewKafkaNotifier(producer, nc.Kafka.Topic, mode))
	}
	if nc.Telegram.Enabled {
		out = append(out, notify.NewTelegramNotifier(nc.Telegram.Token, audience, nc.Telegram.MaxRetries, nc.Telegram.RetryDelay, log))
	}
	if nc.Email.Enabled && q != nil {
		err := q.RegisterJob(notify.NewEmailJob(&notify.SMTPMailer{
			Host:     nc.Email.Host,
			Port:     nc.Email.Port,
			Username: nc.Email.Username,
			Password: nc.Email.Password,
			From:     nc.Email.From,
		}))
		if err != nil {
			return nil, err
		}
		out = append(out, notify.NewEmailNotifier(q, audience))
	}
	if nc.Push.Enabled && rc != nil {
		out = append(out, notify.NewPushNotifier(rc, audience))
	}
	if nc.Webhook.Enabled {
		client := xhttp.NewClient(xhttp.WithTimeout(nc.Webhook.Timeout))
		out = append(out, notify.NewWebhookNotifier(client, nc.Webhook.URL, nc.Webhook.Headers, mode))
	}
	return out, nil
}

func ProvideEventPipeline(cfg *config.Config, stores *Stores, manager *notify.Manager, m repository.Metrics, log *logger.Logger) *usecase.EventPipeline {
	return usecase.NewEventPipeline(stores.Events, manager, m, log, cfg.Notifiers.Timeout)
}

// ProvideRegistry creates the symbol registry; signals fire into the event pipeline.
func ProvideRegistry(
	cfg *config.Config,
	stores *Stores,
	pipeline *usecase.EventPipeline,
	locker repository.Locker,
	m repository.Metrics,
	log *logger.Logger,
) *registry.Registry {
	opts := []registry.Option{
		registry.WithMetrics(m),
		registry.WithSignalOptions(
			symbol.WithDecayPeriod(cfg.Chance.DecayPeriod),
			symbol.WithPercentileAmount(cfg.Chance.PercentileAmount),
		),
	}
	if locker != nil {
		opts = append(opts, registry.WithLocker(locker, cfg.Registry.LockTTL))
	}
	return registry.New(stores.Assets, stores.Symbols, pipeline, log, opts...)
}

func ProvideSampleProcessor(reg *registry.Registry, m repository.Metrics) *usecase.SampleProcessor {
	return usecase.NewSampleProcessor(reg, m)
}

// ProvideSentimentHandler returns the sentiment handler, or nil when the provider is off.
func ProvideSentimentHandler(cfg *config.Config, reg *registry.Registry, sp *usecase.SampleProcessor, log *logger.Logger) *sentiment.Handler {
	sc := cfg.Sentiment
	if !sc.Enabled || !cfg.Kafka.Enabled() {
		return nil
	}
	return sentiment.NewHandler(sentiment.Config{
		Topic:  sc.Topic,
		MaxAge: sc.MaxAge,
		Assets: sentiment.AssetsHelper{Short: sc.Short, LongToShort: sc.LongToShort},
	}, reg, sp, log)
}

// ProvideKafkaConsumer creates the consumer that serves the sentiment topic, or nil when nothing consumes.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger, h *sentiment.Handler) (*pkgkafka.Consumer, error) {
	if h == nil {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:    cfg.Kafka.Brokers,
		GroupID:    kc.GroupID,
		Workers:    kc.Workers,
		BufferSize: kc.BufferSize,
		RetryMax:   kc.RetryMax,
		BackoffMin: kc.BackoffMin,
		BackoffMax: kc.BackoffMax,
		DLQTopic:   kc.DLQTopic,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.LoggingHook(log, cfg.Metrics.SlowThreshold),
	))
	if err := consumer.RegisterHandler(h); err != nil {
		return nil, err
	}
	return consumer, nil
}

// ProvideProviders returns the providers run by the app. Sentiment runs inside the kafka consumer instead.
func ProvideProviders(cfg *config.Config, sp *usecase.SampleProcessor, log *logger.Logger) []service.Provider {
	var out []service.Provider
	if bc := cfg.Binance; bc.Enabled {
		pairs := make([]binance.Pair, 0, len(bc.Pairs))
		for _, p := range bc.Pairs {
			pairs = append(pairs, binance.Pair{Base: p.Base, Quote: p.Quote})
		}
		out = append(out, binance.New(binance.Config{
			URL:            bc.URL,
			Interval:       bc.Interval,
			Pairs:          pairs,
			Gain:           bc.Gain,
			ReconnectDelay: bc.ReconnectDelay,
			PingInterval:   bc.PingInterval,
			Burst:          bc.Burst,
			RefillPerSec:   bc.RefillPerSec,
		}, sp, log))
	}
	return out
}

func ProvidePreferenceUseCase(reg *registry.Registry, stores *Stores) *usecase.PreferenceUseCase {
	return usecase.NewPreferenceUseCase(reg, stores.Users)
}

func ProvideEventUseCase(cfg *config.Config, stores *Stores) *usecase.EventUseCase {
	return usecase.NewEventUseCase(stores.Events, stores.Users, models.MatchMode(cfg.Chance.MatchMode))
}

// ProvideRouter assembles the API handlers.
func ProvideRouter(
	cfg *config.Config,
	log *logger.Logger,
	prefs *usecase.PreferenceUseCase,
	events *usecase.EventUseCase,
	reg *registry.Registry,
	c cache.Service,
) *api.Router {
	eh := api.NewEventsHandler(log, events)
	if cfg.Server.AnalysisCacheTTL > 0 {
		eh.SetCache(c, cfg.Server.AnalysisCacheTTL)
	}
	return api.NewRouter(api.NewPreferencesHandler(log, prefs), eh, api.NewSymbolsHandler(reg))
}

func ProvideHTTPServer(cfg *config.Config, router *api.Router, log *logger.Logger) *xhttp.Server {
	sc := cfg.Server
	return xhttp.NewServer(xhttp.ServerConfig{
		Host:            sc.Host,
		Port:            sc.Port,
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		ShutdownTimeout: sc.ShutdownTimeout,
		CORS:            sc.CORS,
		Metrics:         cfg.Metrics.Enabled,
		SlowThreshold:   cfg.Metrics.SlowThreshold,
	}, router, log)
}

// ProvideApp creates the application server. Optional components are attached only when configured.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	reg *registry.Registry,
	manager *notify.Manager,
	pipeline *usecase.EventPipeline,
	srv *xhttp.Server,
	notifiers []service.Notifier,
	providers []service.Provider,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	pg *postgres.Client,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	c cache.Service,
) *server.App {
	opts := []server.Option{
		server.WithNotifiers(notifiers...),
		server.WithProviders(providers...),
		server.WithSaveInterval(cfg.Registry.SaveInterval),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer))
	}
	if q != nil {
		opts = append(opts, server.WithQueue(q))
	}

	if pg != nil {
		opts = append(opts, server.WithCloser("postgres", func() error { pg.Close(); return nil }))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch.Close))
	}
	opts = append(opts, server.WithCloser("cache", c.Close))
	if producer != nil {
		opts = append(opts,
			server.WithCloser("log collector", func() error { log.RemoveCollector(); return nil }),
			server.WithCloser("kafka producer", producer.Close),
		)
	}

	return server.New(log, reg, manager, pipeline, srv, opts...)
}
