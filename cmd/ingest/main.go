package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binance-recorder/internal/binance"
	"binance-recorder/internal/cache"
	"binance-recorder/internal/config"
	"binance-recorder/internal/ingestion"
	"binance-recorder/internal/observability"
	"binance-recorder/internal/storage"
	"binance-recorder/internal/storage/clickhouse"
	"binance-recorder/internal/storage/memory"
	"binance-recorder/internal/storage/migrations"
	pgstore "binance-recorder/internal/storage/postgres"
)

// stores bundles the three store gateways of one backend.
type stores struct {
	sessions storage.SessionStore
	trades   storage.TradeStore
	candles  storage.CandleStore
	close    func()
}

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file (defaults only when empty)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of the configured backend")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config)")
	symbol := flag.String("symbol", "", "Trading symbol (overrides config)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	if *useMemory {
		cfg.Storage.Backend = config.BackendMemory
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *symbol != "" {
		cfg.SetSymbol(*symbol)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	// Start metrics server if enabled
	if cfg.Metrics.Addr != "" && cfg.Metrics.Addr != "off" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal cancels, later ones are ignored while shutdown completes
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go ingestion.WatchSignals(done, sigCh, cancel, logger)

	err = run(ctx, cfg, logger)
	close(done)
	signal.Stop(sigCh)

	if err != nil {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// run wires the gateways and stores and runs one ingestion session.
func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	candlePolicy, err := ingestion.ParseCandlePolicy(cfg.CandlePolicy)
	if err != nil {
		return err
	}
	overflow, err := ingestion.ParseOverflowPolicy(cfg.Queue.Overflow)
	if err != nil {
		return err
	}

	rest := binance.NewClient(cfg.Exchange.RestURL,
		binance.WithTimeout(cfg.Exchange.Timeout),
		binance.WithMaxRetries(cfg.Exchange.MaxRetries),
		binance.WithAPIKey(cfg.Exchange.APIKey),
	)

	startupCtx, startupCancel := context.WithTimeout(ctx, cfg.Exchange.Timeout)
	serverTime, err := rest.ServerTime(startupCtx)
	startupCancel()
	if err != nil {
		return fmt.Errorf("reach exchange: %w", err)
	}
	logger.Printf("Exchange reachable, clock skew %v", time.Since(time.UnixMilli(serverTime)).Round(time.Millisecond))

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	var publisher ingestion.Publisher
	if cfg.Redis.Addr != "" {
		pub, err := cache.NewRedisPublisher(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Symbol, cfg.Redis.TTL)
		if err != nil {
			return err
		}
		defer pub.Close()
		publisher = pub
		logger.Printf("Publishing latest records to redis at %s", cfg.Redis.Addr)
	}

	wsConfig := binance.DefaultWSConfig()
	stream, err := binance.DialStream(ctx, cfg.Exchange.WSURL, &wsConfig)
	if err != nil {
		return fmt.Errorf("connect to stream: %w", err)
	}
	defer stream.Close()

	pipeline, err := ingestion.NewPipeline(ingestion.PipelineOptions{
		Symbol:          cfg.Symbol,
		Interval:        cfg.Interval,
		RecentTrades:    cfg.RecentTrades,
		PageLimit:       cfg.KlinePageLimit,
		BatchSize:       cfg.BatchSize,
		CandlePolicy:    candlePolicy,
		QueueCapacity:   cfg.Queue.Capacity,
		Overflow:        overflow,
		ShutdownTimeout: cfg.ShutdownTimeout,
		MarketData:      rest,
		Stream:          stream,
		SessionStore:    st.sessions,
		TradeStore:      st.trades,
		CandleStore:     st.candles,
		Publisher:       publisher,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	logger.Printf("Recording %s (%s klines, %s backend, candle policy %s)",
		cfg.Symbol, cfg.Interval, cfg.Storage.Backend, candlePolicy)
	return pipeline.Run(ctx)
}

// openStores connects the configured backend, applying migrations for SQL backends.
func openStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (*stores, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Println("Using in-memory storage")
		return &stores{
			sessions: memory.NewSessionStore(),
			trades:   memory.NewTradeStore(),
			candles:  memory.NewCandleStore(),
			close:    func() {},
		}, nil

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN, pgstore.WithMaxConns(cfg.Storage.MaxConns))
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Printf("Postgres ready, applied %d migrations", len(applied))
		return &stores{
			sessions: pgstore.NewSessionStore(pool),
			trades:   pgstore.NewTradeStore(pool),
			candles:  pgstore.NewCandleStore(pool),
			close:    pool.Close,
		}, nil

	case config.BackendClickhouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		logger.Println("ClickHouse ready")
		return &stores{
			sessions: clickhouse.NewSessionStore(conn),
			trades:   clickhouse.NewTradeStore(conn),
			candles:  clickhouse.NewCandleStore(conn),
			close:    func() { conn.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
