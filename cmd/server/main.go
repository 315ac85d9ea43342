package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/atmx/dsc-engine/internal/api"
	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/config"
	"github.com/atmx/dsc-engine/internal/engine"
	"github.com/atmx/dsc-engine/internal/metrics"
	"github.com/atmx/dsc-engine/internal/oracle"
	"github.com/atmx/dsc-engine/internal/store"
	"github.com/atmx/dsc-engine/internal/token"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env file: %v\n", err)
	}

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(logWriter(cfg.Log), &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Redis (cache and price feeds) ---
	var rdb *redis.Client
	if cfg.Store.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	// --- Initialize store ---
	var st store.Store
	if cfg.Store.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.Store.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}
	if ok, err := store.HasHistory(ctx, st); err != nil {
		slog.Warn("journal check failed", "err", err)
	} else if ok {
		slog.Warn("journal holds operations from an earlier run; engine books start empty and are not restored")
	}

	// --- Tokens, feeds and engine ---
	engineAddr := common.HexToAddress(cfg.Engine.Address)
	minter := common.HexToAddress(cfg.Devnet.Minter)
	dsc := token.NewLedger("Decentralized Stable Coin", api.DebtSymbol, engineAddr)

	devnet := &api.Devnet{
		Minter:     minter,
		Collateral: make(map[asset.ID]*token.Ledger),
		Debt:       dsc,
		Feeds:      make(map[asset.ID]oracle.Publisher),
	}
	ids, assets, err := buildAssets(ctx, cfg.Assets, rdb, devnet)
	if err != nil {
		slog.Error("asset setup failed", "err", err)
		os.Exit(1)
	}

	params, err := cfg.Engine.Params()
	if err != nil {
		slog.Error("invalid engine parameters", "err", err)
		os.Exit(1)
	}

	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	eng, err := engine.New(engineAddr, dsc, ids, assets, params,
		engine.WithJournal(st),
		engine.WithNotifier(wsHub),
		engine.WithLogger(logger),
	)
	if err != nil {
		slog.Error("engine setup failed", "err", err)
		os.Exit(1)
	}

	opts := []api.Option{api.WithRateLimit(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)}
	if cfg.Devnet.Enabled {
		opts = append(opts, api.WithDevnet(devnet))
		slog.Warn("devnet endpoints enabled", "minter", minter.Hex())
	}
	svc := api.NewService(eng, st, wsHub, opts...)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"dsc-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Mount)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("dsc-engine listening",
			"port", cfg.Server.Port,
			"engine", engineAddr.Hex(),
			"assets", len(ids),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down dsc-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("dsc-engine stopped")
}

// logWriter returns stdout, teed into a rotated file when one is configured.
func logWriter(cfg config.LogConfig) io.Writer {
	if cfg.File == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

// buildAssets creates the in-process collateral token and the price feed for
// each configured asset, registering both with devnet.
func buildAssets(ctx context.Context, cfgs []config.AssetConfig, rdb *redis.Client, devnet *api.Devnet) ([]asset.ID, []engine.Asset, error) {
	ids := make([]asset.ID, 0, len(cfgs))
	assets := make([]engine.Asset, 0, len(cfgs))

	for _, ac := range cfgs {
		id, err := asset.ParseID(ac.ID)
		if err != nil {
			return nil, nil, err
		}

		var feed oracle.Source
		switch ac.Feed.Kind {
		case config.FeedRedis:
			if rdb == nil {
				return nil, nil, fmt.Errorf("asset %s: redis feed without redis", id)
			}
			rf := oracle.NewRedisFeed(rdb, ac.Feed.Key, ac.Feed.Decimals)
			if ac.Feed.Price != "" {
				answer, err := feedAnswer(ac.Feed.Price, ac.Feed.Decimals)
				if err != nil {
					return nil, nil, fmt.Errorf("asset %s: %w", id, err)
				}
				if err := rf.Publish(ctx, answer); err != nil {
					return nil, nil, fmt.Errorf("asset %s: seed redis feed: %w", id, err)
				}
			}
			devnet.Feeds[id] = rf
			feed = rf
		default:
			answer, err := feedAnswer(ac.Feed.Price, ac.Feed.Decimals)
			if err != nil {
				return nil, nil, fmt.Errorf("asset %s: %w", id, err)
			}
			sf := oracle.NewStaticFeed(ac.Feed.Decimals, answer)
			devnet.Feeds[id] = sf
			feed = sf
		}

		ledger := token.NewLedger(string(id), string(id), devnet.Minter)
		devnet.Collateral[id] = ledger

		ids = append(ids, id)
		assets = append(assets, engine.Asset{
			Address: common.HexToAddress(ac.Token),
			Token:   ledger,
			Feed:    feed,
		})
		slog.Info("collateral asset registered", "asset", string(id), "feed", ac.Feed.Kind, "decimals", ac.Feed.Decimals)
	}
	return ids, assets, nil
}

// feedAnswer converts a USD price into a raw answer with the feed's decimals.
func feedAnswer(price string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}
