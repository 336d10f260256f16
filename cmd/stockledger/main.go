package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/erazemk/stockledger/internal/api"
	"github.com/erazemk/stockledger/internal/auth"
	"github.com/erazemk/stockledger/internal/cache"
	"github.com/erazemk/stockledger/internal/config"
	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/events"
	"github.com/erazemk/stockledger/internal/inventory"
	"github.com/erazemk/stockledger/internal/store"
	"github.com/erazemk/stockledger/internal/telemetry"
)

// newLogger builds the production JSON logger or the development console
// logger. If logPath is non-empty, all levels are also written to that file.
func newLogger(production bool, logPath string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if production {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if logPath != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logPath)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, logPath)
	}
	return cfg.Build()
}

func main() {
	fs := flag.NewFlagSet("stockledger", flag.ContinueOnError)

	var envFile string
	fs.StringVar(&envFile, "env", ".env", "")
	fs.StringVar(&envFile, "e", ".env", "")

	var dbPath string
	fs.StringVar(&dbPath, "db", "", "")
	fs.StringVar(&dbPath, "d", "", "")

	var addr string
	fs.StringVar(&addr, "addr", "", "")
	fs.StringVar(&addr, "a", "", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	var issue string
	fs.StringVar(&issue, "token", "", "")
	fs.StringVar(&issue, "t", "", "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: stockledger [flags]

Flags:
  -e, -env <path>           .env file to load (default: .env, optional)
  -d, -db <path>            SQLite database path (default: $DB_PATH or stockledger.db)
  -a, -addr <host:port>     listen address (default: $HTTP_ADDR or :8080)
  -l, -log <path>           log file path (default: no file, stdout/stderr only)
  -t, -token <sub:email>    print a development bearer token and exit
  -h, -help                 show this help and exit
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	cfg := config.Load(envFile)
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	log, err := newLogger(cfg.App.Production(), logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log, issue); err != nil {
		log.Error("stockledger failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger, issue string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	log.Info("database ready", zap.String("path", cfg.Database.Path))

	// Without a configured secret, one is generated and kept in the database.
	jwtSecret := cfg.JWT.Secret
	if jwtSecret == "" {
		if jwtSecret, err = store.GetOrCreateSecret(ctx, database, store.SettingTokenSecret); err != nil {
			return err
		}
	}

	if issue != "" {
		return printToken(jwtSecret, issue, cfg.JWT.TTL)
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("flushing traces", zap.Error(err))
		}
	}()

	cacheLayer, closeCache := newCache(ctx, cfg, log)
	defer closeCache()

	var publisher events.Publisher = events.Nop{}
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.InvalidationTopic)
		log.Info("publishing invalidation events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.InvalidationTopic),
		)
	}
	defer publisher.Close()

	tx := store.NewTransactor(database, store.TxOptions{
		MaxConcurrent:  int64(cfg.Tx.MaxConcurrent),
		AcquireTimeout: cfg.Tx.AcquireTimeout,
		MaxDuration:    cfg.Tx.MaxDuration,
	})
	svc := inventory.New(tx, inventory.Options{
		Cache:     cacheLayer,
		Publisher: publisher,
		Logger:    log,
		InviteTTL: cfg.Invite.TTL,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(svc, jwtSecret, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server started", zap.String("addr", cfg.Server.Addr), zap.String("env", cfg.App.Env))
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped, closing database")
	return nil
}

// newCache connects to Redis when configured. An unreachable server is
// logged and the layer keeps running, since cache failures never fail
// requests.
func newCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (*cache.Layer, func()) {
	opts := cache.Options{
		Version: cfg.Cache.Version,
		TTL: map[cache.Resource]time.Duration{
			cache.ProductList:   cfg.Cache.ProductListTTL,
			cache.ProductDetail: cfg.Cache.ProductDetailTTL,
			cache.WarehouseList: cfg.Cache.WarehouseListTTL,
			cache.OrderList:     cfg.Cache.OrderListTTL,
		},
	}

	if !cfg.Redis.Enabled() || !cfg.Cache.Enabled {
		log.Info("cache disabled")
		return cache.New(cache.Nop{}, opts, log), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, serving from the database until it recovers",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	} else {
		log.Info("cache ready", zap.String("addr", cfg.Redis.Addr), zap.String("version", cfg.Cache.Version))
	}

	return cache.New(cache.NewRedis(client), opts, log), func() { client.Close() }
}

// printToken prints a bearer token for "subject:email".
func printToken(secret, arg string, ttl time.Duration) error {
	subject, email, ok := strings.Cut(arg, ":")
	if !ok || subject == "" || email == "" {
		return fmt.Errorf("token must be given as subject:email, got %q", arg)
	}
	token, err := auth.GenerateToken(secret, subject, email, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
