/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stay booking server. Handles configuration,
  dependency injection and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse flags, load config (defaults, YAML, .env, environment)
  2. Build the logger
  3. Open the store (SQLite or in-memory)
  4. Wire engine collaborators: events, property cache, blob store
  5. Open the idempotency database, start the ledger auditor
  6. Configure the router and serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS (override config):
  -config  YAML config file (optional)
  -port    HTTP server port
  -db      SQLite database path; ":memory:" for an in-memory database
  -token   Print a JWT for "actor-id:role" and exit (jwt auth mode)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the auditor, close the event channel, caches and databases

EXAMPLES:
  ./server -db="./data/stay.db"
  ./server -config=stay.yaml -port=3000
  STORE=memory AUTH_MODE=jwt JWT_SECRET=s3cret ./server
  ./server -token="owner-1:owner"

SEE ALSO:
  - config/config.go: Settings and environment variables
  - api/server.go: Router configuration
*/
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

	"github.com/sirupsen/logrus"

	"github.com/warp/stay-engine/api"
	"github.com/warp/stay-engine/auth"
	"github.com/warp/stay-engine/blob"
	"github.com/warp/stay-engine/cache"
	"github.com/warp/stay-engine/config"
	"github.com/warp/stay-engine/engine"
	"github.com/warp/stay-engine/engine/store"
	"github.com/warp/stay-engine/events"
	"github.com/warp/stay-engine/idempotency"
	"github.com/warp/stay-engine/logging"
	"github.com/warp/stay-engine/store/sqlite"
)

const tokenTTL = 24 * time.Hour

// backend is what the engine and the scenario loader need from a store.
type backend interface {
	engine.TxStore
	Reset(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	token := flag.String("token", "", `print a JWT for "actor-id:role" and exit`)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	if *token != "" {
		if err := printToken(cfg, *token); err != nil {
			log.WithError(err).Fatal("failed to issue token")
		}
		return
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	policy, err := cfg.EnginePolicy()
	if err != nil {
		return err
	}

	// Store
	var st backend
	switch cfg.Store {
	case "memory":
		st = store.NewMemory()
	default:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer s.Close()
		st = s
	}

	// Events
	var publisher engine.Publisher = events.Nop{}
	if cfg.Events.RabbitMQURL != "" {
		amqp, err := events.DialAMQP(cfg.Events.RabbitMQURL, cfg.Events.Exchange)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		defer amqp.Close()
		publisher = amqp
	}

	// Property cache and blobs
	homes := cache.NewProperties(cfg.Cache.TTL, cfg.Cache.MemcachedHost, log)
	defer homes.Stop()

	bucket, err := blob.Open(context.Background(), cfg.Blob.Bucket(), cfg.Blob.BaseURL, 0)
	if err != nil {
		return err
	}
	defer bucket.Close()

	eng := engine.New(st, policy,
		engine.WithLogger(log),
		engine.WithPublisher(publisher),
		engine.WithPropertyCache(homes),
		engine.WithBlobStore(bucket),
	)

	// Handler
	handler := api.NewHandler(eng, log)
	handler.Homes = homes
	if cfg.Scenarios.Enabled {
		handler.Resetter = st
	}

	auditor := api.NewLedgerAuditor(eng.Ledger, log)
	auditor.Interval = cfg.Audit.Interval
	handler.Auditor = auditor
	auditor.Start()
	defer auditor.Stop()

	routerCfg := api.RouterConfig{
		Auth:        provider(cfg),
		CORSOrigins: cfg.CORS.Origins,
		Scenarios:   cfg.Scenarios.Enabled,
	}
	if strings.HasPrefix(cfg.Blob.BaseURL, "/") {
		routerCfg.Uploads = bucket.Handler()
		routerCfg.UploadsPath = cfg.Blob.BaseURL
	}
	if cfg.Idempotency.DBPath != "" {
		idem, err := idempotency.Open(cfg.Idempotency.DBPath, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("failed to open idempotency store: %w", err)
		}
		defer idem.Close()
		routerCfg.Idempotency = idem
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":  cfg.Port,
			"store": cfg.Store,
			"auth":  cfg.Auth.Mode,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func provider(cfg config.Config) auth.Provider {
	if cfg.Auth.Mode == "jwt" {
		return auth.NewJWT(cfg.Auth.JWTSecret, tokenTTL)
	}
	return auth.Header{}
}

func printToken(cfg config.Config, subject string) error {
	id, rawRole, _ := strings.Cut(subject, ":")
	if strings.TrimSpace(id) == "" {
		return errors.New(`token must look like "actor-id:role"`)
	}
	role, err := auth.ParseRole(rawRole)
	if err != nil {
		return err
	}
	tok, err := auth.NewJWT(cfg.Auth.JWTSecret, tokenTTL).IssueToken(engine.Actor{ID: engine.ActorID(id), Role: role})
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
