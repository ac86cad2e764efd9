package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/leadpool/internal/auth"
	"github.com/wolfeidau/leadpool/internal/claim"
	"github.com/wolfeidau/leadpool/internal/events"
	httpmiddleware "github.com/wolfeidau/leadpool/internal/http"
	"github.com/wolfeidau/leadpool/internal/logger"
	"github.com/wolfeidau/leadpool/internal/notify"
	"github.com/wolfeidau/leadpool/internal/ratelimit"
	"github.com/wolfeidau/leadpool/internal/server"
	"github.com/wolfeidau/leadpool/internal/store"
	memorystore "github.com/wolfeidau/leadpool/internal/store/memory"
	postgresstore "github.com/wolfeidau/leadpool/internal/store/postgres"
	"github.com/wolfeidau/leadpool/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type ServerCmd struct {
	// Server configuration
	Listen          string        `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"LEADPOOL_LISTEN"`
	Cert            string        `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"LEADPOOL_TLS_CERT"`
	Key             string        `help:"path to TLS key file" default:"" env:"LEADPOOL_TLS_KEY"`
	TrustProxy      bool          `help:"trust X-Forwarded-For and X-Real-IP for client addresses" default:"false" env:"LEADPOOL_TRUST_PROXY"`
	ShutdownTimeout time.Duration `help:"time allowed for in-flight requests on shutdown" default:"15s" env:"LEADPOOL_SHUTDOWN_TIMEOUT"`

	// Claim rate limiting
	ClaimRate  float64 `help:"claims and unclaims allowed per second per user, 0 disables limiting" default:"2" env:"LEADPOOL_CLAIM_RATE"`
	ClaimBurst int     `help:"claims and unclaims a user may make in a burst" default:"10" env:"LEADPOOL_CLAIM_BURST"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"LEADPOOL_CORS_ORIGINS"`

	// Authentication
	JWTPublicKey string `help:"path to the PEM encoded ES256 public key used to verify access tokens" type:"existingfile" required:"" env:"LEADPOOL_JWT_PUBLIC_KEY"`

	// Telemetry
	Tracing          bool          `help:"enable OpenTelemetry traces and metrics" default:"false" env:"LEADPOOL_TRACING"`
	TraceSampleRatio float64       `help:"fraction of root traces to sample" default:"1" env:"LEADPOOL_TRACE_SAMPLE_RATIO"`
	MetricInterval   time.Duration `help:"how often metrics are exported" default:"10s" env:"LEADPOOL_METRIC_INTERVAL"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"LEADPOOL_STORE_TYPE" enum:"memory,postgres"`
	SeedFile      string             `help:"YAML file of companies to insert on startup" type:"existingfile" env:"LEADPOOL_SEED_FILE"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`

	// Event distribution
	Bus    string      `help:"event bus (local for a single process, redis to fan out across processes)" default:"local" env:"LEADPOOL_BUS" enum:"local,redis"`
	Redis  RedisFlags  `embed:"" prefix:"redis-"`
	Stream StreamFlags `embed:"" prefix:"stream-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"LEADPOOL_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

type RedisFlags struct {
	URL     string `help:"Redis URL used when --bus=redis" default:"redis://localhost:6379/0" env:"LEADPOOL_REDIS_URL"`
	Channel string `help:"Redis pub/sub channel carrying claim events" default:"leadpool:company-events" env:"LEADPOOL_REDIS_CHANNEL"`
}

// StreamFlags configures the notification stream.
type StreamFlags struct {
	HeartbeatInterval time.Duration `help:"interval between heartbeat messages on idle streams" default:"30s" env:"LEADPOOL_STREAM_HEARTBEAT_INTERVAL"`
	BufferSize        int           `help:"events queued per connection before new events are dropped" default:"64" env:"LEADPOOL_STREAM_BUFFER_SIZE"`
}

func (c *ServerCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Float64("sample_ratio", c.TraceSampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName:    "leadpool-server",
			Version:        globals.Version,
			SampleRatio:    c.TraceSampleRatio,
			MetricInterval: c.MetricInterval,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	publicKey, err := os.ReadFile(c.JWTPublicKey)
	if err != nil {
		return fmt.Errorf("failed to read JWT public key: %w", err)
	}
	verifier, err := auth.NewVerifierFromPEM(string(publicKey))
	if err != nil {
		return fmt.Errorf("failed to create JWT verifier: %w", err)
	}

	st, closeStore, err := c.createStore(ctx, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if c.SeedFile != "" {
		if err := c.seed(ctx, log, st); err != nil {
			return err
		}
	}

	bus := events.NewBus()
	defer bus.Close()

	var publisher events.Publisher = bus
	if c.Bus == "redis" {
		relay, closeRelay, err := c.startRelay(ctx, log, bus)
		if err != nil {
			return err
		}
		defer closeRelay()
		publisher = relay
		log.Info().Str("channel", c.Redis.Channel).Msg("Claim events relayed through Redis")
	}

	coordinator := claim.NewCoordinator(st, publisher)
	stream := notify.NewHandler(bus, notify.Config{
		HeartbeatInterval: c.Stream.HeartbeatInterval,
		BufferSize:        c.Stream.BufferSize,
	})

	var limiter *ratelimit.Limiter
	if c.ClaimRate > 0 {
		limiter = ratelimit.New(c.ClaimRate, c.ClaimBurst, 10*time.Minute)
	}

	srv := server.NewServer(server.Config{
		Store:        st,
		Coordinator:  coordinator,
		Stream:       stream,
		Verifier:     verifier,
		TrustProxy:   c.TrustProxy,
		ClaimLimiter: limiter,
	})

	apiMiddleware, err := c.apiMiddleware()
	if err != nil {
		return err
	}

	handler := srv.Handler(log, apiMiddleware...)
	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "leadpool")
	}

	httpServer := configureHTTPServer(c.Listen, handler)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Str("store", c.StoreType).Str("bus", c.Bus).Msg("Starting HTTP server")
		if c.Cert != "" {
			serveErr <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	// Closing the bus ends every open notification stream, which lets Shutdown drain.
	bus.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

// createStore returns the configured store and a function releasing its resources.
func (c *ServerCmd) createStore(ctx context.Context, log zerolog.Logger) (store.Store, func(), error) {
	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return nil, nil, err
		}

		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		log.Info().Msg("Using PostgreSQL store")
		return postgresstore.NewStore(pool), pool.Close, nil

	default:
		log.Info().Msg("Using in-memory store, data is lost on restart")
		return memorystore.NewStore(), func() {}, nil
	}
}

func (c *ServerCmd) seed(ctx context.Context, log zerolog.Logger, st store.CompanyStore) error {
	f, err := os.Open(c.SeedFile)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	seed, err := store.LoadSeed(f)
	if err != nil {
		return err
	}

	n, err := seed.Apply(ctx, st)
	if err != nil {
		return err
	}

	log.Info().Int("companies", n).Str("file", c.SeedFile).Msg("Seeded company pool")
	return nil
}

// startRelay connects to Redis and feeds remote events into the local bus. The returned
// function stops the relay and closes the client.
func (c *ServerCmd) startRelay(ctx context.Context, log zerolog.Logger, bus *events.Bus) (*events.RedisRelay, func(), error) {
	client, err := events.NewRedisClient(c.Redis.URL)
	if err != nil {
		return nil, nil, err
	}

	relay := events.NewRedisRelay(client, c.Redis.Channel, bus)
	if err := relay.Start(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to start redis relay: %w", err)
	}

	return relay, func() {
		if err := relay.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop redis relay")
		}
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}, nil
}

// apiMiddleware applies CORS for browser clients on other origins and rejects
// cross-origin state changes from origins that are not trusted.
func (c *ServerCmd) apiMiddleware() ([]httpmiddleware.Middleware, error) {
	protection := csrf.New()
	for _, origin := range c.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid CORS origin %q: %w", origin, err)
		}
	}

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: c.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-None-Match", "Last-Event-ID"},
		ExposedHeaders: []string{"ETag", logger.RequestIDHeader},
		MaxAge:         600,
	})

	return []httpmiddleware.Middleware{corsMiddleware.Handler, protection.Handler}, nil
}
