package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"verdant/pkg/auth"
	"verdant/pkg/chain"
	"verdant/pkg/db"
	"verdant/pkg/events"
	"verdant/pkg/logging"
	"verdant/pkg/metrics"
	"verdant/pkg/registry"
	"verdant/pkg/rpcnode"
	"verdant/pkg/sendemail"
)

func main() {
	envErr := godotenv.Load()
	logger := logging.Setup(os.Getenv("LOG_LEVEL"), strings.EqualFold(os.Getenv("LOG_PRETTY"), "true"))
	if envErr != nil {
		logger.Info().Msg("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Fatal().Msg("JWT_SECRET must be set")
	}
	tokenTTL := db.GetEnvAsDuration("JWT_TTL", "24h")

	repo, closeRepo := openRepository(ctx, logger)
	defer closeRepo()

	hub := events.NewHub()
	eventsHandler := events.NewHandler(hub, logging.Component("events"))

	opts := []registry.Option{
		registry.WithLogger(logging.Component("registry")),
		registry.WithListener(eventsHandler),
	}
	notifier := newNotifier(logger)
	if notifier != nil {
		opts = append(opts, registry.WithListener(notifier))
	}
	registryService := registry.NewRegistryService(repo, opts...)
	registryHandler := registry.NewRegistryHandler(registryService)
	authHandler := auth.NewAuthHandler([]byte(secret), tokenTTL)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(corsConfigFromEnv()))

	authHandler.RegisterRoutes(router)
	registryHandler.RegisterRoutes(router, auth.RequireWallet([]byte(secret)))
	eventsHandler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	if strings.EqualFold(os.Getenv("RPC_NODE_ENABLED"), "true") {
		mountNode(router, registryService, logger)
	}

	listener := listenerTLSFromEnv()
	if err := listener.validate(); err != nil {
		logger.Fatal().Err(err).Msg("TLS settings invalid")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
		if listener.enabled() {
			port = "8443"
		}
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if listener.enabled() {
		tlsConfig, err := listener.config(logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("TLS setup")
		}
		srv.TLSConfig = tlsConfig
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("tls", srv.TLSConfig != nil).Msg("registry API listening")
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if notifier != nil {
		notifier.Wait()
	}
	logger.Info().Msg("server exiting")
}

// openRepository picks Postgres unless REGISTRY_STORAGE=memory.
func openRepository(ctx context.Context, logger zerolog.Logger) (registry.StartupRepository, func()) {
	if strings.EqualFold(os.Getenv("REGISTRY_STORAGE"), "memory") {
		logger.Warn().Msg("using in-memory registry storage, data is lost on restart")
		return registry.NewMemoryStartupRepository(), func() {}
	}

	pool, err := db.Connect(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	return registry.NewPostgresStartupRepository(pool), pool.Close
}

func newNotifier(logger zerolog.Logger) *sendemail.Notifier {
	recipients := sendemail.ParseRecipients(os.Getenv("REGISTRY_NOTIFY_EMAILS"))
	if len(recipients) == 0 {
		return nil
	}
	email, err := sendemail.NewEmailService()
	if err != nil {
		logger.Warn().Err(err).Msg("registry notifications disabled")
		return nil
	}
	return sendemail.NewNotifier(email, recipients, logging.Component("notifier"))
}

// mountNode serves the registry as a JSON-RPC node at POST /rpc.
func mountNode(router *gin.Engine, svc registry.RegistryService, logger zerolog.Logger) {
	cfg := chain.ConfigFromEnv()
	address, err := cfg.Contract()
	if err != nil {
		logger.Fatal().Err(err).Msg("RPC node needs REGISTRY_CONTRACT_ADDRESS")
	}

	var accounts []common.Address
	for _, raw := range strings.Split(os.Getenv("RPC_NODE_ACCOUNTS"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			logger.Fatal().Str("account", raw).Msg("invalid address in RPC_NODE_ACCOUNTS")
		}
		accounts = append(accounts, common.HexToAddress(raw))
	}

	node := rpcnode.New(svc, rpcnode.Config{
		ChainID:         cfg.ChainID,
		ContractAddress: address,
		Accounts:        accounts,
	}, logging.Component("rpcnode"))
	srv, err := node.Server()
	if err != nil {
		logger.Fatal().Err(err).Msg("start RPC node")
	}
	router.POST("/rpc", gin.WrapH(srv))
	logger.Info().Str("contract", address.Hex()).Int("accounts", len(accounts)).Msg("RPC node mounted at /rpc")
}

func corsConfigFromEnv() cors.Config {
	origins := make([]string, 0)
	for _, p := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o := strings.TrimSpace(p); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: strings.EqualFold(os.Getenv("CORS_ALLOW_CREDENTIALS"), "true"),
		MaxAge:           12 * time.Hour,
	}
}
