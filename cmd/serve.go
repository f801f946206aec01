package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/accounts"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/config"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/keymgmt"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/lockup"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/multisig"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/middleware"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/pubsub"
	wshub "github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/ws"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/signer"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/transaction"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/ws"
)

const ledgerOpenTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the wallet HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	rpcClient, limiter := setupChain(cfg)
	discoveryService, err := setupDiscovery(cfg, rpcClient, limiter)
	if err != nil {
		return err
	}

	notificationHub := wshub.NewNotificationHub()
	registry := keymgmt.NewRegistry(notificationHub)

	var sealer keymgmt.Sealer
	if cfg.GoogleKmsKeyName != "" {
		kmsSealer, err := keymgmt.NewKMSSealer(ctx, cfg.GoogleKmsKeyName)
		if err != nil {
			return err
		}
		defer kmsSealer.Close()
		sealer = kmsSealer
	}

	vault := keymgmt.NewVault(sealer)
	defer vault.Forget()

	store := keymgmt.NewStore(setupDb(cfg.DbURL))
	if err := store.Migrate(); err != nil {
		return errors.Wrap(err, "migrating key store")
	}
	snapshot, err := store.Load(ctx)
	if err != nil {
		return err
	}
	registry.Restore(snapshot)
	log.Info().Int("accounts", len(registry.AllAccounts())).Msg("Restored keyed accounts")

	var publisher transaction.EventPublisher
	var pubsubClient *pubsub.Client
	if cfg.GoogleProjectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.GoogleProjectID)
		if err != nil {
			return err
		}
		defer pubsubClient.Close()
		publisher = pubsubClient
	}

	submitter := transaction.NewSubmitter(rpcClient, publisher, notificationHub, cfg.PubsubTopic)
	if pubsubClient != nil && cfg.PubsubSubscription != "" {
		go pubsubClient.Subscribe(submitter.OutcomeRelay(cfg.PubsubSubscription, notificationHub))
	}
	pipeline := transaction.NewPipeline(transaction.NewBuilder(rpcClient), submitter)

	accountsService := accounts.NewService(registry, discoveryService, store, accounts.Settings{
		Vault:          vault,
		OpenTransport:  signer.OpenLedgerHID(ledgerOpenTimeout),
		NetworkID:      cfg.LedgerNetworkID,
		DerivationPath: cfg.LedgerDerivationPath,
		WalletURL:      cfg.WalletURL,
		PublicBaseURL:  cfg.PublicBaseURL,
	})

	explainer, err := multisig.NewExplainer(rpcClient, cfg.MultisigExplainCacheSize)
	if err != nil {
		return err
	}
	multisigService := multisig.NewService(rpcClient, explainer, accountsService, pipeline, notificationHub)

	apiRouter := setupApiRouter(cfg, apiServices{
		hub:      notificationHub,
		accounts: accountsService,
		multisig: multisigService,
		lockup:   lockup.NewService(rpcClient),
	})

	server := &http.Server{
		Addr:         cfg.Port,
		Handler:      apiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Server shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.Port).Msg("Serving wallet API")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type apiServices struct {
	hub      *wshub.WebSocketNotificationHub
	accounts *accounts.Service
	multisig *multisig.Service
	lockup   *lockup.Service
}

func setupApiRouter(cfg *config.Config, services apiServices) *gin.Engine {
	apiRouter := gin.New()
	middleware.RegisterGlobalMiddleware(apiRouter, cfg.AllowedOrigins)

	apiRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routerGroup := apiRouter.Group("/wallet-api")
	ws.RegisterRoutes(routerGroup, services.hub)
	accounts.RegisterRoutes(routerGroup, services.accounts)
	multisig.RegisterRoutes(routerGroup, services.multisig)
	lockup.RegisterRoutes(routerGroup, services.lockup)

	return apiRouter
}
