package main

import (
	"context"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/config"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/discovery"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/rpc"
)

const programName = "multisig-wallet"

var debug bool

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Multisig and lockup wallet backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupZerolog()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(lockupCommand())
	rootCmd.AddCommand(discoverCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func setupZerolog() {
	zerolog.LevelFieldName = "severity"
	zerolog.TimestampFieldName = "time"
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// setupDb opens postgres when DB_URL is set and an in-memory sqlite otherwise.
func setupDb(dbUrl string) *gorm.DB {
	dialector := postgres.Open(dbUrl)
	if dbUrl == "" {
		log.Warn().Msg("DB_URL not set, keyed accounts are kept in memory only")
		dialector = sqlite.Open("file::memory:?cache=shared")
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	sqlDb, _ := db.DB()
	if dbUrl == "" {
		sqlDb.SetMaxOpenConns(1)
	} else {
		sqlDb.SetMaxOpenConns(50)
	}
	sqlDb.SetConnMaxLifetime(time.Minute * 10)

	return db
}

func setupChain(cfg *config.Config) (*rpc.Client, *rpc.Limiter) {
	limiter := rpc.NewLimiter(rpc.ParseTier(cfg.RpcTier))
	return rpc.NewClient(cfg.RpcURL, limiter), limiter
}

func setupDiscovery(cfg *config.Config, client *rpc.Client, limiter *rpc.Limiter) (*discovery.Service, error) {
	indexers, err := discovery.ParseIndexers(cfg.IndexerURLs, limiter)
	if err != nil {
		return nil, err
	}
	return discovery.NewService(indexers, client), nil
}
