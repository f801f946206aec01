package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port                     string
	DbURL                    string
	RpcURL                   string
	RpcTier                  string
	IndexerURLs              []string
	WalletURL                string
	PublicBaseURL            string
	AllowedOrigins           []string
	LedgerNetworkID          byte
	LedgerDerivationPath     string
	GoogleKmsKeyName         string
	GoogleProjectID          string
	PubsubTopic              string
	PubsubSubscription       string
	MultisigExplainCacheSize int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", ":8080")
	v.SetDefault("DB_URL", "")
	v.SetDefault("RPC_URL", "https://rpc.mainnet.near.org")
	v.SetDefault("RPC_TIER", "free")
	v.SetDefault("INDEXER_URLS", "kitwallet|https://api.kitwallet.app,fastnear|https://api.fastnear.com")
	v.SetDefault("WALLET_URL", "https://app.mynearwallet.com")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LEDGER_NETWORK_ID", "W")
	v.SetDefault("LEDGER_DERIVATION_PATH", "44'/397'/0'/0'/1'")
	v.SetDefault("GOOGLE_KMS_KEY_NAME", "")
	v.SetDefault("GOOGLE_PROJECT_ID", "")
	v.SetDefault("PUBSUB_TOPIC", "wallet.near.transactions.submitted")
	v.SetDefault("PUBSUB_SUBSCRIPTION", "")
	v.SetDefault("MULTISIG_EXPLAIN_CACHE_SIZE", 256)
}

// Load reads the environment and the optional ./.env file.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetConfigFile("./.env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	networkID := strings.TrimSpace(v.GetString("LEDGER_NETWORK_ID"))
	if len(networkID) != 1 {
		return nil, errors.Errorf("LEDGER_NETWORK_ID must be a single character, got %q", networkID)
	}
	cacheSize := v.GetInt("MULTISIG_EXPLAIN_CACHE_SIZE")
	if cacheSize <= 0 {
		return nil, errors.Errorf("MULTISIG_EXPLAIN_CACHE_SIZE must be positive, got %d", cacheSize)
	}

	return &Config{
		Port:                     v.GetString("PORT"),
		DbURL:                    v.GetString("DB_URL"),
		RpcURL:                   v.GetString("RPC_URL"),
		RpcTier:                  v.GetString("RPC_TIER"),
		IndexerURLs:              splitList(v.GetString("INDEXER_URLS")),
		WalletURL:                v.GetString("WALLET_URL"),
		PublicBaseURL:            v.GetString("PUBLIC_BASE_URL"),
		AllowedOrigins:           splitList(v.GetString("ALLOWED_ORIGINS")),
		LedgerNetworkID:          networkID[0],
		LedgerDerivationPath:     v.GetString("LEDGER_DERIVATION_PATH"),
		GoogleKmsKeyName:         v.GetString("GOOGLE_KMS_KEY_NAME"),
		GoogleProjectID:          v.GetString("GOOGLE_PROJECT_ID"),
		PubsubTopic:              v.GetString("PUBSUB_TOPIC"),
		PubsubSubscription:       v.GetString("PUBSUB_SUBSCRIPTION"),
		MultisigExplainCacheSize: cacheSize,
	}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
