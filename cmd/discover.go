package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/config"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

func discoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discover <public-key>",
		Short: "Print the multisig accounts a public key controls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := chain.ParsePublicKey(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client, limiter := setupChain(cfg)
			service, err := setupDiscovery(cfg, client, limiter)
			if err != nil {
				return err
			}

			accountIDs, err := service.Discover(cmd.Context(), pk)
			if err != nil {
				return err
			}
			for _, accountID := range accountIDs {
				fmt.Println(accountID)
			}
			return nil
		},
	}
}
