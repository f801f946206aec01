package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/config"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/lockup"
)

func lockupCommand() *cobra.Command {
	var (
		start, cliff, end, authToken string
	)
	cmd := &cobra.Command{
		Use:   "lockup <account>",
		Short: "Print the balance breakdown of a lockup account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client, _ := setupChain(cfg)
			service := lockup.NewService(client)

			var breakdown *lockup.Breakdown
			if authToken != "" {
				var guess lockup.ScheduleGuess
				if guess.Start, err = lockup.ParseDate(start); err != nil {
					return err
				}
				if guess.Cliff, err = lockup.ParseDate(cliff); err != nil {
					return err
				}
				if guess.End, err = lockup.ParseDate(end); err != nil {
					return err
				}
				breakdown, err = service.ResolvePrivateSchedule(cmd.Context(), args[0], guess, authToken)
			} else {
				breakdown, err = service.Breakdown(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(breakdown)
		},
	}
	cmd.Flags().StringVar(&start, "vesting-start", "", "guessed private vesting start date")
	cmd.Flags().StringVar(&cliff, "vesting-cliff", "", "guessed private vesting cliff date")
	cmd.Flags().StringVar(&end, "vesting-end", "", "guessed private vesting end date")
	cmd.Flags().StringVar(&authToken, "auth-token", "", "salt token of a private vesting schedule")
	return cmd
}
