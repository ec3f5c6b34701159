package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"runstream/internal/auth"
)

func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to your runs",
		Long:  "Runs the provider's browser authorization flow and stores the athlete token locally.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}

			result, err := auth.Authenticate(cmd.Context(), auth.NewOAuthConfig(cfg.Provider))
			if err != nil {
				return fmt.Errorf("authorization: %w", err)
			}
			if err := auth.SaveToken(result); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}

			fmt.Println()
			fmt.Printf("Authorized as athlete %d.\n", result.AthleteID)
			return nil
		},
	}
}
