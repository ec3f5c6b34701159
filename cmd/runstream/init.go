package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"runstream/internal/config"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an example config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateExample(); err != nil {
				return fmt.Errorf("creating example config: %w", err)
			}
			dir, err := config.GetConfigDir()
			if err != nil {
				return err
			}
			fmt.Printf("Config file ready at:\n  %s/config.json\n\n", dir)
			fmt.Println("Add your provider API credentials, then run 'runstream auth'.")
			return nil
		},
	}
}
