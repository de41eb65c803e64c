package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/keriauth/internal/util"
	"github.com/jmcleod/keriauth/models"
	"github.com/jmcleod/keriauth/session"
	"github.com/jmcleod/keriauth/storage/memory"
	"github.com/jmcleod/keriauth/store"
)

var (
	adminURL string
	bootURL  string
)

var passcodeCmd = &cobra.Command{
	Use:   "passcode",
	Short: "Manage the passcode verifier",
}

var passcodeSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the passcode, read from stdin. The dispatcher must not be running.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		passcode, err := readPasscode(cmd.InOrStdin())
		if err != nil {
			return err
		}
		local, err := openLocal(cfg)
		if err != nil {
			return err
		}
		defer local.Close()

		s := store.New(local, memory.NewRepository())
		if err := setPasscode(cmd.Context(), s, passcode, adminURL, bootURL, util.DefaultArgon2idParams()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "passcode set")
		return nil
	},
}

// setPasscode replaces the stored verifier, keeping connection settings
// unless new ones are given.
func setPasscode(ctx context.Context, s *store.Service, passcode, adminURL, bootURL string, params util.Argon2idParams) error {
	cfg, _, err := store.Get(ctx, s, models.ConfigurationKind)
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	if adminURL != "" {
		cfg.AdminURL = adminURL
	}
	if bootURL != "" {
		cfg.BootURL = bootURL
	}
	cfg, err = session.NewConfiguration(cfg, passcode, params)
	if err != nil {
		return err
	}
	return store.Set(ctx, s, models.ConfigurationKind, cfg)
}

func init() {
	rootCmd.AddCommand(passcodeCmd)
	passcodeCmd.AddCommand(passcodeSetCmd)
	passcodeSetCmd.Flags().StringVar(&adminURL, "admin-url", "", "KERIA admin URL to store with the configuration")
	passcodeSetCmd.Flags().StringVar(&bootURL, "boot-url", "", "KERIA boot URL to store with the configuration")
}
