package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rotateSigningKeyName string

var rotateSigningKeyCmd = &cobra.Command{
	Use:   "rotate-signing-key",
	Short: "Bump a wallet's signing-key rotation label",
	RunE:  runRotateSigningKey,
}

func init() {
	rotateSigningKeyCmd.Flags().StringVar(&rotateSigningKeyName, "name", "", "wallet name (required)")
	rotateSigningKeyCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(rotateSigningKeyCmd)
}

func runRotateSigningKey(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	ctx := cmd.Context()

	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	mgr, err := buildManager(ctx, cfg, logger)
	if err != nil {
		return err
	}

	oldVersion, newVersion, err := mgr.RotateSigningKey(ctx, rotateSigningKeyName)
	if err != nil {
		return err
	}

	fmt.Printf("wallet=%s old_version=%d new_version=%d\n", rotateSigningKeyName, oldVersion, newVersion)
	return nil
}
