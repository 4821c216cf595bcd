package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	rotateKEKName  string
	rotateKEKNewID string
)

var rotateKEKCmd = &cobra.Command{
	Use:   "rotate-kek",
	Short: "Re-wrap a wallet's master key under a new key-encryption key",
	RunE:  runRotateKEK,
}

func init() {
	rotateKEKCmd.Flags().StringVar(&rotateKEKName, "name", "", "wallet name (required)")
	rotateKEKCmd.Flags().StringVar(&rotateKEKNewID, "kek-id", "", "new KEK id; WALLET_ENC_KEY_<id> must be set (required)")
	rotateKEKCmd.MarkFlagRequired("name")
	rotateKEKCmd.MarkFlagRequired("kek-id")
	rootCmd.AddCommand(rotateKEKCmd)
}

func runRotateKEK(cmd *cobra.Command, args []string) error {
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

	if err := mgr.RotateEnvelopeKEK(ctx, rotateKEKName, rotateKEKNewID); err != nil {
		return err
	}

	fmt.Printf("wallet=%s kek_id=%s rotated\n", rotateKEKName, rotateKEKNewID)
	return nil
}
