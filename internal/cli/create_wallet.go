package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	createWalletName        string
	createWalletQuantumSafe bool
)

var createWalletCmd = &cobra.Command{
	Use:   "create-wallet",
	Short: "Create a new wallet and print its id",
	RunE:  runCreateWallet,
}

func init() {
	createWalletCmd.Flags().StringVar(&createWalletName, "name", "", "wallet name (required)")
	createWalletCmd.Flags().BoolVar(&createWalletQuantumSafe, "quantum-safe", false, "use the quantum_safe envelope flavour (non-production only)")
	createWalletCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(createWalletCmd)
}

func runCreateWallet(cmd *cobra.Command, args []string) error {
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

	info, err := mgr.CreateWallet(ctx, createWalletName, createWalletQuantumSafe)
	if err != nil {
		return err
	}

	fmt.Printf("wallet created: name=%s id=%s quantum_safe=%t created_at=%s\n",
		info.Name, info.ID, info.QuantumSafe, info.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
