package cli

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "walletd",
	Short:   "Multi-chain custodial hot-wallet service",
	Version: version,
	Long: `walletd creates and manages cryptographic key material for EVM-family
chains and Solana, derives per-chain addresses from a BIP-39 seed, signs
and submits transactions with strict nonce discipline, and mediates a
threshold multi-signature protocol with a canonical, replay-resistant
message encoding.`,
}

// Execute runs the root command, dispatching to whichever subcommand
// the caller invoked.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file overlaying environment defaults")
}
