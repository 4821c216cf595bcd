// Command walletd runs the multi-chain custodial hot-wallet service.
package main

import (
	"fmt"
	"os"

	"github.com/defisafe/hotwallet/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "walletd:", err)
		os.Exit(1)
	}
}
