package main

import (
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "storefront",
		Short:        "Storefront commerce backend",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file read below the process environment (default .env)")

	root.AddCommand(serveCmd(opts), configCmd(opts), promotionsCmd())
	return root
}
