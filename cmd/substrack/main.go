// Command substrack runs the subscription webhook service.
//
//	substrack migrate    apply database migrations
//	substrack serve      run the HTTP API and the counter reconciliation loop
//	substrack reconcile  recompute plan subscriber counters once
//	substrack keygen     print a new CREDENTIALS_KEY
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/substrack/pkg/secrets"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "substrack",
		Short:         "Multi-tenant Stripe subscription webhook service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd(), migrateCmd(), reconcileCmd(), keygenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a random key for CREDENTIALS_KEY",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := secrets.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
}
