package main

import (
	"fmt"
	"log"
	"os"

	"github.com/migrasquiel/migrasquiel/migraerr"
	"github.com/spf13/cobra"
)

var (
	restoreProvider    string
	restoreDestination string
	restoreDestEnv     string
	restoreInput       string
	restoreDisableFK   bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a SQL file produced by dump into a live destination",
	RunE:  runRestore,
}

func init() {
	restoreCmd.Flags().StringVar(&restoreProvider, "provider", "mysql", "destination dialect: mysql, postgres, or sqlserver")
	restoreCmd.Flags().StringVar(&restoreDestination, "destination", "", "destination connection URL")
	restoreCmd.Flags().StringVar(&restoreDestEnv, "destination-env", "", "environment variable holding the destination connection URL")
	restoreCmd.Flags().StringVar(&restoreInput, "input", "", "input file path (required)")
	restoreCmd.Flags().BoolVar(&restoreDisableFK, "disable-fk-checks", true, "disable foreign key checks for the duration of the restore")
}

func runRestore(cmd *cobra.Command, _ []string) error {
	provider := Provider(restoreProvider)
	if _, err := NewDialect(provider); err != nil {
		return migraerr.Usage("restore", err)
	}
	dsn, err := resolveConnection(restoreDestination, restoreDestEnv)
	if err != nil {
		return migraerr.Usage("restore", err)
	}
	if restoreInput == "" {
		return migraerr.Usage("restore", fmt.Errorf("--input is required"))
	}
	if !cmd.Flags().Changed("disable-fk-checks") {
		log.Printf("WARN: --disable-fk-checks left at its default (true); pass --disable-fk-checks=false if the destination already enforces safe insert order")
	}

	f, err := os.Open(restoreInput)
	if err != nil {
		return migraerr.Source("open input file", err)
	}
	defer f.Close()

	ctx, cancel := rootContext()
	defer cancel()

	log.Printf("restoring %s -> %s", restoreInput, redactDSN(dsn))
	return Restore(ctx, provider, dsn, f, RestoreOptions{DisableFK: restoreDisableFK, Progress: newLogProgress()})
}
