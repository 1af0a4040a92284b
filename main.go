package main

import (
	"fmt"
	"os"

	"github.com/migrasquiel/migrasquiel/migraerr"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "migrasquiel",
	Short: "Move schema and row data between MySQL, PostgreSQL, and SQL Server",
}

func main() {
	rootCmd.AddCommand(dumpCmd, restoreCmd, migrateCmd, importCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(migraerr.ExitCode(err))
	}
}
