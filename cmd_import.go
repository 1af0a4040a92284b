package main

import (
	"fmt"
	"log"

	"github.com/migrasquiel/migrasquiel/migraerr"
	"github.com/spf13/cobra"
)

var (
	importProvider    string
	importDestination string
	importDestEnv     string
	importInput       string
	importTable       string
	importColumns     string
	importColumnsFile string
	importSkipErrors  bool
	importBatchRows   int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a CSV file into a destination table, inferring its schema if new",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importProvider, "provider", "mysql", "destination dialect: mysql, postgres, or sqlserver")
	importCmd.Flags().StringVar(&importDestination, "destination", "", "destination connection URL")
	importCmd.Flags().StringVar(&importDestEnv, "destination-env", "", "environment variable holding the destination connection URL")
	importCmd.Flags().StringVar(&importInput, "input", "", "input CSV file path (required)")
	importCmd.Flags().StringVar(&importTable, "table", "", "destination table name (required)")
	importCmd.Flags().StringVar(&importColumns, "columns", "", "csv_col:db_col,... column name mapping")
	importCmd.Flags().StringVar(&importColumnsFile, "columns-file", "", "TOML file holding a [columns] mapping too large for --columns")
	importCmd.Flags().BoolVar(&importSkipErrors, "skip-errors", true, "tolerate per-row parse failures instead of aborting the import")
	importCmd.Flags().IntVar(&importBatchRows, "batch-rows", 1000, "rows per INSERT statement")
}

func runImport(cmd *cobra.Command, _ []string) error {
	provider := Provider(importProvider)
	if _, err := NewDialect(provider); err != nil {
		return migraerr.Usage("import", err)
	}
	dsn, err := resolveConnection(importDestination, importDestEnv)
	if err != nil {
		return migraerr.Usage("import", err)
	}
	if importInput == "" {
		return migraerr.Usage("import", fmt.Errorf("--input is required"))
	}
	if importTable == "" {
		return migraerr.Usage("import", fmt.Errorf("--table is required"))
	}
	if importColumns != "" && importColumnsFile != "" {
		return migraerr.Usage("import", fmt.Errorf("--columns and --columns-file are mutually exclusive"))
	}

	mapping, err := ParseColumnsFlag(importColumns)
	if err != nil {
		return migraerr.Usage("import", err)
	}
	if importColumnsFile != "" {
		mapping, err = LoadColumnsFile(importColumnsFile)
		if err != nil {
			return migraerr.Usage("import", err)
		}
	}

	ctx, cancel := rootContext()
	defer cancel()

	opts := ImportOptions{
		Table:      importTable,
		Columns:    mapping,
		BatchRows:  importBatchRows,
		SkipErrors: importSkipErrors,
		Progress:   newLogProgress(),
	}

	log.Printf("importing %s -> %s.%s", importInput, redactDSN(dsn), importTable)
	summary, err := Import(ctx, provider, dsn, importInput, opts)
	if summary != nil {
		log.Printf("import summary: %s", summary.FormatSummary())
	}
	return err
}
