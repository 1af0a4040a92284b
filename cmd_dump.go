package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/migrasquiel/migrasquiel/migraerr"
	"github.com/spf13/cobra"
)

var (
	dumpProvider           string
	dumpSource             string
	dumpSourceEnv          string
	dumpOutput             string
	dumpTables             string
	dumpExclude            string
	dumpSchemaOnly         bool
	dumpDataOnly           bool
	dumpBatchRows          int
	dumpConsistentSnapshot bool
	dumpGzip               bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump a live source database's schema and/or row data to a SQL file",
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().StringVar(&dumpProvider, "provider", "mysql", "source dialect: mysql, postgres, or sqlserver")
	dumpCmd.Flags().StringVar(&dumpSource, "source", "", "source connection URL")
	dumpCmd.Flags().StringVar(&dumpSourceEnv, "source-env", "", "environment variable holding the source connection URL")
	dumpCmd.Flags().StringVar(&dumpOutput, "output", "", "output file path (required)")
	dumpCmd.Flags().StringVar(&dumpTables, "tables", "", "comma-separated table allowlist")
	dumpCmd.Flags().StringVar(&dumpExclude, "exclude", "", "comma-separated table denylist")
	dumpCmd.Flags().BoolVar(&dumpSchemaOnly, "schema-only", false, "dump DDL only, no row data")
	dumpCmd.Flags().BoolVar(&dumpDataOnly, "data-only", false, "dump row data only, no DDL")
	dumpCmd.Flags().IntVar(&dumpBatchRows, "batch-rows", 1000, "rows per INSERT statement")
	dumpCmd.Flags().BoolVar(&dumpConsistentSnapshot, "consistent-snapshot", false, "dump from one consistent point-in-time snapshot")
	dumpCmd.Flags().BoolVar(&dumpGzip, "gzip", false, "gzip-compress the output (auto-enabled when --output ends in .gz)")
}

func runDump(cmd *cobra.Command, _ []string) error {
	provider := Provider(dumpProvider)
	if _, err := NewDialect(provider); err != nil {
		return migraerr.Usage("dump", err)
	}
	dsn, err := resolveConnection(dumpSource, dumpSourceEnv)
	if err != nil {
		return migraerr.Usage("dump", err)
	}
	if dumpOutput == "" {
		return migraerr.Usage("dump", fmt.Errorf("--output is required"))
	}

	f, err := os.Create(dumpOutput)
	if err != nil {
		return migraerr.Sink("create output file", err)
	}
	defer f.Close()

	ctx, cancel := rootContext()
	defer cancel()

	opts := DumpOptions{
		Gzip: dumpGzip || strings.HasSuffix(dumpOutput, ".gz"),
		Pipeline: PipelineOptions{
			Include:            splitCSVList(dumpTables),
			Exclude:            splitCSVList(dumpExclude),
			SchemaOnly:         dumpSchemaOnly,
			DataOnly:           dumpDataOnly,
			ConsistentSnapshot: dumpConsistentSnapshot,
			// Always on for dump: MySQL/PostgreSQL already bracket this
			// unconditionally via Header/Footer (fileSink treats it as a
			// no-op there); SQL Server has no session-wide switch, so this
			// is what causes fileSink to emit its per-table NOCHECK window.
			DisableFK: true,
			BatchRows: dumpBatchRows,
			Progress:  newLogProgress(),
		},
	}

	log.Printf("dumping %s -> %s", redactDSN(dsn), dumpOutput)
	return Dump(ctx, provider, dsn, f, opts)
}
