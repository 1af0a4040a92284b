package main

import (
	"log"

	"github.com/migrasquiel/migrasquiel/migraerr"
	"github.com/spf13/cobra"
)

var (
	migrateProvider            string
	migrateDestinationProvider string
	migrateSource              string
	migrateSourceEnv           string
	migrateDestination         string
	migrateDestEnv             string
	migrateTables              string
	migrateExclude             string
	migrateSchemaOnly          bool
	migrateDataOnly            bool
	migrateBatchRows           int
	migrateConsistentSnapshot  bool
	migrateDisableFK           bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy schema and/or row data directly from a live source to a live destination",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateProvider, "provider", "mysql", "source dialect: mysql, postgres, or sqlserver")
	migrateCmd.Flags().StringVar(&migrateDestinationProvider, "destination-provider", "", "destination dialect (defaults to --provider)")
	migrateCmd.Flags().StringVar(&migrateSource, "source", "", "source connection URL")
	migrateCmd.Flags().StringVar(&migrateSourceEnv, "source-env", "", "environment variable holding the source connection URL")
	migrateCmd.Flags().StringVar(&migrateDestination, "destination", "", "destination connection URL")
	migrateCmd.Flags().StringVar(&migrateDestEnv, "destination-env", "", "environment variable holding the destination connection URL")
	migrateCmd.Flags().StringVar(&migrateTables, "tables", "", "comma-separated table allowlist")
	migrateCmd.Flags().StringVar(&migrateExclude, "exclude", "", "comma-separated table denylist")
	migrateCmd.Flags().BoolVar(&migrateSchemaOnly, "schema-only", false, "create tables only, copy no row data")
	migrateCmd.Flags().BoolVar(&migrateDataOnly, "data-only", false, "copy row data only, assume destination tables already exist")
	migrateCmd.Flags().IntVar(&migrateBatchRows, "batch-rows", 1000, "rows per INSERT statement")
	migrateCmd.Flags().BoolVar(&migrateConsistentSnapshot, "consistent-snapshot", false, "read from one consistent point-in-time snapshot")
	migrateCmd.Flags().BoolVar(&migrateDisableFK, "disable-fk-checks", true, "disable destination foreign key checks for the duration of the migration")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	srcProvider := Provider(migrateProvider)
	if _, err := NewDialect(srcProvider); err != nil {
		return migraerr.Usage("migrate", err)
	}
	dstProvider := srcProvider
	if migrateDestinationProvider != "" {
		dstProvider = Provider(migrateDestinationProvider)
		if _, err := NewDialect(dstProvider); err != nil {
			return migraerr.Usage("migrate", err)
		}
	}

	srcDSN, err := resolveConnection(migrateSource, migrateSourceEnv)
	if err != nil {
		return migraerr.Usage("migrate", err)
	}
	dstDSN, err := resolveConnection(migrateDestination, migrateDestEnv)
	if err != nil {
		return migraerr.Usage("migrate", err)
	}
	if !cmd.Flags().Changed("disable-fk-checks") {
		log.Printf("WARN: --disable-fk-checks left at its default (true); pass --disable-fk-checks=false if the destination already enforces safe insert order")
	}
	if dstProvider != srcProvider && !migrateDataOnly {
		log.Printf("WARN: migrating across dialects (%s -> %s) without --data-only; destination DDL is the source's verbatim CREATE TABLE text and may not parse", srcProvider, dstProvider)
	}

	ctx, cancel := rootContext()
	defer cancel()

	opts := PipelineOptions{
		Include:            splitCSVList(migrateTables),
		Exclude:            splitCSVList(migrateExclude),
		SchemaOnly:         migrateSchemaOnly,
		DataOnly:           migrateDataOnly,
		ConsistentSnapshot: migrateConsistentSnapshot,
		DisableFK:          migrateDisableFK,
		BatchRows:          migrateBatchRows,
		Progress:           newLogProgress(),
	}

	log.Printf("migrating %s -> %s", redactDSN(srcDSN), redactDSN(dstDSN))
	return Migrate(ctx, srcProvider, srcDSN, dstProvider, dstDSN, opts)
}
