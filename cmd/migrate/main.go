package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/pillguide/internal/config"
	"github.com/dvloznov/pillguide/internal/logger"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// migrationPattern matches migration files such as 0001_create_model_outputs.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

type migrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	appliedBy string
	log       zerolog.Logger
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	projectID := flag.String("project", cfg.BigQueryProject, "GCP project ID (defaults to BIGQUERY_PROJECT)")
	datasetID := flag.String("dataset", cfg.BigQueryDataset, "BigQuery dataset ID")
	appliedBy := flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir := flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
	dryRun := flag.Bool("dry-run", false, "List pending migrations without applying them")
	flag.Parse()

	log := logger.NewWithOptions(logger.Options{Service: "pillguide-migrate", Level: cfg.LogLevel})
	ctx := context.Background()

	if *projectID == "" {
		log.Fatal().Msg("-project flag or BIGQUERY_PROJECT is required")
	}

	dir, err := resolveMigrationsDir(*migrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to locate migrations")
	}

	migrations, err := readMigrations(dir, *projectID, *datasetID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Str("dir", dir).Msg("Found migration files")

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	m := &migrator{
		client:    client,
		projectID: *projectID,
		datasetID: *datasetID,
		appliedBy: *appliedBy,
		log:       log,
	}

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get applied migrations")
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	for _, w := range checksumMismatches(migrations, applied) {
		log.Warn().Msg(w)
	}

	pending := pendingMigrations(migrations, applied)
	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
		return
	}

	for _, migration := range pending {
		mlog := log.With().Str("migration", migration.Filename).Logger()
		if *dryRun {
			mlog.Info().Msg("[PENDING]")
			continue
		}

		mlog.Info().Msg("[RUN]")
		if err := m.run(ctx, migration.SQL, nil); err != nil {
			mlog.Fatal().Err(err).Msg("Failed to execute migration")
		}
		if err := m.recordMigration(ctx, migration); err != nil {
			mlog.Fatal().Err(err).Msg("Failed to record migration")
		}
		mlog.Info().Msg("[OK]")
	}

	if !*dryRun {
		log.Info().Int("applied", len(pending)).Msg("Successfully applied migrations")
	}
}

// resolveMigrationsDir also tries the path relative to the repo root, for
// runs from inside cmd/migrate.
func resolveMigrationsDir(dir string) (string, error) {
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	alt := filepath.Join("..", "..", dir)
	if _, err := os.Stat(alt); err == nil {
		return alt, nil
	}
	return "", fmt.Errorf("migrations directory not found: %s", dir)
}

// readMigrations reads the migration files in dir, ordered by version, with
// the {{PROJECT_ID}} and {{DATASET_ID}} placeholders substituted.
func readMigrations(dir, projectID, datasetID string, log zerolog.Logger) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := map[int]string{}
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(file.Name())
		if matches == nil {
			log.Debug().Str("file", file.Name()).Msg("Skipping file with invalid format")
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			log.Debug().Str("file", file.Name()).Msg("Skipping file with invalid version")
			continue
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: file.Name(),
			SQL:      renderSQL(string(content), projectID, datasetID),
			// Checksum covers the template, so the same migration matches across datasets.
			Checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func renderSQL(sql, projectID, datasetID string) string {
	sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", projectID)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)
}

func checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

func pendingMigrations(all []Migration, applied []AppliedMigration) []Migration {
	done := make(map[int]bool, len(applied))
	for _, am := range applied {
		done[am.Version] = true
	}

	var pending []Migration
	for _, m := range all {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending
}

// checksumMismatches reports applied migrations whose file changed afterwards.
func checksumMismatches(all []Migration, applied []AppliedMigration) []string {
	byVersion := make(map[int]Migration, len(all))
	for _, m := range all {
		byVersion[m.Version] = m
	}

	var warnings []string
	for _, am := range applied {
		m, ok := byVersion[am.Version]
		if !ok || am.Checksum == "" || am.Checksum == m.Checksum {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("migration %04d_%s changed after it was applied", m.Version, m.Name))
	}
	return warnings
}

func (m *migrator) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", m.projectID, m.datasetID, name)
}

func (m *migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	sql := `
		CREATE TABLE IF NOT EXISTS ` + m.table("schema_migrations") + ` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`
	return m.run(ctx, sql, nil)
}

func (m *migrator) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	sql := `
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + m.table("schema_migrations") + `
		ORDER BY version ASC
	`

	it, err := m.client.Query(sql).Read(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

func (m *migrator) recordMigration(ctx context.Context, migration Migration) error {
	sql := `
		INSERT INTO ` + m.table("schema_migrations") + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`
	return m.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	})
}

func (m *migrator) run(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	query := m.client.Query(sql)
	query.Parameters = params

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
