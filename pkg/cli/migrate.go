package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/LalaIAm/case-agent/pkg/cli/config"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/repository/postgres"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var dryRun bool
	var dimension int
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Preview changes without applying",
			Destination: &dryRun,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding vector length the indexes are built for",
			Value:       model.DefaultEmbeddingDimension,
			Sources:     cli.EnvVars("CASE_AGENT_EMBEDDING_DIMENSION"),
			Destination: &dimension,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Create Firestore indexes or the PostgreSQL schema for the configured backend",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			logger.Info("Migrate configuration",
				"backend", repoCfg.Backend(),
				"dimension", dimension,
				"dryRun", dryRun)

			switch repoCfg.Backend() {
			case config.BackendFirestore:
				return migrateFirestore(ctx, &repoCfg, dimension, dryRun)
			case config.BackendPostgres:
				return migratePostgres(ctx, &repoCfg, dimension, dryRun, os.Stdout)
			default:
				return goerr.Wrap(config.ErrUnknownBackend, "migrate supports firestore and postgres",
					goerr.V("backend", repoCfg.Backend()))
			}
		},
	}
}

func migrateFirestore(ctx context.Context, repoCfg *config.Repository, dimension int, dryRun bool) error {
	logger := logging.Default()

	if repoCfg.ProjectID() == "" {
		return goerr.Wrap(config.ErrMissingParameter, "firestore-project-id is required")
	}

	indexConfig := getIndexConfig(repoCfg.CollectionPrefix(), dimension)

	client, err := fireconf.NewClient(ctx, repoCfg.ProjectID(), repoCfg.DatabaseID())
	if err != nil {
		return goerr.Wrap(err, "failed to create fireconf client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close fireconf client", "error", err.Error())
		}
	}()

	if dryRun {
		logger.Info("Dry run mode - previewing changes")
		plan, err := client.GetMigrationPlan(ctx, indexConfig)
		if err != nil {
			return goerr.Wrap(err, "failed to create migration plan")
		}

		if len(plan.Steps) == 0 {
			logger.Info("No changes required")
			return nil
		}

		for _, step := range plan.Steps {
			logger.Info("Migration step",
				"collection", step.Collection,
				"operation", step.Operation,
				"description", step.Description,
				"destructive", step.Destructive)
		}
		return nil
	}

	logger.Info("Applying migrations")
	if err := client.Migrate(ctx, indexConfig); err != nil {
		return goerr.Wrap(err, "failed to apply migrations")
	}
	logger.Info("Migrations applied successfully")
	return nil
}

func migratePostgres(ctx context.Context, repoCfg *config.Repository, dimension int, dryRun bool, w io.Writer) error {
	logger := logging.Default()

	if dryRun {
		logger.Info("Dry run mode - printing schema")
		for _, stmt := range postgres.SchemaStatements(dimension) {
			if _, err := fmt.Fprintf(w, "%s;\n\n", stmt); err != nil {
				return goerr.Wrap(err, "failed to write schema")
			}
		}
		return nil
	}

	if repoCfg.PostgresURL() == "" {
		return goerr.Wrap(config.ErrMissingParameter, "postgres-url is required")
	}

	repo, err := postgres.New(ctx, repoCfg.PostgresURL())
	if err != nil {
		return goerr.Wrap(err, "failed to connect to postgres")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close postgres repository", "error", err.Error())
		}
	}()

	logger.Info("Applying schema")
	if err := repo.Migrate(ctx, dimension); err != nil {
		return goerr.Wrap(err, "failed to apply schema")
	}
	logger.Info("Schema applied successfully")
	return nil
}

func vectorIndex(filterPath string, dimension int) fireconf.Index {
	fields := []fireconf.IndexField{}
	if filterPath != "" {
		fields = append(fields, fireconf.IndexField{Path: filterPath, Order: fireconf.OrderAscending})
	}
	fields = append(fields, fireconf.IndexField{
		Path:   "Embedding",
		Vector: &fireconf.VectorConfig{Dimension: dimension},
	})
	return fireconf.Index{Fields: fields}
}

// getIndexConfig returns the Firestore index configuration. Each vector index
// pairs Embedding with the equality filter its FindNearest query applies.
func getIndexConfig(prefix string, dimension int) *fireconf.Config {
	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name: prefix + "memory_blocks",
				Indexes: []fireconf.Index{
					// ListBySession: SessionID ASC, CreatedAt ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "SessionID", Order: fireconf.OrderAscending},
							{Path: "CreatedAt", Order: fireconf.OrderAscending},
						},
					},
					// ListBySession with type filter
					{
						Fields: []fireconf.IndexField{
							{Path: "SessionID", Order: fireconf.OrderAscending},
							{Path: "Type", Order: fireconf.OrderAscending},
							{Path: "CreatedAt", Order: fireconf.OrderAscending},
						},
					},
					// CaseContext: CaseID ASC, CreatedAt DESC
					{
						Fields: []fireconf.IndexField{
							{Path: "CaseID", Order: fireconf.OrderAscending},
							{Path: "CreatedAt", Order: fireconf.OrderDescending},
						},
					},
					// CaseContext with type filter
					{
						Fields: []fireconf.IndexField{
							{Path: "CaseID", Order: fireconf.OrderAscending},
							{Path: "Type", Order: fireconf.OrderAscending},
							{Path: "CreatedAt", Order: fireconf.OrderDescending},
						},
					},
					vectorIndex("SessionID", dimension),
					vectorIndex("CaseID", dimension),
				},
			},
			{
				Name: prefix + "rules",
				Indexes: []fireconf.Index{
					// ListByType: Type ASC, ID ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "Type", Order: fireconf.OrderAscending},
							{Path: "ID", Order: fireconf.OrderAscending},
						},
					},
					vectorIndex("Type", dimension),
					vectorIndex("", dimension),
				},
			},
			{
				Name: prefix + "agent_runs",
				Indexes: []fireconf.Index{
					// ListByCase: CaseID ASC, CreatedAt ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "CaseID", Order: fireconf.OrderAscending},
							{Path: "CreatedAt", Order: fireconf.OrderAscending},
						},
					},
				},
			},
			{
				Name: prefix + "documents",
				Indexes: []fireconf.Index{
					// ListByCase: CaseID ASC, Kind ASC, CreatedAt ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "CaseID", Order: fireconf.OrderAscending},
							{Path: "Kind", Order: fireconf.OrderAscending},
							{Path: "CreatedAt", Order: fireconf.OrderAscending},
						},
					},
				},
			},
			{
				Name: prefix + "sessions",
				Indexes: []fireconf.Index{
					// ActiveSession: CaseID ASC, Status ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "CaseID", Order: fireconf.OrderAscending},
							{Path: "Status", Order: fireconf.OrderAscending},
						},
					},
					// ListByCase: CaseID ASC, Sequence ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "CaseID", Order: fireconf.OrderAscending},
							{Path: "Sequence", Order: fireconf.OrderAscending},
						},
					},
				},
			},
		},
	}
}
