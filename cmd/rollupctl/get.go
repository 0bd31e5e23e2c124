package main

import (
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/chararch/gorollup"
	"github.com/chararch/gorollup/adapters/elasticsearch"
	"github.com/chararch/gorollup/adapters/metrics"
	"github.com/chararch/gorollup/adapters/repository"
	"github.com/chararch/gorollup/extensions/snapshot"
)

// repository backends
const (
	backendElasticsearch = "elasticsearch"
	backendMySQL         = "mysql"
)

func getCommand() *cobra.Command {
	var (
		backend string
		byJob   bool
		save    string
		wrapped bool
	)
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch rollup metadata from a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, closeRepo, err := openRepository(cmd, backend)
			if err != nil {
				return err
			}
			defer closeRepo()

			var m gorollup.Metadata
			if byJob {
				found, rerr := repo.FindByJobID(ctx, args[0])
				if rerr != nil {
					return rerr
				}
				if found == nil {
					return gorollup.NewRollupError(gorollup.ErrCodeNotFound, "no metadata of job:%v", args[0])
				}
				m = *found
			} else {
				got, rerr := repo.Get(ctx, args[0])
				if rerr != nil {
					return rerr
				}
				m = got
			}
			if save != "" {
				if err := snapshot.Save(ctx, snapshotStore(cfg), save, m); err != nil {
					return err
				}
			}
			return printMetadata(cmd, m, wrapped)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", backendElasticsearch, "repository backend: elasticsearch or mysql")
	cmd.Flags().BoolVar(&byJob, "job", false, "treat the argument as a rollup job id and fetch its latest metadata")
	cmd.Flags().StringVar(&save, "save", "", "also write the metadata to this snapshot")
	cmd.Flags().BoolVar(&wrapped, "wrapped", false, "print the document nested under rollup_metadata")
	return cmd
}

func openRepository(cmd *cobra.Command, backend string) (gorollup.Repository, func(), error) {
	ctx := cmd.Context()
	switch backend {
	case backendElasticsearch:
		client, err := elasticsearch.NewClient(ctx, elasticsearch.Config{
			Addresses:  cfg.Elasticsearch.Addresses,
			Username:   cfg.Elasticsearch.Username,
			Password:   cfg.Elasticsearch.Password,
			APIKey:     cfg.Elasticsearch.APIKey,
			MaxRetries: cfg.Elasticsearch.MaxRetries,
		})
		if err != nil {
			return nil, nil, err
		}
		repo := elasticsearch.New(client,
			elasticsearch.WithIndex(cfg.Elasticsearch.Index),
			elasticsearch.WithWrapped(cfg.Elasticsearch.Wrapped),
			elasticsearch.WithMetrics(metrics.NewMetrics(prometheus.NewRegistry(), backend)),
		)
		return repo, func() {}, nil
	case backendMySQL:
		if cfg.MySQL.DSN == "" {
			return nil, nil, fmt.Errorf("mysql.dsn is required for the %s backend", backendMySQL)
		}
		db, err := sql.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.New(db, gorollup.DefaultLogger,
			repository.WithTable(cfg.MySQL.Table),
			repository.WithMetrics(metrics.NewMetrics(prometheus.NewRegistry(), backend)),
		)
		return repo, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}
