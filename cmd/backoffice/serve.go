package main

import (
	"context"
	"io"

	"github.com/koustreak/backoffice/internal/config"
	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/eventlog"
	"github.com/koustreak/backoffice/internal/export"
	"github.com/koustreak/backoffice/internal/filestore/minio"
	"github.com/koustreak/backoffice/internal/logger"
	"github.com/koustreak/backoffice/internal/mapper"
	"github.com/koustreak/backoffice/internal/metrics"
	"github.com/koustreak/backoffice/internal/query"
	"github.com/koustreak/backoffice/internal/schema"
	"github.com/koustreak/backoffice/internal/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, db, closeDB, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	log := logger.L()

	m := metrics.New("backoffice")
	query.SetMetrics(m)

	reader := schema.ForDB(db, cfg.Database.ToDatabase().Schema)
	reg, err := buildRegistry(ctx, db, reader, cfg)
	if err != nil {
		return err
	}

	sink, closeSink, err := buildSink(ctx, db, reader, cfg, m)
	if err != nil {
		return err
	}
	if closeSink != nil {
		defer closeSink.Close()
	}

	var exp *export.Exporter
	if cfg.Export != nil {
		store, err := minio.New(ctx, cfg.Export.ToStore())
		if err != nil {
			return err
		}
		exp = export.New(store, cfg.Export.Bucket, cfg.Export.URLTTL, m)
	}

	log.InfoWith("registry ready", map[string]interface{}{
		"tables": len(reg.Tables()),
		"views":  len(reg.Views()),
		"export": exp != nil,
	})

	srv := server.New(server.Options{
		Registry:     reg,
		Events:       sink,
		Exporter:     exp,
		Metrics:      m,
		DB:           db,
		Logger:       log,
		MaxPageSize:  cfg.Server.MaxPageSize,
		QueryTimeout: cfg.Database.QueryTimeout,
	})
	return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout)
}

// buildRegistry maps every configured table, then the views over them.
func buildRegistry(ctx context.Context, db database.DB, reader schema.Reader, cfg *config.Config) (*mapper.Registry, error) {
	reg := mapper.NewRegistry()

	for _, tc := range cfg.Tables {
		var opts []mapper.Option
		if tc.OrderBy != "" {
			dir, err := query.ParseDirection(tc.OrderDir)
			if err != nil {
				return nil, err
			}
			opts = append(opts, mapper.WithOrderBy(tc.OrderBy, dir))
		}
		if tc.SelectColumns != "" {
			opts = append(opts, mapper.WithSelectColumns(tc.SelectColumns))
		}
		for column, names := range tc.Constraints {
			for _, name := range names {
				opts = append(opts, mapper.WithConstraint(column, name))
			}
		}

		m, err := mapper.New(ctx, db, reader, tc.Name, opts...)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}

	for _, vc := range cfg.Views {
		primary, err := reg.Table(vc.Primary)
		if err != nil {
			return nil, err
		}
		cols := make([]mapper.ViewColumn, 0, len(vc.Columns))
		for _, c := range vc.Columns {
			cols = append(cols, mapper.ViewColumn{Alias: c.Alias, Expr: c.Expr})
		}
		var opts []mapper.ViewOption
		if vc.OrderBy != "" {
			dir, err := query.ParseDirection(vc.OrderDir)
			if err != nil {
				return nil, err
			}
			opts = append(opts, mapper.WithViewOrderBy(vc.OrderBy, dir))
		}

		v, err := mapper.NewView(primary, vc.Name, vc.From, cols, opts...)
		if err != nil {
			return nil, err
		}
		if err := reg.RegisterView(v); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// buildSink returns the audit sink. With events disabled every event only
// goes to the fallback log.
func buildSink(ctx context.Context, db database.DB, reader schema.Reader, cfg *config.Config, m *metrics.Metrics) (*eventlog.Sink, io.Closer, error) {
	fallback, closer, err := logger.NewFile(cfg.Log.FallbackFile, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Events.Enabled {
		return eventlog.NewSink(nil, "", fallback, m), closer, nil
	}

	events, err := mapper.New(ctx, db, reader, cfg.Events.Table)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, nil, err
	}
	return eventlog.NewSink(events, cfg.Events.Table, fallback, m), closer, nil
}

