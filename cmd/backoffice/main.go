// Command backoffice serves a JSON API over the tables named in its
// configuration and offers catalog inspection commands.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/backoffice/internal/config"
	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/database/provider"
	"github.com/koustreak/backoffice/internal/logger"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "backoffice",
		Short:         "Back-office data administration",
		Long:          "Maps database tables to a JSON API with audit events and CSV exports.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "backoffice.yaml", "path to the configuration file")

	rootCmd.AddCommand(serveCmd(), tablesCmd(), inspectCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.L().ErrorWith("command failed", err, nil)
		stop()
		os.Exit(1)
	}
}

// setup loads the configuration, installs the global logger and connects.
func setup(ctx context.Context) (*config.Config, database.DB, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log := logger.New(cfg.Log.ToLogger(os.Stdout))
	logger.SetGlobal(log)

	dbCfg := cfg.Database.ToDatabase()
	p := provider.New(dbCfg)
	db, err := p.Get(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	log.InfoWith("database connected", map[string]interface{}{
		"driver": string(dbCfg.Driver),
		"schema": dbCfg.Schema,
	})
	return cfg, db, p.Close, nil
}
