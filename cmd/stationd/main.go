package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"waste-station-backend/config"
	"waste-station-backend/internal/db"
	"waste-station-backend/internal/ledger"
	"waste-station-backend/internal/logging"
	"waste-station-backend/internal/metrics"
	"waste-station-backend/internal/seed"
	"waste-station-backend/internal/station"
	"waste-station-backend/internal/store"
)

const serviceName = "waste-station-backend"

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles everything a subcommand needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	ledger  *ledger.Ledger
	svc     *station.Service
	metrics *metrics.Metrics
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "stationd",
		Short:         "Waste station volume tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (default $CONFIG_PATH or ./config/config.yaml)")

	setup := func() (*app, error) {
		return newApp(resolveConfigPath(configPath))
	}
	root.AddCommand(serveCommand(setup), seedCommand(setup))
	return root
}

func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "./config/config.yaml"
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration from %s: %w", configPath, err)
	}

	log, err := logging.New(cfg.Log, serviceName)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log.Info("configuration loaded", zap.String("path", configPath))

	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	log.Info("database initialized", zap.String("driver", cfg.Database.Driver))

	a := &app{cfg: cfg, log: log, db: gormDB}
	a.ledger = ledger.New(gormDB, nil)
	return a, nil
}

// buildService wires the registry. m may be nil.
func (a *app) buildService(m *metrics.Metrics) error {
	svc, err := station.NewService(store.NewGormStore(a.db), a.ledger,
		station.Policy{ThresholdPercentage: a.cfg.Collection.ThresholdPercentage},
		station.WithLogger(a.log),
		station.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	a.svc = svc
	a.metrics = m
	return nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}

func seedCommand(setup func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the configured initial stations on an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.buildService(nil); err != nil {
				return err
			}
			n, err := seed.Run(cmd.Context(), a.svc, a.cfg.Seed.Stations, a.log)
			if err != nil {
				return err
			}
			a.log.Info("seed finished", zap.Int("created", n))
			return nil
		},
	}
}
