package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"template-rules/api"
	"template-rules/db/cache"
	"template-rules/db/clickhouse"
	"template-rules/db/postgres"
	"template-rules/decision/availability"
	"template-rules/decision/pricing"
	"template-rules/internal/config"
	"template-rules/internal/jobs"
	"template-rules/internal/logging"
	"template-rules/service"
)

// stack holds the collaborators shared by the server subcommands
type stack struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *postgres.Store
	audit   *clickhouse.Store
	memo    *cache.Cache
	service *service.Service
	closers []func() error
}

func setup(c *cli.Context) (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	logger, err := logging.Install(cfg.Env, level)
	if err != nil {
		return nil, err
	}

	rt := &stack{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, func() error { _ = logger.Sync(); return nil })

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.DatabaseURL
	rt.store, err = postgres.Open(ctx, pgCfg)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.closers = append(rt.closers, rt.store.Close)

	rt.service = service.NewService(
		rt.store,
		pricing.NewEngine().WithMinorUnits(cfg.CurrencyMinorUnits),
		availability.NewEngine().WithSearchHorizon(cfg.SearchHorizonDays).WithLocation(cfg.Location()),
		logger,
	).WithCapacity(rt.store)

	if cfg.CacheEnabled() {
		rt.memo = cache.NewCache(&cache.Config{
			Addrs:     []string{cfg.RedisAddr},
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: "template-rules",
			TTL:       cfg.CacheTTL,
		})
		rt.closers = append(rt.closers, rt.memo.Close)
		rt.service.WithMemo(rt.memo)
	}

	if cfg.AuditEnabled() {
		rt.audit, err = clickhouse.NewStore(&clickhouse.Config{
			Host:     cfg.ClickHouseHost,
			Port:     cfg.ClickHousePort,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.closers = append(rt.closers, rt.audit.Close)
		rt.service.WithAudit(rt.audit)
	}

	return rt, nil
}

func (rt *stack) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && rt.logger != nil {
			rt.logger.Warn("failed to close", zap.Error(err))
		}
	}
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the HTTP API",
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.close()

	serverCfg := api.DefaultConfig()
	serverCfg.Port = rt.cfg.AppPort
	serverCfg.RateLimitPerMin = rt.cfg.RateLimitPerMin
	serverCfg.Location = rt.cfg.Location()
	serverCfg.Version = version

	server := api.NewServer(rt.service, serverCfg, rt.logger).
		WithDependency("postgres", rt.store)
	if rt.memo != nil {
		server.WithDependency("redis", rt.memo)
	}
	if rt.audit != nil {
		server.WithDependency("clickhouse", rt.audit).WithAudit(rt.audit)

		retention := jobs.NewRetention(rt.audit, rt.cfg.AuditRetentionDays, rt.logger)
		if err := retention.Start(rt.cfg.AuditPruneSchedule); err != nil {
			return err
		}
		defer retention.Stop()
	}

	return server.StartWithGracefulShutdown()
}

// =============================================================================
// MIGRATE COMMAND
// =============================================================================

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the template, booking and audit tables",
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.store.Migrate(c.Context); err != nil {
				return err
			}
			if rt.audit != nil {
				if err := rt.audit.Migrate(c.Context); err != nil {
					return err
				}
			}
			rt.logger.Info("migrations applied")
			return nil
		},
	}
}

// =============================================================================
// TEMPLATE COMMAND
// =============================================================================

func templateCommand() *cli.Command {
	return &cli.Command{
		Name:  "template",
		Usage: "Manage stored templates",
		Subcommands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Validate a template file and store it",
				Flags: []cli.Flag{
					templateFlag,
					&cli.StringFlag{Name: "business", Usage: "Owning business id (overrides the file)"},
				},
				Action: func(c *cli.Context) error {
					tmpl, err := loadTemplate(c.String("template"))
					if err != nil {
						return err
					}
					if b := c.String("business"); b != "" {
						tmpl.BusinessID = b
					}

					rt, err := setup(c)
					if err != nil {
						return err
					}
					defer rt.close()

					if err := rt.service.SaveTemplate(c.Context, tmpl); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "✅ stored %s as %s\n", displayName(tmpl), tmpl.ID)
					return nil
				},
			},
		},
	}
}

// =============================================================================
// AUDIT COMMAND
// =============================================================================

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Evaluation audit log operations",
		Subcommands: []*cli.Command{
			{
				Name:  "prune",
				Usage: "Delete evaluations older than the retention period",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Usage: "Retention in days (defaults to AUDIT_RETENTION_DAYS)"},
				},
				Action: func(c *cli.Context) error {
					rt, err := setup(c)
					if err != nil {
						return err
					}
					defer rt.close()

					if rt.audit == nil {
						return fmt.Errorf("audit log not configured: set CLICKHOUSE_HOST")
					}
					days := rt.cfg.AuditRetentionDays
					if c.IsSet("days") {
						days = c.Int("days")
					}
					if err := jobs.NewRetention(rt.audit, days, rt.logger).RunOnce(c.Context); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "✅ pruned evaluations older than %d days\n", days)
					return nil
				},
			},
		},
	}
}
