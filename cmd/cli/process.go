package cli

import (
	"context"
	"fmt"

	"ruleflow/internal/config"
	"ruleflow/internal/models"
	"ruleflow/internal/observability"
	"ruleflow/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

var (
	processTicketID uint
	processTrigger  string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one rule processing pass for a ticket",
	Long: `Evaluates every active rule for the ticket's tenant and the given
trigger event, executes matching actions and records execution logs.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().UintVar(&processTicketID, "ticket", 0, "ticket id to process")
	processCmd.Flags().StringVar(&processTrigger, "trigger", models.TriggerOnManual,
		"trigger event (on_create, on_update, on_status_change, on_manual)")
	_ = processCmd.MarkFlagRequired("ticket")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if err := config.InitLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx := context.Background()
	if shutdown, err := observability.SetupTracing(ctx, cfg); err == nil {
		defer func() { _ = shutdown(ctx) }()
	} else {
		logrus.Warnf("init tracing: %v", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	engine := services.NewRuleEngineService(db, logrus.StandardLogger())
	if err := engine.ProcessTicket(ctx, processTicketID, processTrigger); err != nil {
		return err
	}

	entries, err := engine.Logs().ListForTicket(ctx, processTicketID)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Printf("rule=%d status=%s duration=%dms %s\n",
			entry.RuleID, entry.ExecutionStatus, entry.DurationMs, entry.ErrorMessage)
	}
	return nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}
	return db, nil
}
