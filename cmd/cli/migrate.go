package cli

import (
	"fmt"

	"ruleflow/internal/config"
	"ruleflow/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := config.InitLogger(cfg); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}

		logrus.Info("Starting database migration...")
		if err := db.AutoMigrate(
			&models.Tenant{},
			&models.User{},
			&models.Category{},
			&models.Ticket{},
			&models.ExecutorProfile{},
			&models.Rule{},
			&models.RuleCondition{},
			&models.RuleAction{},
			&models.RuleExecutionLog{},
		); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logrus.Info("Database migration completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
