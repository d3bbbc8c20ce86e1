package services

import (
	"context"
	"fmt"
	"time"

	"ruleflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExecutionLogService is the engine's audit store collaborator. Entries are
// append-only.
type ExecutionLogService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewExecutionLogService(db *gorm.DB, logger *logrus.Logger) *ExecutionLogService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ExecutionLogService{db: db, logger: logger}
}

// Insert writes one execution log entry.
func (s *ExecutionLogService) Insert(ctx context.Context, entry *models.RuleExecutionLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}
	return nil
}

// CountSuccess is the number of prior successful executions of one rule
// against one ticket; it enforces a rule's max_executions cap.
func (s *ExecutionLogService) CountSuccess(ctx context.Context, ruleID, ticketID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RuleExecutionLog{}).
		Where("rule_id = ? AND ticket_id = ? AND execution_status = ?",
			ruleID, ticketID, models.ExecutionSuccess).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count success logs: %w", err)
	}
	return int(count), nil
}

// ListForRule returns the most recent entries for one rule.
func (s *ExecutionLogService) ListForRule(ctx context.Context, ruleID uint, limit int) ([]models.RuleExecutionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.RuleExecutionLog
	err := s.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list logs for rule %d: %w", ruleID, err)
	}
	return entries, nil
}

// ListForTicket returns every entry written for one ticket, newest first.
func (s *ExecutionLogService) ListForTicket(ctx context.Context, ticketID uint) ([]models.RuleExecutionLog, error) {
	var entries []models.RuleExecutionLog
	err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list logs for ticket %d: %w", ticketID, err)
	}
	return entries, nil
}
