package services

import (
	"context"
	"fmt"

	"ruleflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExecutorService is the engine's executor directory collaborator.
type ExecutorService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewExecutorService(db *gorm.DB, logger *logrus.Logger) *ExecutorService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ExecutorService{db: db, logger: logger}
}

// GetExecutors returns every executor profile in the tenant's scope with the
// linked user and category preloaded. A nil tenant id selects the unscoped
// profiles, matching the rule fetch filter.
func (s *ExecutorService) GetExecutors(ctx context.Context, tenantID *uint) ([]models.ExecutorProfile, error) {
	query := s.db.WithContext(ctx).
		Preload("User").
		Preload("Category")
	if tenantID != nil {
		query = query.Where("tenant_id = ?", *tenantID)
	} else {
		query = query.Where("tenant_id IS NULL")
	}

	var profiles []models.ExecutorProfile
	if err := query.Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to list executors: %w", err)
	}
	return profiles, nil
}

// CountActiveTickets is the live load of one executor: tickets currently
// open or in progress and assigned to that profile.
func (s *ExecutorService) CountActiveTickets(ctx context.Context, executorID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("executor_id = ? AND status IN ?", executorID,
			[]string{models.TicketOpen, models.TicketInProgress}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active tickets for executor %d: %w", executorID, err)
	}
	return int(count), nil
}
