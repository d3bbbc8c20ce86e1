package services

import (
	"context"
	"fmt"
	"time"

	"ruleflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TicketService is the engine's ticket store collaborator.
type TicketService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTicketService(db *gorm.DB, logger *logrus.Logger) *TicketService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TicketService{db: db, logger: logger}
}

// GetTicketByID loads a ticket with the relations conditions address by
// dotted field path.
func (s *TicketService) GetTicketByID(ctx context.Context, ticketID uint) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.WithContext(ctx).
		Preload("Category").
		Preload("Complainant").
		Preload("Assignee").
		Preload("Executor").
		Preload("Executor.User").
		First(&ticket, ticketID).Error
	if err != nil {
		return nil, fmt.Errorf("ticket not found: %w", err)
	}
	return &ticket, nil
}

// UpdateTicket applies a partial column update.
func (s *TicketService) UpdateTicket(ctx context.Context, ticketID uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ?", ticketID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update ticket %d: %w", ticketID, err)
	}
	return nil
}

// UpdateStatus changes a ticket's status and stamps the matching resolution
// timestamp on terminal statuses.
func (s *TicketService) UpdateStatus(ctx context.Context, ticketID uint, status string) error {
	updates := map[string]interface{}{"status": status}
	now := time.Now()
	switch status {
	case models.TicketResolved:
		updates["resolved_at"] = &now
	case models.TicketClosed:
		updates["closed_at"] = &now
	}
	if err := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ?", ticketID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update status of ticket %d: %w", ticketID, err)
	}
	s.logger.Infof("Ticket %d status set to %s", ticketID, status)
	return nil
}

// AssignExecutor writes both the executor profile reference and the linked
// user reference on the ticket, moves an open ticket to in_progress and
// maintains the executor load counters. Reassignment decrements the previous
// executor's open counter.
func (s *TicketService) AssignExecutor(ctx context.Context, ticketID uint, executorID uint, executorUserID *uint) error {
	var ticket models.Ticket
	if err := s.db.WithContext(ctx).
		Select("id", "status", "executor_id").
		First(&ticket, ticketID).Error; err != nil {
		return fmt.Errorf("ticket not found: %w", err)
	}

	if ticket.ExecutorID != nil && *ticket.ExecutorID == executorID {
		return nil
	}

	userID := executorUserID
	if userID == nil {
		var profile models.ExecutorProfile
		if err := s.db.WithContext(ctx).Select("id", "user_id").First(&profile, executorID).Error; err != nil {
			return fmt.Errorf("executor profile not found: %w", err)
		}
		userID = &profile.UserID
	}

	prevExecutorID := ticket.ExecutorID
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if prevExecutorID != nil {
			if err := tx.Exec(
				`UPDATE executor_profiles SET open_ticket_count = CASE WHEN open_ticket_count > 0 THEN open_ticket_count - 1 ELSE 0 END WHERE id = ?`,
				*prevExecutorID,
			).Error; err != nil {
				return fmt.Errorf("failed to decrement previous executor load: %w", err)
			}
		}

		updates := map[string]interface{}{
			"executor_id": executorID,
			"assignee_id": *userID,
		}
		if ticket.Status == models.TicketOpen || ticket.Status == "" {
			updates["status"] = models.TicketInProgress
		}
		if err := tx.Model(&models.Ticket{}).Where("id = ?", ticketID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to assign ticket: %w", err)
		}

		if err := tx.Model(&models.ExecutorProfile{}).
			Where("id = ?", executorID).
			Updates(map[string]interface{}{
				"open_ticket_count": gorm.Expr("open_ticket_count + 1"),
				"assigned_count":    gorm.Expr("assigned_count + 1"),
			}).Error; err != nil {
			return fmt.Errorf("failed to increment executor load: %w", err)
		}

		s.logger.Infof("Assigned ticket %d to executor %d", ticketID, executorID)
		return nil
	})
}
