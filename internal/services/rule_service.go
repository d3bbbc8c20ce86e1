package services

import (
	"context"
	"errors"
	"fmt"

	"ruleflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RuleService is the engine's rule store collaborator. The engine only reads
// rules; create/delete exist for the surrounding application and for seeding.
type RuleService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewRuleService(db *gorm.DB, logger *logrus.Logger) *RuleService {
	if logger == nil {
		logger = logrus.New()
	}
	return &RuleService{db: db, logger: logger}
}

// RuleConditionInput describes one condition in a create request.
type RuleConditionInput struct {
	FieldPath       string   `json:"field_path" binding:"required"`
	Operator        string   `json:"operator" binding:"required"`
	Value           []string `json:"value"`
	Sequence        int      `json:"sequence"`
	GroupID         string   `json:"group_id"`
	LogicalOperator string   `json:"logical_operator"`
}

// RuleActionInput describes one action in a create request.
type RuleActionInput struct {
	ActionType          string `json:"action_type" binding:"required"`
	ActionParams        string `json:"action_params"`
	StepOrder           int    `json:"step_order"`
	TriggerAfterMinutes *int   `json:"trigger_after_minutes"`
	ActionCondition     string `json:"action_condition"`
}

// RuleCreateRequest creates a rule together with its conditions and actions.
type RuleCreateRequest struct {
	TenantID      *uint                `json:"tenant_id"`
	Name          string               `json:"name" binding:"required"`
	RuleType      string               `json:"rule_type"`
	PriorityOrder int                  `json:"priority_order"`
	TriggerEvent  string               `json:"trigger_event" binding:"required"`
	IsActive      *bool                `json:"is_active"`
	StopOnMatch   bool                 `json:"stop_on_match"`
	MaxExecutions *int                 `json:"max_executions"`
	Conditions    []RuleConditionInput `json:"conditions"`
	Actions       []RuleActionInput    `json:"actions"`
}

var supportedOperators = map[string]bool{
	"is_null": true, "is_not_null": true,
	"equals": true, "not_equals": true,
	"contains": true, "not_contains": true,
	"in": true, "not_in": true,
	"starts_with": true, "ends_with": true,
	"greater_than": true, "less_than": true,
	"greater_than_or_equal": true, "less_than_or_equal": true,
	"between": true, "regex": true,
}

var supportedActionTypes = map[string]bool{
	models.ActionAssignExecutor: true,
	models.ActionSetPriority:    true,
	models.ActionSetDueDate:     true,
	models.ActionEscalate:       true,
	models.ActionNotify:         true,
	models.ActionSetStatus:      true,
}

func isSupportedTrigger(event string) bool {
	switch event {
	case models.TriggerOnCreate, models.TriggerOnUpdate,
		models.TriggerOnStatusChange, models.TriggerOnManual:
		return true
	default:
		return false
	}
}

// GetActiveRules fetches every active rule for the tenant scope and trigger
// event, ordered by priority. A nil tenant id selects rules with no tenant.
func (s *RuleService) GetActiveRules(ctx context.Context, tenantID *uint, triggerEvent string) ([]models.Rule, error) {
	query := s.db.WithContext(ctx).
		Where("is_active = ? AND trigger_event = ?", true, triggerEvent)
	if tenantID != nil {
		query = query.Where("tenant_id = ?", *tenantID)
	} else {
		query = query.Where("tenant_id IS NULL")
	}

	var rules []models.Rule
	if err := query.Order("priority_order ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	return rules, nil
}

// GetRuleByID loads one rule with its conditions and actions in evaluation
// order. Returns nil without error when the rule no longer exists.
func (s *RuleService) GetRuleByID(ctx context.Context, ruleID uint) (*models.Rule, error) {
	var rule models.Rule
	err := s.db.WithContext(ctx).
		Preload("Conditions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		First(&rule, ruleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rule %d: %w", ruleID, err)
	}
	return &rule, nil
}

// CreateRule validates and persists a rule with its conditions and actions.
func (s *RuleService) CreateRule(ctx context.Context, req *RuleCreateRequest) (*models.Rule, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	if req.Name == "" {
		return nil, fmt.Errorf("rule name required")
	}
	if !isSupportedTrigger(req.TriggerEvent) {
		return nil, fmt.Errorf("unsupported trigger event: %s", req.TriggerEvent)
	}
	for _, cond := range req.Conditions {
		if !supportedOperators[cond.Operator] {
			return nil, fmt.Errorf("unsupported operator: %s", cond.Operator)
		}
	}
	for _, act := range req.Actions {
		if !supportedActionTypes[act.ActionType] {
			return nil, fmt.Errorf("unsupported action type: %s", act.ActionType)
		}
	}

	ruleType := req.RuleType
	if ruleType == "" {
		ruleType = models.RuleTypePriority
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	rule := &models.Rule{
		TenantID:      req.TenantID,
		Name:          req.Name,
		RuleType:      ruleType,
		PriorityOrder: req.PriorityOrder,
		TriggerEvent:  req.TriggerEvent,
		IsActive:      active,
		StopOnMatch:   req.StopOnMatch,
		MaxExecutions: req.MaxExecutions,
	}
	for _, cond := range req.Conditions {
		logical := cond.LogicalOperator
		if logical == "" {
			logical = "AND"
		}
		rule.Conditions = append(rule.Conditions, models.RuleCondition{
			FieldPath:       cond.FieldPath,
			Operator:        cond.Operator,
			Value:           cond.Value,
			Sequence:        cond.Sequence,
			GroupID:         cond.GroupID,
			LogicalOperator: logical,
		})
	}
	for _, act := range req.Actions {
		params := act.ActionParams
		if params == "" {
			params = "{}"
		}
		rule.Actions = append(rule.Actions, models.RuleAction{
			ActionType:          act.ActionType,
			ActionParams:        params,
			StepOrder:           act.StepOrder,
			TriggerAfterMinutes: act.TriggerAfterMinutes,
			ActionCondition:     act.ActionCondition,
		})
	}

	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	s.logger.Infof("Created rule %d (%s, type %s)", rule.ID, rule.Name, rule.RuleType)
	return rule, nil
}

// DeleteRule removes a rule and, through ownership, its conditions and
// actions.
func (s *RuleService) DeleteRule(ctx context.Context, ruleID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rule_id = ?", ruleID).Delete(&models.RuleCondition{}).Error; err != nil {
			return fmt.Errorf("failed to delete rule conditions: %w", err)
		}
		if err := tx.Where("rule_id = ?", ruleID).Delete(&models.RuleAction{}).Error; err != nil {
			return fmt.Errorf("failed to delete rule actions: %w", err)
		}
		result := tx.Delete(&models.Rule{}, ruleID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("rule not found")
		}
		return nil
	})
}
