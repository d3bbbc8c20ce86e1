package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"ruleflow/internal/metrics"
	"ruleflow/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// RuleEngineService evaluates configured business rules against tickets on
// lifecycle events and executes the resulting actions. One ProcessTicket
// call is strictly sequential: later rules depend on mutations made by
// earlier rules in the same pass.
type RuleEngineService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	tracer    trace.Tracer
	rules     *RuleService
	tickets   *TicketService
	executors *ExecutorService
	logs      *ExecutionLogService
	notifier  Notifier
}

func NewRuleEngineService(db *gorm.DB, logger *logrus.Logger) *RuleEngineService {
	if logger == nil {
		logger = logrus.New()
	}
	return &RuleEngineService{
		db:        db,
		logger:    logger,
		tracer:    otel.Tracer("ruleflow.engine"),
		rules:     NewRuleService(db, logger),
		tickets:   NewTicketService(db, logger),
		executors: NewExecutorService(db, logger),
		logs:      NewExecutionLogService(db, logger),
		notifier:  NewLogNotifier(logger),
	}
}

// SetNotifier replaces the default log-only notifier.
func (s *RuleEngineService) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// Logs exposes the execution log store for callers inspecting past passes.
func (s *RuleEngineService) Logs() *ExecutionLogService { return s.logs }

// Rules exposes the rule store.
func (s *RuleEngineService) Rules() *RuleService { return s.rules }

// Canonical types run in this order so priority rules feed SLA due-date
// calculations, which in turn run before allocation.
var canonicalRuleTypes = []string{
	models.RuleTypePriority,
	models.RuleTypeSLA,
	models.RuleTypeAllocation,
}

// ProcessTicket runs one rule pass for a ticket and trigger event. A missing
// ticket is the only fatal condition; every per-rule failure is absorbed
// into the execution log and processing continues.
func (s *RuleEngineService) ProcessTicket(ctx context.Context, ticketID uint, triggerEvent string) error {
	ctx, span := s.tracer.Start(ctx, "engine.process_ticket")
	defer span.End()
	span.SetAttributes(
		attribute.Int("ticket.id", int(ticketID)),
		attribute.String("trigger.event", triggerEvent),
	)

	ticket, err := s.tickets.GetTicketByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("process ticket %d: %w", ticketID, err)
	}

	rules, err := s.rules.GetActiveRules(ctx, ticket.TenantID, triggerEvent)
	if err != nil {
		return fmt.Errorf("process ticket %d: %w", ticketID, err)
	}
	metrics.IncPass()
	if len(rules) == 0 {
		return nil
	}

	grouped := make(map[string][]models.Rule)
	for _, rule := range rules {
		grouped[rule.RuleType] = append(grouped[rule.RuleType], rule)
	}

	passID := uuid.NewString()
	s.logger.Debugf("engine: pass %s ticket %d trigger %s (%d rules)", passID, ticketID, triggerEvent, len(rules))

	for _, ruleType := range ruleTypeOrder(grouped) {
		group := grouped[ruleType]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].PriorityOrder < group[j].PriorityOrder
		})
		for _, rule := range group {
			if s.processRule(ctx, rule.ID, ticket, passID) == stopTypeGroup {
				// stop_on_match halts this type's remaining rules only;
				// other type groups still run in full.
				break
			}
		}
	}
	return nil
}

// ruleTypeOrder yields the canonical types first, then any custom types in
// lexical order.
func ruleTypeOrder(grouped map[string][]models.Rule) []string {
	canonical := map[string]bool{}
	order := make([]string, 0, len(grouped))
	for _, t := range canonicalRuleTypes {
		canonical[t] = true
		if _, ok := grouped[t]; ok {
			order = append(order, t)
		}
	}
	var rest []string
	for t := range grouped {
		if !canonical[t] {
			rest = append(rest, t)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

type ruleOutcome int

const (
	continueType ruleOutcome = iota
	stopTypeGroup
)

// processRule evaluates and executes one rule, writing exactly one execution
// log entry. Failures are logged, never propagated.
func (s *RuleEngineService) processRule(ctx context.Context, ruleID uint, ticket *models.Ticket, passID string) ruleOutcome {
	start := time.Now()

	rule, err := s.rules.GetRuleByID(ctx, ruleID)
	if err != nil || rule == nil {
		// Detail rows can vanish between the list fetch and here.
		if err != nil {
			s.logger.Warnf("engine: rule %d detail fetch failed: %v", ruleID, err)
		}
		return continueType
	}

	if rule.MaxExecutions != nil {
		count, err := s.logs.CountSuccess(ctx, rule.ID, ticket.ID)
		if err == nil && count >= *rule.MaxExecutions {
			s.recordExecution(ctx, &models.RuleExecutionLog{
				RuleID:          rule.ID,
				TicketID:        ticket.ID,
				PassID:          passID,
				ExecutionStatus: models.ExecutionSkipped,
				ErrorMessage:    "Max executions reached",
				DurationMs:      time.Since(start).Milliseconds(),
			})
			return continueType
		}
	}

	attrs := ticketAttributes(ticket)
	matched, trace := evaluateRuleConditions(rule, attrs)
	if !matched {
		s.recordExecution(ctx, &models.RuleExecutionLog{
			RuleID:            rule.ID,
			TicketID:          ticket.ID,
			PassID:            passID,
			ExecutionStatus:   models.ExecutionSkipped,
			MatchedConditions: marshalTrace(trace),
			ErrorMessage:      "Conditions not matched",
			DurationMs:        time.Since(start).Milliseconds(),
		})
		return continueType
	}

	executed, err := s.executeActions(ctx, rule, ticket)
	if err != nil {
		s.logger.Warnf("engine: rule %d (%s) failed on ticket %d: %v", rule.ID, rule.Name, ticket.ID, err)
		s.recordExecution(ctx, &models.RuleExecutionLog{
			RuleID:            rule.ID,
			TicketID:          ticket.ID,
			PassID:            passID,
			ExecutionStatus:   models.ExecutionFailed,
			MatchedConditions: marshalTrace(trace),
			ActionsExecuted:   marshalActions(executed),
			ErrorMessage:      err.Error(),
			DurationMs:        time.Since(start).Milliseconds(),
		})
		return continueType
	}

	s.logger.Infof("engine: rule %d (%s) matched ticket %d, executed %d actions", rule.ID, rule.Name, ticket.ID, len(executed))
	s.recordExecution(ctx, &models.RuleExecutionLog{
		RuleID:            rule.ID,
		TicketID:          ticket.ID,
		PassID:            passID,
		ExecutionStatus:   models.ExecutionSuccess,
		MatchedConditions: marshalTrace(trace),
		ActionsExecuted:   marshalActions(executed),
		DurationMs:        time.Since(start).Milliseconds(),
	})

	if rule.StopOnMatch {
		return stopTypeGroup
	}
	return continueType
}

// recordExecution writes an audit entry. A logging failure never aborts rule
// processing.
func (s *RuleEngineService) recordExecution(ctx context.Context, entry *models.RuleExecutionLog) {
	metrics.IncRuleOutcome(entry.ExecutionStatus)
	if err := s.logs.Insert(ctx, entry); err != nil {
		s.logger.Warnf("engine: record execution for rule %d failed: %v", entry.RuleID, err)
	}
}

func marshalTrace(trace map[string]bool) string {
	b, err := json.Marshal(trace)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func marshalActions(executed []string) string {
	if executed == nil {
		executed = []string{}
	}
	b, err := json.Marshal(executed)
	if err != nil {
		return "[]"
	}
	return string(b)
}
