package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ruleflow/internal/models"
)

// Per-action-type parameter payloads, decoded from RuleAction.ActionParams.

type AssignExecutorParams struct {
	Strategy   string   `json:"strategy"` // specific_executor, skill_match, or empty (least load)
	ExecutorID *uint    `json:"executor_id"`
	SkillIDs   []string `json:"skill_ids"` // category ids or names
}

type SetPriorityParams struct {
	Priority string `json:"priority"`
}

type SetDueDateParams struct {
	Calculation string  `json:"calculation"` // hours_from_now, days_from_now, business_hours_from_now
	Value       float64 `json:"value"`
}

type EscalateParams struct {
	PriorityLevel int  `json:"priority_level"` // steps to climb the priority scale
	NotifyManager bool `json:"notify_manager"`
}

type NotifyParams struct {
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
}

type SetStatusParams struct {
	Status string `json:"status"`
}

// executeActions runs a matched rule's actions in step order. An action with
// a non-empty gate expression is skipped when the gate fails. The first
// failing action aborts the remainder; actions already applied stay applied.
func (s *RuleEngineService) executeActions(ctx context.Context, rule *models.Rule, ticket *models.Ticket) ([]string, error) {
	actions := make([]models.RuleAction, len(rule.Actions))
	copy(actions, rule.Actions)
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].StepOrder < actions[j].StepOrder })

	var executed []string
	for i := range actions {
		action := &actions[i]
		if action.ActionCondition != "" && !s.evaluateActionCondition(action.ActionCondition, ticket) {
			continue
		}
		if err := s.executeAction(ctx, action, ticket); err != nil {
			return executed, fmt.Errorf("action %s: %w", action.ActionType, err)
		}
		executed = append(executed, action.ActionType)
	}
	return executed, nil
}

// evaluateActionCondition gates a single action. The expression syntax for
// per-action gates is not finalized, so every gate currently passes.
// TODO: reuse the condition evaluator once the expression format is settled.
func (s *RuleEngineService) evaluateActionCondition(expr string, ticket *models.Ticket) bool {
	return true
}

// executeAction dispatches one action by type. Every branch updates both the
// database row and the in-memory ticket so rules later in the pass observe
// the mutation.
func (s *RuleEngineService) executeAction(ctx context.Context, action *models.RuleAction, ticket *models.Ticket) error {
	switch action.ActionType {
	case models.ActionSetPriority:
		var p SetPriorityParams
		if err := json.Unmarshal([]byte(action.ActionParams), &p); err != nil {
			return fmt.Errorf("invalid params: %w", err)
		}
		if p.Priority == "" {
			return fmt.Errorf("priority param required")
		}
		if err := s.tickets.UpdateTicket(ctx, ticket.ID, map[string]interface{}{"priority": p.Priority}); err != nil {
			return err
		}
		ticket.Priority = p.Priority
		return nil

	case models.ActionSetDueDate:
		var p SetDueDateParams
		if err := json.Unmarshal([]byte(action.ActionParams), &p); err != nil {
			return fmt.Errorf("invalid params: %w", err)
		}
		due, err := dueDateFromNow(p.Calculation, p.Value)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{"due_date": due, "sla_due_date": due}
		if err := s.tickets.UpdateTicket(ctx, ticket.ID, updates); err != nil {
			return err
		}
		ticket.DueDate = &due
		ticket.SLADueDate = &due
		return nil

	case models.ActionEscalate:
		var p EscalateParams
		if err := json.Unmarshal([]byte(action.ActionParams), &p); err != nil {
			return fmt.Errorf("invalid params: %w", err)
		}
		if p.PriorityLevel > 0 {
			next := escalatePriority(ticket.Priority, p.PriorityLevel)
			if next != ticket.Priority {
				if err := s.tickets.UpdateTicket(ctx, ticket.ID, map[string]interface{}{"priority": next}); err != nil {
					return err
				}
				ticket.Priority = next
			}
		}
		if p.NotifyManager {
			// Manager notification has no delivery channel yet; leave a trace.
			s.logger.Infof("escalation: ticket %d flagged for manager notification", ticket.ID)
		}
		return nil

	case models.ActionNotify:
		var p NotifyParams
		if err := json.Unmarshal([]byte(action.ActionParams), &p); err != nil {
			return fmt.Errorf("invalid params: %w", err)
		}
		return s.notifier.Notify(ctx, ticket, p.Recipients, p.Message)

	case models.ActionSetStatus:
		var p SetStatusParams
		if err := json.Unmarshal([]byte(action.ActionParams), &p); err != nil {
			return fmt.Errorf("invalid params: %w", err)
		}
		if p.Status == "" {
			return fmt.Errorf("status param required")
		}
		if err := s.tickets.UpdateStatus(ctx, ticket.ID, p.Status); err != nil {
			return err
		}
		ticket.Status = p.Status
		return nil

	case models.ActionAssignExecutor:
		var p AssignExecutorParams
		if err := json.Unmarshal([]byte(action.ActionParams), &p); err != nil {
			return fmt.Errorf("invalid params: %w", err)
		}
		return s.assignExecutor(ctx, &p, ticket)

	default:
		return fmt.Errorf("unsupported action type: %s", action.ActionType)
	}
}

// dueDateFromNow computes a due timestamp. business_hours_from_now currently
// behaves exactly like hours_from_now; real business-hour arithmetic is a
// known simplification.
func dueDateFromNow(calculation string, value float64) (time.Time, error) {
	if value <= 0 {
		return time.Time{}, fmt.Errorf("due date value must be positive")
	}
	switch calculation {
	case "days_from_now":
		return time.Now().Add(time.Duration(value * 24 * float64(time.Hour))), nil
	case "hours_from_now", "business_hours_from_now", "":
		return time.Now().Add(time.Duration(value * float64(time.Hour))), nil
	default:
		return time.Time{}, fmt.Errorf("unknown due date calculation: %s", calculation)
	}
}

var priorityScale = []string{
	models.PriorityLow,
	models.PriorityMedium,
	models.PriorityHigh,
	models.PriorityCritical,
}

// escalatePriority climbs the priority scale by the given number of steps,
// clamped at critical. Unknown current priorities start from the bottom.
func escalatePriority(current string, steps int) string {
	index := 0
	for i, p := range priorityScale {
		if p == strings.ToLower(current) {
			index = i
			break
		}
	}
	index += steps
	if index >= len(priorityScale) {
		index = len(priorityScale) - 1
	}
	return priorityScale[index]
}

// executorCandidate is an executor profile with its computed current load.
type executorCandidate struct {
	profile *models.ExecutorProfile
	load    int
}

// assignExecutor selects and assigns an executor for the ticket:
//
//  1. status-eligible: active user account, availability "available"
//  2. capacity-eligible: current load below max concurrent (0 = unlimited)
//  3. strategy filter (specific_executor / skill_match / none)
//  4. empty strategy result falls back to all capacity-eligible candidates
//  5. lowest current load wins
//
// Nobody with capacity is a logged warning and a no-op, never an error.
func (s *RuleEngineService) assignExecutor(ctx context.Context, params *AssignExecutorParams, ticket *models.Ticket) error {
	profiles, err := s.executors.GetExecutors(ctx, ticket.TenantID)
	if err != nil {
		return fmt.Errorf("fetch executors: %w", err)
	}

	var eligible []executorCandidate
	for i := range profiles {
		profile := &profiles[i]
		if !profile.User.IsActive || profile.AvailabilityStatus != models.ExecutorAvailable {
			continue
		}
		load := s.executorLoad(ctx, profile)
		if profile.MaxConcurrentTickets > 0 && load >= profile.MaxConcurrentTickets {
			continue
		}
		eligible = append(eligible, executorCandidate{profile: profile, load: load})
	}

	candidates := filterByStrategy(params, ticket, eligible)
	if len(candidates) == 0 {
		// Strategy matched nobody: fall back to every capacity-eligible
		// candidate rather than leaving the ticket unassigned.
		candidates = eligible
	}
	if len(candidates) == 0 {
		s.logger.Warnf("assignment: no eligible executor for ticket %d", ticket.ID)
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.load < best.load {
			best = c
		}
	}

	userID := best.profile.UserID
	if err := s.tickets.AssignExecutor(ctx, ticket.ID, best.profile.ID, &userID); err != nil {
		return err
	}
	ticket.ExecutorID = &best.profile.ID
	ticket.AssigneeID = &userID
	if ticket.Status == models.TicketOpen || ticket.Status == "" {
		ticket.Status = models.TicketInProgress
	}
	return nil
}

// executorLoad prefers a live count of open/in-progress tickets and falls
// back to the profile's denormalized counters when the query fails.
func (s *RuleEngineService) executorLoad(ctx context.Context, profile *models.ExecutorProfile) int {
	count, err := s.executors.CountActiveTickets(ctx, profile.ID)
	if err == nil {
		return count
	}
	s.logger.Warnf("assignment: live load for executor %d unavailable: %v", profile.ID, err)
	if profile.OpenTicketCount > 0 {
		return profile.OpenTicketCount
	}
	if profile.AssignedCount > 0 {
		return profile.AssignedCount
	}
	return 0
}

// filterByStrategy narrows capacity-eligible candidates per the configured
// assignment strategy. Unknown strategies apply no extra filter.
func filterByStrategy(params *AssignExecutorParams, ticket *models.Ticket, candidates []executorCandidate) []executorCandidate {
	switch params.Strategy {
	case "specific_executor":
		if params.ExecutorID == nil {
			return nil
		}
		for _, c := range candidates {
			if c.profile.ID == *params.ExecutorID {
				return []executorCandidate{c}
			}
		}
		return nil

	case "skill_match":
		var matched []executorCandidate
		if len(params.SkillIDs) > 0 {
			for _, c := range candidates {
				if candidateMatchesSkills(c.profile, params.SkillIDs) {
					matched = append(matched, c)
				}
			}
			return matched
		}
		// No explicit skills configured: match against the ticket's own
		// category, by id first, then by name.
		for _, c := range candidates {
			if candidateMatchesTicketCategory(c.profile, ticket) {
				matched = append(matched, c)
			}
		}
		return matched

	default:
		return candidates
	}
}

func candidateMatchesSkills(profile *models.ExecutorProfile, skillIDs []string) bool {
	for _, skill := range skillIDs {
		if profile.CategoryID != nil && strconv.FormatUint(uint64(*profile.CategoryID), 10) == skill {
			return true
		}
		if profile.Category != nil && strings.EqualFold(profile.Category.Name, skill) {
			return true
		}
	}
	return false
}

func candidateMatchesTicketCategory(profile *models.ExecutorProfile, ticket *models.Ticket) bool {
	if ticket.CategoryID != nil && profile.CategoryID != nil && *ticket.CategoryID == *profile.CategoryID {
		return true
	}
	if ticket.Category != nil && profile.Category != nil &&
		strings.EqualFold(ticket.Category.Name, profile.Category.Name) {
		return true
	}
	return false
}
