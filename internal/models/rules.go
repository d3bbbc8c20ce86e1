package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Trigger events that start a rule processing pass.
const (
	TriggerOnCreate       = "on_create"
	TriggerOnUpdate       = "on_update"
	TriggerOnStatusChange = "on_status_change"
	TriggerOnManual       = "on_manual"
)

// Canonical rule types. Custom types are permitted; these three have a fixed
// processing order so priority rules run before SLA rules before allocation.
const (
	RuleTypePriority   = "priority"
	RuleTypeSLA        = "sla"
	RuleTypeAllocation = "allocation"
)

// Action types dispatched by the action executor.
const (
	ActionAssignExecutor = "assign_executor"
	ActionSetPriority    = "set_priority"
	ActionSetDueDate     = "set_due_date"
	ActionEscalate       = "escalate"
	ActionNotify         = "notify"
	ActionSetStatus      = "set_status"
)

// Execution log statuses.
const (
	ExecutionSuccess = "success"
	ExecutionFailed  = "failed"
	ExecutionSkipped = "skipped"
)

// StringList stores an ordered list of strings as a JSON text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported StringList source type %T", src)
	}
}

// Rule is a tenant-scoped policy evaluated on ticket lifecycle events. A rule
// exclusively owns its conditions and actions; deleting the rule deletes both.
type Rule struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	TenantID      *uint          `gorm:"index" json:"tenant_id"`
	Name          string         `gorm:"not null" json:"name"`
	RuleType      string         `gorm:"index;default:'priority'" json:"rule_type"`
	PriorityOrder int            `gorm:"default:0" json:"priority_order"` // lower runs first
	TriggerEvent  string         `gorm:"index;not null" json:"trigger_event"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	StopOnMatch   bool           `gorm:"default:false" json:"stop_on_match"`
	MaxExecutions *int           `json:"max_executions"` // nil means uncapped
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	Conditions []RuleCondition `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"conditions,omitempty"`
	Actions    []RuleAction    `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"actions,omitempty"`
}

// RuleCondition is one predicate over a ticket field. Conditions sharing a
// GroupID are folded together using each condition's own LogicalOperator; an
// empty GroupID makes the condition its own singleton group.
type RuleCondition struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	RuleID          uint       `gorm:"index" json:"rule_id"`
	FieldPath       string     `gorm:"not null" json:"field_path"` // dotted path, e.g. "complainant.department"
	Operator        string     `gorm:"not null" json:"operator"`
	Value           StringList `gorm:"type:text" json:"value"`
	Sequence        int        `gorm:"default:0" json:"sequence"`
	GroupID         string     `gorm:"index" json:"group_id"`
	LogicalOperator string     `gorm:"default:'AND'" json:"logical_operator"` // AND, OR
}

// RuleAction is one effect applied when a rule matches. ActionParams holds a
// JSON object whose shape depends on ActionType.
type RuleAction struct {
	ID                  uint   `gorm:"primaryKey" json:"id"`
	RuleID              uint   `gorm:"index" json:"rule_id"`
	ActionType          string `gorm:"not null" json:"action_type"`
	ActionParams        string `gorm:"type:text" json:"action_params"`
	StepOrder           int    `gorm:"default:0" json:"step_order"`
	TriggerAfterMinutes *int   `json:"trigger_after_minutes"` // delayed execution, needs an external scheduler
	ActionCondition     string `json:"action_condition"`      // secondary gate, expression syntax not finalized
}

// RuleExecutionLog records one rule evaluation against one ticket. Entries
// are written once and never mutated; success counts enforce MaxExecutions.
type RuleExecutionLog struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	RuleID            uint      `gorm:"index" json:"rule_id"`
	TicketID          uint      `gorm:"index" json:"ticket_id"`
	PassID            string    `gorm:"index" json:"pass_id"` // shared by all entries of one processing pass
	ExecutionStatus   string    `gorm:"index" json:"execution_status"` // success, failed, skipped
	MatchedConditions string    `gorm:"type:text" json:"matched_conditions"` // JSON map of condition id to result
	ActionsExecuted   string    `gorm:"type:text" json:"actions_executed"`   // JSON list of action types
	ErrorMessage      string    `gorm:"type:text" json:"error_message"`
	DurationMs        int64     `json:"duration_ms"`
	CreatedAt         time.Time `json:"created_at"`

	Rule Rule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
}
