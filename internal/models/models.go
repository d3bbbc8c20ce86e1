package models

import (
	"time"

	"gorm.io/gorm"
)

// Ticket statuses.
const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
)

// Ticket priorities, ordered from lowest to highest.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Executor availability statuses.
const (
	ExecutorAvailable = "available"
	ExecutorBusy      = "busy"
	ExecutorOffline   = "offline"
)

// Tenant scopes all business data. A nil tenant id on a ticket or rule means
// the record belongs to the unscoped (single-tenant) installation.
type Tenant struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"unique;not null" json:"name"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type User struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	TenantID   *uint          `gorm:"index" json:"tenant_id"`
	Username   string         `gorm:"unique;not null" json:"username"`
	Email      string         `gorm:"unique;not null" json:"email"`
	Name       string         `json:"name"`
	Department string         `json:"department"`
	Phone      string         `json:"phone"`
	Role       string         `gorm:"default:'complainant'" json:"role"` // complainant, executor, admin
	IsActive   bool           `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

type Category struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	TenantID  *uint          `gorm:"index" json:"tenant_id"`
	Name      string         `gorm:"not null" json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Ticket is the record the rule engine evaluates and mutates. Relations are
// preloaded so conditions can address them by dotted field path
// (e.g. "complainant.department", "category.name", "tags[0]").
type Ticket struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	TenantID      *uint          `gorm:"index" json:"tenant_id"`
	Title         string         `gorm:"not null" json:"title"`
	Description   string         `gorm:"type:text" json:"description"`
	Status        string         `gorm:"default:'open'" json:"status"`     // open, in_progress, resolved, closed
	Priority      string         `gorm:"default:'medium'" json:"priority"` // low, medium, high, critical
	Source        string         `json:"source"`                           // web, email, phone
	Tags          StringList     `gorm:"type:text" json:"tags"`
	CategoryID    *uint          `gorm:"index" json:"category_id"`
	ComplainantID uint           `gorm:"index" json:"complainant_id"`
	ExecutorID    *uint          `gorm:"index" json:"executor_id"` // executor profile
	AssigneeID    *uint          `gorm:"index" json:"assignee_id"` // executor's user account
	DueDate       *time.Time     `json:"due_date"`
	SLADueDate    *time.Time     `json:"sla_due_date"`
	ResolvedAt    *time.Time     `json:"resolved_at"`
	ClosedAt      *time.Time     `json:"closed_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	Category    *Category        `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Complainant User             `gorm:"foreignKey:ComplainantID" json:"complainant,omitempty"`
	Executor    *ExecutorProfile `gorm:"foreignKey:ExecutorID" json:"executor,omitempty"`
	Assignee    *User            `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
}

// ExecutorProfile is a user who can be assigned tickets. OpenTicketCount and
// AssignedCount are denormalized load counters kept as fallbacks for when a
// live count is unavailable.
type ExecutorProfile struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	TenantID             *uint          `gorm:"index" json:"tenant_id"`
	UserID               uint           `gorm:"index" json:"user_id"`
	CategoryID           *uint          `gorm:"index" json:"category_id"`
	AvailabilityStatus   string         `gorm:"default:'available'" json:"availability_status"` // available, busy, offline
	MaxConcurrentTickets int            `gorm:"default:5" json:"max_concurrent_tickets"`        // 0 means unlimited
	OpenTicketCount      int            `gorm:"default:0" json:"open_ticket_count"`
	AssignedCount        int            `gorm:"default:0" json:"assigned_count"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`

	User     User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Tickets  []Ticket  `gorm:"foreignKey:ExecutorID" json:"tickets,omitempty"`
}
