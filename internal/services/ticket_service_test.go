package services

import (
	"context"
	"testing"

	"ruleflow/internal/models"
)

func TestTicketService_GetTicketByID(t *testing.T) {
	db := newEngineTestDB(t)
	svc := NewTicketService(db, quietLogger())
	ctx := context.Background()
	tenant := uintPtr(1)

	category := &models.Category{TenantID: tenant, Name: "HVAC"}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	seeded := seedTicket(t, db, tenant, &category.ID)

	ticket, err := svc.GetTicketByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("GetTicketByID: %v", err)
	}
	if ticket.Category == nil || ticket.Category.Name != "HVAC" {
		t.Errorf("category not preloaded: %+v", ticket.Category)
	}
	if ticket.Complainant.ID == 0 {
		t.Error("complainant not preloaded")
	}

	if _, err := svc.GetTicketByID(ctx, 9999); err == nil {
		t.Error("expected error for missing ticket")
	}
}

func TestTicketService_UpdateStatusStampsTimestamps(t *testing.T) {
	db := newEngineTestDB(t)
	svc := NewTicketService(db, quietLogger())
	ctx := context.Background()
	tenant := uintPtr(1)

	ticket := seedTicket(t, db, tenant, nil)
	if err := svc.UpdateStatus(ctx, ticket.ID, models.TicketResolved); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got := loadTicket(t, db, ticket.ID)
	if got.Status != models.TicketResolved {
		t.Errorf("status = %s, want resolved", got.Status)
	}
	if got.ResolvedAt == nil {
		t.Error("resolved_at not stamped")
	}
	if got.ClosedAt != nil {
		t.Error("closed_at stamped on resolve")
	}

	if err := svc.UpdateStatus(ctx, ticket.ID, models.TicketClosed); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got = loadTicket(t, db, ticket.ID)
	if got.ClosedAt == nil {
		t.Error("closed_at not stamped")
	}
}

func TestTicketService_AssignExecutor(t *testing.T) {
	db := newEngineTestDB(t)
	svc := NewTicketService(db, quietLogger())
	ctx := context.Background()
	tenant := uintPtr(1)

	e1 := seedExecutor(t, db, tenant, "E1", nil, 10, true, models.ExecutorAvailable)
	e2 := seedExecutor(t, db, tenant, "E2", nil, 10, true, models.ExecutorAvailable)
	ticket := seedTicket(t, db, tenant, nil)

	if err := svc.AssignExecutor(ctx, ticket.ID, e1.ID, &e1.UserID); err != nil {
		t.Fatalf("AssignExecutor: %v", err)
	}
	got := loadTicket(t, db, ticket.ID)
	if got.ExecutorID == nil || *got.ExecutorID != e1.ID {
		t.Fatalf("executor_id = %v, want %d", got.ExecutorID, e1.ID)
	}
	if got.AssigneeID == nil || *got.AssigneeID != e1.UserID {
		t.Errorf("assignee_id = %v, want %d", got.AssigneeID, e1.UserID)
	}
	if got.Status != models.TicketInProgress {
		t.Errorf("status = %s, want in_progress", got.Status)
	}

	var p1 models.ExecutorProfile
	if err := db.First(&p1, e1.ID).Error; err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if p1.OpenTicketCount != 1 || p1.AssignedCount != 1 {
		t.Errorf("e1 counters = %d/%d, want 1/1", p1.OpenTicketCount, p1.AssignedCount)
	}

	// Assigning the same executor again is a no-op.
	if err := svc.AssignExecutor(ctx, ticket.ID, e1.ID, &e1.UserID); err != nil {
		t.Fatalf("reassign same: %v", err)
	}
	db.First(&p1, e1.ID)
	if p1.OpenTicketCount != 1 {
		t.Errorf("no-op reassignment changed counter to %d", p1.OpenTicketCount)
	}

	// Transfer to e2 moves the open counter across. The user reference is
	// resolved from the profile when not supplied.
	if err := svc.AssignExecutor(ctx, ticket.ID, e2.ID, nil); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	got = loadTicket(t, db, ticket.ID)
	if got.AssigneeID == nil || *got.AssigneeID != e2.UserID {
		t.Errorf("assignee_id = %v, want %d after transfer", got.AssigneeID, e2.UserID)
	}
	var p2 models.ExecutorProfile
	db.First(&p1, e1.ID)
	db.First(&p2, e2.ID)
	if p1.OpenTicketCount != 0 {
		t.Errorf("previous executor open count = %d, want 0", p1.OpenTicketCount)
	}
	if p2.OpenTicketCount != 1 || p2.AssignedCount != 1 {
		t.Errorf("new executor counters = %d/%d, want 1/1", p2.OpenTicketCount, p2.AssignedCount)
	}
}

func TestTicketService_UpdateTicket(t *testing.T) {
	db := newEngineTestDB(t)
	svc := NewTicketService(db, quietLogger())
	ctx := context.Background()

	ticket := seedTicket(t, db, uintPtr(1), nil)
	if err := svc.UpdateTicket(ctx, ticket.ID, map[string]interface{}{"priority": models.PriorityCritical}); err != nil {
		t.Fatalf("UpdateTicket: %v", err)
	}
	if got := loadTicket(t, db, ticket.ID); got.Priority != models.PriorityCritical {
		t.Errorf("priority = %s, want critical", got.Priority)
	}

	// Empty update map is accepted silently.
	if err := svc.UpdateTicket(ctx, ticket.ID, nil); err != nil {
		t.Errorf("empty update: %v", err)
	}
}
