package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vienlink/internal/model"
	"vienlink/internal/repository"
)

type Action string

const (
	ActionUnitCollected    Action = "unit.collected"
	ActionUnitTested       Action = "unit.tested"
	ActionUnitReserved     Action = "unit.reserved"
	ActionUnitReleased     Action = "unit.released"
	ActionUnitIssued       Action = "unit.issued"
	ActionUnitExpired      Action = "unit.expired"
	ActionUnitMoved        Action = "unit.moved"
	ActionRequestCreated   Action = "request.created"
	ActionRequestApproved  Action = "request.approved"
	ActionRequestRejected  Action = "request.rejected"
	ActionRequestFulfilled Action = "request.fulfilled"
	ActionRequestCancelled Action = "request.cancelled"
	ActionTransferCreated  Action = "transfer.created"
	ActionTransferDecided  Action = "transfer.decided"
)

type Auditor struct {
	logger *slog.Logger
	repo   repository.Repository
}

func NewAuditor(logger *slog.Logger, repo repository.Repository) Auditor {
	return Auditor{logger: logger, repo: repo}
}

type RecordParams struct {
	Actor      uuid.UUID
	Action     Action
	EntityType string
	EntityID   uuid.UUID
	HospitalID *uuid.UUID
	Before     map[string]any
	After      map[string]any
}

// Record persists an audit event asynchronously. Failures are logged and
// suppressed so the primary operation is never blocked or aborted.
func (a *Auditor) Record(ctx context.Context, params RecordParams) {
	ev := model.AuditEvent{
		ID:         uuid.New(),
		ActorID:    params.Actor,
		Action:     string(params.Action),
		EntityType: params.EntityType,
		EntityID:   params.EntityID,
		HospitalID: params.HospitalID,
		Before:     params.Before,
		After:      params.After,
		CreatedAt:  time.Now(),
	}

	go func() {
		if err := a.repo.CreateAuditEvent(context.Background(), ev); err != nil {
			a.logger.Error("Failed to record audit event", "error", err, "action", params.Action, "entity_id", params.EntityID)
		}
	}()
}
