package request

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vienlink/internal/audit"
	"vienlink/internal/inventory"
	"vienlink/internal/model"
	"vienlink/internal/notifications"
	"vienlink/internal/repository"
)

var tracer = otel.Tracer("vienlink/request")

// Manager drives the BloodRequest lifecycle:
// pending -> approved -> fulfilled, pending -> rejected,
// pending|approved -> cancelled.
type Manager struct {
	logger   *slog.Logger
	repo     repository.Repository
	units    *inventory.Manager
	auditor  *audit.Auditor
	notifier *notifications.Manager
}

func NewManager(logger *slog.Logger, repo repository.Repository, units *inventory.Manager, auditor *audit.Auditor, notifier *notifications.Manager) Manager {
	return Manager{logger: logger, repo: repo, units: units, auditor: auditor, notifier: notifier}
}

type CreateParams struct {
	HospitalID uuid.UUID
	Requester  model.Identity
	BloodGroup model.BloodGroup
	Quantity   int
}

func (m *Manager) Create(ctx context.Context, params CreateParams) (model.BloodRequest, error) {
	if params.Quantity <= 0 {
		return model.BloodRequest{}, fmt.Errorf("%w: quantity must be positive", model.ErrInvalidInput)
	}
	if !params.BloodGroup.Valid() {
		return model.BloodRequest{}, fmt.Errorf("%w: unknown blood group %q", model.ErrInvalidInput, params.BloodGroup)
	}
	if !params.Requester.CanAccess(params.HospitalID) {
		return model.BloodRequest{}, model.ErrNotFound
	}

	now := time.Now()
	req := model.BloodRequest{
		ID:          uuid.New(),
		HospitalID:  params.HospitalID,
		RequesterID: params.Requester.UserID,
		BloodGroup:  params.BloodGroup,
		Quantity:    params.Quantity,
		Status:      model.RequestStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.repo.CreateRequest(ctx, req); err != nil {
		return model.BloodRequest{}, fmt.Errorf("failed to create request: %w", err)
	}

	hospitalID := req.HospitalID
	m.auditor.Record(ctx, audit.RecordParams{
		Actor:      params.Requester.UserID,
		Action:     audit.ActionRequestCreated,
		EntityType: "blood_request",
		EntityID:   req.ID,
		HospitalID: &hospitalID,
		After:      map[string]any{"blood_group": req.BloodGroup, "quantity": req.Quantity},
	})
	return req, nil
}

// Get returns the request if the caller's hospital scope covers it. Scope
// violations look identical to absence.
func (m *Manager) Get(ctx context.Context, caller model.Identity, id uuid.UUID) (model.BloodRequest, error) {
	req, err := m.repo.GetRequest(ctx, id)
	if err != nil {
		return model.BloodRequest{}, err
	}
	if !caller.CanAccess(req.HospitalID) {
		return model.BloodRequest{}, model.ErrNotFound
	}
	return req, nil
}

// Approve claims the requested quantity and moves the request to approved.
// All-or-nothing: a partial claim is released in full before the shortfall is
// reported as InsufficientStockError.
func (m *Manager) Approve(ctx context.Context, approver model.Identity, requestID uuid.UUID) (model.BloodRequest, error) {
	ctx, span := tracer.Start(ctx, "request.Approve", trace.WithAttributes(
		attribute.String("request_id", requestID.String()),
	))
	defer span.End()

	req, err := m.Get(ctx, approver, requestID)
	if err != nil {
		return model.BloodRequest{}, err
	}
	if req.Status != model.RequestStatusPending {
		return model.BloodRequest{}, fmt.Errorf("%w: request is %s", model.ErrInvalidState, req.Status)
	}

	claimed, err := m.units.ClaimAvailable(ctx, req.HospitalID, req.BloodGroup, req.Quantity)
	if err != nil {
		return model.BloodRequest{}, err
	}
	claimedIDs := unitIDs(claimed)

	if len(claimed) < req.Quantity {
		// Shortfall: return everything we grabbed so no partially reserved
		// request is ever visible.
		if relErr := m.units.Release(ctx, approver.UserID, claimedIDs); relErr != nil {
			m.logger.Error("Failed to release partial claim", "error", relErr, "request_id", req.ID)
		}
		return model.BloodRequest{}, &model.InsufficientStockError{Available: len(claimed), Required: req.Quantity}
	}

	now := time.Now()
	approverID := approver.UserID
	req.Status = model.RequestStatusApproved
	req.ApprovedBy = &approverID
	req.ApprovedAt = &now
	req.ReservedUnits = claimedIDs

	if err := m.repo.UpdateRequest(ctx, req, model.RequestStatusPending); err != nil {
		// A concurrent actor already moved the request; give the claim back.
		if relErr := m.units.Release(ctx, approver.UserID, claimedIDs); relErr != nil {
			m.logger.Error("Failed to release claim after lost update race", "error", relErr, "request_id", req.ID)
		}
		return model.BloodRequest{}, err
	}

	hospitalID := req.HospitalID
	m.auditor.Record(ctx, audit.RecordParams{
		Actor:      approver.UserID,
		Action:     audit.ActionRequestApproved,
		EntityType: "blood_request",
		EntityID:   req.ID,
		HospitalID: &hospitalID,
		Before:     map[string]any{"status": model.RequestStatusPending},
		After:      map[string]any{"status": req.Status, "reserved_units": len(req.ReservedUnits)},
	})
	m.notifyRequester(ctx, req, model.NotificationTypeRequestApproved, "Blood request approved",
		fmt.Sprintf("Your request for %d %s unit(s) was approved.", req.Quantity, req.BloodGroup))
	return req, nil
}

func (m *Manager) Reject(ctx context.Context, actor model.Identity, requestID uuid.UUID, reason string) (model.BloodRequest, error) {
	req, err := m.Get(ctx, actor, requestID)
	if err != nil {
		return model.BloodRequest{}, err
	}
	if req.Status != model.RequestStatusPending {
		return model.BloodRequest{}, fmt.Errorf("%w: request is %s", model.ErrInvalidState, req.Status)
	}

	req.Status = model.RequestStatusRejected
	req.RejectionReason = reason
	if err := m.repo.UpdateRequest(ctx, req, model.RequestStatusPending); err != nil {
		return model.BloodRequest{}, err
	}

	hospitalID := req.HospitalID
	m.auditor.Record(ctx, audit.RecordParams{
		Actor:      actor.UserID,
		Action:     audit.ActionRequestRejected,
		EntityType: "blood_request",
		EntityID:   req.ID,
		HospitalID: &hospitalID,
		Before:     map[string]any{"status": model.RequestStatusPending},
		After:      map[string]any{"status": req.Status, "reason": reason},
	})
	m.notifyRequester(ctx, req, model.NotificationTypeRequestRejected, "Blood request rejected",
		fmt.Sprintf("Your request for %d %s unit(s) was rejected: %s", req.Quantity, req.BloodGroup, reason))
	return req, nil
}

// Fulfill issues exactly the units reserved at approval time. It never scans
// for reserved units afresh, which could pick up another request's
// reservation.
func (m *Manager) Fulfill(ctx context.Context, issuer model.Identity, requestID uuid.UUID) (model.BloodRequest, error) {
	ctx, span := tracer.Start(ctx, "request.Fulfill", trace.WithAttributes(
		attribute.String("request_id", requestID.String()),
	))
	defer span.End()

	req, err := m.Get(ctx, issuer, requestID)
	if err != nil {
		return model.BloodRequest{}, err
	}
	if req.Status != model.RequestStatusApproved {
		return model.BloodRequest{}, fmt.Errorf("%w: request is %s", model.ErrInvalidState, req.Status)
	}

	if err := m.units.Issue(ctx, issuer.UserID, req.ReservedUnits, req.ID); err != nil {
		return model.BloodRequest{}, err
	}

	req.Status = model.RequestStatusFulfilled
	req.FulfilledUnits = req.ReservedUnits
	if err := m.repo.UpdateRequest(ctx, req, model.RequestStatusApproved); err != nil {
		return model.BloodRequest{}, err
	}

	hospitalID := req.HospitalID
	m.auditor.Record(ctx, audit.RecordParams{
		Actor:      issuer.UserID,
		Action:     audit.ActionRequestFulfilled,
		EntityType: "blood_request",
		EntityID:   req.ID,
		HospitalID: &hospitalID,
		Before:     map[string]any{"status": model.RequestStatusApproved},
		After:      map[string]any{"status": req.Status, "fulfilled_units": len(req.FulfilledUnits)},
	})
	m.notifyRequester(ctx, req, model.NotificationTypeRequestFulfilled, "Blood request fulfilled",
		fmt.Sprintf("%d %s unit(s) have been issued for your request.", req.Quantity, req.BloodGroup))
	return req, nil
}

// Cancel terminates a pending or approved request. Cancelling after approval
// releases the reserved units so stock never leaks.
func (m *Manager) Cancel(ctx context.Context, actor model.Identity, requestID uuid.UUID) (model.BloodRequest, error) {
	req, err := m.Get(ctx, actor, requestID)
	if err != nil {
		return model.BloodRequest{}, err
	}
	if req.Status != model.RequestStatusPending && req.Status != model.RequestStatusApproved {
		return model.BloodRequest{}, fmt.Errorf("%w: request is %s", model.ErrInvalidState, req.Status)
	}

	previous := req.Status
	req.Status = model.RequestStatusCancelled
	if err := m.repo.UpdateRequest(ctx, req, previous); err != nil {
		return model.BloodRequest{}, err
	}

	if previous == model.RequestStatusApproved && len(req.ReservedUnits) > 0 {
		if err := m.units.Release(ctx, actor.UserID, req.ReservedUnits); err != nil {
			m.logger.Error("Failed to release units of cancelled request", "error", err, "request_id", req.ID)
		}
	}

	hospitalID := req.HospitalID
	m.auditor.Record(ctx, audit.RecordParams{
		Actor:      actor.UserID,
		Action:     audit.ActionRequestCancelled,
		EntityType: "blood_request",
		EntityID:   req.ID,
		HospitalID: &hospitalID,
		Before:     map[string]any{"status": previous},
		After:      map[string]any{"status": req.Status},
	})
	m.notifyRequester(ctx, req, model.NotificationTypeRequestCancelled, "Blood request cancelled",
		fmt.Sprintf("Your request for %d %s unit(s) was cancelled.", req.Quantity, req.BloodGroup))
	return req, nil
}

func (m *Manager) notifyRequester(ctx context.Context, req model.BloodRequest, typ model.NotificationType, title, message string) {
	hospitalID := req.HospitalID
	if _, err := m.notifier.Notify(ctx, notifications.NotifyParams{
		RecipientID: req.RequesterID,
		HospitalID:  &hospitalID,
		Type:        typ,
		Priority:    model.NotificationPriorityNormal,
		Title:       title,
		Message:     message,
		Metadata:    map[string]any{"request_id": req.ID.String()},
	}); err != nil {
		// Notification failures never abort a completed transition.
		m.logger.Error("Failed to notify requester", "error", err, "request_id", req.ID)
	}
}

func unitIDs(units []model.BloodUnit) []uuid.UUID {
	ids := make([]uuid.UUID, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}

// IsInsufficientStock reports whether err is a stock shortfall.
func IsInsufficientStock(err error) bool {
	var target *model.InsufficientStockError
	return errors.As(err, &target)
}
