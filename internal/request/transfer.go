package request

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vienlink/internal/audit"
	"vienlink/internal/model"
	"vienlink/internal/notifications"
)

// Inter-hospital transfers follow the request state machine with one extra
// authorization rule: only the receiving hospital's admin decides, and either
// party may complete an approved transfer.

type CreateTransferParams struct {
	FromHospitalID uuid.UUID
	ToHospitalID   uuid.UUID
	Requester      model.Identity
	BloodGroup     model.BloodGroup
	Quantity       int
}

func (m *Manager) CreateTransfer(ctx context.Context, params CreateTransferParams) (model.TransferRequest, error) {
	if params.Quantity <= 0 {
		return model.TransferRequest{}, fmt.Errorf("%w: quantity must be positive", model.ErrInvalidInput)
	}
	if !params.BloodGroup.Valid() {
		return model.TransferRequest{}, fmt.Errorf("%w: unknown blood group %q", model.ErrInvalidInput, params.BloodGroup)
	}
	if params.FromHospitalID == params.ToHospitalID {
		return model.TransferRequest{}, fmt.Errorf("%w: transfer requires two distinct hospitals", model.ErrInvalidInput)
	}
	if !params.Requester.CanAccess(params.FromHospitalID) {
		return model.TransferRequest{}, model.ErrNotFound
	}

	now := time.Now()
	tr := model.TransferRequest{
		ID:             uuid.New(),
		FromHospitalID: params.FromHospitalID,
		ToHospitalID:   params.ToHospitalID,
		RequesterID:    params.Requester.UserID,
		BloodGroup:     params.BloodGroup,
		Quantity:       params.Quantity,
		Status:         model.TransferStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.repo.CreateTransfer(ctx, tr); err != nil {
		return model.TransferRequest{}, fmt.Errorf("failed to create transfer: %w", err)
	}

	fromID := tr.FromHospitalID
	m.auditor.Record(ctx, audit.RecordParams{
		Actor:      params.Requester.UserID,
		Action:     audit.ActionTransferCreated,
		EntityType: "transfer_request",
		EntityID:   tr.ID,
		HospitalID: &fromID,
		After:      map[string]any{"to_hospital": tr.ToHospitalID, "blood_group": tr.BloodGroup, "quantity": tr.Quantity},
	})

	// The receiving hospital's admin is the decision maker; tell them.
	m.notifyTransferParty(ctx, tr, tr.ToHospitalID, "Incoming transfer request",
		fmt.Sprintf("Transfer of %d %s unit(s) requested.", tr.Quantity, tr.BloodGroup))
	return tr, nil
}

// GetTransfer is visible to both hospitals involved; everyone else sees
// ErrNotFound.
func (m *Manager) GetTransfer(ctx context.Context, caller model.Identity, id uuid.UUID) (model.TransferRequest, error) {
	tr, err := m.repo.GetTransfer(ctx, id)
	if err != nil {
		return model.TransferRequest{}, err
	}
	if !caller.CanAccess(tr.FromHospitalID) && !caller.CanAccess(tr.ToHospitalID) {
		return model.TransferRequest{}, model.ErrNotFound
	}
	return tr, nil
}

func (m *Manager) ApproveTransfer(ctx context.Context, approver model.Identity, id uuid.UUID) (model.TransferRequest, error) {
	return m.decideTransfer(ctx, approver, id, model.TransferStatusApproved)
}

func (m *Manager) RejectTransfer(ctx context.Context, actor model.Identity, id uuid.UUID) (model.TransferRequest, error) {
	return m.decideTransfer(ctx, actor, id, model.TransferStatusRejected)
}

func (m *Manager) decideTransfer(ctx context.Context, actor model.Identity, id uuid.UUID, decision model.TransferStatus) (model.TransferRequest, error) {
	tr, err := m.GetTransfer(ctx, actor, id)
	if err != nil {
		return model.TransferRequest{}, err
	}
	// Only the receiving hospital's admin may decide. The sender sees the
	// transfer but an attempted decision reads as not-found, matching the
	// scope rule for requests.
	if !actor.SuperAdmin() && (actor.Role != model.RoleHospitalAdmin || actor.HospitalID != tr.ToHospitalID) {
		return model.TransferRequest{}, model.ErrNotFound
	}
	if tr.Status != model.TransferStatusPending {
		return model.TransferRequest{}, fmt.Errorf("%w: transfer is %s", model.ErrInvalidState, tr.Status)
	}

	actorID := actor.UserID
	tr.Status = decision
	tr.DecidedBy = &actorID
	if err := m.repo.UpdateTransfer(ctx, tr, model.TransferStatusPending); err != nil {
		return model.TransferRequest{}, err
	}

	toID := tr.ToHospitalID
	m.auditor.Record(ctx, audit.RecordParams{
		Actor:      actor.UserID,
		Action:     audit.ActionTransferDecided,
		EntityType: "transfer_request",
		EntityID:   tr.ID,
		HospitalID: &toID,
		Before:     map[string]any{"status": model.TransferStatusPending},
		After:      map[string]any{"status": tr.Status},
	})
	m.notifyTransferParty(ctx, tr, tr.FromHospitalID, "Transfer "+string(decision),
		fmt.Sprintf("Transfer of %d %s unit(s) was %s.", tr.Quantity, tr.BloodGroup, decision))
	return tr, nil
}

// CompleteTransfer marks an approved transfer done. Either party may call it.
func (m *Manager) CompleteTransfer(ctx context.Context, actor model.Identity, id uuid.UUID) (model.TransferRequest, error) {
	tr, err := m.GetTransfer(ctx, actor, id)
	if err != nil {
		return model.TransferRequest{}, err
	}
	if tr.Status != model.TransferStatusApproved {
		return model.TransferRequest{}, fmt.Errorf("%w: transfer is %s", model.ErrInvalidState, tr.Status)
	}

	tr.Status = model.TransferStatusCompleted
	if err := m.repo.UpdateTransfer(ctx, tr, model.TransferStatusApproved); err != nil {
		return model.TransferRequest{}, err
	}

	toID := tr.ToHospitalID
	m.auditor.Record(ctx, audit.RecordParams{
		Actor:      actor.UserID,
		Action:     audit.ActionTransferDecided,
		EntityType: "transfer_request",
		EntityID:   tr.ID,
		HospitalID: &toID,
		Before:     map[string]any{"status": model.TransferStatusApproved},
		After:      map[string]any{"status": tr.Status},
	})
	m.notifyTransferParty(ctx, tr, tr.FromHospitalID, "Transfer completed",
		fmt.Sprintf("Transfer of %d %s unit(s) completed.", tr.Quantity, tr.BloodGroup))
	return tr, nil
}

func (m *Manager) notifyTransferParty(ctx context.Context, tr model.TransferRequest, hospitalID uuid.UUID, title, message string) {
	hospital, err := m.repo.GetHospital(ctx, hospitalID)
	if err != nil {
		m.logger.Error("Failed to load hospital for transfer notification", "error", err, "hospital_id", hospitalID)
		return
	}
	hid := hospitalID
	if _, err := m.notifier.Notify(ctx, notifications.NotifyParams{
		RecipientID: hospital.AdminID,
		HospitalID:  &hid,
		Type:        model.NotificationTypeTransferUpdate,
		Priority:    model.NotificationPriorityNormal,
		Title:       title,
		Message:     message,
		Metadata:    map[string]any{"transfer_id": tr.ID.String()},
	}); err != nil {
		m.logger.Error("Failed to notify transfer party", "error", err, "transfer_id", tr.ID)
	}
}
