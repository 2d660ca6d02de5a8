package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vienlink/internal/model"
)

// MemoryRepository is an in-memory implementation of Repository. Suitable for
// development and tests; state is lost on restart.
type MemoryRepository struct {
	mu            sync.RWMutex
	units         map[uuid.UUID]model.BloodUnit
	movements     map[uuid.UUID][]model.Movement
	requests      map[uuid.UUID]model.BloodRequest
	transfers     map[uuid.UUID]model.TransferRequest
	hospitals     map[uuid.UUID]model.Hospital
	donors        map[uuid.UUID]model.Donor
	notifications map[uuid.UUID][]model.Notification // recipientID -> notifications
	auditEvents   []model.AuditEvent
	superAdmins   []uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		units:         make(map[uuid.UUID]model.BloodUnit),
		movements:     make(map[uuid.UUID][]model.Movement),
		requests:      make(map[uuid.UUID]model.BloodRequest),
		transfers:     make(map[uuid.UUID]model.TransferRequest),
		hospitals:     make(map[uuid.UUID]model.Hospital),
		donors:        make(map[uuid.UUID]model.Donor),
		notifications: make(map[uuid.UUID][]model.Notification),
	}
}

// AddSuperAdmin registers a super-admin recipient for critical alerts.
func (r *MemoryRepository) AddSuperAdmin(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.superAdmins = append(r.superAdmins, id)
}

func (r *MemoryRepository) HealthCheck(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) CreateUnit(ctx context.Context, unit model.BloodUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[unit.ID] = cloneUnit(unit)
	return nil
}

func (r *MemoryRepository) GetUnit(ctx context.Context, id uuid.UUID) (model.BloodUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	unit, ok := r.units[id]
	if !ok {
		return model.BloodUnit{}, model.ErrNotFound
	}
	return cloneUnit(unit), nil
}

func (r *MemoryRepository) RecordAssayResult(ctx context.Context, unitID uuid.UUID, assay model.Assay, result model.AssayResult) (model.BloodUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.units[unitID]
	if !ok {
		return model.BloodUnit{}, model.ErrNotFound
	}
	switch unit.Status {
	case model.UnitStatusCollected, model.UnitStatusTested:
	default:
		return model.BloodUnit{}, model.ErrInvalidTransition
	}

	unit = cloneUnit(unit)
	unit.TestResults[assay] = result
	unit.Status = model.UnitStatusTested

	// Disposal on a positive result happens in the same step as the write so
	// the unit never transiently appears available.
	if unit.AllAssaysResolved() {
		if unit.AnyAssayPositive() {
			unit.Status = model.UnitStatusDisposed
		} else {
			unit.Status = model.UnitStatusAvailable
		}
	}
	unit.UpdatedAt = time.Now()
	r.units[unitID] = unit
	return cloneUnit(unit), nil
}

func (r *MemoryRepository) ClaimAvailableUnits(ctx context.Context, hospitalID uuid.UUID, group model.BloodGroup, count int, now time.Time) ([]model.BloodUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []model.BloodUnit
	for _, unit := range r.units {
		if unit.HospitalID == hospitalID && unit.BloodGroup == group &&
			unit.Status == model.UnitStatusAvailable && unit.ExpiryDate.After(now) {
			candidates = append(candidates, unit)
		}
	}
	// FEFO: soonest expiry first, ID as tiebreaker for stable order.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ExpiryDate.Equal(candidates[j].ExpiryDate) {
			return candidates[i].ID.String() < candidates[j].ID.String()
		}
		return candidates[i].ExpiryDate.Before(candidates[j].ExpiryDate)
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}

	claimed := make([]model.BloodUnit, 0, len(candidates))
	for _, unit := range candidates {
		stored := r.units[unit.ID]
		if stored.Status != model.UnitStatusAvailable {
			continue
		}
		stored = cloneUnit(stored)
		stored.Status = model.UnitStatusReserved
		stored.UpdatedAt = now
		r.units[unit.ID] = stored
		claimed = append(claimed, cloneUnit(stored))
	}
	return claimed, nil
}

func (r *MemoryRepository) ReleaseUnits(ctx context.Context, unitIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range unitIDs {
		unit, ok := r.units[id]
		if !ok || unit.Status != model.UnitStatusReserved {
			continue
		}
		unit = cloneUnit(unit)
		unit.Status = model.UnitStatusAvailable
		unit.UpdatedAt = time.Now()
		r.units[id] = unit
	}
	return nil
}

func (r *MemoryRepository) IssueUnits(ctx context.Context, unitIDs []uuid.UUID, requestID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range unitIDs {
		unit, ok := r.units[id]
		if !ok {
			return model.ErrNotFound
		}
		if unit.Status != model.UnitStatusReserved {
			return model.ErrInvalidTransition
		}
	}
	now := time.Now()
	for _, id := range unitIDs {
		unit := cloneUnit(r.units[id])
		unit.Status = model.UnitStatusIssued
		reqID := requestID
		unit.IssuedTo = &reqID
		unit.UpdatedAt = now
		r.units[id] = unit
	}
	return nil
}

func (r *MemoryRepository) SweepExpiredUnits(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	for id, unit := range r.units {
		if unit.Status == model.UnitStatusAvailable && !unit.ExpiryDate.After(now) {
			unit = cloneUnit(unit)
			unit.Status = model.UnitStatusExpired
			unit.UpdatedAt = now
			r.units[id] = unit
			swept++
		}
	}
	return swept, nil
}

func (r *MemoryRepository) CountAvailableByGroup(ctx context.Context, hospitalID uuid.UUID, now time.Time) (map[model.BloodGroup]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[model.BloodGroup]int)
	for _, unit := range r.units {
		if unit.HospitalID == hospitalID && unit.Status == model.UnitStatusAvailable && unit.ExpiryDate.After(now) {
			counts[unit.BloodGroup]++
		}
	}
	return counts, nil
}

func (r *MemoryRepository) AddMovement(ctx context.Context, mv model.Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[mv.UnitID]; !ok {
		return model.ErrNotFound
	}
	r.movements[mv.UnitID] = append(r.movements[mv.UnitID], mv)
	return nil
}

func (r *MemoryRepository) ListMovements(ctx context.Context, unitID uuid.UUID) ([]model.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Movement, len(r.movements[unitID]))
	copy(out, r.movements[unitID])
	return out, nil
}

func (r *MemoryRepository) CreateRequest(ctx context.Context, req model.BloodRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *MemoryRepository) GetRequest(ctx context.Context, id uuid.UUID) (model.BloodRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return model.BloodRequest{}, model.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (r *MemoryRepository) UpdateRequest(ctx context.Context, req model.BloodRequest, expect model.RequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[req.ID]
	if !ok {
		return model.ErrNotFound
	}
	if stored.Status != expect {
		return model.ErrInvalidState
	}
	req.UpdatedAt = time.Now()
	r.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *MemoryRepository) CreateTransfer(ctx context.Context, tr model.TransferRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers[tr.ID] = tr
	return nil
}

func (r *MemoryRepository) GetTransfer(ctx context.Context, id uuid.UUID) (model.TransferRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tr, ok := r.transfers[id]
	if !ok {
		return model.TransferRequest{}, model.ErrNotFound
	}
	return tr, nil
}

func (r *MemoryRepository) UpdateTransfer(ctx context.Context, tr model.TransferRequest, expect model.TransferStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.transfers[tr.ID]
	if !ok {
		return model.ErrNotFound
	}
	if stored.Status != expect {
		return model.ErrInvalidState
	}
	tr.UpdatedAt = time.Now()
	r.transfers[tr.ID] = tr
	return nil
}

func (r *MemoryRepository) CreateHospital(ctx context.Context, h model.Hospital) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hospitals[h.ID] = h
	return nil
}

func (r *MemoryRepository) GetHospital(ctx context.Context, id uuid.UUID) (model.Hospital, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hospitals[id]
	if !ok {
		return model.Hospital{}, model.ErrNotFound
	}
	return h, nil
}

func (r *MemoryRepository) ListApprovedHospitals(ctx context.Context) ([]model.Hospital, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Hospital
	for _, h := range r.hospitals {
		if h.Approved {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) ListSuperAdmins(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, len(r.superAdmins))
	copy(out, r.superAdmins)
	return out, nil
}

func (r *MemoryRepository) CreateDonor(ctx context.Context, d model.Donor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.donors[d.ID] = d
	return nil
}

func (r *MemoryRepository) ListDonorsByGroup(ctx context.Context, group model.BloodGroup) ([]model.Donor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Donor
	for _, d := range r.donors {
		if d.BloodGroup == group {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateNotification(ctx context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[n.RecipientID] = append(r.notifications[n.RecipientID], n)
	return nil
}

func (r *MemoryRepository) GetNotification(ctx context.Context, recipientID, id uuid.UUID) (model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.notifications[recipientID] {
		if n.ID == id {
			return n, nil
		}
	}
	return model.Notification{}, model.ErrNotFound
}

func (r *MemoryRepository) ListNotifications(ctx context.Context, recipientID uuid.UUID, onlyUnread bool, now time.Time) ([]model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Notification
	for _, n := range r.notifications[recipientID] {
		if n.Expired(now) {
			continue
		}
		if onlyUnread && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) MarkNotificationsRead(ctx context.Context, recipientID uuid.UUID, ids ...uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idSet := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	list := r.notifications[recipientID]
	now := time.Now()
	for i := range list {
		// Re-marking an already-read notification is a no-op.
		if idSet[list[i].ID] && !list[i].Read {
			list[i].Read = true
			readAt := now
			list[i].ReadAt = &readAt
		}
	}
	return nil
}

func (r *MemoryRepository) DeleteNotifications(ctx context.Context, recipientID uuid.UUID, ids ...uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idSet := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	var kept []model.Notification
	for _, n := range r.notifications[recipientID] {
		if !idSet[n.ID] {
			kept = append(kept, n)
		}
	}
	r.notifications[recipientID] = kept
	return nil
}

func (r *MemoryRepository) DeleteExpiredNotifications(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for recipient, list := range r.notifications {
		var kept []model.Notification
		for _, n := range list {
			if n.Expired(now) {
				deleted++
				continue
			}
			kept = append(kept, n)
		}
		r.notifications[recipient] = kept
	}
	return deleted, nil
}

func (r *MemoryRepository) CountUnreadNotifications(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.notifications[recipientID] {
		if !n.Read && !n.Expired(now) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) CreateAuditEvent(ctx context.Context, ev model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditEvents = append(r.auditEvents, ev)
	return nil
}

// AuditEvents returns a snapshot of the audit trail, oldest first.
func (r *MemoryRepository) AuditEvents() []model.AuditEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.AuditEvent, len(r.auditEvents))
	copy(out, r.auditEvents)
	return out
}

func cloneUnit(u model.BloodUnit) model.BloodUnit {
	out := u
	out.TestResults = make(map[model.Assay]model.AssayResult, len(u.TestResults))
	for k, v := range u.TestResults {
		out.TestResults[k] = v
	}
	if u.IssuedTo != nil {
		id := *u.IssuedTo
		out.IssuedTo = &id
	}
	return out
}

func cloneRequest(req model.BloodRequest) model.BloodRequest {
	out := req
	out.ReservedUnits = append([]uuid.UUID(nil), req.ReservedUnits...)
	out.FulfilledUnits = append([]uuid.UUID(nil), req.FulfilledUnits...)
	return out
}
