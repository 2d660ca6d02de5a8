package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vienlink/internal/audit"
	"vienlink/internal/model"
	"vienlink/internal/repository"
)

var tracer = otel.Tracer("vienlink/inventory")

// Manager is the unit store: it owns every BloodUnit state transition.
type Manager struct {
	logger  *slog.Logger
	repo    repository.Repository
	auditor *audit.Auditor
}

func NewManager(logger *slog.Logger, repo repository.Repository, auditor *audit.Auditor) Manager {
	return Manager{logger: logger, repo: repo, auditor: auditor}
}

type CreateUnitParams struct {
	DonorID        uuid.UUID
	HospitalID     uuid.UUID
	BloodGroup     model.BloodGroup
	CollectionDate time.Time
	Actor          uuid.UUID
}

func (m *Manager) CreateUnit(ctx context.Context, params CreateUnitParams) (model.BloodUnit, error) {
	if !params.BloodGroup.Valid() {
		return model.BloodUnit{}, fmt.Errorf("%w: unknown blood group %q", model.ErrInvalidInput, params.BloodGroup)
	}

	now := time.Now()
	results := make(map[model.Assay]model.AssayResult, len(model.Assays))
	for _, a := range model.Assays {
		results[a] = model.AssayResultPending
	}
	unit := model.BloodUnit{
		ID:             uuid.New(),
		DonorID:        params.DonorID,
		HospitalID:     params.HospitalID,
		BloodGroup:     params.BloodGroup,
		Status:         model.UnitStatusCollected,
		CollectionDate: params.CollectionDate,
		// Expiry is fixed at collection + shelf life, even for backdated
		// collection dates.
		ExpiryDate:  params.CollectionDate.Add(model.ShelfLife),
		TestResults: results,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.repo.CreateUnit(ctx, unit); err != nil {
		return model.BloodUnit{}, fmt.Errorf("failed to create blood unit: %w", err)
	}

	hospitalID := params.HospitalID
	m.auditor.Record(ctx, audit.RecordParams{
		Actor:      params.Actor,
		Action:     audit.ActionUnitCollected,
		EntityType: "blood_unit",
		EntityID:   unit.ID,
		HospitalID: &hospitalID,
		After:      map[string]any{"status": unit.Status, "blood_group": unit.BloodGroup, "expiry_date": unit.ExpiryDate},
	})
	return unit, nil
}

func (m *Manager) GetUnit(ctx context.Context, id uuid.UUID) (model.BloodUnit, error) {
	return m.repo.GetUnit(ctx, id)
}

// RecordAssayResult writes one assay result. The storage layer resolves the
// final transition (available or disposed) atomically with the write.
func (m *Manager) RecordAssayResult(ctx context.Context, actor, unitID uuid.UUID, assay model.Assay, result model.AssayResult) (model.BloodUnit, error) {
	if !assay.Valid() {
		return model.BloodUnit{}, fmt.Errorf("%w: unknown assay %q", model.ErrInvalidInput, assay)
	}
	if result != model.AssayResultNegative && result != model.AssayResultPositive {
		return model.BloodUnit{}, fmt.Errorf("%w: assay result must be negative or positive", model.ErrInvalidInput)
	}

	unit, err := m.repo.RecordAssayResult(ctx, unitID, assay, result)
	if err != nil {
		return model.BloodUnit{}, err
	}

	hospitalID := unit.HospitalID
	m.auditor.Record(ctx, audit.RecordParams{
		Actor:      actor,
		Action:     audit.ActionUnitTested,
		EntityType: "blood_unit",
		EntityID:   unit.ID,
		HospitalID: &hospitalID,
		After:      map[string]any{"assay": assay, "result": result, "status": unit.Status},
	})

	if unit.Status == model.UnitStatusDisposed {
		m.logger.Info("Unit disposed after positive assay", "unit_id", unit.ID, "assay", assay)
	}
	return unit, nil
}

// ClaimAvailable reserves up to count available units, soonest expiry first.
// Returning fewer than count is a normal outcome; the caller decides whether
// that is a failure.
func (m *Manager) ClaimAvailable(ctx context.Context, hospitalID uuid.UUID, group model.BloodGroup, count int) ([]model.BloodUnit, error) {
	ctx, span := tracer.Start(ctx, "inventory.ClaimAvailable", trace.WithAttributes(
		attribute.String("blood_group", string(group)),
		attribute.Int("count", count),
	))
	defer span.End()

	if count <= 0 {
		return nil, fmt.Errorf("%w: claim count must be positive", model.ErrInvalidInput)
	}
	claimed, err := m.repo.ClaimAvailableUnits(ctx, hospitalID, group, count, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim units: %w", err)
	}
	span.SetAttributes(attribute.Int("claimed", len(claimed)))
	return claimed, nil
}

func (m *Manager) Release(ctx context.Context, actor uuid.UUID, unitIDs []uuid.UUID) error {
	if len(unitIDs) == 0 {
		return nil
	}
	if err := m.repo.ReleaseUnits(ctx, unitIDs); err != nil {
		return fmt.Errorf("failed to release units: %w", err)
	}
	for _, id := range unitIDs {
		m.auditor.Record(ctx, audit.RecordParams{
			Actor:      actor,
			Action:     audit.ActionUnitReleased,
			EntityType: "blood_unit",
			EntityID:   id,
			After:      map[string]any{"status": model.UnitStatusAvailable},
		})
	}
	return nil
}

func (m *Manager) Issue(ctx context.Context, actor uuid.UUID, unitIDs []uuid.UUID, requestID uuid.UUID) error {
	if err := m.repo.IssueUnits(ctx, unitIDs, requestID); err != nil {
		return err
	}
	for _, id := range unitIDs {
		m.auditor.Record(ctx, audit.RecordParams{
			Actor:      actor,
			Action:     audit.ActionUnitIssued,
			EntityType: "blood_unit",
			EntityID:   id,
			After:      map[string]any{"status": model.UnitStatusIssued, "issued_to": requestID},
		})
	}
	return nil
}

type RecordMovementParams struct {
	UnitID       uuid.UUID
	FromLocation string
	ToLocation   string
	Actor        uuid.UUID
}

// RecordMovement appends to the unit's storage-location log. The log is never
// mutated, only appended.
func (m *Manager) RecordMovement(ctx context.Context, params RecordMovementParams) (model.Movement, error) {
	if params.ToLocation == "" {
		return model.Movement{}, fmt.Errorf("%w: destination location required", model.ErrInvalidInput)
	}
	mv := model.Movement{
		ID:           uuid.New(),
		UnitID:       params.UnitID,
		FromLocation: params.FromLocation,
		ToLocation:   params.ToLocation,
		MovedBy:      params.Actor,
		MovedAt:      time.Now(),
	}
	if err := m.repo.AddMovement(ctx, mv); err != nil {
		return model.Movement{}, err
	}
	m.auditor.Record(ctx, audit.RecordParams{
		Actor:      params.Actor,
		Action:     audit.ActionUnitMoved,
		EntityType: "blood_unit",
		EntityID:   params.UnitID,
		Before:     map[string]any{"location": params.FromLocation},
		After:      map[string]any{"location": params.ToLocation},
	})
	return mv, nil
}

func (m *Manager) Movements(ctx context.Context, unitID uuid.UUID) ([]model.Movement, error) {
	return m.repo.ListMovements(ctx, unitID)
}

// SweepExpired moves available units past expiry to expired. Units already
// reserved or issued stay untouched; a promised unit is the reservation
// engine's to reconcile, not the sweep's.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	swept, err := m.repo.SweepExpiredUnits(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired units: %w", err)
	}
	if swept > 0 {
		m.logger.Info("Swept expired units", "count", swept)
	}
	return swept, nil
}

func (m *Manager) CountAvailableByGroup(ctx context.Context, hospitalID uuid.UUID) (map[model.BloodGroup]int, error) {
	return m.repo.CountAvailableByGroup(ctx, hospitalID, time.Now())
}
