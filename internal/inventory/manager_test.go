package inventory_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vienlink/internal/audit"
	"vienlink/internal/inventory"
	"vienlink/internal/model"
	"vienlink/internal/repository"
)

func newTestManager() (inventory.Manager, *repository.MemoryRepository) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemoryRepository()
	auditor := audit.NewAuditor(logger, repo)
	return inventory.NewManager(logger, repo, &auditor), repo
}

func createUnit(t *testing.T, m *inventory.Manager, hospitalID uuid.UUID, group model.BloodGroup, collected time.Time) model.BloodUnit {
	t.Helper()
	unit, err := m.CreateUnit(context.Background(), inventory.CreateUnitParams{
		DonorID:        uuid.New(),
		HospitalID:     hospitalID,
		BloodGroup:     group,
		CollectionDate: collected,
		Actor:          uuid.New(),
	})
	require.NoError(t, err)
	return unit
}

func makeAvailable(t *testing.T, m *inventory.Manager, unitID uuid.UUID) model.BloodUnit {
	t.Helper()
	var unit model.BloodUnit
	var err error
	for _, assay := range model.Assays {
		unit, err = m.RecordAssayResult(context.Background(), uuid.New(), unitID, assay, model.AssayResultNegative)
		require.NoError(t, err)
	}
	require.Equal(t, model.UnitStatusAvailable, unit.Status)
	return unit
}

func TestCreateUnit(t *testing.T) {
	m, _ := newTestManager()

	collected := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	unit := createUnit(t, &m, uuid.New(), model.BloodGroupOPos, collected)

	assert.Equal(t, model.UnitStatusCollected, unit.Status)
	assert.Equal(t, collected.Add(42*24*time.Hour), unit.ExpiryDate)
	assert.Len(t, unit.TestResults, 4)
	for _, assay := range model.Assays {
		assert.Equal(t, model.AssayResultPending, unit.TestResults[assay])
	}
}

func TestCreateUnit_InvalidBloodGroup(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.CreateUnit(context.Background(), inventory.CreateUnitParams{
		DonorID:        uuid.New(),
		HospitalID:     uuid.New(),
		BloodGroup:     "X+",
		CollectionDate: time.Now(),
	})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestRecordAssayResult_AllNegativeBecomesAvailable(t *testing.T) {
	m, _ := newTestManager()
	unit := createUnit(t, &m, uuid.New(), model.BloodGroupAPos, time.Now())

	ctx := context.Background()
	unit, err := m.RecordAssayResult(ctx, uuid.New(), unit.ID, model.AssayHIV, model.AssayResultNegative)
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusTested, unit.Status)

	for _, assay := range []model.Assay{model.AssayHBV, model.AssayHCV} {
		unit, err = m.RecordAssayResult(ctx, uuid.New(), unit.ID, assay, model.AssayResultNegative)
		require.NoError(t, err)
		assert.Equal(t, model.UnitStatusTested, unit.Status)
	}

	unit, err = m.RecordAssayResult(ctx, uuid.New(), unit.ID, model.AssaySyphilis, model.AssayResultNegative)
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusAvailable, unit.Status)
}

func TestRecordAssayResult_PositiveDisposes(t *testing.T) {
	m, _ := newTestManager()
	unit := createUnit(t, &m, uuid.New(), model.BloodGroupAPos, time.Now())

	ctx := context.Background()
	unit, err := m.RecordAssayResult(ctx, uuid.New(), unit.ID, model.AssayHIV, model.AssayResultPositive)
	require.NoError(t, err)
	// Remaining assays are still pending, so disposal waits for them.
	assert.Equal(t, model.UnitStatusTested, unit.Status)

	for _, assay := range []model.Assay{model.AssayHBV, model.AssayHCV, model.AssaySyphilis} {
		unit, err = m.RecordAssayResult(ctx, uuid.New(), unit.ID, assay, model.AssayResultNegative)
		require.NoError(t, err)
	}
	assert.Equal(t, model.UnitStatusDisposed, unit.Status)

	// Disposed is terminal; further results are refused.
	_, err = m.RecordAssayResult(ctx, uuid.New(), unit.ID, model.AssayHIV, model.AssayResultNegative)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestRecordAssayResult_RejectsPendingResult(t *testing.T) {
	m, _ := newTestManager()
	unit := createUnit(t, &m, uuid.New(), model.BloodGroupBNeg, time.Now())

	_, err := m.RecordAssayResult(context.Background(), uuid.New(), unit.ID, model.AssayHIV, model.AssayResultPending)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = m.RecordAssayResult(context.Background(), uuid.New(), unit.ID, "malaria", model.AssayResultNegative)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestClaimAvailable_FEFO(t *testing.T) {
	m, _ := newTestManager()
	hospitalID := uuid.New()
	ctx := context.Background()

	now := time.Now()
	oldest := createUnit(t, &m, hospitalID, model.BloodGroupOPos, now.Add(-10*24*time.Hour))
	middle := createUnit(t, &m, hospitalID, model.BloodGroupOPos, now.Add(-5*24*time.Hour))
	newest := createUnit(t, &m, hospitalID, model.BloodGroupOPos, now)
	for _, u := range []model.BloodUnit{oldest, middle, newest} {
		makeAvailable(t, &m, u.ID)
	}

	claimed, err := m.ClaimAvailable(ctx, hospitalID, model.BloodGroupOPos, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, oldest.ID, claimed[0].ID)
	assert.Equal(t, middle.ID, claimed[1].ID)
	for _, u := range claimed {
		assert.Equal(t, model.UnitStatusReserved, u.Status)
	}

	// The newest unit is untouched.
	remaining, err := m.GetUnit(ctx, newest.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusAvailable, remaining.Status)
}

func TestClaimAvailable_PartialIsNotAnError(t *testing.T) {
	m, _ := newTestManager()
	hospitalID := uuid.New()

	unit := createUnit(t, &m, hospitalID, model.BloodGroupABNeg, time.Now())
	makeAvailable(t, &m, unit.ID)

	claimed, err := m.ClaimAvailable(context.Background(), hospitalID, model.BloodGroupABNeg, 5)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestClaimAvailable_SkipsExpiredUnits(t *testing.T) {
	m, _ := newTestManager()
	hospitalID := uuid.New()

	// Collected 43 days ago, so already past the 42-day shelf life.
	unit := createUnit(t, &m, hospitalID, model.BloodGroupOPos, time.Now().Add(-43*24*time.Hour))
	makeAvailable(t, &m, unit.ID)

	claimed, err := m.ClaimAvailable(context.Background(), hospitalID, model.BloodGroupOPos, 1)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestSweepExpired(t *testing.T) {
	m, _ := newTestManager()
	hospitalID := uuid.New()
	ctx := context.Background()

	expired := createUnit(t, &m, hospitalID, model.BloodGroupOPos, time.Now().Add(-50*24*time.Hour))
	makeAvailable(t, &m, expired.ID)
	fresh := createUnit(t, &m, hospitalID, model.BloodGroupOPos, time.Now())
	makeAvailable(t, &m, fresh.ID)

	// A reserved unit past expiry belongs to its reservation, not the sweep.
	reserved := createUnit(t, &m, hospitalID, model.BloodGroupANeg, time.Now().Add(-41*24*time.Hour))
	makeAvailable(t, &m, reserved.ID)
	claimed, err := m.ClaimAvailable(ctx, hospitalID, model.BloodGroupANeg, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	swept, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := m.GetUnit(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusExpired, got.Status)

	got, err = m.GetUnit(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusAvailable, got.Status)

	got, err = m.GetUnit(ctx, reserved.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusReserved, got.Status)
}

func TestRecordMovement(t *testing.T) {
	m, _ := newTestManager()
	unit := createUnit(t, &m, uuid.New(), model.BloodGroupOPos, time.Now())
	ctx := context.Background()

	_, err := m.RecordMovement(ctx, inventory.RecordMovementParams{
		UnitID: unit.ID,
		Actor:  uuid.New(),
	})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = m.RecordMovement(ctx, inventory.RecordMovementParams{
		UnitID:     uuid.New(),
		ToLocation: "fridge-2",
		Actor:      uuid.New(),
	})
	assert.ErrorIs(t, err, model.ErrNotFound)

	first, err := m.RecordMovement(ctx, inventory.RecordMovementParams{
		UnitID:     unit.ID,
		ToLocation: "fridge-1",
		Actor:      uuid.New(),
	})
	require.NoError(t, err)
	_, err = m.RecordMovement(ctx, inventory.RecordMovementParams{
		UnitID:       unit.ID,
		FromLocation: "fridge-1",
		ToLocation:   "theatre-3",
		Actor:        uuid.New(),
	})
	require.NoError(t, err)

	movements, err := m.Movements(ctx, unit.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, first.ID, movements[0].ID)
	assert.Equal(t, "fridge-1", movements[1].FromLocation)
	assert.Equal(t, "theatre-3", movements[1].ToLocation)
}

func TestCountAvailableByGroup(t *testing.T) {
	m, _ := newTestManager()
	hospitalID := uuid.New()

	for i := 0; i < 3; i++ {
		u := createUnit(t, &m, hospitalID, model.BloodGroupOPos, time.Now())
		makeAvailable(t, &m, u.ID)
	}
	u := createUnit(t, &m, hospitalID, model.BloodGroupABPos, time.Now())
	makeAvailable(t, &m, u.ID)
	// Still collected, so not counted.
	createUnit(t, &m, hospitalID, model.BloodGroupOPos, time.Now())

	counts, err := m.CountAvailableByGroup(context.Background(), hospitalID)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[model.BloodGroupOPos])
	assert.Equal(t, 1, counts[model.BloodGroupABPos])
	assert.Equal(t, 0, counts[model.BloodGroupBNeg])
}
