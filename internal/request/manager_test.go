package request_test

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
	"vienlink/internal/notifications"
	"vienlink/internal/repository"
	"vienlink/internal/request"
)

type fixture struct {
	repo     *repository.MemoryRepository
	units    inventory.Manager
	notifier notifications.Manager
	requests request.Manager
}

func newFixture() *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemoryRepository()
	auditor := audit.NewAuditor(logger, repo)
	notifier := notifications.NewManager(logger, repo, nil)
	units := inventory.NewManager(logger, repo, &auditor)
	requests := request.NewManager(logger, repo, &units, &auditor, &notifier)
	return &fixture{repo: repo, units: units, notifier: notifier, requests: requests}
}

func (f *fixture) seedAvailable(t *testing.T, hospitalID uuid.UUID, group model.BloodGroup, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		unit := model.BloodUnit{
			ID:             uuid.New(),
			DonorID:        uuid.New(),
			HospitalID:     hospitalID,
			BloodGroup:     group,
			Status:         model.UnitStatusAvailable,
			CollectionDate: time.Now().Add(-time.Duration(i) * 24 * time.Hour),
			ExpiryDate:     time.Now().Add(time.Duration(42-i) * 24 * time.Hour),
			TestResults: map[model.Assay]model.AssayResult{
				model.AssayHIV:      model.AssayResultNegative,
				model.AssayHBV:      model.AssayResultNegative,
				model.AssayHCV:      model.AssayResultNegative,
				model.AssaySyphilis: model.AssayResultNegative,
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		require.NoError(t, f.repo.CreateUnit(context.Background(), unit))
		ids = append(ids, unit.ID)
	}
	return ids
}

func staffAt(hospitalID uuid.UUID) model.Identity {
	return model.Identity{UserID: uuid.New(), Role: model.RoleStaff, HospitalID: hospitalID}
}

func adminAt(hospitalID uuid.UUID) model.Identity {
	return model.Identity{UserID: uuid.New(), Role: model.RoleHospitalAdmin, HospitalID: hospitalID}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()
	hospitalID := uuid.New()
	staff := staffAt(hospitalID)
	ctx := context.Background()

	_, err := f.requests.Create(ctx, request.CreateParams{
		HospitalID: hospitalID, Requester: staff, BloodGroup: model.BloodGroupOPos, Quantity: 0,
	})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = f.requests.Create(ctx, request.CreateParams{
		HospitalID: hospitalID, Requester: staff, BloodGroup: "Z+", Quantity: 1,
	})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	// Staff of a different hospital cannot file requests here.
	_, err = f.requests.Create(ctx, request.CreateParams{
		HospitalID: uuid.New(), Requester: staff, BloodGroup: model.BloodGroupOPos, Quantity: 1,
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestGet_ScopeLooksLikeAbsence(t *testing.T) {
	f := newFixture()
	hospitalID := uuid.New()
	staff := staffAt(hospitalID)
	ctx := context.Background()

	req, err := f.requests.Create(ctx, request.CreateParams{
		HospitalID: hospitalID, Requester: staff, BloodGroup: model.BloodGroupOPos, Quantity: 1,
	})
	require.NoError(t, err)

	_, err = f.requests.Get(ctx, staffAt(uuid.New()), req.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	// Super admins are unscoped.
	got, err := f.requests.Get(ctx, model.Identity{UserID: uuid.New(), Role: model.RoleSuperAdmin}, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
}

func TestApprove(t *testing.T) {
	f := newFixture()
	hospitalID := uuid.New()
	staff := staffAt(hospitalID)
	admin := adminAt(hospitalID)
	ctx := context.Background()

	f.seedAvailable(t, hospitalID, model.BloodGroupOPos, 5)
	req, err := f.requests.Create(ctx, request.CreateParams{
		HospitalID: hospitalID, Requester: staff, BloodGroup: model.BloodGroupOPos, Quantity: 3,
	})
	require.NoError(t, err)

	approved, err := f.requests.Approve(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, admin.UserID, *approved.ApprovedBy)
	require.Len(t, approved.ReservedUnits, 3)

	for _, id := range approved.ReservedUnits {
		unit, err := f.repo.GetUnit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.UnitStatusReserved, unit.Status)
	}

	// The requester hears about it.
	list, err := f.notifier.List(ctx, staff.UserID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationTypeRequestApproved, list[0].Type)
}

func TestApprove_InsufficientStockReleasesPartialClaim(t *testing.T) {
	f := newFixture()
	hospitalID := uuid.New()
	staff := staffAt(hospitalID)
	ctx := context.Background()

	units := f.seedAvailable(t, hospitalID, model.BloodGroupOPos, 3)
	req, err := f.requests.Create(ctx, request.CreateParams{
		HospitalID: hospitalID, Requester: staff, BloodGroup: model.BloodGroupOPos, Quantity: 5,
	})
	require.NoError(t, err)

	_, err = f.requests.Approve(ctx, adminAt(hospitalID), req.ID)
	require.Error(t, err)
	require.True(t, request.IsInsufficientStock(err))

	var stockErr *model.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 5, stockErr.Required)

	// The partial claim was returned and the request is still actionable.
	for _, id := range units {
		unit, err := f.repo.GetUnit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.UnitStatusAvailable, unit.Status)
	}
	stored, err := f.repo.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, stored.Status)
}

func TestApprove_RejectedRequest(t *testing.T) {
	f := newFixture()
	hospitalID := uuid.New()
	staff := staffAt(hospitalID)
	admin := adminAt(hospitalID)
	ctx := context.Background()

	req, err := f.requests.Create(ctx, request.CreateParams{
		HospitalID: hospitalID, Requester: staff, BloodGroup: model.BloodGroupOPos, Quantity: 1,
	})
	require.NoError(t, err)

	rejected, err := f.requests.Reject(ctx, admin, req.ID, "not justified")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusRejected, rejected.Status)
	assert.Equal(t, "not justified", rejected.RejectionReason)

	_, err = f.requests.Approve(ctx, admin, req.ID)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestFulfill_IssuesTheReservedUnits(t *testing.T) {
	f := newFixture()
	hospitalID := uuid.New()
	staff := staffAt(hospitalID)
	admin := adminAt(hospitalID)
	ctx := context.Background()

	f.seedAvailable(t, hospitalID, model.BloodGroupABPos, 4)
	req, err := f.requests.Create(ctx, request.CreateParams{
		HospitalID: hospitalID, Requester: staff, BloodGroup: model.BloodGroupABPos, Quantity: 2,
	})
	require.NoError(t, err)

	approved, err := f.requests.Approve(ctx, admin, req.ID)
	require.NoError(t, err)

	fulfilled, err := f.requests.Fulfill(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusFulfilled, fulfilled.Status)
	assert.Equal(t, approved.ReservedUnits, fulfilled.FulfilledUnits)

	for _, id := range fulfilled.FulfilledUnits {
		unit, err := f.repo.GetUnit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.UnitStatusIssued, unit.Status)
		require.NotNil(t, unit.IssuedTo)
		assert.Equal(t, req.ID, *unit.IssuedTo)
	}

	// Fulfilled is terminal.
	_, err = f.requests.Fulfill(ctx, admin, req.ID)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	_, err = f.requests.Cancel(ctx, admin, req.ID)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestCancel_AfterApprovalReleasesUnits(t *testing.T) {
	f := newFixture()
	hospitalID := uuid.New()
	staff := staffAt(hospitalID)
	ctx := context.Background()

	f.seedAvailable(t, hospitalID, model.BloodGroupOPos, 2)
	req, err := f.requests.Create(ctx, request.CreateParams{
		HospitalID: hospitalID, Requester: staff, BloodGroup: model.BloodGroupOPos, Quantity: 2,
	})
	require.NoError(t, err)

	approved, err := f.requests.Approve(ctx, adminAt(hospitalID), req.ID)
	require.NoError(t, err)

	cancelled, err := f.requests.Cancel(ctx, staff, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCancelled, cancelled.Status)

	for _, id := range approved.ReservedUnits {
		unit, err := f.repo.GetUnit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.UnitStatusAvailable, unit.Status)
	}
}

func TestCancel_Pending(t *testing.T) {
	f := newFixture()
	hospitalID := uuid.New()
	staff := staffAt(hospitalID)
	ctx := context.Background()

	req, err := f.requests.Create(ctx, request.CreateParams{
		HospitalID: hospitalID, Requester: staff, BloodGroup: model.BloodGroupOPos, Quantity: 1,
	})
	require.NoError(t, err)

	cancelled, err := f.requests.Cancel(ctx, staff, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCancelled, cancelled.Status)
}
