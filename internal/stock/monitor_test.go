package stock_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vienlink/internal/config"
	"vienlink/internal/donor"
	"vienlink/internal/model"
	"vienlink/internal/notifications"
	"vienlink/internal/repository"
	"vienlink/internal/stock"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		threshold int
		want      stock.Level
	}{
		{"well_stocked", 20, 10, stock.LevelOK},
		{"just_above_threshold", 11, 10, stock.LevelOK},
		{"at_threshold", 10, 10, stock.LevelLow},
		{"below_threshold", 7, 10, stock.LevelLow},
		{"at_half_threshold", 5, 10, stock.LevelCritical},
		{"empty", 0, 10, stock.LevelCritical},
		{"odd_threshold_boundary", 3, 7, stock.LevelCritical},
		{"odd_threshold_low", 4, 7, stock.LevelLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stock.Classify(tt.count, tt.threshold))
		})
	}
}

func seedUnits(t *testing.T, repo *repository.MemoryRepository, hospitalID uuid.UUID, group model.BloodGroup, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		unit := model.BloodUnit{
			ID:         uuid.New(),
			DonorID:    uuid.New(),
			HospitalID: hospitalID,
			BloodGroup: group,
			Status:     model.UnitStatusAvailable,
			ExpiryDate: time.Now().Add(30 * 24 * time.Hour),
			TestResults: map[model.Assay]model.AssayResult{
				model.AssayHIV:      model.AssayResultNegative,
				model.AssayHBV:      model.AssayResultNegative,
				model.AssayHCV:      model.AssayResultNegative,
				model.AssaySyphilis: model.AssayResultNegative,
			},
		}
		require.NoError(t, repo.CreateUnit(context.Background(), unit))
	}
}

func TestSweep_Alerts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemoryRepository()
	notifier := notifications.NewManager(logger, repo, nil)
	matcher := donor.NewMatcher(repo)
	cfg := config.StockConfig{DefaultThreshold: 4, DonorRadiusKm: 25}
	monitor := stock.NewMonitor(logger, repo, &notifier, &matcher, nil, cfg)
	ctx := context.Background()

	lat, lon := 48.2082, 16.3738
	hospital := model.Hospital{
		ID:        uuid.New(),
		Name:      "General",
		Approved:  true,
		AdminID:   uuid.New(),
		Latitude:  lat,
		Longitude: lon,
	}
	require.NoError(t, repo.CreateHospital(ctx, hospital))

	superAdmin := uuid.New()
	repo.AddSuperAdmin(superAdmin)

	// O+ sits at the threshold (low), A+ at half of it (critical).
	seedUnits(t, repo, hospital.ID, model.BloodGroupOPos, 4)
	seedUnits(t, repo, hospital.ID, model.BloodGroupAPos, 1)

	// One eligible A+ donor close by, referenced in the critical alert.
	donorLat, donorLon := 48.21, 16.37
	require.NoError(t, repo.CreateDonor(ctx, model.Donor{
		ID:         uuid.New(),
		Name:       "Jamie",
		BloodGroup: model.BloodGroupAPos,
		Eligible:   true,
		Latitude:   &donorLat,
		Longitude:  &donorLon,
	}))

	require.NoError(t, monitor.Sweep(ctx))

	adminNotes, err := notifier.List(ctx, hospital.AdminID, false)
	require.NoError(t, err)

	var lowOPos, criticalAPos *model.Notification
	for i := range adminNotes {
		n := adminNotes[i]
		switch {
		case n.Type == model.NotificationTypeStockLow && n.Metadata["blood_group"] == model.BloodGroupOPos:
			lowOPos = &adminNotes[i]
		case n.Type == model.NotificationTypeStockCritical && n.Metadata["blood_group"] == model.BloodGroupAPos:
			criticalAPos = &adminNotes[i]
		}
	}

	require.NotNil(t, lowOPos, "expected a low-stock alert for O+")
	assert.Equal(t, model.NotificationPriorityHigh, lowOPos.Priority)
	assert.Equal(t, 4, lowOPos.Metadata["count"])

	require.NotNil(t, criticalAPos, "expected a critical alert for A+")
	assert.Equal(t, model.NotificationPriorityUrgent, criticalAPos.Priority)
	assert.Equal(t, 1, criticalAPos.Metadata["nearby_donors"])

	// Critical breaches are broadcast to super admins as well.
	adminBroadcast, err := notifier.List(ctx, superAdmin, false)
	require.NoError(t, err)
	found := false
	for _, n := range adminBroadcast {
		if n.Type == model.NotificationTypeStockCritical && n.Metadata["blood_group"] == model.BloodGroupAPos {
			found = true
			assert.Equal(t, model.RoleSuperAdmin, n.Role)
		}
	}
	assert.True(t, found, "expected the A+ critical alert to reach the super admin")
}

func TestSweep_SkipsUnapprovedHospitals(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemoryRepository()
	notifier := notifications.NewManager(logger, repo, nil)
	monitor := stock.NewMonitor(logger, repo, &notifier, nil, nil, config.StockConfig{DefaultThreshold: 4})
	ctx := context.Background()

	pending := model.Hospital{ID: uuid.New(), Name: "Pending", Approved: false, AdminID: uuid.New()}
	require.NoError(t, repo.CreateHospital(ctx, pending))

	require.NoError(t, monitor.Sweep(ctx))

	notes, err := notifier.List(ctx, pending.AdminID, false)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
