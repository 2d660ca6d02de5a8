package stock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vienlink/internal/config"
	"vienlink/internal/donor"
	"vienlink/internal/model"
	"vienlink/internal/notifications"
	"vienlink/internal/repository"
	"vienlink/internal/telemetry"
)

// Level classifies the stock position for one hospital and blood group.
type Level int

const (
	LevelOK Level = iota
	LevelLow
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "critical"
	case LevelLow:
		return "low"
	default:
		return "ok"
	}
}

// Monitor periodically evaluates inventory health per hospital and blood
// group. It only reads the unit store; stale reads are acceptable because
// alerting is advisory, not transactional.
type Monitor struct {
	logger    *slog.Logger
	repo      repository.Repository
	notifier  *notifications.Manager
	matcher   *donor.Matcher
	telemetry telemetry.Telemetry
	cfg       config.StockConfig
}

func NewMonitor(logger *slog.Logger, repo repository.Repository, notifier *notifications.Manager, matcher *donor.Matcher, tel telemetry.Telemetry, cfg config.StockConfig) Monitor {
	if tel == nil {
		tel = telemetry.Noop()
	}
	return Monitor{logger: logger, repo: repo, notifier: notifier, matcher: matcher, telemetry: tel, cfg: cfg}
}

// Classify places a count against a threshold.
func Classify(count, threshold int) Level {
	switch {
	case count <= threshold/2:
		return LevelCritical
	case count <= threshold:
		return LevelLow
	default:
		return LevelOK
	}
}

// Sweep evaluates every approved hospital once. A failure on one hospital is
// logged and the sweep continues with the rest.
func (m *Monitor) Sweep(ctx context.Context) error {
	hospitals, err := m.repo.ListApprovedHospitals(ctx)
	if err != nil {
		return fmt.Errorf("failed to list hospitals: %w", err)
	}

	for _, hospital := range hospitals {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.evaluateHospital(ctx, hospital); err != nil {
			m.logger.Error("Stock evaluation failed for hospital", "error", err, "hospital_id", hospital.ID)
		}
	}
	return nil
}

func (m *Monitor) evaluateHospital(ctx context.Context, hospital model.Hospital) error {
	counts, err := m.repo.CountAvailableByGroup(ctx, hospital.ID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to count available units: %w", err)
	}

	for _, group := range model.BloodGroups {
		count := counts[group]
		threshold := hospital.Threshold(group, m.cfg.DefaultThreshold)

		switch Classify(count, threshold) {
		case LevelCritical:
			m.alertCritical(ctx, hospital, group, count, threshold)
		case LevelLow:
			m.alertLow(ctx, hospital, group, count, threshold)
		}
	}
	return nil
}

func (m *Monitor) alertLow(ctx context.Context, hospital model.Hospital, group model.BloodGroup, count, threshold int) {
	m.telemetry.RecordStockAlert(ctx, string(group), false)

	hospitalID := hospital.ID
	m.send(ctx, notifications.NotifyParams{
		RecipientID: hospital.AdminID,
		HospitalID:  &hospitalID,
		Type:        model.NotificationTypeStockLow,
		Priority:    model.NotificationPriorityHigh,
		Title:       fmt.Sprintf("Low stock: %s", group),
		Message:     fmt.Sprintf("%s has %d available %s unit(s), at or below the threshold of %d.", hospital.Name, count, group, threshold),
		Metadata:    map[string]any{"blood_group": group, "count": count, "threshold": threshold},
	})
}

func (m *Monitor) alertCritical(ctx context.Context, hospital model.Hospital, group model.BloodGroup, count, threshold int) {
	m.telemetry.RecordStockAlert(ctx, string(group), true)

	metadata := map[string]any{"blood_group": group, "count": count, "threshold": threshold}

	// Attach nearby eligible donors so staff can start outreach right away.
	if m.matcher != nil {
		if nearby, err := m.matcher.FindNearby(ctx, group, hospital.Latitude, hospital.Longitude, m.cfg.DonorRadiusKm); err != nil {
			m.logger.Warn("Donor lookup failed during critical alert", "error", err, "hospital_id", hospital.ID)
		} else {
			metadata["nearby_donors"] = len(nearby)
		}
	}

	hospitalID := hospital.ID
	title := fmt.Sprintf("CRITICAL stock: %s", group)
	message := fmt.Sprintf("%s has only %d available %s unit(s), below half the threshold of %d.", hospital.Name, count, group, threshold)

	m.send(ctx, notifications.NotifyParams{
		RecipientID: hospital.AdminID,
		HospitalID:  &hospitalID,
		Type:        model.NotificationTypeStockCritical,
		Priority:    model.NotificationPriorityUrgent,
		Title:       title,
		Message:     message,
		Metadata:    metadata,
	})

	// Critical breaches also go to every super admin as a role broadcast.
	admins, err := m.repo.ListSuperAdmins(ctx)
	if err != nil {
		m.logger.Error("Failed to list super admins for critical alert", "error", err)
		return
	}
	for _, adminID := range admins {
		m.send(ctx, notifications.NotifyParams{
			RecipientID: adminID,
			Role:        model.RoleSuperAdmin,
			Type:        model.NotificationTypeStockCritical,
			Priority:    model.NotificationPriorityUrgent,
			Title:       title,
			Message:     message,
			Metadata:    metadata,
		})
	}
}

func (m *Monitor) send(ctx context.Context, params notifications.NotifyParams) {
	if _, err := m.notifier.Notify(ctx, params); err != nil {
		m.logger.Error("Failed to send stock alert", "error", err, "recipient_id", params.RecipientID)
	}
}
