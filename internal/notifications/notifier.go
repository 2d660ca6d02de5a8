package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vienlink/internal/hub"
	"vienlink/internal/model"
	"vienlink/internal/repository"
)

const (
	maintenanceTTL = 7 * 24 * time.Hour
	lowPriorityTTL = 30 * 24 * time.Hour
)

// Manager persists notifications and fans them out over the hub. The stored
// record is the durable source of truth; the hub push is best effort and its
// failures are logged, never returned.
type Manager struct {
	logger *slog.Logger
	repo   repository.Repository
	hub    hub.Hub
}

func NewManager(logger *slog.Logger, repo repository.Repository, h hub.Hub) Manager {
	if h == nil {
		h = hub.NoOpHub{}
	}
	return Manager{logger: logger, repo: repo, hub: h}
}

type NotifyParams struct {
	RecipientID uuid.UUID
	HospitalID  *uuid.UUID
	Role        model.Role // set for role-wide broadcasts
	Type        model.NotificationType
	Priority    model.NotificationPriority
	Title       string
	Message     string
	Metadata    map[string]any
	ExpiresAt   *time.Time
}

func (m *Manager) Notify(ctx context.Context, params NotifyParams) (model.Notification, error) {
	now := time.Now()
	n := model.Notification{
		ID:          uuid.New(),
		RecipientID: params.RecipientID,
		HospitalID:  params.HospitalID,
		Role:        params.Role,
		Type:        params.Type,
		Priority:    params.Priority,
		Title:       params.Title,
		Message:     params.Message,
		Metadata:    params.Metadata,
		ExpiresAt:   expiry(params, now),
		CreatedAt:   now,
	}
	if n.Priority == "" {
		n.Priority = model.NotificationPriorityNormal
	}

	if err := m.repo.CreateNotification(ctx, n); err != nil {
		return model.Notification{}, err
	}

	m.publish(ctx, n)
	return n, nil
}

// expiry applies the retention policy: maintenance notices live 7 days,
// low-priority ones 30 days unless an explicit expiry was given, everything
// else persists until deleted.
func expiry(params NotifyParams, now time.Time) *time.Time {
	if params.ExpiresAt != nil {
		return params.ExpiresAt
	}
	switch {
	case params.Type == model.NotificationTypeMaintenance:
		t := now.Add(maintenanceTTL)
		return &t
	case params.Priority == model.NotificationPriorityLow:
		t := now.Add(lowPriorityTTL)
		return &t
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, n model.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		m.logger.Error("Failed to encode notification for delivery", "error", err, "notification_id", n.ID)
		return
	}

	scopes := []hub.Scope{hub.UserScope(n.RecipientID)}
	if n.HospitalID != nil {
		scopes = append(scopes, hub.HospitalScope(*n.HospitalID))
	}
	if n.Role != "" {
		scopes = append(scopes, hub.RoleScope(n.Role))
	}

	for _, scope := range scopes {
		if err := m.hub.Publish(ctx, scope, payload); err != nil {
			m.logger.Warn("Failed to publish notification, stored record remains canonical",
				"error", err, "notification_id", n.ID, "scope", scope)
		}
	}
}

func (m *Manager) Get(ctx context.Context, recipientID, id uuid.UUID) (model.Notification, error) {
	return m.repo.GetNotification(ctx, recipientID, id)
}

func (m *Manager) List(ctx context.Context, recipientID uuid.UUID, onlyUnread bool) ([]model.Notification, error) {
	return m.repo.ListNotifications(ctx, recipientID, onlyUnread, time.Now())
}

func (m *Manager) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return m.repo.CountUnreadNotifications(ctx, recipientID, time.Now())
}

// MarkRead is idempotent: marking an already-read notification again is a
// no-op, not an error.
func (m *Manager) MarkRead(ctx context.Context, recipientID uuid.UUID, ids ...uuid.UUID) error {
	return m.repo.MarkNotificationsRead(ctx, recipientID, ids...)
}

func (m *Manager) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	unread, err := m.repo.ListNotifications(ctx, recipientID, true, time.Now())
	if err != nil {
		return err
	}
	if len(unread) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(unread))
	for i, n := range unread {
		ids[i] = n.ID
	}
	return m.repo.MarkNotificationsRead(ctx, recipientID, ids...)
}

func (m *Manager) Delete(ctx context.Context, recipientID uuid.UUID, ids ...uuid.UUID) error {
	return m.repo.DeleteNotifications(ctx, recipientID, ids...)
}

// CleanupExpired deletes notifications past their expiry. Safe to run
// concurrently with reads; listing already hides expired rows.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	return m.repo.DeleteExpiredNotifications(ctx, time.Now())
}
