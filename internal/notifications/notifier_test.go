package notifications_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vienlink/internal/hub"
	"vienlink/internal/model"
	"vienlink/internal/notifications"
	"vienlink/internal/repository"
)

func newNotifier(h hub.Hub) (notifications.Manager, *repository.MemoryRepository) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemoryRepository()
	return notifications.NewManager(logger, repo, h), repo
}

func TestNotify_ExpiryPolicy(t *testing.T) {
	m, _ := newNotifier(nil)
	ctx := context.Background()
	recipient := uuid.New()

	maintenance, err := m.Notify(ctx, notifications.NotifyParams{
		RecipientID: recipient,
		Type:        model.NotificationTypeMaintenance,
		Title:       "Planned downtime",
		Message:     "Back at 06:00.",
	})
	require.NoError(t, err)
	require.NotNil(t, maintenance.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), *maintenance.ExpiresAt, time.Minute)

	low, err := m.Notify(ctx, notifications.NotifyParams{
		RecipientID: recipient,
		Type:        model.NotificationTypeStockLow,
		Priority:    model.NotificationPriorityLow,
		Title:       "FYI",
		Message:     "Minor stock dip.",
	})
	require.NoError(t, err)
	require.NotNil(t, low.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *low.ExpiresAt, time.Minute)

	normal, err := m.Notify(ctx, notifications.NotifyParams{
		RecipientID: recipient,
		Type:        model.NotificationTypeRequestApproved,
		Title:       "Approved",
		Message:     "Request approved.",
	})
	require.NoError(t, err)
	assert.Nil(t, normal.ExpiresAt)
	assert.Equal(t, model.NotificationPriorityNormal, normal.Priority)

	explicit := time.Now().Add(time.Hour)
	custom, err := m.Notify(ctx, notifications.NotifyParams{
		RecipientID: recipient,
		Type:        model.NotificationTypeMaintenance,
		Title:       "Short notice",
		Message:     "Brief outage.",
		ExpiresAt:   &explicit,
	})
	require.NoError(t, err)
	require.NotNil(t, custom.ExpiresAt)
	assert.True(t, custom.ExpiresAt.Equal(explicit))
}

func TestNotify_DeliversOverHub(t *testing.T) {
	memHub := hub.NewMemoryHub()
	m, _ := newNotifier(memHub)
	recipient := uuid.New()
	hospitalID := uuid.New()

	userCh, cancelUser := memHub.Subscribe(hub.UserScope(recipient))
	defer cancelUser()
	hospitalCh, cancelHospital := memHub.Subscribe(hub.HospitalScope(hospitalID))
	defer cancelHospital()

	sent, err := m.Notify(context.Background(), notifications.NotifyParams{
		RecipientID: recipient,
		HospitalID:  &hospitalID,
		Type:        model.NotificationTypeRequestApproved,
		Title:       "Approved",
		Message:     "Request approved.",
	})
	require.NoError(t, err)

	for _, ch := range []<-chan []byte{userCh, hospitalCh} {
		select {
		case payload := <-ch:
			var got model.Notification
			require.NoError(t, json.Unmarshal(payload, &got))
			assert.Equal(t, sent.ID, got.ID)
		case <-time.After(time.Second):
			t.Fatal("expected a delivery on the hub")
		}
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	m, _ := newNotifier(nil)
	ctx := context.Background()
	recipient := uuid.New()

	n, err := m.Notify(ctx, notifications.NotifyParams{
		RecipientID: recipient,
		Type:        model.NotificationTypeRequestApproved,
		Title:       "Approved",
		Message:     "Request approved.",
	})
	require.NoError(t, err)

	require.NoError(t, m.MarkRead(ctx, recipient, n.ID))
	first, err := m.Get(ctx, recipient, n.ID)
	require.NoError(t, err)
	require.True(t, first.Read)
	require.NotNil(t, first.ReadAt)

	// Marking again keeps the original read timestamp.
	require.NoError(t, m.MarkRead(ctx, recipient, n.ID))
	second, err := m.Get(ctx, recipient, n.ID)
	require.NoError(t, err)
	assert.True(t, second.ReadAt.Equal(*first.ReadAt))
}

func TestListAndCountUnread(t *testing.T) {
	m, _ := newNotifier(nil)
	ctx := context.Background()
	recipient := uuid.New()

	a, err := m.Notify(ctx, notifications.NotifyParams{
		RecipientID: recipient, Type: model.NotificationTypeRequestApproved,
		Title: "First", Message: "m",
	})
	require.NoError(t, err)
	_, err = m.Notify(ctx, notifications.NotifyParams{
		RecipientID: recipient, Type: model.NotificationTypeRequestRejected,
		Title: "Second", Message: "m",
	})
	require.NoError(t, err)

	// Someone else's notification stays invisible.
	_, err = m.Notify(ctx, notifications.NotifyParams{
		RecipientID: uuid.New(), Type: model.NotificationTypeRequestApproved,
		Title: "Other", Message: "m",
	})
	require.NoError(t, err)

	all, err := m.List(ctx, recipient, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, m.MarkRead(ctx, recipient, a.ID))

	unread, err := m.List(ctx, recipient, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Second", unread[0].Title)

	count, err := m.CountUnread(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, m.MarkAllRead(ctx, recipient))
	count, err = m.CountUnread(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCleanupExpired(t *testing.T) {
	m, _ := newNotifier(nil)
	ctx := context.Background()
	recipient := uuid.New()

	past := time.Now().Add(-time.Minute)
	_, err := m.Notify(ctx, notifications.NotifyParams{
		RecipientID: recipient, Type: model.NotificationTypeMaintenance,
		Title: "Old", Message: "m", ExpiresAt: &past,
	})
	require.NoError(t, err)
	keep, err := m.Notify(ctx, notifications.NotifyParams{
		RecipientID: recipient, Type: model.NotificationTypeRequestApproved,
		Title: "Keep", Message: "m",
	})
	require.NoError(t, err)

	// Expired entries are already hidden from listings before cleanup runs.
	visible, err := m.List(ctx, recipient, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)

	deleted, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = m.Get(ctx, recipient, keep.ID)
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	m, _ := newNotifier(nil)
	ctx := context.Background()
	recipient := uuid.New()

	n, err := m.Notify(ctx, notifications.NotifyParams{
		RecipientID: recipient, Type: model.NotificationTypeRequestApproved,
		Title: "Gone soon", Message: "m",
	})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, recipient, n.ID))
	_, err = m.Get(ctx, recipient, n.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
