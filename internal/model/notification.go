package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeRequestApproved  NotificationType = "request.approved"
	NotificationTypeRequestRejected  NotificationType = "request.rejected"
	NotificationTypeRequestFulfilled NotificationType = "request.fulfilled"
	NotificationTypeRequestCancelled NotificationType = "request.cancelled"
	NotificationTypeTransferUpdate   NotificationType = "transfer.update"
	NotificationTypeStockLow         NotificationType = "stock.low"
	NotificationTypeStockCritical    NotificationType = "stock.critical"
	NotificationTypeMaintenance      NotificationType = "maintenance"
)

type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
	NotificationPriorityUrgent NotificationPriority = "urgent"
)

// Notification is addressed to exactly one recipient. The persisted record is
// the durable source of truth; real-time delivery is best effort.
type Notification struct {
	ID          uuid.UUID            `json:"id"`
	RecipientID uuid.UUID            `json:"recipient_id"`
	HospitalID  *uuid.UUID           `json:"hospital_id,omitempty"`
	Role        Role                 `json:"role,omitempty"`
	Type        NotificationType     `json:"type"`
	Priority    NotificationPriority `json:"priority"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	Metadata    map[string]any       `json:"metadata,omitempty"`
	Read        bool                 `json:"read"`
	ReadAt      *time.Time           `json:"read_at,omitempty"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// Expired reports whether the notification is past its expiry and therefore
// logically invisible, pending cleanup.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// AuditEvent is a structured record of one state-changing operation. Writing
// it is fire-and-forget; a failed write never aborts the primary operation.
type AuditEvent struct {
	ID         uuid.UUID      `json:"id"`
	ActorID    uuid.UUID      `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	HospitalID *uuid.UUID     `json:"hospital_id,omitempty"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
