package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vienlink/internal/model"
)

// Repository defines the storage contract for the blood-bank core. Two
// implementations exist: Postgres (pgx) for deployments and an in-memory one
// for development and tests. Operations documented as atomic must hold for
// concurrent callers in both.
type Repository interface {
	HealthCheck(ctx context.Context) error

	// Blood units
	CreateUnit(ctx context.Context, unit model.BloodUnit) error
	GetUnit(ctx context.Context, id uuid.UUID) (model.BloodUnit, error)

	// RecordAssayResult writes one assay result and, when the fourth assay
	// resolves, moves the unit to available (all negative) or disposed (any
	// positive) in the same atomic step. A unit never observably holds a
	// positive result while available.
	RecordAssayResult(ctx context.Context, unitID uuid.UUID, assay model.Assay, result model.AssayResult) (model.BloodUnit, error)

	// ClaimAvailableUnits flips up to count available, non-expired units of
	// the given group at the given hospital to reserved, soonest expiry
	// first. Each flip is an atomic check-and-set: a unit claimed by a
	// concurrent caller is skipped, never double-claimed. Returning fewer
	// units than asked is a normal outcome, not an error.
	ClaimAvailableUnits(ctx context.Context, hospitalID uuid.UUID, group model.BloodGroup, count int, now time.Time) ([]model.BloodUnit, error)

	// ReleaseUnits reverts reserved units to available. Units not currently
	// reserved are skipped.
	ReleaseUnits(ctx context.Context, unitIDs []uuid.UUID) error

	// IssueUnits moves reserved units to issued and stamps the fulfilling
	// request. All-or-nothing: if any unit is not reserved, nothing changes
	// and ErrInvalidTransition is returned.
	IssueUnits(ctx context.Context, unitIDs []uuid.UUID, requestID uuid.UUID) error

	// SweepExpiredUnits moves available units past expiry to expired and
	// returns how many moved. Reserved and issued units are left untouched.
	SweepExpiredUnits(ctx context.Context, now time.Time) (int, error)

	CountAvailableByGroup(ctx context.Context, hospitalID uuid.UUID, now time.Time) (map[model.BloodGroup]int, error)

	AddMovement(ctx context.Context, mv model.Movement) error
	ListMovements(ctx context.Context, unitID uuid.UUID) ([]model.Movement, error)

	// Blood requests
	CreateRequest(ctx context.Context, req model.BloodRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (model.BloodRequest, error)
	// UpdateRequest persists req only if the stored status still equals
	// expect, otherwise returns ErrInvalidState. This guards two staff
	// approving the same request at once.
	UpdateRequest(ctx context.Context, req model.BloodRequest, expect model.RequestStatus) error

	// Transfers
	CreateTransfer(ctx context.Context, tr model.TransferRequest) error
	GetTransfer(ctx context.Context, id uuid.UUID) (model.TransferRequest, error)
	UpdateTransfer(ctx context.Context, tr model.TransferRequest, expect model.TransferStatus) error

	// Hospitals and donors (collaborator records the core reads)
	CreateHospital(ctx context.Context, h model.Hospital) error
	GetHospital(ctx context.Context, id uuid.UUID) (model.Hospital, error)
	ListApprovedHospitals(ctx context.Context) ([]model.Hospital, error)
	ListSuperAdmins(ctx context.Context) ([]uuid.UUID, error)
	CreateDonor(ctx context.Context, d model.Donor) error
	ListDonorsByGroup(ctx context.Context, group model.BloodGroup) ([]model.Donor, error)

	// Notifications
	CreateNotification(ctx context.Context, n model.Notification) error
	GetNotification(ctx context.Context, recipientID, id uuid.UUID) (model.Notification, error)
	ListNotifications(ctx context.Context, recipientID uuid.UUID, onlyUnread bool, now time.Time) ([]model.Notification, error)
	MarkNotificationsRead(ctx context.Context, recipientID uuid.UUID, ids ...uuid.UUID) error
	DeleteNotifications(ctx context.Context, recipientID uuid.UUID, ids ...uuid.UUID) error
	DeleteExpiredNotifications(ctx context.Context, now time.Time) (int, error)
	CountUnreadNotifications(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error)

	// Audit
	CreateAuditEvent(ctx context.Context, ev model.AuditEvent) error
}
