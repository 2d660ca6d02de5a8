package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vienlink/internal/config"
	"vienlink/internal/model"
)

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, cfg config.DatabaseConfig) (*PostgresRepository, error) {
	dsn := "host=" + cfg.Host +
		" port=" + strconv.Itoa(cfg.Port) +
		" user=" + cfg.User +
		" password=" + cfg.Password +
		" dbname=" + cfg.Name +
		" sslmode=" + cfg.SSLMode

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database configuration: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) HealthCheck(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const unitColumns = `id, donor_id, hospital_id, blood_group, status, collection_date, expiry_date, test_results, issued_to, created_at, updated_at`

func scanUnit(row pgx.Row) (model.BloodUnit, error) {
	var unit model.BloodUnit
	var results []byte
	err := row.Scan(&unit.ID, &unit.DonorID, &unit.HospitalID, &unit.BloodGroup, &unit.Status,
		&unit.CollectionDate, &unit.ExpiryDate, &results, &unit.IssuedTo, &unit.CreatedAt, &unit.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return unit, model.ErrNotFound
		}
		return unit, err
	}
	if err := json.Unmarshal(results, &unit.TestResults); err != nil {
		return unit, fmt.Errorf("failed to decode test results: %w", err)
	}
	return unit, nil
}

func (r *PostgresRepository) CreateUnit(ctx context.Context, unit model.BloodUnit) error {
	results, err := json.Marshal(unit.TestResults)
	if err != nil {
		return fmt.Errorf("failed to encode test results: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO blood_units (id, donor_id, hospital_id, blood_group, status, collection_date, expiry_date, test_results, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		unit.ID, unit.DonorID, unit.HospitalID, unit.BloodGroup, unit.Status,
		unit.CollectionDate, unit.ExpiryDate, results, unit.CreatedAt, unit.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetUnit(ctx context.Context, id uuid.UUID) (model.BloodUnit, error) {
	return scanUnit(r.pool.QueryRow(ctx, `SELECT `+unitColumns+` FROM blood_units WHERE id = $1`, id))
}

func (r *PostgresRepository) RecordAssayResult(ctx context.Context, unitID uuid.UUID, assay model.Assay, result model.AssayResult) (model.BloodUnit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.BloodUnit{}, err
	}
	defer tx.Rollback(ctx)

	unit, err := scanUnit(tx.QueryRow(ctx, `SELECT `+unitColumns+` FROM blood_units WHERE id = $1 FOR UPDATE`, unitID))
	if err != nil {
		return model.BloodUnit{}, err
	}
	switch unit.Status {
	case model.UnitStatusCollected, model.UnitStatusTested:
	default:
		return model.BloodUnit{}, model.ErrInvalidTransition
	}

	if unit.TestResults == nil {
		unit.TestResults = make(map[model.Assay]model.AssayResult)
	}
	unit.TestResults[assay] = result
	unit.Status = model.UnitStatusTested
	// The availability/disposal decision commits with the result write, so a
	// positive unit is never observable as available.
	if unit.AllAssaysResolved() {
		if unit.AnyAssayPositive() {
			unit.Status = model.UnitStatusDisposed
		} else {
			unit.Status = model.UnitStatusAvailable
		}
	}

	results, err := json.Marshal(unit.TestResults)
	if err != nil {
		return model.BloodUnit{}, fmt.Errorf("failed to encode test results: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE blood_units SET test_results = $1, status = $2, updated_at = NOW() WHERE id = $3`,
		results, unit.Status, unitID); err != nil {
		return model.BloodUnit{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.BloodUnit{}, err
	}
	return unit, nil
}

func (r *PostgresRepository) ClaimAvailableUnits(ctx context.Context, hospitalID uuid.UUID, group model.BloodGroup, count int, now time.Time) ([]model.BloodUnit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM blood_units
		WHERE hospital_id = $1 AND blood_group = $2 AND status = 'available' AND expiry_date > $3
		ORDER BY expiry_date ASC, id ASC
		LIMIT $4`,
		hospitalID, group, now, count)
	if err != nil {
		return nil, err
	}
	var candidates []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	// One conditional update per candidate: the WHERE status clause is the
	// atomic check-and-set. A unit a concurrent claim already took matches
	// zero rows and is skipped, so two callers can never hold the same unit.
	claimed := make([]model.BloodUnit, 0, len(candidates))
	for _, id := range candidates {
		unit, err := scanUnit(r.pool.QueryRow(ctx, `
			UPDATE blood_units SET status = 'reserved', updated_at = NOW()
			WHERE id = $1 AND status = 'available'
			RETURNING `+unitColumns, id))
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, unit)
	}
	return claimed, nil
}

func (r *PostgresRepository) ReleaseUnits(ctx context.Context, unitIDs []uuid.UUID) error {
	if len(unitIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE blood_units SET status = 'available', updated_at = NOW()
		WHERE id = ANY($1) AND status = 'reserved'`, unitIDs)
	return err
}

func (r *PostgresRepository) IssueUnits(ctx context.Context, unitIDs []uuid.UUID, requestID uuid.UUID) error {
	if len(unitIDs) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE blood_units SET status = 'issued', issued_to = $1, updated_at = NOW()
		WHERE id = ANY($2) AND status = 'reserved'`, requestID, unitIDs)
	if err != nil {
		return err
	}
	// No partial issue: anything short of the full batch rolls back.
	if tag.RowsAffected() != int64(len(unitIDs)) {
		return model.ErrInvalidTransition
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) SweepExpiredUnits(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE blood_units SET status = 'expired', updated_at = NOW()
		WHERE status = 'available' AND expiry_date <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) CountAvailableByGroup(ctx context.Context, hospitalID uuid.UUID, now time.Time) (map[model.BloodGroup]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT blood_group, COUNT(*) FROM blood_units
		WHERE hospital_id = $1 AND status = 'available' AND expiry_date > $2
		GROUP BY blood_group`, hospitalID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.BloodGroup]int)
	for rows.Next() {
		var group model.BloodGroup
		var count int
		if err := rows.Scan(&group, &count); err != nil {
			return nil, err
		}
		counts[group] = count
	}
	return counts, rows.Err()
}

func (r *PostgresRepository) AddMovement(ctx context.Context, mv model.Movement) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO unit_movements (id, unit_id, from_location, to_location, moved_by, moved_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		mv.ID, mv.UnitID, mv.FromLocation, mv.ToLocation, mv.MovedBy, mv.MovedAt)
	return err
}

func (r *PostgresRepository) ListMovements(ctx context.Context, unitID uuid.UUID) ([]model.Movement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, unit_id, from_location, to_location, moved_by, moved_at
		FROM unit_movements WHERE unit_id = $1 ORDER BY moved_at ASC`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Movement
	for rows.Next() {
		var mv model.Movement
		if err := rows.Scan(&mv.ID, &mv.UnitID, &mv.FromLocation, &mv.ToLocation, &mv.MovedBy, &mv.MovedAt); err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

const requestColumns = `id, hospital_id, requester_id, blood_group, quantity, status, approved_by, approved_at, rejection_reason, reserved_units, fulfilled_units, created_at, updated_at`

func scanRequest(row pgx.Row) (model.BloodRequest, error) {
	var req model.BloodRequest
	err := row.Scan(&req.ID, &req.HospitalID, &req.RequesterID, &req.BloodGroup, &req.Quantity,
		&req.Status, &req.ApprovedBy, &req.ApprovedAt, &req.RejectionReason,
		&req.ReservedUnits, &req.FulfilledUnits, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return req, model.ErrNotFound
	}
	return req, err
}

func (r *PostgresRepository) CreateRequest(ctx context.Context, req model.BloodRequest) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO blood_requests (id, hospital_id, requester_id, blood_group, quantity, status, rejection_reason, reserved_units, fulfilled_units, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		req.ID, req.HospitalID, req.RequesterID, req.BloodGroup, req.Quantity, req.Status,
		req.RejectionReason, req.ReservedUnits, req.FulfilledUnits, req.CreatedAt, req.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetRequest(ctx context.Context, id uuid.UUID) (model.BloodRequest, error) {
	return scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM blood_requests WHERE id = $1`, id))
}

func (r *PostgresRepository) UpdateRequest(ctx context.Context, req model.BloodRequest, expect model.RequestStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE blood_requests
		SET status = $1, approved_by = $2, approved_at = $3, rejection_reason = $4,
		    reserved_units = $5, fulfilled_units = $6, updated_at = NOW()
		WHERE id = $7 AND status = $8`,
		req.Status, req.ApprovedBy, req.ApprovedAt, req.RejectionReason,
		req.ReservedUnits, req.FulfilledUnits, req.ID, expect)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetRequest(ctx, req.ID); errors.Is(err, model.ErrNotFound) {
			return model.ErrNotFound
		}
		return model.ErrInvalidState
	}
	return nil
}

func (r *PostgresRepository) CreateTransfer(ctx context.Context, tr model.TransferRequest) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transfer_requests (id, from_hospital_id, to_hospital_id, requester_id, blood_group, quantity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tr.ID, tr.FromHospitalID, tr.ToHospitalID, tr.RequesterID, tr.BloodGroup, tr.Quantity, tr.Status, tr.CreatedAt, tr.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetTransfer(ctx context.Context, id uuid.UUID) (model.TransferRequest, error) {
	var tr model.TransferRequest
	err := r.pool.QueryRow(ctx, `
		SELECT id, from_hospital_id, to_hospital_id, requester_id, blood_group, quantity, status, decided_by, created_at, updated_at
		FROM transfer_requests WHERE id = $1`, id).Scan(
		&tr.ID, &tr.FromHospitalID, &tr.ToHospitalID, &tr.RequesterID, &tr.BloodGroup,
		&tr.Quantity, &tr.Status, &tr.DecidedBy, &tr.CreatedAt, &tr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tr, model.ErrNotFound
	}
	return tr, err
}

func (r *PostgresRepository) UpdateTransfer(ctx context.Context, tr model.TransferRequest, expect model.TransferStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transfer_requests SET status = $1, decided_by = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		tr.Status, tr.DecidedBy, tr.ID, expect)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetTransfer(ctx, tr.ID); errors.Is(err, model.ErrNotFound) {
			return model.ErrNotFound
		}
		return model.ErrInvalidState
	}
	return nil
}

func (r *PostgresRepository) CreateHospital(ctx context.Context, h model.Hospital) error {
	thresholds, err := json.Marshal(h.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to encode thresholds: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO hospitals (id, name, approved, admin_id, latitude, longitude, thresholds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		h.ID, h.Name, h.Approved, h.AdminID, h.Latitude, h.Longitude, thresholds, h.CreatedAt)
	return err
}

func scanHospital(row pgx.Row) (model.Hospital, error) {
	var h model.Hospital
	var thresholds []byte
	err := row.Scan(&h.ID, &h.Name, &h.Approved, &h.AdminID, &h.Latitude, &h.Longitude, &thresholds, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return h, model.ErrNotFound
		}
		return h, err
	}
	if len(thresholds) > 0 {
		if err := json.Unmarshal(thresholds, &h.Thresholds); err != nil {
			return h, fmt.Errorf("failed to decode thresholds: %w", err)
		}
	}
	return h, nil
}

func (r *PostgresRepository) GetHospital(ctx context.Context, id uuid.UUID) (model.Hospital, error) {
	return scanHospital(r.pool.QueryRow(ctx, `
		SELECT id, name, approved, admin_id, latitude, longitude, thresholds, created_at
		FROM hospitals WHERE id = $1`, id))
}

func (r *PostgresRepository) ListApprovedHospitals(ctx context.Context) ([]model.Hospital, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, approved, admin_id, latitude, longitude, thresholds, created_at
		FROM hospitals WHERE approved ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListSuperAdmins(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE role = 'super_admin'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateDonor(ctx context.Context, d model.Donor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO donors (id, name, blood_group, eligible, latitude, longitude, last_donation_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.Name, d.BloodGroup, d.Eligible, d.Latitude, d.Longitude, d.LastDonationDate, d.CreatedAt)
	return err
}

func (r *PostgresRepository) ListDonorsByGroup(ctx context.Context, group model.BloodGroup) ([]model.Donor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, blood_group, eligible, latitude, longitude, last_donation_date, created_at
		FROM donors WHERE blood_group = $1`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Donor
	for rows.Next() {
		var d model.Donor
		if err := rows.Scan(&d.ID, &d.Name, &d.BloodGroup, &d.Eligible, &d.Latitude, &d.Longitude, &d.LastDonationDate, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateNotification(ctx context.Context, n model.Notification) error {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode notification metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, hospital_id, role, type, priority, title, message, metadata, read, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		n.ID, n.RecipientID, n.HospitalID, n.Role, n.Type, n.Priority, n.Title, n.Message,
		metadata, n.Read, n.ExpiresAt, n.CreatedAt)
	return err
}

const notificationColumns = `id, recipient_id, hospital_id, role, type, priority, title, message, metadata, read, read_at, expires_at, created_at`

func scanNotification(row pgx.Row) (model.Notification, error) {
	var n model.Notification
	var metadata []byte
	err := row.Scan(&n.ID, &n.RecipientID, &n.HospitalID, &n.Role, &n.Type, &n.Priority,
		&n.Title, &n.Message, &metadata, &n.Read, &n.ReadAt, &n.ExpiresAt, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return n, model.ErrNotFound
		}
		return n, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return n, fmt.Errorf("failed to decode notification metadata: %w", err)
		}
	}
	return n, nil
}

func (r *PostgresRepository) GetNotification(ctx context.Context, recipientID, id uuid.UUID) (model.Notification, error) {
	return scanNotification(r.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+` FROM notifications WHERE recipient_id = $1 AND id = $2`, recipientID, id))
}

func (r *PostgresRepository) ListNotifications(ctx context.Context, recipientID uuid.UUID, onlyUnread bool, now time.Time) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE recipient_id = $1 AND (expires_at IS NULL OR expires_at > $2)`
	if onlyUnread {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, recipientID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) MarkNotificationsRead(ctx context.Context, recipientID uuid.UUID, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	// Already-read rows are excluded so read_at is stamped once.
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE, read_at = NOW()
		WHERE recipient_id = $1 AND id = ANY($2) AND NOT read`, recipientID, ids)
	return err
}

func (r *PostgresRepository) DeleteNotifications(ctx context.Context, recipientID uuid.UUID, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE recipient_id = $1 AND id = ANY($2)`, recipientID, ids)
	return err
}

func (r *PostgresRepository) DeleteExpiredNotifications(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) CountUnreadNotifications(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND NOT read AND (expires_at IS NULL OR expires_at > $2)`,
		recipientID, now).Scan(&count)
	return count, err
}

func (r *PostgresRepository) CreateAuditEvent(ctx context.Context, ev model.AuditEvent) error {
	before, err := json.Marshal(ev.Before)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	after, err := json.Marshal(ev.After)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_events (id, actor_id, action, entity_type, entity_id, hospital_id, before_values, after_values, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.ActorID, ev.Action, ev.EntityType, ev.EntityID, ev.HospitalID, before, after, ev.CreatedAt)
	return err
}
