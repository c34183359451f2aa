package booking

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospitalos/hms/internal/lifecycle"
	"github.com/hospitalos/hms/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const bookingCols = `id, patient_id, practitioner_id, source, status,
	scheduled_start, scheduled_end, complaint, cancellation_reason,
	encounter_id, version, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	b.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO booking (
			id, patient_id, practitioner_id, source, status,
			scheduled_start, scheduled_end, complaint, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID, b.PatientID, b.PractitionerID, b.Source, b.Status,
		b.ScheduledStart, b.ScheduledEnd, b.Complaint, b.Version,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return scanBooking(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bookingCols+` FROM booking WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Booking, int, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM booking`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + bookingCols + ` FROM booking` + where +
		` ORDER BY scheduled_start LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectBookings(rows, total)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM booking WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+bookingCols+` FROM booking WHERE patient_id = $1 ORDER BY scheduled_start DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectBookings(rows, total)
}

func (r *repoPG) UpdateStatus(ctx context.Context, b *Booking) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE booking SET
			status=$2, cancellation_reason=$3, encounter_id=$4, version=$5, updated_at=NOW()
		WHERE id = $1 AND version = $6`,
		b.ID, b.Status, b.CancellationReason, b.EncounterID, b.Version, b.Version-1,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.VersionConflict(b.Version-1, b.Version)
	}
	return nil
}

func (r *repoPG) AddStatusChange(ctx context.Context, sc *StatusChange) error {
	sc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO booking_status_history (id, booking_id, from_status, to_status, actor_id, actor_role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sc.ID, sc.BookingID, sc.FromStatus, sc.ToStatus, sc.ActorID, sc.ActorRole, sc.CreatedAt,
	)
	return err
}

func (r *repoPG) GetStatusHistory(ctx context.Context, bookingID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, booking_id, from_status, to_status, actor_id, actor_role, created_at
		FROM booking_status_history WHERE booking_id = $1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*StatusChange
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.ID, &sc.BookingID, &sc.FromStatus, &sc.ToStatus, &sc.ActorID, &sc.ActorRole, &sc.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, &sc)
	}
	return history, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID, &b.PatientID, &b.PractitionerID, &b.Source, &b.Status,
		&b.ScheduledStart, &b.ScheduledEnd, &b.Complaint, &b.CancellationReason,
		&b.EncounterID, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows, total int) ([]*Booking, int, error) {
	var bookings []*Booking
	for rows.Next() {
		var b Booking
		err := rows.Scan(
			&b.ID, &b.PatientID, &b.PractitionerID, &b.Source, &b.Status,
			&b.ScheduledStart, &b.ScheduledEnd, &b.Complaint, &b.CancellationReason,
			&b.EncounterID, &b.Version, &b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, &b)
	}
	return bookings, total, nil
}
