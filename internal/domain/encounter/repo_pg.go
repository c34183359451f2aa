package encounter

import (
	"context"
	"errors"
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

const encCols = `id, booking_id, patient_id, practitioner_id, department, status,
	period_start, period_end, arrived_at, disposition, cancellation_reason,
	version, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, e *Encounter) error {
	e.ID = uuid.New()
	e.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO encounter (
			id, booking_id, patient_id, practitioner_id, department, status,
			period_start, arrived_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.BookingID, e.PatientID, e.PractitionerID, e.Department, e.Status,
		e.PeriodStart, e.ArrivedAt, e.Version,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return scanEnc(r.conn(ctx).QueryRow(ctx,
		`SELECT `+encCols+` FROM encounter WHERE id = $1`, id))
}

func (r *repoPG) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*Encounter, error) {
	e, err := scanEnc(r.conn(ctx).QueryRow(ctx,
		`SELECT `+encCols+` FROM encounter WHERE booking_id = $1`, bookingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lifecycle.NotFound(EntityType, bookingID.String())
	}
	return e, err
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Encounter, int, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM encounter`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + encCols + ` FROM encounter` + where +
		` ORDER BY period_start DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectEncs(rows, total)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM encounter WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+encCols+` FROM encounter WHERE patient_id = $1 ORDER BY period_start DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectEncs(rows, total)
}

func (r *repoPG) UpdateStatus(ctx context.Context, e *Encounter) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE encounter SET
			status=$2, period_end=$3, arrived_at=$4, disposition=$5,
			cancellation_reason=$6, version=$7, updated_at=NOW()
		WHERE id = $1 AND version = $8`,
		e.ID, e.Status, e.PeriodEnd, e.ArrivedAt, e.Disposition,
		e.CancellationReason, e.Version, e.Version-1,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.VersionConflict(e.Version-1, e.Version)
	}
	return nil
}

func (r *repoPG) AddStatusChange(ctx context.Context, sc *StatusChange) error {
	sc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO encounter_status_history (id, encounter_id, from_status, to_status, actor_id, actor_role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sc.ID, sc.EncounterID, sc.FromStatus, sc.ToStatus, sc.ActorID, sc.ActorRole, sc.CreatedAt,
	)
	return err
}

func (r *repoPG) GetStatusHistory(ctx context.Context, encounterID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, encounter_id, from_status, to_status, actor_id, actor_role, created_at
		FROM encounter_status_history WHERE encounter_id = $1 ORDER BY created_at`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*StatusChange
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.ID, &sc.EncounterID, &sc.FromStatus, &sc.ToStatus, &sc.ActorID, &sc.ActorRole, &sc.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, &sc)
	}
	return history, nil
}

func scanEnc(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(
		&e.ID, &e.BookingID, &e.PatientID, &e.PractitionerID, &e.Department, &e.Status,
		&e.PeriodStart, &e.PeriodEnd, &e.ArrivedAt, &e.Disposition, &e.CancellationReason,
		&e.Version, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEncs(rows pgx.Rows, total int) ([]*Encounter, int, error) {
	var encs []*Encounter
	for rows.Next() {
		var e Encounter
		err := rows.Scan(
			&e.ID, &e.BookingID, &e.PatientID, &e.PractitionerID, &e.Department, &e.Status,
			&e.PeriodStart, &e.PeriodEnd, &e.ArrivedAt, &e.Disposition, &e.CancellationReason,
			&e.Version, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		encs = append(encs, &e)
	}
	return encs, total, nil
}
