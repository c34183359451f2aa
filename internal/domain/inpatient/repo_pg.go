package inpatient

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

const stayCols = `id, patient_id, encounter_id, ward, bed, status, admitted_by,
	admitted_at, discharged_at, discharge_note, version, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, s *Stay) error {
	s.ID = uuid.New()
	s.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO inpatient_stay (
			id, patient_id, encounter_id, ward, bed, status, admitted_by, admitted_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.ID, s.PatientID, s.EncounterID, s.Ward, s.Bed, s.Status, s.AdmittedBy, s.AdmittedAt, s.Version,
	)
	return mapCreateError(err, s.EncounterID)
}

// mapCreateError translates a unique violation on the active-stay index into
// the domain error the service raises for duplicate admissions, covering the
// race where two Admit calls both pass the read check.
func mapCreateError(err error, encounterID uuid.UUID) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "idx_stay_active_encounter" {
		return lifecycle.NewError(lifecycle.CodeInvalidTransition,
			"encounter %s already has an active stay", encounterID)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Stay, error) {
	return scanStay(r.conn(ctx).QueryRow(ctx,
		`SELECT `+stayCols+` FROM inpatient_stay WHERE id = $1`, id))
}

func (r *repoPG) GetActiveByEncounter(ctx context.Context, encounterID uuid.UUID) (*Stay, error) {
	stay, err := scanStay(r.conn(ctx).QueryRow(ctx,
		`SELECT `+stayCols+` FROM inpatient_stay WHERE encounter_id = $1 AND status != 'DISCHARGED'`,
		encounterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lifecycle.NotFound(EntityType, encounterID.String())
	}
	return stay, err
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Stay, int, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM inpatient_stay`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + stayCols + ` FROM inpatient_stay` + where +
		` ORDER BY admitted_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var stays []*Stay
	for rows.Next() {
		var s Stay
		if err := rows.Scan(
			&s.ID, &s.PatientID, &s.EncounterID, &s.Ward, &s.Bed, &s.Status, &s.AdmittedBy,
			&s.AdmittedAt, &s.DischargedAt, &s.DischargeNote, &s.Version, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		stays = append(stays, &s)
	}
	return stays, total, nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, s *Stay) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inpatient_stay SET
			status=$2, ward=$3, bed=$4, discharged_at=$5, discharge_note=$6, version=$7, updated_at=NOW()
		WHERE id = $1 AND version = $8`,
		s.ID, s.Status, s.Ward, s.Bed, s.DischargedAt, s.DischargeNote, s.Version, s.Version-1,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.VersionConflict(s.Version-1, s.Version)
	}
	return nil
}

func (r *repoPG) AddStatusChange(ctx context.Context, sc *StatusChange) error {
	sc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO inpatient_stay_status_history (id, stay_id, from_status, to_status, actor_id, actor_role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sc.ID, sc.StayID, sc.FromStatus, sc.ToStatus, sc.ActorID, sc.ActorRole, sc.CreatedAt,
	)
	return err
}

func (r *repoPG) GetStatusHistory(ctx context.Context, stayID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, stay_id, from_status, to_status, actor_id, actor_role, created_at
		FROM inpatient_stay_status_history WHERE stay_id = $1 ORDER BY created_at`, stayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*StatusChange
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.ID, &sc.StayID, &sc.FromStatus, &sc.ToStatus, &sc.ActorID, &sc.ActorRole, &sc.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, &sc)
	}
	return history, nil
}

func scanStay(row pgx.Row) (*Stay, error) {
	var s Stay
	err := row.Scan(
		&s.ID, &s.PatientID, &s.EncounterID, &s.Ward, &s.Bed, &s.Status, &s.AdmittedBy,
		&s.AdmittedAt, &s.DischargedAt, &s.DischargeNote, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
