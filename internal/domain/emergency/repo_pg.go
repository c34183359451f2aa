package emergency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

const caseCols = `id, patient_id, encounter_id, category, complaint, pain_score,
	life_threatening, triaged_by, arrived_at, resolved_at, created_at`

func (r *repoPG) Create(ctx context.Context, c *Case) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergency_case (
			id, patient_id, category, complaint, pain_score,
			life_threatening, triaged_by, arrived_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.PatientID, c.Category, c.Complaint, c.PainScore,
		c.LifeThreatening, c.TriagedBy, c.ArrivedAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseCols+` FROM emergency_case WHERE id = $1`, id))
}

func (r *repoPG) ListUnresolved(ctx context.Context) ([]*Case, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+caseCols+` FROM emergency_case WHERE resolved_at IS NULL ORDER BY arrived_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*Case
	for rows.Next() {
		var c Case
		if err := rows.Scan(
			&c.ID, &c.PatientID, &c.EncounterID, &c.Category, &c.Complaint, &c.PainScore,
			&c.LifeThreatening, &c.TriagedBy, &c.ArrivedAt, &c.ResolvedAt, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		cases = append(cases, &c)
	}
	return cases, nil
}

func (r *repoPG) Resolve(ctx context.Context, id uuid.UUID, encounterID *uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_case SET resolved_at = $2, encounter_id = $3
		WHERE id = $1 AND resolved_at IS NULL`,
		id, time.Now().UTC(), encounterID,
	)
	return err
}

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(
		&c.ID, &c.PatientID, &c.EncounterID, &c.Category, &c.Complaint, &c.PainScore,
		&c.LifeThreatening, &c.TriagedBy, &c.ArrivedAt, &c.ResolvedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
