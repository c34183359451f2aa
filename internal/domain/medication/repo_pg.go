package medication

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

const orderCols = `id, group_id, encounter_id, patient_id, medication_name, dosage,
	frequency, route, status, hold_reason, discontinue_reason,
	version, created_at, updated_at`

func (r *repoPG) CreateGroup(ctx context.Context, g *OrderGroup) error {
	g.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication_order_group (id, encounter_id, ordered_by, note)
		VALUES ($1,$2,$3,$4)`,
		g.ID, g.EncounterID, g.OrderedBy, g.Note,
	)
	return err
}

func (r *repoPG) CreateOrder(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	o.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication_order (
			id, group_id, encounter_id, patient_id, medication_name, dosage,
			frequency, route, status, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.GroupID, o.EncounterID, o.PatientID, o.MedicationName, o.Dosage,
		o.Frequency, o.Route, o.Status, o.Version,
	)
	return err
}

func (r *repoPG) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM medication_order WHERE id = $1`, id))
}

func (r *repoPG) ListOrders(ctx context.Context, status string, limit, offset int) ([]*Order, int, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medication_order`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + orderCols + ` FROM medication_order` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders, err := collectOrders(rows)
	return orders, total, err
}

func (r *repoPG) ListOrdersByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*Order, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+orderCols+` FROM medication_order WHERE encounter_id = $1 ORDER BY created_at`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *repoPG) ListGroupsByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*OrderGroup, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, encounter_id, ordered_by, note, created_at
		FROM medication_order_group WHERE encounter_id = $1 ORDER BY created_at`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*OrderGroup
	for rows.Next() {
		var g OrderGroup
		if err := rows.Scan(&g.ID, &g.EncounterID, &g.OrderedBy, &g.Note, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, &g)
	}
	return groups, nil
}

func (r *repoPG) ListOrdersByGroup(ctx context.Context, groupID uuid.UUID) ([]*Order, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+orderCols+` FROM medication_order WHERE group_id = $1 ORDER BY created_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *repoPG) CountOpenByEncounter(ctx context.Context, encounterID uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM medication_order
		WHERE encounter_id = $1 AND status IN ('PENDING', 'ACTIVE')`, encounterID).Scan(&count)
	return count, err
}

func (r *repoPG) UpdateStatus(ctx context.Context, o *Order) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medication_order SET
			status=$2, hold_reason=$3, discontinue_reason=$4, version=$5, updated_at=NOW()
		WHERE id = $1 AND version = $6`,
		o.ID, o.Status, o.HoldReason, o.DiscontinueReason, o.Version, o.Version-1,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.VersionConflict(o.Version-1, o.Version)
	}
	return nil
}

func (r *repoPG) AddStatusChange(ctx context.Context, sc *StatusChange) error {
	sc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication_order_status_history (id, order_id, from_status, to_status, actor_id, actor_role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sc.ID, sc.OrderID, sc.FromStatus, sc.ToStatus, sc.ActorID, sc.ActorRole, sc.CreatedAt,
	)
	return err
}

func (r *repoPG) GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_id, actor_role, created_at
		FROM medication_order_status_history WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*StatusChange
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.ID, &sc.OrderID, &sc.FromStatus, &sc.ToStatus, &sc.ActorID, &sc.ActorRole, &sc.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, &sc)
	}
	return history, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.GroupID, &o.EncounterID, &o.PatientID, &o.MedicationName, &o.Dosage,
		&o.Frequency, &o.Route, &o.Status, &o.HoldReason, &o.DiscontinueReason,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*Order, error) {
	var orders []*Order
	for rows.Next() {
		var o Order
		err := rows.Scan(
			&o.ID, &o.GroupID, &o.EncounterID, &o.PatientID, &o.MedicationName, &o.Dosage,
			&o.Frequency, &o.Route, &o.Status, &o.HoldReason, &o.DiscontinueReason,
			&o.Version, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, nil
}
