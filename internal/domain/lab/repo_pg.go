package lab

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

const testOrderCols = `id, encounter_id, patient_id, test_code, test_name, priority,
	ordered_by, status, rejection_reason, collected_at, verified_at, version, created_at, updated_at`

func (r *repoPG) CreateTestOrder(ctx context.Context, o *TestOrder) error {
	o.ID = uuid.New()
	o.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_test_order (
			id, encounter_id, patient_id, test_code, test_name, priority, ordered_by, status, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.EncounterID, o.PatientID, o.TestCode, o.TestName, o.Priority, o.OrderedBy, o.Status, o.Version,
	)
	return err
}

func (r *repoPG) GetTestOrder(ctx context.Context, id uuid.UUID) (*TestOrder, error) {
	return scanTestOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+testOrderCols+` FROM lab_test_order WHERE id = $1`, id))
}

func (r *repoPG) ListTestOrders(ctx context.Context, status string, limit, offset int) ([]*TestOrder, int, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_test_order`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + testOrderCols + ` FROM lab_test_order` + where +
		` ORDER BY created_at LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders, err := collectTestOrders(rows)
	return orders, total, err
}

func (r *repoPG) ListTestOrdersByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*TestOrder, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+testOrderCols+` FROM lab_test_order WHERE encounter_id = $1 ORDER BY created_at`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTestOrders(rows)
}

func (r *repoPG) UpdateTestOrderStatus(ctx context.Context, o *TestOrder) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_test_order SET
			status=$2, rejection_reason=$3, collected_at=$4, verified_at=$5, version=$6, updated_at=NOW()
		WHERE id = $1 AND version = $7`,
		o.ID, o.Status, o.RejectionReason, o.CollectedAt, o.VerifiedAt, o.Version, o.Version-1,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.VersionConflict(o.Version-1, o.Version)
	}
	return nil
}

func (r *repoPG) AddResults(ctx context.Context, orderID uuid.UUID, results []*Result) error {
	conn := r.conn(ctx)
	for _, res := range results {
		res.ID = uuid.New()
		res.OrderID = orderID
		if _, err := conn.Exec(ctx, `
			INSERT INTO lab_test_result (id, order_id, parameter, value, unit, reference_range, abnormal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			res.ID, res.OrderID, res.Parameter, res.Value, res.Unit, res.ReferenceRange, res.Abnormal,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) ListResults(ctx context.Context, orderID uuid.UUID) ([]*Result, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, order_id, parameter, value, unit, reference_range, abnormal, created_at
		FROM lab_test_result WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		var res Result
		if err := rows.Scan(&res.ID, &res.OrderID, &res.Parameter, &res.Value, &res.Unit, &res.ReferenceRange, &res.Abnormal, &res.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}
	return results, nil
}

const imagingOrderCols = `id, encounter_id, patient_id, modality, body_site, ordered_by,
	status, report, cancellation_reason, verified_at, version, created_at, updated_at`

func (r *repoPG) CreateImagingOrder(ctx context.Context, o *ImagingOrder) error {
	o.ID = uuid.New()
	o.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO imaging_order (
			id, encounter_id, patient_id, modality, body_site, ordered_by, status, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.ID, o.EncounterID, o.PatientID, o.Modality, o.BodySite, o.OrderedBy, o.Status, o.Version,
	)
	return err
}

func (r *repoPG) GetImagingOrder(ctx context.Context, id uuid.UUID) (*ImagingOrder, error) {
	return scanImagingOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+imagingOrderCols+` FROM imaging_order WHERE id = $1`, id))
}

func (r *repoPG) ListImagingOrders(ctx context.Context, status string, limit, offset int) ([]*ImagingOrder, int, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM imaging_order`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + imagingOrderCols + ` FROM imaging_order` + where +
		` ORDER BY created_at LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []*ImagingOrder
	for rows.Next() {
		var o ImagingOrder
		if err := rows.Scan(
			&o.ID, &o.EncounterID, &o.PatientID, &o.Modality, &o.BodySite, &o.OrderedBy,
			&o.Status, &o.Report, &o.CancellationReason, &o.VerifiedAt, &o.Version, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		orders = append(orders, &o)
	}
	return orders, total, nil
}

func (r *repoPG) UpdateImagingOrderStatus(ctx context.Context, o *ImagingOrder) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE imaging_order SET
			status=$2, report=$3, cancellation_reason=$4, verified_at=$5, version=$6, updated_at=NOW()
		WHERE id = $1 AND version = $7`,
		o.ID, o.Status, o.Report, o.CancellationReason, o.VerifiedAt, o.Version, o.Version-1,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.VersionConflict(o.Version-1, o.Version)
	}
	return nil
}

const diagnosticOrderCols = `id, encounter_id, patient_id, procedure_name, note, ordered_by,
	status, report, cancellation_reason, verified_at, version, created_at, updated_at`

func (r *repoPG) CreateDiagnosticOrder(ctx context.Context, o *DiagnosticOrder) error {
	o.ID = uuid.New()
	o.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO diagnostic_order (
			id, encounter_id, patient_id, procedure_name, note, ordered_by, status, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.ID, o.EncounterID, o.PatientID, o.Procedure, o.Note, o.OrderedBy, o.Status, o.Version,
	)
	return err
}

func (r *repoPG) GetDiagnosticOrder(ctx context.Context, id uuid.UUID) (*DiagnosticOrder, error) {
	return scanDiagnosticOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+diagnosticOrderCols+` FROM diagnostic_order WHERE id = $1`, id))
}

func (r *repoPG) ListDiagnosticOrders(ctx context.Context, status string, limit, offset int) ([]*DiagnosticOrder, int, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM diagnostic_order`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + diagnosticOrderCols + ` FROM diagnostic_order` + where +
		` ORDER BY created_at LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []*DiagnosticOrder
	for rows.Next() {
		var o DiagnosticOrder
		if err := rows.Scan(
			&o.ID, &o.EncounterID, &o.PatientID, &o.Procedure, &o.Note, &o.OrderedBy,
			&o.Status, &o.Report, &o.CancellationReason, &o.VerifiedAt, &o.Version, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		orders = append(orders, &o)
	}
	return orders, total, nil
}

func (r *repoPG) UpdateDiagnosticOrderStatus(ctx context.Context, o *DiagnosticOrder) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE diagnostic_order SET
			status=$2, report=$3, cancellation_reason=$4, verified_at=$5, version=$6, updated_at=NOW()
		WHERE id = $1 AND version = $7`,
		o.ID, o.Status, o.Report, o.CancellationReason, o.VerifiedAt, o.Version, o.Version-1,
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
		INSERT INTO lab_order_status_history (id, order_id, entity_type, from_status, to_status, actor_id, actor_role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sc.ID, sc.OrderID, sc.EntityType, sc.FromStatus, sc.ToStatus, sc.ActorID, sc.ActorRole, sc.CreatedAt,
	)
	return err
}

func (r *repoPG) GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, order_id, entity_type, from_status, to_status, actor_id, actor_role, created_at
		FROM lab_order_status_history WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*StatusChange
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.ID, &sc.OrderID, &sc.EntityType, &sc.FromStatus, &sc.ToStatus, &sc.ActorID, &sc.ActorRole, &sc.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, &sc)
	}
	return history, nil
}

func scanTestOrder(row pgx.Row) (*TestOrder, error) {
	var o TestOrder
	err := row.Scan(
		&o.ID, &o.EncounterID, &o.PatientID, &o.TestCode, &o.TestName, &o.Priority,
		&o.OrderedBy, &o.Status, &o.RejectionReason, &o.CollectedAt, &o.VerifiedAt,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectTestOrders(rows pgx.Rows) ([]*TestOrder, error) {
	var orders []*TestOrder
	for rows.Next() {
		var o TestOrder
		err := rows.Scan(
			&o.ID, &o.EncounterID, &o.PatientID, &o.TestCode, &o.TestName, &o.Priority,
			&o.OrderedBy, &o.Status, &o.RejectionReason, &o.CollectedAt, &o.VerifiedAt,
			&o.Version, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

func scanDiagnosticOrder(row pgx.Row) (*DiagnosticOrder, error) {
	var o DiagnosticOrder
	err := row.Scan(
		&o.ID, &o.EncounterID, &o.PatientID, &o.Procedure, &o.Note, &o.OrderedBy,
		&o.Status, &o.Report, &o.CancellationReason, &o.VerifiedAt, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanImagingOrder(row pgx.Row) (*ImagingOrder, error) {
	var o ImagingOrder
	err := row.Scan(
		&o.ID, &o.EncounterID, &o.PatientID, &o.Modality, &o.BodySite, &o.OrderedBy,
		&o.Status, &o.Report, &o.CancellationReason, &o.VerifiedAt, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
