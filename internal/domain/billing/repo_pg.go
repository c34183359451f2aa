package billing

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

const invoiceCols = `id, invoice_number, encounter_id, patient_id, status,
	total_amount, covered_amount, patient_share, paid_amount, coverage_percent,
	cancellation_reason, paid_at, version, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, inv *Invoice, items []*Item) error {
	inv.ID = uuid.New()
	inv.Version = 1
	conn := r.conn(ctx)
	_, err := conn.Exec(ctx, `
		INSERT INTO invoice (
			id, invoice_number, encounter_id, patient_id, status,
			total_amount, covered_amount, patient_share, paid_amount, coverage_percent, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		inv.ID, inv.InvoiceNumber, inv.EncounterID, inv.PatientID, inv.Status,
		inv.TotalAmount, inv.CoveredAmount, inv.PatientShare, inv.PaidAmount, inv.CoveragePercent, inv.Version,
	)
	if err != nil {
		return mapCreateError(err, inv.EncounterID)
	}
	for _, it := range items {
		it.ID = uuid.New()
		it.InvoiceID = inv.ID
		if _, err := conn.Exec(ctx, `
			INSERT INTO invoice_item (id, invoice_id, kind, label, quantity, unit_price, amount)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, it.InvoiceID, it.Kind, it.Label, it.Quantity, it.UnitPrice, it.Amount,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM invoice WHERE id = $1`, id))
}

func (r *repoPG) GetActiveByEncounter(ctx context.Context, encounterID uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM invoice WHERE encounter_id = $1 AND status != 'CANCELLED'`,
		encounterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lifecycle.NotFound(EntityType, encounterID.String())
	}
	return inv, err
}

// mapCreateError translates a unique violation on the active-invoice index
// into the domain duplicate error, so a race between two Generate calls
// surfaces as 409 rather than a bare storage failure.
func mapCreateError(err error, encounterID uuid.UUID) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "idx_invoice_active_encounter" {
		return lifecycle.DuplicateInvoice(encounterID.String())
	}
	return err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM invoice WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+invoiceCols+` FROM invoice WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectInvoices(rows, total)
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Invoice, int, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoice`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + invoiceCols + ` FROM invoice` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectInvoices(rows, total)
}

func (r *repoPG) ListItems(ctx context.Context, invoiceID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, kind, label, quantity, unit_price, amount, created_at
		FROM invoice_item WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Kind, &it.Label, &it.Quantity, &it.UnitPrice, &it.Amount, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, inv *Invoice) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice SET
			status=$2, paid_amount=$3, cancellation_reason=$4, paid_at=$5, version=$6, updated_at=NOW()
		WHERE id = $1 AND version = $7`,
		inv.ID, inv.Status, inv.PaidAmount, inv.CancellationReason, inv.PaidAt, inv.Version, inv.Version-1,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.VersionConflict(inv.Version-1, inv.Version)
	}
	return nil
}

func (r *repoPG) AddStatusChange(ctx context.Context, sc *StatusChange) error {
	sc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice_status_history (id, invoice_id, from_status, to_status, actor_id, actor_role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sc.ID, sc.InvoiceID, sc.FromStatus, sc.ToStatus, sc.ActorID, sc.ActorRole, sc.CreatedAt,
	)
	return err
}

func (r *repoPG) GetStatusHistory(ctx context.Context, invoiceID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, from_status, to_status, actor_id, actor_role, created_at
		FROM invoice_status_history WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*StatusChange
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.ID, &sc.InvoiceID, &sc.FromStatus, &sc.ToStatus, &sc.ActorID, &sc.ActorRole, &sc.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, &sc)
	}
	return history, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.EncounterID, &inv.PatientID, &inv.Status,
		&inv.TotalAmount, &inv.CoveredAmount, &inv.PatientShare, &inv.PaidAmount, &inv.CoveragePercent,
		&inv.CancellationReason, &inv.PaidAt, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func collectInvoices(rows pgx.Rows, total int) ([]*Invoice, int, error) {
	var invoices []*Invoice
	for rows.Next() {
		var inv Invoice
		err := rows.Scan(
			&inv.ID, &inv.InvoiceNumber, &inv.EncounterID, &inv.PatientID, &inv.Status,
			&inv.TotalAmount, &inv.CoveredAmount, &inv.PatientShare, &inv.PaidAmount, &inv.CoveragePercent,
			&inv.CancellationReason, &inv.PaidAt, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, &inv)
	}
	return invoices, total, nil
}
