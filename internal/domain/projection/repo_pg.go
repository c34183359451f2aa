package projection

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) EncounterCountsByStatus(ctx context.Context, department string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM encounter`
	args := []interface{}{}
	if department != "" {
		query += ` WHERE department = $1`
		args = append(args, department)
	}
	query += ` GROUP BY status`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCounts(rows)
}

func (r *repoPG) BookingCountsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM booking GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCounts(rows)
}

func (r *repoPG) OpenMedicationOrders(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM medication_order WHERE status IN ('PENDING','ACTIVE')`).Scan(&n)
	return n, err
}

// AvgArrivalWaitMinutes measures scheduled start to actual arrival across
// encounters that came from a booking.
func (r *repoPG) AvgArrivalWaitMinutes(ctx context.Context, department string) (float64, error) {
	query := `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (e.arrived_at - b.scheduled_start)) / 60), 0)
		FROM encounter e
		JOIN booking b ON b.id = e.booking_id
		WHERE e.arrived_at IS NOT NULL`
	args := []interface{}{}
	if department != "" {
		query += ` AND e.department = $1`
		args = append(args, department)
	}

	var avg float64
	err := r.pool.QueryRow(ctx, query, args...).Scan(&avg)
	return avg, err
}

// AvgLabTurnaroundHours measures order placement to verification on verified
// lab test orders.
func (r *repoPG) AvgLabTurnaroundHours(ctx context.Context) (float64, error) {
	var avg float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (verified_at - created_at)) / 3600), 0)
		FROM lab_test_order WHERE verified_at IS NOT NULL`).Scan(&avg)
	return avg, err
}

// worklistQueries maps each role to the entities waiting on it.
var worklistQueries = map[string]string{
	"receptionist": `
		SELECT 'Booking', id, status, source, created_at
		FROM booking WHERE status = 'PENDING' ORDER BY scheduled_start`,
	"pharmacist": `
		SELECT 'MedicationOrder', id, status, medication_name, created_at
		FROM medication_order WHERE status = 'PENDING' ORDER BY created_at`,
	"doctor": `
		SELECT 'Encounter', id, status, COALESCE(department, ''), created_at
		FROM encounter WHERE status IN ('ARRIVED','IN_PROGRESS') ORDER BY arrived_at`,
	"nurse": `
		SELECT 'LabTestOrder', id, status, test_name, created_at
		FROM lab_test_order WHERE status = 'ORDERED' ORDER BY created_at`,
	"lab_technician": `
		SELECT 'LabTestOrder', id, status, test_name, created_at
		FROM lab_test_order WHERE status IN ('COLLECTED','RECEIVED','IN_PROGRESS') ORDER BY created_at`,
	"hr": `
		SELECT 'Invoice', id, status, invoice_number, created_at
		FROM invoice WHERE status IN ('PENDING','PARTIAL') ORDER BY created_at`,
}

func (r *repoPG) Worklist(ctx context.Context, role string) ([]*WorklistItem, error) {
	query, ok := worklistQueries[role]
	if !ok {
		return []*WorklistItem{}, nil
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*WorklistItem
	for rows.Next() {
		var it WorklistItem
		if err := rows.Scan(&it.EntityType, &it.EntityID, &it.Status, &it.Label, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, nil
}

func collectCounts(rows pgx.Rows) (map[string]int, error) {
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}
