package bankrequest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lifelink/lifelink/internal/platform/db"
)

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &requestRepoPG{pool: pool}
}

func (r *requestRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const requestCols = `h.id, h.hospital_id, h.hospital_name, h.requester_role, h.blood_type, h.units_needed,
	h.urgency, h.status, h.patient_name, h.request_date, h.resolved_date, h.resolved_by,
	h.created_at, h.updated_at`

func scanTargets(q *Request) []interface{} {
	return []interface{}{&q.ID, &q.HospitalID, &q.HospitalName, &q.RequesterRole, &q.BloodType,
		&q.UnitsNeeded, &q.Urgency, &q.Status, &q.PatientName, &q.RequestDate, &q.ResolvedDate,
		&q.ResolvedBy, &q.CreatedAt, &q.UpdatedAt}
}

func (r *requestRepoPG) scan(row pgx.Row) (*Request, error) {
	var q Request
	err := row.Scan(scanTargets(&q)...)
	return &q, err
}

func (r *requestRepoPG) Create(ctx context.Context, q *Request) error {
	q.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospital_request (id, hospital_id, hospital_name, requester_role, blood_type,
			units_needed, urgency, status, patient_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING request_date, created_at, updated_at`,
		q.ID, q.HospitalID, q.HospitalName, q.RequesterRole, q.BloodType,
		q.UnitsNeeded, q.Urgency, q.Status, q.PatientName,
	).Scan(&q.RequestDate, &q.CreatedAt, &q.UpdatedAt)
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+` FROM hospital_request h WHERE h.id = $1`, id))
}

func (r *requestRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+` FROM hospital_request h WHERE h.id = $1 FOR UPDATE`, id))
}

func (r *requestRepoPG) Resolve(ctx context.Context, q *Request) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE hospital_request SET status = $2, resolved_date = $3, resolved_by = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		q.ID, q.Status, q.ResolvedDate, q.ResolvedBy,
	).Scan(&q.UpdatedAt)
}

func (r *requestRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Request, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.HospitalID != nil {
		where += fmt.Sprintf(` AND h.hospital_id = $%d`, idx)
		args = append(args, *f.HospitalID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND h.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hospital_request h`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + requestCols + `, COALESCE(u.email, ''), COALESCE(u.phone, '')
		FROM hospital_request h
		LEFT JOIN users u ON u.id = h.hospital_id` + where +
		` ORDER BY h.request_date DESC` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		var q Request
		targets := append(scanTargets(&q), &q.ContactEmail, &q.ContactPhone)
		if err := rows.Scan(targets...); err != nil {
			return nil, 0, err
		}
		items = append(items, &q)
	}
	return items, total, rows.Err()
}

func (r *requestRepoPG) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hospital_request WHERE status = $1`, status).Scan(&n)
	return n, err
}

func (r *requestRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM hospital_request WHERE id = $1`, id)
	return err
}
