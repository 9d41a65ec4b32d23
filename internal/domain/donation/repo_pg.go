package donation

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

const requestCols = `r.id, r.donor_id, r.requester_kind, r.requester_id, r.blood_type, r.units_needed,
	r.urgency, r.patient_name, r.contact_phone, r.message, r.type, r.status, r.accepted_at,
	r.completed_at, r.scheduled_date, r.location, r.start_time, r.end_time, r.latitude,
	r.longitude, r.hospital_request_id, r.created_at, r.updated_at`

func scanTargets(q *Request) []interface{} {
	return []interface{}{&q.ID, &q.DonorID, &q.RequestedBy.Kind, &q.RequestedBy.ID, &q.BloodType,
		&q.UnitsNeeded, &q.Urgency, &q.PatientName, &q.ContactPhone, &q.Message, &q.Type, &q.Status,
		&q.AcceptedAt, &q.CompletedAt, &q.ScheduledDate, &q.Location, &q.StartTime, &q.EndTime,
		&q.Latitude, &q.Longitude, &q.HospitalRequestID, &q.CreatedAt, &q.UpdatedAt}
}

func (r *requestRepoPG) scan(row pgx.Row) (*Request, error) {
	var q Request
	err := row.Scan(scanTargets(&q)...)
	return &q, err
}

const insertRequest = `
	INSERT INTO donation_request (id, donor_id, requester_kind, requester_id, blood_type, units_needed,
		urgency, patient_name, contact_phone, message, type, status, accepted_at, completed_at,
		scheduled_date, location, start_time, end_time, latitude, longitude, hospital_request_id)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	RETURNING created_at, updated_at`

func insertArgs(q *Request) []interface{} {
	return []interface{}{q.ID, q.DonorID, q.RequestedBy.Kind, q.RequestedBy.ID, q.BloodType,
		q.UnitsNeeded, q.Urgency, q.PatientName, q.ContactPhone, q.Message, q.Type, q.Status,
		q.AcceptedAt, q.CompletedAt, q.ScheduledDate, q.Location, q.StartTime, q.EndTime,
		q.Latitude, q.Longitude, q.HospitalRequestID}
}

func (r *requestRepoPG) Create(ctx context.Context, q *Request) error {
	q.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, insertRequest, insertArgs(q)...).Scan(&q.CreatedAt, &q.UpdatedAt)
}

func (r *requestRepoPG) CreateBatch(ctx context.Context, items []*Request) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, q := range items {
		q.ID = uuid.New()
		batch.Queue(insertRequest, insertArgs(q)...)
	}
	br := r.conn(ctx).SendBatch(ctx, batch)
	defer br.Close()
	for _, q := range items {
		if err := br.QueryRow().Scan(&q.CreatedAt, &q.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+` FROM donation_request r WHERE r.id = $1`, id))
}

func (r *requestRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+` FROM donation_request r WHERE r.id = $1 FOR UPDATE`, id))
}

func (r *requestRepoPG) UpdateStatus(ctx context.Context, q *Request) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE donation_request SET status = $2, accepted_at = $3, completed_at = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		q.ID, q.Status, q.AcceptedAt, q.CompletedAt).Scan(&q.UpdatedAt)
}

func (r *requestRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Request, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.DonorID != nil {
		where += fmt.Sprintf(` AND r.donor_id = $%d`, idx)
		args = append(args, *f.DonorID)
		idx++
	}
	if f.RequesterID != nil {
		where += fmt.Sprintf(` AND r.requester_id = $%d`, idx)
		args = append(args, *f.RequesterID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND r.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM donation_request r`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := ` ORDER BY r.created_at DESC`
	if f.ByUrgency {
		order = ` ORDER BY CASE r.urgency WHEN 'critical' THEN 0 WHEN 'urgent' THEN 1 ELSE 2 END, r.created_at DESC`
	}
	query := `SELECT ` + requestCols + `, COALESCE(d.name, ''), COALESCE(d.phone, ''),
			COALESCE(NULLIF(q.hospital_name, ''), q.name, '')
		FROM donation_request r
		LEFT JOIN users d ON d.id = r.donor_id
		LEFT JOIN users q ON q.id = r.requester_id` + where + order +
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
		targets := append(scanTargets(&q), &q.DonorName, &q.DonorPhone, &q.RequesterName)
		if err := rows.Scan(targets...); err != nil {
			return nil, 0, err
		}
		items = append(items, &q)
	}
	return items, total, rows.Err()
}

func (r *requestRepoPG) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM donation_request WHERE status = $1`, status).Scan(&n)
	return n, err
}

func (r *requestRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM donation_request WHERE id = $1`, id)
	return err
}
