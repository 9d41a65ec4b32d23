package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lifelink/lifelink/internal/platform/db"
)

type unitRepoPG struct{ pool *pgxpool.Pool }

func NewUnitRepoPG(pool *pgxpool.Pool) UnitRepository {
	return &unitRepoPG{pool: pool}
}

func (r *unitRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const unitCols = `id, blood_type, donor_id, manual_donor_name, manual_donor_phone, status,
	hospital_id, donation_date, expiry_date, updated_by, created_at, updated_at`

func (r *unitRepoPG) scanUnit(row pgx.Row) (*BloodUnit, error) {
	var u BloodUnit
	err := row.Scan(&u.ID, &u.BloodType, &u.DonorID, &u.ManualDonorName, &u.ManualDonorPhone,
		&u.Status, &u.HospitalID, &u.DonationDate, &u.ExpiryDate, &u.UpdatedBy,
		&u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *unitRepoPG) scanUnits(rows pgx.Rows) ([]*BloodUnit, error) {
	defer rows.Close()
	var items []*BloodUnit
	for rows.Next() {
		u, err := r.scanUnit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *unitRepoPG) CountAvailable(ctx context.Context) (map[BloodType]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT blood_type, COUNT(*) FROM blood_unit
		WHERE status = 'Available'
		GROUP BY blood_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[BloodType]int)
	for rows.Next() {
		var bt BloodType
		var n int
		if err := rows.Scan(&bt, &n); err != nil {
			return nil, err
		}
		counts[bt] = n
	}
	return counts, rows.Err()
}

func (r *unitRepoPG) CountAvailableByType(ctx context.Context, bt BloodType) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM blood_unit WHERE blood_type = $1 AND status = 'Available'`, bt).Scan(&n)
	return n, err
}

func (r *unitRepoPG) CreateBatch(ctx context.Context, units []*BloodUnit) error {
	batch := &pgx.Batch{}
	for _, u := range units {
		u.ID = uuid.New()
		batch.Queue(`
			INSERT INTO blood_unit (id, blood_type, donor_id, manual_donor_name, manual_donor_phone,
				status, donation_date, expiry_date, updated_by)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING created_at, updated_at`,
			u.ID, u.BloodType, u.DonorID, u.ManualDonorName, u.ManualDonorPhone,
			u.Status, u.DonationDate, u.ExpiryDate, u.UpdatedBy)
	}
	br := r.conn(ctx).SendBatch(ctx, batch)
	defer br.Close()
	for _, u := range units {
		if err := br.QueryRow().Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *unitRepoPG) ClaimAvailable(ctx context.Context, bt BloodType, n int, hospitalID *uuid.UUID, by uuid.UUID) ([]*BloodUnit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		WITH picked AS (
			SELECT id FROM blood_unit
			WHERE blood_type = $1 AND status = 'Available'
			ORDER BY expiry_date ASC, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE blood_unit u SET status = 'Used', hospital_id = $3, updated_by = $4, updated_at = NOW()
		FROM picked WHERE u.id = picked.id
		RETURNING u.id, u.blood_type, u.donor_id, u.manual_donor_name, u.manual_donor_phone, u.status,
			u.hospital_id, u.donation_date, u.expiry_date, u.updated_by, u.created_at, u.updated_at`,
		bt, n, hospitalID, by)
	if err != nil {
		return nil, err
	}
	return r.scanUnits(rows)
}

func (r *unitRepoPG) List(ctx context.Context, f UnitFilter, limit, offset int) ([]*BloodUnit, int, error) {
	where := ` WHERE ($1 = '' OR blood_type = $1) AND ($2 = '' OR status = $2)`
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM blood_unit`+where,
		string(f.BloodType), string(f.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+unitCols+` FROM blood_unit`+where+`
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		string(f.BloodType), string(f.Status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.scanUnits(rows)
	return items, total, err
}

func (r *unitRepoPG) ListAvailableWithDonors(ctx context.Context, bt BloodType) ([]*DonorUnit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT b.id, b.blood_type, b.donor_id,
			COALESCE(u.name, b.manual_donor_name, ''),
			COALESCE(u.phone, b.manual_donor_phone, ''),
			COALESCE(u.email, ''), COALESCE(u.city, ''),
			b.donor_id IS NULL, b.donation_date, b.expiry_date
		FROM blood_unit b
		LEFT JOIN users u ON u.id = b.donor_id
		WHERE b.blood_type = $1 AND b.status = 'Available'
		ORDER BY b.expiry_date ASC`, bt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DonorUnit
	for rows.Next() {
		var d DonorUnit
		if err := rows.Scan(&d.UnitID, &d.BloodType, &d.DonorID, &d.DonorName, &d.DonorPhone,
			&d.DonorEmail, &d.City, &d.Manual, &d.DonationDate, &d.ExpiryDate); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

func (r *unitRepoPG) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_unit SET status = 'Expired', updated_at = NOW()
		WHERE status = 'Available' AND expiry_date < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *unitRepoPG) DonorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND role = 'donor')`, id).Scan(&ok)
	return ok, err
}
