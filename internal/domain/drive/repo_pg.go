package drive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lifelink/lifelink/internal/platform/db"
)

type driveRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &driveRepoPG{pool: pool}
}

func (r *driveRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const driveCols = `d.id, d.organizer_id, d.title, d.date, d.start_time, d.end_time, d.location,
	d.latitude, d.longitude, d.description, d.blood_types, d.status, d.created_at`

// listCols adds the organizer name and attendee count to driveCols.
const listCols = driveCols + `, COALESCE(NULLIF(o.hospital_name, ''), o.name, ''),
	(SELECT COUNT(*) FROM blood_drive_attendee a WHERE a.drive_id = d.id)`

const listFrom = ` FROM blood_drive d LEFT JOIN users o ON o.id = d.organizer_id`

func (r *driveRepoPG) scanDrive(row pgx.Row) (*Drive, error) {
	var d Drive
	err := row.Scan(&d.ID, &d.OrganizerID, &d.Title, &d.Date, &d.StartTime, &d.EndTime,
		&d.Location, &d.Latitude, &d.Longitude, &d.Description, &d.BloodTypes, &d.Status, &d.CreatedAt,
		&d.OrganizerName, &d.AttendeeCount)
	return &d, err
}

func (r *driveRepoPG) Create(ctx context.Context, d *Drive) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO blood_drive (id, organizer_id, title, date, start_time, end_time, location,
			latitude, longitude, description, blood_types, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`,
		d.ID, d.OrganizerID, d.Title, d.Date, d.StartTime, d.EndTime, d.Location,
		d.Latitude, d.Longitude, d.Description, d.BloodTypes, d.Status,
	).Scan(&d.CreatedAt)
}

func (r *driveRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Drive, error) {
	return r.scanDrive(r.conn(ctx).QueryRow(ctx, `SELECT `+listCols+listFrom+` WHERE d.id = $1`, id))
}

func (r *driveRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Drive, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Drive
	for rows.Next() {
		d, err := r.scanDrive(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *driveRepoPG) ListUpcoming(ctx context.Context, from time.Time) ([]*Drive, error) {
	return r.list(ctx, `SELECT `+listCols+listFrom+`
		WHERE d.status = $1 AND d.date >= $2
		ORDER BY d.date ASC, d.start_time ASC`, StatusUpcoming, from)
}

func (r *driveRepoPG) ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]*Drive, error) {
	return r.list(ctx, `SELECT `+listCols+listFrom+`
		WHERE d.organizer_id = $1
		ORDER BY d.date DESC`, organizerID)
}

func (r *driveRepoPG) ListAttendees(ctx context.Context, driveIDs []uuid.UUID) ([]*Attendee, error) {
	if len(driveIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.drive_id, a.donor_id, a.status, a.registered_at,
			COALESCE(u.name, ''), COALESCE(u.phone, ''), COALESCE(u.blood_type, '')
		FROM blood_drive_attendee a
		LEFT JOIN users u ON u.id = a.donor_id
		WHERE a.drive_id = ANY($1)
		ORDER BY a.registered_at ASC`, driveIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Attendee
	for rows.Next() {
		var a Attendee
		if err := rows.Scan(&a.DriveID, &a.DonorID, &a.Status, &a.RegisteredAt,
			&a.DonorName, &a.DonorPhone, &a.BloodType); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

func (r *driveRepoPG) AddAttendee(ctx context.Context, a *Attendee) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO blood_drive_attendee (drive_id, donor_id, status)
		VALUES ($1, $2, $3)
		RETURNING registered_at`,
		a.DriveID, a.DonorID, a.Status,
	).Scan(&a.RegisteredAt)
}

func (r *driveRepoPG) SetAttendance(ctx context.Context, driveID, donorID uuid.UUID, status AttendeeStatus) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE blood_drive_attendee SET status = $3 WHERE drive_id = $1 AND donor_id = $2`,
		driveID, donorID, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *driveRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE blood_drive SET status = $2 WHERE id = $1`, id, status)
	return err
}

func (r *driveRepoPG) CountUpcoming(ctx context.Context, from time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM blood_drive WHERE status = $1 AND date >= $2`, StatusUpcoming, from).Scan(&n)
	return n, err
}
