package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/db"
)

type userRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, name, email, password_hash, role, phone, blood_type, address, city,
	is_available, last_donation, hospital_name, license_number, profile_picture,
	created_at, updated_at`

func (r *userRepoPG) scan(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.BloodType,
		&u.Address, &u.City, &u.IsAvailable, &u.LastDonation, &u.HospitalName, &u.LicenseNumber,
		&u.ProfilePicture, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *userRepoPG) scanAll(rows pgx.Rows) ([]*User, error) {
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, phone, blood_type, address, city,
			is_available, hospital_name, license_number)
		VALUES ($1,$2,LOWER($3),$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Phone, u.BloodType, u.Address, u.City,
		u.IsAvailable, u.HospitalName, u.LicenseNumber).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET name=$2, phone=$3, blood_type=$4, address=$5, city=$6, role=$7,
			hospital_name=$8, license_number=$9, profile_picture=$10, password_hash=$11,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.Name, u.Phone, u.BloodType, u.Address, u.City, u.Role,
		u.HospitalName, u.LicenseNumber, u.ProfilePicture, u.PasswordHash).Scan(&u.UpdatedAt)
}

func (r *userRepoPG) SetAvailability(ctx context.Context, id uuid.UUID, available bool, lastDonation *time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET is_available = $2, last_donation = COALESCE($3, last_donation), updated_at = NOW()
		WHERE id = $1`, id, available, lastDonation)
	return err
}

func (r *userRepoPG) ClaimAvailability(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET is_available = FALSE, last_donation = $2, updated_at = NOW()
		WHERE id = $1 AND role = 'donor' AND is_available = TRUE`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *userRepoPG) ListDonors(ctx context.Context, f DonorFilter) ([]*User, error) {
	query := `SELECT ` + userCols + ` FROM users WHERE role = 'donor'`
	var args []interface{}
	idx := 1
	if f.BloodType != "" {
		query += fmt.Sprintf(` AND blood_type = $%d`, idx)
		args = append(args, f.BloodType)
		idx++
	}
	if city := strings.TrimSpace(f.City); city != "" {
		query += fmt.Sprintf(` AND city ILIKE $%d`, idx)
		args = append(args, "%"+escapeLike(city)+"%")
		idx++
	}
	if f.Available != nil {
		query += fmt.Sprintf(` AND is_available = $%d`, idx)
		args = append(args, *f.Available)
	}
	query += ` ORDER BY is_available DESC, created_at DESC`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *userRepoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+` FROM users
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.scanAll(rows)
	return items, total, err
}

func (r *userRepoPG) CountByRole(ctx context.Context) (map[auth.Role]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[auth.Role]int)
	for rows.Next() {
		var role auth.Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[role] = n
	}
	return out, rows.Err()
}

func (r *userRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
