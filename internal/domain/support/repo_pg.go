package support

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lifelink/lifelink/internal/platform/db"
)

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &messageRepoPG{pool: pool} }

func (r *messageRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const messageCols = `m.id, m.sender_id, m.message, m.reply, m.status, m.created_at, m.updated_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.SenderID, &m.Message, &m.Reply, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO support_message (id, sender_id, message, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		m.ID, m.SenderID, m.Message, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *messageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	return scanMessage(r.conn(ctx).QueryRow(ctx,
		`SELECT `+messageCols+` FROM support_message m WHERE m.id = $1`, id))
}

func (r *messageRepoPG) ListBySender(ctx context.Context, senderID uuid.UUID) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+messageCols+` FROM support_message m WHERE m.sender_id = $1 ORDER BY m.created_at DESC`, senderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *messageRepoPG) List(ctx context.Context, status Status, limit, offset int) ([]*Message, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	idx := 1
	if status != "" {
		where += fmt.Sprintf(` AND m.status = $%d`, idx)
		args = append(args, status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM support_message m`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + messageCols + `, COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.role, '')
		FROM support_message m LEFT JOIN users u ON u.id = m.sender_id` + where +
		fmt.Sprintf(` ORDER BY m.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Message, &m.Reply, &m.Status, &m.CreatedAt, &m.UpdatedAt,
			&m.SenderName, &m.SenderEmail, &m.SenderRole); err != nil {
			return nil, 0, err
		}
		items = append(items, &m)
	}
	return items, total, rows.Err()
}

func (r *messageRepoPG) SetReply(ctx context.Context, m *Message) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE support_message SET reply = $2, status = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Reply, m.Status,
	).Scan(&m.UpdatedAt)
}
